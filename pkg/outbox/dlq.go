package outbox

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/pkg/db/models"
)

// dlqMessageLimit bounds the stored error text in bytes.
const dlqMessageLimit = 1024

// DLQRepository stores outbox rows the relay gave up on.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx records entry inside the relay's transaction so the dead letter
// and the terminal mark on the source row commit together.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		short := clip(*entry.ErrorMessage, dlqMessageLimit)
		entry.ErrorMessage = &short
	}
	return tx.Create(&entry).Error
}

// Insert records entry on its own, for dead letters raised outside the
// relay such as messages a consumer gave up on.
func (r *DLQRepository) Insert(ctx context.Context, entry models.OutboxDLQ) error {
	return r.InsertTx(r.db.WithContext(ctx), entry)
}

// DeleteFailedBefore drops dead letters older than cutoff. A nil tx runs
// outside any transaction.
func (r *DLQRepository) DeleteFailedBefore(tx *gorm.DB, cutoff time.Time) (int64, error) {
	conn := tx
	if conn == nil {
		conn = r.db
	}
	res := conn.Where("failed_at < ?", cutoff).Delete(&models.OutboxDLQ{})
	return res.RowsAffected, res.Error
}

// clip shortens s to at most n bytes without splitting a rune.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
