package outbox

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/pkg/db/dbtest"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
)

func deadLetter(failedAt time.Time, msg string) models.OutboxDLQ {
	return models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     enums.EventPaymentOutcome,
		AggregateType: enums.AggregatePayment,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"data":{}}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &msg,
		AttemptCount:  10,
		FailedAt:      failedAt,
	}
}

func TestDLQInsertClipsMessage(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewDLQRepository(client.DB())

	long := strings.Repeat("é", dlqMessageLimit)
	require.NoError(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return repo.InsertTx(tx, deadLetter(time.Now().UTC(), long))
	}))

	var stored models.OutboxDLQ
	require.NoError(t, client.DB().First(&stored).Error)
	require.NotNil(t, stored.ErrorMessage)
	assert.LessOrEqual(t, len(*stored.ErrorMessage), dlqMessageLimit)
	assert.True(t, utf8.ValidString(*stored.ErrorMessage))
}

func TestDLQInsertRequiresTransaction(t *testing.T) {
	repo := NewDLQRepository(nil)
	assert.Error(t, repo.InsertTx(nil, deadLetter(time.Now(), "x")))
}

func TestDLQDeleteFailedBefore(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewDLQRepository(client.DB())
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	oldRow := deadLetter(now.Add(-100*24*time.Hour), "old")
	newRow := deadLetter(now.Add(-time.Hour), "new")
	require.NoError(t, client.DB().Create(&oldRow).Error)
	require.NoError(t, client.DB().Create(&newRow).Error)

	deleted, err := repo.DeleteFailedBefore(nil, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	var left []models.OutboxDLQ
	require.NoError(t, client.DB().Find(&left).Error)
	require.Len(t, left, 1)
	assert.Equal(t, newRow.ID, left[0].ID)
}
