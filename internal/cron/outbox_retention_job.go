package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/pkg/logger"
)

const (
	defaultOutboxRetentionDays = 30
	defaultDLQRetentionDays    = 90
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

type deadLetterRetentionRepo interface {
	DeleteFailedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

// OutboxRetentionJobParams configures the nightly cleanup. DeadLetters is
// optional; without it only relayed outbox rows are pruned.
type OutboxRetentionJobParams struct {
	Logger       *logger.Logger
	DB           txRunner
	Repository   outboxRetentionRepo
	DeadLetters  deadLetterRetentionRepo
	Retention    int
	DLQRetention int
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Repository == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	return &outboxRetentionJob{
		logg:    params.Logger,
		db:      params.DB,
		outbox:  params.Repository,
		dlq:     params.DeadLetters,
		keep:    days(params.Retention, defaultOutboxRetentionDays),
		keepDLQ: days(params.DLQRetention, defaultDLQRetentionDays),
		now:     time.Now,
	}, nil
}

func days(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * 24 * time.Hour
}

type outboxRetentionJob struct {
	logg    *logger.Logger
	db      txRunner
	outbox  outboxRetentionRepo
	dlq     deadLetterRetentionRepo
	keep    time.Duration
	keepDLQ time.Duration
	now     func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run prunes relayed rows and, when configured, stale dead letters in one
// transaction.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff, dlqCutoff := now.Add(-j.keep), now.Add(-j.keepDLQ)

	var relayed, dead int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if relayed, err = j.outbox.DeletePublishedBefore(tx, cutoff); err != nil {
			return fmt.Errorf("prune outbox: %w", err)
		}
		if j.dlq == nil {
			return nil
		}
		if dead, err = j.dlq.DeleteFailedBefore(tx, dlqCutoff); err != nil {
			return fmt.Errorf("prune dead letters: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"outbox_cutoff":       cutoff,
		"dlq_cutoff":          dlqCutoff,
		"outbox_rows_deleted": relayed,
		"dlq_rows_deleted":    dead,
	}), "cron.outbox_retention.done")
	return nil
}
