package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/pkg/config"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/metrics"
	"github.com/angelmondragon/orderledger/pkg/outbox/registry"
	"github.com/angelmondragon/orderledger/pkg/queue"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type brokerPinger interface {
	Ping(context.Context) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(stream queue.Stream) (queue.Publisher, error)

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	Broker           brokerPinger
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
	Metrics          *metrics.PipelineMetrics
}

// relaySettings are the tunables read from OutboxConfig.
type relaySettings struct {
	batch       int
	maxAttempts int
	poll        time.Duration
}

func settingsFrom(cfg config.OutboxConfig) relaySettings {
	s := relaySettings{
		batch:       cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		poll:        time.Duration(cfg.PollIntervalMS) * time.Millisecond,
	}
	if s.batch <= 0 {
		s.batch = defaultBatchSize
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.poll <= 0 {
		s.poll = defaultPollMs * time.Millisecond
	}
	return s
}

// Service drains outbox rows onto the broker streams chosen by the registry.
type Service struct {
	relaySettings

	logg     *logger.Logger
	db       dbClient
	broker   brokerPinger
	repo     outboxRepository
	registry registryResolver
	dlq      dlqRepository
	open     publisherFactory
	metrics  *metrics.PipelineMetrics

	mu         sync.Mutex
	publishers map[queue.Stream]queue.Publisher
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	missing := []struct {
		absent bool
		what   string
	}{
		{params.Logger == nil, "logger"},
		{params.DB == nil, "database client"},
		{params.Repository == nil, "outbox repository"},
		{params.Registry == nil, "event registry"},
		{params.DLQRepository == nil, "dlq repository"},
		{params.PublisherFactory == nil, "publisher factory"},
	}
	for _, m := range missing {
		if m.absent {
			return nil, fmt.Errorf("%s is required", m.what)
		}
	}

	return &Service{
		relaySettings: settingsFrom(params.Config.Outbox),
		logg:          params.Logger,
		db:            params.DB,
		broker:        params.Broker,
		repo:          params.Repository,
		registry:      params.Registry,
		dlq:           params.DLQRepository,
		open:          params.PublisherFactory,
		metrics:       params.Metrics,
		publishers:    make(map[queue.Stream]queue.Publisher),
	}, nil
}

// Run polls until ctx is done. Empty polls sleep for the configured interval;
// failed batches back off exponentially up to maxBackoff.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	backoff := s.poll
	for ctx.Err() == nil {
		busy, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox.batch_failed", err)
			backoff = nextBackoff(backoff, s.poll, maxBackoff)
			wait = backoff
		case busy:
			backoff = s.poll
			continue
		default:
			backoff = s.poll
			wait = s.poll
		}
		if err := sleepCtx(ctx, withJitter(wait)); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "outbox.relay_stopped")
	return ctx.Err()
}

func (s *Service) ready(ctx context.Context) error {
	checks := map[string]func(context.Context) error{"database": s.db.Ping}
	if s.broker != nil {
		checks["broker"] = s.broker.Ping
	}
	for name, ping := range checks {
		if err := ping(ctx); err != nil {
			s.logg.Error(ctx, "outbox.dependency_unavailable", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	return nil
}

// processBatch claims up to batch rows and settles each one inside the same
// transaction. It reports whether any rows were claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	claimed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batch, s.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(events) > 0
		for _, event := range events {
			if err := s.relay(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

// relay publishes a single row and records the outcome. Only bookkeeping
// failures are returned; publish failures are recorded on the row.
func (s *Service) relay(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return s.deadLetter(ctx, tx, event, "", enums.OutboxDLQReasonNonRetryable, err)
	}
	stream := resolved.Descriptor.Stream
	ctx = s.logg.WithFields(ctx, describe(event, resolved))

	pubErr := s.publish(ctx, event, resolved)
	if pubErr == nil {
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.IncRelay(string(stream), metrics.RelayPublished)
		s.logg.Info(ctx, "outbox.event_published")
		return nil
	}

	var permanent registry.NonRetryableError
	if errors.As(pubErr, &permanent) {
		return s.deadLetter(ctx, tx, event, stream, enums.OutboxDLQReasonNonRetryable, pubErr)
	}
	attempt := event.AttemptCount + 1
	if attempt >= s.maxAttempts {
		return s.deadLetter(ctx, tx, event, stream, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("gave up after %d attempts: %w", attempt, pubErr))
	}

	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"attempt_count": attempt,
		"error":         pubErr.Error(),
	}), "outbox.publish_retry")
	s.metrics.IncRelay(string(stream), metrics.RelayRetry)
	if err := s.repo.MarkFailedTx(tx, event.ID, pubErr); err != nil {
		return fmt.Errorf("mark failed %s: %w", event.ID, err)
	}
	return nil
}

// deadLetter copies the row into the DLQ and marks it terminal so the relay
// never claims it again.
func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, stream queue.Stream, reason enums.OutboxDLQErrorReason, cause error) error {
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"outbox_id":    event.ID.String(),
		"event_type":   event.EventType,
		"error_reason": reason,
		"error":        cause.Error(),
	}), "outbox.event_dead_lettered")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	s.metrics.IncRelay(string(stream), metrics.RelayDLQ)
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	pub, err := s.publisherFor(resolved.Descriptor.Stream)
	if err != nil {
		return registry.NewNonRetryableError(err)
	}

	key := event.PartitionKey
	if key == "" {
		key = event.AggregateID.String()
	}
	ctx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	_, err = pub.Publish(ctx, queue.Outgoing{
		Key:  key,
		Data: event.Payload,
		Attributes: map[string]string{
			queue.AttrEventID:       resolved.Envelope.EventID,
			queue.AttrEventType:     string(event.EventType),
			queue.AttrAggregateType: string(event.AggregateType),
			queue.AttrAggregateID:   event.AggregateID.String(),
			"created_at":            event.CreatedAt.Format(time.RFC3339Nano),
		},
	})
	return err
}

func (s *Service) publisherFor(stream queue.Stream) (queue.Publisher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pub, ok := s.publishers[stream]; ok {
		return pub, nil
	}
	pub, err := s.open(stream)
	switch {
	case err != nil:
		return nil, fmt.Errorf("publisher for stream %s: %w", stream, err)
	case pub == nil:
		return nil, fmt.Errorf("no publisher configured for stream %s", stream)
	}
	s.publishers[stream] = pub
	return pub, nil
}

// Close releases every publisher opened by the service.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs error
	for stream, pub := range s.publishers {
		multierr.AppendInto(&errs, closeWrapped(stream, pub))
	}
	clear(s.publishers)
	return errs
}

func closeWrapped(stream queue.Stream, pub queue.Publisher) error {
	if err := pub.Close(); err != nil {
		return fmt.Errorf("close %s publisher: %w", stream, err)
	}
	return nil
}

func describe(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
		"stream":         resolved.Descriptor.Stream,
	}
	if id := resolved.Envelope.EventID; id != "" {
		fields["event_id"] = id
		fields["occurred_at"] = resolved.Envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if event.PartitionKey != "" {
		fields["partition_key"] = event.PartitionKey
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, limit time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, limit)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}
