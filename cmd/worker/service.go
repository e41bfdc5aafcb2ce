package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/queue"
)

type pinger interface {
	Ping(context.Context) error
}

type messageRunner interface {
	Run(ctx context.Context, source queue.Consumer) error
}

// Subscription binds a consumer to the stream it reads.
type Subscription struct {
	Name   string
	Source queue.Consumer
	Runner messageRunner
}

type ServiceParams struct {
	Logger        *logger.Logger
	DB            pinger
	Redis         pinger
	Broker        pinger
	Subscriptions []Subscription
}

type Service struct {
	logg          *logger.Logger
	db            pinger
	redis         pinger
	broker        pinger
	subscriptions []Subscription
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if len(params.Subscriptions) == 0 {
		return nil, errors.New("at least one subscription is required")
	}
	for _, sub := range params.Subscriptions {
		if sub.Source == nil || sub.Runner == nil {
			return nil, fmt.Errorf("subscription %q is incomplete", sub.Name)
		}
	}
	return &Service{
		logg:          params.Logger,
		db:            params.DB,
		redis:         params.Redis,
		broker:        params.Broker,
		subscriptions: params.Subscriptions,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "redis", s.redis.Ping); err != nil {
		return err
	}
	if s.broker != nil {
		if err := pingDependency(ctx, s.logg, "broker", s.broker.Ping); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run drives every subscription until ctx is cancelled or one of them fails.
// A failing subscription cancels the others.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, sub := range s.subscriptions {
		group.Go(func() error {
			subCtx := s.logg.WithField(groupCtx, "consumer", sub.Name)
			s.logg.Info(subCtx, "consumer started")
			err := sub.Runner.Run(subCtx, sub.Source)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(subCtx, "consumer stopped unexpectedly", err)
				return fmt.Errorf("%s: %w", sub.Name, err)
			}
			return err
		})
	}

	err := group.Wait()
	for _, sub := range s.subscriptions {
		if closeErr := sub.Source.Close(); closeErr != nil {
			s.logg.Error(ctx, fmt.Sprintf("closing %s source failed", sub.Name), closeErr)
		}
	}
	if err == nil {
		return ctx.Err()
	}
	return err
}
