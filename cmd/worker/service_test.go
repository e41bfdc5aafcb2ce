package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/queue"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubSource struct{ closed bool }

func (s *stubSource) Receive(ctx context.Context, _ queue.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *stubSource) Close() error {
	s.closed = true
	return nil
}

type blockingRunner struct{}

func (blockingRunner) Run(ctx context.Context, source queue.Consumer) error {
	return source.Receive(ctx, func(context.Context, queue.Message) {})
}

type failingRunner struct{ err error }

func (r failingRunner) Run(context.Context, queue.Consumer) error { return r.err }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard})
}

func TestServiceStopsOnCancel(t *testing.T) {
	checkoutSrc, paymentSrc := &stubSource{}, &stubSource{}
	svc, err := NewService(ServiceParams{
		Logger: testLogger(),
		DB:     stubPinger{},
		Redis:  stubPinger{},
		Subscriptions: []Subscription{
			{Name: "checkout", Source: checkoutSrc, Runner: blockingRunner{}},
			{Name: "payment", Source: paymentSrc, Runner: blockingRunner{}},
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = svc.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, checkoutSrc.closed)
	assert.True(t, paymentSrc.closed)
}

func TestServiceFailingSubscriptionCancelsOthers(t *testing.T) {
	boom := errors.New("broker gone")
	svc, err := NewService(ServiceParams{
		Logger: testLogger(),
		DB:     stubPinger{},
		Redis:  stubPinger{},
		Subscriptions: []Subscription{
			{Name: "checkout", Source: &stubSource{}, Runner: blockingRunner{}},
			{Name: "payment", Source: &stubSource{}, Runner: failingRunner{err: boom}},
		},
	})
	require.NoError(t, err)

	err = svc.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "payment")
}

func TestServiceReadinessFailure(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Logger:        testLogger(),
		DB:            stubPinger{},
		Redis:         stubPinger{err: errors.New("redis down")},
		Subscriptions: []Subscription{{Name: "checkout", Source: &stubSource{}, Runner: blockingRunner{}}},
	})
	require.NoError(t, err)

	err = svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}

func TestNewServiceValidatesSubscriptions(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: testLogger(), DB: stubPinger{}, Redis: stubPinger{}})
	require.Error(t, err)

	_, err = NewService(ServiceParams{
		Logger:        testLogger(),
		DB:            stubPinger{},
		Redis:         stubPinger{},
		Subscriptions: []Subscription{{Name: "payment"}},
	})
	require.Error(t, err)
}
