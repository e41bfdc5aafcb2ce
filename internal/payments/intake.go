// Package payments accepts payment provider verdicts and hands them to the
// payment consumer through the outbox, keyed by transaction reference.
package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/outbox"
	"github.com/angelmondragon/orderledger/pkg/outbox/payloads"
)

const providerRole = "payment_provider"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (string, error)
}

// Intake records payment outcomes for asynchronous processing.
type Intake interface {
	Record(ctx context.Context, event payloads.PaymentOutcomeEvent) (string, error)
}

type IntakeParams struct {
	Tx     txRunner
	Outbox outboxPublisher
	Logger *logger.Logger
}

type intake struct {
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
}

func NewIntake(params IntakeParams) (Intake, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &intake{tx: params.Tx, outbox: params.Outbox, logg: params.Logger}, nil
}

// Record validates the verdict and stores it in the outbox. It returns the
// envelope event id.
func (i *intake) Record(ctx context.Context, event payloads.PaymentOutcomeEvent) (string, error) {
	if err := normalize(&event); err != nil {
		return "", err
	}
	ctx = i.logg.WithTxnRef(ctx, event.TxnRef)

	var eventID string
	err := i.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		eventID, err = i.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentOutcome,
			AggregateType: enums.AggregatePayment,
			AggregateID:   aggregateID(event),
			PartitionKey:  event.TxnRef,
			Actor:         &outbox.ActorRef{UserID: event.UserID, Role: providerRole},
			Data:          event,
		})
		return err
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment outcome")
	}

	i.logg.Info(i.logg.WithField(ctx, "status", event.Status), "payment outcome recorded")
	return eventID, nil
}

func normalize(event *payloads.PaymentOutcomeEvent) error {
	event.TxnRef = strings.TrimSpace(event.TxnRef)
	if event.TxnRef == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "txnRef is required")
	}
	status, err := enums.ParsePaymentEventStatus(strings.ToUpper(strings.TrimSpace(event.Status)))
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "status must be PAID or FAILED")
	}
	event.Status = string(status)

	if event.HasOrderID() {
		if _, err := uuid.Parse(strings.TrimSpace(*event.OrderID)); err != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "orderId must be a uuid")
		}
		return nil
	}
	// Payment-first flows must carry enough to build the order later.
	if status == enums.PaymentEventPaid && event.OrderDataJSON != "" {
		var data payloads.OrderData
		if err := json.Unmarshal([]byte(event.OrderDataJSON), &data); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "orderDataJson is not valid order data")
		}
	}
	return nil
}

// aggregateID is the referenced order, or a stable id derived from txnRef.
func aggregateID(event payloads.PaymentOutcomeEvent) uuid.UUID {
	if event.HasOrderID() {
		if id, err := uuid.Parse(strings.TrimSpace(*event.OrderID)); err == nil {
			return id
		}
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(event.TxnRef))
}
