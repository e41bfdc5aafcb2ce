package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/queue"
)

type deadLetterWriter interface {
	Insert(ctx context.Context, entry models.OutboxDLQ) error
}

// recordDropped logs a message the consumer gave up on and parks it in
// outbox_dlq so it can be replayed by hand.
func recordDropped(logg *logger.Logger, dlq deadLetterWriter) queue.DropFunc {
	return func(ctx context.Context, msg kafka.Message, attempts int) {
		ctx = logg.WithFields(context.WithoutCancel(ctx), map[string]any{
			"topic":     msg.Topic,
			"partition": msg.Partition,
			"offset":    msg.Offset,
			"key":       string(msg.Key),
		})
		cause := fmt.Errorf("dropped after %d deliveries", attempts)
		logg.Error(ctx, "kafka message dropped", cause)

		if err := dlq.Insert(ctx, deadLetterFor(msg, attempts, cause)); err != nil {
			logg.Error(ctx, "failed to dead-letter dropped message", err)
		}
	}
}

func deadLetterFor(msg kafka.Message, attempts int, cause error) models.OutboxDLQ {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	payload := json.RawMessage(msg.Value)
	if !json.Valid(payload) {
		payload, _ = json.Marshal(string(msg.Value))
	}
	text := fmt.Sprintf("%s/%d/%d: %v", msg.Topic, msg.Partition, msg.Offset, cause)
	return models.OutboxDLQ{
		EventID:       parseOrNil(headers[queue.AttrEventID]),
		EventType:     enums.OutboxEventType(headers[queue.AttrEventType]),
		AggregateType: enums.OutboxAggregateType(headers[queue.AttrAggregateType]),
		AggregateID:   parseOrNil(headers[queue.AttrAggregateID]),
		Payload:       payload,
		ErrorReason:   enums.OutboxDLQReasonRedeliveryExhausted,
		ErrorMessage:  &text,
		AttemptCount:  attempts,
		FailedAt:      time.Now().UTC(),
	}
}

func parseOrNil(raw string) uuid.UUID {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	return id
}
