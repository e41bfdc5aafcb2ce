package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	"github.com/angelmondragon/orderledger/pkg/outbox"
	"github.com/angelmondragon/orderledger/pkg/outbox/payloads"
	"github.com/angelmondragon/orderledger/pkg/queue"
	"github.com/google/uuid"
)

func TestEventRegistryResolveCheckout(t *testing.T) {
	reg := NewEventRegistry()

	payloadBytes := mustMarshal(t, payloads.CheckoutSubmittedEvent{
		RequestID: "req-1",
		UserID:    "buyer-1",
		AddressID: "addr-1",
		Items:     []payloads.CheckoutItem{{ProductID: "p-1", SizeID: "s-1", Quantity: 2}},
	})

	event := models.OutboxEvent{
		EventType:     enums.EventCheckoutSubmitted,
		AggregateType: enums.AggregateCheckout,
		AggregateID:   uuid.New(),
		PartitionKey:  "buyer-1",
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Stream != queue.StreamCheckout {
		t.Fatalf("unexpected stream %q", resolved.Descriptor.Stream)
	}
	payload, ok := resolved.Payload.(*payloads.CheckoutSubmittedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.UserID != "buyer-1" || len(payload.Items) != 1 || payload.Items[0].Quantity != 2 {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" || resolved.Envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope incomplete %+v", resolved.Envelope)
	}
}

func TestEventRegistryResolvePaymentOutcome(t *testing.T) {
	reg := NewEventRegistry()
	event := models.OutboxEvent{
		EventType:     enums.EventPaymentOutcome,
		AggregateType: enums.AggregatePayment,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{"txnRef":"T1","status":"PAID"}`)),
	}
	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Stream != queue.StreamPayment {
		t.Fatalf("unexpected stream %q", resolved.Descriptor.Stream)
	}
}

func TestEventRegistryResolveFailures(t *testing.T) {
	reg := NewEventRegistry()

	cases := map[string]models.OutboxEvent{
		"unknown event": {
			EventType:     enums.OutboxEventType("mystery"),
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"aggregate mismatch": {
			EventType:     enums.EventCheckoutSubmitted,
			AggregateType: enums.AggregatePayment,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"missing aggregate id": {
			EventType:     enums.EventCheckoutSubmitted,
			AggregateType: enums.AggregateCheckout,
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"null payload": {
			EventType:     enums.EventCheckoutSubmitted,
			AggregateType: enums.AggregateCheckout,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte("null")),
		},
	}

	for name, event := range cases {
		_, err := reg.Resolve(event)
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		var nonRetry NonRetryableError
		if !errors.As(err, &nonRetry) {
			t.Fatalf("%s: expected non-retryable error, got %T", name, err)
		}
	}
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}
