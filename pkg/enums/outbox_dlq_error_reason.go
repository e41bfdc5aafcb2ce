package enums

import "fmt"

// OutboxDLQErrorReason classifies why an outbox event was dead-lettered.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts         OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable        OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonDecodeFailed        OutboxDLQErrorReason = "decode_failed"
	OutboxDLQReasonRedeliveryExhausted OutboxDLQErrorReason = "redelivery_exhausted"
	OutboxDLQReasonUnknown             OutboxDLQErrorReason = "unknown"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
	OutboxDLQReasonDecodeFailed,
	OutboxDLQReasonRedeliveryExhausted,
	OutboxDLQReasonUnknown,
}

// String implements fmt.Stringer.
func (v OutboxDLQErrorReason) String() string {
	return string(v)
}

// IsValid reports whether the value is a known OutboxDLQErrorReason.
func (v OutboxDLQErrorReason) IsValid() bool {
	for _, candidate := range validOutboxDLQErrorReasons {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseOutboxDLQErrorReason converts raw input into a OutboxDLQErrorReason.
func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	for _, candidate := range validOutboxDLQErrorReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox dlq error reason %q", value)
}
