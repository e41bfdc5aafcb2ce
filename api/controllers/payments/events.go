package payments

import (
	"net/http"

	"github.com/angelmondragon/orderledger/api/responses"
	"github.com/angelmondragon/orderledger/api/validators"
	"github.com/angelmondragon/orderledger/internal/payments"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/outbox/payloads"
)

// RecordOutcome accepts a provider verdict and queues it for the payment
// consumer.
func RecordOutcome(svc payments.Intake, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment intake unavailable"))
			return
		}
		var event payloads.PaymentOutcomeEvent
		if err := validators.DecodeJSONBody(r, &event); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		event.TxnRef = validators.SanitizeString(event.TxnRef, 128)

		eventID, err := svc.Record(r.Context(), event)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteAccepted(w, map[string]string{
			"eventId": eventID,
			"txnRef":  event.TxnRef,
		})
	}
}
