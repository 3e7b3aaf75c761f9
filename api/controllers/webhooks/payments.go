package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/angelmondragon/marketcore-backend/api/responses"
	"github.com/angelmondragon/marketcore-backend/internal/payments"
	paymentwebhook "github.com/angelmondragon/marketcore-backend/internal/webhooks/payments"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

const (
	signatureHeader = "Stripe-Signature"
	maxPayloadBytes = 512 << 10
)

// EventVerifier authenticates and normalizes a raw provider payload.
type EventVerifier interface {
	VerifyAndParse(rawBody []byte, signatureHeader string) (*payments.NormalizedEvent, error)
}

type EventReconciler interface {
	Apply(ctx context.Context, event payments.NormalizedEvent) (paymentwebhook.Outcome, error)
}

type EventGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// PaymentWebhook verifies provider events and hands them to the reconciler. A failing
// guard is logged and the event is still reconciled.
func PaymentWebhook(verifier EventVerifier, reconciler EventReconciler, guard EventGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if verifier == nil || reconciler == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment webhook unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "webhook payload too large").
					WithDetails(map[string]any{"limit_bytes": tooLarge.Limit}))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		event, err := verifier.VerifyAndParse(payload, r.Header.Get(signatureHeader))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		ctx = logg.WithFields(ctx, map[string]any{
			"event_id":   event.ID,
			"event_type": event.Type.String(),
		})

		marked := false
		if guard != nil {
			alreadyProcessed, err := guard.CheckAndMark(ctx, event.ID)
			switch {
			case err != nil:
				logg.Error(ctx, "payment webhook idempotency check failed", err)
			case alreadyProcessed:
				logg.Info(ctx, "payment webhook duplicate delivery")
				responses.WriteSuccess(w, map[string]string{"outcome": string(paymentwebhook.OutcomeIgnored)})
				return
			default:
				marked = true
			}
		}

		outcome, err := reconciler.Apply(ctx, *event)
		if err != nil {
			if marked {
				if delErr := guard.Delete(context.WithoutCancel(ctx), event.ID); delErr != nil {
					logg.Error(ctx, "clear payment webhook marker", delErr)
				}
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		logg.Info(logg.WithField(ctx, "outcome", string(outcome)), "payment webhook processed")
		responses.WriteSuccess(w, map[string]string{"outcome": string(outcome)})
	}
}
