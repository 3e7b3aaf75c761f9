package payments

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	pkgstripe "github.com/angelmondragon/marketcore-backend/pkg/stripe"
)

const (
	stripeEventIntentSucceeded = "payment_intent.succeeded"
	stripeEventIntentFailed    = "payment_intent.payment_failed"
	stripeEventChargeRefunded  = "charge.refunded"
)

// intentAPI is the subset of the Stripe payment intent resource the gateway calls.
type intentAPI interface {
	New(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Cancel(ctx context.Context, id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

type stripeIntents struct{}

func (stripeIntents) New(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	params.Context = ctx
	return paymentintent.New(params)
}

func (stripeIntents) Get(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	params.Context = ctx
	return paymentintent.Get(id, params)
}

func (stripeIntents) Cancel(ctx context.Context, id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	params.Context = ctx
	return paymentintent.Cancel(id, params)
}

// Intent is the provider-neutral view of a payment intent.
type Intent struct {
	ID           string
	ClientSecret string
	AmountMinor  int64
	Currency     string
	Status       string
	Metadata     map[string]string
}

// Settled reports whether the intent already succeeded or was canceled.
func (i Intent) Settled() bool {
	switch stripe.PaymentIntentStatus(i.Status) {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusCanceled:
		return true
	}
	return false
}

// Amount returns the intent amount in major units.
func (i Intent) Amount() decimal.Decimal {
	return decimal.New(i.AmountMinor, -2)
}

// NormalizedEvent is a verified webhook reduced to the fields reconciliation needs.
type NormalizedEvent struct {
	ID            string
	Type          enums.PaymentEventType
	IntentID      string
	Amount        decimal.Decimal
	FailureReason string
	OccurredAt    time.Time
}

// Gateway adapts Stripe payment intents and webhooks. It never touches marketplace state.
type Gateway struct {
	api           intentAPI
	signingSecret string
	minMinor      int64
	maxMinor      int64
}

// NewGateway builds a gateway on the initialized Stripe client.
func NewGateway(client *pkgstripe.Client, cfg config.CheckoutConfig) (*Gateway, error) {
	if client == nil {
		return nil, errors.New("stripe client required")
	}
	return newGateway(stripeIntents{}, client.SigningSecret(), cfg)
}

func newGateway(api intentAPI, signingSecret string, cfg config.CheckoutConfig) (*Gateway, error) {
	if api == nil {
		return nil, errors.New("intent api required")
	}
	if strings.TrimSpace(signingSecret) == "" {
		return nil, errors.New("webhook signing secret required")
	}
	return &Gateway{
		api:           api,
		signingSecret: signingSecret,
		minMinor:      ToMinor(cfg.MinIntentAmount),
		maxMinor:      ToMinor(cfg.MaxIntentAmount),
	}, nil
}

// ToMinor converts a major-unit amount to cents.
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}

// ValidateAmount enforces the platform min/max intent amount.
func (g *Gateway) ValidateAmount(amountMinor int64) error {
	if amountMinor < g.minMinor || amountMinor > g.maxMinor {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment amount out of range").WithDetails(map[string]any{
			"amount": decimal.New(amountMinor, -2).StringFixed(2),
			"min":    decimal.New(g.minMinor, -2).StringFixed(2),
			"max":    decimal.New(g.maxMinor, -2).StringFixed(2),
		})
	}
	return nil
}

// CreateIntent opens a payment intent for amountMinor in currency.
func (g *Gateway) CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*Intent, error) {
	if err := g.ValidateAmount(amountMinor); err != nil {
		return nil, err
	}
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "currency required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountMinor),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for key, value := range metadata {
		params.AddMetadata(key, value)
	}

	pi, err := g.api.New(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}
	return toIntent(pi), nil
}

// RetrieveIntent fetches the current state of an intent.
func (g *Gateway) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	if strings.TrimSpace(id) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}
	pi, err := g.api.Get(ctx, id, &stripe.PaymentIntentParams{})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retrieve payment intent")
	}
	return toIntent(pi), nil
}

// CancelIntent voids an intent that will never be captured.
func (g *Gateway) CancelIntent(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}
	if _, err := g.api.Cancel(ctx, id, &stripe.PaymentIntentCancelParams{}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel payment intent")
	}
	return nil
}

// VerifyAndParse checks the Stripe-Signature header and normalizes the event.
// Event types the marketplace does not handle come back as PaymentEventUnknown.
func (g *Gateway) VerifyAndParse(rawBody []byte, signatureHeader string) (*NormalizedEvent, error) {
	if strings.TrimSpace(signatureHeader) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeSignatureInvalid, "stripe signature missing")
	}
	event, err := webhook.ConstructEventWithOptions(rawBody, signatureHeader, g.signingSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeSignatureInvalid, err, "verify signature")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse webhook event")
	}
	return normalize(&event)
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

func normalize(event *stripe.Event) (*NormalizedEvent, error) {
	out := &NormalizedEvent{
		ID:         event.ID,
		Type:       enums.PaymentEventUnknown,
		OccurredAt: time.Unix(event.Created, 0).UTC(),
	}
	if event.Data == nil {
		return out, nil
	}

	switch string(event.Type) {
	case stripeEventIntentSucceeded, stripeEventIntentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
		}
		out.IntentID = pi.ID
		out.Amount = decimal.New(pi.Amount, -2)
		if string(event.Type) == stripeEventIntentSucceeded {
			out.Type = enums.PaymentEventSucceeded
		} else {
			out.Type = enums.PaymentEventFailed
			out.FailureReason = "payment failed"
			if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
				out.FailureReason = pi.LastPaymentError.Msg
			}
		}
	case stripeEventChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge event")
		}
		out.Amount = decimal.New(charge.AmountRefunded, -2)
		if charge.PaymentIntent != nil {
			out.IntentID = charge.PaymentIntent.ID
		}
		// Stripe sends charge.refunded for partial refunds too; those stay unknown.
		if charge.Refunded || (charge.Amount > 0 && charge.AmountRefunded >= charge.Amount) {
			out.Type = enums.PaymentEventRefunded
		}
	}
	return out, nil
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	if pi == nil {
		return &Intent{}
	}
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountMinor:  pi.Amount,
		Currency:     string(pi.Currency),
		Status:       string(pi.Status),
		Metadata:     pi.Metadata,
	}
}
