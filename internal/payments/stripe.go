package payments

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const SignatureHeaderStripe = "Stripe-Signature"

// stripeIntents is the subset of the SDK payment intent client the gateway uses.
type stripeIntents interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type StripeGateway struct {
	intents       stripeIntents
	webhookSecret string
}

func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &StripeGateway{
		intents:       sc.PaymentIntents,
		webhookSecret: webhookSecret,
	}
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) OpenCharge(ctx context.Context, req ChargeRequest) (Charge, error) {
	params := &stripe.PaymentIntentParams{
		Params:   stripe.Params{Context: ctx},
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(req.Currency),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.MethodToken != "" {
		params.PaymentMethod = stripe.String(req.MethodToken)
		params.Confirm = stripe.Bool(true)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.intents.New(params)
	if err != nil {
		return Charge{}, fmt.Errorf("%w: stripe payment intent create: %v", ErrGateway, err)
	}
	return intentCharge(pi), nil
}

func (g *StripeGateway) RetrieveCharge(ctx context.Context, chargeID string) (Charge, error) {
	pi, err := g.intents.Get(chargeID, &stripe.PaymentIntentParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		return Charge{}, fmt.Errorf("%w: stripe payment intent get: %v", ErrGateway, err)
	}
	return intentCharge(pi), nil
}

// VerifyPayment has no client signature to check on Stripe; the intent itself
// must report success.
func (g *StripeGateway) VerifyPayment(ctx context.Context, chargeID, paymentID, signature string) error {
	charge, err := g.RetrieveCharge(ctx, chargeID)
	if err != nil {
		return err
	}
	if charge.Status != ChargeSucceeded {
		return ErrNotConfirmed
	}
	return nil
}

func (g *StripeGateway) ParseWebhook(body []byte, signature string) (WebhookEvent, error) {
	evt, err := webhook.ConstructEventWithOptions(body, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	event := WebhookEvent{ID: evt.ID, Type: string(evt.Type), Kind: EventIgnored}
	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return WebhookEvent{}, fmt.Errorf("%w: stripe payment intent: %v", ErrInvalidPayload, err)
		}
		event.ChargeID = pi.ID
		if pi.LatestCharge != nil {
			event.PaymentID = pi.LatestCharge.ID
		}
		event.Kind = EventCaptured
		if event.Type == "payment_intent.payment_failed" {
			event.Kind = EventFailed
		}
	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(evt.Data.Raw, &ch); err != nil {
			return WebhookEvent{}, fmt.Errorf("%w: stripe charge: %v", ErrInvalidPayload, err)
		}
		event.PaymentID = ch.ID
		if ch.PaymentIntent != nil {
			event.ChargeID = ch.PaymentIntent.ID
		}
		event.Kind = EventRefunded
	}
	return event, nil
}

func intentCharge(pi *stripe.PaymentIntent) Charge {
	charge := Charge{ID: pi.ID, ClientSecret: pi.ClientSecret}
	if pi.LatestCharge != nil {
		charge.PaymentID = pi.LatestCharge.ID
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		charge.Status = ChargeSucceeded
	case stripe.PaymentIntentStatusCanceled:
		charge.Status = ChargeFailed
	default:
		charge.Status = ChargePending
	}
	return charge
}
