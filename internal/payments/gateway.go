package payments

import (
	"context"
	"errors"
)

var (
	ErrInvalidSignature = errors.New("invalid payment signature")
	ErrNotConfirmed     = errors.New("payment not confirmed by gateway")
	ErrGateway          = errors.New("payment gateway error")
	ErrInvalidPayload   = errors.New("malformed webhook payload")
)

// ChargeStatus is a gateway charge state reduced to what the ledger cares about.
type ChargeStatus string

const (
	ChargePending   ChargeStatus = "pending"
	ChargeSucceeded ChargeStatus = "succeeded"
	ChargeFailed    ChargeStatus = "failed"
	ChargeRefunded  ChargeStatus = "refunded"
)

type ChargeRequest struct {
	// AmountMinor is the amount in the currency's minor unit (paise, cents).
	AmountMinor int64
	Currency    string
	MethodToken string
	Reference   string
	Description string
	Metadata    map[string]string
}

type Charge struct {
	ID           string
	Status       ChargeStatus
	PaymentID    string
	ClientSecret string
}

type EventKind string

const (
	EventCaptured EventKind = "captured"
	EventFailed   EventKind = "failed"
	EventRefunded EventKind = "refund-processed"
	EventIgnored  EventKind = "ignored"
)

// WebhookEvent is an authenticated gateway callback.
type WebhookEvent struct {
	ID        string
	Type      string
	Kind      EventKind
	ChargeID  string
	PaymentID string
}

// Gateway is the narrow surface the payment service needs from a provider.
type Gateway interface {
	Name() string
	OpenCharge(ctx context.Context, req ChargeRequest) (Charge, error)
	RetrieveCharge(ctx context.Context, chargeID string) (Charge, error)
	// VerifyPayment checks a client-side confirmation for chargeID.
	VerifyPayment(ctx context.Context, chargeID, paymentID, signature string) error
	// ParseWebhook authenticates body against signature before decoding it.
	ParseWebhook(body []byte, signature string) (WebhookEvent, error)
}
