package payments

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// Payment is one attempt to settle a booking or an order through a gateway.
type Payment struct {
	ID         string     `bson:"_id,omitempty" json:"id"`
	UserID     string     `bson:"userId" json:"userId"`
	BookingID  string     `bson:"bookingId,omitempty" json:"bookingId,omitempty"`
	OrderID    string     `bson:"orderId,omitempty" json:"orderId,omitempty"`
	Amount     float64    `bson:"amount" json:"amount"`
	Currency   string     `bson:"currency" json:"currency"`
	Gateway    string     `bson:"gateway" json:"gateway"`
	ChargeID   string     `bson:"gatewayChargeId" json:"gatewayChargeId"`
	PaymentID  string     `bson:"gatewayPaymentId,omitempty" json:"gatewayPaymentId,omitempty"`
	Status     Status     `bson:"status" json:"status"`
	Method     string     `bson:"paymentMethod,omitempty" json:"paymentMethod,omitempty"`
	VerifiedAt *time.Time `bson:"verifiedAt,omitempty" json:"verifiedAt,omitempty"`
	CreatedAt  time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// SourceKind reports which record the payment settles.
func (p Payment) SourceKind() SourceKind {
	if p.OrderID != "" {
		return SourceOrder
	}
	return SourceBooking
}

func (p Payment) SourceID() string {
	if p.OrderID != "" {
		return p.OrderID
	}
	return p.BookingID
}

type InitiateRequest struct {
	BookingID     string `json:"bookingId" validate:"omitempty,objectid"`
	OrderID       string `json:"orderId" validate:"omitempty,objectid"`
	PaymentMethod string `json:"paymentMethod" validate:"omitempty,max=100"`
	MethodToken   string `json:"paymentMethodId" validate:"omitempty,max=255"`
	Gateway       string `json:"gateway" validate:"omitempty,oneof=stripe razorpay"`
}

type VerifyRequest struct {
	ChargeID  string `json:"orderId" validate:"required"`
	PaymentID string `json:"paymentId" validate:"omitempty"`
	Signature string `json:"signature" validate:"omitempty"`
}

type CompleteRequest struct {
	ChargeID string `json:"paymentIntentId" validate:"required"`
}

// InitiateResult is what a client needs to finish checkout.
type InitiateResult struct {
	Payment      Payment `json:"payment"`
	ChargeID     string  `json:"orderId"`
	ClientSecret string  `json:"clientSecret,omitempty"`
	AmountMinor  int64   `json:"amount"`
	Currency     string  `json:"currency"`
	Gateway      string  `json:"gateway"`
}

// Source is the booking or order a payment was made for, as shown in history.
type Source struct {
	Kind        SourceKind `json:"kind"`
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Reference   string     `json:"reference,omitempty"`
}

type HistoryEntry struct {
	Payment
	Source *Source `json:"source,omitempty"`
}
