package bookings

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// adminTransitions lists the moves an admin may make through the status endpoint.
// Cancellation has its own endpoint with its own rules.
var adminTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCompleted},
	StatusConfirmed: {StatusCompleted},
}

type Booking struct {
	ID          string  `bson:"_id,omitempty" json:"id"`
	UserID      string  `bson:"userId" json:"userId"`
	ServiceID   string  `bson:"serviceId" json:"serviceId"`
	ProviderID  string  `bson:"providerId,omitempty" json:"providerId,omitempty"`
	ServiceName string  `bson:"serviceName" json:"serviceName"`
	Date        string  `bson:"date" json:"date"`
	Time        string  `bson:"time" json:"time"`
	Duration    int     `bson:"duration" json:"duration"`
	Amount      float64 `bson:"amount" json:"amount"`
	Notes       string  `bson:"notes,omitempty" json:"notes,omitempty"`
	Status      Status  `bson:"status" json:"status"`

	PaymentStatus PaymentStatus `bson:"paymentStatus" json:"paymentStatus"`
	Gateway       string        `bson:"gateway,omitempty" json:"gateway,omitempty"`
	ChargeID      string        `bson:"chargeId,omitempty" json:"chargeId,omitempty"`
	TransactionID string        `bson:"transactionId,omitempty" json:"transactionId,omitempty"`
	PaidAt        *time.Time    `bson:"paidAt,omitempty" json:"paidAt,omitempty"`

	CancellationReason string     `bson:"cancellationReason,omitempty" json:"cancellationReason,omitempty"`
	CancelledBy        string     `bson:"cancelledBy,omitempty" json:"cancelledBy,omitempty"`
	CancelledAt        *time.Time `bson:"cancelledAt,omitempty" json:"cancelledAt,omitempty"`

	Version   int64     `bson:"version" json:"version"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

type CreateRequest struct {
	ServiceID string `json:"serviceId" validate:"required,objectid"`
	Date      string `json:"date" validate:"required,date"`
	Time      string `json:"time" validate:"required,clock"`
	Duration  int    `json:"duration" validate:"omitempty,gte=1,lte=720"`
	Notes     string `json:"notes" validate:"omitempty,max=1000"`
}

type UpdateRequest struct {
	Date     string `json:"date" validate:"omitempty,date"`
	Time     string `json:"time" validate:"omitempty,clock"`
	Duration int    `json:"duration" validate:"omitempty,gte=1,lte=720"`
	Notes    string `json:"notes" validate:"omitempty,max=1000"`
}

type CancelRequest struct {
	Reason string `json:"cancellationReason" validate:"omitempty,max=500"`
}

type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=confirmed completed"`
}

type ListFilter struct {
	UserID        string
	Status        Status
	PaymentStatus PaymentStatus
	ServiceID     string
	Date          string
}

type ListQuery struct {
	Filter    ListFilter
	Limit     int64
	Offset    int64
	SortField string
	SortDesc  bool
}

// PaymentUpdate is a gateway-originated change applied to a booking's payment fields.
type PaymentUpdate struct {
	Status        PaymentStatus
	Gateway       string
	ChargeID      string
	TransactionID string
	At            time.Time
}
