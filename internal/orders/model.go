package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type ItemType string

const (
	ItemProduct ItemType = "product"
	ItemService ItemType = "service"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

const (
	MethodCash   = "cash"
	MethodCard   = "card"
	MethodUPI    = "upi"
	MethodWallet = "wallet"
)

const (
	RefundNotApplicable = "not_applicable"
	RefundPending       = "pending"
	RefundProcessed     = "processed"
	RefundFailed        = "failed"
)

type LineItem struct {
	Type     ItemType `bson:"type" json:"type"`
	ItemID   string   `bson:"itemId" json:"itemId"`
	Name     string   `bson:"name" json:"name"`
	Quantity int      `bson:"quantity" json:"quantity"`
	Price    float64  `bson:"price" json:"price"`
	Subtotal float64  `bson:"subtotal" json:"subtotal"`
}

type PaymentDetails struct {
	Method        string        `bson:"method" json:"method"`
	Status        PaymentStatus `bson:"status" json:"status"`
	Gateway       string        `bson:"gateway,omitempty" json:"gateway,omitempty"`
	ChargeID      string        `bson:"chargeId,omitempty" json:"chargeId,omitempty"`
	TransactionID string        `bson:"transactionId,omitempty" json:"transactionId,omitempty"`
	PaidAt        *time.Time    `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
}

type StatusEntry struct {
	Status    Status    `bson:"status" json:"status"`
	Note      string    `bson:"note,omitempty" json:"note,omitempty"`
	UpdatedBy string    `bson:"updatedBy,omitempty" json:"updatedBy,omitempty"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

type Cancellation struct {
	Reason       string    `bson:"reason" json:"reason"`
	Note         string    `bson:"note,omitempty" json:"note,omitempty"`
	CancelledAt  time.Time `bson:"cancelledAt" json:"cancelledAt"`
	CancelledBy  string    `bson:"cancelledBy" json:"cancelledBy"`
	RefundStatus string    `bson:"refundStatus" json:"refundStatus"`
}

type Order struct {
	ID             string         `bson:"_id,omitempty" json:"id"`
	OrderNumber    string         `bson:"orderNumber" json:"orderNumber"`
	UserID         string         `bson:"userId" json:"userId"`
	Items          []LineItem     `bson:"items" json:"items"`
	Status         Status         `bson:"status" json:"status"`
	Subtotal       float64        `bson:"subtotal" json:"subtotal"`
	Tax            float64        `bson:"tax" json:"tax"`
	Discount       float64        `bson:"discount" json:"discount"`
	TotalAmount    float64        `bson:"totalAmount" json:"totalAmount"`
	PaymentDetails PaymentDetails `bson:"paymentDetails" json:"paymentDetails"`
	StatusHistory  []StatusEntry  `bson:"statusHistory" json:"statusHistory"`
	Cancellation   *Cancellation  `bson:"cancellation,omitempty" json:"cancellation,omitempty"`
	CustomerNotes  string         `bson:"customerNotes,omitempty" json:"customerNotes,omitempty"`
	CompletedAt    *time.Time     `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	Version        int64          `bson:"version" json:"version"`
	CreatedAt      time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time      `bson:"updatedAt" json:"updatedAt"`
}

// Totals is the money breakdown of an order.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals fills each line subtotal (quantity × price) and returns the order totals.
// Tax and discount are fixed at zero.
func ComputeTotals(items []LineItem) ([]LineItem, Totals) {
	out := make([]LineItem, len(items))
	subtotal := decimal.Zero
	for i, item := range items {
		line := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
		item.Subtotal = line.InexactFloat64()
		out[i] = item
		subtotal = subtotal.Add(line)
	}
	totals := Totals{
		Subtotal: subtotal,
		Tax:      decimal.Zero,
		Discount: decimal.Zero,
	}
	totals.Total = totals.Subtotal.Add(totals.Tax).Sub(totals.Discount)
	return out, totals
}

type LineItemRequest struct {
	Type     ItemType `json:"type" validate:"required,oneof=product service"`
	ItemID   string   `json:"itemId" validate:"required,objectid"`
	Name     string   `json:"name" validate:"required"`
	Quantity int      `json:"quantity" validate:"required,gte=1"`
	Price    *float64 `json:"price" validate:"required,gte=0"`
}

type CreateRequest struct {
	Items         []LineItemRequest `json:"items" validate:"required,min=1,dive"`
	PaymentMethod string            `json:"paymentMethod" validate:"omitempty,oneof=cash card upi wallet"`
	CustomerNotes string            `json:"customerNotes" validate:"omitempty,max=1000"`
}

type StatusUpdateRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"omitempty,max=1000"`
}

type CancelRequest struct {
	Reason       string `json:"reason" validate:"required,max=500"`
	Note         string `json:"note" validate:"omitempty,max=1000"`
	RefundStatus string `json:"refundStatus" validate:"omitempty,oneof=not_applicable pending processed failed"`
}

type ListFilter struct {
	UserID        string
	Status        Status
	PaymentStatus PaymentStatus
	From          *time.Time
	To            *time.Time
	Search        string
}

type ListQuery struct {
	Filter    ListFilter
	Limit     int64
	Offset    int64
	SortField string
	SortDesc  bool
}

// Bucket is one group of an aggregate: count and summed total per key.
type Bucket struct {
	Key         string  `bson:"_id" json:"_id"`
	Count       int64   `bson:"count" json:"count"`
	TotalAmount float64 `bson:"totalAmount" json:"totalAmount"`
}

type DayStats struct {
	TotalOrders     int64   `bson:"totalOrders" json:"totalOrders"`
	TotalAmount     float64 `bson:"totalAmount" json:"totalAmount"`
	CompletedOrders int64   `bson:"completedOrders" json:"completedOrders"`
	CancelledOrders int64   `bson:"cancelledOrders" json:"cancelledOrders"`
}

type Stats struct {
	StatusWise []Bucket `json:"statusWiseStats"`
	Today      DayStats `json:"todayStats"`
	Payment    []Bucket `json:"paymentStats"`
}

// PaymentUpdate is a gateway-originated change applied to an order's payment details.
type PaymentUpdate struct {
	Status        PaymentStatus
	Gateway       string
	ChargeID      string
	TransactionID string
	At            time.Time
	Note          string
}
