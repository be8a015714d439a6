package payments

import (
	"context"
	"errors"
	"time"

	"github.com/Sahil123-FNO/plubming-backend/internal/bookings"
	"github.com/Sahil123-FNO/plubming-backend/internal/orders"
)

var ErrSourceNotFound = errors.New("booking or order not found")

type SourceKind string

const (
	SourceBooking SourceKind = "booking"
	SourceOrder   SourceKind = "order"
)

// Target is the payable view of a booking or order.
type Target struct {
	Kind        SourceKind
	ID          string
	UserID      string
	Amount      float64
	Description string
	Reference   string
	Paid        bool
}

// Update is a settled gateway outcome to mirror onto the source record.
type Update struct {
	Status        Status
	Gateway       string
	ChargeID      string
	TransactionID string
	At            time.Time
}

// Ledger reads and settles one kind of payable record.
type Ledger interface {
	Target(ctx context.Context, id string) (Target, error)
	Apply(ctx context.Context, id string, upd Update) error
}

type OrderLedger struct {
	Orders *orders.Service
}

func (l OrderLedger) Target(ctx context.Context, id string) (Target, error) {
	order, err := l.Orders.GetInternal(ctx, id)
	if errors.Is(err, orders.ErrNotFound) {
		return Target{}, ErrSourceNotFound
	}
	if err != nil {
		return Target{}, err
	}
	return Target{
		Kind:        SourceOrder,
		ID:          order.ID,
		UserID:      order.UserID,
		Amount:      order.TotalAmount,
		Description: "Order " + order.OrderNumber,
		Reference:   order.OrderNumber,
		Paid:        order.PaymentDetails.Status == orders.PaymentPaid,
	}, nil
}

func (l OrderLedger) Apply(ctx context.Context, id string, upd Update) error {
	status, ok := map[Status]orders.PaymentStatus{
		StatusPending:   orders.PaymentPending,
		StatusSucceeded: orders.PaymentPaid,
		StatusFailed:    orders.PaymentFailed,
		StatusRefunded:  orders.PaymentRefunded,
	}[upd.Status]
	if !ok {
		return nil
	}
	_, err := l.Orders.ApplyPayment(ctx, id, orders.PaymentUpdate{
		Status:        status,
		Gateway:       upd.Gateway,
		ChargeID:      upd.ChargeID,
		TransactionID: upd.TransactionID,
		At:            upd.At,
		Note:          "payment " + string(upd.Status) + " via " + upd.Gateway,
	})
	if errors.Is(err, orders.ErrNotFound) {
		return ErrSourceNotFound
	}
	return err
}

type BookingLedger struct {
	Bookings *bookings.Service
}

func (l BookingLedger) Target(ctx context.Context, id string) (Target, error) {
	booking, err := l.Bookings.GetInternal(ctx, id)
	if errors.Is(err, bookings.ErrNotFound) {
		return Target{}, ErrSourceNotFound
	}
	if err != nil {
		return Target{}, err
	}
	return Target{
		Kind:        SourceBooking,
		ID:          booking.ID,
		UserID:      booking.UserID,
		Amount:      booking.Amount,
		Description: booking.ServiceName + " on " + booking.Date + " " + booking.Time,
		Reference:   booking.ID,
		Paid:        booking.PaymentStatus == bookings.PaymentPaid,
	}, nil
}

func (l BookingLedger) Apply(ctx context.Context, id string, upd Update) error {
	status, ok := map[Status]bookings.PaymentStatus{
		StatusPending:   bookings.PaymentPending,
		StatusSucceeded: bookings.PaymentPaid,
		StatusFailed:    bookings.PaymentFailed,
		StatusRefunded:  bookings.PaymentRefunded,
	}[upd.Status]
	if !ok {
		return nil
	}
	_, err := l.Bookings.ApplyPayment(ctx, id, bookings.PaymentUpdate{
		Status:        status,
		Gateway:       upd.Gateway,
		ChargeID:      upd.ChargeID,
		TransactionID: upd.TransactionID,
		At:            upd.At,
	})
	if errors.Is(err, bookings.ErrNotFound) {
		return ErrSourceNotFound
	}
	return err
}
