package bookings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Sahil123-FNO/plubming-backend/internal/auth"
	"github.com/Sahil123-FNO/plubming-backend/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	serviceID  = "65f000000000000000000001"
	closedID   = "65f000000000000000000002"
	otherSvcID = "65f000000000000000000003"
	ownerID    = "user-1"
	providerID = "provider-1"
	strangerID = "user-2"
	today      = "2026-03-02"
)

var (
	owner    = auth.Identity{UserID: ownerID, Role: auth.RoleUser}
	provider = auth.Identity{UserID: providerID, Role: auth.RoleUser}
	stranger = auth.Identity{UserID: strangerID, Role: auth.RoleUser}
	admin    = auth.Identity{UserID: "admin-1", Role: auth.RoleAdmin}
)

func newTestService(t *testing.T) (*Service, *memRepo, *recordingMailer) {
	t.Helper()
	repo := newMemRepo()
	services := stubCatalog{
		serviceID:  {ID: serviceID, Kind: catalog.KindService, Name: "Leak repair", Price: 499, Duration: 60, IsActive: true, Availability: true, CreatedBy: providerID},
		closedID:   {ID: closedID, Kind: catalog.KindService, Name: "Boiler service", Price: 900, Duration: 90, IsActive: true, Availability: false},
		otherSvcID: {ID: otherSvcID, Kind: catalog.KindService, Name: "Drain cleaning", Price: 300, Duration: 30, IsActive: true, Availability: true},
	}
	mailer := &recordingMailer{}
	svc := NewService(repo, services, mailer, stubContacts{ownerID: "owner@example.com"}, time.UTC)
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) }
	return svc, repo, mailer
}

func book(t *testing.T, svc *Service, userID, clock string) Booking {
	t.Helper()
	b, err := svc.Create(context.Background(), userID, CreateRequest{ServiceID: serviceID, Date: today, Time: clock})
	require.NoError(t, err)
	return b
}

func TestCreateCopiesServiceTerms(t *testing.T) {
	svc, _, _ := newTestService(t)

	b := book(t, svc, ownerID, "10:00")
	assert.Equal(t, 499.0, b.Amount)
	assert.Equal(t, 60, b.Duration)
	assert.Equal(t, providerID, b.ProviderID)
	assert.Equal(t, "Leak repair", b.ServiceName)
	assert.Equal(t, StatusPending, b.Status)
	assert.Equal(t, PaymentPending, b.PaymentStatus)
}

func TestCreateRejectsOverlap(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	book(t, svc, ownerID, "10:00")

	_, err := svc.Create(ctx, strangerID, CreateRequest{ServiceID: serviceID, Date: today, Time: "10:30"})
	assert.ErrorIs(t, err, ErrSlotTaken)

	_, err = svc.Create(ctx, strangerID, CreateRequest{ServiceID: serviceID, Date: today, Time: "09:30", Duration: 30})
	assert.NoError(t, err, "back-to-back bookings are allowed")

	_, err = svc.Create(ctx, strangerID, CreateRequest{ServiceID: otherSvcID, Date: today, Time: "10:00"})
	assert.NoError(t, err, "other services are independent")
}

func TestCreateRejectsPastAndUnknown(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, ownerID, CreateRequest{ServiceID: serviceID, Date: "2026-03-01", Time: "10:00"})
	assert.ErrorIs(t, err, ErrDatePast)

	_, err = svc.Create(ctx, ownerID, CreateRequest{ServiceID: serviceID, Date: today, Time: "07:00"})
	assert.ErrorIs(t, err, ErrSlotPast)

	_, err = svc.Create(ctx, ownerID, CreateRequest{ServiceID: "65f0000000000000000000ff", Date: today, Time: "10:00"})
	assert.ErrorIs(t, err, ErrServiceNotFound)

	_, err = svc.Create(ctx, ownerID, CreateRequest{ServiceID: closedID, Date: today, Time: "10:00"})
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestCreateRejectsSlotsOutsideBusinessHours(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	// 2026-03-08 is a Sunday.
	slots, _, err := svc.Availability(ctx, serviceID, "2026-03-08")
	require.NoError(t, err)
	assert.Empty(t, slots)
	_, err = svc.Create(ctx, ownerID, CreateRequest{ServiceID: serviceID, Date: "2026-03-08", Time: "10:00"})
	assert.ErrorIs(t, err, ErrSlotNotAllowed)

	_, err = svc.Create(ctx, ownerID, CreateRequest{ServiceID: serviceID, Date: today, Time: "22:30"})
	assert.ErrorIs(t, err, ErrSlotNotAllowed)

	// runs into the lunch break
	_, err = svc.Create(ctx, ownerID, CreateRequest{ServiceID: serviceID, Date: today, Time: "12:30"})
	assert.ErrorIs(t, err, ErrSlotNotAllowed)

	mine := book(t, svc, ownerID, "10:00")
	_, err = svc.Update(ctx, mine.ID, owner, UpdateRequest{Time: "19:00"})
	assert.ErrorIs(t, err, ErrSlotNotAllowed)

	assert.Len(t, repo.data, 1)
}

func TestConcurrentCreateSameSlot(t *testing.T) {
	svc, repo, _ := newTestService(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, taken := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), ownerID, CreateRequest{ServiceID: serviceID, Date: today, Time: "12:00"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrSlotTaken):
				taken++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 7, taken)
	n, _ := repo.CountAll(context.Background())
	assert.Equal(t, int64(1), n)
}

func TestCancelRules(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	b := book(t, svc, ownerID, "10:00")

	_, err := svc.Cancel(ctx, b.ID, stranger, "nope")
	assert.ErrorIs(t, err, ErrForbidden)

	cancelled, err := svc.Cancel(ctx, b.ID, provider, "plumber unavailable")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, providerID, cancelled.CancelledBy)
	assert.Equal(t, "plumber unavailable", cancelled.CancellationReason)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = svc.Cancel(ctx, b.ID, owner, "again")
	assert.ErrorIs(t, err, ErrNotCancellable)

	// A cancelled booking frees its slot.
	book(t, svc, strangerID, "10:00")
}

func TestCancelCompletedRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	b := book(t, svc, ownerID, "10:00")

	_, err := svc.UpdateStatus(ctx, b.ID, StatusCompleted)
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, b.ID, owner, "too late")
	assert.ErrorIs(t, err, ErrNotCancellable)

	_, err = svc.UpdateStatus(ctx, b.ID, StatusConfirmed)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateReschedules(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	mine := book(t, svc, ownerID, "10:00")
	book(t, svc, strangerID, "12:00")

	_, err := svc.Update(ctx, mine.ID, stranger, UpdateRequest{Time: "14:00"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Update(ctx, mine.ID, owner, UpdateRequest{Time: "11:30"})
	assert.ErrorIs(t, err, ErrSlotTaken)

	moved, err := svc.Update(ctx, mine.ID, owner, UpdateRequest{Time: "10:30"})
	require.NoError(t, err, "a booking does not collide with itself")
	assert.Equal(t, "10:30", moved.Time)
	assert.Equal(t, int64(1), moved.Version)

	_, err = svc.UpdateStatus(ctx, mine.ID, StatusConfirmed)
	require.NoError(t, err)
	_, err = svc.Update(ctx, mine.ID, owner, UpdateRequest{Time: "15:00"})
	assert.ErrorIs(t, err, ErrNotEditable)
}

func TestGetAndListScoping(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	mine := book(t, svc, ownerID, "10:00")
	book(t, svc, strangerID, "12:00")

	_, err := svc.Get(ctx, mine.ID, stranger)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Get(ctx, mine.ID, provider)
	assert.NoError(t, err)

	items, total, err := svc.List(ctx, ListQuery{Limit: 10}, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, mine.ID, items[0].ID)

	_, total, err = svc.List(ctx, ListQuery{Limit: 10}, admin)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	_, total, err = svc.List(ctx, ListQuery{Limit: 10, Filter: ListFilter{Status: StatusCancelled}}, admin)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestApplyPaymentIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	b := book(t, svc, ownerID, "10:00")

	pending, err := svc.ApplyPayment(ctx, b.ID, PaymentUpdate{Status: PaymentPending, Gateway: "razorpay", ChargeID: "order_1"})
	require.NoError(t, err)
	assert.Equal(t, "order_1", pending.ChargeID)
	assert.Equal(t, StatusPending, pending.Status)

	paidAt := time.Date(2026, 3, 2, 8, 5, 0, 0, time.UTC)
	paid, err := svc.ApplyPayment(ctx, b.ID, PaymentUpdate{Status: PaymentPaid, TransactionID: "pay_1", At: paidAt})
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, paid.PaymentStatus)
	assert.Equal(t, StatusConfirmed, paid.Status)
	assert.Equal(t, "order_1", paid.ChargeID)

	again, err := svc.ApplyPayment(ctx, b.ID, PaymentUpdate{Status: PaymentPaid, TransactionID: "pay_1", At: paidAt})
	require.NoError(t, err)
	assert.Equal(t, paid.Version, again.Version)

	failed, err := svc.ApplyPayment(ctx, b.ID, PaymentUpdate{Status: PaymentFailed})
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, failed.PaymentStatus)
}

func TestApplyPaymentFailureForStaleChargeIgnored(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	b := book(t, svc, ownerID, "10:00")

	_, err := svc.ApplyPayment(ctx, b.ID, PaymentUpdate{Status: PaymentPending, Gateway: "stripe", ChargeID: "pi_a"})
	require.NoError(t, err)
	_, err = svc.ApplyPayment(ctx, b.ID, PaymentUpdate{Status: PaymentPending, Gateway: "stripe", ChargeID: "pi_b"})
	require.NoError(t, err)

	stale, err := svc.ApplyPayment(ctx, b.ID, PaymentUpdate{Status: PaymentFailed, Gateway: "stripe", ChargeID: "pi_a"})
	require.NoError(t, err)
	assert.Equal(t, PaymentPending, stale.PaymentStatus)
	assert.Equal(t, "pi_b", stale.ChargeID)

	failed, err := svc.ApplyPayment(ctx, b.ID, PaymentUpdate{Status: PaymentFailed, Gateway: "stripe", ChargeID: "pi_b"})
	require.NoError(t, err)
	assert.Equal(t, PaymentFailed, failed.PaymentStatus)

	replayed, err := svc.ApplyPayment(ctx, b.ID, PaymentUpdate{Status: PaymentPending, Gateway: "stripe", ChargeID: "pi_b"})
	require.NoError(t, err)
	assert.Equal(t, PaymentFailed, replayed.PaymentStatus)
}

func TestAvailabilitySkipsBookedWindows(t *testing.T) {
	svc, _, _ := newTestService(t)
	book(t, svc, ownerID, "10:00")

	slots, duration, err := svc.Availability(context.Background(), serviceID, today)
	require.NoError(t, err)
	assert.Equal(t, 60, duration)
	assert.Contains(t, slots, "09:00")
	assert.Contains(t, slots, "11:00")
	assert.NotContains(t, slots, "09:30")
	assert.NotContains(t, slots, "10:00")
	assert.NotContains(t, slots, "10:30")

	_, _, err = svc.Availability(context.Background(), serviceID, "2026-02-01")
	assert.ErrorIs(t, err, ErrDatePast)
}

func TestNotifyCreatedEmailsOwner(t *testing.T) {
	svc, _, mailer := newTestService(t)
	b := book(t, svc, ownerID, "10:00")

	id, err := svc.NotifyCreated(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "owner@example.com", mailer.sent[0].to)
	assert.Equal(t, b.ID, mailer.sent[0].summary.BookingID)
	assert.Equal(t, 499.0, mailer.sent[0].summary.Amount)
}
