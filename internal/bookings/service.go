package bookings

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Sahil123-FNO/plubming-backend/internal/auth"
	"github.com/Sahil123-FNO/plubming-backend/internal/catalog"
	"github.com/Sahil123-FNO/plubming-backend/internal/notifications"
	"github.com/Sahil123-FNO/plubming-backend/internal/schedule"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound           = errors.New("booking not found")
	ErrServiceNotFound    = errors.New("service not found")
	ErrServiceUnavailable = errors.New("service is not available for booking")
	ErrInvalidSchedule    = errors.New("invalid date or time")
	ErrDatePast           = errors.New("date in the past")
	ErrSlotPast           = errors.New("slot already passed")
	ErrSlotTaken          = errors.New("slot not available")
	ErrSlotNotAllowed     = errors.New("slot outside business hours")
	ErrForbidden          = errors.New("not authorized to access this booking")
	ErrNotEditable        = errors.New("only pending bookings can be changed")
	ErrNotCancellable     = errors.New("booking cannot be cancelled")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrConflict           = errors.New("booking was modified concurrently")
)

const defaultDuration = 60

// ServiceCatalog resolves the bookable service a booking refers to.
type ServiceCatalog interface {
	Get(ctx context.Context, idOrSlug string) (catalog.Item, error)
}

type Mailer interface {
	SendBookingConfirmation(ctx context.Context, toEmail, toName string, booking notifications.BookingSummary) (string, error)
}

// Contacts looks up where to reach a user.
type Contacts interface {
	Contact(ctx context.Context, userID string) (email, name string, err error)
}

type Service struct {
	repo     Repository
	services ServiceCatalog
	mailer   Mailer
	contacts Contacts
	location *time.Location
	now      func() time.Time
	locks    *slotLocks
}

func NewService(repo Repository, services ServiceCatalog, mailer Mailer, contacts Contacts, location *time.Location) *Service {
	if location == nil {
		location = time.UTC
	}
	return &Service{
		repo:     repo,
		services: services,
		mailer:   mailer,
		contacts: contacts,
		location: location,
		now:      time.Now,
		locks:    newSlotLocks(),
	}
}

func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (Booking, error) {
	item, err := s.bookableService(ctx, req.ServiceID)
	if err != nil {
		return Booking{}, err
	}

	duration := req.Duration
	if duration == 0 {
		duration = item.Duration
	}
	if duration <= 0 {
		duration = defaultDuration
	}
	window, err := s.checkWhen(req.Date, req.Time, duration)
	if err != nil {
		return Booking{}, err
	}

	unlock := s.locks.lock(item.ID + "|" + req.Date)
	defer unlock()

	if err := s.ensureFree(ctx, item.ID, req.Date, window, ""); err != nil {
		return Booking{}, err
	}

	now := s.now().In(s.location)
	booking := Booking{
		ID:            primitive.NewObjectID().Hex(),
		UserID:        userID,
		ServiceID:     item.ID,
		ProviderID:    item.CreatedBy,
		ServiceName:   item.Name,
		Date:          req.Date,
		Time:          req.Time,
		Duration:      duration,
		Amount:        item.Price,
		Notes:         strings.TrimSpace(req.Notes),
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, booking); err != nil {
		return Booking{}, err
	}
	return booking, nil
}

// NotifyCreated emails the booking owner a confirmation and returns the provider message id.
func (s *Service) NotifyCreated(ctx context.Context, booking Booking) (string, error) {
	if s.mailer == nil || s.contacts == nil {
		return "", nil
	}
	email, name, err := s.contacts.Contact(ctx, booking.UserID)
	if err != nil {
		return "", err
	}
	return s.mailer.SendBookingConfirmation(ctx, email, name, notifications.BookingSummary{
		ServiceName:     booking.ServiceName,
		Date:            booking.Date,
		Time:            booking.Time,
		DurationMinutes: booking.Duration,
		Amount:          booking.Amount,
		BookingID:       booking.ID,
	})
}

// Get returns a booking visible to its owner, its provider, or an admin.
func (s *Service) Get(ctx context.Context, id string, actor auth.Identity) (Booking, error) {
	booking, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return Booking{}, err
	}
	if !actor.IsAdmin() && booking.UserID != actor.UserID && booking.ProviderID != actor.UserID {
		return Booking{}, ErrForbidden
	}
	return booking, nil
}

// GetInternal loads a booking without an ownership check.
func (s *Service) GetInternal(ctx context.Context, id string) (Booking, error) {
	return s.repo.GetByID(ctx, strings.TrimSpace(id))
}

func (s *Service) List(ctx context.Context, q ListQuery, actor auth.Identity) ([]Booking, int64, error) {
	if !actor.IsAdmin() {
		q.Filter.UserID = actor.UserID
	}
	if q.SortField == "" {
		q.SortField = "createdAt"
		q.SortDesc = true
	}

	items, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx, q.Filter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Update reschedules a pending booking. Only the owner may do so.
func (s *Service) Update(ctx context.Context, id string, actor auth.Identity, req UpdateRequest) (Booking, error) {
	booking, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return Booking{}, err
	}
	if booking.UserID != actor.UserID {
		return Booking{}, ErrForbidden
	}
	if booking.Status != StatusPending {
		return Booking{}, ErrNotEditable
	}

	date := booking.Date
	if req.Date != "" {
		date = req.Date
	}
	clock := booking.Time
	if req.Time != "" {
		clock = req.Time
	}
	duration := booking.Duration
	if req.Duration != 0 {
		duration = req.Duration
	}
	window, err := s.checkWhen(date, clock, duration)
	if err != nil {
		return Booking{}, err
	}

	unlock := s.locks.lock(booking.ServiceID + "|" + date)
	defer unlock()

	if err := s.ensureFree(ctx, booking.ServiceID, date, window, booking.ID); err != nil {
		return Booking{}, err
	}

	expected := booking.Version
	booking.Date = date
	booking.Time = clock
	booking.Duration = duration
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		booking.Notes = notes
	}
	return s.save(ctx, booking, expected)
}

// Cancel is open to the booking owner and the service provider while the booking is still live.
func (s *Service) Cancel(ctx context.Context, id string, actor auth.Identity, reason string) (Booking, error) {
	booking, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return Booking{}, err
	}
	if booking.UserID != actor.UserID && (booking.ProviderID == "" || booking.ProviderID != actor.UserID) {
		return Booking{}, ErrForbidden
	}
	if booking.Status == StatusCompleted || booking.Status == StatusCancelled {
		return Booking{}, ErrNotCancellable
	}

	now := s.now().In(s.location)
	expected := booking.Version
	booking.Status = StatusCancelled
	booking.CancellationReason = strings.TrimSpace(reason)
	booking.CancelledBy = actor.UserID
	booking.CancelledAt = &now
	return s.save(ctx, booking, expected)
}

func (s *Service) UpdateStatus(ctx context.Context, id string, target Status) (Booking, error) {
	booking, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return Booking{}, err
	}
	if !slices.Contains(adminTransitions[booking.Status], target) {
		return Booking{}, ErrInvalidTransition
	}
	expected := booking.Version
	booking.Status = target
	return s.save(ctx, booking, expected)
}

// ApplyPayment records a gateway outcome on a booking. Re-applying the same outcome is a no-op.
func (s *Service) ApplyPayment(ctx context.Context, id string, upd PaymentUpdate) (Booking, error) {
	booking, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return Booking{}, err
	}
	expected := booking.Version

	switch upd.Status {
	case PaymentPending:
		if booking.PaymentStatus == PaymentPaid || booking.PaymentStatus == PaymentRefunded {
			return booking, nil
		}
		if booking.PaymentStatus == PaymentPending && booking.ChargeID == upd.ChargeID && booking.Gateway == upd.Gateway {
			return booking, nil
		}
		if booking.PaymentStatus == PaymentFailed && booking.ChargeID == upd.ChargeID {
			return booking, nil
		}
		booking.PaymentStatus = PaymentPending
		booking.Gateway = upd.Gateway
		booking.ChargeID = upd.ChargeID
	case PaymentPaid:
		if booking.PaymentStatus == PaymentPaid || booking.PaymentStatus == PaymentRefunded {
			return booking, nil
		}
		at := upd.At
		if at.IsZero() {
			at = s.now()
		}
		at = at.In(s.location)
		booking.PaymentStatus = PaymentPaid
		booking.PaidAt = &at
		if upd.Gateway != "" {
			booking.Gateway = upd.Gateway
		}
		if upd.ChargeID != "" {
			booking.ChargeID = upd.ChargeID
		}
		booking.TransactionID = upd.TransactionID
		if booking.Status == StatusPending {
			booking.Status = StatusConfirmed
		}
	case PaymentFailed:
		if booking.PaymentStatus != PaymentPending {
			return booking, nil
		}
		if upd.ChargeID != "" && upd.ChargeID != booking.ChargeID {
			return booking, nil
		}
		booking.PaymentStatus = PaymentFailed
	case PaymentRefunded:
		if booking.PaymentStatus == PaymentRefunded {
			return booking, nil
		}
		booking.PaymentStatus = PaymentRefunded
	default:
		return booking, nil
	}
	return s.save(ctx, booking, expected)
}

// Availability lists the free start times of a service on a date.
func (s *Service) Availability(ctx context.Context, serviceID, date string) ([]string, int, error) {
	item, err := s.bookableService(ctx, serviceID)
	if err != nil {
		return nil, 0, err
	}
	past, err := schedule.IsDatePast(date, s.location, s.now())
	if err != nil {
		return nil, 0, ErrInvalidSchedule
	}
	if past {
		return nil, 0, ErrDatePast
	}

	duration := item.Duration
	if duration <= 0 {
		duration = defaultDuration
	}
	slots, err := schedule.StartTimes(date, duration, s.location)
	if err != nil {
		return nil, 0, ErrInvalidSchedule
	}
	reserved, err := s.reserved(ctx, item.ID, date, "")
	if err != nil {
		return nil, 0, err
	}
	free, err := schedule.Available(date, slots, duration, reserved, s.location, s.now())
	if err != nil {
		return nil, 0, ErrInvalidSchedule
	}
	return free, duration, nil
}

func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.repo.CountAll(ctx)
}

func (s *Service) bookableService(ctx context.Context, serviceID string) (catalog.Item, error) {
	item, err := s.services.Get(ctx, strings.TrimSpace(serviceID))
	if errors.Is(err, catalog.ErrNotFound) {
		return catalog.Item{}, ErrServiceNotFound
	}
	if err != nil {
		return catalog.Item{}, err
	}
	if !item.Bookable() {
		return catalog.Item{}, ErrServiceUnavailable
	}
	return item, nil
}

func (s *Service) checkWhen(date, clock string, duration int) (schedule.Interval, error) {
	now := s.now()
	past, err := schedule.IsDatePast(date, s.location, now)
	if err != nil {
		return schedule.Interval{}, ErrInvalidSchedule
	}
	if past {
		return schedule.Interval{}, ErrDatePast
	}
	slotPast, err := schedule.IsSlotPast(date, clock, s.location, now)
	if err != nil {
		return schedule.Interval{}, ErrInvalidSchedule
	}
	if slotPast {
		return schedule.Interval{}, ErrSlotPast
	}
	window, err := schedule.Window(clock, duration)
	if err != nil {
		return schedule.Interval{}, ErrInvalidSchedule
	}
	allowed, err := schedule.IsSlotAllowed(date, clock, duration, s.location)
	if err != nil {
		return schedule.Interval{}, ErrInvalidSchedule
	}
	if !allowed {
		return schedule.Interval{}, ErrSlotNotAllowed
	}
	return window, nil
}

func (s *Service) ensureFree(ctx context.Context, serviceID, date string, window schedule.Interval, exceptID string) error {
	reserved, err := s.reserved(ctx, serviceID, date, exceptID)
	if err != nil {
		return err
	}
	if schedule.OverlapsAny(window, reserved) {
		return ErrSlotTaken
	}
	return nil
}

func (s *Service) reserved(ctx context.Context, serviceID, date, exceptID string) ([]schedule.Interval, error) {
	active, err := s.repo.Active(ctx, serviceID, date)
	if err != nil {
		return nil, err
	}
	intervals := make([]schedule.Interval, 0, len(active))
	for _, b := range active {
		if b.ID == exceptID {
			continue
		}
		iv, err := schedule.Window(b.Time, b.Duration)
		if err != nil {
			continue
		}
		intervals = append(intervals, iv)
	}
	return intervals, nil
}

func (s *Service) save(ctx context.Context, booking Booking, expected int64) (Booking, error) {
	booking.Version = expected + 1
	booking.UpdatedAt = s.now().In(s.location)
	if err := s.repo.Replace(ctx, booking, expected); err != nil {
		return Booking{}, err
	}
	return booking, nil
}

// slotLocks serializes overlap checks and inserts per service and date within this process.
type slotLocks struct {
	mu    sync.Mutex
	locks map[string]*slotLock
}

type slotLock struct {
	mu   sync.Mutex
	refs int
}

func newSlotLocks() *slotLocks {
	return &slotLocks{locks: make(map[string]*slotLock)}
}

func (l *slotLocks) lock(key string) func() {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &slotLock{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
