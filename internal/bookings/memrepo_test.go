package bookings

import (
	"context"
	"sort"
	"sync"

	"github.com/Sahil123-FNO/plubming-backend/internal/catalog"
	"github.com/Sahil123-FNO/plubming-backend/internal/notifications"
)

type memRepo struct {
	mu   sync.Mutex
	data map[string]Booking
}

func newMemRepo() *memRepo {
	return &memRepo{data: make(map[string]Booking)}
}

func (m *memRepo) Create(ctx context.Context, booking Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[booking.ID] = booking
	return nil
}

func (m *memRepo) GetByID(ctx context.Context, id string) (Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[id]
	if !ok {
		return Booking{}, ErrNotFound
	}
	return b, nil
}

func (m *memRepo) Replace(ctx context.Context, booking Booking, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.data[booking.ID]
	if !ok || current.Version != expectedVersion {
		return ErrConflict
	}
	m.data[booking.ID] = booking
	return nil
}

func (m *memRepo) List(ctx context.Context, q ListQuery) ([]Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]Booking, 0)
	for _, b := range m.data {
		if matches(b, q.Filter) {
			items = append(items, b)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if q.SortDesc {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	start := int(q.Offset)
	if start > len(items) {
		start = len(items)
	}
	end := len(items)
	if q.Limit > 0 && start+int(q.Limit) < end {
		end = start + int(q.Limit)
	}
	return items[start:end], nil
}

func (m *memRepo) Count(ctx context.Context, filter ListFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, b := range m.data {
		if matches(b, filter) {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) CountAll(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.data)), nil
}

func (m *memRepo) Active(ctx context.Context, serviceID, date string) ([]Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Booking, 0)
	for _, b := range m.data {
		if b.ServiceID == serviceID && b.Date == date && b.Status != StatusCancelled {
			out = append(out, b)
		}
	}
	return out, nil
}

func matches(b Booking, f ListFilter) bool {
	if f.UserID != "" && b.UserID != f.UserID {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.PaymentStatus != "" && b.PaymentStatus != f.PaymentStatus {
		return false
	}
	if f.ServiceID != "" && b.ServiceID != f.ServiceID {
		return false
	}
	if f.Date != "" && b.Date != f.Date {
		return false
	}
	return true
}

type stubCatalog map[string]catalog.Item

func (s stubCatalog) Get(ctx context.Context, id string) (catalog.Item, error) {
	item, ok := s[id]
	if !ok {
		return catalog.Item{}, catalog.ErrNotFound
	}
	return item, nil
}

type sentMail struct {
	to      string
	summary notifications.BookingSummary
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (r *recordingMailer) SendBookingConfirmation(ctx context.Context, toEmail, toName string, booking notifications.BookingSummary) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMail{to: toEmail, summary: booking})
	return "msg-1", nil
}

type stubContacts map[string]string

func (s stubContacts) Contact(ctx context.Context, userID string) (string, string, error) {
	return s[userID], "Customer", nil
}
