package orders

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// memRepo is an in-memory Repository. Transactions are serialized and roll
// back to a snapshot when fn fails.
type memRepo struct {
	txMu sync.Mutex
	mu   sync.Mutex
	data map[string]Order

	// beforeReplace runs inside Replace before the version check.
	beforeReplace func(id string)
}

func newMemRepo() *memRepo {
	return &memRepo{data: make(map[string]Order)}
}

func (m *memRepo) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := make(map[string]Order, len(m.data))
	for k, v := range m.data {
		snapshot[k] = cloneOrder(v)
	}
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.data = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memRepo) Create(ctx context.Context, order Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.data {
		if existing.OrderNumber == order.OrderNumber {
			return ErrDuplicateNumber
		}
	}
	m.data[order.ID] = cloneOrder(order)
	return nil
}

func (m *memRepo) GetByID(ctx context.Context, id string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.data[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return cloneOrder(order), nil
}

func (m *memRepo) Replace(ctx context.Context, order Order, expectedVersion int64) error {
	if m.beforeReplace != nil {
		m.beforeReplace(order.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.data[order.ID]
	if !ok || current.Version != expectedVersion {
		return ErrConflict
	}
	m.data[order.ID] = cloneOrder(order)
	return nil
}

func (m *memRepo) List(ctx context.Context, q ListQuery) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]Order, 0)
	for _, o := range m.data {
		if matches(o, q.Filter) {
			items = append(items, cloneOrder(o))
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
	for _, o := range m.data {
		if matches(o, filter) {
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

func (m *memRepo) GroupByStatus(ctx context.Context, from, to time.Time) ([]Bucket, error) {
	return m.group(from, to, func(o Order) string { return string(o.Status) }), nil
}

func (m *memRepo) GroupByPaymentMethod(ctx context.Context, from, to time.Time) ([]Bucket, error) {
	return m.group(from, to, func(o Order) string { return o.PaymentDetails.Method }), nil
}

func (m *memRepo) group(from, to time.Time, key func(Order) string) []Bucket {
	m.mu.Lock()
	defer m.mu.Unlock()
	byKey := map[string]*Bucket{}
	for _, o := range m.data {
		if o.CreatedAt.Before(from) || o.CreatedAt.After(to) {
			continue
		}
		k := key(o)
		b, ok := byKey[k]
		if !ok {
			b = &Bucket{Key: k}
			byKey[k] = b
		}
		b.Count++
		b.TotalAmount += o.TotalAmount
	}
	out := make([]Bucket, 0, len(byKey))
	for _, b := range byKey {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (m *memRepo) Since(ctx context.Context, from time.Time) (DayStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats DayStats
	for _, o := range m.data {
		if o.CreatedAt.Before(from) {
			continue
		}
		stats.TotalOrders++
		stats.TotalAmount += o.TotalAmount
		switch o.Status {
		case StatusCompleted:
			stats.CompletedOrders++
		case StatusCancelled:
			stats.CancelledOrders++
		}
	}
	return stats, nil
}

func matches(o Order, f ListFilter) bool {
	if f.UserID != "" && o.UserID != f.UserID {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.PaymentStatus != "" && o.PaymentDetails.Status != f.PaymentStatus {
		return false
	}
	if f.From != nil && o.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && o.CreatedAt.After(*f.To) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		hit := strings.Contains(strings.ToLower(o.OrderNumber), needle)
		for _, item := range o.Items {
			hit = hit || strings.Contains(strings.ToLower(item.Name), needle)
		}
		if !hit {
			return false
		}
	}
	return true
}

func cloneOrder(o Order) Order {
	o.Items = append([]LineItem(nil), o.Items...)
	o.StatusHistory = append([]StatusEntry(nil), o.StatusHistory...)
	if o.Cancellation != nil {
		c := *o.Cancellation
		o.Cancellation = &c
	}
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		o.CompletedAt = &t
	}
	if o.PaymentDetails.PaidAt != nil {
		t := *o.PaymentDetails.PaidAt
		o.PaymentDetails.PaidAt = &t
	}
	return o
}

type stubItems map[string]bool

func (s stubItems) ItemExists(ctx context.Context, itemType ItemType, id string) (bool, error) {
	return s[string(itemType)+":"+id], nil
}
