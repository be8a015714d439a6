package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

type memRepo struct {
	mu   sync.Mutex
	data map[string]Payment
}

func newMemRepo() *memRepo {
	return &memRepo{data: make(map[string]Payment)}
}

func (m *memRepo) Create(ctx context.Context, payment Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.data {
		if p.ChargeID == payment.ChargeID {
			return ErrDuplicateCharge
		}
	}
	m.data[payment.ID] = payment
	return nil
}

func (m *memRepo) GetByID(ctx context.Context, id string) (Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data[id]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return p, nil
}

func (m *memRepo) GetByChargeID(ctx context.Context, chargeID string) (Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.data {
		if p.ChargeID == chargeID {
			return p, nil
		}
	}
	return Payment{}, ErrNotFound
}

// Update applies set through a bson round trip so field names match the stored document.
func (m *memRepo) Update(ctx context.Context, id string, set bson.M) (Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data[id]
	if !ok {
		return Payment{}, ErrNotFound
	}
	raw, err := bson.Marshal(p)
	if err != nil {
		return Payment{}, err
	}
	doc := bson.M{}
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return Payment{}, err
	}
	for k, v := range set {
		doc[k] = v
	}
	raw, err = bson.Marshal(doc)
	if err != nil {
		return Payment{}, err
	}
	var updated Payment
	if err := bson.Unmarshal(raw, &updated); err != nil {
		return Payment{}, err
	}
	m.data[id] = updated
	return updated, nil
}

func (m *memRepo) ListByUser(ctx context.Context, userID string, limit, offset int64) ([]Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]Payment, 0)
	for _, p := range m.data {
		if p.UserID == userID {
			items = append(items, p)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	start := int(offset)
	if start > len(items) {
		start = len(items)
	}
	end := len(items)
	if limit > 0 && start+int(limit) < end {
		end = start + int(limit)
	}
	return items[start:end], nil
}

func (m *memRepo) CountByUser(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, p := range m.data {
		if p.UserID == userID {
			n++
		}
	}
	return n, nil
}

// fakeLedger records every applied update per source id.
type fakeLedger struct {
	mu      sync.Mutex
	kind    SourceKind
	targets map[string]Target
	applied map[string][]Update
}

func newFakeLedger(kind SourceKind, targets ...Target) *fakeLedger {
	l := &fakeLedger{kind: kind, targets: map[string]Target{}, applied: map[string][]Update{}}
	for _, t := range targets {
		t.Kind = kind
		l.targets[t.ID] = t
	}
	return l
}

func (l *fakeLedger) Target(ctx context.Context, id string) (Target, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.targets[id]
	if !ok {
		return Target{}, ErrSourceNotFound
	}
	return t, nil
}

func (l *fakeLedger) Apply(ctx context.Context, id string, upd Update) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.targets[id]
	if !ok {
		return ErrSourceNotFound
	}
	l.applied[id] = append(l.applied[id], upd)
	if upd.Status == StatusSucceeded {
		t.Paid = true
		l.targets[id] = t
	}
	return nil
}

func (l *fakeLedger) updates(id string) []Update {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Update(nil), l.applied[id]...)
}

func (l *fakeLedger) paid(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.targets[id].Paid
}

// fakeGateway signs with a shared secret the way a hosted checkout would.
type fakeGateway struct {
	mu      sync.Mutex
	secret  string
	next    int
	status  map[string]ChargeStatus
	opened  []ChargeRequest
	openErr error
}

func newFakeGateway(secret string) *fakeGateway {
	return &fakeGateway{secret: secret, status: map[string]ChargeStatus{}}
}

func (g *fakeGateway) Name() string { return "fakepay" }

func (g *fakeGateway) OpenCharge(ctx context.Context, req ChargeRequest) (Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.openErr != nil {
		return Charge{}, g.openErr
	}
	g.next++
	id := fmt.Sprintf("ch_%d", g.next)
	g.status[id] = ChargePending
	g.opened = append(g.opened, req)
	return Charge{ID: id, Status: ChargePending, ClientSecret: id + "_secret"}, nil
}

func (g *fakeGateway) RetrieveCharge(ctx context.Context, chargeID string) (Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	status, ok := g.status[chargeID]
	if !ok {
		return Charge{}, fmt.Errorf("%w: no such charge", ErrGateway)
	}
	return Charge{ID: chargeID, Status: status, PaymentID: "pay_" + chargeID}, nil
}

func (g *fakeGateway) VerifyPayment(ctx context.Context, chargeID, paymentID, signature string) error {
	if !VerifySignature(g.secret, []byte(chargeID+"|"+paymentID), signature) {
		return ErrInvalidSignature
	}
	return nil
}

type fakeHook struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Kind      EventKind `json:"kind"`
	ChargeID  string    `json:"chargeId"`
	PaymentID string    `json:"paymentId"`
}

func (g *fakeGateway) ParseWebhook(body []byte, signature string) (WebhookEvent, error) {
	if !VerifySignature(g.secret, body, signature) {
		return WebhookEvent{}, ErrInvalidSignature
	}
	var hook fakeHook
	if err := json.Unmarshal(body, &hook); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return WebhookEvent(hook), nil
}

func (g *fakeGateway) setStatus(chargeID string, status ChargeStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status[chargeID] = status
}
