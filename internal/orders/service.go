package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sahil123-FNO/plubming-backend/internal/auth"
	"github.com/Sahil123-FNO/plubming-backend/internal/cache"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrNoItems           = errors.New("order must contain at least one item")
	ErrItemNotFound      = errors.New("order item not found")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrOrderCompleted    = errors.New("completed orders cannot change status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotCancellable    = errors.New("order cannot be cancelled")
	ErrConflict          = errors.New("order was modified concurrently")
	ErrForbidden         = errors.New("order belongs to another user")
	ErrDuplicateNumber   = errors.New("duplicate order number")
)

const (
	// ActorSystem is recorded as the actor of gateway-driven history entries.
	ActorSystem = "system"

	orderNumberAttempts = 3
)

// ItemChecker confirms that a line item still refers to a catalog entry.
type ItemChecker interface {
	ItemExists(ctx context.Context, itemType ItemType, id string) (bool, error)
}

type Service struct {
	repo     Repository
	items    ItemChecker
	stats    cache.Cache
	location *time.Location
	now      func() time.Time
}

// NewService wires the order service. stats, when set, is the cache holding
// the admin stats payload and is cleared whenever a payment changes an order.
func NewService(repo Repository, items ItemChecker, stats cache.Cache, location *time.Location) *Service {
	if location == nil {
		location = time.UTC
	}
	return &Service{
		repo:     repo,
		items:    items,
		stats:    stats,
		location: location,
		now:      time.Now,
	}
}

func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (Order, error) {
	if len(req.Items) == 0 {
		return Order{}, ErrNoItems
	}

	lines := make([]LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		if s.items != nil {
			ok, err := s.items.ItemExists(ctx, item.Type, item.ItemID)
			if err != nil {
				return Order{}, err
			}
			if !ok {
				return Order{}, fmt.Errorf("%w: %s %s", ErrItemNotFound, item.Type, item.ItemID)
			}
		}
		price := 0.0
		if item.Price != nil {
			price = *item.Price
		}
		lines = append(lines, LineItem{
			Type:     item.Type,
			ItemID:   item.ItemID,
			Name:     strings.TrimSpace(item.Name),
			Quantity: item.Quantity,
			Price:    price,
		})
	}
	lines, totals := ComputeTotals(lines)

	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if method == "" {
		method = MethodCash
	}

	now := s.now().In(s.location)
	order := Order{
		UserID:        userID,
		Items:         lines,
		Status:        StatusPending,
		Subtotal:      totals.Subtotal.InexactFloat64(),
		Tax:           totals.Tax.InexactFloat64(),
		Discount:      totals.Discount.InexactFloat64(),
		TotalAmount:   totals.Total.InexactFloat64(),
		CustomerNotes: strings.TrimSpace(req.CustomerNotes),
		PaymentDetails: PaymentDetails{
			Method: method,
			Status: PaymentPending,
		},
		StatusHistory: []StatusEntry{{
			Status:    StatusPending,
			Note:      "order placed",
			UpdatedBy: userID,
			Timestamp: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	var err error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		order.ID = primitive.NewObjectID().Hex()
		order.OrderNumber = NewOrderNumber(now)
		err = s.repo.Create(ctx, order)
		if !errors.Is(err, ErrDuplicateNumber) {
			break
		}
	}
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// NewOrderNumber returns a human-readable identifier: ORD, the creation time in
// milliseconds and four random upper-case characters.
func NewOrderNumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
	return fmt.Sprintf("ORD%d%s", at.UnixMilli(), suffix)
}

func (s *Service) Get(ctx context.Context, id string, actor auth.Identity) (Order, error) {
	order, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return Order{}, err
	}
	if !canAccess(order, actor) {
		return Order{}, ErrForbidden
	}
	return order, nil
}

// GetInternal loads an order without an ownership check, for other services.
func (s *Service) GetInternal(ctx context.Context, id string) (Order, error) {
	return s.repo.GetByID(ctx, strings.TrimSpace(id))
}

func (s *Service) List(ctx context.Context, q ListQuery, actor auth.Identity) ([]Order, int64, error) {
	if !actor.IsAdmin() {
		q.Filter.UserID = actor.UserID
	}
	if q.Filter.Status != "" && !q.Filter.Status.Valid() {
		return nil, 0, ErrInvalidStatus
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

// UpdateStatus moves an order to target and records the change in its history.
// The read, the transition check and the versioned write share one transaction.
func (s *Service) UpdateStatus(ctx context.Context, id, target, note, actorID string) (Order, error) {
	id = strings.TrimSpace(id)
	next := Status(strings.ToLower(strings.TrimSpace(target)))
	if !next.Requestable() {
		return Order{}, ErrInvalidStatus
	}

	err := s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		order, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if order.Status == StatusCompleted {
			return ErrOrderCompleted
		}
		if !CanTransition(order.Status, next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, next)
		}

		now := s.now().In(s.location)
		expected := order.Version
		order.Status = next
		order.StatusHistory = append(order.StatusHistory, StatusEntry{
			Status:    next,
			Note:      strings.TrimSpace(note),
			UpdatedBy: actorID,
			Timestamp: now,
		})
		if next == StatusCompleted {
			order.CompletedAt = &now
		}
		order.Version++
		order.UpdatedAt = now
		return s.repo.Replace(ctx, order, expected)
	})
	if err != nil {
		return Order{}, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Cancel(ctx context.Context, id string, req CancelRequest, actor auth.Identity) (Order, error) {
	id = strings.TrimSpace(id)
	refund := strings.TrimSpace(req.RefundStatus)
	if refund == "" {
		refund = RefundNotApplicable
	}

	err := s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		order, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !canAccess(order, actor) {
			return ErrForbidden
		}
		if !Cancellable(order.Status) {
			return fmt.Errorf("%w: status is %s", ErrNotCancellable, order.Status)
		}

		now := s.now().In(s.location)
		expected := order.Version
		reason := strings.TrimSpace(req.Reason)
		order.Status = StatusCancelled
		order.Cancellation = &Cancellation{
			Reason:       reason,
			Note:         strings.TrimSpace(req.Note),
			CancelledAt:  now,
			CancelledBy:  actor.UserID,
			RefundStatus: refund,
		}
		order.StatusHistory = append(order.StatusHistory, StatusEntry{
			Status:    StatusCancelled,
			Note:      reason,
			UpdatedBy: actor.UserID,
			Timestamp: now,
		})
		order.Version++
		order.UpdatedAt = now
		return s.repo.Replace(ctx, order, expected)
	})
	if err != nil {
		return Order{}, err
	}
	return s.repo.GetByID(ctx, id)
}

// ApplyPayment mirrors a gateway outcome onto the order. Applying the same
// outcome twice leaves the order untouched.
func (s *Service) ApplyPayment(ctx context.Context, id string, upd PaymentUpdate) (Order, error) {
	id = strings.TrimSpace(id)
	changed := false
	err := s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		changed = false
		order, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		at := upd.At
		if at.IsZero() {
			at = s.now()
		}
		at = at.In(s.location)

		if !s.applyPayment(&order, upd, at) {
			return nil
		}
		expected := order.Version
		order.Version++
		order.UpdatedAt = at
		changed = true
		return s.repo.Replace(ctx, order, expected)
	})
	if err != nil {
		return Order{}, err
	}
	if changed && s.stats != nil {
		_ = s.stats.Delete(ctx, statsCacheKey)
	}
	return s.repo.GetByID(ctx, id)
}

// applyPayment mutates order in place and reports whether anything changed.
func (s *Service) applyPayment(order *Order, upd PaymentUpdate, at time.Time) bool {
	pd := &order.PaymentDetails
	if upd.Gateway != "" && pd.Gateway == "" {
		pd.Gateway = upd.Gateway
	}

	switch upd.Status {
	case PaymentPending:
		if pd.Status == PaymentPaid || pd.Status == PaymentRefunded {
			return false
		}
		if (pd.Status == PaymentPending || pd.Status == PaymentFailed) && pd.ChargeID == upd.ChargeID {
			return false
		}
		pd.Status = PaymentPending
		pd.Gateway = upd.Gateway
		pd.ChargeID = upd.ChargeID
		return true

	case PaymentPaid:
		if pd.Status == PaymentPaid || pd.Status == PaymentRefunded {
			return false
		}
		pd.Status = PaymentPaid
		if upd.ChargeID != "" {
			pd.ChargeID = upd.ChargeID
		}
		pd.TransactionID = upd.TransactionID
		pd.PaidAt = &at
		if order.Status == StatusPending {
			s.appendSystemEntry(order, StatusConfirmed, upd.Note, at)
		}
		return true

	case PaymentFailed:
		if pd.Status != PaymentPending {
			return false
		}
		// a failure on a superseded charge leaves the live one alone
		if upd.ChargeID != "" && upd.ChargeID != pd.ChargeID {
			return false
		}
		pd.Status = PaymentFailed
		if upd.TransactionID != "" {
			pd.TransactionID = upd.TransactionID
		}
		return true

	case PaymentRefunded:
		if pd.Status == PaymentRefunded {
			return false
		}
		pd.Status = PaymentRefunded
		if order.Cancellation != nil {
			order.Cancellation.RefundStatus = RefundProcessed
		}
		if CanTransition(order.Status, StatusRefunded) {
			s.appendSystemEntry(order, StatusRefunded, upd.Note, at)
		}
		return true
	}
	return false
}

func (s *Service) appendSystemEntry(order *Order, status Status, note string, at time.Time) {
	order.Status = status
	order.StatusHistory = append(order.StatusHistory, StatusEntry{
		Status:    status,
		Note:      note,
		UpdatedBy: ActorSystem,
		Timestamp: at,
	})
}

// Stats aggregates orders created between from and to. Nil bounds default to
// the beginning of time and now; "today" starts at local midnight.
func (s *Service) Stats(ctx context.Context, from, to *time.Time) (Stats, error) {
	now := s.now().In(s.location)
	start := time.Unix(0, 0).UTC()
	end := now
	if from != nil {
		start = *from
	}
	if to != nil {
		end = *to
	}

	statusWise, err := s.repo.GroupByStatus(ctx, start, end)
	if err != nil {
		return Stats{}, err
	}
	payment, err := s.repo.GroupByPaymentMethod(ctx, start, end)
	if err != nil {
		return Stats{}, err
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.location)
	today, err := s.repo.Since(ctx, midnight)
	if err != nil {
		return Stats{}, err
	}

	return Stats{
		StatusWise: statusWise,
		Today:      today,
		Payment:    payment,
	}, nil
}

func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.repo.CountAll(ctx)
}

func canAccess(order Order, actor auth.Identity) bool {
	return actor.IsAdmin() || (actor.UserID != "" && order.UserID == actor.UserID)
}
