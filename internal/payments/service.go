package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sahil123-FNO/plubming-backend/internal/auth"
	"github.com/Sahil123-FNO/plubming-backend/internal/cache"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound        = errors.New("payment not found")
	ErrSourceRequired  = errors.New("provide exactly one of bookingId or orderId")
	ErrForbidden       = errors.New("not authorized to access this payment")
	ErrAlreadyPaid     = errors.New("already paid")
	ErrInvalidAmount   = errors.New("amount must be greater than zero")
	ErrUnknownGateway  = errors.New("unknown payment gateway")
	ErrDuplicateCharge = errors.New("charge already recorded")
)

const webhookDedupTTL = 24 * time.Hour

var minorUnit = decimal.NewFromInt(100)

type Service struct {
	repo           Repository
	ledgers        map[SourceKind]Ledger
	gateways       map[string]Gateway
	defaultGateway string
	currency       string
	dedup          cache.Cache
	location       *time.Location
	now            func() time.Time
}

func NewService(repo Repository, ledgers map[SourceKind]Ledger, gateways []Gateway, defaultGateway, currency string, dedup cache.Cache, location *time.Location) *Service {
	if dedup == nil {
		dedup = cache.NewNoop()
	}
	if location == nil {
		location = time.UTC
	}
	byName := make(map[string]Gateway, len(gateways))
	for _, g := range gateways {
		byName[g.Name()] = g
	}
	return &Service{
		repo:           repo,
		ledgers:        ledgers,
		gateways:       byName,
		defaultGateway: defaultGateway,
		currency:       strings.ToLower(currency),
		dedup:          dedup,
		location:       location,
		now:            time.Now,
	}
}

// Initiate opens a gateway charge for a booking or an order. The source record
// is marked pending with the charge id; it only becomes paid once the gateway
// confirms the charge.
func (s *Service) Initiate(ctx context.Context, actor auth.Identity, req InitiateRequest) (InitiateResult, error) {
	bookingID := strings.TrimSpace(req.BookingID)
	orderID := strings.TrimSpace(req.OrderID)
	if (bookingID == "") == (orderID == "") {
		return InitiateResult{}, ErrSourceRequired
	}
	kind, sourceID := SourceBooking, bookingID
	if orderID != "" {
		kind, sourceID = SourceOrder, orderID
	}

	ledger, ok := s.ledgers[kind]
	if !ok {
		return InitiateResult{}, ErrSourceNotFound
	}
	target, err := ledger.Target(ctx, sourceID)
	if err != nil {
		return InitiateResult{}, err
	}
	if target.UserID != actor.UserID && !actor.IsAdmin() {
		return InitiateResult{}, ErrForbidden
	}
	if target.Paid {
		return InitiateResult{}, ErrAlreadyPaid
	}

	gw, err := s.gateway(req.Gateway)
	if err != nil {
		return InitiateResult{}, err
	}
	amountMinor := decimal.NewFromFloat(target.Amount).Mul(minorUnit).Round(0).IntPart()
	if amountMinor <= 0 {
		return InitiateResult{}, ErrInvalidAmount
	}

	charge, err := gw.OpenCharge(ctx, ChargeRequest{
		AmountMinor: amountMinor,
		Currency:    s.currency,
		MethodToken: strings.TrimSpace(req.MethodToken),
		Reference:   target.Reference,
		Description: target.Description,
		Metadata: map[string]string{
			"source":   string(kind),
			"sourceId": target.ID,
			"userId":   target.UserID,
		},
	})
	if err != nil {
		return InitiateResult{}, err
	}

	now := s.now().In(s.location)
	payment := Payment{
		ID:        primitive.NewObjectID().Hex(),
		UserID:    target.UserID,
		Amount:    target.Amount,
		Currency:  s.currency,
		Gateway:   gw.Name(),
		ChargeID:  charge.ID,
		PaymentID: charge.PaymentID,
		Status:    StatusPending,
		Method:    strings.TrimSpace(req.PaymentMethod),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if kind == SourceOrder {
		payment.OrderID = target.ID
	} else {
		payment.BookingID = target.ID
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		return InitiateResult{}, err
	}
	if err := ledger.Apply(ctx, target.ID, Update{Status: StatusPending, Gateway: gw.Name(), ChargeID: charge.ID, At: now}); err != nil {
		return InitiateResult{}, err
	}

	if charge.Status == ChargeSucceeded {
		payment, err = s.confirm(ctx, payment, charge.PaymentID)
		if err != nil {
			return InitiateResult{}, err
		}
	}

	return InitiateResult{
		Payment:      payment,
		ChargeID:     charge.ID,
		ClientSecret: charge.ClientSecret,
		AmountMinor:  amountMinor,
		Currency:     s.currency,
		Gateway:      gw.Name(),
	}, nil
}

// Verify checks a client-side confirmation with the gateway and settles the payment.
// A rejected signature changes nothing.
func (s *Service) Verify(ctx context.Context, actor auth.Identity, req VerifyRequest) (Payment, error) {
	payment, gw, err := s.ownedPayment(ctx, actor, req.ChargeID)
	if err != nil {
		return Payment{}, err
	}
	if err := gw.VerifyPayment(ctx, payment.ChargeID, strings.TrimSpace(req.PaymentID), strings.TrimSpace(req.Signature)); err != nil {
		return Payment{}, err
	}
	paymentID := strings.TrimSpace(req.PaymentID)
	if paymentID == "" {
		paymentID = payment.PaymentID
	}
	return s.confirm(ctx, payment, paymentID)
}

// Complete re-reads the charge from the gateway and mirrors its state.
func (s *Service) Complete(ctx context.Context, actor auth.Identity, req CompleteRequest) (Payment, error) {
	payment, gw, err := s.ownedPayment(ctx, actor, req.ChargeID)
	if err != nil {
		return Payment{}, err
	}
	charge, err := gw.RetrieveCharge(ctx, payment.ChargeID)
	if err != nil {
		return Payment{}, err
	}

	switch charge.Status {
	case ChargeSucceeded:
		return s.confirm(ctx, payment, charge.PaymentID)
	case ChargeFailed:
		return s.fail(ctx, payment)
	case ChargeRefunded:
		return s.refund(ctx, payment)
	default:
		now := s.now().In(s.location)
		return s.repo.Update(ctx, payment.ID, bson.M{"verifiedAt": now, "updatedAt": now})
	}
}

// Webhook authenticates and applies a gateway callback. It reports whether the
// event changed anything; redelivered and irrelevant events are acknowledged without effect.
func (s *Service) Webhook(ctx context.Context, gatewayName string, body []byte, signature string) (WebhookEvent, bool, error) {
	gw, ok := s.gateways[gatewayName]
	if !ok {
		return WebhookEvent{}, false, ErrUnknownGateway
	}
	event, err := gw.ParseWebhook(body, signature)
	if err != nil {
		return WebhookEvent{}, false, err
	}
	if event.Kind == EventIgnored || event.ChargeID == "" {
		return event, false, nil
	}

	key := "payments:webhook:" + gw.Name() + ":" + event.ID
	fresh, err := s.dedup.SetIfAbsent(ctx, key, []byte(event.Type), webhookDedupTTL)
	if err != nil {
		return event, false, err
	}
	if !fresh {
		return event, false, nil
	}

	applied, err := s.applyEvent(ctx, event)
	if err != nil {
		_ = s.dedup.Delete(ctx, key)
		return event, false, err
	}
	return event, applied, nil
}

func (s *Service) applyEvent(ctx context.Context, event WebhookEvent) (bool, error) {
	payment, err := s.repo.GetByChargeID(ctx, event.ChargeID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	switch event.Kind {
	case EventCaptured:
		_, err = s.confirm(ctx, payment, event.PaymentID)
	case EventFailed:
		_, err = s.fail(ctx, payment)
	case EventRefunded:
		_, err = s.refund(ctx, payment)
	default:
		return false, nil
	}
	return err == nil, err
}

func (s *Service) History(ctx context.Context, actor auth.Identity, limit, offset int64) ([]HistoryEntry, int64, error) {
	items, err := s.repo.ListByUser(ctx, actor.UserID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.CountByUser(ctx, actor.UserID)
	if err != nil {
		return nil, 0, err
	}

	entries := make([]HistoryEntry, 0, len(items))
	for _, p := range items {
		entry := HistoryEntry{Payment: p}
		if ledger, ok := s.ledgers[p.SourceKind()]; ok {
			if target, err := ledger.Target(ctx, p.SourceID()); err == nil {
				entry.Source = &Source{
					Kind:        target.Kind,
					ID:          target.ID,
					Description: target.Description,
					Reference:   target.Reference,
				}
			}
		}
		entries = append(entries, entry)
	}
	return entries, total, nil
}

func (s *Service) Detail(ctx context.Context, actor auth.Identity, id string) (Payment, error) {
	payment, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return Payment{}, err
	}
	if payment.UserID != actor.UserID && !actor.IsAdmin() {
		return Payment{}, ErrForbidden
	}
	return payment, nil
}

func (s *Service) ownedPayment(ctx context.Context, actor auth.Identity, chargeID string) (Payment, Gateway, error) {
	payment, err := s.repo.GetByChargeID(ctx, strings.TrimSpace(chargeID))
	if err != nil {
		return Payment{}, nil, err
	}
	if payment.UserID != actor.UserID && !actor.IsAdmin() {
		return Payment{}, nil, ErrForbidden
	}
	gw, ok := s.gateways[payment.Gateway]
	if !ok {
		return Payment{}, nil, fmt.Errorf("%w: %s", ErrUnknownGateway, payment.Gateway)
	}
	return payment, gw, nil
}

// confirm marks the payment succeeded and settles its source. Both steps are
// idempotent so a retried confirmation converges. A refunded payment stays refunded.
func (s *Service) confirm(ctx context.Context, payment Payment, paymentID string) (Payment, error) {
	if payment.Status == StatusRefunded {
		return payment, nil
	}
	now := s.now().In(s.location)
	if payment.Status != StatusSucceeded {
		set := bson.M{"status": StatusSucceeded, "verifiedAt": now, "updatedAt": now}
		if paymentID != "" {
			set["gatewayPaymentId"] = paymentID
		}
		updated, err := s.repo.Update(ctx, payment.ID, set)
		if err != nil {
			return Payment{}, err
		}
		payment = updated
	}
	if paymentID == "" {
		paymentID = payment.PaymentID
	}
	err := s.settle(ctx, payment, Update{
		Status:        StatusSucceeded,
		Gateway:       payment.Gateway,
		ChargeID:      payment.ChargeID,
		TransactionID: paymentID,
		At:            now,
	})
	return payment, err
}

func (s *Service) fail(ctx context.Context, payment Payment) (Payment, error) {
	if payment.Status != StatusPending {
		return payment, nil
	}
	now := s.now().In(s.location)
	updated, err := s.repo.Update(ctx, payment.ID, bson.M{"status": StatusFailed, "updatedAt": now})
	if err != nil {
		return Payment{}, err
	}
	return updated, s.settle(ctx, updated, Update{Status: StatusFailed, Gateway: updated.Gateway, ChargeID: updated.ChargeID, At: now})
}

func (s *Service) refund(ctx context.Context, payment Payment) (Payment, error) {
	now := s.now().In(s.location)
	if payment.Status != StatusRefunded {
		updated, err := s.repo.Update(ctx, payment.ID, bson.M{"status": StatusRefunded, "updatedAt": now})
		if err != nil {
			return Payment{}, err
		}
		payment = updated
	}
	return payment, s.settle(ctx, payment, Update{Status: StatusRefunded, Gateway: payment.Gateway, ChargeID: payment.ChargeID, At: now})
}

func (s *Service) settle(ctx context.Context, payment Payment, upd Update) error {
	ledger, ok := s.ledgers[payment.SourceKind()]
	if !ok {
		return ErrSourceNotFound
	}
	return ledger.Apply(ctx, payment.SourceID(), upd)
}

func (s *Service) gateway(name string) (Gateway, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = s.defaultGateway
	}
	gw, ok := s.gateways[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGateway, name)
	}
	return gw, nil
}
