package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	razorpay "github.com/razorpay/razorpay-go"
)

const SignatureHeaderRazorpay = "X-Razorpay-Signature"

// razorpayOrders is the subset of the SDK order resource the gateway uses.
type razorpayOrders interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Fetch(orderID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Payments(orderID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type RazorpayGateway struct {
	orders        razorpayOrders
	keySecret     string
	webhookSecret string
}

func NewRazorpayGateway(keyID, keySecret, webhookSecret string) *RazorpayGateway {
	client := razorpay.NewClient(keyID, keySecret)
	return &RazorpayGateway{
		orders:        client.Order,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
	}
}

func (g *RazorpayGateway) Name() string { return "razorpay" }

func (g *RazorpayGateway) OpenCharge(ctx context.Context, req ChargeRequest) (Charge, error) {
	notes := make(map[string]interface{}, len(req.Metadata))
	for k, v := range req.Metadata {
		notes[k] = v
	}
	body, err := g.orders.Create(map[string]interface{}{
		"amount":   req.AmountMinor,
		"currency": strings.ToUpper(req.Currency),
		"receipt":  req.Reference,
		"notes":    notes,
	}, nil)
	if err != nil {
		return Charge{}, fmt.Errorf("%w: razorpay order create: %v", ErrGateway, err)
	}

	id, _ := body["id"].(string)
	if id == "" {
		return Charge{}, fmt.Errorf("%w: razorpay order create returned no id", ErrGateway)
	}
	status, _ := body["status"].(string)
	return Charge{ID: id, Status: razorpayOrderStatus(status)}, nil
}

func (g *RazorpayGateway) RetrieveCharge(ctx context.Context, chargeID string) (Charge, error) {
	body, err := g.orders.Fetch(chargeID, nil, nil)
	if err != nil {
		return Charge{}, fmt.Errorf("%w: razorpay order fetch: %v", ErrGateway, err)
	}
	status, _ := body["status"].(string)
	charge := Charge{ID: chargeID, Status: razorpayOrderStatus(status)}
	if charge.Status != ChargeSucceeded {
		return charge, nil
	}

	list, err := g.orders.Payments(chargeID, nil, nil)
	if err != nil {
		return Charge{}, fmt.Errorf("%w: razorpay order payments: %v", ErrGateway, err)
	}
	items, _ := list["items"].([]interface{})
	for _, raw := range items {
		p, _ := raw.(map[string]interface{})
		if s, _ := p["status"].(string); s == "captured" {
			charge.PaymentID, _ = p["id"].(string)
			break
		}
	}
	return charge, nil
}

// VerifyPayment checks the checkout signature: HMAC of "orderId|paymentId" under the key secret.
func (g *RazorpayGateway) VerifyPayment(ctx context.Context, chargeID, paymentID, signature string) error {
	if chargeID == "" || paymentID == "" {
		return ErrInvalidSignature
	}
	if !VerifySignature(g.keySecret, []byte(chargeID+"|"+paymentID), signature) {
		return ErrInvalidSignature
	}
	return nil
}

type razorpayWebhook struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
		Refund struct {
			Entity struct {
				ID        string `json:"id"`
				PaymentID string `json:"payment_id"`
			} `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

func (g *RazorpayGateway) ParseWebhook(body []byte, signature string) (WebhookEvent, error) {
	if !VerifySignature(g.webhookSecret, body, signature) {
		return WebhookEvent{}, ErrInvalidSignature
	}

	var hook razorpayWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: razorpay: %v", ErrInvalidPayload, err)
	}

	payment := hook.Payload.Payment.Entity
	refund := hook.Payload.Refund.Entity
	event := WebhookEvent{
		Type:      hook.Event,
		ChargeID:  payment.OrderID,
		PaymentID: payment.ID,
	}
	switch hook.Event {
	case "payment.captured":
		event.Kind = EventCaptured
	case "payment.failed":
		event.Kind = EventFailed
	case "refund.processed":
		event.Kind = EventRefunded
		if event.PaymentID == "" {
			event.PaymentID = refund.PaymentID
		}
	default:
		event.Kind = EventIgnored
	}

	// Razorpay redelivers the same body on retry, so the event and entity ids identify it.
	event.ID = strings.Join([]string{hook.Event, event.PaymentID, refund.ID}, ":")
	return event, nil
}

func razorpayOrderStatus(status string) ChargeStatus {
	if status == "paid" {
		return ChargeSucceeded
	}
	return ChargePending
}
