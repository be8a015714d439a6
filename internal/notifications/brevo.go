package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBrevoEndpoint = "https://api.brevo.com/v3/smtp/email"

var (
	ErrDisabled     = errors.New("mailer not configured")
	ErrNoRecipient  = errors.New("missing recipient email")
	ErrEmptyMessage = errors.New("message needs a subject and a body")
)

// APIError is a non-2xx answer from Brevo.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("brevo: status %d: %s", e.Status, e.Body)
}

// Message is one transactional email addressed to a single recipient.
type Message struct {
	ToEmail string
	ToName  string
	Subject string
	HTML    string
}

func (m Message) check() error {
	if strings.TrimSpace(m.ToEmail) == "" {
		return ErrNoRecipient
	}
	if strings.TrimSpace(m.Subject) == "" || strings.TrimSpace(m.HTML) == "" {
		return ErrEmptyMessage
	}
	return nil
}

// BrevoClient sends account and booking emails through the Brevo SMTP API.
// A nil client is a valid, disabled mailer.
type BrevoClient struct {
	apiKey     string
	sender     brevoContact
	sandbox    bool
	endpoint   string
	httpClient *http.Client
}

// NewBrevoClient returns nil when the key or sender address is missing.
func NewBrevoClient(apiKey, senderEmail, senderName string, sandbox bool) *BrevoClient {
	senderEmail = strings.TrimSpace(senderEmail)
	if strings.TrimSpace(apiKey) == "" || senderEmail == "" {
		return nil
	}
	if strings.TrimSpace(senderName) == "" {
		senderName = senderEmail
	}
	return &BrevoClient{
		apiKey:     apiKey,
		sender:     brevoContact{Email: senderEmail, Name: senderName},
		sandbox:    sandbox,
		endpoint:   defaultBrevoEndpoint,
		httpClient: &http.Client{Timeout: 8 * time.Second},
	}
}

func (c *BrevoClient) SendVerificationEmail(ctx context.Context, toEmail, toName, verifyURL string) (string, error) {
	return c.sendTemplate(ctx, toEmail, toName, "Please verify your email", verificationTmpl, verificationData{Name: toName, URL: verifyURL})
}

func (c *BrevoClient) SendPasswordReset(ctx context.Context, toEmail, toName, token string) (string, error) {
	return c.sendTemplate(ctx, toEmail, toName, "Reset your password", passwordResetTmpl, passwordResetData{Name: toName, Token: token})
}

func (c *BrevoClient) SendBookingConfirmation(ctx context.Context, toEmail, toName string, booking BookingSummary) (string, error) {
	booking.Name = toName
	return c.sendTemplate(ctx, toEmail, toName, "Booking received - "+booking.ServiceName, bookingConfirmationTmpl, booking)
}

func (c *BrevoClient) sendTemplate(ctx context.Context, toEmail, toName, subject string, tmpl *template.Template, data interface{}) (string, error) {
	if c == nil {
		return "", ErrDisabled
	}
	html, err := render(tmpl, data)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", subject, err)
	}
	return c.Send(ctx, Message{ToEmail: toEmail, ToName: toName, Subject: subject, HTML: html})
}

// Send posts msg and returns the Brevo message id.
func (c *BrevoClient) Send(ctx context.Context, msg Message) (string, error) {
	if c == nil {
		return "", ErrDisabled
	}
	if err := msg.check(); err != nil {
		return "", err
	}

	payload := brevoSendRequest{
		Sender:      c.sender,
		To:          []brevoContact{{Email: msg.ToEmail, Name: msg.ToName}},
		Subject:     msg.Subject,
		HTMLContent: msg.HTML,
	}
	if c.sandbox {
		payload.Headers = map[string]string{"X-Sib-Sandbox": "drop"}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("brevo marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("brevo create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("content-type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("brevo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out struct {
		MessageID string `json:"messageId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("brevo decode response: %w", err)
	}
	if out.MessageID == "" {
		return "", errors.New("brevo response missing messageId")
	}
	return out.MessageID, nil
}

type brevoSendRequest struct {
	Sender      brevoContact      `json:"sender"`
	To          []brevoContact    `json:"to"`
	Subject     string            `json:"subject"`
	HTMLContent string            `json:"htmlContent,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}
