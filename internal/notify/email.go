package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-checkout/internal/obs"
)

// Message is a rendered email ready for delivery.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// EmailHandler delivers order confirmation emails from asynq tasks.
type EmailHandler struct {
	Mail Sender
	From string
}

// Register mounts the handler on the worker mux.
func (h EmailHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskOrderConfirmation, h.ProcessTask)
}

// ProcessTask implements asynq.HandlerFunc. Malformed payloads are not retried.
func (h EmailHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p ConfirmationPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		obs.ObserveEmailTask("send", "invalid")
		return fmt.Errorf("decode confirmation payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.Email == "" || p.OrderID == "" {
		obs.ObserveEmailTask("send", "invalid")
		return fmt.Errorf("confirmation payload incomplete: %w", asynq.SkipRetry)
	}
	if h.Mail == nil {
		return fmt.Errorf("email sender not configured: %w", asynq.SkipRetry)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := Message{From: h.From, To: p.Email, Subject: subject(p), HTML: body(p)}
	if err := h.Mail.Send(ctx, msg); err != nil {
		obs.ObserveEmailTask("send", "error")
		return fmt.Errorf("send confirmation %s: %w", p.OrderID, err)
	}
	obs.ObserveEmailTask("send", "ok")
	return nil
}

func subject(p ConfirmationPayload) string {
	return fmt.Sprintf("Order %s confirmed", p.OrderID)
}

func body(p ConfirmationPayload) string {
	return fmt.Sprintf(
		"<p>Thanks for your order!</p><p>Order: <strong>%s</strong><br>Amount paid: %s %.2f</p>",
		html.EscapeString(p.OrderID), html.EscapeString(p.Currency), p.Total,
	)
}

// LogSender writes emails to the log instead of delivering them.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) Send(_ context.Context, m Message) error {
	s.Logger.Info().Str("from", m.From).Str("to", m.To).Str("subject", m.Subject).Msg("email_logged")
	return nil
}

// Outbox records messages in memory. The zero value is ready to use.
type Outbox struct {
	mu   sync.Mutex
	sent []Message
}

func (o *Outbox) Send(_ context.Context, m Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, m)
	return nil
}

// Sent returns a copy of every recorded message.
func (o *Outbox) Sent() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.sent...)
}
