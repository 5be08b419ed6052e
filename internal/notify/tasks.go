package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-checkout/internal/events"
	"github.com/noah-isme/storefront-checkout/internal/obs"
)

const (
	// TaskOrderConfirmation is the asynq task type for paid order emails.
	TaskOrderConfirmation = "email:order_confirmation"
	// QueueEmail is the asynq queue the confirmation tasks are routed to.
	QueueEmail = "email"

	defaultMaxRetry = 5
)

// ConfirmationPayload is the body of an order confirmation task.
type ConfirmationPayload struct {
	OrderID   string  `json:"orderId"`
	Email     string  `json:"email"`
	Total     float64 `json:"total"`
	Currency  string  `json:"currency"`
	PaymentID string  `json:"paymentId,omitempty"`
}

// NewConfirmationTask builds the task for a paid order.
func NewConfirmationTask(p ConfirmationPayload) (*asynq.Task, error) {
	if strings.TrimSpace(p.OrderID) == "" {
		return nil, errors.New("notify: order id is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return nil, errors.New("notify: recipient is required")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderConfirmation, raw), nil
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EmailNotifier turns order.paid events into confirmation email tasks.
type EmailNotifier struct {
	Queue    Enqueuer
	Enabled  bool
	MaxRetry int
	Logger   zerolog.Logger
}

// Notify implements events.Notifier.
func (n EmailNotifier) Notify(ctx context.Context, event events.Event) error {
	if !n.Enabled || n.Queue == nil || event.Topic != events.TopicOrderPaid {
		return nil
	}
	var payload ConfirmationPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("email notify: decode payload: %w", err)
	}
	if strings.TrimSpace(payload.Email) == "" {
		obs.ObserveEmailTask("enqueue", "skipped")
		return nil
	}
	task, err := NewConfirmationTask(payload)
	if err != nil {
		return err
	}
	retries := n.MaxRetry
	if retries <= 0 {
		retries = defaultMaxRetry
	}
	_, err = n.Queue.EnqueueContext(ctx, task,
		asynq.Queue(QueueEmail),
		asynq.MaxRetry(retries),
		asynq.TaskID("order-confirmation:"+payload.OrderID),
		asynq.Retention(24*time.Hour),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		obs.ObserveEmailTask("enqueue", "duplicate")
		return nil
	}
	if err != nil {
		obs.ObserveEmailTask("enqueue", "error")
		return fmt.Errorf("email notify: enqueue: %w", err)
	}
	obs.ObserveEmailTask("enqueue", "ok")
	n.Logger.Debug().Str("order_id", payload.OrderID).Msg("confirmation_email_enqueued")
	return nil
}
