package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-checkout/internal/events"
)

type recordingQueue struct {
	tasks []*asynq.Task
	err   error
}

func (q *recordingQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Queue: QueueEmail, Type: task.Type()}, nil
}

func paidEvent(t *testing.T, payload map[string]any) events.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return events.Event{ID: "e1", Topic: events.TopicOrderPaid, AggregateID: "o1", Payload: raw, OccurredAt: time.Now()}
}

func TestEmailNotifierEnqueuesOnOrderPaid(t *testing.T) {
	q := &recordingQueue{}
	n := EmailNotifier{Queue: q, Enabled: true}
	err := n.Notify(context.Background(), paidEvent(t, map[string]any{"orderId": "o1", "email": "a@example.com", "total": 638.82, "currency": "INR"}))
	require.NoError(t, err)
	require.Len(t, q.tasks, 1)
	require.Equal(t, TaskOrderConfirmation, q.tasks[0].Type())

	var p ConfirmationPayload
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &p))
	require.Equal(t, 638.82, p.Total)
}

func TestEmailNotifierIgnoresOtherTopicsAndMissingRecipient(t *testing.T) {
	q := &recordingQueue{}
	n := EmailNotifier{Queue: q, Enabled: true}
	ev := paidEvent(t, map[string]any{"orderId": "o1"})
	require.NoError(t, n.Notify(context.Background(), ev))

	ev = paidEvent(t, map[string]any{"orderId": "o1", "email": "a@example.com"})
	ev.Topic = events.TopicOrderCreated
	require.NoError(t, n.Notify(context.Background(), ev))

	disabled := EmailNotifier{Queue: q}
	require.NoError(t, disabled.Notify(context.Background(), paidEvent(t, map[string]any{"orderId": "o1", "email": "a@example.com"})))
	require.Empty(t, q.tasks)
}

func TestEmailNotifierDuplicateIsNotAnError(t *testing.T) {
	n := EmailNotifier{Queue: &recordingQueue{err: asynq.ErrTaskIDConflict}, Enabled: true}
	require.NoError(t, n.Notify(context.Background(), paidEvent(t, map[string]any{"orderId": "o1", "email": "a@example.com"})))

	n = EmailNotifier{Queue: &recordingQueue{err: errors.New("redis down")}, Enabled: true}
	require.Error(t, n.Notify(context.Background(), paidEvent(t, map[string]any{"orderId": "o1", "email": "a@example.com"})))
}

func TestEmailHandlerSends(t *testing.T) {
	outbox := &Outbox{}
	h := EmailHandler{Mail: outbox, From: "orders@example.com"}
	task, err := NewConfirmationTask(ConfirmationPayload{OrderID: "o1", Email: "a@example.com", Total: 579.82, Currency: "INR"})
	require.NoError(t, err)

	require.NoError(t, h.ProcessTask(context.Background(), task))
	sent := outbox.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "orders@example.com", sent[0].From)
	require.Equal(t, "a@example.com", sent[0].To)
	require.Contains(t, sent[0].Subject, "o1")
	require.Contains(t, sent[0].HTML, "579.82")
}

func TestEmailHandlerSkipsRetryOnBadPayload(t *testing.T) {
	h := EmailHandler{Mail: &Outbox{}}
	err := h.ProcessTask(context.Background(), asynq.NewTask(TaskOrderConfirmation, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNewConfirmationTaskRequiresFields(t *testing.T) {
	_, err := NewConfirmationTask(ConfirmationPayload{Email: "a@example.com"})
	require.Error(t, err)
	_, err = NewConfirmationTask(ConfirmationPayload{OrderID: "o1"})
	require.Error(t, err)
}
