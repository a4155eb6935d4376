package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"schoolattendance/internal/metrics"
	"schoolattendance/internal/model"
)

// TypeAttendanceRecorded marks a stored attendance record.
const TypeAttendanceRecorded = "attendance.recorded"

// AttendanceRecorded is the body of a TypeAttendanceRecorded message.
type AttendanceRecorded struct {
	AttendanceID string       `json:"attendance_id"`
	StudentID    string       `json:"student_id"`
	Date         string       `json:"date"`
	Status       model.Status `json:"status"`
}

// DefaultNotifierBuffer is the number of notifications held while the queue is slow.
const DefaultNotifierBuffer = 256

// Notifier publishes attendance notifications from a background loop. Callers hand
// messages to a bounded buffer; when it is full the message is dropped.
type Notifier struct {
	q       Queue
	log     *zap.Logger
	timeout time.Duration
	pending chan Message
}

// NewNotifier publishes onto q, giving each publish at most timeout and holding up
// to buffer messages. Run must be started for anything to be published.
func NewNotifier(q Queue, log *zap.Logger, timeout time.Duration, buffer int) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	if buffer <= 0 {
		buffer = DefaultNotifierBuffer
	}
	return &Notifier{q: q, log: log, timeout: timeout, pending: make(chan Message, buffer)}
}

// AttendanceRecorded queues a notification for a without waiting on the queue.
func (n *Notifier) AttendanceRecorded(_ context.Context, a model.Attendance) {
	body, err := json.Marshal(AttendanceRecorded{
		AttendanceID: a.ID,
		StudentID:    a.StudentID,
		Date:         a.Date.String(),
		Status:       a.Status,
	})
	if err != nil {
		n.log.Error("encode notification", zap.Error(err))
		return
	}
	select {
	case n.pending <- Message{Type: TypeAttendanceRecorded, Body: body}:
	default:
		metrics.Notifications.WithLabelValues("dropped").Inc()
		n.log.Warn("notification buffer full, dropping", zap.String("attendance_id", a.ID))
	}
}

// Run publishes queued notifications until ctx ends, then spends at most one
// timeout flushing whatever is still buffered.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case msg := <-n.pending:
			n.publish(ctx, msg)
		case <-ctx.Done():
			n.flush(ctx)
			return
		}
	}
}

func (n *Notifier) flush(ctx context.Context) {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()
	for {
		select {
		case msg := <-n.pending:
			n.publish(flushCtx, msg)
		default:
			return
		}
	}
}

func (n *Notifier) publish(ctx context.Context, msg Message) {
	pubCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.q.Publish(pubCtx, msg); err != nil {
		metrics.Notifications.WithLabelValues("publish_failed").Inc()
		n.log.Warn("publish notification failed", zap.Error(err))
		return
	}
	metrics.Notifications.WithLabelValues("published").Inc()
}

// LogConsumer writes each notification to the log.
type LogConsumer struct {
	q   Queue
	log *zap.Logger
}

// NewLogConsumer creates a consumer for q.
func NewLogConsumer(q Queue, log *zap.Logger) *LogConsumer {
	return &LogConsumer{q: q, log: log}
}

// Run consumes until ctx ends.
func (c *LogConsumer) Run(ctx context.Context) error {
	msgs, err := c.q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	for msg := range msgs {
		c.Handle(msg)
	}
	return nil
}

// Handle logs one message. Unknown types are ignored.
func (c *LogConsumer) Handle(msg Message) {
	if msg.Type != TypeAttendanceRecorded {
		metrics.Notifications.WithLabelValues("ignored").Inc()
		return
	}
	var body AttendanceRecorded
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		metrics.Notifications.WithLabelValues("invalid").Inc()
		c.log.Warn("bad notification body", zap.Error(err))
		return
	}
	metrics.Notifications.WithLabelValues("delivered").Inc()
	c.log.Info("Attendance recorded",
		zap.String("student_id", body.StudentID),
		zap.String("date", body.Date),
		zap.String("status", string(body.Status)))
}
