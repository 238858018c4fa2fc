package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// ConsumerConfig configures StartNotificationConsumer.
type ConsumerConfig struct {
	URL    string
	Queue  string
	LogDir string
}

// StartNotificationConsumer connects to RabbitMQ, declares the durable
// notification queue and appends one line per message to
// <LogDir>/notifications.log.  It reconnects with backoff until ctx is
// cancelled, which is the only way it returns.
func StartNotificationConsumer(ctx context.Context, cfg ConsumerConfig, log logrus.FieldLogger) error {
	w := NewLogWriter(cfg.LogDir)
	log = log.WithField("queue", cfg.Queue)
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(cfg.URL)
		if err != nil {
			log.WithError(err).Warnf("notification consumer: dial failed; retrying in %s", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, cfg.Queue, w, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(err).Warn("notification consumer: consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, queue string, w *LogWriter, log logrus.FieldLogger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.WithError(err).Warn("notification consumer: set QoS failed")
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := w.Handle(d.Body); err != nil {
				log.WithError(err).Warn("notification consumer: handle message failed")
				_ = d.Nack(false, false) // drop rather than requeue into a tight loop
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// LogWriter appends delivered notifications to a log file.  It stands in
// for the email and SMS gateways.
type LogWriter struct {
	mu  sync.Mutex
	dir string
}

// NewLogWriter writes to dir/notifications.log, defaulting dir to "logs".
func NewLogWriter(dir string) *LogWriter {
	if dir == "" {
		dir = "logs"
	}
	return &LogWriter{dir: dir}
}

// Path returns the file the writer appends to.
func (w *LogWriter) Path() string { return filepath.Join(w.dir, "notifications.log") }

// Handle decodes one broker payload and appends it as a single line.
func (w *LogWriter) Handle(body []byte) error {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if n.Kind == "" {
		return errors.New("notification without kind")
	}
	return w.Write(n)
}

// Write appends n as one line.
func (w *LogWriter) Write(n Notification) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", w.dir, err)
	}
	f, err := os.OpenFile(w.Path(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(FormatLine(n)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatLine renders n in the single-line format of notifications.log.
func FormatLine(n Notification) string {
	ref := "reservation_id=" + n.ReservationID
	if n.Kind == KindWaitlistOffer {
		ref = "waitlist_entry_id=" + n.WaitlistEntryID
	}
	line := fmt.Sprintf("[%s] %s | %s | restaurant_id=%s | date=%s | window=%s-%s | party=%d | to=%q <%s>",
		n.SentAt, n.Kind, ref, n.RestaurantID, n.Date, n.StartTime, n.EndTime, n.PartySize, n.CustomerName, n.CustomerEmail)
	if n.Reason != "" {
		line += fmt.Sprintf(" | reason=%q", n.Reason)
	}
	return line + "\n"
}
