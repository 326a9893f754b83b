package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/storm-radar-overlay/internal/config"
	"github.com/couchcryptid/storm-radar-overlay/internal/events"
	"github.com/couchcryptid/storm-radar-overlay/internal/observability"
)

// MessageWriter is the producer side of a Kafka client.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewWriter creates a Kafka producer for the configured notification topic.
func NewWriter(cfg *config.Config) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
}

// Sink batches engine notifications onto a Kafka topic. A batch is written
// when it reaches the batch size or when the flush interval elapses,
// whichever comes first.
type Sink struct {
	writer        MessageWriter
	batchSize     int
	flushInterval time.Duration
	clock         clockwork.Clock
	logger        *slog.Logger
	metrics       *observability.Metrics
}

// NewSink creates a notification sink over w.
func NewSink(w MessageWriter, cfg *config.Config, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Sink {
	return &Sink{
		writer:        w,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.BatchFlushInterval,
		clock:         clock,
		logger:        logger,
		metrics:       metrics,
	}
}

// Run consumes notifications until ctx is cancelled or the channel is
// closed, flushing whatever is pending before it returns.
func (s *Sink) Run(ctx context.Context, notifications <-chan events.Notification) error {
	s.logger.Info("notification sink started", "batch_size", s.batchSize, "flush_interval", s.flushInterval)

	ticker := s.clock.NewTicker(s.flushInterval)
	defer ticker.Stop()

	batch := make([]kafkago.Message, 0, s.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := s.write(ctx, batch); err != nil {
			s.metrics.NotificationsDropped.Add(float64(len(batch)))
			s.logger.Error("write notification batch failed", "error", err, "batch_size", len(batch))
		}
		batch = make([]kafkago.Message, 0, s.batchSize)
	}

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			flush(drainCtx)
			cancel()
			s.logger.Info("notification sink stopping", "reason", ctx.Err())
			return nil
		case n, ok := <-notifications:
			if !ok {
				flush(ctx)
				return nil
			}
			msg, err := serializeToMessage(n)
			if err != nil {
				s.metrics.NotificationsDropped.Inc()
				s.logger.Warn("serialize notification failed", "error", err, "type", n.Type)
				continue
			}
			batch = append(batch, msg)
			if len(batch) >= s.batchSize {
				flush(ctx)
			}
		case <-ticker.Chan():
			flush(ctx)
		}
	}
}

const (
	writeAttempts  = 3
	initialBackoff = 50 * time.Millisecond
	maxBackoff     = time.Second
)

// write retries a failed batch with exponential backoff before giving up.
func (s *Sink) write(ctx context.Context, batch []kafkago.Message) error {
	backoff := initialBackoff
	var err error
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		if err = s.writer.WriteMessages(ctx, batch...); err == nil {
			return nil
		}
		if attempt == writeAttempts {
			break
		}
		s.logger.Warn("notification write failed, retrying", "error", err, "attempt", attempt, "backoff", backoff)
		if !retry.SleepWithContext(ctx, backoff) {
			return fmt.Errorf("write notifications: %w", ctx.Err())
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
	return fmt.Errorf("write notifications after %d attempts: %w", writeAttempts, err)
}

// serializeToMessage marshals a notification into a Kafka message keyed by
// its type, so all notifications of one type share a partition.
func serializeToMessage(n events.Notification) (kafkago.Message, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s notification: %w", n.Type, err)
	}
	return kafkago.Message{
		Key:   []byte(n.Type),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "notification_type", Value: []byte(n.Type)},
			{Key: "published_at", Value: []byte(n.Timestamp.Format(time.RFC3339))},
		},
	}, nil
}
