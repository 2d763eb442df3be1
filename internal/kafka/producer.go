package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/cvdexinfo/acta-approval/internal/model"
)

// NotificationProducer publishes approval-request notifications for the
// external notifier to pick up.
type NotificationProducer interface {
	Start(ctx context.Context)
	Publish(ctx context.Context, notif model.ApprovalNotification) error
	Close(ctx context.Context)
}

type producer struct {
	asyncProducer sarama.AsyncProducer
	topic         string
	log           *slog.Logger
	wg            *sync.WaitGroup
	closeOnce     sync.Once
	tracer        trace.Tracer
}

func NewProducer(asyncProducer sarama.AsyncProducer, topic string, log *slog.Logger, wg *sync.WaitGroup) NotificationProducer {
	if asyncProducer == nil || log == nil || wg == nil {
		panic("NewProducer: nil dependencies provided")
	}
	if topic == "" {
		panic("NewProducer: topic must not be empty")
	}
	return &producer{
		asyncProducer: asyncProducer,
		topic:         topic,
		log:           log.With("layer", "kafka", "component", "notificationProducer"),
		wg:            wg,
		tracer:        otel.Tracer("approval-notifier"),
	}
}

// Start launches background handlers for success and error channels.
func (p *producer) Start(ctx context.Context) {
	p.log.Info("Starting Kafka producer handlers")
	p.wg.Add(2)
	go p.handleSuccess(ctx)
	go p.handleErrors(ctx)
}

func (p *producer) handleSuccess(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case msg, ok := <-p.asyncProducer.Successes():
			if !ok {
				p.log.Info("Kafka successes channel closed")
				return
			}
			key, _ := msg.Key.Encode()
			p.log.Info("Notification delivered",
				slog.String("topic", msg.Topic),
				slog.Int64("offset", msg.Offset),
				slog.String("key", string(key)))
		case <-ctx.Done():
			p.log.Info("Kafka success handler stopped by context")
			return
		}
	}
}

func (p *producer) handleErrors(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case err, ok := <-p.asyncProducer.Errors():
			if !ok {
				p.log.Info("Kafka errors channel closed")
				return
			}
			p.log.Error("Notification delivery failed",
				slog.String("topic", err.Msg.Topic),
				slog.Any("error", err.Err))
		case <-ctx.Done():
			p.log.Info("Kafka error handler stopped by context")
			return
		}
	}
}

// Publish queues a notification onto the topic, keyed by the record's
// composite key so re-issuances for the same item stay ordered.
func (p *producer) Publish(ctx context.Context, notif model.ApprovalNotification) error {
	ctx, span := p.tracer.Start(ctx, "KafkaPublish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	data, err := json.Marshal(notif)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	key := notif.SubjectID + "/" + notif.ItemID
	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(data),
		Timestamp: time.Now(),
		Headers:   injectTraceContext(ctx, nil),
	}

	select {
	case p.asyncProducer.Input() <- msg:
		p.log.Info("Notification queued to Kafka",
			slog.String("topic", p.topic),
			slog.String("key", key),
			slog.String("recipient_ref", notif.RecipientRef))
		span.SetAttributes(
			attribute.String("kafka.topic", p.topic),
			attribute.String("kafka.key", key),
			attribute.String("notification.type", notif.Type),
		)
		return nil
	case <-ctx.Done():
		p.log.Warn("Publish cancelled by context", slog.String("key", key))
		span.SetStatus(codes.Error, "publish cancelled by context")
		return ctx.Err()
	}
}

// Close shuts down the producer and waits for the channel handlers.
func (p *producer) Close(_ context.Context) {
	p.closeOnce.Do(func() {
		p.log.Info("Closing Kafka producer...")
		p.asyncProducer.AsyncClose()
		p.wg.Wait()
		p.log.Info("Kafka producer closed")
	})
}

// injectTraceContext copies the current trace context into Kafka record
// headers so the notifier can continue the trace.
func injectTraceContext(ctx context.Context, headers []sarama.RecordHeader) []sarama.RecordHeader {
	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)

	out := make([]sarama.RecordHeader, len(headers), len(headers)+len(carrier))
	copy(out, headers)
	for k, v := range carrier {
		out = append(out, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	return out
}
