package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/models"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/services"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/pkg/metrics"
)

// attemptHeader carries the number of failed deliveries on republished requests.
const attemptHeader = "x-attempt"

// Dispatcher runs one push for a send request.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *models.SendRequest) (*services.Response, error)
}

// PushConsumer reads send requests and owns the retry policy: the push
// itself never retries.
type PushConsumer struct {
	base          *BaseConsumer
	dispatcher    Dispatcher
	metrics       *metrics.Metrics
	logger        *slog.Logger
	maxDeliveries int
}

func NewPushConsumer(base *BaseConsumer, dispatcher Dispatcher, metrics *metrics.Metrics, logger *slog.Logger, maxDeliveries int) *PushConsumer {
	if maxDeliveries <= 0 {
		maxDeliveries = 5
	}
	return &PushConsumer{
		base:          base,
		dispatcher:    dispatcher,
		metrics:       metrics,
		logger:        logger,
		maxDeliveries: maxDeliveries,
	}
}

func (p *PushConsumer) Start(ctx context.Context) error {
	return p.base.Start(ctx, p.handleDelivery)
}

func (p *PushConsumer) handleDelivery(ctx context.Context, pub Publisher, msg amqp.Delivery) error {
	var req models.SendRequest
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		p.logger.Error("failed to unmarshal send request", slog.Any("error", err))
		_ = msg.Reject(false)
		return err
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	p.metrics.IncConsumed()

	resp, err := p.dispatcher.Dispatch(ctx, &req)
	switch {
	case errors.Is(err, services.ErrTokenSuppressed):
		return msg.Ack(false)
	case err != nil:
		p.retryOrDeadLetter(pub, &msg, req.RequestID, err)
		return err
	case resp.Success():
		return msg.Ack(false)
	case retryable(resp.Err()):
		p.retryOrDeadLetter(pub, &msg, req.RequestID, resp.Err())
		return nil
	default:
		p.logger.Info("push failed permanently, not retrying",
			slog.String("request_id", req.RequestID),
			slog.Any("error", resp.Err()),
		)
		return msg.Ack(false)
	}
}

// retryOrDeadLetter republishes msg with its attempt count bumped and acks
// the original, or dead-letters it once maxDeliveries attempts have failed.
// Classic queues do not count redeliveries, so the count travels in a header.
func (p *PushConsumer) retryOrDeadLetter(pub Publisher, msg *amqp.Delivery, requestID string, cause error) {
	attempts := deliveryAttempts(msg) + 1
	log := p.logger.With(
		slog.String("request_id", requestID),
		slog.Int("attempt", attempts),
		slog.Any("error", cause),
	)

	if attempts >= p.maxDeliveries {
		log.Error("push failed, message dead-lettered")
		_ = msg.Nack(false, false)
		return
	}
	if err := pub.Publish(msg.Exchange, msg.RoutingKey, false, false, retryPublishing(msg, attempts)); err != nil {
		log.Error("push retry could not be published, returning message to queue", slog.Any("publish_error", err))
		_ = msg.Nack(false, true)
		return
	}
	p.metrics.IncRequeued()
	log.Warn("push failed, message requeued")
	_ = msg.Ack(false)
}

func retryPublishing(msg *amqp.Delivery, attempts int) amqp.Publishing {
	headers := make(amqp.Table, len(msg.Headers)+1)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[attemptHeader] = int64(attempts)

	mode := msg.DeliveryMode
	if mode == 0 {
		mode = amqp.Persistent
	}
	return amqp.Publishing{
		Headers:         headers,
		ContentType:     msg.ContentType,
		ContentEncoding: msg.ContentEncoding,
		DeliveryMode:    mode,
		Priority:        msg.Priority,
		CorrelationId:   msg.CorrelationId,
		MessageId:       msg.MessageId,
		Timestamp:       msg.Timestamp,
		Type:            msg.Type,
		AppId:           msg.AppId,
		Body:            msg.Body,
	}
}

// retryable reports whether sending the same request again could succeed.
func retryable(err *services.DeliveryError) bool {
	switch {
	case errors.Is(err, services.ErrTransmit), errors.Is(err, services.ErrPersistence):
		return true
	case errors.Is(err, services.ErrGateway):
		return !err.IsCritical()
	default:
		return false
	}
}

// deliveryAttempts is the number of earlier failed deliveries of msg: the
// highest of our own attempt header, the quorum queue delivery count, the
// dead-letter count, and 1 for a bare broker redelivery.
func deliveryAttempts(msg *amqp.Delivery) int {
	attempts := 0
	if msg.Redelivered {
		attempts = 1
	}
	if n, ok := headerInt(msg.Headers[attemptHeader]); ok {
		attempts = max(attempts, n)
	}
	if n, ok := headerInt(msg.Headers["x-delivery-count"]); ok {
		attempts = max(attempts, n)
	}
	if deaths, ok := msg.Headers["x-death"].([]interface{}); ok && len(deaths) > 0 {
		if table, ok := deaths[0].(amqp.Table); ok {
			if n, ok := headerInt(table["count"]); ok {
				attempts = max(attempts, n)
			}
		}
	}
	return attempts
}

func headerInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}
