package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/models"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/services"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/pkg/logger"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/pkg/metrics"
)

type ackRecorder struct {
	acked    bool
	nacked   bool
	requeued bool
	rejected bool
}

func (a *ackRecorder) Ack(uint64, bool) error {
	a.acked = true
	return nil
}

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked = true
	a.requeued = requeue
	return nil
}

func (a *ackRecorder) Reject(uint64, bool) error {
	a.rejected = true
	return nil
}

type stubDispatcher struct {
	resp *services.Response
	err  error
	got  *models.SendRequest
}

func (s *stubDispatcher) Dispatch(_ context.Context, req *models.SendRequest) (*services.Response, error) {
	s.got = req
	return s.resp, s.err
}

// responseFor runs a real push against a canned gateway answer to obtain a Response.
func responseFor(t *testing.T, status int, body string, transportErr error) *services.Response {
	t.Helper()
	sender := services.NewSender(
		&cannedTransport{status: status, body: body, err: transportErr},
		nopTokens{},
		nopLogs{},
		metrics.New(),
		logger.Discard(),
	)
	resp, err := sender.NewPush().
		SetUserID(1).
		SetUserToken(&models.RecipientToken{ID: 1, Token: "tok"}).
		Send(context.Background())
	require.NoError(t, err)
	return resp
}

type cannedTransport struct {
	status int
	body   string
	err    error
}

func (c *cannedTransport) Name() string { return "canned" }

func (c *cannedTransport) Post(context.Context, []byte) (*services.GatewayResponse, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &services.GatewayResponse{StatusCode: c.status, Body: []byte(c.body)}, nil
}

type nopTokens struct{}

func (nopTokens) SetErrorAt(context.Context, *models.RecipientToken) error    { return nil }
func (nopTokens) RemoveErrorAt(context.Context, *models.RecipientToken) error { return nil }

type nopLogs struct{}

func (nopLogs) AddLog(context.Context, int64, []byte, []byte) error                 { return nil }
func (nopLogs) AddMarketingLog(context.Context, uint, []byte, []byte) error         { return nil }
func (nopLogs) LogCriticalTokenFailure(context.Context, uint, []byte, []byte) error { return nil }

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type publishRecorder struct {
	sent []published
	err  error
}

func (p *publishRecorder) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{exchange, key, msg})
	return nil
}

func newTestConsumer(d Dispatcher) *PushConsumer {
	return NewPushConsumer(nil, d, metrics.New(), logger.Discard(), 3)
}

func delivery(body string, ack *ackRecorder) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		Exchange:     "notifications.direct",
		RoutingKey:   "push",
		Body:         []byte(body),
	}
}

func TestHandleDelivery(t *testing.T) {
	unregistered := `{"error":{"details":[{"errorCode":"UNREGISTERED"}]}}`

	tests := []struct {
		name            string
		resp            func(t *testing.T) *services.Response
		err             error
		wantRepublished bool
	}{
		{"success", func(t *testing.T) *services.Response { return responseFor(t, 200, `{}`, nil) }, nil, false},
		{"suppressed", nil, services.ErrTokenSuppressed, false},
		{"critical gateway", func(t *testing.T) *services.Response { return responseFor(t, 404, unregistered, nil) }, nil, false},
		{"transient gateway", func(t *testing.T) *services.Response { return responseFor(t, 503, `{}`, nil) }, nil, true},
		{"transmit", func(t *testing.T) *services.Response { return responseFor(t, 0, "", errors.New("timeout")) }, nil, true},
		{"dispatch error", nil, errors.New("db down"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubDispatcher{err: tt.err}
			if tt.resp != nil {
				stub.resp = tt.resp(t)
			}
			ack := &ackRecorder{}
			pub := &publishRecorder{}

			_ = newTestConsumer(stub).handleDelivery(context.Background(), pub, delivery(`{"user_id":42,"token_id":9,"title":"t"}`, ack))

			assert.True(t, ack.acked)
			assert.False(t, ack.nacked)
			if tt.wantRepublished {
				require.Len(t, pub.sent, 1)
				assert.Equal(t, "notifications.direct", pub.sent[0].exchange)
				assert.Equal(t, "push", pub.sent[0].key)
				assert.Equal(t, int64(1), pub.sent[0].msg.Headers[attemptHeader])
				assert.Equal(t, amqp.Persistent, pub.sent[0].msg.DeliveryMode)
			} else {
				assert.Empty(t, pub.sent)
			}
			require.NotNil(t, stub.got)
			assert.EqualValues(t, 42, stub.got.UserID)
			assert.NotEmpty(t, stub.got.RequestID)
		})
	}
}

func TestHandleDelivery_ValidationFailureIsAcked(t *testing.T) {
	stub := &stubDispatcher{}
	sender := services.NewSender(&cannedTransport{status: 200}, nopTokens{}, nopLogs{}, metrics.New(), logger.Discard())
	resp, err := sender.NewPush().Send(context.Background())
	require.NoError(t, err)
	stub.resp = resp
	ack := &ackRecorder{}
	pub := &publishRecorder{}

	require.NoError(t, newTestConsumer(stub).handleDelivery(context.Background(), pub, delivery(`{}`, ack)))
	assert.True(t, ack.acked)
	assert.Empty(t, pub.sent)
}

func TestHandleDelivery_MalformedIsRejected(t *testing.T) {
	stub := &stubDispatcher{}
	ack := &ackRecorder{}

	err := newTestConsumer(stub).handleDelivery(context.Background(), &publishRecorder{}, delivery(`{not json`, ack))

	assert.Error(t, err)
	assert.True(t, ack.rejected)
	assert.Nil(t, stub.got)
}

func TestHandleDelivery_KeepsRequestID(t *testing.T) {
	stub := &stubDispatcher{err: services.ErrTokenSuppressed}
	ack := &ackRecorder{}

	_ = newTestConsumer(stub).handleDelivery(context.Background(), &publishRecorder{}, delivery(`{"request_id":"abc"}`, ack))
	assert.Equal(t, "abc", stub.got.RequestID)
}

func TestHandleDelivery_DeadLettersAfterMaxAttempts(t *testing.T) {
	stub := &stubDispatcher{err: errors.New("db down")}
	ack := &ackRecorder{}
	pub := &publishRecorder{}
	msg := delivery(`{}`, ack)
	msg.Headers = amqp.Table{"x-delivery-count": int64(3)}

	_ = newTestConsumer(stub).handleDelivery(context.Background(), pub, msg)

	assert.True(t, ack.nacked)
	assert.False(t, ack.requeued)
	assert.False(t, ack.acked)
	assert.Empty(t, pub.sent)
}

// A classic queue redelivers without any count header; the attempt header
// carried by republished copies still bounds the retries.
func TestHandleDelivery_ClassicQueueRedeliveriesReachDeadLetter(t *testing.T) {
	stub := &stubDispatcher{err: errors.New("fcm unreachable")}
	c := NewPushConsumer(nil, stub, metrics.New(), logger.Discard(), 4)
	pub := &publishRecorder{}

	msg := delivery(`{"user_id":42,"token_id":9}`, &ackRecorder{})
	msg.Redelivered = true

	dispatches := 0
	for i := 0; i < 10; i++ {
		ack := &ackRecorder{}
		msg.Acknowledger = ack
		_ = c.handleDelivery(context.Background(), pub, msg)
		dispatches++

		if ack.nacked {
			assert.False(t, ack.requeued)
			break
		}
		require.True(t, ack.acked)
		next := pub.sent[len(pub.sent)-1].msg
		msg = amqp.Delivery{
			Acknowledger: ack,
			Exchange:     "notifications.direct",
			RoutingKey:   "push",
			Redelivered:  true,
			Headers:      next.Headers,
			Body:         next.Body,
		}
	}

	assert.Equal(t, 3, dispatches)
	assert.Len(t, pub.sent, 2)
}

func TestHandleDelivery_PublishFailureRequeues(t *testing.T) {
	stub := &stubDispatcher{err: errors.New("db down")}
	ack := &ackRecorder{}

	_ = newTestConsumer(stub).handleDelivery(context.Background(), &publishRecorder{err: errors.New("channel closed")}, delivery(`{}`, ack))

	assert.True(t, ack.nacked)
	assert.True(t, ack.requeued)
	assert.False(t, ack.acked)
}

func TestRetryPublishing_KeepsHeaders(t *testing.T) {
	msg := amqp.Delivery{
		Headers:      amqp.Table{"trace": "abc", attemptHeader: int64(1)},
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Body:         []byte(`{}`),
	}

	pub := retryPublishing(&msg, 2)

	assert.Equal(t, "abc", pub.Headers["trace"])
	assert.Equal(t, int64(2), pub.Headers[attemptHeader])
	assert.Equal(t, int64(1), msg.Headers[attemptHeader])
	assert.Equal(t, amqp.Transient, pub.DeliveryMode)
	assert.Equal(t, "application/json", pub.ContentType)
}

func TestDeliveryAttempts(t *testing.T) {
	tests := []struct {
		name string
		msg  amqp.Delivery
		want int
	}{
		{"fresh", amqp.Delivery{}, 0},
		{"redelivered", amqp.Delivery{Redelivered: true}, 1},
		{"quorum count", amqp.Delivery{Headers: amqp.Table{"x-delivery-count": int64(4)}}, 4},
		{"x-death", amqp.Delivery{Headers: amqp.Table{"x-death": []interface{}{amqp.Table{"count": int64(2)}}}}, 2},
		{"unrelated headers", amqp.Delivery{Headers: amqp.Table{"foo": "bar"}}, 0},
		{"attempt header", amqp.Delivery{Redelivered: true, Headers: amqp.Table{attemptHeader: int64(3)}}, 3},
		{"attempt header int32", amqp.Delivery{Headers: amqp.Table{attemptHeader: int32(2)}}, 2},
		{"highest wins", amqp.Delivery{Headers: amqp.Table{attemptHeader: int64(1), "x-delivery-count": int64(2)}}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.msg
			assert.Equal(t, tt.want, deliveryAttempts(&msg))
		})
	}
}
