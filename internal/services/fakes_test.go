package services

import (
	"context"
	"sync"
	"time"

	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/models"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/pkg/logger"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/pkg/metrics"
)

var testNow = time.Unix(1_700_000_000, 0)

type fakeTransport struct {
	mu     sync.Mutex
	resp   *GatewayResponse
	err    error
	bodies [][]byte
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Post(_ context.Context, body []byte) (*GatewayResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies = append(f.bodies, body)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bodies)
}

type fakeTokenStore struct {
	setCalls    int
	removeCalls int
	setErr      error
	removeErr   error
}

func (f *fakeTokenStore) SetErrorAt(_ context.Context, token *models.RecipientToken) error {
	f.setCalls++
	if f.setErr != nil {
		return f.setErr
	}
	now := testNow
	token.ErrorAt = &now
	return nil
}

func (f *fakeTokenStore) RemoveErrorAt(_ context.Context, token *models.RecipientToken) error {
	f.removeCalls++
	if f.removeErr != nil {
		return f.removeErr
	}
	token.ErrorAt = nil
	return nil
}

type logEntry struct {
	id          uint64
	messageJSON []byte
	errorJSON   []byte
}

type fakeLogStore struct {
	userLogs      []logEntry
	marketingLogs []logEntry
	criticalLogs  []logEntry
	addErr        error
	criticalErr   error
}

func (f *fakeLogStore) AddLog(_ context.Context, userID int64, messageJSON, errorJSON []byte) error {
	f.userLogs = append(f.userLogs, logEntry{uint64(userID), messageJSON, errorJSON})
	return f.addErr
}

func (f *fakeLogStore) AddMarketingLog(_ context.Context, taskID uint, messageJSON, errorJSON []byte) error {
	f.marketingLogs = append(f.marketingLogs, logEntry{uint64(taskID), messageJSON, errorJSON})
	return f.addErr
}

func (f *fakeLogStore) LogCriticalTokenFailure(_ context.Context, tokenID uint, messageJSON, errorJSON []byte) error {
	f.criticalLogs = append(f.criticalLogs, logEntry{uint64(tokenID), messageJSON, errorJSON})
	return f.criticalErr
}

func (f *fakeLogStore) total() int {
	return len(f.userLogs) + len(f.marketingLogs)
}

type fakeTaskStore struct {
	statuses []models.SendingStatus
	err      error
}

func (f *fakeTaskStore) SetSendingStatus(_ context.Context, task *models.CampaignTask, status models.SendingStatus) error {
	f.statuses = append(f.statuses, status)
	if f.err != nil {
		return f.err
	}
	task.StatusSending = status
	return nil
}

type harness struct {
	transport *fakeTransport
	tokens    *fakeTokenStore
	logs      *fakeLogStore
	tasks     *fakeTaskStore
	metrics   *metrics.Metrics
	sender    *Sender
}

func newHarness(resp *GatewayResponse, opts ...Option) *harness {
	h := &harness{
		transport: &fakeTransport{resp: resp},
		tokens:    &fakeTokenStore{},
		logs:      &fakeLogStore{},
		tasks:     &fakeTaskStore{},
		metrics:   metrics.New(),
	}
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	h.sender = NewSender(h.transport, h.tokens, h.logs, h.metrics, logger.Discard(), opts...)
	return h
}

func okResponse() *GatewayResponse {
	return &GatewayResponse{StatusCode: 200, Body: []byte(`{"name":"projects/demo/messages/1"}`)}
}

func validToken() *models.RecipientToken {
	return &models.RecipientToken{ID: 9, UserID: 42, Token: "device-token"}
}

type panickingTransport struct{}

func (panickingTransport) Name() string { return "panicking" }

func (panickingTransport) Post(context.Context, []byte) (*GatewayResponse, error) {
	panic("transport exploded")
}
