package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/message"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/models"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/pkg/logger"
)

type fakeFinder struct {
	tokens  map[uint]*models.RecipientToken
	tasks   map[uint]*models.CampaignTask
	findErr error
}

func (f *fakeFinder) FindToken(_ context.Context, id uint) (*models.RecipientToken, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	if tok, ok := f.tokens[id]; ok {
		return tok, nil
	}
	return nil, ErrNotFound
}

func (f *fakeFinder) FindTask(_ context.Context, id uint) (*models.CampaignTask, error) {
	if task, ok := f.tasks[id]; ok {
		return task, nil
	}
	return nil, ErrNotFound
}

type fakeSuppression struct {
	suppressed map[string]bool
	err        error
}

func (f *fakeSuppression) IsTokenSuppressed(_ context.Context, token string) (bool, error) {
	return f.suppressed[token], f.err
}

func newDispatcher(h *harness, finder *fakeFinder, cache SuppressionCache) *Dispatcher {
	return NewDispatcher(h.sender, finder, finder, h.tasks, cache, h.metrics, logger.Discard())
}

func TestDispatch_Direct(t *testing.T) {
	h := newHarness(okResponse())
	finder := &fakeFinder{tokens: map[uint]*models.RecipientToken{9: validToken()}}
	d := newDispatcher(h, finder, nil)

	resp, err := d.Dispatch(context.Background(), &models.SendRequest{
		UserID:  42,
		TokenID: 9,
		Title:   "Hello",
		Body:    "World",
		Data:    map[string]string{"k": "v"},
	})

	require.NoError(t, err)
	assert.True(t, resp.Success())
	sent := decodeSent(t, h.transport.bodies[0])
	assert.Equal(t, "Hello", sent.Title())
	assert.Equal(t, "v", sent.Data()["k"])
	assert.Len(t, h.logs.userLogs, 1)
}

func TestDispatch_MissingTokenIsValidationFailure(t *testing.T) {
	h := newHarness(okResponse())
	d := newDispatcher(h, &fakeFinder{}, nil)

	resp, err := d.Dispatch(context.Background(), &models.SendRequest{UserID: 42, TokenID: 404})

	require.NoError(t, err)
	assert.ErrorIs(t, resp.Err(), ErrValidation)
	assert.Equal(t, 0, h.transport.calls())
	assert.Len(t, h.logs.userLogs, 1)
}

func TestDispatch_FinderError(t *testing.T) {
	h := newHarness(okResponse())
	d := newDispatcher(h, &fakeFinder{findErr: errors.New("connection reset")}, nil)

	resp, err := d.Dispatch(context.Background(), &models.SendRequest{UserID: 42, TokenID: 9})

	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, 0, h.logs.total())
}

func TestDispatch_SuppressedToken(t *testing.T) {
	h := newHarness(okResponse())
	finder := &fakeFinder{tokens: map[uint]*models.RecipientToken{9: validToken()}}
	cache := &fakeSuppression{suppressed: map[string]bool{"device-token": true}}
	d := newDispatcher(h, finder, cache)

	resp, err := d.Dispatch(context.Background(), &models.SendRequest{UserID: 42, TokenID: 9})

	assert.ErrorIs(t, err, ErrTokenSuppressed)
	assert.Nil(t, resp)
	assert.Equal(t, 0, h.transport.calls())
	assert.Equal(t, 0, h.logs.total())

	expected := `
# HELP push_tokens_suppressed_total Sends skipped because the token is known to be invalid.
# TYPE push_tokens_suppressed_total counter
push_tokens_suppressed_total 1
`
	require.NoError(t, testutil.GatherAndCompare(h.metrics.Registry(), strings.NewReader(expected), "push_tokens_suppressed_total"))
}

func TestDispatch_SuppressionLookupFailureStillSends(t *testing.T) {
	h := newHarness(okResponse())
	finder := &fakeFinder{tokens: map[uint]*models.RecipientToken{9: validToken()}}
	d := newDispatcher(h, finder, &fakeSuppression{err: errors.New("redis down")})

	resp, err := d.Dispatch(context.Background(), &models.SendRequest{UserID: 42, TokenID: 9})

	require.NoError(t, err)
	assert.True(t, resp.Success())
	assert.Equal(t, 1, h.transport.calls())
}

func TestDispatchCampaignTask(t *testing.T) {
	h := newHarness(okResponse())
	task := campaignTask()
	finder := &fakeFinder{
		tokens: map[uint]*models.RecipientToken{9: validToken()},
		tasks:  map[uint]*models.CampaignTask{77: task},
	}
	d := newDispatcher(h, finder, nil)

	resp, err := d.DispatchCampaignTask(context.Background(), 77)

	require.NoError(t, err)
	assert.True(t, resp.Success())
	assert.Equal(t, "Hi Ann", decodeSent(t, h.transport.bodies[0]).Title())
	assert.Equal(t, models.SendingSent, task.StatusSending)
	assert.Len(t, h.logs.marketingLogs, 1)
}

func TestDispatchCampaignTask_NotFound(t *testing.T) {
	h := newHarness(okResponse())
	d := newDispatcher(h, &fakeFinder{}, nil)

	_, err := d.DispatchCampaignTask(context.Background(), 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDispatchCampaignTask_SuppressedTokenMarksError(t *testing.T) {
	h := newHarness(okResponse())
	task := campaignTask()
	finder := &fakeFinder{
		tokens: map[uint]*models.RecipientToken{9: validToken()},
		tasks:  map[uint]*models.CampaignTask{77: task},
	}
	cache := &fakeSuppression{suppressed: map[string]bool{"device-token": true}}
	d := newDispatcher(h, finder, cache)

	_, err := d.DispatchCampaignTask(context.Background(), 77)

	assert.ErrorIs(t, err, ErrTokenSuppressed)
	assert.Equal(t, models.SendingError, task.StatusSending)
	assert.Equal(t, 0, h.transport.calls())
}

func TestDispatch_DeliveryOptions(t *testing.T) {
	h := newHarness(okResponse())
	finder := &fakeFinder{tokens: map[uint]*models.RecipientToken{9: validToken()}}
	d := newDispatcher(h, finder, nil)
	ttl := 120

	_, err := d.Dispatch(context.Background(), &models.SendRequest{
		UserID:   42,
		TokenID:  9,
		Title:    "Hello",
		Delivery: models.DeliveryOptions{HighPriority: true, Sound: true, TTLSeconds: &ttl},
	})
	require.NoError(t, err)

	sent := decodeSent(t, h.transport.bodies[0])
	assert.Equal(t, message.PriorityHigh, sent.Priority())
	assert.True(t, sent.UseSound())
	assert.False(t, sent.Silent())
	got, ok := sent.TTL()
	require.True(t, ok)
	assert.Equal(t, 120, got)
}
