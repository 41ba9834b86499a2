package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/message"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/models"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/pkg/metrics"
)

var (
	// ErrNotFound is returned by finders when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTokenSuppressed means the token was recently reported invalid and the send was skipped.
	ErrTokenSuppressed = errors.New("token is suppressed")
)

type TokenFinder interface {
	FindToken(ctx context.Context, id uint) (*models.RecipientToken, error)
}

type TaskFinder interface {
	FindTask(ctx context.Context, id uint) (*models.CampaignTask, error)
}

// SuppressionCache answers whether a token is known to be invalid.
type SuppressionCache interface {
	IsTokenSuppressed(ctx context.Context, token string) (bool, error)
}

// Dispatcher resolves the rows a send request refers to and runs one push.
type Dispatcher struct {
	sender  *Sender
	tokens  TokenFinder
	tasks   TaskFinder
	status  TaskStore
	cache   SuppressionCache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewDispatcher accepts a nil cache, in which case no token is suppressed.
func NewDispatcher(
	sender *Sender,
	tokens TokenFinder,
	tasks TaskFinder,
	status TaskStore,
	cache SuppressionCache,
	metrics *metrics.Metrics,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		sender:  sender,
		tokens:  tokens,
		tasks:   tasks,
		status:  status,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
	}
}

// Dispatch sends req. A missing token is not an error here: the push reports
// it as a validation failure and logs it like any other attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, req *models.SendRequest) (*Response, error) {
	if req.IsCampaign() {
		return d.dispatchCampaign(ctx, req)
	}

	token, err := d.resolveToken(ctx, req.TokenID)
	if err != nil {
		return nil, err
	}
	if err := d.checkSuppressed(ctx, token, req.RequestID); err != nil {
		return nil, err
	}

	return d.sender.NewPush().
		SetUserID(req.UserID).
		SetUserToken(token).
		SetNotificationTitle(req.Title).
		SetNotificationBody(req.Body).
		SetMessageData(req.Data).
		Configure(deliveryOptions(req.Delivery)).
		Send(ctx)
}

func deliveryOptions(o models.DeliveryOptions) func(*message.Builder) {
	return func(b *message.Builder) {
		if o.HighPriority {
			b.PriorityHigh()
		}
		if o.Silent {
			b.Silent()
		}
		b.UseSound(o.Sound)
		if o.TTLSeconds != nil {
			b.TTL(*o.TTLSeconds)
		}
	}
}

// DispatchCampaignTask sends a stored campaign task.
func (d *Dispatcher) DispatchCampaignTask(ctx context.Context, taskID uint) (*Response, error) {
	return d.Dispatch(ctx, &models.SendRequest{CampaignTaskID: taskID})
}

func (d *Dispatcher) dispatchCampaign(ctx context.Context, req *models.SendRequest) (*Response, error) {
	task, err := d.tasks.FindTask(ctx, req.CampaignTaskID)
	if err != nil {
		return nil, fmt.Errorf("campaign task %d: %w", req.CampaignTaskID, err)
	}

	token, err := d.resolveToken(ctx, task.TokenID)
	if err != nil {
		return nil, err
	}
	if err := d.checkSuppressed(ctx, token, req.RequestID); err != nil {
		if errors.Is(err, ErrTokenSuppressed) {
			if serr := d.status.SetSendingStatus(ctx, task, models.SendingError); serr != nil {
				return nil, errors.Join(err, serr)
			}
		}
		return nil, err
	}

	push := d.sender.NewCampaignPush(d.status).SetTask(task)
	push.SetUserID(task.UserID).SetUserToken(token)
	return push.Send(ctx)
}

func (d *Dispatcher) resolveToken(ctx context.Context, id uint) (*models.RecipientToken, error) {
	token, err := d.tokens.FindToken(ctx, id)
	if errors.Is(err, ErrNotFound) {
		d.logger.Warn("recipient token not found", slog.Any("token_id", id))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("token %d: %w", id, err)
	}
	if token.Invalid() {
		d.logger.Debug("sending to token previously reported invalid", slog.Any("token_id", id))
	}
	return token, nil
}

func (d *Dispatcher) checkSuppressed(ctx context.Context, token *models.RecipientToken, requestID string) error {
	if d.cache == nil || token == nil || token.Token == "" {
		return nil
	}
	suppressed, err := d.cache.IsTokenSuppressed(ctx, token.Token)
	if err != nil {
		// The cache is an optimisation; fall through to a real send.
		d.logger.Warn("suppression lookup failed", slog.Any("error", err))
		return nil
	}
	if suppressed {
		d.metrics.IncSuppressed()
		d.logger.Info("skipping suppressed token",
			slog.Any("token_id", token.ID),
			slog.String("request_id", requestID),
		)
		return ErrTokenSuppressed
	}
	return nil
}
