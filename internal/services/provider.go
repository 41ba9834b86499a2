package services

import (
	"context"

	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/models"
)

// GatewayResponse is the raw HTTP outcome of a messages:send call.
type GatewayResponse struct {
	StatusCode int
	Body       []byte
}

// Transport posts an encoded message to the push gateway. Failing to obtain
// a response at all (dial error, timeout) is reported through the error.
type Transport interface {
	Name() string
	Post(ctx context.Context, body []byte) (*GatewayResponse, error)
}

// TokenStore persists token health. Both calls must be idempotent.
type TokenStore interface {
	SetErrorAt(ctx context.Context, token *models.RecipientToken) error
	RemoveErrorAt(ctx context.Context, token *models.RecipientToken) error
}

// LogStore persists delivery logs. errorJSON is nil for successful sends.
type LogStore interface {
	AddLog(ctx context.Context, userID int64, messageJSON, errorJSON []byte) error
	AddMarketingLog(ctx context.Context, taskID uint, messageJSON, errorJSON []byte) error
	LogCriticalTokenFailure(ctx context.Context, tokenID uint, messageJSON, errorJSON []byte) error
}

// TaskStore records the sending status of campaign tasks.
type TaskStore interface {
	SetSendingStatus(ctx context.Context, task *models.CampaignTask, status models.SendingStatus) error
}

// ParamReplacer substitutes params into a template string.
type ParamReplacer func(template string, params map[string]any) string
