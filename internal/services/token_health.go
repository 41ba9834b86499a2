package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/models"
)

// TokenHealth updates the error timestamp of recipient tokens.
type TokenHealth struct {
	store  TokenStore
	logger *slog.Logger
}

func NewTokenHealth(store TokenStore, logger *slog.Logger) *TokenHealth {
	return &TokenHealth{
		store:  store,
		logger: logger,
	}
}

func (h *TokenHealth) MarkInvalid(ctx context.Context, token *models.RecipientToken) error {
	if err := h.store.SetErrorAt(ctx, token); err != nil {
		h.logger.Error("failed to mark token invalid", slog.Any("token_id", token.ID), slog.Any("error", err))
		return fmt.Errorf("set token error: %w", err)
	}
	h.logger.Warn("token marked invalid", slog.Any("token_id", token.ID), slog.Int64("user_id", token.UserID))
	return nil
}

func (h *TokenHealth) MarkHealthy(ctx context.Context, token *models.RecipientToken) error {
	if err := h.store.RemoveErrorAt(ctx, token); err != nil {
		h.logger.Error("failed to clear token error", slog.Any("token_id", token.ID), slog.Any("error", err))
		return fmt.Errorf("clear token error: %w", err)
	}
	return nil
}
