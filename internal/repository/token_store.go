package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/models"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/services"
)

// TokenCache mirrors token invalidation outside the database.
type TokenCache interface {
	SuppressToken(ctx context.Context, token string, ttl time.Duration) error
	ReleaseToken(ctx context.Context, token string) error
}

type TokenStore struct {
	db    *gorm.DB
	cache TokenCache
	now   func() time.Time
}

// NewTokenStore accepts a nil cache.
func NewTokenStore(db *gorm.DB, cache TokenCache) *TokenStore {
	return &TokenStore{
		db:    db,
		cache: cache,
		now:   time.Now,
	}
}

func (s *TokenStore) FindToken(ctx context.Context, id uint) (*models.RecipientToken, error) {
	var token models.RecipientToken
	err := s.db.WithContext(ctx).First(&token, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// Register upserts a device token for a user and clears any previous error.
func (s *TokenStore) Register(ctx context.Context, token *models.RecipientToken) error {
	token.ErrorAt = nil
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "platform", "error_at", "updated_at"}),
		}).Create(token).Error
	if err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.ReleaseToken(ctx, token.Token)
	}
	return nil
}

// SetErrorAt keeps the time of the first failure if the token is already marked.
func (s *TokenStore) SetErrorAt(ctx context.Context, token *models.RecipientToken) error {
	now := s.now()
	err := s.db.WithContext(ctx).Model(&models.RecipientToken{}).
		Where("id = ? AND error_at IS NULL", token.ID).
		Update("error_at", now).Error
	if err != nil {
		return err
	}
	if token.ErrorAt == nil {
		token.ErrorAt = &now
	}
	if s.cache != nil {
		_ = s.cache.SuppressToken(ctx, token.Token, 0)
	}
	return nil
}

func (s *TokenStore) RemoveErrorAt(ctx context.Context, token *models.RecipientToken) error {
	err := s.db.WithContext(ctx).Model(&models.RecipientToken{}).
		Where("id = ? AND error_at IS NOT NULL", token.ID).
		Update("error_at", gorm.Expr("NULL")).Error
	if err != nil {
		return err
	}
	token.ErrorAt = nil
	if s.cache != nil {
		_ = s.cache.ReleaseToken(ctx, token.Token)
	}
	return nil
}
