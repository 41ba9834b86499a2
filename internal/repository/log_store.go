package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/models"
)

// LogStore writes push delivery logs.
type LogStore struct {
	db *gorm.DB
}

func NewLogStore(db *gorm.DB) *LogStore {
	return &LogStore{db: db}
}

func (s *LogStore) AddLog(ctx context.Context, userID int64, messageJSON, errorJSON []byte) error {
	row := models.PushLog{
		ID:      uuid.NewString(),
		UserID:  userID,
		Message: string(messageJSON),
		Error:   optionalText(errorJSON),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *LogStore) AddMarketingLog(ctx context.Context, taskID uint, messageJSON, errorJSON []byte) error {
	row := models.MarketingPushLog{
		ID:      uuid.NewString(),
		TaskID:  taskID,
		Message: string(messageJSON),
		Error:   optionalText(errorJSON),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *LogStore) LogCriticalTokenFailure(ctx context.Context, tokenID uint, messageJSON, errorJSON []byte) error {
	row := models.TokenErrorLog{
		ID:      uuid.NewString(),
		TokenID: tokenID,
		Message: string(messageJSON),
		Error:   string(errorJSON),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func optionalText(b []byte) *string {
	if len(b) == 0 {
		return nil
	}
	s := string(b)
	return &s
}
