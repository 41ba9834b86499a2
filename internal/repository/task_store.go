package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/models"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/services"
)

// TaskStore reads campaign tasks and records their sending status.
type TaskStore struct {
	db *gorm.DB
}

func NewTaskStore(db *gorm.DB) *TaskStore {
	return &TaskStore{db: db}
}

// FindTask loads a task together with its campaign template.
func (s *TaskStore) FindTask(ctx context.Context, id uint) (*models.CampaignTask, error) {
	var task models.CampaignTask
	err := s.db.WithContext(ctx).Preload("Push").First(&task, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// PendingTaskIDs returns up to limit tasks still waiting to be sent, oldest first.
func (s *TaskStore) PendingTaskIDs(ctx context.Context, limit int) ([]uint, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.CampaignTask{}).
		Where("status_sending = ?", models.SendingPending).
		Order("id").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (s *TaskStore) SetSendingStatus(ctx context.Context, task *models.CampaignTask, status models.SendingStatus) error {
	err := s.db.WithContext(ctx).Model(&models.CampaignTask{}).
		Where("id = ?", task.ID).
		Update("status_sending", status).Error
	if err != nil {
		return err
	}
	task.StatusSending = status
	return nil
}
