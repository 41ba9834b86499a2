package repository

import (
	"gorm.io/gorm"

	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/models"
)

// Migrate creates or updates every table the push service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.RecipientToken{},
		&models.CampaignTemplate{},
		&models.CampaignTask{},
		&models.PushLog{},
		&models.MarketingPushLog{},
		&models.TokenErrorLog{},
	)
}
