package models

import "time"

// PushLog records every direct push attempt for a user.
type PushLog struct {
	ID        string  `gorm:"primaryKey" json:"id"`
	UserID    int64   `gorm:"index" json:"user_id"`
	Message   string  `gorm:"type:text" json:"message"`
	Error     *string `gorm:"type:text" json:"error,omitempty"`
	CreatedAt time.Time
}

func (PushLog) TableName() string { return "push_logs" }

// MarketingPushLog records every campaign push attempt.
type MarketingPushLog struct {
	ID        string  `gorm:"primaryKey" json:"id"`
	TaskID    uint    `gorm:"index" json:"task_id"`
	Message   string  `gorm:"type:text" json:"message"`
	Error     *string `gorm:"type:text" json:"error,omitempty"`
	CreatedAt time.Time
}

func (MarketingPushLog) TableName() string { return "marketing_push_logs" }

// TokenErrorLog keeps the detail of a failure that invalidated a token.
type TokenErrorLog struct {
	ID        string `gorm:"primaryKey" json:"id"`
	TokenID   uint   `gorm:"index" json:"token_id"`
	Message   string `gorm:"type:text" json:"message"`
	Error     string `gorm:"type:text" json:"error"`
	CreatedAt time.Time
}

func (TokenErrorLog) TableName() string { return "firebase_error_logs" }
