package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SendingStatus tracks whether a campaign task has been pushed.
type SendingStatus string

const (
	SendingPending SendingStatus = "PENDING"
	SendingSent    SendingStatus = "SENT"
	SendingError   SendingStatus = "ERROR"
)

// CampaignTemplate is a marketing push whose title, body and meta params may
// contain {{placeholders}}.
type CampaignTemplate struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	MetaParams string `gorm:"type:text" json:"meta_params"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (CampaignTemplate) TableName() string { return "marketing_pushes" }

// MetaParam is one key/value pair delivered as message data.
type MetaParam struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// MetaParamList decodes MetaParams. An empty column yields no params.
func (c *CampaignTemplate) MetaParamList() ([]MetaParam, error) {
	if c.MetaParams == "" {
		return nil, nil
	}
	var params []MetaParam
	if err := json.Unmarshal([]byte(c.MetaParams), &params); err != nil {
		return nil, fmt.Errorf("campaign %d meta params: %w", c.ID, err)
	}
	return params, nil
}

// CampaignTask binds a campaign template to one recipient along with the
// parameters used to render it.
type CampaignTask struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	PushID        uint             `gorm:"index" json:"push_id"`
	Push          CampaignTemplate `gorm:"foreignKey:PushID" json:"push"`
	UserID        int64            `json:"user_id"`
	TokenID       uint             `json:"token_id"`
	Params        string           `gorm:"type:text" json:"params"`
	StatusSending SendingStatus    `gorm:"index;default:PENDING" json:"status_sending"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func (CampaignTask) TableName() string { return "marketing_push_tasks" }

// ParamMap decodes Params into template variables.
func (t *CampaignTask) ParamMap() (map[string]any, error) {
	if t.Params == "" {
		return map[string]any{}, nil
	}
	params := map[string]any{}
	if err := json.Unmarshal([]byte(t.Params), &params); err != nil {
		return nil, fmt.Errorf("campaign task %d params: %w", t.ID, err)
	}
	return params, nil
}
