package models

import "time"

// SendRequest is the payload consumed from the push queue and accepted by the
// HTTP API. Each request targets exactly one recipient token.
type SendRequest struct {
	RequestID      string            `json:"request_id"`
	CreatedAt      time.Time         `json:"created_at"`
	UserID         int64             `json:"user_id"`
	TokenID        uint              `json:"token_id"`
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	Data           map[string]string `json:"data,omitempty"`
	CampaignTaskID uint              `json:"campaign_task_id,omitempty"`
	Delivery       DeliveryOptions   `json:"delivery"`
}

// DeliveryOptions tune how the gateway delivers a direct push.
type DeliveryOptions struct {
	HighPriority bool `json:"high_priority,omitempty"`
	Silent       bool `json:"silent,omitempty"`
	Sound        bool `json:"sound,omitempty"`
	TTLSeconds   *int `json:"ttl_seconds,omitempty"`
}

// IsCampaign reports whether the request refers to a stored campaign task.
func (r *SendRequest) IsCampaign() bool {
	return r.CampaignTaskID != 0
}
