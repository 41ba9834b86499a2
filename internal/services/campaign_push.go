package services

import (
	"context"
	"errors"

	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/message"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/models"
)

var errTaskStoreMissing = errors.New("campaign task store is not configured")

// CampaignPush renders a campaign task template and sends it to the task's
// recipient. The task's sending status is updated once per Send.
type CampaignPush struct {
	*Push
	flow *campaignFlow
}

// NewCampaignPush starts a push for a campaign task; bind the task with SetTask.
func (s *Sender) NewCampaignPush(tasks TaskStore) *CampaignPush {
	f := &campaignFlow{tasks: tasks, replace: s.replace}
	return &CampaignPush{
		Push: &Push{sender: s, flow: f},
		flow: f,
	}
}

func (c *CampaignPush) SetTask(task *models.CampaignTask) *CampaignPush {
	c.flow.task = task
	return c
}

type campaignFlow struct {
	task    *models.CampaignTask
	tasks   TaskStore
	replace ParamReplacer
}

func (f *campaignFlow) name() string { return "campaign" }

func (f *campaignFlow) validate(*Push) *DeliveryError {
	if f.task == nil {
		return newDeliveryError(ErrValidation, "campaign task is not set", nil)
	}
	return nil
}

func (f *campaignFlow) buildMessage(p *Push) (*message.Builder, error) {
	params, err := f.task.ParamMap()
	if err != nil {
		return nil, newDeliveryError(ErrValidation, "campaign params are invalid", err)
	}
	meta, err := f.task.Push.MetaParamList()
	if err != nil {
		return nil, newDeliveryError(ErrValidation, "campaign meta params are invalid", err)
	}

	p.SetNotificationTitle(f.replace(f.task.Push.Title, params))
	p.SetNotificationBody(f.replace(f.task.Push.Body, params))
	if len(meta) > 0 {
		data := make(map[string]string, len(meta))
		for _, m := range meta {
			data[m.Key] = f.replace(m.Value, params)
		}
		p.SetMessageData(data)
	}
	return baseMessage(p), nil
}

func (f *campaignFlow) settle(ctx context.Context, a *attempt) error {
	if f.task == nil {
		return nil
	}
	if f.tasks == nil {
		return errTaskStoreMissing
	}
	status := models.SendingSent
	if a.err != nil {
		status = models.SendingError
	}
	return f.tasks.SetSendingStatus(ctx, f.task, status)
}

func (f *campaignFlow) writeLog(ctx context.Context, logs LogStore, a *attempt) error {
	var taskID uint
	if f.task != nil {
		taskID = f.task.ID
	}
	return logs.AddMarketingLog(ctx, taskID, a.messageJSON, a.errorJSON())
}
