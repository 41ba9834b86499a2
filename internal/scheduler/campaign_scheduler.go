// Package scheduler periodically sends pending campaign tasks.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/services"
)

type PendingTasks interface {
	PendingTaskIDs(ctx context.Context, limit int) ([]uint, error)
}

type TaskDispatcher interface {
	DispatchCampaignTask(ctx context.Context, taskID uint) (*services.Response, error)
}

// CampaignScheduler sends pending campaign tasks one at a time on a cron
// schedule. Runs never overlap.
type CampaignScheduler struct {
	cron       *cron.Cron
	tasks      PendingTasks
	dispatcher TaskDispatcher
	logger     *slog.Logger
	schedule   string
	batchSize  int
	mu         sync.Mutex
}

func NewCampaignScheduler(tasks PendingTasks, dispatcher TaskDispatcher, logger *slog.Logger, schedule string, batchSize int) *CampaignScheduler {
	return &CampaignScheduler{
		cron:       cron.New(),
		tasks:      tasks,
		dispatcher: dispatcher,
		logger:     logger,
		schedule:   schedule,
		batchSize:  batchSize,
	}
}

// Run schedules the job and blocks until ctx is cancelled.
func (s *CampaignScheduler) Run(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		s.RunOnce(runCtx)
	})
	if err != nil {
		return err
	}

	s.logger.Info("starting campaign scheduler", slog.String("cron", s.schedule))
	s.cron.Start()

	<-ctx.Done()
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
	}
	s.logger.Info("campaign scheduler stopped")
	return nil
}

// RunOnce sends one batch of pending tasks and returns how many were delivered.
func (s *CampaignScheduler) RunOnce(ctx context.Context) int {
	if !s.mu.TryLock() {
		s.logger.Debug("previous campaign run still in progress")
		return 0
	}
	defer s.mu.Unlock()

	ids, err := s.tasks.PendingTaskIDs(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("failed to load pending campaign tasks", slog.Any("error", err))
		return 0
	}

	delivered := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		resp, err := s.dispatcher.DispatchCampaignTask(ctx, id)
		if err != nil {
			s.logger.Error("campaign task dispatch failed", slog.Any("task_id", id), slog.Any("error", err))
			continue
		}
		if resp.Success() {
			delivered++
		}
	}
	if len(ids) > 0 {
		s.logger.Info("campaign run finished", slog.Int("pending", len(ids)), slog.Int("delivered", delivered))
	}
	return delivered
}
