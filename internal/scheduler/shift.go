// Package scheduler runs the end-of-day task shift: farm tasks still
// open when the working day closes are moved to the next day and
// marked not completed.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/agrifield/backend/internal/config"
	"github.com/agrifield/backend/internal/domain"
	"github.com/agrifield/backend/internal/eventlog"
	"github.com/agrifield/backend/internal/repository"
)

// shiftEndpoint is the API surface recorded on audit entries the shift
// job produces. The shift is not an HTTP call, but entries keep the
// same shape as user-driven ones.
const shiftEndpoint = "/api/v1/farms/tasks/"

// TaskShifter rolls incomplete farm tasks forward on a cron schedule.
type TaskShifter struct {
	cron      *cron.Cron
	farmTasks repository.FarmTaskRepository
	events    *eventlog.Producer
	location  *time.Location
	spec      string
	logger    *zap.Logger
}

// NewTaskShifter builds the shifter from config. An unknown timezone
// falls back to UTC.
func NewTaskShifter(
	cfg config.SchedulerConfig,
	farmTasks repository.FarmTaskRepository,
	events *eventlog.Producer,
	logger *zap.Logger,
) *TaskShifter {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("unknown scheduler timezone, using UTC", zap.String("timezone", cfg.Timezone))
		loc = time.UTC
	}
	return &TaskShifter{
		cron:      cron.New(cron.WithLocation(loc)),
		farmTasks: farmTasks,
		events:    events,
		location:  loc,
		spec:      cfg.ShiftCron,
		logger:    logger.With(zap.String("component", "task_shifter")),
	}
}

// Start registers the cron entry and starts the scheduler.
func (s *TaskShifter) Start() error {
	if _, err := s.cron.AddFunc(s.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		s.Shift(ctx)
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("task shift scheduled", zap.String("cron", s.spec))
	return nil
}

// Stop halts the scheduler and waits for a running shift to finish.
func (s *TaskShifter) Stop() {
	<-s.cron.Stop().Done()
}

// Shift moves every farm task assigned up to the end of today that is
// not completed onto tomorrow, marking it not completed, and records
// one audit entry when anything moved.
func (s *TaskShifter) Shift(ctx context.Context) {
	now := time.Now().In(s.location)
	endOfDay := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, s.location)
	tomorrow := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.location).AddDate(0, 0, 1)

	before, err := s.farmTasks.ListIncompleteDue(ctx, endOfDay)
	if err != nil {
		s.logger.Error("failed to list incomplete farm tasks", zap.Error(err))
		return
	}
	if len(before) == 0 {
		return
	}

	shifted, err := s.farmTasks.ShiftIncompleteTo(ctx, endOfDay, tomorrow)
	if err != nil {
		s.logger.Error("failed to shift farm tasks", zap.Error(err))
		return
	}

	s.logger.Info("incomplete farm tasks shifted",
		zap.Int("count", len(shifted)),
		zap.Time("to", tomorrow),
	)
	s.events.Log(ctx, eventlog.Request{
		Endpoint: shiftEndpoint,
		Method:   "PATCH",
	}, eventlog.Change{
		Type:     domain.EventLogTypeCron,
		Resource: domain.ResourceFarmTasks,
		OldData:  before,
		NewData:  shifted,
	})
}
