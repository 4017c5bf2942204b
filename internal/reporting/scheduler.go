package reporting

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/astranetix/bms/pkg/models"
)

// DefaultScheduleInterval is how often the scheduler looks for due templates.
const DefaultScheduleInterval = time.Minute

// Scheduler generates reports for templates whose cron schedule is due.
// A template is due when the next run after its latest generation (or its
// creation) is not after now.
type Scheduler struct {
	service  *Service
	logger   *zap.Logger
	interval time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewScheduler(service *Service, logger *zap.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultScheduleInterval
	}
	return &Scheduler{
		service:  service,
		logger:   logger.Named("report-scheduler"),
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start runs the scheduler loop until ctx is done or Stop is called.
func (sc *Scheduler) Start(ctx context.Context) {
	sc.wg.Add(1)
	go func() {
		defer sc.wg.Done()
		ticker := time.NewTicker(sc.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := sc.RunDue(ctx, sc.service.now()); err != nil {
					sc.logger.Error("Scheduled run failed", zap.Error(err))
				}
			case <-ctx.Done():
				return
			case <-sc.stopChan:
				return
			}
		}
	}()
	sc.logger.Info("Report scheduler started", zap.Duration("interval", sc.interval))
}

// Stop halts the loop and waits for an in-flight run to finish.
func (sc *Scheduler) Stop() {
	sc.stopOnce.Do(func() { close(sc.stopChan) })
	sc.wg.Wait()
}

// RunDue generates every due template once and returns how many completed.
// A failing template is logged and does not stop the others.
func (sc *Scheduler) RunDue(ctx context.Context, now time.Time) (int, error) {
	s := sc.service
	var templates []models.ReportTemplate
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Find(&templates).Error; err != nil {
		return 0, err
	}
	ran := 0
	for i := range templates {
		tpl := &templates[i]
		sched, err := ParseSchedule(tpl.Schedule)
		if err != nil {
			sc.logger.Warn("Skipping template with invalid schedule",
				zap.String("template_id", tpl.ID.String()), zap.Error(err))
			continue
		}
		if sched == nil {
			continue
		}
		last := tpl.CreatedAt
		var latest models.ReportGeneration
		res := s.db.WithContext(ctx).Where("template_id = ?", tpl.ID).Order("created_at DESC").Limit(1).Find(&latest)
		if res.Error != nil {
			return ran, res.Error
		}
		if res.RowsAffected > 0 {
			last = latest.CreatedAt
		}
		if sched.Next(last).After(now) {
			continue
		}
		params := sched.Parameters
		if params == nil {
			params = map[string]interface{}{}
		}
		if _, err := s.generate(ctx, tpl, tpl.ISPID, sched.Format, params); err != nil {
			sc.logger.Error("Scheduled report failed",
				zap.String("template_id", tpl.ID.String()), zap.Error(err))
			continue
		}
		ran++
	}
	return ran, nil
}
