package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"go.uber.org/zap"

	"github.com/bowerhall/graphmem/internal/logger"
)

// Consolidator is the single entrypoint the scheduler drives.
type Consolidator interface {
	ConsolidateAll(ctx context.Context) error
}

type Config struct {
	// Schedule is a standard 5-field cron expression.
	Schedule string
	// MaxCPUPercent skips a run when the host is busier than this.
	MaxCPUPercent float64
}

// Scheduler fires background consolidation on a cron cadence, with a
// resource guard so it yields to foreground load.
type Scheduler struct {
	cron         *cron.Cron
	consolidator Consolidator
	cfg          Config
}

func New(consolidator Consolidator, cfg Config) *Scheduler {
	if cfg.Schedule == "" {
		cfg.Schedule = "17 3 * * *"
	}
	if cfg.MaxCPUPercent == 0 {
		cfg.MaxCPUPercent = 60
	}

	return &Scheduler{
		cron:         cron.New(),
		consolidator: consolidator,
		cfg:          cfg,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		s.run(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	logger.Get().Info("consolidation scheduler started", zap.String("schedule", s.cfg.Schedule))
	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) run(ctx context.Context) {
	if busy, pct := s.hostBusy(); busy {
		logger.Get().Info("consolidation skipped, host busy", zap.Float64("cpu_percent", pct))
		return
	}

	start := time.Now()
	if err := s.consolidator.ConsolidateAll(ctx); err != nil {
		logger.Get().Error("consolidation run failed", zap.Error(err))
		return
	}

	logger.Get().Info("consolidation run complete", zap.Duration("took", time.Since(start)))
}

func (s *Scheduler) hostBusy() (bool, float64) {
	percents, err := cpu.Percent(time.Second, false)
	if err != nil || len(percents) == 0 {
		return false, 0
	}
	return percents[0] > s.cfg.MaxCPUPercent, percents[0]
}
