package contract

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper periodically expires active contracts past their end date, releasing
// their rooms.
type Sweeper struct {
	svc    *Service
	cron   *cron.Cron
	logger *zap.Logger
}

func NewSweeper(svc *Service, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		svc:    svc,
		cron:   cron.New(cron.WithSeconds()),
		logger: logger,
	}
}

// Start schedules sweeps, e.g. "@every 60s".
func (sw *Sweeper) Start(schedule string) error {
	_, err := sw.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := sw.svc.ExpireDue(ctx)
		if err != nil {
			sw.logger.Error("expiry sweep failed", zap.Int("expired", n), zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	sw.cron.Start()
	sw.logger.Info("expiry sweeper started", zap.String("schedule", schedule))
	return nil
}

// Stop waits for a running sweep to finish.
func (sw *Sweeper) Stop(ctx context.Context) {
	stopCtx := sw.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
}
