package sweep

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

const defaultInterval = time.Minute

// Runner периодически запускает проходы Sweeper до отмены контекста.
type Runner struct {
	sweeper  *Sweeper
	interval time.Duration
	logger   *log.Entry
}

// NewRunner создаёт Runner; interval <= 0 заменяется значением по умолчанию.
func NewRunner(sweeper *Sweeper, interval time.Duration, logger *log.Entry) *Runner {
	if logger == nil {
		logger = log.New().WithField("component", "sweep-runner")
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Runner{sweeper: sweeper, interval: interval, logger: logger}
}

// Run выполняет первый проход сразу, затем по тикеру до отмены ctx.
func (r *Runner) Run(ctx context.Context) {
	r.sweeper.Run()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("sweep runner stopped")
			return
		case <-ticker.C:
			r.sweeper.Run()
		}
	}
}
