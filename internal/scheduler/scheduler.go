// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// TokenSweeper marks ledger rows whose embedded expiry has passed.
type TokenSweeper interface {
	ExpireTokens(ctx context.Context) (int64, error)
}

// Scheduler wraps a cron runner.
type Scheduler struct {
	cron *cron.Cron
	log  *logrus.Logger
}

// New creates an empty scheduler.
func New(log *logrus.Logger) *Scheduler {
	return &Scheduler{cron: cron.New(), log: log}
}

// AddTokenSweep schedules the token-expiry sweep with a cron spec such
// as "@every 10m".
func (s *Scheduler) AddTokenSweep(spec string, sweeper TokenSweeper) error {
	_, err := s.cron.AddFunc(spec, func() {
		n, err := sweeper.ExpireTokens(context.Background())
		if err != nil {
			s.log.Errorf("Token expiry sweep failed: %v", err)
			return
		}
		if n > 0 {
			s.log.Infof("Token expiry sweep marked %d tokens expired", n)
		}
	})
	return err
}

// Start launches the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling; running jobs finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
