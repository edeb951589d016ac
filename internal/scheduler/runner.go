package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultMaterializeSpec is how often the runner checks for due rows.
const DefaultMaterializeSpec = "@every 1m"

// timeNow is swapped out in tests.
var timeNow = time.Now

// Runner drives the materializer on a cron schedule. Deployments that use an
// external time trigger instead can simply not start it.
type Runner struct {
	cron *cron.Cron
	mat  *Materializer
}

// NewRunner creates a cron-backed runner with panic recovery enabled.
func NewRunner(mat *Materializer) *Runner {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &Runner{cron: c, mat: mat}
}

// Start registers the materialize job and starts the cron loop.
func (r *Runner) Start(ctx context.Context) error {
	_, err := r.cron.AddFunc(DefaultMaterializeSpec, func() {
		if _, err := r.mat.MaterializeDue(ctx, timeNow()); err != nil {
			slog.Error("Runner: materialize pass failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	slog.Info("Runner: scheduled-communication materializer started", "interval", DefaultMaterializeSpec)
	return nil
}

// Stop stops the cron loop and waits for a running job to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}
