package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/deusflow/aidigest/internal/config"
	"github.com/deusflow/aidigest/internal/errs"
)

// Schedule runs cfg once immediately and then on every tick of spec until
// ctx is cancelled.
func Schedule(ctx context.Context, cfg *config.Config, log *slog.Logger, spec string) error {
	r := New(cfg, log)
	defer r.Close()
	return r.Schedule(ctx, spec)
}

// Schedule runs once, then on spec (standard five-field cron). A tick that
// fires while a run is still going is skipped. On cancellation it waits for
// the running job before returning.
func (r *Runner) Schedule(ctx context.Context, spec string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{r.log})))
	if _, err := c.AddFunc(spec, func() { r.scheduledRun(ctx) }); err != nil {
		return &errs.ConfigError{Field: "SCHEDULE", Msg: fmt.Sprintf("invalid cron expression %q: %v", spec, err)}
	}

	r.log.Info("scheduler starting", "schedule", spec)
	r.scheduledRun(ctx)
	c.Start()

	<-ctx.Done()
	r.log.Info("scheduler stopping")
	<-c.Stop().Done()
	return nil
}

func (r *Runner) scheduledRun(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := r.Run(ctx); err != nil {
		r.log.Error("scheduled run failed", "err", err)
	}
}

// cronLogger routes cron's own messages through slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
