package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/dhima/mysql-connector/internal/logging"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// TableRefresher is the part of a session the engine drives.
type TableRefresher interface {
	Tables() []string
	RefreshTable(ctx context.Context, name string) error
}

// Engine re-snapshots every cached table on a cron schedule.
type Engine struct {
	expr      string
	schedule  cron.Schedule
	refresher TableRefresher
	logger    logging.Logger
}

// parser accepts standard five-field expressions and an optional leading
// seconds field.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewEngine validates expr and returns an engine ready to Run.
func NewEngine(expr string, refresher TableRefresher, logger logging.Logger) (*Engine, error) {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", expr, err)
	}
	return &Engine{
		expr:      expr,
		schedule:  schedule,
		refresher: refresher,
		logger:    logger.With(zap.String("component", "refresh")),
	}, nil
}

// Next returns the first refresh time after from, in UTC.
func (e *Engine) Next(from time.Time) time.Time {
	return e.schedule.Next(from).UTC()
}

// Run fires RefreshAll on schedule until ctx is cancelled, then waits for
// a running refresh to finish.
func (e *Engine) Run(ctx context.Context) error {
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(e.schedule, cron.FuncJob(func() {
		e.RefreshAll(ctx)
	}))

	e.logger.Info("refresh engine started",
		zap.String("schedule", e.expr),
		zap.Time("next_run", e.Next(time.Now())))
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	e.logger.Info("refresh engine stopped")
	return ctx.Err()
}

// RefreshAll refreshes every cached table and reports how many succeeded
// and failed. One failing table does not stop the others.
func (e *Engine) RefreshAll(ctx context.Context) (refreshed, failed int) {
	for _, name := range e.refresher.Tables() {
		if ctx.Err() != nil {
			break
		}
		if err := e.refresher.RefreshTable(ctx, name); err != nil {
			failed++
			e.logger.Error("table refresh failed", logging.Table(name), zap.Error(err))
			continue
		}
		refreshed++
	}

	e.logger.Debug("refresh cycle finished",
		zap.Int("refreshed", refreshed),
		zap.Int("failed", failed))
	return refreshed, failed
}
