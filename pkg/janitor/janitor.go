// Package janitor runs the periodic retention sweep against the memory
// store: a cron-scheduled prune pass that deletes records older than the
// configured retention window.
package janitor

import (
	"context"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/jetgogoing/sage-memory/pkg/memorystore"
)

var parser = cronlib.NewParser(cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor)

// Config controls the janitor's schedule and retention policy.
type Config struct {
	// Expr is a standard 5-field cron expression. Defaults to hourly.
	Expr string
	// Retention is how old a record must be before it is purged. Zero
	// disables pruning entirely; the janitor still runs on schedule but
	// is a no-op, which keeps the loop's shape identical whether or not
	// retention is configured.
	Retention time.Duration
}

// DefaultConfig runs hourly with pruning disabled.
func DefaultConfig() Config {
	return Config{Expr: "0 * * * *"}
}

// Janitor periodically prunes memory records older than its retention
// window.
type Janitor struct {
	cfg      Config
	schedule cronlib.Schedule
	store    *memorystore.Store
	log      zerolog.Logger
	now      func() time.Time
}

// New builds a Janitor bound to store. Returns an error if cfg.Expr does
// not parse.
func New(cfg Config, store *memorystore.Store, log zerolog.Logger) (*Janitor, error) {
	if cfg.Expr == "" {
		cfg.Expr = DefaultConfig().Expr
	}
	sched, err := parser.Parse(cfg.Expr)
	if err != nil {
		return nil, err
	}
	return &Janitor{
		cfg:      cfg,
		schedule: sched,
		store:    store,
		log:      log.With().Str("component", "janitor").Logger(),
		now:      time.Now,
	}, nil
}

// Run blocks, firing prune passes on schedule until ctx is canceled.
func (j *Janitor) Run(ctx context.Context) {
	for {
		next := j.schedule.Next(j.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			j.runOnce(ctx)
		}
	}
}

func (j *Janitor) runOnce(ctx context.Context) {
	if j.cfg.Retention <= 0 {
		return
	}
	cutoff := j.now().Add(-j.cfg.Retention)
	n, err := j.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		j.log.Warn().Err(err).Msg("prune pass failed")
		return
	}
	if n > 0 {
		j.log.Info().Int64("pruned", n).Time("cutoff", cutoff).Msg("pruned expired memory records")
	}
}
