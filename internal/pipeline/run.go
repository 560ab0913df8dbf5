package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dativo-io/safeops/internal/config"
	"github.com/dativo-io/safeops/internal/trigger"
	"github.com/dativo-io/safeops/internal/violation"
)

// RunFile loads the batch at path, wires a driver from cfg and runs it. A
// batch that fails to load aborts before anything is opened.
func RunFile(ctx context.Context, cfg *config.Config, opts BuildOptions, path string) (summary *Summary, err error) {
	batch, err := violation.LoadBatchFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Build(cfg, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return c.Driver.RunBatch(ctx, batch)
}

// JobRunner runs trigger jobs through RunFile. Runs are serialized since
// every job appends to the same log files.
type JobRunner struct {
	Config  *config.Config
	Options BuildOptions

	mu sync.Mutex
}

// RunJob implements trigger.BatchRunner.
func (r *JobRunner) RunJob(ctx context.Context, job trigger.Job, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	summary, err := RunFile(ctx, r.Config, r.Options, job.BatchPath)
	if err != nil {
		return err
	}
	log.Info().
		Str("job", job.Name).
		Str("source", source).
		Str("run_id", summary.RunID).
		Int("frames", len(summary.Frames)).
		Int("escalated", summary.Escalated).
		Msg("triggered_run_completed")
	return nil
}
