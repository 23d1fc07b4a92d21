// Package batch preprocesses many independent trace files concurrently.
// Each Job gets its own Preprocessor instance; no state is shared across
// jobs, satisfying the core's per-run isolation property under
// concurrent drivers.
package batch

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/haltmark/cgprof/internal/callgrind"
)

// Job names one input trace and the index path it should produce.
type Job struct {
	InputPath  string
	OutputPath string
}

// Result pairs a Job with the error from processing it, if any.
type Result struct {
	Job Job
	Err error
}

// Run preprocesses every job, bounded by parallelism concurrent workers
// (parallelism <= 0 means unbounded). It never returns early: a failing
// job is recorded in its Result and does not cancel its siblings.
func Run(ctx context.Context, jobs []Job, proxyFunctions map[string]struct{}, parallelism int) ([]Result, error) {
	results := make([]Result, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = Result{Job: job, Err: err}
				return nil
			}
			p := callgrind.NewPreprocessor(proxyFunctions)
			err := p.Run(job.InputPath, job.OutputPath)
			results[i] = Result{Job: job, Err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
