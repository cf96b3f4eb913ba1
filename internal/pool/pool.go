// Package pool runs a whole grading pool inside one process: a coordinator
// and size-1 workers as goroutines over the in-memory transport.
//
// The goroutines share an errgroup, so the first fatal error from any of them
// cancels the rest. That is the in-process equivalent of aborting every
// process in the pool.
package pool

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roughmark/roughmark/internal/dispatch"
	"github.com/roughmark/roughmark/internal/fault"
	"github.com/roughmark/roughmark/internal/transport"
	"github.com/roughmark/roughmark/internal/worker"
	"github.com/roughmark/roughmark/pkg/types"
)

// Options configures RunLocal.
type Options struct {
	// Size is the total number of processes, coordinator included (>= 2).
	Size int

	// RowWidth is passed to every worker.
	RowWidth int

	// Coordinator options, e.g. dispatch.WithObserver.
	Coordinator []dispatch.Option
}

// Outcome is what a finished local run produced.
type Outcome struct {
	ByID   []types.Result
	ByBand []types.Result
	Stats  dispatch.Stats
}

// RunLocal grades items with an in-process pool. When the pool started but
// the run failed, the returned Outcome still carries the run's Stats.
func RunLocal(ctx context.Context, items []types.WorkItem, opts Options) (*Outcome, error) {
	if opts.Size < 2 {
		return nil, fmt.Errorf("pool: size %d: %w", opts.Size, fault.ErrInsufficientWorkers)
	}

	eps := transport.NewLocal(opts.Size)
	defer func() {
		for _, ep := range eps {
			ep.Close()
		}
	}()

	coord := dispatch.New(eps[0], opts.Coordinator...)
	out := &Outcome{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		byID, byBand, err := coord.Run(gctx, items)
		if err != nil {
			return err
		}
		out.ByID, out.ByBand = byID, byBand
		return nil
	})
	for _, ep := range eps[1:] {
		ep := ep
		g.Go(func() error {
			_, err := worker.Run(gctx, ep, worker.Options{RowWidth: opts.RowWidth})
			return err
		})
	}

	err := g.Wait()
	out.Stats = coord.Stats()
	if err != nil {
		return &Outcome{Stats: out.Stats}, err
	}
	return out, nil
}
