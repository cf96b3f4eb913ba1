package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roughmark/roughmark/internal/fault"
	"github.com/roughmark/roughmark/internal/scorer"
	"github.com/roughmark/roughmark/internal/transport"
	"github.com/roughmark/roughmark/pkg/types"
)

// abortTimeout bounds the best-effort abort broadcast on a failed run.
const abortTimeout = 5 * time.Second

// noItem marks a worker with nothing outstanding.
const noItem = -1

// Coordinator runs the dispatch protocol over one transport endpoint.
// A Coordinator drives a single run; create a new one per pool.
type Coordinator struct {
	ep       transport.Endpoint
	observer Observer
	now      func() time.Time // injectable for deterministic tests

	mu    sync.Mutex
	stats Stats
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithObserver registers o for progress notifications.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		if o != nil {
			c.observer = o
		}
	}
}

// New returns a Coordinator that talks to the pool through ep, which must be
// rank 0.
func New(ep transport.Endpoint, opts ...Option) *Coordinator {
	c := &Coordinator{
		ep:       ep,
		observer: nopObserver{},
		now:      time.Now,
		stats:    Stats{Phase: PhaseIdle},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Stats returns a copy of the current run statistics. Safe for concurrent use.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats.clone()
}

// run holds the mutable state of one Run call.
type run struct {
	id    string
	log   *slog.Logger
	items []types.WorkItem
	next  int // head of the task queue

	outstanding map[int]int    // worker rank → id in flight, or noItem
	exchange    map[int]uint64 // worker rank → last exchange number
	results     []types.Result // the result set, arrival order
}

// Run distributes items over the pool and returns the banded results twice:
// byID ascending by id and byBand ascending by initial score.
func (c *Coordinator) Run(ctx context.Context, items []types.WorkItem) (byID, byBand []types.Result, err error) {
	workers := c.ep.Size() - 1
	if workers < 1 {
		return nil, nil, fmt.Errorf("dispatch: pool size %d: %w", c.ep.Size(), fault.ErrInsufficientWorkers)
	}

	r := &run{
		id:          uuid.NewString(),
		items:       items,
		outstanding: make(map[int]int, workers),
		exchange:    make(map[int]uint64, workers),
		results:     make([]types.Result, 0, len(items)),
	}
	r.log = slog.With("run_id", r.id)
	for w := 1; w <= workers; w++ {
		r.outstanding[w] = noItem
	}

	c.mu.Lock()
	c.stats = Stats{
		RunID:           r.id,
		Workers:         workers,
		Items:           len(items),
		Sent:            make(map[types.Tag]int),
		ResultsByWorker: make(map[int]int),
		Started:         c.now(),
	}
	c.mu.Unlock()

	c.observer.RunStarted(r.id, workers, len(items))
	r.log.Info("dispatch: run started", "workers", workers, "items", len(items))

	defer func() {
		if err != nil {
			c.setPhase(r, PhaseFailed)
		}
		c.mu.Lock()
		c.stats.Finished = c.now()
		c.mu.Unlock()
		c.observer.RunFinished(r.id, byID, byBand, err)
	}()

	// Fan-out: one item to each of the first min(workers, items) workers.
	c.setPhase(r, PhaseFanOut)
	for w := 1; w <= workers && r.next < len(items); w++ {
		if err := c.dispatch(ctx, r, w); err != nil {
			return nil, nil, c.fail(r, err)
		}
	}

	// Reactive phase, then drain once the queue is empty.
	if r.next < len(items) {
		c.setPhase(r, PhaseReactive)
	} else {
		c.setPhase(r, PhaseDrain)
	}
	for len(r.results) < len(items) {
		env, err := c.ep.Recv(ctx)
		if err != nil {
			return nil, nil, c.fail(r, fmt.Errorf("dispatch: receive: %w", err))
		}

		if err := c.collect(r, env); err != nil {
			return nil, nil, c.fail(r, err)
		}

		if r.next < len(items) {
			// The sender just became free.
			if err := c.dispatch(ctx, r, env.Source); err != nil {
				return nil, nil, c.fail(r, err)
			}
			if r.next == len(items) {
				c.setPhase(r, PhaseDrain)
			}
		}
	}

	c.setPhase(r, PhaseBanding)
	byID, byBand = scorer.Band(r.results)

	c.setPhase(r, PhaseTerminating)
	r.log.Info("dispatch: sending termination", "workers", workers)
	for w := 1; w <= workers; w++ {
		if err := c.send(ctx, w, types.Envelope{Tag: types.TagTerminate}); err != nil {
			return nil, nil, fmt.Errorf("dispatch: terminate worker %d: %w", w, err)
		}
	}

	c.setPhase(r, PhaseDone)
	r.log.Info("dispatch: run finished", "results", len(byID))
	return byID, byBand, nil
}

// dispatch sends the head of the queue to worker as one exchange.
func (c *Coordinator) dispatch(ctx context.Context, r *run, worker int) error {
	item := r.items[r.next]
	r.exchange[worker]++
	ex := r.exchange[worker]

	if err := c.send(ctx, worker, types.Envelope{Tag: types.TagAssignData, Exchange: ex, Row: item.Row}); err != nil {
		return fmt.Errorf("dispatch: send data for id %d to worker %d: %w", item.ID, worker, err)
	}
	if err := c.send(ctx, worker, types.Envelope{Tag: types.TagAssignID, Exchange: ex, ID: item.ID}); err != nil {
		return fmt.Errorf("dispatch: send id %d to worker %d: %w", item.ID, worker, err)
	}

	r.outstanding[worker] = item.ID
	r.next++
	c.observer.Dispatched(r.id, worker, item.ID)
	r.log.Debug("dispatch: item sent", "worker", worker, "id", item.ID, "exchange", ex)
	return nil
}

// collect validates env as a result for work outstanding at its sender and
// adds it to the result set.
func (c *Coordinator) collect(r *run, env types.Envelope) error {
	switch env.Tag {
	case types.TagResult:
	case types.TagAbort:
		return fmt.Errorf("dispatch: worker %d: %s: %w", env.Source, env.Reason, fault.ErrAborted)
	default:
		return fmt.Errorf("dispatch: unexpected %s from worker %d: %w", env.Tag, env.Source, fault.ErrMalformedExchange)
	}

	want, known := r.outstanding[env.Source]
	switch {
	case !known:
		return fmt.Errorf("dispatch: result from unknown rank %d: %w", env.Source, fault.ErrMalformedExchange)
	case env.Result == nil:
		return fmt.Errorf("dispatch: empty result from worker %d: %w", env.Source, fault.ErrMalformedExchange)
	case want == noItem:
		return fmt.Errorf("dispatch: worker %d sent id %d with nothing outstanding: %w",
			env.Source, env.Result.ID, fault.ErrMalformedExchange)
	case env.Result.ID != want:
		return fmt.Errorf("dispatch: worker %d sent id %d, outstanding id %d: %w",
			env.Source, env.Result.ID, want, fault.ErrMalformedExchange)
	}

	res := *env.Result
	res.FinalScore = types.Unset
	r.outstanding[env.Source] = noItem
	r.results = append(r.results, res)

	c.mu.Lock()
	c.stats.ResultsByWorker[env.Source]++
	c.mu.Unlock()
	c.observer.Collected(r.id, env.Source, res)
	r.log.Debug("dispatch: result received",
		"worker", env.Source, "id", res.ID, "ins", res.InitialScore,
		"collected", len(r.results), "total", len(r.items))
	return nil
}

func (c *Coordinator) send(ctx context.Context, worker int, env types.Envelope) error {
	if err := c.ep.Send(ctx, worker, env); err != nil {
		return err
	}
	c.mu.Lock()
	c.stats.Sent[env.Tag]++
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) setPhase(r *run, p Phase) {
	c.mu.Lock()
	c.stats.Phase = p
	c.mu.Unlock()
	c.observer.PhaseChanged(r.id, p)
	r.log.Debug("dispatch: phase", "phase", string(p))
}

// fail broadcasts abort to every worker and returns cause.
func (c *Coordinator) fail(r *run, cause error) error {
	r.log.Error("dispatch: aborting pool", "err", cause)

	ctx, cancel := context.WithTimeout(context.Background(), abortTimeout)
	defer cancel()
	for w := 1; w < c.ep.Size(); w++ {
		if err := c.send(ctx, w, types.Envelope{Tag: types.TagAbort, Reason: cause.Error()}); err != nil {
			r.log.Warn("dispatch: abort not delivered", "worker", w, "err", err)
		}
	}
	return cause
}
