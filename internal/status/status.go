package status

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roughmark/roughmark/internal/dispatch"
	"github.com/roughmark/roughmark/pkg/types"
)

// RunInfo is a point-in-time copy of one run.
type RunInfo struct {
	ID         string         `json:"run_id"`
	Phase      dispatch.Phase `json:"phase"`
	Workers    int            `json:"workers"`
	Items      int            `json:"items"`
	Dispatched int            `json:"dispatched"`
	Collected  int            `json:"collected"`
	PerWorker  map[int]int    `json:"per_worker"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at,omitempty"`
	Error      string         `json:"error,omitempty"`

	ByID   []types.Result `json:"-"`
	ByBand []types.Result `json:"-"`
}

// Finished reports whether the run has ended, successfully or not.
func (r RunInfo) Finished() bool { return !r.FinishedAt.IsZero() }

// Progress is the fraction of items collected, in [0, 1]. An empty run that
// has finished counts as complete.
func (r RunInfo) Progress() float64 {
	if r.Items == 0 {
		if r.Finished() {
			return 1
		}
		return 0
	}
	return float64(r.Collected) / float64(r.Items)
}

func (r *RunInfo) clone() RunInfo {
	out := *r
	out.PerWorker = make(map[int]int, len(r.PerWorker))
	for k, v := range r.PerWorker {
		out.PerWorker[k] = v
	}
	return out
}

var _ dispatch.Observer = (*Store)(nil)

// Store is a thread-safe in-memory record of runs, keyed by run ID.
type Store struct {
	mu     sync.RWMutex
	runs   map[string]*RunInfo
	latest string
	stats  dispatch.Stats
	ttl    time.Duration
	now    func() time.Time // injectable for deterministic tests
}

// New creates a Store that retains finished runs for ttl.
func New(ttl time.Duration) *Store {
	return &Store{
		runs: make(map[string]*RunInfo),
		ttl:  ttl,
		now:  time.Now,
	}
}

// RunStarted records a new run and makes it the latest.
func (s *Store) RunStarted(runID string, workers, items int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[runID] = &RunInfo{
		ID:        runID,
		Phase:     dispatch.PhaseIdle,
		Workers:   workers,
		Items:     items,
		PerWorker: make(map[int]int, workers),
		StartedAt: s.now(),
	}
	s.latest = runID
}

// PhaseChanged updates the run's phase.
func (s *Store) PhaseChanged(runID string, phase dispatch.Phase) {
	s.update(runID, func(r *RunInfo) { r.Phase = phase })
}

// Dispatched counts one assignment.
func (s *Store) Dispatched(runID string, _, _ int) {
	s.update(runID, func(r *RunInfo) { r.Dispatched++ })
}

// Collected counts one result from worker.
func (s *Store) Collected(runID string, worker int, _ types.Result) {
	s.update(runID, func(r *RunInfo) {
		r.Collected++
		r.PerWorker[worker]++
	})
}

// RunFinished stores the run's outcome.
func (s *Store) RunFinished(runID string, byID, byBand []types.Result, err error) {
	s.update(runID, func(r *RunInfo) {
		r.FinishedAt = s.now()
		r.ByID, r.ByBand = byID, byBand
		if err != nil {
			r.Error = err.Error()
		}
	})
}

// RecordStats keeps the coordinator statistics of the latest finished run.
func (s *Store) RecordStats(st dispatch.Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = st
}

// Stats returns the statistics last passed to RecordStats and whether any
// were recorded.
func (s *Store) Stats() (dispatch.Stats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats, s.stats.RunID != ""
}

func (s *Store) update(runID string, fn func(*RunInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		slog.Debug("status: event for unknown run", "run_id", runID)
		return
	}
	fn(r)
}

// Latest returns the most recently started run.
func (s *Store) Latest() (RunInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[s.latest]
	if !ok {
		return RunInfo{}, false
	}
	return r.clone(), true
}

// Get returns the run with the given ID.
func (s *Store) Get(runID string) (RunInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runID]
	if !ok {
		return RunInfo{}, false
	}
	return r.clone(), true
}

// List returns all retained runs, newest first.
func (s *Store) List() []RunInfo {
	s.mu.RLock()
	out := make([]RunInfo, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r.clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Count returns the number of retained runs.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

// Evict removes finished runs that ended at or before now minus the TTL,
// except the latest run. It returns the number of runs removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, r := range s.runs {
		if id == s.latest || !r.Finished() {
			continue
		}
		if !r.FinishedAt.After(cutoff) {
			delete(s.runs, id)
			removed++
		}
	}
	return removed
}

// Run starts the background eviction loop. It ticks at half the TTL
// (minimum 1 second) and blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("status: evicted finished runs", "count", n)
			}
		}
	}
}
