package dispatch

import (
	"time"

	"github.com/roughmark/roughmark/pkg/types"
)

// Phase is the coordinator's position in a run.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseFanOut      Phase = "fan_out"
	PhaseReactive    Phase = "reactive"
	PhaseDrain       Phase = "drain"
	PhaseBanding     Phase = "banding"
	PhaseTerminating Phase = "terminating"
	PhaseDone        Phase = "done"
	PhaseFailed      Phase = "failed"
)

// Observer is notified as a run progresses. Calls are made from the
// coordinator's goroutine and must not block.
type Observer interface {
	RunStarted(runID string, workers, items int)
	PhaseChanged(runID string, phase Phase)
	Dispatched(runID string, worker, id int)
	Collected(runID string, worker int, res types.Result)
	RunFinished(runID string, byID, byBand []types.Result, err error)
}

// Stats counts what one run did.
type Stats struct {
	RunID   string
	Workers int
	Items   int
	Phase   Phase

	// Sent counts successfully sent envelopes per tag.
	Sent map[types.Tag]int

	// ResultsByWorker counts collected results per worker rank.
	ResultsByWorker map[int]int

	Started  time.Time
	Finished time.Time
}

// Messages returns the total number of envelopes sent.
func (s Stats) Messages() int {
	var n int
	for _, v := range s.Sent {
		n += v
	}
	return n
}

// Duration is the wall time of the run, or zero if it has not finished.
func (s Stats) Duration() time.Duration {
	if s.Finished.IsZero() {
		return 0
	}
	return s.Finished.Sub(s.Started)
}

func (s Stats) clone() Stats {
	out := s
	out.Sent = make(map[types.Tag]int, len(s.Sent))
	for k, v := range s.Sent {
		out.Sent[k] = v
	}
	out.ResultsByWorker = make(map[int]int, len(s.ResultsByWorker))
	for k, v := range s.ResultsByWorker {
		out.ResultsByWorker[k] = v
	}
	return out
}

// nopObserver is used when the caller does not supply one.
type nopObserver struct{}

func (nopObserver) RunStarted(string, int, int)                              {}
func (nopObserver) PhaseChanged(string, Phase)                               {}
func (nopObserver) Dispatched(string, int, int)                              {}
func (nopObserver) Collected(string, int, types.Result)                      {}
func (nopObserver) RunFinished(string, []types.Result, []types.Result, error) {}
