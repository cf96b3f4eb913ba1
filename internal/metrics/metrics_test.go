package metrics

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roughmark/roughmark/internal/dispatch"
	"github.com/roughmark/roughmark/pkg/types"
)

func sampleStats() dispatch.Stats {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return dispatch.Stats{
		RunID:   "run-1",
		Workers: 2,
		Items:   3,
		Phase:   dispatch.PhaseDone,
		Sent: map[types.Tag]int{
			types.TagAssignData: 3,
			types.TagAssignID:   3,
			types.TagTerminate:  2,
		},
		ResultsByWorker: map[int]int{1: 2, 2: 1},
		Started:         start,
		Finished:        start.Add(1500 * time.Millisecond),
	}
}

func sampleBands() []types.Result {
	return []types.Result{
		{ID: 0, InitialScore: 1, FinalScore: 0},
		{ID: 1, InitialScore: 2, FinalScore: 2},
		{ID: 2, InitialScore: 3, FinalScore: 4},
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, Families(sampleStats(), sampleBands())); err != nil {
		t.Fatalf("Write: %v", err)
	}
	mfs := parse(t, &buf)

	tests := []struct {
		name string
		want float64
	}{
		{MessagesSent, 8},
		{ResultsCollected, 3},
		{Items, 3},
		{Workers, 2},
		{RunDuration, 1.5},
		{RunFailed, 0},
		{BandStudents, 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mf, ok := mfs[tc.name]
			if !ok {
				t.Fatalf("family %s missing", tc.name)
			}
			if got := sum(mf); got != tc.want {
				t.Errorf("sum(%s) = %v, want %v", tc.name, got, tc.want)
			}
		})
	}
}

func TestFamilies_SentCoversEveryTag(t *testing.T) {
	var sent int
	for _, mf := range Families(sampleStats(), nil) {
		if mf.GetName() == MessagesSent {
			sent = len(mf.GetMetric())
		}
		if mf.GetName() == BandStudents {
			t.Error("band family present without banded results")
		}
	}
	if sent != len(types.Tags) {
		t.Errorf("sent series = %d, want %d", sent, len(types.Tags))
	}
}

func TestFamilies_Failed(t *testing.T) {
	st := sampleStats()
	st.Phase = dispatch.PhaseFailed
	for _, mf := range Families(st, nil) {
		if mf.GetName() == RunFailed && sum(mf) != 1 {
			t.Errorf("run_failed = %v, want 1", sum(mf))
		}
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.prom")
	if err := WriteFile(path, sampleStats(), sampleBands()); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	mfs := parse(t, f)
	if got := sum(mfs[Items]); got != 3 {
		t.Errorf("items = %v, want 3", got)
	}
}
