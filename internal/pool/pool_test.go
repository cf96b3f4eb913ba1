package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roughmark/roughmark/internal/dispatch"
	"github.com/roughmark/roughmark/internal/fault"
	"github.com/roughmark/roughmark/pkg/types"
)

func items(rows ...[]float64) []types.WorkItem {
	out := make([]types.WorkItem, len(rows))
	for i, r := range rows {
		out[i] = types.WorkItem{ID: i, Row: r}
	}
	return out
}

func TestRunLocal(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	in := items(
		[]float64{0, 1, 4, 9, 16, 25},     // 2.5
		[]float64{0, 0, 0, 0, 0, 0},       // 0
		[]float64{36, 36, 36, 36, 36, 36}, // 6
	)
	out, err := RunLocal(ctx, in, Options{Size: 3, RowWidth: 6})
	if err != nil {
		t.Fatalf("RunLocal: %v", err)
	}

	if len(out.ByID) != 3 || len(out.ByBand) != 3 {
		t.Fatalf("got %d/%d results, want 3/3", len(out.ByID), len(out.ByBand))
	}
	if out.ByID[0].InitialScore != 2.5 {
		t.Errorf("id 0 INS = %v, want 2.5", out.ByID[0].InitialScore)
	}
	wantBand := []int{1, 0, 2}
	for i, r := range out.ByBand {
		if r.ID != wantBand[i] {
			t.Errorf("ByBand[%d].ID = %d, want %d", i, r.ID, wantBand[i])
		}
	}
	// n=3 → bands 0, 2, 4 in score order.
	if out.ByID[2].FinalScore != 4 || out.ByID[0].FinalScore != 2 || out.ByID[1].FinalScore != 0 {
		t.Errorf("final scores = %v %v %v", out.ByID[0].FinalScore, out.ByID[1].FinalScore, out.ByID[2].FinalScore)
	}
	if got := out.Stats.Messages(); got != 2*3+2 {
		t.Errorf("messages = %d, want 8", got)
	}
}

func TestRunLocal_TooSmall(t *testing.T) {
	_, err := RunLocal(context.Background(), items([]float64{1}), Options{Size: 1, RowWidth: 1})
	if !errors.Is(err, fault.ErrInsufficientWorkers) {
		t.Fatalf("err = %v, want ErrInsufficientWorkers", err)
	}
}

func TestRunLocal_WrongRowWidthAborts(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Workers expect 6 marks; the item carries 4.
	out, err := RunLocal(ctx, items([]float64{1, 2, 3, 4}), Options{Size: 2, RowWidth: 6})
	if !errors.Is(err, fault.ErrMalformedExchange) && !errors.Is(err, fault.ErrAborted) {
		t.Fatalf("err = %v, want malformed exchange or abort", err)
	}
	if out == nil || out.Stats.Phase != dispatch.PhaseFailed {
		t.Errorf("outcome after failure = %+v, want stats in failed phase", out)
	}
}

func TestRunLocal_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := RunLocal(ctx, items([]float64{1, 1, 1, 1, 1, 1}), Options{Size: 2, RowWidth: 6}); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
