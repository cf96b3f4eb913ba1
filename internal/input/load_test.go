package input

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roughmark/roughmark/internal/fault"
	"github.com/roughmark/roughmark/pkg/types"
)

func TestParse_Rows(t *testing.T) {
	in := `0 1 4 9 16 25
2.5 3 3.5
  4 4.5 5
`
	items, err := Parse(strings.NewReader(in), 6)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d rows, want 2", len(items))
	}
	if items[0].ID != 0 || items[1].ID != 1 {
		t.Errorf("ids = %d,%d, want 0,1", items[0].ID, items[1].ID)
	}
	if items[0].Row[5] != 25 {
		t.Errorf("row 0 = %v", items[0].Row)
	}
	// Rows ignore line breaks: the second row spans two lines.
	want := []float64{2.5, 3, 3.5, 4, 4.5, 5}
	for i, v := range want {
		if items[1].Row[i] != v {
			t.Errorf("row 1[%d] = %v, want %v", i, items[1].Row[i], v)
		}
	}
}

func TestParse_TrailingPartialRowDiscarded(t *testing.T) {
	items, err := Parse(strings.NewReader("1 2 3 4 5 6 7 8"), 6)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d rows, want 1", len(items))
	}
}

func TestParse_Empty(t *testing.T) {
	items, err := Parse(strings.NewReader(" \n\t\n"), 6)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("got %d rows, want 0", len(items))
	}
}

func TestParse_RowsAreIsolated(t *testing.T) {
	items, err := Parse(strings.NewReader("1 2 3 4"), 2)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	// Rows share one arena; appending to a row must not clobber its neighbour.
	_ = append(items[0].Row, 99)
	if items[1].Row[0] != 3 {
		t.Errorf("row 1 clobbered: %v", items[1].Row)
	}
	if cap(items[0].Row) != 2 {
		t.Errorf("cap(row 0) = %d, want 2", cap(items[0].Row))
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
	}{
		{"non-numeric token", "1 2 x 4", 2},
		{"nan", "NaN 1 4 9 16 25", 6},
		{"inf", "0 1 Inf 9 16 25", 6},
		{"signed inf", "0 1 4 9 16 +Inf", 6},
		{"negative infinity", "-infinity 1", 2},
		{"overflow", "1e400 1", 2},
		{"zero row width", "1 2", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if items, err := Parse(strings.NewReader(tc.in), tc.width); err == nil {
				t.Fatalf("expected error, got %v", items)
			}
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.txt"), 6)
	if !errors.Is(err, fault.ErrFileUnavailable) {
		t.Fatalf("Load err = %v, want ErrFileUnavailable", err)
	}
}

func TestWatch_MissingFile(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := Watch(ctx, filepath.Join(t.TempDir(), "nope.txt"), 6, func([]types.WorkItem) {
		t.Error("onChange called for a missing file")
	})
	if !errors.Is(err, fault.ErrFileUnavailable) {
		t.Fatalf("Watch err = %v, want ErrFileUnavailable", err)
	}
	if code := fault.ExitCode(err); code != fault.ExitFileUnavailable {
		t.Errorf("exit code = %d, want %d", code, fault.ExitFileUnavailable)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "0 1 4 9 16 25\n36 49 64 81 100 121\n")
	items, err := Load(path, 6)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d rows, want 2", len(items))
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeFile(t, "1 1 1 1 1 1\n")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	loads := make(chan []types.WorkItem, 4)
	errc := make(chan error, 1)
	go func() {
		errc <- Watch(ctx, path, 6, func(items []types.WorkItem) { loads <- items })
	}()

	first := <-loads
	if len(first) != 1 {
		t.Fatalf("initial load: %d rows, want 1", len(first))
	}

	if err := os.WriteFile(path, []byte("1 1 1 1 1 1\n2 2 2 2 2 2\n"), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	// A write may surface as more than one event; wait for the full file.
	for {
		select {
		case items := <-loads:
			if len(items) == 2 {
				cancel()
				if err := <-errc; err != nil {
					t.Fatalf("Watch: %v", err)
				}
				return
			}
		case <-ctx.Done():
			t.Fatal("no reload observed")
		}
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.txt")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp input: %v", err)
	}
	return path
}
