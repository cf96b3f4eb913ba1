package input

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"

	"github.com/roughmark/roughmark/internal/fault"
	"github.com/roughmark/roughmark/pkg/types"
)

// Load opens path and parses it with Parse. A file that cannot be opened is
// fault.ErrFileUnavailable.
func Load(path string, rowWidth int) ([]types.WorkItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("input: open %s: %w: %w", path, fault.ErrFileUnavailable, err)
	}
	defer f.Close()

	items, err := Parse(f, rowWidth)
	if err != nil {
		return nil, fmt.Errorf("input: %s: %w", path, err)
	}
	slog.Info("input: file read", "path", path, "rows", len(items), "row_width", rowWidth)
	return items, nil
}

// Parse reads whitespace-separated reals from r and groups them into rows of
// rowWidth values. NaN and infinities are rejected like any other non-number.
func Parse(r io.Reader, rowWidth int) ([]types.WorkItem, error) {
	if rowWidth <= 0 {
		return nil, fmt.Errorf("row width must be positive, got %d", rowWidth)
	}

	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)

	var arena []float64
	var n int
	for sc.Scan() {
		n++
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("value %d: %q is not a number", n, sc.Text())
		}
		arena = append(arena, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	rows := len(arena) / rowWidth
	if dropped := len(arena) - rows*rowWidth; dropped > 0 {
		slog.Warn("input: discarding trailing partial row", "values", dropped, "row_width", rowWidth)
	}

	items := make([]types.WorkItem, rows)
	for i := range items {
		lo, hi := i*rowWidth, (i+1)*rowWidth
		items[i] = types.WorkItem{ID: i, Row: arena[lo:hi:hi]}
	}
	return items, nil
}
