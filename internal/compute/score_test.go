package compute

import (
	"math"
	"testing"
)

// almostEqual returns true if a and b are within epsilon of each other.
func almostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestInitialScore(t *testing.T) {
	tests := []struct {
		name string
		row  []float64
		want float64
	}{
		{
			name: "perfect squares",
			// (0+1+2+3+4+5)/6
			row:  []float64{0, 1, 4, 9, 16, 25},
			want: 2.5,
		},
		{
			name: "all zero",
			row:  []float64{0, 0, 0, 0, 0, 0},
			want: 0,
		},
		{
			name: "uniform marks",
			row:  []float64{49, 49, 49, 49, 49, 49},
			want: 7,
		},
		{
			name: "fractional marks",
			// sqrt(2.25)=1.5, sqrt(0.25)=0.5 → (1.5+0.5)/2
			row:  []float64{2.25, 0.25},
			want: 1.0,
		},
		{
			name: "empty row",
			row:  nil,
			want: 0,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := InitialScore(tc.row); !almostEqual(got, tc.want, 1e-12) {
				t.Errorf("InitialScore(%v) = %v, want %v", tc.row, got, tc.want)
			}
		})
	}
}

func TestInitialScore_DoesNotModifyRow(t *testing.T) {
	row := []float64{4, 9, 16, 25, 36, 49}
	orig := append([]float64(nil), row...)
	InitialScore(row)
	for i := range row {
		if row[i] != orig[i] {
			t.Fatalf("row[%d] changed from %v to %v", i, orig[i], row[i])
		}
	}
}

func TestInitialScore_Monotonic(t *testing.T) {
	// Raising any single mark never lowers the score.
	low := InitialScore([]float64{10, 20, 30, 40, 50, 60})
	high := InitialScore([]float64{10, 20, 30, 40, 50, 61})
	if high <= low {
		t.Errorf("InitialScore did not increase: low=%v high=%v", low, high)
	}
}
