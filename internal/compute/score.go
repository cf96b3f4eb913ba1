package compute

import "math"

// DefaultRowWidth is the number of marks per student in the input file.
const DefaultRowWidth = 6

// InitialScore returns (1/len(row)) * sum(sqrt(row[i])).
// An empty row scores 0.
func InitialScore(row []float64) float64 {
	if len(row) == 0 {
		return 0
	}
	var sum float64
	for _, mark := range row {
		sum += math.Sqrt(mark)
	}
	return sum / float64(len(row))
}
