package scorer

import (
	"sort"

	"github.com/roughmark/roughmark/pkg/types"
)

// Band fractions, measured from the top of the ranking.
const (
	fractionBand4 = 0.1
	fractionBand3 = 0.3
	fractionBand2 = 0.6
	fractionBand1 = 0.8
)

// Final score values.
const (
	Band0 = 0.0
	Band1 = 1.0
	Band2 = 2.0
	Band3 = 3.0
	Band4 = 4.0
)

// SortByInitialScore orders results ascending by InitialScore, breaking ties
// by ascending ID.
func SortByInitialScore(results []types.Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.InitialScore != b.InitialScore {
			return a.InitialScore < b.InitialScore
		}
		return a.ID < b.ID
	})
}

// SortByID orders results ascending by ID.
func SortByID(results []types.Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ID < results[j].ID
	})
}

// Cuts returns the number of positions below the top index at which each
// band starts, for a ranking of n results.
func Cuts(n int) (c10, c30, c60, c80 int) {
	if n <= 1 {
		return 0, 0, 0, 0
	}
	last := float64(n - 1)
	return int(fractionBand4 * last),
		int(fractionBand3 * last),
		int(fractionBand2 * last),
		int(fractionBand1 * last)
}

// AssignFinalScore sets FinalScore on every result. results must already be
// ordered by SortByInitialScore.
func AssignFinalScore(results []types.Result) {
	last := len(results) - 1
	c10, c30, c60, c80 := Cuts(len(results))

	for i := last; i >= 0; i-- {
		switch {
		case i >= last-c10:
			results[i].FinalScore = Band4
		case i >= last-c30:
			results[i].FinalScore = Band3
		case i >= last-c60:
			results[i].FinalScore = Band2
		case i >= last-c80:
			results[i].FinalScore = Band1
		default:
			results[i].FinalScore = Band0
		}
	}
}

// Band ranks and bands results, returning two views over copies of the input:
// byID ascending by id and byBand ascending by initial score. The input slice
// is left untouched.
func Band(results []types.Result) (byID, byBand []types.Result) {
	byBand = make([]types.Result, len(results))
	copy(byBand, results)
	SortByInitialScore(byBand)
	AssignFinalScore(byBand)

	byID = make([]types.Result, len(byBand))
	copy(byID, byBand)
	SortByID(byID)
	return byID, byBand
}
