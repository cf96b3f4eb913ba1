// Package report renders banded results as the two textual views written to
// the results file.
package report

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roughmark/roughmark/pkg/types"
)

const (
	headerByStudent = "FNS scores by student (id FNS):"
	headerByBand    = "List of students by FNS:"
)

// WriteByStudent writes one "<id>; <fns>" line per result. results must be
// ordered by id.
func WriteByStudent(w io.Writer, results []types.Result) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, headerByStudent)
	for _, r := range results {
		fmt.Fprintf(bw, "%d; %f\n", r.ID, r.FinalScore)
	}
	fmt.Fprintln(bw)
	return bw.Flush()
}

// WriteByBand writes results ordered by initial score, starting a new
// "<fns>; " line each time the final score changes from the previous result,
// followed by the ids of that run. Equal scores that are not contiguous in
// the input are not merged.
func WriteByBand(w io.Writer, results []types.Result) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, headerByBand)
	for i, r := range results {
		switch {
		case i == 0:
			fmt.Fprintf(bw, "%f; ", r.FinalScore)
		case results[i-1].FinalScore != r.FinalScore:
			fmt.Fprintf(bw, "\n%f; ", r.FinalScore)
		}
		fmt.Fprintf(bw, "%d ", r.ID)
	}
	fmt.Fprint(bw, "\n\n")
	return bw.Flush()
}

// Write renders both views to w: the band listing first, then the per-student
// scores.
func Write(w io.Writer, byID, byBand []types.Result) error {
	if err := WriteByBand(w, byBand); err != nil {
		return err
	}
	return WriteByStudent(w, byID)
}

// WriteFile replaces path with both views.
func WriteFile(path string, byID, byBand []types.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	if err := Write(f, byID, byBand); err != nil {
		f.Close()
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("report: close %s: %w", path, err)
	}
	slog.Info("report: results written", "path", path, "students", len(byID))
	return nil
}
