// Package metrics renders run statistics as a Prometheus text exposition.
package metrics

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/roughmark/roughmark/internal/dispatch"
	"github.com/roughmark/roughmark/pkg/types"
)

// Metric names.
const (
	MessagesSent     = "roughmark_messages_sent_total"
	ResultsCollected = "roughmark_results_collected_total"
	Items            = "roughmark_items"
	Workers          = "roughmark_workers"
	RunDuration      = "roughmark_run_duration_seconds"
	RunFailed        = "roughmark_run_failed"
	BandStudents     = "roughmark_band_students"
)

// Families builds the metric families for one run. byBand may be nil when the
// run did not reach banding; the band family is then omitted.
func Families(st dispatch.Stats, byBand []types.Result) []*dto.MetricFamily {
	runLabel := label("run_id", st.RunID)

	sent := family(MessagesSent, "Envelopes sent by the coordinator, by tag.", dto.MetricType_COUNTER)
	for _, tag := range types.Tags {
		sent.Metric = append(sent.Metric, &dto.Metric{
			Label:   []*dto.LabelPair{runLabel, label("tag", tag.String())},
			Counter: &dto.Counter{Value: proto.Float64(float64(st.Sent[tag]))},
		})
	}

	collected := family(ResultsCollected, "Results collected by the coordinator, by worker rank.", dto.MetricType_COUNTER)
	ranks := make([]int, 0, len(st.ResultsByWorker))
	for r := range st.ResultsByWorker {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)
	for _, r := range ranks {
		collected.Metric = append(collected.Metric, &dto.Metric{
			Label:   []*dto.LabelPair{runLabel, label("worker", strconv.Itoa(r))},
			Counter: &dto.Counter{Value: proto.Float64(float64(st.ResultsByWorker[r]))},
		})
	}

	failed := 0.0
	if st.Phase == dispatch.PhaseFailed {
		failed = 1
	}

	mfs := []*dto.MetricFamily{
		sent,
		collected,
		gauge(Items, "Work items in the run.", runLabel, float64(st.Items)),
		gauge(Workers, "Worker processes in the pool.", runLabel, float64(st.Workers)),
		gauge(RunDuration, "Wall time of the run.", runLabel, st.Duration().Seconds()),
		gauge(RunFailed, "1 if the run ended in a fault.", runLabel, failed),
	}

	if byBand != nil {
		counts := make(map[float64]int, 5)
		for _, r := range byBand {
			counts[r.FinalScore]++
		}
		bands := family(BandStudents, "Students per final-score band.", dto.MetricType_GAUGE)
		for _, b := range []float64{0, 1, 2, 3, 4} {
			bands.Metric = append(bands.Metric, &dto.Metric{
				Label: []*dto.LabelPair{label("band", strconv.FormatFloat(b, 'f', 0, 64)), runLabel},
				Gauge: &dto.Gauge{Value: proto.Float64(float64(counts[b]))},
			})
		}
		mfs = append(mfs, bands)
	}
	return mfs
}

// Write renders mfs to w in the Prometheus text format.
func Write(w io.Writer, mfs []*dto.MetricFamily) error {
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("metrics: write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteFile replaces path with the exposition for one run.
func WriteFile(path string, st dispatch.Stats, byBand []types.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("metrics: create %s: %w", path, err)
	}
	if err := Write(f, Families(st, byBand)); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("metrics: close %s: %w", path, err)
	}
	slog.Info("metrics: written", "path", path, "run_id", st.RunID)
	return nil
}

func family(name, help string, typ dto.MetricType) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: typ.Enum(),
	}
}

func gauge(name, help string, lp *dto.LabelPair, v float64) *dto.MetricFamily {
	mf := family(name, help, dto.MetricType_GAUGE)
	mf.Metric = []*dto.Metric{{
		Label: []*dto.LabelPair{lp},
		Gauge: &dto.Gauge{Value: proto.Float64(v)},
	}}
	return mf
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: proto.String(name), Value: proto.String(value)}
}
