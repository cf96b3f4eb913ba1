package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/common/expfmt"

	"github.com/roughmark/roughmark/internal/metrics"
	"github.com/roughmark/roughmark/internal/report"
	"github.com/roughmark/roughmark/internal/status"
	"github.com/roughmark/roughmark/pkg/types"
)

// Handler is the HTTP handler for the status surface.
type Handler struct {
	store *status.Store
	mux   *http.ServeMux
}

// New creates a Handler wired to the given run store and registers all routes.
func New(st *status.Store) http.Handler {
	h := &Handler{store: st, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/run", h.latestRun)
	h.mux.HandleFunc("/api/v1/runs", h.listRuns)
	h.mux.HandleFunc("/api/v1/runs/", h.getRun) // subtree, extracts {id}
	h.mux.HandleFunc("/api/v1/results", h.results)
	h.mux.HandleFunc("/metrics", h.metrics)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// latestRun returns GET /api/v1/run.
func (h *Handler) latestRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp, ok := Progress(h.store)
	if !ok {
		jsonErr(w, http.StatusNotFound, "no run yet")
		return
	}
	jsonResp(w, http.StatusOK, resp)
}

// listRuns returns GET /api/v1/runs.
func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	runs := h.store.List()
	out := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunResponse(run))
	}
	jsonResp(w, http.StatusOK, out)
}

// getRun returns GET /api/v1/runs/{id}.
func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
	if id == "" {
		h.listRuns(w, r)
		return
	}
	run, ok := h.store.Get(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "run not found")
		return
	}
	jsonResp(w, http.StatusOK, toRunResponse(run))
}

// results returns GET /api/v1/results for the latest run, once it finished
// without a fault.
func (h *Handler) results(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	run, ok := h.store.Latest()
	if !ok || !run.Finished() {
		jsonErr(w, http.StatusNotFound, "no finished run")
		return
	}
	if run.Error != "" {
		jsonErr(w, http.StatusConflict, "latest run failed: "+run.Error)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		var buf bytes.Buffer
		if err := report.Write(&buf, run.ByID, run.ByBand); err != nil {
			jsonErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes()) //nolint:errcheck
		return
	}

	jsonResp(w, http.StatusOK, ResultsResponse{
		RunID:  run.ID,
		ByID:   run.ByID,
		ByBand: groupBands(run.ByBand),
	})
}

// metrics returns GET /metrics for the last run whose statistics were recorded.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	st, ok := h.store.Stats()
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	var byBand []types.Result
	if run, found := h.store.Get(st.RunID); found && run.Error == "" {
		byBand = run.ByBand
	}

	var buf bytes.Buffer
	if err := metrics.Write(&buf, metrics.Families(st, byBand)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes()) //nolint:errcheck
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

func toRunResponse(r status.RunInfo) RunResponse {
	out := RunResponse{
		RunID:      r.ID,
		Phase:      string(r.Phase),
		Workers:    r.Workers,
		Items:      r.Items,
		Dispatched: r.Dispatched,
		Collected:  r.Collected,
		Progress:   r.Progress(),
		PerWorker:  r.PerWorker,
		StartedAt:  r.StartedAt.UTC().Format(time.RFC3339),
		Error:      r.Error,
	}
	if r.Finished() {
		out.FinishedAt = r.FinishedAt.UTC().Format(time.RFC3339)
	}
	return out
}

// groupBands folds score-ordered results into contiguous runs of equal
// final score, the same grouping the results file prints.
func groupBands(byBand []types.Result) []BandGroup {
	out := make([]BandGroup, 0, 5)
	for i, r := range byBand {
		if i == 0 || r.FinalScore != byBand[i-1].FinalScore {
			out = append(out, BandGroup{FinalScore: r.FinalScore})
		}
		g := &out[len(out)-1]
		g.IDs = append(g.IDs, r.ID)
	}
	return out
}

// Progress returns the latest run as the status surface renders it.
func Progress(st *status.Store) (RunResponse, bool) {
	run, ok := st.Latest()
	if !ok {
		return RunResponse{}, false
	}
	return toRunResponse(run), true
}
