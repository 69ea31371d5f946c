package api

import (
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/yanizio/sqlscope/internal/assistant"
	"github.com/yanizio/sqlscope/internal/search"
)

const defaultTitle = "SQL Server Health Report"

type insightsRequest struct {
	Title   string           `json:"title"`
	Metrics []map[string]any `json:"metrics"`
	Issues  string           `json:"issues"`
}

func (h *handlers) insights(w http.ResponseWriter, r *http.Request) {
	var req insightsRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Title == "" {
		req.Title = defaultTitle
	}

	a := h.deps.Analyzer(h.deps.Config.Get().Assistant)
	res, err := a.Analyze(r.Context(), req.Title, req.Metrics, req.Issues)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type reportRequest struct {
	Instance string `json:"instance"`
	Limit    int    `json:"limit" validate:"omitempty,min=1,max=500"`
	Title    string `json:"title"`
	Issues   string `json:"issues"`
}

type reportResponse struct {
	Waits    []search.WaitStat      `json:"waits"`
	Blocking []search.BlockingEvent `json:"blocking"`
	Analysis assistant.Result       `json:"analysis"`
}

// report pulls waits and blocking from the cluster in parallel and asks the
// assistant to summarise both.
func (h *handlers) report(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if !decode(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, errInvalidLimit, "limit must be an integer between 1 and 500")
		return
	}
	if req.Limit == 0 {
		req.Limit = 20
	}
	if req.Title == "" {
		req.Title = defaultTitle
		if req.Instance != "" {
			req.Title += ": " + req.Instance
		}
	}

	snap := h.deps.Config.Get()
	t, err := h.deps.Telemetry(snap.Search)
	if err != nil {
		fail(w, r, err)
		return
	}

	var out reportResponse
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		out.Waits, err = t.LatestWaits(ctx, req.Instance, req.Limit)
		return err
	})
	g.Go(func() (err error) {
		out.Blocking, err = t.BlockingSessions(ctx, req.Instance, req.Limit)
		return err
	})
	if err := g.Wait(); err != nil {
		fail(w, r, err)
		return
	}

	res, err := h.deps.Analyzer(snap.Assistant).
		Analyze(r.Context(), req.Title, reportMetrics(out.Waits, out.Blocking), req.Issues)
	if err != nil {
		fail(w, r, err)
		return
	}
	out.Analysis = res
	writeJSON(w, http.StatusOK, out)
}

// reportMetrics flattens both sample kinds into prompt lines.
func reportMetrics(waits []search.WaitStat, blocking []search.BlockingEvent) []map[string]any {
	out := make([]map[string]any, 0, len(waits)+len(blocking))
	for _, ws := range waits {
		out = append(out, map[string]any{
			"kind":          "wait",
			"instance":      ws.Instance,
			"wait_type":     ws.WaitType,
			"wait_time_ms":  ws.WaitTimeMS,
			"waiting_tasks": ws.WaitingTasks,
		})
	}
	for _, b := range blocking {
		out = append(out, map[string]any{
			"kind":                "blocking",
			"session_id":          b.SessionID,
			"blocking_session_id": b.BlockingSessionID,
			"wait_type":           b.WaitType,
			"duration_ms":         b.DurationMS,
		})
	}
	return out
}
