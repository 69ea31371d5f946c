package api

import "net/http"

func (h *handlers) telemetry(w http.ResponseWriter, r *http.Request) (Telemetry, bool) {
	t, err := h.deps.Telemetry(h.deps.Config.Get().Search)
	if err != nil {
		fail(w, r, err)
		return nil, false
	}
	return t, true
}

func (h *handlers) waitStats(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r, 50, 500)
	if !ok {
		return
	}
	t, ok := h.telemetry(w, r)
	if !ok {
		return
	}
	out, err := t.LatestWaits(r.Context(), r.URL.Query().Get("instance"), limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) blocking(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r, 50, 500)
	if !ok {
		return
	}
	t, ok := h.telemetry(w, r)
	if !ok {
		return
	}
	out, err := t.BlockingSessions(r.Context(), r.URL.Query().Get("instance"), limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) logs(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r, 100, 1000)
	if !ok {
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		q = "*"
	}
	t, ok := h.telemetry(w, r)
	if !ok {
		return
	}
	out, err := t.RawLogs(r.Context(), q, limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
