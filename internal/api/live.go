package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/yanizio/sqlscope/internal/database"
)

type liveQuery func(Live, context.Context, int) ([]database.Row, error)

// serveLive opens a collector for the current snapshot, runs one query, and
// closes it again.
func (h *handlers) serveLive(w http.ResponseWriter, r *http.Request, def int, run liveQuery) {
	limit, ok := limitParam(w, r, def, 500)
	if !ok {
		return
	}
	c, err := h.deps.Live(r.Context(), h.deps.Config.Get().Database)
	if err != nil {
		fail(w, r, err)
		return
	}
	defer func() {
		if err := c.Close(); err != nil {
			zap.S().Warnw("close sqlserver pool", "err", err)
		}
	}()

	rows, err := run(c, r.Context(), limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *handlers) liveWaits(w http.ResponseWriter, r *http.Request) {
	h.serveLive(w, r, 25, Live.WaitStats)
}

func (h *handlers) liveBlocking(w http.ResponseWriter, r *http.Request) {
	h.serveLive(w, r, 25, Live.Blocking)
}

func (h *handlers) liveSessions(w http.ResponseWriter, r *http.Request) {
	h.serveLive(w, r, 50, Live.ActiveSessions)
}
