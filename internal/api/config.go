package api

import (
	"io"
	"net/http"

	"github.com/yanizio/sqlscope/internal/config"
)

func (h *handlers) getConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, config.ExternalForm(h.deps.Config.Get()))
}

// putConfig merges a partial document into the live configuration.  Absent
// keys keep their values; explicit nulls restore defaults.
func (h *handlers) putConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, errBadRequest, err.Error())
		return
	}
	patch, err := config.ParsePatch(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, errBadRequest, err.Error())
		return
	}

	s, err := h.deps.Config.Update(patch)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, config.ExternalForm(s))
}

func (h *handlers) reloadConfig(w http.ResponseWriter, r *http.Request) {
	s, err := h.deps.Config.Reload()
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, config.ExternalForm(s))
}
