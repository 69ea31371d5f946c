package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/yanizio/sqlscope/internal/config"
)

const maxBody = 1 << 20

// Error identifiers used in addition to config.Kind names.
const (
	errBadRequest   = "bad_request"
	errInvalidLimit = "invalid_limit"
	errUpstream     = "upstream_unavailable"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Warnw("encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorBody{Error: kind, Message: msg})
}

// fail maps err to a status.  Config failures carry their own kind; any
// other error came from an upstream backend.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := config.KindOf(err)
	status := http.StatusBadGateway
	name := errUpstream

	switch kind {
	case config.KindValidation:
		status, name = http.StatusUnprocessableEntity, kind.String()
	case config.KindParse, config.KindSource:
		status, name = http.StatusInternalServerError, kind.String()
	case config.KindPersistence, config.KindTargetUnspecified:
		status, name = http.StatusServiceUnavailable, kind.String()
	}

	zap.S().Errorw("request failed", "path", r.URL.Path, "status", status, "kind", name, "err", err)
	writeError(w, status, name, err.Error())
}

// decode reads a JSON body into v.  An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, errBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// limitParam reads the "limit" query parameter, falling back to def and
// enforcing 1..hi.
func limitParam(w http.ResponseWriter, r *http.Request, def, hi int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err == nil {
		err = validate.Var(n, fmt.Sprintf("min=1,max=%d", hi))
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, errInvalidLimit,
			fmt.Sprintf("limit must be an integer between 1 and %d", hi))
		return 0, false
	}
	return n, true
}
