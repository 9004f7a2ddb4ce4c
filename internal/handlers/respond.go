// Package handlers exposes the invoicing services as a JSON HTTP API.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/diewo77/smart-invoices/auth"
	"github.com/diewo77/smart-invoices/httpx"
	"github.com/diewo77/smart-invoices/internal/services"
	"github.com/diewo77/smart-invoices/validation"
	"github.com/rs/zerolog"
)

// writeError maps service errors onto status codes. Anything unrecognized is logged
// and answered with a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *services.ValidationError
	var conflict *services.ConflictError
	var dep *services.DependencyError
	switch {
	case errors.As(err, &verr):
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", verr.Violations)
	case errors.Is(err, services.ErrNotFound):
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
	case errors.Is(err, services.ErrInvalidCredentials):
		httpx.JSONError(w, http.StatusUnauthorized, "invalid_credentials", nil)
	case errors.As(err, &conflict):
		httpx.JSONError(w, http.StatusConflict, "conflict", map[string]string{"resource": conflict.Resource})
	case errors.As(err, &dep):
		zerolog.Ctx(r.Context()).Warn().Err(err).Str("service", dep.Service).Msg("dependency failed")
		httpx.JSONError(w, http.StatusBadGateway, "dependency_failed", map[string]string{"service": dep.Service})
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}

func badJSON(w http.ResponseWriter, err error) {
	httpx.JSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
}

// ownerID reads the authenticated user. Routes are mounted behind RequireAuth, so a
// missing id is answered as unauthorized rather than trusted.
func ownerID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthorized", nil)
	}
	return uid, ok
}

// pathID parses the {id} wildcard.
func pathID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil || id == 0 {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return 0, false
	}
	return uint(id), true
}

// queryInt reads an optional integer query parameter. Absent reads as 0, leaving the
// default to the service; a malformed value or one below min fails validation.
func queryInt(r *http.Request, name string, min int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &services.ValidationError{Violations: validation.Violations{name: "invalid"}}
	}
	if n < min {
		return 0, &services.ValidationError{Violations: validation.Violations{name: "out_of_range"}}
	}
	return n, nil
}
