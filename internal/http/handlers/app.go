// Package handlers maps the HTTP surface onto the job service. Handlers only
// translate transport concerns; every lifecycle rule lives in the service and
// domain layers.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"extractd/internal/domain"
	"extractd/internal/infra"
	"extractd/internal/service"
)

// Refresher is the slice of the poller the API needs: an immediate
// reconciliation pass, coalesced if one is already running.
type Refresher interface {
	Refresh()
}

type App struct {
	Service *service.JobService
	Poller  Refresher
	Logger  infra.Logger

	MaxUploadBytes int64
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]any{
		"error": map[string]string{"code": kind, "message": message},
	})
}

// serviceError maps lifecycle errors onto HTTP statuses. Precondition and
// conflict violations are both 409: the caller's view of the job was stale
// either way.
func (a *App) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "job not found")
	case errors.Is(err, service.ErrValidation):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case domain.IsPrecondition(err):
		a.error(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, domain.ErrConflict):
		a.error(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrTrigger):
		a.error(w, http.StatusBadGateway, "trigger_failed", err.Error())
	default:
		a.Logger.Error().Err(err).Msg("handlers: unhandled service error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
