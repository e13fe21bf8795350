package handlers

import (
	"net/http"
	"strconv"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

const (
	defaultLogLimit = 50
	maxLogLimit     = 200
)

// Logs returns recent activity entries, newest first. Event types are echoed
// alongside a display label so the UI does not hardcode the vocabulary.
func (a *App) Logs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultLogLimit)
	if limit < 1 || limit > maxLogLimit {
		limit = defaultLogLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	entries, err := a.Service.ActivityLog(r.Context(), limit, offset)
	if err != nil {
		a.serviceError(w, err)
		return
	}

	items := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		item := map[string]any{
			"id":          e.ID,
			"job_id":      e.JobID,
			"event_type":  e.EventType,
			"event_label": titleCaser.String(e.EventType),
			"from_status": string(e.FromStatus),
			"to_status":   string(e.ToStatus),
			"message":     e.Message,
			"created_at":  e.CreatedAt,
		}
		if e.Detail != "" {
			item["detail"] = e.Detail
		}
		if e.UserID != "" {
			item["user_id"] = e.UserID
		}
		if e.UserEmail != "" {
			item["user_email"] = e.UserEmail
		}
		if e.Country != "" {
			item["country"] = e.Country
		}
		items = append(items, item)
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
