package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"extractd/internal/domain"
	"extractd/internal/middleware"
	"extractd/internal/service"
)

type createJobRequest struct {
	Name     string `json:"name"`
	SchemaID string `json:"schema_id"`
}

func (a *App) JobsCreate(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	job, err := a.Service.Create(r.Context(), req.Name, req.SchemaID, middleware.ActorFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "schema not found")
			return
		}
		a.serviceError(w, err)
		return
	}
	a.json(w, http.StatusCreated, jobPayload(job, nil))
}

func (a *App) JobsList(w http.ResponseWriter, r *http.Request) {
	jobs, err := a.Service.List(r.Context())
	if err != nil {
		a.serviceError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(jobs))
	for i := range jobs {
		items = append(items, jobPayload(&jobs[i], nil))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) JobsGet(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	job, docs, err := a.Service.Get(r.Context(), jobID)
	if err != nil {
		a.serviceError(w, err)
		return
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	a.json(w, http.StatusOK, jobPayload(job, docs))
}

func (a *App) JobsStatus(w http.ResponseWriter, r *http.Request) {
	view, err := a.Service.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.serviceError(w, err)
		return
	}
	payload := map[string]any{
		"job_id":   view.JobID,
		"status":   string(view.Status),
		"progress": view.Progress,
	}
	if view.ErrorMessage != "" {
		payload["error_message"] = view.ErrorMessage
	}
	if view.ExternalRunID != nil {
		payload["external_run_id"] = *view.ExternalRunID
	}
	a.json(w, http.StatusOK, payload)
}

// JobsUpload accepts a multipart batch of documents under the "files" field.
// The whole batch is validated before anything is stored; a rejected batch
// leaves the job untouched.
func (a *App) JobsUpload(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	if err := r.ParseMultipartForm(a.MaxUploadBytes); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	var files []service.File
	for _, header := range r.MultipartForm.File["files"] {
		f, err := header.Open()
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "unreadable file "+header.Filename)
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, a.MaxUploadBytes+1))
		f.Close()
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "unreadable file "+header.Filename)
			return
		}
		files = append(files, service.File{Name: header.Filename, Data: data})
	}

	res, err := a.Service.Upload(r.Context(), jobID, files, middleware.ActorFromContext(r.Context()))
	if err != nil {
		a.serviceError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"job_id":         res.JobID,
		"uploaded_files": res.UploadedFiles,
		"count":          res.Count,
	})
}

func (a *App) JobsTrigger(w http.ResponseWriter, r *http.Request) {
	job, err := a.Service.Trigger(r.Context(), chi.URLParam(r, "id"), middleware.ActorFromContext(r.Context()))
	if err != nil {
		a.serviceError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, jobPayload(job, nil))
}

// JobsRefresh forces a reconciliation pass outside the regular cadence.
func (a *App) JobsRefresh(w http.ResponseWriter, r *http.Request) {
	a.Poller.Refresh()
	a.json(w, http.StatusAccepted, map[string]string{"status": "refresh scheduled"})
}

func jobPayload(job *domain.Job, docs []domain.Document) map[string]any {
	payload := map[string]any{
		"id":         job.ID,
		"name":       job.Name,
		"schema_id":  job.SchemaID,
		"status":     string(job.Status),
		"progress":   job.ProgressHint,
		"created_at": job.CreatedAt,
		"updated_at": job.UpdatedAt,
	}
	if job.ExternalRunID != nil {
		payload["external_run_id"] = *job.ExternalRunID
	}
	if job.ErrorMessage != "" {
		payload["error_message"] = job.ErrorMessage
	}
	if job.CompletedAt != nil {
		payload["completed_at"] = *job.CompletedAt
	}
	if docs != nil {
		items := make([]map[string]any, 0, len(docs))
		for _, d := range docs {
			items = append(items, map[string]any{
				"id":          d.ID,
				"filename":    d.Filename,
				"size":        d.Size,
				"uploaded_at": d.UploadedAt,
			})
		}
		payload["documents"] = items
	}
	return payload
}
