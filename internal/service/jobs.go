// Package service implements the job lifecycle operations exposed to the API
// layer: job creation, document upload, trigger, and status queries. Status
// transitions always go through the domain transition rules and are persisted
// with conditional updates, so a racing poller tick and handler call cannot
// silently clobber each other.
package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"extractd/internal/domain"
	"extractd/internal/infra"
	"extractd/internal/storage"
)

// ErrValidation marks upload input the handler rejected before touching any
// state: unsupported file type, oversized file, empty batch.
var ErrValidation = errors.New("invalid upload")

// BlobStore is the slice of the document store the upload handler needs.
type BlobStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// File is one uploaded document as received from the transport layer.
type File struct {
	Name string
	Data []byte
}

// UploadResult reports a fully successful upload.
type UploadResult struct {
	JobID         string
	UploadedFiles []string
	Count         int
}

// StatusView is the caller-facing snapshot of one job's progress.
type StatusView struct {
	JobID         string
	Status        domain.JobStatus
	Progress      int
	ErrorMessage  string
	ExternalRunID *int64
}

// Options wires the collaborators a JobService needs.
type Options struct {
	Jobs          domain.JobRepository
	Documents     domain.DocumentRepository
	Schemas       domain.SchemaRepository
	Activity      domain.ActivityRepository
	Runner        domain.Runner
	Store         BlobStore
	Logger        infra.Logger
	Metrics       *infra.Metrics
	RunnerTimeout time.Duration
	MaxFileSize   int64
	AllowedExts   []string
	Now           func() time.Time
}

// JobService coordinates job lifecycle operations.
type JobService struct {
	jobs          domain.JobRepository
	documents     domain.DocumentRepository
	schemas       domain.SchemaRepository
	activity      domain.ActivityRepository
	runner        domain.Runner
	store         BlobStore
	logger        infra.Logger
	metrics       *infra.Metrics
	runnerTimeout time.Duration
	maxFileSize   int64
	allowedExts   map[string]struct{}
	now           func() time.Time
}

// NewJobService builds a JobService from the given options.
func NewJobService(opts Options) *JobService {
	allowed := make(map[string]struct{}, len(opts.AllowedExts))
	for _, ext := range opts.AllowedExts {
		allowed[strings.ToLower(ext)] = struct{}{}
	}
	if opts.RunnerTimeout <= 0 {
		opts.RunnerTimeout = 20 * time.Second
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = 50 << 20
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &JobService{
		jobs:          opts.Jobs,
		documents:     opts.Documents,
		schemas:       opts.Schemas,
		activity:      opts.Activity,
		runner:        opts.Runner,
		store:         opts.Store,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		runnerTimeout: opts.RunnerTimeout,
		maxFileSize:   opts.MaxFileSize,
		allowedExts:   allowed,
		now:           opts.Now,
	}
}

// Create registers a new job in not_submitted after verifying the referenced
// schema exists.
func (s *JobService) Create(ctx context.Context, name, schemaID string, actor domain.Actor) (*domain.Job, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: job name is required", ErrValidation)
	}
	if _, err := s.schemas.GetByID(ctx, schemaID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("schema %q: %w", schemaID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("verify schema: %w", err)
	}

	job := &domain.Job{
		ID:        uuid.NewString(),
		Name:      name,
		SchemaID:  schemaID,
		Status:    domain.JobStatusNotSubmitted,
		CreatedAt: s.now(),
		UpdatedAt: s.now(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.record(ctx, job.ID, domain.ActivityCreate, job.Status, job.Status, "job created", "", actor)
	return job, nil
}

// List returns all jobs with their statuses already resolved; callers never
// compute status lazily, the poller keeps the store current.
func (s *JobService) List(ctx context.Context) ([]domain.Job, error) {
	return s.jobs.List(ctx)
}

// Get returns one job with its uploaded documents.
func (s *JobService) Get(ctx context.Context, jobID string) (*domain.Job, []domain.Document, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	docs, err := s.documents.ListByJob(ctx, jobID)
	if err != nil {
		return nil, nil, fmt.Errorf("list documents: %w", err)
	}
	return job, docs, nil
}

// Status returns the caller-facing status snapshot for one job.
func (s *JobService) Status(ctx context.Context, jobID string) (*StatusView, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &StatusView{
		JobID:         job.ID,
		Status:        job.Status,
		Progress:      progressFor(job),
		ErrorMessage:  job.ErrorMessage,
		ExternalRunID: job.ExternalRunID,
	}, nil
}

// Upload validates and stores a batch of documents, then moves the job to
// uploaded. Failure anywhere before the final persist leaves the job's status
// exactly as it was; only the returned error signals the problem. That
// asymmetry is a deliberate contract so callers can retry uploads freely.
func (s *JobService) Upload(ctx context.Context, jobID string, files []File, actor domain.Actor) (*UploadResult, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	next, err := domain.AfterUploadSuccess(job.Status)
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files provided", ErrValidation)
	}
	for _, f := range files {
		ext := strings.ToLower(path.Ext(f.Name))
		if _, ok := s.allowedExts[ext]; !ok {
			return nil, fmt.Errorf("%w: file type %q not supported", ErrValidation, ext)
		}
		if int64(len(f.Data)) > s.maxFileSize {
			return nil, fmt.Errorf("%w: file %q exceeds %d MB", ErrValidation, f.Name, s.maxFileSize>>20)
		}
	}

	dir := storage.JobDir(job.ID)
	uploaded := make([]string, 0, len(files))
	for _, f := range files {
		key, err := s.store.Write(ctx, path.Join(dir, path.Base(f.Name)), f.Data)
		if err != nil {
			return nil, fmt.Errorf("store %q: %w", f.Name, err)
		}
		doc := &domain.Document{
			ID:         uuid.NewString(),
			JobID:      job.ID,
			Filename:   path.Base(f.Name),
			StorageKey: key,
			Size:       int64(len(f.Data)),
		}
		if err := s.documents.Create(ctx, doc); err != nil {
			return nil, fmt.Errorf("record document %q: %w", f.Name, err)
		}
		uploaded = append(uploaded, doc.Filename)
	}

	progress := domain.ProgressPercent(next, "")
	if job.ProgressHint > progress {
		progress = job.ProgressHint
	}
	// A re-upload after a failed attempt starts the lifecycle over; the
	// failed run's id, error and completion time must not leak into the
	// fresh uploaded state.
	patch := domain.JobPatch{
		Status:             next,
		UploadDirectory:    &dir,
		ProgressHint:       &progress,
		ClearExternalRunID: true,
		ClearErrorMessage:  true,
		ClearCompletedAt:   true,
	}
	ok, err := s.jobs.UpdateStatus(ctx, job.ID, job.Status, patch)
	if err != nil {
		return nil, fmt.Errorf("persist upload: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: job %s changed concurrently", domain.ErrConflict, job.ID)
	}

	s.record(ctx, job.ID, domain.ActivityUpload, job.Status, next,
		fmt.Sprintf("uploaded %d files", len(uploaded)), strings.Join(uploaded, ", "), actor)
	s.logger.Info().Str("job_id", job.ID).Int("files", len(uploaded)).Msg("service: documents uploaded")

	return &UploadResult{JobID: job.ID, UploadedFiles: uploaded, Count: len(uploaded)}, nil
}

// Trigger synchronously asks the runner to start a run for the job. Success
// moves the job to processing with the returned run id; failure moves it to
// failed with the cause recorded, which is the only failed path that bypasses
// the poller. Polling for completion is entirely the poller's job afterwards.
func (s *JobService) Trigger(ctx context.Context, jobID string, actor domain.Actor) (*domain.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	next, err := domain.AfterTriggerSuccess(job.Status)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.runnerTimeout)
	runID, triggerErr := s.runner.TriggerRun(callCtx, job.ID, domain.TriggerParams{SchemaID: job.SchemaID})
	cancel()

	if triggerErr != nil {
		s.countRunnerCall("trigger", false)
		failed, stateErr := domain.AfterTriggerFailure(job.Status)
		if stateErr != nil {
			return nil, stateErr
		}
		msg := "failed to trigger processing: " + triggerErr.Error()
		completed := s.now()
		progress := domain.ProgressPercent(failed, "")
		patch := domain.JobPatch{
			Status:       failed,
			ErrorMessage: &msg,
			ProgressHint: &progress,
			CompletedAt:  &completed,
		}
		ok, err := s.jobs.UpdateStatus(ctx, job.ID, job.Status, patch)
		if err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("service: persist trigger failure")
		} else if ok {
			s.record(ctx, job.ID, domain.ActivityTrigger, job.Status, failed, "trigger failed", msg, actor)
			s.countTransition(job.Status, failed)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrTrigger, triggerErr)
	}

	s.countRunnerCall("trigger", true)
	progress := domain.ProgressPercent(next, domain.RunLifecyclePending)
	patch := domain.JobPatch{
		Status:            next,
		ExternalRunID:     &runID,
		ProgressHint:      &progress,
		ClearErrorMessage: true,
		ClearCompletedAt:  true,
	}
	ok, err := s.jobs.UpdateStatus(ctx, job.ID, job.Status, patch)
	if err != nil {
		return nil, fmt.Errorf("persist trigger: %w", err)
	}
	if !ok {
		// The run was started but someone else transitioned the job first.
		// The record wins; the orphaned run finishes on its own remotely.
		s.logger.Warn().Str("job_id", job.ID).Int64("run_id", runID).Msg("service: trigger lost update race")
		return nil, fmt.Errorf("%w: job %s changed concurrently", domain.ErrConflict, job.ID)
	}

	s.record(ctx, job.ID, domain.ActivityTrigger, job.Status, next,
		"processing triggered", fmt.Sprintf("run_id=%d", runID), actor)
	s.countTransition(job.Status, next)
	s.logger.Info().Str("job_id", job.ID).Int64("run_id", runID).Msg("service: processing triggered")

	job.Status = next
	job.ExternalRunID = &runID
	job.ProgressHint = progress
	job.ErrorMessage = ""
	job.CompletedAt = nil
	return job, nil
}

// ActivityLog returns recent audit entries.
func (s *JobService) ActivityLog(ctx context.Context, limit, offset int) ([]domain.ActivityEntry, error) {
	return s.activity.ListRecent(ctx, limit, offset)
}

// progressFor reconciles the stored hint with the floor implied by the
// status, keeping the displayed value monotone until terminal.
func progressFor(job *domain.Job) int {
	p := domain.ProgressPercent(job.Status, "")
	if !job.Status.Terminal() && job.ProgressHint > p {
		return job.ProgressHint
	}
	return p
}

func (s *JobService) record(ctx context.Context, jobID, event string, from, to domain.JobStatus, message, detail string, actor domain.Actor) {
	entry := &domain.ActivityEntry{
		ID:         uuid.NewString(),
		JobID:      jobID,
		EventType:  event,
		FromStatus: from,
		ToStatus:   to,
		Message:    message,
		Detail:     detail,
		UserID:     actor.UserID,
		UserEmail:  actor.Email,
		Country:    actor.Country,
	}
	if err := s.activity.Record(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Str("event", event).Msg("service: record activity")
	}
}

func (s *JobService) countRunnerCall(op string, ok bool) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	s.metrics.RunnerCalls.WithLabelValues(op, outcome).Inc()
}

func (s *JobService) countTransition(from, to domain.JobStatus) {
	if s.metrics == nil {
		return
	}
	s.metrics.Transitions.WithLabelValues(string(from), string(to)).Inc()
}
