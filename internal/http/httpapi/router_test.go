package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"extractd/internal/domain"
	"extractd/internal/http/handlers"
	"extractd/internal/service"
)

type stubJobs struct{}

func (stubJobs) Create(ctx context.Context, job *domain.Job) error { return nil }

func (stubJobs) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	return nil, domain.ErrNotFound
}

func (stubJobs) List(ctx context.Context) ([]domain.Job, error) { return nil, nil }

func (stubJobs) UpdateStatus(ctx context.Context, jobID string, expected domain.JobStatus, patch domain.JobPatch) (bool, error) {
	return false, nil
}

type stubRefresher struct{ calls int }

func (s *stubRefresher) Refresh() { s.calls++ }

func newTestRouter(t *testing.T, ratePerMin int) http.Handler {
	t.Helper()
	svc := service.NewJobService(service.Options{
		Jobs:   stubJobs{},
		Logger: zerolog.Nop(),
	})
	app := &handlers.App{
		Service:        svc,
		Poller:         &stubRefresher{},
		Logger:         zerolog.Nop(),
		MaxUploadBytes: 1 << 20,
	}
	return NewRouter(app, Options{
		Logger:          zerolog.Nop(),
		RateLimitPerMin: ratePerMin,
	})
}

func get(router http.Handler, target string) int {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec.Code
}

func post(router http.Handler, target string) int {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, nil))
	return rec.Code
}

func TestRateLimitGuardsMutatingRoutesOnly(t *testing.T) {
	router := newTestRouter(t, 1)

	for i := 0; i < 3; i++ {
		if code := get(router, "/v1/jobs"); code != http.StatusOK {
			t.Fatalf("GET /v1/jobs attempt %d = %d, want 200", i+1, code)
		}
		if code := get(router, "/v1/healthz"); code != http.StatusOK {
			t.Fatalf("GET /v1/healthz attempt %d = %d, want 200", i+1, code)
		}
	}

	if code := post(router, "/v1/jobs/refresh"); code != http.StatusAccepted {
		t.Fatalf("first POST /v1/jobs/refresh = %d, want 202", code)
	}
	if code := post(router, "/v1/jobs/refresh"); code != http.StatusTooManyRequests {
		t.Fatalf("second POST /v1/jobs/refresh = %d, want 429", code)
	}

	// Reads stay unthrottled after the mutating budget is spent.
	if code := get(router, "/v1/jobs"); code != http.StatusOK {
		t.Fatalf("GET /v1/jobs after limit = %d, want 200", code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	router := newTestRouter(t, 0)

	for i := 0; i < 5; i++ {
		if code := post(router, "/v1/jobs/refresh"); code != http.StatusAccepted {
			t.Fatalf("POST /v1/jobs/refresh attempt %d = %d, want 202", i+1, code)
		}
	}
}
