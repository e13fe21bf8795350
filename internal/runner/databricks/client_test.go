package databricks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"extractd/internal/domain"
)

func TestTriggerRunSendsNotebookParams(t *testing.T) {
	var gotPath string
	var gotBody runNowRequest
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(runNowResponse{RunID: 555})
	}))
	defer srv.Close()

	client, err := NewClient(Options{Host: srv.URL, Token: "secret", JobID: 42})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	runID, err := client.TriggerRun(context.Background(), "job-1", domain.TriggerParams{SchemaID: "schema-7"})
	if err != nil {
		t.Fatalf("trigger run: %v", err)
	}
	if runID != 555 {
		t.Fatalf("run id = %d, want 555", runID)
	}
	if gotPath != "/api/2.1/jobs/run-now" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotBody.JobID != 42 {
		t.Fatalf("job_id = %d, want 42", gotBody.JobID)
	}
	if gotBody.NotebookParams["job_id"] != "job-1" || gotBody.NotebookParams["schema_id"] != "schema-7" {
		t.Fatalf("notebook params = %v", gotBody.NotebookParams)
	}
}

func TestTriggerRunRejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error_code":"QUOTA_EXCEEDED"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, err := NewClient(Options{Host: srv.URL, JobID: 42})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.TriggerRun(context.Background(), "job-1", domain.TriggerParams{}); err == nil {
		t.Fatal("expected error on rejected trigger")
	}
}

func TestGetRunStatusMapping(t *testing.T) {
	cases := []struct {
		name      string
		state     runState
		lifecycle domain.RunLifecycle
		result    domain.RunResult
	}{
		{"pending", runState{LifeCycleState: "PENDING"}, domain.RunLifecyclePending, ""},
		{"queued", runState{LifeCycleState: "QUEUED"}, domain.RunLifecyclePending, ""},
		{"running", runState{LifeCycleState: "RUNNING"}, domain.RunLifecycleRunning, ""},
		{"terminating", runState{LifeCycleState: "TERMINATING"}, domain.RunLifecycleRunning, ""},
		{"success", runState{LifeCycleState: "TERMINATED", ResultState: "SUCCESS"}, domain.RunLifecycleTerminated, domain.RunResultSuccess},
		{"failure", runState{LifeCycleState: "TERMINATED", ResultState: "FAILED", StateMessage: "boom"}, domain.RunLifecycleTerminated, domain.RunResultFailure},
		{"internal error", runState{LifeCycleState: "INTERNAL_ERROR"}, domain.RunLifecycleTerminated, domain.RunResultFailure},
		{"unknown treated as pending", runState{LifeCycleState: "SOMETHING_NEW"}, domain.RunLifecyclePending, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.URL.Query().Get("run_id"); got != "555" {
					t.Fatalf("run_id = %q, want 555", got)
				}
				_ = json.NewEncoder(w).Encode(getRunResponse{RunID: 555, State: tc.state})
			}))
			defer srv.Close()

			client, err := NewClient(Options{Host: srv.URL, JobID: 42})
			if err != nil {
				t.Fatalf("new client: %v", err)
			}
			state, err := client.GetRunStatus(context.Background(), 555)
			if err != nil {
				t.Fatalf("get run status: %v", err)
			}
			if state.Lifecycle != tc.lifecycle || state.Result != tc.result {
				t.Fatalf("mapped state = %+v, want lifecycle %q result %q", state, tc.lifecycle, tc.result)
			}
		})
	}
}

func TestGetRunStatusHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	client, err := NewClient(Options{Host: srv.URL, JobID: 42})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.GetRunStatus(ctx, 555); err == nil {
		t.Fatal("expected error from canceled context")
	}
}
