// Package databricks implements the external runner port over the Databricks
// Jobs REST API. The service never sees Databricks types; run states are
// mapped onto the domain's coarse lifecycle before they leave this package.
package databricks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"extractd/internal/domain"
	"extractd/internal/infra"
)

// Options controls how the client is configured.
type Options struct {
	Host       string
	Token      string
	JobID      int64
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client calls the Databricks Jobs API (run-now / runs get) for a single
// configured job definition. Each local extraction job maps to one run of
// that definition, parameterized by job and schema id.
type Client struct {
	host       string
	token      string
	jobID      int64
	httpClient *http.Client
	logger     *infra.Logger
}

// NewClient validates the options and builds a client.
func NewClient(opts Options) (*Client, error) {
	if opts.Host == "" {
		return nil, errors.New("databricks: host is required")
	}
	if opts.JobID == 0 {
		return nil, errors.New("databricks: job id is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		host:       opts.Host,
		token:      opts.Token,
		jobID:      opts.JobID,
		httpClient: httpClient,
		logger:     opts.Logger,
	}, nil
}

type runNowRequest struct {
	JobID          int64             `json:"job_id"`
	NotebookParams map[string]string `json:"notebook_params,omitempty"`
}

type runNowResponse struct {
	RunID int64 `json:"run_id"`
}

type runState struct {
	LifeCycleState string `json:"life_cycle_state"`
	ResultState    string `json:"result_state"`
	StateMessage   string `json:"state_message"`
}

type getRunResponse struct {
	RunID int64    `json:"run_id"`
	State runState `json:"state"`
}

// TriggerRun starts a run for the given extraction job and returns the run id.
func (c *Client) TriggerRun(ctx context.Context, jobID string, params domain.TriggerParams) (int64, error) {
	body := runNowRequest{
		JobID: c.jobID,
		NotebookParams: map[string]string{
			"job_id":    jobID,
			"schema_id": params.SchemaID,
		},
	}
	var resp runNowResponse
	if err := c.do(ctx, http.MethodPost, "/api/2.1/jobs/run-now", body, &resp); err != nil {
		return 0, fmt.Errorf("databricks: trigger run: %w", err)
	}
	if resp.RunID == 0 {
		return 0, errors.New("databricks: run-now returned no run id")
	}
	return resp.RunID, nil
}

// GetRunStatus fetches the current state of a run and maps it onto the
// domain lifecycle.
func (c *Client) GetRunStatus(ctx context.Context, runID int64) (domain.RunState, error) {
	path := "/api/2.1/jobs/runs/get?run_id=" + url.QueryEscape(strconv.FormatInt(runID, 10))
	var resp getRunResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return domain.RunState{}, fmt.Errorf("databricks: get run %d: %w", runID, err)
	}
	return mapRunState(resp.State), nil
}

// mapRunState collapses Databricks lifecycle states onto the three coarse
// states the reconciliation logic understands. Lifecycle states that mean
// "this run will never produce a result" are treated as terminated failures.
func mapRunState(state runState) domain.RunState {
	mapped := domain.RunState{Message: state.StateMessage}
	switch state.LifeCycleState {
	case "PENDING", "QUEUED", "BLOCKED", "WAITING_FOR_RETRY":
		mapped.Lifecycle = domain.RunLifecyclePending
	case "RUNNING", "TERMINATING":
		mapped.Lifecycle = domain.RunLifecycleRunning
	case "TERMINATED":
		mapped.Lifecycle = domain.RunLifecycleTerminated
		if state.ResultState == "SUCCESS" {
			mapped.Result = domain.RunResultSuccess
		} else {
			mapped.Result = domain.RunResultFailure
			if mapped.Message == "" {
				mapped.Message = "run terminated with result " + state.ResultState
			}
		}
	case "SKIPPED", "INTERNAL_ERROR":
		mapped.Lifecycle = domain.RunLifecycleTerminated
		mapped.Result = domain.RunResultFailure
		if mapped.Message == "" {
			mapped.Message = "run ended in state " + state.LifeCycleState
		}
	default:
		// Unknown lifecycle states are treated as still pending; the next
		// reconciliation cycle re-reads them.
		mapped.Lifecycle = domain.RunLifecyclePending
	}
	return mapped
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.host+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if c.logger != nil {
			c.logger.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("databricks: request rejected")
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(raw, 256))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
