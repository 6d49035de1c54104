package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TaskAPI adapts a JSON task-style generation endpoint (submit returns a task
// id, polled until done) to the Provider contract. Image, video, audio and
// speaker backends all speak this shape.
type TaskAPI struct {
	name   string
	base   string
	apiKey string
	client *http.Client
}

type TaskAPIConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewTaskAPI(cfg TaskAPIConfig) *TaskAPI {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &TaskAPI{
		name:   cfg.Name,
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (t *TaskAPI) Name() string { return t.name }

type taskAPISubmitResponse struct {
	TaskID    string `json:"taskId"`
	ResultURL string `json:"resultUrl"`
}

type taskAPIPollResponse struct {
	Status       string `json:"status"`
	ResultURL    string `json:"resultUrl"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (t *TaskAPI) Submit(ctx context.Context, input map[string]any) (SubmitResult, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return SubmitResult{}, &ProviderError{Message: "encode request: " + err.Error()}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.base+"/generations", bytes.NewReader(body))
	if err != nil {
		return SubmitResult{}, &ProviderError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	raw, err := t.do(req)
	if err != nil {
		return SubmitResult{}, err
	}
	var resp taskAPISubmitResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return SubmitResult{}, &ProviderError{Message: "decode response: " + err.Error()}
	}
	if resp.TaskID == "" && resp.ResultURL == "" {
		return SubmitResult{}, &ProviderError{Message: "submit returned neither task id nor result"}
	}
	return SubmitResult{TaskID: resp.TaskID, ResultURL: resp.ResultURL}, nil
}

func (t *TaskAPI) Poll(ctx context.Context, taskID string) (PollResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.base+"/generations/"+taskID, nil)
	if err != nil {
		return PollResult{}, &ProviderError{Message: err.Error()}
	}
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	raw, err := t.do(req)
	if err != nil {
		return PollResult{}, err
	}
	var resp taskAPIPollResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return PollResult{}, &ProviderError{Message: "decode response: " + err.Error()}
	}
	out := PollResult{ResultURL: resp.ResultURL, Message: resp.ErrorMessage}
	switch strings.ToUpper(strings.TrimSpace(resp.Status)) {
	case "QUEUED", "PENDING":
		out.Status = StatusQueued
	case "RUNNING", "PROCESSING", "IN_PROGRESS":
		out.Status = StatusRunning
	case "SUCCESS", "SUCCEEDED", "COMPLETED":
		out.Status = StatusSuccess
	case "FAILED", "FAILURE":
		out.Status = StatusFailed
		if resp.ErrorCode != "" {
			out.Message = resp.ErrorCode + ": " + out.Message
		}
	default:
		out.Status = StatusRunning
	}
	return out, nil
}

// do executes the request and classifies the outcome: transport failures and
// 5xx responses are transient; 4xx responses are terminal, with 404 mapped to
// "task not found".
func (t *TaskAPI) do(req *http.Request) ([]byte, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &TransientError{Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, &ProviderError{Code: "404", Message: "task not found"}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &ProviderError{
			Code:    fmt.Sprintf("%d", resp.StatusCode),
			Message: strings.TrimSpace(string(body)),
		}
	default:
		return nil, &TransientError{
			Err: fmt.Errorf("%s returned %d: %s", t.name, resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}
}
