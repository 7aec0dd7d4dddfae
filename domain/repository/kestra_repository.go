package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/remedyops/remedy/domain/entity"
)

// KestraRepository drives remediation workflows on a Kestra instance. Every
// failure mode, transport errors included, is reported through the
// ExecutionResult so the pipeline never sees a raw error from here.
type KestraRepository struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	pollInterval time.Duration
	maxWait      time.Duration
	sleep        func(time.Duration)
}

func NewKestraRepository(baseURL string, pollInterval, maxWait time.Duration) *KestraRepository {
	return &KestraRepository{
		baseURL:      baseURL,
		apiKey:       os.Getenv("KESTRA_API_KEY"),
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		pollInterval: pollInterval,
		maxWait:      maxWait,
		sleep:        time.Sleep,
	}
}

type kestraExecution struct {
	ID    string `json:"id"`
	State struct {
		Current   string `json:"current"`
		Duration  string `json:"duration"`
		Histories []any  `json:"histories"`
	} `json:"state"`
	Outputs map[string]any `json:"outputs"`
}

func (r *KestraRepository) TriggerWorkflow(ctx context.Context, workflowID string, inputs map[string]any) *entity.ExecutionResult {
	body, err := json.Marshal(map[string]any{"inputs": inputs})
	if err != nil {
		return &entity.ExecutionResult{Success: false, Err: fmt.Sprintf("failed to encode workflow inputs: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/api/v1/executions/%s", r.baseURL, workflowID), bytes.NewReader(body))
	if err != nil {
		return &entity.ExecutionResult{Success: false, Err: err.Error()}
	}
	r.setHeaders(req)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return &entity.ExecutionResult{Success: false, Err: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(resp.Body)
		return &entity.ExecutionResult{
			Success: false,
			Err:     fmt.Sprintf("failed to trigger workflow: %s", string(detail)),
		}
	}

	var execution kestraExecution
	if err := json.NewDecoder(resp.Body).Decode(&execution); err != nil {
		return &entity.ExecutionResult{Success: false, Err: fmt.Sprintf("unparseable trigger response: %v", err)}
	}
	if execution.ID == "" {
		return &entity.ExecutionResult{Success: false, Err: "trigger response carries no execution id"}
	}

	slog.Info("workflow triggered",
		slog.String("workflow_id", workflowID),
		slog.String("execution_id", execution.ID))

	return r.waitForExecution(ctx, execution.ID)
}

// waitForExecution polls the execution status at a fixed interval until a
// terminal state or the wait budget runs out. The loop is bounded: it always
// returns, never hangs the pipeline.
func (r *KestraRepository) waitForExecution(ctx context.Context, executionID string) *entity.ExecutionResult {
	iterations := int(r.maxWait / r.pollInterval)

	for i := 0; i < iterations; i++ {
		execution, err := r.fetchExecution(ctx, executionID)
		if err != nil {
			slog.Warn("execution status fetch failed",
				slog.String("execution_id", executionID), slog.Any("error", err))
		} else {
			switch execution.State.Current {
			case "SUCCESS":
				return &entity.ExecutionResult{
					Success:     true,
					ExecutionID: executionID,
					Outputs:     execution.Outputs,
					Duration:    execution.State.Duration,
				}
			case "FAILED", "KILLED":
				histories, _ := json.Marshal(execution.State.Histories)
				return &entity.ExecutionResult{
					Success:     false,
					ExecutionID: executionID,
					Err:         string(histories),
				}
			}
		}

		if ctx.Err() != nil {
			return &entity.ExecutionResult{Success: false, ExecutionID: executionID, Err: ctx.Err().Error()}
		}
		r.sleep(r.pollInterval)
	}

	return &entity.ExecutionResult{
		Success:     false,
		ExecutionID: executionID,
		Err:         "execution timeout",
	}
}

func (r *KestraRepository) fetchExecution(ctx context.Context, executionID string) (*kestraExecution, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/v1/executions/%s", r.baseURL, executionID), nil)
	if err != nil {
		return nil, err
	}
	r.setHeaders(req)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var execution kestraExecution
	if err := json.NewDecoder(resp.Body).Decode(&execution); err != nil {
		return nil, err
	}
	return &execution, nil
}

func (r *KestraRepository) setHeaders(req *http.Request) {
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
}
