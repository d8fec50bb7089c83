package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// StatusError is a response with a non-success status. Message carries the
// backend's structured error string when the body had one.
type StatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Message    string
	Details    string
}

func (e *StatusError) Error() string {
	if e == nil {
		return "backend status error"
	}
	if e.Message != "" {
		return fmt.Sprintf("backend %s: %s", e.Operation, e.Message)
	}
	return fmt.Sprintf("backend %s status: %s", e.Operation, e.Status)
}

// errorBody is the backend's structured error payload: {error | detail,
// details?, timestamp?}.
type errorBody struct {
	Error   string `json:"error"`
	Detail  string `json:"detail"`
	Details string `json:"details"`
}

func newStatusError(operation string, resp *http.Response) *StatusError {
	statusErr := &StatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		switch {
		case strings.TrimSpace(body.Error) != "":
			statusErr.Message = strings.TrimSpace(body.Error)
		case strings.TrimSpace(body.Detail) != "":
			statusErr.Message = strings.TrimSpace(body.Detail)
		}
		statusErr.Details = strings.TrimSpace(body.Details)
	}
	return statusErr
}

func (c *Client) getJSON(ctx context.Context, path string, out any, operation string) error {
	err := c.executor.Execute(ctx, operation, func(ctx context.Context) error {
		return c.doGet(ctx, path, out, operation)
	}, classifyBackendError)
	return c.finalize(ctx, operation, err)
}

func (c *Client) doGet(ctx context.Context, path string, out any, operation string) error {
	attemptCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return newStatusError(operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
