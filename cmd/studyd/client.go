package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// apiClient talks to the studyd HTTP API.
type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func newAPIClient(baseURL, token string) *apiClient {
	return &apiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type askReply struct {
	TrialID   int64          `json:"trial_id"`
	Params    map[string]any `json:"params"`
	Running   int            `json:"running_count"`
	Completed int            `json:"completed_count"`
}

type tellReply struct {
	TrialID     int64          `json:"trial_id"`
	State       string         `json:"state"`
	BestTrialID *int64         `json:"best_trial_id"`
	BestParams  map[string]any `json:"best_params"`
	BestValue   *float64       `json:"best_value"`
	Running     int            `json:"running_count"`
	Completed   int            `json:"completed_count"`
}

func (c *apiClient) ask(ctx context.Context, study, spaceYAML, direction string) (askReply, error) {
	body := map[string]any{}
	if spaceYAML != "" {
		body["search_space_yaml"] = spaceYAML
	}
	if direction != "" {
		body["direction"] = direction
	}
	var out askReply
	err := c.do(ctx, http.MethodPost, "/v1/studies/"+url.PathEscape(study)+"/ask", body, &out)
	return out, err
}

func (c *apiClient) tell(ctx context.Context, study string, trialID int64, value float64) (tellReply, error) {
	body := map[string]any{"trial_id": trialID, "value": value}
	var out tellReply
	err := c.do(ctx, http.MethodPost, "/v1/studies/"+url.PathEscape(study)+"/tell", body, &out)
	return out, err
}

func (c *apiClient) fail(ctx context.Context, study string, trialID int64) error {
	body := map[string]any{"trial_id": trialID, "state": "FAILED"}
	return c.do(ctx, http.MethodPost, "/v1/studies/"+url.PathEscape(study)+"/tell", body, nil)
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, apiErr.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
