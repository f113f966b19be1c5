package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/study-core/pkg/logger"
	"github.com/GoSim-25-26J-441/study-core/pkg/models"
	"github.com/GoSim-25-26J-441/study-core/pkg/utils"
)

var ErrInvalidURL = errors.New("invalid webhook URL")

// WebhookPayload is the JSON body posted to the callback URL
type WebhookPayload struct {
	Study     string              `json:"study"`
	Direction models.Direction    `json:"direction"`
	Trial     models.TrialRecord  `json:"trial"`
	Best      *models.TrialRecord `json:"best,omitempty"`
	Running   int                 `json:"running_count"`
	Completed int                 `json:"completed_count"`
	Timestamp int64               `json:"timestamp"` // When the callback was sent
}

// WebhookSink posts every trial update to a callback URL in the background.
type WebhookSink struct {
	url        string
	secret     string
	httpClient *http.Client
	maxRetries int
	backoff    utils.BackoffStrategy
	logger     *slog.Logger

	wg sync.WaitGroup
}

// NewWebhookSink creates a webhook sink. "{study}" in rawURL is replaced by
// the study name on every call.
func NewWebhookSink(rawURL, secret string, log *slog.Logger) (*WebhookSink, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	return &WebhookSink{
		url:    rawURL,
		secret: secret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		maxRetries: 3,
		backoff:    utils.NewExponentialBackoff(time.Second, 8*time.Second, false),
		logger:     logger.Or(log),
	}, nil
}

// WithBackoff replaces the retry delay strategy
func (s *WebhookSink) WithBackoff(b utils.BackoffStrategy) *WebhookSink {
	s.backoff = b
	return s
}

func validateURL(rawURL string) error {
	u, err := url.Parse(strings.ReplaceAll(rawURL, "{study}", "study"))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("%w: missing hostname", ErrInvalidURL)
	}
	return nil
}

// Publish returns immediately; delivery happens in a goroutine.
func (s *WebhookSink) Publish(_ context.Context, snap models.StudySnapshot) error {
	payload := WebhookPayload{
		Study:     snap.Study,
		Direction: snap.Direction,
		Trial:     snap.Event,
		Best:      snap.Best,
		Running:   snap.Running,
		Completed: snap.Completed,
		Timestamp: time.Now().UTC().UnixMilli(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	finalURL := strings.ReplaceAll(s.url, "{study}", url.PathEscape(snap.Study))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.send(finalURL, payload, body)
	}()
	return nil
}

// Close waits for in-flight deliveries.
func (s *WebhookSink) Close() error {
	s.wg.Wait()
	return nil
}

func (s *WebhookSink) send(callbackURL string, payload WebhookPayload, body []byte) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			delay := s.backoff.NextDelay(attempt - 1)
			s.logger.Debug("retrying webhook",
				"callback_url", callbackURL,
				"study", payload.Study,
				"attempt", attempt,
				"delay", delay)
			time.Sleep(delay)
		}

		req, err := http.NewRequest(http.MethodPost, callbackURL, bytes.NewReader(body))
		if err != nil {
			lastErr = fmt.Errorf("failed to create request: %w", err)
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "studyd/1.0")
		if s.secret != "" {
			req.Header.Set("X-Studyd-Callback-Secret", s.secret)
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			s.logger.Warn("webhook attempt failed",
				"callback_url", callbackURL,
				"study", payload.Study,
				"attempt", attempt+1,
				"error", err)
			continue
		}

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			s.logger.Debug("webhook delivered",
				"study", payload.Study,
				"trial_id", payload.Trial.ID,
				"status_code", resp.StatusCode)
			return
		}

		text := string(respBody)
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		s.logger.Warn("webhook returned non-2xx status",
			"callback_url", callbackURL,
			"study", payload.Study,
			"status_code", resp.StatusCode,
			"response_body", text,
			"attempt", attempt+1)
	}

	s.logger.Error("failed to deliver webhook after retries",
		"callback_url", callbackURL,
		"study", payload.Study,
		"trial_id", payload.Trial.ID,
		"max_retries", s.maxRetries,
		"last_error", lastErr)
}
