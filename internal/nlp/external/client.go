// Package external calls a remote intent model over HTTP.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"agribot-workers/internal/nlp"
)

var (
	ErrIntentParsingFailed = errors.New("INTENT_PARSING_FAILED")
	ErrIntentAPITimeout    = errors.New("INTENT_API_TIMEOUT")
)

const parseIntentPath = "/api/ai/parse-intent"

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	Model      string
}

type Client struct {
	config Config
	client *http.Client
	logger Logger
}

func NewClient(config Config, log Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &Client{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		logger: log,
	}
}

type entity struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type apiResponse struct {
	Intent     string   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Entities   []entity `json:"entities"`
	Model      string   `json:"model"`
}

// Classify asks the remote model for the message intent. Non-200 responses
// are retried with exponential backoff.
func (c *Client) Classify(ctx context.Context, text string, conv nlp.Context) (*nlp.ExternalModel, error) {
	body, err := json.Marshal(map[string]interface{}{
		"query":   text,
		"context": conv,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntentParsingFailed, err)
	}

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ErrIntentAPITimeout
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+parseIntentPath, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIntentParsingFailed, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		}

		resp, lastErr = c.client.Do(req)

		if ctx.Err() != nil ||
			errors.Is(lastErr, context.DeadlineExceeded) ||
			errors.Is(lastErr, context.Canceled) {
			if resp != nil {
				resp.Body.Close()
			}
			return nil, ErrIntentAPITimeout
		}

		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp = nil
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntentParsingFailed, lastErr)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: no successful response after retries", ErrIntentParsingFailed)
	}
	defer resp.Body.Close()

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrIntentParsingFailed, err)
	}
	if out.Intent == "" {
		return nil, fmt.Errorf("%w: empty intent", ErrIntentParsingFailed)
	}

	model := out.Model
	if model == "" {
		model = c.config.Model
	}

	result := &nlp.ExternalModel{
		Intent:     out.Intent,
		Confidence: out.Confidence,
		Model:      model,
	}
	for _, e := range out.Entities {
		if e.Type == "crop" || e.Type == "crops" {
			result.Crops = append(result.Crops, strings.ToLower(e.Value))
		}
	}

	c.logger.Info("intent classified by external model", map[string]interface{}{
		"intent":     result.Intent,
		"confidence": result.Confidence,
		"model":      result.Model,
		"cropCount":  len(result.Crops),
	})

	return result, nil
}
