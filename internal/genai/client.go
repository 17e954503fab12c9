// Package genai talks to a Gemini-style generative language API: single-shot
// and streamed chat completions over stateful chat sessions.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL   = "https://generativelanguage.googleapis.com/v1beta"
	defaultTimeout   = 30 * time.Second
	streamingTimeout = 300 * time.Second
	maxRetries       = 3
	initialBackoff   = 500 * time.Millisecond
)

// Kind classifies an API failure.
type Kind int

const (
	KindTransient Kind = iota
	KindRateLimit
	KindSafetyBlocked
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimit:
		return "rate_limit"
	case KindSafetyBlocked:
		return "safety_blocked"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// APIError is the only error type returned for upstream failures.
type APIError struct {
	Kind   Kind
	Status int
	Msg    string
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("genai (%s, HTTP %d): %s", e.Kind, e.Status, e.Msg)
	}
	return fmt.Sprintf("genai (%s): %s", e.Kind, e.Msg)
}

// Content is one role-tagged conversation turn. Roles are "user" and "model".
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is a text fragment within a turn.
type Part struct {
	Text string `json:"text"`
}

// SafetySetting maps a harm category to a blocking threshold.
type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// DefaultSafetySettings block medium-and-above content in the standard
// categories.
func DefaultSafetySettings() []SafetySetting {
	categories := []string{
		"HARM_CATEGORY_HARASSMENT",
		"HARM_CATEGORY_HATE_SPEECH",
		"HARM_CATEGORY_SEXUALLY_EXPLICIT",
		"HARM_CATEGORY_DANGEROUS_CONTENT",
	}
	settings := make([]SafetySetting, len(categories))
	for i, c := range categories {
		settings[i] = SafetySetting{Category: c, Threshold: "BLOCK_MEDIUM_AND_ABOVE"}
	}
	return settings
}

// Client communicates with the generative language API.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	safety     []SafetySetting
}

// NewClient creates a client for the given API key and model name.
func NewClient(apiKey, model string) *Client {
	return &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: streamingTimeout},
		safety:     DefaultSafetySettings(),
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL (for
// testing).
func NewClientWithBaseURL(apiKey, model, baseURL string) *Client {
	c := NewClient(apiKey, model)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type generateRequest struct {
	Contents          []Content       `json:"contents"`
	SystemInstruction *Content        `json:"systemInstruction,omitempty"`
	SafetySettings    []SafetySetting `json:"safetySettings,omitempty"`
}

type generateResponse struct {
	Candidates     []candidate     `json:"candidates"`
	PromptFeedback *promptFeedback `json:"promptFeedback"`
}

type candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason"`
}

// Generate performs a single-shot completion and returns the full text.
func (c *Client) Generate(ctx context.Context, system *Content, contents []Content) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents:          contents,
		SystemInstruction: system,
		SafetySettings:    c.safety,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	rc, err := c.post(ctx, url, body)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var resp generateResponse
	if err := json.NewDecoder(rc).Decode(&resp); err != nil {
		return "", &APIError{Kind: KindTransient, Msg: "decoding response: " + err.Error()}
	}
	if blocked, reason := blockedBy(&resp); blocked {
		return "", &APIError{Kind: KindSafetyBlocked, Msg: reason}
	}
	return joinParts(resp.Candidates), nil
}

// stream opens a streamed completion. The returned body carries SSE events;
// the caller must close it. Rate-limit failures are retried with exponential
// backoff before the stream opens; once data flows, no retry happens here.
func (c *Client) stream(ctx context.Context, system *Content, contents []Content) (io.ReadCloser, error) {
	body, err := json.Marshal(generateRequest{
		Contents:          contents,
		SystemInstruction: system,
		SafetySettings:    c.safety,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", c.baseURL, c.model)

	var lastErr error
	for attempt := range maxRetries {
		rc, err := c.openStream(ctx, url, body)
		if err == nil {
			return rc, nil
		}

		apiErr, ok := err.(*APIError)
		if !ok || apiErr.Kind != KindRateLimit {
			return nil, err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

func (c *Client) openStream(ctx context.Context, url string, body []byte) (io.ReadCloser, error) {
	reqCtx, cancel := context.WithTimeout(ctx, streamingTimeout)

	rc, err := c.doPost(reqCtx, url, body)
	if err != nil {
		cancel()
		return nil, err
	}
	// Tie the timeout context to the body lifetime.
	return &cancelOnClose{ReadCloser: rc, cancel: cancel}, nil
}

func (c *Client) post(ctx context.Context, url string, body []byte) (io.ReadCloser, error) {
	return c.doPost(ctx, url, body)
}

func (c *Client) doPost(ctx context.Context, url string, body []byte) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Kind: KindTransient, Msg: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		resp.Body.Close()
		return nil, classifyStatus(resp.StatusCode, respBody)
	}
	return resp.Body, nil
}

func classifyStatus(status int, body []byte) *APIError {
	msg := strings.TrimSpace(string(body))
	switch {
	case status == http.StatusTooManyRequests:
		return &APIError{Kind: KindRateLimit, Status: status, Msg: msg}
	case status >= 500:
		return &APIError{Kind: KindTransient, Status: status, Msg: msg}
	default:
		return &APIError{Kind: KindPermanent, Status: status, Msg: msg}
	}
}

func blockedBy(resp *generateResponse) (bool, string) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return true, "prompt blocked: " + resp.PromptFeedback.BlockReason
	}
	for _, cand := range resp.Candidates {
		if cand.FinishReason == "SAFETY" {
			return true, "response blocked: SAFETY"
		}
	}
	return false, ""
}

func joinParts(candidates []candidate) string {
	var sb strings.Builder
	for _, cand := range candidates {
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// cancelOnClose wraps a ReadCloser and cancels a context on Close.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
