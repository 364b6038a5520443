// Package webhook calls the external workflow endpoints that generate
// prompts and run the asynchronous analysis jobs.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/TobiSchelling/AIVisibility/internal/config"
	"github.com/TobiSchelling/AIVisibility/internal/logger"
)

var (
	// ErrStatus matches any *StatusError.
	ErrStatus = errors.New("webhook returned non-success status")
	// ErrMalformed is returned when a JSON body does not parse.
	ErrMalformed = errors.New("webhook returned malformed JSON response")
	// ErrInvalidResponse is returned when a body parses but lacks the
	// expected fields.
	ErrInvalidResponse = errors.New("invalid response format from webhook")
	// ErrNotConfigured is returned when the endpoint URL is empty.
	ErrNotConfigured = errors.New("webhook url not configured")
)

// StatusError carries the upstream status of a failed call.
type StatusError struct {
	Status     int
	StatusText string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned %d: %s", e.Status, e.StatusText)
}

func (e *StatusError) Is(target error) bool { return target == ErrStatus }

// MalformedError keeps the raw body of an unparseable JSON response.
type MalformedError struct {
	Err error
	Raw string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%s: JSON parse error: %v", ErrMalformed, e.Err)
}

func (e *MalformedError) Unwrap() []error { return []error{ErrMalformed, e.Err} }

// TokenSource supplies a bearer token for outgoing calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// PromptRequest is the generate-prompts payload.
type PromptRequest struct {
	CompanyName   string  `json:"company_name"`
	CompanyDomain *string `json:"company_domain"`
	CompanyGoal   string  `json:"company_goal"`
	Location      *string `json:"location"`
}

// Reply is the tolerant decoding of an analysis job trigger. Data is what
// callers relay to their own clients.
type Reply struct {
	Data  any
	Empty bool
	JSON  bool
}

// Client posts JSON payloads to the configured endpoints.
type Client struct {
	urls    config.Webhooks
	client  *http.Client
	limiter *rate.Limiter
	tokens  TokenSource
	log     *logger.Logger
}

// NewClient creates a Client. tokens and log may be nil.
func NewClient(cfg config.Webhooks, tokens TokenSource, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 6 * time.Minute
	}
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		urls:    cfg,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		tokens:  tokens,
		log:     log,
	}
}

// GeneratePrompts asks the workflow for prompt texts for a company.
func (c *Client) GeneratePrompts(ctx context.Context, req PromptRequest) ([]string, error) {
	resp, body, err := c.post(ctx, c.urls.GeneratePrompts, req)
	if err != nil {
		return nil, err
	}

	var result struct {
		Prompts []string `json:"prompts"`
	}
	text := stripFences(string(body))
	if text == "" {
		return nil, ErrInvalidResponse
	}
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		if isJSON(resp) {
			return nil, &MalformedError{Err: err, Raw: string(body)}
		}
		return nil, ErrInvalidResponse
	}
	if result.Prompts == nil {
		return nil, ErrInvalidResponse
	}
	return result.Prompts, nil
}

// AnalyzePrompts starts competitor discovery for a company.
func (c *Client) AnalyzePrompts(ctx context.Context, companyID string) (*Reply, error) {
	return c.trigger(ctx, c.urls.AnalyzePrompts, companyID)
}

// AnalyzeResponses starts response analysis for a company.
func (c *Client) AnalyzeResponses(ctx context.Context, companyID string) (*Reply, error) {
	return c.trigger(ctx, c.urls.AnalyzeResponses, companyID)
}

func (c *Client) trigger(ctx context.Context, url, companyID string) (*Reply, error) {
	resp, body, err := c.post(ctx, url, map[string]string{"company": companyID})
	if err != nil {
		return nil, err
	}
	return decodeReply(resp, body)
}

// decodeReply accepts empty and non-JSON bodies. Only a body declared as
// JSON that fails to parse is an error.
func decodeReply(resp *http.Response, body []byte) (*Reply, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return &Reply{
			Data:  map[string]any{"message": "Analysis completed successfully (empty response)"},
			Empty: true,
		}, nil
	}
	if !isJSON(resp) {
		return &Reply{
			Data: map[string]any{"message": "Analysis completed successfully", "response": string(body)},
		}, nil
	}
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, &MalformedError{Err: err, Raw: string(body)}
	}
	return &Reply{Data: data, JSON: true}, nil
}

func (c *Client) post(ctx context.Context, url string, payload any) (*http.Response, []byte, error) {
	if url == "" {
		return nil, nil, ErrNotConfigured
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling request: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("getting token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("webhook request error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading response: %w", err)
	}
	c.log.Debug("webhook called", "url", url, "status", resp.StatusCode, "elapsed", time.Since(start).String())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, &StatusError{
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Body:       string(body),
		}
	}
	return resp, body, nil
}

func isJSON(resp *http.Response) bool {
	return strings.Contains(resp.Header.Get("Content-Type"), "application/json")
}

// stripFences removes a surrounding markdown code fence, which some
// workflow steps wrap around their JSON output.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	endIdx := len(lines) - 1
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}
	if endIdx < 1 {
		return ""
	}
	return strings.TrimSpace(strings.Join(lines[1:endIdx], "\n"))
}
