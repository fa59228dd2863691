package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Static errors for Gemini client operations.
var (
	// ErrAPIKeyRequired is returned when no API key is provided.
	ErrAPIKeyRequired = errors.New("gemini: API key is required")
	// ErrModelRequired is returned when the model identifier is empty.
	ErrModelRequired = errors.New("gemini: model is required")
	// ErrOperationNameRequired is returned when polling without an operation name.
	ErrOperationNameRequired = errors.New("gemini: operation name is required")
	// ErrNoOperationReturned is returned when a video request yields no operation name.
	ErrNoOperationReturned = errors.New("gemini: no operation returned")
	// ErrURIRequired is returned when downloading without a URI.
	ErrURIRequired = errors.New("gemini: download URI is required")
	// ErrPromptBlocked is returned when the prompt was blocked and no candidate was produced.
	ErrPromptBlocked = errors.New("gemini: prompt blocked")
)

// DefaultBaseURL is the public Generative Language API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Client defines the interface for interacting with the Gemini API.
type Client interface {
	// GenerateContent runs a text completion and returns the generated text.
	GenerateContent(ctx context.Context, model, prompt string) (string, error)

	// GenerateVideos starts a video generation and returns the operation handle.
	GenerateVideos(ctx context.Context, model, prompt string, cfg VideoConfig) (*Operation, error)

	// GetOperation fetches the current state of a long-running operation.
	GetOperation(ctx context.Context, name string) (*Operation, error)

	// Download fetches a generated file. The caller must close the returned body.
	Download(ctx context.Context, uri string) (io.ReadCloser, error)
}

// HTTPClient is the HTTP implementation of the Gemini Client interface.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithBaseURL sets a custom base URL for the Gemini API.
func WithBaseURL(u string) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseURL = strings.TrimRight(u, "/")
	}
}

// WithBreaker configures the circuit breaker guarding outbound calls.
// It opens after failureThreshold consecutive failures and half-opens after openTimeout.
// A threshold of zero disables the breaker.
func WithBreaker(failureThreshold uint32, openTimeout time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.breaker = newBreaker(failureThreshold, openTimeout)
	}
}

func newBreaker(failureThreshold uint32, openTimeout time.Duration) *gobreaker.CircuitBreaker[*http.Response] {
	if failureThreshold == 0 {
		return nil
	}
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "gemini",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
	})
}

// NewClient creates a new Gemini HTTP client authenticated with apiKey.
func NewClient(apiKey string, opts ...ClientOption) (*HTTPClient, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	c := &HTTPClient{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		breaker:    newBreaker(5, 30*time.Second),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// GenerateContent runs a text completion and returns the generated text.
func (c *HTTPClient) GenerateContent(ctx context.Context, model, prompt string) (string, error) {
	if model == "" {
		return "", ErrModelRequired
	}

	reqBody := generateContentRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	}

	var resp generateContentResponse
	endpoint := fmt.Sprintf("%s/%s:generateContent", c.baseURL, modelPath(model))
	if err := c.doJSON(ctx, http.MethodPost, endpoint, reqBody, &resp); err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: %s", ErrPromptBlocked, resp.PromptFeedback.BlockReason)
	}

	return resp.text(), nil
}

// GenerateVideos starts a video generation and returns the operation handle.
func (c *HTTPClient) GenerateVideos(ctx context.Context, model, prompt string, cfg VideoConfig) (*Operation, error) {
	if model == "" {
		return nil, ErrModelRequired
	}
	if cfg.NumberOfVideos <= 0 {
		cfg.NumberOfVideos = 1
	}

	reqBody := predictRequest{
		Instances:  []predictInstance{{Prompt: prompt}},
		Parameters: predictParameters{SampleCount: cfg.NumberOfVideos},
	}

	var resp operationResponse
	endpoint := fmt.Sprintf("%s/%s:predictLongRunning", c.baseURL, modelPath(model))
	if err := c.doJSON(ctx, http.MethodPost, endpoint, reqBody, &resp); err != nil {
		return nil, err
	}

	if resp.Name == "" {
		return nil, ErrNoOperationReturned
	}

	return resp.toOperation(), nil
}

// GetOperation fetches the current state of a long-running operation.
func (c *HTTPClient) GetOperation(ctx context.Context, name string) (*Operation, error) {
	if name == "" {
		return nil, ErrOperationNameRequired
	}

	var resp operationResponse
	endpoint := fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(name, "/"))
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	if resp.Name == "" {
		resp.Name = name
	}
	return resp.toOperation(), nil
}

// Download fetches a generated file with the API key appended as the key query parameter.
func (c *HTTPClient) Download(ctx context.Context, uri string) (io.ReadCloser, error) {
	if uri == "" {
		return nil, ErrURIRequired
	}

	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("gemini: parse download URI: %w", err)
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: create download request: %w", err)
	}

	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		return nil, newAPIError(resp)
	}

	return resp.Body, nil
}

// doJSON performs a single JSON request and decodes the response into result.
func (c *HTTPClient) doJSON(ctx context.Context, method, endpoint string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gemini: marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("gemini: create request: %w", err)
	}

	req.Header.Set("x-goog-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("gemini: read response: %w", err)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("gemini: unmarshal response: %w", err)
		}
	}

	return nil
}

// send executes req through the circuit breaker. Transport failures, 5xx and
// 429 responses count as breaker failures; the response body of those is
// consumed and returned as an *APIError.
func (c *HTTPClient) send(req *http.Request) (*http.Response, error) {
	do := func() (*http.Response, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("gemini: request failed: %w", redactKey(err))
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			defer func() { _ = resp.Body.Close() }()
			return nil, newAPIError(resp)
		}
		return resp, nil
	}

	if c.breaker == nil {
		return do()
	}

	resp, err := c.breaker.Execute(do)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("gemini: service unavailable: %w", err)
	}
	return resp, err
}

// redactKey strips the key query parameter from the URL a transport error
// reports, so the credential never reaches error messages or logs.
func redactKey(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	u, perr := url.Parse(urlErr.URL)
	if perr != nil {
		urlErr.URL = "<redacted>"
		return err
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	urlErr.URL = u.String()
	return err
}

// newAPIError builds an APIError from a non-2xx response, reading the error envelope if present.
func newAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Status:     http.StatusText(resp.StatusCode),
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(body) == 0 {
		return apiErr
	}

	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil && env.Error != nil && env.Error.Message != "" {
		apiErr.Message = env.Error.Message
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(body))
	return apiErr
}

// modelPath normalises a model identifier to the "models/<id>" resource form.
func modelPath(model string) string {
	if strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
