package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sanazindustrial/PROFGINE-sub004/services/providers"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"

	// maxErrorBody caps how much of an error response is kept for diagnostics
	maxErrorBody = 64 * 1024
)

// Adapter implements providers.Provider for any backend speaking the
// OpenAI chat-completions streaming protocol
type Adapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures an Adapter
type Option func(*Adapter)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) {
		a.httpClient = client
	}
}

// WithLogger sets the logger used for failure diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// NewAdapter creates a new adapter
func NewAdapter(config providers.ProviderConfig, opts ...Option) *Adapter {
	if config.Name == "" {
		config.Name = "openai"
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	if config.Timeout <= 0 {
		config.Timeout = providers.DefaultTimeout
	}
	if config.MinKeyLength <= 0 {
		config.MinKeyLength = providers.DefaultMinKeyLength
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = providers.DefaultMaxTokens
	}
	if config.Credential == nil {
		config.Credential = providers.StaticCredential("")
	}

	adapter := &Adapter{
		config: config,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(adapter)
	}

	if adapter.httpClient == nil {
		// No client-level timeout: it would cut off long streams. The
		// time-to-first-byte bound is enforced per call in StreamChat.
		adapter.httpClient = &http.Client{
			Transport: otelhttp.NewTransport(&http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: config.Timeout,
				MaxIdleConnsPerHost:   8,
				IdleConnTimeout:       90 * time.Second,
			}),
		}
	}

	return adapter
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return a.config.Name
}

// Cost returns the pricing tier descriptor
func (a *Adapter) Cost() string {
	return a.config.Cost
}

// Model returns the model id sent with every request
func (a *Adapter) Model() string {
	return a.config.Model
}

// IsAvailable checks that the credential is present and long enough to be real
func (a *Adapter) IsAvailable() bool {
	key := strings.TrimSpace(a.config.Credential())
	return key != "" && len(key) >= a.config.MinKeyLength
}

// StreamChat performs a streaming chat completion request
func (a *Adapter) StreamChat(ctx context.Context, messages []providers.Message) (*providers.Stream, error) {
	if !a.IsAvailable() {
		return nil, a.fail(providers.NewUnavailableError(a.Name()))
	}

	reqBody, err := json.Marshal(a.buildRequest(messages))
	if err != nil {
		return nil, a.fail(providers.NewProviderError(a.Name(), providers.CodeRequest, "failed to marshal request", 0, false, err))
	}

	// callCtx lives as long as the returned stream; the timer cancels it
	// if the backend has not produced a first byte in time.
	callCtx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(a.config.Timeout, cancel)

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, a.config.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		timer.Stop()
		cancel()
		return nil, a.fail(providers.NewProviderError(a.Name(), providers.CodeRequest, "failed to create request", 0, false, err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+strings.TrimSpace(a.config.Credential()))
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		timedOut := !timer.Stop()
		cancel()
		return nil, a.fail(a.transportError(ctx, err, timedOut))
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		// The timer stays armed so a stalled error body cannot hang the call
		body, readErr := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		timedOut := !timer.Stop()
		httpResp.Body.Close()
		cancel()
		if readErr != nil && (timedOut || ctx.Err() != nil) {
			provErr := a.transportError(ctx, readErr, timedOut)
			provErr.StatusCode = httpResp.StatusCode
			return nil, a.fail(provErr)
		}
		return nil, a.fail(a.handleErrorResponse(httpResp.StatusCode, body))
	}

	reader := bufio.NewReader(httpResp.Body)
	if _, err := reader.Peek(1); err != nil {
		timedOut := !timer.Stop()
		httpResp.Body.Close()
		cancel()
		if errors.Is(err, io.EOF) {
			return nil, a.fail(providers.NewProviderError(a.Name(), providers.CodeEmptyResponse, "backend returned an empty body", httpResp.StatusCode, true, nil))
		}
		return nil, a.fail(a.transportError(ctx, err, timedOut))
	}

	if !timer.Stop() {
		httpResp.Body.Close()
		cancel()
		return nil, a.fail(a.transportError(ctx, context.DeadlineExceeded, true))
	}

	return providers.NewStream(a.Name(), reader, httpResp.Body, cancel), nil
}

// buildRequest converts the conversation into the wire format
func (a *Adapter) buildRequest(messages []providers.Message) *ChatRequest {
	req := &ChatRequest{
		Model:       a.config.Model,
		Messages:    make([]ChatMessage, len(messages)),
		Temperature: a.config.Temperature,
		MaxTokens:   a.config.MaxTokens,
		Stream:      true,
	}

	for i, msg := range messages {
		req.Messages[i] = ChatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	return req
}

// transportError classifies a failure that produced no usable response
func (a *Adapter) transportError(parent context.Context, err error, timedOut bool) *providers.ProviderError {
	switch {
	case parent.Err() != nil:
		return providers.NewProviderError(a.Name(), providers.CodeRequest, "request cancelled", 0, false, parent.Err())
	case timedOut:
		// err is the context cancellation the timer caused; it is not the caller's
		return providers.NewProviderError(a.Name(), providers.CodeUpstream,
			fmt.Sprintf("no response within %s", a.config.Timeout), 0, true, nil)
	default:
		return providers.NewProviderError(a.Name(), providers.CodeUpstream, "HTTP request failed", 0, true, err)
	}
}

// handleErrorResponse handles non-success backend responses
func (a *Adapter) handleErrorResponse(statusCode int, body []byte) *providers.ProviderError {
	message := http.StatusText(statusCode)

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	return providers.NewUpstreamError(a.Name(), statusCode, message, string(body))
}

// fail logs the failure and returns it unchanged
func (a *Adapter) fail(err *providers.ProviderError) error {
	a.logger.Warn("provider call failed",
		zap.String("provider", err.Provider),
		zap.String("code", err.Code),
		zap.Int("status_code", err.StatusCode),
		zap.String("message", err.Message),
		zap.Error(err.Cause))
	return err
}

// Wire types for the chat-completions protocol

type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}
