package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/sanazindustrial/PROFGINE-sub004/middleware"
	"github.com/sanazindustrial/PROFGINE-sub004/services"
	"github.com/sanazindustrial/PROFGINE-sub004/services/providers"
	"github.com/sanazindustrial/PROFGINE-sub004/utils"
	"go.uber.org/zap"
)

// Output formats for POST /api/v1/chat
const (
	FormatSSE  = "sse"
	FormatText = "text"
	FormatJSON = "json"
)

// ProviderHeader names the backend that served a chat response
const ProviderHeader = "X-AI-Provider"

// ChatRequest is the body of POST /api/v1/chat
type ChatRequest struct {
	Messages []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	Provider string        `json:"provider,omitempty" validate:"omitempty,max=64"`
	Format   string        `json:"format,omitempty" validate:"omitempty,oneof=sse text json"`
}

// ChatMessage represents a single chat message
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required"`
}

// ChatResponse is returned for format=json
type ChatResponse struct {
	Provider  string `json:"provider"`
	Content   string `json:"content"`
	LatencyMs int64  `json:"latencyMs"`
}

// Dispatcher opens a response stream from one of the configured providers
type Dispatcher interface {
	Dispatch(ctx context.Context, messages []providers.Message) (*providers.Stream, error)
	DispatchTo(ctx context.Context, name string, messages []providers.Message) (*providers.Stream, error)
}

// ChatHandler handles chat requests
type ChatHandler struct {
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(dispatcher Dispatcher, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// HandleChat handles POST /api/v1/chat
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	start := time.Now()

	var req ChatRequest
	if err := utils.ReadJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if req.Format == "" {
		req.Format = FormatSSE
	}

	messages := make([]providers.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = providers.Message{Role: providers.Role(m.Role), Content: m.Content}
	}

	var (
		stream *providers.Stream
		err    error
	)
	if req.Provider != "" {
		stream, err = h.dispatcher.DispatchTo(ctx, req.Provider, messages)
	} else {
		stream, err = h.dispatcher.Dispatch(ctx, messages)
	}
	if err != nil {
		h.logger.Warn("chat dispatch failed",
			zap.String("request_id", requestID),
			zap.String("provider", req.Provider),
			zap.Error(err))
		HandleServiceError(w, services.FromDispatchError(err), h.logger)
		return
	}
	defer stream.Close()

	w.Header().Set(ProviderHeader, stream.Provider())

	switch req.Format {
	case FormatJSON:
		h.writeCollected(w, stream, start, requestID)
	case FormatText:
		h.writeText(ctx, w, stream, requestID)
	default:
		h.writeSSE(ctx, w, stream, requestID)
	}
}

// writeSSE proxies the backend bytes unchanged
func (h *ChatHandler) writeSSE(ctx context.Context, w http.ResponseWriter, stream *providers.Stream, requestID string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fw := newFlushWriter(w)
	n, err := io.Copy(fw, stream)
	h.logStreamEnd(ctx, stream.Provider(), requestID, n, err)
}

// writeText decodes incremental deltas and writes them as plain text
func (h *ChatHandler) writeText(ctx context.Context, w http.ResponseWriter, stream *providers.Stream, requestID string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fw := newFlushWriter(w)
	var n int64
	err := providers.ReadDeltas(stream, func(delta string) error {
		written, err := io.WriteString(fw, delta)
		n += int64(written)
		return err
	})
	h.logStreamEnd(ctx, stream.Provider(), requestID, n, err)
}

// writeCollected drains the stream and replies with a single JSON document
func (h *ChatHandler) writeCollected(w http.ResponseWriter, stream *providers.Stream, start time.Time, requestID string) {
	text, err := providers.CollectText(stream)
	if err != nil {
		h.logger.Warn("provider stream failed",
			zap.String("request_id", requestID),
			zap.String("provider", stream.Provider()),
			zap.Error(err))
		if errors.Is(err, context.Canceled) {
			HandleServiceError(w, services.FromDispatchError(err), h.logger)
			return
		}
		HandleServiceError(w, services.NewDomainError(services.ErrorTypeExternal,
			"AI provider stream failed", err).WithDetail("provider", stream.Provider()), h.logger)
		return
	}

	if err := utils.WriteOK(w, ChatResponse{
		Provider:  stream.Provider(),
		Content:   text,
		LatencyMs: time.Since(start).Milliseconds(),
	}); err != nil {
		h.logger.Error("failed to write chat response", zap.Error(err))
	}
}

func (h *ChatHandler) logStreamEnd(ctx context.Context, provider, requestID string, n int64, err error) {
	switch {
	case err == nil:
		h.logger.Debug("chat stream finished",
			zap.String("request_id", requestID),
			zap.String("provider", provider),
			zap.Int64("bytes", n))
	case ctx.Err() != nil:
		h.logger.Info("client went away during stream",
			zap.String("request_id", requestID),
			zap.String("provider", provider),
			zap.Int64("bytes", n))
	default:
		// Headers are already sent; the client sees a truncated body
		h.logger.Warn("chat stream interrupted",
			zap.String("request_id", requestID),
			zap.String("provider", provider),
			zap.Int64("bytes", n),
			zap.Error(err))
	}
}

// flushWriter flushes after every write so chunks reach the client immediately
type flushWriter struct {
	w  io.Writer
	rc *http.ResponseController
}

func newFlushWriter(w http.ResponseWriter) *flushWriter {
	return &flushWriter{w: w, rc: http.NewResponseController(w)}
}

func (f *flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if err != nil {
		return n, err
	}
	if err := f.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return n, err
	}
	return n, nil
}
