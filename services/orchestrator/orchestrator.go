package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sanazindustrial/PROFGINE-sub004/services/providers"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/sanazindustrial/PROFGINE-sub004/services/orchestrator"

// Orchestrator routes chat requests across the registered providers
type Orchestrator struct {
	registry  *providers.Registry
	config    atomic.Pointer[Config]
	logger    *zap.Logger
	tracer    trace.Tracer
	recorders []Recorder
}

// Event describes how a single dispatch was resolved
type Event struct {
	DispatchID string
	Directed   bool
	Provider   string
	Attempts   []Attempt
	Skipped    []string
	Err        error
	Latency    time.Duration
}

// Recorder receives dispatch events. RecordDispatch must not block.
type Recorder interface {
	RecordDispatch(ctx context.Context, event Event)
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithRecorder adds a sink for dispatch events. Sinks are called in the order added.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorders = append(o.recorders, r)
		}
	}
}

// New creates an orchestrator over registry starting from initial
func New(registry *providers.Registry, initial Config, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Orchestrator{
		registry: registry,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	cfg := initial.Clone()
	o.config.Store(&cfg)
	return o
}

// Registry returns the provider registry
func (o *Orchestrator) Registry() *providers.Registry {
	return o.registry
}

// Config returns a copy of the current configuration
func (o *Orchestrator) Config() Config {
	return o.config.Load().Clone()
}

// Configure merges p into the live configuration and returns the result.
// It never fails; names unknown to the registry are stored but never match.
func (o *Orchestrator) Configure(p PartialConfig) Config {
	for {
		current := o.config.Load()
		next := current.Merge(p)
		if o.config.CompareAndSwap(current, &next) {
			o.logger.Info("orchestrator config updated",
				zap.Strings("enabled", next.EnabledProviders),
				zap.Strings("preferred", next.PreferredProviders),
				zap.Bool("fallback_to_free", next.FallbackToFree))
			return next.Clone()
		}
	}
}

// ValidateConfig rejects provider names that are not registered
func (o *Orchestrator) ValidateConfig(p PartialConfig) error {
	check := func(field string, names *[]string) error {
		if names == nil {
			return nil
		}
		for _, name := range *names {
			if !o.registry.Has(name) {
				return fmt.Errorf("%w: %q in %s", ErrUnknownProvider, name, field)
			}
		}
		return nil
	}

	if err := check("enabledProviders", p.EnabledProviders); err != nil {
		return err
	}
	return check("preferredProviders", p.PreferredProviders)
}

// ProviderStatus reports every registered provider, computed at call time
func (o *Orchestrator) ProviderStatus() []providers.Descriptor {
	return o.registry.Describe()
}

// CandidateOrder computes the order in which providers are tried under cfg:
// preferred providers that are enabled and registered, in preferred order,
// followed by the remaining enabled providers in registry order.
func (o *Orchestrator) CandidateOrder(cfg Config) []string {
	enabled := make(map[string]bool, len(cfg.EnabledProviders))
	for _, name := range cfg.EnabledProviders {
		enabled[name] = true
	}

	order := make([]string, 0, len(enabled))
	seen := make(map[string]bool, len(enabled))

	for _, name := range cfg.PreferredProviders {
		if seen[name] || !enabled[name] || !o.registry.Has(name) {
			continue
		}
		seen[name] = true
		order = append(order, name)
	}

	for _, name := range o.registry.Names() {
		if seen[name] || !enabled[name] {
			continue
		}
		seen[name] = true
		order = append(order, name)
	}

	return order
}

// Dispatch streams a chat completion from the first candidate that succeeds.
// The caller owns the returned stream and must Close it.
func (o *Orchestrator) Dispatch(ctx context.Context, messages []providers.Message) (*providers.Stream, error) {
	cfg := o.config.Load()
	order := o.CandidateOrder(*cfg)

	dispatchID := uuid.New().String()
	logger := o.logger.With(zap.String("dispatch_id", dispatchID))
	start := time.Now()

	ctx, span := o.tracer.Start(ctx, "orchestrator.Dispatch",
		trace.WithAttributes(
			attribute.String("dispatch.id", dispatchID),
			attribute.StringSlice("dispatch.candidates", order),
			attribute.Bool("dispatch.fallback", cfg.FallbackToFree),
		))
	defer span.End()

	if len(order) == 0 {
		logger.Warn("no provider available", zap.Strings("enabled", cfg.EnabledProviders))
		span.SetStatus(codes.Error, ErrNoProviderAvailable.Error())
		o.record(ctx, Event{DispatchID: dispatchID, Err: ErrNoProviderAvailable, Latency: time.Since(start)})
		return nil, ErrNoProviderAvailable
	}

	failed := &AllProvidersFailedError{Strict: !cfg.FallbackToFree}

	for _, name := range order {
		provider, err := o.registry.Get(name)
		if err != nil {
			continue
		}

		if !provider.IsAvailable() {
			logger.Debug("skipping unavailable provider", zap.String("provider", name))
			failed.Skipped = append(failed.Skipped, name)
			continue
		}

		attempt := len(failed.Attempts) + 1
		logger.Debug("trying provider", zap.String("provider", name), zap.Int("attempt", attempt))

		stream, err := provider.StreamChat(ctx, messages)
		if err == nil {
			logger.Info("dispatch succeeded",
				zap.String("provider", name),
				zap.Int("attempt", attempt),
				zap.Int("skipped", len(failed.Skipped)))
			span.SetAttributes(attribute.String("dispatch.provider", name))
			o.record(ctx, Event{
				DispatchID: dispatchID,
				Provider:   name,
				Attempts:   failed.Attempts,
				Skipped:    failed.Skipped,
				Latency:    time.Since(start),
			})
			return stream, nil
		}

		failed.Attempts = append(failed.Attempts, Attempt{Provider: name, Err: err})
		logger.Warn("provider failed",
			zap.String("provider", name),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if ctxErr := ctx.Err(); ctxErr != nil {
			span.SetStatus(codes.Error, ctxErr.Error())
			err := fmt.Errorf("dispatch aborted: %w", ctxErr)
			o.record(ctx, Event{
				DispatchID: dispatchID,
				Attempts:   failed.Attempts,
				Skipped:    failed.Skipped,
				Err:        err,
				Latency:    time.Since(start),
			})
			return nil, err
		}

		if !cfg.FallbackToFree {
			break
		}
	}

	logger.Error("all providers failed",
		zap.Int("attempts", len(failed.Attempts)),
		zap.Strings("skipped", failed.Skipped),
		zap.Bool("strict", failed.Strict))
	span.SetStatus(codes.Error, ErrAllProvidersFailed.Error())
	o.record(ctx, Event{
		DispatchID: dispatchID,
		Attempts:   failed.Attempts,
		Skipped:    failed.Skipped,
		Err:        failed,
		Latency:    time.Since(start),
	})
	return nil, failed
}

// DispatchTo sends the request to exactly one provider with no fallback.
// The enabled set is not consulted.
func (o *Orchestrator) DispatchTo(ctx context.Context, name string, messages []providers.Message) (*providers.Stream, error) {
	provider, err := o.registry.Get(name)
	if err != nil {
		return nil, err
	}

	dispatchID := uuid.New().String()
	start := time.Now()

	ctx, span := o.tracer.Start(ctx, "orchestrator.DispatchTo",
		trace.WithAttributes(
			attribute.String("dispatch.id", dispatchID),
			attribute.String("dispatch.provider", name),
		))
	defer span.End()

	event := Event{DispatchID: dispatchID, Directed: true, Provider: name}

	stream, err := provider.StreamChat(ctx, messages)
	if err != nil {
		o.logger.Warn("directed provider failed",
			zap.String("dispatch_id", dispatchID),
			zap.String("provider", name),
			zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
		event.Attempts = []Attempt{{Provider: name, Err: err}}
		event.Err = err
		event.Latency = time.Since(start)
		o.record(ctx, event)
		return nil, err
	}

	event.Latency = time.Since(start)
	o.record(ctx, event)
	return stream, nil
}

func (o *Orchestrator) record(ctx context.Context, event Event) {
	for _, r := range o.recorders {
		r.RecordDispatch(ctx, event)
	}
}

// IsDispatchFailure reports whether err came out of Dispatch rather than a single provider
func IsDispatchFailure(err error) bool {
	return errors.Is(err, ErrNoProviderAvailable) || errors.Is(err, ErrAllProvidersFailed)
}
