package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sanazindustrial/PROFGINE-sub004/services/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeProvider counts calls and answers with a fixed outcome
type fakeProvider struct {
	name      string
	cost      string
	available atomic.Bool
	err       error
	block     bool
	calls     atomic.Int32
}

func newFake(name string, available bool, err error) *fakeProvider {
	p := &fakeProvider{name: name, cost: providers.CostFree, err: err}
	p.available.Store(available)
	return p
}

func (p *fakeProvider) Name() string      { return p.name }
func (p *fakeProvider) Cost() string      { return p.cost }
func (p *fakeProvider) IsAvailable() bool { return p.available.Load() }

func (p *fakeProvider) StreamChat(ctx context.Context, messages []providers.Message) (*providers.Stream, error) {
	p.calls.Add(1)
	if !p.available.Load() {
		return nil, providers.NewUnavailableError(p.name)
	}
	if p.block {
		<-ctx.Done()
		return nil, providers.NewProviderError(p.name, providers.CodeRequest, "request cancelled", 0, false, ctx.Err())
	}
	if p.err != nil {
		return nil, p.err
	}
	return providers.NewStream(p.name, strings.NewReader("from "+p.name), nil, nil), nil
}

func upstream(name string) error {
	return providers.NewUpstreamError(name, 500, "boom", `{"error":{"message":"boom"}}`)
}

func newTestOrchestrator(t *testing.T, cfg Config, ps ...*fakeProvider) *Orchestrator {
	t.Helper()
	registry := providers.NewRegistry()
	for _, p := range ps {
		require.NoError(t, registry.Register(p))
	}
	return New(registry, cfg, zap.NewNop())
}

func readAll(t *testing.T, s *providers.Stream) string {
	t.Helper()
	defer s.Close()
	data, err := io.ReadAll(s)
	require.NoError(t, err)
	return string(data)
}

func TestCandidateOrder(t *testing.T) {
	a := newFake("A", true, nil)
	b := newFake("B", true, nil)
	c := newFake("C", true, nil)
	o := newTestOrchestrator(t, Config{}, a, b, c)

	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{
			name: "registry order without preference",
			cfg:  Config{EnabledProviders: []string{"C", "A", "B"}},
			want: []string{"A", "B", "C"},
		},
		{
			name: "preferred first",
			cfg:  Config{EnabledProviders: []string{"A", "B", "C"}, PreferredProviders: []string{"C", "B"}},
			want: []string{"C", "B", "A"},
		},
		{
			name: "preferred but not enabled is ignored",
			cfg:  Config{EnabledProviders: []string{"A", "B"}, PreferredProviders: []string{"C", "B"}},
			want: []string{"B", "A"},
		},
		{
			name: "unknown names are inert",
			cfg:  Config{EnabledProviders: []string{"A", "ghost"}, PreferredProviders: []string{"ghost", "A"}},
			want: []string{"A"},
		},
		{
			name: "duplicates collapse",
			cfg:  Config{EnabledProviders: []string{"B", "B", "A"}, PreferredProviders: []string{"B", "B"}},
			want: []string{"B", "A"},
		},
		{
			name: "nothing enabled",
			cfg:  Config{PreferredProviders: []string{"A"}},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, o.CandidateOrder(tt.cfg))
		})
	}
}

func TestCandidateOrder_EachProviderOnce(t *testing.T) {
	names := []string{"p0", "p1", "p2", "p3", "p4"}
	fakes := make([]*fakeProvider, len(names))
	for i, n := range names {
		fakes[i] = newFake(n, true, nil)
	}
	o := newTestOrchestrator(t, Config{}, fakes...)

	configs := []Config{
		{EnabledProviders: names},
		{EnabledProviders: []string{"p4", "p2"}, PreferredProviders: []string{"p2", "p0", "p4"}},
		{EnabledProviders: []string{"p1", "p3", "p0", "x"}, PreferredProviders: []string{"p3", "p3", "y"}},
		{EnabledProviders: names, PreferredProviders: []string{"p4", "p3", "p2", "p1", "p0"}},
	}

	for i, cfg := range configs {
		t.Run(fmt.Sprintf("config %d", i), func(t *testing.T) {
			order := o.CandidateOrder(cfg)

			expected := map[string]bool{}
			for _, n := range cfg.EnabledProviders {
				if o.Registry().Has(n) {
					expected[n] = true
				}
			}
			assert.Len(t, order, len(expected))

			seen := map[string]bool{}
			for _, n := range order {
				assert.False(t, seen[n], "duplicate %s", n)
				assert.True(t, expected[n], "unexpected %s", n)
				seen[n] = true
			}
		})
	}
}

func TestDispatch_NoProviderAvailable(t *testing.T) {
	a := newFake("A", true, nil)
	o := newTestOrchestrator(t, Config{EnabledProviders: []string{}, FallbackToFree: true}, a)

	stream, err := o.Dispatch(context.Background(), nil)

	assert.Nil(t, stream)
	assert.ErrorIs(t, err, ErrNoProviderAvailable)
	assert.Equal(t, int32(0), a.calls.Load())
}

func TestDispatch_FirstSuccessWins(t *testing.T) {
	a := newFake("A", true, nil)
	b := newFake("B", true, nil)
	o := newTestOrchestrator(t, Config{EnabledProviders: []string{"A", "B"}, FallbackToFree: true}, a, b)

	stream, err := o.Dispatch(context.Background(), []providers.Message{{Role: providers.RoleUser, Content: "hi"}})
	require.NoError(t, err)

	assert.Equal(t, "A", stream.Provider())
	assert.Equal(t, "from A", readAll(t, stream))
	assert.Equal(t, int32(1), a.calls.Load())
	assert.Equal(t, int32(0), b.calls.Load())
}

func TestDispatch_SkipsUnavailable(t *testing.T) {
	a := newFake("A", false, nil)
	b := newFake("B", true, nil)
	o := newTestOrchestrator(t, Config{EnabledProviders: []string{"A", "B"}, FallbackToFree: true}, a, b)

	stream, err := o.Dispatch(context.Background(), nil)
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, "B", stream.Provider())
	assert.Equal(t, int32(0), a.calls.Load(), "unavailable provider must not be called")
}

func TestDispatch_AllFailed(t *testing.T) {
	a := newFake("A", true, upstream("A"))
	b := newFake("B", false, nil)
	c := newFake("C", true, providers.NewProviderError("C", providers.CodeEmptyResponse, "empty", 200, true, nil))
	o := newTestOrchestrator(t, Config{EnabledProviders: []string{"A", "B", "C"}, FallbackToFree: true}, a, b, c)

	stream, err := o.Dispatch(context.Background(), nil)
	assert.Nil(t, stream)
	require.ErrorIs(t, err, ErrAllProvidersFailed)

	failed, ok := IsAllProvidersFailed(err)
	require.True(t, ok)
	assert.False(t, failed.Strict)
	require.Len(t, failed.Attempts, 2, "one reason per provider tried")
	assert.Equal(t, "A", failed.Attempts[0].Provider)
	assert.Equal(t, "C", failed.Attempts[1].Provider)
	assert.Equal(t, []string{"B"}, failed.Skipped)

	assert.ErrorIs(t, err, providers.ErrUpstream)
	assert.ErrorIs(t, err, providers.ErrEmptyResponse)

	reasons := failed.Reasons()
	assert.Equal(t, "unavailable", reasons["B"])
	assert.Contains(t, reasons["A"], "boom")
	assert.Contains(t, err.Error(), "A:")
}

func TestDispatch_AllUnavailable(t *testing.T) {
	a := newFake("A", false, nil)
	b := newFake("B", false, nil)
	o := newTestOrchestrator(t, Config{EnabledProviders: []string{"A", "B"}, FallbackToFree: true}, a, b)

	_, err := o.Dispatch(context.Background(), nil)
	require.ErrorIs(t, err, ErrAllProvidersFailed)

	failed, _ := IsAllProvidersFailed(err)
	assert.Empty(t, failed.Attempts)
	assert.Equal(t, []string{"A", "B"}, failed.Skipped)
	assert.Equal(t, int32(0), a.calls.Load()+b.calls.Load())
}

func TestDispatch_StrictMode(t *testing.T) {
	a := newFake("A", false, nil)
	b := newFake("B", true, upstream("B"))
	c := newFake("C", true, nil)
	o := newTestOrchestrator(t, Config{EnabledProviders: []string{"A", "B", "C"}, FallbackToFree: false}, a, b, c)

	stream, err := o.Dispatch(context.Background(), nil)
	assert.Nil(t, stream)
	require.ErrorIs(t, err, ErrAllProvidersFailed)

	failed, _ := IsAllProvidersFailed(err)
	assert.True(t, failed.Strict)
	require.Len(t, failed.Attempts, 1)
	assert.Equal(t, "B", failed.Attempts[0].Provider)
	assert.Equal(t, int32(0), c.calls.Load(), "strict mode must not try a second candidate")
}

func TestDispatch_PreferredFallbackExample(t *testing.T) {
	a := newFake("A", false, nil)
	b := newFake("B", true, nil)
	c := newFake("C", true, upstream("C"))
	o := newTestOrchestrator(t, Config{
		EnabledProviders:   []string{"A", "B", "C"},
		PreferredProviders: []string{"C", "B"},
		FallbackToFree:     true,
	}, a, b, c)

	assert.Equal(t, []string{"C", "B", "A"}, o.CandidateOrder(o.Config()))

	stream, err := o.Dispatch(context.Background(), nil)
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, "B", stream.Provider())
	assert.Equal(t, int32(1), c.calls.Load())
	assert.Equal(t, int32(1), b.calls.Load())
	assert.Equal(t, int32(0), a.calls.Load())
}

func TestDispatch_CancellationStopsFallback(t *testing.T) {
	a := newFake("A", true, nil)
	a.block = true
	b := newFake("B", true, nil)
	o := newTestOrchestrator(t, Config{EnabledProviders: []string{"A", "B"}, FallbackToFree: true}, a, b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := o.Dispatch(ctx, nil)
		done <- err
	}()

	cancel()
	err := <-done

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), b.calls.Load())
}

func TestDispatchTo(t *testing.T) {
	a := newFake("A", true, nil)
	b := newFake("B", false, nil)
	c := newFake("C", true, upstream("C"))
	o := newTestOrchestrator(t, Config{EnabledProviders: []string{"B"}, FallbackToFree: true}, a, b, c)

	t.Run("ignores enabled set", func(t *testing.T) {
		stream, err := o.DispatchTo(context.Background(), "A", nil)
		require.NoError(t, err)
		assert.Equal(t, "from A", readAll(t, stream))
	})

	t.Run("unavailable surfaces directly", func(t *testing.T) {
		_, err := o.DispatchTo(context.Background(), "B", nil)
		assert.ErrorIs(t, err, providers.ErrProviderUnavailable)
		assert.False(t, IsDispatchFailure(err))
	})

	t.Run("upstream error surfaces without fallback", func(t *testing.T) {
		before := a.calls.Load()
		_, err := o.DispatchTo(context.Background(), "C", nil)
		assert.ErrorIs(t, err, providers.ErrUpstream)
		assert.Equal(t, before, a.calls.Load())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := o.DispatchTo(context.Background(), "ghost", nil)
		assert.ErrorIs(t, err, providers.ErrProviderNotFound)
	})
}

func TestConfigure(t *testing.T) {
	a := newFake("A", true, nil)
	o := newTestOrchestrator(t, DefaultConfig([]string{"A"}), a)

	t.Run("partial merge leaves other fields", func(t *testing.T) {
		fallback := false
		got := o.Configure(PartialConfig{FallbackToFree: &fallback})

		assert.False(t, got.FallbackToFree)
		assert.Equal(t, []string{"A"}, got.EnabledProviders)
	})

	t.Run("unknown names accepted", func(t *testing.T) {
		preferred := []string{"ghost"}
		got := o.Configure(PartialConfig{PreferredProviders: &preferred})
		assert.Equal(t, []string{"ghost"}, got.PreferredProviders)
	})

	t.Run("caller slices are not aliased", func(t *testing.T) {
		enabled := []string{"A"}
		o.Configure(PartialConfig{EnabledProviders: &enabled})
		enabled[0] = "mutated"

		assert.Equal(t, []string{"A"}, o.Config().EnabledProviders)

		snapshot := o.Config()
		snapshot.EnabledProviders[0] = "mutated"
		assert.Equal(t, []string{"A"}, o.Config().EnabledProviders)
	})

	t.Run("empty slice clears", func(t *testing.T) {
		empty := []string{}
		o.Configure(PartialConfig{EnabledProviders: &empty})

		_, err := o.Dispatch(context.Background(), nil)
		assert.ErrorIs(t, err, ErrNoProviderAvailable)
	})
}

func TestConfigure_ConcurrentWithDispatch(t *testing.T) {
	a := newFake("A", true, nil)
	b := newFake("B", true, nil)
	o := newTestOrchestrator(t, Config{EnabledProviders: []string{"A", "B"}, FallbackToFree: true}, a, b)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			preferred := []string{"B"}
			if i%2 == 0 {
				preferred = []string{"A"}
			}
			o.Configure(PartialConfig{PreferredProviders: &preferred})
		}(i)
		go func() {
			defer wg.Done()
			stream, err := o.Dispatch(context.Background(), nil)
			if assert.NoError(t, err) {
				_ = stream.Close()
			}
		}()
	}
	wg.Wait()

	cfg := o.Config()
	require.Len(t, cfg.PreferredProviders, 1)
	assert.Contains(t, []string{"A", "B"}, cfg.PreferredProviders[0])
}

func TestValidateConfig(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, newFake("A", true, nil))

	ok := []string{"A"}
	assert.NoError(t, o.ValidateConfig(PartialConfig{EnabledProviders: &ok, PreferredProviders: &ok}))

	bad := []string{"A", "ghost"}
	err := o.ValidateConfig(PartialConfig{PreferredProviders: &bad})
	assert.ErrorIs(t, err, ErrUnknownProvider)
	assert.Contains(t, err.Error(), "ghost")
}

func TestProviderStatus_Live(t *testing.T) {
	a := newFake("A", true, nil)
	o := newTestOrchestrator(t, Config{}, a)

	assert.True(t, o.ProviderStatus()[0].Available)
	a.available.Store(false)
	assert.False(t, o.ProviderStatus()[0].Available)
}

func TestAllProvidersFailedError_Unwrap(t *testing.T) {
	cause := errors.New("socket closed")
	err := &AllProvidersFailedError{Attempts: []Attempt{{Provider: "A", Err: cause}}}

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", err), ErrAllProvidersFailed)
	assert.True(t, IsDispatchFailure(err))
}

type captureRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *captureRecorder) RecordDispatch(ctx context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func TestDispatch_RecordsEvents(t *testing.T) {
	a := newFake("A", false, nil)
	b := newFake("B", true, upstream("B"))
	c := newFake("C", true, nil)

	registry := providers.NewRegistry()
	for _, p := range []*fakeProvider{a, b, c} {
		require.NoError(t, registry.Register(p))
	}
	recorder := &captureRecorder{}
	o := New(registry, Config{EnabledProviders: []string{"A", "B", "C"}, FallbackToFree: true}, zap.NewNop(), WithRecorder(recorder))

	stream, err := o.Dispatch(context.Background(), nil)
	require.NoError(t, err)
	_ = stream.Close()

	_, err = o.DispatchTo(context.Background(), "A", nil)
	require.Error(t, err)

	require.Len(t, recorder.events, 2)

	first := recorder.events[0]
	assert.NotEmpty(t, first.DispatchID)
	assert.False(t, first.Directed)
	assert.Equal(t, "C", first.Provider)
	assert.Equal(t, []string{"A"}, first.Skipped)
	require.Len(t, first.Attempts, 1)
	assert.Equal(t, "B", first.Attempts[0].Provider)
	assert.NoError(t, first.Err)

	second := recorder.events[1]
	assert.True(t, second.Directed)
	assert.Equal(t, "A", second.Provider)
	assert.ErrorIs(t, second.Err, providers.ErrProviderUnavailable)
}
