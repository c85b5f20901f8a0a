package handover

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/handover/cache"
	"github.com/arloliu/handover/store"
	handovertest "github.com/arloliu/handover/testing"
)

type harness struct {
	cfg       Config
	srv       *handovertest.AssetServer
	boot      *handovertest.Bootstrapper
	presenter *handovertest.Presenter
	env       *handovertest.Environment
	store     *store.Memory
	cache     *cache.Memory
	hooks     *recordingHooks
}

// recordingHooks collects hook invocations.
type recordingHooks struct {
	mu       sync.Mutex
	switched []switchEvent
	errs     []error
	outcomes []Outcome
}

type switchEvent struct {
	reason string
	forced bool
	at     time.Time
}

func (r *recordingHooks) hooks() *Hooks {
	return &Hooks{
		OnSwitched: func(_ context.Context, reason string, forced bool) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.switched = append(r.switched, switchEvent{reason: reason, forced: forced, at: time.Now()})

			return nil
		},
		OnError: func(_ context.Context, err error) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)

			return nil
		},
		OnPrefetchOutcome: func(_ context.Context, out Outcome) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.outcomes = append(r.outcomes, out)

			return nil
		},
	}
}

func (r *recordingHooks) switches() []switchEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]switchEvent(nil), r.switched...)
}

func (r *recordingHooks) hasError(target error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, err := range r.errs {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	srv := handovertest.NewAssetServer(t, handovertest.DefaultBuild())

	cfg := TestConfig()
	cfg.Lite.BaseURL = "https://cdn.example.com/lite/"
	cfg.Full.BaseURL = srv.URL()
	cfg.Prefetch.MaxRetries = 0
	cfg.AllowedOrigins = []string{gameOrigin}

	return &harness{
		cfg:       cfg,
		srv:       srv,
		boot:      handovertest.NewBootstrapper(),
		presenter: handovertest.NewPresenter(),
		env:       handovertest.NewEnvironment(),
		store:     store.NewMemory(),
		cache:     cache.NewMemory(),
		hooks:     &recordingHooks{},
	}
}

func (h *harness) controller(t *testing.T) *Controller {
	t.Helper()

	cfg := h.cfg
	ctrl, err := NewController(&cfg, h.boot, h.presenter,
		WithStore(h.store),
		WithCacheBackend(h.cache),
		WithHTTPClient(h.srv.Client()),
		WithEnvironment(h.env),
		WithHooks(h.hooks.hooks()),
		WithLogger(handovertest.NewTestLogger(t)),
	)
	require.NoError(t, err)

	return ctrl
}

func (h *harness) start(t *testing.T) *Controller {
	t.Helper()

	ctrl := h.controller(t)
	require.NoError(t, ctrl.Start(t.Context()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ctrl.Stop(ctx)
	})
	require.NoError(t, <-ctrl.WaitState(StateLiteRunning, time.Second))

	return ctrl
}

func hasHandoverState(p *handovertest.Presenter, reason string) bool {
	for _, s := range p.HandoverStates() {
		if s.Reason == reason {
			return true
		}
	}

	return false
}

func TestNewController_Validation(t *testing.T) {
	h := newHarness(t)

	_, err := NewController(nil, h.boot, h.presenter)
	require.ErrorIs(t, err, ErrInvalidConfig)

	cfg := h.cfg
	_, err = NewController(&cfg, nil, h.presenter)
	require.ErrorIs(t, err, ErrBootstrapperRequired)

	_, err = NewController(&cfg, h.boot, nil)
	require.ErrorIs(t, err, ErrPresenterRequired)

	bad := h.cfg
	bad.Full.Version = ""
	_, err = NewController(&bad, h.boot, h.presenter)
	require.ErrorIs(t, err, ErrInvalidConfig)

	bad = h.cfg
	bad.Prefetch.CriticalPattern = "("
	_, err = NewController(&bad, h.boot, h.presenter)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestController_StartStop(t *testing.T) {
	h := newHarness(t)
	ctrl := h.controller(t)

	require.Equal(t, StateInit, ctrl.State())
	require.NotEmpty(t, ctrl.SessionID())
	require.ErrorIs(t, ctrl.Stop(t.Context()), ErrNotStarted)

	require.NoError(t, ctrl.Start(t.Context()))
	require.ErrorIs(t, ctrl.Start(t.Context()), ErrAlreadyStarted)
	require.NoError(t, <-ctrl.WaitState(StateLiteRunning, time.Second))

	require.Equal(t, VariantLite, h.presenter.Active())
	require.Equal(t, 1, h.boot.LaunchCount(VariantLite))
	require.Zero(t, h.boot.LaunchCount(VariantFull))
	require.InDelta(t, 1.0, ctrl.Progress(VariantLite), 0.001)

	require.NoError(t, ctrl.Stop(t.Context()))
	require.Equal(t, StateShutdown, ctrl.State())
	require.ErrorIs(t, ctrl.Stop(t.Context()), ErrNotStarted)
	require.ErrorIs(t, ctrl.RequestSwitch(t.Context(), "late"), ErrNotStarted)
}

func TestController_Start_LiteLaunchFailure(t *testing.T) {
	h := newHarness(t)
	h.boot.FailLaunch(VariantLite, errors.New("boom"))
	ctrl := h.controller(t)

	err := ctrl.Start(t.Context())
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
	require.NoError(t, ctrl.Stop(t.Context()))
}

func TestController_Start_PersistsBootHandoverState(t *testing.T) {
	h := newHarness(t)
	ctrl := h.start(t)

	state, ok := ctrl.Readiness().LoadHandover(t.Context(), h.cfg.Full)
	require.True(t, ok)
	require.Equal(t, "boot", state.Reason)
	require.Equal(t, 1, state.ResumeLevel)
}

func TestController_TimeTriggerPrefetch(t *testing.T) {
	h := newHarness(t)
	ctrl := h.start(t)

	require.NoError(t, <-ctrl.WaitState(StateFullReady, 3*time.Second))

	require.True(t, ctrl.Readiness().IsReady(t.Context(), h.cfg.Full))
	require.Eventually(t, func() bool {
		return h.boot.LaunchCount(VariantFull) == 1
	}, time.Second, 10*time.Millisecond)

	// The warm full instance announces itself with the handover state.
	require.Eventually(t, func() bool {
		return hasHandoverState(h.presenter, "full-build-ready")
	}, time.Second, 10*time.Millisecond)

	snap := ctrl.Snapshot()
	require.Equal(t, StatusReady, snap.PreloadStatus)
	require.Equal(t, "FullReady", snap.State)
	require.False(t, snap.SwitchRequested)
}

func TestController_InstantSwitch(t *testing.T) {
	h := newHarness(t)
	ctrl := h.start(t)
	require.NoError(t, <-ctrl.WaitState(StateFullReady, 3*time.Second))

	require.NoError(t, ctrl.RequestSwitch(t.Context(), "complete"))
	require.Equal(t, StateFullRunning, ctrl.State())
	require.Equal(t, VariantFull, h.presenter.Active())
	require.Zero(t, h.presenter.Count("show-mask"))

	require.Eventually(t, func() bool {
		lite := h.boot.Instance(VariantLite)
		return lite != nil && lite.Terminated() == 1
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(h.hooks.switches()) == 1
	}, time.Second, 10*time.Millisecond)
	require.False(t, h.hooks.switches()[0].forced)

	// Idempotent once switched.
	require.NoError(t, ctrl.RequestSwitch(t.Context(), "again"))
	activations := 0
	for _, e := range h.presenter.Events() {
		if e.Name == "activate" && e.Arg == string(VariantFull) {
			activations++
		}
	}
	require.Equal(t, 1, activations, "full activated once")
}

func TestController_RequestSwitch_BeforeLiteReady(t *testing.T) {
	h := newHarness(t)
	h.boot.Manual(VariantLite)
	ctrl := h.controller(t)
	require.NoError(t, ctrl.Start(t.Context()))
	t.Cleanup(func() { _ = ctrl.Stop(context.Background()) })

	require.ErrorIs(t, ctrl.RequestSwitch(t.Context(), "early"), ErrNotStarted)

	require.NoError(t, h.boot.Ready(VariantLite))
	require.Equal(t, StateLiteRunning, ctrl.State())
}

func TestController_SwitchWaitsForReadiness(t *testing.T) {
	h := newHarness(t)
	h.cfg.Trigger.Delay = time.Minute
	h.cfg.Switch.FallbackTimeout = 3 * time.Second
	h.srv.SetDelay(20 * time.Millisecond)
	ctrl := h.start(t)

	start := time.Now()
	ctrl.Complete()
	require.Equal(t, StateSwitching, ctrl.State())
	require.True(t, h.presenter.MaskVisible())
	require.True(t, ctrl.SwitchPending())

	require.NoError(t, <-ctrl.WaitState(StateFullRunning, 2*time.Second))
	require.Less(t, time.Since(start), 2*time.Second, "switch completes on readiness, not on timeout")

	require.Eventually(t, func() bool {
		return !h.presenter.MaskVisible()
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(h.hooks.switches()) == 1
	}, time.Second, 10*time.Millisecond)
	switches := h.hooks.switches()
	require.False(t, switches[0].forced)
	require.Equal(t, "complete", switches[0].reason)
	require.False(t, h.hooks.hasError(ErrSwitchTimeout))
}

func TestController_MinMaskDuration(t *testing.T) {
	h := newHarness(t)
	h.cfg.Trigger.Delay = time.Minute
	h.cfg.Switch.FallbackTimeout = 3 * time.Second
	h.cfg.Switch.MinMaskDuration = 300 * time.Millisecond
	ctrl := h.start(t)

	ctrl.Complete()
	require.NoError(t, <-ctrl.WaitState(StateFullRunning, 2*time.Second))

	var shown, hidden time.Time
	require.Eventually(t, func() bool {
		for _, e := range h.presenter.Events() {
			switch e.Name {
			case "show-mask":
				shown = e.At
			case "hide-mask":
				hidden = e.At
			}
		}

		return !hidden.IsZero()
	}, 2*time.Second, 10*time.Millisecond)

	require.GreaterOrEqual(t, hidden.Sub(shown), 250*time.Millisecond)
}

func TestController_ForcedSwitchAfterGrace(t *testing.T) {
	h := newHarness(t)
	h.cfg.Trigger.Delay = time.Minute
	h.cfg.Switch.FallbackTimeout = 100 * time.Millisecond
	h.cfg.Switch.GraceExtension = 100 * time.Millisecond
	h.srv.Fail("Build/game.wasm.br", 404)
	ctrl := h.start(t)

	start := time.Now()
	ctrl.Complete()

	require.NoError(t, <-ctrl.WaitState(StateFullRunning, 2*time.Second))
	waited := time.Since(start)
	require.GreaterOrEqual(t, waited, 190*time.Millisecond, "waits for timeout plus grace")
	require.Less(t, waited, 400*time.Millisecond, "grace is applied once")
	require.Equal(t, VariantFull, h.presenter.Active())

	require.Eventually(t, func() bool {
		return len(h.hooks.switches()) == 1
	}, time.Second, 10*time.Millisecond)
	require.True(t, h.hooks.switches()[0].forced)
	require.Eventually(t, func() bool {
		return h.hooks.hasError(ErrSwitchTimeout)
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return !h.presenter.MaskVisible()
	}, time.Second, 10*time.Millisecond)
}

func TestController_AbortPolicy(t *testing.T) {
	h := newHarness(t)
	h.cfg.Trigger.Delay = time.Minute
	h.cfg.Switch.FallbackTimeout = 300 * time.Millisecond
	h.cfg.Switch.ForcedPolicy = ForcedSwitchAbort
	h.srv.Fail("Build/game.wasm.br", 404)
	ctrl := h.start(t)

	ctrl.Complete()
	require.Equal(t, StateSwitching, ctrl.State())

	require.NoError(t, <-ctrl.WaitState(StateLiteRunning, 2*time.Second))
	require.Equal(t, VariantLite, h.presenter.Active())
	require.False(t, h.presenter.MaskVisible())
	require.False(t, ctrl.SwitchPending())
	require.Zero(t, h.boot.Instance(VariantLite).Terminated())

	// A later request retries the prefetch and succeeds.
	h.srv.Recover("Build/game.wasm.br")
	require.NoError(t, ctrl.RequestSwitch(t.Context(), "retry"))
	require.NoError(t, <-ctrl.WaitState(StateFullRunning, 2*time.Second))
	require.Eventually(t, func() bool {
		sw := h.hooks.switches()
		return len(sw) == 1 && !sw[0].forced && sw[0].reason == "retry"
	}, time.Second, 10*time.Millisecond)
}

func TestController_LiteTeardownErrorIgnored(t *testing.T) {
	h := newHarness(t)
	h.boot.FailTerminate(errors.New("already gone"))
	ctrl := h.start(t)
	require.NoError(t, <-ctrl.WaitState(StateFullReady, 3*time.Second))

	require.NoError(t, ctrl.RequestSwitch(t.Context(), "complete"))
	require.Eventually(t, func() bool {
		return h.boot.Instance(VariantLite).Terminated() == 1
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, StateFullRunning, ctrl.State())
}

func TestController_LevelReached(t *testing.T) {
	h := newHarness(t)
	h.cfg.Trigger.Delay = time.Minute
	h.cfg.Trigger.QueueDeadline = time.Minute
	ctrl := h.start(t)

	ctrl.LevelReached(2)
	require.Equal(t, StateLiteRunning, ctrl.State())

	state, ok := ctrl.Readiness().LoadHandover(t.Context(), h.cfg.Full)
	require.True(t, ok)
	require.Equal(t, 3, state.ResumeLevel)
	require.Equal(t, 2, state.KnownLiteLevel)

	// Threshold reached while visible: queued until an idle window.
	ctrl.LevelReached(3)
	require.Equal(t, StateLiteRunning, ctrl.State())

	ctrl.ReportIdle(time.Millisecond)
	require.Equal(t, StateLiteRunning, ctrl.State())

	ctrl.ReportIdle(50 * time.Millisecond)
	require.NoError(t, <-ctrl.WaitState(StateFullReady, 3*time.Second))
	require.Eventually(t, func() bool {
		return hasHandoverState(h.presenter, "full-build-ready")
	}, time.Second, 10*time.Millisecond)

	// Lower levels never move the known level back.
	ctrl.LevelReached(1)
	require.Equal(t, 3, ctrl.Snapshot().KnownLevel)

	state, ok = ctrl.Readiness().LoadHandover(t.Context(), h.cfg.Full)
	require.True(t, ok)
	require.Equal(t, 4, state.ResumeLevel)
	require.Equal(t, "lite-level-update", state.Reason)

	// Updates are forwarded once the full variant is being prepared.
	ctrl.LevelReached(4)
	states := h.presenter.HandoverStates()
	require.Equal(t, "lite-level-update", states[len(states)-1].Reason)
	require.Equal(t, 5, states[len(states)-1].ResumeLevel)
}

func TestController_LevelTriggerWhenHidden(t *testing.T) {
	h := newHarness(t)
	h.cfg.Trigger.Delay = time.Minute
	h.cfg.Trigger.QueueDeadline = time.Minute
	ctrl := h.start(t)

	ctrl.LevelReached(3)
	require.Equal(t, StateLiteRunning, ctrl.State())

	h.env.SetHidden(true)
	ctrl.VisibilityChanged()
	require.NoError(t, <-ctrl.WaitState(StateFullReady, 3*time.Second))
}

func TestController_LevelGate(t *testing.T) {
	h := newHarness(t)
	h.cfg.Trigger.Delay = time.Minute
	h.cfg.Switch.LevelGate = true
	h.cfg.Switch.TargetLevel = 6
	ctrl := h.start(t)

	ctrl.LevelReached(4)
	ctrl.Complete()
	require.False(t, ctrl.SwitchPending())
	require.NotEqual(t, StateSwitching, ctrl.State())

	// Completion still starts the prefetch.
	require.NoError(t, <-ctrl.WaitState(StateFullReady, 3*time.Second))

	ctrl.LevelReached(6)
	ctrl.Complete()
	require.Equal(t, StateFullRunning, ctrl.State())
}

func TestController_AutoSwitchOnTargetLevel(t *testing.T) {
	h := newHarness(t)
	h.cfg.Trigger.Delay = time.Minute
	h.cfg.Switch.AutoSwitchOnTargetLevel = true
	h.cfg.Switch.TargetLevel = 4
	h.cfg.Switch.FallbackTimeout = 3 * time.Second
	ctrl := h.start(t)

	ctrl.LevelReached(4)
	require.NoError(t, <-ctrl.WaitState(StateFullRunning, 2*time.Second))
	require.Eventually(t, func() bool {
		sw := h.hooks.switches()
		return len(sw) == 1 && sw[0].reason == "target-level"
	}, time.Second, 10*time.Millisecond)
}

func TestController_OverlappingTriggersRunOnce(t *testing.T) {
	h := newHarness(t)
	h.cfg.Trigger.Delay = 20 * time.Millisecond
	h.srv.SetDelay(30 * time.Millisecond)
	h.env.SetHidden(true)
	ctrl := h.start(t)

	var wg sync.WaitGroup
	wg.Go(func() { ctrl.LevelReached(5) })
	wg.Go(func() { ctrl.Prefetch("manual") })
	wg.Go(func() { ctrl.Complete() })
	wg.Wait()

	require.NoError(t, <-ctrl.WaitState(StateFullRunning, 3*time.Second))
	for _, f := range handovertest.CriticalFiles {
		require.Equal(t, 1, h.srv.Hits(f), f)
	}
}

func TestController_CachedReadinessAcrossSessions(t *testing.T) {
	h := newHarness(t)
	first := h.start(t)
	require.NoError(t, <-first.WaitState(StateFullReady, 3*time.Second))
	require.NoError(t, first.Stop(t.Context()))

	hits := h.srv.TotalHits()

	// A new session on the same storage trusts the record without prefetching.
	h.boot = handovertest.NewBootstrapper()
	h.presenter = handovertest.NewPresenter()
	// Lite running moves straight on to FullReady, so wait for the latter only.
	second := h.controller(t)
	require.NoError(t, second.Start(t.Context()))
	t.Cleanup(func() { _ = second.Stop(context.Background()) })
	require.NoError(t, <-second.WaitState(StateFullReady, time.Second))
	require.Equal(t, hits, h.srv.TotalHits())

	require.NoError(t, second.RequestSwitch(t.Context(), "complete"))
	require.Equal(t, StateFullRunning, second.State())
	require.Zero(t, h.presenter.Count("show-mask"))
}

func TestController_NewVersionDiscardsReadiness(t *testing.T) {
	h := newHarness(t)
	first := h.start(t)
	require.NoError(t, <-first.WaitState(StateFullReady, 3*time.Second))
	require.NoError(t, first.Stop(t.Context()))

	h.cfg.Full.Version = "next"
	h.cfg.Trigger.Delay = time.Minute
	h.boot = handovertest.NewBootstrapper()
	second := h.start(t)

	require.False(t, second.Readiness().IsReady(t.Context(), h.cfg.Full))
	require.Equal(t, StateLiteRunning, second.State())

	names, err := h.cache.Names(t.Context())
	require.NoError(t, err)
	for _, name := range names {
		require.False(t, cache.NewSignature(h.cfg.Cache.Prefix, h.cfg.Full).Stale(name), name)
	}
}

func TestController_InvalidatedCacheRevokesReadiness(t *testing.T) {
	h := newHarness(t)
	first := h.start(t)
	require.NoError(t, <-first.WaitState(StateFullReady, 3*time.Second))
	require.NoError(t, first.Stop(t.Context()))

	// Cached critical assets disappear between sessions.
	names, err := h.cache.Names(t.Context())
	require.NoError(t, err)
	for _, name := range names {
		require.NoError(t, h.cache.Drop(t.Context(), name))
	}

	h.cfg.Trigger.Delay = time.Minute
	h.boot = handovertest.NewBootstrapper()
	second := h.start(t)

	require.Eventually(t, func() bool {
		return !second.Readiness().IsReady(t.Context(), h.cfg.Full)
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, StateLiteRunning, second.State())
}

func TestController_SubscribeState(t *testing.T) {
	h := newHarness(t)
	ctrl := h.controller(t)

	states, unsubscribe := ctrl.SubscribeState()
	defer unsubscribe()

	require.NoError(t, ctrl.Start(t.Context()))
	t.Cleanup(func() { _ = ctrl.Stop(context.Background()) })

	var seen []State
	timeout := time.After(3 * time.Second)
	for len(seen) == 0 || seen[len(seen)-1] != StateFullReady {
		select {
		case s := <-states:
			seen = append(seen, s)
		case <-timeout:
			t.Fatalf("timed out, saw %v", seen)
		}
	}

	require.Equal(t, []State{StateLiteRunning, StateFullPreloading, StateFullReady}, seen)
}

func TestController_WaitState_Timeout(t *testing.T) {
	h := newHarness(t)
	h.cfg.Trigger.Delay = time.Minute
	ctrl := h.start(t)

	err := <-ctrl.WaitState(StateFullRunning, 50*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestController_OnVariantCompleted(t *testing.T) {
	h := newHarness(t)
	h.cfg.Trigger.Delay = time.Minute
	h.cfg.Switch.FallbackTimeout = 3 * time.Second
	h.srv.SetDelay(50 * time.Millisecond)
	ctrl := h.start(t)

	var calls atomic.Int32
	var stateAtCall atomic.Int32
	remove := ctrl.OnVariantCompleted(func(kind VariantKind) {
		require.Equal(t, VariantLite, kind)
		calls.Add(1)
		stateAtCall.Store(int32(ctrl.State()))
	})

	ctrl.Complete()
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, int32(StateSwitching), stateAtCall.Load(), "controller listener runs first")

	remove()
	ctrl.Complete()
	require.Equal(t, int32(1), calls.Load())
}
