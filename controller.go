package handover

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/handover/cache"
	"github.com/arloliu/handover/internal/hooks"
	"github.com/arloliu/handover/internal/logging"
	"github.com/arloliu/handover/internal/metrics"
	"github.com/arloliu/handover/prefetch"
	"github.com/arloliu/handover/readiness"
	"github.com/arloliu/handover/store"
	"github.com/arloliu/handover/trigger"
	"github.com/arloliu/handover/types"
)

// stateSubscriberBuffer is the channel capacity of each SubscribeState subscriber.
const stateSubscriberBuffer = 16

// Controller hands a session over from the lite variant to the full variant.
//
// Controller is the main entry point of the library. It handles:
//   - Launching the lite variant and arming the prefetch triggers
//   - Running the prefetch pipeline and tracking the full variant's readiness
//   - Switching to the full variant, instantly when ready or behind a mask
//   - Tearing down the lite variant once the full variant is visible
//
// Thread Safety:
//   - All public methods are safe for concurrent use
//   - State transitions are atomic and validated against a fixed table
//   - The switch procedure is serialized; RequestSwitch is idempotent
//
// Lifecycle:
//   - Create with NewController() or Boot()
//   - Call Start() to launch the lite variant
//   - Report progress through LevelReached(), Complete() or HandleMessage()
//   - Call Stop() for graceful shutdown
type Controller struct {
	cfg          Config
	sessionID    string
	bootstrapper Bootstrapper
	presenter    Presenter
	hooks        types.Hooks
	metrics      MetricsCollector
	logger       Logger

	readiness *readiness.Store
	cache     *cache.Cache
	signature cache.Signature
	pipeline  *prefetch.Pipeline
	triggers  *trigger.Engine

	// State management
	state          atomic.Int32 // State
	stateChangedAt atomic.Int64 // unix nanoseconds
	stateSubs      *xsync.Map[uint64, chan State]
	nextSubID      atomic.Uint64
	liteProgress   atomic.Uint64 // float64 bits
	fullProgress   atomic.Uint64 // float64 bits

	completedMu     sync.Mutex
	completed       []completedListener
	nextCompletedID uint64

	// Preload and instance bookkeeping
	mu             sync.Mutex
	preload        types.Status
	preloadRunning bool
	knownLevel     int
	lite           Instance
	full           Instance
	fullLaunched   bool
	fullWarm       bool

	// Switch bookkeeping, serialized by switchMu
	switchMu        sync.Mutex
	switchRequested bool
	switched        bool
	switchReason    string
	switchStartedAt time.Time
	switchDeadline  time.Time
	switchTimer     *time.Timer
	graceUsed       bool
	masked          bool
	switchGen       uint64

	// Lifecycle management
	lifeMu   sync.Mutex
	started  bool
	stopping bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

type completedListener struct {
	id uint64
	fn func(VariantKind)
}

// NewController creates a new Controller instance with the provided configuration.
//
// Returns a concrete *Controller struct following the "accept interfaces, return structs" principle.
//
// Parameters:
//   - cfg: Configuration; missing values are filled with defaults
//   - bootstrapper: Launches the lite and full variants
//   - presenter: Renders variant visibility, the mask and the fallback message
//   - opts: Optional configuration (store, cache, hooks, metrics, logger, environment)
//
// Returns:
//   - *Controller: Initialized controller instance
//   - error: Validation error if configuration is invalid
//
// Example:
//
//	cfg, err := handover.LoadConfig("handover.yaml")
//	ctrl, err := handover.NewController(&cfg, boot, presenter,
//	    handover.WithStore(kvStore),
//	    handover.WithLogger(logger),
//	)
func NewController(cfg *Config, bootstrapper Bootstrapper, presenter Presenter, opts ...Option) (*Controller, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if bootstrapper == nil {
		return nil, ErrBootstrapperRequired
	}
	if presenter == nil {
		return nil, ErrPresenterRequired
	}

	SetDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	options := &controllerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	metricsCollector := options.metrics
	if metricsCollector == nil {
		metricsCollector = metrics.NewNop()
	}

	loggerInstance := options.logger
	if loggerInstance == nil {
		loggerInstance = logging.NewNop()
	}

	cfg.ValidateWithWarnings(loggerInstance)

	storeBackend := options.storeBackend
	if storeBackend == nil {
		storeBackend = store.NewMemory()
	}

	cacheBackend := options.cacheBackend
	if cacheBackend == nil {
		cacheBackend = cache.NewMemory()
	}

	sessionID := uuid.NewString()
	if sl, ok := loggerInstance.(*logging.SlogLogger); ok {
		loggerInstance = sl.With("session_id", sessionID)
	}

	readinessOpts := []readiness.Option{
		readiness.WithNamespace(cfg.Readiness.Namespace),
		readiness.WithTTL(cfg.Readiness.TTL),
		readiness.WithLogger(loggerInstance),
		readiness.WithMetrics(metricsCollector),
	}
	if options.clock != nil {
		readinessOpts = append(readinessOpts, readiness.WithClock(options.clock))
	}

	c := &Controller{
		cfg:          *cfg,
		sessionID:    sessionID,
		bootstrapper: bootstrapper,
		presenter:    presenter,
		hooks:        hooks.Fill(options.hooks),
		metrics:      metricsCollector,
		logger:       loggerInstance,
		readiness:    readiness.New(storeBackend, readinessOpts...),
		cache:        cache.New(cacheBackend, cache.WithLogger(loggerInstance), cache.WithMetrics(metricsCollector)),
		signature:    cache.NewSignature(cfg.Cache.Prefix, cfg.Full),
		stateSubs:    xsync.NewMap[uint64, chan State](),
		preload:      types.StatusIdle,
	}

	pipeline, err := prefetch.New(c.cfg.Full, c.readiness, c.cache,
		prefetch.WithConfig(c.cfg.Prefetch),
		prefetch.WithPartitions(c.signature.Name(), c.cfg.Cache.RuntimePartition),
		prefetch.WithHTTPClient(options.httpClient),
		prefetch.WithLogger(loggerInstance),
		prefetch.WithMetrics(metricsCollector),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	c.pipeline = pipeline
	c.pipeline.OnOutcome(c.onOutcome)

	c.triggers = trigger.New(c.onTrigger,
		trigger.WithConfig(c.cfg.Trigger),
		trigger.WithEnvironment(options.environment),
		trigger.WithLogger(loggerInstance),
		trigger.WithMetrics(metricsCollector),
	)

	// The controller's own completion listener always runs first.
	c.OnVariantCompleted(c.handleCompleted)

	c.state.Store(int32(StateInit))
	c.stateChangedAt.Store(time.Now().UnixNano())

	return c, nil
}

// Start prepares storage and launches the lite variant.
//
// Stale readiness records and cache partitions of other versions are removed
// first. Triggers are armed once the lite variant reports ready.
//
// Parameters:
//   - ctx: Context for startup operations
//
// Returns:
//   - error: ErrAlreadyStarted, or a lite launch failure
func (c *Controller) Start(ctx context.Context) error {
	c.lifeMu.Lock()
	if c.started {
		c.lifeMu.Unlock()

		return ErrAlreadyStarted
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.lifeMu.Unlock()

	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
	defer cancel()

	if pruned := c.readiness.PruneStale(opCtx, c.cfg.Full); pruned > 0 {
		c.logger.Info("pruned stale readiness records", "count", pruned)
	}

	dropped, err := c.cache.Cleanup(opCtx, c.signature, c.cfg.Cache.RetiredPartitions...)
	if err != nil {
		c.reportError(fmt.Errorf("cache cleanup: %w", err))
	}
	if len(dropped) > 0 {
		c.logger.Info("dropped stale cache partitions", "partitions", dropped)
	}

	if c.readiness.IsReady(opCtx, c.cfg.Full) {
		c.mu.Lock()
		c.preload = types.StatusReady
		c.mu.Unlock()
		c.logger.Info("full variant ready from a previous session", "version", c.cfg.Full.Version)
	}

	c.readiness.SaveHandover(opCtx, c.cfg.Full, c.handoverState("boot"))

	if err := c.bootstrapper.Launch(ctx, c.cfg.Lite, &lifecycle{c: c, kind: VariantLite}); err != nil {
		return fmt.Errorf("failed to launch lite variant: %w", err)
	}
	if err := c.presenter.Activate(ctx, VariantLite); err != nil {
		return fmt.Errorf("failed to activate lite variant: %w", err)
	}

	c.logger.Info("controller started", "lite", c.cfg.Lite.BaseURL, "full", c.cfg.Full.BaseURL, "version", c.cfg.Full.Version)

	return nil
}

// Stop disarms every trigger and timer and waits for background work.
//
// Safe to call multiple times - subsequent calls will return ErrNotStarted.
// Running variant instances are left to the host.
//
// Parameters:
//   - ctx: Context for shutdown timeout
//
// Returns:
//   - error: ErrNotStarted or the context error on timeout
func (c *Controller) Stop(ctx context.Context) error {
	c.lifeMu.Lock()
	if !c.started || c.stopping {
		c.lifeMu.Unlock()

		return ErrNotStarted
	}
	c.stopping = true
	c.lifeMu.Unlock()

	c.transitionState(c.State(), StateShutdown)

	c.triggers.Stop()
	c.pipeline.Close()

	c.switchMu.Lock()
	if c.switchTimer != nil {
		c.switchTimer.Stop()
		c.switchTimer = nil
	}
	c.switchMu.Unlock()

	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("controller stopped")
		return nil
	case <-ctx.Done():
		c.logError("shutdown timeout exceeded, some goroutines may still be running")
		return ctx.Err()
	}
}

// SessionID returns the random identifier of this controller's session.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// Config returns the effective configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// State returns the current controller state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Snapshot is a point-in-time view of the handover.
type Snapshot struct {
	SessionID       string    `json:"sessionId"`
	State           string    `json:"state"`
	PreloadStatus   Status    `json:"preloadStatus"`
	SwitchRequested bool      `json:"switchRequested"`
	SwitchReason    string    `json:"switchReason,omitempty"`
	SwitchDeadline  time.Time `json:"switchDeadline,omitzero"`
	KnownLevel      int       `json:"knownLevel"`
	LiteProgress    float64   `json:"liteProgress"`
	FullProgress    float64   `json:"fullProgress"`
	StorageDegraded bool      `json:"storageDegraded"`
}

// Snapshot returns the current handover view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	preload, level := c.preload, c.knownLevel
	c.mu.Unlock()

	c.switchMu.Lock()
	requested, reason, deadline := c.switchRequested, c.switchReason, c.switchDeadline
	c.switchMu.Unlock()

	return Snapshot{
		SessionID:       c.sessionID,
		State:           c.State().String(),
		PreloadStatus:   preload,
		SwitchRequested: requested,
		SwitchReason:    reason,
		SwitchDeadline:  deadline,
		KnownLevel:      level,
		LiteProgress:    c.Progress(VariantLite),
		FullProgress:    c.Progress(VariantFull),
		StorageDegraded: c.readiness.Degraded(),
	}
}

// Progress returns the last load progress reported for a variant.
func (c *Controller) Progress(kind VariantKind) float64 {
	if kind == VariantFull {
		return math.Float64frombits(c.fullProgress.Load())
	}

	return math.Float64frombits(c.liteProgress.Load())
}

// WaitState waits for the controller to reach the expected state.
//
// Returns a channel that receives nil when the state is reached or an error on timeout.
// The channel is closed after sending the result.
//
// Parameters:
//   - expectedState: The state to wait for
//   - timeout: Maximum time to wait
//
// Returns:
//   - <-chan error: Channel that receives the result
//
// Example:
//
//	if err := <-ctrl.WaitState(handover.StateFullRunning, 20*time.Second); err != nil {
//	    log.Printf("switch did not complete: %v", err)
//	}
func (c *Controller) WaitState(expectedState State, timeout time.Duration) <-chan error {
	ch := make(chan error, 1)

	go func() {
		defer close(ch)

		if c.State() == expectedState {
			ch <- nil
			return
		}

		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()

		timeoutTimer := time.NewTimer(timeout)
		defer timeoutTimer.Stop()

		for {
			select {
			case <-ticker.C:
				if c.State() == expectedState {
					ch <- nil
					return
				}
			case <-timeoutTimer.C:
				ch <- context.DeadlineExceeded
				return
			}
		}
	}()

	return ch
}

// SubscribeState returns a channel receiving every subsequent state change.
//
// Slow subscribers lose changes instead of blocking transitions; drops are
// counted by RecordStateChangeDropped. The channel is never closed.
//
// Returns:
//   - <-chan State: Buffered state change channel
//   - func(): Unsubscribes
func (c *Controller) SubscribeState() (<-chan State, func()) {
	id := c.nextSubID.Add(1)
	ch := make(chan State, stateSubscriberBuffer)
	c.stateSubs.Store(id, ch)

	return ch, func() {
		c.stateSubs.Delete(id)
	}
}

// OnVariantCompleted registers fn to be called when a variant reports completion.
//
// Listeners run in registration order; the controller's own listener, which
// starts the prefetch and requests the switch, is always first.
//
// Returns:
//   - func(): Removes the listener
func (c *Controller) OnVariantCompleted(fn func(VariantKind)) func() {
	c.completedMu.Lock()
	defer c.completedMu.Unlock()

	c.nextCompletedID++
	id := c.nextCompletedID
	c.completed = append(c.completed, completedListener{id: id, fn: fn})

	return func() {
		c.completedMu.Lock()
		defer c.completedMu.Unlock()

		for i, l := range c.completed {
			if l.id == id {
				c.completed = append(c.completed[:i], c.completed[i+1:]...)
				return
			}
		}
	}
}

// LevelReached reports the lite variant's progress level.
//
// Levels are monotonic; lower reports are ignored. Each report persists the
// resume level and, once the full variant is being prepared, forwards it.
func (c *Controller) LevelReached(level int) {
	ctx, ok := c.running()
	if !ok {
		return
	}

	highest := c.triggers.Level(level)

	c.mu.Lock()
	c.knownLevel = highest
	forward := c.preload != types.StatusIdle || c.fullLaunched
	c.mu.Unlock()

	state := c.handoverState("lite-level-update")
	c.readiness.SaveHandover(ctx, c.cfg.Full, state)
	if forward {
		c.presenter.SendHandoverState(ctx, state)
	}

	sw := c.cfg.Switch
	if sw.AutoSwitchOnTargetLevel && highest >= sw.TargetLevel {
		if err := c.RequestSwitch(ctx, "target-level"); err != nil {
			c.logger.Warn("automatic switch failed", "level", highest, "error", err)
		}
	}
}

// Complete reports that the lite variant finished.
//
// Every OnVariantCompleted listener is notified with VariantLite.
func (c *Controller) Complete() {
	if _, ok := c.running(); !ok {
		return
	}

	c.completedMu.Lock()
	listeners := append([]completedListener(nil), c.completed...)
	c.completedMu.Unlock()

	for _, l := range listeners {
		l.fn(VariantLite)
	}
}

// ReportIdle reports an idle window of the host; a queued level trigger runs
// when the window is long enough.
func (c *Controller) ReportIdle(window time.Duration) {
	c.triggers.Idle(window)
}

// VisibilityChanged tells the controller the host's visibility changed.
func (c *Controller) VisibilityChanged() {
	c.triggers.RunWhenSafe()
}

// Prefetch starts the full variant's prefetch now, regardless of triggers.
func (c *Controller) Prefetch(reason string) {
	c.startPreload(reason)
}

// Pipeline returns the prefetch pipeline of the full variant.
func (c *Controller) Pipeline() *prefetch.Pipeline {
	return c.pipeline
}

// Readiness returns the readiness store.
func (c *Controller) Readiness() *readiness.Store {
	return c.readiness
}

// Cache returns the asset cache.
func (c *Controller) Cache() *cache.Cache {
	return c.cache
}

// Transport returns an http.RoundTripper serving the full variant's runtime
// requests from the cache.
func (c *Controller) Transport() *cache.Transport {
	return &cache.Transport{
		Cache:    c.cache,
		Scope:    c.cfg.Full.BaseURL,
		Prefetch: c.signature.Name(),
		Runtime:  c.cfg.Cache.RuntimePartition,
		Logger:   c.logger,
	}
}

func (c *Controller) handleCompleted(kind VariantKind) {
	if kind != VariantLite {
		return
	}

	c.triggers.Complete()
	c.startPreload(trigger.KindComplete)

	sw := c.cfg.Switch
	if sw.LevelGate {
		if highest := c.triggers.HighestLevel(); highest < sw.TargetLevel {
			c.logger.Info("switch blocked by level gate", "level", highest, "target", sw.TargetLevel)
			return
		}
	}

	ctx, ok := c.running()
	if !ok {
		return
	}
	if err := c.RequestSwitch(ctx, trigger.KindComplete); err != nil {
		c.logger.Warn("switch on completion failed", "error", err)
	}
}

func (c *Controller) onTrigger(reason string) {
	c.startPreload(reason)
}

// startPreload runs the prefetch pipeline in the background unless it is
// running or the full variant is already ready.
func (c *Controller) startPreload(reason string) {
	c.mu.Lock()
	if c.preload == types.StatusReady || c.preloadRunning {
		c.mu.Unlock()
		return
	}
	c.preloadRunning = true
	c.preload = types.StatusPrefetching
	c.mu.Unlock()

	c.advance(StateFullPreloading, StateLiteRunning)

	started := c.spawn(func(ctx context.Context) {
		c.pipeline.Prefetch(ctx, reason)

		c.mu.Lock()
		c.preloadRunning = false
		c.mu.Unlock()
	})
	if !started {
		c.mu.Lock()
		c.preloadRunning = false
		c.mu.Unlock()
	}
}

// onOutcome receives every pipeline outcome, automatic retries included.
func (c *Controller) onOutcome(out types.Outcome) {
	c.spawn(func(ctx context.Context) {
		if err := c.hooks.OnPrefetchOutcome(ctx, out); err != nil {
			c.logError("prefetch outcome hook error", "error", err)
		}

		if out.Ready() {
			c.markFullReady(ctx, "prefetch-"+out.Trigger)
			return
		}

		c.mu.Lock()
		if c.preload != types.StatusReady {
			c.preload = types.StatusFailed
		}
		c.mu.Unlock()
		c.advance(StateLiteRunning, StateFullPreloading)
	})
}

// markFullReady records that the full variant can be switched to and
// completes a pending switch.
func (c *Controller) markFullReady(ctx context.Context, reason string) {
	c.mu.Lock()
	c.preload = types.StatusReady
	c.mu.Unlock()

	c.advance(StateFullReady, StateLiteRunning, StateFullPreloading)
	c.warmFull()

	c.switchMu.Lock()
	defer c.switchMu.Unlock()
	if c.switchRequested && !c.switched {
		c.logger.Debug("pending switch completed by readiness", "readiness", reason)
		c.completeSwitchLocked(ctx, c.switchReason, switchModeReady)
	}
}

// warmFull launches the full variant in the background, once.
func (c *Controller) warmFull() {
	c.mu.Lock()
	if c.fullLaunched {
		c.mu.Unlock()
		return
	}
	c.fullLaunched = true
	c.mu.Unlock()

	c.spawn(func(ctx context.Context) {
		if err := c.bootstrapper.Launch(ctx, c.cfg.Full, &lifecycle{c: c, kind: VariantFull}); err != nil {
			c.reportError(fmt.Errorf("failed to launch full variant: %w", err))

			c.mu.Lock()
			c.fullLaunched = false
			c.mu.Unlock()
		}
	})
}

func (c *Controller) onLiteReady(inst Instance) {
	c.mu.Lock()
	c.lite = inst
	ready := c.preload == types.StatusReady
	c.mu.Unlock()

	if !c.transitionState(StateInit, StateLiteRunning) {
		return
	}

	ctx, ok := c.running()
	if !ok {
		return
	}

	if ready && c.pipeline.Validate(ctx) {
		c.markFullReady(ctx, "cached")
		return
	}
	if ready {
		c.invalidateReadiness(ctx, "cached assets failed validation")
	}

	c.triggers.Arm()
}

func (c *Controller) onFullReady(inst Instance) {
	c.mu.Lock()
	c.full = inst
	c.fullWarm = true
	c.mu.Unlock()

	c.logger.Info("full variant instance ready")
	if ctx, ok := c.running(); ok {
		c.presenter.SendHandoverState(ctx, c.handoverState("full-build-ready"))
	}
}

func (c *Controller) invalidateReadiness(ctx context.Context, reason string) {
	c.logger.Warn("full variant readiness revoked", "reason", reason)
	c.readiness.Write(ctx, c.cfg.Full, types.PatchStatus(types.StatusIdle, reason))

	c.mu.Lock()
	if c.preload == types.StatusReady {
		c.preload = types.StatusIdle
	}
	c.mu.Unlock()
}

func (c *Controller) teardownLite() {
	c.mu.Lock()
	lite := c.lite
	c.lite = nil
	c.mu.Unlock()

	if lite == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.OperationTimeout)
	defer cancel()

	if err := lite.Terminate(ctx); err != nil {
		c.logger.Warn("lite variant teardown failed", "error", err)
		return
	}
	c.logger.Debug("lite variant terminated")
}

func (c *Controller) handoverState(reason string) HandoverState {
	c.mu.Lock()
	known := c.knownLevel
	c.mu.Unlock()

	resume := 1
	if known > 0 {
		resume = known + 1
	}

	return HandoverState{Reason: reason, ResumeLevel: resume, KnownLiteLevel: known}
}

// running returns the controller context while the controller is started
// and not stopping.
func (c *Controller) running() (context.Context, bool) {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if !c.started || c.stopping {
		return nil, false
	}

	return c.ctx, true
}

// spawn runs fn in a tracked goroutine unless the controller is stopping.
func (c *Controller) spawn(fn func(ctx context.Context)) bool {
	c.lifeMu.Lock()
	if !c.started || c.stopping {
		c.lifeMu.Unlock()
		return false
	}
	ctx := c.ctx
	c.wg.Add(1)
	c.lifeMu.Unlock()

	go func() {
		defer c.wg.Done()
		fn(ctx)
	}()

	return true
}

// advance transitions to `to` when the current state is one of from.
func (c *Controller) advance(to State, from ...State) bool {
	cur := c.State()
	for _, f := range from {
		if cur == f {
			return c.transitionState(cur, to)
		}
	}

	return false
}

func (c *Controller) transitionState(from, to State) bool {
	if !c.isValidTransition(from, to) {
		c.logError("invalid state transition attempted",
			"from", from.String(),
			"to", to.String(),
		)

		return false
	}

	if !c.state.CompareAndSwap(int32(from), int32(to)) { //nolint:gosec // State values are controlled enum
		return false
	}

	now := time.Now()
	prev := c.stateChangedAt.Swap(now.UnixNano())
	c.metrics.RecordStateTransition(from, to, now.Sub(time.Unix(0, prev)).Seconds())

	c.logger.Info("state transition",
		"from", from.String(),
		"to", to.String(),
	)

	hookCtx := context.Background()
	if ctx, ok := c.running(); ok {
		hookCtx = ctx
	}
	go func() {
		if err := c.hooks.OnStateChanged(hookCtx, from, to); err != nil {
			c.logError("state change hook error", "from", from, "to", to, "error", err)
		}
	}()

	c.stateSubs.Range(func(_ uint64, ch chan State) bool {
		select {
		case ch <- to:
		default:
			c.metrics.RecordStateChangeDropped()
		}

		return true
	})

	return true
}

func (c *Controller) isValidTransition(from, to State) bool {
	validTransitions := map[State][]State{
		StateInit:           {StateLiteRunning, StateShutdown},
		StateLiteRunning:    {StateFullPreloading, StateFullReady, StateSwitching, StateShutdown},
		StateFullPreloading: {StateFullReady, StateLiteRunning, StateSwitching, StateShutdown},
		StateFullReady:      {StateSwitching, StateShutdown},
		StateSwitching:      {StateFullRunning, StateLiteRunning, StateFullPreloading, StateFullReady, StateShutdown},
		StateFullRunning:    {StateShutdown},
		StateShutdown:       {}, // Terminal state - no transitions allowed
	}

	allowedStates, exists := validTransitions[from]
	if !exists {
		return false
	}

	for _, allowed := range allowedStates {
		if allowed == to {
			return true
		}
	}

	return false
}

// reportError logs a recoverable error and passes it to the OnError hook.
func (c *Controller) reportError(err error) {
	c.logger.Warn("recoverable error", "error", err)

	ctx, ok := c.running()
	if !ok {
		return
	}
	go func() {
		if hookErr := c.hooks.OnError(ctx, err); hookErr != nil {
			c.logError("error hook failed", "error", hookErr)
		}
	}()
}

func (c *Controller) logError(msg string, keysAndValues ...any) {
	c.logger.Error(msg, keysAndValues...)
}

// lifecycle adapts a variant's lifecycle callbacks to the controller.
type lifecycle struct {
	c    *Controller
	kind VariantKind
}

var _ Lifecycle = (*lifecycle)(nil)

func (l *lifecycle) OnProgress(fraction float64) {
	fraction = max(0, min(1, fraction))
	bits := math.Float64bits(fraction)
	if l.kind == VariantFull {
		l.c.fullProgress.Store(bits)
	} else {
		l.c.liteProgress.Store(bits)
	}
	l.c.logger.Debug("variant progress", "variant", string(l.kind), "progress", fraction)
}

func (l *lifecycle) OnReady(inst Instance) {
	l.OnProgress(1)
	if l.kind == VariantFull {
		l.c.onFullReady(inst)
		return
	}
	l.c.onLiteReady(inst)
}
