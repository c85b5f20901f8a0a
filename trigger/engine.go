package trigger

import (
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/handover/internal/logging"
	"github.com/arloliu/handover/internal/metrics"
	"github.com/arloliu/handover/types"
)

// Trigger kinds.
const (
	KindTime     = "time"
	KindLevel    = "level"
	KindComplete = "complete"
)

// Config holds trigger thresholds.
type Config struct {
	// Delay is the time trigger delay measured from Arm.
	Delay time.Duration `yaml:"delay" json:"delay"`

	// SlowNetworkExtra is added to Delay on save-data or 2G-class connections.
	SlowNetworkExtra time.Duration `yaml:"slowNetworkExtra" json:"slowNetworkExtra"`

	// LevelThreshold is the level at which a prefetch request is queued.
	// 0 disables the level trigger.
	LevelThreshold int `yaml:"levelThreshold" json:"levelThreshold"`

	// MinIdleWindow is the shortest reported idle window that runs a queued request.
	MinIdleWindow time.Duration `yaml:"minIdleWindow" json:"minIdleWindow"`

	// QueueDeadline runs a queued request even if no safe moment came.
	QueueDeadline time.Duration `yaml:"queueDeadline" json:"queueDeadline"`
}

// DefaultConfig returns the default trigger thresholds.
func DefaultConfig() Config {
	return Config{
		Delay:            14 * time.Second,
		SlowNetworkExtra: 15 * time.Second,
		LevelThreshold:   3,
		MinIdleWindow:    12 * time.Millisecond,
		QueueDeadline:    12 * time.Second,
	}
}

// Validate checks the thresholds.
func (c Config) Validate() error {
	if c.Delay <= 0 {
		return fmt.Errorf("%w: trigger delay must be positive", types.ErrInvalidConfig)
	}
	if c.SlowNetworkExtra < 0 {
		return fmt.Errorf("%w: slow network extra must not be negative", types.ErrInvalidConfig)
	}
	if c.LevelThreshold < 0 {
		return fmt.Errorf("%w: level threshold must not be negative", types.ErrInvalidConfig)
	}
	if c.QueueDeadline <= 0 {
		return fmt.Errorf("%w: queue deadline must be positive", types.ErrInvalidConfig)
	}

	return nil
}

// SlowNetwork reports whether info describes a constrained connection.
func SlowNetwork(info types.NetworkInfo) bool {
	return info.SaveData || info.EffectiveType == "2g" || info.EffectiveType == "slow-2g"
}

// FireFunc receives the reason of the winning trigger, e.g. "time",
// "level:idle" or "complete". It must not block.
type FireFunc func(reason string)

type staticEnvironment struct{}

func (staticEnvironment) Hidden() bool               { return false }
func (staticEnvironment) Network() types.NetworkInfo { return types.NetworkInfo{} }

// Engine arms and races the prefetch triggers.
type Engine struct {
	cfg     Config
	env     types.Environment
	fire    FireFunc
	logger  types.Logger
	metrics types.MetricsCollector

	mu            sync.Mutex
	fired         bool
	stopped       bool
	level         int
	queued        bool
	queuedAt      time.Time
	timeTimer     *time.Timer
	deadlineTimer *time.Timer
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the thresholds.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithEnvironment sets the environment consulted for visibility and network class.
func WithEnvironment(env types.Environment) Option {
	return func(e *Engine) {
		if env != nil {
			e.env = env
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l types.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// New creates an unarmed engine calling fire when the first trigger wins.
func New(fire FireFunc, opts ...Option) *Engine {
	e := &Engine{
		cfg:     DefaultConfig(),
		env:     staticEnvironment{},
		fire:    fire,
		logger:  logging.NewNop(),
		metrics: metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// EffectiveDelay returns the time trigger delay for the current network.
func (e *Engine) EffectiveDelay() time.Duration {
	d := e.cfg.Delay
	if SlowNetwork(e.env.Network()) {
		d += e.cfg.SlowNetworkExtra
	}

	return d
}

// Arm starts the time trigger. Arming twice or after Stop is a no-op.
func (e *Engine) Arm() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.fired || e.stopped || e.timeTimer != nil {
		return
	}

	delay := e.EffectiveDelay()
	e.timeTimer = time.AfterFunc(delay, func() {
		e.trigger(KindTime, KindTime)
	})
	e.logger.Debug("prefetch time trigger armed", "delay", delay)
}

// Level reports the level reached. Levels only grow; lower reports are
// ignored. Crossing LevelThreshold queues a prefetch request.
//
// Returns:
//   - int: Highest level reported so far
func (e *Engine) Level(level int) int {
	e.mu.Lock()
	if level > e.level {
		e.level = level
	}
	highest := e.level

	if e.fired || e.stopped || e.queued || e.cfg.LevelThreshold <= 0 || highest < e.cfg.LevelThreshold {
		e.mu.Unlock()
		return highest
	}

	e.queued = true
	e.queuedAt = time.Now()
	e.deadlineTimer = time.AfterFunc(e.cfg.QueueDeadline, func() {
		e.trigger(KindLevel, KindLevel+":deadline")
	})
	e.mu.Unlock()

	e.logger.Debug("prefetch request queued", "level", highest)
	e.RunWhenSafe()

	return highest
}

// HighestLevel returns the highest level reported.
func (e *Engine) HighestLevel() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.level
}

// RunWhenSafe runs a queued request if the environment is hidden.
// Hosts call it on visibility changes.
func (e *Engine) RunWhenSafe() {
	if !e.Queued() {
		return
	}
	if e.env.Hidden() {
		e.trigger(KindLevel, KindLevel+":hidden")
	}
}

// Idle reports an idle window of the given length. A queued request runs
// when the window is at least MinIdleWindow.
func (e *Engine) Idle(window time.Duration) {
	if !e.Queued() {
		return
	}
	if window >= e.cfg.MinIdleWindow {
		e.trigger(KindLevel, KindLevel+":idle")
		return
	}

	e.mu.Lock()
	waited := time.Since(e.queuedAt)
	e.mu.Unlock()
	if waited >= e.cfg.QueueDeadline {
		e.trigger(KindLevel, KindLevel+":deadline")
	}
}

// Queued reports whether a level request is waiting for a safe moment.
func (e *Engine) Queued() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.queued && !e.fired && !e.stopped
}

// Complete fires the completion trigger immediately.
func (e *Engine) Complete() {
	e.trigger(KindComplete, KindComplete)
}

// Fired reports whether a trigger has won.
func (e *Engine) Fired() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.fired
}

// Stop disarms every trigger.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopped = true
	e.stopTimersLocked()
}

func (e *Engine) trigger(kind, reason string) {
	e.mu.Lock()
	if e.fired || e.stopped {
		e.mu.Unlock()
		return
	}
	e.fired = true
	e.queued = false
	e.stopTimersLocked()
	e.mu.Unlock()

	e.metrics.RecordTrigger(kind)
	e.logger.Info("prefetch triggered", "reason", reason)
	e.fire(reason)
}

func (e *Engine) stopTimersLocked() {
	if e.timeTimer != nil {
		e.timeTimer.Stop()
		e.timeTimer = nil
	}
	if e.deadlineTimer != nil {
		e.deadlineTimer.Stop()
		e.deadlineTimer = nil
	}
}
