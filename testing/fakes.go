package testing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/handover/types"
)

// Instance is a fake running variant.
type Instance struct {
	Kind types.VariantKind

	terminated   atomic.Int32
	TerminateErr error
}

var _ types.Instance = (*Instance)(nil)

// Terminate records the call and returns TerminateErr.
func (i *Instance) Terminate(context.Context) error {
	i.terminated.Add(1)
	return i.TerminateErr
}

// Terminated reports how many times Terminate was called.
func (i *Instance) Terminated() int {
	return int(i.terminated.Load())
}

// Bootstrapper is a recording types.Bootstrapper.
//
// By default every launched variant reports ready right away on a separate
// goroutine. Manual variants wait for Ready to be called.
type Bootstrapper struct {
	mu           sync.Mutex
	launches     []types.Variant
	lifecycles   map[types.VariantKind]types.Lifecycle
	instances    map[types.VariantKind]*Instance
	manual       map[types.VariantKind]bool
	readyDelay   map[types.VariantKind]time.Duration
	launchErr    map[types.VariantKind]error
	terminateErr error
}

var _ types.Bootstrapper = (*Bootstrapper)(nil)

// NewBootstrapper creates a Bootstrapper whose variants become ready immediately.
func NewBootstrapper() *Bootstrapper {
	return &Bootstrapper{
		lifecycles: make(map[types.VariantKind]types.Lifecycle),
		instances:  make(map[types.VariantKind]*Instance),
		manual:     make(map[types.VariantKind]bool),
		readyDelay: make(map[types.VariantKind]time.Duration),
		launchErr:  make(map[types.VariantKind]error),
	}
}

// Manual makes kind wait for an explicit Ready call.
func (b *Bootstrapper) Manual(kind types.VariantKind) *Bootstrapper {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.manual[kind] = true

	return b
}

// ReadyAfter delays the automatic ready report of kind.
func (b *Bootstrapper) ReadyAfter(kind types.VariantKind, d time.Duration) *Bootstrapper {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readyDelay[kind] = d

	return b
}

// FailLaunch makes Launch of kind return err.
func (b *Bootstrapper) FailLaunch(kind types.VariantKind, err error) *Bootstrapper {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.launchErr[kind] = err

	return b
}

// FailTerminate makes every instance's Terminate return err.
func (b *Bootstrapper) FailTerminate(err error) *Bootstrapper {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.terminateErr = err

	return b
}

// Launch records the variant and schedules its ready report.
func (b *Bootstrapper) Launch(_ context.Context, v types.Variant, l types.Lifecycle) error {
	b.mu.Lock()
	b.launches = append(b.launches, v)
	if err := b.launchErr[v.Kind]; err != nil {
		b.mu.Unlock()
		return err
	}

	inst := &Instance{Kind: v.Kind, TerminateErr: b.terminateErr}
	b.lifecycles[v.Kind] = l
	b.instances[v.Kind] = inst
	manual := b.manual[v.Kind]
	delay := b.readyDelay[v.Kind]
	b.mu.Unlock()

	if !manual {
		go func() {
			if delay > 0 {
				time.Sleep(delay)
			}
			l.OnProgress(1)
			l.OnReady(inst)
		}()
	}

	return nil
}

// Ready reports kind as ready. It fails if kind was never launched.
func (b *Bootstrapper) Ready(kind types.VariantKind) error {
	b.mu.Lock()
	l, ok := b.lifecycles[kind]
	inst := b.instances[kind]
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("variant %s was not launched", kind)
	}
	l.OnReady(inst)

	return nil
}

// Progress reports load progress for kind.
func (b *Bootstrapper) Progress(kind types.VariantKind, fraction float64) {
	b.mu.Lock()
	l, ok := b.lifecycles[kind]
	b.mu.Unlock()

	if ok {
		l.OnProgress(fraction)
	}
}

// Launches returns the launched variants in order.
func (b *Bootstrapper) Launches() []types.Variant {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]types.Variant(nil), b.launches...)
}

// LaunchCount returns how many times kind was launched.
func (b *Bootstrapper) LaunchCount(kind types.VariantKind) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, v := range b.launches {
		if v.Kind == kind {
			n++
		}
	}

	return n
}

// Instance returns the last instance created for kind, or nil.
func (b *Bootstrapper) Instance(kind types.VariantKind) *Instance {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.instances[kind]
}

// PresenterEvent is one call recorded by Presenter.
type PresenterEvent struct {
	Name string
	Arg  string
	At   time.Time
}

// Presenter is a recording types.Presenter.
type Presenter struct {
	mu       sync.Mutex
	events   []PresenterEvent
	active   types.VariantKind
	mask     bool
	fallback string
	states   []types.HandoverState
}

var _ types.Presenter = (*Presenter)(nil)

// NewPresenter creates an empty Presenter.
func NewPresenter() *Presenter {
	return &Presenter{}
}

func (p *Presenter) record(name, arg string) {
	p.events = append(p.events, PresenterEvent{Name: name, Arg: arg, At: time.Now()})
}

// Activate records the activation.
func (p *Presenter) Activate(_ context.Context, kind types.VariantKind) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = kind
	p.record("activate", string(kind))

	return nil
}

// ShowMask records the mask being shown.
func (p *Presenter) ShowMask(context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mask = true
	p.record("show-mask", "")
}

// HideMask records the mask being hidden.
func (p *Presenter) HideMask(context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mask = false
	p.record("hide-mask", "")
}

// ShowFallback records the fallback message.
func (p *Presenter) ShowFallback(_ context.Context, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallback = message
	p.record("fallback", message)
}

// SendHandoverState records the handover state.
func (p *Presenter) SendHandoverState(_ context.Context, state types.HandoverState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, state)
	p.record("handover-state", state.Reason)
}

// Active returns the last activated variant kind.
func (p *Presenter) Active() types.VariantKind {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.active
}

// MaskVisible reports whether the mask is currently shown.
func (p *Presenter) MaskVisible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.mask
}

// Fallback returns the last fallback message.
func (p *Presenter) Fallback() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.fallback
}

// HandoverStates returns the handover states sent so far.
func (p *Presenter) HandoverStates() []types.HandoverState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]types.HandoverState(nil), p.states...)
}

// Events returns a copy of the recorded events.
func (p *Presenter) Events() []PresenterEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]PresenterEvent(nil), p.events...)
}

// Count returns how many events named name were recorded.
func (p *Presenter) Count(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, e := range p.events {
		if e.Name == name {
			n++
		}
	}

	return n
}

// Environment is a mutable types.Environment.
type Environment struct {
	hidden atomic.Bool

	mu      sync.Mutex
	network types.NetworkInfo
}

var _ types.Environment = (*Environment)(nil)

// NewEnvironment creates a visible environment on a 4g connection.
func NewEnvironment() *Environment {
	return &Environment{network: types.NetworkInfo{EffectiveType: "4g"}}
}

// Hidden implements types.Environment.
func (e *Environment) Hidden() bool {
	return e.hidden.Load()
}

// SetHidden changes the visibility.
func (e *Environment) SetHidden(hidden bool) {
	e.hidden.Store(hidden)
}

// Network implements types.Environment.
func (e *Environment) Network() types.NetworkInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.network
}

// SetNetwork changes the reported connection.
func (e *Environment) SetNetwork(info types.NetworkInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.network = info
}
