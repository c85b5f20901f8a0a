package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"

	"github.com/arloliu/handover"
)

// urlBootstrapper "launches" a variant by downloading its entry document.
//
// The daemon has no renderer; a variant counts as running once its entry
// document is reachable. Full variant requests go through the cache transport
// when one is set.
type urlBootstrapper struct {
	client *http.Client
	full   http.RoundTripper
	logger handover.Logger

	mu         sync.Mutex
	lifecycles map[handover.VariantKind]handover.Lifecycle
}

func newURLBootstrapper(client *http.Client, logger handover.Logger) *urlBootstrapper {
	if client == nil {
		client = http.DefaultClient
	}

	return &urlBootstrapper{
		client:     client,
		logger:     logger,
		lifecycles: make(map[handover.VariantKind]handover.Lifecycle),
	}
}

func (b *urlBootstrapper) Launch(ctx context.Context, v handover.Variant, l handover.Lifecycle) error {
	entry, err := v.EntryURL()
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.lifecycles[v.Kind] = l
	b.mu.Unlock()

	client := b.client
	if v.Kind == handover.VariantFull && b.full != nil {
		client = &http.Client{Transport: b.full, Timeout: b.client.Timeout}
	}

	go func() {
		req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodGet, entry, nil)
		if err != nil {
			b.logger.Error("invalid entry request", "variant", string(v.Kind), "error", err)
			return
		}

		resp, err := client.Do(req)
		if err != nil {
			b.logger.Error("variant entry unreachable", "variant", string(v.Kind), "url", entry, "error", err)
			return
		}
		defer resp.Body.Close()

		l.OnProgress(0.5)
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			b.logger.Warn("entry download interrupted", "variant", string(v.Kind), "error", err)
			return
		}
		if resp.StatusCode >= http.StatusBadRequest {
			b.logger.Error("variant entry failed", "variant", string(v.Kind), "status", resp.StatusCode)
			return
		}

		l.OnReady(&instance{kind: v.Kind, logger: b.logger})
	}()

	return nil
}

// Progress forwards a progress report for kind to its lifecycle.
func (b *urlBootstrapper) Progress(kind handover.VariantKind, fraction float64) bool {
	b.mu.Lock()
	l, ok := b.lifecycles[kind]
	b.mu.Unlock()

	if ok {
		l.OnProgress(fraction)
	}

	return ok
}

type instance struct {
	kind   handover.VariantKind
	logger handover.Logger
}

func (i *instance) Terminate(context.Context) error {
	i.logger.Info("variant terminated", "variant", string(i.kind))
	return nil
}

// logPresenter records what a screen would show and forwards handover state
// over NATS when connected.
type logPresenter struct {
	logger  handover.Logger
	nc      *nats.Conn
	subject string

	active   atomic.Value // handover.VariantKind
	masked   atomic.Bool
	fallback atomic.Value // string
}

func newLogPresenter(logger handover.Logger, nc *nats.Conn, subject string) *logPresenter {
	p := &logPresenter{logger: logger, nc: nc, subject: subject}
	p.active.Store(handover.VariantKind(""))
	p.fallback.Store("")

	return p
}

func (p *logPresenter) Activate(_ context.Context, kind handover.VariantKind) error {
	p.active.Store(kind)
	p.logger.Info("variant activated", "variant", string(kind))

	return nil
}

func (p *logPresenter) ShowMask(context.Context) {
	p.masked.Store(true)
	p.logger.Info("mask shown")
}

func (p *logPresenter) HideMask(context.Context) {
	p.masked.Store(false)
	p.logger.Info("mask hidden")
}

func (p *logPresenter) ShowFallback(_ context.Context, message string) {
	p.fallback.Store(message)
	p.logger.Error("fallback shown", "message", message)
}

func (p *logPresenter) SendHandoverState(_ context.Context, state handover.HandoverState) {
	p.logger.Info("handover state", "reason", state.Reason, "resume_level", state.ResumeLevel)
	if p.nc == nil {
		return
	}

	data, err := json.Marshal(state)
	if err != nil {
		p.logger.Error("failed to encode handover state", "error", err)
		return
	}
	if err := p.nc.Publish(p.subject+".state", data); err != nil {
		p.logger.Warn("failed to publish handover state", "error", err)
	}
}

func (p *logPresenter) view() presenterView {
	return presenterView{
		Active:   string(p.active.Load().(handover.VariantKind)),
		Masked:   p.masked.Load(),
		Fallback: p.fallback.Load().(string),
	}
}

type presenterView struct {
	Active   string `json:"active"`
	Masked   bool   `json:"masked"`
	Fallback string `json:"fallback,omitempty"`
}

// hostEnvironment is set through the daemon's hook endpoints.
type hostEnvironment struct {
	hidden  atomic.Bool
	network atomic.Value // handover.NetworkInfo
}

func newHostEnvironment() *hostEnvironment {
	e := &hostEnvironment{}
	e.network.Store(handover.NetworkInfo{EffectiveType: "4g"})

	return e
}

func (e *hostEnvironment) Hidden() bool {
	return e.hidden.Load()
}

func (e *hostEnvironment) Network() handover.NetworkInfo {
	return e.network.Load().(handover.NetworkInfo)
}

func (e *hostEnvironment) String() string {
	n := e.Network()
	return fmt.Sprintf("hidden=%v network=%s saveData=%v", e.Hidden(), n.EffectiveType, n.SaveData)
}
