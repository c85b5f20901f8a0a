package handover

import (
	"context"
	"fmt"
	"time"

	"github.com/arloliu/handover/types"
)

// Switch modes reported to RecordSwitch.
const (
	switchModeInstant = "instant"
	switchModeReady   = "ready"
	switchModeForced  = "forced"
)

// RequestSwitch asks the controller to make the full variant visible.
//
// The call never blocks on the prefetch. When the full variant is ready and
// either already running or its critical assets validate, the switch completes
// before RequestSwitch returns.
// Otherwise the mask is shown, the prefetch is started if needed, and the switch
// completes as soon as readiness is proven or when the fallback timeout (plus
// one grace extension) expires, following Switch.ForcedPolicy.
//
// Repeated requests while a switch is pending or done are no-ops.
//
// Parameters:
//   - ctx: Context for presenter calls made during the request
//   - reason: Free-form reason, e.g. "complete", "target-level" or "game-over"
//
// Returns:
//   - error: ErrNotStarted when the controller or the lite variant is not running
func (c *Controller) RequestSwitch(ctx context.Context, reason string) error {
	if _, ok := c.running(); !ok {
		return ErrNotStarted
	}

	switch c.State() {
	case StateInit:
		return fmt.Errorf("%w: lite variant not running", ErrNotStarted)
	case StateShutdown:
		return ErrNotStarted
	case StateFullRunning:
		return nil
	default:
	}

	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	if c.switchRequested || c.switched {
		c.logger.Debug("switch already requested", "reason", reason, "pending", c.switchReason)
		return nil
	}

	from := c.State()
	if !c.advance(StateSwitching, StateLiteRunning, StateFullPreloading, StateFullReady) {
		return fmt.Errorf("%w: cannot switch from state %s", ErrNotStarted, from)
	}

	c.switchRequested = true
	c.switchReason = reason
	c.switchStartedAt = time.Now()
	c.switchGen++
	c.metrics.RecordTrigger("switch")
	c.logger.Info("switch requested", "reason", reason, "from", from.String())

	c.presenter.SendHandoverState(ctx, c.handoverState("switch:"+reason))

	c.mu.Lock()
	ready, warm := c.preload == types.StatusReady, c.fullWarm
	c.mu.Unlock()

	if ready {
		// A warm full instance needs no cache to start.
		if warm || c.pipeline.Validate(ctx) {
			c.completeSwitchLocked(ctx, reason, switchModeInstant)
			return nil
		}
		c.invalidateReadiness(ctx, "validation failed")
	}

	c.presenter.ShowMask(ctx)
	c.masked = true

	timeout := c.cfg.Switch.FallbackTimeout
	c.switchDeadline = c.switchStartedAt.Add(timeout)
	c.armSwitchTimerLocked(timeout)

	c.startPreload("switch:" + reason)

	return nil
}

// SwitchPending reports whether a switch was requested and has not completed.
func (c *Controller) SwitchPending() bool {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	return c.switchRequested && !c.switched
}

func (c *Controller) armSwitchTimerLocked(d time.Duration) {
	gen := c.switchGen
	c.switchTimer = time.AfterFunc(d, func() {
		c.onSwitchTimeout(gen)
	})
}

// onSwitchTimeout runs when the switch wait of request gen expires.
func (c *Controller) onSwitchTimeout(gen uint64) {
	ctx, ok := c.running()
	if !ok {
		return
	}

	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	if gen != c.switchGen || !c.switchRequested || c.switched {
		return
	}
	c.switchTimer = nil

	if grace := c.cfg.Switch.GraceExtension; grace > 0 && !c.graceUsed {
		c.graceUsed = true
		c.switchDeadline = time.Now().Add(grace)
		c.armSwitchTimerLocked(grace)
		c.logger.Info("switch wait extended", "reason", c.switchReason, "grace", grace)

		return
	}

	c.reportError(fmt.Errorf("%w: waited %s for %q", ErrSwitchTimeout,
		time.Since(c.switchStartedAt).Round(time.Millisecond), c.switchReason))

	if c.cfg.Switch.ForcedPolicy == ForcedSwitchAbort {
		c.abortSwitchLocked(ctx)
		return
	}

	c.completeSwitchLocked(ctx, c.switchReason, switchModeForced)
}

// completeSwitchLocked makes the full variant visible. switchMu must be held.
func (c *Controller) completeSwitchLocked(ctx context.Context, reason string, mode string) {
	c.switched = true
	if c.switchTimer != nil {
		c.switchTimer.Stop()
		c.switchTimer = nil
	}
	waited := time.Since(c.switchStartedAt)

	c.warmFull()
	if err := c.presenter.Activate(ctx, VariantFull); err != nil {
		c.reportError(fmt.Errorf("failed to activate full variant: %w", err))
	}

	c.transitionState(StateSwitching, StateFullRunning)
	c.metrics.RecordSwitch(mode, waited.Seconds())
	c.logger.Info("switched to full variant", "reason", reason, "mode", mode, "waited", waited)

	if c.masked {
		c.masked = false
		c.hideMaskAfter(c.cfg.Switch.MinMaskDuration - waited)
	}

	c.spawn(func(context.Context) {
		c.teardownLite()
	})

	forced := mode == switchModeForced
	go func() {
		if err := c.hooks.OnSwitched(ctx, reason, forced); err != nil {
			c.logError("switched hook error", "reason", reason, "error", err)
		}
	}()
}

// abortSwitchLocked keeps the lite variant and clears the request so a later
// one can start over. switchMu must be held.
func (c *Controller) abortSwitchLocked(ctx context.Context) {
	if c.switchTimer != nil {
		c.switchTimer.Stop()
		c.switchTimer = nil
	}

	reason := c.switchReason
	c.switchRequested = false
	c.switchReason = ""
	c.switchDeadline = time.Time{}
	c.graceUsed = false

	if c.masked {
		c.masked = false
		c.presenter.HideMask(ctx)
	}

	c.mu.Lock()
	preload := c.preload
	c.mu.Unlock()

	to := StateLiteRunning
	switch preload {
	case types.StatusPrefetching:
		to = StateFullPreloading
	case types.StatusReady:
		to = StateFullReady
	default:
	}
	c.transitionState(StateSwitching, to)

	c.logger.Warn("switch aborted, staying on lite variant", "reason", reason)
}

// hideMaskAfter hides the mask once d has elapsed, immediately if d <= 0.
func (c *Controller) hideMaskAfter(d time.Duration) {
	if d <= 0 {
		c.presenter.HideMask(context.Background())
		return
	}

	time.AfterFunc(d, func() {
		c.presenter.HideMask(context.Background())
	})
}
