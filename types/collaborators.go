package types

import (
	"context"
	"time"
)

// Instance is a running variant created by a Bootstrapper.
type Instance interface {
	// Terminate asks the instance to shut down gracefully.
	//
	// Called on the lite instance once the full variant is visible. Errors are
	// logged and otherwise ignored since the instance is discarded anyway.
	Terminate(ctx context.Context) error
}

// Lifecycle receives the two callbacks a bootstrapped variant reports.
//
// The controller does not care how an instance is constructed, only that
// OnProgress and OnReady are eventually called.
type Lifecycle interface {
	// OnProgress reports load progress as a fraction in [0, 1].
	OnProgress(fraction float64)

	// OnReady reports that the instance is running.
	OnReady(instance Instance)
}

// Bootstrapper creates or attaches running variant instances.
//
// Launch may block until the instance is ready or return immediately and call
// the lifecycle callbacks later from another goroutine. A returned error means
// the variant could not be started and OnReady will not be called.
type Bootstrapper interface {
	Launch(ctx context.Context, variant Variant, lifecycle Lifecycle) error
}

// HandoverState is sent to the full variant so it can resume where the lite
// variant left off.
type HandoverState struct {
	Reason         string `json:"reason"`
	ResumeLevel    int    `json:"resumeLevel"`
	KnownLiteLevel int    `json:"knownLiteLevel"`
}

// Presenter renders what the user sees during handover.
//
// Implementations must be safe for concurrent use; the controller calls them
// from timer goroutines.
type Presenter interface {
	// Activate makes the given variant the visible one.
	Activate(ctx context.Context, kind VariantKind) error

	// ShowMask displays the transition mask over both variants.
	ShowMask(ctx context.Context)

	// HideMask removes the transition mask.
	HideMask(ctx context.Context)

	// ShowFallback displays a static error message. Used only for fatal boot failures.
	ShowFallback(ctx context.Context, message string)

	// SendHandoverState forwards resume information to the full variant.
	SendHandoverState(ctx context.Context, state HandoverState)
}

// NetworkInfo describes the host's connection as reported by the environment.
type NetworkInfo struct {
	// SaveData is true when the user asked for reduced data usage.
	SaveData bool

	// EffectiveType is the connection class, e.g. "4g", "3g", "2g", "slow-2g".
	EffectiveType string
}

// Environment reports host conditions the trigger engine reacts to.
type Environment interface {
	// Hidden reports whether the application is currently not visible to the user.
	Hidden() bool

	// Network reports the current connection characteristics.
	Network() NetworkInfo
}

// OutcomeStatus is the final status of a prefetch pipeline run.
type OutcomeStatus string

const (
	// OutcomeReady means every critical asset is cached.
	OutcomeReady OutcomeStatus = "ready"

	// OutcomeFailed means the run could not prove readiness.
	OutcomeFailed OutcomeStatus = "failed"
)

// Outcome is the result of a prefetch pipeline run.
type Outcome struct {
	Status  OutcomeStatus
	Trigger string
	Reason  string

	// Missing lists critical URLs absent from the cache after the run.
	Missing []string

	// Fetched, Skipped and Failed count per-asset results of the run.
	Fetched int
	Skipped int
	Failed  int

	// Cached is true when the run short-circuited on a valid ready record.
	Cached bool

	Duration time.Duration
}

// Ready reports whether the outcome is OutcomeReady.
func (o Outcome) Ready() bool {
	return o.Status == OutcomeReady
}
