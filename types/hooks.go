package types

import "context"

// Hooks defines callbacks for Controller lifecycle events.
//
// All hooks are optional and called asynchronously in background goroutines
// so they never block a transition. Hooks receive the controller's lifecycle
// context which is cancelled by Stop.
//
// Hook execution behavior:
//   - Hooks run concurrently and may not complete before Stop() returns
//   - Hook errors are logged but don't fail controller operations
//
// Example:
//
//	hooks := &handover.Hooks{
//	    OnSwitched: func(ctx context.Context, reason string, forced bool) error {
//	        log.Printf("switched to full (%s, forced=%v)", reason, forced)
//	        return nil
//	    },
//	}
type Hooks struct {
	// OnStateChanged is called when the controller state transitions.
	OnStateChanged func(ctx context.Context, from, to State) error

	// OnPrefetchOutcome is called after every prefetch pipeline run, retries included.
	OnPrefetchOutcome func(ctx context.Context, outcome Outcome) error

	// OnSwitched is called once the full variant is visible.
	// forced is true when the switch happened before readiness was proven.
	OnSwitched func(ctx context.Context, reason string, forced bool) error

	// OnError is called when a recoverable error occurs.
	OnError func(ctx context.Context, err error) error
}
