package hooks

import (
	"context"

	"github.com/arloliu/handover/types"
)

// NopHooks implements Hooks with no-op callbacks.
//
// This is the default implementation used when no custom hooks are provided,
// eliminating the need for nil checks throughout the codebase.
type NopHooks struct{}

// Compile-time assertions that NopHooks implements hook callbacks.
var (
	_ func(context.Context, types.State, types.State) error = (*NopHooks)(nil).OnStateChanged
	_ func(context.Context, types.Outcome) error            = (*NopHooks)(nil).OnPrefetchOutcome
	_ func(context.Context, string, bool) error             = (*NopHooks)(nil).OnSwitched
	_ func(context.Context, error) error                    = (*NopHooks)(nil).OnError
)

// NewNop creates a new no-op hooks implementation.
//
// Returns:
//   - types.Hooks: Hooks with no-op implementations
func NewNop() types.Hooks {
	h := &NopHooks{}
	return types.Hooks{
		OnStateChanged:    h.OnStateChanged,
		OnPrefetchOutcome: h.OnPrefetchOutcome,
		OnSwitched:        h.OnSwitched,
		OnError:           h.OnError,
	}
}

// Fill returns a copy of h with every nil callback replaced by a no-op.
func Fill(h *types.Hooks) types.Hooks {
	nop := NewNop()
	if h == nil {
		return nop
	}

	out := *h
	if out.OnStateChanged == nil {
		out.OnStateChanged = nop.OnStateChanged
	}
	if out.OnPrefetchOutcome == nil {
		out.OnPrefetchOutcome = nop.OnPrefetchOutcome
	}
	if out.OnSwitched == nil {
		out.OnSwitched = nop.OnSwitched
	}
	if out.OnError == nil {
		out.OnError = nop.OnError
	}

	return out
}

// OnStateChanged is a no-op implementation.
func (h *NopHooks) OnStateChanged(ctx context.Context, from, to types.State) error {
	return nil
}

// OnPrefetchOutcome is a no-op implementation.
func (h *NopHooks) OnPrefetchOutcome(ctx context.Context, outcome types.Outcome) error {
	return nil
}

// OnSwitched is a no-op implementation.
func (h *NopHooks) OnSwitched(ctx context.Context, reason string, forced bool) error {
	return nil
}

// OnError is a no-op implementation.
func (h *NopHooks) OnError(ctx context.Context, err error) error {
	return nil
}
