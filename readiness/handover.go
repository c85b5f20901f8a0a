package readiness

import (
	"context"
	"encoding/json"

	"github.com/arloliu/handover/types"
)

// HandoverKey returns the key holding the last handover state for v.
func (s *Store) HandoverKey(v types.Variant) string {
	return s.namespace + ":handover:" + types.NormalizeBaseURL(v.BaseURL)
}

// SaveHandover persists the resume information sent to the full variant so a
// reload of the full variant can pick it up again.
func (s *Store) SaveHandover(ctx context.Context, v types.Variant, state types.HandoverState) {
	data, err := json.Marshal(state)
	if err != nil {
		s.logger.Error("encode handover state failed", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(ctx, s.HandoverKey(v), data)
}

// LoadHandover returns the persisted handover state for v, if any.
func (s *Store) LoadHandover(ctx context.Context, v types.Variant) (types.HandoverState, bool) {
	key := s.HandoverKey(v)

	data, err := s.active().Get(ctx, key)
	if err != nil {
		return types.HandoverState{}, false
	}

	var state types.HandoverState
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("ignoring malformed handover state", "key", key, "error", err)
		return types.HandoverState{}, false
	}

	return state, true
}
