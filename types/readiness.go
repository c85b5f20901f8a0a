package types

import (
	"encoding/json"
	"time"
)

// Status is the prefetch status stored in a readiness record.
type Status string

const (
	// StatusIdle means no prefetch was attempted or the record is no longer trustworthy.
	StatusIdle Status = "idle"

	// StatusPrefetching means a pipeline run is in progress.
	StatusPrefetching Status = "prefetching"

	// StatusReady means every critical asset was cached and validated.
	StatusReady Status = "ready"

	// StatusFailed means the last run ended with missing critical assets.
	StatusFailed Status = "failed"
)

// Record is the persisted readiness claim for one variant version.
//
// The JSON form is shared by every orchestrator revision that may run against the
// same store, so decoding ignores unknown fields and accepts the legacy
// "timestamp" field in place of "updatedAt".
type Record struct {
	Status    Status
	Version   string
	UpdatedAt time.Time
	Reason    string
}

// RecordPatch carries the fields to merge into an existing record.
//
// Nil fields are left untouched. A patch whose Version differs from the stored
// record supersedes the record instead of merging into it.
type RecordPatch struct {
	Status  *Status
	Version *string
	Reason  *string
}

// PatchStatus is a convenience constructor for the common status+reason patch.
func PatchStatus(status Status, reason string) RecordPatch {
	return RecordPatch{Status: &status, Reason: &reason}
}

type recordWire struct {
	Status    Status `json:"status"`
	Version   string `json:"version"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Reason    string `json:"reason"`
}

// MarshalJSON encodes the record with UpdatedAt as unix milliseconds.
func (r Record) MarshalJSON() ([]byte, error) {
	wire := recordWire{
		Status:  r.Status,
		Version: r.Version,
		Reason:  r.Reason,
	}
	if !r.UpdatedAt.IsZero() {
		wire.UpdatedAt = r.UpdatedAt.UnixMilli()
	}

	return json.Marshal(wire)
}

// UnmarshalJSON decodes the record, tolerating unknown and legacy fields.
func (r *Record) UnmarshalJSON(data []byte) error {
	var wire recordWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	ms := wire.UpdatedAt
	if ms == 0 {
		ms = wire.Timestamp
	}

	r.Status = wire.Status
	if r.Status == "" {
		r.Status = StatusIdle
	}
	r.Version = wire.Version
	r.Reason = wire.Reason
	r.UpdatedAt = time.Time{}
	if ms > 0 {
		r.UpdatedAt = time.UnixMilli(ms)
	}

	return nil
}
