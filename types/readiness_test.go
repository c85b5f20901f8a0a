package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordJSON(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		rec := Record{
			Status:    StatusFailed,
			Version:   "2024.06.1",
			UpdatedAt: time.UnixMilli(1717171717171),
			Reason:    "critical assets missing (1): https://cdn.example.com/Build/a.wasm.br",
		}

		data, err := json.Marshal(rec)
		require.NoError(t, err)
		require.JSONEq(t, `{
			"status": "failed",
			"version": "2024.06.1",
			"updatedAt": 1717171717171,
			"reason": "critical assets missing (1): https://cdn.example.com/Build/a.wasm.br"
		}`, string(data))

		var got Record
		require.NoError(t, json.Unmarshal(data, &got))
		require.True(t, rec.UpdatedAt.Equal(got.UpdatedAt))
		got.UpdatedAt = rec.UpdatedAt
		require.Equal(t, rec, got)
	})

	t.Run("legacy timestamp and unknown fields", func(t *testing.T) {
		var got Record
		err := json.Unmarshal([]byte(`{"status":"ready","version":"v1","timestamp":1000,"reason":"","extra":{"a":1}}`), &got)
		require.NoError(t, err)
		require.Equal(t, StatusReady, got.Status)
		require.Equal(t, int64(1000), got.UpdatedAt.UnixMilli())
	})

	t.Run("missing status is idle", func(t *testing.T) {
		var got Record
		require.NoError(t, json.Unmarshal([]byte(`{"version":"v1"}`), &got))
		require.Equal(t, StatusIdle, got.Status)
		require.True(t, got.UpdatedAt.IsZero())
	})
}

func TestPatchStatus(t *testing.T) {
	p := PatchStatus(StatusPrefetching, "level")
	require.NotNil(t, p.Status)
	require.NotNil(t, p.Reason)
	require.Nil(t, p.Version)
	require.Equal(t, StatusPrefetching, *p.Status)
	require.Equal(t, "level", *p.Reason)
}

func TestVariantResolve(t *testing.T) {
	v := Variant{Kind: VariantFull, BaseURL: "https://cdn.example.com/full", ManifestPath: "build-manifest.json", EntryDocument: "index.html"}

	u, err := v.Resolve("/Build/app.loader.js")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/full/Build/app.loader.js", u)

	u, err = v.ManifestURL()
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/full/build-manifest.json", u)

	u, err = v.EntryURL()
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/full/index.html", u)

	require.Equal(t, "/", NormalizeBaseURL(""))
}
