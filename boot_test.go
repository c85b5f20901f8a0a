package handover

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	handovertest "github.com/arloliu/handover/testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "handover.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestBoot(t *testing.T) {
	t.Run("starts the controller", func(t *testing.T) {
		srv := handovertest.NewAssetServer(t, handovertest.DefaultBuild())
		path := writeConfig(t, fmt.Sprintf(`
lite:
  url: https://cdn.example.com/lite/
full:
  url: %s
  version: v1
trigger:
  delay: 1m
`, srv.URL()))

		boot := handovertest.NewBootstrapper()
		presenter := handovertest.NewPresenter()
		ctrl, err := Boot(t.Context(), path, boot, presenter,
			WithHTTPClient(srv.Client()),
			WithLogger(handovertest.NewTestLogger(t)))
		require.NoError(t, err)
		t.Cleanup(func() { _ = ctrl.Stop(context.Background()) })

		require.NoError(t, <-ctrl.WaitState(StateLiteRunning, time.Second))
		require.Empty(t, presenter.Fallback())
	})

	t.Run("missing config shows default fallback", func(t *testing.T) {
		presenter := handovertest.NewPresenter()

		_, err := Boot(t.Context(), filepath.Join(t.TempDir(), "missing.yaml"),
			handovertest.NewBootstrapper(), presenter)

		var loadErr *ConfigLoadError
		require.ErrorAs(t, err, &loadErr)
		require.Equal(t, DefaultFallbackText, presenter.Fallback())
	})

	t.Run("invalid config shows default fallback", func(t *testing.T) {
		presenter := handovertest.NewPresenter()
		path := writeConfig(t, "full:\n  url: https://cdn.example.com/full/\n")

		_, err := Boot(t.Context(), path, handovertest.NewBootstrapper(), presenter)
		require.ErrorIs(t, err, ErrInvalidConfig)
		require.Equal(t, DefaultFallbackText, presenter.Fallback())
	})

	t.Run("launch failure shows configured fallback", func(t *testing.T) {
		path := writeConfig(t, `
lite:
  url: https://cdn.example.com/lite/
full:
  url: https://cdn.example.com/full/
  version: v1
fallbackMessage: "Something went wrong."
`)

		boot := handovertest.NewBootstrapper().FailLaunch(VariantLite, errors.New("no canvas"))
		presenter := handovertest.NewPresenter()

		_, err := Boot(t.Context(), path, boot, presenter)
		require.Error(t, err)
		require.Equal(t, "Something went wrong.", presenter.Fallback())
	})

	t.Run("presenter required", func(t *testing.T) {
		_, err := Boot(t.Context(), "handover.yaml", handovertest.NewBootstrapper(), nil)
		require.ErrorIs(t, err, ErrPresenterRequired)
	})
}
