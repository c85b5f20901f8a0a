package handover

import (
	"context"
	"errors"
)

// Boot loads the configuration at path, creates a Controller and starts it.
//
// Boot is the one place where a fatal failure is shown to the user: when the
// configuration cannot be loaded, the controller cannot be created, or the
// lite variant fails to launch, the presenter's fallback message is displayed
// and the error is returned. The configured FallbackMessage is used when the
// configuration was loaded, DefaultFallbackText otherwise.
//
// Parameters:
//   - ctx: Context for startup operations
//   - path: YAML or JSON configuration file
//   - bootstrapper: Launches the variants
//   - presenter: Renders the variants and the fallback message
//   - opts: Controller options
//
// Returns:
//   - *Controller: Started controller
//   - error: *ConfigLoadError for configuration failures, or the start error
//
// Example:
//
//	ctrl, err := handover.Boot(ctx, "handover.yaml", boot, presenter,
//	    handover.WithLogger(logger),
//	)
//	if err != nil {
//	    return err // fallback is already on screen
//	}
//	defer ctrl.Stop(context.Background())
func Boot(ctx context.Context, path string, bootstrapper Bootstrapper, presenter Presenter, opts ...Option) (*Controller, error) {
	if presenter == nil {
		return nil, ErrPresenterRequired
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		presenter.ShowFallback(ctx, DefaultFallbackText)
		return nil, err
	}

	ctrl, err := NewController(&cfg, bootstrapper, presenter, opts...)
	if err != nil {
		presenter.ShowFallback(ctx, cfg.FallbackMessage)
		if errors.Is(err, ErrInvalidConfig) {
			return nil, &ConfigLoadError{Path: path, Err: err}
		}

		return nil, err
	}

	if err := ctrl.Start(ctx); err != nil {
		presenter.ShowFallback(ctx, cfg.FallbackMessage)
		_ = ctrl.Stop(context.WithoutCancel(ctx))

		return nil, err
	}

	return ctrl, nil
}
