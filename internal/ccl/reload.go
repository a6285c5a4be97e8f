package ccl

import (
	"context"
	"fmt"
	"time"

	"github.com/TimurManjosov/cclengine/internal/registry"
	"github.com/TimurManjosov/cclengine/internal/rules"
	"github.com/TimurManjosov/cclengine/internal/schema"
)

// Source supplies the configurations to compile on reload.
type Source interface {
	ListConfigurations(ctx context.Context) ([]rules.Configuration, error)
}

// DefaultKey is the registry fallback derived from the engine options,
// empty unless both country and version are set.
func (e *Engine) DefaultKey() string {
	if e.opts.Country == "" || e.opts.Version == "" {
		return ""
	}
	return rules.Configuration{Country: e.opts.Country, Version: e.opts.Version}.Key()
}

// Reload compiles the configurations of src and activates them when their
// content differs from the active registry. A failed reload leaves the
// active registry in place.
func (e *Engine) Reload(ctx context.Context, src Source) (changed bool, err error) {
	configs, err := src.ListConfigurations(ctx)
	if err != nil {
		return false, fmt.Errorf("list configurations: %w", err)
	}
	reg, err := NewRegistry(configs, e.DefaultKey())
	if err != nil {
		return false, err
	}
	if cur := e.holder.Load(); cur != nil && cur.ETag() == reg.ETag() {
		return false, nil
	}
	e.holder.Store(reg)
	e.opts.Logger.Info().
		Int("configurations", len(configs)).
		Str("etag", reg.ETag()).
		Msg("registry activated")
	return true, nil
}

// Load builds an engine over the configurations of src. It fails when
// src is empty or does not compile.
func Load(ctx context.Context, src Source, opts Options) (*Engine, error) {
	validator, err := schema.New()
	if err != nil {
		return nil, err
	}
	e := New(registry.NewHolder(nil), validator, opts)
	if _, err := e.Reload(ctx, src); err != nil {
		return nil, err
	}
	if len(e.Registry().Configurations()) == 0 {
		return nil, fmt.Errorf("%w: source is empty", registry.ErrNoConfiguration)
	}
	return e, nil
}

// Watch reloads from src every interval until ctx is done. report, when
// set, sees the outcome of every attempt.
func (e *Engine) Watch(ctx context.Context, src Source, interval time.Duration, report func(changed bool, err error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := e.Reload(ctx, src)
			if err != nil {
				e.opts.Logger.Warn().Err(err).Msg("reload failed, keeping active registry")
			}
			if report != nil {
				report(changed, err)
			}
		}
	}
}
