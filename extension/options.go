package extension

import (
	"log/slog"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/plugin"
	"github.com/xraph/bastion/store"
)

// ExtOption configures the Bastion Forge extension.
type ExtOption func(*Extension)

// WithStore sets the persistence backend.
func WithStore(s store.Store) ExtOption {
	return func(e *Extension) {
		e.bastionOpts = append(e.bastionOpts, bastion.WithStore(s))
	}
}

// WithCache sets the decision cache.
func WithCache(c bastion.Cache) ExtOption {
	return func(e *Extension) {
		e.bastionOpts = append(e.bastionOpts, bastion.WithCache(c))
	}
}

// WithConfig sets the extension configuration.
func WithConfig(cfg Config) ExtOption {
	return func(e *Extension) {
		e.config = cfg
	}
}

// WithCatalog seeds a custom catalog instead of the default one.
func WithCatalog(c *bastion.Catalog) ExtOption {
	return func(e *Extension) {
		e.catalog = c
	}
}

// WithEngineOptions adds engine-level options.
func WithEngineOptions(opts ...bastion.Option) ExtOption {
	return func(e *Extension) {
		e.bastionOpts = append(e.bastionOpts, opts...)
	}
}

// WithPlugin registers a lifecycle hook plugin.
func WithPlugin(x plugin.Plugin) ExtOption {
	return func(e *Extension) {
		e.plugins = append(e.plugins, x)
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ExtOption {
	return func(e *Extension) {
		e.logger = l
	}
}

// WithDisableRoutes disables the registration of HTTP routes.
func WithDisableRoutes() ExtOption {
	return func(e *Extension) {
		e.config.DisableRoutes = true
	}
}

// WithDisableMigrate disables auto-migration on start.
func WithDisableMigrate() ExtOption {
	return func(e *Extension) {
		e.config.DisableMigrate = true
	}
}

// WithDisableBootstrap disables seeding the catalog on start.
func WithDisableBootstrap() ExtOption {
	return func(e *Extension) {
		e.config.DisableBootstrap = true
	}
}
