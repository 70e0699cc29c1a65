package bastion

import (
	"log/slog"

	"github.com/xraph/bastion/plugin"
	"github.com/xraph/bastion/store"
)

// Option is a functional option for the Engine.
type Option func(*Engine)

// WithStore sets the composite store.
func WithStore(s store.Store) Option { return func(e *Engine) { e.store = s } }

// WithCache sets the decision cache. Without one every check resolves
// against the store.
func WithCache(c Cache) Option { return func(e *Engine) { e.cache = c } }

// WithClock sets the time source used for expiry.
func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

// WithEvaluator replaces the scope and condition evaluator.
func WithEvaluator(ev Evaluator) Option { return func(e *Engine) { e.evaluator = ev } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithConfig sets the engine configuration. Zero fields take defaults.
func WithConfig(c Config) Option { return func(e *Engine) { e.config = c } }

// WithPlugin registers a plugin with the engine.
func WithPlugin(x plugin.Plugin) Option {
	return func(e *Engine) {
		if e.plugins == nil {
			e.plugins = plugin.NewRegistry(e.logger)
		}
		e.plugins.Register(x)
	}
}
