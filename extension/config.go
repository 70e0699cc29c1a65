package extension

import (
	"time"

	"github.com/xraph/bastion"
)

// Config holds the Bastion extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.bastion" or "bastion" keys).
type Config struct {
	// DisableRoutes prevents HTTP route registration.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableBootstrap skips seeding the default catalog on start.
	DisableBootstrap bool `json:"disable_bootstrap" mapstructure:"disable_bootstrap" yaml:"disable_bootstrap"`

	// DisableAdminGuard serves administrative routes without the
	// system.manage check.
	DisableAdminGuard bool `json:"disable_admin_guard" mapstructure:"disable_admin_guard" yaml:"disable_admin_guard"`

	// MaxRoleDepth bounds role hierarchy chains.
	MaxRoleDepth int `json:"max_role_depth" mapstructure:"max_role_depth" yaml:"max_role_depth"`

	// CacheTTL is the lifetime of cached decisions.
	CacheTTL time.Duration `json:"cache_ttl" mapstructure:"cache_ttl" yaml:"cache_ttl"`

	// AuditAsync writes audit entries from a background queue.
	AuditAsync bool `json:"audit_async" mapstructure:"audit_async" yaml:"audit_async"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRoleDepth: 10,
		CacheTTL:     5 * time.Minute,
	}
}

// engineConfig maps the extension configuration onto the engine's.
func (c Config) engineConfig() bastion.Config {
	cfg := bastion.DefaultConfig()
	if c.MaxRoleDepth > 0 {
		cfg.MaxRoleDepth = c.MaxRoleDepth
	}
	if c.CacheTTL > 0 {
		cfg.CacheTTL = c.CacheTTL
	}
	cfg.AuditAsync = c.AuditAsync
	return cfg
}
