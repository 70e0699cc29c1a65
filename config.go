package bastion

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds configuration for the Bastion engine.
type Config struct {
	// MaxRoleDepth bounds the ancestor walk and the depth of new role
	// chains. Defaults to 10.
	MaxRoleDepth int `json:"max_role_depth,omitempty" envconfig:"MAX_ROLE_DEPTH" default:"10"`

	// CacheTTL is the lifetime of cached decisions for caches built from
	// this config, such as the extension's default cache. Defaults to 5
	// minutes.
	CacheTTL time.Duration `json:"cache_ttl,omitempty" envconfig:"CACHE_TTL" default:"300s"`

	// StoreTimeout bounds each persistence call made while resolving a
	// decision. A timed-out resolution fails closed.
	StoreTimeout time.Duration `json:"store_timeout,omitempty" envconfig:"STORE_TIMEOUT" default:"2s"`

	// AuditTimeout bounds each audit write.
	AuditTimeout time.Duration `json:"audit_timeout,omitempty" envconfig:"AUDIT_TIMEOUT" default:"2s"`

	// AuditAsync queues audit entries for a background writer instead of
	// writing them inline.
	AuditAsync bool `json:"audit_async,omitempty" envconfig:"AUDIT_ASYNC" default:"false"`

	// AuditBuffer is the queue size used when AuditAsync is set.
	AuditBuffer int `json:"audit_buffer,omitempty" envconfig:"AUDIT_BUFFER" default:"1024"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRoleDepth: 10,
		CacheTTL:     5 * time.Minute,
		StoreTimeout: 2 * time.Second,
		AuditTimeout: 2 * time.Second,
		AuditBuffer:  1024,
	}
}

// ConfigFromEnv loads a Config from environment variables with the given
// prefix, e.g. BASTION_CACHE_TTL for prefix "bastion".
func ConfigFromEnv(prefix string) (Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("bastion: load config: %w", err)
	}
	return cfg.withDefaults(), nil
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRoleDepth <= 0 {
		c.MaxRoleDepth = d.MaxRoleDepth
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = d.StoreTimeout
	}
	if c.AuditTimeout <= 0 {
		c.AuditTimeout = d.AuditTimeout
	}
	if c.AuditBuffer <= 0 {
		c.AuditBuffer = d.AuditBuffer
	}
	return c
}
