// Package config holds the typed configuration for every subsystem.
// Values load from SECURE_MEMORY_-prefixed environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Environment selects a deployment profile.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
	EnvTesting     Environment = "testing"
)

// StorageConfig configures the storage backend.
type StorageConfig struct {
	// Backend selects the implementation: sqlite, volatile or vector.
	Backend string `envconfig:"STORAGE_BACKEND" default:"sqlite"`

	// Path is the database file (sqlite) or directory (vector).
	Path string `envconfig:"STORAGE_PATH" default:""`

	// MaxEntriesPerUser caps the volatile backend before eviction.
	MaxEntriesPerUser int `envconfig:"STORAGE_MAX_ENTRIES_PER_USER" default:"1000"`

	// OperationTimeout bounds every storage call.
	OperationTimeout time.Duration `envconfig:"STORAGE_TIMEOUT" default:"10s"`

	// EmbedProvider selects the vector-backend embedder: local, ollama,
	// openai, or none to disable embeddings.
	EmbedProvider string `envconfig:"EMBED_PROVIDER" default:"local"`
	EmbedModel    string `envconfig:"EMBED_MODEL" default:""`
}

// SecurityConfig configures validation and risk gating.
type SecurityConfig struct {
	// RiskThreshold is the composite risk score above which an operation
	// is rejected even when content and access checks individually pass.
	RiskThreshold float64 `envconfig:"RISK_THRESHOLD" default:"0.7"`

	// DeepValidation enables forwarding content to a pluggable deep
	// validator when one is registered.
	DeepValidation bool `envconfig:"DEEP_VALIDATION" default:"true"`

	// ValidatorTimeout bounds deep-validator calls.
	ValidatorTimeout time.Duration `envconfig:"VALIDATOR_TIMEOUT" default:"5s"`
}

// LimitsConfig holds content size ceilings per memory type, in bytes.
type LimitsConfig struct {
	MaxSessionSize    int `envconfig:"MAX_SESSION_SIZE" default:"65536"`
	MaxWorkingSize    int `envconfig:"MAX_WORKING_SIZE" default:"131072"`
	MaxPreferenceSize int `envconfig:"MAX_PREFERENCE_SIZE" default:"8192"`
	MaxLongTermSize   int `envconfig:"MAX_LONG_TERM_SIZE" default:"262144"`
	MaxPatternSize    int `envconfig:"MAX_PATTERN_SIZE" default:"32768"`
}

// EncryptionConfig configures key handling.
type EncryptionConfig struct {
	// MasterKey is the base64-encoded process master key. When empty the
	// manager falls back to KeyPath, generating and persisting a fresh key
	// if the file does not exist.
	MasterKey string `envconfig:"MASTER_KEY" default:""`

	// KeyPath is the master-key file, created with owner-only permissions.
	KeyPath string `envconfig:"KEY_PATH" default:""`

	// KeyStoreDir holds asymmetric private keys, separate from the data
	// they protect and restricted to the owner.
	KeyStoreDir string `envconfig:"KEY_STORE_DIR" default:""`

	// KDFIterations is the PBKDF2 iteration count for per-user keys.
	KDFIterations int `envconfig:"KDF_ITERATIONS" default:"200000"`

	// KeyCacheTTL bounds how long a derived per-user key stays cached.
	KeyCacheTTL time.Duration `envconfig:"KEY_CACHE_TTL" default:"30m"`

	// RotationInterval is how old key material may grow before
	// ShouldRotateKey reports true.
	RotationInterval time.Duration `envconfig:"ROTATION_INTERVAL" default:"2160h"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	// Dir receives daily-rotated JSONL audit files.
	Dir string `envconfig:"AUDIT_DIR" default:""`

	// RingSize bounds the in-memory event buffer.
	RingSize int `envconfig:"AUDIT_RING_SIZE" default:"10000"`

	// HistoryPerUser bounds retained access attempts per user.
	HistoryPerUser int `envconfig:"AUDIT_HISTORY_PER_USER" default:"200"`
}

// Config is the root configuration.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	Storage    StorageConfig
	Security   SecurityConfig
	Limits     LimitsConfig
	Encryption EncryptionConfig
	Audit      AuditConfig
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("SECURE_MEMORY", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Profile returns a validated configuration for a named deployment profile.
func Profile(env Environment) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	cfg.Environment = env
	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolveDefaults validates the configuration and derives values that
// depend on the environment profile.
func (c *Config) ResolveDefaults() error {
	switch c.Environment {
	case EnvDevelopment, EnvProduction:
	case EnvTesting:
		// Tests default to the volatile backend unless explicitly overridden.
		if c.Storage.Backend == "" || c.Storage.Backend == "sqlite" && c.Storage.Path == "" {
			c.Storage.Backend = "volatile"
		}
	default:
		return fmt.Errorf("unsupported environment: %s", c.Environment)
	}

	switch c.Storage.Backend {
	case "sqlite", "volatile", "vector":
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}

	if c.Security.RiskThreshold <= 0 || c.Security.RiskThreshold > 1 {
		return fmt.Errorf("risk threshold must be in (0,1], got %v", c.Security.RiskThreshold)
	}
	if c.Encryption.KDFIterations < 10000 {
		return fmt.Errorf("kdf iterations too low: %d", c.Encryption.KDFIterations)
	}
	if c.Audit.RingSize <= 0 {
		return fmt.Errorf("audit ring size must be positive, got %d", c.Audit.RingSize)
	}
	return nil
}

// MaxContentSize returns the content ceiling for the given memory type.
func (l LimitsConfig) MaxContentSize(t string) int {
	switch t {
	case "session":
		return l.MaxSessionSize
	case "working":
		return l.MaxWorkingSize
	case "preference":
		return l.MaxPreferenceSize
	case "long_term":
		return l.MaxLongTermSize
	case "pattern":
		return l.MaxPatternSize
	}
	return l.MaxWorkingSize
}
