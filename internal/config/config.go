package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete adtflow configuration
type Config struct {
	Connection ConnectionConfig `mapstructure:"connection"`
	State      StateConfig      `mapstructure:"state"`
	Session    SessionConfig    `mapstructure:"session"`
	Lifecycle  LifecycleConfig  `mapstructure:"lifecycle"`
	Cleanup    CleanupConfig    `mapstructure:"cleanup"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ConnectionConfig describes how to reach the ADT backend
type ConnectionConfig struct {
	// BaseURL is the root of the ADT HTTP API, e.g. "https://host:44300"
	BaseURL string `mapstructure:"base_url"`
	// Client is the backend client number, e.g. "001"
	Client string `mapstructure:"client"`
	// Language is the logon language, e.g. "EN"
	Language string `mapstructure:"language"`
	// User is the logon user for basic authentication
	User string `mapstructure:"user"`
	// PasswordEnv names the environment variable holding the password.
	// The password itself never appears in config files.
	PasswordEnv string `mapstructure:"password_env"`
	// TimeoutSeconds is the per-request timeout
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// StateConfig controls where persistent run state lives
type StateConfig struct {
	// Dir is the root state directory. Session files, the lock registry,
	// and logs all live underneath it.
	Dir string `mapstructure:"dir"`
	// SessionsDir overrides the session file directory (default: {dir}/sessions)
	SessionsDir string `mapstructure:"sessions_dir"`
	// LockFile overrides the lock registry path (default: {dir}/locks.json)
	LockFile string `mapstructure:"lock_file"`
}

// SessionConfig controls session identity
type SessionConfig struct {
	// IDFormat is "auto" to derive "<label>_<unixMillis>" ids, or a literal
	// id to reuse across runs.
	IDFormat string `mapstructure:"id_format"`
	// Label is the prefix used by auto-derived session ids
	Label string `mapstructure:"label"`
}

// LifecycleConfig controls orchestrator pacing and retries
type LifecycleConfig struct {
	// DelaysMs maps operation names (create, update, lock, unlock, activate,
	// delete, check) to the delay applied after that operation, in
	// milliseconds. The "default" key is the fallback for unlisted
	// operations.
	DelaysMs map[string]int `mapstructure:"delays_ms"`
	// CheckMaxAttempts bounds the check-after-activate retry loop
	CheckMaxAttempts int `mapstructure:"check_max_attempts"`
	// CheckIntervalMs is the spacing between check attempts
	CheckIntervalMs int `mapstructure:"check_interval_ms"`
	// RetryBudgetSeconds caps the total time spent in retry waits across
	// one lifecycle run, so per-step budgets cannot compound unbounded
	RetryBudgetSeconds int `mapstructure:"retry_budget_seconds"`
}

// CleanupConfig controls end-of-run and compensation behavior
type CleanupConfig struct {
	// AfterRun deletes the object at the end of a successful run
	AfterRun bool `mapstructure:"after_run"`
	// Skip disables cleanup entirely, including compensating deletes.
	// Compensating unlocks still run; an orphaned remote lock is worse
	// than an orphaned object.
	Skip bool `mapstructure:"skip"`
	// KeepSession leaves the session file behind for manual inspection
	KeepSession bool `mapstructure:"keep_session"`
}

// LoggingConfig controls structured log output
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR
	Level string `mapstructure:"level"`
	// MaxSizeMB is the log rotation threshold (0 disables rotation)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated logs to keep
	MaxBackups int `mapstructure:"max_backups"`
}

// Default returns a Config populated with default values
func Default() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Client:         "001",
			Language:       "EN",
			PasswordEnv:    "ADTFLOW_PASSWORD",
			TimeoutSeconds: 45,
		},
		State: StateConfig{
			Dir: ".adtflow",
		},
		Session: SessionConfig{
			IDFormat: "auto",
			Label:    "run",
		},
		Lifecycle: LifecycleConfig{
			DelaysMs: map[string]int{
				"default":  2000,
				"create":   3000,
				"activate": 3000,
			},
			CheckMaxAttempts:   5,
			CheckIntervalMs:    1000,
			RetryBudgetSeconds: 60,
		},
		Cleanup: CleanupConfig{
			AfterRun: true,
		},
		Logging: LoggingConfig{
			Level:      "INFO",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Timeout returns the per-request timeout as a duration
func (c *ConnectionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Password resolves the logon password from the configured environment
// variable. Returns "" when unset.
func (c *ConnectionConfig) Password() string {
	if c.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(c.PasswordEnv)
}

// ResolveSessionsDir returns the effective session file directory
func (s *StateConfig) ResolveSessionsDir() string {
	if s.SessionsDir != "" {
		return s.SessionsDir
	}
	return filepath.Join(s.Dir, "sessions")
}

// ResolveLockFile returns the effective lock registry path
func (s *StateConfig) ResolveLockFile() string {
	if s.LockFile != "" {
		return s.LockFile
	}
	return filepath.Join(s.Dir, "locks.json")
}

// Delay returns the post-operation delay for the named operation, falling
// back to the "default" entry and then to zero.
func (l *LifecycleConfig) Delay(operation string) time.Duration {
	if ms, ok := l.DelaysMs[operation]; ok {
		return time.Duration(ms) * time.Millisecond
	}
	if ms, ok := l.DelaysMs["default"]; ok {
		return time.Duration(ms) * time.Millisecond
	}
	return 0
}

// CheckInterval returns the spacing between check-after-activate attempts
func (l *LifecycleConfig) CheckInterval() time.Duration {
	return time.Duration(l.CheckIntervalMs) * time.Millisecond
}

// RetryBudget returns the total retry wait budget per run
func (l *LifecycleConfig) RetryBudget() time.Duration {
	return time.Duration(l.RetryBudgetSeconds) * time.Second
}

// SetDefaults registers all default values with viper. Called before
// reading the config file so defaults apply even without one.
func SetDefaults() {
	defaults := Default()

	// Connection defaults
	viper.SetDefault("connection.base_url", defaults.Connection.BaseURL)
	viper.SetDefault("connection.client", defaults.Connection.Client)
	viper.SetDefault("connection.language", defaults.Connection.Language)
	viper.SetDefault("connection.user", defaults.Connection.User)
	viper.SetDefault("connection.password_env", defaults.Connection.PasswordEnv)
	viper.SetDefault("connection.timeout_seconds", defaults.Connection.TimeoutSeconds)

	// State defaults
	viper.SetDefault("state.dir", defaults.State.Dir)
	viper.SetDefault("state.sessions_dir", defaults.State.SessionsDir)
	viper.SetDefault("state.lock_file", defaults.State.LockFile)

	// Session defaults
	viper.SetDefault("session.id_format", defaults.Session.IDFormat)
	viper.SetDefault("session.label", defaults.Session.Label)

	// Lifecycle defaults
	viper.SetDefault("lifecycle.delays_ms", defaults.Lifecycle.DelaysMs)
	viper.SetDefault("lifecycle.check_max_attempts", defaults.Lifecycle.CheckMaxAttempts)
	viper.SetDefault("lifecycle.check_interval_ms", defaults.Lifecycle.CheckIntervalMs)
	viper.SetDefault("lifecycle.retry_budget_seconds", defaults.Lifecycle.RetryBudgetSeconds)

	// Cleanup defaults
	viper.SetDefault("cleanup.after_run", defaults.Cleanup.AfterRun)
	viper.SetDefault("cleanup.skip", defaults.Cleanup.Skip)
	viper.SetDefault("cleanup.keep_session", defaults.Cleanup.KeepSession)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
}

// Load unmarshals the current viper state into a validated Config
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "adtflow")
	}
	// Fall back to ~/.config/adtflow
	home, err := os.UserHomeDir()
	if err != nil {
		return ".adtflow"
	}
	return filepath.Join(home, ".config", "adtflow")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
