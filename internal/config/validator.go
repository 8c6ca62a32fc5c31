package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "lifecycle.check_max_attempts")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"DEBUG", "INFO", "WARN", "ERROR"}
}

// delayOperations are the operation names the lifecycle delay table accepts,
// plus the "default" fallback key.
var delayOperations = []string{
	"default", "validate", "create", "lock", "update", "unlock",
	"activate", "check", "delete",
}

// Validate checks the Config for invalid values and returns all validation
// errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateConnection()...)
	errors = append(errors, c.validateState()...)
	errors = append(errors, c.validateSession()...)
	errors = append(errors, c.validateLifecycle()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateConnection validates the ConnectionConfig
func (c *Config) validateConnection() []ValidationError {
	var errors []ValidationError

	if c.Connection.BaseURL != "" &&
		!strings.HasPrefix(c.Connection.BaseURL, "http://") &&
		!strings.HasPrefix(c.Connection.BaseURL, "https://") {
		errors = append(errors, ValidationError{
			Field:   "connection.base_url",
			Value:   c.Connection.BaseURL,
			Message: "must start with http:// or https://",
		})
	}

	if c.Connection.TimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "connection.timeout_seconds",
			Value:   c.Connection.TimeoutSeconds,
			Message: "must be non-negative (0 disables the per-request timeout)",
		})
	}

	// Reasonable upper bound; activation of a large object can be slow but
	// anything beyond this is a configuration mistake.
	const maxTimeoutSeconds = 600
	if c.Connection.TimeoutSeconds > maxTimeoutSeconds {
		errors = append(errors, ValidationError{
			Field:   "connection.timeout_seconds",
			Value:   c.Connection.TimeoutSeconds,
			Message: fmt.Sprintf("exceeds maximum of %d seconds", maxTimeoutSeconds),
		})
	}

	return errors
}

// validateState validates the StateConfig
func (c *Config) validateState() []ValidationError {
	var errors []ValidationError

	if c.State.Dir == "" && c.State.SessionsDir == "" {
		errors = append(errors, ValidationError{
			Field:   "state.dir",
			Value:   c.State.Dir,
			Message: "cannot be empty unless state.sessions_dir is set explicitly",
		})
	}

	for field, path := range map[string]string{
		"state.dir":          c.State.Dir,
		"state.sessions_dir": c.State.SessionsDir,
		"state.lock_file":    c.State.LockFile,
	} {
		if strings.ContainsRune(path, '\x00') {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   path,
				Message: "path contains invalid null character",
			})
		}
	}

	return errors
}

// validateSession validates the SessionConfig
func (c *Config) validateSession() []ValidationError {
	var errors []ValidationError

	if c.Session.IDFormat == "" {
		errors = append(errors, ValidationError{
			Field:   "session.id_format",
			Value:   c.Session.IDFormat,
			Message: "must be \"auto\" or a literal session id",
		})
	}

	if c.Session.IDFormat == "auto" && c.Session.Label == "" {
		errors = append(errors, ValidationError{
			Field:   "session.label",
			Value:   c.Session.Label,
			Message: "cannot be empty when session.id_format is \"auto\"",
		})
	}

	return errors
}

// validateLifecycle validates the LifecycleConfig
func (c *Config) validateLifecycle() []ValidationError {
	var errors []ValidationError

	if c.Lifecycle.CheckMaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "lifecycle.check_max_attempts",
			Value:   c.Lifecycle.CheckMaxAttempts,
			Message: "must be at least 1",
		})
	}

	const maxCheckAttempts = 100
	if c.Lifecycle.CheckMaxAttempts > maxCheckAttempts {
		errors = append(errors, ValidationError{
			Field:   "lifecycle.check_max_attempts",
			Value:   c.Lifecycle.CheckMaxAttempts,
			Message: fmt.Sprintf("exceeds maximum of %d", maxCheckAttempts),
		})
	}

	if c.Lifecycle.CheckIntervalMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "lifecycle.check_interval_ms",
			Value:   c.Lifecycle.CheckIntervalMs,
			Message: "must be non-negative",
		})
	}

	if c.Lifecycle.RetryBudgetSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "lifecycle.retry_budget_seconds",
			Value:   c.Lifecycle.RetryBudgetSeconds,
			Message: "must be non-negative (0 disables the budget)",
		})
	}

	for op, ms := range c.Lifecycle.DelaysMs {
		field := fmt.Sprintf("lifecycle.delays_ms.%s", op)
		if !slices.Contains(delayOperations, op) {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   ms,
				Message: fmt.Sprintf("unknown operation; must be one of: %s", strings.Join(delayOperations, ", ")),
			})
		}
		if ms < 0 {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   ms,
				Message: "must be non-negative",
			})
		}
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToUpper(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative (0 disables rotation)",
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
