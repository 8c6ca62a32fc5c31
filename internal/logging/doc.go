// Package logging provides structured logging for adtflow runs.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// persistent attribute propagation. A lifecycle run writes every record
// with its session id, target object, and current step attached, so a
// crashed or failed run can be reconstructed from the log file alone.
//
// # Features
//
//   - JSON-formatted structured logging via slog
//   - Configurable log levels (DEBUG, INFO, WARN, ERROR)
//   - Attribute propagation (session id, object, lifecycle step)
//   - Log rotation with configurable size limits
//   - Log aggregation and filtering utilities
//   - Export to JSON, text, or CSV formats
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. The [Logger] type
// uses Go's slog internally which is designed for concurrent access. The
// [RotatingWriter] type uses a mutex to protect file operations during
// rotation. Child loggers created via With* methods share the underlying
// writer safely.
//
// # Basic Usage
//
// Create a logger for a state directory:
//
//	logger, err := logging.NewLogger("/var/lib/adtflow", "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Debug("request sent", "path", "/sap/bc/adt/discovery")
//	logger.Info("object created", "status", 201)
//	logger.Warn("check not yet green", "attempt", 2)
//	logger.Error("activation failed", "error", err.Error())
//
// # Attribute Propagation
//
// Create child loggers with persistent attributes:
//
//	runLogger := logger.WithSession("run_1700000000000")
//	objLogger := runLogger.WithObject("CLAS/OC", "zcl_demo")
//	stepLogger := objLogger.WithStep("activate")
//
//	// All records from stepLogger carry session_id, object, and step
//	stepLogger.Info("activation requested")
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"activation requested","session_id":"run_1700000000000","object":"CLAS/OC/zcl_demo","step":"activate"}
//
// # Log Rotation
//
// Logs accumulate across runs in one file; rotation keeps it bounded:
//
//	config := logging.RotationConfig{
//	    MaxSizeMB:  10, // Rotate when file exceeds 10MB
//	    MaxBackups: 3,  // Keep 3 backup files
//	}
//
// Rotated files are named adtflow.log.1, adtflow.log.2, etc., where .1 is
// the most recent backup.
//
// # Testing
//
// For testing, use [NopLogger] to discard all log output:
//
//	func TestSomething(t *testing.T) {
//	    logger := logging.NopLogger()
//	    // Use logger in tests without creating files
//	}
//
// # Log Aggregation and Filtering
//
// Read and analyze logs after a run:
//
//	entries, err := logging.AggregateLogs("/var/lib/adtflow")
//	if err != nil {
//	    return err
//	}
//
//	filter := logging.LogFilter{
//	    Level:     "WARN",                           // Minimum level
//	    SessionID: "run_1700000000000",              // Specific run
//	    Step:      "activate",                       // Specific step
//	    StartTime: time.Now().Add(-1 * time.Hour),   // Last hour
//	}
//	filtered := logging.FilterLogs(entries, filter)
//
//	logging.ExportLogEntries(filtered, "errors.json", "json")
//	logging.ExportLogEntries(filtered, "errors.txt", "text")
//	logging.ExportLogEntries(filtered, "errors.csv", "csv")
//
// # Log Levels
//
// The package defines four log levels:
//
//   - [LevelDebug]: Detailed information for debugging
//   - [LevelInfo]: General operational information (default)
//   - [LevelWarn]: Warning conditions that may need attention
//   - [LevelError]: Error conditions that affect functionality
//
// Use [ValidLevels] to get the list of valid level strings, and [ParseLevel]
// to normalize user-provided level strings.
//
// # Configuration
//
// The logging section of the adtflow config file maps onto these types:
//
//	logging:
//	  level: INFO
//	  max_size_mb: 10
//	  max_backups: 3
package logging
