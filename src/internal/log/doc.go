// Package log provides simple leveled logging for pbrsync.
//
// This package implements a lightweight logging system with colored output
// and support for different log levels: DEBUG, INFO, WARN, and ERROR.
// It provides global logging functions that can be used throughout the application.
//
// # Log Levels
//
//   - DEBUG: kernel message traces and dropped notifications (verbose mode only)
//   - INFO: General informational messages
//   - WARN: Failed kernel transactions and other recoverable problems
//   - ERROR: Error messages for failures and exceptions
//
// # Example Usage
//
//	log.Infof("Starting pbrsync service")
//	log.Warnf("Failed to install rule [%v]: %v", r, err)
//
// Enabling verbose mode for debug output:
//
//	log.SetVerbose(true)
//	log.Debugf("Tx %s [%v]", op, r)
//
// Output control:
//
//	log.SetForceStdErr(true) // Send all logs to stderr
//
// All functions are safe for concurrent use.
package log
