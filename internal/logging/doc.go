// Package logging provides the leveled logger used across lazythumb.
//
// It supports the following log levels:
//   - DEBUG: per-session transitions, cache lookups, decoder commands
//   - INFO: startup and shutdown progress
//   - WARN: degraded components (cache writes failing, libvips unavailable)
//   - ERROR: conditions that need an operator
//   - FATAL: errors that terminate the process
//
// The level is read once from DEBUG or LOG_LEVEL. Command line tools may
// override it with SetLevel before logging anything.
//
// Capture sessions log through a Logger created with With, which prefixes
// every line with the session's key/value pairs:
//
//	log := logging.With("session", id, "url", ref.URL)
//	log.Debug("gate fired")
//	// [DEBUG] [session=2f1c.. url=a.mp4] gate fired
package logging
