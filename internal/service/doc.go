// Package service orchestrates the adaptive-difficulty subsystem: the
// per-session state machine, the dual-write cache/store path, bounded
// retries, automatic recovery, and the closed fault taxonomy reported at
// the subsystem boundary.
package service
