// Package daemon coordinates the long-running voicediary process.
//
// It wires the staging area, the workflow coordinator, the chat gateway, and
// the status/metrics listener into a single lifecycle with flock-based
// locking to prevent two bots from sharing one work directory. Startup cleans
// leftovers from the inbox, runs preflight checks, and validates the encoder
// in video mode. Shutdown closes the gateway first, gives in-flight jobs the
// configured grace period, cancels whatever is left, and sweeps the inbox.
//
// Keep orchestration logic here: the per-attachment pipeline lives in the
// workflow package while the daemon focuses on startup, shutdown, and
// reporting.
package daemon
