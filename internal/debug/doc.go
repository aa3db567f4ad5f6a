// Package debug implements the Flint debug-session client: the
// single-inflight command gate, the session facade with its status poller,
// breakpoint reconciliation, stack and variable inspection, and chunked
// file install.
package debug
