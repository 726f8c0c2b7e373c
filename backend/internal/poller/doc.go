// Package poller runs the per-connection ambient temperature loop.
//
// A [Scheduler] belongs to exactly one client connection. Each location the
// client sends supersedes the previous one: the running task is cancelled and
// a new task fetches immediately and then on every interval tick. Results are
// handed to an [EmitFunc]; a nil value means the lookup failed and the client
// should show the reading as unavailable.
package poller
