// Package daemon wires the pipeline services together: the transcode batch
// orchestrator, the access sync runner and sweeper, the billing state
// machine, and the local HTTP API. It enforces single-instance execution
// with a lock file and recovers jobs stranded by an unclean shutdown.
package daemon
