/*
Package main is the weave executable.

Subcommands:

  - serve: wires the full runtime from configuration and serves the
    operational endpoints (Prometheus metrics, liveness and readiness
    probes, build info) while the health scheduler sweeps the configured
    tenant/project scopes.
  - check: one-shot health probe of one capability server, or of every
    server in a scope. Outcomes are persisted exactly as scheduled sweeps
    persist them; the exit code reports whether everything passed.
  - discover: refreshes one capability server's tool catalog and prints
    the translated tools.
  - migrate: versioned schema management (up, down, status, summary,
    version, goto, force, reset).
  - version: build metadata injected through -ldflags.

Configuration follows defaults, then an optional YAML file (--config),
then WEAVE_-prefixed environment variables.
*/
package main
