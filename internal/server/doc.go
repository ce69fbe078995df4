/*
Package server runs the operational HTTP endpoint of the runtime.

Manager owns one net/http server: non-blocking Start, graceful
Shutdown with a deadline, and asynchronous failure reporting through
Errors. NewHandler assembles what it serves: Prometheus metrics on
/metrics, a liveness probe on /healthz, a readiness probe over the
registered dependency checks on /readyz, and build information on
/version.
*/
package server
