// Package capability speaks the capability-server protocol: JSON-RPC 2.0
// frames over a streamable HTTP, SSE, or WebSocket transport. Connections
// are scoped to a single discover/check/invoke operation and torn down
// afterward; the package holds no long-lived connection pool.
package capability
