/*
Package cache wraps a Redis client behind the runtime's caching needs.

Manager owns the connection lifecycle: construction pings the server,
an optional background loop keeps pinging, and Close releases the pool.
On top of the raw string operations, GetJSON/SetJSON serialize values,
and ErrCacheMiss distinguishes an absent key from a transport failure.

CardCache adapts the manager to the agent-to-agent card cache contract,
so discovery results survive the per-call client teardown and are shared
across processes pointing at the same Redis.
*/
package cache
