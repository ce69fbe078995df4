/*
Package database opens and manages the relational store connection.

Open builds a GORM handle for the configured driver (postgres, mysql or
sqlite) and hands it to NewPool, which applies the connection pool
limits, runs an optional background liveness ping, and offers
transaction helpers. WithTransactionRetry retries the class of failures
that clear on their own (deadlocks, serialization conflicts, dropped
connections) with exponential backoff; everything else fails fast.
*/
package database
