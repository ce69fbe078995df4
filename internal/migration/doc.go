/*
Package migration versions the record-table schema with golang-migrate.

The SQL migration files are embedded per dialect (postgres, mysql,
sqlite) and selected by the configured driver; sqlite runs on the
pure-Go driver so migrations work without cgo. SQLMigrator exposes the
usual operations (Up, Down, Steps, Goto, Force) plus Status and Summary
for inspection, and CLI formats them for the migrate subcommands.
*/
package migration
