// Package connectorxpooling implements a partitioned database-to-Arrow
// extraction engine with per-backend connection pooling.
//
// A single logical query is split by the caller into partition queries.
// The engine parses the connection string into a source descriptor,
// builds (or reuses) a connection pool for pool-capable backends,
// resolves the full value-conversion plan before the first row is
// fetched, then executes every partition concurrently on its own
// connection into an exclusive region of an Apache Arrow destination.
// Regions finalize in partition order, so the combined result is
// deterministic regardless of scheduling.
//
// Supported backends: PostgreSQL (binary, csv, cursor and simple
// protocols), MySQL (binary and text), SQLite, Oracle, SQL Server,
// BigQuery and Trino. Redshift and ClickHouse route through the
// Postgres and MySQL paths respectively.
//
// See pkg/engine for the public API and cmd/cxpool for the CLI.
package connectorxpooling
