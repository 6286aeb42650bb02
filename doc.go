/*
Package graph implements a native Go client driver for a graph database
speaking the Bolt wire protocol (versions 4.x and 5.x) over TCP, optionally
wrapped in TLS.

A Graph bundles a bounded connection pool, auth, default database, fetch
size, and a causally-chained bookmark set behind the handful of entry
points application code actually needs:

  - Run executes a statement and discards its rows, returning only the
    summary — for fire-and-forget writes.
  - Execute runs a statement and returns a lazily-paged RowStream, for
    callers that want to consume rows one at a time.
  - StartTxn opens an explicit transaction the caller drives to Commit or
    Rollback by hand.
  - ExecuteWrite and ExecuteRead run a closure inside a managed
    transaction with exponential-backoff retry on transient server and
    connection failures.

Below the façade, package bolt implements the per-connection handshake and
session state machine, package packstream the wire value codec, package
stream the fetch-size–driven result paging, package txn the transaction
manager and managed-retry policy, and package pool the bounded connection
pool. Applications normally only import this top-level package.

Cypher itself, routing/discovery across a cluster, and TLS certificate
management are out of scope — see SPEC_FULL.md.
*/
package graph
