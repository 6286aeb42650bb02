// Package txn implements the Transaction Manager (component C6): the
// run/execute/start_txn entry points and the managed-retry wrapper around
// execute_read/execute_write-style closures. It is grounded on the teacher
// driver's tx.go (Commit/Rollback against a single pinned bolt_conn) for
// the pin-one-connection-for-the-whole-txn shape, generalized with the
// bookmark-passing and exponential-backoff retry the spec's managed
// transactions require.
package txn

import (
	"context"

	"github.com/cenkalti/backoff/v5"

	boltErrors "github.com/boltgraph/driver/errors"
	"github.com/boltgraph/driver/bolt"
	"github.com/boltgraph/driver/stream"
)

// AccessMode selects whether a managed transaction's BEGIN extra carries
// mode: "r" or is omitted (the default, "w").
type AccessMode string

const (
	// Write is the default access mode.
	Write AccessMode = "w"
	// Read marks a transaction as read-only for routing-aware servers;
	// this core doesn't route but still threads the mode through so a
	// routing-capable server can honor it.
	Read AccessMode = "r"
)

// Connector is the thin seam txn needs from the pool: acquire a ready
// connection, release it back. Package pool's *Pool satisfies this.
type Connector interface {
	Acquire(ctx context.Context) (*bolt.Connection, error)
	Release(conn *bolt.Connection)
	Discard(conn *bolt.Connection)
}

// Txn owns one connection for the lifetime of an explicit transaction:
// BEGIN was already sent by StartTxn, and Commit/Rollback are the only
// ways to release it back to the pool.
type Txn struct {
	pool      Connector
	conn      *bolt.Connection
	fetchSize int64
	done      bool
}

// StartTxn acquires a connection, sends BEGIN with extra (bookmarks,
// tx_timeout, mode, db, ...), and returns a Txn owning that connection
// until Commit or Rollback.
func StartTxn(ctx context.Context, pool Connector, extra map[string]any, fetchSize int64) (*Txn, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Begin(ctx, extra); err != nil {
		pool.Discard(conn)
		return nil, err
	}
	return &Txn{pool: pool, conn: conn, fetchSize: fetchSize}, nil
}

// Run executes a statement inside the transaction and returns its summary
// once fully discarded — use Execute instead to consume rows.
func (tx *Txn) Run(ctx context.Context, statement string, params map[string]any) (*stream.Summary, error) {
	rs, err := tx.Execute(ctx, statement, params)
	if err != nil {
		return nil, err
	}
	for _, ok := rs.Next(ctx); ok; _, ok = rs.Next(ctx) {
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}
	return rs.Summary(), nil
}

// Execute runs a statement inside the transaction and returns a RowStream
// bound to the same connection.
func (tx *Txn) Execute(ctx context.Context, statement string, params map[string]any) (*stream.RowStream, error) {
	if tx.done {
		return nil, boltErrors.Classify(errTxnClosed(), boltErrors.KindProtocol)
	}
	succ, err := tx.conn.Run(ctx, statement, params, nil)
	if err != nil {
		return nil, err
	}
	return stream.New(ctx, tx.conn, succ, tx.fetchSize)
}

// Commit commits the transaction and releases the connection back to the
// pool.
func (tx *Txn) Commit(ctx context.Context) (*stream.Summary, error) {
	if tx.done {
		return nil, boltErrors.Classify(errTxnClosed(), boltErrors.KindProtocol)
	}
	tx.done = true
	succ, err := tx.conn.Commit(ctx)
	if err != nil {
		tx.pool.Discard(tx.conn)
		return nil, err
	}
	tx.pool.Release(tx.conn)
	return &stream.Summary{Metadata: succ.Metadata}, nil
}

// Rollback aborts the transaction and releases the connection back to the
// pool. Calling Rollback after Commit (or a second time) is a no-op, so
// deferred best-effort rollbacks are always safe to write unconditionally.
func (tx *Txn) Rollback(ctx context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	if _, err := tx.conn.Rollback(ctx); err != nil {
		tx.pool.Discard(tx.conn)
		return err
	}
	tx.pool.Release(tx.conn)
	return nil
}

func errTxnClosed() error { return txnClosedError{} }

type txnClosedError struct{}

func (txnClosedError) Error() string { return "transaction already committed or rolled back" }

// Run implements the spec's "run(q)" mode: acquire -> RUN+PULL (discard
// all rows) -> return summary -> release. Fails fast, no retry.
func Run(ctx context.Context, pool Connector, statement string, params map[string]any, extra map[string]any, fetchSize int64) (*stream.Summary, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	succ, err := conn.Run(ctx, statement, params, extra)
	if err != nil {
		pool.Discard(conn)
		return nil, err
	}
	rs, err := stream.New(ctx, conn, succ, fetchSize)
	if err != nil {
		pool.Discard(conn)
		return nil, err
	}
	for _, ok := rs.Next(ctx); ok; _, ok = rs.Next(ctx) {
	}
	if err := rs.Err(); err != nil {
		pool.Discard(conn)
		return nil, err
	}
	pool.Release(conn)
	return rs.Summary(), nil
}

// Execute implements the spec's "execute(q)" mode: acquire -> RUN ->
// return a ManagedStream that holds the connection until the caller calls
// its Release; exhaustion or Drop alone does not give the connection back.
func Execute(ctx context.Context, pool Connector, statement string, params map[string]any, extra map[string]any, fetchSize int64) (*ManagedStream, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	succ, err := conn.Run(ctx, statement, params, extra)
	if err != nil {
		pool.Discard(conn)
		return nil, err
	}
	rs, err := stream.New(ctx, conn, succ, fetchSize)
	if err != nil {
		pool.Discard(conn)
		return nil, err
	}
	return &ManagedStream{RowStream: rs, pool: pool, conn: conn}, nil
}

// ManagedStream wraps a stream.RowStream with pool ownership: its Release
// method returns the connection to the pool (or discards it after an
// error). Reaching the end of the rows does not release it, and Drop (the
// embedded RowStream's) only sends DISCARD; the connection stays leased
// until Release is called.
type ManagedStream struct {
	*stream.RowStream
	pool     Connector
	conn     *bolt.Connection
	released bool
}

// Release returns the connection to the pool. Safe to call multiple
// times; only the first call has effect. If the stream hasn't been fully
// drained, it is dropped (DISCARD) first, per the spec's early-drop
// safety requirement.
func (m *ManagedStream) Release(ctx context.Context) error {
	if m.released {
		return nil
	}
	m.released = true
	if err := m.RowStream.Drop(ctx); err != nil {
		m.pool.Discard(m.conn)
		return err
	}
	if m.RowStream.Err() != nil {
		m.pool.Discard(m.conn)
		return nil
	}
	m.pool.Release(m.conn)
	return nil
}

// RetryConfig bounds a managed-retry loop. Zero value is not usable;
// DefaultRetryConfig supplies the spec's defaults.
type RetryConfig struct {
	BaseDelay  float64 // seconds
	Multiplier float64
	MaxDelay   float64 // seconds
	Jitter     float64 // randomization factor, 0..1
	MaxElapsed float64 // seconds; 0 disables the elapsed-time cap
}

// DefaultRetryConfig matches the spec's managed-retry defaults: base 1s,
// multiplier 2, cap 30s, jitter 0.2.
var DefaultRetryConfig = RetryConfig{BaseDelay: 1, Multiplier: 2, MaxDelay: 30, Jitter: 0.2, MaxElapsed: 180}

// ManagedResult is what a managed transaction produces on success: the
// caller closure's own return value plus the bookmark the commit handed
// back, for the façade to fold into its causal-chaining bookmark set.
type ManagedResult struct {
	Value    any
	Bookmark string
}

// ExecuteManaged wraps fn in the spec's managed-retry contract: on a
// retryable failure (errors.IsRetryable — connection loss, or a
// server-classified transient error) it rolls back best-effort, re-acquires
// a fresh transaction, and retries with exponential backoff. Non-retryable
// errors (client errors, auth failures, syntax errors) surface immediately.
func ExecuteManaged(ctx context.Context, pool Connector, cfg RetryConfig, extra map[string]any, fetchSize int64, fn func(ctx context.Context, tx *Txn) (any, error)) (ManagedResult, error) {
	b := backoffFromConfig(cfg)
	return backoff.Retry(ctx, func() (ManagedResult, error) {
		tx, err := StartTxn(ctx, pool, extra, fetchSize)
		if err != nil {
			if boltErrors.IsRetryable(err) {
				return ManagedResult{}, err
			}
			return ManagedResult{}, backoff.Permanent(err)
		}

		result, fnErr := fn(ctx, tx)
		if fnErr != nil {
			_ = tx.Rollback(ctx)
			if boltErrors.IsRetryable(fnErr) {
				return ManagedResult{}, fnErr
			}
			return ManagedResult{}, backoff.Permanent(fnErr)
		}

		summary, err := tx.Commit(ctx)
		if err != nil {
			if boltErrors.IsRetryable(err) {
				return ManagedResult{}, err
			}
			return ManagedResult{}, backoff.Permanent(err)
		}
		return ManagedResult{Value: result, Bookmark: summary.Bookmark()}, nil
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(maxElapsedDuration(cfg)))
}

func backoffFromConfig(cfg RetryConfig) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = secondsToDuration(cfg.BaseDelay)
	b.Multiplier = cfg.Multiplier
	b.MaxInterval = secondsToDuration(cfg.MaxDelay)
	b.RandomizationFactor = cfg.Jitter
	return b
}
