package graph

import (
	"context"
	"sync"

	"github.com/boltgraph/driver/bolt"
	"github.com/boltgraph/driver/pool"
	"github.com/boltgraph/driver/stream"
	"github.com/boltgraph/driver/txn"
)

// Graph is the root handle applications hold: a pool of authenticated
// connections plus the per-graph state the spec's façade bundles —
// default database, fetch size, and a causally-chained bookmark set that
// every managed transaction both consumes and contributes to.
type Graph struct {
	pool      *pool.Pool
	cfg       Config
	retryCfg  txn.RetryConfig
	bookmarks *bookmarkSet
}

// Open builds a Graph from a parsed Config: constructs the connection
// pool (connections are dialed lazily on first Acquire, not here).
func Open(ctx context.Context, cfg Config) (*Graph, error) {
	p := pool.New(ctx, pool.Config{
		Dial: bolt.DialConfig{
			Address:   cfg.Address(),
			TLSConfig: cfg.TLSConfig,
			UserAgent: cfg.UserAgent,
			Auth:      cfg.AuthToken(),
			Timeout:   cfg.ConnectionTimeout,
		},
		MaxConnections: cfg.MaxConnections,
		AcquireTimeout: cfg.AcquireTimeout,
		MaxLifetime:    cfg.MaxLifetime,
		IdleTimeout:    cfg.IdleTimeout,
	})
	return &Graph{
		pool:      p,
		cfg:       cfg,
		retryCfg:  txn.DefaultRetryConfig,
		bookmarks: newBookmarkSet(),
	}, nil
}

// OpenURI is a convenience combining ParseURI and Open.
func OpenURI(ctx context.Context, uri string) (*Graph, error) {
	cfg, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	return Open(ctx, cfg)
}

// Close drains the connection pool.
func (g *Graph) Close(ctx context.Context) error {
	return g.pool.Close(ctx)
}

func (g *Graph) runExtra() map[string]any {
	extra := map[string]any{}
	if g.cfg.Database != "" {
		extra["db"] = g.cfg.Database
	}
	if bms := g.bookmarks.snapshot(); len(bms) > 0 {
		list := make([]any, len(bms))
		for i, b := range bms {
			list[i] = b
		}
		extra["bookmarks"] = list
	}
	return extra
}

// Run implements the spec's run(q) mode: acquire, RUN, drain every row
// (discarding them), return the summary, release. Fails fast, no retry.
func (g *Graph) Run(ctx context.Context, statement string, params map[string]any) (*stream.Summary, error) {
	summary, err := txn.Run(ctx, g.pool, statement, params, g.runExtra(), g.cfg.FetchSize)
	if err != nil {
		return nil, err
	}
	g.bookmarks.add(summary.Bookmark())
	return summary, nil
}

// Execute implements the spec's execute(q) mode: acquire, RUN, return a
// RowStream wrapped in a ManagedStream. The connection goes back to the
// pool only when the caller calls its Release; exhausting or Dropping the
// stream does not return it.
func (g *Graph) Execute(ctx context.Context, statement string, params map[string]any) (*txn.ManagedStream, error) {
	return txn.Execute(ctx, g.pool, statement, params, g.runExtra(), g.cfg.FetchSize)
}

// StartTxn implements the spec's start_txn() mode: acquire, BEGIN, return
// a Txn that owns the connection until Commit/Rollback.
func (g *Graph) StartTxn(ctx context.Context) (*txn.Txn, error) {
	return txn.StartTxn(ctx, g.pool, g.runExtra(), g.cfg.FetchSize)
}

// ExecuteWrite runs fn inside a managed read-write transaction with
// exponential-backoff retry on transient failures, per the spec's
// managed-retry contract.
func (g *Graph) ExecuteWrite(ctx context.Context, fn func(ctx context.Context, tx *txn.Txn) (any, error)) (any, error) {
	return g.executeManaged(ctx, txn.Write, fn)
}

// ExecuteRead is ExecuteWrite's read-only counterpart: identical retry
// semantics, extra.mode = "r".
func (g *Graph) ExecuteRead(ctx context.Context, fn func(ctx context.Context, tx *txn.Txn) (any, error)) (any, error) {
	return g.executeManaged(ctx, txn.Read, fn)
}

func (g *Graph) executeManaged(ctx context.Context, mode txn.AccessMode, fn func(ctx context.Context, tx *txn.Txn) (any, error)) (any, error) {
	extra := g.runExtra()
	if mode == txn.Read {
		extra["mode"] = "r"
	}
	result, err := txn.ExecuteManaged(ctx, g.pool, g.retryCfg, extra, g.cfg.FetchSize, fn)
	if err != nil {
		return nil, err
	}
	g.bookmarks.add(result.Bookmark)
	return result.Value, nil
}

// SetRetryConfig overrides the default managed-retry backoff parameters.
func (g *Graph) SetRetryConfig(cfg txn.RetryConfig) { g.retryCfg = cfg }

// bookmarkSet holds the causal-chaining bookmarks gathered after each
// auto-commit run or managed transaction, replaced wholesale on each
// update per the spec's "atomic replace-with-latest" bookmark semantics.
type bookmarkSet struct {
	mu   sync.Mutex
	bms  []string
}

func newBookmarkSet() *bookmarkSet { return &bookmarkSet{} }

func (b *bookmarkSet) add(bookmark string) {
	if bookmark == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bms = []string{bookmark}
}

func (b *bookmarkSet) snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.bms))
	copy(out, b.bms)
	return out
}
