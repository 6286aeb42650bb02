package txn_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boltgraph/driver/bolt"
	"github.com/boltgraph/driver/internal/bolttest"
	"github.com/boltgraph/driver/txn"
)

var v44 = bolt.Version{Major: 4, Minor: 4}

// singleConnConnector hands out one pre-dialed connection per Acquire call,
// in order, and records every Release/Discard for assertions.
type singleConnConnector struct {
	conns     []*bolt.Connection
	next      int
	released  []*bolt.Connection
	discarded []*bolt.Connection
}

func (c *singleConnConnector) Acquire(ctx context.Context) (*bolt.Connection, error) {
	conn := c.conns[c.next]
	c.next++
	return conn, nil
}

func (c *singleConnConnector) Release(conn *bolt.Connection) { c.released = append(c.released, conn) }
func (c *singleConnConnector) Discard(conn *bolt.Connection)  { c.discarded = append(c.discarded, conn) }

func TestTxn_RunCommit(t *testing.T) {
	conn, closeAll := bolttest.Dial(t, v44, map[string]any{"scheme": "none"}, func(s *bolttest.FakeServer) {
		bolttest.HelloLogon(s, v44)

		s.Recv() // BEGIN
		s.Success(nil)

		s.Recv() // RUN
		s.Success(map[string]any{"fields": []any{"n"}, "qid": int64(1)})
		s.Recv() // PULL
		s.Send(bolt.Record{Values: []any{int64(42)}})
		s.Success(map[string]any{"has_more": false})

		s.Recv() // COMMIT
		s.Success(map[string]any{"bookmark": "bm-9"})
	})
	defer closeAll()

	connector := &singleConnConnector{conns: []*bolt.Connection{conn}}
	ctx := context.Background()

	tx, err := txn.StartTxn(ctx, connector, nil, 1000)
	require.NoError(t, err)

	_, err = tx.Run(ctx, "RETURN 42", nil)
	require.NoError(t, err)

	commitSummary, err := tx.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bm-9", commitSummary.Bookmark())
	assert.Len(t, connector.released, 1)
}

func TestTxn_RollbackIsIdempotent(t *testing.T) {
	conn, closeAll := bolttest.Dial(t, v44, map[string]any{"scheme": "none"}, func(s *bolttest.FakeServer) {
		bolttest.HelloLogon(s, v44)

		s.Recv() // BEGIN
		s.Success(nil)

		s.Recv() // ROLLBACK
		s.Success(nil)
	})
	defer closeAll()

	connector := &singleConnConnector{conns: []*bolt.Connection{conn}}
	ctx := context.Background()

	tx, err := txn.StartTxn(ctx, connector, nil, 1000)
	require.NoError(t, err)

	require.NoError(t, tx.Rollback(ctx))
	require.NoError(t, tx.Rollback(ctx)) // second call is a no-op, no second ROLLBACK on the wire
	assert.Len(t, connector.released, 1)
}

func TestPackageRun_DrainsAndReleases(t *testing.T) {
	conn, closeAll := bolttest.Dial(t, v44, map[string]any{"scheme": "none"}, func(s *bolttest.FakeServer) {
		bolttest.HelloLogon(s, v44)

		s.Recv() // RUN
		s.Success(map[string]any{"fields": []any{"n"}, "qid": int64(1)})
		s.Recv() // PULL
		s.Send(bolt.Record{Values: []any{int64(1)}})
		s.Success(map[string]any{"has_more": false, "bookmark": "bm-run"})
	})
	defer closeAll()

	connector := &singleConnConnector{conns: []*bolt.Connection{conn}}
	summary, err := txn.Run(context.Background(), connector, "RETURN 1", nil, nil, 1000)
	require.NoError(t, err)
	assert.Equal(t, "bm-run", summary.Bookmark())
	assert.Len(t, connector.released, 1)
}

func TestPackageExecute_ReleaseDropsUnconsumedRows(t *testing.T) {
	conn, closeAll := bolttest.Dial(t, v44, map[string]any{"scheme": "none"}, func(s *bolttest.FakeServer) {
		bolttest.HelloLogon(s, v44)

		s.Recv() // RUN
		s.Success(map[string]any{"fields": []any{"n"}, "qid": int64(1)})
		s.Recv() // PULL
		s.Send(bolt.Record{Values: []any{int64(1)}})
		s.Success(map[string]any{"has_more": true})

		discard := s.Recv()
		_, ok := discard.(bolt.Discard)
		require.True(t, ok)
		s.Success(map[string]any{"has_more": false})
	})
	defer closeAll()

	connector := &singleConnConnector{conns: []*bolt.Connection{conn}}
	ms, err := txn.Execute(context.Background(), connector, "RETURN 1", nil, nil, 1)
	require.NoError(t, err)

	row, ok := ms.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, []any{int64(1)}, row)

	require.NoError(t, ms.Release(context.Background()))
	assert.Len(t, connector.released, 1)
}

func TestExecuteManaged_RetriesTransientFailureThenSucceeds(t *testing.T) {
	failConn, closeFail := bolttest.Dial(t, v44, map[string]any{"scheme": "none"}, func(s *bolttest.FakeServer) {
		bolttest.HelloLogon(s, v44)
		s.Recv() // BEGIN
		s.Failure("Neo.TransientError.Transaction.DeadlockDetected", "try again")
	})
	defer closeFail()

	okConn, closeOK := bolttest.Dial(t, v44, map[string]any{"scheme": "none"}, func(s *bolttest.FakeServer) {
		bolttest.HelloLogon(s, v44)
		s.Recv() // BEGIN
		s.Success(nil)
		s.Recv() // COMMIT
		s.Success(map[string]any{"bookmark": "bm-retry"})
	})
	defer closeOK()

	connector := &singleConnConnector{conns: []*bolt.Connection{failConn, okConn}}
	cfg := txn.RetryConfig{BaseDelay: 0.01, Multiplier: 2, MaxDelay: 0.05, Jitter: 0, MaxElapsed: 5}

	calls := 0
	result, err := txn.ExecuteManaged(context.Background(), connector, cfg, nil, 1000, func(ctx context.Context, tx *txn.Txn) (any, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Value)
	assert.Equal(t, "bm-retry", result.Bookmark)
	assert.Equal(t, 1, calls) // BEGIN failed before fn ever ran; fn only runs once, on the 2nd StartTxn
}

func TestExecuteManaged_NonRetryableAbortsImmediately(t *testing.T) {
	conn, closeAll := bolttest.Dial(t, v44, map[string]any{"scheme": "none"}, func(s *bolttest.FakeServer) {
		bolttest.HelloLogon(s, v44)
		s.Recv() // BEGIN
		s.Success(nil)
		s.Recv() // ROLLBACK
		s.Success(nil)
	})
	defer closeAll()

	connector := &singleConnConnector{conns: []*bolt.Connection{conn}}
	cfg := txn.RetryConfig{BaseDelay: 0.01, Multiplier: 2, MaxDelay: 0.05, Jitter: 0, MaxElapsed: 5}

	_, err := txn.ExecuteManaged(context.Background(), connector, cfg, nil, 1000, func(ctx context.Context, tx *txn.Txn) (any, error) {
		return nil, errBadStatement
	})
	require.Error(t, err)
	assert.Len(t, connector.discarded, 0) // Rollback released the connection, didn't discard it
	assert.Len(t, connector.released, 1)
}

var errBadStatement = fmt.Errorf("bad cypher statement")
