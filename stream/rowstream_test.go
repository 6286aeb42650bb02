package stream_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boltgraph/driver/bolt"
	"github.com/boltgraph/driver/internal/bolttest"
	"github.com/boltgraph/driver/stream"
)

func runQuery(t *testing.T, conn *bolt.Connection, statement string) bolt.Success {
	t.Helper()
	succ, err := conn.Run(context.Background(), statement, nil, nil)
	require.NoError(t, err)
	return succ
}

func TestRowStream_SinglePullExhausts(t *testing.T) {
	conn, closeAll := bolttest.Dial(t, bolt.Version{Major: 4, Minor: 4}, map[string]any{"scheme": "none"}, func(s *bolttest.FakeServer) {
		bolttest.HelloLogon(s, bolt.Version{Major: 4, Minor: 4})

		s.Recv() // RUN
		s.Success(map[string]any{"fields": []any{"n"}, "qid": int64(1)})

		s.Recv() // PULL
		s.Send(bolt.Record{Values: []any{int64(1)}})
		s.Send(bolt.Record{Values: []any{int64(2)}})
		s.Success(map[string]any{"has_more": false, "bookmark": "bm-1"})
	})
	defer closeAll()

	ctx := context.Background()
	succ := runQuery(t, conn, "RETURN 1")
	rs, err := stream.New(ctx, conn, succ, 1000)
	require.NoError(t, err)
	assert.Equal(t, []string{"n"}, rs.Keys())

	row1, ok := rs.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, []any{int64(1)}, row1)

	row2, ok := rs.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, []any{int64(2)}, row2)

	_, ok = rs.Next(ctx)
	require.False(t, ok)
	require.NoError(t, rs.Err())
	require.NotNil(t, rs.Summary())
	assert.Equal(t, "bm-1", rs.Summary().Bookmark())
}

func TestRowStream_MultiplePullCyclesPageAcrossFetchSize(t *testing.T) {
	conn, closeAll := bolttest.Dial(t, bolt.Version{Major: 4, Minor: 4}, map[string]any{"scheme": "none"}, func(s *bolttest.FakeServer) {
		bolttest.HelloLogon(s, bolt.Version{Major: 4, Minor: 4})

		s.Recv() // RUN
		s.Success(map[string]any{"fields": []any{"n"}, "qid": int64(1)})

		s.Recv() // PULL #1 (fetch_size 2)
		s.Send(bolt.Record{Values: []any{int64(1)}})
		s.Send(bolt.Record{Values: []any{int64(2)}})
		s.Success(map[string]any{"has_more": true})

		s.Recv() // PULL #2
		s.Send(bolt.Record{Values: []any{int64(3)}})
		s.Success(map[string]any{"has_more": false})
	})
	defer closeAll()

	ctx := context.Background()
	succ := runQuery(t, conn, "RETURN 1")
	rs, err := stream.New(ctx, conn, succ, 2)
	require.NoError(t, err)

	var rows [][]any
	for row, ok := rs.Next(ctx); ok; row, ok = rs.Next(ctx) {
		rows = append(rows, row)
	}
	require.NoError(t, rs.Err())
	assert.Equal(t, [][]any{{int64(1)}, {int64(2)}, {int64(3)}}, rows)
}

func TestRowStream_DropSendsDiscardAndDrains(t *testing.T) {
	conn, closeAll := bolttest.Dial(t, bolt.Version{Major: 4, Minor: 4}, map[string]any{"scheme": "none"}, func(s *bolttest.FakeServer) {
		bolttest.HelloLogon(s, bolt.Version{Major: 4, Minor: 4})

		s.Recv() // RUN
		s.Success(map[string]any{"fields": []any{"n"}, "qid": int64(1)})

		s.Recv() // PULL
		s.Send(bolt.Record{Values: []any{int64(1)}})
		s.Success(map[string]any{"has_more": true})

		discardMsg := s.Recv()
		discard, ok := discardMsg.(bolt.Discard)
		require.True(t, ok)
		assert.Equal(t, int64(-1), discard.N)
		s.Success(map[string]any{"has_more": false})
	})
	defer closeAll()

	ctx := context.Background()
	succ := runQuery(t, conn, "RETURN 1")
	rs, err := stream.New(ctx, conn, succ, 1)
	require.NoError(t, err)

	require.NoError(t, rs.Drop(ctx))
	assert.Equal(t, bolt.StateReady, conn.State())
}

func TestRowStream_FailureDuringPullSurfacesAsErr(t *testing.T) {
	conn, closeAll := bolttest.Dial(t, bolt.Version{Major: 4, Minor: 4}, map[string]any{"scheme": "none"}, func(s *bolttest.FakeServer) {
		bolttest.HelloLogon(s, bolt.Version{Major: 4, Minor: 4})

		s.Recv() // RUN
		s.Success(map[string]any{"fields": []any{"n"}, "qid": int64(1)})

		s.Recv() // PULL
		s.Failure("Neo.ClientError.Statement.SyntaxError", "bad cypher")
	})
	defer closeAll()

	ctx := context.Background()
	succ := runQuery(t, conn, "RETURN 1")
	rs, err := stream.New(ctx, conn, succ, 1000)
	require.Error(t, err)
	assert.Equal(t, err, rs.Err())
}
