package bolt

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	boltErrors "github.com/boltgraph/driver/errors"
	"github.com/boltgraph/driver/internal/framing"
	"github.com/boltgraph/driver/packstream"
)

// fakeServer drives the server side of a net.Pipe with full control over
// what bytes go back, standing in for a real Bolt server the way the
// teacher driver's recorder.go stands in for one via pre-recorded byte
// events — except here the script is a live goroutine, not a fixture.
type fakeServer struct {
	t    *testing.T
	conn net.Conn
	w    *framing.Writer
	r    *framing.Reader
}

func newFakeServer(t *testing.T, conn net.Conn) *fakeServer {
	return &fakeServer{t: t, conn: conn, w: framing.NewWriter(conn, framing.MaxChunkSize), r: framing.NewReader(conn)}
}

// handshake reads the client's magic preamble + 4 proposals and writes
// back the chosen version.
func (s *fakeServer) handshake(chosen Version) {
	var buf [20]byte
	_, err := readFull(s.conn, buf[:])
	require.NoError(s.t, err)
	resp := chosen.encode()
	_, err = s.conn.Write(resp[:])
	require.NoError(s.t, err)
}

func (s *fakeServer) recvMessage() any {
	raw, err := s.r.ReadMessage()
	require.NoError(s.t, err)
	val, err := packstream.NewDecoder(raw).Decode()
	require.NoError(s.t, err)
	msg, err := DecodeMessage(val)
	require.NoError(s.t, err)
	return msg
}

func (s *fakeServer) sendMessage(msg packstream.Structure) {
	require.NoError(s.t, packstream.NewEncoder(s.w).Encode(msg))
	require.NoError(s.t, s.w.EndMessage())
}

func (s *fakeServer) sendSuccess(md map[string]any) { s.sendMessage(Success{Metadata: md}) }
func (s *fakeServer) sendFailure(code, msg string) {
	s.sendMessage(Failure{Metadata: map[string]any{"code": code, "message": msg}})
}

// dialThroughPipe starts a fake server goroutine (via serverFn) on one end
// of a net.Pipe and dials the Connection's handshake+auth against the
// other end concurrently, returning the established Connection.
func dialThroughPipe(t *testing.T, version Version, serverFn func(s *fakeServer)) (*Connection, func()) {
	t.Helper()
	clientConn, serverConn := net.Pipe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s := newFakeServer(t, serverConn)
		s.handshake(version)
		serverFn(s)
	}()

	dialDone := make(chan struct{})
	var conn *Connection
	var dialErr error
	go func() {
		defer close(dialDone)
		conn, dialErr = dialOverConn(context.Background(), clientConn, version, "testagent/1.0", map[string]any{"scheme": "none"})
	}()

	select {
	case <-dialDone:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out dialing through pipe")
	}
	require.NoError(t, dialErr)
	return conn, func() {
		clientConn.Close()
		serverConn.Close()
		<-done
	}
}

// dialOverConn is a thin test wrapper around the exported DialConn. The
// client still proposes DefaultProposals; version is not sent, and the
// fake server simply answers with whichever version its handshake was given.
func dialOverConn(ctx context.Context, netConn net.Conn, version Version, userAgent string, auth map[string]any) (*Connection, error) {
	return DialConn(ctx, netConn, DialConfig{UserAgent: userAgent, Auth: auth, Timeout: time.Second})
}

func TestDial_Bolt44_SingleHelloAuth(t *testing.T) {
	conn, closeAll := dialThroughPipe(t, Version{4, 4}, func(s *fakeServer) {
		msg := s.recvMessage()
		hello, ok := msg.(Hello)
		require.True(t, ok)
		require.NotNil(t, hello.Auth)
		s.sendSuccess(map[string]any{"server": "fake/1.0"})
	})
	defer closeAll()

	require.Equal(t, StateReady, conn.State())
	require.Equal(t, Version{4, 4}, conn.Version())
}

func TestDial_Bolt51_HelloThenLogon(t *testing.T) {
	conn, closeAll := dialThroughPipe(t, Version{5, 1}, func(s *fakeServer) {
		helloMsg := s.recvMessage()
		hello, ok := helloMsg.(Hello)
		require.True(t, ok)
		require.Nil(t, hello.Auth)
		s.sendSuccess(nil)

		logonMsg := s.recvMessage()
		_, ok = logonMsg.(Logon)
		require.True(t, ok)
		s.sendSuccess(nil)
	})
	defer closeAll()

	require.Equal(t, StateReady, conn.State())
}

func TestDial_AuthFailureIsKindAuth(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s := newFakeServer(t, serverConn)
		s.handshake(Version{4, 4})
		s.recvMessage()
		s.sendFailure("Neo.ClientError.Security.Unauthorized", "bad creds")
	}()

	_, err := dialOverConn(context.Background(), clientConn, Version{4, 4}, "agent", map[string]any{"scheme": "basic"})
	require.Error(t, err)
	require.Equal(t, boltErrors.KindAuth, boltErrors.KindOf(err))
	clientConn.Close()
	serverConn.Close()
	<-done
}

func TestRun_TransitionsToStreamingThenReady(t *testing.T) {
	conn, closeAll := dialThroughPipe(t, Version{4, 4}, func(s *fakeServer) {
		s.recvMessage()
		s.sendSuccess(nil)

		runMsg := s.recvMessage()
		run, ok := runMsg.(Run)
		require.True(t, ok)
		require.Equal(t, "RETURN 1", run.Statement)
		s.sendSuccess(map[string]any{"fields": []any{"n"}, "qid": int64(7)})

		pullMsg := s.recvMessage()
		_, ok = pullMsg.(Pull)
		require.True(t, ok)
		s.sendMessage(Record{Values: []any{int64(1)}})
		s.sendSuccess(map[string]any{"has_more": false})
	})
	defer closeAll()

	succ, err := conn.Run(context.Background(), "RETURN 1", nil, nil)
	require.NoError(t, err)
	require.Equal(t, StateStreaming, conn.State())
	require.Equal(t, int64(7), conn.QID())
	require.Equal(t, []any{"n"}, succ.Metadata["fields"])

	require.NoError(t, conn.SendPull(context.Background(), 1000, 7))
	resp, err := conn.Receive(context.Background())
	require.NoError(t, err)
	_, ok := resp.(Record)
	require.True(t, ok)

	resp, err = conn.Receive(context.Background())
	require.NoError(t, err)
	succ2, ok := resp.(Success)
	require.True(t, ok)
	require.False(t, succ2.Metadata["has_more"].(bool))
	require.Equal(t, StateReady, conn.State())
	require.Equal(t, int64(-1), conn.QID())
}

func TestBeginCommit_RoundTrip(t *testing.T) {
	conn, closeAll := dialThroughPipe(t, Version{4, 4}, func(s *fakeServer) {
		s.recvMessage()
		s.sendSuccess(nil)

		s.recvMessage() // BEGIN
		s.sendSuccess(nil)

		s.recvMessage() // COMMIT
		s.sendSuccess(map[string]any{"bookmark": "bm-1"})
	})
	defer closeAll()

	ctx := context.Background()
	_, err := conn.Begin(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, StateTxReady, conn.State())

	succ, err := conn.Commit(ctx)
	require.NoError(t, err)
	require.Equal(t, StateReady, conn.State())
	require.Equal(t, "bm-1", succ.Metadata["bookmark"])
}

func TestFailureResponse_EntersFailedState_ResetRecovers(t *testing.T) {
	conn, closeAll := dialThroughPipe(t, Version{4, 4}, func(s *fakeServer) {
		s.recvMessage()
		s.sendSuccess(nil)

		s.recvMessage() // RUN
		s.sendFailure("Neo.ClientError.Statement.SyntaxError", "bad cypher")

		s.recvMessage() // RESET
		s.sendSuccess(nil)
	})
	defer closeAll()

	ctx := context.Background()
	_, err := conn.Run(ctx, "GARBAGE", nil, nil)
	require.Error(t, err)
	require.Equal(t, StateFailed, conn.State())

	require.NoError(t, conn.Reset(ctx))
	require.Equal(t, StateReady, conn.State())
}
