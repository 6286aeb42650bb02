// Package bolttest is a small net.Pipe-backed fake Bolt server, shared by
// the stream, txn, and pool packages' tests so each doesn't reinvent the
// harness bolt's own connection_test.go uses. It only speaks the exported
// bolt/packstream/framing surface — no unexported seams — the same
// constraint any real driver user would have.
package bolttest

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/boltgraph/driver/bolt"
	"github.com/boltgraph/driver/internal/framing"
	"github.com/boltgraph/driver/packstream"
)

// FakeServer drives the server side of a net.Pipe, standing in for a real
// Bolt server.
type FakeServer struct {
	t    *testing.T
	conn net.Conn
	w    *framing.Writer
	r    *framing.Reader
}

func newFakeServer(t *testing.T, conn net.Conn) *FakeServer {
	return &FakeServer{t: t, conn: conn, w: framing.NewWriter(conn, framing.MaxChunkSize), r: framing.NewReader(conn)}
}

// NewFakeServer wraps an already-accepted net.Conn (e.g. from a real
// net.Listener), for tests that need a fake server reachable by address
// rather than over a net.Pipe — the connection pool dials real TCP, so its
// tests need a real (loopback) listener on the other end.
func NewFakeServer(t *testing.T, conn net.Conn) *FakeServer { return newFakeServer(t, conn) }

// Handshake reads the client's magic preamble + 4 proposals and writes back
// the chosen version.
func (s *FakeServer) Handshake(chosen bolt.Version) {
	var buf [20]byte
	_, err := io.ReadFull(s.conn, buf[:])
	require.NoError(s.t, err)
	resp := [4]byte{0x00, 0x00, chosen.Minor, chosen.Major}
	_, err = s.conn.Write(resp[:])
	require.NoError(s.t, err)
}

// Recv reads and decodes one client message.
func (s *FakeServer) Recv() any {
	raw, err := s.r.ReadMessage()
	require.NoError(s.t, err)
	val, err := packstream.NewDecoder(raw).Decode()
	require.NoError(s.t, err)
	msg, err := bolt.DecodeMessage(val)
	require.NoError(s.t, err)
	return msg
}

// Send encodes and writes one server message.
func (s *FakeServer) Send(msg packstream.Structure) {
	require.NoError(s.t, packstream.NewEncoder(s.w).Encode(msg))
	require.NoError(s.t, s.w.EndMessage())
}

// Success sends a Success response.
func (s *FakeServer) Success(md map[string]any) { s.Send(bolt.Success{Metadata: md}) }

// Failure sends a Failure response.
func (s *FakeServer) Failure(code, msg string) {
	s.Send(bolt.Failure{Metadata: map[string]any{"code": code, "message": msg}})
}

// Dial starts serverFn as a fake-server goroutine over one end of a
// net.Pipe and dials a real *bolt.Connection against the other end
// concurrently (handshake negotiates to version), returning the
// established connection and a cleanup func.
func Dial(t *testing.T, version bolt.Version, auth map[string]any, serverFn func(s *FakeServer)) (*bolt.Connection, func()) {
	t.Helper()
	clientConn, serverConn := net.Pipe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s := newFakeServer(t, serverConn)
		s.Handshake(version)
		serverFn(s)
	}()

	dialDone := make(chan struct{})
	var conn *bolt.Connection
	var dialErr error
	go func() {
		defer close(dialDone)
		conn, dialErr = bolt.DialConn(context.Background(), clientConn, bolt.DialConfig{
			UserAgent: "bolttest/1.0",
			Auth:      auth,
			Timeout:   time.Second,
		})
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

// HelloLogon drains the initial Hello (and, on Bolt >= 5.1, the following
// Logon) and answers both with Success — the handshake every test's
// serverFn needs before it can get to the interesting part.
func HelloLogon(s *FakeServer, version bolt.Version) {
	hello := s.Recv()
	_ = hello
	s.Success(nil)
	if version.AtLeast51() {
		s.Recv() // Logon
		s.Success(nil)
	}
}
