package bolt

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	boltErrors "github.com/boltgraph/driver/errors"
	"github.com/boltgraph/driver/internal/boltlog"
	"github.com/boltgraph/driver/internal/framing"
	"github.com/boltgraph/driver/packstream"
)

// State is one node of the per-connection session state machine described
// in the spec: DISCONNECTED -> NEGOTIATING -> AUTHENTICATING -> READY, then
// READY <-> STREAMING and (via BEGIN) TX_READY <-> TX_STREAMING, with
// FAILED reachable from any in-session state and recoverable only by
// Reset, and DEFUNCT terminal.
type State int

// Session states, in the order the spec's state diagram introduces them.
const (
	StateDisconnected State = iota
	StateNegotiating
	StateAuthenticating
	StateReady
	StateStreaming
	StateTxReady
	StateTxStreaming
	StateFailed
	StateInterrupted
	StateDefunct
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateNegotiating:
		return "NEGOTIATING"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateReady:
		return "READY"
	case StateStreaming:
		return "STREAMING"
	case StateTxReady:
		return "TX_READY"
	case StateTxStreaming:
		return "TX_STREAMING"
	case StateFailed:
		return "FAILED"
	case StateInterrupted:
		return "INTERRUPTED"
	case StateDefunct:
		return "DEFUNCT"
	default:
		return "UNKNOWN"
	}
}

// DialConfig configures a new Connection. TLSConfig, when non-nil, is used
// verbatim; this package never constructs TLS policy of its own (see
// SPEC_FULL.md's external-interfaces note). The façade's ParseURI builds one
// for the +s/+ssc URI schemes.
type DialConfig struct {
	Address   string
	TLSConfig *tls.Config
	UserAgent string
	Auth      map[string]any
	Timeout   time.Duration
	ChunkSize int
}

// Connection is one authenticated Bolt session over one TCP/TLS socket. It
// is not safe for concurrent use: a connection is a single ordered byte
// stream. Run, Begin, Commit, Rollback and Reset each complete their
// request/response round trip before returning; SendPull and SendDiscard
// only write the request, and Receive reads the responses that follow.
type Connection struct {
	ID      string
	conn    net.Conn
	version Version
	timeout time.Duration

	w *framing.Writer
	r *framing.Reader

	state State
	qid   int64 // -1 when no result stream is open
}

// Dial opens a TCP (or, with cfg.TLSConfig set, TLS) connection, negotiates
// a Bolt version, and authenticates — generalizing the teacher driver's
// boltConn.initialize (conn.go), which hardcoded a single proposed version
// and a single INIT message, into the version-negotiated, Hello/Logon-split
// handshake Bolt 4.x/5.x requires.
func Dial(ctx context.Context, cfg DialConfig) (*Connection, error) {
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	var (
		netConn net.Conn
		err     error
	)
	if cfg.TLSConfig != nil {
		netConn, err = tls.DialWithDialer(dialer, "tcp", cfg.Address, cfg.TLSConfig)
	} else {
		netConn, err = dialer.DialContext(ctx, "tcp", cfg.Address)
	}
	if err != nil {
		return nil, boltErrors.Classify(err, boltErrors.KindConnection)
	}
	conn, err := DialConn(ctx, netConn, cfg)
	if err != nil {
		netConn.Close()
		return nil, err
	}
	return conn, nil
}

// DialConn runs the handshake and authentication sequence over an
// already-established net.Conn, without opening one itself. Dial is a
// thin TCP/TLS-dialing wrapper around this; it is exported directly so
// that other packages' tests can drive a Connection over a net.Pipe
// without a real socket — the same spirit as the teacher driver's
// recorder.go, which let boltConn operate over any net.Conn by
// embedding one instead of a concrete *net.TCPConn.
func DialConn(ctx context.Context, netConn net.Conn, cfg DialConfig) (*Connection, error) {
	c := &Connection{
		ID:      uuid.NewString(),
		conn:    netConn,
		timeout: cfg.Timeout,
		state:   StateNegotiating,
		qid:     -1,
	}

	version, err := Negotiate(ctx, netConn, DefaultProposals, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	c.version = version
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = framing.MaxChunkSize
	}
	c.w = framing.NewWriter(netConn, chunkSize)
	c.r = framing.NewReader(netConn)
	c.state = StateAuthenticating

	if err := c.authenticate(ctx, cfg); err != nil {
		c.state = StateDefunct
		return nil, err
	}
	c.state = StateReady
	boltlog.Infof("connection %s ready on Bolt %s", c.ID, c.version)
	return c, nil
}

func (c *Connection) authenticate(ctx context.Context, cfg DialConfig) error {
	hello := Hello{UserAgent: cfg.UserAgent}
	if !c.version.AtLeast51() {
		hello.Auth = cfg.Auth
	}
	resp, err := c.roundTrip(ctx, hello)
	if err != nil {
		return err
	}
	if _, ok := resp.(Success); !ok {
		return c.authFailure(resp)
	}

	if c.version.AtLeast51() {
		resp, err := c.roundTrip(ctx, Logon{Auth: cfg.Auth})
		if err != nil {
			return err
		}
		if _, ok := resp.(Success); !ok {
			return c.authFailure(resp)
		}
	}
	return nil
}

func (c *Connection) authFailure(resp any) error {
	if f, ok := resp.(Failure); ok {
		return boltErrors.Classify(fmt.Errorf("authentication rejected: %s", f.Message()), boltErrors.KindAuth)
	}
	return boltErrors.Classify(fmt.Errorf("unexpected response during authentication: %#v", resp), boltErrors.KindAuth)
}

// State reports the connection's current session state.
func (c *Connection) State() State { return c.state }

// QID reports the query id of the currently open result stream, or -1 if
// none is open.
func (c *Connection) QID() int64 { return c.qid }

// Version reports the negotiated Bolt protocol version.
func (c *Connection) Version() Version { return c.version }

// Run sends a RUN message. extra typically carries db/bookmarks/tx_timeout
// for an auto-commit run; pass nil when running inside an already-open
// explicit transaction (BEGIN supplies those once for the whole tx).
func (c *Connection) Run(ctx context.Context, statement string, params map[string]any, extra map[string]any) (Success, error) {
	if c.state != StateReady && c.state != StateTxReady {
		return Success{}, c.errWrongState("RUN", StateReady, StateTxReady)
	}
	resp, err := c.roundTrip(ctx, Run{Statement: statement, Parameters: params, Extra: extra})
	if err != nil {
		return Success{}, err
	}
	succ, ok := resp.(Success)
	if !ok {
		return Success{}, c.handleFailureResponse(resp)
	}
	c.qid = qidFromMetadata(succ.Metadata)
	if c.state == StateReady {
		c.state = StateStreaming
	} else {
		c.state = StateTxStreaming
	}
	return succ, nil
}

// SendPull writes a PULL message requesting up to n more rows of the
// result stream identified by qid. The response — zero or more Records
// followed by exactly one terminal Success/Failure — is read back via
// Receive, since a single PULL can yield many framed messages before its
// terminal one.
func (c *Connection) SendPull(ctx context.Context, n, qid int64) error {
	if c.state != StateStreaming && c.state != StateTxStreaming {
		return c.errWrongState("PULL", StateStreaming, StateTxStreaming)
	}
	return c.send(ctx, Pull{N: n, QID: qid})
}

// SendDiscard writes a DISCARD message, same response shape as SendPull.
func (c *Connection) SendDiscard(ctx context.Context, n, qid int64) error {
	if c.state != StateStreaming && c.state != StateTxStreaming {
		return c.errWrongState("DISCARD", StateStreaming, StateTxStreaming)
	}
	return c.send(ctx, Discard{N: n, QID: qid})
}

// Receive reads the next framed message following a SendPull/SendDiscard:
// a Record (more rows follow, call Receive again), or a terminal
// Success/Failure that also drives the STREAMING -> READY/TX_READY
// transition (or FAILED, on Failure).
func (c *Connection) Receive(ctx context.Context) (any, error) {
	resp, err := c.receive(ctx)
	if err != nil {
		return nil, err
	}
	switch m := resp.(type) {
	case Record:
		return m, nil
	case Success:
		if hasMore(m.Metadata) {
			return m, nil
		}
		c.qid = -1
		if c.state == StateStreaming {
			c.state = StateReady
		} else if c.state == StateTxStreaming {
			c.state = StateTxReady
		}
		return m, nil
	default:
		return nil, c.handleFailureResponse(resp)
	}
}

// Begin opens an explicit transaction.
func (c *Connection) Begin(ctx context.Context, extra map[string]any) (Success, error) {
	if c.state != StateReady {
		return Success{}, c.errWrongState("BEGIN", StateReady)
	}
	resp, err := c.roundTrip(ctx, Begin{Extra: extra})
	if err != nil {
		return Success{}, err
	}
	succ, ok := resp.(Success)
	if !ok {
		return Success{}, c.handleFailureResponse(resp)
	}
	c.state = StateTxReady
	return succ, nil
}

// Commit commits the open explicit transaction.
func (c *Connection) Commit(ctx context.Context) (Success, error) {
	if c.state != StateTxReady {
		return Success{}, c.errWrongState("COMMIT", StateTxReady)
	}
	resp, err := c.roundTrip(ctx, Commit{})
	if err != nil {
		return Success{}, err
	}
	succ, ok := resp.(Success)
	if !ok {
		return Success{}, c.handleFailureResponse(resp)
	}
	c.state = StateReady
	return succ, nil
}

// Rollback aborts the open explicit transaction.
func (c *Connection) Rollback(ctx context.Context) (Success, error) {
	if c.state != StateTxReady && c.state != StateFailed {
		return Success{}, c.errWrongState("ROLLBACK", StateTxReady, StateFailed)
	}
	resp, err := c.roundTrip(ctx, Rollback{})
	if err != nil {
		return Success{}, err
	}
	succ, ok := resp.(Success)
	if !ok {
		return Success{}, c.handleFailureResponse(resp)
	}
	c.state = StateReady
	return succ, nil
}

// Reset asks the server to discard any open transaction or result stream
// and return the session to READY. It is the only way out of FAILED, and
// is also what the connection pool sends to validate an idle connection
// before handing it back out.
func (c *Connection) Reset(ctx context.Context) error {
	resp, err := c.roundTrip(ctx, Reset{})
	if err != nil {
		return err
	}
	if _, ok := resp.(Success); !ok {
		err := c.handleFailureResponse(resp)
		c.state = StateDefunct
		return err
	}
	c.qid = -1
	c.state = StateReady
	return nil
}

// Close sends GOODBYE (best-effort) and closes the socket.
func (c *Connection) Close() error {
	if c.state != StateDefunct {
		_ = c.send(context.Background(), Goodbye{})
	}
	c.state = StateDefunct
	return c.conn.Close()
}

func (c *Connection) handleFailureResponse(resp any) error {
	if f, ok := resp.(Failure); ok {
		c.state = StateFailed
		return boltErrors.NewNeo4j(f.Code(), f.Message())
	}
	if _, ok := resp.(Ignored); ok {
		return boltErrors.Classify(fmt.Errorf("request ignored: session is FAILED"), boltErrors.KindNeo4j)
	}
	c.state = StateDefunct
	return boltErrors.Classify(fmt.Errorf("unexpected response: %#v", resp), boltErrors.KindProtocol)
}

func (c *Connection) errWrongState(op string, want ...State) error {
	return boltErrors.Classify(
		fmt.Errorf("cannot send %s: connection is in state %s, expected one of %v", op, c.state, want),
		boltErrors.KindProtocol,
	)
}

func (c *Connection) roundTrip(ctx context.Context, msg packstream.Structure) (any, error) {
	if err := c.send(ctx, msg); err != nil {
		return nil, err
	}
	return c.receive(ctx)
}

func (c *Connection) send(ctx context.Context, msg packstream.Structure) error {
	c.applyDeadline(ctx)
	err := c.runCancellable(ctx, func() error {
		enc := packstream.NewEncoder(c.w)
		if err := enc.Encode(msg); err != nil {
			return boltErrors.Classify(err, boltErrors.KindConnection)
		}
		return c.w.EndMessage()
	})
	if err != nil {
		c.state = StateDefunct
		return err
	}
	return nil
}

func (c *Connection) receive(ctx context.Context) (any, error) {
	c.applyDeadline(ctx)
	var raw []byte
	err := c.runCancellable(ctx, func() error {
		var err error
		raw, err = c.r.ReadMessage()
		return err
	})
	if err != nil {
		c.state = StateDefunct
		return nil, err
	}
	val, err := packstream.NewDecoder(raw).Decode()
	if err != nil {
		c.state = StateDefunct
		return nil, boltErrors.Classify(err, boltErrors.KindProtocol)
	}
	msg, err := DecodeMessage(val)
	if err != nil {
		c.state = StateDefunct
		return nil, err
	}
	return msg, nil
}

func (c *Connection) applyDeadline(ctx context.Context) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
		return
	}
	if c.timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	}
}

// runCancellable races op against ctx's Done channel, on top of whatever
// socket deadline applyDeadline already set. A deadline alone only aborts
// a blocked read/write once it elapses; a context cancelled without a
// deadline (context.WithCancel) would otherwise block the socket call
// forever. If ctx is Done first, the underlying socket is closed to
// unblock op's goroutine, and a KindCancelled error is returned instead of
// whatever error the forced close produced.
func (c *Connection) runCancellable(ctx context.Context, op func() error) error {
	if ctx.Done() == nil {
		return op()
	}
	done := make(chan error, 1)
	go func() { done <- op() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = c.conn.Close()
		<-done
		return boltErrors.Classify(ctx.Err(), boltErrors.KindCancelled)
	}
}

func qidFromMetadata(md map[string]any) int64 {
	if v, ok := md["qid"]; ok {
		if n, ok := v.(int64); ok {
			return n
		}
	}
	return -1
}

func hasMore(md map[string]any) bool {
	v, ok := md["has_more"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}
