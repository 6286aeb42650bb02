package pool

import (
	"context"

	commonspool "github.com/jolestar/go-commons-pool/v2"

	"github.com/boltgraph/driver/bolt"
)

// connFactory implements commonspool.PooledObjectFactory over
// *bolt.Connection: MakeObject dials and authenticates a fresh session,
// DestroyObject closes the socket, and ValidateObject/PassivateObject
// check the session state before a connection is handed back out or
// returned to idle, sending RESET only to a FAILED session — the
// acquire-time check and release-time FAILED recovery, both expressed as
// pool hooks instead of bespoke pool bookkeeping.
type connFactory struct {
	dial bolt.DialConfig
}

// MakeObject dials a new connection, completing handshake and auth.
func (f *connFactory) MakeObject(ctx context.Context) (*commonspool.PooledObject, error) {
	conn, err := bolt.Dial(ctx, f.dial)
	if err != nil {
		return nil, err
	}
	return commonspool.NewPooledObject(conn), nil
}

// DestroyObject closes the underlying socket.
func (f *connFactory) DestroyObject(ctx context.Context, object *commonspool.PooledObject) error {
	conn := object.Object.(*bolt.Connection)
	return conn.Close()
}

// ValidateObject is the acquire-time check, decided from the session state
// alone: READY/TX_READY pass without any round trip, a FAILED session is
// sent one RESET and passes if it succeeds, and any other state fails so
// the pool destroys it instead. How long the connection sat idle is not
// consulted, and no RESET is sent to a READY connection.
func (f *connFactory) ValidateObject(ctx context.Context, object *commonspool.PooledObject) bool {
	conn := object.Object.(*bolt.Connection)
	switch conn.State() {
	case bolt.StateReady, bolt.StateTxReady:
		return true
	case bolt.StateFailed:
		return conn.Reset(ctx) == nil
	default:
		return false
	}
}

// ActivateObject is a no-op: a connection validated by ValidateObject (or
// freshly made by MakeObject) is already READY.
func (f *connFactory) ActivateObject(ctx context.Context, object *commonspool.PooledObject) error {
	return nil
}

// PassivateObject runs on release (ReturnObject), before the connection
// rejoins the idle deque: a FAILED session is given one RESET chance to
// recover; returning an error here tells the pool to destroy the object
// instead of pooling it, matching the spec's "if FAILED, attempt RESET —
// on success push; on failure mark DEFUNCT and drop" release rule.
func (f *connFactory) PassivateObject(ctx context.Context, object *commonspool.PooledObject) error {
	conn := object.Object.(*bolt.Connection)
	switch conn.State() {
	case bolt.StateReady, bolt.StateTxReady:
		return nil
	case bolt.StateFailed:
		return conn.Reset(ctx)
	default:
		return errDefunctOnRelease()
	}
}

func errDefunctOnRelease() error { return defunctOnReleaseError{} }

type defunctOnReleaseError struct{}

func (defunctOnReleaseError) Error() string { return "connection is DEFUNCT, cannot be pooled" }
