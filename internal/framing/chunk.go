// Package framing implements the Bolt chunked-transfer framing that every
// message rides on: a message is split into chunks of at most 65535 bytes,
// each prefixed by a big-endian uint16 length, and terminated by a
// zero-length chunk. This is lifted out of the teacher driver's
// encoding.Encoder (which interleaved chunk-splitting with PackStream
// encoding in its Write/writeChunk methods) into its own component,
// matching the spec's C1/C2 split, and generalizes the original Rust
// prototype's send/recv chunking (original_source/src/connection.rs).
package framing

import (
	"encoding/binary"
	"io"

	boltErrors "github.com/boltgraph/driver/errors"
	"github.com/boltgraph/driver/internal/boltlog"
)

// MaxChunkSize is the largest payload a single chunk may carry; the
// 16-bit length prefix caps it at 65535.
const MaxChunkSize = 65535

// endMarker is the zero-length chunk that terminates a message.
var endMarker = [2]byte{0x00, 0x00}

// Writer buffers a single message's bytes, writing out a chunk each time a
// full chunk has accumulated and the remainder on EndMessage. It is not
// safe for concurrent use — a Bolt connection is a single
// ordered byte stream per the session state machine's scheduling model.
type Writer struct {
	w   io.Writer
	buf []byte
}

// NewWriter wraps w, using chunkSize as the maximum chunk payload size (callers
// typically pass MaxChunkSize; a smaller size is occasionally useful in tests
// to exercise multi-chunk messages without 64KB fixtures).
func NewWriter(w io.Writer, chunkSize int) *Writer {
	if chunkSize <= 0 || chunkSize > MaxChunkSize {
		chunkSize = MaxChunkSize
	}
	return &Writer{w: w, buf: make([]byte, 0, chunkSize)}
}

// Write implements io.Writer, buffering p and flushing full chunks as the
// buffer fills. It never writes the terminating zero chunk — call
// EndMessage for that once the whole message has been written.
func (w *Writer) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		room := cap(w.buf) - len(w.buf)
		n := len(p)
		if n > room {
			n = room
		}
		w.buf = append(w.buf, p[:n]...)
		p = p[n:]
		total += n
		if len(w.buf) == cap(w.buf) {
			if err := w.flushChunk(); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

func (w *Writer) flushChunk() error {
	if len(w.buf) == 0 {
		return nil
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(w.buf)))
	if _, err := w.w.Write(lenBuf[:]); err != nil {
		return boltErrors.Classify(err, boltErrors.KindConnection)
	}
	if boltlog.Enabled(boltlog.TraceLevel) {
		boltlog.Tracef("chunk out (%d bytes):\n%s", len(w.buf), boltlog.SprintByteHex(w.buf))
	}
	if _, err := w.w.Write(w.buf); err != nil {
		return boltErrors.Classify(err, boltErrors.KindConnection)
	}
	w.buf = w.buf[:0]
	return nil
}

// EndMessage flushes any buffered bytes as a final chunk and writes the
// terminating zero-length chunk, completing one Bolt message on the wire.
func (w *Writer) EndMessage() error {
	if err := w.flushChunk(); err != nil {
		return err
	}
	if _, err := w.w.Write(endMarker[:]); err != nil {
		return boltErrors.Classify(err, boltErrors.KindConnection)
	}
	return nil
}

// Reader reassembles one complete Bolt message from its wire chunks. A
// partial chunk (EOF mid-header or mid-payload) is a protocol violation —
// the spec requires the connection become DEFUNCT in that case, which is
// why ReadMessage returns a KindProtocol error rather than propagating the
// raw io.EOF.
type Reader struct {
	r io.Reader
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadMessage reads chunks from the stream until the terminating
// zero-length chunk, returning the concatenated message bytes.
func (r *Reader) ReadMessage() ([]byte, error) {
	var message []byte
	var lenBuf [2]byte
	for {
		if _, err := io.ReadFull(r.r, lenBuf[:]); err != nil {
			return nil, boltErrors.Classify(err, boltErrors.KindProtocol)
		}
		chunkLen := binary.BigEndian.Uint16(lenBuf[:])
		if chunkLen == 0 {
			if boltlog.Enabled(boltlog.TraceLevel) {
				boltlog.Tracef("message in (%d bytes):\n%s", len(message), boltlog.SprintByteHex(message))
			}
			return message, nil
		}
		chunk := make([]byte, chunkLen)
		if _, err := io.ReadFull(r.r, chunk); err != nil {
			return nil, boltErrors.Classify(err, boltErrors.KindProtocol)
		}
		message = append(message, chunk...)
	}
}
