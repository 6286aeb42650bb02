package framing

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	boltErrors "github.com/boltgraph/driver/errors"
)

func TestWriter_SingleChunkMessage(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, MaxChunkSize)

	payload := []byte("hello bolt")
	n, err := w.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	require.NoError(t, w.EndMessage())

	wire := buf.Bytes()
	require.Len(t, wire, 2+len(payload)+2)
	assert.Equal(t, uint16(len(payload)), binary.BigEndian.Uint16(wire[0:2]))
	assert.Equal(t, payload, wire[2:2+len(payload)])
	assert.Equal(t, []byte{0x00, 0x00}, wire[2+len(payload):])
}

func TestWriter_SplitsOversizedMessageIntoMultipleChunks(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 4) // force small chunks

	payload := []byte("0123456789") // 10 bytes -> 3 chunks of size 4,4,2
	_, err := w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.EndMessage())

	r := NewReader(&buf)
	msg, err := r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, payload, msg)
}

func TestReader_ReassemblesMultiChunkMessage(t *testing.T) {
	var buf bytes.Buffer
	writeChunk := func(b []byte) {
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(b)))
		buf.Write(lenBuf[:])
		buf.Write(b)
	}
	writeChunk([]byte("abc"))
	writeChunk([]byte("defgh"))
	buf.Write([]byte{0x00, 0x00})

	r := NewReader(&buf)
	msg, err := r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdefgh"), msg)
}

func TestReader_ReadsSuccessiveMessagesFromOneStream(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, MaxChunkSize)
	require.NoError(t, firstErr(w.Write([]byte("one"))))
	require.NoError(t, w.EndMessage())
	require.NoError(t, firstErr(w.Write([]byte("two"))))
	require.NoError(t, w.EndMessage())

	r := NewReader(&buf)
	m1, err := r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), m1)

	m2, err := r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), m2)
}

func TestReader_TruncatedHeaderIsProtocolError(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x00})
	r := NewReader(buf)
	_, err := r.ReadMessage()
	require.Error(t, err)
	assert.Equal(t, boltErrors.KindProtocol, boltErrors.KindOf(err))
}

func TestReader_TruncatedPayloadIsProtocolError(t *testing.T) {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], 10)
	buf := bytes.NewBuffer(append(lenBuf[:], []byte("short")...))
	r := NewReader(buf)
	_, err := r.ReadMessage()
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF) // wrapped, not raw EOF
	assert.Equal(t, boltErrors.KindProtocol, boltErrors.KindOf(err))
}

func TestWriter_EmptyMessageIsJustEndMarker(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, MaxChunkSize)
	require.NoError(t, w.EndMessage())
	assert.Equal(t, []byte{0x00, 0x00}, buf.Bytes())
}

func firstErr(_ int, err error) error { return err }
