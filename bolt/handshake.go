package bolt

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	boltErrors "github.com/boltgraph/driver/errors"
	"github.com/boltgraph/driver/internal/boltlog"
)

// magicPreamble is the four bytes that open every Bolt connection, fixed
// by the protocol and unchanged across versions. Grounded on the teacher
// driver's magicPreamble constant (conn.go / driver.go), which hardcoded a
// single proposed version; here DefaultProposals generalizes that to the
// spec's four-candidate negotiation (component C4).
var magicPreamble = [4]byte{0x60, 0x60, 0xb0, 0x17}

var noVersionSupported = [4]byte{0x00, 0x00, 0x00, 0x00}

// Version is a Bolt protocol version (e.g. 5.4).
type Version struct {
	Major byte
	Minor byte
}

func (v Version) String() string { return fmt.Sprintf("%d.%d", v.Major, v.Minor) }

// encode renders v as the 4-byte big-endian proposal Bolt puts on the
// wire: [range, 0, minor, major]. range is always 0 here — the driver
// proposes four discrete versions rather than a contiguous range.
func (v Version) encode() [4]byte {
	return [4]byte{0x00, 0x00, v.Minor, v.Major}
}

func decodeVersion(b [4]byte) Version {
	return Version{Major: b[3], Minor: b[2]}
}

// AtLeast51 reports whether v is new enough to require the Hello/Logon
// split (auth moves out of Hello from 5.1 onward).
func (v Version) AtLeast51() bool {
	if v.Major > 5 {
		return true
	}
	return v.Major == 5 && v.Minor >= 1
}

// DefaultProposals is the four versions this driver offers, newest first,
// matching the spec's supported-version set (4.x and 5.x).
var DefaultProposals = [4]Version{
	{Major: 5, Minor: 4},
	{Major: 5, Minor: 0},
	{Major: 4, Minor: 4},
	{Major: 4, Minor: 2},
}

// Negotiate performs the Bolt handshake over conn: write the magic
// preamble and four version proposals, then read back the server's
// chosen version. Returns a KindProtocol error if the server rejects
// every proposal (all-zero response), and a KindConnection error if the
// write fails or the reply is truncated.
func Negotiate(ctx context.Context, conn net.Conn, proposals [4]Version, timeout time.Duration) (Version, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}
	defer conn.SetDeadline(time.Time{})

	var out bytes.Buffer
	out.Write(magicPreamble[:])
	for _, v := range proposals {
		enc := v.encode()
		out.Write(enc[:])
	}
	if _, err := conn.Write(out.Bytes()); err != nil {
		return Version{}, boltErrors.Classify(err, boltErrors.KindConnection)
	}
	boltlog.Tracef("handshake out:\n%s", boltlog.SprintByteHex(out.Bytes()))

	var resp [4]byte
	if _, err := readFull(conn, resp[:]); err != nil {
		return Version{}, boltErrors.Classify(err, boltErrors.KindConnection)
	}
	boltlog.Tracef("handshake in:\n%s", boltlog.SprintByteHex(resp[:]))

	if resp == noVersionSupported {
		return Version{}, boltErrors.Classify(
			fmt.Errorf("server did not accept any of the proposed Bolt versions %v", proposals),
			boltErrors.KindProtocol,
		)
	}
	return decodeVersion(resp), nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
