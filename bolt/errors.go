package bolt

import (
	"fmt"

	boltErrors "github.com/boltgraph/driver/errors"
)

func errUnexpectedMessageShape(v any) error {
	return boltErrors.Classify(fmt.Errorf("unexpected message shape: %#v", v), boltErrors.KindProtocol)
}

func errUnrecognizedMessageTag(tag byte) error {
	return boltErrors.Classify(fmt.Errorf("unrecognized message tag 0x%02x", tag), boltErrors.KindProtocol)
}
