package packstream

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Decoder decodes a single PackStream value from an in-memory buffer — the
// bytes of one already-reassembled Bolt message, handed to it by
// framing.Reader.ReadMessage. This mirrors the teacher's encoding.Decoder
// (a thin wrapper reading from a *bytes.Buffer), but is driven per-message
// rather than per-chunk, and a truncated container inside that single
// message reports DecodeError (the spec's "IncompleteStructure") instead
// of silently returning a partial value.
type Decoder struct {
	buf *bytes.Reader
}

// NewDecoder wraps the bytes of one complete message.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{buf: bytes.NewReader(data)}
}

// Decode reads exactly one top-level value. For a Bolt message this is
// always a Structure (request/response are each a single structure), but
// Decode itself is general over the whole Value model so it can also be
// used to decode PackStream-encoded values nested in other contexts (e.g.
// RECORD field values, which recurse through the same entry point).
func (d *Decoder) Decode() (any, error) {
	return d.decodeValue("top-level value")
}

// Remaining reports whether unconsumed bytes remain after Decode — a
// non-empty remainder after decoding one message's structure indicates a
// framing or encoding bug upstream.
func (d *Decoder) Remaining() int { return d.buf.Len() }

func (d *Decoder) decodeValue(context string) (any, error) {
	marker, err := d.buf.ReadByte()
	if err != nil {
		return nil, errIncompleteStructure(context, err)
	}

	switch {
	case marker == NullMarker:
		return nil, nil
	case marker == TrueMarker:
		return true, nil
	case marker == FalseMarker:
		return false, nil

	case marker <= 0x7F:
		// TINY_INT positive range.
		return int64(int8(marker)), nil
	case marker >= 0xF0:
		// TINY_INT negative range (-16..-1).
		return int64(int8(marker)), nil

	case marker == Int8Marker:
		return d.readInt8(context)
	case marker == Int16Marker:
		return d.readInt16(context)
	case marker == Int32Marker:
		return d.readInt32(context)
	case marker == Int64Marker:
		return d.readInt64(context)

	case marker == FloatMarker:
		var out float64
		if err := binary.Read(d.buf, binary.BigEndian, &out); err != nil {
			return nil, errIncompleteStructure(context+" float", err)
		}
		return out, nil

	case marker >= TinyStringMarker && marker <= TinyStringMarker+0x0F:
		return d.readString(context, int(marker-TinyStringMarker))
	case marker == String8Marker:
		n, err := d.readUint8(context)
		if err != nil {
			return nil, err
		}
		return d.readString(context, int(n))
	case marker == String16Marker:
		n, err := d.readUint16(context)
		if err != nil {
			return nil, err
		}
		return d.readString(context, int(n))
	case marker == String32Marker:
		n, err := d.readUint32(context)
		if err != nil {
			return nil, err
		}
		return d.readString(context, int(n))

	case marker == Bytes8Marker:
		n, err := d.readUint8(context)
		if err != nil {
			return nil, err
		}
		return d.readBytes(context, int(n))
	case marker == Bytes16Marker:
		n, err := d.readUint16(context)
		if err != nil {
			return nil, err
		}
		return d.readBytes(context, int(n))
	case marker == Bytes32Marker:
		n, err := d.readUint32(context)
		if err != nil {
			return nil, err
		}
		return d.readBytes(context, int(n))

	case marker >= TinyListMarker && marker <= TinyListMarker+0x0F:
		return d.decodeList(context, int(marker-TinyListMarker))
	case marker == List8Marker:
		n, err := d.readUint8(context)
		if err != nil {
			return nil, err
		}
		return d.decodeList(context, int(n))
	case marker == List16Marker:
		n, err := d.readUint16(context)
		if err != nil {
			return nil, err
		}
		return d.decodeList(context, int(n))
	case marker == List32Marker:
		n, err := d.readUint32(context)
		if err != nil {
			return nil, err
		}
		return d.decodeList(context, int(n))

	case marker >= TinyMapMarker && marker <= TinyMapMarker+0x0F:
		return d.decodeMap(context, int(marker-TinyMapMarker))
	case marker == Map8Marker:
		n, err := d.readUint8(context)
		if err != nil {
			return nil, err
		}
		return d.decodeMap(context, int(n))
	case marker == Map16Marker:
		n, err := d.readUint16(context)
		if err != nil {
			return nil, err
		}
		return d.decodeMap(context, int(n))
	case marker == Map32Marker:
		n, err := d.readUint32(context)
		if err != nil {
			return nil, err
		}
		return d.decodeMap(context, int(n))

	case marker >= TinyStructMarker && marker <= TinyStructMarker+0x0F:
		return d.decodeStruct(context, int(marker-TinyStructMarker))
	case marker == Struct8Marker:
		n, err := d.readUint8(context)
		if err != nil {
			return nil, err
		}
		return d.decodeStruct(context, int(n))
	case marker == Struct16Marker:
		n, err := d.readUint16(context)
		if err != nil {
			return nil, err
		}
		return d.decodeStruct(context, int(n))

	default:
		return nil, errUnrecognizedMarker(marker)
	}
}

func (d *Decoder) readUint8(context string) (uint8, error) {
	var out uint8
	if err := binary.Read(d.buf, binary.BigEndian, &out); err != nil {
		return 0, errIncompleteStructure(context+" size", err)
	}
	return out, nil
}

func (d *Decoder) readUint16(context string) (uint16, error) {
	var out uint16
	if err := binary.Read(d.buf, binary.BigEndian, &out); err != nil {
		return 0, errIncompleteStructure(context+" size", err)
	}
	return out, nil
}

func (d *Decoder) readUint32(context string) (uint32, error) {
	var out uint32
	if err := binary.Read(d.buf, binary.BigEndian, &out); err != nil {
		return 0, errIncompleteStructure(context+" size", err)
	}
	return out, nil
}

func (d *Decoder) readInt8(context string) (any, error) {
	var out int8
	if err := binary.Read(d.buf, binary.BigEndian, &out); err != nil {
		return nil, errIncompleteStructure(context+" int8", err)
	}
	return int64(out), nil
}

func (d *Decoder) readInt16(context string) (any, error) {
	var out int16
	if err := binary.Read(d.buf, binary.BigEndian, &out); err != nil {
		return nil, errIncompleteStructure(context+" int16", err)
	}
	return int64(out), nil
}

func (d *Decoder) readInt32(context string) (any, error) {
	var out int32
	if err := binary.Read(d.buf, binary.BigEndian, &out); err != nil {
		return nil, errIncompleteStructure(context+" int32", err)
	}
	return int64(out), nil
}

func (d *Decoder) readInt64(context string) (any, error) {
	var out int64
	if err := binary.Read(d.buf, binary.BigEndian, &out); err != nil {
		return nil, errIncompleteStructure(context+" int64", err)
	}
	return out, nil
}

func (d *Decoder) readString(context string, n int) (string, error) {
	if n == 0 {
		return "", nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.buf, b); err != nil {
		return "", errIncompleteStructure(context+" string", err)
	}
	return string(b), nil
}

func (d *Decoder) readBytes(context string, n int) ([]byte, error) {
	b := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(d.buf, b); err != nil {
			return nil, errIncompleteStructure(context+" bytes", err)
		}
	}
	return b, nil
}

func (d *Decoder) decodeList(context string, n int) ([]any, error) {
	list := make([]any, n)
	for i := 0; i < n; i++ {
		v, err := d.decodeValue(fmt.Sprintf("%s[%d]", context, i))
		if err != nil {
			return nil, err
		}
		list[i] = v
	}
	return list, nil
}

func (d *Decoder) decodeMap(context string, n int) (map[string]any, error) {
	m := make(map[string]any, n)
	for i := 0; i < n; i++ {
		keyVal, err := d.decodeValue(context + " map key")
		if err != nil {
			return nil, err
		}
		key, ok := keyVal.(string)
		if !ok {
			return nil, errUnexpectedType(context+" map key", "string", keyVal)
		}
		if _, exists := m[key]; exists {
			return nil, errDuplicateMapKey(key)
		}
		val, err := d.decodeValue(context + " map[" + key + "]")
		if err != nil {
			return nil, err
		}
		m[key] = val
	}
	return m, nil
}

func (d *Decoder) decodeStruct(context string, fieldCount int) (any, error) {
	tag, err := d.buf.ReadByte()
	if err != nil {
		return nil, errIncompleteStructure(context+" structure tag", err)
	}

	fields := make([]any, fieldCount)
	for i := 0; i < fieldCount; i++ {
		v, err := d.decodeValue(fmt.Sprintf("%s struct(0x%02x)[%d]", context, tag, i))
		if err != nil {
			return nil, err
		}
		fields[i] = v
	}

	switch tag {
	case TagNode:
		return decodeNode(fields)
	case TagRelationship:
		return decodeRelationship(fields)
	case TagUnboundRelationship:
		return decodeUnboundRelationship(fields)
	case TagPath:
		return decodePath(fields)
	case TagPoint2D:
		return decodePoint2D(fields)
	case TagPoint3D:
		return decodePoint3D(fields)
	case TagDate:
		return decodeDate(fields)
	case TagTime:
		return decodeTime(fields)
	case TagLocalTime:
		return decodeLocalTime(fields)
	case TagLocalDateTime:
		return decodeLocalDateTime(fields)
	case TagDateTimeLegacy, TagDateTimeUTC:
		return decodeDateTime(fields, tag == TagDateTimeUTC)
	case TagDateTimeZoneIDLegacy, TagDateTimeZoneIDUTC:
		return decodeDateTimeZoneID(fields, tag == TagDateTimeZoneIDUTC)
	case TagDuration:
		return decodeDuration(fields)
	default:
		return RawStructure{Sig: tag, Values: fields}, nil
	}
}
