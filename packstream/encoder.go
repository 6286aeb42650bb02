package packstream

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
)

// Encoder writes Values as PackStream bytes to an underlying io.Writer —
// typically a *framing.Writer, so that a single Encode call transparently
// rides the chunked framing underneath. Mirrors the teacher's
// encoding.Encoder shape (wrap a writer, expose Encode) but fixes its
// marker-selection bugs and adds Bytes support.
type Encoder struct {
	w io.Writer
}

// NewEncoder wraps w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes v's PackStream encoding. Supported Go types: nil, bool,
// every signed/unsigned integer width, float32/float64, string, []byte,
// []any, map[string]any, and anything implementing Structure.
func (e *Encoder) Encode(v any) error {
	switch val := v.(type) {
	case nil:
		return e.writeByte(NullMarker)
	case bool:
		return e.encodeBool(val)
	case int:
		return e.encodeInt(int64(val))
	case int8:
		return e.encodeInt(int64(val))
	case int16:
		return e.encodeInt(int64(val))
	case int32:
		return e.encodeInt(int64(val))
	case int64:
		return e.encodeInt(val)
	case uint:
		return e.encodeUint64(uint64(val))
	case uint8:
		return e.encodeInt(int64(val))
	case uint16:
		return e.encodeInt(int64(val))
	case uint32:
		return e.encodeInt(int64(val))
	case uint64:
		return e.encodeUint64(val)
	case float32:
		return e.encodeFloat(float64(val))
	case float64:
		return e.encodeFloat(val)
	case string:
		return e.encodeString(val)
	case []byte:
		return e.encodeBytes(val)
	case []any:
		return e.encodeList(val)
	case map[string]any:
		return e.encodeMap(val)
	case Structure:
		return e.encodeStructure(val)
	default:
		return &DecodeError{Msg: fmt.Sprintf("unsupported type for PackStream encoding: %T", v)}
	}
}

func (e *Encoder) writeByte(b byte) error {
	_, err := e.w.Write([]byte{b})
	return err
}

func (e *Encoder) write(v any) error {
	return binary.Write(e.w, binary.BigEndian, v)
}

func (e *Encoder) encodeBool(val bool) error {
	if val {
		return e.writeByte(TrueMarker)
	}
	return e.writeByte(FalseMarker)
}

func (e *Encoder) encodeUint64(val uint64) error {
	if val > math.MaxInt64 {
		return &DecodeError{Msg: fmt.Sprintf("integer too large for Bolt's signed 64-bit wire type: %d", val)}
	}
	return e.encodeInt(int64(val))
}

// encodeInt picks the smallest marker that fits val: tiny range first,
// then 8/16/32/64-bit, per the spec's encoding policy.
func (e *Encoder) encodeInt(val int64) error {
	switch {
	case val >= -16 && val <= 127:
		return e.write(int8(val))
	case val >= math.MinInt8 && val <= math.MaxInt8:
		if err := e.writeByte(Int8Marker); err != nil {
			return err
		}
		return e.write(int8(val))
	case val >= math.MinInt16 && val <= math.MaxInt16:
		if err := e.writeByte(Int16Marker); err != nil {
			return err
		}
		return e.write(int16(val))
	case val >= math.MinInt32 && val <= math.MaxInt32:
		if err := e.writeByte(Int32Marker); err != nil {
			return err
		}
		return e.write(int32(val))
	default:
		if err := e.writeByte(Int64Marker); err != nil {
			return err
		}
		return e.write(val)
	}
}

func (e *Encoder) encodeFloat(val float64) error {
	if err := e.writeByte(FloatMarker); err != nil {
		return err
	}
	return e.write(val)
}

func (e *Encoder) encodeString(val string) error {
	b := []byte(val)
	n := len(b)
	switch {
	case n <= 15:
		if err := e.writeByte(byte(TinyStringMarker + n)); err != nil {
			return err
		}
	case n <= math.MaxUint8:
		if err := e.writeByte(String8Marker); err != nil {
			return err
		}
		if err := e.write(uint8(n)); err != nil {
			return err
		}
	case n <= math.MaxUint16:
		if err := e.writeByte(String16Marker); err != nil {
			return err
		}
		if err := e.write(uint16(n)); err != nil {
			return err
		}
	default:
		if err := e.writeByte(String32Marker); err != nil {
			return err
		}
		if err := e.write(uint32(n)); err != nil {
			return err
		}
	}
	_, err := e.w.Write(b)
	return err
}

func (e *Encoder) encodeBytes(val []byte) error {
	n := len(val)
	switch {
	case n <= math.MaxUint8:
		if err := e.writeByte(Bytes8Marker); err != nil {
			return err
		}
		if err := e.write(uint8(n)); err != nil {
			return err
		}
	case n <= math.MaxUint16:
		if err := e.writeByte(Bytes16Marker); err != nil {
			return err
		}
		if err := e.write(uint16(n)); err != nil {
			return err
		}
	default:
		if err := e.writeByte(Bytes32Marker); err != nil {
			return err
		}
		if err := e.write(uint32(n)); err != nil {
			return err
		}
	}
	_, err := e.w.Write(val)
	return err
}

func (e *Encoder) encodeList(val []any) error {
	n := len(val)
	if err := e.writeContainerHeader(n, TinyListMarker, List8Marker, List16Marker, List32Marker); err != nil {
		return err
	}
	for _, item := range val {
		if err := e.Encode(item); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeMap(val map[string]any) error {
	n := len(val)
	if err := e.writeContainerHeader(n, TinyMapMarker, Map8Marker, Map16Marker, Map32Marker); err != nil {
		return err
	}
	// Map key order is irrelevant per the spec, but a stable order keeps
	// wire traces and golden fixtures reproducible.
	keys := make([]string, 0, n)
	for k := range val {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := e.encodeString(k); err != nil {
			return err
		}
		if err := e.Encode(val[k]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeStructure(val Structure) error {
	fields := val.Fields()
	n := len(fields)
	if err := e.writeContainerHeader(n, TinyStructMarker, Struct8Marker, Struct16Marker, 0); err != nil {
		return err
	}
	if err := e.writeByte(val.Tag()); err != nil {
		return err
	}
	for _, f := range fields {
		if err := e.Encode(f); err != nil {
			return err
		}
	}
	return nil
}

// writeContainerHeader emits the size marker for a list/map/structure.
// marker32 == 0 signals "no 32-bit form" (structures cap at 16 bits).
func (e *Encoder) writeContainerHeader(n int, tinyBase, marker8, marker16, marker32 byte) error {
	switch {
	case n <= 15:
		return e.writeByte(tinyBase + byte(n))
	case n <= math.MaxUint8:
		if err := e.writeByte(marker8); err != nil {
			return err
		}
		return e.write(uint8(n))
	case n <= math.MaxUint16:
		if err := e.writeByte(marker16); err != nil {
			return err
		}
		return e.write(uint16(n))
	default:
		if marker32 == 0 {
			return &DecodeError{Msg: fmt.Sprintf("structure has too many fields to encode: %d", n)}
		}
		if err := e.writeByte(marker32); err != nil {
			return err
		}
		return e.write(uint32(n))
	}
}
