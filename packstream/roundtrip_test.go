package packstream

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, v any) any {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(v))
	got, err := NewDecoder(buf.Bytes()).Decode()
	require.NoError(t, err)
	return got
}

func TestRoundTrip_Scalars(t *testing.T) {
	assert.Nil(t, roundTrip(t, nil))
	assert.Equal(t, true, roundTrip(t, true))
	assert.Equal(t, false, roundTrip(t, false))
	assert.Equal(t, 3.14, roundTrip(t, 3.14))
	assert.Equal(t, "", roundTrip(t, ""))
	assert.Equal(t, "hello, bolt", roundTrip(t, "hello, bolt"))
}

func TestRoundTrip_IntegerWidths(t *testing.T) {
	cases := []int64{
		0, 1, -1, 16, -16, -17, 127, 128, -128, -129,
		32767, 32768, -32768, -32769,
		2147483647, 2147483648, -2147483648, -2147483649,
		9223372036854775807, -9223372036854775808,
	}
	for _, c := range cases {
		assert.Equal(t, c, roundTrip(t, c), "value %d", c)
	}
}

func TestEncodeInt_PicksSmallestMarker(t *testing.T) {
	cases := []struct {
		val    int64
		marker byte
	}{
		{0, 0x00},
		{127, 0x7F},
		{-16, 0xF0},
		{-17, Int8Marker},
		{128, Int16Marker},
		{-129, Int16Marker},
		{32768, Int32Marker},
		{2147483648, Int64Marker},
	}
	for _, c := range cases {
		var buf bytes.Buffer
		require.NoError(t, NewEncoder(&buf).Encode(c.val))
		assert.Equal(t, c.marker, buf.Bytes()[0], "value %d", c.val)
	}
}

func TestRoundTrip_Strings(t *testing.T) {
	for _, n := range []int{0, 1, 15, 16, 255, 256, 70000} {
		s := make([]byte, n)
		for i := range s {
			s[i] = byte('a' + i%26)
		}
		assert.Equal(t, string(s), roundTrip(t, string(s)))
	}
	// Multi-byte UTF-8 must round-trip by byte length, not rune count.
	assert.Equal(t, "héllo wörld 日本語", roundTrip(t, "héllo wörld 日本語"))
}

func TestRoundTrip_Bytes(t *testing.T) {
	b := []byte{0x00, 0x01, 0xFF, 0x10}
	got := roundTrip(t, b)
	assert.Equal(t, b, got)
}

func TestRoundTrip_List(t *testing.T) {
	list := []any{int64(1), "two", 3.0, nil, true}
	got := roundTrip(t, list)
	assert.Equal(t, list, got)
}

func TestRoundTrip_Map(t *testing.T) {
	m := map[string]any{"a": int64(1), "b": "two", "c": nil}
	got := roundTrip(t, m)
	assert.Equal(t, m, got)
}

func TestDecodeMap_RejectsDuplicateKeys(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	// Hand-construct a map with a duplicate key, bypassing Go's own
	// map[string]any (which can't hold a duplicate key): tiny-map header
	// with size 2, then "a" -> 1 twice.
	require.NoError(t, enc.writeByte(TinyMapMarker+2))
	require.NoError(t, enc.Encode("a"))
	require.NoError(t, enc.Encode(int64(1)))
	require.NoError(t, enc.Encode("a"))
	require.NoError(t, enc.Encode(int64(2)))

	_, err := NewDecoder(buf.Bytes()).Decode()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate map key")
}

func TestDecode_TruncatedContainerIsIncompleteStructure(t *testing.T) {
	// A tiny-list header claiming 3 elements but carrying none.
	_, err := NewDecoder([]byte{byte(TinyListMarker + 3)}).Decode()
	require.Error(t, err)
	var decErr *DecodeError
	assert.ErrorAs(t, err, &decErr)
}

func TestRoundTrip_Node(t *testing.T) {
	n := Node{
		ID:         42,
		Labels:     []string{"Person"},
		Properties: map[string]any{"name": "Mark"},
	}
	got := roundTrip(t, n)
	decoded, ok := got.(Node)
	require.True(t, ok)
	assert.Equal(t, n.ID, decoded.ID)
	assert.Equal(t, n.Labels, decoded.Labels)
	assert.Equal(t, n.Properties, decoded.Properties)
}

func TestRoundTrip_NodeWithElementID(t *testing.T) {
	n := Node{ID: 1, Labels: []string{"A"}, Properties: map[string]any{}, ElementID: "4:abc:1"}
	got := roundTrip(t, n).(Node)
	assert.Equal(t, "4:abc:1", got.ElementID)
}

func TestRoundTrip_Relationship(t *testing.T) {
	r := Relationship{ID: 1, StartID: 2, EndID: 3, Type: "KNOWS", Properties: map[string]any{"since": int64(2020)}}
	got := roundTrip(t, r).(Relationship)
	assert.Equal(t, r, got)
}

func TestRoundTrip_Path(t *testing.T) {
	p := Path{
		Nodes: []Node{
			{ID: 0, Labels: []string{"A"}, Properties: map[string]any{}},
			{ID: 1, Labels: []string{"B"}, Properties: map[string]any{}},
		},
		Rels:    []UnboundRelationship{{ID: 10, Type: "REL", Properties: map[string]any{}}},
		Indices: []int64{1, 1},
	}
	got := roundTrip(t, p).(Path)
	require.Len(t, got.Nodes, 2)
	require.Len(t, got.Rels, 1)
	assert.Equal(t, []int64{1, 1}, got.Indices)

	start, elements, err := got.Resolve()
	require.NoError(t, err)
	assert.Equal(t, int64(0), start.ID)
	require.Len(t, elements, 1)
	assert.True(t, elements[0].Forward)
	assert.Equal(t, int64(1), elements[0].Node.ID)
}

func TestRoundTrip_Point2D(t *testing.T) {
	p := Point2D{SRID: 4326, X: 1.5, Y: -2.5}
	got := roundTrip(t, p).(Point2D)
	assert.Equal(t, p, got)
}

func TestRoundTrip_Duration(t *testing.T) {
	d := Duration{Months: 1, Days: 2, Seconds: 3, Nanoseconds: 4}
	got := roundTrip(t, d).(Duration)
	assert.Equal(t, d, got)
}

func TestRoundTrip_DateTimeUTCFlag(t *testing.T) {
	dt := DateTime{Seconds: 100, Nanos: 1, TZOffsetSeconds: 3600, UTC: true}
	got := roundTrip(t, dt).(DateTime)
	assert.Equal(t, dt, got)

	legacy := DateTime{Seconds: 100, Nanos: 1, TZOffsetSeconds: 3600, UTC: false}
	gotLegacy := roundTrip(t, legacy).(DateTime)
	assert.Equal(t, legacy, gotLegacy)
}
