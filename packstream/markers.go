// Package packstream implements the PackStream value codec (component C2):
// marker-prefixed encoding of the tagged-sum Value model described in the
// spec's data model — Null, Boolean, Integer, Float, Bytes, String, List,
// Map, and Structure. It is the direct generalization of the teacher
// driver's encoding.Encoder/Decoder, with the marker-selection and
// container-size bugs present there fixed, BYTES support
// added, and structure decoding widened to the full set of graph/spatial/
// temporal tags from the spec's data model instead of just Node/Relationship/
// Path/UnboundRelationship.
package packstream

// Marker bytes, following the teacher's encoding package naming
// (TrueMarker, ...; its NilMarker is NullMarker here) and matching its
// constant values exactly — these are fixed by the Bolt/PackStream wire
// format, not a driver choice.
const (
	NullMarker  = 0xC0
	TrueMarker  = 0xC3
	FalseMarker = 0xC2

	Int8Marker  = 0xC8
	Int16Marker = 0xC9
	Int32Marker = 0xCA
	Int64Marker = 0xCB

	// TinyIntMinMarker/TinyIntMaxMarker bound the single-byte signed
	// range (-16..127) that packs directly into the marker byte.
	TinyIntMinMarker = 0xF0 // int8(-16) as an unsigned marker byte
	TinyIntMaxMarker = 0x7F

	FloatMarker = 0xC1

	TinyStringMarker = 0x80
	String8Marker    = 0xD0
	String16Marker   = 0xD1
	String32Marker   = 0xD2

	TinyListMarker = 0x90
	List8Marker    = 0xD4
	List16Marker   = 0xD5
	List32Marker   = 0xD6

	TinyMapMarker = 0xA0
	Map8Marker    = 0xD8
	Map16Marker   = 0xD9
	Map32Marker   = 0xDA

	TinyStructMarker = 0xB0
	Struct8Marker    = 0xDC
	Struct16Marker   = 0xDD

	Bytes8Marker  = 0xCC
	Bytes16Marker = 0xCD
	Bytes32Marker = 0xCE
)

// Structure tag bytes for the graph/spatial/temporal value kinds defined
// by the spec's data model (§3). Message-layer tags (HELLO, RUN, SUCCESS,
// ...) live in package bolt, decoded from a RawStructure by the message
// layer, not here.
const (
	TagNode                 = 0x4E
	TagRelationship         = 0x52
	TagUnboundRelationship  = 0x72
	TagPath                 = 0x50
	TagPoint2D              = 0x58
	TagPoint3D              = 0x59
	TagDate                 = 0x44
	TagTime                 = 0x54
	TagLocalTime            = 0x74
	TagDateTimeLegacy       = 0x46 // Bolt 4.x naive-UTC + offset encoding
	TagDateTimeZoneIDLegacy = 0x66
	TagDateTimeUTC          = 0x49 // Bolt 5.x UTC encoding
	TagDateTimeZoneIDUTC    = 0x69
	TagLocalDateTime        = 0x64
	TagDuration             = 0x45
)
