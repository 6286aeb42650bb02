package packstream

// This file implements the per-tag field conversions used by
// Decoder.decodeStruct. Each function validates field count/types up
// front and returns a DecodeError describing exactly which field was
// wrong, rather than panicking on a bad type assertion the way the
// teacher's decodeNode/decodeRelationship helpers did with their
// one-field-at-a-time inline checks (kept here, just centralized).

func asInt64(context string, v any) (int64, error) {
	i, ok := v.(int64)
	if !ok {
		return 0, errUnexpectedType(context, "int64", v)
	}
	return i, nil
}

func asInt32(context string, v any) (int32, error) {
	i, ok := v.(int64)
	if !ok {
		return 0, errUnexpectedType(context, "int64", v)
	}
	return int32(i), nil
}

func asFloat64(context string, v any) (float64, error) {
	f, ok := v.(float64)
	if !ok {
		return 0, errUnexpectedType(context, "float64", v)
	}
	return f, nil
}

func asString(context string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errUnexpectedType(context, "string", v)
	}
	return s, nil
}

func asMap(context string, v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errUnexpectedType(context, "map[string]any", v)
	}
	return m, nil
}

func asList(context string, v any) ([]any, error) {
	l, ok := v.([]any)
	if !ok {
		return nil, errUnexpectedType(context, "[]any", v)
	}
	return l, nil
}

func asStringList(context string, v any) ([]string, error) {
	l, err := asList(context, v)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(l))
	for i, item := range l {
		s, err := asString(context, item)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func requireFields(context string, fields []any, min int) error {
	if len(fields) < min {
		return errUnexpectedType(context, "at least "+itoa(min)+" fields", len(fields))
	}
	return nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func decodeNode(fields []any) (Node, error) {
	if err := requireFields("Node", fields, 3); err != nil {
		return Node{}, err
	}
	id, err := asInt64("Node.id", fields[0])
	if err != nil {
		return Node{}, err
	}
	labels, err := asStringList("Node.labels", fields[1])
	if err != nil {
		return Node{}, err
	}
	props, err := asMap("Node.properties", fields[2])
	if err != nil {
		return Node{}, err
	}
	n := Node{ID: id, Labels: labels, Properties: props}
	if len(fields) >= 4 {
		if eid, err := asString("Node.element_id", fields[3]); err == nil {
			n.ElementID = eid
		}
	}
	return n, nil
}

func decodeRelationship(fields []any) (Relationship, error) {
	if err := requireFields("Relationship", fields, 5); err != nil {
		return Relationship{}, err
	}
	id, err := asInt64("Relationship.id", fields[0])
	if err != nil {
		return Relationship{}, err
	}
	startID, err := asInt64("Relationship.start_id", fields[1])
	if err != nil {
		return Relationship{}, err
	}
	endID, err := asInt64("Relationship.end_id", fields[2])
	if err != nil {
		return Relationship{}, err
	}
	typ, err := asString("Relationship.type", fields[3])
	if err != nil {
		return Relationship{}, err
	}
	props, err := asMap("Relationship.properties", fields[4])
	if err != nil {
		return Relationship{}, err
	}
	r := Relationship{ID: id, StartID: startID, EndID: endID, Type: typ, Properties: props}
	if len(fields) >= 8 {
		r.ElementID, _ = asString("Relationship.element_id", fields[5])
		r.StartElementID, _ = asString("Relationship.start_element_id", fields[6])
		r.EndElementID, _ = asString("Relationship.end_element_id", fields[7])
	}
	return r, nil
}

func decodeUnboundRelationship(fields []any) (UnboundRelationship, error) {
	if err := requireFields("UnboundRelationship", fields, 3); err != nil {
		return UnboundRelationship{}, err
	}
	id, err := asInt64("UnboundRelationship.id", fields[0])
	if err != nil {
		return UnboundRelationship{}, err
	}
	typ, err := asString("UnboundRelationship.type", fields[1])
	if err != nil {
		return UnboundRelationship{}, err
	}
	props, err := asMap("UnboundRelationship.properties", fields[2])
	if err != nil {
		return UnboundRelationship{}, err
	}
	u := UnboundRelationship{ID: id, Type: typ, Properties: props}
	if len(fields) >= 4 {
		u.ElementID, _ = asString("UnboundRelationship.element_id", fields[3])
	}
	return u, nil
}

func decodePath(fields []any) (Path, error) {
	if err := requireFields("Path", fields, 3); err != nil {
		return Path{}, err
	}
	nodesRaw, err := asList("Path.nodes", fields[0])
	if err != nil {
		return Path{}, err
	}
	nodes := make([]Node, len(nodesRaw))
	for i, v := range nodesRaw {
		n, ok := v.(Node)
		if !ok {
			return Path{}, errUnexpectedType("Path.nodes", "Node", v)
		}
		nodes[i] = n
	}

	relsRaw, err := asList("Path.rels", fields[1])
	if err != nil {
		return Path{}, err
	}
	rels := make([]UnboundRelationship, len(relsRaw))
	for i, v := range relsRaw {
		r, ok := v.(UnboundRelationship)
		if !ok {
			return Path{}, errUnexpectedType("Path.rels", "UnboundRelationship", v)
		}
		rels[i] = r
	}

	idxRaw, err := asList("Path.indices", fields[2])
	if err != nil {
		return Path{}, err
	}
	indices := make([]int64, len(idxRaw))
	for i, v := range idxRaw {
		n, err := asInt64("Path.indices", v)
		if err != nil {
			return Path{}, err
		}
		indices[i] = n
	}

	return Path{Nodes: nodes, Rels: rels, Indices: indices}, nil
}

func decodePoint2D(fields []any) (Point2D, error) {
	if err := requireFields("Point2D", fields, 3); err != nil {
		return Point2D{}, err
	}
	srid, err := asInt32("Point2D.srid", fields[0])
	if err != nil {
		return Point2D{}, err
	}
	x, err := asFloat64("Point2D.x", fields[1])
	if err != nil {
		return Point2D{}, err
	}
	y, err := asFloat64("Point2D.y", fields[2])
	if err != nil {
		return Point2D{}, err
	}
	return Point2D{SRID: srid, X: x, Y: y}, nil
}

func decodePoint3D(fields []any) (Point3D, error) {
	if err := requireFields("Point3D", fields, 4); err != nil {
		return Point3D{}, err
	}
	srid, err := asInt32("Point3D.srid", fields[0])
	if err != nil {
		return Point3D{}, err
	}
	x, err := asFloat64("Point3D.x", fields[1])
	if err != nil {
		return Point3D{}, err
	}
	y, err := asFloat64("Point3D.y", fields[2])
	if err != nil {
		return Point3D{}, err
	}
	z, err := asFloat64("Point3D.z", fields[3])
	if err != nil {
		return Point3D{}, err
	}
	return Point3D{SRID: srid, X: x, Y: y, Z: z}, nil
}

func decodeDate(fields []any) (Date, error) {
	if err := requireFields("Date", fields, 1); err != nil {
		return Date{}, err
	}
	days, err := asInt64("Date.epoch_days", fields[0])
	if err != nil {
		return Date{}, err
	}
	return Date{EpochDays: days}, nil
}

func decodeTime(fields []any) (Time, error) {
	if err := requireFields("Time", fields, 2); err != nil {
		return Time{}, err
	}
	nanos, err := asInt64("Time.nanoseconds", fields[0])
	if err != nil {
		return Time{}, err
	}
	offset, err := asInt32("Time.tz_offset_seconds", fields[1])
	if err != nil {
		return Time{}, err
	}
	return Time{NanosSinceMidnight: nanos, TZOffsetSeconds: offset}, nil
}

func decodeLocalTime(fields []any) (LocalTime, error) {
	if err := requireFields("LocalTime", fields, 1); err != nil {
		return LocalTime{}, err
	}
	nanos, err := asInt64("LocalTime.nanoseconds", fields[0])
	if err != nil {
		return LocalTime{}, err
	}
	return LocalTime{NanosSinceMidnight: nanos}, nil
}

func decodeLocalDateTime(fields []any) (LocalDateTime, error) {
	if err := requireFields("LocalDateTime", fields, 2); err != nil {
		return LocalDateTime{}, err
	}
	secs, err := asInt64("LocalDateTime.seconds", fields[0])
	if err != nil {
		return LocalDateTime{}, err
	}
	nanos, err := asInt32("LocalDateTime.nanoseconds", fields[1])
	if err != nil {
		return LocalDateTime{}, err
	}
	return LocalDateTime{Seconds: secs, Nanos: nanos}, nil
}

func decodeDateTime(fields []any, utc bool) (DateTime, error) {
	if err := requireFields("DateTime", fields, 3); err != nil {
		return DateTime{}, err
	}
	secs, err := asInt64("DateTime.seconds", fields[0])
	if err != nil {
		return DateTime{}, err
	}
	nanos, err := asInt32("DateTime.nanoseconds", fields[1])
	if err != nil {
		return DateTime{}, err
	}
	offset, err := asInt32("DateTime.tz_offset_seconds", fields[2])
	if err != nil {
		return DateTime{}, err
	}
	return DateTime{Seconds: secs, Nanos: nanos, TZOffsetSeconds: offset, UTC: utc}, nil
}

func decodeDateTimeZoneID(fields []any, utc bool) (DateTimeZoneID, error) {
	if err := requireFields("DateTimeZoneID", fields, 3); err != nil {
		return DateTimeZoneID{}, err
	}
	secs, err := asInt64("DateTimeZoneID.seconds", fields[0])
	if err != nil {
		return DateTimeZoneID{}, err
	}
	nanos, err := asInt32("DateTimeZoneID.nanoseconds", fields[1])
	if err != nil {
		return DateTimeZoneID{}, err
	}
	zone, err := asString("DateTimeZoneID.zone_id", fields[2])
	if err != nil {
		return DateTimeZoneID{}, err
	}
	return DateTimeZoneID{Seconds: secs, Nanos: nanos, ZoneID: zone, UTC: utc}, nil
}

func decodeDuration(fields []any) (Duration, error) {
	if err := requireFields("Duration", fields, 4); err != nil {
		return Duration{}, err
	}
	months, err := asInt64("Duration.months", fields[0])
	if err != nil {
		return Duration{}, err
	}
	days, err := asInt64("Duration.days", fields[1])
	if err != nil {
		return Duration{}, err
	}
	secs, err := asInt64("Duration.seconds", fields[2])
	if err != nil {
		return Duration{}, err
	}
	nanos, err := asInt32("Duration.nanoseconds", fields[3])
	if err != nil {
		return Duration{}, err
	}
	return Duration{Months: months, Days: days, Seconds: secs, Nanoseconds: nanos}, nil
}
