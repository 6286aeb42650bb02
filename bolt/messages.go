// Package bolt implements the Bolt message layer (component C3) and the
// per-connection handshake/session state machine (component C4). Every
// message here is a single PackStream structure, one per the teacher
// driver's structures/messages package (InitMessage, RunMessage,
// SuccessMessage, ...) — generalized from Bolt 1's single INIT message to
// the HELLO/LOGON split Bolt 5.1 introduced, and widened from the
// teacher's six request types to the full request/response vocabulary
// the spec's session state machine drives.
package bolt

import "github.com/boltgraph/driver/packstream"

// Message tag bytes. Request tags below mirror the teacher's per-message
// SignatureByte constants; response tags are unchanged from Bolt 1 through
// 5.x.
const (
	TagHello    = 0x01
	TagLogon    = 0x6A
	TagLogoff   = 0x6B
	TagGoodbye  = 0x02
	TagReset    = 0x0F
	TagRun      = 0x10
	TagDiscard  = 0x2F
	TagPull     = 0x3F
	TagBegin    = 0x11
	TagCommit   = 0x12
	TagRollback = 0x13
	TagRoute    = 0x66

	TagSuccess = 0x70
	TagRecord  = 0x71
	TagIgnored = 0x7E
	TagFailure = 0x7F
)

// Hello is the first message on every connection, carrying client
// identification and (for servers at protocol version <= 5.0) auth
// credentials inline, merged into its single extra map. From 5.1 onward auth moves
// to a separate Logon message and Hello.Auth is omitted.
type Hello struct {
	UserAgent string
	Auth      map[string]any // nil when auth travels in a later Logon
	Extra     map[string]any // routing/patch_bolt extras, added verbatim
}

// Tag implements packstream.Structure.
func (Hello) Tag() byte { return TagHello }

// Fields implements packstream.Structure.
func (h Hello) Fields() []any {
	extra := map[string]any{"user_agent": h.UserAgent}
	for k, v := range h.Extra {
		extra[k] = v
	}
	if h.Auth != nil {
		for k, v := range h.Auth {
			extra[k] = v
		}
	}
	return []any{extra}
}

// Logon carries auth credentials on protocol versions >= 5.1, sent
// immediately after a successful Hello.
type Logon struct {
	Auth map[string]any
}

// Tag implements packstream.Structure.
func (Logon) Tag() byte { return TagLogon }

// Fields implements packstream.Structure.
func (l Logon) Fields() []any { return []any{l.Auth} }

// Logoff ends the authenticated session without closing the connection,
// returning it to an unauthenticated state a subsequent Logon can re-enter.
type Logoff struct{}

// Tag implements packstream.Structure.
func (Logoff) Tag() byte { return TagLogoff }

// Fields implements packstream.Structure.
func (Logoff) Fields() []any { return nil }

// Goodbye tells the server the client is closing the connection
// voluntarily; no response is sent.
type Goodbye struct{}

// Tag implements packstream.Structure.
func (Goodbye) Tag() byte { return TagGoodbye }

// Fields implements packstream.Structure.
func (Goodbye) Fields() []any { return nil }

// Reset asks the server to force the session back to a clean READY state,
// discarding any open transaction or in-flight result stream. It is the
// self-healing move out of the FAILED state the spec's state machine
// requires, and is also how the pool validates an idle connection.
type Reset struct{}

// Tag implements packstream.Structure.
func (Reset) Tag() byte { return TagReset }

// Fields implements packstream.Structure.
func (Reset) Fields() []any { return nil }

// Run begins executing a statement, either auto-committing (outside any
// explicit transaction) or against the currently open transaction.
type Run struct {
	Statement  string
	Parameters map[string]any
	Extra      map[string]any // db, bookmarks, tx_timeout, mode, imp_user, ...
}

// Tag implements packstream.Structure.
func (Run) Tag() byte { return TagRun }

// Fields implements packstream.Structure.
func (r Run) Fields() []any {
	params := r.Parameters
	if params == nil {
		params = map[string]any{}
	}
	extra := r.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	return []any{r.Statement, params, extra}
}

// Discard drops some or all of the remaining records in the current
// result stream without transmitting them, optionally addressing a
// specific query id (qid) when more than one stream is outstanding.
type Discard struct {
	N   int64 // -1 means "all remaining"
	QID int64 // -1 means "the most recently opened stream"
}

// Tag implements packstream.Structure.
func (Discard) Tag() byte { return TagDiscard }

// Fields implements packstream.Structure.
func (d Discard) Fields() []any {
	return []any{map[string]any{"n": d.N, "qid": d.QID}}
}

// Pull requests up to N more records from the current result stream.
type Pull struct {
	N   int64
	QID int64
}

// Tag implements packstream.Structure.
func (Pull) Tag() byte { return TagPull }

// Fields implements packstream.Structure.
func (p Pull) Fields() []any {
	return []any{map[string]any{"n": p.N, "qid": p.QID}}
}

// Begin opens an explicit transaction.
type Begin struct {
	Extra map[string]any // db, bookmarks, tx_timeout, mode, imp_user, ...
}

// Tag implements packstream.Structure.
func (Begin) Tag() byte { return TagBegin }

// Fields implements packstream.Structure.
func (b Begin) Fields() []any {
	extra := b.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	return []any{extra}
}

// Commit commits the currently open explicit transaction.
type Commit struct{}

// Tag implements packstream.Structure.
func (Commit) Tag() byte { return TagCommit }

// Fields implements packstream.Structure.
func (Commit) Fields() []any { return nil }

// Rollback aborts the currently open explicit transaction.
type Rollback struct{}

// Tag implements packstream.Structure.
func (Rollback) Tag() byte { return TagRollback }

// Fields implements packstream.Structure.
func (Rollback) Fields() []any { return nil }

// Route asks the server for routing-table information. Encoding and
// decoding are implemented for completeness against the wire protocol, but
// the façade never issues it directly; routing-aware deployments are out
// of scope (see SPEC_FULL.md).
type Route struct {
	Routing  map[string]any
	Bookmarks []string
	Extra    map[string]any
}

// Tag implements packstream.Structure.
func (Route) Tag() byte { return TagRoute }

// Fields implements packstream.Structure.
func (r Route) Fields() []any {
	bookmarks := make([]any, len(r.Bookmarks))
	for i, b := range r.Bookmarks {
		bookmarks[i] = b
	}
	extra := r.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	return []any{r.Routing, bookmarks, extra}
}

// Success is the positive terminal response to any request, carrying
// request-specific metadata (fields/qid on a RUN success, bookmark/type on
// a COMMIT success, and so on).
type Success struct {
	Metadata map[string]any
}

// Tag implements packstream.Structure.
func (Success) Tag() byte { return TagSuccess }

// Fields implements packstream.Structure.
func (s Success) Fields() []any { return []any{s.Metadata} }

// Record carries one row of a result stream, in the column order
// established by the owning RUN's Success.Metadata["fields"].
type Record struct {
	Values []any
}

// Tag implements packstream.Structure.
func (Record) Tag() byte { return TagRecord }

// Fields implements packstream.Structure.
func (r Record) Fields() []any { return []any{r.Values} }

// Ignored is returned for any request received while the session is in the
// FAILED state, prior to the client sending Reset.
type Ignored struct{}

// Tag implements packstream.Structure.
func (Ignored) Tag() byte { return TagIgnored }

// Fields implements packstream.Structure.
func (Ignored) Fields() []any { return nil }

// Failure is the negative terminal response to a request, moving the
// session into the FAILED state until a Reset is sent.
type Failure struct {
	Metadata map[string]any
}

// Tag implements packstream.Structure.
func (Failure) Tag() byte { return TagFailure }

// Fields implements packstream.Structure.
func (f Failure) Fields() []any { return []any{f.Metadata} }

// Code returns the Neo4j status code from Metadata["code"], or "" if absent.
func (f Failure) Code() string {
	if c, ok := f.Metadata["code"].(string); ok {
		return c
	}
	return ""
}

// Message returns the human-readable message from Metadata["message"].
func (f Failure) Message() string {
	if m, ok := f.Metadata["message"].(string); ok {
		return m
	}
	return ""
}

// DecodeMessage reinterprets a packstream.RawStructure produced by
// packstream.Decoder into one of the typed messages above. Every Bolt
// message is exactly one structure, so this is always handed the result
// of a single Decoder.Decode call over one fully-reassembled message.
// Both directions of the wire are covered — response shapes for a real
// client reading a server's replies, and request shapes for a fake-server
// test harness reading what a client sent — since only one decoder is
// needed either way.
func DecodeMessage(v any) (any, error) {
	raw, ok := v.(packstream.RawStructure)
	if !ok {
		return nil, errUnexpectedMessageShape(v)
	}
	switch raw.Sig {
	case TagSuccess:
		md, err := fieldAsMap(raw, 0, "Success.metadata")
		if err != nil {
			return nil, err
		}
		return Success{Metadata: md}, nil
	case TagFailure:
		md, err := fieldAsMap(raw, 0, "Failure.metadata")
		if err != nil {
			return nil, err
		}
		return Failure{Metadata: md}, nil
	case TagIgnored:
		return Ignored{}, nil
	case TagRecord:
		if len(raw.Values) < 1 {
			return nil, errUnexpectedMessageShape(v)
		}
		values, ok := raw.Values[0].([]any)
		if !ok {
			return nil, errUnexpectedMessageShape(v)
		}
		return Record{Values: values}, nil
	case TagHello:
		return decodeHello(raw)
	case TagLogon:
		auth, err := fieldAsMap(raw, 0, "Logon.auth")
		if err != nil {
			return nil, err
		}
		return Logon{Auth: auth}, nil
	case TagLogoff:
		return Logoff{}, nil
	case TagGoodbye:
		return Goodbye{}, nil
	case TagReset:
		return Reset{}, nil
	case TagRun:
		return decodeRun(raw)
	case TagDiscard:
		n, qid, err := decodeNQID(raw, "Discard")
		if err != nil {
			return nil, err
		}
		return Discard{N: n, QID: qid}, nil
	case TagPull:
		n, qid, err := decodeNQID(raw, "Pull")
		if err != nil {
			return nil, err
		}
		return Pull{N: n, QID: qid}, nil
	case TagBegin:
		extra, err := fieldAsMap(raw, 0, "Begin.extra")
		if err != nil {
			return nil, err
		}
		return Begin{Extra: extra}, nil
	case TagCommit:
		return Commit{}, nil
	case TagRollback:
		return Rollback{}, nil
	case TagRoute:
		return decodeRoute(raw)
	default:
		return nil, errUnrecognizedMessageTag(raw.Sig)
	}
}

// decodeHello splits Hello's single merged extra map back into
// UserAgent/Auth: "scheme" is the marker PackStream auth tokens always
// carry, so its presence identifies the remainder as Auth rather than
// routing/patch_bolt Extra. This can't perfectly round-trip a Hello that
// carried both Auth and Extra at once (a shape the driver itself never
// produces — see Hello.Fields), which is fine for a test-only decode path.
func decodeHello(raw packstream.RawStructure) (any, error) {
	extra, err := fieldAsMap(raw, 0, "Hello.extra")
	if err != nil {
		return nil, err
	}
	userAgent, _ := extra["user_agent"].(string)
	rest := make(map[string]any, len(extra))
	for k, v := range extra {
		if k == "user_agent" {
			continue
		}
		rest[k] = v
	}
	h := Hello{UserAgent: userAgent}
	if len(rest) == 0 {
		return h, nil
	}
	if _, ok := rest["scheme"]; ok {
		h.Auth = rest
	} else {
		h.Extra = rest
	}
	return h, nil
}

func decodeRun(raw packstream.RawStructure) (any, error) {
	if len(raw.Values) < 3 {
		return nil, errUnexpectedMessageShape("Run")
	}
	statement, ok := raw.Values[0].(string)
	if !ok {
		return nil, errUnexpectedMessageShape("Run.statement")
	}
	params, ok := raw.Values[1].(map[string]any)
	if !ok {
		return nil, errUnexpectedMessageShape("Run.parameters")
	}
	extra, ok := raw.Values[2].(map[string]any)
	if !ok {
		return nil, errUnexpectedMessageShape("Run.extra")
	}
	return Run{Statement: statement, Parameters: params, Extra: extra}, nil
}

func decodeNQID(raw packstream.RawStructure, context string) (n, qid int64, err error) {
	m, mapErr := fieldAsMap(raw, 0, context)
	if mapErr != nil {
		return 0, 0, mapErr
	}
	n, ok := m["n"].(int64)
	if !ok {
		return 0, 0, errUnexpectedMessageShape(context + ".n")
	}
	qid, ok = m["qid"].(int64)
	if !ok {
		return 0, 0, errUnexpectedMessageShape(context + ".qid")
	}
	return n, qid, nil
}

func decodeRoute(raw packstream.RawStructure) (any, error) {
	if len(raw.Values) < 3 {
		return nil, errUnexpectedMessageShape("Route")
	}
	routing, ok := raw.Values[0].(map[string]any)
	if !ok {
		return nil, errUnexpectedMessageShape("Route.routing")
	}
	rawBookmarks, ok := raw.Values[1].([]any)
	if !ok {
		return nil, errUnexpectedMessageShape("Route.bookmarks")
	}
	bookmarks := make([]string, len(rawBookmarks))
	for i, b := range rawBookmarks {
		bookmarks[i], _ = b.(string)
	}
	extra, ok := raw.Values[2].(map[string]any)
	if !ok {
		return nil, errUnexpectedMessageShape("Route.extra")
	}
	return Route{Routing: routing, Bookmarks: bookmarks, Extra: extra}, nil
}

func fieldAsMap(raw packstream.RawStructure, idx int, context string) (map[string]any, error) {
	if len(raw.Values) <= idx {
		return nil, errUnexpectedMessageShape(context)
	}
	m, ok := raw.Values[idx].(map[string]any)
	if !ok {
		return nil, errUnexpectedMessageShape(context)
	}
	return m, nil
}
