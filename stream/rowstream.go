// Package stream implements the result streaming layer (component C5): a
// lazy, single-pass row iterator driven by fetch-size PULL/DISCARD paging
// over one bolt.Connection. It generalizes the teacher driver's rows.go
// (a single bufio-style row reader with no fetch-size concept, reading
// every row from a pre-decoded slice) into the fetch_size-bounded,
// has_more-aware paging the spec's session state machine requires.
package stream

import (
	"context"

	"github.com/boltgraph/driver/bolt"
)

// Summary carries the terminal metadata of an exhausted RowStream: query
// counters/stats, any returned bookmark, and the database that served it.
type Summary struct {
	Metadata map[string]any
}

// Bookmark returns the bookmark string from the summary metadata, if any.
func (s Summary) Bookmark() string {
	if b, ok := s.Metadata["bookmark"].(string); ok {
		return b
	}
	return ""
}

// Counters returns the "stats" metadata map (nodes/relationships
// created/deleted, etc.), or nil if the server didn't report any.
func (s Summary) Counters() map[string]any {
	if c, ok := s.Metadata["stats"].(map[string]any); ok {
		return c
	}
	return nil
}

// RowStream is a lazy, single-pass, non-restartable sequence of rows bound
// to one connection, per the spec's result-streaming model. Creating one
// caches Keys and the owning qid, then issues the first PULL; Next then
// walks RECORD/SUCCESS(has_more)/FAILURE transitions, re-pulling as
// needed.
type RowStream struct {
	conn      *bolt.Connection
	qid       int64
	keys      []string
	fetchSize int64

	pending []any // buffered Record rows not yet returned by Next
	done    bool
	summary *Summary
	err     error
}

// New builds a RowStream from a RUN Success response, then eagerly issues
// the first PULL — matching the spec's "on creation it caches keys/qid,
// then issues the first PULL" contract.
func New(ctx context.Context, conn *bolt.Connection, runSuccess bolt.Success, fetchSize int64) (*RowStream, error) {
	rs := &RowStream{
		conn:      conn,
		qid:       conn.QID(),
		keys:      keysFromMetadata(runSuccess.Metadata),
		fetchSize: fetchSize,
	}
	if err := rs.pull(ctx); err != nil {
		rs.err = err
		return rs, err
	}
	return rs, nil
}

// Keys returns the result's column names, known since RUN's SUCCESS.
func (rs *RowStream) Keys() []string { return rs.keys }

// Next advances the stream and returns the next row, or (nil, false) at
// exhaustion. Call Err after Next returns false to distinguish clean
// exhaustion from a failure.
func (rs *RowStream) Next(ctx context.Context) ([]any, bool) {
	for {
		if len(rs.pending) > 0 {
			row := rs.pending[0]
			rs.pending = rs.pending[1:]
			return row.([]any), true
		}
		if rs.done || rs.err != nil {
			return nil, false
		}
		if err := rs.pull(ctx); err != nil {
			rs.err = err
			return nil, false
		}
	}
}

// Err returns the error that terminated the stream, if any.
func (rs *RowStream) Err() error { return rs.err }

// Summary returns the terminal summary once the stream is exhausted; nil
// until then.
func (rs *RowStream) Summary() *Summary { return rs.summary }

// pull issues one PULL and drains every message up to and including the
// next terminal response, buffering Records into rs.pending. A single
// PULL response is zero or more RECORDs followed by exactly one terminal
// SUCCESS/FAILURE, all read off the same request.
func (rs *RowStream) pull(ctx context.Context) error {
	if err := rs.conn.SendPull(ctx, rs.fetchSize, rs.qid); err != nil {
		return err
	}
	return rs.drain(ctx)
}

// drain reads messages until a terminal one arrives. bolt.Connection.Receive
// already turns FAILURE/IGNORED/anything unrecognized into an error, so
// Record and Success are the only successful shapes left to handle here. A
// Success with has_more:true only ends this PULL's response, not the
// stream — the caller must issue another PULL to keep paging — so only a
// Success without has_more marks the RowStream itself exhausted.
func (rs *RowStream) drain(ctx context.Context) error {
	for {
		resp, err := rs.conn.Receive(ctx)
		if err != nil {
			return err
		}
		switch m := resp.(type) {
		case bolt.Record:
			rs.pending = append(rs.pending, m.Values)
		case bolt.Success:
			if hasMore, _ := m.Metadata["has_more"].(bool); hasMore {
				return nil
			}
			rs.done = true
			rs.summary = &Summary{Metadata: m.Metadata}
			return nil
		}
	}
}

// Drop terminates a non-exhausted stream by sending DISCARD {n:-1, qid},
// returning the connection to READY/TX_READY — the spec's mandatory
// early-termination cleanup. Calling Drop on an already-exhausted or
// already-failed stream is a no-op.
func (rs *RowStream) Drop(ctx context.Context) error {
	if rs.done || rs.err != nil {
		return nil
	}
	if err := rs.conn.SendDiscard(ctx, -1, rs.qid); err != nil {
		rs.done = true
		rs.err = err
		return err
	}
	// Drain and discard any records the server had already queued before
	// the DISCARD landed, using the same terminal-detection loop as pull
	// — the records themselves are thrown away.
	rs.pending = nil
	err := rs.drain(ctx)
	rs.pending = nil
	if err != nil {
		rs.err = err
	}
	return err
}

func keysFromMetadata(md map[string]any) []string {
	raw, ok := md["fields"].([]any)
	if !ok {
		return nil
	}
	keys := make([]string, len(raw))
	for i, v := range raw {
		if s, ok := v.(string); ok {
			keys[i] = s
		}
	}
	return keys
}
