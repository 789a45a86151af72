// Package sse frames a server-sent event stream into discrete records.
//
// Records are separated by blank lines. Lines prefixed with "data:" carry the
// payload; multiple data lines in one record are joined with a newline.
// Comment lines (":") and the event, id and retry fields are accepted and
// ignored. Records with an empty payload are heartbeats and are skipped. A
// payload equal to [Done] ends the stream.
//
// Any other line is malformed. The reader reports each malformed line as one
// record with Malformed set and keeps decoding the lines that follow.
package sse

import (
	"bufio"
	"errors"
	"io"
	"strings"

	ai "github.com/spetersoncode/openagent"
)

// Done is the sentinel payload that terminates a stream.
const Done = "[DONE]"

const (
	initialBufferSize = 64 * 1024
	// MaxLineSize bounds a single line; longer lines are a decode error.
	MaxLineSize = 1024 * 1024
)

// Record is one framed event.
type Record struct {
	// Event is the value of the last "event:" field, if any.
	Event string
	// Data is the payload with the data marker stripped.
	Data string
	// Malformed holds the offending line when the record reports a
	// line without a recognised field. Data is empty in that case.
	Malformed string
}

// IsMalformed reports whether the record describes a malformed line.
func (r Record) IsMalformed() bool {
	return r.Malformed != ""
}

// Reader yields records from an underlying stream. It is not safe for
// concurrent use and cannot be restarted.
type Reader struct {
	scanner *bufio.Scanner
	event   string
	data    strings.Builder
	hasData bool
	done    bool
	err     error
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initialBufferSize), MaxLineSize)
	return &Reader{scanner: scanner}
}

// Next returns the next record. It returns io.EOF after the sentinel payload
// or the end of the underlying stream, and keeps returning it afterwards.
func (r *Reader) Next() (Record, error) {
	if r.done {
		return Record{}, r.terminal()
	}

	for r.scanner.Scan() {
		line := strings.TrimSuffix(r.scanner.Text(), "\r")

		if line == "" {
			if rec, ok := r.flush(); ok {
				if rec.Data == Done {
					r.done = true
					return Record{}, io.EOF
				}
				return rec, nil
			}
			continue
		}

		field, value, hasColon := strings.Cut(line, ":")
		if hasColon {
			value = strings.TrimPrefix(value, " ")
		}
		switch {
		case field == "" && hasColon:
			// comment
		case field == "data":
			if r.hasData {
				r.data.WriteByte('\n')
			}
			r.data.WriteString(value)
			r.hasData = true
		case field == "event":
			r.event = value
		case field == "id", field == "retry":
		default:
			return Record{Malformed: line}, nil
		}
	}

	r.done = true
	if err := r.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			r.err = &ai.ProtocolDecodeError{Msg: "event line exceeds maximum size", Index: -1, Err: err}
		} else {
			r.err = &ai.TransportError{Op: "read", Err: err}
		}
		return Record{}, r.err
	}

	// Streams that end without a trailing blank line still deliver their last record.
	if rec, ok := r.flush(); ok && rec.Data != Done {
		return rec, nil
	}
	return Record{}, io.EOF
}

func (r *Reader) flush() (Record, bool) {
	defer func() {
		r.event = ""
		r.data.Reset()
		r.hasData = false
	}()
	if !r.hasData || r.data.Len() == 0 {
		return Record{}, false
	}
	return Record{Event: r.event, Data: r.data.String()}, true
}

func (r *Reader) terminal() error {
	if r.err != nil {
		return r.err
	}
	return io.EOF
}
