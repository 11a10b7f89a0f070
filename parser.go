package eventsource

import (
	"bytes"
	"strconv"
	"strings"
	"time"
)

// Message is a single fully assembled SSE message.
type Message struct {
	// ID is the last event ID seen on the stream at dispatch time. Unlike
	// the other fields it survives across messages until the server
	// changes or resets it.
	ID string

	// Event is the event type, empty if the message block had no event
	// field.
	Event string

	// Data is the contents of all data fields of the block joined with
	// "\n".
	Data string

	// Retry is the reconnect delay requested by this block. It is only
	// meaningful when HasRetry is true.
	Retry time.Duration

	// HasRetry reports whether the block carried a valid retry field.
	HasRetry bool
}

// MessageParser accumulates lines into SSE messages. A blank line dispatches
// the accumulated block via OnMessage, comment lines, lines without a colon
// and unrecognized field names are silently discarded.
//
// OnID and OnRetry are side channels reporting last-event-id changes and
// server requested reconnect delays as they are parsed, independently of
// message dispatch.
type MessageParser struct {
	// OnMessage is invoked once per dispatched message, in stream order.
	OnMessage func(Message)

	// OnID is invoked whenever the id buffer changes, including an
	// explicit reset to the empty string.
	OnID func(string)

	// OnRetry is invoked whenever a numeric retry field is parsed.
	OnRetry func(time.Duration)

	id       string
	event    string
	data     []string
	retry    time.Duration
	hasRetry bool
	dirty    bool
}

// Feed consumes a single line. Completed messages are delivered through
// OnMessage before Feed returns.
func (p *MessageParser) Feed(line Line) {
	if len(line.Data) == 0 {
		p.dispatch()
		return
	}
	if line.FieldBoundary < 1 {
		// Comment or a line without a field separator.
		return
	}

	name := string(line.Data[:line.FieldBoundary])
	value := line.Data[line.FieldBoundary+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}

	switch name {
	case "id":
		// An ID containing a NUL byte is rejected, the previous ID is
		// kept. An empty value is a valid explicit reset.
		if bytes.IndexByte(value, 0) >= 0 {
			return
		}
		p.id = string(value)
		p.dirty = true
		if p.OnID != nil {
			p.OnID(p.id)
		}
	case "event":
		p.event = string(value)
		p.dirty = true
	case "data":
		p.data = append(p.data, string(value))
		p.dirty = true
	case "retry":
		ms, ok := parseRetry(value)
		if !ok {
			return
		}
		p.retry = ms
		p.hasRetry = true
		p.dirty = true
		if p.OnRetry != nil {
			p.OnRetry(ms)
		}
	}
}

// dispatch emits the accumulated block and resets the per-block buffers. The
// id buffer is deliberately kept, it models a durable session identity. A
// blank line with nothing accumulated (leading blank lines, comment-only
// blocks) dispatches nothing.
func (p *MessageParser) dispatch() {
	if !p.dirty {
		return
	}

	msg := Message{
		ID:       p.id,
		Event:    p.event,
		Data:     strings.Join(p.data, "\n"),
		Retry:    p.retry,
		HasRetry: p.hasRetry,
	}

	p.event = ""
	p.data = nil
	p.retry = 0
	p.hasRetry = false
	p.dirty = false

	if p.OnMessage != nil {
		p.OnMessage(msg)
	}
}

// parseRetry parses a retry field value. Only values consisting entirely of
// decimal digits are accepted, sign prefixes and empty values are not.
func parseRetry(value []byte) (time.Duration, bool) {
	if len(value) == 0 {
		return 0, false
	}
	for _, c := range value {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	ms, err := strconv.Atoi(string(value))
	if err != nil {
		// Out of range for int.
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}
