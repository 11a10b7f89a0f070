package eventsource

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// feedLines runs raw wire data through a splitter into the parser, returning
// everything the parser reported.
func feedLines(p *MessageParser, wire string) {
	s := NewLineSplitter(p.Feed)
	s.Feed([]byte(wire))
}

type parserRecorder struct {
	messages []Message
	ids      []string
	retries  []time.Duration
}

func newRecordedParser() (*MessageParser, *parserRecorder) {
	rec := &parserRecorder{}
	p := &MessageParser{
		OnMessage: func(m Message) { rec.messages = append(rec.messages, m) },
		OnID:      func(id string) { rec.ids = append(rec.ids, id) },
		OnRetry:   func(d time.Duration) { rec.retries = append(rec.retries, d) },
	}
	return p, rec
}

func TestParserDispatch(t *testing.T) {
	p, rec := newRecordedParser()
	feedLines(p, "retry: 42\nid: abc\nevent:def\ndata:ghi\n\n")

	assert.Equal(t, []Message{{
		ID:       "abc",
		Event:    "def",
		Data:     "ghi",
		Retry:    42 * time.Millisecond,
		HasRetry: true,
	}}, rec.messages)
	assert.Equal(t, []string{"abc"}, rec.ids)
	assert.Equal(t, []time.Duration{42 * time.Millisecond}, rec.retries)
}

func TestParserUnknownFieldIgnored(t *testing.T) {
	p, rec := newRecordedParser()
	feedLines(p, "id: abc\nfoo: null\ndata: ghi\n\n")

	assert.Equal(t, []Message{{ID: "abc", Data: "ghi"}}, rec.messages)
}

func TestParserNoColonLineIgnored(t *testing.T) {
	p, rec := newRecordedParser()
	feedLines(p, "data: kept\nthis line has no colon\ndata: also kept\n\n")

	assert.Equal(t, []Message{{Data: "kept\nalso kept"}}, rec.messages)
}

func TestParserNonNumericRetryIgnored(t *testing.T) {
	p, rec := newRecordedParser()
	feedLines(p, "retry: definitely not a number\ndata: x\n\n")
	feedLines(p, "retry: 10s\ndata: x\n\n")
	feedLines(p, "retry: -5\ndata: x\n\n")
	feedLines(p, "retry:\ndata: x\n\n")

	assert.Empty(t, rec.retries)
	for _, m := range rec.messages {
		assert.False(t, m.HasRetry)
		assert.Zero(t, m.Retry)
	}
}

func TestParserDataJoinedWithNewlines(t *testing.T) {
	p, rec := newRecordedParser()
	feedLines(p, "data:YHOO\ndata: +2\ndata:\ndata: 10\n\n")

	assert.Equal(t, []Message{{Data: "YHOO\n+2\n\n10"}}, rec.messages)
}

func TestParserLeadingSpaceStripping(t *testing.T) {
	p, rec := newRecordedParser()
	// Exactly one leading space is removed, further spaces are data.
	feedLines(p, "data:  padded\ndata:tight\n\n")

	assert.Equal(t, []Message{{Data: " padded\ntight"}}, rec.messages)
}

func TestParserIDReset(t *testing.T) {
	p, rec := newRecordedParser()
	feedLines(p, "id: foo\nid:\ndata: x\n\n")

	assert.Equal(t, []string{"foo", ""}, rec.ids)
	assert.Equal(t, []Message{{ID: "", Data: "x"}}, rec.messages)
}

func TestParserIDWithNULRejected(t *testing.T) {
	p, rec := newRecordedParser()
	feedLines(p, "id: good\nid: bad\x00id\ndata: x\n\n")

	assert.Equal(t, []string{"good"}, rec.ids)
	assert.Equal(t, []Message{{ID: "good", Data: "x"}}, rec.messages)
}

func TestParserIDPersistsAcrossMessages(t *testing.T) {
	p, rec := newRecordedParser()
	feedLines(p, "id: 1\nevent: a\ndata: x\n\ndata: y\n\n")

	assert.Equal(t, []Message{
		{ID: "1", Event: "a", Data: "x"},
		{ID: "1", Event: "", Data: "y"},
	}, rec.messages)
}

func TestParserRetryResetAfterDispatch(t *testing.T) {
	p, rec := newRecordedParser()
	feedLines(p, "retry: 100\ndata: x\n\ndata: y\n\n")

	assert.Len(t, rec.messages, 2)
	assert.True(t, rec.messages[0].HasRetry)
	assert.False(t, rec.messages[1].HasRetry)
}

func TestParserCommentOnlyBlocks(t *testing.T) {
	p, rec := newRecordedParser()
	feedLines(p, ":\n\n: keep-alive\n\n")

	assert.Empty(t, rec.messages)
	assert.Empty(t, rec.ids)
	assert.Empty(t, rec.retries)
}

func TestParserEmptyValueAtLineEnd(t *testing.T) {
	p, rec := newRecordedParser()
	// Boundary at the last byte index yields an empty value.
	feedLines(p, "event:\ndata:\n\n")

	assert.Equal(t, []Message{{Event: "", Data: ""}}, rec.messages)
}
