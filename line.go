package eventsource

// Line is a single line extracted from an SSE byte stream, stripped of its
// terminator. FieldBoundary is the index of the first ':' byte: 0 means the
// line is a comment, -1 means the line has no colon at all or is empty. The
// boundary is located during the same scan that finds the terminator, so
// consumers never need to search the line again.
//
// Data is only valid for the duration of the OnLine callback, the underlying
// bytes may be reused by subsequent Feed calls.
type Line struct {
	Data          []byte
	FieldBoundary int
}

// LineSplitter converts a sequence of byte chunks into a sequence of lines.
// Chunks may be fragmented arbitrarily: a line, or even a single "\r\n"
// terminator, may arrive split across any number of Feed calls. All three
// line ending conventions ("\n", "\r" and "\r\n") are recognized.
//
// LineSplitter does O(n) work over the total input with no re-scanning and
// imposes no line length limit, unterminated bytes are carried over until
// their terminator arrives.
type LineSplitter struct {
	// OnLine is invoked once per complete line, in stream order.
	OnLine func(Line)

	buf   []byte // unterminated tail of previous chunks
	colon int    // first ':' index within the current line, -1 if none yet
	sawCR bool   // previous chunk ended in '\r', swallow an immediate '\n'
}

// NewLineSplitter creates a splitter delivering lines to onLine.
func NewLineSplitter(onLine func(Line)) *LineSplitter {
	return &LineSplitter{
		OnLine: onLine,
		colon:  -1,
	}
}

// Feed scans one chunk, invoking OnLine zero or more times. Bytes after the
// last terminator are retained until the next call.
func (s *LineSplitter) Feed(chunk []byte) {
	i := 0
	if s.sawCR && len(chunk) > 0 {
		// "\r\n" split across chunks counts as one terminator, the
		// line itself was already emitted for the '\r'. The flag
		// survives empty chunks, it is resolved by the next byte.
		s.sawCR = false
		if chunk[0] == '\n' {
			i = 1
		}
	}

	start := i
	for ; i < len(chunk); i++ {
		switch chunk[i] {
		case '\n':
			s.emit(chunk[start:i])
			start = i + 1
		case '\r':
			// Emit immediately instead of waiting for a possible
			// '\n', it may never come or land in the next chunk.
			s.emit(chunk[start:i])
			if i+1 < len(chunk) {
				if chunk[i+1] == '\n' {
					i++
				}
			} else {
				s.sawCR = true
			}
			start = i + 1
		case ':':
			if s.colon < 0 {
				s.colon = len(s.buf) + i - start
			}
		}
	}

	if start < len(chunk) {
		s.buf = append(s.buf, chunk[start:]...)
	}
}

// emit delivers the line formed by the carried-over bytes plus tail.
func (s *LineSplitter) emit(tail []byte) {
	data := tail
	if len(s.buf) > 0 {
		data = append(s.buf, tail...)
		s.buf = nil
	}

	boundary := s.colon
	if len(data) == 0 {
		boundary = -1
	}
	s.colon = -1

	if s.OnLine != nil {
		s.OnLine(Line{Data: data, FieldBoundary: boundary})
	}
}
