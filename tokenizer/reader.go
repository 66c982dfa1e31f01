// Package tokenizer implements the lowest level of PDF/PostScript
// processing: a seekable byte-buffer reader with delimiter-aware scanning.
// Higher level grammars (object syntax, content streams) are built on top of
// it by package parser. The split mirrors the teacher's own layering, which
// keeps a byte-level Tokenizer (parser/tokenizer) separate from the
// grammar-level Parser that consumes it.
package tokenizer

// Delimiter identifies which byte (or EOF) terminated a scan.
type Delimiter byte

const (
	DelimNone Delimiter = 0
	DelimCR   Delimiter = '\r'
	DelimLF   Delimiter = '\n'
	DelimTab  Delimiter = '\t'
	DelimSP   Delimiter = ' '
	DelimEOF  Delimiter = 0xFF // sentinel, never a real byte value we emit
)

func isWhitespace(ch byte) bool {
	switch ch {
	case 0, 9, 10, 12, 13, 32:
		return true
	default:
		return false
	}
}

// IsDelimiter reports whether ch is one of the PDF syntax delimiter
// characters or whitespace (ISO 32000-1, 7.2.2/7.2.3).
func IsDelimiter(ch byte) bool {
	switch ch {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return isWhitespace(ch)
	}
}

// Reader is a seekable, immutable byte buffer with a cursor. It never
// mutates its backing data; callers that need to overwrite bytes (the
// signature fixup, §4.12) write back into their own copy of the file, not
// through this type.
type Reader struct {
	data []byte
	pos  int
}

// New wraps data for token scanning. data is never copied or mutated.
func New(data []byte) *Reader {
	return &Reader{data: data}
}

// Len returns the total number of bytes in the buffer.
func (r *Reader) Len() int { return len(r.data) }

// Bytes returns the whole backing buffer, for callers (the document reader)
// that need to slice raw stream content directly.
func (r *Reader) Bytes() []byte { return r.data }

// Tell returns the current absolute cursor position.
func (r *Reader) Tell() int { return r.pos }

// Seek repositions the cursor to an absolute offset, clamping into
// [0, len(data)].
func (r *Reader) Seek(absolute int) {
	if absolute < 0 {
		absolute = 0
	}
	if absolute > len(r.data) {
		absolute = len(r.data)
	}
	r.pos = absolute
}

// Advance moves the cursor by delta bytes (which may be negative).
func (r *Reader) Advance(delta int) {
	r.Seek(r.pos + delta)
}

// AtEOF reports whether the cursor has reached the end of the buffer.
func (r *Reader) AtEOF() bool {
	return r.pos >= len(r.data)
}

// Read consumes and returns up to n bytes starting at the cursor, advancing
// it by the number of bytes actually returned.
func (r *Reader) Read(n int) []byte {
	end := r.pos + n
	if end > len(r.data) {
		end = len(r.data)
	}
	out := r.data[r.pos:end]
	r.pos = end
	return out
}

// TempSeek repositions the cursor to absolute, runs fn, then restores the
// original position unconditionally — including when fn panics — matching
// the "scoped reposition with guaranteed restore on all exit paths"
// contract of §4.1.
func (r *Reader) TempSeek(absolute int, fn func()) {
	saved := r.pos
	defer func() { r.pos = saved }()
	r.Seek(absolute)
	fn()
}

// ReadUntilDelimiter scans forward until it hits a byte in set (or, if eof
// is true, runs off the end of the buffer), returning the bytes consumed
// before the delimiter and which delimiter matched. The cursor ends up
// immediately after the delimiter byte, or at EOF. Among candidate
// delimiters the earliest byte position wins; ties cannot occur since a
// single byte cannot simultaneously be two different delimiters.
//
// found is false only when EOF is reached without any byte in set, and EOF
// is not itself an accepted candidate (eof == false).
func (r *Reader) ReadUntilDelimiter(set []byte, eof bool) (before []byte, which Delimiter, found bool) {
	start := r.pos
	isCandidate := func(b byte) bool {
		for _, c := range set {
			if c == b {
				return true
			}
		}
		return false
	}
	for r.pos < len(r.data) {
		b := r.data[r.pos]
		if isCandidate(b) {
			before = r.data[start:r.pos]
			which = Delimiter(b)
			r.pos++
			return before, which, true
		}
		r.pos++
	}
	before = r.data[start:r.pos]
	if eof {
		return before, DelimEOF, true
	}
	return before, DelimNone, false
}

// ReadLine reads one line terminated by CRLF, CR, LF, or EOF, returning the
// line content without the terminator. The cursor is left just past the
// terminator (or at EOF).
func (r *Reader) ReadLine() []byte {
	start := r.pos
	for r.pos < len(r.data) {
		b := r.data[r.pos]
		if b == '\n' {
			line := r.data[start:r.pos]
			r.pos++
			return line
		}
		if b == '\r' {
			line := r.data[start:r.pos]
			r.pos++
			if r.pos < len(r.data) && r.data[r.pos] == '\n' {
				r.pos++
			}
			return line
		}
		r.pos++
	}
	return r.data[start:r.pos]
}

// ReadNextToken skips leading whitespace, then returns the bytes up to the
// next delimiter in {CR, LF, TAB, SPACE, EOF}, leaving the cursor
// immediately after the delimiter (or at EOF). This is the "raw token"
// primitive used to scan `N G obj` triplets and `xref`/`trailer`/`startxref`
// keywords without invoking the full object grammar.
func (r *Reader) ReadNextToken() []byte {
	for r.pos < len(r.data) && isWhitespace(r.data[r.pos]) {
		r.pos++
	}
	start := r.pos
	for r.pos < len(r.data) {
		switch r.data[r.pos] {
		case '\r', '\n', '\t', ' ':
			tok := r.data[start:r.pos]
			r.pos++
			return tok
		}
		r.pos++
	}
	return r.data[start:r.pos]
}

// SkipWhitespace advances the cursor past any run of whitespace bytes.
func (r *Reader) SkipWhitespace() {
	for r.pos < len(r.data) && isWhitespace(r.data[r.pos]) {
		r.pos++
	}
}

// PeekByte returns the byte at the cursor without advancing, and false if at
// EOF.
func (r *Reader) PeekByte() (byte, bool) {
	if r.pos >= len(r.data) {
		return 0, false
	}
	return r.data[r.pos], true
}
