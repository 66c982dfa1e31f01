// Package serializer re-emits value.Value trees as PDF object syntax bytes
// (§4.7), tracking a byte-offset cursor so markers (value.Marker) can record
// their own final position for later patching -- the mechanism the
// signature fixup pass depends on. The canonical formatting rules (name
// escaping, literal-vs-hex string choice, sorted pretty dicts) are new, but
// the offset-tracked-writer shape is grounded on model/write.go's `output`
// struct in the reference implementation this package descends from.
package serializer

import (
	"bytes"
	"fmt"

	"golang.org/x/text/encoding/unicode"

	"github.com/benkugler-labs/pdfreweave/value"
)

// Serializer accumulates serialized bytes while tracking the absolute byte
// offset of everything written, including bytes the caller writes directly
// via WriteRaw. The offsets are local to this Serializer; the writer emits
// the "id gen obj" envelope and raw stream bytes itself and adds its own
// base offset to Marks().
type Serializer struct {
	buf    bytes.Buffer
	offset int
	marks  map[string]int
	Pretty bool
}

// New returns a Serializer starting at byte offset 0.
func New(pretty bool) *Serializer {
	return &Serializer{marks: make(map[string]int), Pretty: pretty}
}

// Offset returns the current absolute byte offset.
func (s *Serializer) Offset() int { return s.offset }

// SetOffset overrides the cursor; offsets recorded afterwards count on
// from n.
func (s *Serializer) SetOffset(n int) { s.offset = n }

// Bytes returns everything written so far.
func (s *Serializer) Bytes() []byte { return s.buf.Bytes() }

// Mark returns the offset recorded under name by a previously-serialized
// value.Marker, if any.
func (s *Serializer) Mark(name string) (int, bool) {
	n, ok := s.marks[name]
	return n, ok
}

// Marks returns every offset recorded so far, keyed by marker label. Used
// by the writer to translate this serializer's local offsets into
// whole-file offsets once its bytes are appended to the output.
func (s *Serializer) Marks() map[string]int {
	out := make(map[string]int, len(s.marks))
	for k, v := range s.marks {
		out[k] = v
	}
	return out
}

// WriteRaw appends b verbatim, advancing the cursor.
func (s *Serializer) WriteRaw(b []byte) {
	s.buf.Write(b)
	s.offset += len(b)
}

// WriteValue serializes v, per the rules of §4.7.
func (s *Serializer) WriteValue(v value.Value) {
	switch v := v.(type) {
	case nil:
		s.WriteRaw([]byte("null"))
	case value.Null:
		s.WriteRaw([]byte("null"))
	case value.Boolean:
		if v {
			s.WriteRaw([]byte("true"))
		} else {
			s.WriteRaw([]byte("false"))
		}
	case value.Integer:
		s.WriteRaw([]byte(fmt.Sprintf("%d", int64(v))))
	case value.Real:
		s.WriteRaw([]byte(formatReal(float64(v))))
	case value.Name:
		s.WriteRaw([]byte(formatName(v)))
	case value.ByteString:
		s.WriteRaw([]byte(formatString(v)))
	case value.Array:
		s.writeArray(v)
	case value.Dict:
		s.writeDict(v)
	case value.XRef:
		s.WriteRaw([]byte(fmt.Sprintf("%d %d R", v.ID, v.Gen)))
	case value.Marker:
		s.marks[v.Label] = s.offset
		if v.Child != nil {
			s.WriteValue(v.Child)
		} else {
			s.WriteRaw(v.Raw)
		}
	default:
		panic(fmt.Sprintf("serializer: unhandled value type %T", v))
	}
}

func (s *Serializer) writeArray(a value.Array) {
	s.WriteRaw([]byte("["))
	for i, e := range a {
		if i > 0 {
			s.WriteRaw([]byte(" "))
		}
		s.WriteValue(e)
	}
	s.WriteRaw([]byte("]"))
}

// writeDict emits entries in insertion order in compact mode and
// lexicographic-by-key order in pretty mode (§4.7, §5 determinism).
func (s *Serializer) writeDict(d value.Dict) {
	if s.Pretty {
		s.WriteRaw([]byte("<<\n"))
		for _, k := range d.SortedKeys() {
			v, _ := d.Get(k)
			s.WriteRaw([]byte(formatName(k)))
			s.WriteRaw([]byte(" "))
			s.WriteValue(v)
			s.WriteRaw([]byte("\n"))
		}
		s.WriteRaw([]byte(">>"))
		return
	}
	s.WriteRaw([]byte("<<"))
	for _, e := range d.Entries() {
		s.WriteRaw([]byte(" "))
		s.WriteRaw([]byte(formatName(e.Key)))
		s.WriteRaw([]byte(" "))
		s.WriteValue(e.Value)
	}
	s.WriteRaw([]byte(" >>"))
}

// formatReal prints a real with exactly 3 fractional digits, stripping a
// trailing ".000" for integer-valued reals (§4.7).
func formatReal(f float64) string {
	s := fmt.Sprintf("%.3f", f)
	const zeroSuffix = ".000"
	if len(s) >= len(zeroSuffix) && s[len(s)-len(zeroSuffix):] == zeroSuffix {
		return s[:len(s)-len(zeroSuffix)]
	}
	return s
}

// formatName escapes every byte outside the printable ASCII alphanumeric
// set as #hh (§3), prefixed with /.
func formatName(n value.Name) string {
	var out bytes.Buffer
	out.WriteByte('/')
	for i := 0; i < len(n); i++ {
		b := n[i]
		if isAlnum(b) {
			out.WriteByte(b)
		} else {
			fmt.Fprintf(&out, "#%02X", b)
		}
	}
	return out.String()
}

func isAlnum(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

// EncodeTextString encodes s as a PDF text string per the UTF-16BE
// convention (an ASCII string whose bytes are all below 0x80 is left as
// PDFDocEncoding instead, since it round-trips through every reader and
// needs no byte-order mark). Used for the human-authored metadata
// fields on a signature dictionary, which may carry non-Latin1 text.
func EncodeTextString(s string) (value.ByteString, error) {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			enc := unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
			b, err := enc.NewEncoder().Bytes([]byte(s))
			if err != nil {
				return "", fmt.Errorf("serializer: encode text string: %w", err)
			}
			return value.ByteString(b), nil
		}
	}
	return value.ByteString(s), nil
}

// formatString chooses literal or hex form, whichever is no longer (§4.7).
func formatString(s value.ByteString) string {
	literal := literalForm(s)
	hexForm := hexForm(s)
	if len(literal) <= len(hexForm) {
		return literal
	}
	return hexForm
}

func literalForm(s value.ByteString) string {
	var out bytes.Buffer
	out.WriteByte('(')
	for _, b := range s {
		switch b {
		case '(', ')', '\\':
			out.WriteByte('\\')
			out.WriteByte(b)
		default:
			if b < 0x20 || b >= 0x7f {
				fmt.Fprintf(&out, "\\%03o", b)
			} else {
				out.WriteByte(b)
			}
		}
	}
	out.WriteByte(')')
	return out.String()
}

func hexForm(s value.ByteString) string {
	const digits = "0123456789ABCDEF"
	out := make([]byte, 0, len(s)*2+2)
	out = append(out, '<')
	for _, b := range s {
		out = append(out, digits[b>>4], digits[b&0xf])
	}
	out = append(out, '>')
	return string(out)
}
