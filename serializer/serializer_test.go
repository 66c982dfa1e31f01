package serializer

import (
	"strings"
	"testing"

	"github.com/benkugler-labs/pdfreweave/value"
)

func TestScalars(t *testing.T) {
	cases := []struct {
		v    value.Value
		want string
	}{
		{value.Null{}, "null"},
		{value.Boolean(true), "true"},
		{value.Integer(-7), "-7"},
		{value.Real(3), "3"},
		{value.Real(3.14159), "3.142"},
		{value.Name("A B"), "/A#20B"},
		{value.XRef{ID: 5, Gen: 0}, "5 0 R"},
	}
	for _, c := range cases {
		s := New(false)
		s.WriteValue(c.v)
		if got := string(s.Bytes()); got != c.want {
			t.Errorf("serialize(%#v) = %q, want %q", c.v, got, c.want)
		}
	}
}

func TestStringChoosesShorterForm(t *testing.T) {
	s := New(false)
	s.WriteValue(value.ByteString("hello"))
	if got := string(s.Bytes()); got != "(hello)" {
		t.Fatalf("got %q", got)
	}
}

func TestStringEscapesLiteral(t *testing.T) {
	s := New(false)
	s.WriteValue(value.ByteString("a(b)c\\d"))
	want := `(a\(b\)c\\d)`
	if got := string(s.Bytes()); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestArrayAndCompactDict(t *testing.T) {
	s := New(false)
	s.WriteValue(value.Array{value.Integer(1), value.Name("X")})
	if got := string(s.Bytes()); got != "[1 /X]" {
		t.Fatalf("got %q", got)
	}

	s2 := New(false)
	s2.WriteValue(value.NewDict(value.DictEntry{Key: "B", Value: value.Integer(2)}, value.DictEntry{Key: "A", Value: value.Integer(1)}))
	if got := string(s2.Bytes()); got != "<< /B 2 /A 1 >>" {
		t.Fatalf("compact mode should preserve insertion order, got %q", got)
	}
}

func TestPrettyDictSortedMultiline(t *testing.T) {
	s := New(true)
	s.WriteValue(value.NewDict(value.DictEntry{Key: "Z", Value: value.Integer(1)}, value.DictEntry{Key: "A", Value: value.Integer(2)}))
	got := string(s.Bytes())
	if !strings.HasPrefix(got, "<<\n/A 2\n/Z 1\n>>") {
		t.Fatalf("pretty mode should sort by key, got %q", got)
	}
}

func TestMarkerRecordsOffset(t *testing.T) {
	s := New(false)
	s.WriteRaw([]byte("xxxxx"))
	s.WriteValue(value.Marker{Label: "len", Raw: []byte("12345")})
	off, ok := s.Mark("len")
	if !ok || off != 5 {
		t.Fatalf("got offset %d, ok=%v", off, ok)
	}
}

func TestMarkerWithChild(t *testing.T) {
	s := New(false)
	s.WriteValue(value.Marker{Label: "ref", Child: value.Integer(42)})
	if got := string(s.Bytes()); got != "42" {
		t.Fatalf("got %q", got)
	}
}

func TestEncodeTextStringLeavesASCIIUnchanged(t *testing.T) {
	got, err := EncodeTextString("Jane Doe")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "Jane Doe" {
		t.Fatalf("got %q", got)
	}
}

func TestEncodeTextStringUsesUTF16BEForNonASCII(t *testing.T) {
	got, err := EncodeTextString("José")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) < 2 || got[0] != 0xFE || got[1] != 0xFF {
		t.Fatalf("expected a UTF-16BE BOM prefix, got %x", []byte(got))
	}
}
