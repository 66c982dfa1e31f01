package tokenizer

import (
	"bytes"
	"testing"
)

func TestReadUntilDelimiter(t *testing.T) {
	r := New([]byte("123 456\r\nrest"))
	before, which, found := r.ReadUntilDelimiter([]byte{' ', '\r', '\n'}, false)
	if !found || string(before) != "123" || which != ' ' {
		t.Fatalf("got %q %v %v", before, which, found)
	}
	before, which, found = r.ReadUntilDelimiter([]byte{' ', '\r', '\n'}, false)
	if !found || string(before) != "456" || which != '\r' {
		t.Fatalf("got %q %v %v", before, which, found)
	}
	if string(r.Read(5)) != "\nrest" {
		t.Fatalf("expected cursor right after the CR, not swallowing the LF")
	}
}

func TestReadUntilDelimiterEOF(t *testing.T) {
	r := New([]byte("nodelim"))
	_, _, found := r.ReadUntilDelimiter([]byte{' '}, false)
	if found {
		t.Fatalf("expected not found when EOF hit with no candidate match")
	}
	r.Seek(0)
	before, which, found := r.ReadUntilDelimiter([]byte{' '}, true)
	if !found || which != DelimEOF || string(before) != "nodelim" {
		t.Fatalf("got %q %v %v", before, which, found)
	}
}

func TestReadLineVariants(t *testing.T) {
	for _, c := range []struct{ in, want string }{
		{"abc\r\ndef", "abc"},
		{"abc\rdef", "abc"},
		{"abc\ndef", "abc"},
		{"abc", "abc"},
	} {
		r := New([]byte(c.in))
		if got := string(r.ReadLine()); got != c.want {
			t.Fatalf("ReadLine(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTempSeekRestoresOnPanic(t *testing.T) {
	r := New([]byte("0123456789"))
	r.Seek(3)
	func() {
		defer func() { recover() }()
		r.TempSeek(7, func() { panic("boom") })
	}()
	if r.Tell() != 3 {
		t.Fatalf("expected cursor restored to 3 after panic, got %d", r.Tell())
	}
}

func TestReadNextToken(t *testing.T) {
	r := New([]byte("  12 0 obj\n<<"))
	toks := [][]byte{r.ReadNextToken(), r.ReadNextToken(), r.ReadNextToken()}
	want := []string{"12", "0", "obj"}
	for i, tok := range toks {
		if string(tok) != want[i] {
			t.Fatalf("token %d = %q, want %q", i, tok, want[i])
		}
	}
	if !bytes.Equal(r.Read(2), []byte("<<")) {
		t.Fatalf("expected remaining bytes to be <<")
	}
}
