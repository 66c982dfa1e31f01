package writer

import (
	"bytes"
	"testing"

	"github.com/benkugler-labs/pdfreweave/document"
	"github.com/benkugler-labs/pdfreweave/value"
)

func buildDoc() *document.Document {
	d := document.New()
	d.Trailer = value.NewDict(value.DictEntry{Key: "Root", Value: value.XRef{ID: 1, Gen: 0}})
	d.Replace(document.Object{Ref: value.XRef{ID: 1, Gen: 0}, Content: value.NewDict(
		value.DictEntry{Key: "Type", Value: value.Name("Catalog")},
		value.DictEntry{Key: "Pages", Value: value.XRef{ID: 2, Gen: 0}},
	)})
	d.Replace(document.Object{Ref: value.XRef{ID: 2, Gen: 0}, Content: value.NewDict(
		value.DictEntry{Key: "Type", Value: value.Name("Pages")},
		value.DictEntry{Key: "Kids", Value: value.Array{value.XRef{ID: 3, Gen: 0}}},
		value.DictEntry{Key: "Count", Value: value.Integer(1)},
	)})
	d.Replace(document.Object{Ref: value.XRef{ID: 3, Gen: 0}, Content: value.NewDict(
		value.DictEntry{Key: "Type", Value: value.Name("Page")},
		value.DictEntry{Key: "Parent", Value: value.XRef{ID: 2, Gen: 0}},
		value.DictEntry{Key: "Contents", Value: value.XRef{ID: 4, Gen: 0}},
	)})
	d.Replace(document.Object{
		Ref:     value.XRef{ID: 4, Gen: 0},
		Content: value.NewDict(value.DictEntry{Key: "Length", Value: value.Integer(0)}),
		Raw:     []byte("q 0 0 0 RG Q"),
	})
	return d
}

func TestWriteClassicalRoundTrips(t *testing.T) {
	d := buildDoc()
	var out bytes.Buffer
	if err := Write(d, Config{}, &out); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(out.Bytes(), []byte("%PDF-1.4\n")) {
		t.Fatalf("unexpected header: %q", out.Bytes()[:20])
	}

	got, err := document.Read(out.Bytes())
	if err != nil {
		t.Fatalf("round trip read failed: %v", err)
	}
	rootV, _ := got.Trailer.Get("Root")
	if !value.Equal(rootV, value.XRef{ID: 1, Gen: 0}) {
		t.Fatalf("got trailer %#v", got.Trailer)
	}
	contentObj, ok := got.ByXref(value.XRef{ID: 4, Gen: 0})
	if !ok || string(contentObj.Raw) != "q 0 0 0 RG Q" {
		t.Fatalf("got content object %#v", contentObj)
	}
}

func TestWriteXRefStreamRoundTrips(t *testing.T) {
	d := buildDoc()
	var out bytes.Buffer
	if err := Write(d, Config{UseXRefStream: true}, &out); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(out.Bytes(), []byte("%PDF-1.5\n")) {
		t.Fatalf("unexpected header: %q", out.Bytes()[:20])
	}

	got, err := document.Read(out.Bytes())
	if err != nil {
		t.Fatalf("round trip read failed: %v", err)
	}
	page, ok := got.ByXref(value.XRef{ID: 3, Gen: 0})
	if !ok {
		t.Fatal("missing page object")
	}
	dict := page.Content.(value.Dict)
	contentsV, _ := dict.Get("Contents")
	if !value.Equal(contentsV, value.XRef{ID: 4, Gen: 0}) {
		t.Fatalf("got page %#v", dict)
	}
}

func TestWriteWithMarksReportsWholeFileOffset(t *testing.T) {
	d := buildDoc()
	d.Replace(document.Object{Ref: value.XRef{ID: 5, Gen: 0}, Content: value.NewDict(
		value.DictEntry{Key: "Marked", Value: value.Marker{Label: "placeholder", Raw: []byte("XYZ")}},
	)})

	var out bytes.Buffer
	marks, err := WriteWithMarks(d, Config{}, &out)
	if err != nil {
		t.Fatal(err)
	}
	off, ok := marks["placeholder"]
	if !ok {
		t.Fatal("missing placeholder mark")
	}
	if got := out.Bytes()[off : off+3]; string(got) != "XYZ" {
		t.Fatalf("mark %d does not point at placeholder bytes, got %q", off, got)
	}
}

func TestWriteObjectStreamsRoundTrip(t *testing.T) {
	d := buildDoc()
	var out bytes.Buffer
	cfg := Config{UseObjectStreams: true, ObjStmMaxChildren: 2}
	if err := Write(d, cfg, &out); err != nil {
		t.Fatal(err)
	}

	got, err := document.Read(out.Bytes())
	if err != nil {
		t.Fatalf("round trip read failed: %v", err)
	}
	catalog, ok := got.ByXref(value.XRef{ID: 1, Gen: 0})
	if !ok {
		t.Fatal("missing catalog (expected packed into an object stream)")
	}
	dict := catalog.Content.(value.Dict)
	pagesV, _ := dict.Get("Pages")
	if !value.Equal(pagesV, value.XRef{ID: 2, Gen: 0}) {
		t.Fatalf("got catalog %#v", dict)
	}
	pages := got.Pages()
	if len(pages) != 1 || pages[0] != (value.XRef{ID: 3, Gen: 0}) {
		t.Fatalf("got pages %#v", pages)
	}
}
