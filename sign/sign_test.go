package sign

import (
	"bytes"
	"context"
	"testing"

	"github.com/benkugler-labs/pdfreweave/document"
	"github.com/benkugler-labs/pdfreweave/value"
	"github.com/benkugler-labs/pdfreweave/writer"
)

// fakeSigner returns a fixed-size signature regardless of input, so the
// dry-run placeholder and the real signature always agree in length.
type fakeSigner struct{ sig []byte }

func (f fakeSigner) Sign(ctx context.Context, data []byte) ([]byte, error) {
	return f.sig, nil
}

func buildSignableDoc() *document.Document {
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
	)})
	return d
}

func TestInjectThenFixupRoundTrips(t *testing.T) {
	signer := fakeSigner{sig: bytes.Repeat([]byte{0xAB}, 64)}
	doc := buildSignableDoc()

	ctx := context.Background()
	sigRef, err := Inject(ctx, doc, signer, Options{Page: value.XRef{ID: 3, Gen: 0}, Rect: [4]float64{10, 10, 150, 90}})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := doc.ByXref(sigRef); !ok {
		t.Fatal("missing injected /Sig object")
	}

	var out bytes.Buffer
	marks, err := writer.WriteWithMarks(doc, writer.Config{}, &out)
	if err != nil {
		t.Fatal(err)
	}

	signed, err := Fixup(ctx, signer, out.Bytes(), marks)
	if err != nil {
		t.Fatal(err)
	}
	if len(signed) != len(out.Bytes()) {
		t.Fatalf("fixup changed file length: %d vs %d", len(signed), len(out.Bytes()))
	}

	got, err := document.Read(signed)
	if err != nil {
		t.Fatalf("signed file failed to parse: %v", err)
	}
	sigObj, ok := got.ByXref(sigRef)
	if !ok {
		t.Fatal("missing /Sig object after round trip")
	}
	dict := sigObj.Content.(value.Dict)
	contentsV, _ := dict.Get("Contents")
	contents, ok := contentsV.(value.ByteString)
	if !ok {
		t.Fatalf("Contents did not parse back as a string: %#v", contentsV)
	}
	if !bytes.Equal([]byte(contents), signer.sig) {
		t.Fatalf("got signature %x, want %x", contents, signer.sig)
	}
}
