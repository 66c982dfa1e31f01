package transform

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/benkugler-labs/pdfreweave/config"
	"github.com/benkugler-labs/pdfreweave/document"
	"github.com/benkugler-labs/pdfreweave/raster"
	"github.com/benkugler-labs/pdfreweave/value"
)

func buildLinearDoc() *document.Document {
	d := document.New()
	d.Trailer = value.NewDict(value.DictEntry{Key: "Root", Value: value.XRef{ID: 1}})
	d.Replace(document.Object{Ref: value.XRef{ID: 1}, Content: value.NewDict(
		value.DictEntry{Key: "Type", Value: value.Name("Catalog")},
		value.DictEntry{Key: "Pages", Value: value.XRef{ID: 2}},
	)})
	d.Replace(document.Object{Ref: value.XRef{ID: 2}, Content: value.NewDict(
		value.DictEntry{Key: "Type", Value: value.Name("Pages")},
		value.DictEntry{Key: "Kids", Value: value.Array{value.XRef{ID: 3}}},
		value.DictEntry{Key: "Count", Value: value.Integer(1)},
	)})
	d.Replace(document.Object{Ref: value.XRef{ID: 3}, Content: value.NewDict(
		value.DictEntry{Key: "Type", Value: value.Name("Page")},
		value.DictEntry{Key: "Parent", Value: value.XRef{ID: 2}},
	)})
	return d
}

func TestRemoveOrphansDeletesUnreferencedObjects(t *testing.T) {
	d := buildLinearDoc()
	d.Replace(document.Object{Ref: value.XRef{ID: 99}, Content: value.NewDict(
		value.DictEntry{Key: "Foo", Value: value.Integer(1)},
	)})
	n := RemoveOrphans(d)
	if n != 1 {
		t.Fatalf("got %d removed, want 1", n)
	}
	if _, ok := d.ByXref(value.XRef{ID: 99}); ok {
		t.Fatal("orphan still present")
	}
	if _, ok := d.ByXref(value.XRef{ID: 3}); !ok {
		t.Fatal("reachable page was removed")
	}
}

func TestFixExplicitLengths(t *testing.T) {
	d := document.New()
	d.Replace(document.Object{Ref: value.XRef{ID: 1}, Content: value.NewDict(
		value.DictEntry{Key: "Length", Value: value.XRef{ID: 2}},
	), Raw: []byte("0123456789")})
	n := FixExplicitLengths(d)
	if n != 1 {
		t.Fatalf("got %d fixed, want 1", n)
	}
	obj, _ := d.ByXref(value.XRef{ID: 1})
	got, _ := obj.Content.(value.Dict).Get("Length")
	if got != value.Integer(10) {
		t.Fatalf("got Length=%v, want 10", got)
	}
}

func TestStripMetadataRemovesPrefixedKeysRecursively(t *testing.T) {
	d := document.New()
	d.Replace(document.Object{Ref: value.XRef{ID: 1}, Content: value.NewDict(
		value.DictEntry{Key: "Title", Value: value.ByteString("keep")},
		value.DictEntry{Key: "PTEXFooter", Value: value.ByteString("drop")},
		value.DictEntry{Key: "Nested", Value: value.NewDict(
			value.DictEntry{Key: "PTEXInfo", Value: value.ByteString("drop too")},
			value.DictEntry{Key: "Keep", Value: value.Integer(1)},
		)},
	)})
	n := StripMetadata(d, nil)
	if n != 1 {
		t.Fatalf("got %d stripped, want 1", n)
	}
	obj, _ := d.ByXref(value.XRef{ID: 1})
	dict := obj.Content.(value.Dict)
	if dict.Has("PTEXFooter") {
		t.Fatal("PTEXFooter not stripped")
	}
	nestedV, _ := dict.Get("Nested")
	nested := nestedV.(value.Dict)
	if nested.Has("PTEXInfo") {
		t.Fatal("nested PTEXInfo not stripped")
	}
	if !nested.Has("Keep") {
		t.Fatal("unrelated nested key was stripped")
	}
}

func TestDeduplicateImagesRelinksDuplicates(t *testing.T) {
	d := document.New()
	d.Trailer = value.NewDict(value.DictEntry{Key: "Root", Value: value.XRef{ID: 10}})
	shared := []byte("same bytes")
	d.Replace(document.Object{Ref: value.XRef{ID: 1}, Content: value.NewDict(
		value.DictEntry{Key: "Subtype", Value: value.Name("Image")},
	), Raw: shared})
	d.Replace(document.Object{Ref: value.XRef{ID: 2}, Content: value.NewDict(
		value.DictEntry{Key: "Subtype", Value: value.Name("Image")},
	), Raw: append([]byte(nil), shared...)})
	d.Replace(document.Object{Ref: value.XRef{ID: 10}, Content: value.NewDict(
		value.DictEntry{Key: "Im1", Value: value.XRef{ID: 1}},
		value.DictEntry{Key: "Im2", Value: value.XRef{ID: 2}},
	)})

	deduped, saved := DeduplicateImages(d)
	if saved != int64(len(shared)) {
		t.Fatalf("got saved=%d, want %d", saved, len(shared))
	}
	root, _ := deduped.ByXref(value.XRef{ID: 10})
	dict := root.Content.(value.Dict)
	im1, _ := dict.Get("Im1")
	im2, _ := dict.Get("Im2")
	if im1 != im2 {
		t.Fatalf("references were not coalesced: %v vs %v", im1, im2)
	}
}

func TestMergeTemplateRenamesIntoFreeSpace(t *testing.T) {
	base := buildLinearDoc()
	tmpl := document.New()
	tmpl.Trailer = value.NewDict(value.DictEntry{Key: "Root", Value: value.XRef{ID: 1}})
	tmpl.Replace(document.Object{Ref: value.XRef{ID: 1}, Content: value.NewDict(
		value.DictEntry{Key: "Type", Value: value.Name("Annot")},
		value.DictEntry{Key: "Next", Value: value.XRef{ID: 2}},
	)})
	tmpl.Replace(document.Object{Ref: value.XRef{ID: 2}, Content: value.NewDict(
		value.DictEntry{Key: "Type", Value: value.Name("Font")},
	)})

	if err := MergeTemplate(base, tmpl); err != nil {
		t.Fatal(err)
	}
	// The template's two objects must now live at ids 4 and 5 (1-3 taken).
	if _, ok := base.ByXref(value.XRef{ID: 4}); !ok {
		t.Fatal("merged object missing at expected free id")
	}
}

func TestEmbedPayload(t *testing.T) {
	d := document.New()
	ref := EmbedPayload(d, "report.txt", []byte("hello"), time.Unix(0, 0))
	obj, ok := d.ByXref(ref)
	if !ok {
		t.Fatal("payload object missing")
	}
	if string(obj.Raw) != "hello" {
		t.Fatalf("got raw %q", obj.Raw)
	}
}

func TestAnalyzeBucketsBySubtype(t *testing.T) {
	d := document.New()
	d.Replace(document.Object{Ref: value.XRef{ID: 1}, Content: value.NewDict(
		value.DictEntry{Key: "Type", Value: value.Name("Font")},
		value.DictEntry{Key: "Subtype", Value: value.Name("Type1")},
	)})
	r := Analyze(d)
	if r.BytesByKind["Font/Type1"] == 0 {
		t.Fatalf("missing Font/Type1 bucket: %#v", r.BytesByKind)
	}
	if r.TotalBytes != r.BytesByKind["Font/Type1"] {
		t.Fatalf("total %d does not match single bucket %d", r.TotalBytes, r.BytesByKind["Font/Type1"])
	}
}

// fakeImageRasterizer probes/converts against a real in-memory PNG so the
// lossless re-encode path in ResampleImages exercises actual pixel data.
type fakeImageRasterizer struct {
	nativeW, nativeH int
}

func (f fakeImageRasterizer) Probe(ctx context.Context, path string) (raster.ImageInfo, error) {
	return raster.ImageInfo{WidthPx: f.nativeW, HeightPx: f.nativeH, DPI: 300}, nil
}

func (f fakeImageRasterizer) Convert(ctx context.Context, src, dst string, opts raster.Options) error {
	img := image.NewRGBA(image.Rect(0, 0, opts.WidthPx, opts.HeightPx))
	for y := 0; y < opts.HeightPx; y++ {
		for x := 0; x < opts.WidthPx; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	return writeFile(dst, buf.Bytes())
}

func (f fakeImageRasterizer) Flatten(ctx context.Context, fg, mask, dst string, background [3]uint8) error {
	return f.Convert(ctx, fg, dst, raster.Options{WidthPx: f.nativeW, HeightPx: f.nativeH})
}

func buildDocWithImage(t *testing.T, width, height int) (*document.Document, value.XRef) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}

	d := document.New()
	imgRef := value.XRef{ID: 10}
	d.Replace(document.Object{Ref: imgRef, Content: value.NewDict(
		value.DictEntry{Key: "Type", Value: value.Name("XObject")},
		value.DictEntry{Key: "Subtype", Value: value.Name("Image")},
		value.DictEntry{Key: "Width", Value: value.Integer(width)},
		value.DictEntry{Key: "Height", Value: value.Integer(height)},
	), Raw: buf.Bytes()})

	contentStream := []byte("q 200 0 0 200 0 0 cm /Im0 Do Q")
	contentRef := value.XRef{ID: 3}
	d.Replace(document.Object{Ref: contentRef, Content: value.NewDict(), Raw: contentStream})

	pageRef := value.XRef{ID: 2}
	d.Replace(document.Object{Ref: pageRef, Content: value.NewDict(
		value.DictEntry{Key: "Type", Value: value.Name("Page")},
		value.DictEntry{Key: "Contents", Value: contentRef},
		value.DictEntry{Key: "Resources", Value: value.NewDict(
			value.DictEntry{Key: "XObject", Value: value.NewDict(
				value.DictEntry{Key: "Im0", Value: imgRef},
			)},
		)},
	)})
	d.Replace(document.Object{Ref: value.XRef{ID: 1}, Content: value.NewDict(
		value.DictEntry{Key: "Type", Value: value.Name("Catalog")},
		value.DictEntry{Key: "Pages", Value: value.XRef{ID: 4}},
	)})
	d.Replace(document.Object{Ref: value.XRef{ID: 4}, Content: value.NewDict(
		value.DictEntry{Key: "Type", Value: value.Name("Pages")},
		value.DictEntry{Key: "Kids", Value: value.Array{pageRef}},
		value.DictEntry{Key: "Count", Value: value.Integer(1)},
	)})
	d.Trailer = value.NewDict(value.DictEntry{Key: "Root", Value: value.XRef{ID: 1}})
	return d, imgRef
}

func TestResampleImagesDownscalesOversizedImage(t *testing.T) {
	d, imgRef := buildDocWithImage(t, 2000, 2000)
	rz := fakeImageRasterizer{nativeW: 2000, nativeH: 2000}

	n, err := ResampleImages(context.Background(), d, rz, 150, false, config.DefaultDPIExtentFactor)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("got %d resampled, want 1", n)
	}
	obj, _ := d.ByXref(imgRef)
	dict := obj.Content.(value.Dict)
	widthV, _ := dict.Get("Width")
	if w, _ := value.AsInt(widthV); w >= 2000 {
		t.Fatalf("width not reduced: %v", w)
	}
}

func TestFlattenAlphaRemovesSMask(t *testing.T) {
	d, imgRef := buildDocWithImage(t, 100, 100)
	maskRef := value.XRef{ID: 20}
	d.Replace(document.Object{Ref: maskRef, Content: value.NewDict(
		value.DictEntry{Key: "Type", Value: value.Name("XObject")},
		value.DictEntry{Key: "Subtype", Value: value.Name("Image")},
		value.DictEntry{Key: "Width", Value: value.Integer(100)},
		value.DictEntry{Key: "Height", Value: value.Integer(100)},
	), Raw: []byte{0}})
	obj, _ := d.ByXref(imgRef)
	dict := obj.Content.(value.Dict)
	newDict := dict.Clone()
	newDict.Set("SMask", maskRef)
	d.Replace(document.Object{Ref: imgRef, Content: newDict, Raw: obj.Raw})

	rz := fakeImageRasterizer{nativeW: 100, nativeH: 100}
	n, err := FlattenAlpha(context.Background(), d, rz, [3]uint8{255, 255, 255})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("got %d flattened, want 1", n)
	}
	obj, _ = d.ByXref(imgRef)
	if obj.Content.(value.Dict).Has("SMask") {
		t.Fatal("SMask still present after flattening")
	}
}
