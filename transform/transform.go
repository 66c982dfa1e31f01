// Package transform implements the transformation filter pipeline (§4.11):
// orphan removal, duplicate-image coalescing, image resampling and alpha
// flattening, explicit-length repair, metadata stripping, template
// merging, PDF/A-1b conformance, and payload embedding. Each filter is
// grounded on its own file under llpdf/filters in the reference
// implementation this package descends from, generalized from that
// package's one-class-per-filter, PDFFilter.run() shape into a flat set of
// functions operating on a *document.Document.
package transform

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"image/png"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdfcpu/pdfcpu/pkg/log"

	"github.com/benkugler-labs/pdfreweave/codec"
	"github.com/benkugler-labs/pdfreweave/config"
	"github.com/benkugler-labs/pdfreweave/content"
	"github.com/benkugler-labs/pdfreweave/document"
	"github.com/benkugler-labs/pdfreweave/fontinspect"
	"github.com/benkugler-labs/pdfreweave/parser"
	"github.com/benkugler-labs/pdfreweave/raster"
	"github.com/benkugler-labs/pdfreweave/relink"
	"github.com/benkugler-labs/pdfreweave/serializer"
	"github.com/benkugler-labs/pdfreweave/value"
)

// RemoveOrphans deletes every object unreachable from the trailer (§4.11.a),
// mirroring DeleteOrphanedObjectsFilter's mark-and-sweep. It returns the
// number of objects removed.
func RemoveOrphans(doc *document.Document) int {
	referenced := map[value.XRef]bool{}
	mark := func(ref value.XRef) { referenced[ref] = true }
	for _, obj := range doc.Objects() {
		value.Visit(obj.Content, mark)
	}
	value.Visit(doc.Trailer, mark)

	var orphans []value.XRef
	for _, obj := range doc.Objects() {
		if !referenced[obj.Ref] {
			orphans = append(orphans, obj.Ref)
		}
	}
	for _, ref := range orphans {
		doc.Delete(ref)
	}
	log.Optimize.Printf("removed %d orphaned objects\n", len(orphans))
	return len(orphans)
}

// FixExplicitLengths rewrites any stream object whose /Length is an
// indirect reference into a literal integer (§4.11.e), matching
// ExplicitLengthFilter. The writer already re-derives /Length at
// serialization time; this filter exists for callers that inspect the
// in-memory document before writing it.
func FixExplicitLengths(doc *document.Document) int {
	fixed := 0
	for _, obj := range doc.Objects() {
		if obj.Raw == nil {
			continue
		}
		dict, ok := obj.Content.(value.Dict)
		if !ok {
			continue
		}
		lengthV, _ := dict.Get("Length")
		if _, ok := lengthV.(value.XRef); !ok {
			continue
		}
		newDict := dict.Clone()
		newDict.Set("Length", value.Integer(len(obj.Raw)))
		doc.Replace(document.Object{Ref: obj.Ref, Content: newDict, Raw: obj.Raw})
		fixed++
	}
	return fixed
}

// StripMetadata removes dict keys matching any of prefixes from every
// object's content, recursing into arrays and nested dicts but never
// crossing an indirect reference (§4.11.f), matching
// RemoveMetadataFilter. A nil prefixes defaults to the original's
// "/PTEX" producer-metadata convention.
func StripMetadata(doc *document.Document, prefixes []string) int {
	if prefixes == nil {
		prefixes = []string{"PTEX"}
	}
	strip := func(key value.Name) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(string(key), p) {
				return true
			}
		}
		return false
	}
	var rewrite func(v value.Value) value.Value
	rewrite = func(v value.Value) value.Value {
		switch v := v.(type) {
		case value.Dict:
			var out value.Dict
			for _, e := range v.Entries() {
				if strip(e.Key) {
					continue
				}
				out.Set(e.Key, rewrite(e.Value))
			}
			return out
		case value.Array:
			out := make(value.Array, len(v))
			for i, e := range v {
				out[i] = rewrite(e)
			}
			return out
		default:
			return v
		}
	}

	stripped := 0
	for _, obj := range doc.Objects() {
		newContent := rewrite(obj.Content)
		if !value.Equal(newContent, obj.Content) {
			stripped++
		}
		doc.Replace(document.Object{Ref: obj.Ref, Content: newContent, Raw: obj.Raw})
	}
	return stripped
}

// DeduplicateImages coalesces image XObjects with byte-identical encoded
// streams onto a single object and relinks every reference to the
// survivor (§4.11.b), matching RemoveDuplicateImageOptimization. It
// returns the document with duplicates relinked and the encoded byte
// count saved.
func DeduplicateImages(doc *document.Document) (*document.Document, int64) {
	byHash := map[[md5.Size]byte][]value.XRef{}
	sizeOf := map[value.XRef]int{}
	for _, obj := range doc.Objects() {
		if !isImageXObject(obj) {
			continue
		}
		if dict, ok := obj.Content.(value.Dict); ok {
			filterV, _ := dict.Get("Filter")
			if filter, _ := value.AsName(filterV); filter == "CCITTFaxDecode" {
				if err := probeCCITTImage(dict, obj.Raw); err != nil {
					log.Optimize.Printf("skipping dedup of damaged CCITT image %v: %v\n", obj.Ref, err)
					continue
				}
			}
		}
		h := md5.Sum(obj.Raw)
		byHash[h] = append(byHash[h], obj.Ref)
		sizeOf[obj.Ref] = len(obj.Raw)
	}

	mapping := relink.Mapping{}
	var saved int64
	for _, refs := range byHash {
		if len(refs) < 2 {
			continue
		}
		sort.Slice(refs, func(i, j int) bool {
			if refs[i].ID != refs[j].ID {
				return refs[i].ID < refs[j].ID
			}
			return refs[i].Gen < refs[j].Gen
		})
		survivor := refs[0]
		for _, dup := range refs[1:] {
			mapping[dup] = survivor
			saved += int64(sizeOf[dup])
		}
	}
	if len(mapping) == 0 {
		return doc, 0
	}

	result := relink.Apply(doc, mapping)
	for dup := range mapping {
		result.Doc.Delete(dup)
	}
	log.Optimize.Printf("deduplicated %d images, saved %d bytes\n", len(mapping), saved)
	return result.Doc, saved
}

func isImageXObject(obj *document.Object) bool {
	if obj.Raw == nil {
		return false
	}
	dict, ok := obj.Content.(value.Dict)
	if !ok {
		return false
	}
	subtypeV, _ := dict.Get("Subtype")
	subtype, _ := value.AsName(subtypeV)
	return subtype == "Image"
}

// MergeTemplate renames every object of tmpl into base's free id space and
// copies the relinked objects into base (§4.11.g), matching Relinker.run
// generalized into a reusable two-document merge. It fails fast if the
// template contains a reference that does not resolve to one of its own
// objects post-relink (§4.9's "internal references must stay internal"
// invariant).
func MergeTemplate(base, tmpl *document.Document) error {
	objs := tmpl.Objects()
	free := base.FreeObjectIds(len(objs))
	mapping := make(relink.Mapping, len(objs))
	for i, o := range objs {
		mapping[o.Ref] = value.XRef{ID: free[i], Gen: 0}
	}

	result := relink.Apply(tmpl, mapping)
	produced := map[value.XRef]bool{}
	for _, ref := range mapping {
		produced[ref] = true
	}
	if err := relink.AssertFullyMapped(result, mapping, func(ref value.XRef) bool { return produced[ref] }); err != nil {
		return fmt.Errorf("transform: merge template: %w", err)
	}
	for _, obj := range result.Doc.Objects() {
		base.Replace(*obj)
	}
	return nil
}

// EmbedPayload adds an opaque stream object carrying payload's bytes
// uncompressed, tagged with the source filename and mtime (§4.11.i),
// matching EmbedPayloadFilter. It returns the new object's xref.
func EmbedPayload(doc *document.Document, filename string, payload []byte, mtime time.Time) value.XRef {
	ref := value.XRef{ID: doc.FreeObjectIds(1)[0]}
	doc.Replace(document.Object{
		Ref: ref,
		Content: value.NewDict(
			value.DictEntry{Key: "PDFRewrite.OriginalFilename", Value: value.ByteString(filename)},
			value.DictEntry{Key: "PDFRewrite.MTime", Value: value.ByteString(mtime.UTC().Format("2006-01-02T15:04:05Z"))},
			value.DictEntry{Key: "Length", Value: value.Integer(len(payload))},
		),
		Raw: payload,
	})
	return ref
}

// Report is a non-mutating size breakdown of a document, keyed by
// "Type" or "Type/Subtype" (e.g. "Font/Type1"), or "Unknown" for objects
// without a /Type (§3.3 of the supplement, from
// AnalyzeFilter.py). It is not part of the default filter pipeline.
type Report struct {
	BytesByKind map[string]int64
	TotalBytes  int64
}

// Analyze walks doc and accumulates each object's serialized size under
// its type label, without mutating anything.
func Analyze(doc *document.Document) Report {
	r := Report{BytesByKind: map[string]int64{}}
	for _, obj := range doc.Objects() {
		label := "Unknown"
		if dict, ok := obj.Content.(value.Dict); ok {
			typeV, _ := dict.Get("Type")
			t, _ := value.AsName(typeV)
			subtypeV, _ := dict.Get("Subtype")
			st, hasSt := value.AsName(subtypeV)
			switch {
			case t != "" && hasSt:
				label = string(t) + "/" + string(st)
			case t != "":
				label = string(t)
			}
		}
		s := serializer.New(false)
		s.WriteValue(obj.Content)
		size := int64(len(s.Bytes()) + len(obj.Raw))
		r.BytesByKind[label] += size
		r.TotalBytes += size
	}
	return r
}

// imageObjects returns every stream object in doc whose /Subtype is
// /Image, in ascending-id order.
func imageObjects(doc *document.Document) []*document.Object {
	var out []*document.Object
	for _, obj := range doc.Objects() {
		if isImageXObject(obj) {
			out = append(out, obj)
		}
	}
	return out
}

// xobjectsOf resolves a page's /Resources /XObject dictionary into a
// name->xref map, the lookup the content interpreter's Do events need to
// turn a resource name back into the image object it draws.
func xobjectsOf(doc *document.Document, pageDict value.Dict) map[value.Name]value.XRef {
	resourcesV, _ := pageDict.Get("Resources")
	resources, ok := value.AsDict(doc.Resolve(resourcesV))
	if !ok {
		return nil
	}
	xobjV, _ := resources.Get("XObject")
	xobjs, ok := value.AsDict(doc.Resolve(xobjV))
	if !ok {
		return nil
	}
	out := make(map[value.Name]value.XRef, xobjs.Len())
	for _, e := range xobjs.Entries() {
		if ref, ok := e.Value.(value.XRef); ok {
			out[e.Key] = ref
		}
	}
	return out
}

// maxWorldExtentsMM runs the content interpreter over every page and
// returns, per image xobject, the largest world-space bounding box it was
// ever drawn at, converted from PDF points (1/72 inch) to millimeters.
// Pages are scanned concurrently, one goroutine per page joined through an
// errgroup with no concurrency limit, mirroring
// DownscaleImageOptimization's page-then-image two-pass structure.
func maxWorldExtentsMM(ctx context.Context, doc *document.Document) (map[value.XRef]content.Rect, error) {
	type pageExtents map[value.XRef]content.Rect
	pages := doc.Pages()
	results := make([]pageExtents, len(pages))

	g, _ := errgroup.WithContext(ctx)
	for i, pageRef := range pages {
		i, pageRef := i, pageRef
		g.Go(func() error {
			pageDict, ok := value.AsDict(doc.Resolve(pageRef))
			if !ok {
				return nil
			}
			contentsV, _ := pageDict.Get("Contents")
			contentRef, ok := contentsV.(value.XRef)
			if !ok {
				return nil
			}
			streamObj, ok := doc.ByXref(contentRef)
			if !ok {
				return nil
			}
			decoded, err := doc.DecodedStream(streamObj)
			if err != nil {
				return nil // opaque stream content, skip per §4.4
			}
			ops, err := parser.ParseContent(decoded)
			if err != nil {
				return nil
			}
			xobjects := xobjectsOf(doc, pageDict)
			local := pageExtents{}
			ip := content.New()
			ip.Run(ops, func(ev content.Event) {
				ref, ok := xobjects[ev.Name]
				if !ok {
					return
				}
				const ptToMM = 25.4 / 72.0
				r := ev.WorldExtents
				w := (r.XMax - r.XMin) * ptToMM
				h := (r.YMax - r.YMin) * ptToMM
				if cur, ok := local[ref]; ok {
					if w > cur.XMax-cur.XMin {
						cur.XMax = cur.XMin + w
					}
					if h > cur.YMax-cur.YMin {
						cur.YMax = cur.YMin + h
					}
					local[ref] = cur
					return
				}
				local[ref] = content.Rect{XMax: w, YMax: h}
			})
			results[i] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := map[value.XRef]content.Rect{}
	for _, local := range results {
		for ref, r := range local {
			if cur, ok := out[ref]; ok {
				if r.XMax-r.XMin > cur.XMax-cur.XMin {
					cur.XMax = cur.XMin + (r.XMax - r.XMin)
				}
				if r.YMax-r.YMin > cur.YMax-cur.YMin {
					cur.YMax = cur.YMin + (r.YMax - r.YMin)
				}
				out[ref] = cur
				continue
			}
			out[ref] = r
		}
	}
	return out, nil
}

// ResampleImages downsamples each image XObject whose effective on-page
// resolution exceeds targetDPI, writing it back through rasterizer at the
// computed scale factor (§4.11.c), matching
// DownscaleImageOptimization (whose dpi-vs-extent math this completes;
// the original left this branch dead code). jpegLossy selects DCTDecode
// output; otherwise the result is re-encoded losslessly via the codec
// layer's Flate+PNG-predictor path. dpiExtentFactor scales the measured
// world extent before the achieved-DPI computation below, carried over
// unexplained from the source (config.DefaultDPIExtentFactor if <= 0);
// flagged here, not resolved, pending investigation into why it's needed.
func ResampleImages(ctx context.Context, doc *document.Document, rz raster.Rasterizer, targetDPI float64, jpegLossy bool, dpiExtentFactor float64) (int, error) {
	if dpiExtentFactor <= 0 {
		dpiExtentFactor = config.DefaultDPIExtentFactor
	}
	extents, err := maxWorldExtentsMM(ctx, doc)
	if err != nil {
		return 0, err
	}

	dir, cleanup, err := raster.ScopedTempDir("pdfreweave-resample-")
	if err != nil {
		return 0, err
	}
	defer cleanup()

	resampled := 0
	for _, obj := range imageObjects(doc) {
		extent, ok := extents[obj.Ref]
		if !ok {
			continue
		}
		maxWmm, maxHmm := extent.XMax-extent.XMin, extent.YMax-extent.YMin
		if maxWmm <= 0 || maxHmm <= 0 {
			continue
		}

		srcPath, ext := raster.TempPath(dir, "src"), imageExt(obj)
		srcPath += ext
		if err := writeFile(srcPath, obj.Raw); err != nil {
			return resampled, err
		}
		info, err := rz.Probe(ctx, srcPath)
		if err != nil {
			continue // unreadable by the external tool, leave opaque
		}

		currentDPI := float64(info.WidthPx) / (maxWmm * dpiExtentFactor / 25.4)
		scale := targetDPI / currentDPI
		if scale >= 1 {
			continue
		}

		dstExt := ".png"
		if jpegLossy {
			dstExt = ".jpg"
		}
		dstPath := raster.TempPath(dir, fmt.Sprintf("dst%d", obj.Ref.ID)) + dstExt
		opts := raster.Options{
			WidthPx:  maxInt(1, int(float64(info.WidthPx)*scale)),
			HeightPx: maxInt(1, int(float64(info.HeightPx)*scale)),
			Lossy:    jpegLossy,
			Quality:  85,
		}
		if err := rz.Convert(ctx, srcPath, dstPath, opts); err != nil {
			return resampled, fmt.Errorf("transform: resample %v: %w", obj.Ref, err)
		}
		if err := replaceImageFromFile(doc, obj, dstPath, opts.WidthPx, opts.HeightPx, jpegLossy); err != nil {
			return resampled, err
		}
		resampled++
	}
	log.Optimize.Printf("resampled %d images to %.0f dpi\n", resampled, targetDPI)
	return resampled, nil
}

// FlattenAlpha composites every image carrying a /SMask onto a solid
// background color, removing the soft mask (§4.11.d), matching
// FlattenImageOptimization.
func FlattenAlpha(ctx context.Context, doc *document.Document, rz raster.Rasterizer, background [3]uint8) (int, error) {
	dir, cleanup, err := raster.ScopedTempDir("pdfreweave-flatten-")
	if err != nil {
		return 0, err
	}
	defer cleanup()

	flattened := 0
	for _, obj := range imageObjects(doc) {
		dict := obj.Content.(value.Dict)
		maskV, _ := dict.Get("SMask")
		maskRef, ok := maskV.(value.XRef)
		if !ok {
			continue
		}
		maskObj, ok := doc.ByXref(maskRef)
		if !ok {
			continue
		}

		fgPath := raster.TempPath(dir, fmt.Sprintf("fg%d", obj.Ref.ID)) + imageExt(obj)
		maskPath := raster.TempPath(dir, fmt.Sprintf("mask%d", obj.Ref.ID)) + imageExt(maskObj)
		dstPath := raster.TempPath(dir, fmt.Sprintf("flat%d", obj.Ref.ID)) + ".jpg"
		if err := writeFile(fgPath, obj.Raw); err != nil {
			return flattened, err
		}
		if err := writeFile(maskPath, maskObj.Raw); err != nil {
			return flattened, err
		}
		if err := rz.Flatten(ctx, fgPath, maskPath, dstPath, background); err != nil {
			return flattened, fmt.Errorf("transform: flatten %v: %w", obj.Ref, err)
		}
		info, err := rz.Probe(ctx, dstPath)
		if err != nil {
			return flattened, err
		}
		if err := replaceImageFromFile(doc, obj, dstPath, info.WidthPx, info.HeightPx, true); err != nil {
			return flattened, err
		}
		cur, _ := doc.ByXref(obj.Ref)
		newDict := cur.Content.(value.Dict).Clone()
		newDict.Delete("SMask")
		doc.Replace(document.Object{Ref: obj.Ref, Content: newDict, Raw: cur.Raw})
		flattened++
	}
	log.Optimize.Printf("flattened %d images with soft masks\n", flattened)
	return flattened, nil
}

func replaceImageFromFile(doc *document.Document, obj *document.Object, path string, w, h int, lossy bool) error {
	data, err := readFile(path)
	if err != nil {
		return err
	}
	dict := obj.Content.(value.Dict)
	newDict := dict.Clone()
	newDict.Set("Width", value.Integer(w))
	newDict.Set("Height", value.Integer(h))

	var raw []byte
	if lossy {
		newDict.Set("Filter", value.Name("DCTDecode"))
		newDict.Delete("DecodeParms")
		newDict.Set("ColorSpace", value.Name("DeviceRGB"))
		raw = data
	} else {
		plain, cols, err := decodePNGRGB(data)
		if err != nil {
			return err
		}
		enc, err := codec.Create(plain, true, true, cols*3)
		if err != nil {
			return err
		}
		newDict.Set("Filter", value.Name(enc.Filter))
		if enc.Predictor != (codec.Params{}) {
			newDict.Set("DecodeParms", value.NewDict(
				value.DictEntry{Key: "Predictor", Value: value.Integer(enc.Predictor.Predictor)},
				value.DictEntry{Key: "Colors", Value: value.Integer(3)},
				value.DictEntry{Key: "Columns", Value: value.Integer(cols)},
			))
		} else {
			newDict.Delete("DecodeParms")
		}
		newDict.Set("ColorSpace", value.Name("DeviceRGB"))
		raw = enc.Encoded
	}
	newDict.Set("Length", value.Integer(len(raw)))
	doc.Replace(document.Object{Ref: obj.Ref, Content: newDict, Raw: raw})
	return nil
}

// decodePNGRGB decodes a PNG file (the rasterizer's lossless exchange
// format) into tightly packed RGB triples, row-major. Using the standard
// library's image/png here is the one stdlib-only piece of the resample
// path: no pack dependency offers generic PNG pixel decode (golang.org/x/
// image's decoder in this module is CCITT-only, a different bitmap
// format entirely), see DESIGN.md.
func decodePNGRGB(data []byte) ([]byte, int, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("transform: decode png: %w", err)
	}
	bounds := img.Bounds()
	w := bounds.Dx()
	out := make([]byte, 0, w*bounds.Dy()*3)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			out = append(out, byte(r>>8), byte(g>>8), byte(b>>8))
		}
	}
	return out, w, nil
}

// probeCCITTImage validates a CCITTFaxDecode image's /Width, /Height and
// /DecodeParms before its encoded bytes are trusted for dedup, since a
// corrupt CCITT stream would otherwise silently collide on an unrelated
// hash if the decoder were never asked to walk it.
func probeCCITTImage(dict value.Dict, raw []byte) error {
	widthV, _ := dict.Get("Width")
	width64, _ := value.AsInt(widthV)
	heightV, _ := dict.Get("Height")
	height64, _ := value.AsInt(heightV)
	k := 0
	blackIs1 := false
	parmsV, _ := dict.Get("DecodeParms")
	if parms, ok := value.AsDict(parmsV); ok {
		if kV, has := parms.Get("K"); has {
			if kv, ok := value.AsInt(kV); ok {
				k = int(kv)
			}
		}
		if bV, has := parms.Get("BlackIs1"); has {
			if b, ok := bV.(value.Boolean); ok {
				blackIs1 = bool(b)
			}
		}
	}
	return codec.ProbeCCITT(raw, int(width64), int(height64), k, blackIs1)
}

func imageExt(obj *document.Object) string {
	dict, ok := obj.Content.(value.Dict)
	if !ok {
		return ".bin"
	}
	filterV, _ := dict.Get("Filter")
	filter, _ := value.AsName(filterV)
	switch filter {
	case "DCTDecode":
		return ".jpg"
	case "CCITTFaxDecode":
		return ".tif"
	default:
		return ".png"
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// PDFAOptions carries the document-level metadata PDF/A-1b conformance
// needs, following PDFAFilter's xpacket template fields.
type PDFAOptions struct {
	Title, Author, Producer string
	IDSeed                  []byte // arbitrary bytes hashed into the trailer /ID
	ICCProfile              []byte
}

const xmpTemplate = `<?xpacket begin="" id="W5M0MpCehiHzreSzNTczkc9d"?>
<x:xmpmeta xmlns:x="adobe:ns:meta/">
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
<rdf:Description rdf:about="" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:pdf="http://ns.adobe.com/pdf/1.3/" xmlns:pdfaid="http://www.aiim.org/pdfa/ns/id/">
<dc:title><rdf:Alt><rdf:li xml:lang="x-default">%s</rdf:li></rdf:Alt></dc:title>
<dc:creator><rdf:Seq><rdf:li>%s</rdf:li></rdf:Seq></dc:creator>
<pdf:Producer>%s</pdf:Producer>
<pdfaid:part>1</pdfaid:part>
<pdfaid:conformance>B</pdfaid:conformance>
</rdf:Description>
</rdf:RDF>
</x:xmpmeta>
<?xpacket end="w"?>`

// ConformPDFA1b pushes a document toward PDF/A-1b conformance (§4.11.h):
// it injects a trailer /ID, an ICC-profile output intent, an XMP metadata
// stream, disables /Interpolate on every image, strips transparency
// groups from pages and form XObjects, and -- when fonts is non-nil --
// synthesizes /CharSet (Type1) and /CIDSet (Type0/CIDFontType2) entries
// from the parsed font program, matching PDFAFilter.
func ConformPDFA1b(doc *document.Document, opts PDFAOptions, fonts fontinspect.Type1Parser) error {
	idHash := md5.Sum(opts.IDSeed)
	doc.Trailer.Set("ID", value.Array{value.ByteString(idHash[:]), value.ByteString(idHash[:])})

	if len(opts.ICCProfile) > 0 {
		iccRef := value.XRef{ID: doc.FreeObjectIds(1)[0]}
		doc.Replace(document.Object{
			Ref: iccRef,
			Content: value.NewDict(
				value.DictEntry{Key: "N", Value: value.Integer(3)},
				value.DictEntry{Key: "Length", Value: value.Integer(len(opts.ICCProfile))},
			),
			Raw: opts.ICCProfile,
		})
		intentRef := value.XRef{ID: doc.FreeObjectIds(1)[0]}
		doc.Replace(document.Object{Ref: intentRef, Content: value.NewDict(
			value.DictEntry{Key: "Type", Value: value.Name("OutputIntent")},
			value.DictEntry{Key: "S", Value: value.Name("GTS_PDFA1")},
			value.DictEntry{Key: "OutputConditionIdentifier", Value: value.ByteString("sRGB")},
			value.DictEntry{Key: "DestOutputProfile", Value: iccRef},
		)})
		rootV, _ := doc.Trailer.Get("Root")
		root, ok := value.AsDict(doc.Resolve(rootV))
		if ok {
			rootRef, _ := rootV.(value.XRef)
			newRoot := root.Clone()
			newRoot.Set("OutputIntents", value.Array{intentRef})
			doc.Replace(document.Object{Ref: rootRef, Content: newRoot})
		}
	}

	xmp := fmt.Sprintf(xmpTemplate, xmlEscape(opts.Title), xmlEscape(opts.Author), xmlEscape(opts.Producer))
	metaRef := value.XRef{ID: doc.FreeObjectIds(1)[0]}
	doc.Replace(document.Object{Ref: metaRef, Content: value.NewDict(
		value.DictEntry{Key: "Type", Value: value.Name("Metadata")},
		value.DictEntry{Key: "Subtype", Value: value.Name("XML")},
		value.DictEntry{Key: "Length", Value: value.Integer(len(xmp))},
	), Raw: []byte(xmp)})
	rootV2, _ := doc.Trailer.Get("Root")
	if root, ok := value.AsDict(doc.Resolve(rootV2)); ok {
		rootRef, _ := rootV2.(value.XRef)
		newRoot := root.Clone()
		newRoot.Set("Metadata", metaRef)
		doc.Replace(document.Object{Ref: rootRef, Content: newRoot})
	}

	for _, obj := range doc.Objects() {
		dict, ok := obj.Content.(value.Dict)
		if !ok {
			continue
		}
		changed := false
		newDict := dict.Clone()
		subtypeV, _ := dict.Get("Subtype")
		if subtype, _ := value.AsName(subtypeV); subtype == "Image" {
			newDict.Set("Interpolate", value.Boolean(false))
			changed = true
		}
		if dict.Has("Group") {
			newDict.Delete("Group")
			changed = true
		}
		if changed {
			doc.Replace(document.Object{Ref: obj.Ref, Content: newDict, Raw: obj.Raw})
		}
	}

	if fonts != nil {
		if err := synthesizeCharsets(doc, fonts); err != nil {
			return fmt.Errorf("transform: pdfa: %w", err)
		}
	}
	return nil
}

func synthesizeCharsets(doc *document.Document, fonts fontinspect.Type1Parser) error {
	for _, obj := range doc.Objects() {
		dict, ok := obj.Content.(value.Dict)
		if !ok {
			continue
		}
		typeV, _ := dict.Get("Type")
		typeName, _ := value.AsName(typeV)
		if typeName != "FontDescriptor" {
			continue
		}
		fontFileV, _ := dict.Get("FontFile")
		fontFileRef, ok := fontFileV.(value.XRef)
		is1 := ok
		if !ok {
			fontFile2V, _ := dict.Get("FontFile2")
			fontFileRef, ok = fontFile2V.(value.XRef)
		}
		if !ok {
			continue
		}
		fontFileObj, ok := doc.ByXref(fontFileRef)
		if !ok {
			continue
		}
		info, err := fonts.Parse(*fontFileObj)
		if err != nil {
			continue // degrade per the collaborator's documented contract
		}
		newDict := dict.Clone()
		if is1 {
			newDict.Set("CharSet", value.ByteString(info.CharsetString))
		} else {
			newDict.Set("CIDSet", value.ByteString(cidSetBitmap(info.GlyphWidths)))
		}
		doc.Replace(document.Object{Ref: obj.Ref, Content: newDict, Raw: obj.Raw})
	}
	return nil
}

// cidSetBitmap builds a /CIDSet bit-vector stream: bit i of byte i/8 is
// set when glyph index i is present in glyphs.
func cidSetBitmap(glyphs map[string]float64) string {
	if len(glyphs) == 0 {
		return ""
	}
	maxIdx := 0
	for name := range glyphs {
		var idx int
		if _, err := fmt.Sscanf(name, "%d", &idx); err == nil && idx > maxIdx {
			maxIdx = idx
		}
	}
	out := make([]byte, maxIdx/8+1)
	for name := range glyphs {
		var idx int
		if _, err := fmt.Sscanf(name, "%d", &idx); err == nil {
			out[idx/8] |= 1 << (7 - uint(idx%8))
		}
	}
	return string(out)
}

func xmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
