package document

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/benkugler-labs/pdfreweave/codec"
	"github.com/benkugler-labs/pdfreweave/parser"
	"github.com/benkugler-labs/pdfreweave/tokenizer"
	"github.com/benkugler-labs/pdfreweave/value"
	"github.com/benkugler-labs/pdfreweave/xref"
)

// directParams extracts predictor parameters straight out of a dict that
// §4.5 guarantees holds only direct values (an xref stream's own
// /DecodeParms), with no indirect-reference resolution needed.
func directParams(v value.Value) codec.Params {
	dp, ok := value.AsDict(v)
	if !ok {
		return codec.Params{}
	}
	var p codec.Params
	if v, has := dp.Get("Predictor"); has {
		if n, ok := value.AsInt(v); ok {
			p.Predictor = int(n)
		}
	}
	if v, has := dp.Get("Colors"); has {
		if n, ok := value.AsInt(v); ok {
			p.Colors = int(n)
		}
	}
	if v, has := dp.Get("BitsPerComponent"); has {
		if n, ok := value.AsInt(v); ok {
			p.BPC = int(n)
		}
	}
	if v, has := dp.Get("Columns"); has {
		if n, ok := value.AsInt(v); ok {
			p.Columns = int(n)
		}
	}
	return p
}

// Read builds a Document out of a whole PDF file's bytes, following the
// five steps of §4.6.
func Read(data []byte) (*Document, error) {
	d := New()

	version, err := readHeader(data)
	if err != nil {
		return nil, err
	}
	d.HeaderVersion = version

	table, trailer, err := loadXrefChain(data)
	if err != nil {
		return nil, err
	}
	d.Trailer = trailer

	var containerRefs []value.XRef
	for id, e := range table {
		if e.Kind != xref.Uncompressed {
			continue
		}
		obj, err := parseObjectAt(data, int(e.Offset))
		if err != nil {
			// tolerant: a corrupt entry just means that object is missing,
			// not that the whole file fails to load (§7 propagation policy)
			continue
		}
		if obj.Ref.ID != id {
			continue
		}
		d.Replace(obj)
		if dict, ok := obj.Content.(value.Dict); ok {
			typeV, _ := dict.Get("Type")
			if t, _ := value.AsName(typeV); t == "ObjStm" {
				containerRefs = append(containerRefs, obj.Ref)
			}
		}
	}

	for _, ref := range containerRefs {
		container, ok := d.ByXref(ref)
		if !ok {
			continue
		}
		children, err := unpackObjectStream(d, container)
		if err != nil {
			return nil, fmt.Errorf("object stream %d: %w", ref.ID, err)
		}
		for _, c := range children {
			d.Replace(c)
		}
		d.Delete(container.Ref)
	}

	fixIndirectLengths(d)

	return d, nil
}

func readHeader(data []byte) (string, error) {
	if len(data) < 8 || !bytes.HasPrefix(data, []byte("%PDF-1.")) {
		return "", fmt.Errorf("missing %%PDF-1.x header")
	}
	end := bytes.IndexAny(data[:min(len(data), 32)], "\r\n")
	if end < 0 {
		end = min(len(data), 16)
	}
	version := string(bytes.TrimSpace(data[5:end]))
	switch version {
	case "1.4", "1.5", "1.6", "1.7":
	default:
		// any other version is accepted as-is, without a warning; the document still loads
	}
	return version, nil
}

// loadXrefChain walks startxref -> /Prev (classical or stream form) until it
// reaches a section with no /Prev, merging all entries seen (earlier
// sections never override ids an earlier-encountered, i.e. more recent,
// section already populated -- incremental updates are walked newest-first).
func loadXrefChain(data []byte) (xref.Table, value.Dict, error) {
	startOffset, err := findStartXref(data)
	if err != nil {
		return nil, value.Dict{}, err
	}

	merged := xref.Table{}
	var trailer value.Dict
	haveTrailer := false
	seen := map[int]bool{}
	offset := startOffset
	for offset != 0 && !seen[offset] {
		seen[offset] = true
		table, sectionTrailer, prev, serr := parseXrefSection(data, offset)
		if serr != nil {
			// tolerant: stop walking the chain but keep whatever was merged
			// so far (§7 propagation policy: warn and skip on malformed
			// xref sections)
			break
		}
		for id, e := range table {
			if _, has := merged[id]; !has {
				merged[id] = e
			}
		}
		if !haveTrailer {
			trailer = sectionTrailer
			haveTrailer = true
		} else {
			for _, e := range sectionTrailer.Entries() {
				if !trailer.Has(e.Key) {
					trailer.Set(e.Key, e.Value)
				}
			}
		}
		offset = int(prev)
	}
	return merged, trailer, nil
}

func findStartXref(data []byte) (int, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, fmt.Errorf("missing startxref")
	}
	r := tokenizer.New(data)
	r.Seek(idx + len("startxref"))
	tok := r.ReadNextToken()
	n, err := strconv.Atoi(string(bytes.TrimSpace(tok)))
	if err != nil {
		return 0, fmt.Errorf("malformed startxref offset: %w", err)
	}
	return n, nil
}

// parseXrefSection parses either a classical xref section or, when offset
// points straight at an "N G obj" xref stream, a compressed one, per §4.6
// step 3.
func parseXrefSection(data []byte, offset int) (xref.Table, value.Dict, int64, error) {
	r := tokenizer.New(data)
	r.Seek(offset)
	lx := parser.NewLexer(r)
	tok, err := lx.Next()
	if err != nil {
		return nil, value.Dict{}, 0, err
	}
	if tok.Kind == parser.TokKeyword && tok.Str == "xref" {
		return xref.ParseClassical(data, offset)
	}

	// otherwise this must be "N G obj" introducing an xref stream
	obj, err := parseObjectAt(data, offset)
	if err != nil {
		return nil, value.Dict{}, 0, err
	}
	dict, ok := obj.Content.(value.Dict)
	if !ok {
		return nil, value.Dict{}, 0, fmt.Errorf("offset %d: expected xref stream object, found non-dict", offset)
	}
	filterV, _ := dict.Get("Filter")
	filterName, _ := value.AsName(filterV)
	dpV, _ := dict.Get("DecodeParms")
	eo := codec.EncodedObject{Encoded: obj.Raw, Filter: string(filterName), Predictor: directParams(dpV)}
	decoded, err := eo.Decode()
	if err != nil {
		return nil, value.Dict{}, 0, fmt.Errorf("offset %d: invalid xref stream: %w", offset, err)
	}
	table, prev, err := xref.ParseStream(dict, decoded)
	if err != nil {
		return nil, value.Dict{}, 0, err
	}
	return table, dict, prev, nil
}

// unpackObjectStream decodes container's stream and splits it into its
// child objects, per §4.6 step 4.
func unpackObjectStream(d *Document, container *Object) ([]Object, error) {
	decoded, err := d.DecodedStream(container)
	if err != nil {
		return nil, err
	}
	dict := container.Content.(value.Dict)

	nV, _ := dict.Get("N")
	n, ok := value.AsInt(nV)
	if !ok {
		return nil, fmt.Errorf("missing or non-integer /N")
	}
	firstV, _ := dict.Get("First")
	first, ok := value.AsInt(firstV)
	if !ok {
		return nil, fmt.Errorf("missing or non-integer /First")
	}
	if int(first) > len(decoded) {
		return nil, fmt.Errorf("/First %d is past the end of the decoded stream (%d bytes)", first, len(decoded))
	}

	prolog := bytes.ReplaceAll(decoded[:first], []byte{0x00}, []byte{0x20})
	fields := bytes.Fields(prolog)
	if len(fields) < int(n)*2 {
		return nil, fmt.Errorf("object stream prolog has %d fields, need %d", len(fields), n*2)
	}

	ids := make([]uint32, n)
	offsets := make([]int, n)
	for i := int64(0); i < n; i++ {
		id, err := strconv.Atoi(string(fields[2*i]))
		if err != nil {
			return nil, fmt.Errorf("invalid object id in prolog: %s", fields[2*i])
		}
		off, err := strconv.Atoi(string(fields[2*i+1]))
		if err != nil {
			return nil, fmt.Errorf("invalid object offset in prolog: %s", fields[2*i+1])
		}
		ids[i] = uint32(id)
		offsets[i] = int(first) + off
	}

	out := make([]Object, n)
	for i := int64(0); i < n; i++ {
		start := offsets[i]
		end := len(decoded)
		if i+1 < n {
			end = offsets[i+1]
		}
		if start > len(decoded) || end > len(decoded) || start > end {
			return nil, fmt.Errorf("object %d: offset range [%d,%d) out of bounds", ids[i], start, end)
		}
		r := tokenizer.New(decoded)
		r.Seek(start)
		lx := parser.NewLexer(r)
		p := parser.NewParser(lx)
		val, err := p.ParseValue()
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", ids[i], err)
		}
		out[i] = Object{Ref: value.XRef{ID: ids[i], Gen: 0}, Content: val}
	}
	return out, nil
}

// fixIndirectLengths implements §4.6 step 5: after the whole graph has
// loaded, any stream whose /Length resolved to an integer differing from
// the stored raw length is truncated to match.
func fixIndirectLengths(d *Document) {
	for _, obj := range d.objects {
		if obj.Raw == nil {
			continue
		}
		dict, ok := obj.Content.(value.Dict)
		if !ok {
			continue
		}
		lengthV, _ := dict.Get("Length")
		if _, isRef := lengthV.(value.XRef); !isRef {
			continue // only indirect /Length needs reconciling
		}
		resolved, ok := value.AsInt(d.Resolve(lengthV))
		if !ok {
			continue
		}
		if int(resolved) != len(obj.Raw) && resolved >= 0 && int(resolved) <= len(obj.Raw) {
			obj.Raw = obj.Raw[:resolved]
		}
	}
}
