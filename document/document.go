// Package document implements the in-memory object graph (§4.6): loading a
// PDF's indirect objects and xref sections into a queryable Document,
// unpacking object streams, and reconciling indirect /Length streams. The
// top-level object scan and the object-stream unpacking are grounded on
// reader/file/xreftable.go and reader/file/object_streams.go in the
// reference implementation this package descends from.
package document

import (
	"fmt"
	"sort"

	"github.com/benkugler-labs/pdfreweave/codec"
	"github.com/benkugler-labs/pdfreweave/parser"
	"github.com/benkugler-labs/pdfreweave/value"
)

// Object is one top-level indirect object: its reference, its content value,
// and, if it is a stream object, the raw (encoded) stream bytes.
type Object struct {
	Ref     value.XRef
	Content value.Value
	Raw     []byte // non-nil iff this object carries a stream
}

// Document is the loaded object graph of a PDF file (§4.6).
type Document struct {
	HeaderVersion string // e.g. "1.7"

	Trailer value.Dict
	objects map[value.XRef]*Object
	order   []value.XRef // ascending (id, gen), kept sorted on insertion
}

// New returns an empty Document, used by the transformation pipeline to
// build a fresh graph (e.g. template merge output) rather than loading one
// from bytes.
func New() *Document {
	return &Document{objects: make(map[value.XRef]*Object)}
}

// ByXref looks up an object by its exact (id, gen) reference.
func (d *Document) ByXref(ref value.XRef) (*Object, bool) {
	o, ok := d.objects[ref]
	return o, ok
}

// Resolve returns the value an indirect reference points to, or value.Null{}
// if it is unresolved (§7.3.10: "an indirect reference to an undefined
// object ... shall be treated as a reference to the null object").
func (d *Document) Resolve(v value.Value) value.Value {
	ref, ok := v.(value.XRef)
	if !ok {
		return v
	}
	o, ok := d.objects[ref]
	if !ok {
		return value.Null{}
	}
	return o.Content
}

// Objects returns every object in ascending (id, gen) order.
func (d *Document) Objects() []*Object {
	out := make([]*Object, 0, len(d.order))
	for _, ref := range d.order {
		out = append(out, d.objects[ref])
	}
	return out
}

// FreeObjectIds returns the n lowest object ids (generation 0) not currently
// present in the document, for the writer to hand out to newly created
// objects (containers, markers, ...).
func (d *Document) FreeObjectIds(n int) []uint32 {
	used := make(map[uint32]bool, len(d.objects))
	for ref := range d.objects {
		used[ref.ID] = true
	}
	out := make([]uint32, 0, n)
	for id := uint32(1); len(out) < n; id++ {
		if !used[id] {
			out = append(out, id)
		}
	}
	return out
}

// Delete removes an object from the graph.
func (d *Document) Delete(ref value.XRef) {
	if _, ok := d.objects[ref]; !ok {
		return
	}
	delete(d.objects, ref)
	for i, r := range d.order {
		if r == ref {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Replace inserts or overwrites obj in the graph, preserving ascending
// (id, gen) order in Objects().
func (d *Document) Replace(obj Object) {
	if _, exists := d.objects[obj.Ref]; !exists {
		d.insertSorted(obj.Ref)
	}
	cp := obj
	d.objects[obj.Ref] = &cp
}

func (d *Document) insertSorted(ref value.XRef) {
	i := sort.Search(len(d.order), func(i int) bool {
		a := d.order[i]
		if a.ID != ref.ID {
			return a.ID > ref.ID
		}
		return a.Gen > ref.Gen
	})
	d.order = append(d.order, value.XRef{})
	copy(d.order[i+1:], d.order[i:])
	d.order[i] = ref
}

// DecodedStream returns obj's stream content with its filter chain reversed
// (§4.4). It returns UnsupportedFilter (wrapped) for opaque codecs; callers
// that only need the raw bytes should read obj.Raw directly instead.
func (d *Document) DecodedStream(obj *Object) ([]byte, error) {
	dict, ok := obj.Content.(value.Dict)
	if !ok {
		return nil, fmt.Errorf("object %v is not a stream", obj.Ref)
	}
	filterName, params, err := d.filterAndParams(dict)
	if err != nil {
		return nil, err
	}
	eo := codec.EncodedObject{Encoded: obj.Raw, Filter: filterName, Predictor: params}
	return eo.Decode()
}

// filterAndParams resolves a stream dict's /Filter and /DecodeParms. A
// missing or explicitly /Null /Filter means no filter (Identity); anything
// else that isn't a single Name -- most notably an Array, the multi-filter
// chain form -- is reported as codec.UnsupportedFilter (§9's preserved open
// question) rather than silently treated as Identity.
func (d *Document) filterAndParams(dict value.Dict) (string, codec.Params, error) {
	var name value.Name
	if filterV, has := dict.Get("Filter"); has {
		switch resolved := d.Resolve(filterV).(type) {
		case value.Name:
			name = resolved
		case value.Null:
			// no filter
		default:
			return "", codec.Params{}, &codec.UnsupportedFilter{Name: fmt.Sprintf("non-Name /Filter (%T)", resolved)}
		}
	}
	var params codec.Params
	if dpV, has := dict.Get("DecodeParms"); has {
		if dp, ok := value.AsDict(d.Resolve(dpV)); ok {
			if v, has := dp.Get("Predictor"); has {
				if n, ok := value.AsInt(d.Resolve(v)); ok {
					params.Predictor = int(n)
				}
			}
			if v, has := dp.Get("Colors"); has {
				if n, ok := value.AsInt(d.Resolve(v)); ok {
					params.Colors = int(n)
				}
			}
			if v, has := dp.Get("BitsPerComponent"); has {
				if n, ok := value.AsInt(d.Resolve(v)); ok {
					params.BPC = int(n)
				}
			}
			if v, has := dp.Get("Columns"); has {
				if n, ok := value.AsInt(d.Resolve(v)); ok {
					params.Columns = int(n)
				}
			}
		}
	}
	return string(name), params, nil
}

// Pages enumerates leaf /Type /Page dictionaries reachable from
// /Root -> /Pages (§4.6), in tree order.
func (d *Document) Pages() []value.XRef {
	rootV, _ := d.Trailer.Get("Root")
	root, ok := value.AsDict(d.Resolve(rootV))
	if !ok {
		return nil
	}
	pagesV, _ := root.Get("Pages")
	pagesRef, ok := pagesV.(value.XRef)
	if !ok {
		return nil
	}
	var out []value.XRef
	seen := map[value.XRef]bool{}
	d.walkPages(pagesRef, seen, &out)
	return out
}

func (d *Document) walkPages(ref value.XRef, seen map[value.XRef]bool, out *[]value.XRef) {
	if seen[ref] {
		return
	}
	seen[ref] = true
	node, ok := value.AsDict(d.Resolve(ref))
	if !ok {
		return
	}
	typeV, _ := node.Get("Type")
	typeName, _ := value.AsName(typeV)
	if typeName == "Page" {
		*out = append(*out, ref)
		return
	}
	kidsV, _ := node.Get("Kids")
	kids, _ := value.AsArray(kidsV)
	for _, k := range kids {
		if kidRef, ok := k.(value.XRef); ok {
			d.walkPages(kidRef, seen, out)
		}
	}
}

// parseObjectAt wraps parser.ParseObject for use against the whole file
// buffer, returning a reader-package Object.
func parseObjectAt(data []byte, offset int) (Object, error) {
	ref, content, raw, err := parser.ParseObject(data, offset)
	if err != nil {
		return Object{}, err
	}
	return Object{Ref: ref, Content: content, Raw: raw}, nil
}
