// Package writer serializes a document.Document back to bytes (§4.8): the
// header, the body (direct objects and, when enabled, objects packed into
// compressed object streams), and either a classical xref table or a
// cross-reference stream, followed by the startxref trailer. The
// offset-tracked body loop and the xref/trailer assembly are grounded on
// model/write.go's writer type in the reference implementation this
// package descends from; the object-stream packing and stream-xref
// encoding are new, built against the xref and codec packages.
package writer

import (
	"bytes"
	"fmt"
	"io"

	"github.com/benkugler-labs/pdfreweave/codec"
	"github.com/benkugler-labs/pdfreweave/document"
	"github.com/benkugler-labs/pdfreweave/serializer"
	"github.com/benkugler-labs/pdfreweave/value"
	"github.com/benkugler-labs/pdfreweave/xref"
)

// Config controls the emission strategy of Write.
type Config struct {
	// UseObjectStreams packs non-stream objects into ObjStm containers
	// instead of emitting them directly. Forces UseXRefStream on.
	UseObjectStreams bool
	// ObjStmMaxChildren bounds how many objects a single container holds.
	// Defaults to 100 when <= 0.
	ObjStmMaxChildren int
	// UseXRefStream emits a cross-reference stream instead of a classical
	// xref table.
	UseXRefStream bool
	// Pretty controls the dictionary formatting the serializer uses for
	// directly-written objects and the trailer.
	Pretty bool
}

func (c Config) normalized() Config {
	if c.ObjStmMaxChildren <= 0 {
		c.ObjStmMaxChildren = 100
	}
	if c.UseObjectStreams {
		c.UseXRefStream = true
	}
	return c
}

// writer tracks the running byte offset into dst, deferring error checks
// the way the reference writer's bytes/write pair did.
type writer struct {
	dst     io.Writer
	err     error
	written int
	marks   map[string]int
}

func (w *writer) write(b []byte) {
	if w.err != nil {
		return
	}
	n, err := w.dst.Write(b)
	w.written += n
	if err != nil {
		w.err = err
	}
}

// Write renders doc per cfg, following the emission order of §4.8.
func Write(doc *document.Document, cfg Config, dst io.Writer) error {
	_, err := WriteWithMarks(doc, cfg, dst)
	return err
}

// WriteWithMarks behaves like Write but also returns the whole-file byte
// offset of every value.Marker encountered, keyed by its label -- the
// mechanism the signature fixup pass (sign.Fixup) depends on to locate its
// placeholders after the fact.
func WriteWithMarks(doc *document.Document, cfg Config, dst io.Writer) (map[string]int, error) {
	cfg = cfg.normalized()
	w := &writer{dst: dst, marks: make(map[string]int)}

	version := "1.4"
	if cfg.UseXRefStream {
		version = "1.5"
	}
	w.write([]byte("%PDF-" + version + "\n"))
	w.write([]byte("%\xe2\xe3\xcf\xd3\n"))

	table := xref.Table{}
	var maxID uint32

	objs := doc.Objects()
	var queue []*document.Object
	for _, o := range objs {
		if o.Ref.ID > maxID {
			maxID = o.Ref.ID
		}
		if cfg.UseObjectStreams && o.Raw == nil && !hasMarker(o.Content) {
			queue = append(queue, o)
			continue
		}
		off := w.written
		w.writeObject(o, cfg.Pretty)
		table[o.Ref.ID] = xref.Entry{Kind: xref.Uncompressed, Offset: int64(off), Gen: o.Ref.Gen}
	}
	if w.err != nil {
		return nil, w.err
	}

	for len(queue) > 0 {
		n := cfg.ObjStmMaxChildren
		if n > len(queue) {
			n = len(queue)
		}
		chunk := queue[:n]
		queue = queue[n:]

		maxID++
		containerID := maxID
		off := w.written
		if err := w.writeObjectStream(containerID, chunk, cfg.Pretty); err != nil {
			return nil, err
		}
		for idx, o := range chunk {
			table[o.Ref.ID] = xref.Entry{Kind: xref.Compressed, ContainerID: containerID, IndexInObjStm: uint32(idx)}
		}
		table[containerID] = xref.Entry{Kind: xref.Uncompressed, Offset: int64(off)}
	}
	if w.err != nil {
		return nil, w.err
	}

	var trailerFields value.Dict
	for _, e := range doc.Trailer.Entries() {
		if e.Key == "Size" || e.Key == "Prev" || e.Key == "Index" || e.Key == "W" || e.Key == "Type" {
			continue
		}
		trailerFields.Set(e.Key, e.Value)
	}

	xrefOffset := w.written
	if cfg.UseXRefStream {
		maxID++
		xrefID := maxID
		table[xrefID] = xref.Entry{Kind: xref.Uncompressed, Offset: int64(xrefOffset)}
		if err := w.writeXRefStream(xrefID, table, maxID, trailerFields, cfg.Pretty); err != nil {
			return nil, err
		}
	} else {
		w.write(xref.WriteClassical(table, maxID))
		w.writeClassicalTrailer(trailerFields, maxID, cfg.Pretty)
	}
	w.write([]byte(fmt.Sprintf("startxref\n%d\n%%%%EOF\n", xrefOffset)))
	return w.marks, w.err
}

// hasMarker reports whether v contains a value.Marker anywhere in its
// tree. Objects that do must always be written directly (never packed into
// an object stream), since a marker's recorded offset is meaningful only
// as a whole-file position, not a position inside a compressed container.
func hasMarker(v value.Value) bool {
	switch v := v.(type) {
	case value.Marker:
		return true
	case value.Array:
		for _, e := range v {
			if hasMarker(e) {
				return true
			}
		}
	case value.Dict:
		for _, e := range v.Entries() {
			if hasMarker(e.Value) {
				return true
			}
		}
	}
	return false
}

// contentForWrite returns o.Content with /Length patched to the direct
// length of o.Raw, for stream objects; non-stream objects pass through.
func contentForWrite(o *document.Object) value.Value {
	if o.Raw == nil {
		return o.Content
	}
	dict, ok := o.Content.(value.Dict)
	if !ok {
		return o.Content
	}
	cp := dict.Clone()
	cp.Set("Length", value.Integer(len(o.Raw)))
	return cp
}

func (w *writer) writeObject(o *document.Object, pretty bool) {
	w.write([]byte(fmt.Sprintf("%d %d obj\n", o.Ref.ID, o.Ref.Gen)))
	base := w.written
	s := serializer.New(pretty)
	s.WriteValue(contentForWrite(o))
	w.write(s.Bytes())
	for label, off := range s.Marks() {
		w.marks[label] = base + off
	}
	if o.Raw != nil {
		w.write([]byte("\nstream\n"))
		w.write(o.Raw)
		w.write([]byte("\nendstream"))
	}
	w.write([]byte("\nendobj\n"))
}

// writeObjectStream packs chunk into a single ObjStm container with id,
// per §4.6's layout: an (id, relative-offset) prolog followed by each
// child's serialized value, then Flate-compresses the whole thing (§4.8
// step 3: containers carry no predictor).
func (w *writer) writeObjectStream(id uint32, chunk []*document.Object, pretty bool) error {
	bodies := make([][]byte, len(chunk))
	for i, o := range chunk {
		s := serializer.New(false)
		s.WriteValue(o.Content)
		bodies[i] = s.Bytes()
	}

	var prolog bytes.Buffer
	var body bytes.Buffer
	offset := 0
	for i, o := range chunk {
		fmt.Fprintf(&prolog, "%d %d ", o.Ref.ID, offset)
		body.Write(bodies[i])
		body.WriteByte(' ')
		offset += len(bodies[i]) + 1
	}
	first := prolog.Len()
	plain := append(append([]byte(nil), prolog.Bytes()...), body.Bytes()...)

	enc, err := codec.Create(plain, true, false, 0)
	if err != nil {
		return err
	}

	dict := value.NewDict(
		value.DictEntry{Key: "Type", Value: value.Name("ObjStm")},
		value.DictEntry{Key: "N", Value: value.Integer(len(chunk))},
		value.DictEntry{Key: "First", Value: value.Integer(first)},
		value.DictEntry{Key: "Length", Value: value.Integer(len(enc.Encoded))},
	)
	if enc.Filter != codec.Identity {
		dict.Set("Filter", value.Name(enc.Filter))
	}

	w.write([]byte(fmt.Sprintf("%d 0 obj\n", id)))
	s := serializer.New(pretty)
	s.WriteValue(dict)
	w.write(s.Bytes())
	w.write([]byte("\nstream\n"))
	w.write(enc.Encoded)
	w.write([]byte("\nendstream\nendobj\n"))
	return nil
}

func (w *writer) writeClassicalTrailer(fields value.Dict, maxID uint32, pretty bool) {
	dict := fields.Clone()
	dict.Set("Size", value.Integer(maxID+1))
	w.write([]byte("trailer\n"))
	s := serializer.New(pretty)
	s.WriteValue(dict)
	w.write(s.Bytes())
	w.write([]byte("\n"))
}

// writeXRefStream emits the synthesized /Type /XRef object described by
// §4.8 step 4(b): the whole table, Flate-compressed with no predictor, plus
// a copy of the trailer fields (/Size and /Index come from the table).
func (w *writer) writeXRefStream(id uint32, table xref.Table, maxID uint32, fields value.Dict, pretty bool) error {
	wWidths, index, data := xref.StreamEntries(table, maxID)
	enc, err := codec.Create(data, true, false, 0)
	if err != nil {
		return err
	}

	dict := fields.Clone()
	dict.Set("Type", value.Name("XRef"))
	dict.Set("Size", value.Integer(maxID+1))
	dict.Set("W", value.Array{value.Integer(wWidths[0]), value.Integer(wWidths[1]), value.Integer(wWidths[2])})
	idxArr := make(value.Array, len(index))
	for i, n := range index {
		idxArr[i] = value.Integer(n)
	}
	dict.Set("Index", idxArr)
	dict.Set("Length", value.Integer(len(enc.Encoded)))
	if enc.Filter != codec.Identity {
		dict.Set("Filter", value.Name(enc.Filter))
	}

	w.write([]byte(fmt.Sprintf("%d 0 obj\n", id)))
	s := serializer.New(pretty)
	s.WriteValue(dict)
	w.write(s.Bytes())
	w.write([]byte("\nstream\n"))
	w.write(enc.Encoded)
	w.write([]byte("\nendstream\nendobj\n"))
	return nil
}
