// Package xref implements the cross-reference table (§4.5): the object id →
// on-disk-location index that lets a reader jump straight to any indirect
// object instead of scanning the whole file, in both of the forms a PDF may
// use (classical xref sections and compressed cross-reference streams). The
// in-memory representation and the stream entry decode loop are grounded on
// reader/file/xreftable.go in the reference implementation this package
// descends from; the two on-disk forms are unified into the same Table so
// that /document doesn't need to know which one produced it.
package xref

import (
	"fmt"

	"github.com/benkugler-labs/pdfreweave/parser"
	"github.com/benkugler-labs/pdfreweave/tokenizer"
	"github.com/benkugler-labs/pdfreweave/value"
)

// Kind distinguishes the three entry types a cross-reference stream can
// encode (type byte 0, 1, 2 of §4.5); classical tables only ever produce
// Free or Uncompressed entries.
type Kind uint8

const (
	Free Kind = iota
	Uncompressed
	Compressed
)

// Entry is one object's location, in whichever form the source file used.
type Entry struct {
	Kind Kind

	// Uncompressed
	Offset int64
	Gen    uint16

	// Compressed
	ContainerID uint32
	IndexInObjStm uint32
}

// Table maps object id to its Entry. Object 0 is conventionally the head of
// the free list and is never a real object.
type Table map[uint32]Entry

// MaxID returns the highest object id present in the table, or 0 if empty.
func (t Table) MaxID() uint32 {
	var max uint32
	for id := range t {
		if id > max {
			max = id
		}
	}
	return max
}

// ParseClassical parses one "xref ... trailer <<...>>" section starting at
// offset (the bytes immediately after "xref" have not yet been consumed –
// offset points at the literal keyword). It returns the entries found in
// this section, the section's trailer dictionary, and the /Prev offset (0
// if absent), so /document can walk the Prev chain across incremental
// updates the same way it walks an xref stream's chain.
func ParseClassical(data []byte, offset int) (Table, value.Dict, int64, error) {
	r := tokenizer.New(data)
	r.Seek(offset)
	lx := parser.NewLexer(r)

	tok, err := lx.Next()
	if err != nil {
		return nil, value.Dict{}, 0, err
	}
	if tok.Kind != parser.TokKeyword || tok.Str != "xref" {
		return nil, value.Dict{}, 0, fmt.Errorf("offset %d: expected 'xref', found %v", offset, tok)
	}

	table := Table{}
	for {
		tok, err = lx.Next()
		if err != nil {
			return nil, value.Dict{}, 0, err
		}
		if tok.Kind == parser.TokKeyword && tok.Str == "trailer" {
			break
		}
		if tok.Kind != parser.TokInteger {
			return nil, value.Dict{}, 0, fmt.Errorf("offset %d: expected subsection header or 'trailer', found %v", lx.Pos(), tok)
		}
		first := tok.Int
		countTok, err := lx.Next()
		if err != nil {
			return nil, value.Dict{}, 0, err
		}
		if countTok.Kind != parser.TokInteger {
			return nil, value.Dict{}, 0, fmt.Errorf("offset %d: malformed subsection header", lx.Pos())
		}
		count := countTok.Int
		for i := int64(0); i < count; i++ {
			offTok, err := lx.Next()
			if err != nil {
				return nil, value.Dict{}, 0, err
			}
			genTok, err := lx.Next()
			if err != nil {
				return nil, value.Dict{}, 0, err
			}
			flagTok, err := lx.Next()
			if err != nil {
				return nil, value.Dict{}, 0, err
			}
			if offTok.Kind != parser.TokInteger || genTok.Kind != parser.TokInteger || flagTok.Kind != parser.TokKeyword {
				// tolerant: skip a malformed line rather than aborting the
				// whole section (§7 propagation policy)
				continue
			}
			id := uint32(first + i)
			switch flagTok.Str {
			case "n":
				table[id] = Entry{Kind: Uncompressed, Offset: offTok.Int, Gen: uint16(genTok.Int)}
			case "f":
				table[id] = Entry{Kind: Free, Offset: offTok.Int, Gen: uint16(genTok.Int)}
			}
		}
	}

	p := parser.NewParser(lx)
	trailerVal, err := p.ParseValue()
	if err != nil {
		return nil, value.Dict{}, 0, fmt.Errorf("offset %d: invalid trailer dictionary: %w", lx.Pos(), err)
	}
	trailer, ok := trailerVal.(value.Dict)
	if !ok {
		return nil, value.Dict{}, 0, fmt.Errorf("offset %d: trailer is not a dictionary", lx.Pos())
	}

	var prev int64
	if prevV, has := trailer.Get("Prev"); has {
		if n, ok := value.AsInt(prevV); ok {
			prev = int64(n)
		}
	}
	return table, trailer, prev, nil
}

// StreamDict holds the /W, /Index, /Size fields of an xref stream's
// dictionary (§4.5), validated.
type StreamDict struct {
	W     [3]int
	Index [][2]int // pairs of (firstId, count); defaults to [[0, Size]]
	Size  int
	Prev  int64
}

// entrySize returns the byte width of one packed entry.
func (d StreamDict) entrySize() int { return d.W[0] + d.W[1] + d.W[2] }

// count returns the total number of entries described by Index.
func (d StreamDict) count() int {
	total := 0
	for _, sub := range d.Index {
		total += sub[1]
	}
	return total
}

// ParseStreamDict validates and extracts the §4.5 fields from an xref
// stream's dictionary.
func ParseStreamDict(dict value.Dict) (StreamDict, error) {
	var out StreamDict

	sizeV, _ := dict.Get("Size")
	size, ok := value.AsInt(sizeV)
	if !ok {
		return out, fmt.Errorf("xref stream: missing or non-integer /Size")
	}
	out.Size = int(size)

	if prevV, has := dict.Get("Prev"); has {
		if n, ok := value.AsInt(prevV); ok {
			out.Prev = n
		}
	}

	wV, _ := dict.Get("W")
	wArr, ok := wV.(value.Array)
	if !ok || len(wArr) < 3 {
		return out, fmt.Errorf("xref stream: missing or malformed /W")
	}
	for i := 0; i < 3; i++ {
		n, ok := value.AsInt(wArr[i])
		if !ok || n < 0 {
			return out, fmt.Errorf("xref stream: /W[%d] is not a non-negative integer", i)
		}
		out.W[i] = int(n)
	}

	idxV, _ := dict.Get("Index")
	if idxArr, ok := idxV.(value.Array); ok && len(idxArr) > 0 {
		if len(idxArr)%2 != 0 {
			return out, fmt.Errorf("xref stream: /Index has odd length")
		}
		for i := 0; i < len(idxArr); i += 2 {
			first, ok1 := value.AsInt(idxArr[i])
			count, ok2 := value.AsInt(idxArr[i+1])
			if !ok1 || !ok2 {
				return out, fmt.Errorf("xref stream: /Index entries must be integers")
			}
			out.Index = append(out.Index, [2]int{int(first), int(count)})
		}
	} else {
		out.Index = [][2]int{{0, out.Size}}
	}

	return out, nil
}

// ParseStream decodes a cross-reference stream's already-decompressed
// content into a Table, per the packed-entry layout described in §4.5.
func ParseStream(dict value.Dict, decoded []byte) (Table, int64, error) {
	sd, err := ParseStreamDict(dict)
	if err != nil {
		return nil, 0, err
	}

	entrySize := sd.entrySize()
	need := sd.count() * entrySize
	if len(decoded) < need {
		return nil, 0, fmt.Errorf("xref stream: decoded content too short (%d < %d)", len(decoded), need)
	}
	decoded = decoded[:need]

	w0, w1, w2 := sd.W[0], sd.W[1], sd.W[2]
	table := Table{}
	j := 0
	for _, sub := range sd.Index {
		first, count := sub[0], sub[1]
		for i := 0; i < count; i++ {
			id := uint32(first + i)
			base := j * entrySize
			entryType := int64(1) // default when w0 == 0, per §4.5
			if w0 > 0 {
				entryType = beInt(decoded[base : base+w0])
			}
			f2 := beInt(decoded[base+w0 : base+w0+w1])
			f3 := beInt(decoded[base+w0+w1 : base+w0+w1+w2])

			switch entryType {
			case 0:
				table[id] = Entry{Kind: Free, Offset: f2, Gen: uint16(f3)}
			case 1:
				table[id] = Entry{Kind: Uncompressed, Offset: f2, Gen: uint16(f3)}
			case 2:
				table[id] = Entry{Kind: Compressed, ContainerID: uint32(f2), IndexInObjStm: uint32(f3)}
			}
			j++
		}
	}
	return table, sd.Prev, nil
}

func beInt(buf []byte) int64 {
	var v int64
	for _, b := range buf {
		v = v<<8 | int64(b)
	}
	return v
}
