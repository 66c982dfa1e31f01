// Package fontinspect defines the external Type-1 font parser boundary
// (§6): the PDF/A conformance filter needs a font's charset
// string and glyph widths to synthesize /CharSet and /CIDSet, but parsing
// Type-1 font programs is out of scope for the core -- callers supply a
// Type1Parser collaborator, or the synthesis step is skipped.
package fontinspect

import "github.com/benkugler-labs/pdfreweave/document"

// Type1FontInfo is what Parse extracts from an embedded Type-1 font
// program, per spec.md §6.
type Type1FontInfo struct {
	CharsetString string
	GlyphWidths   map[string]float64
	FontName      string
	FontBBox      [4]float64
}

// Type1Parser is the collaborator the PDF/A conformance filter
// (transform.ConformPDFA1b) accepts to synthesize /CharSet (Type-1) and /CIDSet (Type-2) entries; a
// nil Type1Parser means that synthesis step is skipped rather than failing
// the whole filter run.
type Type1Parser interface {
	Parse(stream document.Object) (Type1FontInfo, error)
}
