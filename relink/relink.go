// Package relink applies an old->new XRef mapping to a document.Document
// (§4.9): every object keyed by an old xref is renamed, and every indirect
// reference reachable from any object's content is rewritten through the
// same mapping, via value.Rebuild. Unmapped references pass through
// unchanged. This mirrors the "rebuilding walk" pattern used throughout the
// reference implementation's model package (model/write.go's recursive
// reference-writing walks), generalized here into a single reusable pass
// instead of being duplicated per object kind.
package relink

import (
	"fmt"

	"github.com/benkugler-labs/pdfreweave/document"
	"github.com/benkugler-labs/pdfreweave/value"
)

// Mapping is an old->new XRef rename table.
type Mapping map[value.XRef]value.XRef

// Result is the relinked document plus the reference bookkeeping needed for
// orphan analysis and fail-fast merge assertions.
type Result struct {
	Doc *document.Document

	referenced map[value.XRef]bool
}

// Apply renames every object in doc keyed by an entry in m and rewrites
// every reference reachable from any object's content through m, leaving
// unmapped references untouched (§4.9).
func Apply(doc *document.Document, m Mapping) *Result {
	out := document.New()
	out.Trailer = value.Dict{}

	replace := func(ref value.XRef) value.XRef {
		if nref, ok := m[ref]; ok {
			return nref
		}
		return ref
	}

	// record observes references in the rebuilt (new-xref-space) content, so
	// it takes them as-is rather than running them through replace again.
	referenced := map[value.XRef]bool{}
	record := func(ref value.XRef) {
		referenced[ref] = true
	}

	for _, obj := range doc.Objects() {
		ref := replace(obj.Ref)
		content := value.Rebuild(obj.Content, replace)
		value.Visit(content, record)
		out.Replace(document.Object{Ref: ref, Content: content, Raw: obj.Raw})
	}

	out.Trailer = value.Rebuild(doc.Trailer, replace).(value.Dict)
	value.Visit(out.Trailer, record)

	return &Result{Doc: out, referenced: referenced}
}

// References returns every indirect reference observed during Apply's walk,
// in the new document's xref space.
func (r *Result) References() []value.XRef {
	out := make([]value.XRef, 0, len(r.referenced))
	for ref := range r.referenced {
		out = append(out, ref)
	}
	return out
}

// UnresolvedReferences returns every observed reference with no
// corresponding object in the relinked document (§4.9).
func (r *Result) UnresolvedReferences() []value.XRef {
	var out []value.XRef
	for ref := range r.referenced {
		if _, ok := r.Doc.ByXref(ref); !ok {
			out = append(out, ref)
		}
	}
	return out
}

// AssertFullyMapped implements the fail-fast check template merging requires
// (§4.9 / §4.11.g): every reference observed in the relinked document must
// resolve to an object the merge produced, be the target of an entry in m,
// or name an object present in r.Doc. produced reports whether a
// (already-renamed) xref is one of the merge's own outputs.
func AssertFullyMapped(r *Result, m Mapping, produced func(value.XRef) bool) error {
	mapped := make(map[value.XRef]bool, len(m))
	for _, to := range m {
		mapped[to] = true
	}
	for ref := range r.referenced {
		if produced(ref) || mapped[ref] {
			continue
		}
		if _, ok := r.Doc.ByXref(ref); ok {
			continue
		}
		return fmt.Errorf("relink: unresolved template reference %v", ref)
	}
	return nil
}
