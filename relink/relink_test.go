package relink

import (
	"testing"

	"github.com/benkugler-labs/pdfreweave/document"
	"github.com/benkugler-labs/pdfreweave/value"
)

func TestApplyRenamesAndRewritesReferences(t *testing.T) {
	doc := document.New()
	doc.Trailer = value.NewDict(value.DictEntry{Key: "Root", Value: value.XRef{ID: 1, Gen: 0}})
	doc.Replace(document.Object{Ref: value.XRef{ID: 1, Gen: 0}, Content: value.NewDict(
		value.DictEntry{Key: "Type", Value: value.Name("Catalog")},
		value.DictEntry{Key: "Pages", Value: value.XRef{ID: 2, Gen: 0}},
	)})
	doc.Replace(document.Object{Ref: value.XRef{ID: 2, Gen: 0}, Content: value.NewDict(
		value.DictEntry{Key: "Type", Value: value.Name("Pages")},
		value.DictEntry{Key: "Kids", Value: value.Array{value.XRef{ID: 3, Gen: 0}}},
	)})

	m := Mapping{
		value.XRef{ID: 1, Gen: 0}: value.XRef{ID: 101, Gen: 0},
		value.XRef{ID: 2, Gen: 0}: value.XRef{ID: 102, Gen: 0},
	}
	result := Apply(doc, m)

	catalog, ok := result.Doc.ByXref(value.XRef{ID: 101, Gen: 0})
	if !ok {
		t.Fatal("expected renamed catalog at 101")
	}
	dict := catalog.Content.(value.Dict)
	pages, _ := dict.Get("Pages")
	if !value.Equal(pages, value.XRef{ID: 102, Gen: 0}) {
		t.Fatalf("got %#v, want Pages rewritten to 102", dict)
	}

	pagesObj, ok := result.Doc.ByXref(value.XRef{ID: 102, Gen: 0})
	if !ok {
		t.Fatal("expected renamed pages at 102")
	}
	kidsV, _ := pagesObj.Content.(value.Dict).Get("Kids")
	kids := kidsV.(value.Array)
	if !value.Equal(kids[0], value.XRef{ID: 3, Gen: 0}) {
		t.Fatalf("unmapped reference should pass through unchanged, got %#v", kids[0])
	}

	root, _ := result.Doc.Trailer.Get("Root")
	if !value.Equal(root, value.XRef{ID: 101, Gen: 0}) {
		t.Fatalf("trailer Root not rewritten: %#v", result.Doc.Trailer)
	}
}

func TestUnresolvedReferences(t *testing.T) {
	doc := document.New()
	doc.Replace(document.Object{Ref: value.XRef{ID: 1, Gen: 0}, Content: value.NewDict(
		value.DictEntry{Key: "Next", Value: value.XRef{ID: 99, Gen: 0}},
	)})
	result := Apply(doc, Mapping{})

	unresolved := result.UnresolvedReferences()
	if len(unresolved) != 1 || unresolved[0] != (value.XRef{ID: 99, Gen: 0}) {
		t.Fatalf("got %#v", unresolved)
	}
}

func TestAssertFullyMappedFailsOnDanglingTemplateRef(t *testing.T) {
	doc := document.New()
	doc.Replace(document.Object{Ref: value.XRef{ID: 1, Gen: 0}, Content: value.NewDict(
		value.DictEntry{Key: "Next", Value: value.XRef{ID: 50, Gen: 0}},
	)})
	m := Mapping{value.XRef{ID: 1, Gen: 0}: value.XRef{ID: 201, Gen: 0}}
	result := Apply(doc, m)

	err := AssertFullyMapped(result, m, func(ref value.XRef) bool {
		return ref == (value.XRef{ID: 201, Gen: 0})
	})
	if err == nil {
		t.Fatal("expected error for unmapped, unproduced reference 50")
	}
}
