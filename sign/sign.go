// Package sign implements the two-phase signature fixup (§4.12): injecting
// a /Sig object with Marker placeholders before serialization, then, once
// the whole file is on disk, computing the /ByteRange and patching in the
// real CMS signature. Grounded on SignFilter.py in the reference this
// package descends from (_sign_pdf/_generate_form/_generate_signature_
// annotation for phase 1, fixup for phase 2), generalized from a
// subprocess-only design into the Signer interface so tests can fake it.
package sign

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/benkugler-labs/pdfreweave/document"
	"github.com/benkugler-labs/pdfreweave/serializer"
	"github.com/benkugler-labs/pdfreweave/value"
)

// Signer produces a detached CMS signature over data.
type Signer interface {
	Sign(ctx context.Context, data []byte) ([]byte, error)
}

// AnnotationFlag is a bit in an annotation's /F entry (PDF 32000-1 §12.5.3),
// following the original implementation's Flags.py enum rather than raw
// magic integers.
type AnnotationFlag int

const (
	AnnotationInvisible AnnotationFlag = 1 << 0
	AnnotationHidden    AnnotationFlag = 1 << 1
	AnnotationPrint     AnnotationFlag = 1 << 2
	AnnotationNoZoom    AnnotationFlag = 1 << 3
	AnnotationNoRotate  AnnotationFlag = 1 << 4
	AnnotationNoView    AnnotationFlag = 1 << 5
	AnnotationLocked    AnnotationFlag = 1 << 6
)

// FieldFlag is a bit in a form field's /Ff entry (PDF 32000-1 §12.7.3.1).
type FieldFlag int

const (
	FieldReadOnly FieldFlag = 1 << 0
	FieldRequired FieldFlag = 1 << 1
)

// OpenSSLSigner shells out to `openssl cms -sign`, matching
// SignFilter._do_sign in the original implementation exactly.
type OpenSSLSigner struct {
	CertPath  string
	KeyPath   string
	ChainPath string // optional
}

func (s OpenSSLSigner) Sign(ctx context.Context, data []byte) ([]byte, error) {
	args := []string{"cms", "-sign", "-binary", "-signer", s.CertPath, "-inkey", s.KeyPath}
	if s.ChainPath != "" {
		args = append(args, "-certfile", s.ChainPath)
	}
	args = append(args, "-outform", "der")

	cmd := exec.CommandContext(ctx, "openssl", args...)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("sign: openssl cms -sign failed: %w: %s", err, stderr.String())
	}
	return out, nil
}

const (
	byteRangeMark     = "sig_byterange"
	contentsMark      = "sig_contents"
	placeholderSpaces = 4 * 10
)

// Options describes the signature annotation's metadata (§4.12 phase 1).
type Options struct {
	Page        value.XRef // page the widget annotation is attached to
	SignerName  string
	Location    string
	ContactInfo string
	Reason      string
	Rect        [4]float64 // signature widget rectangle, device space
}

// Inject performs phase 1: it dry-run signs an empty message to learn the
// placeholder width, then adds the /Sig object (with Marker placeholders
// for /ByteRange and /Contents), a minimal appearance form, and the
// widget annotation + /AcroForm entries, to doc. It returns the /Sig
// object's xref so Fixup can locate it again if needed.
func Inject(ctx context.Context, doc *document.Document, signer Signer, opts Options) (value.XRef, error) {
	placeholder, err := signer.Sign(ctx, nil)
	if err != nil {
		return value.XRef{}, fmt.Errorf("sign: dry-run signing failed: %w", err)
	}
	sigLen := len(placeholder)

	ids := doc.FreeObjectIds(4)
	sigRef := value.XRef{ID: ids[0]}
	formRef := value.XRef{ID: ids[1]}
	annotRef := value.XRef{ID: ids[2]}
	acroFormRef := value.XRef{ID: ids[3]}

	sigContent := value.NewDict(
		value.DictEntry{Key: "Type", Value: value.Name("Sig")},
		value.DictEntry{Key: "Filter", Value: value.Name("Adobe.PPKLite")},
		value.DictEntry{Key: "SubFilter", Value: value.Name("adbe.pkcs7.detached")},
		value.DictEntry{Key: "ByteRange", Value: value.Marker{Label: byteRangeMark, Raw: []byte("[ " + strings.Repeat(" ", placeholderSpaces) + "  ")}},
		value.DictEntry{Key: "Contents", Value: value.Marker{Label: contentsMark, Raw: []byte("<" + strings.Repeat("0", 2*sigLen) + ">")}},
		value.DictEntry{Key: "M", Value: value.ByteString(pdfDate(time.Now()))},
	)
	if opts.SignerName != "" {
		s, err := serializer.EncodeTextString(opts.SignerName)
		if err != nil {
			return value.XRef{}, fmt.Errorf("sign: encode signer name: %w", err)
		}
		sigContent.Set("Name", s)
	}
	if opts.Location != "" {
		s, err := serializer.EncodeTextString(opts.Location)
		if err != nil {
			return value.XRef{}, fmt.Errorf("sign: encode location: %w", err)
		}
		sigContent.Set("Location", s)
	}
	if opts.ContactInfo != "" {
		s, err := serializer.EncodeTextString(opts.ContactInfo)
		if err != nil {
			return value.XRef{}, fmt.Errorf("sign: encode contact info: %w", err)
		}
		sigContent.Set("ContactInfo", s)
	}
	if opts.Reason != "" {
		s, err := serializer.EncodeTextString(opts.Reason)
		if err != nil {
			return value.XRef{}, fmt.Errorf("sign: encode reason: %w", err)
		}
		sigContent.Set("Reason", s)
	}
	doc.Replace(document.Object{Ref: sigRef, Content: sigContent})

	rect := opts.Rect
	bbox := value.Array{value.Real(0), value.Real(0), value.Real(rect[2] - rect[0]), value.Real(rect[3] - rect[1])}
	doc.Replace(document.Object{
		Ref: formRef,
		Content: value.NewDict(
			value.DictEntry{Key: "Type", Value: value.Name("XObject")},
			value.DictEntry{Key: "Subtype", Value: value.Name("Form")},
			value.DictEntry{Key: "BBox", Value: bbox},
		),
		Raw: []byte(""),
	})

	doc.Replace(document.Object{Ref: annotRef, Content: value.NewDict(
		value.DictEntry{Key: "Type", Value: value.Name("Annot")},
		value.DictEntry{Key: "Subtype", Value: value.Name("Widget")},
		value.DictEntry{Key: "Rect", Value: value.Array{value.Real(rect[0]), value.Real(rect[1]), value.Real(rect[2]), value.Real(rect[3])}},
		value.DictEntry{Key: "T", Value: value.ByteString("Digital Signature")},
		value.DictEntry{Key: "P", Value: opts.Page},
		value.DictEntry{Key: "F", Value: value.Integer(AnnotationLocked | AnnotationPrint)},
		value.DictEntry{Key: "AP", Value: value.NewDict(value.DictEntry{Key: "N", Value: formRef})},
		value.DictEntry{Key: "FT", Value: value.Name("Sig")},
		value.DictEntry{Key: "V", Value: sigRef},
		value.DictEntry{Key: "Ff", Value: value.Integer(FieldReadOnly)},
	)})

	page, ok := doc.ByXref(opts.Page)
	if !ok {
		return value.XRef{}, fmt.Errorf("sign: page %v not found", opts.Page)
	}
	pageDict, ok := page.Content.(value.Dict)
	if !ok {
		return value.XRef{}, fmt.Errorf("sign: page %v is not a dictionary", opts.Page)
	}
	annots := append(value.Array{}, existingAnnots(doc, pageDict)...)
	annots = append(annots, annotRef)
	newPageDict := pageDict.Clone()
	newPageDict.Set("Annots", annots)
	doc.Replace(document.Object{Ref: page.Ref, Content: newPageDict, Raw: page.Raw})

	rootV, _ := doc.Trailer.Get("Root")
	root, ok := value.AsDict(doc.Resolve(rootV))
	if !ok {
		return value.XRef{}, fmt.Errorf("sign: catalog not found")
	}
	doc.Replace(document.Object{Ref: acroFormRef, Content: value.NewDict(
		value.DictEntry{Key: "Fields", Value: value.Array{sigRef}},
		value.DictEntry{Key: "SigFlags", Value: value.Integer(3)},
	)})
	rootRef, _ := rootV.(value.XRef)
	newRoot := root.Clone()
	newRoot.Set("AcroForm", acroFormRef)
	doc.Replace(document.Object{Ref: rootRef, Content: newRoot})

	return sigRef, nil
}

func existingAnnots(doc *document.Document, pageDict value.Dict) value.Array {
	annotsV, _ := pageDict.Get("Annots")
	a, _ := value.AsArray(doc.Resolve(annotsV))
	return a
}

// Fixup performs phase 2 (§4.12): given the whole written file and the
// marker offsets WriteWithMarks reported, it computes and patches the
// /ByteRange, then signs everything outside the /Contents placeholder and
// hex-patches the real signature in place. file must be exactly the bytes
// writer.WriteWithMarks produced.
func Fixup(ctx context.Context, signer Signer, file []byte, marks map[string]int) ([]byte, error) {
	byteRangeOff, ok := marks[byteRangeMark]
	if !ok {
		return nil, fmt.Errorf("sign: missing %q mark", byteRangeMark)
	}
	contentStart, ok := marks[contentsMark]
	if !ok {
		return nil, fmt.Errorf("sign: missing %q mark", contentsMark)
	}

	end := contentStart + 1
	for end < len(file) && file[end] != '>' {
		end++
	}
	sigHexLen := end - (contentStart + 1)
	contentEnd := contentStart + 1 + sigHexLen

	fileSize := len(file)
	byteRange := [4]int{0, contentStart, contentEnd + 1, fileSize - contentEnd - 1}
	byteRangeStr := fmt.Sprintf("[ %d %d %d %d ]", byteRange[0], byteRange[1], byteRange[2], byteRange[3])
	if len(byteRangeStr) > 2+placeholderSpaces+2 {
		return nil, fmt.Errorf("sign: byte range string %q does not fit the reserved placeholder", byteRangeStr)
	}
	out := append([]byte(nil), file...)
	copy(out[byteRangeOff:], padRight(byteRangeStr, 2+placeholderSpaces+2))

	var signedPayload []byte
	signedPayload = append(signedPayload, out[byteRange[0]:byteRange[0]+byteRange[1]]...)
	signedPayload = append(signedPayload, out[byteRange[2]:byteRange[2]+byteRange[3]]...)

	signature, err := signer.Sign(ctx, signedPayload)
	if err != nil {
		return nil, fmt.Errorf("sign: signing failed: %w", err)
	}
	hexSig := []byte(hex.EncodeToString(signature))
	if len(hexSig) != sigHexLen {
		return nil, fmt.Errorf("sign: signature size changed between dry run (%d hex bytes) and final signing (%d)", sigHexLen, len(hexSig))
	}
	copy(out[contentStart+1:], hexSig)

	return out, nil
}

func padRight(s string, width int) []byte {
	if len(s) >= width {
		return []byte(s)
	}
	return []byte(s + strings.Repeat(" ", width-len(s)))
}

func pdfDate(t time.Time) string {
	return "D:" + t.Format("20060102150405")
}
