// Package pdferr defines the typed error kinds the core raises (§7),
// wrapped with fmt.Errorf("%w", ...) the way the teacher wraps its own
// reader/writer errors rather than returning bare strings.
package pdferr

import (
	"fmt"

	"github.com/benkugler-labs/pdfreweave/value"
)

// MalformedPDF is raised when the parser or reader gives up on the
// current structure (§7).
type MalformedPDF struct {
	Offset           int
	Expected, Found string
}

func (e *MalformedPDF) Error() string {
	return fmt.Sprintf("pdferr: malformed PDF at offset %d: expected %s, found %s", e.Offset, e.Expected, e.Found)
}

// DanglingReference is the relinker's post-condition failure: a live
// reference to an object the document no longer has. It is elevated to
// fatal only during template merge (§4.9).
type DanglingReference struct {
	Ref value.XRef
}

func (e *DanglingReference) Error() string {
	return fmt.Sprintf("pdferr: dangling reference %v", e.Ref)
}

// UnresolvedReference is raised when the relinker finds a reference
// whose target is neither mapped nor present; fatal to the pass
// requesting it (§4.9).
type UnresolvedReference struct {
	Ref value.XRef
}

func (e *UnresolvedReference) Error() string {
	return fmt.Sprintf("pdferr: unresolved reference %v", e.Ref)
}

// ImageDecodeError is raised when the external rasterizer fails to read
// an image; the filter records the failure and continues with the
// original image (§4.11).
type ImageDecodeError struct {
	Ref   value.XRef
	Cause error
}

func (e *ImageDecodeError) Error() string {
	return fmt.Sprintf("pdferr: image decode failed for %v: %v", e.Ref, e.Cause)
}

func (e *ImageDecodeError) Unwrap() error { return e.Cause }

// ImageEncodeError is raised when the external rasterizer fails to
// write a resampled or flattened image back out (§4.11).
type ImageEncodeError struct {
	Ref   value.XRef
	Cause error
}

func (e *ImageEncodeError) Error() string {
	return fmt.Sprintf("pdferr: image encode failed for %v: %v", e.Ref, e.Cause)
}

func (e *ImageEncodeError) Unwrap() error { return e.Cause }

// SignatureSizeDrift is raised when the CMS produced at fixup time
// differs in length from the dry-run placeholder; fatal, no retry
// (§4.12).
type SignatureSizeDrift struct {
	DryRunLen, ActualLen int
}

func (e *SignatureSizeDrift) Error() string {
	return fmt.Sprintf("pdferr: signature size drift: dry-run produced %d bytes, final signing produced %d", e.DryRunLen, e.ActualLen)
}

// ConfigConflict is raised for a configuration whose fields are
// mutually inconsistent (e.g. object streams requested without xref
// streams), before any I/O (§7).
type ConfigConflict struct {
	Reason string
}

func (e *ConfigConflict) Error() string {
	return fmt.Sprintf("pdferr: configuration conflict: %s", e.Reason)
}
