package pdferr

import (
	"errors"
	"testing"

	"github.com/benkugler-labs/pdfreweave/value"
)

func TestImageDecodeErrorUnwraps(t *testing.T) {
	cause := errors.New("identify: no such file")
	err := &ImageDecodeError{Ref: value.XRef{ID: 7}, Cause: cause}
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}

func TestMalformedPDFMessage(t *testing.T) {
	err := &MalformedPDF{Offset: 42, Expected: "xref", Found: "garbage"}
	if got := err.Error(); got == "" {
		t.Fatal("expected non-empty message")
	}
}

func TestErrorsAsMatchesConcreteKind(t *testing.T) {
	var err error = &SignatureSizeDrift{DryRunLen: 10, ActualLen: 12}
	var drift *SignatureSizeDrift
	if !errors.As(err, &drift) {
		t.Fatal("expected errors.As to match *SignatureSizeDrift")
	}
	if drift.ActualLen != 12 {
		t.Fatalf("got %d, want 12", drift.ActualLen)
	}
}
