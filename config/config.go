// Package config holds the engine's configuration surface (§6) and its
// validation, following the teacher's field-validated style rather than a
// builder or options pattern (see model/encryption.go's validation of
// mutually-dependent fields before any I/O happens).
package config

import (
	"fmt"

	"github.com/benkugler-labs/pdfreweave/pdferr"
)

// Unit is a length unit a cropbox or signature position may be expressed
// in, following the original's Measurements table (§3.2 of the
// supplement): mm is the canonical unit, cm and inch are multiples of
// it, and native is the PDF content stream's own unit (1/72 inch).
type Unit string

const (
	UnitMM     Unit = "mm"
	UnitCM     Unit = "cm"
	UnitInch   Unit = "inch"
	UnitNative Unit = "native"
)

// millimetersPer reports how many millimeters one unit of u is worth,
// mirroring Measurements.py's factor table (mm is the factor-1 base).
func millimetersPer(u Unit) (float64, bool) {
	switch u {
	case UnitMM:
		return 1, true
	case UnitCM:
		return 10, true
	case UnitInch:
		return 25.4, true
	case UnitNative:
		return 25.4 / 72, true
	default:
		return 0, false
	}
}

// ToNative converts v, expressed in u, into native PDF units (1/72 inch).
func ToNative(v float64, u Unit) (float64, error) {
	perUnit, ok := millimetersPer(u)
	if !ok {
		return 0, fmt.Errorf("config: unknown unit %q", u)
	}
	nativePerUnit, _ := millimetersPer(UnitNative)
	return v * perUnit / nativePerUnit, nil
}

// FromNative converts v, expressed in native PDF units, into u.
func FromNative(v float64, u Unit) (float64, error) {
	perUnit, ok := millimetersPer(u)
	if !ok {
		return 0, fmt.Errorf("config: unknown unit %q", u)
	}
	nativePerUnit, _ := millimetersPer(UnitNative)
	return v * nativePerUnit / perUnit, nil
}

// Rect is an (x, y, w, h) box expressed in Unit, used for Cropbox and the
// signature widget's Position (§6).
type Rect struct {
	X, Y, W, H float64
	Unit       Unit
}

// SigningConfig configures the signature injection filter (§4.12 phase 1,
// §6's `signing:{...}` field group).
type SigningConfig struct {
	CertPath, KeyPath, ChainPath string
	Page                        int // 1-based
	Position                    *Rect
	Reason, Location, Contact, Name string
}

// Config mirrors §6's full configuration-input field list, consumed by the
// CLI layer and validated once, before any I/O, via Validate.
type Config struct {
	TargetDPI    int
	LossyImages  bool
	JPEGQuality  int // 0-100, meaningful only when LossyImages

	// DPIExtentFactor scales an image's measured on-page world extent before
	// the achieved-DPI computation in ResampleImages. The source carries a
	// hardcoded 1.25 here with no accompanying rationale; this field exposes
	// it as a tunable, defaulting to that same 1.25, rather than resolving
	// the open question of why it's needed. Zero means "use the default".
	DPIExtentFactor float64

	OnebitAlpha     bool
	RemoveAlpha     bool
	BackgroundColor string // e.g. "#ffffff"

	PrettyOutput     bool
	UseXrefStream    bool
	UseObjectStreams bool

	StripMetadataPrefixes []string

	Signing *SigningConfig

	Cropbox *Rect

	PayloadPath string
}

// DefaultDPIExtentFactor is the source's own value for DPIExtentFactor,
// used whenever a Config leaves the field at its zero value.
const DefaultDPIExtentFactor = 1.25

// EffectiveDPIExtentFactor returns c.DPIExtentFactor, or
// DefaultDPIExtentFactor if it was left unset.
func (c Config) EffectiveDPIExtentFactor() float64 {
	if c.DPIExtentFactor <= 0 {
		return DefaultDPIExtentFactor
	}
	return c.DPIExtentFactor
}

// Validate checks the field-interdependency rules §7's ConfigConflict
// covers, before any I/O is attempted.
func (c Config) Validate() error {
	if c.TargetDPI <= 0 {
		return &pdferr.ConfigConflict{Reason: fmt.Sprintf("targetDpi must be > 0, got %d", c.TargetDPI)}
	}
	if c.JPEGQuality < 0 || c.JPEGQuality > 100 {
		return &pdferr.ConfigConflict{Reason: fmt.Sprintf("jpegQuality must be in [0, 100], got %d", c.JPEGQuality)}
	}
	if c.DPIExtentFactor < 0 {
		return &pdferr.ConfigConflict{Reason: fmt.Sprintf("dpiExtentFactor must be >= 0, got %g", c.DPIExtentFactor)}
	}
	if c.UseObjectStreams && !c.UseXrefStream {
		return &pdferr.ConfigConflict{Reason: "useObjectStreams requires useXrefStream"}
	}
	if c.OnebitAlpha && c.RemoveAlpha {
		return &pdferr.ConfigConflict{Reason: "onebitAlpha and removeAlpha are mutually exclusive"}
	}
	if c.Signing != nil {
		if c.Signing.CertPath == "" || c.Signing.KeyPath == "" {
			return &pdferr.ConfigConflict{Reason: "signing requires cert and key"}
		}
		if c.Signing.Page < 1 {
			return &pdferr.ConfigConflict{Reason: fmt.Sprintf("signing.page must be >= 1, got %d", c.Signing.Page)}
		}
	}
	if c.Cropbox != nil {
		if _, ok := millimetersPer(c.Cropbox.Unit); !ok {
			return &pdferr.ConfigConflict{Reason: fmt.Sprintf("cropbox unit %q is not recognized", c.Cropbox.Unit)}
		}
		if c.Cropbox.W <= 0 || c.Cropbox.H <= 0 {
			return &pdferr.ConfigConflict{Reason: "cropbox width and height must be positive"}
		}
	}
	return nil
}
