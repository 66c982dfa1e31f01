package config

import "testing"

func TestToNativeFromNativeRoundTrip(t *testing.T) {
	cases := []struct {
		v    float64
		unit Unit
	}{
		{1, UnitMM}, {1, UnitCM}, {1, UnitInch}, {72, UnitNative},
	}
	for _, c := range cases {
		native, err := ToNative(c.v, c.unit)
		if err != nil {
			t.Fatalf("ToNative(%v, %v): %v", c.v, c.unit, err)
		}
		back, err := FromNative(native, c.unit)
		if err != nil {
			t.Fatalf("FromNative: %v", err)
		}
		if diff := back - c.v; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("round trip %v %v: got %v, want %v", c.v, c.unit, back, c.v)
		}
	}
}

func TestOneInchIsSeventyTwoNativeUnits(t *testing.T) {
	native, err := ToNative(1, UnitInch)
	if err != nil {
		t.Fatal(err)
	}
	if diff := native - 72; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("got %v native units per inch, want 72", native)
	}
}

func TestValidateRejectsBadTargetDPI(t *testing.T) {
	c := Config{TargetDPI: 0, UseXrefStream: true}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for targetDPI=0")
	}
}

func TestValidateRejectsObjectStreamsWithoutXrefStream(t *testing.T) {
	c := Config{TargetDPI: 150, UseObjectStreams: true, UseXrefStream: false}
	if err := c.Validate(); err == nil {
		t.Fatal("expected ConfigConflict")
	}
}

func TestValidateAcceptsMinimalConfig(t *testing.T) {
	c := Config{TargetDPI: 150, UseXrefStream: true}
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsSigningWithoutCredentials(t *testing.T) {
	c := Config{TargetDPI: 150, UseXrefStream: true, Signing: &SigningConfig{Page: 1}}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for signing without cert/key")
	}
}

func TestValidateRejectsUnrecognizedCropboxUnit(t *testing.T) {
	c := Config{TargetDPI: 150, UseXrefStream: true, Cropbox: &Rect{W: 10, H: 10, Unit: "furlong"}}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for unrecognized unit")
	}
}
