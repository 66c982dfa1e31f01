package raster

import (
	"context"
	"testing"
)

type fakeRasterizer struct {
	converted []Options
	probeInfo ImageInfo
}

func (f *fakeRasterizer) Convert(ctx context.Context, src, dst string, opts Options) error {
	f.converted = append(f.converted, opts)
	return nil
}

func (f *fakeRasterizer) Probe(ctx context.Context, path string) (ImageInfo, error) {
	return f.probeInfo, nil
}

func (f *fakeRasterizer) Flatten(ctx context.Context, fg, mask, dst string, background [3]uint8) error {
	return nil
}

func TestFakeRasterizerSatisfiesInterface(t *testing.T) {
	var r Rasterizer = &fakeRasterizer{probeInfo: ImageInfo{WidthPx: 100, HeightPx: 50, DPI: 72}}
	info, err := r.Probe(context.Background(), "img.png")
	if err != nil {
		t.Fatal(err)
	}
	if info.WidthPx != 100 || info.HeightPx != 50 {
		t.Fatalf("got %#v", info)
	}
	if err := r.Convert(context.Background(), "in.png", "out.png", Options{WidthPx: 50, HeightPx: 25}); err != nil {
		t.Fatal(err)
	}
}

func TestScopedTempDirCleansUp(t *testing.T) {
	dir, cleanup, err := ScopedTempDir("pdfreweave-test-")
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()
	if dir == "" {
		t.Fatal("expected non-empty temp dir")
	}
}
