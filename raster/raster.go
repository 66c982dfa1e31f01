// Package raster defines the external-rasterizer boundary (§6 / §5): the
// core does not resample or composite images itself (it only decodes the
// tool's PNG output back into pixel rows), it shells out to an
// out-of-process tool exchanging files in a scoped temporary
// directory -- "a blocking out-of-process operation" -- and to a geometry
// query for probing an image's native dimensions. Grounded on the
// subprocess invocation shape of the original implementation's signing and
// resampling filters, which spawn openssl/external tools the same way.
package raster

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// ImageInfo is what Probe reports about an image file on disk.
type ImageInfo struct {
	WidthPx, HeightPx int
	DPI               float64
}

// Options controls a Convert invocation: target dimensions and, when
// Lossy is set, JPEG output at Quality (§4.11.c).
type Options struct {
	WidthPx, HeightPx int
	Lossy             bool
	Quality           int // 1-100, meaningful only when Lossy
	Monochrome        bool // forces 1-bit output, used for alpha masks
}

// Rasterizer is the collaborator the resampling and alpha-flattening
// filters depend on; Convert and Probe are each a single blocking
// out-of-process call.
type Rasterizer interface {
	Convert(ctx context.Context, src, dst string, opts Options) error
	Probe(ctx context.Context, path string) (ImageInfo, error)
	// Flatten composites fg (an image with a separate soft-mask file, mask)
	// onto a solid background color, writing the result to dst (§4.11.d).
	Flatten(ctx context.Context, fg, mask, dst string, background [3]uint8) error
}

// ExecRasterizer shells out to a configured command-line image tool
// (e.g. ImageMagick's `convert`/`identify`), exchanging files through a
// temporary directory whose lifetime is scoped to the call.
type ExecRasterizer struct {
	ConvertCmd  string // default "convert"
	IdentifyCmd string // default "identify"
}

func (r ExecRasterizer) convertCmd() string {
	if r.ConvertCmd != "" {
		return r.ConvertCmd
	}
	return "convert"
}

func (r ExecRasterizer) identifyCmd() string {
	if r.IdentifyCmd != "" {
		return r.IdentifyCmd
	}
	return "identify"
}

// Convert implements Rasterizer by shelling out to the configured convert
// tool, writing its output to dst (a path inside a caller-scoped temporary
// directory).
func (r ExecRasterizer) Convert(ctx context.Context, src, dst string, opts Options) error {
	args := []string{src, "-resize", fmt.Sprintf("%dx%d!", opts.WidthPx, opts.HeightPx)}
	if opts.Monochrome {
		args = append(args, "-monochrome")
	}
	if opts.Lossy {
		quality := opts.Quality
		if quality <= 0 {
			quality = 85
		}
		args = append(args, "-quality", fmt.Sprintf("%d", quality))
	}
	args = append(args, dst)

	cmd := exec.CommandContext(ctx, r.convertCmd(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("raster: convert failed: %w: %s", err, stderr.String())
	}
	return nil
}

// Probe implements Rasterizer by shelling out to the configured identify
// tool and parsing its "%w %h %x" format output.
func (r ExecRasterizer) Probe(ctx context.Context, path string) (ImageInfo, error) {
	cmd := exec.CommandContext(ctx, r.identifyCmd(), "-format", "%w %h %x", path)
	out, err := cmd.Output()
	if err != nil {
		return ImageInfo{}, fmt.Errorf("raster: identify failed: %w", err)
	}
	var info ImageInfo
	if _, err := fmt.Sscanf(string(out), "%d %d %f", &info.WidthPx, &info.HeightPx, &info.DPI); err != nil {
		return ImageInfo{}, fmt.Errorf("raster: unparsable identify output %q: %w", out, err)
	}
	return info, nil
}

// Flatten implements Rasterizer by shelling out to convert, using mask as
// fg's alpha channel (-compose CopyOpacity) and flattening onto background.
func (r ExecRasterizer) Flatten(ctx context.Context, fg, mask, dst string, background [3]uint8) error {
	bg := fmt.Sprintf("rgb(%d,%d,%d)", background[0], background[1], background[2])
	args := []string{fg, mask, "-alpha", "off", "-compose", "CopyOpacity", "-composite", "-background", bg, "-flatten", dst}
	cmd := exec.CommandContext(ctx, r.convertCmd(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("raster: flatten failed: %w: %s", err, stderr.String())
	}
	return nil
}

// ScopedTempDir creates a temporary directory, returning it and a cleanup
// func that removes it on every exit path (§5's scoped-lifetime
// requirement for the rasterizer's exchange files).
func ScopedTempDir(prefix string) (dir string, cleanup func(), err error) {
	dir, err = os.MkdirTemp("", prefix)
	if err != nil {
		return "", func() {}, err
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}

// TempPath joins dir and name, for callers building exchange file paths
// inside a ScopedTempDir.
func TempPath(dir, name string) string {
	return filepath.Join(dir, name)
}
