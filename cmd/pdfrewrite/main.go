// Command pdfrewrite is thin CLI wiring to exercise the core pipeline
// end to end: load a PDF, run a fixed set of transformation filters
// (resample, orphan removal, length repair, metadata stripping) tuned by
// a few flags, and write the result back out. It is not the scoped CLI of
// a packaging tool, just enough `main` for manual smoke-testing; flag
// parsing here is intentionally minimal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/benkugler-labs/pdfreweave/config"
	"github.com/benkugler-labs/pdfreweave/document"
	"github.com/benkugler-labs/pdfreweave/raster"
	"github.com/benkugler-labs/pdfreweave/transform"
	"github.com/benkugler-labs/pdfreweave/writer"
)

// exitError pairs an error with one of §6's exit codes.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "pdfrewrite:", err)
		code := 3
		if ee, ok := err.(*exitError); ok {
			code = ee.code
		}
		os.Exit(code)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("pdfrewrite", flag.ContinueOnError)
	var (
		in              = fs.String("in", "", "input PDF path")
		out             = fs.String("out", "", "output PDF path")
		targetDPI       = fs.Int("dpi", 150, "target image resolution")
		lossy           = fs.Bool("lossy", false, "re-encode resampled images as JPEG")
		analyzeOnly     = fs.Bool("analyze", false, "print a per-type byte-size breakdown and exit, without writing an output file")
		pretty          = fs.Bool("pretty", false, "pretty-print the output")
		useXrefStm      = fs.Bool("xref-stream", true, "emit a cross-reference stream instead of a classical table")
		dpiExtentFactor = fs.Float64("dpi-extent-factor", config.DefaultDPIExtentFactor, "scale factor applied to an image's measured world extent before computing its achieved DPI")
	)
	if err := fs.Parse(args); err != nil {
		return &exitError{code: 1, err: err}
	}
	if *in == "" {
		return &exitError{code: 1, err: fmt.Errorf("-in is required")}
	}
	if !*analyzeOnly && *out == "" {
		return &exitError{code: 1, err: fmt.Errorf("-out is required unless -analyze is set")}
	}

	cfg := config.Config{
		TargetDPI:       *targetDPI,
		LossyImages:     *lossy,
		JPEGQuality:     85,
		PrettyOutput:    *pretty,
		UseXrefStream:   *useXrefStm,
		DPIExtentFactor: *dpiExtentFactor,
	}
	if err := cfg.Validate(); err != nil {
		return &exitError{code: 1, err: err}
	}

	data, err := os.ReadFile(*in)
	if err != nil {
		return &exitError{code: 4, err: fmt.Errorf("read input: %w", err)}
	}
	doc, err := document.Read(data)
	if err != nil {
		return &exitError{code: 2, err: fmt.Errorf("parse input: %w", err)}
	}

	if *analyzeOnly {
		printReport(transform.Analyze(doc))
		return nil
	}

	ctx := context.Background()
	rz := raster.ExecRasterizer{}

	if _, err := transform.ResampleImages(ctx, doc, rz, float64(*targetDPI), *lossy, cfg.EffectiveDPIExtentFactor()); err != nil {
		return &exitError{code: 3, err: fmt.Errorf("resample images: %w", err)}
	}
	transform.RemoveOrphans(doc)
	transform.FixExplicitLengths(doc)
	transform.StripMetadata(doc, cfg.StripMetadataPrefixes)

	dst, err := os.Create(*out)
	if err != nil {
		return &exitError{code: 4, err: fmt.Errorf("create output: %w", err)}
	}
	defer dst.Close()

	wcfg := writer.Config{
		Pretty:        cfg.PrettyOutput,
		UseXRefStream: cfg.UseXrefStream,
	}
	if err := writer.Write(doc, wcfg, dst); err != nil {
		return &exitError{code: 4, err: fmt.Errorf("write output: %w", err)}
	}
	return nil
}

func printReport(r transform.Report) {
	fmt.Printf("total: %d bytes\n", r.TotalBytes)
	for kind, size := range r.BytesByKind {
		fmt.Printf("  %-24s %10d bytes\n", kind, size)
	}
}
