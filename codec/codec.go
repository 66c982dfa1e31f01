// Package codec implements the stream filter layer (decode/encode of Flate,
// decode-only RunLength and LZW, plus the PNG and TIFF predictors layered on top
// of decompression). It mirrors the split the teacher package draws between
// a stream's encoded bytes and its logical predictor post-processing — see
// reader/parser/filters/flateDecode.go in the reference implementation this
// package descends from, whose row-filter math is reused near verbatim.
package codec

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"errors"
	"fmt"
	"io"

	"github.com/hhrutter/lzw"
	"golang.org/x/image/ccitt"
)

// Filter names recognized in a stream's /Filter entry.
const (
	Identity       = "Identity"
	FlateDecode    = "FlateDecode"
	RunLengthDecode = "RunLengthDecode"
	LZWDecode      = "LZWDecode"
	DCTDecode      = "DCTDecode"
	CCITTFaxDecode = "CCITTFaxDecode"
)

// UnsupportedFilter is returned when decode() is asked to reverse a filter
// the codec layer cannot invert. Per §4.4 the object remains usable as an
// opaque blob; callers keep the raw bytes and stop trying to interpret them.
type UnsupportedFilter struct {
	Name string
}

func (e *UnsupportedFilter) Error() string {
	return fmt.Sprintf("codec: unsupported filter %q", e.Name)
}

// Predictor codes, as they appear in /DecodeParms /Predictor.
const (
	PredictorNone    = 1
	PredictorTIFF2   = 2
	PredictorPNGFirst = 10 // None
	PredictorPNGUp   = 12
	PredictorPNGSub  = 11
	PredictorPNGLast = 15 // Optimum, per-row
)

// Params carries the /DecodeParms fields relevant to predictor
// post-processing. Zero value means "no predictor, no parameters".
type Params struct {
	Predictor int
	Colors    int // default 1
	BPC       int // BitsPerComponent, default 8
	Columns   int // default 1
}

func (p Params) normalized() Params {
	out := p
	if out.Colors == 0 {
		out.Colors = 1
	}
	if out.BPC == 0 {
		out.BPC = 8
	}
	if out.Columns == 0 {
		out.Columns = 1
	}
	return out
}

func (p Params) rowSize() int {
	return p.BPC * p.Colors * p.Columns / 8
}

// EncodedObject carries a stream's encoded bytes together with the filter
// metadata needed to reverse them (§4.4).
type EncodedObject struct {
	Encoded   []byte
	Filter    string
	Predictor Params
}

// Decode reverses the filter chain, returning the plain (decompressed,
// unpredicted) bytes. Filters the codec layer cannot invert return
// *UnsupportedFilter; the caller is expected to keep Encoded as an opaque
// blob in that case.
func (o EncodedObject) Decode() ([]byte, error) {
	switch o.Filter {
	case "", Identity:
		return o.Encoded, nil
	case FlateDecode:
		plain, err := inflate(o.Encoded)
		if err != nil {
			return nil, err
		}
		return applyPredictorDecode(plain, o.Predictor)
	case RunLengthDecode:
		return runLengthDecode(o.Encoded)
	case LZWDecode:
		plain, err := lzwDecode(o.Encoded)
		if err != nil {
			return nil, err
		}
		return applyPredictorDecode(plain, o.Predictor)
	case DCTDecode, CCITTFaxDecode:
		// opaque: the core never decompresses image codecs it cannot
		// reproduce losslessly (§4.4)
		return nil, &UnsupportedFilter{Name: o.Filter}
	default:
		return nil, &UnsupportedFilter{Name: o.Filter}
	}
}

func inflate(encoded []byte) ([]byte, error) {
	zr := newZlibOrRawReader(encoded)
	defer zr.Close()
	return io.ReadAll(zr)
}

func lzwDecode(encoded []byte) ([]byte, error) {
	r := lzw.NewReader(bytes.NewReader(encoded), true)
	defer r.Close()
	return io.ReadAll(r)
}

// ProbeCCITT validates that a /CCITTFaxDecode stream decodes cleanly for
// the given /Width, /Height and /DecodeParms /K and /BlackIs1, without
// the caller having to shell out to the external rasterizer for the
// common (undamaged) case (§4.4, §4.11.b dedup fast path). The decoded
// bitmap is discarded: Decode keeps CCITTFaxDecode opaque, since the
// core never re-derives pixels it cannot losslessly reproduce; this is
// a decodability check only.
func ProbeCCITT(encoded []byte, width, height, k int, blackIs1 bool) error {
	mode := ccitt.Group4
	if k >= 0 {
		mode = ccitt.Group3
	}
	r := ccitt.NewReader(bytes.NewReader(encoded), ccitt.MSB, mode, width, height, &ccitt.Options{Invert: !blackIs1})
	_, err := io.Copy(io.Discard, r)
	return err
}

// Create builds an EncodedObject from plain bytes, choosing the filter and
// predictor per §4.4's rule: Flate+PNG-Up when prediction is requested and
// the data spans more than one row, Flate+PNG-Sub for a single row,
// plain Flate for compression-only, or Identity.
func Create(plain []byte, compress, predict bool, columns int) (EncodedObject, error) {
	if !compress {
		return EncodedObject{Encoded: plain, Filter: Identity}, nil
	}
	if !predict {
		enc, err := deflate(plain)
		if err != nil {
			return EncodedObject{}, err
		}
		return EncodedObject{Encoded: enc, Filter: FlateDecode}, nil
	}

	params := Params{Colors: 1, BPC: 8, Columns: columns}.normalized()
	rowSize := params.rowSize()
	if rowSize <= 0 {
		return EncodedObject{}, errors.New("codec: Create: columns must be > 0 when predict is true")
	}
	height := 1
	if len(plain) > 0 {
		height = (len(plain) + rowSize - 1) / rowSize
	}
	var predictorCode int
	var predicted []byte
	if height > 1 {
		predictorCode = PredictorPNGUp
		predicted = encodePNGRows(plain, rowSize, 2, pngFilterUp)
	} else {
		predictorCode = PredictorPNGSub
		predicted = encodePNGRows(plain, rowSize, 1, pngFilterSub)
	}
	enc, err := deflate(predicted)
	if err != nil {
		return EncodedObject{}, err
	}
	params.Predictor = predictorCode
	return EncodedObject{Encoded: enc, Filter: FlateDecode, Predictor: params}, nil
}

func deflate(plain []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(plain); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// newZlibOrRawReader lets Decode accept both zlib-wrapped (the conventional
// FlateDecode framing) and raw deflate streams, matching streams produced by
// encoders that omit the zlib header -- the reader is tolerant here the same
// way the rest of the document model is tolerant of malformed framing.
func newZlibOrRawReader(encoded []byte) io.ReadCloser {
	if zr, err := zlib.NewReader(bytes.NewReader(encoded)); err == nil {
		return zr
	}
	return io.NopCloser(flate.NewReader(bytes.NewReader(encoded)))
}
