package codec

import (
	"fmt"
	"io"
)

// applyPredictorDecode reverses the None/TIFF-2/PNG-* predictors (§4.4)
// applied to already-decompressed bytes. predictor.Predictor == 0 or 1 means
// "no predictor", the common case.
func applyPredictorDecode(plain []byte, p Params) ([]byte, error) {
	if p.Predictor == 0 || p.Predictor == PredictorNone {
		return plain, nil
	}
	p = p.normalized()

	bytesPerPixel := (p.BPC*p.Colors + 7) / 8
	rowSize := p.rowSize()
	if p.Predictor != PredictorTIFF2 {
		rowSize++ // PNG rows carry a leading filter-type byte
	}
	if rowSize <= 0 {
		return nil, fmt.Errorf("codec: predictor row size is zero or negative")
	}

	cr := make([]byte, rowSize)
	pr := make([]byte, rowSize)
	var out []byte

	src := &sliceReader{data: plain}
	for {
		n, err := io.ReadFull(src, cr)
		if n == 0 && err == io.EOF {
			break
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, err
		}
		row := cr[:n]
		if err == io.ErrUnexpectedEOF {
			// trailing partial row: pad per the TIFF/PNG convention of
			// treating missing trailing bytes as zero, matching the
			// tolerant decoder used throughout the document model
			padded := make([]byte, rowSize)
			copy(padded, row)
			row = padded
		}
		decoded, derr := decodeRow(pr, row, p.Predictor, p.Colors, bytesPerPixel)
		if derr != nil {
			return nil, derr
		}
		out = append(out, decoded...)
		pr, cr = row, pr
		if err == io.ErrUnexpectedEOF {
			break
		}
	}

	if len(out)%p.rowSize() != 0 {
		return nil, fmt.Errorf("codec: predictor postprocessing produced %d bytes, not a multiple of row size %d", len(out), p.rowSize())
	}
	return out, nil
}

type sliceReader struct {
	data []byte
	pos  int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

// decodeRow reverses one row's predictor. For TIFF-2, cr holds the raw
// sample bytes; for PNG, cr[0] is the filter-type byte and the samples
// follow.
func decodeRow(pr, cr []byte, predictor, colors, bytesPerPixel int) ([]byte, error) {
	if predictor == PredictorTIFF2 {
		return applyHorizontalDiff(cr, colors), nil
	}

	cdat := cr[1:]
	pdat := pr[1:]
	filterType := int(cr[0])

	switch filterType {
	case 0: // None
	case 1: // Sub
		for i := bytesPerPixel; i < len(cdat); i++ {
			cdat[i] += cdat[i-bytesPerPixel]
		}
	case 2: // Up
		for i, p := range pdat {
			cdat[i] += p
		}
	case 3: // Average
		for i := 0; i < bytesPerPixel && i < len(cdat); i++ {
			cdat[i] += pdat[i] / 2
		}
		for i := bytesPerPixel; i < len(cdat); i++ {
			cdat[i] += uint8((int(cdat[i-bytesPerPixel]) + int(pdat[i])) / 2)
		}
	case 4: // Paeth
		paethUnfilter(cdat, pdat, bytesPerPixel)
	default:
		return nil, fmt.Errorf("codec: unknown PNG row filter byte %d", filterType)
	}
	return cdat, nil
}

func applyHorizontalDiff(row []byte, colors int) []byte {
	for i := 1; i < len(row)/colors; i++ {
		for j := 0; j < colors; j++ {
			row[i*colors+j] += row[(i-1)*colors+j]
		}
	}
	return row
}

func abs32(x int32) int32 {
	m := x >> 31
	return (x ^ m) - m
}

// paethUnfilter reverses the Paeth predictor in place, using the current
// row's already-decoded left neighbor, the previous row's above and
// upper-left neighbors.
func paethUnfilter(cdat, pdat []byte, bytesPerPixel int) {
	var a, b, c, pa, pb, pc int32
	for i := 0; i < bytesPerPixel; i++ {
		a, c = 0, 0
		for j := i; j < len(cdat); j += bytesPerPixel {
			b = int32(pdat[j])
			pa = b - c
			pb = a - c
			pc = abs32(pa + pb)
			pa = abs32(pa)
			pb = abs32(pb)
			switch {
			case pa <= pb && pa <= pc:
			case pb <= pc:
				a = b
			default:
				a = c
			}
			a += int32(cdat[j])
			a &= 0xff
			cdat[j] = uint8(a)
			c = b
		}
	}
}

// pngFilterUp and pngFilterSub are the two encode-side filters §4.4 allows
// Create to choose between.
func pngFilterUp(cur, prev []byte, bytesPerPixel int) []byte {
	out := make([]byte, len(cur))
	for i, v := range cur {
		out[i] = v - prev[i]
	}
	return out
}

func pngFilterSub(cur, prev []byte, bytesPerPixel int) []byte {
	out := make([]byte, len(cur))
	for i, v := range cur {
		if i < bytesPerPixel {
			out[i] = v
		} else {
			out[i] = v - cur[i-bytesPerPixel]
		}
	}
	return out
}

// encodePNGRows splits plain into rowSize-byte rows (the last row is
// zero-padded if short), applies filterFn to each against the previous
// decoded row, and prefixes each filtered row with filterByte.
func encodePNGRows(plain []byte, rowSize int, filterByte byte, filterFn func(cur, prev []byte, bpp int) []byte) []byte {
	bytesPerPixel := 1 // Create always encodes 8-bit, 1-colour payload today (§4.4's /Colors default)

	var out []byte
	prev := make([]byte, rowSize)
	for off := 0; off < len(plain); off += rowSize {
		end := off + rowSize
		var row []byte
		if end <= len(plain) {
			row = plain[off:end]
		} else {
			row = make([]byte, rowSize)
			copy(row, plain[off:])
		}
		filtered := filterFn(row, prev, bytesPerPixel)
		out = append(out, filterByte)
		out = append(out, filtered...)
		prev = row
	}
	return out
}
