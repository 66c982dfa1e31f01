package codec

import (
	"bytes"
	"errors"
)

const runLengthEOD = 0x80

// runLengthDecode reverses the RunLengthDecode filter (§4.4), grounded on
// the teacher's byte-for-byte algorithm: a length byte < 128 introduces
// length+1 literal bytes; a length byte > 128 repeats the following byte
// 257-length times; 0x80 is the end-of-data marker.
func runLengthDecode(encoded []byte) ([]byte, error) {
	var out bytes.Buffer
	src := encoded
	for {
		if len(src) == 0 {
			return nil, errors.New("codec: RunLengthDecode: missing EOD marker")
		}
		b := src[0]
		src = src[1:]
		if b == runLengthEOD {
			return out.Bytes(), nil
		}
		if b < 0x80 {
			count := int(b) + 1
			if len(src) < count {
				return nil, errors.New("codec: RunLengthDecode: truncated literal run")
			}
			out.Write(src[:count])
			src = src[count:]
			continue
		}
		count := 257 - int(b)
		if len(src) < 1 {
			return nil, errors.New("codec: RunLengthDecode: truncated repeat run")
		}
		rep := src[0]
		src = src[1:]
		for i := 0; i < count; i++ {
			out.WriteByte(rep)
		}
	}
}
