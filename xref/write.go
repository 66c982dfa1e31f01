package xref

import "fmt"

// WriteClassical renders t as one contiguous classical xref section
// covering object ids 0..maxId, per §4.5: a synthesized free head followed
// by one 20-byte ASCII line per id (holes become "0000000000 65535 f ").
func WriteClassical(t Table, maxId uint32) []byte {
	out := make([]byte, 0, (int(maxId)+1)*20+32)
	out = append(out, []byte(fmt.Sprintf("xref\n0 %d\n", maxId+1))...)
	out = append(out, []byte("0000000000 65535 f \n")...)
	for id := uint32(1); id <= maxId; id++ {
		e, ok := t[id]
		if !ok || e.Kind != Uncompressed {
			out = append(out, []byte("0000000000 65535 f \n")...)
			continue
		}
		out = append(out, []byte(fmt.Sprintf("%010d %05d n \n", e.Offset, e.Gen))...)
	}
	return out
}

// StreamEntries packs t into the raw big-endian entry bytes a cross-
// reference stream's content is made of, choosing /W widths wide enough for
// the largest offset and container id present, and returns the /Index pairs
// to pair with it ([0, maxId+1], per §4.5's output rule — the core always
// emits one contiguous subsection on write, even though readers must accept
// several on input).
func StreamEntries(t Table, maxId uint32) (w [3]int, index []int, data []byte) {
	var maxOffset, maxContainer int64
	for _, e := range t {
		switch e.Kind {
		case Uncompressed:
			if e.Offset > maxOffset {
				maxOffset = e.Offset
			}
		case Compressed:
			if int64(e.ContainerID) > maxContainer {
				maxContainer = int64(e.ContainerID)
			}
		}
	}
	w = [3]int{1, byteWidth(max64(maxOffset, maxContainer)), 2}
	index = []int{0, int(maxId) + 1}

	data = make([]byte, 0, (int(maxId)+1)*(w[0]+w[1]+w[2]))
	for id := uint32(0); id <= maxId; id++ {
		e, ok := t[id]
		if !ok {
			e = Entry{Kind: Free}
		}
		switch e.Kind {
		case Free:
			data = append(data, 0)
			data = appendBE(data, uint64(e.Offset), w[1])
			data = appendBE(data, uint64(e.Gen), w[2])
		case Uncompressed:
			data = append(data, 1)
			data = appendBE(data, uint64(e.Offset), w[1])
			data = appendBE(data, uint64(e.Gen), w[2])
		case Compressed:
			data = append(data, 2)
			data = appendBE(data, uint64(e.ContainerID), w[1])
			data = appendBE(data, uint64(e.IndexInObjStm), w[2])
		}
	}
	return w, index, data
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// byteWidth returns the minimum number of bytes needed to hold n, at least 1.
func byteWidth(n int64) int {
	w := 1
	for n >= 1<<(8*w) {
		w++
	}
	return w
}

func appendBE(dst []byte, v uint64, width int) []byte {
	for i := width - 1; i >= 0; i-- {
		dst = append(dst, byte(v>>(8*uint(i))))
	}
	return dst
}
