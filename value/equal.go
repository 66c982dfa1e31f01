package value

import "bytes"

// Equal reports deep, structural equality between two values, as required
// by the read-then-write round trip property: two Documents are equal when
// every object's content is Value-equal.
func Equal(a, b Value) bool {
	switch a := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Boolean:
		bb, ok := b.(Boolean)
		return ok && a == bb
	case Integer:
		bb, ok := b.(Integer)
		return ok && a == bb
	case Real:
		bb, ok := b.(Real)
		return ok && a == bb
	case Name:
		bb, ok := b.(Name)
		return ok && a == bb
	case ByteString:
		bb, ok := b.(ByteString)
		return ok && bytes.Equal(a, bb)
	case Array:
		bb, ok := b.(Array)
		if !ok || len(a) != len(bb) {
			return false
		}
		for i := range a {
			if !Equal(a[i], bb[i]) {
				return false
			}
		}
		return true
	case Dict:
		bb, ok := b.(Dict)
		if !ok || a.Len() != bb.Len() {
			return false
		}
		for _, e := range a.Entries() {
			ov, has := bb.Get(e.Key)
			if !has || !Equal(e.Value, ov) {
				return false
			}
		}
		return true
	case XRef:
		bb, ok := b.(XRef)
		return ok && a == bb
	case Marker:
		bb, ok := b.(Marker)
		return ok && a.Label == bb.Label
	default:
		return false
	}
}
