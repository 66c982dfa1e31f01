package value

// Visit performs the immutable walk used by the orphan collector and the
// relinker to collect every indirect reference reachable from v. fn is
// called once per XRef encountered, in a depth-first, deterministic
// (sorted-key) order so that repeated walks of the same value visit
// references in the same sequence — relevant for deterministic diagnostics,
// not for correctness.
func Visit(v Value, fn func(XRef)) {
	switch v := v.(type) {
	case XRef:
		fn(v)
	case Array:
		for _, e := range v {
			Visit(e, fn)
		}
	case Dict:
		for _, k := range v.SortedKeys() {
			val, _ := v.Get(k)
			Visit(val, fn)
		}
	case Marker:
		if v.Child != nil {
			Visit(v.Child, fn)
		}
	}
}

// Rebuild returns a structurally-identical value with every indirect
// reference passed through replace. It is the "rebuilding walk" of §4.2: it
// never mutates v in place: every Array/Dict is rebuilt fresh, whether or
// not a descendant changed, and non-reference leaf values are returned
// as-is, so the old and new graphs share no container.
func Rebuild(v Value, replace func(XRef) XRef) Value {
	switch v := v.(type) {
	case XRef:
		return replace(v)
	case Array:
		out := make(Array, len(v))
		for i, e := range v {
			out[i] = Rebuild(e, replace)
		}
		return out
	case Dict:
		var out Dict
		for _, e := range v.Entries() {
			out.Set(e.Key, Rebuild(e.Value, replace))
		}
		return out
	case Marker:
		if v.Child == nil {
			return v
		}
		return Marker{Label: v.Label, Raw: v.Raw, Child: Rebuild(v.Child, replace)}
	default:
		return v
	}
}

// AsDict type-asserts v as a Dict, returning ok=false for every other
// variant including Null — the common "missing entry behaves like null"
// idiom used throughout the document model.
func AsDict(v Value) (Dict, bool) {
	d, ok := v.(Dict)
	return d, ok
}

// AsArray type-asserts v as an Array.
func AsArray(v Value) (Array, bool) {
	a, ok := v.(Array)
	return a, ok
}

// AsName type-asserts v as a Name.
func AsName(v Value) (Name, bool) {
	n, ok := v.(Name)
	return n, ok
}

// AsInt returns the integer value of v, accepting both Integer and Real
// (truncated), matching the tokenizer's own leniency for numeric tokens.
func AsInt(v Value) (int64, bool) {
	switch v := v.(type) {
	case Integer:
		return int64(v), true
	case Real:
		return int64(v), true
	default:
		return 0, false
	}
}

// Resolve looks up a reference through resolve (typically
// document.Document.Resolve) and returns the pointed-to value, or v itself
// if it is not an indirect reference.
func Resolve(v Value, resolve func(XRef) Value) Value {
	if ref, ok := v.(XRef); ok {
		return resolve(ref)
	}
	return v
}
