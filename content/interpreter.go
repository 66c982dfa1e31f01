// Package content interprets a parsed content stream against a mutable
// graphics state (§4.10): CTM tracking, path/clip bookkeeping, and XObject
// draw events with their world extents. The operator set and the
// save/restore stack shape are grounded on contentstream/commands.go in the
// reference implementation this package descends from, generalized from
// its fixed Operation-interface dispatch into a small table of the handful
// of operators the interpreter actually has to understand.
package content

import (
	"github.com/benkugler-labs/pdfreweave/parser"
	"github.com/benkugler-labs/pdfreweave/value"
)

// Matrix is the affine transform [[a b 0][c d 0][e f 1]] used throughout the
// PDF content-stream model (§4.10).
type Matrix struct{ A, B, C, D, E, F float64 }

// Identity is the identity transform.
var Identity = Matrix{A: 1, D: 1}

// Mul returns m composed with n as m · n (m applied first, per PDF's
// row-vector convention: a point is transformed as [x y 1] * M).
func (m Matrix) Mul(n Matrix) Matrix {
	return Matrix{
		A: m.A*n.A + m.B*n.C,
		B: m.A*n.B + m.B*n.D,
		C: m.C*n.A + m.D*n.C,
		D: m.C*n.B + m.D*n.D,
		E: m.E*n.A + m.F*n.C + n.E,
		F: m.E*n.B + m.F*n.D + n.F,
	}
}

// Apply transforms the point (x, y) by m.
func (m Matrix) Apply(x, y float64) (float64, float64) {
	return x*m.A + y*m.C + m.E, x*m.B + y*m.D + m.F
}

// Rect is an axis-aligned bounding box in device space.
type Rect struct{ XMin, YMin, XMax, YMax float64 }

func rectOfPoints(pts ...[2]float64) Rect {
	r := Rect{XMin: pts[0][0], XMax: pts[0][0], YMin: pts[0][1], YMax: pts[0][1]}
	for _, p := range pts[1:] {
		if p[0] < r.XMin {
			r.XMin = p[0]
		}
		if p[0] > r.XMax {
			r.XMax = p[0]
		}
		if p[1] < r.YMin {
			r.YMin = p[1]
		}
		if p[1] > r.YMax {
			r.YMax = p[1]
		}
	}
	return r
}

// transformRect returns the bounding box of the unit square [0,1]x[0,1]
// (or, for pattern fills, a BBox rect) mapped through m.
func transformRect(m Matrix, r Rect) Rect {
	x0, y0 := m.Apply(r.XMin, r.YMin)
	x1, y1 := m.Apply(r.XMax, r.YMin)
	x2, y2 := m.Apply(r.XMax, r.YMax)
	x3, y3 := m.Apply(r.XMin, r.YMax)
	return rectOfPoints([2]float64{x0, y0}, [2]float64{x1, y1}, [2]float64{x2, y2}, [2]float64{x3, y3})
}

// DrawKind distinguishes the two event shapes the interpreter emits.
type DrawKind int

const (
	// DrawXObject is a direct `Do` invocation of an image or form XObject.
	DrawXObject DrawKind = iota
	// DrawPatternFill is an `f`-terminated single-rectangle path filled
	// with a non-stroking pattern color.
	DrawPatternFill
)

// Event is one draw observed while interpreting a content stream (§4.10).
type Event struct {
	Kind         DrawKind
	Name         value.Name // XObject or Pattern resource name
	WorldExtents Rect
}

type pathRect struct {
	x, y, w, h float64
}

// state is one entry of the q/Q graphics-state stack.
type state struct {
	ctm             Matrix
	fillColorIsName bool
	fillColorName   value.Name
}

// Interpreter executes content-stream operators against a graphics state,
// single-threaded and with no I/O of its own: callers resolve XObject and
// Pattern dictionaries (Resources lookups, /BBox, /Matrix) themselves.
type Interpreter struct {
	stack   []state
	cur     state
	path    []pathRect // rectangles appended by `re` since the last path terminator
	clipped bool

	// ResolvePattern, given a pattern resource name, returns its /BBox and
	// /Matrix. Required only to emit DrawPatternFill events; a nil func
	// means pattern fills are never reported.
	ResolvePattern func(name value.Name) (bbox Rect, patternMatrix Matrix, ok bool)
}

// New returns an Interpreter with an identity CTM.
func New() *Interpreter {
	return &Interpreter{cur: state{ctm: Identity}}
}

// Run executes ops, calling emit for every draw event observed (§4.10).
func (ip *Interpreter) Run(ops []parser.ContentOp, emit func(Event)) {
	for _, op := range ops {
		ip.step(op, emit)
	}
}

func (ip *Interpreter) step(op parser.ContentOp, emit func(Event)) {
	switch op.Operator {
	case "q":
		ip.stack = append(ip.stack, ip.cur)
	case "Q":
		if n := len(ip.stack); n > 0 {
			ip.cur = ip.stack[n-1]
			ip.stack = ip.stack[:n-1]
		}
	case "cm":
		if m, ok := matrixOperands(op.Operands); ok {
			ip.cur.ctm = m.Mul(ip.cur.ctm)
		}
	case "re":
		if nums, ok := floatOperands(op.Operands, 4); ok {
			ip.path = append(ip.path, pathRect{x: nums[0], y: nums[1], w: nums[2], h: nums[3]})
		}
	case "W", "W*":
		ip.clipped = true
	case "S", "s", "F", "f*", "B", "B*", "b", "b*", "n":
		ip.terminatePath(emit)
	case "f":
		ip.terminatePathFill(emit)
	case "scn", "SCN":
		ip.setNonStrokingColor(op.Operands)
	case "Do":
		if name, ok := nameOperand(op.Operands); ok {
			ip.emitDirectDraw(name, emit)
		}
	}
}

func (ip *Interpreter) terminatePath(emit func(Event)) {
	ip.path = nil
	ip.clipped = false
}

// terminatePathFill implements §4.10's `f`-terminator rule: if the path is a
// single `re` and the active non-stroking color references a pattern, emit
// a pattern-fill event before clearing the path.
func (ip *Interpreter) terminatePathFill(emit func(Event)) {
	defer ip.terminatePath(emit)
	if len(ip.path) != 1 || !ip.cur.fillColorIsName || ip.ResolvePattern == nil {
		return
	}
	bbox, patternMatrix, ok := ip.ResolvePattern(ip.cur.fillColorName)
	if !ok {
		return
	}
	extents := transformRect(patternMatrix.Mul(ip.cur.ctm), bbox)
	emit(Event{Kind: DrawPatternFill, Name: ip.cur.fillColorName, WorldExtents: extents})
}

func (ip *Interpreter) setNonStrokingColor(operands []value.Value) {
	if len(operands) == 0 {
		return
	}
	if n, ok := operands[len(operands)-1].(value.Name); ok {
		ip.cur.fillColorIsName = true
		ip.cur.fillColorName = n
		return
	}
	ip.cur.fillColorIsName = false
}

func (ip *Interpreter) emitDirectDraw(name value.Name, emit func(Event)) {
	extents := transformRect(ip.cur.ctm, Rect{XMin: 0, YMin: 0, XMax: 1, YMax: 1})
	emit(Event{Kind: DrawXObject, Name: name, WorldExtents: extents})
}

func matrixOperands(operands []value.Value) (Matrix, bool) {
	nums, ok := floatOperands(operands, 6)
	if !ok {
		return Matrix{}, false
	}
	return Matrix{A: nums[0], B: nums[1], C: nums[2], D: nums[3], E: nums[4], F: nums[5]}, true
}

func floatOperands(operands []value.Value, n int) ([]float64, bool) {
	if len(operands) < n {
		return nil, false
	}
	operands = operands[len(operands)-n:]
	out := make([]float64, n)
	for i, v := range operands {
		switch v := v.(type) {
		case value.Integer:
			out[i] = float64(v)
		case value.Real:
			out[i] = float64(v)
		default:
			return nil, false
		}
	}
	return out, true
}

func nameOperand(operands []value.Value) (value.Name, bool) {
	if len(operands) == 0 {
		return "", false
	}
	n, ok := operands[len(operands)-1].(value.Name)
	return n, ok
}
