package content

import (
	"math"
	"testing"

	"github.com/benkugler-labs/pdfreweave/parser"
	"github.com/benkugler-labs/pdfreweave/value"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCTMTrackingAndDirectDraw(t *testing.T) {
	ops, err := parser.ParseContent([]byte("q 2 0 0 2 10 20 cm /Im1 Do Q"))
	if err != nil {
		t.Fatal(err)
	}
	ip := New()
	var events []Event
	ip.Run(ops, func(e Event) { events = append(events, e) })

	if len(events) != 1 || events[0].Kind != DrawXObject || events[0].Name != "Im1" {
		t.Fatalf("got %#v", events)
	}
	ext := events[0].WorldExtents
	if !almostEqual(ext.XMin, 10) || !almostEqual(ext.YMin, 20) || !almostEqual(ext.XMax, 12) || !almostEqual(ext.YMax, 22) {
		t.Fatalf("got extents %#v", ext)
	}
}

func TestQRestoresCTM(t *testing.T) {
	ops, err := parser.ParseContent([]byte("q 5 0 0 5 0 0 cm Q /Im1 Do"))
	if err != nil {
		t.Fatal(err)
	}
	ip := New()
	var events []Event
	ip.Run(ops, func(e Event) { events = append(events, e) })

	ext := events[0].WorldExtents
	if !almostEqual(ext.XMax, 1) || !almostEqual(ext.YMax, 1) {
		t.Fatalf("expected identity CTM after Q, got %#v", ext)
	}
}

func TestPatternFillOnSingleRectPath(t *testing.T) {
	ops, err := parser.ParseContent([]byte("/P1 scn 0 0 100 100 re f"))
	if err != nil {
		t.Fatal(err)
	}
	ip := New()
	ip.ResolvePattern = func(name value.Name) (Rect, Matrix, bool) {
		return Rect{XMax: 1, YMax: 1}, Identity, true
	}
	var events []Event
	ip.Run(ops, func(e Event) { events = append(events, e) })
	if len(events) != 1 || events[0].Kind != DrawPatternFill {
		t.Fatalf("got %#v", events)
	}
}
