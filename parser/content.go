package parser

import (
	"fmt"

	"github.com/benkugler-labs/pdfreweave/tokenizer"
	"github.com/benkugler-labs/pdfreweave/value"
)

// ContentOp is one operator and its operands, in the order they appeared in
// the content stream. Operands are PDF values; content streams never embed
// indirect references, but may embed arrays of mixed numbers/strings (the TJ
// operator), which ParseContent hands back as a plain value.Array.
type ContentOp struct {
	Operator string
	Operands []value.Value
}

// ParseContent tokenizes an entire (already decoded) content stream into an
// ordered sequence of operator records, per §4.3's content-stream grammar.
// Operators outside the closed alphabet recognized by the interpreter
// (§4.10) are still returned here — "unknown operators are tolerated and
// ignored" is an interpreter-level policy, not a parser-level one.
func ParseContent(data []byte) ([]ContentOp, error) {
	r := tokenizer.New(data)
	lx := NewLexer(r)
	p := NewParser(lx)

	var out []ContentOp
	var operands []value.Value
	for {
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		if tok.Kind == TokEOF {
			return out, nil
		}
		if tok.Kind == TokKeyword && !isLiteralKeyword(tok.Str) {
			if tok.Str == "BI" {
				op, err := parseInlineImage(r)
				if err != nil {
					return nil, err
				}
				out = append(out, op)
				operands = nil
				continue
			}
			out = append(out, ContentOp{Operator: tok.Str, Operands: operands})
			operands = nil
			continue
		}
		v, err := p.parseFromToken(tok)
		if err != nil {
			return nil, err
		}
		operands = append(operands, v)
	}
}

func isLiteralKeyword(s string) bool {
	switch s {
	case "true", "false", "null":
		return true
	default:
		return false
	}
}

// parseInlineImage consumes a "BI ... ID <binary> EI" inline-image block.
// Its binary payload is opaque to this engine (images are only ever handled
// through the content-stream interpreter's Do events and the duplicate /
// resample filters, neither of which inspects inline image data), so we
// only need to find the terminating EI reliably.
func parseInlineImage(r *tokenizer.Reader) (ContentOp, error) {
	lx := NewLexer(r)
	p := NewParser(lx)
	var dict value.Dict
	for {
		tok, err := p.next()
		if err != nil {
			return ContentOp{}, err
		}
		if tok.Kind == TokKeyword && tok.Str == "ID" {
			break
		}
		if tok.Kind != TokName {
			return ContentOp{}, fmt.Errorf("offset %d: malformed inline image dict", r.Tell())
		}
		key := value.Name(tok.Str)
		v, err := p.ParseValue()
		if err != nil {
			return ContentOp{}, err
		}
		dict.Set(key, v)
	}
	// one whitespace byte separates ID from the binary data
	if b, ok := r.PeekByte(); ok && (b == ' ' || b == '\n' || b == '\r') {
		r.Advance(1)
	}
	dataStart := r.Tell()
	raw := r.Bytes()
	idx := dataStart
	for idx+1 < len(raw) {
		if raw[idx] == 'E' && raw[idx+1] == 'I' &&
			(idx == dataStart || isContentWhitespace(raw[idx-1])) &&
			(idx+2 >= len(raw) || isContentWhitespace(raw[idx+2])) {
			break
		}
		idx++
	}
	payload := append([]byte(nil), raw[dataStart:idx]...)
	r.Seek(idx + 2)
	return ContentOp{Operator: "BI", Operands: []value.Value{dict, value.ByteString(payload)}}, nil
}

func isContentWhitespace(b byte) bool {
	switch b {
	case 0, 9, 10, 12, 13, 32:
		return true
	default:
		return false
	}
}
