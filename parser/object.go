package parser

import (
	"bytes"
	"fmt"

	"github.com/benkugler-labs/pdfreweave/tokenizer"
	"github.com/benkugler-labs/pdfreweave/value"
)

// Parser builds value.Value trees out of object-syntax tokens (§4.3).
type Parser struct {
	lx      *Lexer
	pending []Token // pushed-back tokens, last pushed first
}

// NewParser builds a Parser reading object syntax from lx.
func NewParser(lx *Lexer) *Parser {
	return &Parser{lx: lx}
}

// Pos returns the current byte offset.
func (p *Parser) Pos() int { return p.lx.Pos() }

// Lexer exposes the underlying lexer, needed once a stream dictionary has
// been parsed to scan for the literal "stream" keyword at the byte level.
func (p *Parser) Lexer() *Lexer { return p.lx }

func (p *Parser) next() (Token, error) {
	if n := len(p.pending); n > 0 {
		tok := p.pending[n-1]
		p.pending = p.pending[:n-1]
		return tok, nil
	}
	return p.lx.Next()
}

func (p *Parser) unread(tok Token) {
	p.pending = append(p.pending, tok)
}

// ParseValue consumes a single self-contained value per the grammar:
//
//	value := dict | array | name | number | bool | null | hexstring | litstring | xref
func (p *Parser) ParseValue() (value.Value, error) {
	tok, err := p.next()
	if err != nil {
		return nil, err
	}
	return p.parseFromToken(tok)
}

func (p *Parser) parseFromToken(tok Token) (value.Value, error) {
	switch tok.Kind {
	case TokEOF:
		return nil, fmt.Errorf("unexpected EOF while parsing a value")
	case TokInteger:
		return p.parseIntegerOrRef(tok)
	case TokReal:
		return value.Real(tok.Real), nil
	case TokName:
		return value.Name(tok.Str), nil
	case TokString, TokHexString:
		return value.ByteString([]byte(tok.Str)), nil
	case TokArrayStart:
		return p.parseArray()
	case TokDictStart:
		return p.parseDict()
	case TokKeyword:
		switch tok.Str {
		case "true":
			return value.Boolean(true), nil
		case "false":
			return value.Boolean(false), nil
		case "null":
			return value.Null{}, nil
		default:
			return nil, &SyntaxError{Offset: p.Pos(), Expected: "value", Found: tok.Str}
		}
	default:
		return nil, &SyntaxError{Offset: p.Pos(), Expected: "value", Found: fmt.Sprintf("token kind %d", tok.Kind)}
	}
}

// parseIntegerOrRef disambiguates a bare Integer from the three-token
// "id gen R" indirect-reference production, using up to two tokens of
// lookahead (mirroring the teacher tokenizer's aToken/aaToken cache).
func (p *Parser) parseIntegerOrRef(first Token) (value.Value, error) {
	second, err := p.next()
	if err != nil {
		return nil, err
	}
	if second.Kind != TokInteger {
		p.unread(second)
		return value.Integer(first.Int), nil
	}
	third, err := p.next()
	if err != nil {
		return nil, err
	}
	if third.Kind == TokKeyword && third.Str == "R" {
		return value.XRef{ID: uint32(first.Int), Gen: uint16(second.Int)}, nil
	}
	p.unread(third)
	p.unread(second)
	return value.Integer(first.Int), nil
}

func (p *Parser) parseArray() (value.Array, error) {
	out := value.Array{}
	for {
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		if tok.Kind == TokArrayEnd {
			return out, nil
		}
		if tok.Kind == TokEOF {
			return nil, &SyntaxError{Offset: p.Pos(), Expected: "']'", Found: "EOF"}
		}
		v, err := p.parseFromToken(tok)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

func (p *Parser) parseDict() (value.Dict, error) {
	var out value.Dict
	for {
		tok, err := p.next()
		if err != nil {
			return value.Dict{}, err
		}
		if tok.Kind == TokDictEnd {
			return out, nil
		}
		if tok.Kind != TokName {
			return value.Dict{}, &SyntaxError{Offset: p.Pos(), Expected: "name or '>>'", Found: fmt.Sprintf("%v", tok)}
		}
		key := value.Name(tok.Str)
		v, err := p.ParseValue()
		if err != nil {
			return value.Dict{}, err
		}
		out.Set(key, v)
	}
}

// ParseObject parses "id gen obj <value> [stream ... endstream] endobj" at
// offset, returning the object's reference, its content value and, if
// present, its raw (encoded) stream bytes.
func ParseObject(data []byte, offset int) (value.XRef, value.Value, []byte, error) {
	r := tokenizer.New(data)
	r.Seek(offset)
	lx := NewLexer(r)
	p := NewParser(lx)

	idTok, err := p.next()
	if err != nil {
		return value.XRef{}, nil, nil, err
	}
	genTok, err := p.next()
	if err != nil {
		return value.XRef{}, nil, nil, err
	}
	objTok, err := p.next()
	if err != nil {
		return value.XRef{}, nil, nil, err
	}
	if idTok.Kind != TokInteger || genTok.Kind != TokInteger || objTok.Kind != TokKeyword || objTok.Str != "obj" {
		return value.XRef{}, nil, nil, &SyntaxError{Offset: offset, Expected: "'id gen obj'", Found: fmt.Sprintf("%v %v %v", idTok, genTok, objTok)}
	}
	ref := value.XRef{ID: uint32(idTok.Int), Gen: uint16(genTok.Int)}

	content, err := p.ParseValue()
	if err != nil {
		return ref, nil, nil, err
	}

	// peek for "stream"
	save := r.Tell()
	savedPending := append([]Token(nil), p.pending...)
	tok, err := p.next()
	if err == nil && tok.Kind == TokKeyword && tok.Str == "stream" {
		raw, serr := scanStreamBytes(r, content)
		if serr != nil {
			return ref, content, nil, serr
		}
		return ref, content, raw, nil
	}
	// not a stream: rewind
	r.Seek(save)
	p.pending = savedPending
	return ref, content, nil, nil
}

// scanStreamBytes reads the raw (encoded) bytes between the "stream" and
// "endstream" keywords, given the dictionary just parsed for this object
// (which, per §4.6, must be the content of a stream object). The cursor of
// r is expected to sit immediately after the "stream" keyword.
func scanStreamBytes(r *tokenizer.Reader, content value.Value) ([]byte, error) {
	// "stream" is followed by CRLF or LF; a bare CR is skipped as well.
	if b, ok := r.PeekByte(); ok && b == '\r' {
		r.Advance(1)
	}
	if b, ok := r.PeekByte(); ok && b == '\n' {
		r.Advance(1)
	}
	dataStart := r.Tell()

	if dict, ok := content.(value.Dict); ok {
		if lengthV, has := dict.Get("Length"); has {
			if n, ok := value.AsInt(lengthV); ok && n >= 0 {
				end := dataStart + int(n)
				if end <= r.Len() {
					raw := append([]byte(nil), r.Bytes()[dataStart:end]...)
					r.Seek(end)
					skipEndstream(r)
					return raw, nil
				}
			}
		}
	}

	// Length missing, indirect, or out of bounds: fall back to scanning for
	// the literal "endstream" marker, tolerant of malformed /Length (§7
	// propagation policy: the reader is tolerant).
	rest := r.Bytes()[dataStart:]
	idx := bytes.Index(rest, []byte("endstream"))
	if idx < 0 {
		return nil, fmt.Errorf("offset %d: unterminated stream, no endstream marker found", dataStart)
	}
	end := dataStart + idx
	// trim the EOL marker conventionally placed right before "endstream"
	trimmed := end
	if trimmed > dataStart && rest[idx-1] == '\n' {
		trimmed--
		if trimmed > dataStart && rest[idx-2] == '\r' {
			trimmed--
		}
	}
	raw := append([]byte(nil), r.Bytes()[dataStart:trimmed]...)
	r.Seek(end)
	skipEndstream(r)
	return raw, nil
}

func skipEndstream(r *tokenizer.Reader) {
	save := r.Tell()
	lx := NewLexer(r)
	tok, err := lx.Next()
	if err == nil && tok.Kind == TokKeyword && tok.Str == "endstream" {
		return
	}
	// tolerate a missing/garbled "endstream": leave the cursor where it was.
	r.Seek(save)
}
