// Package parser implements a PDF object parser, mapping a list of
// tokens (see the tokenizer package) into a tree-like structure.
//
// The parser only handles chunks of PDF files (corresponding for
// example to object definitions), but cannot handle a full file with
// streams: a higher-level reader is needed to locate stream bodies,
// which requires knowledge of the cross-reference table.
package parser

import (
	"errors"
	"fmt"

	"github.com/benoitkugler/pdfcore/model"
	tkn "github.com/benoitkugler/pdfcore/tokenizer"
)

var (
	errArrayNotTerminated      = errors.New("parse: unterminated array")
	errDictionaryCorrupt       = errors.New("parse: corrupted dictionary")
	errDictionaryDuplicateKey  = errors.New("parse: duplicate key")
	errDictionaryNotTerminated = errors.New("parse: unterminated dictionary")
	errBufNotAvailable         = errors.New("parse: no buffer available")
)

type (
	Object        = model.Object
	Name          = model.Name
	Integer       = model.ObjInt
	Float         = model.ObjFloat
	StringLiteral = model.ObjStringLiteral
	HexLiteral    = model.ObjHexLiteral
	Array         = model.ObjArray
	Dict          = model.ObjDict
	Bool          = model.ObjBool
	Command       = model.ObjCommand
	IndirectRef   = model.ObjIndirectRef
)

// DefaultMaxDepth is the nesting depth (arrays and dictionaries
// combined) above which the parser stops recursing and switches to an
// explicit work stack, so that hostile input cannot exhaust the
// call stack.
const DefaultMaxDepth = 100

// Parser reads PDF objects from a token stream.
type Parser struct {
	tokens *tkn.Tokenizer

	// If true, disallow indirect references, but allow commands.
	ContentStreamMode bool

	// If true, some common malformations are tolerated: a duplicate
	// dictionary key keeps its first value, and a dictionary key
	// followed by an end-of-line with no value reads as an empty string.
	Lenient bool

	// MaxDepth overrides DefaultMaxDepth when non-zero.
	MaxDepth int
}

// NewParser uses a byte slice as input.
func NewParser(data []byte) *Parser {
	return NewParserFromTokenizer(tkn.NewTokenizer(data))
}

// NewParserFromTokenizer uses a tokenizer as input.
func NewParserFromTokenizer(tokens *tkn.Tokenizer) *Parser {
	return &Parser{tokens: tokens}
}

// Tokens exposes the underlying tokenizer, needed by readers to
// locate stream bodies after a dictionary.
func (p *Parser) Tokens() *tkn.Tokenizer { return p.tokens }

// ParseObject tokenizes and parses the input,
// expecting a valid PDF object.
func ParseObject(data []byte) (Object, error) {
	return NewParser(data).ParseObject()
}

func (p *Parser) maxDepth() int {
	if p.MaxDepth != 0 {
		return p.MaxDepth
	}
	return DefaultMaxDepth
}

// ParseObject reads one of the (potentially) many objects
// in the input data (see NewParser).
func (p *Parser) ParseObject() (Object, error) {
	return p.parseValue(0)
}

func (p *Parser) parseValue(depth int) (Object, error) {
	tk, err := p.tokens.NextToken()
	if err != nil {
		return nil, err
	}

	var value Object

	switch tk.Kind {
	case tkn.EOF:
		err = errBufNotAvailable
	case tkn.Name:
		value = Name(tk.Value)
	case tkn.String:
		value = StringLiteral(tk.Value)
	case tkn.StringHex:
		value = HexLiteral(tk.Value)
	case tkn.StartArray:
		if depth >= p.maxDepth() {
			return p.parseContainerIterative(tk.Kind)
		}
		arr, err := p.parseArray(depth + 1)
		if err != nil {
			return nil, err
		}
		value = arr
	case tkn.StartDic:
		if depth >= p.maxDepth() {
			return p.parseContainerIterative(tk.Kind)
		}
		// start by parsing according to the PDF grammar, which is almost
		// always successful, and only then try relaxed
		save := p.tokens.CurrentPosition()
		dict, err := p.parseDict(depth+1, false)
		if err != nil && p.Lenient {
			p.tokens.SetPosition(save)
			dict, err = p.parseDict(depth+1, true)
		}
		if err != nil {
			return nil, err
		}
		value = dict
	case tkn.Float:
		f, err := tk.Float()
		if err != nil {
			return nil, err
		}
		value = Float(f)
	case tkn.Other:
		value, err = p.parseOther(tk.Value)
	default:
		// must be numeric or an indirect reference:
		// int 0 R | int | float
		value, err = p.parseNumericOrIndRef(tk)
	}

	return value, err
}

func (p *Parser) parseArray(depth int) (Array, error) {
	a := Array{}
	tk, err := p.tokens.PeekToken()
	for ; err == nil; tk, err = p.tokens.PeekToken() {
		switch tk.Kind {
		case tkn.EndArray:
			_, _ = p.tokens.NextToken() // consume it
			return a, nil
		case tkn.EOF:
			return nil, errArrayNotTerminated
		default:
			obj, err := p.parseValue(depth)
			if err != nil {
				return nil, err
			}
			a = append(a, obj)
		}
	}
	return nil, err
}

func (p *Parser) parseDict(depth int, relaxed bool) (*Dict, error) {
	d := model.NewDict()

	tk, err := p.tokens.PeekToken()
	for ; err == nil; tk, err = p.tokens.PeekToken() {
		switch tk.Kind {
		case tkn.EndDic:
			_, _ = p.tokens.NextToken() // consume it
			return d, nil
		case tkn.EOF:
			return nil, errDictionaryNotTerminated
		case tkn.Name:
			key := Name(tk.Value)
			_, _ = p.tokens.NextToken() // consume the key

			var obj Object

			// for dicts with kv pairs terminated by eol, the relaxed
			// mode accepts a missing value as an empty string
			if relaxed && p.tokens.HasEOLBeforeToken() {
				obj = StringLiteral("")
			} else {
				obj, err = p.parseValue(depth)
				if err != nil {
					return nil, err
				}
			}

			// specifying the null object as the value of a dictionary
			// entry shall be equivalent to omitting the entry entirely
			if _, isNull := obj.(model.ObjNull); isNull {
				continue
			}
			if d.Get(key) != nil {
				if !p.Lenient {
					return nil, fmt.Errorf("%w: %s", errDictionaryDuplicateKey, key)
				}
				// lenient: the first value wins
				continue
			}
			d.Set(key, obj)
		default:
			return nil, errDictionaryCorrupt
		}
	}
	return nil, err
}

func (p *Parser) parseOther(l []byte) (Object, error) {
	switch string(l) {
	case "null":
		return model.ObjNull{}, nil
	case "true":
		return Bool(true), nil
	case "false":
		return Bool(false), nil
	default:
		if p.ContentStreamMode {
			return Command(l), nil
		}
		return nil, fmt.Errorf("unexpected command %q outside of content stream", l)
	}
}

func (p *Parser) parseNumericOrIndRef(currentToken tkn.Token) (Object, error) {
	if currentToken.Kind != tkn.Integer {
		return nil, fmt.Errorf("expected number, got %v", currentToken)
	}

	i, err := currentToken.Int()
	if err != nil {
		return nil, err
	}

	if p.ContentStreamMode {
		// in a content stream, no indirect reference is allowed:
		// return early
		return Integer(i), nil
	}

	next, err := p.tokens.PeekToken()
	if err != nil {
		return nil, err
	}

	// if not followed by a second integer, this is a sole integer value
	gen, err := next.Int()
	if next.Kind != tkn.Integer || err != nil {
		return Integer(i), nil
	}

	// must be an indirect reference (123 0 R):
	// missing is the 2nd int and "R"
	if nextNext, _ := p.tokens.PeekPeekToken(); !nextNext.IsOther("R") {
		return Integer(i), nil
	}

	// consume the two tokens and return
	_, _ = p.tokens.NextToken()
	_, _ = p.tokens.NextToken()
	return IndirectRef{ObjectNumber: int(i), GenerationNumber: int(gen)}, nil
}

// ParseObjectDefinition parses an indirect object definition
// `N G obj <content> endobj`.
// If `headerOnly`, it stops after the `N G obj` header and returns a
// nil object.
func ParseObjectDefinition(line []byte, headerOnly bool) (objectNumber int, generationNumber int, o Object, err error) {
	p := NewParser(line)
	objectNumber, generationNumber, err = p.ParseObjectDeclaration()
	if err != nil {
		return 0, 0, nil, err
	}
	if headerOnly {
		return objectNumber, generationNumber, nil, nil
	}
	obj, err := p.ParseObject()
	return objectNumber, generationNumber, obj, err
}

// ParseObjectDeclaration consumes the three tokens `N G obj`.
func (p *Parser) ParseObjectDeclaration() (objectNumber, generationNumber int, err error) {
	tok, err := p.tokens.NextToken()
	if err != nil {
		return 0, 0, err
	}
	objNr, err := tok.Int()
	if tok.Kind != tkn.Integer || err != nil {
		return 0, 0, errors.New("ParseObjectDeclaration: can't find object number")
	}

	tok, err = p.tokens.NextToken()
	if err != nil {
		return 0, 0, err
	}
	genNr, err := tok.Int()
	if tok.Kind != tkn.Integer || err != nil {
		return 0, 0, errors.New("ParseObjectDeclaration: can't find generation number")
	}

	tok, err = p.tokens.NextToken()
	if err != nil || !tok.IsOther("obj") {
		return 0, 0, errors.New("ParseObjectDeclaration: can't find \"obj\"")
	}
	return int(objNr), int(genNr), nil
}
