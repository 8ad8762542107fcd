// Package streaming parses a PDF file as a lazy sequence of events,
// without loading the cross-reference table or materializing the
// whole document.
//
// It shares the tokenizer and parser of the random-access path, but
// reads the body sequentially: reference resolution is deferred to a
// later pass, or to the caller.
package streaming

import (
	"bytes"
	"io"
	"strings"

	"github.com/benoitkugler/pdfcore/model"
	"github.com/benoitkugler/pdfcore/parser"
	tkn "github.com/benoitkugler/pdfcore/tokenizer"
)

// Action is the control value returned by the event handler.
type Action uint8

const (
	// Continue proceeds with the next event.
	Continue Action = iota
	// Skip moves past the pending content without materializing it:
	// for a stream object delivered without its body, the body is not
	// copied nor delivered again. The input buffer of the tokenizer
	// still reads through the body bytes.
	Skip
	// Stop ends the processing; Process returns nil.
	Stop
)

// Event is one of Start, Header, IndirectObject, Page, EndOfFile.
type Event interface {
	isEvent()
}

// Start is emitted once, before any input is consumed.
type Start struct{}

// Header carries the version claimed by the file header line.
type Header struct{ Version string }

// IndirectObject is emitted for each `N G obj ... endobj` block.
//
// For stream objects, the event is first delivered with a nil
// Content: returning Continue loads the body and delivers the event
// again, complete; returning Skip seeks past the body instead.
type IndirectObject struct {
	Object model.Object
	Ref    model.ObjIndirectRef
	// BodyLoaded distinguishes the two deliveries of a stream object.
	BodyLoaded bool
}

// Page is emitted after each dictionary whose /Type is /Page.
// MediaBox is filled when the bounds are direct objects.
type Page struct {
	Dict     *model.ObjDict
	MediaBox *model.Rectangle
}

// EndOfFile is emitted at each `startxref <offset> %%EOF` tail;
// incrementally updated files have several.
type EndOfFile struct{ StartXref int64 }

func (Start) isEvent()          {}
func (Header) isEvent()         {}
func (IndirectObject) isEvent() {}
func (Page) isEvent()           {}
func (EndOfFile) isEvent()      {}

// Process reads `r` sequentially and calls `handle` for each event.
// It returns nil when the input is exhausted or the handler returns
// Stop.
func Process(r io.Reader, handle func(Event) Action) error {
	if handle(Start{}) == Stop {
		return nil
	}

	tk := tkn.NewTokenizerFromReader(r)
	tk.KeepComments = true

	if act, err := processHeader(tk, handle); act == Stop || err != nil {
		return err
	}
	// comments are only meaningful in the header line
	tk.KeepComments = false

	p := parser.NewParserFromTokenizer(tk)
	p.Lenient = true

	for {
		tok, err := tk.PeekToken()
		if err != nil {
			// under the lenient contract of streaming, a bad token is
			// skipped by advancing one token
			_, _ = tk.NextToken()
			continue
		}

		switch {
		case tok.Kind == tkn.EOF:
			return nil

		case tok.Kind == tkn.Comment:
			_, _ = tk.NextToken()

		case tok.Kind == tkn.Integer:
			act, err := processIndirectObject(tk, p, handle)
			if err != nil {
				return err
			}
			if act == Stop {
				return nil
			}

		case tok.IsOther("startxref"):
			_, _ = tk.NextToken()
			offTok, _ := tk.NextToken()
			off, _ := offTok.Int()
			if handle(EndOfFile{StartXref: off}) == Stop {
				return nil
			}

		case tok.IsOther("xref"), tok.IsOther("trailer"):
			// the index is not used by the streaming path: skip the
			// keyword and let the generic loop consume the entries
			_, _ = tk.NextToken()

		default:
			_, _ = tk.NextToken()
		}
	}
}

func processHeader(tk *tkn.Tokenizer, handle func(Event) Action) (Action, error) {
	tok, err := tk.PeekToken()
	if err != nil {
		return Continue, err
	}
	version := ""
	if tok.Kind == tkn.Comment && strings.HasPrefix(string(tok.Value), "PDF-") {
		version = strings.TrimPrefix(string(tok.Value), "PDF-")
		if len(version) > 3 {
			version = version[:3]
		}
		_, _ = tk.NextToken()
	}
	return handle(Header{Version: version}), nil
}

func processIndirectObject(tk *tkn.Tokenizer, p *parser.Parser, handle func(Event) Action) (Action, error) {
	number, generation, err := p.ParseObjectDeclaration()
	if err != nil {
		// not an object declaration: skip the integer and resume
		_, _ = tk.NextToken()
		return Continue, nil
	}
	ref := model.ObjIndirectRef{ObjectNumber: number, GenerationNumber: generation}

	obj, err := p.ParseObject()
	if err != nil {
		return Continue, nil
	}

	if next, _ := tk.PeekToken(); next.IsOther("stream") {
		return processStreamObject(tk, ref, obj, handle)
	}

	if endTok, _ := tk.PeekToken(); endTok.IsOther("endobj") {
		_, _ = tk.NextToken()
	}

	act := handle(IndirectObject{Ref: ref, Object: obj, BodyLoaded: true})
	if act == Stop {
		return Stop, nil
	}
	return emitPage(obj, handle), nil
}

func processStreamObject(tk *tkn.Tokenizer, ref model.ObjIndirectRef, obj model.Object, handle func(Event) Action) (Action, error) {
	dict, ok := obj.(*model.ObjDict)
	if !ok {
		return Continue, nil
	}
	_, _ = tk.NextToken() // consume `stream`
	bodyStart := tk.StreamPosition()
	tk.SetPosition(bodyStart)

	stream := model.ObjStream{Args: dict}
	act := handle(IndirectObject{Ref: ref, Object: stream})
	if act == Stop {
		return Stop, nil
	}

	length, hasLength := dict.Get("Length").(model.ObjInt)
	var body []byte
	if hasLength && length >= 0 {
		if act == Skip {
			tk.SkipBytes(int(length))
		} else {
			body = append([]byte(nil), tk.Bytes(bodyStart, int(length))...)
			tk.SkipBytes(int(length))
		}
	} else {
		// without a direct Length, the end must be found by scanning
		body = scanToEndstream(tk, bodyStart)
		if act == Skip {
			body = nil
		}
	}

	// consume the `endstream` and `endobj` keywords when present
	if next, _ := tk.PeekToken(); next.IsOther("endstream") {
		_, _ = tk.NextToken()
	}
	if next, _ := tk.PeekToken(); next.IsOther("endobj") {
		_, _ = tk.NextToken()
	}

	if act == Skip {
		return Continue, nil
	}

	stream.Content = body
	if handle(IndirectObject{Ref: ref, Object: stream, BodyLoaded: true}) == Stop {
		return Stop, nil
	}
	return emitPage(dict, handle), nil
}

// scanToEndstream buffers the body until the `endstream` keyword.
func scanToEndstream(tk *tkn.Tokenizer, bodyStart int) []byte {
	const chunk = 1024
	end := bodyStart
	for {
		buf := tk.Bytes(bodyStart, end-bodyStart+chunk)
		if idx := bytes.Index(buf, []byte("endstream")); idx != -1 {
			content := buf[:idx]
			content = bytes.TrimRight(content, "\r\n")
			tk.SetPosition(bodyStart + idx)
			return append([]byte(nil), content...)
		}
		if len(buf) < end-bodyStart+chunk { // input exhausted
			tk.SetPosition(bodyStart + len(buf))
			return append([]byte(nil), buf...)
		}
		end = bodyStart + len(buf)
	}
}

func emitPage(obj model.Object, handle func(Event) Action) Action {
	dict, ok := obj.(*model.ObjDict)
	if !ok || dict.Get("Type") != model.Name("Page") {
		return Continue
	}
	page := Page{Dict: dict}
	if arr, ok := dict.Get("MediaBox").(model.ObjArray); ok {
		if rect, ok := model.RectangleFromArray(arr); ok {
			page.MediaBox = &rect
		}
	}
	return handle(page)
}
