package file

import (
	"bytes"
	"strconv"

	"github.com/benoitkugler/pdfcore/model"
	"github.com/benoitkugler/pdfcore/parser"
)

// parsed version of an object stream (/Type /ObjStm): the N objects
// of its decoded body
type objectStream []model.Object

// processObjectStream checks the cache and decodes the object stream
// stored under the object number `on`.
func (ctx *context) processObjectStream(on int) (objectStream, error) {
	if os, ok := ctx.xrefTable.objectStreams[on]; ok {
		return os, nil
	}

	entry, ok := ctx.xrefTable.objects[on]
	if !ok || entry.free || entry.compressed {
		return nil, newError(InvalidXref, -1, "missing object stream %d", on)
	}

	ref := model.ObjIndirectRef{ObjectNumber: on, GenerationNumber: entry.generation}
	obj, err := ctx.resolveObjectNumber(ref)
	if err != nil {
		return nil, err
	}
	stream, ok := obj.(model.ObjStream)
	if !ok {
		return nil, newError(InvalidXref, entry.offset, "object %d is not a stream", on)
	}

	decoded, err := ctx.decodedStreamContent(ref, stream)
	if err != nil {
		return nil, err
	}

	first, ok := stream.Args.Get("First").(model.ObjInt)
	if !ok {
		return nil, newError(MissingKey, entry.offset, "missing First in object stream %d", on)
	}
	if int(first) > len(decoded) {
		return nil, newError(SyntaxError, entry.offset,
			"out of bounds object stream First: %d > %d", first, len(decoded))
	}
	prolog := decoded[:first]

	// The header is N pairs of integers, where the first is the object
	// number of a compressed object and the second its byte offset in
	// the decoded stream, relative to First.
	// The separator shall be white space, but some writers use 0x00.
	prolog = bytes.ReplaceAll(prolog, []byte{0x00}, []byte{0x20})
	fields := bytes.Fields(prolog)
	if len(fields)%2 != 0 {
		return nil, newError(SyntaxError, entry.offset,
			"odd number of fields (%d) in object stream prolog", len(fields))
	}

	offsets := make([]int, len(fields)/2)
	for i := range offsets {
		off, err := strconv.Atoi(string(fields[2*i+1]))
		if err != nil {
			return nil, newError(SyntaxError, entry.offset,
				"invalid object offset in object stream: %q", fields[2*i+1])
		}
		off += int(first)
		if off > len(decoded) {
			return nil, newError(SyntaxError, entry.offset,
				"invalid object offset in object stream: %d", off)
		}
		offsets[i] = off
	}

	objects := make(objectStream, len(offsets))
	for i := range objects {
		start, end := offsets[i], len(decoded)
		if i+1 < len(offsets) {
			end = offsets[i+1]
		}
		p := parser.NewParser(decoded[start:end])
		p.Lenient = ctx.LenientSyntax
		p.MaxDepth = ctx.MaxNestingDepth
		objects[i], err = p.ParseObject()
		if err != nil {
			return nil, newError(SyntaxError, entry.offset,
				"invalid object in object stream: %s", err)
		}
	}

	ctx.xrefTable.objectStreams[on] = objects
	return objects, nil
}
