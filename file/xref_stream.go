package file

import (
	"github.com/benoitkugler/pdfcore/model"
	"github.com/benoitkugler/pdfcore/parser"
)

// parseXRefStream processes a cross-reference stream located at
// `offset` and returns the offset of the previous section (0 if there
// is none).
//
// Since xref streams are read before the table is available, every
// entry of their dictionary shall be direct; in particular they are
// never encrypted.
func (ctx *context) parseXRefStream(offset int64) (int64, error) {
	p, err := ctx.newParserAt(offset)
	if err != nil {
		return 0, err
	}

	if _, _, err = p.ParseObjectDeclaration(); err != nil {
		return 0, newError(InvalidXref, offset, "invalid xref stream: %s", err)
	}

	o, err := p.ParseObject()
	if err != nil {
		return 0, newError(InvalidXref, offset, "invalid xref stream: %s", err)
	}
	dict, ok := o.(*model.ObjDict)
	if !ok {
		return 0, newError(InvalidXref, offset, "expected stream dict, got %T", o)
	}

	tk := p.Tokens()
	if streamStart, _ := tk.NextToken(); !streamStart.IsOther("stream") {
		return 0, newError(InvalidXref, offset, "expected stream keyword, got %s", streamStart)
	}
	bodyOffset := offset + int64(tk.StreamPosition())

	details, err := parseXRefStreamDict(dict)
	if err != nil {
		return 0, err
	}

	decoded, err := ctx.xrefStreamContent(dict, details, bodyOffset)
	if err != nil {
		return 0, err
	}

	if err = ctx.trailer.parseTrailerInfo(dict); err != nil {
		return 0, err
	}

	if err = ctx.extractXRefTableEntriesFromXRefStream(decoded, details); err != nil {
		return 0, err
	}

	// xref streams are not regular objects: they are not saved in the
	// table, which in particular keeps them away from decryption
	return details.prev, nil
}

// xrefStreamContent reads and decodes the stream body.
// The declared length is not blindly trusted: when a filter with a
// detectable end marker is used, the actual end is preferred.
func (ctx *context) xrefStreamContent(dict *model.ObjDict, details xrefStreamDict, bodyOffset int64) ([]byte, error) {
	fs, err := parser.ParseDirectFilters(dict.Get("Filter"), dict.Get("DecodeParms"))
	if err != nil {
		return nil, err
	}

	var content []byte
	if len(fs) == 0 {
		expected := details.count() * details.entrySize()
		content, err = ctx.readAt(expected, bodyOffset)
		if err != nil {
			return nil, err
		}
	} else {
		content, err = ctx.readAt(details.length, bodyOffset)
		if err != nil {
			return nil, err
		}
		if skipper, err := parser.SkipperFromFilter(fs[0]); err == nil {
			if read, err := skipper.Skip(content); err == nil {
				content = content[:read]
			}
		}
	}

	decoded, err := parser.DecodeStream(fs, content)
	if err != nil {
		return nil, newError(StreamDecodeError, bodyOffset, "xref stream: %s", err)
	}
	return decoded, nil
}

// bufToInt64 interprets the content of buf as a big-endian integer.
func bufToInt64(buf []byte) (i int64) {
	for _, b := range buf {
		i <<= 8
		i |= int64(b)
	}
	return i
}

// extractXRefTableEntriesFromXRefStream creates an xref table entry
// for each object covered by the stream.
//
// A zero width for a field means it is absent and its default value
// is used; if the first width is zero, the entry type defaults to 1.
func (ctx *context) extractXRefTableEntriesFromXRefStream(buf []byte, xrefDict xrefStreamDict) error {
	entrySize, count := xrefDict.entrySize(), xrefDict.count()
	if entrySize == 0 {
		return newError(InvalidXref, -1, "corrupt xref stream: zero entry size")
	}
	if len(buf) < count*entrySize {
		// sometimes subsections advertise more entries than the
		// stream holds: truncate to the content
		count = len(buf) / entrySize
	}

	w1, w2, w3 := xrefDict.w[0], xrefDict.w[1], xrefDict.w[2]

	j := 0 // index of the current entry (0 <= j < count)
	for _, subsection := range xrefDict.index {
		firstObj, nb := subsection[0], subsection[1]
		for i := 0; i < nb && j < count; i++ {
			objectNumber := firstObj + i
			base := j * entrySize
			j++

			entryType := int64(1)
			if w1 > 0 {
				entryType = bufToInt64(buf[base : base+w1])
			}
			c2 := bufToInt64(buf[base+w1 : base+w1+w2])
			c3 := bufToInt64(buf[base+w1+w2 : base+w1+w2+w3])

			var entry xrefEntry
			switch entryType {
			case 0: // free object
				entry = xrefEntry{free: true, offset: c2, generation: int(c3)}
			case 1: // in-use object
				entry = xrefEntry{offset: c2, generation: int(c3)}
			case 2: // compressed object; generation is always 0
				entry = xrefEntry{
					compressed:         true,
					streamObjectNumber: int(c2),
					streamObjectIndex:  int(c3),
				}
			default:
				// unknown types shall be ignored
				continue
			}

			// newer sections are read first: skip already assigned entries
			if _, has := ctx.xrefTable.objects[objectNumber]; !has {
				ctx.xrefTable.objects[objectNumber] = &entry
			}
		}
	}
	return nil
}

type xrefStreamDict struct {
	index  [][2]int
	w      [3]int
	length int
	size   int
	prev   int64
}

// count returns the number of entries, as described by the index.
func (x xrefStreamDict) count() int {
	total := 0
	for _, subsection := range x.index {
		total += subsection[1]
	}
	return total
}

func (x xrefStreamDict) entrySize() int {
	return x.w[0] + x.w[1] + x.w[2]
}

// parseXRefStreamDict reads the /Length, /Size, /W, /Index and /Prev
// entries of an xref stream dictionary.
func parseXRefStreamDict(dict *model.ObjDict) (xrefStreamDict, error) {
	var out xrefStreamDict

	out.prev, _ = offsetFromObject(dict.Get("Prev"))

	length, ok := dict.Get("Length").(model.ObjInt)
	if !ok {
		return out, newError(MissingKey, -1, "xref stream: \"Length\" not available")
	}
	out.length = int(length)

	size, ok := dict.Get("Size").(model.ObjInt)
	if !ok {
		return out, newError(MissingKey, -1, "xref stream: \"Size\" not available")
	}
	out.size = int(size)

	// the optional Index defaults to [0 Size]
	if indArr, _ := dict.Get("Index").(model.ObjArray); len(indArr) != 0 {
		if len(indArr)%2 != 0 {
			return out, newError(InvalidXref, -1, "xref stream: corrupted Index entry")
		}
		out.index = make([][2]int, len(indArr)/2)
		for i := range out.index {
			startObj, ok1 := indArr[i*2].(model.ObjInt)
			count, ok2 := indArr[i*2+1].(model.ObjInt)
			if !ok1 || !ok2 {
				return out, newError(InvalidXref, -1, "xref stream: corrupted Index entry")
			}
			out.index[i] = [2]int{int(startObj), int(count)}
		}
	} else {
		out.index = [][2]int{{0, out.size}}
	}

	// W: the byte widths of the three entry fields
	w, _ := dict.Get("W").(model.ObjArray)
	if len(w) < 3 {
		return out, newError(InvalidXref, -1, "xref stream: entry W must be an array of 3 ints")
	}
	for i := 0; i < 3; i++ {
		wi, ok := w[i].(model.ObjInt)
		if !ok || wi < 0 || wi > 8 {
			return out, newError(InvalidXref, -1, "xref stream: invalid W value %v", w[i])
		}
		out.w[i] = int(wi)
	}
	return out, nil
}
