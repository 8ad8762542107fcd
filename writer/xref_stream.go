package writer

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/benoitkugler/pdfcore/model"
	"github.com/benoitkugler/pdfcore/parser"
)

// writeXRefStream emits the cross-reference information as a stream
// object (/Type /XRef), whose dictionary doubles as the trailer.
func (w *pdfWriter) writeXRefStream(doc Document, root, info, encrypt model.Reference, packer *objectStreamPacker) {
	// the xref stream describes itself: allocate its number first
	selfRef := w.CreateObject()
	xrefOffset := w.written
	w.objOffsets[selfRef] = xrefOffset

	size := len(w.objOffsets) // object numbers run from 0 to size-1

	// field widths: type, offset (or container number), generation
	// (or index within the container)
	maxValue := xrefOffset
	if int64(size) > maxValue {
		maxValue = int64(size)
	}
	w2 := byteWidth(maxValue)
	const w1, w3 = 1, 2

	var data bytes.Buffer
	writeField := func(v int64, width int) {
		for i := width - 1; i >= 0; i-- {
			data.WriteByte(byte(v >> (8 * i)))
		}
	}

	for number := 0; number < size; number++ {
		switch {
		case number == 0: // head of the free list
			writeField(0, w1)
			writeField(0, w2)
			writeField(freeHeadGeneration, w3)
		case packer != nil && isPacked(packer, number):
			loc := packer.locations[number]
			writeField(2, w1)
			writeField(int64(loc[0]), w2)
			writeField(int64(loc[1]), w3)
		default:
			writeField(1, w1)
			writeField(w.objOffsets[number], w2)
			writeField(0, w3)
		}
	}

	encoded, err := parser.EncodeStream(model.Filters{{Name: model.Flate}}, data.Bytes())
	if err != nil {
		w.err = err
		return
	}

	header := model.StreamHeader{BypassCrypt: true} // never encrypted
	header.SetField("Type", model.Name("XRef").String())
	header.SetField("Size", strconv.Itoa(size))
	header.SetField("W", fmt.Sprintf("[%d %d %d]", w1, w2, w3))
	header.SetField("Root", root.String())
	if info > 0 {
		header.SetField("Info", info.String())
	}
	if encrypt > 0 {
		header.SetField("Encrypt", encrypt.String())
	}
	if doc.ID != [2]string{} {
		header.SetField("ID", fmt.Sprintf("[%s %s]",
			model.EscapeHexString([]byte(doc.ID[0])), model.EscapeHexString([]byte(doc.ID[1]))))
	}
	header.SetField("Filter", model.Name("FlateDecode").String())
	w.WriteStream(header, encoded, selfRef)

	w.fmt("startxref\n%d\n%%%%EOF\n", xrefOffset)
}

func isPacked(packer *objectStreamPacker, number int) bool {
	_, has := packer.locations[number]
	return has
}

func byteWidth(n int64) int {
	width := 1
	for n > 0xff {
		width++
		n >>= 8
	}
	return width
}

const freeHeadGeneration = 65535
