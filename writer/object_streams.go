package writer

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"sort"
	"strconv"

	"github.com/benoitkugler/pdfcore/model"
	"github.com/benoitkugler/pdfcore/parser"
)

// objectStreamPacker groups eligible objects into /Type /ObjStm
// streams of at most maxObjectsPerStream members, written compressed.
type objectStreamPacker struct {
	w *pdfWriter

	members []packedMember

	// compressed locations, filled at flush time:
	// member object number -> (container object number, index)
	locations map[int][2]int
}

type packedMember struct {
	ref model.Reference
	obj model.Object
}

const maxObjectsPerStream = 100

func newObjectStreamPacker(w *pdfWriter) *objectStreamPacker {
	return &objectStreamPacker{w: w, locations: make(map[int][2]int)}
}

// add accepts the object if it may live in an object stream:
// streams themselves are not eligible, and compressed entries always
// have generation 0 (which renumbering guarantees).
func (p *objectStreamPacker) add(obj model.Object, ref model.Reference) bool {
	if _, isStream := obj.(model.ObjStream); isStream {
		return false
	}
	p.members = append(p.members, packedMember{ref: ref, obj: obj})
	return true
}

// flush writes the pending object streams.
func (p *objectStreamPacker) flush() error {
	for start := 0; start < len(p.members); start += maxObjectsPerStream {
		end := start + maxObjectsPerStream
		if end > len(p.members) {
			end = len(p.members)
		}
		if err := p.writeChunk(p.members[start:end]); err != nil {
			return err
		}
	}
	p.members = nil
	return nil
}

func (p *objectStreamPacker) writeChunk(members []packedMember) error {
	w := p.w

	// member serialization must not encrypt strings individually:
	// the containing stream is encrypted as a whole
	w.cryptDisabled = true
	var header, body bytes.Buffer
	for _, m := range members {
		fmt.Fprintf(&header, "%d %d ", m.ref, body.Len())
		body.WriteString(m.obj.Write(w, m.ref))
		body.WriteByte('\n')
	}
	w.cryptDisabled = false

	first := header.Len()
	payload := append(header.Bytes(), body.Bytes()...)

	encoded, err := parser.EncodeStream(model.Filters{{Name: model.Flate}}, payload)
	if err != nil {
		return err
	}

	containerRef := w.CreateObject()
	streamHeader := model.StreamHeader{}
	streamHeader.SetField("Type", model.Name("ObjStm").String())
	streamHeader.SetField("N", strconv.Itoa(len(members)))
	streamHeader.SetField("First", strconv.Itoa(first))
	streamHeader.SetField("Filter", model.Name("FlateDecode").String())
	w.WriteStream(streamHeader, encoded, containerRef)

	for i, m := range members {
		p.locations[int(m.ref)] = [2]int{int(containerRef), i}
	}
	return nil
}

// contentDigest hashes the document content into a 16-byte string,
// used to derive a file identifier which is stable across rewrites of
// the same document.
func contentDigest(doc Document) string {
	h := md5.New()

	refs := make([]model.ObjIndirectRef, 0, len(doc.Objects))
	for ref := range doc.Objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].ObjectNumber != refs[j].ObjectNumber {
			return refs[i].ObjectNumber < refs[j].ObjectNumber
		}
		return refs[i].GenerationNumber < refs[j].GenerationNumber
	})

	fmt.Fprintf(h, "%d %d;", doc.Root.ObjectNumber, doc.Root.GenerationNumber)
	for _, ref := range refs {
		fmt.Fprintf(h, "%d %d:", ref.ObjectNumber, ref.GenerationNumber)
		switch obj := doc.Objects[ref].(type) {
		case model.ObjStream:
			h.Write([]byte(obj.Args.Write(nil, 0)))
			h.Write(obj.Content)
		default:
			h.Write([]byte(obj.Write(nil, 0)))
		}
	}
	return string(h.Sum(nil))
}
