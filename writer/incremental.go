package writer

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/benoitkugler/pdfcore/file"
	"github.com/benoitkugler/pdfcore/model"
)

// Updater implements the incremental update mode: the existing file
// bytes are copied verbatim, new and modified objects are appended,
// and a new cross-reference section chained with /Prev is emitted.
//
// Only objects marked dirty (with Put or Delete) are re-emitted.
// Deleted slots are threaded into the free list with an incremented
// generation, so that stale references cannot alias a reused slot.
type Updater struct {
	base []byte
	src  *file.File

	dirty map[model.ObjIndirectRef]model.Object
	freed map[int]int // object number -> generation of the freed slot

	size int // one more than the highest object number
}

// NewUpdater parses `base` and prepares an incremental update.
// Appending to an encrypted document is not supported.
func NewUpdater(base []byte, conf *file.Configuration) (*Updater, error) {
	src, err := file.Read(bytes.NewReader(base), conf)
	if err != nil {
		return nil, err
	}
	if src.Encrypt != nil {
		return nil, fmt.Errorf("incremental update of an encrypted document is not supported")
	}
	if src.LastXRefOffset() == 0 {
		return nil, fmt.Errorf("incremental update requires a file with a valid xref table")
	}
	return &Updater{
		base:  base,
		src:   src,
		dirty: make(map[model.ObjIndirectRef]model.Object),
		freed: make(map[int]int),
		size:  src.Size(),
	}, nil
}

// File exposes the parsed base document.
func (u *Updater) File() *file.File { return u.src }

// Put marks the object as dirty: it will be re-emitted with the
// update. `ref` may be an existing object or one returned by Alloc.
func (u *Updater) Put(ref model.ObjIndirectRef, obj model.Object) {
	delete(u.freed, ref.ObjectNumber)
	u.dirty[ref] = obj
	if ref.ObjectNumber+1 > u.size {
		u.size = ref.ObjectNumber + 1
	}
}

// Delete frees the slot of `ref`. The generation is incremented in
// the free entry, as required for slot reuse.
func (u *Updater) Delete(ref model.ObjIndirectRef) {
	delete(u.dirty, ref)
	u.freed[ref.ObjectNumber] = ref.GenerationNumber + 1
}

// Alloc reserves a fresh object number.
// Object numbers are never reused within a single write.
func (u *Updater) Alloc() model.ObjIndirectRef {
	ref := model.ObjIndirectRef{ObjectNumber: u.size}
	u.size++
	return ref
}

// WriteTo emits the original bytes followed by the update section.
// An empty change set is valid: the output then carries one
// additional xref section with no in-use entry.
func (u *Updater) WriteTo(dst io.Writer) error {
	w := &pdfWriter{output: &output{dst: dst}}

	w.bytes(u.base)
	if n := len(u.base); n > 0 && u.base[n-1] != '\n' && u.base[n-1] != '\r' {
		w.bytes([]byte("\n"))
	}

	// emit the dirty objects, recording their offsets
	offsets := make(map[int]int64, len(u.dirty))
	generations := make(map[int]int, len(u.dirty))
	refs := make([]model.ObjIndirectRef, 0, len(u.dirty))
	for ref := range u.dirty {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ObjectNumber < refs[j].ObjectNumber })

	for _, ref := range refs {
		offsets[ref.ObjectNumber] = w.written
		generations[ref.ObjectNumber] = ref.GenerationNumber
		u.writeObject(w, ref, u.dirty[ref])
	}

	u.writeUpdateXref(w, offsets, generations)
	return w.err
}

func (u *Updater) writeObject(w *pdfWriter, ref model.ObjIndirectRef, obj model.Object) {
	w.fmt("%d %d obj\n", ref.ObjectNumber, ref.GenerationNumber)
	if stream, isStream := obj.(model.ObjStream); isStream {
		header := model.StreamHeader{}
		for _, k := range stream.Args.Keys() {
			if k == "Length" {
				continue
			}
			header.SetField(k, stream.Args.Get(k).Write(w, model.Reference(ref.ObjectNumber)))
		}
		header.SetField("Length", fmt.Sprintf("%d", len(stream.Content)))
		w.bytes(header.PDFContent())
		w.bytes([]byte("\nstream\n"))
		w.bytes(stream.Content)
		w.bytes([]byte("\nendstream"))
	} else {
		w.bytes([]byte(obj.Write(w, model.Reference(ref.ObjectNumber))))
	}
	w.bytes([]byte("\nendobj\n"))
}

// writeUpdateXref emits a classical xref section covering only the
// changed entries, chained to the previous section with /Prev.
func (u *Updater) writeUpdateXref(w *pdfWriter, offsets map[int]int64, generations map[int]int) {
	xrefOffset := w.written

	// the free list: object 0 heads the chain of freed slots
	freedNumbers := make([]int, 0, len(u.freed))
	for number := range u.freed {
		freedNumbers = append(freedNumbers, number)
	}
	sort.Ints(freedNumbers)

	type entry struct {
		offset     int64 // or next free object number
		generation int
		free       bool
	}
	entries := map[int]entry{}

	head := 0
	if len(freedNumbers) > 0 {
		head = freedNumbers[0]
	}
	entries[0] = entry{offset: int64(head), generation: freeHeadGeneration, free: true}
	for i, number := range freedNumbers {
		next := 0
		if i+1 < len(freedNumbers) {
			next = freedNumbers[i+1]
		}
		entries[number] = entry{offset: int64(next), generation: u.freed[number], free: true}
	}
	for number, offset := range offsets {
		entries[number] = entry{offset: offset, generation: generations[number]}
	}

	numbers := make([]int, 0, len(entries))
	for number := range entries {
		numbers = append(numbers, number)
	}
	sort.Ints(numbers)

	var b bytes.Buffer
	b.WriteString("xref\n")
	for start := 0; start < len(numbers); {
		// group contiguous object numbers into one subsection
		end := start + 1
		for end < len(numbers) && numbers[end] == numbers[end-1]+1 {
			end++
		}
		fmt.Fprintf(&b, "%d %d\n", numbers[start], end-start)
		for _, number := range numbers[start:end] {
			e := entries[number]
			kind := "n"
			if e.free {
				kind = "f"
			}
			fmt.Fprintf(&b, "%010d %05d %s \n", e.offset, e.generation, kind)
		}
		start = end
	}

	b.WriteString("trailer\n<<\n")
	fmt.Fprintf(&b, "/Size %d\n", u.size)
	fmt.Fprintf(&b, "/Root %d %d R\n", u.src.Root.ObjectNumber, u.src.Root.GenerationNumber)
	if info := u.src.Info; info != nil {
		fmt.Fprintf(&b, "/Info %d %d R\n", info.ObjectNumber, info.GenerationNumber)
	}
	if u.src.ID != [2]string{} {
		fmt.Fprintf(&b, "/ID [%s %s]\n",
			model.EscapeHexString([]byte(u.src.ID[0])), model.EscapeHexString([]byte(u.src.ID[1])))
	}
	fmt.Fprintf(&b, "/Prev %d\n", u.src.LastXRefOffset())
	b.WriteString(">>\n")
	fmt.Fprintf(&b, "startxref\n%d\n%%%%EOF\n", xrefOffset)
	w.bytes(b.Bytes())
}
