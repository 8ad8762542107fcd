// Package writer serializes a store of PDF objects back to bytes,
// with a correct cross-reference table.
//
// The full write mode renumbers the object graph and produces a fresh
// file; the Updater type implements incremental updates, appending to
// the existing bytes.
package writer

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/benoitkugler/pdfcore/file"
	"github.com/benoitkugler/pdfcore/model"
)

// Document is the writable form of a PDF file: a store of indirect
// objects plus the trailer information.
type Document struct {
	Objects map[model.ObjIndirectRef]model.Object

	// Root is the reference to the document catalog. Required.
	Root model.ObjIndirectRef

	// Info is the optional reference to the metadata dictionary.
	Info *model.ObjIndirectRef

	// ID is the file identifier pair. When empty, it is generated by
	// the writer for a revision 5 or 6 encryption only: encrypting with
	// revision 4 or less requires it, and an unencrypted document with
	// an empty ID is written without /ID.
	ID [2]string

	// Version defaults to 1.7.
	Version string
}

// NewDocumentFromFile snapshots a parsed file into a writable
// document, resolving every object.
func NewDocumentFromFile(f *file.File) (Document, error) {
	objects, err := f.Objects()
	if err != nil {
		return Document{}, err
	}
	return Document{
		Objects: objects,
		Root:    f.Root,
		Info:    f.Info,
		ID:      f.ID,
		Version: f.HeaderVersion,
	}, nil
}

// Options selects the file layout.
type Options struct {
	// Encrypt, when non nil, must carry an installed encryption
	// handler (see model.NewStandardEncryption).
	Encrypt *model.Encrypt

	// XRefStream emits a cross-reference stream instead of a
	// classical table.
	XRefStream bool

	// ObjectStreams packs eligible objects into object streams.
	// It implies XRefStream.
	ObjectStreams bool
}

// Write performs a full write of `doc` to `dst`:
// the graph is walked from the root, objects are renumbered
// sequentially from 1, serialized in ascending order, and the
// cross-reference table and trailer are emitted last.
func Write(doc Document, dst io.Writer, opts *Options) error {
	if opts == nil {
		opts = &Options{}
	}

	if doc.Objects[doc.Root] == nil {
		return fmt.Errorf("missing catalog object %v", doc.Root)
	}

	if err := validateFloats(doc.Objects); err != nil {
		return err
	}

	if opts.Encrypt != nil && doc.ID == [2]string{} {
		// the handlers up to revision 4 fold ID[0] into the key
		// derivation: it cannot be generated after the fact
		if std, ok := opts.Encrypt.EncryptionHandler.(model.EncryptionStandard); ok && std.R <= 4 {
			return fmt.Errorf("encrypted documents require the ID used for the key derivation")
		}
		doc.ID = GenerateID(doc)
	}

	mapping, order := renumber(doc)

	w := &pdfWriter{
		output:  &output{dst: dst, objOffsets: []int64{0}},
		encrypt: opts.Encrypt,
	}
	// references were pre-allocated by the renumbering
	w.objOffsets = make([]int64, len(order)+1)

	w.writeHeader(doc.Version)

	var packer *objectStreamPacker
	if opts.ObjectStreams {
		opts.XRefStream = true
		packer = newObjectStreamPacker(w)
	}

	for _, old := range order {
		ref := mapping[old]
		obj := remapObject(doc.Objects[old], mapping)
		if stream, isStream := obj.(model.ObjStream); isStream {
			w.writeStreamObject(stream, ref)
			continue
		}
		if packer != nil && packer.add(obj, ref) {
			continue
		}
		w.WriteObject(obj.Write(w, ref), ref)
	}
	if packer != nil {
		if err := packer.flush(); err != nil {
			return err
		}
	}

	root := mapping[doc.Root]
	var info model.Reference
	if doc.Info != nil {
		info = mapping[*doc.Info]
	}

	var encryptRef model.Reference
	if opts.Encrypt != nil {
		// the encryption dictionary itself is never encrypted
		encryptRef = w.addObject(opts.Encrypt.PDFString())
	}

	if opts.XRefStream {
		w.writeXRefStream(doc, root, info, encryptRef, packer)
	} else {
		w.writeFooter(doc, root, info, encryptRef)
	}
	return w.err
}

// validateFloats rejects infinites and NaN upfront: they have no PDF
// representation.
func validateFloats(objects map[model.ObjIndirectRef]model.Object) error {
	var walk func(model.Object) error
	walk = func(o model.Object) error {
		switch o := o.(type) {
		case model.ObjFloat:
			if !model.FloatIsValid(float64(o)) {
				return fmt.Errorf("invalid real value %v", float64(o))
			}
		case model.ObjArray:
			for _, v := range o {
				if err := walk(v); err != nil {
					return err
				}
			}
		case *model.ObjDict:
			for _, k := range o.Keys() {
				if err := walk(o.Get(k)); err != nil {
					return err
				}
			}
		case model.ObjStream:
			return walk(o.Args)
		}
		return nil
	}
	for _, obj := range objects {
		if err := walk(obj); err != nil {
			return err
		}
	}
	return nil
}

// renumber assigns new sequential object numbers starting at 1,
// walking the graph from the root so that the output order is
// deterministic. Objects not reachable from the trailer are appended
// afterwards in ascending old-number order, so that write-then-read
// round-trips preserve the whole store.
func renumber(doc Document) (map[model.ObjIndirectRef]model.Reference, []model.ObjIndirectRef) {
	mapping := make(map[model.ObjIndirectRef]model.Reference, len(doc.Objects))
	var order []model.ObjIndirectRef

	var walk func(model.Object)
	visit := func(ref model.ObjIndirectRef) {
		if _, seen := mapping[ref]; seen {
			return
		}
		obj, exists := doc.Objects[ref]
		if !exists {
			return // dangling references resolve to null: not written
		}
		mapping[ref] = model.Reference(len(order) + 1)
		order = append(order, ref)
		walk(obj)
	}
	walk = func(o model.Object) {
		switch o := o.(type) {
		case model.ObjIndirectRef:
			visit(o)
		case model.ObjArray:
			for _, v := range o {
				walk(v)
			}
		case *model.ObjDict:
			for _, k := range o.Keys() {
				walk(o.Get(k))
			}
		case model.ObjStream:
			walk(o.Args)
		}
	}

	visit(doc.Root)
	if doc.Info != nil {
		visit(*doc.Info)
	}

	rest := make([]model.ObjIndirectRef, 0, len(doc.Objects))
	for ref := range doc.Objects {
		if _, seen := mapping[ref]; !seen {
			rest = append(rest, ref)
		}
	}
	sort.Slice(rest, func(i, j int) bool {
		if rest[i].ObjectNumber != rest[j].ObjectNumber {
			return rest[i].ObjectNumber < rest[j].ObjectNumber
		}
		return rest[i].GenerationNumber < rest[j].GenerationNumber
	})
	for _, ref := range rest {
		visit(ref)
	}

	return mapping, order
}

// remapObject rewrites the references held by `o` to their new object
// numbers. Dangling references become null.
func remapObject(o model.Object, mapping map[model.ObjIndirectRef]model.Reference) model.Object {
	switch o := o.(type) {
	case model.ObjIndirectRef:
		ref, ok := mapping[o]
		if !ok {
			return model.ObjNull{}
		}
		return model.ObjIndirectRef{ObjectNumber: int(ref)}
	case model.ObjArray:
		out := make(model.ObjArray, len(o))
		for i, v := range o {
			out[i] = remapObject(v, mapping)
		}
		return out
	case *model.ObjDict:
		out := model.NewDict()
		for _, k := range o.Keys() {
			out.Set(k, remapObject(o.Get(k), mapping))
		}
		return out
	case model.ObjStream:
		return model.ObjStream{
			Args:    remapObject(o.Args, mapping).(*model.ObjDict),
			Content: o.Content,
		}
	default:
		return o
	}
}

// GenerateID derives a file identifier from a digest of the document
// content, so that rewriting the same document is stable.
func GenerateID(doc Document) [2]string {
	id := contentDigest(doc)
	return [2]string{id, id}
}

// output implements the logic needed to write objects and keep track
// of the correct byte offsets.
type output struct {
	dst     io.Writer
	err     error // internal error, to defer error checking
	written int64 // total number of bytes written to dst

	// the byte offsets of objects, indexed by object number
	// ([0] is unused)
	objOffsets []int64
}

func (w *output) bytes(b []byte) {
	if w.err != nil { // write is now a no-op
		return
	}
	n, err := w.dst.Write(b)
	if err != nil {
		w.err = err
		return
	}
	w.written += int64(n)
}

func (w *output) fmt(format string, args ...interface{}) {
	w.bytes([]byte(fmt.Sprintf(format, args...)))
}

func (w *output) writeHeader(version string) {
	if version == "" {
		version = "1.7"
	}
	w.fmt("%%PDF-%s\n", version)
	// a comment line with four binary characters marks the file
	// as binary for transfer programs
	w.bytes([]byte{'%', 200, 200, 200, 200, '\n'})
}

// pdfWriter implements model.PDFWritter.
type pdfWriter struct {
	*output

	encrypt *model.Encrypt

	// when packing objects into object streams, member strings are
	// not individually encrypted
	cryptDisabled bool
}

func (w *pdfWriter) handler() model.EncryptionHandler {
	if w.encrypt == nil || w.cryptDisabled {
		return nil
	}
	return w.encrypt.EncryptionHandler
}

// EncodeString implements model.PDFWritter: escaping, text encoding
// and encryption. Binary strings always use the hexadecimal form.
func (w *pdfWriter) EncodeString(s string, mode model.PDFStringEncoding, context model.Reference) string {
	sb := []byte(s)
	if mode == model.TextString {
		sb = model.EncodeTextString(s)
	}

	if h := w.handler(); h != nil {
		var err error
		sb, err = h.Crypt(int(context), 0, sb)
		if err != nil {
			w.err = fmt.Errorf("failed to encrypt string: %s", err)
			return ""
		}
	}

	switch mode {
	case model.HexString:
		return model.EscapeHexString(sb)
	default:
		if !model.IsPrintableLiteral(sb) {
			return model.EscapeHexString(sb)
		}
		return model.EscapeByteString(sb)
	}
}

// CreateObject implements model.PDFWritter.
func (w *pdfWriter) CreateObject() model.Reference {
	w.objOffsets = append(w.objOffsets, 0)
	return model.Reference(len(w.objOffsets) - 1)
}

// WriteObject implements model.PDFWritter.
func (w *pdfWriter) WriteObject(content string, ref model.Reference) {
	w.objOffsets[ref] = w.written
	w.fmt("%d 0 obj\n", ref)
	w.bytes([]byte(content))
	w.bytes([]byte("\nendobj\n"))
}

// WriteStream implements model.PDFWritter: the body is encrypted if
// needed and the Length field adjusted accordingly, since the
// ciphertext length is what Length reports on disk.
func (w *pdfWriter) WriteStream(header model.StreamHeader, stream []byte, ref model.Reference) {
	if h := w.handler(); h != nil && !header.BypassCrypt {
		encrypted, err := h.Crypt(int(ref), 0, stream)
		if err != nil {
			w.err = fmt.Errorf("failed to encrypt stream: %s", err)
			return
		}
		stream = encrypted
	}
	header.SetField("Length", strconv.Itoa(len(stream)))

	w.objOffsets[ref] = w.written
	w.fmt("%d 0 obj\n", ref)
	w.bytes(header.PDFContent())
	w.bytes([]byte("\nstream\n"))
	w.bytes(stream)
	// an end-of-line is required after the data and before endstream
	w.bytes([]byte("\nendstream\nendobj\n"))
}

// addObject is a convenience shortcut to write `content` into a new
// object and return the created reference.
func (w *pdfWriter) addObject(content string) model.Reference {
	ref := w.CreateObject()
	w.WriteObject(content, ref)
	return ref
}

// writeStreamObject serializes a top-level stream object.
func (w *pdfWriter) writeStreamObject(stream model.ObjStream, ref model.Reference) {
	header := model.StreamHeader{BypassCrypt: streamBypassesCrypt(stream)}
	for _, k := range stream.Args.Keys() {
		if k == "Length" {
			continue // recomputed by WriteStream
		}
		header.SetField(k, stream.Args.Get(k).Write(w, ref))
	}
	header.SetField("Length", strconv.Itoa(len(stream.Content)))
	w.WriteStream(header, stream.Content, ref)
}

func streamBypassesCrypt(stream model.ObjStream) bool {
	fs := stream.Args.Get("Filter")
	if arr, ok := fs.(model.ObjArray); ok {
		return len(arr) >= 1 && arr[0] == model.Name("Crypt")
	}
	return fs == model.Name("Crypt")
}

// writeFooter emits the classical cross-reference table, the trailer,
// and the startxref line.
func (w *pdfWriter) writeFooter(doc Document, root, info, encrypt model.Reference) {
	var b bytes.Buffer
	xrefOffset, n := w.written, len(w.objOffsets)-1

	b.WriteString("xref\n")
	fmt.Fprintf(&b, "0 %d\n", n+1)
	b.WriteString("0000000000 65535 f \n")
	for j := 1; j <= n; j++ {
		fmt.Fprintf(&b, "%010d 00000 n \n", w.objOffsets[j])
	}

	b.WriteString("trailer\n<<\n")
	fmt.Fprintf(&b, "/Size %d\n", n+1)
	fmt.Fprintf(&b, "/Root %s\n", root)
	if info > 0 {
		fmt.Fprintf(&b, "/Info %s\n", info)
	}
	if encrypt > 0 {
		fmt.Fprintf(&b, "/Encrypt %s\n", encrypt)
	}
	if doc.ID != [2]string{} {
		// the ID strings shall be direct and unencrypted
		fmt.Fprintf(&b, "/ID [%s %s]\n",
			model.EscapeHexString([]byte(doc.ID[0])), model.EscapeHexString([]byte(doc.ID[1])))
	}
	b.WriteString(">>\n")
	fmt.Fprintf(&b, "startxref\n%d\n%%%%EOF\n", xrefOffset)
	w.bytes(b.Bytes())
}
