package writer

import (
	"bytes"
	"fmt"
	"math"
	"testing"

	"github.com/benoitkugler/pdfcore/file"
	"github.com/benoitkugler/pdfcore/model"
)

// sampleDocument builds the graph of a small but complete document:
// a catalog, an empty page tree, a metadata string and a content
// stream.
func sampleDocument() Document {
	catalog := model.NewDict()
	catalog.Set("Type", model.Name("Catalog"))
	catalog.Set("Pages", model.ObjIndirectRef{ObjectNumber: 2})
	catalog.Set("Metadata", model.ObjIndirectRef{ObjectNumber: 4})

	pages := model.NewDict()
	pages.Set("Type", model.Name("Pages"))
	pages.Set("Kids", model.ObjArray{})
	pages.Set("Count", model.ObjInt(0))

	info := model.NewDict()
	info.Set("Title", model.ObjStringLiteral("a test document"))
	info.Set("Producer", model.ObjStringLiteral("pdfcore"))

	streamDict := model.NewDict()
	content := []byte("q 1 0 0 1 10 10 cm Q")
	streamDict.Set("Length", model.ObjInt(len(content)))

	infoRef := model.ObjIndirectRef{ObjectNumber: 3}
	return Document{
		Objects: map[model.ObjIndirectRef]model.Object{
			{ObjectNumber: 1}: catalog,
			{ObjectNumber: 2}: pages,
			{ObjectNumber: 3}: info,
			{ObjectNumber: 4}: model.ObjStream{Args: streamDict, Content: content},
			// an unreachable object: kept by the writer
			{ObjectNumber: 9}: model.ObjArray{model.ObjInt(1), model.ObjIndirectRef{ObjectNumber: 4}},
		},
		Root: model.ObjIndirectRef{ObjectNumber: 1},
		Info: &infoRef,
	}
}

// objectsEqual compares two objects semantically: strings regardless
// of their written form, dictionaries regardless of key order, and
// references through their target.
func objectsEqual(f1, f2 *file.File, o1, o2 model.Object, visited map[[2]model.ObjIndirectRef]bool) error {
	if s1, ok := model.IsString(o1); ok {
		s2, ok := model.IsString(o2)
		if !ok || s1 != s2 {
			return fmt.Errorf("strings differ: %v != %v", o1, o2)
		}
		return nil
	}

	switch o1 := o1.(type) {
	case model.ObjIndirectRef:
		ref2, ok := o2.(model.ObjIndirectRef)
		if !ok {
			return fmt.Errorf("expected a reference, got %T", o2)
		}
		key := [2]model.ObjIndirectRef{o1, ref2}
		if visited[key] {
			return nil
		}
		visited[key] = true
		return objectsEqual(f1, f2, f1.Resolve(o1), f2.Resolve(ref2), visited)
	case model.ObjArray:
		arr2, ok := o2.(model.ObjArray)
		if !ok || len(arr2) != len(o1) {
			return fmt.Errorf("arrays differ: %v != %v", o1, o2)
		}
		for i := range o1 {
			if err := objectsEqual(f1, f2, o1[i], arr2[i], visited); err != nil {
				return err
			}
		}
	case *model.ObjDict:
		d2, ok := o2.(*model.ObjDict)
		if !ok || d2.Len() != o1.Len() {
			return fmt.Errorf("dicts differ: %v != %v", o1, o2)
		}
		for _, k := range o1.Keys() {
			if err := objectsEqual(f1, f2, o1.Get(k), d2.Get(k), visited); err != nil {
				return fmt.Errorf("key %s: %s", k, err)
			}
		}
	case model.ObjStream:
		s2, ok := o2.(model.ObjStream)
		if !ok {
			return fmt.Errorf("expected a stream, got %T", o2)
		}
		if !bytes.Equal(o1.Content, s2.Content) {
			return fmt.Errorf("stream contents differ (%d and %d bytes)", len(o1.Content), len(s2.Content))
		}
		return objectsEqual(f1, f2, o1.Args, s2.Args, visited)
	default:
		if o1 != o2 {
			return fmt.Errorf("objects differ: %v != %v", o1, o2)
		}
	}
	return nil
}

func checkGraphEqual(t *testing.T, f1, f2 *file.File) {
	t.Helper()
	err := objectsEqual(f1, f2, f1.Root, f2.Root,
		map[[2]model.ObjIndirectRef]bool{})
	if err != nil {
		t.Fatalf("graphs differ: %s", err)
	}
}

func writeAndRead(t *testing.T, doc Document, opts *Options, conf *file.Configuration) *file.File {
	t.Helper()
	var buf bytes.Buffer
	if err := Write(doc, &buf, opts); err != nil {
		t.Fatal(err)
	}
	f, err := file.Read(bytes.NewReader(buf.Bytes()), conf)
	if err != nil {
		t.Fatal(err)
	}
	if ws := f.Warnings(); len(ws) != 0 {
		t.Fatalf("unexpected warnings: %v", ws)
	}
	return f
}

// write followed by read is the identity on the object graph,
// modulo object renumbering and dictionary key ordering.
func TestWriteReadRoundTrip(t *testing.T) {
	doc := sampleDocument()

	var buf1 bytes.Buffer
	if err := Write(doc, &buf1, nil); err != nil {
		t.Fatal(err)
	}
	f1, err := file.Read(bytes.NewReader(buf1.Bytes()), nil)
	if err != nil {
		t.Fatal(err)
	}

	// the read back graph resolves as the original store
	catalog := f1.Resolve(f1.Root).(*model.ObjDict)
	if catalog.Get("Type") != model.Name("Catalog") {
		t.Error("unexpected catalog")
	}

	// writing the parsed file again yields an equal graph
	doc2, err := NewDocumentFromFile(f1)
	if err != nil {
		t.Fatal(err)
	}
	f2 := writeAndRead(t, doc2, nil, nil)
	checkGraphEqual(t, f1, f2)

	// and rewriting is byte-stable, thanks to the ordered dictionaries
	var buf2, buf3 bytes.Buffer
	if err := Write(doc2, &buf2, nil); err != nil {
		t.Fatal(err)
	}
	if err := Write(doc2, &buf3, nil); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf2.Bytes(), buf3.Bytes()) {
		t.Error("two writes of the same document differ")
	}
}

func TestWriteRejectsInvalidReals(t *testing.T) {
	doc := sampleDocument()
	bad := model.NewDict()
	bad.Set("V", model.ObjFloat(1))
	doc.Objects[model.ObjIndirectRef{ObjectNumber: 10}] = bad

	bad.Set("V", model.ObjFloat(math.NaN()))
	if err := Write(doc, &bytes.Buffer{}, nil); err == nil {
		t.Error("NaN should be a write error")
	}

	bad.Set("V", model.ObjFloat(math.Inf(1)))
	if err := Write(doc, &bytes.Buffer{}, nil); err == nil {
		t.Error("infinity should be a write error")
	}
}

func TestXRefStream(t *testing.T) {
	doc := sampleDocument()
	var buf bytes.Buffer
	if err := Write(doc, &buf, &Options{XRefStream: true}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("/Type /XRef")) {
		t.Fatal("expected an xref stream")
	}
	if bytes.Contains(buf.Bytes(), []byte("trailer")) {
		t.Error("the xref stream dict doubles as the trailer")
	}

	f, err := file.Read(bytes.NewReader(buf.Bytes()), nil)
	if err != nil {
		t.Fatal(err)
	}
	forig := writeAndRead(t, doc, nil, nil)
	checkGraphEqual(t, forig, f)
}

// the non-stream objects of the document (renumbered 1, 2, 4 and 5)
// live inside an object stream, and
// the reader returns them as if they were classical indirect objects
func TestObjectStreams(t *testing.T) {
	doc := sampleDocument()
	var buf bytes.Buffer
	if err := Write(doc, &buf, &Options{ObjectStreams: true}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("/Type /ObjStm")) {
		t.Fatal("expected an object stream")
	}

	f, err := file.Read(bytes.NewReader(buf.Bytes()), nil)
	if err != nil {
		t.Fatal(err)
	}
	forig := writeAndRead(t, doc, nil, nil)
	checkGraphEqual(t, forig, f)
}

// AES-128 (revision 4) round-trip, with the user password
func TestEncryptedRoundTrip(t *testing.T) {
	doc := sampleDocument()

	id := "0123456789abcdef"
	doc.ID = [2]string{id, id}
	enc, err := model.NewStandardEncryption(4, "u", "o", 0xFFFFFFFC, 16, id, true, true)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := Write(doc, &buf, &Options{Encrypt: &enc}); err != nil {
		t.Fatal(err)
	}

	// wrong ciphertext must not leak the plaintext
	if bytes.Contains(buf.Bytes(), []byte("a test document")) {
		t.Error("string plaintext leaked")
	}
	if bytes.Contains(buf.Bytes(), []byte("q 1 0 0 1 10 10 cm Q")) {
		t.Error("stream plaintext leaked")
	}

	f, err := file.Read(bytes.NewReader(buf.Bytes()), &file.Configuration{
		Password: "u", LenientStreams: true, LenientSyntax: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	forig := writeAndRead(t, doc, nil, nil)
	checkGraphEqual(t, forig, f)

	// the owner password opens the document as well
	if _, err := file.Read(bytes.NewReader(buf.Bytes()), &file.Configuration{Password: "o"}); err != nil {
		t.Fatal(err)
	}
	// a wrong password is rejected
	if _, err := file.Read(bytes.NewReader(buf.Bytes()), &file.Configuration{Password: "nope"}); err == nil {
		t.Error("wrong password accepted")
	}
}

func TestEncryptedRC4RoundTrip(t *testing.T) {
	doc := sampleDocument()
	id := "fedcba9876543210"
	doc.ID = [2]string{id, id}
	enc, err := model.NewStandardEncryption(3, "user", "owner", model.PermissionPrint, 16, id, false, true)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := Write(doc, &buf, &Options{Encrypt: &enc}); err != nil {
		t.Fatal(err)
	}
	f, err := file.Read(bytes.NewReader(buf.Bytes()), &file.Configuration{Password: "user"})
	if err != nil {
		t.Fatal(err)
	}
	forig := writeAndRead(t, doc, nil, nil)
	checkGraphEqual(t, forig, f)
}

func TestEncryptedAES256RoundTrip(t *testing.T) {
	doc := sampleDocument()
	enc, err := model.NewStandardEncryption(6, "utf·user", "owner", model.PermissionPrint, 0, "", true, true)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := Write(doc, &buf, &Options{Encrypt: &enc}); err != nil {
		t.Fatal(err)
	}
	f, err := file.Read(bytes.NewReader(buf.Bytes()), &file.Configuration{Password: "utf·user"})
	if err != nil {
		t.Fatal(err)
	}
	forig := writeAndRead(t, doc, nil, nil)
	checkGraphEqual(t, forig, f)
}

func baseBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := Write(sampleDocument(), &buf, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// an incremental write of an empty change set: the file parses to the
// same graph and carries one more xref section
func TestIncrementalEmptyChangeSet(t *testing.T) {
	base := baseBytes(t)
	u, err := NewUpdater(base, nil)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := u.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}

	if !bytes.HasPrefix(buf.Bytes(), base) {
		t.Fatal("the original bytes must be copied verbatim")
	}
	if got := bytes.Count(buf.Bytes(), []byte("startxref")); got != 2 {
		t.Errorf("expected two xref sections, got %d", got)
	}

	f1, err := file.Read(bytes.NewReader(base), nil)
	if err != nil {
		t.Fatal(err)
	}
	f2, err := file.Read(bytes.NewReader(buf.Bytes()), nil)
	if err != nil {
		t.Fatal(err)
	}
	checkGraphEqual(t, f1, f2)
}

func TestIncrementalUpdate(t *testing.T) {
	base := baseBytes(t)
	u, err := NewUpdater(base, nil)
	if err != nil {
		t.Fatal(err)
	}
	f := u.File()

	// modify the catalog: add a language entry
	catalog := f.Resolve(f.Root).(*model.ObjDict).Clone().(*model.ObjDict)
	catalog.Set("Lang", model.ObjStringLiteral("en"))
	u.Put(f.Root, catalog)

	// append a brand new object
	newRef := u.Alloc()
	u.Put(newRef, model.ObjStringLiteral("added by the update"))

	var buf bytes.Buffer
	if err := u.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}

	f2, err := file.Read(bytes.NewReader(buf.Bytes()), nil)
	if err != nil {
		t.Fatal(err)
	}
	catalog2 := f2.Resolve(f2.Root).(*model.ObjDict)
	if catalog2.Get("Lang") != model.ObjStringLiteral("en") {
		t.Error("the update was not applied")
	}
	if got := f2.Resolve(newRef); got != model.ObjStringLiteral("added by the update") {
		t.Errorf("unexpected new object %v", got)
	}
	if f2.Size() != f.Size()+1 {
		t.Errorf("expected size %d, got %d", f.Size()+1, f2.Size())
	}
}

func TestIncrementalDelete(t *testing.T) {
	base := baseBytes(t)
	u, err := NewUpdater(base, nil)
	if err != nil {
		t.Fatal(err)
	}
	f := u.File()

	// the info dictionary slot is freed
	info := *f.Info
	u.Delete(info)

	var buf bytes.Buffer
	if err := u.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}

	f2, err := file.Read(bytes.NewReader(buf.Bytes()), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := f2.Resolve(info); got != (model.ObjNull{}) {
		t.Errorf("a freed slot should resolve to null, got %v", got)
	}
}
