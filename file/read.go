package file

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/benoitkugler/pdfcore/model"
	"github.com/benoitkugler/pdfcore/parser"
	tok "github.com/benoitkugler/pdfcore/tokenizer"
)

// freeHeadGeneration is the predefined generation number for the head
// of the free list.
const freeHeadGeneration = 65535

// the range of accepted header versions
const (
	minVersion = "1.0"
	maxVersion = "2.0"
)

// context is the internal state behind a File.
type context struct {
	rs       io.ReadSeeker
	fileSize int64

	Configuration

	headerVersion string
	xrefTable     xRefTable
	trailer       trailer

	enc *decryptor

	warnings []Warning

	cache          *objectCache
	loading        map[int]bool // object numbers being resolved
	sizeCached     int
	lastXRefOffset int64
}

func newContext(rs io.ReadSeeker, conf *Configuration) (*context, error) {
	if conf == nil {
		conf = NewDefaultConfiguration()
	}

	ctx := &context{
		rs:            rs,
		Configuration: *conf,
		xrefTable:     newXRefTable(),
		cache:         newObjectCache(conf.ObjectCacheSize),
		loading:       make(map[int]bool),
	}

	fileSize, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	if fileSize == 0 {
		return nil, newError(EmptyFile, 0, "the file contains no byte")
	}
	ctx.fileSize = fileSize

	return ctx, nil
}

// xRefTable is the main access to PDF objects.
type xRefTable struct {
	// object number -> entry; the newest definition wins
	objects map[int]*xrefEntry

	// object streams are cached, so that they are not decoded again
	// for each object they contain
	objectStreams map[int]objectStream
}

func newXRefTable() xRefTable {
	return xRefTable{
		objects:       make(map[int]*xrefEntry),
		objectStreams: make(map[int]objectStream),
	}
}

// xrefEntry locates one indirect object.
type xrefEntry struct {
	free       bool
	offset     int64 // InUse: byte offset; Free: next free object number
	generation int

	// for objects in object streams (generation is always 0)
	compressed         bool
	streamObjectNumber int // object number of the containing stream
	streamObjectIndex  int // index of this object within the stream
}

type trailer struct {
	encrypt model.Object // indirect ref or dict

	root *model.ObjIndirectRef
	info *model.ObjIndirectRef
	id   [2]string
	size int // object count from the trailer dict
}

func (ctx *context) size() int {
	if ctx.sizeCached == 0 {
		size := ctx.trailer.size
		for number := range ctx.xrefTable.objects {
			if number+1 > size {
				size = number + 1
			}
		}
		ctx.sizeCached = size
	}
	return ctx.sizeCached
}

// every object number from 0 to Size-1 must have an entry, and
// object 0 is always free with generation 65535.
func (ctx *context) patchObjectZero() {
	if entry, has := ctx.xrefTable.objects[0]; !has || !entry.free {
		ctx.xrefTable.objects[0] = &xrefEntry{free: true, generation: freeHeadGeneration}
	}
}

// allocate a slice of length `size` and read at `offset` into it
func (ctx *context) readAt(size int, offset int64) ([]byte, error) {
	if _, err := ctx.rs.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	p := make([]byte, size)
	n, err := io.ReadFull(ctx.rs, p)
	if err == io.ErrUnexpectedEOF {
		return p[:n], nil
	}
	return p, err
}

// position a tokenizer at `offset`
func (ctx *context) tokenizerAt(offset int64) (*tok.Tokenizer, error) {
	if offset < 0 || offset >= ctx.fileSize {
		return nil, newError(InvalidXref, offset, "offset out of bounds")
	}
	if _, err := ctx.rs.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	return tok.NewTokenizerFromReader(ctx.rs), nil
}

func (ctx *context) newParserAt(offset int64) (*parser.Parser, error) {
	tk, err := ctx.tokenizerAt(offset)
	if err != nil {
		return nil, err
	}
	p := parser.NewParserFromTokenizer(tk)
	p.Lenient = ctx.LenientSyntax
	p.MaxDepth = ctx.MaxNestingDepth
	return p, nil
}

// headerVersion reads the version from the first line of the file.
func headerVersion(rs io.ReadSeeker) (string, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	buf := make([]byte, 100)
	n, err := rs.Read(buf)
	if err != nil && err != io.EOF {
		return "", err
	}
	s := string(buf[:n])

	const prefix = "%PDF-"
	if !strings.HasPrefix(s, prefix) {
		return "", newError(InvalidHeader, 0, "no %%PDF- prefix")
	}
	if len(s) < len(prefix)+3 {
		return "", newError(InvalidHeader, 0, "truncated header line")
	}
	version := s[len(prefix) : len(prefix)+3]
	if version < minVersion || version > maxVersion {
		return "", newError(UnsupportedVersion, 0, "version %s", version)
	}
	return version, nil
}

// offsetLastXRefSection returns the file offset of the last xref
// section: go to the end of the file and search backwards, within a
// bounded window, for the last `startxref <offset> %%EOF`.
// `skip` excludes that many bytes at the end of the file.
func (ctx *context) offsetLastXRefSection(skip int64) (int64, error) {
	window := int64(ctx.xrefBootstrapWindow())
	if window > ctx.fileSize-skip {
		window = ctx.fileSize - skip
	}
	if window <= 0 {
		return 0, newError(InvalidXref, -1, "no startxref keyword found")
	}

	buf, err := ctx.readAt(int(window), ctx.fileSize-skip-window)
	if err != nil {
		return 0, newError(InvalidXref, -1, "can't read the last xref section: %s", err)
	}

	j := bytes.LastIndex(buf, []byte("startxref"))
	if j == -1 {
		return 0, newError(InvalidXref, -1, "no startxref keyword found")
	}

	p := buf[j+len("startxref"):]
	if posEOF := bytes.Index(p, []byte("%%EOF")); posEOF != -1 {
		p = p[:posEOF]
	}
	offset, err := strconv.ParseInt(string(bytes.TrimSpace(p)), 10, 64)
	if err != nil || offset <= 0 || offset >= ctx.fileSize {
		return 0, newError(InvalidXref, -1, "corrupted last xref section")
	}
	return offset, nil
}

// buildXRefTableStartingAt reads the chain of xref sections (streams
// or classical), walking the /Prev entries backwards.
func (ctx *context) buildXRefTableStartingAt(offset int64) error {
	visited := map[int64]bool{}
	subsectionCount := 0

	for offset != 0 {
		if visited[offset] {
			return newError(InvalidXref, offset, "cyclic xref chain")
		}
		visited[offset] = true

		if offset < 0 || offset >= ctx.fileSize {
			return newError(InvalidXref, offset, "xref offset out of bounds")
		}

		buf, err := ctx.readAt(ctx.xrefBootstrapWindow(), offset)
		if err != nil {
			return err
		}

		tk := tok.NewTokenizer(buf)
		start, err := tk.PeekToken()
		if err != nil {
			return newError(InvalidXref, offset, "invalid xref table: %s", err)
		}

		if start.IsOther("xref") { // classical section
			_, _ = tk.NextToken() // consume the keyword
			offset, subsectionCount, err = ctx.parseXRefSection(offset, subsectionCount)
		} else { // xref stream
			offset, err = ctx.parseXRefStream(offset)
		}
		if err != nil {
			return err
		}
	}

	// If exactly one xref subsection does not start with object 0,
	// assume an off-by-one table and shift it down. (Some scanner
	// softwares start numbering at 1.)
	if _, hasZero := ctx.xrefTable.objects[0]; subsectionCount == 1 && !hasZero && ctx.LenientSyntax {
		if _, hasOne := ctx.xrefTable.objects[1]; hasOne {
			ctx.warnf(XrefRepaired, -1, "single xref subsection starting at object 1: shifted down")
			for i := 1; i <= ctx.trailer.size; i++ {
				if e, has := ctx.xrefTable.objects[i]; has {
					ctx.xrefTable.objects[i-1] = e
				}
			}
			delete(ctx.xrefTable.objects, ctx.trailer.size)
		}
	}

	return nil
}

// parseXRefSection parses a classical section into xref table
// entries, reading the section again with a tokenizer spanning to the
// end of the file (a section may be larger than the bootstrap window).
func (ctx *context) parseXRefSection(offset int64, subsectionCount int) (int64, int, error) {
	tk, err := ctx.tokenizerAt(offset)
	if err != nil {
		return 0, 0, err
	}
	_, _ = tk.NextToken() // consume the `xref` keyword

	// process all subsections of this xref section
	for {
		next, err := tk.PeekToken()
		if err != nil {
			return 0, 0, newError(InvalidXref, offset, "corrupt xref section: %s", err)
		}
		if next.IsOther("trailer") {
			break
		}
		if err := ctx.parseXRefTableSubSection(tk); err != nil {
			return 0, 0, err
		}
		subsectionCount++
	}
	_, _ = tk.NextToken() // consume the `trailer` keyword

	prev, err := ctx.processTrailer(tk)
	return prev, subsectionCount, err
}

func parseInt(tk *tok.Tokenizer) (int, error) {
	token, err := tk.NextToken()
	if err != nil {
		return 0, err
	}
	i, err := token.Int()
	return int(i), err
}

// parseXRefTableSubSection processes `first count` and the `count`
// following fixed-width entries.
func (ctx *context) parseXRefTableSubSection(tk *tok.Tokenizer) error {
	startObjNumber, err := parseInt(tk)
	if err != nil {
		return newError(InvalidXref, -1, "invalid start object number: %s", err)
	}

	objCount, err := parseInt(tk)
	if err != nil {
		return newError(InvalidXref, -1, "invalid object count: %s", err)
	}

	for i := 0; i < objCount; i++ {
		if err := ctx.parseXRefTableEntry(tk, startObjNumber+i); err != nil {
			return err
		}
	}
	return nil
}

// parseXRefTableEntry reads one 20-byte entry.
func (ctx *context) parseXRefTableEntry(tk *tok.Tokenizer, objectNumber int) error {
	offsetTk, err := tk.NextToken()
	if err != nil {
		return err
	}
	offset, err := strconv.ParseInt(string(offsetTk.Value), 10, 64)
	if err != nil {
		return newError(InvalidXref, int64(offsetTk.Pos), "invalid offset: %s", err)
	}

	generation, err := parseInt(tk)
	if err != nil {
		return newError(InvalidXref, -1, "invalid generation number: %s", err)
	}

	entryType, err := tk.NextToken()
	if err != nil {
		return err
	}
	v := string(entryType.Value)
	if entryType.Kind != tok.Other || (v != "f" && v != "n") {
		return newError(InvalidXref, int64(entryType.Pos), "corrupt xref subsection entry")
	}

	entry := xrefEntry{
		free:       v == "f",
		offset:     offset,
		generation: generation,
	}

	// skip an entry for an in-use object with offset 0
	if !entry.free && offset == 0 {
		return nil
	}

	// since the last xref section is read first, older definitions
	// of the same object are skipped
	if _, exists := ctx.xrefTable.objects[objectNumber]; exists {
		return nil
	}

	ctx.xrefTable.objects[objectNumber] = &entry
	return nil
}

func (ctx *context) processTrailer(tk *tok.Tokenizer) (int64, error) {
	p := parser.NewParserFromTokenizer(tk)
	p.Lenient = ctx.LenientSyntax
	o, err := p.ParseObject()
	if err != nil {
		return 0, newError(InvalidTrailer, -1, "%s", err)
	}

	trailerDict, ok := o.(*model.ObjDict)
	if !ok {
		return 0, newError(InvalidTrailer, -1, "expected dict, got %T", o)
	}

	return ctx.parseTrailerDict(trailerDict)
}

// accept Int or `N 0 R`: certain buggy generators write
// "/Prev NNN 0 R" instead of "/Prev NNN"
func offsetFromObject(o model.Object) (int64, bool) {
	switch pref := o.(type) {
	case model.ObjInt:
		return int64(pref), true
	case model.ObjIndirectRef:
		return int64(pref.ObjectNumber), true
	default:
		return 0, false
	}
}

// parseTrailerDict merges the trailer information and returns the
// offset of a previous xref section (0 when there is none).
func (ctx *context) parseTrailerDict(trailerDict *model.ObjDict) (int64, error) {
	if err := ctx.trailer.parseTrailerInfo(trailerDict); err != nil {
		return 0, err
	}

	offset, _ := offsetFromObject(trailerDict.Get("Prev"))

	offsetXRefStream, ok := trailerDict.Get("XRefStm").(model.ObjInt)
	if !ok {
		// no hybrid-reference stream: continue with the previous
		// xref section, if any
		return offset, nil
	}

	// 1.5 conformant readers process hidden objects contained in the
	// XRefStm before continuing with any previous xref section
	if _, err := ctx.parseXRefStream(int64(offsetXRefStream)); err != nil {
		return 0, err
	}

	return offset, nil
}

// '7.5.6 - Incremental Updates' says the added trailer shall contain
// all the entries of the previous one, except Prev. We are a bit more
// liberal, allowing individual field updates.
func (current *trailer) parseTrailerInfo(d *model.ObjDict) error {
	if enc := d.Get("Encrypt"); enc != nil && current.encrypt == nil {
		current.encrypt = enc
	}

	if current.size == 0 {
		size, ok := d.Get("Size").(model.ObjInt)
		if !ok {
			return newError(MissingKey, -1, "missing entry \"Size\" in trailer")
		}
		// not fully reliable: patched after all sections are read
		current.size = int(size)
	}

	if current.root == nil {
		if root, ok := d.Get("Root").(model.ObjIndirectRef); ok {
			current.root = &root
		}
	}

	if current.info == nil {
		if info, ok := d.Get("Info").(model.ObjIndirectRef); ok {
			current.info = &info
		}
	}

	if current.id == [2]string{} {
		if id, ok := d.Get("ID").(model.ObjArray); ok && len(id) == 2 {
			first, _ := model.IsString(id[0])
			second, _ := model.IsString(id[1])
			current.id = [2]string{first, second}
		} else if current.encrypt != nil {
			// the ID array shall be a direct unencrypted object in
			// encrypted documents
			return newError(MissingKey, -1, "missing entry \"ID\" in encrypted document")
		}
	}

	return nil
}

// ---------------------------------------------------------------------
// object resolution

// resolve follows `o` if it is a reference.
// Errors are only reported to strict callers: the lenient contract is
// that a dangling reference yields null.
func (ctx *context) resolve(o model.Object) (model.Object, error) {
	visited := make(map[int]bool)
	for {
		ref, ok := o.(model.ObjIndirectRef)
		if !ok {
			return o, nil // the direct object itself
		}
		if visited[ref.ObjectNumber] {
			return model.ObjNull{}, newError(CircularReference, -1,
				"reference chain loops through object %d", ref.ObjectNumber)
		}
		visited[ref.ObjectNumber] = true

		next, err := ctx.resolveObjectNumber(ref)
		if err != nil {
			return model.ObjNull{}, err
		}
		o = next
	}
}

// resolveObjectNumber parses (or fetches from cache) the object
// designated by `ref`. A reference to an undefined object is not an
// error: it resolves to null.
func (ctx *context) resolveObjectNumber(ref model.ObjIndirectRef) (model.Object, error) {
	number := ref.ObjectNumber
	entry, ok := ctx.xrefTable.objects[number]
	if !ok || entry.free || number >= ctx.size() {
		return model.ObjNull{}, nil
	}
	if entry.generation != ref.GenerationNumber {
		return model.ObjNull{}, nil
	}

	if obj, has := ctx.cache.get(ref); has {
		return obj, nil
	}

	// malicious loops (for example through the Length entry of a
	// stream) would otherwise recurse forever
	if ctx.loading[number] {
		return model.ObjNull{}, nil
	}
	ctx.loading[number] = true
	defer delete(ctx.loading, number)

	var (
		obj model.Object
		err error
	)
	if entry.compressed {
		obj, err = ctx.resolveCompressed(entry)
	} else {
		obj, err = ctx.resolveAtOffset(ref, entry.offset)
	}
	if err != nil {
		return nil, err
	}

	if ctx.enc != nil && !entry.compressed {
		// objects inside object streams are not individually
		// encrypted: the containing stream is
		obj, err = ctx.enc.decryptObject(obj, number, entry.generation)
		if err != nil {
			return nil, err
		}
	}

	ctx.cache.put(ref, obj)
	return obj, nil
}

func (ctx *context) resolveCompressed(entry *xrefEntry) (model.Object, error) {
	objs, err := ctx.processObjectStream(entry.streamObjectNumber)
	if err != nil {
		return nil, err
	}
	if entry.streamObjectIndex >= len(objs) {
		return nil, newError(InvalidXref, -1, "invalid object index (%d >= %d)",
			entry.streamObjectIndex, len(objs))
	}
	return objs[entry.streamObjectIndex], nil
}

func (ctx *context) resolveAtOffset(ref model.ObjIndirectRef, offset int64) (model.Object, error) {
	p, err := ctx.newParserAt(offset)
	if err != nil {
		return nil, newError(InvalidXref, offset, "invalid offset for object %d: %s", ref.ObjectNumber, err)
	}

	declNumber, _, err := p.ParseObjectDeclaration()
	if err != nil {
		return nil, newError(SyntaxError, offset, "invalid object declaration (%v): %s", ref, err)
	}
	if declNumber != ref.ObjectNumber {
		if !ctx.LenientSyntax {
			return nil, newError(InvalidReference, offset,
				"xref expected object %d, found %d", ref.ObjectNumber, declNumber)
		}
		ctx.warnf(SyntaxRecovered, offset, "xref expected object %d, found %d", ref.ObjectNumber, declNumber)
	}

	obj, err := p.ParseObject()
	if err != nil {
		return nil, newError(SyntaxError, offset, "invalid object content (%v): %s", ref, err)
	}

	// stream objects are dicts with an additional body: look for it
	tk := p.Tokens()
	if nt, _ := tk.PeekToken(); nt.IsOther("stream") {
		dict, isDict := obj.(*model.ObjDict)
		if !isDict {
			return nil, newError(SyntaxError, offset, "stream keyword after a non-dict object")
		}
		_, _ = tk.NextToken()
		// the body position must be saved before resolving Length or
		// the filters, which may seek elsewhere
		bodyOffset := offset + int64(tk.StreamPosition())
		content, err := ctx.extractStreamBody(ref, dict, bodyOffset)
		if err != nil {
			return nil, err
		}
		obj = model.ObjStream{Args: dict, Content: content}
	}

	return obj, nil
}
