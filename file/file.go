// Package file builds upon the parser to read an existing PDF file,
// producing a random-access store of PDF objects.
//
// The store resolves objects lazily: an indirect object is parsed the
// first time it is requested, decrypted if the document carries an
// /Encrypt dictionary, and kept in a size-bounded cache.
//
// The logic of the cross-reference bootstrap is adapted from pdfcpu.
package file

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/benoitkugler/pdfcore/model"
)

// Configuration tunes the bounded work of the reader and the
// tolerance to malformations.
type Configuration struct {
	// Password is tried both as user and owner password when the
	// document is encrypted.
	Password string

	// LenientStreams corrects wrong stream Length entries by scanning
	// for `endstream`, recording a warning instead of failing.
	LenientStreams bool

	// LenientSyntax converts some recoverable syntax errors into
	// warnings.
	LenientSyntax bool

	// StreamEndScanWindow bounds the forward scan for `endstream`
	// under LenientStreams, in bytes. It defaults to 1000.
	StreamEndScanWindow int

	// XrefBootstrapWindow bounds the backward scan for the last
	// `startxref` keyword, in bytes. It defaults to 1024.
	XrefBootstrapWindow int

	// RecoverScanWindow bounds, for each object candidate found by
	// the recovery engine, the forward search for its `endobj`.
	// It defaults to 50kB.
	RecoverScanWindow int

	// MaxStreamSize bounds the size of a single stream body, in
	// bytes, so that hostile input cannot force unbounded allocation.
	// It defaults to 512MB.
	MaxStreamSize int

	// MaxNestingDepth bounds parser recursion. It defaults to 100.
	MaxNestingDepth int

	// ObjectCacheSize bounds the number of resolved objects kept in
	// memory. It defaults to 4096; a negative value disables caching.
	ObjectCacheSize int
}

// NewDefaultConfiguration returns a lenient configuration,
// suitable for files found in the wild.
func NewDefaultConfiguration() *Configuration {
	return &Configuration{LenientStreams: true, LenientSyntax: true}
}

const (
	defaultStreamEndScanWindow = 1000
	defaultXrefBootstrapWindow = 1024
	defaultRecoverScanWindow   = 50 * 1024
	defaultObjectCacheSize     = 4096
	defaultMaxStreamSize       = 512 << 20
)

func (c Configuration) streamEndScanWindow() int {
	if c.StreamEndScanWindow > 0 {
		return c.StreamEndScanWindow
	}
	return defaultStreamEndScanWindow
}

func (c Configuration) xrefBootstrapWindow() int {
	if c.XrefBootstrapWindow > 0 {
		return c.XrefBootstrapWindow
	}
	return defaultXrefBootstrapWindow
}

func (c Configuration) recoverScanWindow() int {
	if c.RecoverScanWindow > 0 {
		return c.RecoverScanWindow
	}
	return defaultRecoverScanWindow
}

func (c Configuration) maxStreamSize() int {
	if c.MaxStreamSize > 0 {
		return c.MaxStreamSize
	}
	return defaultMaxStreamSize
}

// File is a parsed PDF file: a store of indirect objects, addressable
// by (object number, generation), plus the bootstrap information of
// its trailer.
//
// A File is safe for concurrent use by multiple readers; the internal
// object cache is guarded. Mutation workflows (see the writer
// package) require exclusive access.
type File struct {
	mu  sync.Mutex
	ctx *context

	// HeaderVersion is the PDF version the source claims,
	// as per its header line.
	HeaderVersion string

	// Root is the reference to the document catalog.
	Root model.ObjIndirectRef

	// Info is the optional reference to the metadata dictionary.
	Info *model.ObjIndirectRef

	// ID is the pair of byte strings identifying the file.
	// It is required in encrypted documents.
	ID [2]string

	// Encrypt is non nil when the document is encrypted.
	Encrypt *model.Encrypt
}

// ReadFile is the same as Read, but takes a file name as input.
// The file content is buffered in memory, so that the returned store
// does not keep an open handle.
func ReadFile(filename string, conf *Configuration) (*File, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Read(bytes.NewReader(content), conf)
}

// Read processes a PDF file: the header and the cross-reference table
// are read, and encryption is set up, but objects are resolved lazily.
//
// `rs` is borrowed for the lifetime of the store and not closed by it.
// If the cross-reference bootstrap fails, the recovery engine is
// tried before giving up.
func Read(rs io.ReadSeeker, conf *Configuration) (*File, error) {
	out, err := read(rs, conf)
	if err == nil {
		return out, nil
	}
	// only index failures are worth a recovery scan: a wrong password
	// or an empty file would not be helped by a rebuilt xref
	if e, ok := err.(Error); ok {
		switch e.Kind {
		case InvalidXref, InvalidTrailer, SyntaxError:
		default:
			return nil, err
		}
	}
	// the index is missing or wrong: scan the bytes to rebuild it
	recovered, _, rerr := Recover(rs, conf)
	if rerr != nil {
		return nil, err // report the original failure
	}
	return recovered, nil
}

func read(rs io.ReadSeeker, conf *Configuration) (*File, error) {
	ctx, err := newContext(rs, conf)
	if err != nil {
		return nil, err
	}

	ctx.headerVersion, err = headerVersion(rs)
	if err != nil {
		return nil, err
	}

	offset, err := ctx.offsetLastXRefSection(0)
	if err != nil {
		return nil, err
	}
	ctx.lastXRefOffset = offset

	if err = ctx.buildXRefTableStartingAt(offset); err != nil {
		return nil, err
	}

	return newFile(ctx)
}

func newFile(ctx *context) (*File, error) {
	if ctx.trailer.root == nil {
		return nil, newError(InvalidTrailer, -1, "missing Root entry")
	}

	ctx.patchObjectZero()

	out := &File{
		ctx:           ctx,
		HeaderVersion: ctx.headerVersion,
		Root:          *ctx.trailer.root,
		Info:          ctx.trailer.info,
		ID:            ctx.trailer.id,
	}

	if err := ctx.setupEncryption(); err != nil {
		return nil, err
	}
	if ctx.enc != nil {
		out.Encrypt = &ctx.enc.enc
	}
	return out, nil
}

// LastXRefOffset returns the byte offset of the newest
// cross-reference section, to be chained by incremental updates.
// It is 0 for a store produced by the recovery engine.
func (f *File) LastXRefOffset() int64 {
	return f.ctx.lastXRefOffset
}

// Size returns one more than the highest object number in use,
// as found in the trailer and patched against the actual table.
func (f *File) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ctx.size()
}

// Warnings returns the recoverable malformations encountered so far.
// Since objects are resolved lazily, new warnings may appear after
// further Resolve calls.
func (f *File) Warnings() []Warning {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Warning(nil), f.ctx.warnings...)
}

// Resolve returns the object designated by `o` if it is an indirect
// reference, and `o` itself otherwise.
//
// Following the PDF specification, a reference to an undefined or free object is
// not an error: it resolves to null. Chains of references are
// followed; a cycle also resolves to null.
func (f *File) Resolve(o model.Object) model.Object {
	out, _ := f.resolve(o)
	return out
}

// ResolveStrict is a strict variant of Resolve: look-up failures,
// syntax errors and cycles are reported instead of yielding null.
func (f *File) ResolveStrict(o model.Object) (model.Object, error) {
	return f.resolve(o)
}

func (f *File) resolve(o model.Object) (model.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ctx.resolve(o)
}

// GetIndirect returns the object stored under the exact
// (number, generation) key, or false.
func (f *File) GetIndirect(number, generation int) (model.Object, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.ctx.xrefTable.objects[number]
	if !ok || entry.free || entry.generation != generation {
		return nil, false
	}
	obj, err := f.ctx.resolveObjectNumber(model.ObjIndirectRef{
		ObjectNumber: number, GenerationNumber: generation,
	})
	if err != nil {
		return nil, false
	}
	return obj, true
}

// Objects resolves every in-use object and returns the whole store,
// keyed by reference. It is the input expected by the writer package.
func (f *File) Objects() (map[model.ObjIndirectRef]model.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[model.ObjIndirectRef]model.Object, len(f.ctx.xrefTable.objects))
	for number, entry := range f.ctx.xrefTable.objects {
		if entry.free {
			continue
		}
		ref := model.ObjIndirectRef{ObjectNumber: number, GenerationNumber: entry.generation}
		obj, err := f.ctx.resolveObjectNumber(ref)
		if err != nil {
			if f.ctx.LenientSyntax {
				// a broken object does not prevent reading the others
				f.ctx.warnf(SyntaxRecovered, -1, "object %d %d: %s", number, entry.generation, err)
				continue
			}
			return nil, err
		}
		if _, isNull := obj.(model.ObjNull); isNull {
			continue
		}
		out[ref] = obj
	}
	return out, nil
}
