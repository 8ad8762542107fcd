package file

import (
	"bytes"
	"io"
	"regexp"
	"sort"
	"strconv"

	"github.com/benoitkugler/pdfcore/model"
)

// The recovery engine rebuilds a usable cross-reference table from a
// file whose index is missing or wrong: the bytes are scanned for
// `N G obj` patterns, a synthetic xref and trailer are built, and the
// normal read path takes over. The source file is never mutated.

// RecoveryReport summarizes what the scan found.
type RecoveryReport struct {
	// ObjectsFound is the number of verified `N G obj ... endobj`
	// blocks, after duplicate resolution.
	ObjectsFound int
	// DuplicatesDropped counts the object definitions discarded in
	// favor of a higher generation or a later offset.
	DuplicatesDropped int
	// CatalogFound reports whether a document catalog was located.
	CatalogFound bool
}

var objDeclPattern = regexp.MustCompile(`(\d+)[\x00\t\n\f\r ]+(\d+)[\x00\t\n\f\r ]+obj`)

const (
	recoverChunkSize = 1 << 20
	// patterns may straddle chunk boundaries: chunks overlap by the
	// largest plausible declaration
	recoverChunkOverlap = 64
)

// Recover scans `rs` to rediscover indirect objects and rebuild the
// cross-reference table, then feeds the result into the normal read
// path. It is also tried automatically by Read when the xref
// bootstrap fails.
func Recover(rs io.ReadSeeker, conf *Configuration) (*File, *RecoveryReport, error) {
	ctx, err := newContext(rs, conf)
	if err != nil {
		return nil, nil, err
	}

	ctx.headerVersion, err = headerVersion(rs)
	if err != nil {
		// a damaged header does not prevent recovering the objects
		ctx.warnf(SyntaxRecovered, 0, "missing or invalid header: %s", err)
		ctx.headerVersion = "1.7"
	}

	report := &RecoveryReport{}
	if err := ctx.scanForObjects(report); err != nil {
		return nil, nil, err
	}
	if len(ctx.xrefTable.objects) == 0 {
		return nil, nil, newError(InvalidXref, -1, "recovery: no indirect object found")
	}

	// Size is one more than the highest recorded object number
	maxNumber := 0
	for number := range ctx.xrefTable.objects {
		if number > maxNumber {
			maxNumber = number
		}
	}
	ctx.trailer.size = maxNumber + 1

	report.ObjectsFound = len(ctx.xrefTable.objects)

	// the trailer is synthesized: Root is the last /Type /Catalog
	// dictionary encountered during the scan
	if root, ok := ctx.findCatalog(); ok {
		ctx.trailer.root = &root
		report.CatalogFound = true
	} else {
		return nil, report, newError(InvalidTrailer, -1, "recovery: no document catalog found")
	}

	ctx.warnf(XrefRepaired, -1, "cross-reference table rebuilt from %d objects", report.ObjectsFound)

	out, err := newFile(ctx)
	return out, report, err
}

// scanForObjects performs the chunked linear scan.
func (ctx *context) scanForObjects(report *RecoveryReport) error {
	var (
		base      int64
		seenMatch = make(map[int64]bool) // absolute offsets already handled
	)

	for base < ctx.fileSize {
		chunk, err := ctx.readAt(recoverChunkSize+recoverChunkOverlap, base)
		if err != nil && err != io.EOF {
			return err
		}

		for _, match := range objDeclPattern.FindAllSubmatchIndex(chunk, -1) {
			start := match[0]
			// the number must start the token: reject matches glued
			// to a preceding digit
			if start > 0 && chunk[start-1] >= '0' && chunk[start-1] <= '9' {
				continue
			}
			abs := base + int64(start)
			if seenMatch[abs] {
				continue
			}
			seenMatch[abs] = true

			number, err1 := strconv.Atoi(string(chunk[match[2]:match[3]]))
			generation, err2 := strconv.Atoi(string(chunk[match[4]:match[5]]))
			if err1 != nil || err2 != nil || number < 1 || generation > freeHeadGeneration {
				continue
			}

			if !ctx.endobjWithin(abs) {
				continue
			}

			ctx.recordRecovered(number, generation, abs, report)
		}

		if base+int64(len(chunk)) >= ctx.fileSize {
			break
		}
		base += recoverChunkSize
	}
	return nil
}

// endobjWithin verifies that a matching `endobj` appears within the
// configured window after the object start.
func (ctx *context) endobjWithin(objStart int64) bool {
	window := ctx.recoverScanWindow()
	if int64(window) > ctx.fileSize-objStart {
		window = int(ctx.fileSize - objStart)
	}
	buf, err := ctx.readAt(window, objStart)
	if err != nil && err != io.EOF {
		return false
	}
	return bytes.Contains(buf, []byte("endobj"))
}

// recordRecovered applies the duplicate policy: keep the highest
// generation, then the highest offset.
func (ctx *context) recordRecovered(number, generation int, offset int64, report *RecoveryReport) {
	if prev, has := ctx.xrefTable.objects[number]; has {
		if prev.generation > generation ||
			(prev.generation == generation && prev.offset >= offset) {
			report.DuplicatesDropped++
			return
		}
		report.DuplicatesDropped++
	}
	ctx.xrefTable.objects[number] = &xrefEntry{offset: offset, generation: generation}
}

// findCatalog resolves the recovered objects, in file order, and
// returns a reference to the last /Type /Catalog dictionary.
func (ctx *context) findCatalog() (model.ObjIndirectRef, bool) {
	type candidate struct {
		ref    model.ObjIndirectRef
		offset int64
	}
	var candidates []candidate
	for number, entry := range ctx.xrefTable.objects {
		candidates = append(candidates, candidate{
			ref:    model.ObjIndirectRef{ObjectNumber: number, GenerationNumber: entry.generation},
			offset: entry.offset,
		})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].offset < candidates[j].offset })

	var (
		out   model.ObjIndirectRef
		found bool
	)
	for _, c := range candidates {
		obj, err := ctx.resolveObjectNumber(c.ref)
		if err != nil {
			continue
		}
		if dict, ok := obj.(*model.ObjDict); ok && dict.Get("Type") == model.Name("Catalog") {
			out, found = c.ref, true
		}
	}
	return out, found
}
