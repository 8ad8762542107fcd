package file

import (
	"bytes"
	"io"

	"github.com/benoitkugler/pdfcore/model"
	"github.com/benoitkugler/pdfcore/parser"
	"golang.org/x/exp/errors/fmt"
)

// extractStreamBody reads the body of the stream whose dictionary is
// `dict`, starting at `bodyOffset` (first content byte). The content
// is returned as written in the file, that is still encrypted and
// filtered; `ref` identifies the object for error reporting.
//
// The declared Length must match the distance to `endstream`;
// under lenient streams, a mismatch is corrected by scanning forward
// within a bounded window, and a warning is recorded.
func (ctx *context) extractStreamBody(ref model.ObjIndirectRef, dict *model.ObjDict, bodyOffset int64) ([]byte, error) {
	lengthO, err := ctx.resolve(dict.Get("Length"))
	if err != nil {
		return nil, fmt.Errorf("invalid stream Length: %w", err)
	}
	length, hasLength := lengthO.(model.ObjInt)
	if !hasLength && !ctx.LenientStreams {
		return nil, newError(MissingKey, bodyOffset, "missing or invalid Length in stream %d %d",
			ref.ObjectNumber, ref.GenerationNumber)
	}
	if hasLength && int64(length) > int64(ctx.maxStreamSize()) {
		return nil, newError(StreamLengthMismatch, bodyOffset,
			"stream %d %d: declared length %d exceeds the configured bound",
			ref.ObjectNumber, ref.GenerationNumber, length)
	}

	if hasLength && int64(length) >= 0 && bodyOffset+int64(length) <= ctx.fileSize {
		content, err := ctx.readAt(int(length), bodyOffset)
		if err != nil {
			return nil, err
		}
		// the keyword `endstream` is expected right after the body,
		// possibly preceded by an end-of-line
		if ctx.endstreamFollows(bodyOffset + int64(length)) {
			return content, nil
		}
		if !ctx.LenientStreams {
			return nil, newError(StreamLengthMismatch, bodyOffset,
				"stream %d %d: no endstream after the %d declared bytes",
				ref.ObjectNumber, ref.GenerationNumber, length)
		}
	} else if !ctx.LenientStreams {
		return nil, newError(StreamLengthMismatch, bodyOffset,
			"stream %d %d: invalid declared length", ref.ObjectNumber, ref.GenerationNumber)
	}

	declared := -1
	if hasLength {
		declared = int(length)
	}

	// lenient path: find the actual end of the stream
	content, err := ctx.scanForEndstream(bodyOffset, declared)
	if err != nil {
		return nil, err
	}
	ctx.warnf(StreamLengthCorrected, bodyOffset,
		"stream %d %d: declared=%d actual=%d",
		ref.ObjectNumber, ref.GenerationNumber, declared, len(content))
	// patch the in-memory dict, so that round-trips write the
	// corrected value
	dict.Set("Length", model.ObjInt(len(content)))
	return content, nil
}

// endstreamFollows checks for the `endstream` keyword at `offset`,
// skipping at most one end-of-line marker.
func (ctx *context) endstreamFollows(offset int64) bool {
	buf, err := ctx.readAt(len("endstream")+2, offset)
	if err != nil {
		return false
	}
	if len(buf) > 0 && buf[0] == '\r' {
		buf = buf[1:]
	}
	if len(buf) > 0 && buf[0] == '\n' {
		buf = buf[1:]
	}
	return bytes.HasPrefix(buf, []byte("endstream"))
}

// scanForEndstream reads forward from `bodyOffset`, up to the
// declared length plus the configured window, looking for the
// `endstream` keyword; the actual body is what precedes it, with one
// trailing end-of-line removed.
func (ctx *context) scanForEndstream(bodyOffset int64, declaredLength int) ([]byte, error) {
	window := int64(ctx.streamEndScanWindow())
	max := int64(declaredLength) + window
	if declaredLength < 0 {
		max = int64(ctx.maxStreamSize())
	}
	if max > ctx.fileSize-bodyOffset {
		max = ctx.fileSize - bodyOffset
	}

	buf, err := ctx.readAt(int(max), bodyOffset)
	if err != nil && err != io.EOF {
		return nil, err
	}
	index := bytes.Index(buf, []byte("endstream"))
	if index == -1 {
		return nil, newError(StreamLengthMismatch, bodyOffset,
			"no endstream keyword within %d bytes", max)
	}
	content := buf[:index]
	// the end-of-line before `endstream` is a delimiter, not content
	if n := len(content); n > 0 && content[n-1] == '\n' {
		content = content[:n-1]
	}
	if n := len(content); n > 0 && content[n-1] == '\r' {
		content = content[:n-1]
	}
	return content, nil
}

// decodedStreamContent applies the filter chain to the content of a
// stream object resolved by this context, whose content has already
// been decrypted at resolve time.
func (ctx *context) decodedStreamContent(ref model.ObjIndirectRef, stream model.ObjStream) ([]byte, error) {
	content := stream.Content

	fs, err := parser.ParseFilters(stream.Args.Get("Filter"), stream.Args.Get("DecodeParms"), ctx.resolve)
	if err != nil {
		return nil, err
	}

	decoded, err := parser.DecodeStream(fs, content)
	if err != nil {
		if ctx.LenientStreams && len(decoded) > 0 {
			// keep the longest valid prefix and flag the stream
			ctx.warnf(StreamDecodePartial, -1, "stream %d %d: %s",
				ref.ObjectNumber, ref.GenerationNumber, err)
			return decoded, nil
		}
		return nil, newError(StreamDecodeError, -1, "stream %d %d: %s",
			ref.ObjectNumber, ref.GenerationNumber, err)
	}
	return decoded, nil
}

// DecodedStreamContent is the public entry point to get the plain
// content of a stream: the store applies the decryption (already done
// at resolve time) and the filter chain.
func (f *File) DecodedStreamContent(ref model.ObjIndirectRef) ([]byte, error) {
	obj := f.Resolve(ref)
	stream, ok := obj.(model.ObjStream)
	if !ok {
		return nil, fmt.Errorf("object %d %d is not a stream", ref.ObjectNumber, ref.GenerationNumber)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ctx.decodedStreamContent(ref, stream)
}
