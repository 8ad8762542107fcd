// Package filters implements the stream filters defined by the PDF
// specification: byte-to-byte transforms, identified by name and
// composed into chains.
//
// Each filter is an (encode, decode) pair; a registry maps names to
// implementations and is populated at initialization. New filters
// register by insertion.
package filters

import (
	"errors"
	"fmt"
)

// PDF defines the following filters. See also 7.4 in the PDF spec.
const (
	ASCII85   = "ASCII85Decode"
	ASCIIHex  = "ASCIIHexDecode"
	RunLength = "RunLengthDecode"
	LZW       = "LZWDecode"
	Flate     = "FlateDecode"
	DCT       = "DCTDecode"
	CCITTFax  = "CCITTFaxDecode"
	JBIG2     = "JBIG2Decode"
	JPX       = "JPXDecode"
)

// Params are the decode parameters of one filter, with boolean
// values stored as 0 or 1.
type Params = map[string]int

// Filter encodes and decodes stream content.
// Implementations are stateless; parameters are passed per call.
type Filter interface {
	// Encode transforms plain data to its filtered form.
	Encode(data []byte, params Params) ([]byte, error)

	// Decode transforms filtered data back to its plain form.
	// On malformed input, the longest valid prefix decoded so far
	// is returned along with the error, when the format permits.
	Decode(data []byte, params Params) ([]byte, error)
}

var registry = map[string]Filter{}

// Register adds or replaces the implementation for `name`.
func Register(name string, f Filter) { registry[name] = f }

// Get returns the registered implementation for `name`.
func Get(name string) (Filter, bool) {
	f, ok := registry[name]
	return f, ok
}

func init() {
	Register(Flate, flateFilter{})
	Register(ASCIIHex, asciiHexFilter{})
	Register(ASCII85, ascii85Filter{})
	Register(LZW, lzwFilter{})
	Register(RunLength, runLengthFilter{})
	Register(CCITTFax, ccittFilter{})
	// image codecs without a decoder compiled in: opaque pass-through
	Register(DCT, passthroughFilter{})
	Register(JBIG2, passthroughFilter{})
	Register(JPX, passthroughFilter{})
}

var errUnsupportedFilter = errors.New("unsupported filter")

// Decode applies the decode transform of the named filter.
func Decode(name string, data []byte, params Params) ([]byte, error) {
	f, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnsupportedFilter, name)
	}
	return f.Decode(data, params)
}

// Encode applies the encode transform of the named filter.
func Encode(name string, data []byte, params Params) ([]byte, error) {
	f, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnsupportedFilter, name)
	}
	return f.Encode(data, params)
}

// Skipper reads the input data and stops exactly after the EOD
// marker of its filter. It returns the number of bytes read
// (including EOD). It is the most reliable way to find the end of a
// stream whose Length entry is corrupt.
type Skipper interface {
	Skip(encoded []byte) (int, error)
}

// SkipperFor returns the skipper for the given filter name.
// An error is returned if and only if the filter has no
// detectable EOD marker.
func SkipperFor(name string, params Params) (Skipper, error) {
	switch name {
	case ASCII85:
		return skipperAscii85{}, nil
	case ASCIIHex:
		return skipperAsciiHex{}, nil
	case Flate:
		return skipperFlate{}, nil
	case RunLength:
		return skipperRunLength{}, nil
	case LZW:
		return skipperLZW{EarlyChange: earlyChange(params)}, nil
	default:
		return nil, fmt.Errorf("no EOD skipper for filter %s", name)
	}
}

// In PDF, EarlyChange is written as an integer. Default value: 1 (true).
func earlyChange(params Params) bool {
	ec, ok := params["EarlyChange"]
	return !ok || ec == 1
}
