package model

// FilterName identifies a stream filter.
// See 7.4 in the PDF spec.
const (
	ASCII85   Name = "ASCII85Decode"
	ASCIIHex  Name = "ASCIIHexDecode"
	RunLength Name = "RunLengthDecode"
	LZW       Name = "LZWDecode"
	Flate     Name = "FlateDecode"
	CCITTFax  Name = "CCITTFaxDecode"
	JBIG2     Name = "JBIG2Decode"
	DCT       Name = "DCTDecode"
	JPX       Name = "JPXDecode"
	Crypt     Name = "Crypt"
)

// Filter is one step of a stream filter pipeline: a name and its
// decode parameters. Boolean parameter values are stored as 0 or 1.
type Filter struct {
	Name        Name
	DecodeParms map[string]int
}

// Clone returns a deep copy.
func (f Filter) Clone() Filter {
	out := f
	if f.DecodeParms != nil {
		out.DecodeParms = make(map[string]int, len(f.DecodeParms))
		for k, v := range f.DecodeParms {
			out.DecodeParms[k] = v
		}
	}
	return out
}

// Filters is a chain of filters, in the order they must be applied
// to decode the stream content: encoding applies the steps in reverse.
type Filters []Filter

// Clone returns a deep copy.
func (fs Filters) Clone() Filters {
	out := make(Filters, len(fs))
	for i, f := range fs {
		out[i] = f.Clone()
	}
	return out
}
