package filters

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/image/ccitt"
)

// ccittFilter decodes CCITT Group 3 one-dimensional (K = 0) and
// Group 4 (K < 0) facsimile data; mixed one- and two-dimensional
// data (K > 0) is rejected with an error.
// There is no encoder compiled in: encoding is an opaque
// pass-through, as for the other image codecs.
type ccittFilter struct{}

func (ccittFilter) Encode(data []byte, _ Params) ([]byte, error) { return data, nil }

func (ccittFilter) Decode(data []byte, params Params) ([]byte, error) {
	k := params["K"]
	if k > 0 {
		// mixed one- and two-dimensional encoding
		return nil, fmt.Errorf("CCITTFaxDecode: unsupported K value %d", k)
	}
	sf := ccitt.Group3
	if k < 0 {
		sf = ccitt.Group4
	}

	columns, ok := params["Columns"]
	if !ok {
		columns = 1728
	}
	rows := params["Rows"]
	if rows <= 0 {
		return nil, fmt.Errorf("CCITTFaxDecode: missing Rows parameter")
	}

	opts := &ccitt.Options{
		Invert: params["BlackIs1"] != 1, // PDF: 0 bits mean black by default
		Align:  params["EncodedByteAlign"] == 1,
	}
	r := ccitt.NewReader(bytes.NewReader(data), ccitt.MSB, sf, columns, rows, opts)
	return io.ReadAll(r)
}
