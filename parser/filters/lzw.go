package filters

import (
	"bytes"
	"io"

	"github.com/hhrutter/lzw"
)

// lzwFilter implements the LZW encoding with the PDF early-change
// convention, with optional predictor pre/post processing.
type lzwFilter struct{}

func (lzwFilter) Encode(data []byte, params Params) ([]byte, error) {
	p, err := processPredictorParams(LZW, params)
	if err != nil {
		return nil, err
	}
	data, err = p.encodePreProcess(data)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, earlyChange(params))
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (lzwFilter) Decode(data []byte, params Params) ([]byte, error) {
	p, err := processPredictorParams(LZW, params)
	if err != nil {
		return nil, err
	}

	r := lzw.NewReader(bytes.NewReader(data), earlyChange(params))
	out, err := io.ReadAll(r)
	if err != nil {
		if decoded, perr := p.decodePostProcess(out); perr == nil {
			return decoded, err
		}
		return nil, err
	}
	_ = r.Close()
	return p.decodePostProcess(out)
}

type skipperLZW struct {
	EarlyChange bool
}

// Skip implements Skipper for an LZWDecode filter.
func (s skipperLZW) Skip(encoded []byte) (int, error) {
	src := newCountReader(bytes.NewReader(encoded))
	rc := lzw.NewReader(src, s.EarlyChange)
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return 0, err
	}
	err := rc.Close()
	return src.totalRead, err
}
