package filters

import (
	"bytes"
	"compress/zlib"
	"io"
)

// flateFilter implements DEFLATE with the zlib wrapper,
// with optional predictor pre/post processing.
type flateFilter struct{}

func (flateFilter) Encode(data []byte, params Params) ([]byte, error) {
	p, err := processPredictorParams(Flate, params)
	if err != nil {
		return nil, err
	}
	data, err = p.encodePreProcess(data)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err = w.Write(data); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (flateFilter) Decode(data []byte, params Params) ([]byte, error) {
	p, err := processPredictorParams(Flate, params)
	if err != nil {
		return nil, err
	}

	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	out, err := io.ReadAll(r)
	if err != nil {
		// return the valid prefix: lenient callers may keep it
		if decoded, perr := p.decodePostProcess(out); perr == nil {
			return decoded, err
		}
		return nil, err
	}
	_ = r.Close()
	return p.decodePostProcess(out)
}

type skipperFlate struct{}

// Skip implements Skipper for a Flate filter.
func (skipperFlate) Skip(encoded []byte) (int, error) {
	src := newCountReader(bytes.NewReader(encoded))
	rc, err := zlib.NewReader(src)
	if err != nil {
		return 0, err
	}
	if _, err = io.Copy(io.Discard, rc); err != nil {
		return 0, err
	}
	err = rc.Close()
	return src.totalRead, err
}
