package filters

import (
	"bytes"
	"encoding/ascii85"
	"errors"
	"io"
)

// ascii85Filter implements the base-85 text encoding,
// with the <~ ... ~> frame of the PDF flavour.
type ascii85Filter struct{}

const eodAscii85 = "~>"

func (ascii85Filter) Encode(data []byte, _ Params) ([]byte, error) {
	var buf bytes.Buffer
	w := ascii85.NewEncoder(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	buf.WriteString(eodAscii85)
	return buf.Bytes(), nil
}

func (ascii85Filter) Decode(data []byte, _ Params) ([]byte, error) {
	// some encoders emit the leading <~ frame: strip it
	if bytes.HasPrefix(data, []byte("<~")) {
		data = data[2:]
	}
	if i := bytes.Index(data, []byte(eodAscii85)); i != -1 {
		data = data[:i]
	}
	out, err := io.ReadAll(ascii85.NewDecoder(bytes.NewReader(data)))
	if err != nil {
		return out, err
	}
	return out, nil
}

type skipperAscii85 struct{}

// Skip implements Skipper for an ASCII85Decode filter.
func (skipperAscii85) Skip(encoded []byte) (int, error) {
	i := bytes.Index(encoded, []byte(eodAscii85))
	if i == -1 {
		return 0, errors.New("ASCII85Decode: missing EOD marker")
	}
	return i + len(eodAscii85), nil
}
