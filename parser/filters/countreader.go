package filters

import "io"

// countReader records how many bytes were consumed from the
// underlying reader, which is how skippers measure encoded lengths.
type countReader struct {
	src       io.Reader
	totalRead int
}

func newCountReader(src io.Reader) *countReader {
	return &countReader{src: src}
}

func (c *countReader) Read(p []byte) (int, error) {
	n, err := c.src.Read(p)
	c.totalRead += n
	return n, err
}

// ReadByte is needed by decoders reading byte by byte: it keeps the
// count exact, where a buffered wrapper would read ahead.
func (c *countReader) ReadByte() (byte, error) {
	var buf [1]byte
	_, err := io.ReadFull(c.src, buf[:])
	if err != nil {
		return 0, err
	}
	c.totalRead++
	return buf[0], nil
}
