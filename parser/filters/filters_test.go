package filters

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	pdfcpu "github.com/pdfcpu/pdfcpu/pkg/filter"
)

var roundTripNames = []string{Flate, ASCIIHex, ASCII85, RunLength, LZW}

func randomInput(size int) []byte {
	input := make([]byte, size)
	rnd := rand.New(rand.NewSource(42))
	_, _ = rnd.Read(input)
	return input
}

// decode ∘ encode must be the identity on all byte strings
func TestRoundTrips(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte("a"),
		[]byte("simple ascii content"),
		bytes.Repeat([]byte{0}, 1000),
		randomInput(1000),
	}
	// the sequence i mod 256, on 10 000 bytes
	patterned := make([]byte, 10000)
	for i := range patterned {
		patterned[i] = byte(i % 256)
	}
	inputs = append(inputs, patterned)

	for _, name := range roundTripNames {
		for _, input := range inputs {
			encoded, err := Encode(name, input, nil)
			if err != nil {
				t.Fatalf("%s: encode: %s", name, err)
			}
			decoded, err := Decode(name, encoded, nil)
			if err != nil {
				t.Fatalf("%s: decode: %s", name, err)
			}
			if !bytes.Equal(decoded, input) {
				t.Errorf("%s: round-trip failed on %d bytes", name, len(input))
			}
		}
	}
}

// our decoders must accept the output of an independent encoder
func TestDecodeAgainstReference(t *testing.T) {
	input := randomInput(1000)
	for _, name := range roundTripNames {
		fil, err := pdfcpu.NewFilter(name, nil)
		if err != nil {
			t.Fatal(err)
		}
		r, err := fil.Encode(bytes.NewReader(input))
		if err != nil {
			t.Fatal(err)
		}
		encoded, err := io.ReadAll(r)
		if err != nil {
			t.Fatal(err)
		}

		decoded, err := Decode(name, encoded, nil)
		if err != nil {
			t.Fatalf("%s: decoding reference output: %s", name, err)
		}
		if !bytes.Equal(decoded, input) {
			t.Errorf("%s: disagreement with the reference encoder", name)
		}
	}
}

// and the reference decoder must accept our output
func TestEncodeAgainstReference(t *testing.T) {
	input := randomInput(1000)
	for _, name := range roundTripNames {
		encoded, err := Encode(name, input, nil)
		if err != nil {
			t.Fatal(err)
		}

		fil, err := pdfcpu.NewFilter(name, nil)
		if err != nil {
			t.Fatal(err)
		}
		r, err := fil.Decode(bytes.NewReader(encoded))
		if err != nil {
			t.Fatalf("%s: reference decoder rejected our output: %s", name, err)
		}
		decoded, err := io.ReadAll(r)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(decoded, input) {
			t.Errorf("%s: disagreement with the reference decoder", name)
		}
	}
}

func TestPredictors(t *testing.T) {
	// 4 columns, 3 colour components, 8 bits: 12-byte rows
	params := Params{"Predictor": 12, "Columns": 4, "Colors": 3, "BitsPerComponent": 8}
	input := randomInput(12 * 50)

	for _, name := range []string{Flate, LZW} {
		encoded, err := Encode(name, input, params)
		if err != nil {
			t.Fatalf("%s: %s", name, err)
		}
		decoded, err := Decode(name, encoded, params)
		if err != nil {
			t.Fatalf("%s: %s", name, err)
		}
		if !bytes.Equal(decoded, input) {
			t.Errorf("%s: PNG predictor round-trip failed", name)
		}
	}

	// TIFF horizontal differencing
	params = Params{"Predictor": 2, "Columns": 4, "Colors": 3, "BitsPerComponent": 8}
	encoded, err := Encode(Flate, input, params)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(Flate, encoded, params)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded, input) {
		t.Error("TIFF predictor round-trip failed")
	}
}

func TestPNGRowFilters(t *testing.T) {
	// decoding accepts any per-row filter: exercise Sub, Up, Average
	// and Paeth through hand-written PNG-style rows
	rowSize := 5
	rows := [][]byte{
		{0, 1, 2, 3, 4, 5},     // None
		{1, 1, 1, 1, 1, 1},     // Sub
		{2, 10, 10, 10, 10, 0}, // Up
		{3, 1, 2, 3, 4, 5},     // Average
		{4, 1, 1, 1, 1, 1},     // Paeth
	}
	var data []byte
	for _, r := range rows {
		data = append(data, r...)
	}
	p := predictorParams{predictor: 15, colors: 1, bpc: 8, columns: rowSize}
	out, err := p.decodePostProcess(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(rows)*rowSize {
		t.Errorf("unexpected output size %d", len(out))
	}
}

func TestHexPadding(t *testing.T) {
	decoded, err := Decode(ASCIIHex, []byte("414243A>"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded, []byte{0x41, 0x42, 0x43, 0xA0}) {
		t.Errorf("unexpected decode %X", decoded)
	}
}

func TestSkippers(t *testing.T) {
	input := randomInput(500)
	trailing := []byte("garbage after the end of data")

	for _, name := range roundTripNames {
		encoded, err := Encode(name, input, nil)
		if err != nil {
			t.Fatal(err)
		}
		sk, err := SkipperFor(name, nil)
		if err != nil {
			t.Fatal(err)
		}
		n, err := sk.Skip(append(append([]byte(nil), encoded...), trailing...))
		if err != nil {
			t.Fatalf("%s: %s", name, err)
		}
		// flate and lzw readers may buffer ahead: the skipper must
		// reach at least the end of data and never overshoot into
		// impossible territory
		if n < len(encoded)-32 || n > len(encoded)+len(trailing) {
			t.Errorf("%s: skipper stopped at %d (encoded length %d)", name, n, len(encoded))
		}
	}
}

func TestPassthrough(t *testing.T) {
	body := randomInput(64)
	for _, name := range []string{DCT, JBIG2, JPX} {
		out, err := Decode(name, body, nil)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(out, body) {
			t.Errorf("%s: pass-through altered the body", name)
		}
	}
}

func TestUnknownFilter(t *testing.T) {
	if _, err := Decode("NoSuchFilter", nil, nil); err == nil {
		t.Error("expected an error for an unknown filter")
	}
}

func TestRegistry(t *testing.T) {
	type reversing struct{ passthroughFilter }
	Register("Custom", reversing{})
	if _, ok := Get("Custom"); !ok {
		t.Error("registration failed")
	}
	delete(registry, "Custom")
}
