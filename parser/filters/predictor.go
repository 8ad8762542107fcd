package filters

import (
	"errors"
	"fmt"
)

// predictor post processing, applied to the decoded output of the
// Flate and LZW filters; the logic is shared by both.
// Predictor 2 is TIFF horizontal differencing, predictors 10 to 15
// are the PNG row filters.

type predictorParams struct {
	predictor int
	colors    int
	bpc       int
	columns   int
}

func processPredictorParams(name string, params Params) (out predictorParams, err error) {
	predictor := params["Predictor"]
	switch predictor {
	case 0, 1, 2, 10, 11, 12, 13, 14, 15:
	default:
		return out, fmt.Errorf("filter %s: unexpected Predictor: %d", name, predictor)
	}

	// Colors: the number of interleaved colour components per sample.
	// Valid values are 1 to 4 (PDF 1.0) and 1 or greater (PDF 1.3).
	colors, found := params["Colors"]
	if !found {
		colors = 1
	} else if colors <= 0 {
		return out, fmt.Errorf("filter %s: Colors must be > 0, got %d", name, colors)
	}

	// BitsPerComponent: valid values are 1, 2, 4, 8 and (PDF 1.5) 16.
	bpc, found := params["BitsPerComponent"]
	if !found {
		bpc = 8
	} else {
		switch bpc {
		case 1, 2, 4, 8, 16:
		default:
			return out, fmt.Errorf("filter %s: unexpected BitsPerComponent: %d", name, bpc)
		}
	}

	// Columns: the number of samples in each row. Default value: 1.
	columns, found := params["Columns"]
	if !found {
		columns = 1
	} else if columns <= 0 {
		return out, fmt.Errorf("filter %s: Columns must be > 0, got %d", name, columns)
	}

	return predictorParams{predictor: predictor, colors: colors, bpc: bpc, columns: columns}, nil
}

func (f predictorParams) rowSize() int {
	return f.bpc * f.colors * f.columns / 8
}

func (f predictorParams) bytesPerPixel() int {
	return (f.bpc*f.colors + 7) / 8
}

// decodePostProcess undoes the prediction on decompressed data.
func (f predictorParams) decodePostProcess(data []byte) ([]byte, error) {
	if f.predictor == 0 || f.predictor == 1 { // nothing to do
		return data, nil
	}

	bytesPerPixel := f.bytesPerPixel()
	rowSize := f.rowSize()
	if f.predictor != 2 {
		// PNG prediction uses a filter byte prefixing each row
		rowSize++
	}
	if rowSize == 0 || len(data)%rowSize != 0 {
		return nil, fmt.Errorf("predictor: invalid data length %d for row size %d", len(data), rowSize)
	}

	var out []byte
	pr := make([]byte, rowSize) // previous row, zero for the first one
	for i := 0; i < len(data); i += rowSize {
		cr := data[i : i+rowSize]
		d, err := undoRow(pr, cr, f.predictor, f.colors, bytesPerPixel)
		if err != nil {
			return nil, err
		}
		out = append(out, d...)
		pr = cr
	}
	return out, nil
}

// encodePreProcess applies the prediction before compression.
func (f predictorParams) encodePreProcess(data []byte) ([]byte, error) {
	if f.predictor == 0 || f.predictor == 1 {
		return data, nil
	}

	rowSize := f.rowSize()
	if rowSize == 0 || len(data)%rowSize != 0 {
		return nil, fmt.Errorf("predictor: invalid data length %d for row size %d", len(data), rowSize)
	}

	if f.predictor == 2 { // TIFF horizontal differencing
		out := append([]byte(nil), data...)
		for i := 0; i < len(out); i += rowSize {
			forwardHorDiff(out[i:i+rowSize], f.colors)
		}
		return out, nil
	}

	// PNG predictors: the decoder accepts any per-row filter, so the
	// None filter keeps the encoder simple and reversible
	out := make([]byte, 0, len(data)+len(data)/rowSize)
	for i := 0; i < len(data); i += rowSize {
		out = append(out, 0)
		out = append(out, data[i:i+rowSize]...)
	}
	return out, nil
}

func undoRow(pr, cr []byte, predictor, colors, bytesPerPixel int) ([]byte, error) {
	if predictor == 2 { // TIFF
		return undoHorDiff(cr, colors)
	}

	cdat := cr[1:]
	pdat := pr[1:]

	// The value of Predictor supplied by the decoding filter need not
	// match the value used when the data was encoded, if both are
	// greater than or equal to 10: the row filter byte rules.
	switch cr[0] {
	case 0: // None
	case 1: // Sub
		for i := bytesPerPixel; i < len(cdat); i++ {
			cdat[i] += cdat[i-bytesPerPixel]
		}
	case 2: // Up
		for i, p := range pdat {
			cdat[i] += p
		}
	case 3: // Average
		for i := 0; i < bytesPerPixel && i < len(cdat); i++ {
			cdat[i] += pdat[i] / 2
		}
		for i := bytesPerPixel; i < len(cdat); i++ {
			cdat[i] += uint8((int(cdat[i-bytesPerPixel]) + int(pdat[i])) / 2)
		}
	case 4: // Paeth
		filterPaeth(cdat, pdat, bytesPerPixel)
	default:
		return nil, fmt.Errorf("predictor: invalid PNG row filter %d", cr[0])
	}
	return cdat, nil
}

// this works for 8 bits per component only
func undoHorDiff(row []byte, colors int) ([]byte, error) {
	if len(row)%colors != 0 {
		return nil, errors.New("predictor: invalid TIFF row")
	}
	for i := 1; i < len(row)/colors; i++ {
		for j := 0; j < colors; j++ {
			row[i*colors+j] += row[(i-1)*colors+j]
		}
	}
	return row, nil
}

func forwardHorDiff(row []byte, colors int) {
	for i := len(row)/colors - 1; i >= 1; i-- {
		for j := 0; j < colors; j++ {
			row[i*colors+j] -= row[(i-1)*colors+j]
		}
	}
}

func abs32(x int32) int32 {
	m := x >> 31
	return (x ^ m) - m
}

// filterPaeth applies the Paeth filter to the cdat slice.
// cdat is the current row's data, pdat is the previous row's data.
func filterPaeth(cdat, pdat []byte, bytesPerPixel int) {
	var a, b, c, pa, pb, pc int32
	for i := 0; i < bytesPerPixel; i++ {
		a, c = 0, 0
		for j := i; j < len(cdat); j += bytesPerPixel {
			b = int32(pdat[j])
			pa = b - c
			pb = a - c
			pc = abs32(pa + pb)
			pa = abs32(pa)
			pb = abs32(pb)
			if pa <= pb && pa <= pc {
				// no-op
			} else if pb <= pc {
				a = b
			} else {
				a = c
			}
			a += int32(cdat[j])
			a &= 0xff
			cdat[j] = uint8(a)
			c = b
		}
	}
}
