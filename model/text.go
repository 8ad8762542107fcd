package model

import (
	"golang.org/x/text/encoding/unicode"
)

// text strings use one of two encodings: the single-byte
// PDFDocEncoding, or UTF-16BE introduced by a byte order mark

var utf16Enc = unicode.UTF16(unicode.BigEndian, unicode.UseBOM)

func utf16BEEncode(s string) []byte {
	out, err := utf16Enc.NewEncoder().Bytes([]byte(s))
	if err != nil { // cannot happen: the encoder replaces invalid runes
		return nil
	}
	return out
}

func utf16BEDecode(b []byte) (string, error) {
	out, err := utf16Enc.NewDecoder().Bytes(b)
	return string(out), err
}

// pdfDocEncoding maps the bytes differing from Latin-1 to their
// unicode value. The other bytes are identity.
var pdfDocEncoding = map[byte]rune{
	0x18: '˘', // breve
	0x19: 'ˇ', // caron
	0x1a: 'ˆ', // circumflex
	0x1b: '˙', // dotaccent
	0x1c: '˝', // hungarumlaut
	0x1d: '˛', // ogonek
	0x1e: '˚', // ring
	0x1f: '˜', // tilde
	0x80: '•', // bullet
	0x81: '†', // dagger
	0x82: '‡', // daggerdbl
	0x83: '…', // ellipsis
	0x84: '—', // emdash
	0x85: '–', // endash
	0x86: 'ƒ', // florin
	0x87: '⁄', // fraction
	0x88: '‹', // guilsinglleft
	0x89: '›', // guilsinglright
	0x8a: '−', // minus
	0x8b: '‰', // perthousand
	0x8c: '„', // quotedblbase
	0x8d: '“', // quotedblleft
	0x8e: '”', // quotedblright
	0x8f: '‘', // quoteleft
	0x90: '’', // quoteright
	0x91: '‚', // quotesinglbase
	0x92: '™', // trademark
	0x93: 'ﬁ', // fi
	0x94: 'ﬂ', // fl
	0x95: 'Ł', // Lslash
	0x96: 'Œ', // OE
	0x97: 'Š', // Scaron
	0x98: 'Ÿ', // Ydieresis
	0x99: 'Ž', // Zcaron
	0x9a: 'ı', // dotlessi
	0x9b: 'ł', // lslash
	0x9c: 'œ', // oe
	0x9d: 'š', // scaron
	0x9e: 'ž', // zcaron
	0x9f: 0xfffd, // undefined
	0xa0: '€',    // Euro
	0xad: 0xfffd, // undefined
}

var pdfDocEncodingReverse = map[rune]byte{}

func init() {
	for b, r := range pdfDocEncoding {
		if r == 0xfffd {
			continue
		}
		pdfDocEncodingReverse[r] = b
	}
}

// pdfDocEncodingToString decodes a PDFDocEncoding byte sequence.
func pdfDocEncodingToString(b []byte) string {
	runes := make([]rune, 0, len(b))
	for _, c := range b {
		if r, has := pdfDocEncoding[c]; has {
			runes = append(runes, r)
		} else {
			runes = append(runes, rune(c))
		}
	}
	return string(runes)
}

// stringToPDFDocEncoding encodes `s`, returning false if some rune
// has no PDFDocEncoding form.
func stringToPDFDocEncoding(s string) ([]byte, bool) {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if b, has := pdfDocEncodingReverse[r]; has {
			out = append(out, b)
			continue
		}
		if r > 0xff {
			return nil, false
		}
		b := byte(r)
		// bytes remapped by the table do not mean their Latin-1 value
		if _, remapped := pdfDocEncoding[b]; remapped {
			return nil, false
		}
		out = append(out, b)
	}
	return out, true
}
