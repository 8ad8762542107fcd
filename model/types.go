package model

import (
	"fmt"
	"strconv"
	"strings"
)

// implements the basic object types found in PDF files

// Object is a node of a PDF syntax tree.
//
// It is obtained from a PDF file by tokenizing and parsing its content,
// or built in memory before being serialized by the writer.
// Custom types may be used for user defined content, but care should be
// taken to handle indirect objects: when implementing Write, new objects
// must be created using CreateObject.
//
// Note that the PDF null object is represented by its own concrete type,
// so Object must never be nil.
type Object interface {
	// Write must return a PDF string representation of the object.
	// `PDFWritter` shall be used with strings and streams, so that they
	// are escaped and encrypted accordingly. This requires the object
	// number of the parent object, which should be forwarded to the
	// `PDFWritter.EncodeString` method.
	Write(w PDFWritter, context Reference) string

	// Clone must return a deep copy of the object, preserving the concrete type.
	Clone() Object
}

type ObjNull struct{}

func (ObjNull) String() string { return "<null>" }

func (ObjNull) Write(PDFWritter, Reference) string { return "null" }

func (n ObjNull) Clone() Object { return n }

// ObjBool represents a PDF boolean object.
type ObjBool bool

func (b ObjBool) Clone() Object { return b }
func (b ObjBool) Write(PDFWritter, Reference) string {
	return fmt.Sprintf("%v", bool(b))
}

// ObjInt represents a PDF integer object, stored on 64 bits.
type ObjInt int64

func (i ObjInt) Clone() Object { return i }
func (i ObjInt) Write(PDFWritter, Reference) string {
	return strconv.FormatInt(int64(i), 10)
}

// ObjFloat represents a PDF real object, stored as binary64.
// Note that equality on reals is not meaningful, and that infinites
// and NaN are rejected by the writer.
type ObjFloat float64

func (f ObjFloat) Clone() Object { return f }
func (f ObjFloat) Write(PDFWritter, Reference) string {
	return FmtFloat(float64(f))
}

// ObjName is a symbol to be referenced, compared byte-exact,
// and included in PDF files by prepending /
type ObjName string

// String returns the PDF representation of a name,
// escaping the bytes outside the regular range with #hh.
func (n ObjName) String() string {
	var b strings.Builder
	b.WriteByte('/')
	for i := 0; i < len(n); i++ {
		c := n[i]
		if c < '!' || c > '~' || isNameEscaped(c) {
			fmt.Fprintf(&b, "#%02x", c)
		} else {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// delimiters and the escape char itself must be written escaped
func isNameEscaped(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%', '#':
		return true
	default:
		return false
	}
}

func (n ObjName) Clone() Object { return n }

func (n ObjName) Write(PDFWritter, Reference) string {
	return n.String()
}

// ObjStringLiteral represents a PDF string object, written
// in its literal (parenthesized) form.
// Its content is the raw (unescaped, decrypted) byte sequence:
// escaping and encryption are applied when writing.
type ObjStringLiteral string

func (s ObjStringLiteral) Clone() Object { return s }

func (s ObjStringLiteral) Write(w PDFWritter, context Reference) string {
	if w == nil {
		return EscapeByteString([]byte(s))
	}
	return w.EncodeString(string(s), ByteString, context)
}

// ObjHexLiteral represents a PDF string object, written in hexadecimal
// form. Its content is stored decoded, and will be transformed when
// writing to a PDF file.
type ObjHexLiteral string

func (h ObjHexLiteral) Clone() Object { return h }

func (h ObjHexLiteral) Write(w PDFWritter, context Reference) string {
	if w == nil {
		return EscapeHexString([]byte(h))
	}
	return w.EncodeString(string(h), HexString, context)
}

// IsString returns the content and true if `o` is either an
// ObjStringLiteral or an ObjHexLiteral.
// The returned string is a raw byte sequence, not always UTF-8.
func IsString(o Object) (string, bool) {
	switch s := o.(type) {
	case ObjStringLiteral:
		return string(s), true
	case ObjHexLiteral:
		return string(s), true
	default:
		return "", false
	}
}

// IsNumber returns the value and true if `o` is either an
// ObjFloat or an ObjInt.
func IsNumber(o Object) (float64, bool) {
	switch t := o.(type) {
	case ObjFloat:
		return float64(t), true
	case ObjInt:
		return float64(t), true
	default:
		return 0, false
	}
}

// ObjIndirectRef is a reference to an indirect object,
// identified by its object and generation numbers.
// Equality is (number, generation) exact.
type ObjIndirectRef struct {
	ObjectNumber     int
	GenerationNumber int
}

func (ir ObjIndirectRef) Clone() Object { return ir }

func (ir ObjIndirectRef) Write(PDFWritter, Reference) string {
	return fmt.Sprintf("%d %d R", ir.ObjectNumber, ir.GenerationNumber)
}

// ObjCommand is a PDF operator, only found in content streams.
type ObjCommand string

func (cmd ObjCommand) Clone() Object { return cmd }

func (cmd ObjCommand) Write(PDFWritter, Reference) string {
	return string(cmd)
}

// ObjArray represents a PDF array object.
type ObjArray []Object

func (arr ObjArray) Clone() Object {
	out := make(ObjArray, len(arr))
	for i, v := range arr {
		out[i] = v.Clone()
	}
	return out
}

func (arr ObjArray) Write(w PDFWritter, context Reference) string {
	chunks := make([]string, len(arr))
	for i, o := range arr {
		chunks[i] = o.Write(w, context)
	}
	return "[" + strings.Join(chunks, " ") + "]"
}

// ObjStream is a stream object: a dictionary and a byte body.
// `Content` is the filtered body, without encryption: the reader
// decrypts it when resolving the object, and the writer encrypts it
// when writing.
type ObjStream struct {
	Args    *ObjDict
	Content []byte
}

func (stream ObjStream) Clone() Object {
	out := ObjStream{Content: append([]byte(nil), stream.Content...)}
	if stream.Args != nil {
		out.Args = stream.Args.Clone().(*ObjDict)
	}
	return out
}

// the Crypt filter marks a stream which bypasses encryption
func (stream ObjStream) bypassEncrypt() bool {
	fs := stream.Args.Get("Filter")
	if fs, ok := fs.(ObjArray); ok {
		return len(fs) >= 1 && fs[0] == ObjName("Crypt")
	}
	return fs == ObjName("Crypt")
}

func (stream ObjStream) Write(w PDFWritter, context Reference) string {
	if w == nil { // should never happen
		return ""
	}
	// a stream is always an indirect object: hoist it
	ref := w.CreateObject()

	header := StreamHeader{BypassCrypt: stream.bypassEncrypt()}
	for _, k := range stream.Args.Keys() {
		header.SetField(k, stream.Args.Get(k).Write(w, ref))
	}

	w.WriteStream(header, stream.Content, ref)
	return ref.String()
}

// Name is so used that it deserves a shorter alias
type Name = ObjName

// Rectangle is the content of a 4-number array, such as /MediaBox.
type Rectangle struct {
	Llx, Lly, Urx, Ury float64
}

// RectangleFromArray resolves a 4-number array into a Rectangle.
func RectangleFromArray(arr ObjArray) (Rectangle, bool) {
	if len(arr) != 4 {
		return Rectangle{}, false
	}
	var out [4]float64
	for i, o := range arr {
		v, ok := IsNumber(o)
		if !ok {
			return Rectangle{}, false
		}
		out[i] = v
	}
	return Rectangle{Llx: out[0], Lly: out[1], Urx: out[2], Ury: out[3]}, true
}
