package parser

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/benoitkugler/pdfcore/model"
	tkn "github.com/benoitkugler/pdfcore/tokenizer"
)

func doTestParseObjectOK(parseString string, t *testing.T) model.Object {
	t.Helper()
	o, err := ParseObject([]byte(parseString))
	if err != nil {
		t.Fatalf("ParseObject from byte slice failed: <%v>\n%s", err, parseString)
	}

	pr := NewParserFromTokenizer(tkn.NewTokenizerFromReader(bytes.NewReader([]byte(parseString))))
	o2, err := pr.ParseObject()
	if err != nil {
		t.Fatalf("ParseObject from reader failed: <%v>\n%s", err, parseString)
	}
	if !reflect.DeepEqual(o, o2) {
		t.Errorf("expected same results, got %v and %v", o, o2)
	}
	return o
}

func doTestParseObjectFail(parseString string, t *testing.T) {
	t.Helper()
	if _, err := ParseObject([]byte(parseString)); err == nil {
		t.Errorf("ParseObject should have returned an error for %s", parseString)
	}
}

func TestScalars(t *testing.T) {
	if o := doTestParseObjectOK("null", t); o != (model.ObjNull{}) {
		t.Errorf("expected null, got %v", o)
	}
	if o := doTestParseObjectOK("true", t); o != Bool(true) {
		t.Errorf("expected true, got %v", o)
	}
	if o := doTestParseObjectOK("-42", t); o != Integer(-42) {
		t.Errorf("expected -42, got %v", o)
	}
	if o := doTestParseObjectOK("1.5", t); o != Float(1.5) {
		t.Errorf("expected 1.5, got %v", o)
	}
	if o := doTestParseObjectOK("/Name", t); o != Name("Name") {
		t.Errorf("expected /Name, got %v", o)
	}
	if o := doTestParseObjectOK("(text)", t); o != StringLiteral("text") {
		t.Errorf("expected string, got %v", o)
	}
	if o := doTestParseObjectOK("<DEAD>", t); o != HexLiteral("\xde\xad") {
		t.Errorf("expected hex string, got %v", o)
	}
}

func TestReferences(t *testing.T) {
	o := doTestParseObjectOK("12 3 R", t)
	if o != (IndirectRef{ObjectNumber: 12, GenerationNumber: 3}) {
		t.Errorf("expected a reference, got %v", o)
	}

	// two integers not followed by R stay integers
	p := NewParser([]byte("12 3 4"))
	o1, _ := p.ParseObject()
	o2, _ := p.ParseObject()
	o3, _ := p.ParseObject()
	if o1 != Integer(12) || o2 != Integer(3) || o3 != Integer(4) {
		t.Errorf("unexpected objects %v %v %v", o1, o2, o3)
	}

	// references inside containers
	o = doTestParseObjectOK("[1 0 R 2 15 R 3]", t)
	arr := o.(Array)
	expected := Array{
		IndirectRef{ObjectNumber: 1},
		IndirectRef{ObjectNumber: 2, GenerationNumber: 15},
		Integer(3),
	}
	if !reflect.DeepEqual(arr, expected) {
		t.Errorf("expected %v, got %v", expected, arr)
	}
}

func TestDicts(t *testing.T) {
	o := doTestParseObjectOK("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>", t)
	d := o.(*Dict)
	if d.Get("Type") != Name("Page") {
		t.Errorf("unexpected Type %v", d.Get("Type"))
	}
	if d.Get("Parent") != (IndirectRef{ObjectNumber: 2}) {
		t.Errorf("unexpected Parent %v", d.Get("Parent"))
	}
	if len(d.Get("MediaBox").(Array)) != 4 {
		t.Errorf("unexpected MediaBox %v", d.Get("MediaBox"))
	}

	// a null value is equivalent to omitting the entry
	o = doTestParseObjectOK("<< /A null /B 1 >>", t)
	d = o.(*Dict)
	if d.Len() != 1 || d.Get("A") != nil {
		t.Errorf("null value should be omitted: %v", d)
	}

	doTestParseObjectFail("<< /A 1", t)
	doTestParseObjectFail("<< 1 2 >>", t)
	doTestParseObjectFail("<< /A 1 /A 2 >>", t)

	// lenient mode: the first value wins
	p := NewParser([]byte("<< /A 1 /A 2 >>"))
	p.Lenient = true
	od, err := p.ParseObject()
	if err != nil {
		t.Fatal(err)
	}
	if od.(*Dict).Get("A") != Integer(1) {
		t.Errorf("expected the first value, got %v", od.(*Dict).Get("A"))
	}
}

func TestArrays(t *testing.T) {
	doTestParseObjectOK("[]", t)
	doTestParseObjectOK("[[[]]]", t)
	doTestParseObjectFail("[1 2", t)
	doTestParseObjectFail("]", t)
}

func TestDeepNesting(t *testing.T) {
	// way past the recursion cap: the explicit work stack takes over
	depth := 5000
	input := strings.Repeat("[", depth) + "1" + strings.Repeat("]", depth)
	o, err := ParseObject([]byte(input))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < depth; i++ {
		arr, ok := o.(Array)
		if !ok || len(arr) != 1 {
			t.Fatalf("level %d: unexpected %T", i, o)
		}
		o = arr[0]
	}
	if o != Integer(1) {
		t.Errorf("expected 1 at the bottom, got %v", o)
	}

	// dictionaries too
	input = strings.Repeat("<< /K ", depth) + "1" + strings.Repeat(" >>", depth)
	o, err = ParseObject([]byte(input))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < depth; i++ {
		d, ok := o.(*Dict)
		if !ok || d.Len() != 1 {
			t.Fatalf("level %d: unexpected %T", i, o)
		}
		o = d.Get("K")
	}
	if o != Integer(1) {
		t.Errorf("expected 1 at the bottom, got %v", o)
	}
}

func TestObjectDefinition(t *testing.T) {
	number, generation, o, err := ParseObjectDefinition([]byte("12 0 obj << /A 1 >> endobj"), false)
	if err != nil {
		t.Fatal(err)
	}
	if number != 12 || generation != 0 {
		t.Errorf("unexpected identity %d %d", number, generation)
	}
	if o.(*Dict).Get("A") != Integer(1) {
		t.Errorf("unexpected object %v", o)
	}

	number, generation, o, err = ParseObjectDefinition([]byte("7 1 obj"), true)
	if err != nil || o != nil || number != 7 || generation != 1 {
		t.Errorf("header only parse failed: %d %d %v %v", number, generation, o, err)
	}

	_, _, _, err = ParseObjectDefinition([]byte("x 0 obj"), true)
	if err == nil {
		t.Error("expected an error")
	}
}

func TestContentStreamMode(t *testing.T) {
	p := NewParser([]byte("BT /F1 12 Tf ET"))
	p.ContentStreamMode = true
	o, err := p.ParseObject()
	if err != nil || o != Command("BT") {
		t.Errorf("unexpected %v %v", o, err)
	}

	p = NewParser([]byte("Tj"))
	if _, err := p.ParseObject(); err == nil {
		t.Error("commands outside content streams are an error")
	}
}

func TestParseFilters(t *testing.T) {
	d, err := ParseObject([]byte("<< /Filter [/ASCIIHexDecode /FlateDecode] /DecodeParms [null << /Predictor 12 /Columns 4 >>] >>"))
	if err != nil {
		t.Fatal(err)
	}
	dict := d.(*Dict)
	fs, err := ParseDirectFilters(dict.Get("Filter"), dict.Get("DecodeParms"))
	if err != nil {
		t.Fatal(err)
	}
	if len(fs) != 2 || fs[0].Name != model.ASCIIHex || fs[1].Name != model.Flate {
		t.Fatalf("unexpected filters %v", fs)
	}
	if fs[1].DecodeParms["Predictor"] != 12 || fs[1].DecodeParms["Columns"] != 4 {
		t.Errorf("unexpected parameters %v", fs[1].DecodeParms)
	}

	// a single name is accepted
	fs, err = ParseDirectFilters(Name("FlateDecode"), nil)
	if err != nil || len(fs) != 1 {
		t.Fatalf("unexpected %v %v", fs, err)
	}

	// encode then decode is the identity
	content := []byte("some content to be filtered, repeated repeated repeated")
	encoded, err := EncodeStream(fs, content)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeStream(fs, encoded)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded, content) {
		t.Error("stream filter round-trip failed")
	}
}
