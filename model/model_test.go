package model

import (
	"bytes"
	"testing"
)

func TestDictOrder(t *testing.T) {
	d := NewDict()
	d.Set("Zeta", ObjInt(1))
	d.Set("Alpha", ObjInt(2))
	d.Set("Mu", ObjInt(3))
	d.Set("Alpha", ObjInt(4)) // replacing keeps the slot

	keys := d.Keys()
	expected := []Name{"Zeta", "Alpha", "Mu"}
	if len(keys) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, keys)
	}
	for i, k := range expected {
		if keys[i] != k {
			t.Errorf("key %d: expected %s, got %s", i, k, keys[i])
		}
	}
	if d.Get("Alpha") != ObjInt(4) {
		t.Errorf("unexpected value %v", d.Get("Alpha"))
	}

	if s := d.Write(nil, 0); s != "<</Zeta 1 /Alpha 4 /Mu 3>>" {
		t.Errorf("unexpected serialization %s", s)
	}

	d.Delete("Alpha")
	if d.Len() != 2 || d.Get("Alpha") != nil {
		t.Error("Delete failed")
	}
	if s := d.Write(nil, 0); s != "<</Zeta 1 /Mu 3>>" {
		t.Errorf("unexpected serialization %s", s)
	}

	clone := d.Clone().(*ObjDict)
	clone.Set("New", ObjBool(true))
	if d.Get("New") != nil {
		t.Error("Clone is not a deep copy")
	}
}

func TestNameEscaping(t *testing.T) {
	for _, tc := range []struct {
		name     Name
		expected string
	}{
		{"Type", "/Type"},
		{"Lime Green", "/Lime#20Green"},
		{"paired()parentheses", "/paired#28#29parentheses"},
		{"A#B", "/A#23B"},
	} {
		if got := tc.name.String(); got != tc.expected {
			t.Errorf("name %q: expected %s, got %s", tc.name, tc.expected, got)
		}
	}
}

func TestFmtFloat(t *testing.T) {
	for _, tc := range []struct {
		value    float64
		expected string
	}{
		{0, "0"},
		{1.5, "1.5"},
		{-0.25, "-0.25"},
		{3, "3"},
		{1.100000, "1.1"},
	} {
		if got := FmtFloat(tc.value); got != tc.expected {
			t.Errorf("value %v: expected %s, got %s", tc.value, tc.expected, got)
		}
	}
}

func TestStringEscaping(t *testing.T) {
	if s := EscapeByteString([]byte(`a(b)\c`)); s != `(a\(b\)\\c)` {
		t.Errorf("unexpected escape %s", s)
	}
	if s := EscapeHexString([]byte{0xDE, 0xAD}); s != "<dead>" {
		t.Errorf("unexpected hex escape %s", s)
	}
	if IsPrintableLiteral([]byte{0x01}) {
		t.Error("control bytes are not printable")
	}
	if !IsPrintableLiteral([]byte("plain text\n")) {
		t.Error("plain text is printable")
	}
}

func TestTextStringEncodings(t *testing.T) {
	// PDFDocEncoding round-trip, including non ASCII
	for _, s := range []string{"Hello", "Gerþrúður", "bullet •"} {
		encoded := EncodeTextString(s)
		if got := DecodeTextString(encoded); got != s {
			t.Errorf("round-trip failed for %q: got %q (bytes %X)", s, got, encoded)
		}
	}

	// outside PDFDocEncoding: UTF-16BE with BOM
	s := "日本語 text"
	encoded := EncodeTextString(s)
	if !bytes.HasPrefix(encoded, []byte{0xFE, 0xFF}) {
		t.Fatalf("expected a UTF-16BE byte order mark, got %X", encoded)
	}
	if got := DecodeTextString(encoded); got != s {
		t.Errorf("round-trip failed for %q: got %q", s, got)
	}

	// the legacy single byte form decodes too
	if got := DecodeTextString([]byte("Ger\xfer\xfa\xf0ur")); got != "Gerþrúður" {
		t.Errorf("PDFDocEncoding decode failed: %q", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	arr := ObjArray{ObjInt(1), ObjArray{ObjName("X")}}
	clone := arr.Clone().(ObjArray)
	clone[1].(ObjArray)[0] = ObjName("Y")
	if arr[1].(ObjArray)[0] != ObjName("X") {
		t.Error("Clone is not a deep copy")
	}

	stream := ObjStream{Args: NewDict(), Content: []byte("abc")}
	stream.Args.Set("Length", ObjInt(3))
	sClone := stream.Clone().(ObjStream)
	sClone.Content[0] = 'x'
	if stream.Content[0] != 'a' {
		t.Error("stream Clone shares its content")
	}
}
