package tokenizer

import (
	"bytes"
	"reflect"
	"testing"
)

func tokenValues(t *testing.T, input string) []Token {
	t.Helper()
	tokens, err := Tokenize([]byte(input))
	if err != nil {
		t.Fatalf("Tokenize(%q): %s", input, err)
	}
	return tokens
}

func TestKinds(t *testing.T) {
	tokens := tokenValues(t, "<</Type /Catalog /Count 3 /F 2.5 [true false null]>>")
	expected := []Kind{StartDic, Name, Name, Name, Integer, Name, Float, StartArray, Other, Other, Other, EndArray, EndDic}
	if len(tokens) != len(expected) {
		t.Fatalf("expected %d tokens, got %v", len(expected), tokens)
	}
	for i, k := range expected {
		if tokens[i].Kind != k {
			t.Errorf("token %d: expected %s, got %s", i, k, tokens[i].Kind)
		}
	}
}

func TestLiteralStrings(t *testing.T) {
	for _, tc := range []struct {
		input, expected string
	}{
		{"(abc)", "abc"},
		{"(a(b)c)", "a(b)c"},
		{`(a\(b)`, "a(b"},
		{`(a\nb\tc)`, "a\nb\tc"},
		{`(\101\102)`, "AB"},
		{`(\0531)`, "+1"},
		{"(a\r\nb)", "a\nb"},
		{"(a\\\r\nb)", "ab"},
		{`(\z)`, "z"},
	} {
		tokens := tokenValues(t, tc.input)
		if len(tokens) != 1 || tokens[0].Kind != String {
			t.Fatalf("input %q: expected one string token, got %v", tc.input, tokens)
		}
		if string(tokens[0].Value) != tc.expected {
			t.Errorf("input %q: expected %q, got %q", tc.input, tc.expected, tokens[0].Value)
		}
	}
}

func TestHexStrings(t *testing.T) {
	for _, tc := range []struct {
		input, expected string
	}{
		{"<414243>", "ABC"},
		{"<41 42 43>", "ABC"},
		{"<4142434>", "ABC@"}, // odd digit padded with 0
		{"<>", ""},
	} {
		tokens := tokenValues(t, tc.input)
		if len(tokens) != 1 || tokens[0].Kind != StringHex {
			t.Fatalf("input %q: expected one hex string token, got %v", tc.input, tokens)
		}
		if string(tokens[0].Value) != tc.expected {
			t.Errorf("input %q: expected %q, got %q", tc.input, tc.expected, tokens[0].Value)
		}
	}
}

func TestNameEscapes(t *testing.T) {
	tokens := tokenValues(t, "/A#42C /Lime#20Green /paired#28#29parentheses")
	expected := []string{"ABC", "Lime Green", "paired()parentheses"}
	for i, e := range expected {
		if tokens[i].Kind != Name || string(tokens[i].Value) != e {
			t.Errorf("expected name %q, got %v", e, tokens[i])
		}
	}
}

func TestNumbers(t *testing.T) {
	for _, tc := range []struct {
		input string
		kind  Kind
		value string
	}{
		{"123", Integer, "123"},
		{"-98", Integer, "-98"},
		{"+17", Integer, "+17"},
		{"34.5", Float, "34.5"},
		{"-.002", Float, "-.002"},
		{"7.", Float, "7."},
		{"6.02e23", Float, "6.02e23"}, // deliberate leniency
		{"1e2", Float, "1e2"},
		{"16#FFFE", Integer, "65534"}, // PostScript radix, folded
	} {
		tokens := tokenValues(t, tc.input)
		if len(tokens) != 1 {
			t.Fatalf("input %q: expected one token, got %v", tc.input, tokens)
		}
		if tokens[0].Kind != tc.kind || string(tokens[0].Value) != tc.value {
			t.Errorf("input %q: expected %s %q, got %s %q", tc.input, tc.kind, tc.value, tokens[0].Kind, tokens[0].Value)
		}
	}
}

func TestIntegerLimits(t *testing.T) {
	tokens := tokenValues(t, "9223372036854775807 -9223372036854775808")
	v1, err1 := tokens[0].Int()
	v2, err2 := tokens[1].Int()
	if err1 != nil || err2 != nil {
		t.Fatal(err1, err2)
	}
	if v1 != 9223372036854775807 || v2 != -9223372036854775808 {
		t.Errorf("unexpected values %d %d", v1, v2)
	}
}

func TestPeekAndPositions(t *testing.T) {
	tk := NewTokenizer([]byte("1 0 obj << >> endobj"))

	p1, _ := tk.PeekToken()
	p2, _ := tk.PeekPeekToken()
	if p1.Kind != Integer || string(p1.Value) != "1" {
		t.Errorf("unexpected peek %v", p1)
	}
	if p2.Kind != Integer || string(p2.Value) != "0" {
		t.Errorf("unexpected peek-peek %v", p2)
	}

	n1, _ := tk.NextToken()
	if !reflect.DeepEqual(n1, p1) {
		t.Errorf("peek and next disagree: %v != %v", p1, n1)
	}

	save := tk.CurrentPosition()
	if save != 2 {
		t.Errorf("expected position 2, got %d", save)
	}
	_, _ = tk.NextToken()
	_, _ = tk.NextToken()
	tk.SetPosition(save)
	n2, _ := tk.NextToken()
	if string(n2.Value) != "0" {
		t.Errorf("push-back failed: got %v", n2)
	}
}

func TestStreamPosition(t *testing.T) {
	for _, tc := range []struct {
		input    string
		expected string
	}{
		{"<< /Length 3 >> stream\nabc", "abc"},
		{"<< /Length 3 >> stream\r\nabc", "abc"},
	} {
		tk := NewTokenizer([]byte(tc.input))
		for i := 0; i < 5; i++ { // consume up to the stream keyword
			_, _ = tk.NextToken()
		}
		pos := tk.StreamPosition()
		got := string(tk.Bytes(pos, 3))
		if got != tc.expected {
			t.Errorf("input %q: expected body %q, got %q", tc.input, tc.expected, got)
		}
	}
}

func TestCommentsDiscarded(t *testing.T) {
	tokens := tokenValues(t, "1 % a comment\n2")
	if len(tokens) != 2 || tokens[0].Kind != Integer || tokens[1].Kind != Integer {
		t.Fatalf("expected two integers, got %v", tokens)
	}

	tk := NewTokenizer([]byte("% kept\n1"))
	tk.KeepComments = true
	c, _ := tk.NextToken()
	if c.Kind != Comment || string(c.Value) != " kept" {
		t.Errorf("expected comment token, got %v", c)
	}
}

func TestEOLBeforeToken(t *testing.T) {
	tk := NewTokenizer([]byte("/Key\n/Value"))
	_, _ = tk.NextToken()
	if !tk.HasEOLBeforeToken() {
		t.Error("expected an EOL before the second token")
	}
}

func TestReaderInput(t *testing.T) {
	input := bytes.Repeat([]byte("<</K 1>> "), 2000) // larger than one chunk
	fromSlice, err := Tokenize(input)
	if err != nil {
		t.Fatal(err)
	}
	tk := NewTokenizerFromReader(bytes.NewReader(input))
	var fromReader []Token
	for {
		tok, err := tk.NextToken()
		if err != nil {
			t.Fatal(err)
		}
		if tok.Kind == EOF {
			break
		}
		fromReader = append(fromReader, tok)
	}
	if !reflect.DeepEqual(fromSlice, fromReader) {
		t.Error("slice and reader inputs disagree")
	}
}

func TestSyntaxErrorPosition(t *testing.T) {
	_, err := Tokenize([]byte("  <zz>"))
	se, ok := err.(SyntaxError)
	if !ok {
		t.Fatalf("expected a SyntaxError, got %v", err)
	}
	if se.Pos != 2 {
		t.Errorf("expected position 2, got %d", se.Pos)
	}
}
