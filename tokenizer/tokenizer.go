// Package tokenizer implements the lowest level of processing of PDF
// files: splitting a byte stream into lexical tokens, with byte
// positions tracked from the start of the input.
//
// The tokenizer is pull-based: the caller requests the next token,
// and one token of look-ahead (plus a second, to recognize indirect
// references) is available without consuming.
package tokenizer

import (
	"fmt"
	"io"
	"strconv"
)

// Kind is the type of a token.
type Kind uint8

const (
	EOF Kind = iota
	Float
	Integer
	String    // a literal string, already unescaped
	StringHex // an hex string, already decoded
	Name      // a name, with #hh escapes decoded
	Comment
	StartArray
	EndArray
	StartDic
	EndDic
	Other // keywords and content stream operators
)

func (k Kind) String() string {
	switch k {
	case EOF:
		return "EOF"
	case Float:
		return "Float"
	case Integer:
		return "Integer"
	case String:
		return "String"
	case StringHex:
		return "StringHex"
	case Name:
		return "Name"
	case Comment:
		return "Comment"
	case StartArray:
		return "StartArray"
	case EndArray:
		return "EndArray"
	case StartDic:
		return "StartDic"
	case EndDic:
		return "EndDic"
	case Other:
		return "Other"
	default:
		return "<invalid token>"
	}
}

// IsWhitespace returns true for the six PDF white space characters.
func IsWhitespace(ch byte) bool {
	switch ch {
	case 0, 9, 10, 12, 13, 32:
		return true
	default:
		return false
	}
}

// IsDelimiter returns true for white space and delimiter characters.
func IsDelimiter(ch byte) bool {
	switch ch {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return IsWhitespace(ch)
	}
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

// Token is a basic piece of information. `Value` must be interpreted
// according to `Kind`, which is left to parsing packages.
type Token struct {
	Value []byte
	Pos   int // byte offset of the first byte of the token
	Kind  Kind
}

// Int returns the integer value of the token,
// also accepting float values and rounding them.
func (t Token) Int() (int64, error) {
	if t.Kind == Integer {
		return strconv.ParseInt(string(t.Value), 10, 64)
	}
	f, err := t.Float()
	return int64(f), err
}

// Float returns the numeric value of the token.
func (t Token) Float() (float64, error) {
	return strconv.ParseFloat(string(t.Value), 64)
}

// IsOther returns true for a keyword token with the given value.
func (t Token) IsOther(value string) bool {
	return t.Kind == Other && string(t.Value) == value
}

func (t Token) String() string {
	return fmt.Sprintf("%s<%s>", t.Kind, t.Value)
}

// SyntaxError is the error returned by the tokenizer: it carries the
// byte position of the offending input.
type SyntaxError struct {
	Pos    int
	Reason string
}

func (s SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at byte %d: %s", s.Pos, s.Reason)
}

// Tokenizer splits its input into tokens. The input is either a byte
// slice, or an io.Reader buffered on demand; in both cases positions
// are counted in bytes from the start of the input.
type Tokenizer struct {
	src io.Reader // nil when the whole input is in data
	eof bool      // true when src is exhausted

	data []byte
	pos  int // position of the byte to read next

	// KeepComments preserves Comment tokens in the stream; by
	// default comments between tokens are discarded.
	KeepComments bool

	// the two next tokens, to offer cheap PeekToken and
	// PeekPeekToken methods
	ahead      [2]Token
	aheadErr   [2]error
	aheadEnd   int  // value of pos after ahead[0]
	aheadEOL   bool // an end-of-line was crossed before ahead[0]
	aheadValid bool
}

// NewTokenizer uses a byte slice as input.
func NewTokenizer(data []byte) *Tokenizer {
	return &Tokenizer{data: data, eof: true}
}

// NewTokenizerFromReader buffers the reader content as needed.
// Note that the tokenizer will not seek back: when mixing direct reads
// and tokenizing, the caller must create a new tokenizer.
func NewTokenizerFromReader(src io.Reader) *Tokenizer {
	return &Tokenizer{src: src}
}

const readChunkSize = 4096

// grow the buffer so that at least pos+n bytes are available,
// or eof is set
func (tk *Tokenizer) fill(n int) {
	for !tk.eof && tk.pos+n > len(tk.data) {
		chunk := make([]byte, readChunkSize)
		read, err := tk.src.Read(chunk)
		tk.data = append(tk.data, chunk[:read]...)
		if err != nil {
			tk.eof = true
		}
	}
}

// return false at the end of the input
func (tk *Tokenizer) read() (byte, bool) {
	tk.fill(1)
	if tk.pos >= len(tk.data) {
		return 0, false
	}
	ch := tk.data[tk.pos]
	tk.pos++
	return ch, true
}

func (tk *Tokenizer) refreshAhead() {
	if tk.aheadValid {
		return
	}
	savedPos := tk.pos
	tk.ahead[0], tk.aheadEOL, tk.aheadErr[0] = tk.nextTokenSkipComments()
	tk.aheadEnd = tk.pos
	tk.ahead[1], _, tk.aheadErr[1] = tk.nextTokenSkipComments()
	tk.pos = savedPos
	tk.aheadValid = true
}

func (tk *Tokenizer) nextTokenSkipComments() (Token, bool, error) {
	t, eol, err := tk.nextToken()
	for err == nil && t.Kind == Comment && !tk.KeepComments {
		var e bool
		t, e, err = tk.nextToken()
		eol = eol || e
	}
	return t, eol, err
}

// PeekToken reads a token but does not advance the position.
func (tk *Tokenizer) PeekToken() (Token, error) {
	tk.refreshAhead()
	return tk.ahead[0], tk.aheadErr[0]
}

// PeekPeekToken reads the token after the next one, without advancing
// the position. It is needed to recognize indirect references.
func (tk *Tokenizer) PeekPeekToken() (Token, error) {
	tk.refreshAhead()
	return tk.ahead[1], tk.aheadErr[1]
}

// NextToken reads a token and advances (consuming the token).
// At the end of the input, no error is returned, but an EOF token.
func (tk *Tokenizer) NextToken() (Token, error) {
	tk.refreshAhead()
	t, err := tk.ahead[0], tk.aheadErr[0]
	tk.pos = tk.aheadEnd
	tk.aheadValid = false
	return t, err
}

// HasEOLBeforeToken reports whether an end-of-line marker stands
// between the current position and the next token.
func (tk *Tokenizer) HasEOLBeforeToken() bool {
	tk.refreshAhead()
	return tk.aheadEOL
}

// CurrentPosition returns the position of the next token.
// It may be passed to SetPosition to rewind.
func (tk *Tokenizer) CurrentPosition() int {
	tk.refreshAhead()
	return tk.ahead[0].Pos
}

// SetPosition seeks to the absolute byte position `pos`.
func (tk *Tokenizer) SetPosition(pos int) {
	tk.pos = pos
	tk.aheadValid = false
}

// StreamPosition returns the position of the first byte of a stream
// body, assuming the `stream` keyword was just consumed: the keyword
// shall be followed by exactly one end-of-line (LF or CRLF).
func (tk *Tokenizer) StreamPosition() int {
	pos := tk.pos
	tk.fill(pos + 2 - tk.pos)
	if pos < len(tk.data) && tk.data[pos] == '\r' {
		pos++
	}
	if pos < len(tk.data) && tk.data[pos] == '\n' {
		pos++
	}
	return pos
}

// Bytes returns `count` bytes starting at the absolute position
// `offset`, or less if the input is exhausted.
func (tk *Tokenizer) Bytes(offset, count int) []byte {
	tk.fill(offset + count - tk.pos)
	if offset > len(tk.data) {
		return nil
	}
	end := offset + count
	if end > len(tk.data) {
		end = len(tk.data)
	}
	return tk.data[offset:end]
}

// SkipBytes advances the position by `count` bytes.
func (tk *Tokenizer) SkipBytes(count int) {
	tk.fill(count)
	tk.pos += count
	if tk.pos > len(tk.data) {
		tk.pos = len(tk.data)
	}
	tk.aheadValid = false
}

// fromHexChar converts a hex character into its value and a success flag.
func fromHexChar(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return c, false
}

// nextToken reads one token starting at tk.pos, skipping white space
// and comments, and leaves tk.pos after the token.
// It also reports whether an end-of-line was crossed.
func (tk *Tokenizer) nextToken() (Token, bool, error) {
	sawEOL := false
	ch, ok := tk.read()
	for ok && IsWhitespace(ch) {
		if ch == '\n' || ch == '\r' {
			sawEOL = true
		}
		ch, ok = tk.read()
	}
	if !ok {
		return Token{Kind: EOF, Pos: tk.pos}, sawEOL, nil
	}

	start := tk.pos - 1
	var outBuf []byte
	switch ch {
	case '[':
		return Token{Kind: StartArray, Pos: start}, sawEOL, nil
	case ']':
		return Token{Kind: EndArray, Pos: start}, sawEOL, nil
	case '/':
		for {
			ch, ok = tk.read()
			if !ok || IsDelimiter(ch) {
				break
			}
			if ch == '#' {
				h1, _ := tk.read()
				h2, ok2 := tk.read()
				v1, ok1 := fromHexChar(h1)
				v2, ok2b := fromHexChar(h2)
				if !ok2 || !ok1 || !ok2b {
					return Token{}, sawEOL, SyntaxError{Pos: start, Reason: "corrupt name object"}
				}
				outBuf = append(outBuf, v1<<4+v2)
				continue
			}
			outBuf = append(outBuf, ch)
		}
		if ok { // the delimiter may be important, don't skip it
			tk.pos--
		}
		return Token{Kind: Name, Value: outBuf, Pos: start}, sawEOL, nil
	case '>':
		ch, _ = tk.read()
		if ch != '>' {
			return Token{}, sawEOL, SyntaxError{Pos: start, Reason: "'>' not expected"}
		}
		return Token{Kind: EndDic, Pos: start}, sawEOL, nil
	case '<':
		return tk.readHexStringOrDict(start, sawEOL)
	case '%':
		for ok && ch != '\r' && ch != '\n' {
			outBuf = append(outBuf, ch)
			ch, ok = tk.read()
		}
		if ok {
			tk.pos--
		}
		return Token{Kind: Comment, Value: outBuf[1:], Pos: start}, sawEOL, nil
	case '(':
		return tk.readLiteralString(start, sawEOL)
	default:
		tk.pos-- // we need the test char
		if token, isNumber := tk.readNumber(); isNumber {
			token.Pos = start
			return token, sawEOL, nil
		}
		ch, ok = tk.read() // we went back before trying a number
		outBuf = append(outBuf, ch)
		for {
			ch, ok = tk.read()
			if !ok || IsDelimiter(ch) {
				break
			}
			outBuf = append(outBuf, ch)
		}
		if ok {
			tk.pos--
		}
		return Token{Kind: Other, Value: outBuf, Pos: start}, sawEOL, nil
	}
}

func (tk *Tokenizer) readHexStringOrDict(start int, sawEOL bool) (Token, bool, error) {
	v1, ok1 := tk.read()
	if v1 == '<' {
		return Token{Kind: StartDic, Pos: start}, sawEOL, nil
	}
	var outBuf []byte
	for {
		for ok1 && IsWhitespace(v1) {
			v1, ok1 = tk.read()
		}
		if !ok1 {
			return Token{}, sawEOL, SyntaxError{Pos: start, Reason: "unterminated hex string"}
		}
		if v1 == '>' {
			break
		}
		h1, valid := fromHexChar(v1)
		if !valid {
			return Token{}, sawEOL, SyntaxError{Pos: start, Reason: fmt.Sprintf("invalid hex char %q", v1)}
		}
		v2, ok2 := tk.read()
		for ok2 && IsWhitespace(v2) {
			v2, ok2 = tk.read()
		}
		if !ok2 {
			return Token{}, sawEOL, SyntaxError{Pos: start, Reason: "unterminated hex string"}
		}
		if v2 == '>' { // pad the trailing nibble with 0
			outBuf = append(outBuf, h1<<4)
			break
		}
		h2, valid := fromHexChar(v2)
		if !valid {
			return Token{}, sawEOL, SyntaxError{Pos: start, Reason: fmt.Sprintf("invalid hex char %q", v2)}
		}
		outBuf = append(outBuf, h1<<4+h2)
		v1, ok1 = tk.read()
	}
	return Token{Kind: StringHex, Value: outBuf, Pos: start}, sawEOL, nil
}

func (tk *Tokenizer) readLiteralString(start int, sawEOL bool) (Token, bool, error) {
	var outBuf []byte
	nesting := 0
	for {
		ch, ok := tk.read()
		if !ok {
			return Token{}, sawEOL, SyntaxError{Pos: start, Reason: "unterminated string: unexpected EOF"}
		}
		switch ch {
		case '(':
			nesting++
			outBuf = append(outBuf, ch)
		case ')':
			if nesting == 0 {
				return Token{Kind: String, Value: outBuf, Pos: start}, sawEOL, nil
			}
			nesting--
			outBuf = append(outBuf, ch)
		case '\\':
			esc, ok := tk.read()
			if !ok {
				return Token{}, sawEOL, SyntaxError{Pos: start, Reason: "unterminated string: unexpected EOF"}
			}
			switch esc {
			case 'n':
				outBuf = append(outBuf, '\n')
			case 'r':
				outBuf = append(outBuf, '\r')
			case 't':
				outBuf = append(outBuf, '\t')
			case 'b':
				outBuf = append(outBuf, '\b')
			case 'f':
				outBuf = append(outBuf, '\f')
			case '(', ')', '\\':
				outBuf = append(outBuf, esc)
			case '\r': // escaped line break: ignored
				if next, _ := tk.read(); next != '\n' {
					tk.pos--
				}
			case '\n':
			default:
				if esc < '0' || esc > '7' { // unknown escape: the backslash is dropped
					outBuf = append(outBuf, esc)
					break
				}
				octal := esc - '0'
				for i := 0; i < 2; i++ {
					next, ok := tk.read()
					if !ok || next < '0' || next > '7' {
						if ok {
							tk.pos--
						}
						break
					}
					octal = octal<<3 + next - '0'
				}
				outBuf = append(outBuf, octal)
			}
		case '\r': // normalized to \n, as required for strings
			if next, _ := tk.read(); next != '\n' {
				tk.pos--
			}
			outBuf = append(outBuf, '\n')
		default:
			outBuf = append(outBuf, ch)
		}
	}
}

// readNumber accepts the PDF number syntax, plus two deliberate
// leniencies: scientific notation (6.02e23) which the PDF grammar forbids but
// some writers emit, and PostScript radix numbers (16#FFFE), folded to
// integers. It returns false if the input is not a number, leaving the
// position untouched.
func (tk *Tokenizer) readNumber() (Token, bool) {
	markedPos := tk.pos

	var sb, radix []byte
	c, ok := tk.read()
	hasDigit := false
	isFloat := false

	if c == '+' || c == '-' {
		sb = append(sb, c)
		c, ok = tk.read()
	}

	for ok && isDigit(c) {
		sb = append(sb, c)
		hasDigit = true
		c, ok = tk.read()
	}

	if ok && c == '.' {
		isFloat = true
		sb = append(sb, c)
		c, ok = tk.read()
		for ok && isDigit(c) {
			sb = append(sb, c)
			hasDigit = true
			c, ok = tk.read()
		}
	} else if ok && c == '#' && hasDigit {
		// PostScript radix number: base#digits
		radix = sb
		sb = nil
		c, ok = tk.read()
		for ok && (isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
			sb = append(sb, c)
			c, ok = tk.read()
		}
		if len(sb) == 0 {
			tk.pos = markedPos
			return Token{}, false
		}
		if ok {
			tk.pos--
		}
		intRadix, err := strconv.Atoi(string(radix))
		if err != nil || intRadix < 2 || intRadix > 36 {
			tk.pos = markedPos
			return Token{}, false
		}
		val, err := strconv.ParseInt(string(sb), intRadix, 64)
		if err != nil {
			tk.pos = markedPos
			return Token{}, false
		}
		return Token{Value: []byte(strconv.FormatInt(val, 10)), Kind: Integer}, true
	}

	if !hasDigit {
		tk.pos = markedPos
		return Token{}, false
	}

	if ok && (c == 'e' || c == 'E') {
		isFloat = true
		sb = append(sb, c)
		c, ok = tk.read()
		if ok && (c == '-' || c == '+') {
			sb = append(sb, c)
			c, ok = tk.read()
		}
		expDigit := false
		for ok && isDigit(c) {
			sb = append(sb, c)
			expDigit = true
			c, ok = tk.read()
		}
		if !expDigit {
			tk.pos = markedPos
			return Token{}, false
		}
	}

	if ok {
		if !IsDelimiter(c) { // glued to a keyword: not a number
			tk.pos = markedPos
			return Token{}, false
		}
		tk.pos--
	}

	kind := Integer
	if isFloat {
		kind = Float
	}
	return Token{Value: sb, Kind: kind}, true
}

// Tokenize consumes all the input, splitting it into tokens.
// When performance matters, use the iteration method NextToken.
func Tokenize(data []byte) ([]Token, error) {
	tk := NewTokenizer(data)
	var out []Token
	t, err := tk.NextToken()
	for ; t.Kind != EOF && err == nil; t, err = tk.NextToken() {
		if t.Kind == Comment { // comments between tokens are discarded
			continue
		}
		out = append(out, t)
	}
	return out, err
}

