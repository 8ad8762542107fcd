package file

import "fmt"

// WarningCode categorizes the recoverable malformations found when
// reading a file under lenient options.
type WarningCode uint8

const (
	// StreamLengthCorrected: the declared stream Length was wrong and
	// the actual end was found by scanning for `endstream`.
	StreamLengthCorrected WarningCode = iota
	// StreamDecodePartial: a filter failed on malformed input; the
	// longest valid prefix was kept and the stream flagged as partial.
	StreamDecodePartial
	// SyntaxRecovered: a syntax error was skipped.
	SyntaxRecovered
	// XrefRepaired: the xref table was rebuilt or patched.
	XrefRepaired
)

func (c WarningCode) String() string {
	switch c {
	case StreamLengthCorrected:
		return "StreamLengthCorrected"
	case StreamDecodePartial:
		return "StreamDecodePartial"
	case SyntaxRecovered:
		return "SyntaxRecovered"
	case XrefRepaired:
		return "XrefRepaired"
	default:
		return "<invalid warning code>"
	}
}

// Warning is a non-fatal issue encountered while processing a file.
// Warnings are collected on the store and never printed.
type Warning struct {
	Msg  string
	Pos  int64 // byte position, or -1
	Code WarningCode
}

func (w Warning) String() string {
	if w.Pos >= 0 {
		return fmt.Sprintf("[%s] at byte %d: %s", w.Code, w.Pos, w.Msg)
	}
	return fmt.Sprintf("[%s] %s", w.Code, w.Msg)
}

func (ctx *context) warnf(code WarningCode, pos int64, format string, args ...interface{}) {
	ctx.warnings = append(ctx.warnings, Warning{
		Code: code, Pos: pos, Msg: fmt.Sprintf(format, args...),
	})
}
