package parser

import (
	"fmt"

	"github.com/wirl-lang/wirl/internal/wirl/lexer"
)

// ParseError reports a WIRL source file that does not conform to the grammar.
type ParseError struct {
	Line, Column int
	Unexpected   string
	Msg          string
}

func (e *ParseError) Error() string {
	if e.Unexpected != "" {
		return fmt.Sprintf("%d:%d: %s (unexpected %s)", e.Line, e.Column, e.Msg, e.Unexpected)
	}
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Msg)
}

func errAt(tok lexer.Token, msg string) *ParseError {
	return &ParseError{Line: tok.Line, Column: tok.Column, Unexpected: tok.String(), Msg: msg}
}
