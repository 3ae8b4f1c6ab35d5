package parser

import (
	"fmt"
	"gila/token"
)

// ParseError reports the token kind the parser expected and the token it
// actually found. Parser errors are fatal: the parser never attempts
// recovery after one is raised.
type ParseError struct {
	Expected token.Kind
	Found    token.Token
	Pos      token.Position
	Message  string
}

func (e ParseError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("💥 Gila Syntax error:\nline:%d - %s", e.Pos.Line, e.Message)
	}
	return fmt.Sprintf("💥 Gila Syntax error:\nline:%d - expected %s, found %s", e.Pos.Line, e.Expected, e.Found.Kind)
}
