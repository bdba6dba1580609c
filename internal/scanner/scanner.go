// Package scanner splits literal text into alternating text and ${...}
// template expression regions in a single forward pass.
package scanner

import "strings"

// Handler receives the segments found by Scan.
type Handler interface {
	OnText(text string)
	OnExpression(text string, line, column int)
	OnUnterminatedExpression(text string)
	OnPossibleExpressionStart(line, column int)
}

// Lines and columns are 1-based. CR and LF each start a new line.
type state struct {
	h Handler

	inExpr    bool
	level     int
	inSingle  bool
	inDouble  bool
	inComment bool

	pendingDollar    bool
	pendingBackslash bool
	pendingSlash     bool

	line, col  int
	dollarLine int
	dollarCol  int
	startLine  int

	text strings.Builder
	expr strings.Builder
}

// Scan feeds input through the scanner and reports segments to h.
func Scan(input string, h Handler) {
	s := &state{h: h, line: 1}
	for _, c := range input {
		s.step(c)
	}
	s.finish()
}

func (s *state) step(c rune) {
	newline := c == '\n' || c == '\r'
	if newline {
		s.line++
		s.col = 0
		s.inComment = false
		s.pendingSlash = false
	} else {
		s.col++
	}

	if s.inExpr {
		s.stepExpression(c, newline)
		return
	}
	s.stepText(c)
}

func (s *state) stepText(c rune) {
	if s.pendingDollar {
		s.pendingDollar = false
		if c == '{' {
			s.open()
			return
		}
		s.text.WriteByte('$')
	}
	if c == '$' {
		s.pendingDollar = true
		s.dollarLine, s.dollarCol = s.line, s.col
		return
	}
	s.text.WriteRune(c)
}

func (s *state) open() {
	if s.text.Len() > 0 {
		s.h.OnText(s.text.String())
		s.text.Reset()
	}
	s.h.OnPossibleExpressionStart(s.dollarLine, s.dollarCol)
	s.inExpr = true
	s.level = 0
	s.inSingle, s.inDouble, s.inComment = false, false, false
	s.pendingBackslash, s.pendingSlash = false, false
	s.startLine = s.dollarLine
	s.expr.Reset()
	s.expr.WriteString("${")
}

func (s *state) stepExpression(c rune, newline bool) {
	s.expr.WriteRune(c)
	if newline || s.inComment {
		s.pendingBackslash = false
		return
	}

	if s.inSingle || s.inDouble {
		switch {
		case s.pendingBackslash:
			s.pendingBackslash = false
		case c == '\\':
			s.pendingBackslash = true
		case c == '\'' && s.inSingle:
			s.inSingle = false
		case c == '"' && s.inDouble:
			s.inDouble = false
		}
		return
	}

	if c == '/' {
		if s.pendingSlash {
			s.pendingSlash = false
			s.inComment = true
			return
		}
		s.pendingSlash = true
		s.pendingBackslash = false
		return
	}
	s.pendingSlash = false

	escaped := s.pendingBackslash
	s.pendingBackslash = false

	switch c {
	case '\\':
		s.pendingBackslash = !escaped
	case '\'':
		if !escaped {
			s.inSingle = true
		}
	case '"':
		if !escaped {
			s.inDouble = true
		}
	case '{':
		s.level++
	case '}':
		if s.level == 0 {
			s.close()
			return
		}
		s.level--
	}
}

func (s *state) close() {
	s.h.OnExpression(s.expr.String(), s.startLine, s.col)
	s.expr.Reset()
	s.inExpr = false
	s.level = 0
}

func (s *state) finish() {
	if s.pendingDollar {
		s.pendingDollar = false
		s.text.WriteByte('$')
	}
	if s.inExpr {
		s.h.OnUnterminatedExpression(s.expr.String())
		s.expr.Reset()
		s.inExpr = false
	}
	if s.text.Len() > 0 {
		s.h.OnText(s.text.String())
		s.text.Reset()
	}
}
