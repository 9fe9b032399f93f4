// Some of the scanner's rune-handling structure is adapted from the Go
// source code: https://cs.opensource.google/go/go/+/refs/tags/go1.22.1:src/go/scanner/scanner.go
//
// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scanner

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jd28/smalls/lang/token"
)

// ErrorHandler is called for every lexical error the scanner detects; msg
// carries a human-readable description, pos the offending position resolved
// against the file being scanned. ErrorList.Add has this signature, so
// scanners and parsers can share one accumulator.
type ErrorHandler func(pos token.Position, msg string)

// Scanner tokenizes Smalls source text for the parser to consume one token
// at a time.
type Scanner struct {
	file *token.File
	src  []byte
	err  ErrorHandler

	cur rune // current character, -1 at EOF
	off int  // byte offset of cur
	roff int // byte offset immediately after cur

	sb               strings.Builder
	pendingSurrogate rune
}

// Init prepares s to scan src, whose positions are reported against file.
func (s *Scanner) Init(file *token.File, src []byte, errHandler ErrorHandler) {
	s.file = file
	s.src = src
	s.err = errHandler
	s.cur = ' '
	s.off = 0
	s.roff = 0
	s.advance()
}

func (s *Scanner) advance() {
	if s.roff >= len(s.src) {
		s.off = len(s.src)
		s.cur = -1
		return
	}
	s.off = s.roff
	r, w := rune(s.src[s.roff]), 1
	if r >= utf8.RuneSelf {
		r, w = utf8.DecodeRune(s.src[s.roff:])
		if r == utf8.RuneError && w == 1 {
			s.error(s.off, "illegal UTF-8 encoding")
		}
	}
	s.roff += w
	s.cur = r
}

func (s *Scanner) peek() byte {
	if s.roff < len(s.src) {
		return s.src[s.roff]
	}
	return 0
}

func (s *Scanner) pos(off int) token.Pos { return s.file.Pos(off) }

func (s *Scanner) error(off int, msg string) {
	if s.err != nil {
		s.err(token.PositionOf(s.file, s.pos(off)), msg)
	}
}

func (s *Scanner) errorf(off int, format string, args ...any) {
	s.error(off, fmt.Sprintf(format, args...))
}

func (s *Scanner) advanceIf(b byte) bool {
	if s.cur == rune(b) {
		s.advance()
		return true
	}
	return false
}

// Scan returns the next token, its raw source text, and its starting
// position. Scanning EOF repeatedly returns token.EOF.
func (s *Scanner) Scan() (tok token.Token, lit string, pos token.Pos) {
	s.skipWhitespaceAndComments()
	pos = s.pos(s.off)
	start := s.off

	switch cur := s.cur; {
	case isLetter(cur):
		lit = s.ident()
		if kw, ok := token.Lookup(lit); ok {
			return kw, lit, pos
		}
		return token.IDENT, lit, pos

	case isDigit(cur) || (cur == '.' && isDigit(rune(s.peek()))):
		return s.number(start, pos)
	}

	switch cur := s.cur; cur {
	case -1:
		return token.EOF, "", pos

	case '"':
		return token.STRING, s.stringLit(), pos

	case '(':
		s.advance()
		return token.LPAREN, "(", pos
	case ')':
		s.advance()
		return token.RPAREN, ")", pos
	case '[':
		s.advance()
		return token.LBRACK, "[", pos
	case ']':
		s.advance()
		return token.RBRACK, "]", pos
	case '{':
		s.advance()
		return token.LBRACE, "{", pos
	case '}':
		s.advance()
		return token.RBRACE, "}", pos
	case ',':
		s.advance()
		return token.COMMA, ",", pos
	case ';':
		s.advance()
		return token.SEMI, ";", pos
	case '?':
		s.advance()
		return token.QUESTION, "?", pos

	case '+':
		s.advance()
		if s.advanceIf('=') {
			return token.PLUS_EQ, "+=", pos
		}
		return token.PLUS, "+", pos
	case '-':
		s.advance()
		if s.advanceIf('=') {
			return token.MINUS_EQ, "-=", pos
		}
		if s.advanceIf('>') {
			return token.ARROW, "->", pos
		}
		return token.MINUS, "-", pos
	case '*':
		s.advance()
		if s.advanceIf('=') {
			return token.STAR_EQ, "*=", pos
		}
		return token.STAR, "*", pos
	case '/':
		s.advance()
		if s.advanceIf('=') {
			return token.SLASH_EQ, "/=", pos
		}
		return token.SLASH, "/", pos
	case '%':
		s.advance()
		if s.advanceIf('=') {
			return token.PERCENT_EQ, "%=", pos
		}
		return token.PERCENT, "%", pos
	case '~':
		s.advance()
		return token.TILDE, "~", pos
	case '!':
		s.advance()
		if s.advanceIf('=') {
			return token.NEQ, "!=", pos
		}
		return token.BANG, "!", pos
	case '=':
		s.advance()
		if s.advanceIf('=') {
			return token.EQL, "==", pos
		}
		if s.advanceIf('>') {
			return token.FATARROW, "=>", pos
		}
		return token.EQ, "=", pos
	case '&':
		s.advance()
		if s.advanceIf('&') {
			return token.ANDAND, "&&", pos
		}
		if s.advanceIf('=') {
			return token.AMP_EQ, "&=", pos
		}
		return token.AMPERSAND, "&", pos
	case '|':
		s.advance()
		if s.advanceIf('|') {
			return token.OROR, "||", pos
		}
		if s.advanceIf('=') {
			return token.PIPE_EQ, "|=", pos
		}
		return token.PIPE, "|", pos
	case '^':
		s.advance()
		if s.advanceIf('=') {
			return token.CIRCUMFLEX_EQ, "^=", pos
		}
		return token.CIRCUMFLEX, "^", pos
	case '<':
		s.advance()
		if s.advanceIf('<') {
			if s.advanceIf('=') {
				return token.LTLT_EQ, "<<=", pos
			}
			return token.LTLT, "<<", pos
		}
		if s.advanceIf('=') {
			return token.LE, "<=", pos
		}
		return token.LT, "<", pos
	case '>':
		s.advance()
		if s.advanceIf('>') {
			if s.advanceIf('=') {
				return token.GTGT_EQ, ">>=", pos
			}
			return token.GTGT, ">>", pos
		}
		if s.advanceIf('=') {
			return token.GE, ">=", pos
		}
		return token.GT, ">", pos
	case ':':
		s.advance()
		if s.advanceIf(':') {
			return token.COLONCOLON, "::", pos
		}
		return token.COLON, ":", pos
	case '.':
		s.advance()
		if s.advanceIf('.') {
			return token.DOTDOT, "..", pos
		}
		return token.DOT, ".", pos
	}

	s.errorf(start, "illegal character %#U", s.cur)
	s.advance()
	return token.ILLEGAL, string(s.cur), pos
}

func (s *Scanner) ident() string {
	start := s.off
	for isLetter(s.cur) || isDigit(s.cur) {
		s.advance()
	}
	return string(s.src[start:s.off])
}

func (s *Scanner) skipWhitespaceAndComments() {
	for {
		switch {
		case isWhitespace(s.cur):
			s.advance()
		case s.cur == '/' && s.peek() == '/':
			for s.cur != '\n' && s.cur != -1 {
				s.advance()
			}
		case s.cur == '/' && s.peek() == '*':
			start := s.off
			s.advance()
			s.advance()
			closed := false
			for s.cur != -1 {
				if s.cur == '*' && s.peek() == '/' {
					s.advance()
					s.advance()
					closed = true
					break
				}
				s.advance()
			}
			if !closed {
				s.error(start, "unterminated block comment")
			}
		default:
			return
		}
	}
}

func isWhitespace(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' }

func isLetter(r rune) bool {
	return 'a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || r == '_' ||
		r >= utf8.RuneSelf && unicode.IsLetter(r)
}

func isDigit(r rune) bool {
	return '0' <= r && r <= '9' || r >= utf8.RuneSelf && unicode.IsDigit(r)
}

var bom = [3]byte{0xEF, 0xBB, 0xBF}

// TrimBOM strips a leading UTF-8 byte order mark, if present.
func TrimBOM(src []byte) []byte {
	if len(src) >= 3 && bytes.Equal(src[:3], bom[:]) {
		return src[3:]
	}
	return src
}
