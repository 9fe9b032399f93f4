package scanner_test

import (
	"testing"

	"github.com/jd28/smalls/lang/scanner"
	"github.com/jd28/smalls/lang/token"
)

func scanAll(t *testing.T, src string) ([]token.Token, []string) {
	t.Helper()
	fset := token.NewFileSet()
	file := fset.AddFile("test.sm", []byte(src))

	var errs []string
	var s scanner.Scanner
	s.Init(file, []byte(src), func(pos token.Position, msg string) {
		errs = append(errs, msg)
	})

	var toks []token.Token
	for {
		tok, _, _ := s.Scan()
		toks = append(toks, tok)
		if tok == token.EOF {
			break
		}
	}
	return toks, errs
}

func TestScanPunctuation(t *testing.T) {
	tests := []struct {
		src  string
		want []token.Token
	}{
		{"+ - * / %", []token.Token{token.PLUS, token.MINUS, token.STAR, token.SLASH, token.PERCENT, token.EOF}},
		{"+= -= *= /= %=", []token.Token{token.PLUS_EQ, token.MINUS_EQ, token.STAR_EQ, token.SLASH_EQ, token.PERCENT_EQ, token.EOF}},
		{"&= |= ^= <<= >>=", []token.Token{token.AMP_EQ, token.PIPE_EQ, token.CIRCUMFLEX_EQ, token.LTLT_EQ, token.GTGT_EQ, token.EOF}},
		{"&& || ! ~", []token.Token{token.ANDAND, token.OROR, token.BANG, token.TILDE, token.EOF}},
		{"== != < <= > >=", []token.Token{token.EQL, token.NEQ, token.LT, token.LE, token.GT, token.GE, token.EOF}},
		{"-> => :: . ..", []token.Token{token.ARROW, token.FATARROW, token.COLONCOLON, token.DOT, token.DOTDOT, token.EOF}},
		{"( ) [ ] { } , ; ? :", []token.Token{
			token.LPAREN, token.RPAREN, token.LBRACK, token.RBRACK, token.LBRACE, token.RBRACE,
			token.COMMA, token.SEMI, token.QUESTION, token.COLON, token.EOF,
		}},
	}
	for _, tt := range tests {
		got, errs := scanAll(t, tt.src)
		if len(errs) != 0 {
			t.Errorf("%q: unexpected errors: %v", tt.src, errs)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("%q: got %v, want %v", tt.src, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%q: token %d: got %v, want %v", tt.src, i, got[i], tt.want[i])
			}
		}
	}
}

func TestScanKeywordsAndIdents(t *testing.T) {
	src := "fn struct sum newtype var const if else while for in switch case return break continue as is true false nil import type fooBar _x9"
	toks, _ := scanAll(t, src)
	want := []token.Token{
		token.FN, token.STRUCT, token.SUM, token.NEWTYPE, token.VAR, token.CONST,
		token.IF, token.ELSE, token.WHILE, token.FOR, token.IN, token.SWITCH, token.CASE,
		token.RETURN, token.BREAK, token.CONTINUE, token.AS, token.IS, token.TRUE, token.FALSE,
		token.NIL, token.IMPORT, token.TYPE, token.IDENT, token.IDENT, token.EOF,
	}
	if len(toks) != len(want) {
		t.Fatalf("got %v, want %v", toks, want)
	}
	for i := range toks {
		if toks[i] != want[i] {
			t.Errorf("token %d: got %v, want %v", i, toks[i], want[i])
		}
	}
}

func TestScanNumbers(t *testing.T) {
	tests := []struct {
		src  string
		want token.Token
	}{
		{"123", token.INT},
		{"1_000_000", token.INT},
		{"0x1F", token.INT},
		{"0o17", token.INT},
		{"0b1010", token.INT},
		{"3.14", token.FLOAT},
		{".5", token.FLOAT},
		{"1e10", token.FLOAT},
		{"1.5e-3", token.FLOAT},
	}
	for _, tt := range tests {
		toks, errs := scanAll(t, tt.src)
		if len(errs) != 0 {
			t.Errorf("%q: unexpected errors: %v", tt.src, errs)
		}
		if len(toks) != 2 || toks[0] != tt.want {
			t.Errorf("%q: got %v, want [%v EOF]", tt.src, toks, tt.want)
		}
	}
}

func TestScanStrings(t *testing.T) {
	src := `"hello\nworld" "A" "\x41" "tab\tend"`
	fset := token.NewFileSet()
	file := fset.AddFile("test.sm", []byte(src))
	var s scanner.Scanner
	var errs []string
	s.Init(file, []byte(src), func(pos token.Position, msg string) { errs = append(errs, msg) })

	want := []string{"hello\nworld", "A", "A", "tab\tend"}
	for i, w := range want {
		tok, lit, _ := s.Scan()
		if tok != token.STRING {
			t.Fatalf("literal %d: got token %v, want STRING", i, tok)
		}
		if lit != w {
			t.Errorf("literal %d: got %q, want %q", i, lit, w)
		}
	}
	if len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestScanComments(t *testing.T) {
	src := "1 // line comment\n2 /* block\ncomment */ 3"
	toks, errs := scanAll(t, src)
	if len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
	want := []token.Token{token.INT, token.INT, token.INT, token.EOF}
	if len(toks) != len(want) {
		t.Fatalf("got %v, want %v", toks, want)
	}
	for i := range toks {
		if toks[i] != want[i] {
			t.Errorf("token %d: got %v, want %v", i, toks[i], want[i])
		}
	}
}

func TestScanIllegalCharacter(t *testing.T) {
	_, errs := scanAll(t, "1 @ 2")
	if len(errs) == 0 {
		t.Fatal("expected an error for illegal character '@'")
	}
}

func TestNumberConversion(t *testing.T) {
	if v, err := scanner.NumberToInt("1_000"); err != nil || v != 1000 {
		t.Errorf("NumberToInt(1_000) = %d, %v", v, err)
	}
	if v, err := scanner.NumberToInt("0x1F"); err != nil || v != 31 {
		t.Errorf("NumberToInt(0x1F) = %d, %v", v, err)
	}
	if v, err := scanner.NumberToFloat("1.5e1"); err != nil || v != 15 {
		t.Errorf("NumberToFloat(1.5e1) = %v, %v", v, err)
	}
}
