// Package parser implements a recursive-descent parser for Smalls source
// text. Because every declaration site in the grammar carries an explicit
// type annotation (parameters, fields, variant payloads, locals), the parser
// resolves every type annotation to its runtime.TypeID and infers the
// static type of every expression as it parses, rather than deferring that
// work to a separate pass: lang/ast's Expr nodes are constructed already
// fully typed. lang/resolver, downstream, performs the semantic checks that
// are easier to state as a second walk over the finished tree (constant
// reassignment, break/continue placement) than to interleave with parsing.
//
// Top-level declarations are parsed in three passes so that one function may
// call another declared later in the same file, matching lang/compiler's
// own two-step "reserve skeletons, then compile bodies" approach: the first
// pass records every function's name and signature (and fully registers
// every struct/sum/newtype, which — per runtime.Runtime's registration
// API — must be declared in dependency order, field types before the
// struct that embeds them); the second parses every top-level var/const;
// the third parses every function body with the complete signature table
// already in scope.
package parser

import (
	"fmt"

	"github.com/jd28/smalls/lang/ast"
	"github.com/jd28/smalls/lang/runtime"
	"github.com/jd28/smalls/lang/scanner"
	"github.com/jd28/smalls/lang/token"
)

// tokInfo is one buffered token, lexed up front so the parser can freely
// save and restore a cursor into the stream (used to defer function-body
// parsing to the third pass).
type tokInfo struct {
	Tok token.Token
	Lit string
	Pos token.Pos
}

// funcSig is the recorded signature of a declared function, built in the
// first top-level pass and consulted by the later ones when resolving calls.
type funcSig struct {
	decl     *ast.FuncDecl
	params   []runtime.TypeID
	ret      runtime.TypeID
	generic  bool
	bodyFrom int // token index where '{' of the body begins
}

// Parser holds all state for one file's parse.
type Parser struct {
	fset *token.FileSet
	file *token.File
	rt   *runtime.Runtime

	toks []tokInfo
	pos  int

	errs scanner.ErrorList

	funcs     map[string]*funcSig
	funcOrder []string // function names in declaration order, for pass C
	typeDecls []ast.Decl // struct/sum/newtype decls, in declaration order
	structs   map[string]runtime.TypeID
	sums      map[string]runtime.TypeID
	newtypes  map[string]runtime.TypeID
	globals   map[string]runtime.TypeID
	constants map[string]bool // global consts, by name

	scopes    []map[string]localInfo // block-scoped locals, for const-reassign + existence checks only
	loopDepth int

	// genericParams maps a generic function's type-parameter names (the
	// `!(T, U)` list) to runtime.AnyType while its signature and body are
	// parsed — see DESIGN.md for why type parameters aren't specialized.
	genericParams map[string]runtime.TypeID
}

type localInfo struct {
	typ   runtime.TypeID
	isConst bool
}

// ParseFile parses the named source text into a fully typed *ast.Program.
// The returned error, if non-nil, is a scanner.ErrorList.
func ParseFile(rt *runtime.Runtime, fset *token.FileSet, name string, src []byte) (*ast.Program, error) {
	src = scanner.TrimBOM(src)
	file := fset.AddFile(name, src)

	p := &Parser{
		fset:      fset,
		file:      file,
		rt:        rt,
		funcs:     make(map[string]*funcSig),
		structs:   make(map[string]runtime.TypeID),
		sums:      make(map[string]runtime.TypeID),
		newtypes:  make(map[string]runtime.TypeID),
		globals:   make(map[string]runtime.TypeID),
		constants: make(map[string]bool),
	}

	var s scanner.Scanner
	s.Init(file, src, p.errs.Add)
	for {
		tok, lit, pos := s.Scan()
		p.toks = append(p.toks, tokInfo{Tok: tok, Lit: lit, Pos: pos})
		if tok == token.EOF {
			break
		}
	}

	prog := p.parseProgram(name)
	if err := p.errs.Err(); err != nil {
		return nil, err
	}
	return prog, nil
}

func (p *Parser) cur() tokInfo  { return p.toks[p.pos] }
func (p *Parser) tok() token.Token { return p.toks[p.pos].Tok }

func (p *Parser) advance() tokInfo {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) at(t token.Token) bool { return p.tok() == t }

func (p *Parser) accept(t token.Token) (tokInfo, bool) {
	if p.at(t) {
		return p.advance(), true
	}
	return tokInfo{}, false
}

func (p *Parser) expect(t token.Token) tokInfo {
	if !p.at(t) {
		p.errorf(p.cur().Pos, "expected %s, found %s", t, describeTok(p.cur()))
		return p.cur()
	}
	return p.advance()
}

func describeTok(ti tokInfo) string {
	if ti.Tok == token.IDENT || ti.Tok == token.INT || ti.Tok == token.FLOAT || ti.Tok == token.STRING {
		return fmt.Sprintf("%s %q", ti.Tok, ti.Lit)
	}
	return ti.Tok.GoString()
}

func (p *Parser) errorf(pos token.Pos, format string, args ...any) {
	p.errs.Add(token.PositionOf(p.file, pos), fmt.Sprintf(format, args...))
}

func (p *Parser) rangeFrom(start token.Pos) token.Range {
	return token.Range{Start: start, End: p.cur().Pos}
}

// pushScope/popScope/declareLocal/lookupLocal track only what the const-
// reassignment and name-existence checks below need; lang/compiler
// performs its own independent register-allocation scope resolution and
// does not consult any of this.
func (p *Parser) pushScope() { p.scopes = append(p.scopes, make(map[string]localInfo)) }
func (p *Parser) popScope()  { p.scopes = p.scopes[:len(p.scopes)-1] }

func (p *Parser) declareLocal(name string, typ runtime.TypeID, isConst bool) {
	p.scopes[len(p.scopes)-1][name] = localInfo{typ: typ, isConst: isConst}
}

func (p *Parser) lookupLocal(name string) (localInfo, bool) {
	for i := len(p.scopes) - 1; i >= 0; i-- {
		if li, ok := p.scopes[i][name]; ok {
			return li, true
		}
	}
	return localInfo{}, false
}

// lookupName resolves name against locals (innermost first), then globals,
// returning its static type. ok is false for an undeclared name.
func (p *Parser) lookupName(name string) (runtime.TypeID, bool) {
	if li, ok := p.lookupLocal(name); ok {
		return li.typ, true
	}
	if t, ok := p.globals[name]; ok {
		return t, true
	}
	if sig, ok := p.funcs[name]; ok {
		return sig.decl.FunctionType, true
	}
	return runtime.InvalidTypeID, false
}

func scanIntLiteral(lit string) (int, error) {
	v, err := scanner.NumberToInt(lit)
	return int(v), err
}

// isConstName reports whether name currently resolves to a const binding,
// checking locals (innermost first) before globals.
func (p *Parser) isConstName(name string) bool {
	if li, ok := p.lookupLocal(name); ok {
		return li.isConst
	}
	return p.constants[name]
}
