package parser

import (
	"github.com/jd28/smalls/lang/ast"
	"github.com/jd28/smalls/lang/runtime"
	"github.com/jd28/smalls/lang/token"
)

// parseProgram drives the two-pass (really three-sub-pass) top-level scan
// described in the package doc. Each sub-pass replays the buffered token
// stream from the top rather than consuming it once, since later passes
// need state (registered types, function signatures) that earlier
// occurrences in the same file may depend on.
func (p *Parser) parseProgram(name string) *ast.Program {
	prog := &ast.Program{Name: name}

	p.pos = 0
	p.scanHeaders()

	p.pos = 0
	globalDecls := p.scanGlobals()

	p.pos = 0
	funcDecls := p.compileBodies()

	prog.Decls = append(prog.Decls, p.typeDecls...)
	prog.Decls = append(prog.Decls, globalDecls...)
	prog.Decls = append(prog.Decls, funcDecls...)
	return prog
}

// scanHeaders is pass A: register every struct/sum/newtype (in source
// order, so later declarations may reference earlier ones) and record
// every function's signature, skipping over bodies and global initializers
// without parsing them.
func (p *Parser) scanHeaders() {
	for !p.at(token.EOF) {
		switch p.tok() {
		case token.IMPORT:
			p.skipImport()
		case token.STRUCT:
			p.typeDecls = append(p.typeDecls, p.parseStructDecl())
		case token.SUM:
			p.typeDecls = append(p.typeDecls, p.parseSumDecl())
		case token.NEWTYPE:
			p.typeDecls = append(p.typeDecls, p.parseNewtypeDecl())
		case token.FN:
			p.recordFuncSig()
		case token.VAR, token.CONST:
			p.skipGlobalDecl()
		default:
			p.errorf(p.cur().Pos, "unexpected %s at top level", describeTok(p.cur()))
			p.advance()
		}
	}
}

// scanGlobals is pass B: fully parse every top-level var/const, with every
// struct/sum/newtype and function signature already known. Struct/sum/
// newtype declarations and function bodies are skipped (already handled by
// pass A / deferred to pass C respectively).
func (p *Parser) scanGlobals() []ast.Decl {
	var decls []ast.Decl
	for !p.at(token.EOF) {
		switch p.tok() {
		case token.IMPORT:
			p.skipImport()
		case token.STRUCT:
			p.skipStructDecl()
		case token.SUM:
			p.skipSumDecl()
		case token.NEWTYPE:
			p.skipNewtypeDecl()
		case token.FN:
			p.skipFuncSig()
		case token.VAR:
			decls = append(decls, p.parseGlobalVarDecl(false))
		case token.CONST:
			decls = append(decls, p.parseGlobalVarDecl(true))
		default:
			p.advance()
		}
	}
	return decls
}

// compileBodies is pass C: parse every recorded function's body, resuming
// the token cursor at each funcSig.bodyFrom.
func (p *Parser) compileBodies() []ast.Decl {
	decls := make([]ast.Decl, 0, len(p.funcOrder))
	for _, name := range p.funcOrder {
		sig := p.funcs[name]
		p.pos = sig.bodyFrom
		p.pushScope()
		p.genericParams = nil
		if len(sig.decl.GenericNames) > 0 {
			p.genericParams = make(map[string]runtime.TypeID, len(sig.decl.GenericNames))
			for _, gn := range sig.decl.GenericNames {
				p.genericParams[gn] = runtime.AnyType
			}
		}
		for i, prm := range sig.decl.Params {
			p.declareLocal(prm.Name, sig.params[i], false)
		}
		sig.decl.Body = p.parseBlock()
		p.popScope()
		p.genericParams = nil
		decls = append(decls, sig.decl)
	}
	return decls
}

func (p *Parser) skipImport() {
	p.expect(token.IMPORT)
	p.expect(token.STRING)
	p.accept(token.SEMI)
}

// skipBraceBlock assumes the current token is '{' and advances past its
// matching '}', returning the token index of the opening '{'.
func (p *Parser) skipBraceBlock() int {
	start := p.pos
	p.expect(token.LBRACE)
	depth := 1
	for depth > 0 && !p.at(token.EOF) {
		switch p.tok() {
		case token.LBRACE:
			depth++
		case token.RBRACE:
			depth--
		}
		p.advance()
	}
	return start
}

func (p *Parser) skipGlobalDecl() {
	for !p.at(token.EOF) && !p.at(token.SEMI) {
		p.advance()
	}
	p.accept(token.SEMI)
}

// skipStructDecl/skipSumDecl/skipNewtypeDecl advance past an already-
// registered type declaration in pass B without re-parsing or re-registering
// it — re-invoking parseStructDecl et al. here would call Runtime.Register*
// with a fresh declSite pointer each time, minting a second, distinct
// TypeID for the same nominal type (the registration cache is keyed by
// declSite identity, not by name).
func (p *Parser) skipStructDecl() {
	p.expect(token.STRUCT)
	p.expect(token.IDENT)
	p.parseOptionalValueTypeTag()
	p.skipBraceBlock()
}

func (p *Parser) skipSumDecl() {
	p.expect(token.SUM)
	p.expect(token.IDENT)
	p.skipBraceBlock()
}

func (p *Parser) skipNewtypeDecl() {
	p.expect(token.NEWTYPE)
	p.expect(token.IDENT)
	p.expect(token.EQ)
	for !p.at(token.SEMI) && !p.at(token.EOF) {
		p.advance()
	}
	p.accept(token.SEMI)
}

// skipFuncSig advances past a function's signature and body without
// re-registering anything; used by pass B, which only cares about
// var/const.
func (p *Parser) skipFuncSig() {
	p.expect(token.FN)
	p.expect(token.IDENT)
	if _, ok := p.accept(token.BANG); ok {
		p.expect(token.LPAREN)
		for !p.at(token.RPAREN) {
			p.advance()
		}
		p.expect(token.RPAREN)
	}
	p.expect(token.LPAREN)
	for !p.at(token.RPAREN) && !p.at(token.EOF) {
		p.advance()
	}
	p.expect(token.RPAREN)
	if _, ok := p.accept(token.COLON); ok {
		p.parseType()
	}
	p.skipBraceBlock()
}

func (p *Parser) parseOptionalValueTypeTag() bool {
	if !p.at(token.LBRACK) {
		return false
	}
	save := p.pos
	if _, ok := p.accept(token.LBRACK); ok {
		if _, ok := p.accept(token.LBRACK); ok {
			if ident, ok := p.accept(token.IDENT); ok && ident.Lit == "value_type" {
				if _, ok := p.accept(token.RBRACK); ok {
					if _, ok := p.accept(token.RBRACK); ok {
						return true
					}
				}
			}
		}
	}
	p.pos = save
	return false
}

func (p *Parser) parseStructDecl() *ast.StructDecl {
	start := p.cur().Pos
	p.expect(token.STRUCT)
	name := p.expect(token.IDENT).Lit
	valueType := p.parseOptionalValueTypeTag()
	p.expect(token.LBRACE)

	d := &ast.StructDecl{DeclBase: ast.DeclBase{Range: token.Range{Start: start}}, Name: name, ValueType: valueType}
	var fields []runtime.FieldDef
	for !p.at(token.RBRACE) {
		fname := p.expect(token.IDENT).Lit
		p.expect(token.COLON)
		ftype := p.parseType()
		d.Fields = append(d.Fields, ast.StructField{Name: fname, Type: ftype})
		fields = append(fields, runtime.FieldDef{Name: fname, Type: ftype})
		if _, ok := p.accept(token.COMMA); !ok {
			break
		}
	}
	p.expect(token.RBRACE)
	d.Range.End = p.cur().Pos

	id := p.rt.RegisterStruct(d, name, fields, valueType)
	d.Registered = id
	p.structs[name] = id
	return d
}

func (p *Parser) parseSumDecl() *ast.SumDecl {
	start := p.cur().Pos
	p.expect(token.SUM)
	name := p.expect(token.IDENT).Lit
	p.expect(token.LBRACE)

	d := &ast.SumDecl{DeclBase: ast.DeclBase{Range: token.Range{Start: start}}, Name: name}
	var variants []runtime.VariantDef
	tag := uint32(0)
	for !p.at(token.RBRACE) {
		vname := p.expect(token.IDENT).Lit
		payload := runtime.InvalidTypeID
		if _, ok := p.accept(token.LPAREN); ok {
			payload = p.parseType()
			p.expect(token.RPAREN)
		}
		d.Variants = append(d.Variants, ast.SumVariant{Name: vname, PayloadType: payload, Tag: tag})
		variants = append(variants, runtime.VariantDef{Name: vname, Tag: tag, PayloadType: payload})
		tag++
		if _, ok := p.accept(token.COMMA); !ok {
			break
		}
	}
	p.expect(token.RBRACE)
	d.Range.End = p.cur().Pos

	id := p.rt.RegisterSum(d, name, variants)
	d.Registered = id
	p.sums[name] = id
	return d
}

func (p *Parser) parseNewtypeDecl() *ast.NewtypeDecl {
	start := p.cur().Pos
	p.expect(token.NEWTYPE)
	name := p.expect(token.IDENT).Lit
	p.expect(token.EQ)
	underlying := p.parseType()
	p.accept(token.SEMI)

	d := &ast.NewtypeDecl{DeclBase: ast.DeclBase{Range: token.Range{Start: start, End: p.cur().Pos}}, Name: name, Underlying: underlying}
	id := p.rt.RegisterNewtype(d, name, underlying)
	d.Registered = id
	p.newtypes[name] = id
	return d
}

// recordFuncSig parses a function's signature (name, optional generic
// parameter list, params, return type) and records it in p.funcs, skipping
// the body via brace counting; pass C resumes parsing at the recorded
// bodyFrom index.
func (p *Parser) recordFuncSig() {
	start := p.cur().Pos
	p.expect(token.FN)
	name := p.expect(token.IDENT).Lit

	var generics []string
	if _, ok := p.accept(token.BANG); ok {
		p.expect(token.LPAREN)
		if !p.at(token.RPAREN) {
			generics = append(generics, p.expect(token.IDENT).Lit)
			for {
				if _, ok := p.accept(token.COMMA); !ok {
					break
				}
				generics = append(generics, p.expect(token.IDENT).Lit)
			}
		}
		p.expect(token.RPAREN)
	}

	savedGenerics := p.genericParams
	p.genericParams = nil
	if len(generics) > 0 {
		p.genericParams = make(map[string]runtime.TypeID, len(generics))
		for _, gn := range generics {
			p.genericParams[gn] = runtime.AnyType
		}
	}

	p.expect(token.LPAREN)
	var params []ast.Param
	var paramTypes []runtime.TypeID
	if !p.at(token.RPAREN) {
		prm := p.parseParam()
		params = append(params, prm)
		paramTypes = append(paramTypes, prm.Type)
		for {
			if _, ok := p.accept(token.COMMA); !ok {
				break
			}
			prm := p.parseParam()
			params = append(params, prm)
			paramTypes = append(paramTypes, prm.Type)
		}
	}
	p.expect(token.RPAREN)

	retType := runtime.VoidType
	if _, ok := p.accept(token.COLON); ok {
		retType = p.parseType()
	}
	p.genericParams = savedGenerics

	funcType := p.rt.RegisterFunctionType(paramTypes, retType)
	decl := &ast.FuncDecl{
		DeclBase:     ast.DeclBase{Range: token.Range{Start: start}},
		Name:         name,
		Params:       params,
		ReturnType:   retType,
		GenericNames: generics,
		FunctionType: funcType,
	}

	bodyFrom := p.skipBraceBlock()
	decl.Range.End = p.cur().Pos

	sig := &funcSig{decl: decl, params: paramTypes, ret: retType, generic: len(generics) > 0, bodyFrom: bodyFrom}
	p.funcs[name] = sig
	p.funcOrder = append(p.funcOrder, name)
}

// parseGlobalVarDecl fully parses a top-level `var`/`const` declaration,
// registering each name into p.globals (and p.constants, for const) so
// later expressions resolve it.
func (p *Parser) parseGlobalVarDecl(isConst bool) ast.Decl {
	start := p.cur().Pos
	if isConst {
		p.expect(token.CONST)
	} else {
		p.expect(token.VAR)
	}

	var names []ast.VarDeclName
	for {
		n := p.parseVarDeclName()
		names = append(names, n)
		p.globals[n.Name] = n.Type
		if isConst {
			p.constants[n.Name] = true
		}
		if _, ok := p.accept(token.COMMA); !ok {
			break
		}
	}
	p.accept(token.SEMI)

	rng := token.Range{Start: start, End: p.cur().Pos}
	if isConst {
		return &ast.ConstDecl{DeclBase: ast.DeclBase{Range: rng}, Names: names}
	}
	return &ast.VarDecl{DeclBase: ast.DeclBase{Range: rng}, Names: names}
}

func (p *Parser) parseVarDeclName() ast.VarDeclName {
	name := p.expect(token.IDENT).Lit
	typ := runtime.InvalidTypeID
	if _, ok := p.accept(token.COLON); ok {
		typ = p.parseType()
	}
	var init ast.Expr
	if _, ok := p.accept(token.EQ); ok {
		init = p.parseExpr(typ)
	}
	if typ == runtime.InvalidTypeID && init != nil {
		typ = init.Type()
	}
	return ast.VarDeclName{Name: name, Type: typ, Init: init}
}
