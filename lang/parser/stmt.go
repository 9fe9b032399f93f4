package parser

import (
	"github.com/jd28/smalls/lang/ast"
	"github.com/jd28/smalls/lang/runtime"
	"github.com/jd28/smalls/lang/token"
)

func (p *Parser) parseBlock() *ast.Block {
	start := p.cur().Pos
	p.expect(token.LBRACE)
	b := &ast.Block{Range: token.Range{Start: start}}
	for !p.at(token.RBRACE) && !p.at(token.EOF) {
		s := p.parseStmt()
		b.Stmts = append(b.Stmts, s)
		if s.BlockEnding() {
			b.BlockTerminated = true
		}
	}
	p.expect(token.RBRACE)
	b.Range.End = p.cur().Pos
	return b
}

// parseCaseBody parses statements up to (but not including) the next
// `case`/`else`/`}`, matching spec.md's brace-free switch-case bodies.
func (p *Parser) parseCaseBody() *ast.Block {
	start := p.cur().Pos
	b := &ast.Block{Range: token.Range{Start: start}}
	for !p.at(token.CASE) && !p.at(token.ELSE) && !p.at(token.RBRACE) && !p.at(token.EOF) {
		s := p.parseStmt()
		b.Stmts = append(b.Stmts, s)
		if s.BlockEnding() {
			b.BlockTerminated = true
		}
	}
	b.Range.End = p.cur().Pos
	return b
}

func (p *Parser) parseStmt() ast.Stmt {
	switch p.tok() {
	case token.IF:
		return p.parseIfStmt()
	case token.WHILE:
		return p.parseWhileStmt()
	case token.FOR:
		return p.parseForStmt()
	case token.SWITCH:
		return p.parseSwitchStmt()
	case token.RETURN:
		return p.parseReturnStmt()
	case token.BREAK:
		return p.parseBreakStmt()
	case token.CONTINUE:
		return p.parseContinueStmt()
	case token.VAR:
		return p.parseLocalVarDecl(false)
	case token.CONST:
		return p.parseLocalVarDecl(true)
	default:
		return p.parseSimpleStmt()
	}
}

func (p *Parser) parseIfStmt() ast.Stmt {
	start := p.cur().Pos
	p.expect(token.IF)
	p.expect(token.LPAREN)
	cond := p.parseExpr(runtime.BoolType)
	p.expect(token.RPAREN)
	then := p.parseBlock()
	var els *ast.Block
	if _, ok := p.accept(token.ELSE); ok {
		if p.at(token.IF) {
			inner := p.parseIfStmt()
			els = &ast.Block{Range: inner.Span(), Stmts: []ast.Stmt{inner}, BlockTerminated: inner.BlockEnding()}
		} else {
			els = p.parseBlock()
		}
	}
	return &ast.IfStmt{StmtBase: ast.StmtBase{Range: token.Range{Start: start, End: p.cur().Pos}}, Cond: cond, Then: then, Else: els}
}

func (p *Parser) parseWhileStmt() ast.Stmt {
	start := p.cur().Pos
	p.expect(token.WHILE)
	p.expect(token.LPAREN)
	cond := p.parseExpr(runtime.BoolType)
	p.expect(token.RPAREN)
	p.loopDepth++
	body := p.parseBlock()
	p.loopDepth--
	return &ast.WhileStmt{StmtBase: ast.StmtBase{Range: token.Range{Start: start, End: p.cur().Pos}}, Cond: cond, Body: body}
}

// parseForStmt distinguishes C-style `for (init; cond; post)` from
// `for (name[, name] in expr)` by scanning ahead for a top-level IN token
// before the matching RPAREN.
func (p *Parser) parseForStmt() ast.Stmt {
	start := p.cur().Pos
	p.expect(token.FOR)
	p.expect(token.LPAREN)

	if p.looksLikeForEach() {
		return p.parseForEachStmt(start)
	}

	var init ast.Stmt
	if !p.at(token.SEMI) {
		init = p.parseSimpleStmt()
	} else {
		p.advance()
	}
	var cond ast.Expr
	if !p.at(token.SEMI) {
		cond = p.parseExpr(runtime.BoolType)
	}
	p.expect(token.SEMI)
	var post ast.Stmt
	if !p.at(token.RPAREN) {
		post = p.parseSimpleStmtNoSemi()
	}
	p.expect(token.RPAREN)
	p.loopDepth++
	body := p.parseBlock()
	p.loopDepth--
	return &ast.ForStmt{StmtBase: ast.StmtBase{Range: token.Range{Start: start, End: p.cur().Pos}}, Init: init, Cond: cond, Post: post, Body: body}
}

// looksLikeForEach peeks past one or two identifiers and an optional comma
// to see whether `in` follows, without consuming any tokens.
func (p *Parser) looksLikeForEach() bool {
	i := p.pos
	if p.toks[i].Tok != token.IDENT {
		return false
	}
	i++
	if i < len(p.toks) && p.toks[i].Tok == token.COMMA {
		i++
		if i >= len(p.toks) || p.toks[i].Tok != token.IDENT {
			return false
		}
		i++
	}
	return i < len(p.toks) && p.toks[i].Tok == token.IN
}

func (p *Parser) parseForEachStmt(start token.Pos) ast.Stmt {
	first := p.expect(token.IDENT).Lit
	var keyName, valueName string
	if _, ok := p.accept(token.COMMA); ok {
		keyName = first
		valueName = p.expect(token.IDENT).Lit
	} else {
		valueName = first
	}
	p.expect(token.IN)
	coll := p.parseExpr(runtime.InvalidTypeID)
	p.expect(token.RPAREN)

	keyType, valType := p.forEachBindingTypes(coll.Type())
	p.pushScope()
	if keyName != "" {
		p.declareLocal(keyName, keyType, false)
	}
	p.declareLocal(valueName, valType, false)
	p.loopDepth++
	body := p.parseBlock()
	p.loopDepth--
	p.popScope()

	return &ast.ForEachStmt{
		StmtBase:   ast.StmtBase{Range: token.Range{Start: start, End: p.cur().Pos}},
		KeyName:    keyName, ValueName: valueName, Collection: coll, Body: body,
	}
}

func (p *Parser) forEachBindingTypes(collType runtime.TypeID) (runtime.TypeID, runtime.TypeID) {
	def, ok := p.rt.TryGetType(collType)
	if !ok {
		return runtime.IntType, runtime.InvalidTypeID
	}
	switch def.Kind {
	case runtime.KindArray:
		return runtime.IntType, def.Array.Elem
	case runtime.KindFixedArray:
		return runtime.IntType, def.Fixed.Elem
	case runtime.KindMap:
		return def.Map.Key, def.Map.Value
	}
	return runtime.IntType, runtime.InvalidTypeID
}

func (p *Parser) parseSwitchStmt() ast.Stmt {
	start := p.cur().Pos
	p.expect(token.SWITCH)
	p.expect(token.LPAREN)
	subject := p.parseExpr(runtime.InvalidTypeID)
	p.expect(token.RPAREN)

	kind := ast.SwitchValue
	if def, ok := p.rt.TryGetType(subject.Type()); ok {
		switch def.Kind {
		case runtime.KindSum:
			kind = ast.SwitchSum
		case runtime.KindObject, runtime.KindAny:
			kind = ast.SwitchType
		}
	}

	p.expect(token.LBRACE)
	var cases []ast.SwitchCase
	for !p.at(token.RBRACE) && !p.at(token.EOF) {
		cases = append(cases, p.parseSwitchCase(kind, subject.Type()))
	}
	p.expect(token.RBRACE)

	return &ast.SwitchStmt{StmtBase: ast.StmtBase{Range: token.Range{Start: start, End: p.cur().Pos}}, Subject: subject, Kind: kind, Cases: cases}
}

func (p *Parser) parseSwitchCase(kind ast.SwitchKind, subjectType runtime.TypeID) ast.SwitchCase {
	if _, ok := p.accept(token.ELSE); ok {
		p.expect(token.COLON)
		return ast.SwitchCase{Default: true, Body: p.parseCaseBody()}
	}
	p.expect(token.CASE)

	var c ast.SwitchCase
	switch kind {
	case ast.SwitchSum:
		c.VariantName = p.expect(token.IDENT).Lit
		if _, ok := p.accept(token.LPAREN); ok {
			c.BindName = p.expect(token.IDENT).Lit
			p.expect(token.RPAREN)
		}
		p.expect(token.COLON)
		p.pushScope()
		if c.BindName != "" {
			payloadType := runtime.InvalidTypeID
			if def, ok := p.rt.TryGetType(subjectType); ok && def.Sum != nil {
				if vd := def.Sum.FindVariant(c.VariantName); vd != nil {
					payloadType = vd.PayloadType
				}
			}
			p.declareLocal(c.BindName, payloadType, false)
		}
		c.Body = p.parseCaseBody()
		p.popScope()

	case ast.SwitchType:
		c.BindType = true
		c.Type = p.parseType()
		if _, ok := p.accept(token.AS); ok {
			c.BindName = p.expect(token.IDENT).Lit
		}
		p.expect(token.COLON)
		p.pushScope()
		if c.BindName != "" {
			p.declareLocal(c.BindName, c.Type, false)
		}
		c.Body = p.parseCaseBody()
		p.popScope()

	default:
		c.Value = p.parseExpr(subjectType)
		p.expect(token.COLON)
		c.Body = p.parseCaseBody()
	}
	return c
}

func (p *Parser) parseReturnStmt() ast.Stmt {
	start := p.cur().Pos
	p.expect(token.RETURN)
	var val ast.Expr
	if !p.at(token.SEMI) {
		val = p.parseExpr(runtime.InvalidTypeID)
	}
	p.accept(token.SEMI)
	return &ast.ReturnStmt{StmtBase: ast.StmtBase{Range: token.Range{Start: start, End: p.cur().Pos}}, Value: val}
}

func (p *Parser) parseBreakStmt() ast.Stmt {
	start := p.cur().Pos
	p.expect(token.BREAK)
	p.accept(token.SEMI)
	if p.loopDepth == 0 {
		p.errorf(start, "break outside of a loop")
	}
	return &ast.BreakStmt{StmtBase: ast.StmtBase{Range: token.Range{Start: start, End: p.cur().Pos}}}
}

func (p *Parser) parseContinueStmt() ast.Stmt {
	start := p.cur().Pos
	p.expect(token.CONTINUE)
	p.accept(token.SEMI)
	if p.loopDepth == 0 {
		p.errorf(start, "continue outside of a loop")
	}
	return &ast.ContinueStmt{StmtBase: ast.StmtBase{Range: token.Range{Start: start, End: p.cur().Pos}}}
}

// parseLocalVarDecl is decl.go's parseGlobalVarDecl's local-scope
// counterpart: it declares each name into the current block scope instead
// of p.globals.
func (p *Parser) parseLocalVarDecl(isConst bool) ast.Stmt {
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
		p.declareLocal(n.Name, n.Type, isConst)
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

var assignableOpNames = map[token.Token]string{}

func init() {
	for t := token.PLUS_EQ; t <= token.GTGT_EQ; t++ {
		if base, ok := token.IsCompoundAssign(t); ok {
			assignableOpNames[t] = base.String()
		}
	}
}

// parseSimpleStmt parses an expression statement or assignment, consuming
// the trailing semicolon.
func (p *Parser) parseSimpleStmt() ast.Stmt {
	s := p.parseSimpleStmtNoSemi()
	p.accept(token.SEMI)
	return s
}

func (p *Parser) parseSimpleStmtNoSemi() ast.Stmt {
	start := p.cur().Pos
	e := p.parseExpr(runtime.InvalidTypeID)

	if _, ok := p.accept(token.EQ); ok {
		value := p.parseExpr(e.Type())
		p.checkAssignTarget(start, e)
		return &ast.AssignStmt{StmtBase: ast.StmtBase{Range: token.Range{Start: start, End: p.cur().Pos}}, Target: e, Value: value}
	}
	if op, ok := assignableOpNames[p.tok()]; ok {
		p.advance()
		value := p.parseExpr(e.Type())
		p.checkAssignTarget(start, e)
		return &ast.AssignStmt{StmtBase: ast.StmtBase{Range: token.Range{Start: start, End: p.cur().Pos}}, Target: e, Op: op, Value: value}
	}

	return &ast.ExprStmt{StmtBase: ast.StmtBase{Range: token.Range{Start: start, End: p.cur().Pos}}, X: e}
}

// checkAssignTarget rejects assignment to a const binding. lang/resolver
// re-derives this same check from the finished tree (it doesn't consult
// parser state), so this is a fail-fast duplicate, not the sole enforcement.
func (p *Parser) checkAssignTarget(pos token.Pos, target ast.Expr) {
	ident, ok := target.(*ast.Ident)
	if !ok {
		return
	}
	if p.isConstName(ident.Name) {
		p.errorf(pos, "cannot assign to const %q", ident.Name)
	}
}
