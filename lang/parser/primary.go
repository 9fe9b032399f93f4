package parser

import (
	"github.com/jd28/smalls/lang/ast"
	"github.com/jd28/smalls/lang/intrinsic"
	"github.com/jd28/smalls/lang/runtime"
	"github.com/jd28/smalls/lang/scanner"
	"github.com/jd28/smalls/lang/token"
)

// sumVariantRef is a transient node produced when parsePrimary sees
// `Type::Variant`: it is resolved to a real *ast.CallExpr (CallSumVariant)
// either immediately, if no payload follows, or by parseCall once it sees
// the trailing `(payload)`.
type sumVariantRef struct {
	ast.ExprBase
	sumType runtime.TypeID
	tag     uint32
	name    string
}

func (e *sumVariantRef) String() string  { return e.name }
func (e *sumVariantRef) Walk(ast.Visitor) {}

func (p *Parser) parsePrimary(hint runtime.TypeID) ast.Expr {
	start := p.cur().Pos
	switch p.tok() {
	case token.INT:
		lit := p.advance()
		v, err := scanner.NumberToInt(lit.Lit)
		if err != nil {
			p.errorf(lit.Pos, "invalid integer literal: %v", err)
		}
		return &ast.IntLit{ExprBase: eb(start, p.cur().Pos, runtime.IntType, true), Value: int32(v)}

	case token.FLOAT:
		lit := p.advance()
		v, err := scanner.NumberToFloat(lit.Lit)
		if err != nil {
			p.errorf(lit.Pos, "invalid float literal: %v", err)
		}
		return &ast.FloatLit{ExprBase: eb(start, p.cur().Pos, runtime.FloatType, true), Value: float32(v)}

	case token.TRUE, token.FALSE:
		lit := p.advance()
		return &ast.BoolLit{ExprBase: eb(start, p.cur().Pos, runtime.BoolType, true), Value: lit.Tok == token.TRUE}

	case token.STRING:
		lit := p.advance()
		return &ast.StringLit{ExprBase: eb(start, p.cur().Pos, runtime.StringType, true), Value: lit.Lit}

	case token.NIL:
		p.advance()
		return &ast.NilLit{ExprBase: eb(start, p.cur().Pos, runtime.AnyType, true)}

	case token.TYPE:
		p.advance()
		operand := p.parseUnary(runtime.InvalidTypeID)
		return &ast.TypeofExpr{ExprBase: eb(start, p.cur().Pos, runtime.AnyType, false), Operand: operand}

	case token.FN:
		return p.parseLambda()

	case token.LPAREN:
		p.advance()
		e := p.parseExpr(runtime.InvalidTypeID)
		p.expect(token.RPAREN)
		return e

	case token.LBRACK:
		return p.parseArrayLit(hint)

	case token.LBRACE:
		return p.parseMapLit(hint)

	case token.IDENT:
		return p.parseIdentOrConstruct(hint)
	}

	p.errorf(p.cur().Pos, "unexpected %s in expression", describeTok(p.cur()))
	p.advance()
	return &ast.NilLit{ExprBase: eb(start, p.cur().Pos, runtime.InvalidTypeID, false)}
}

func (p *Parser) parseIdentOrConstruct(hint runtime.TypeID) ast.Expr {
	start := p.cur().Pos
	name := p.expect(token.IDENT).Lit

	if sumID, ok := p.sums[name]; ok {
		if _, ok := p.accept(token.COLONCOLON); ok {
			variant := p.expect(token.IDENT).Lit
			def, _ := p.rt.TryGetType(sumID)
			tag := uint32(0)
			if def != nil && def.Sum != nil {
				if vd := def.Sum.FindVariant(variant); vd != nil {
					tag = vd.Tag
				} else {
					p.errorf(start, "sum %q has no variant %q", name, variant)
				}
			}
			ref := &sumVariantRef{ExprBase: eb(start, p.cur().Pos, sumID, false), sumType: sumID, tag: tag, name: name + "::" + variant}
			if p.at(token.LPAREN) {
				return ref
			}
			return &ast.CallExpr{
				ExprBase:   eb(start, p.cur().Pos, sumID, false),
				Kind:       ast.CallSumVariant,
				SumType:    sumID, VariantTag: tag, HasPayload: false,
			}
		}
	}

	if structID, ok := p.structs[name]; ok {
		if p.at(token.LBRACE) {
			return p.parseStructLit(start, name, structID)
		}
	}

	// A bare newtype name only ever appears as a cast-call callee
	// (UserID(x)); it isn't a value in its own right, so it has no entry in
	// lookupName and must be exempted from the undeclared-name check below.
	// parseCall recognizes p.newtypes[name] independently of this Ident's
	// Type to build the CallNewtypeCast node.
	if _, ok := p.newtypes[name]; ok {
		return &ast.Ident{ExprBase: eb(start, p.cur().Pos, runtime.InvalidTypeID, false), Name: name}
	}

	typ, ok := p.lookupName(name)
	if !ok {
		// Bare intrinsic names (array_len, string_concat, ...) are reserved
		// call-only identifiers, not declared names; parseCall classifies
		// them by name independently of this Ident's Type.
		if _, isIntrinsic := intrinsic.FromString(name); !isIntrinsic {
			p.errorf(start, "undeclared name %q", name)
		}
	}
	isConst := p.isConstName(name)
	return &ast.Ident{ExprBase: eb(start, p.cur().Pos, typ, isConst), Name: name}
}

func (p *Parser) parseStructLit(start token.Pos, name string, structID runtime.TypeID) ast.Expr {
	p.expect(token.LBRACE)
	var fields []ast.StructLitField
	for !p.at(token.RBRACE) {
		fname := p.expect(token.IDENT).Lit
		p.expect(token.COLON)
		hint := p.fieldType(structID, fname)
		val := p.parseExpr(hint)
		fields = append(fields, ast.StructLitField{Name: fname, Value: val})
		if _, ok := p.accept(token.COMMA); !ok {
			break
		}
	}
	p.expect(token.RBRACE)
	return &ast.StructLit{ExprBase: eb(start, p.cur().Pos, structID, false), StructType: structID, Fields: fields}
}

// parseArrayLit parses `[e1, e2, ...]`. When hint resolves to a fixed-array
// type it produces a FixedArrayLit of that element type and declared count;
// otherwise a dynamic ArrayLit, element type taken from the first element
// (or hint's element type, if hint is itself a dynamic array and the
// literal is empty).
func (p *Parser) parseArrayLit(hint runtime.TypeID) ast.Expr {
	start := p.cur().Pos
	p.expect(token.LBRACK)

	elemHint := runtime.InvalidTypeID
	fixedCount := -1
	if def, ok := p.rt.TryGetType(hint); ok {
		switch def.Kind {
		case runtime.KindFixedArray:
			elemHint = def.Fixed.Elem
			fixedCount = def.Fixed.Count
		case runtime.KindArray:
			elemHint = def.Array.Elem
		}
	}

	var elems []ast.Expr
	for !p.at(token.RBRACK) {
		elems = append(elems, p.parseExpr(elemHint))
		if _, ok := p.accept(token.COMMA); !ok {
			break
		}
	}
	p.expect(token.RBRACK)

	elemType := elemHint
	if elemType == runtime.InvalidTypeID && len(elems) > 0 {
		elemType = elems[0].Type()
	}
	if elemType == runtime.InvalidTypeID {
		elemType = runtime.AnyType
	}

	if fixedCount >= 0 {
		return &ast.FixedArrayLit{ExprBase: eb(start, p.cur().Pos, hint, false), ElemType: elemType, Count: fixedCount, Elems: elems}
	}
	arrType := p.rt.RegisterArrayType(elemType)
	return &ast.ArrayLit{ExprBase: eb(start, p.cur().Pos, arrType, false), ElemType: elemType, Elems: elems}
}

func (p *Parser) parseMapLit(hint runtime.TypeID) ast.Expr {
	start := p.cur().Pos
	p.expect(token.LBRACE)

	keyHint, valHint := runtime.InvalidTypeID, runtime.InvalidTypeID
	if def, ok := p.rt.TryGetType(hint); ok && def.Kind == runtime.KindMap {
		keyHint, valHint = def.Map.Key, def.Map.Value
	}

	var entries []ast.MapLitEntry
	for !p.at(token.RBRACE) {
		k := p.parseExpr(keyHint)
		p.expect(token.COLON)
		v := p.parseExpr(valHint)
		entries = append(entries, ast.MapLitEntry{Key: k, Value: v})
		if _, ok := p.accept(token.COMMA); !ok {
			break
		}
	}
	p.expect(token.RBRACE)

	keyType, valType := keyHint, valHint
	if len(entries) > 0 {
		if keyType == runtime.InvalidTypeID {
			keyType = entries[0].Key.Type()
		}
		if valType == runtime.InvalidTypeID {
			valType = entries[0].Value.Type()
		}
	}
	if keyType == runtime.InvalidTypeID {
		keyType = runtime.AnyType
	}
	if valType == runtime.InvalidTypeID {
		valType = runtime.AnyType
	}
	mapType := p.rt.RegisterMapType(keyType, valType)
	return &ast.MapLit{ExprBase: eb(start, p.cur().Pos, mapType, false), KeyType: keyType, ValueType: valType, Entries: entries}
}

// parseLambda parses `fn(params): ret { body }`, recording each free
// identifier in the body that resolves to an enclosing scope as a Capture.
func (p *Parser) parseLambda() ast.Expr {
	start := p.cur().Pos
	p.expect(token.FN)
	p.expect(token.LPAREN)

	var params []ast.Param
	p.pushScope()
	if !p.at(token.RPAREN) {
		params = append(params, p.parseParam())
		for {
			if _, ok := p.accept(token.COMMA); !ok {
				break
			}
			params = append(params, p.parseParam())
		}
	}
	p.expect(token.RPAREN)

	retType := runtime.VoidType
	if _, ok := p.accept(token.COLON); ok {
		retType = p.parseType()
	}

	paramTypes := make([]runtime.TypeID, len(params))
	for i, prm := range params {
		paramTypes[i] = prm.Type
	}
	funcType := p.rt.RegisterFunctionType(paramTypes, retType)

	for _, prm := range params {
		p.declareLocal(prm.Name, prm.Type, false)
	}
	body := p.parseBlock()
	p.popScope()

	// Captures is left nil: lang/compiler discovers a lambda's free
	// variables lazily, as the body's Ident lookups fall through to its own
	// resolveUpvalue, rather than trusting a precomputed capture list.
	return &ast.LambdaExpr{
		ExprBase: eb(start, p.cur().Pos, funcType, false),
		Params:   params, Body: body,
	}
}

func (p *Parser) parseParam() ast.Param {
	name := p.expect(token.IDENT).Lit
	p.expect(token.COLON)
	typ := p.parseType()
	var def ast.Expr
	if _, ok := p.accept(token.EQ); ok {
		def = p.parseExpr(typ)
	}
	return ast.Param{Name: name, Type: typ, Default: def}
}
