package parser

import (
	"github.com/jd28/smalls/lang/runtime"
	"github.com/jd28/smalls/lang/token"
)

// parseType parses a type annotation and resolves it to a runtime.TypeID,
// registering structural types (arrays, tuples, maps, function types) with
// the Runtime on first use. Named types (struct/sum/newtype) must already
// have been declared earlier in the file — see the package doc for why
// forward references aren't supported.
func (p *Parser) parseType() runtime.TypeID {
	base := p.parseAtomType()
	for {
		if _, ok := p.accept(token.LBRACK); ok {
			if lit, ok := p.accept(token.INT); ok {
				p.expect(token.RBRACK)
				n, err := scanIntLiteral(lit.Lit)
				if err != nil {
					p.errorf(lit.Pos, "invalid fixed-array size: %v", err)
					n = 0
				}
				base = p.rt.RegisterFixedArrayType(base, n)
				continue
			}
			p.expect(token.RBRACK)
			base = p.rt.RegisterArrayType(base)
			continue
		}
		break
	}
	return base
}

func (p *Parser) parseAtomType() runtime.TypeID {
	switch {
	case p.at(token.LPAREN):
		return p.parseTupleOrFuncType()
	case p.at(token.IDENT):
		return p.parseNamedType()
	}
	p.errorf(p.cur().Pos, "expected type, found %s", describeTok(p.cur()))
	p.advance()
	return runtime.InvalidTypeID
}

func (p *Parser) parseNamedType() runtime.TypeID {
	name := p.expect(token.IDENT).Lit
	switch name {
	case "int":
		return runtime.IntType
	case "float":
		return runtime.FloatType
	case "bool":
		return runtime.BoolType
	case "string":
		return runtime.StringType
	case "void":
		return runtime.VoidType
	case "object":
		return runtime.ObjectType
	case "any":
		return runtime.AnyType
	case "map":
		p.expect(token.LBRACK)
		key := p.parseType()
		p.expect(token.RBRACK)
		val := p.parseType()
		return p.rt.RegisterMapType(key, val)
	}
	if t, ok := p.genericParams[name]; ok {
		return t
	}
	if id, ok := p.structs[name]; ok {
		return id
	}
	if id, ok := p.sums[name]; ok {
		return id
	}
	if id, ok := p.newtypes[name]; ok {
		return id
	}
	p.errorf(p.cur().Pos, "undeclared type %q", name)
	return runtime.InvalidTypeID
}

// parseTupleOrFuncType parses `(T1, T2, ...)` as a tuple type, or
// `(T1, T2) -> R` as a function type if `->` follows the closing paren.
func (p *Parser) parseTupleOrFuncType() runtime.TypeID {
	p.expect(token.LPAREN)
	var elems []runtime.TypeID
	if !p.at(token.RPAREN) {
		elems = append(elems, p.parseType())
		for {
			if _, ok := p.accept(token.COMMA); !ok {
				break
			}
			elems = append(elems, p.parseType())
		}
	}
	p.expect(token.RPAREN)
	if _, ok := p.accept(token.ARROW); ok {
		ret := p.parseType()
		return p.rt.RegisterFunctionType(elems, ret)
	}
	return p.rt.RegisterTupleType(elems)
}
