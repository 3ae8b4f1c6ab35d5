// Recursive descent, operator-precedence parser.
// https://en.wikipedia.org/wiki/Recursive_descent_parser
//
// Precedence, low to high: assignment -> import -> logical-or ->
// equality/relational -> additive -> multiplicative -> try (prefix !) ->
// call -> index -> struct-access (.) -> atom/primary.
package parser

import (
	"fmt"
	"gila/ast"
	"gila/token"
)

// Parser turns a token stream into a Program node. Errors are fatal: the
// first one encountered aborts the parse, there is no error recovery.
type Parser struct {
	tokens []token.Token
	pos    int
}

// New creates a Parser over a token stream produced by the lexer. The
// stream must end with a token.EOF token.
func New(tokens []token.Token) *Parser {
	return &Parser{tokens: tokens}
}

func (p *Parser) peek() token.Token {
	return p.tokens[p.pos]
}

func (p *Parser) peekAt(offset int) token.Token {
	i := p.pos + offset
	if i >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[i]
}

func (p *Parser) previous() token.Token {
	return p.tokens[p.pos-1]
}

func (p *Parser) atEnd() bool {
	return p.peek().Kind == token.EOF
}

func (p *Parser) advance() token.Token {
	if !p.atEnd() {
		p.pos++
	}
	return p.previous()
}

func (p *Parser) check(kind token.Kind) bool {
	return p.peek().Kind == kind
}

func (p *Parser) match(kinds ...token.Kind) bool {
	for _, kind := range kinds {
		if p.check(kind) {
			p.advance()
			return true
		}
	}
	return false
}

func (p *Parser) consume(kind token.Kind) (token.Token, error) {
	if p.check(kind) {
		return p.advance(), nil
	}
	return token.Token{}, ParseError{Expected: kind, Found: p.peek(), Pos: p.peek().Pos}
}

func errf(pos token.Position, format string, args ...any) error {
	return ParseError{Pos: pos, Message: fmt.Sprintf(format, args...)}
}

// Parse parses the full token stream into a Program node, or returns the
// first ParseError encountered.
func (p *Parser) Parse() (ast.Node, error) {
	startPos := p.peek().Pos
	var stmts []ast.Node
	for !p.atEnd() {
		stmt, err := p.statement()
		if err != nil {
			return ast.Node{}, err
		}
		stmts = append(stmts, stmt)
	}
	endPos := startPos
	if len(stmts) > 0 {
		endPos = stmts[len(stmts)-1].Pos
	}
	return ast.Node{Pos: startPos.Join(endPos), Stmt: ast.Program{Stmts: stmts}}, nil
}

// statement dispatches on the statement-start token: assert, do...end
// block, test, if, for, match, return, an identifier-led form, or a bare
// expression.
func (p *Parser) statement() (ast.Node, error) {
	switch p.peek().Kind {
	case token.ASSERT:
		return p.assertStmt()
	case token.DO:
		return p.blockStmt()
	case token.TEST:
		return p.testStmt()
	case token.IF:
		return p.ifStmt()
	case token.FOR:
		return p.forStmt()
	case token.MATCH:
		return p.matchStmt()
	case token.RETURN:
		return p.returnStmt()
	case token.IDENTIFIER:
		return p.identifierLed()
	default:
		return p.expression()
	}
}

func (p *Parser) assertStmt() (ast.Node, error) {
	start := p.advance().Pos // 'assert'
	expr, err := p.expression()
	if err != nil {
		return ast.Node{}, err
	}
	var message *token.Token
	end := expr.Pos
	if p.match(token.COMMA) {
		tok := p.advance()
		message = &tok
		end = tok.Pos
	}
	return ast.Node{Pos: start.Join(end), Stmt: ast.Assert{Expr: expr, Message: message}}, nil
}

func (p *Parser) blockStmt() (ast.Node, error) {
	doTok := p.advance() // 'do'
	var stmts []ast.Node
	for !p.check(token.END) && !p.atEnd() {
		stmt, err := p.statement()
		if err != nil {
			return ast.Node{}, err
		}
		stmts = append(stmts, stmt)
	}
	end := doTok.Pos
	if len(stmts) > 0 {
		end = stmts[len(stmts)-1].Pos
	}
	if _, err := p.consume(token.END); err != nil {
		return ast.Node{}, err
	}
	return ast.Node{Pos: doTok.Pos.Join(end), Stmt: ast.Block{Stmts: stmts}}, nil
}

func (p *Parser) testStmt() (ast.Node, error) {
	start := p.advance().Pos // 'test'
	name, err := p.primary()
	if err != nil {
		return ast.Node{}, err
	}
	body, err := p.statement()
	if err != nil {
		return ast.Node{}, err
	}
	return ast.Node{Pos: start.Join(body.Pos), Stmt: ast.Test{Name: name, Body: body}}, nil
}

func (p *Parser) ifStmt() (ast.Node, error) {
	start := p.advance().Pos // 'if'
	cond, err := p.expression()
	if err != nil {
		return ast.Node{}, err
	}
	if _, err := p.consume(token.THEN); err != nil {
		return ast.Node{}, err
	}
	then, err := p.statement()
	if err != nil {
		return ast.Node{}, err
	}
	end := then.Pos
	var elseBranch *ast.Node
	if p.match(token.ELSE) {
		e, err := p.statement()
		if err != nil {
			return ast.Node{}, err
		}
		elseBranch = &e
		end = e.Pos
	}
	if _, err := p.consume(token.END); err != nil {
		return ast.Node{}, err
	}
	return ast.Node{Pos: start.Join(end), Stmt: ast.If{Cond: cond, Then: then, Else: elseBranch}}, nil
}

func (p *Parser) forStmt() (ast.Node, error) {
	start := p.advance().Pos // 'for'
	varTok, err := p.consume(token.IDENTIFIER)
	if err != nil {
		return ast.Node{}, err
	}
	if _, err := p.consume(token.IN); err != nil {
		return ast.Node{}, err
	}
	rangeStart := p.advance()
	if _, err := p.consume(token.DOTDOT); err != nil {
		return ast.Node{}, err
	}
	rangeEnd := p.advance()
	body, err := p.statement()
	if err != nil {
		return ast.Node{}, err
	}
	return ast.Node{
		Pos:  start.Join(body.Pos),
		Stmt: ast.For{Var: varTok, Start: rangeStart, End: rangeEnd, Body: body},
	}, nil
}

// matchStmt parses `match expr (case tag then stmt)+ end`: absent from
// the teacher's grammar, added per the expanded spec's Match/MatchCase
// support (see DESIGN.md). A tag is a bare NUMBER or ATOM token, never
// a full expression, mirroring the analyser's inferMatchTag contract.
func (p *Parser) matchStmt() (ast.Node, error) {
	start := p.advance().Pos // 'match'
	scrutinee, err := p.expression()
	if err != nil {
		return ast.Node{}, err
	}
	var cases []ast.Node
	for p.check(token.CASE) {
		caseStart := p.advance().Pos // 'case'
		if !p.check(token.NUMBER) && !p.check(token.ATOM) {
			return ast.Node{}, errf(p.peek().Pos, "expected a number or atom match tag, found %s", p.peek().Kind)
		}
		tag := p.advance()
		if _, err := p.consume(token.THEN); err != nil {
			return ast.Node{}, err
		}
		body, err := p.statement()
		if err != nil {
			return ast.Node{}, err
		}
		cases = append(cases, ast.Node{Pos: caseStart.Join(body.Pos), Stmt: ast.MatchCase{Tag: tag, Body: body}})
	}
	end, err := p.consume(token.END)
	if err != nil {
		return ast.Node{}, err
	}
	return ast.Node{Pos: start.Join(end.Pos), Stmt: ast.Match{Scrutinee: scrutinee, Cases: cases}}, nil
}

func (p *Parser) returnStmt() (ast.Node, error) {
	start := p.advance().Pos // 'return'
	// A bare `return` at end-of-block/EOF has no expression.
	if p.atEnd() || p.check(token.END) {
		return ast.Node{Pos: start, Stmt: ast.Return{}}, nil
	}
	expr, err := p.expression()
	if err != nil {
		return ast.Node{}, err
	}
	return ast.Node{Pos: start.Join(expr.Pos), Stmt: ast.Return{Expr: &expr}}, nil
}

// identifierLed peeks one token past the leading identifier to decide
// between the three declarative forms spec'd for this position and a
// general expression statement.
func (p *Parser) identifierLed() (ast.Node, error) {
	nameTok := p.peek()
	switch p.peekAt(1).Kind {
	case token.COLON:
		p.advance() // identifier
		p.advance() // ':'
		typ, err := p.parseType()
		if err != nil {
			return ast.Node{}, err
		}
		if _, err := p.consume(token.ASSIGN); err != nil {
			return ast.Node{}, err
		}
		init, err := p.expression()
		if err != nil {
			return ast.Node{}, err
		}
		return ast.Node{
			Pos:  nameTok.Pos.Join(init.Pos),
			Stmt: ast.Define{Name: nameTok, Type: &typ, Init: &init},
		}, nil

	case token.FN:
		p.advance() // identifier
		p.advance() // 'fn'
		params, err := p.parseParams()
		if err != nil {
			return ast.Node{}, err
		}
		var retType *ast.DataType
		if p.match(token.ARROW) {
			t, err := p.parseType()
			if err != nil {
				return ast.Node{}, err
			}
			retType = &t
		}
		body, err := p.statement()
		if err != nil {
			return ast.Node{}, err
		}
		return ast.Node{
			Pos:  nameTok.Pos.Join(body.Pos),
			Stmt: ast.NamedFunction{Name: nameTok, Params: params, ReturnType: retType, Body: body},
		}, nil

	case token.TYPE:
		p.advance() // identifier
		p.advance() // 'type'
		var fields []ast.Node
		for !p.check(token.END) && !p.atEnd() {
			field, err := p.parseFieldDecl()
			if err != nil {
				return ast.Node{}, err
			}
			fields = append(fields, field)
		}
		endTok, err := p.consume(token.END)
		if err != nil {
			return ast.Node{}, err
		}
		return ast.Node{
			Pos:  nameTok.Pos.Join(endTok.Pos),
			Stmt: ast.NamedTypeDecl{Name: nameTok, Fields: fields},
		}, nil

	case token.ASSIGN:
		p.advance() // identifier
		p.advance() // '='
		init, err := p.expression()
		if err != nil {
			return ast.Node{}, err
		}
		return ast.Node{
			Pos:  nameTok.Pos.Join(init.Pos),
			Stmt: ast.Define{Name: nameTok, Init: &init},
		}, nil

	default:
		return p.expression()
	}
}

func (p *Parser) parseParams() ([]ast.Node, error) {
	if _, err := p.consume(token.LPAREN); err != nil {
		return nil, err
	}
	var params []ast.Node
	if !p.check(token.RPAREN) {
		for {
			field, err := p.parseFieldDecl()
			if err != nil {
				return nil, err
			}
			params = append(params, field)
			if !p.match(token.COMMA) {
				break
			}
		}
	}
	if _, err := p.consume(token.RPAREN); err != nil {
		return nil, err
	}
	return params, nil
}

// parseFieldDecl parses `name : Type`, used both for function parameters
// and type-declaration fields.
func (p *Parser) parseFieldDecl() (ast.Node, error) {
	nameTok, err := p.consume(token.IDENTIFIER)
	if err != nil {
		return ast.Node{}, err
	}
	if _, err := p.consume(token.COLON); err != nil {
		return ast.Node{}, err
	}
	typ, err := p.parseType()
	if err != nil {
		return ast.Node{}, err
	}
	return ast.Node{Pos: nameTok.Pos, Stmt: ast.Define{Name: nameTok, Type: &typ}}, nil
}

// parseType parses a DataType annotation: `$name` (Generic), `any`,
// `string`, `bool`, `u32`, a named reference, each optionally followed by
// `[]` to form a Slice.
func (p *Parser) parseType() (ast.DataType, error) {
	var t ast.DataType
	switch {
	case p.match(token.DOLLAR):
		nameTok, err := p.consume(token.IDENTIFIER)
		if err != nil {
			return ast.DataType{}, err
		}
		t = ast.DataType{Kind: ast.Generic, Name: nameTok.Lexeme}
	case p.match(token.ANY):
		t = ast.DataType{Kind: ast.Any}
	case p.match(token.STRING):
		t = ast.DataType{Kind: ast.StringType}
	case p.match(token.BOOL):
		t = ast.DataType{Kind: ast.Bool}
	case p.match(token.U32):
		t = ast.DataType{Kind: ast.U32}
	case p.check(token.IDENTIFIER):
		nameTok := p.advance()
		t = ast.DataType{Kind: ast.NamedReference, Name: nameTok.Lexeme}
	default:
		return ast.DataType{}, errf(p.peek().Pos, "expected a type, found %s", p.peek().Kind)
	}
	if p.match(token.LSQUARE) {
		if _, err := p.consume(token.RSQUARE); err != nil {
			return ast.DataType{}, err
		}
		elem := t
		t = ast.DataType{Kind: ast.SliceType, Elem: &elem}
	}
	return t, nil
}

// expression is the entry point for expression parsing: assignment is the
// lowest-precedence rule.
func (p *Parser) expression() (ast.Node, error) {
	return p.assignment()
}

// assignment is right-associative: `lhs = rhs`, where lhs must resolve to
// a place (enforced by the analyser, not here).
func (p *Parser) assignment() (ast.Node, error) {
	lhs, err := p.importLevel()
	if err != nil {
		return ast.Node{}, err
	}
	if p.match(token.ASSIGN) {
		rhs, err := p.assignment()
		if err != nil {
			return ast.Node{}, err
		}
		return ast.Node{Pos: lhs.Pos.Join(rhs.Pos), Stmt: ast.Assign{Lhs: lhs, Rhs: rhs}}, nil
	}
	return lhs, nil
}

func (p *Parser) importLevel() (ast.Node, error) {
	if p.check(token.IMPORT) {
		start := p.advance().Pos
		var path []token.Token
		for {
			tok, err := p.consume(token.IDENTIFIER)
			if err != nil {
				return ast.Node{}, err
			}
			path = append(path, tok)
			if !p.match(token.DOT) {
				break
			}
		}
		end := path[len(path)-1].Pos
		return ast.Node{Pos: start.Join(end), Stmt: ast.Import{Path: path}}, nil
	}
	return p.logicalOr()
}

func (p *Parser) logicalOr() (ast.Node, error) {
	lhs, err := p.equality()
	if err != nil {
		return ast.Node{}, err
	}
	for p.match(token.OR) {
		rhs, err := p.equality()
		if err != nil {
			return ast.Node{}, err
		}
		lhs = ast.Node{Pos: lhs.Pos.Join(rhs.Pos), Stmt: ast.BinOp{Lhs: lhs, Rhs: rhs, Op: ast.LogicalOr}}
	}
	return lhs, nil
}

var equalityOps = map[token.Kind]ast.Op{
	token.EQUALS:     ast.Eq,
	token.NOT_EQUAL:  ast.Neq,
	token.GREATER:    ast.Gt,
	token.GREATER_EQ: ast.Ge,
	token.LESS:       ast.Lt,
	token.LESS_EQ:    ast.Le,
}

func (p *Parser) equality() (ast.Node, error) {
	lhs, err := p.additive()
	if err != nil {
		return ast.Node{}, err
	}
	for {
		op, ok := equalityOps[p.peek().Kind]
		if !ok {
			break
		}
		p.advance()
		rhs, err := p.additive()
		if err != nil {
			return ast.Node{}, err
		}
		lhs = ast.Node{Pos: lhs.Pos.Join(rhs.Pos), Stmt: ast.BinOp{Lhs: lhs, Rhs: rhs, Op: op}}
	}
	return lhs, nil
}

func (p *Parser) additive() (ast.Node, error) {
	lhs, err := p.multiplicative()
	if err != nil {
		return ast.Node{}, err
	}
	for {
		var op ast.Op
		switch {
		case p.match(token.ADD):
			op = ast.Add
		case p.match(token.SUB):
			op = ast.Sub
		default:
			return lhs, nil
		}
		rhs, err := p.multiplicative()
		if err != nil {
			return ast.Node{}, err
		}
		lhs = ast.Node{Pos: lhs.Pos.Join(rhs.Pos), Stmt: ast.BinOp{Lhs: lhs, Rhs: rhs, Op: op}}
	}
}

func (p *Parser) multiplicative() (ast.Node, error) {
	lhs, err := p.tryLevel()
	if err != nil {
		return ast.Node{}, err
	}
	for {
		var op ast.Op
		switch {
		case p.match(token.MUL):
			op = ast.Mul
		case p.match(token.DIV):
			op = ast.Div
		default:
			return lhs, nil
		}
		rhs, err := p.tryLevel()
		if err != nil {
			return ast.Node{}, err
		}
		lhs = ast.Node{Pos: lhs.Pos.Join(rhs.Pos), Stmt: ast.BinOp{Lhs: lhs, Rhs: rhs, Op: op}}
	}
}

// tryLevel handles the prefix `!expr` form.
func (p *Parser) tryLevel() (ast.Node, error) {
	if p.check(token.EXCLAIM) {
		start := p.advance().Pos
		expr, err := p.call()
		if err != nil {
			return ast.Node{}, err
		}
		return ast.Node{Pos: start.Join(expr.Pos), Stmt: ast.Try{Expr: expr}}, nil
	}
	return p.call()
}

// call parses zero or more `(args...)` suffixes on an index expression.
func (p *Parser) call() (ast.Node, error) {
	expr, err := p.index()
	if err != nil {
		return ast.Node{}, err
	}
	for p.check(token.LPAREN) {
		p.advance()
		var args []ast.Node
		if !p.check(token.RPAREN) {
			for {
				arg, err := p.expression()
				if err != nil {
					return ast.Node{}, err
				}
				args = append(args, arg)
				if !p.match(token.COMMA) {
					break
				}
			}
		}
		closeTok, err := p.consume(token.RPAREN)
		if err != nil {
			return ast.Node{}, err
		}
		expr = ast.Node{Pos: expr.Pos.Join(closeTok.Pos), Stmt: ast.Call{Callee: expr, Args: args}}
	}
	return expr, nil
}

// index parses zero or more `[key]` suffixes on a struct-access expression.
func (p *Parser) index() (ast.Node, error) {
	expr, err := p.structAccess()
	if err != nil {
		return ast.Node{}, err
	}
	for p.check(token.LSQUARE) {
		p.advance()
		key, err := p.expression()
		if err != nil {
			return ast.Node{}, err
		}
		closeTok, err := p.consume(token.RSQUARE)
		if err != nil {
			return ast.Node{}, err
		}
		expr = ast.Node{Pos: expr.Pos.Join(closeTok.Pos), Stmt: ast.Index{Collection: expr, Key: key}}
	}
	return expr, nil
}

// structAccess parses zero or more `.field` suffixes on a primary.
func (p *Parser) structAccess() (ast.Node, error) {
	expr, err := p.primary()
	if err != nil {
		return ast.Node{}, err
	}
	for p.check(token.DOT) {
		p.advance()
		field, err := p.consume(token.IDENTIFIER)
		if err != nil {
			return ast.Node{}, err
		}
		expr = ast.Node{Pos: expr.Pos.Join(field.Pos), Stmt: ast.StructAccess{Base: expr, Field: field}}
	}
	return expr, nil
}

func (p *Parser) primary() (ast.Node, error) {
	tok := p.peek()
	switch tok.Kind {
	case token.TRUE:
		p.advance()
		return ast.Node{Pos: tok.Pos, Stmt: ast.LiteralBool{Value: true}}, nil
	case token.FALSE:
		p.advance()
		return ast.Node{Pos: tok.Pos, Stmt: ast.LiteralBool{Value: false}}, nil
	case token.NUMBER:
		p.advance()
		return ast.Node{Pos: tok.Pos, Stmt: ast.LiteralNum{Tok: tok}}, nil
	case token.STRING_LIT:
		p.advance()
		return ast.Node{Pos: tok.Pos, Stmt: ast.StringLit{Tok: tok}}, nil
	case token.ATOM:
		p.advance()
		return ast.Node{Pos: tok.Pos, Stmt: ast.Atom{Tok: tok}}, nil
	case token.IDENTIFIER:
		p.advance()
		return ast.Node{Pos: tok.Pos, Stmt: ast.Variable{Tok: tok}}, nil
	case token.LPAREN:
		p.advance()
		expr, err := p.expression()
		if err != nil {
			return ast.Node{}, err
		}
		if _, err := p.consume(token.RPAREN); err != nil {
			return ast.Node{}, err
		}
		return expr, nil
	case token.LSQUARE:
		return p.sliceLit()
	case token.AMPERSAND:
		return p.annotation()
	}
	return ast.Node{}, errf(tok.Pos, "unrecognised expression, found %s", tok.Kind)
}

func (p *Parser) sliceLit() (ast.Node, error) {
	start := p.advance().Pos // '['
	var items []ast.Node
	if !p.check(token.RSQUARE) {
		for {
			item, err := p.expression()
			if err != nil {
				return ast.Node{}, err
			}
			items = append(items, item)
			if !p.match(token.COMMA) {
				break
			}
		}
	}
	closeTok, err := p.consume(token.RSQUARE)
	if err != nil {
		return ast.Node{}, err
	}
	return ast.Node{Pos: start.Join(closeTok.Pos), Stmt: ast.Slice{Items: items}}, nil
}

// annotation parses `&name(args?) target`; args are raw tokens, not
// parsed expressions.
func (p *Parser) annotation() (ast.Node, error) {
	start := p.advance().Pos // '&'
	nameTok, err := p.advanceAny()
	if err != nil {
		return ast.Node{}, err
	}
	var args []token.Token
	if p.check(token.LPAREN) {
		p.advance()
		if !p.check(token.RPAREN) {
			for {
				tok, err := p.advanceAny()
				if err != nil {
					return ast.Node{}, err
				}
				args = append(args, tok)
				if !p.match(token.COMMA) {
					break
				}
			}
		}
		if _, err := p.consume(token.RPAREN); err != nil {
			return ast.Node{}, err
		}
	}
	target, err := p.expression()
	if err != nil {
		return ast.Node{}, err
	}
	return ast.Node{
		Pos:  start.Join(target.Pos),
		Stmt: ast.Annotation{Name: nameTok, Args: args, Target: target},
	}, nil
}

func (p *Parser) advanceAny() (token.Token, error) {
	if p.atEnd() {
		return token.Token{}, errf(p.peek().Pos, "unexpected end of input")
	}
	return p.advance(), nil
}
