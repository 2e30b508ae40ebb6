package sql

import (
	"strconv"
	"strings"

	"corvusDB/errors"
	"corvusDB/storage"
)

// Compile parses statement text into an immutable plan.
func Compile(text string) (*Plan, error) {
	p := &parser{lexer: NewLexer(text)}
	p.advance()

	plan, err := p.parseStatement()
	if err != nil {
		return nil, err
	}

	// Optional trailing semicolon, then end of input.
	if p.current.Type == TokenSemicolon {
		p.advance()
	}
	if p.current.Type != TokenEOF {
		return nil, p.errorf("unexpected %s after statement", p.current)
	}

	if len(plan.Params.Named) > 0 && plan.Params.Positional > 0 {
		return nil, errors.New(errors.CodeParse,
			"statement mixes positional and named placeholders")
	}
	return plan, nil
}

type parser struct {
	lexer   *Lexer
	current Token
	plan    Plan
}

func (p *parser) advance() {
	p.current = p.lexer.Next()
}

func (p *parser) errorf(format string, args ...any) error {
	return errors.Newf(errors.CodeParse, format, args...)
}

func (p *parser) expectKeyword(kw string) error {
	if p.current.Type != TokenKeyword || p.current.Value != kw {
		return p.errorf("expected %s, got %s", kw, p.current)
	}
	p.advance()
	return nil
}

func (p *parser) expectIdentifier() (string, error) {
	if p.current.Type != TokenIdentifier {
		return "", p.errorf("expected identifier, got %s", p.current)
	}
	name := p.current.Value
	p.advance()
	return name, nil
}

func (p *parser) expect(tt TokenType, what string) error {
	if p.current.Type != tt {
		return p.errorf("expected %s, got %s", what, p.current)
	}
	p.advance()
	return nil
}

func (p *parser) parseStatement() (*Plan, error) {
	if p.current.Type != TokenKeyword {
		return nil, p.errorf("expected statement keyword, got %s", p.current)
	}

	switch p.current.Value {
	case "CREATE":
		return p.parseCreateTable()
	case "INSERT":
		return p.parseInsert()
	case "SELECT":
		return p.parseSelect()
	case "UPDATE":
		return p.parseUpdate()
	case "DELETE":
		return p.parseDelete()
	case "BEGIN":
		p.advance()
		if p.current.Type == TokenKeyword && p.current.Value == "TRANSACTION" {
			p.advance()
		}
		p.plan.Kind = KindBegin
		return &p.plan, nil
	case "COMMIT":
		p.advance()
		p.plan.Kind = KindCommit
		return &p.plan, nil
	case "ROLLBACK":
		p.advance()
		p.plan.Kind = KindRollback
		return &p.plan, nil
	default:
		return nil, p.errorf("unsupported statement %s", p.current.Value)
	}
}

func (p *parser) parseCreateTable() (*Plan, error) {
	p.advance() // CREATE
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	table, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenLeftParen, "("); err != nil {
		return nil, err
	}

	var columns []ColumnDef
	for {
		name, err := p.expectIdentifier()
		if err != nil {
			return nil, err
		}
		if p.current.Type != TokenIdentifier && p.current.Type != TokenKeyword {
			return nil, p.errorf("expected column type, got %s", p.current)
		}
		colType, err := storage.ParseValueType(p.current.Value)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeParse, "invalid column definition")
		}
		p.advance()

		columns = append(columns, ColumnDef{Name: name, Type: colType})
		if p.current.Type == TokenComma {
			p.advance()
			continue
		}
		break
	}
	if err := p.expect(TokenRightParen, ")"); err != nil {
		return nil, err
	}

	p.plan.Kind = KindCreateTable
	p.plan.Table = table
	p.plan.Columns = columns
	return &p.plan, nil
}

func (p *parser) parseInsert() (*Plan, error) {
	p.advance() // INSERT
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	table, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}

	if err := p.expect(TokenLeftParen, "("); err != nil {
		return nil, err
	}
	var insertColumns []string
	for {
		name, err := p.expectIdentifier()
		if err != nil {
			return nil, err
		}
		insertColumns = append(insertColumns, name)
		if p.current.Type == TokenComma {
			p.advance()
			continue
		}
		break
	}
	if err := p.expect(TokenRightParen, ")"); err != nil {
		return nil, err
	}

	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}
	if err := p.expect(TokenLeftParen, "("); err != nil {
		return nil, err
	}
	var values []Expr
	for {
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		values = append(values, expr)
		if p.current.Type == TokenComma {
			p.advance()
			continue
		}
		break
	}
	if err := p.expect(TokenRightParen, ")"); err != nil {
		return nil, err
	}

	if len(values) != len(insertColumns) {
		return nil, p.errorf("INSERT has %d columns but %d values",
			len(insertColumns), len(values))
	}

	p.plan.Kind = KindInsert
	p.plan.Table = table
	p.plan.InsertColumns = insertColumns
	p.plan.InsertValues = values
	return &p.plan, nil
}

func (p *parser) parseSelect() (*Plan, error) {
	p.advance() // SELECT

	var projection []string
	if p.current.Type == TokenStar {
		p.advance()
	} else {
		for {
			name, err := p.expectIdentifier()
			if err != nil {
				return nil, err
			}
			projection = append(projection, name)
			if p.current.Type == TokenComma {
				p.advance()
				continue
			}
			break
		}
	}

	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}

	where, err := p.parseOptionalWhere()
	if err != nil {
		return nil, err
	}

	p.plan.Kind = KindSelect
	p.plan.Table = table
	p.plan.SelectColumns = projection
	p.plan.Where = where
	return &p.plan, nil
}

func (p *parser) parseUpdate() (*Plan, error) {
	p.advance() // UPDATE
	table, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}

	var sets []Assignment
	for {
		column, err := p.expectIdentifier()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokenEqual, "="); err != nil {
			return nil, err
		}
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		sets = append(sets, Assignment{Column: column, Expr: expr})
		if p.current.Type == TokenComma {
			p.advance()
			continue
		}
		break
	}

	where, err := p.parseOptionalWhere()
	if err != nil {
		return nil, err
	}

	p.plan.Kind = KindUpdate
	p.plan.Table = table
	p.plan.Sets = sets
	p.plan.Where = where
	return &p.plan, nil
}

func (p *parser) parseDelete() (*Plan, error) {
	p.advance() // DELETE
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}

	where, err := p.parseOptionalWhere()
	if err != nil {
		return nil, err
	}

	p.plan.Kind = KindDelete
	p.plan.Table = table
	p.plan.Where = where
	return &p.plan, nil
}

func (p *parser) parseOptionalWhere() ([]Condition, error) {
	if p.current.Type != TokenKeyword || p.current.Value != "WHERE" {
		return nil, nil
	}
	p.advance()

	var conditions []Condition
	for {
		column, err := p.expectIdentifier()
		if err != nil {
			return nil, err
		}

		var op CompareOp
		switch p.current.Type {
		case TokenEqual:
			op = OpEqual
		case TokenNotEqual:
			op = OpNotEqual
		case TokenLess:
			op = OpLess
		case TokenLessEqual:
			op = OpLessEqual
		case TokenGreater:
			op = OpGreater
		case TokenGreaterEqual:
			op = OpGreaterEqual
		default:
			return nil, p.errorf("expected comparison operator, got %s", p.current)
		}
		p.advance()

		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, Condition{Column: column, Op: op, Expr: expr})

		if p.current.Type == TokenKeyword && p.current.Value == "AND" {
			p.advance()
			continue
		}
		break
	}
	return conditions, nil
}

func (p *parser) parseExpr() (Expr, error) {
	switch p.current.Type {
	case TokenQuestion:
		p.advance()
		p.plan.Params.Positional++
		return Expr{Placeholder: true, Index: p.plan.Params.Positional}, nil

	case TokenNamedParam:
		name := p.current.Value
		p.advance()
		found := false
		for _, existing := range p.plan.Params.Named {
			if existing == name {
				found = true
				break
			}
		}
		if !found {
			p.plan.Params.Named = append(p.plan.Params.Named, name)
		}
		return Expr{Placeholder: true, Name: name}, nil

	case TokenString:
		value := p.current.Value
		p.advance()
		return Expr{Literal: storage.Text(value)}, nil

	case TokenInteger:
		n, err := strconv.ParseInt(p.current.Value, 10, 64)
		if err != nil {
			return Expr{}, p.errorf("invalid integer literal %q", p.current.Value)
		}
		p.advance()
		return Expr{Literal: storage.Integer(n)}, nil

	case TokenFloat:
		f, err := strconv.ParseFloat(p.current.Value, 64)
		if err != nil {
			return Expr{}, p.errorf("invalid numeric literal %q", p.current.Value)
		}
		p.advance()
		return Expr{Literal: storage.Real(f)}, nil

	case TokenKeyword:
		switch strings.ToUpper(p.current.Value) {
		case "NULL":
			p.advance()
			return Expr{Literal: storage.Null()}, nil
		case "TRUE":
			p.advance()
			return Expr{Literal: storage.Boolean(true)}, nil
		case "FALSE":
			p.advance()
			return Expr{Literal: storage.Boolean(false)}, nil
		}
	}
	return Expr{}, p.errorf("expected value, got %s", p.current)
}
