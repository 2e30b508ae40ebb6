package sql

import "corvusDB/storage"

// StatementKind classifies a compiled statement.
type StatementKind int

const (
	KindCreateTable StatementKind = iota + 1
	KindInsert
	KindSelect
	KindUpdate
	KindDelete
	KindBegin
	KindCommit
	KindRollback
)

func (k StatementKind) String() string {
	switch k {
	case KindCreateTable:
		return "CREATE_TABLE"
	case KindInsert:
		return "INSERT"
	case KindSelect:
		return "SELECT"
	case KindUpdate:
		return "UPDATE"
	case KindDelete:
		return "DELETE"
	case KindBegin:
		return "BEGIN"
	case KindCommit:
		return "COMMIT"
	case KindRollback:
		return "ROLLBACK"
	default:
		return "UNKNOWN"
	}
}

// ReadOnly reports whether statements of this kind only read data. The
// executor uses this classification, not the statement text, to decide
// which lock to request.
func (k StatementKind) ReadOnly() bool {
	return k == KindSelect
}

// Expr is a value-producing expression: a literal or a placeholder.
type Expr struct {
	// Literal holds the constant value when the expression is not a
	// placeholder.
	Literal storage.Value

	// Placeholder marks a bound parameter. Index is the 1-based position
	// for ?, Name the key for :name.
	Placeholder bool
	Index       int
	Name        string
}

// CompareOp is a WHERE comparison operator.
type CompareOp int

const (
	OpEqual CompareOp = iota + 1
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
)

func (op CompareOp) String() string {
	switch op {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpLess:
		return "<"
	case OpLessEqual:
		return "<="
	case OpGreater:
		return ">"
	case OpGreaterEqual:
		return ">="
	default:
		return "?"
	}
}

// Condition is one `column op expr` comparison. WHERE clauses are
// conjunctions of conditions.
type Condition struct {
	Column string
	Op     CompareOp
	Expr   Expr
}

// Assignment is one `column = expr` in an UPDATE.
type Assignment struct {
	Column string
	Expr   Expr
}

// ColumnDef is one column of a CREATE TABLE.
type ColumnDef struct {
	Name string
	Type storage.ValueType
}

// Plan is a compiled, immutable statement. A plan may be shared by many
// concurrent executions; all per-execution state (bindings, cursors)
// lives elsewhere.
type Plan struct {
	Kind    StatementKind
	Table   string
	Columns []ColumnDef // CREATE TABLE

	InsertColumns []string // INSERT column list
	InsertValues  []Expr   // INSERT values

	SelectColumns []string // SELECT projection; empty means *

	Sets []Assignment // UPDATE assignments

	Where []Condition // SELECT/UPDATE/DELETE filter

	Params ParamInfo
}

// ParamInfo describes the placeholder schema of a plan. A plan uses
// either positional or named placeholders, never both.
type ParamInfo struct {
	Positional int      // number of ? placeholders
	Named      []string // distinct :name placeholders in order of first use
}
