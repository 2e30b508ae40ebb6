package engine

import (
	"corvusDB/errors"
	"corvusDB/sql"
	"corvusDB/storage"
	"corvusDB/transaction"
)

// Result reports what a write statement did.
type Result struct {
	RowsAffected int64
	LastInsertID int64 // row ID of the last INSERT, 0 otherwise
}

// Statement is a compiled statement bound to a connection. The plan is
// immutable; parameters are supplied per execution, so one statement can
// run concurrently with different bindings.
type Statement struct {
	conn *Connection
	text string
	plan *sql.Plan
}

// Text returns the original statement text.
func (s *Statement) Text() string { return s.text }

// ReadOnly reports whether the statement only reads data.
func (s *Statement) ReadOnly() bool { return s.plan.Kind.ReadOnly() }

// Exec runs the statement with positional parameters.
func (s *Statement) Exec(args ...any) (Result, error) {
	b, err := bindPositional(s.plan.Params, args)
	if err != nil {
		return Result{}, err
	}
	res, _, err := s.run(b)
	return res, err
}

// ExecNamed runs the statement with named parameters.
func (s *Statement) ExecNamed(args map[string]any) (Result, error) {
	b, err := bindNamed(s.plan.Params, args)
	if err != nil {
		return Result{}, err
	}
	res, _, err := s.run(b)
	return res, err
}

// Query runs a read statement with positional parameters.
func (s *Statement) Query(args ...any) (*Rows, error) {
	b, err := bindPositional(s.plan.Params, args)
	if err != nil {
		return nil, err
	}
	_, rows, err := s.run(b)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		return nil, errors.Newf(errors.CodeInternal, "%s statement returns no rows", s.plan.Kind)
	}
	return rows, nil
}

// QueryNamed runs a read statement with named parameters.
func (s *Statement) QueryNamed(args map[string]any) (*Rows, error) {
	b, err := bindNamed(s.plan.Params, args)
	if err != nil {
		return nil, err
	}
	_, rows, err := s.run(b)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		return nil, errors.Newf(errors.CodeInternal, "%s statement returns no rows", s.plan.Kind)
	}
	return rows, nil
}

// run executes the plan. Transaction control statements drive the
// connection's explicit transaction; everything else runs in the
// explicit transaction if one is active, otherwise in an implicit
// transaction that commits (or rolls back) before run returns.
func (s *Statement) run(b *bindings) (Result, *Rows, error) {
	c := s.conn
	if c.closed.Load() {
		return Result{}, nil, errClosed()
	}

	switch s.plan.Kind {
	case sql.KindBegin:
		return Result{}, nil, c.Begin()
	case sql.KindCommit:
		return Result{}, nil, c.Commit()
	case sql.KindRollback:
		return Result{}, nil, c.Rollback()
	}

	if txn := c.currentTxn(); txn != nil {
		res, rows, err := runPlan(c.db.txns, txn, s.plan, b)
		if err != nil && errors.IsFatal(err) {
			// Storage faults abort the whole transaction.
			c.abandonTxn(txn)
			c.db.txns.Rollback(txn)
		}
		return res, rows, err
	}

	// Implicit transaction around the single statement.
	txn, err := c.db.txns.Begin(c.id, transaction.Implicit, c.BusyTimeout())
	if err != nil {
		return Result{}, nil, err
	}
	res, rows, err := runPlan(c.db.txns, txn, s.plan, b)
	if err != nil {
		c.db.txns.Rollback(txn)
		return Result{}, nil, err
	}
	if err := c.db.txns.Commit(txn); err != nil {
		// BUSY included: an implicit transaction is never left open.
		c.db.txns.Rollback(txn)
		return Result{}, nil, err
	}
	return res, rows, nil
}

// bindings holds the parameter values for one execution.
type bindings struct {
	positional []storage.Value
	named      map[string]storage.Value
}

func bindPositional(params sql.ParamInfo, args []any) (*bindings, error) {
	if len(params.Named) > 0 {
		return nil, errors.New(errors.CodeBinding,
			"statement uses named placeholders; bind parameters by name")
	}
	if len(args) != params.Positional {
		return nil, errors.Newf(errors.CodeBinding,
			"statement expects %d parameters, got %d", params.Positional, len(args))
	}
	b := &bindings{positional: make([]storage.Value, len(args))}
	for i, arg := range args {
		v, err := storage.FromGo(arg)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeBinding, "invalid parameter")
		}
		b.positional[i] = v
	}
	return b, nil
}

func bindNamed(params sql.ParamInfo, args map[string]any) (*bindings, error) {
	if params.Positional > 0 {
		return nil, errors.New(errors.CodeBinding,
			"statement uses positional placeholders; bind parameters by position")
	}
	b := &bindings{named: make(map[string]storage.Value, len(args))}
	for _, name := range params.Named {
		arg, ok := args[name]
		if !ok {
			return nil, errors.Newf(errors.CodeBinding, "missing parameter :%s", name)
		}
		v, err := storage.FromGo(arg)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeBinding, "invalid parameter")
		}
		b.named[name] = v
	}
	for name := range args {
		if _, ok := b.named[name]; !ok {
			return nil, errors.Newf(errors.CodeBinding, "unknown parameter :%s", name)
		}
	}
	return b, nil
}

// resolve evaluates an expression against the bindings.
func (b *bindings) resolve(e sql.Expr) (storage.Value, error) {
	if !e.Placeholder {
		return e.Literal, nil
	}
	if e.Name != "" {
		v, ok := b.named[e.Name]
		if !ok {
			return storage.Null(), errors.Newf(errors.CodeBinding, "missing parameter :%s", e.Name)
		}
		return v, nil
	}
	if e.Index < 1 || e.Index > len(b.positional) {
		return storage.Null(), errors.Newf(errors.CodeBinding, "parameter %d out of range", e.Index)
	}
	return b.positional[e.Index-1], nil
}
