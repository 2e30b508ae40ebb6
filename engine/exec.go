package engine

import (
	"corvusDB/errors"
	"corvusDB/sql"
	"corvusDB/storage"
	"corvusDB/transaction"
)

// runPlan evaluates a data statement inside txn. Write plans escalate
// the transaction to writable (reserved lock) before recording changes;
// read plans see the transaction's own overlay view.
func runPlan(mgr *transaction.Manager, txn *transaction.Txn, plan *sql.Plan, b *bindings) (Result, *Rows, error) {
	switch plan.Kind {
	case sql.KindCreateTable:
		res, err := execCreateTable(mgr, txn, plan)
		return res, nil, err
	case sql.KindInsert:
		res, err := execInsert(mgr, txn, plan, b)
		return res, nil, err
	case sql.KindSelect:
		rows, err := execSelect(txn, plan, b)
		return Result{}, rows, err
	case sql.KindUpdate:
		res, err := execUpdate(mgr, txn, plan, b)
		return res, nil, err
	case sql.KindDelete:
		res, err := execDelete(mgr, txn, plan, b)
		return res, nil, err
	default:
		return Result{}, nil, errors.Newf(errors.CodeInternal, "unexecutable plan kind %s", plan.Kind)
	}
}

func execCreateTable(mgr *transaction.Manager, txn *transaction.Txn, plan *sql.Plan) (Result, error) {
	if txn.TableExists(plan.Table) {
		return Result{}, errors.Newf(errors.CodeSchema, "table %s already exists", plan.Table)
	}
	if err := mgr.MakeWritable(txn); err != nil {
		return Result{}, err
	}

	columns := make([]storage.Column, len(plan.Columns))
	for i, def := range plan.Columns {
		columns[i] = storage.Column{Name: def.Name, Type: def.Type}
	}
	txn.Record(storage.Change{
		Kind:    storage.ChangeCreateTable,
		Table:   plan.Table,
		Columns: columns,
	})
	return Result{}, nil
}

func execInsert(mgr *transaction.Manager, txn *transaction.Txn, plan *sql.Plan, b *bindings) (Result, error) {
	schema, err := tableSchema(txn, plan.Table)
	if err != nil {
		return Result{}, err
	}
	for _, name := range plan.InsertColumns {
		if !hasColumn(schema, name) {
			return Result{}, errors.Newf(errors.CodeSchema,
				"table %s has no column %s", plan.Table, name)
		}
	}
	if err := mgr.MakeWritable(txn); err != nil {
		return Result{}, err
	}

	values := make(map[string]storage.Value, len(plan.InsertColumns))
	for i, name := range plan.InsertColumns {
		v, err := b.resolve(plan.InsertValues[i])
		if err != nil {
			return Result{}, err
		}
		values[name] = v
	}

	rowID, err := txn.NextRowID(plan.Table)
	if err != nil {
		return Result{}, err
	}
	txn.Record(storage.Change{
		Kind:   storage.ChangeInsert,
		Table:  plan.Table,
		RowID:  rowID,
		Values: values,
	})
	return Result{RowsAffected: 1, LastInsertID: rowID}, nil
}

// execSelect snapshots the transaction's view of the table and returns a
// cursor. Filtering and projection happen per row on Next, not up front.
func execSelect(txn *transaction.Txn, plan *sql.Plan, b *bindings) (*Rows, error) {
	schema, err := tableSchema(txn, plan.Table)
	if err != nil {
		return nil, err
	}

	columns := plan.SelectColumns
	if len(columns) == 0 {
		columns = make([]string, len(schema))
		for i, col := range schema {
			columns[i] = col.Name
		}
	} else {
		for _, name := range columns {
			if !hasColumn(schema, name) {
				return nil, errors.Newf(errors.CodeSchema,
					"table %s has no column %s", plan.Table, name)
			}
		}
	}

	filter, err := compileWhere(plan.Where, b)
	if err != nil {
		return nil, err
	}
	source, err := txn.Rows(plan.Table)
	if err != nil {
		return nil, err
	}
	return &Rows{columns: columns, source: source, filter: filter, pos: -1}, nil
}

func execUpdate(mgr *transaction.Manager, txn *transaction.Txn, plan *sql.Plan, b *bindings) (Result, error) {
	schema, err := tableSchema(txn, plan.Table)
	if err != nil {
		return Result{}, err
	}
	for _, set := range plan.Sets {
		if !hasColumn(schema, set.Column) {
			return Result{}, errors.Newf(errors.CodeSchema,
				"table %s has no column %s", plan.Table, set.Column)
		}
	}
	if err := mgr.MakeWritable(txn); err != nil {
		return Result{}, err
	}

	filter, err := compileWhere(plan.Where, b)
	if err != nil {
		return Result{}, err
	}
	all, err := txn.Rows(plan.Table)
	if err != nil {
		return Result{}, err
	}

	var affected int64
	for _, row := range all {
		if !filter.matches(row) {
			continue
		}
		values := make(map[string]storage.Value, len(plan.Sets))
		for _, set := range plan.Sets {
			v, err := b.resolve(set.Expr)
			if err != nil {
				return Result{}, err
			}
			values[set.Column] = v
		}
		txn.Record(storage.Change{
			Kind:   storage.ChangeUpdate,
			Table:  plan.Table,
			RowID:  row.ID,
			Values: values,
		})
		affected++
	}
	return Result{RowsAffected: affected}, nil
}

func execDelete(mgr *transaction.Manager, txn *transaction.Txn, plan *sql.Plan, b *bindings) (Result, error) {
	if !txn.TableExists(plan.Table) {
		return Result{}, errors.Newf(errors.CodeSchema, "no such table: %s", plan.Table)
	}
	if err := mgr.MakeWritable(txn); err != nil {
		return Result{}, err
	}

	filter, err := compileWhere(plan.Where, b)
	if err != nil {
		return Result{}, err
	}
	all, err := txn.Rows(plan.Table)
	if err != nil {
		return Result{}, err
	}

	var affected int64
	for _, row := range all {
		if !filter.matches(row) {
			continue
		}
		txn.Record(storage.Change{
			Kind:  storage.ChangeDelete,
			Table: plan.Table,
			RowID: row.ID,
		})
		affected++
	}
	return Result{RowsAffected: affected}, nil
}

func tableSchema(txn *transaction.Txn, table string) ([]storage.Column, error) {
	if !txn.TableExists(table) {
		return nil, errors.Newf(errors.CodeSchema, "no such table: %s", table)
	}
	return txn.Schema(table)
}

func hasColumn(schema []storage.Column, name string) bool {
	for _, col := range schema {
		if col.Name == name {
			return true
		}
	}
	return false
}

// cond is one WHERE comparison with its operand already resolved, so
// per-row evaluation cannot fail.
type cond struct {
	column string
	op     sql.CompareOp
	want   storage.Value
}

// rowFilter is a compiled conjunction of conditions.
type rowFilter []cond

// compileWhere resolves every condition operand against the bindings
// once. Binding errors surface here, before any row is touched.
func compileWhere(where []sql.Condition, b *bindings) (rowFilter, error) {
	if len(where) == 0 {
		return nil, nil
	}
	filter := make(rowFilter, len(where))
	for i, c := range where {
		want, err := b.resolve(c.Expr)
		if err != nil {
			return nil, err
		}
		filter[i] = cond{column: c.Column, op: c.Op, want: want}
	}
	return filter, nil
}

// matches evaluates the filter against one row. A comparison across
// incompatible types is simply no match, never an error.
func (f rowFilter) matches(row storage.Row) bool {
	for _, c := range f {
		have, ok := row.Values[c.column]
		if !ok {
			have = storage.Null()
		}

		switch c.op {
		case sql.OpEqual:
			if !have.Equal(c.want) {
				return false
			}
		case sql.OpNotEqual:
			if have.Equal(c.want) {
				return false
			}
		default:
			order, err := have.Compare(c.want)
			if err != nil {
				return false
			}
			var match bool
			switch c.op {
			case sql.OpLess:
				match = order < 0
			case sql.OpLessEqual:
				match = order <= 0
			case sql.OpGreater:
				match = order > 0
			case sql.OpGreaterEqual:
				match = order >= 0
			}
			if !match {
				return false
			}
		}
	}
	return true
}
