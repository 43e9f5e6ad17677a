package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JulianTonti/specify7/internal/datamodel"
	"github.com/JulianTonti/specify7/internal/upload"
)

// Postgres is the pgx-backed Store. Filter keys traversing to-one
// relationships compile to correlated scalar subqueries; exclusion clauses
// compile to NOT EXISTS chains. Every table is expected to expose a
// bigserial "id" primary key.
type Postgres struct {
	pool *pgxpool.Pool
	dm   *datamodel.Datamodel
}

// NewPostgres builds a Store over an existing connection pool.
func NewPostgres(pool *pgxpool.Pool, dm *datamodel.Datamodel) *Postgres {
	return &Postgres{pool: pool, dm: dm}
}

// Begin opens one row's transaction.
func (p *Postgres) Begin(ctx context.Context) (upload.Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &pgTx{tx: tx, dm: p.dm}, nil
}

type pgTx struct {
	tx pgx.Tx
	dm *datamodel.Datamodel
}

func (t *pgTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

func ident(name string) string {
	return pgx.Identifier{strings.ToLower(name)}.Sanitize()
}

func (t *pgTx) Query(ctx context.Context, table string, filters []upload.Filter, excludes []upload.Exclude) ([]int64, error) {
	var args []any
	aliasSeq := 0

	alternatives := make([]string, 0, len(filters))
	for _, f := range filters {
		cond, err := t.filterSQL(table, "t0", f, &args, &aliasSeq)
		if err != nil {
			return nil, err
		}
		alternatives = append(alternatives, "("+cond+")")
	}
	if len(alternatives) == 0 {
		return nil, nil
	}

	where := strings.Join(alternatives, " OR ")
	for _, ex := range excludes {
		if ex.Lookup == "" {
			continue
		}
		reach, err := t.reachSQL(table, "t0", strings.Split(ex.Lookup, "__"), ex.Filter, &args, &aliasSeq)
		if err != nil {
			return nil, err
		}
		where = "(" + where + ") AND NOT " + reach
	}

	sql := fmt.Sprintf("SELECT t0.id FROM %s t0 WHERE %s", ident(table), where)
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s id: %w", table, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	return ids, nil
}

func (t *pgTx) Create(ctx context.Context, table string, values upload.Filter) (int64, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cols := make([]string, len(keys))
	params := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		cols[i] = ident(k)
		params[i] = fmt.Sprintf("$%d", i+1)
		args[i] = values[k]
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		ident(table), strings.Join(cols, ", "), strings.Join(params, ", "))

	var id int64
	if err := t.tx.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
			return 0, &upload.BusinessRuleError{Message: pgErr.Message}
		}
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}
	return id, nil
}

// filterSQL renders one filter set as a conjunction. Keys are sorted so the
// generated statement is deterministic for a given filter.
func (t *pgTx) filterSQL(table, alias string, filter upload.Filter, args *[]any, aliasSeq *int) (string, error) {
	if len(filter) == 0 {
		return "TRUE", nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]string, 0, len(keys))
	for _, key := range keys {
		expr, err := t.pathExpr(table, alias, strings.Split(key, "__"), aliasSeq)
		if err != nil {
			return "", err
		}
		conds = append(conds, valueCond(expr, filter[key], args))
	}
	return strings.Join(conds, " AND "), nil
}

// pathExpr renders a possibly relationship-traversing key as a scalar
// expression. Traversal uses correlated scalar subqueries so a missing link
// resolves to NULL, matching the engine's exact-match semantics.
func (t *pgTx) pathExpr(table, alias string, segments []string, aliasSeq *int) (string, error) {
	if len(segments) == 1 {
		return alias + "." + ident(segments[0]), nil
	}
	tbl, ok := t.dm.Table(table)
	if !ok {
		return "", fmt.Errorf("unknown table %s", table)
	}
	rel, ok := tbl.Relationship(segments[0])
	if !ok || rel.Kind != datamodel.ToOne {
		return "", fmt.Errorf("table %s: %s is not a to-one relationship", table, segments[0])
	}
	*aliasSeq++
	sub := fmt.Sprintf("t%d", *aliasSeq)
	inner, err := t.pathExpr(rel.RelatedTable, sub, segments[1:], aliasSeq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(SELECT %s FROM %s %s WHERE %s.id = %s.%s)",
		inner, ident(rel.RelatedTable), sub, sub, alias, ident(rel.FKColumn())), nil
}

func valueCond(expr string, value any, args *[]any) string {
	switch v := value.(type) {
	case nil:
		return expr + " IS NULL"
	case []int64:
		*args = append(*args, v)
		return fmt.Sprintf("%s = ANY($%d)", expr, len(*args))
	default:
		*args = append(*args, v)
		return fmt.Sprintf("%s = $%d", expr, len(*args))
	}
}

// reachSQL renders an EXISTS chain over an exclusion's lookup path, ending
// in the exclusion filter.
func (t *pgTx) reachSQL(table, alias string, segments []string, filter upload.Filter, args *[]any, aliasSeq *int) (string, error) {
	tbl, ok := t.dm.Table(table)
	if !ok {
		return "", fmt.Errorf("unknown table %s", table)
	}
	rel, ok := tbl.Relationship(segments[0])
	if !ok {
		return "", fmt.Errorf("table %s has no relationship %s", table, segments[0])
	}

	*aliasSeq++
	sub := fmt.Sprintf("t%d", *aliasSeq)
	var join string
	switch rel.Kind {
	case datamodel.ToOne:
		join = fmt.Sprintf("%s.id = %s.%s", sub, alias, ident(rel.FKColumn()))
	case datamodel.ToMany:
		reverse := rel.OtherSideName
		if reverse == "" {
			reverse = tbl.Name
		}
		join = fmt.Sprintf("%s.%s = %s.id", sub, ident(strings.ToLower(reverse)+"_id"), alias)
	}

	var inner string
	var err error
	if len(segments) == 1 {
		inner, err = t.filterSQL(rel.RelatedTable, sub, filter, args, aliasSeq)
	} else {
		inner, err = t.reachSQL(rel.RelatedTable, sub, segments[1:], filter, args, aliasSeq)
	}
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("EXISTS (SELECT 1 FROM %s %s WHERE %s AND %s)",
		ident(rel.RelatedTable), sub, join, inner), nil
}
