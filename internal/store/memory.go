// Package store provides persistence collaborators for the upload engine: a
// PostgreSQL implementation over pgx and an in-memory implementation used by
// dry runs and tests. Both enforce the same matching semantics: exact-value
// filters, relationship-path traversal, and exclusion clauses.
package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JulianTonti/specify7/internal/datamodel"
	"github.com/JulianTonti/specify7/internal/upload"
)

// BusinessRule vets a would-be record before it is stored. Returning an
// error rejects the create; the engine reports it against the record's
// table and columns.
type BusinessRule func(table string, values upload.Filter) error

type record struct {
	id     int64
	values upload.Filter
}

// Memory is an in-memory Store. It mirrors the relational collaborator
// closely enough for validation-only (dry) runs and for tests: records are
// flat field maps keyed by lowercased table name, IDs are sequential, and
// business rules can be registered per table.
type Memory struct {
	mu     sync.Mutex
	dm     *datamodel.Datamodel
	tables map[string][]*record
	nextID int64
	rules  map[string][]BusinessRule
}

// NewMemory builds an empty in-memory store over the given datamodel.
func NewMemory(dm *datamodel.Datamodel) *Memory {
	return &Memory{
		dm:     dm,
		tables: make(map[string][]*record),
		nextID: 1,
		rules:  make(map[string][]BusinessRule),
	}
}

// AddRule registers a business rule for a table.
func (m *Memory) AddRule(table string, rule BusinessRule) {
	key := strings.ToLower(table)
	m.rules[key] = append(m.rules[key], rule)
}

// Seed inserts a record directly, bypassing rules and transactions. Meant
// for fixtures: tree definitions, rank items, pre-existing records.
func (m *Memory) Seed(table string, values upload.Filter) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insert(table, values)
}

// Count returns the number of records in a table.
func (m *Memory) Count(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[strings.ToLower(table)])
}

// Get returns a stored record's values by ID.
func (m *Memory) Get(table string, id int64) (upload.Filter, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.tables[strings.ToLower(table)] {
		if rec.id == id {
			return rec.values.Clone(), true
		}
	}
	return nil, false
}

func (m *Memory) insert(table string, values upload.Filter) int64 {
	id := m.nextID
	m.nextID++
	key := strings.ToLower(table)
	m.tables[key] = append(m.tables[key], &record{id: id, values: values.Clone()})
	return id
}

// Begin starts a row transaction. Created records become visible
// immediately and are removed again on rollback.
func (m *Memory) Begin(ctx context.Context) (upload.Tx, error) {
	return &memoryTx{store: m}, nil
}

type created struct {
	table string
	id    int64
}

type memoryTx struct {
	store   *Memory
	journal []created
	done    bool
}

func (tx *memoryTx) Commit(ctx context.Context) error {
	tx.journal = nil
	tx.done = true
	return nil
}

func (tx *memoryTx) Rollback(ctx context.Context) error {
	if tx.done {
		return nil
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	for i := len(tx.journal) - 1; i >= 0; i-- {
		c := tx.journal[i]
		recs := tx.store.tables[c.table]
		for j, rec := range recs {
			if rec.id == c.id {
				tx.store.tables[c.table] = append(recs[:j], recs[j+1:]...)
				break
			}
		}
	}
	tx.journal = nil
	tx.done = true
	return nil
}

func (tx *memoryTx) Create(ctx context.Context, table string, values upload.Filter) (int64, error) {
	key := strings.ToLower(table)
	for _, rule := range tx.store.rules[key] {
		if err := rule(table, values); err != nil {
			return 0, &upload.BusinessRuleError{Message: err.Error()}
		}
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	id := tx.store.insert(table, values)
	tx.journal = append(tx.journal, created{table: key, id: id})
	return id, nil
}

func (tx *memoryTx) Query(ctx context.Context, table string, filters []upload.Filter, excludes []upload.Exclude) ([]int64, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	var ids []int64
	for _, rec := range tx.store.tables[strings.ToLower(table)] {
		matched := false
		for _, f := range filters {
			ok, err := tx.store.matches(table, rec, f)
			if err != nil {
				return nil, err
			}
			if ok {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		excluded, err := tx.store.excluded(table, rec, excludes)
		if err != nil {
			return nil, err
		}
		if !excluded {
			ids = append(ids, rec.id)
		}
	}
	return ids, nil
}

// matches checks one record against one filter set. Keys may traverse
// to-one relationships with "__" separators.
func (m *Memory) matches(table string, rec *record, filter upload.Filter) (bool, error) {
	for key, want := range filter {
		got, err := m.resolvePath(table, rec, key)
		if err != nil {
			return false, err
		}
		if !equalValue(got, want) {
			return false, nil
		}
	}
	return true, nil
}

// resolvePath walks relationship segments to the final column value. A
// broken link along the way resolves to nil, matching SQL NULL semantics.
func (m *Memory) resolvePath(table string, rec *record, key string) (any, error) {
	segments := strings.Split(key, "__")
	cur := rec
	curTable, ok := m.dm.Table(table)
	if !ok {
		return nil, fmt.Errorf("unknown table %s", table)
	}
	for _, seg := range segments[:len(segments)-1] {
		rel, ok := curTable.Relationship(seg)
		if !ok || rel.Kind != datamodel.ToOne {
			return nil, fmt.Errorf("table %s: %s is not a to-one relationship", curTable.Name, seg)
		}
		fk := cur.values[rel.FKColumn()]
		if fk == nil {
			return nil, nil
		}
		fkID, ok := fk.(int64)
		if !ok {
			return nil, fmt.Errorf("table %s: %s is not an ID", curTable.Name, rel.FKColumn())
		}
		next, ok := m.lookup(rel.RelatedTable, fkID)
		if !ok {
			return nil, nil
		}
		cur = next
		curTable, ok = m.dm.Table(rel.RelatedTable)
		if !ok {
			return nil, fmt.Errorf("unknown table %s", rel.RelatedTable)
		}
	}
	return cur.values[segments[len(segments)-1]], nil
}

func (m *Memory) lookup(table string, id int64) (*record, bool) {
	for _, rec := range m.tables[strings.ToLower(table)] {
		if rec.id == id {
			return rec, true
		}
	}
	return nil, false
}

// excluded reports whether any exclusion clause knocks the candidate out:
// a record reachable over the exclude's exact lookup path that matches its
// filter.
func (m *Memory) excluded(table string, rec *record, excludes []upload.Exclude) (bool, error) {
	for _, ex := range excludes {
		if ex.Lookup == "" {
			continue
		}
		reached, err := m.reach(table, rec, strings.Split(ex.Lookup, "__"))
		if err != nil {
			return false, err
		}
		for _, related := range reached {
			ok, err := m.matches(ex.Table, related, ex.Filter)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
	}
	return false, nil
}

// reach collects the records reachable from rec over the relationship path.
func (m *Memory) reach(table string, rec *record, segments []string) ([]*record, error) {
	curTable, ok := m.dm.Table(table)
	if !ok {
		return nil, fmt.Errorf("unknown table %s", table)
	}
	current := []*record{rec}
	for _, seg := range segments {
		rel, ok := curTable.Relationship(seg)
		if !ok {
			return nil, fmt.Errorf("table %s has no relationship %s", curTable.Name, seg)
		}
		var next []*record
		switch rel.Kind {
		case datamodel.ToOne:
			for _, r := range current {
				if fkID, ok := r.values[rel.FKColumn()].(int64); ok {
					if related, found := m.lookup(rel.RelatedTable, fkID); found {
						next = append(next, related)
					}
				}
			}
		case datamodel.ToMany:
			reverse := strings.ToLower(rel.OtherSideName) + "_id"
			if rel.OtherSideName == "" {
				reverse = strings.ToLower(curTable.Name) + "_id"
			}
			for _, r := range current {
				for _, related := range m.tables[strings.ToLower(rel.RelatedTable)] {
					if fkID, ok := related.values[reverse].(int64); ok && fkID == r.id {
						next = append(next, related)
					}
				}
			}
		}
		current = next
		curTable, ok = m.dm.Table(rel.RelatedTable)
		if !ok {
			return nil, fmt.Errorf("unknown table %s", rel.RelatedTable)
		}
	}
	return current, nil
}

// equalValue compares a stored value against a filter value. Numeric types
// compare by value across int64/float64; []int64 means set membership.
func equalValue(got, want any) bool {
	if want == nil {
		return got == nil
	}
	if got == nil {
		return false
	}

	switch w := want.(type) {
	case []int64:
		g, ok := toInt64(got)
		if !ok {
			return false
		}
		for _, id := range w {
			if id == g {
				return true
			}
		}
		return false
	case decimal.Decimal:
		g, ok := got.(decimal.Decimal)
		return ok && g.Equal(w)
	case time.Time:
		g, ok := got.(time.Time)
		return ok && g.Equal(w)
	}

	if gn, ok := toFloat64(got); ok {
		if wn, ok := toFloat64(want); ok {
			return gn == wn
		}
	}
	return got == want
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), n == float64(int64(n))
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
