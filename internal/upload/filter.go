// Package upload implements the workbench upload plan interpreter and the
// per-row upload engine: typed plan trees, cell value parsing, the
// match-vs-create decision procedure, tree rank resolution, and validation
// report extraction over the nested result tree.
package upload

// Row is one input row: source column header -> raw cell text.
type Row map[string]string

// Filter is one set of match criteria: field or foreign-key column name ->
// value. Values may be string, int64, float64, bool, time.Time,
// decimal.Decimal, nil (IS NULL), or []int64 (ID set, IN semantics).
type Filter map[string]any

// Clone returns a shallow copy of the filter.
func (f Filter) Clone() Filter {
	out := make(Filter, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// merge copies all entries of other into f, overwriting on conflict.
func (f Filter) merge(other Filter) {
	for k, v := range other {
		f[k] = v
	}
}

// Exclude removes candidates that have a related record, reached via Lookup,
// matching Filter. Used to keep a record from matching something that already
// claims a sub-record the current row says nothing about, and to keep tree
// nodes from matching their own ancestors or descendants.
type Exclude struct {
	// Lookup is the relationship path from the candidate to the excluded
	// record. Exclusions apply to this exact path only, never transitively.
	Lookup string
	Table  string
	Filter Filter
}

// FilterPack is the full matching criteria derived from a row for one plan
// node: a list of alternative filter sets plus exclusion clauses. An empty
// Filters list means there is nothing to match on; the record, if it has any
// data at all, must be created.
type FilterPack struct {
	Filters  []Filter
	Excludes []Exclude
}
