package upload

// uploadtable.go holds the match-or-create procedure for flat table nodes.
// To-many records share the same logic through tableNode; the only
// structural difference is that they cannot nest further to-many children.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// parseFields parses every mapped cell of this node. present holds the
// typed values keyed by field name; absent holds a nil entry per blank
// cell, which matching uses as an IS NULL criterion.
func (n *tableNode) parseFields(row Row) (present Filter, absent Filter, issues []CellIssue) {
	present = Filter{}
	absent = Filter{}
	for _, wb := range n.wbcols {
		field, ok := n.table.Field(wb.Field)
		if !ok {
			// The parser resolved every mapping; a miss here is plan
			// corruption, not user data.
			issues = append(issues, CellIssue{Column: wb.Column, Issue: fmt.Sprintf("unknown field %s", wb.Field)})
			continue
		}

		pv, err := ParseValue(field, row[wb.Column])
		if err != nil {
			issues = append(issues, CellIssue{Column: wb.Column, Issue: err.Error()})
			continue
		}
		key := strings.ToLower(field.Name)
		if pv.Missing {
			absent[key] = nil
			continue
		}
		present[key] = pv.Value
		for extraKey, extraVal := range pv.Extra {
			if _, ok := n.table.Field(extraKey); ok {
				present[extraKey] = extraVal
			}
		}
	}
	return present, absent, issues
}

func (n *tableNode) hasData(row Row) bool {
	for _, wb := range n.wbcols {
		if strings.TrimSpace(row[wb.Column]) != "" {
			return true
		}
	}
	if len(n.static) > 0 {
		return true
	}
	for _, child := range n.toOne {
		if child.Node.hasData(row) {
			return true
		}
	}
	for _, rels := range n.toMany {
		for _, rec := range rels.Records {
			if rec.hasData(row) {
				return true
			}
		}
	}
	return false
}

func (n *tableNode) collectIssues(row Row) []CellIssue {
	if !n.hasData(row) {
		return nil
	}
	_, _, issues := n.parseFields(row)
	for _, child := range n.toOne {
		issues = append(issues, child.Node.collectIssues(row)...)
	}
	for _, rels := range n.toMany {
		for _, rec := range rels.Records {
			issues = append(issues, rec.collectIssues(row)...)
		}
	}
	return issues
}

// FilterOn derives this node's matching criteria from the row. Keys are
// prefixed with path so a parent can fold them into its own query; blank
// cells become IS NULL criteria so matching stays exact. A node with no
// concrete values and no constrained to-one child yields no filters — it
// can never match — plus an exclusion that keeps would-be parents from
// matching records that already claim such a sub-record.
func (n *tableNode) FilterOn(path string, row Row) FilterPack {
	present, absent, _ := n.parseFields(row)

	own := Filter{}
	for k := range absent {
		own[joinPath(path, k)] = nil
	}
	for k, v := range n.static {
		own[joinPath(path, strings.ToLower(k))] = v
	}
	for k, v := range n.scoping {
		own[joinPath(path, strings.ToLower(k))] = v
	}
	for k, v := range present {
		own[joinPath(path, k)] = v
	}

	filters := []Filter{own}
	var excludes []Exclude
	constrained := len(present) > 0

	for _, child := range n.toOne {
		pack := child.Node.FilterOn(joinPath(path, child.Name), row)
		excludes = append(excludes, pack.Excludes...)
		if len(pack.Filters) == 0 {
			// Wildcard: the child brings no determinable criteria.
			continue
		}
		constrained = true
		combined := make([]Filter, 0, len(filters)*len(pack.Filters))
		for _, f := range filters {
			for _, cf := range pack.Filters {
				merged := f.Clone()
				merged.merge(cf)
				combined = append(combined, merged)
			}
		}
		filters = combined
	}

	for _, rels := range n.toMany {
		for _, rec := range rels.Records {
			if !rec.hasData(row) {
				excludes = append(excludes, Exclude{
					Lookup: joinPath(path, rels.Name),
					Table:  rec.name,
					Filter: rec.scoping.Clone(),
				})
			}
		}
	}

	if !constrained {
		return FilterPack{Excludes: append(excludes, Exclude{
			Lookup: path,
			Table:  n.name,
			Filter: n.scoping.Clone(),
		})}
	}
	return FilterPack{Filters: filters, Excludes: excludes}
}

// UploadRow uploads this node and its children for one row.
func (n *tableNode) UploadRow(ctx context.Context, q Querier, row Row) (*UploadResult, error) {
	return n.uploadRow(ctx, q, row, nil)
}

func (n *tableNode) uploadRow(ctx context.Context, q Querier, row Row, extra Filter) (*UploadResult, error) {
	info := n.reportInfo()

	if !n.hasData(row) {
		return &UploadResult{Record: NullRecord{Info: info}}, nil
	}

	present, _, issues := n.parseFields(row)
	if len(issues) > 0 {
		return &UploadResult{Record: FailedParsing{Failures: issues}}, nil
	}

	pack := n.FilterOn("", row)
	if len(pack.Filters) > 0 {
		for _, f := range pack.Filters {
			f.merge(extra)
		}
		ids, err := q.Query(ctx, n.name, pack.Filters, pack.Excludes)
		if err != nil {
			return nil, fmt.Errorf("match %s: %w", n.name, err)
		}
		switch {
		case len(ids) == 1:
			return &UploadResult{Record: Matched{ID: ids[0], Info: info}}, nil
		case len(ids) > 1:
			return &UploadResult{Record: MatchedMultiple{IDs: ids, Info: info}}, nil
		}
	}

	return n.create(ctx, q, row, present, extra, info)
}

// create materializes this node: to-one children first for their foreign
// keys, then the record itself, then the to-many children against the new
// ID. At most one record is created per decision; a retried row re-runs
// the full filter step.
func (n *tableNode) create(ctx context.Context, q Querier, row Row, present Filter, extra Filter, info ReportInfo) (*UploadResult, error) {
	values := Filter{}
	values.merge(present)
	for k, v := range n.static {
		values[strings.ToLower(k)] = v
	}
	values.merge(n.scoping)
	values.merge(extra)

	result := &UploadResult{}
	failedRel := ""
	for _, child := range n.toOne {
		childResult, err := child.Node.uploadRow(ctx, q, row, nil)
		if err != nil {
			return nil, err
		}
		result.ToOne = append(result.ToOne, ToOneResult{Name: child.Name, Result: childResult})
		if childResult.ContainsFailure() {
			if failedRel == "" {
				failedRel = child.Name
			}
			continue
		}
		if id, ok := childResult.RecordID(); ok {
			values[child.FK] = id
		}
	}

	if failedRel != "" {
		result.Record = FailedBusinessRule{
			Message: fmt.Sprintf("failed to upload related record for %s", failedRel),
			Info:    info,
		}
		return result, nil
	}

	id, err := q.Create(ctx, n.name, values)
	if err != nil {
		var bre *BusinessRuleError
		if errors.As(err, &bre) {
			result.Record = FailedBusinessRule{Message: bre.Message, Info: info}
			return result, nil
		}
		return nil, fmt.Errorf("create %s: %w", n.name, err)
	}
	result.Record = Uploaded{ID: id, Info: info}

	for _, rels := range n.toMany {
		children := ToManyResults{Name: rels.Name}
		for _, rec := range rels.Records {
			recResult, err := rec.uploadRow(ctx, q, row, Filter{rels.FK: id})
			if err != nil {
				return nil, err
			}
			children.Results = append(children.Results, recResult)
		}
		result.ToMany = append(result.ToMany, children)
	}

	return result, nil
}
