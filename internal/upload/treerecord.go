package upload

// treerecord.go uploads hierarchical records by rank. Instead of named
// relationships, a tree record walks its configured ranks from least to
// most specific, matching or creating each node under the one resolved
// before it, all inside a single tree definition.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// itemTable returns the table holding the tree definition's rank items.
func (t *TreeRecord) itemTable() string {
	return strings.ToLower(t.treeDefName) + "item"
}

// defFK returns the foreign-key column tying tree nodes and rank items to
// their tree definition.
func (t *TreeRecord) defFK() string {
	return strings.ToLower(t.treeDefName) + "_id"
}

func (t *TreeRecord) hasData(row Row) bool {
	for _, r := range t.ranks {
		if strings.TrimSpace(row[r.Column]) != "" {
			return true
		}
	}
	return false
}

func (t *TreeRecord) collectIssues(row Row) []CellIssue {
	if !t.hasData(row) {
		return nil
	}
	nameField, ok := t.table.Field("name")
	if !ok {
		return nil
	}
	var issues []CellIssue
	for _, r := range t.ranks {
		if strings.TrimSpace(row[r.Column]) == "" {
			continue
		}
		if _, err := ParseValue(nameField, row[r.Column]); err != nil {
			issues = append(issues, CellIssue{Column: r.Column, Issue: err.Error()})
		}
	}
	return issues
}

// FilterOn contributes the most specific rank name present plus the tree
// definition as matching criteria. The ancestor chain needs record lookups
// and therefore only constrains the full upload step, not filtering.
func (t *TreeRecord) FilterOn(path string, row Row) FilterPack {
	mostSpecific := ""
	for _, r := range t.ranks {
		if v := strings.TrimSpace(row[r.Column]); v != "" {
			mostSpecific = v
		}
	}
	if mostSpecific == "" {
		return FilterPack{Excludes: []Exclude{{
			Lookup: path,
			Table:  t.name,
			Filter: Filter{t.defFK(): t.treeDefID},
		}}}
	}
	return FilterPack{Filters: []Filter{{
		joinPath(path, "name"):    mostSpecific,
		joinPath(path, t.defFK()): t.treeDefID,
	}}}
}

// UploadRow resolves each present rank against the tree definition and
// matches or creates the node chain. The final, most specific rank present
// yields the record result; ancestors are materialized as a side effect.
func (t *TreeRecord) UploadRow(ctx context.Context, q Querier, row Row) (*UploadResult, error) {
	return t.uploadRow(ctx, q, row, nil)
}

func (t *TreeRecord) uploadRow(ctx context.Context, q Querier, row Row, _ Filter) (*UploadResult, error) {
	if !t.hasData(row) {
		return &UploadResult{Record: NullRecord{Info: ReportInfo{TableName: t.name}}}, nil
	}

	type rankStep struct {
		rank   string
		column string
		value  string
	}
	var steps []rankStep
	var columns []string
	for _, r := range t.ranks {
		value := strings.TrimSpace(row[r.Column])
		if value == "" {
			continue
		}
		steps = append(steps, rankStep{rank: r.Field, column: r.Column, value: value})
		columns = append(columns, r.Column)
	}
	info := ReportInfo{TableName: t.name, Columns: columns}

	var last RecordResult
	var parentID int64
	hasParent := false

	for _, step := range steps {
		itemIDs, err := q.Query(ctx, t.itemTable(), []Filter{{
			"name":    step.rank,
			t.defFK(): t.treeDefID,
		}}, nil)
		if err != nil {
			return nil, fmt.Errorf("resolve rank %s: %w", step.rank, err)
		}
		if len(itemIDs) != 1 {
			return &UploadResult{Record: FailedBusinessRule{
				Message: fmt.Sprintf("no unique tree rank %s in %s %d", step.rank, t.treeDefName, t.treeDefID),
				Info:    info,
			}}, nil
		}
		itemID := itemIDs[0]

		filter := Filter{
			"name":              step.value,
			"definitionitem_id": itemID,
			t.defFK():           t.treeDefID,
		}
		if hasParent {
			filter["parent_id"] = parentID
		}

		ids, err := q.Query(ctx, t.name, []Filter{filter}, nil)
		if err != nil {
			return nil, fmt.Errorf("match tree node %s: %w", step.value, err)
		}
		switch {
		case len(ids) == 1:
			parentID = ids[0]
			last = Matched{ID: ids[0], Info: info}
		case len(ids) > 1:
			return &UploadResult{Record: MatchedMultiple{IDs: ids, Info: info}}, nil
		default:
			values := filter.Clone()
			id, err := q.Create(ctx, t.name, values)
			if err != nil {
				var bre *BusinessRuleError
				if errors.As(err, &bre) {
					return &UploadResult{Record: FailedBusinessRule{Message: bre.Message, Info: info}}, nil
				}
				return nil, fmt.Errorf("create tree node %s: %w", step.value, err)
			}
			parentID = id
			last = Uploaded{ID: id, Info: info}
		}
		hasParent = true
	}

	return &UploadResult{Record: last}, nil
}
