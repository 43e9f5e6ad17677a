package upload

import (
	"context"

	"github.com/JulianTonti/specify7/internal/datamodel"
)

// Uploadable is one node of a parsed upload plan: it can derive matching
// criteria from a row and it can upload a row. The implementations are
// UploadTable and TreeRecord (plan roots and to-one children) plus
// ToManyRecord (to-many children only); the set is closed.
type Uploadable interface {
	// FilterOn derives the matching criteria this node contributes for the
	// given row. It is pure: no records are read, written or matched, and
	// calling it twice on the same row yields the same pack.
	FilterOn(path string, row Row) FilterPack

	// UploadRow runs the match-or-create decision for this node and,
	// recursively, its children. Mutations go through q, which the engine
	// scopes to one row's transaction.
	UploadRow(ctx context.Context, q Querier, row Row) (*UploadResult, error)

	// Unparse reconstructs the plan-document fragment this node was parsed
	// from. Injected scoping values are never re-emitted.
	Unparse() map[string]any

	// collectIssues parses every cell this node and its descendants would
	// consume, returning all failures. No database interaction.
	collectIssues(row Row) []CellIssue

	// hasData reports whether the row carries any data for this node or
	// its descendants.
	hasData(row Row) bool

	uploadRow(ctx context.Context, q Querier, row Row, extra Filter) (*UploadResult, error)
}

// ColumnMapping pairs a target field (or tree rank) with the source column
// header that feeds it. Order follows the plan document.
type ColumnMapping struct {
	Field  string
	Column string
}

// ToOneNode is a named to-one child of a plan node.
type ToOneNode struct {
	Name string
	// FK is the foreign-key column on the owning table for this
	// relationship.
	FK   string
	Node Uploadable
}

// ToManyNode is a named to-many relationship with its ordered record
// definitions.
type ToManyNode struct {
	Name string
	// FK is the foreign-key column on the child table pointing back at the
	// owning table.
	FK      string
	Records []*ToManyRecord
}

// tableNode carries everything UploadTable and ToManyRecord share: the
// resolved target table, the column and literal mappings, and the nested
// relationships.
type tableNode struct {
	name    string
	table   *datamodel.Table
	wbcols  []ColumnMapping
	static  Filter // user-supplied literals, re-emitted by Unparse
	scoping Filter // injected tenant/ownership keys, never re-emitted
	toOne   []ToOneNode
	toMany  []ToManyNode // always empty beneath a to-many record
}

// UploadTable is a plan node for a flat table: column mappings, literal
// values, and nested to-one and to-many definitions.
type UploadTable struct {
	tableNode
}

// ToManyRecord is one record definition of a to-many relationship. It is
// structurally an UploadTable without further to-many nesting.
type ToManyRecord struct {
	tableNode
}

// TreeRecord is a plan node for a hierarchical table uploaded by rank. Tree
// ascent is handled through rank order within one tree definition; a tree
// record never has generic to-one or to-many children.
type TreeRecord struct {
	name        string
	table       *datamodel.Table
	ranks       []ColumnMapping
	treeDefName string
	treeDefID   int64
}

// Name returns the target table name of the node.
func (n *tableNode) Name() string { return n.name }

// Name returns the target table name of the tree record.
func (t *TreeRecord) Name() string { return t.name }

// TreeDef returns the tree-definition table name and the definition ID the
// record uploads into.
func (t *TreeRecord) TreeDef() (string, int64) { return t.treeDefName, t.treeDefID }

func (n *tableNode) columns() []string {
	cols := make([]string, len(n.wbcols))
	for i, wb := range n.wbcols {
		cols[i] = wb.Column
	}
	return cols
}

func (n *tableNode) reportInfo() ReportInfo {
	return ReportInfo{TableName: n.name, Columns: n.columns()}
}

func (n *tableNode) unparseCommon() map[string]any {
	wbcols := make(map[string]any, len(n.wbcols))
	for _, wb := range n.wbcols {
		wbcols[wb.Field] = wb.Column
	}
	static := make(map[string]any, len(n.static))
	for k, v := range n.static {
		static[k] = v
	}
	toOne := make(map[string]any, len(n.toOne))
	for _, child := range n.toOne {
		toOne[child.Name] = child.Node.Unparse()
	}
	return map[string]any{
		"wbcols": wbcols,
		"static": static,
		"toOne":  toOne,
	}
}

// Unparse reconstructs the {"uploadTable": ...} document fragment.
func (ut *UploadTable) Unparse() map[string]any {
	doc := ut.unparseCommon()
	toMany := make(map[string]any, len(ut.toMany))
	for _, rels := range ut.toMany {
		records := make([]any, len(rels.Records))
		for i, rec := range rels.Records {
			records[i] = rec.Unparse()
		}
		toMany[rels.Name] = records
	}
	doc["toMany"] = toMany
	return map[string]any{"uploadTable": doc}
}

// Unparse reconstructs a bare to-many record definition; unlike the other
// uploadables these appear in the document without a wrapping type key.
func (tm *ToManyRecord) Unparse() map[string]any {
	return tm.unparseCommon()
}

// Unparse reconstructs the {"treeRecord": ...} document fragment.
func (t *TreeRecord) Unparse() map[string]any {
	ranks := make(map[string]any, len(t.ranks))
	for _, r := range t.ranks {
		ranks[r.Field] = r.Column
	}
	return map[string]any{"treeRecord": map[string]any{"ranks": ranks}}
}

// UnparsePlan reconstructs the full plan document for a parsed plan root.
// Equal to the original document modulo injected scoping values, which are
// never re-emitted.
func UnparsePlan(u Uploadable) map[string]any {
	var name string
	switch node := u.(type) {
	case *UploadTable:
		name = node.Name()
	case *ToManyRecord:
		name = node.Name()
	case *TreeRecord:
		name = node.Name()
	}
	return map[string]any{
		"baseTableName": name,
		"uploadable":    u.Unparse(),
	}
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "__" + name
}
