package upload

import "fmt"

// CellIssue is a parse failure attributed to one source column.
type CellIssue struct {
	Column string `json:"column"`
	Issue  string `json:"issue"`
}

// TableIssue is a record-level failure (business-rule rejection or ambiguous
// match) attributed to a table and the source columns feeding it.
type TableIssue struct {
	TableName string   `json:"tableName"`
	Columns   []string `json:"columns"`
	Issue     string   `json:"issue"`
}

// NewRow records a row created during the upload.
type NewRow struct {
	TableName string   `json:"tableName"`
	Columns   []string `json:"columns"`
	ID        int64    `json:"id"`
}

// RowValidation is the flattened, report-ready aggregation of everything
// that happened while uploading one input row.
type RowValidation struct {
	CellIssues  []CellIssue  `json:"cellIssues"`
	TableIssues []TableIssue `json:"tableIssues"`
	NewRows     []NewRow     `json:"newRows"`
}

// Validation flattens the result tree into a RowValidation. Traversal is
// depth-first, each node's own record before its children, to-one children
// before to-many, all in plan declaration order.
func (r *UploadResult) Validation() RowValidation {
	var v RowValidation
	r.appendValidation(&v)
	return v
}

func (r *UploadResult) appendValidation(v *RowValidation) {
	switch res := r.Record.(type) {
	case Uploaded:
		v.NewRows = append(v.NewRows, NewRow{
			TableName: res.Info.TableName,
			Columns:   res.Info.Columns,
			ID:        res.ID,
		})
	case MatchedMultiple:
		v.TableIssues = append(v.TableIssues, TableIssue{
			TableName: res.Info.TableName,
			Columns:   res.Info.Columns,
			Issue:     fmt.Sprintf("multiple matching records found: %d candidates", len(res.IDs)),
		})
	case FailedBusinessRule:
		v.TableIssues = append(v.TableIssues, TableIssue{
			TableName: res.Info.TableName,
			Columns:   res.Info.Columns,
			Issue:     res.Message,
		})
	case FailedParsing:
		v.CellIssues = append(v.CellIssues, res.Failures...)
	case Matched, NullRecord:
		// Nothing to report.
	}

	for _, child := range r.ToOne {
		child.Result.appendValidation(v)
	}
	for _, children := range r.ToMany {
		for _, res := range children.Results {
			res.appendValidation(v)
		}
	}
}
