package upload

import (
	"encoding/json"
)

// ReportInfo ties a record result back to the table and source columns it
// came from, for reporting.
type ReportInfo struct {
	TableName string   `json:"tableName"`
	Columns   []string `json:"columns"`
}

// RecordResult is the outcome of uploading one record. It is a closed set:
// Uploaded, Matched, MatchedMultiple, NullRecord, FailedBusinessRule and
// FailedParsing are the only implementations, and callers are expected to
// switch over all of them.
type RecordResult interface {
	// RecordID returns the database ID this result stands for, if any.
	RecordID() (int64, bool)
	// IsFailure reports whether this result blocks the row from committing.
	IsFailure() bool

	recordResult()
}

// Uploaded means a new record was created.
type Uploaded struct {
	ID   int64      `json:"id"`
	Info ReportInfo `json:"info"`
}

// Matched means exactly one existing record satisfied the filter criteria.
type Matched struct {
	ID   int64      `json:"id"`
	Info ReportInfo `json:"info"`
}

// MatchedMultiple means more than one candidate matched. Ambiguous, treated
// as a failure.
type MatchedMultiple struct {
	IDs  []int64    `json:"ids"`
	Info ReportInfo `json:"info"`
}

// NullRecord means the row carried no data for this sub-structure; nothing
// was uploaded or matched.
type NullRecord struct {
	Info ReportInfo `json:"info"`
}

// FailedBusinessRule means the store rejected the would-be record.
type FailedBusinessRule struct {
	Message string     `json:"message"`
	Info    ReportInfo `json:"info"`
}

// FailedParsing means one or more cells failed to parse before any database
// interaction occurred.
type FailedParsing struct {
	Failures []CellIssue `json:"failures"`
}

func (r Uploaded) RecordID() (int64, bool)        { return r.ID, true }
func (r Matched) RecordID() (int64, bool)         { return r.ID, true }
func (r MatchedMultiple) RecordID() (int64, bool) { return 0, false }
func (r NullRecord) RecordID() (int64, bool)      { return 0, false }

func (r FailedBusinessRule) RecordID() (int64, bool) { return 0, false }
func (r FailedParsing) RecordID() (int64, bool)      { return 0, false }

func (Uploaded) IsFailure() bool           { return false }
func (Matched) IsFailure() bool            { return false }
func (MatchedMultiple) IsFailure() bool    { return true }
func (NullRecord) IsFailure() bool         { return false }
func (FailedBusinessRule) IsFailure() bool { return true }
func (FailedParsing) IsFailure() bool      { return true }

func (Uploaded) recordResult()           {}
func (Matched) recordResult()            {}
func (MatchedMultiple) recordResult()    {}
func (NullRecord) recordResult()         {}
func (FailedBusinessRule) recordResult() {}
func (FailedParsing) recordResult()      {}

// marshalTagged wraps a variant's fields under its variant name, the wire
// format consumers of upload reports key on.
func marshalTagged(tag string, v any) ([]byte, error) {
	return json.Marshal(map[string]any{tag: v})
}

type uploadedAlias Uploaded
type matchedAlias Matched
type matchedMultipleAlias MatchedMultiple
type nullRecordAlias NullRecord
type failedBusinessRuleAlias FailedBusinessRule
type failedParsingAlias FailedParsing

func (r Uploaded) MarshalJSON() ([]byte, error) { return marshalTagged("Uploaded", uploadedAlias(r)) }
func (r Matched) MarshalJSON() ([]byte, error)  { return marshalTagged("Matched", matchedAlias(r)) }
func (r MatchedMultiple) MarshalJSON() ([]byte, error) {
	return marshalTagged("MatchedMultiple", matchedMultipleAlias(r))
}
func (r NullRecord) MarshalJSON() ([]byte, error) {
	return marshalTagged("NullRecord", nullRecordAlias(r))
}
func (r FailedBusinessRule) MarshalJSON() ([]byte, error) {
	return marshalTagged("FailedBusinessRule", failedBusinessRuleAlias(r))
}
func (r FailedParsing) MarshalJSON() ([]byte, error) {
	return marshalTagged("FailedParsing", failedParsingAlias(r))
}

// ToOneResult is the result of one to-one child, tagged with its
// relationship name. Children keep plan declaration order.
type ToOneResult struct {
	Name   string
	Result *UploadResult
}

// ToManyResults is the ordered result list of one to-many relationship.
type ToManyResults struct {
	Name    string
	Results []*UploadResult
}

// UploadResult is the outcome of uploading one (sub)record together with the
// outcomes of its related records. It forms a tree isomorphic to the plan
// tree that produced it.
type UploadResult struct {
	Record RecordResult
	ToOne  []ToOneResult
	ToMany []ToManyResults
}

// RecordID returns the ID of the record this result stands for, if any.
func (r *UploadResult) RecordID() (int64, bool) {
	return r.Record.RecordID()
}

// ContainsFailure reports whether this result or any descendant is a failure.
func (r *UploadResult) ContainsFailure() bool {
	if r.Record.IsFailure() {
		return true
	}
	for _, child := range r.ToOne {
		if child.Result.ContainsFailure() {
			return true
		}
	}
	for _, children := range r.ToMany {
		for _, res := range children.Results {
			if res.ContainsFailure() {
				return true
			}
		}
	}
	return false
}

// One returns the result of the named to-one child.
func (r *UploadResult) One(name string) (*UploadResult, bool) {
	for _, child := range r.ToOne {
		if child.Name == name {
			return child.Result, true
		}
	}
	return nil, false
}

// Many returns the ordered results of the named to-many relationship.
func (r *UploadResult) Many(name string) ([]*UploadResult, bool) {
	for _, children := range r.ToMany {
		if children.Name == name {
			return children.Results, true
		}
	}
	return nil, false
}

// MarshalJSON renders the result tree in the tagged wire format:
//
//	{"UploadResult": {"record_result": {...}, "toOne": {...}, "toMany": {...}}}
func (r *UploadResult) MarshalJSON() ([]byte, error) {
	toOne := make(map[string]*UploadResult, len(r.ToOne))
	for _, child := range r.ToOne {
		toOne[child.Name] = child.Result
	}
	toMany := make(map[string][]*UploadResult, len(r.ToMany))
	for _, children := range r.ToMany {
		toMany[children.Name] = children.Results
	}
	return marshalTagged("UploadResult", map[string]any{
		"record_result": r.Record,
		"toOne":         toOne,
		"toMany":        toMany,
	})
}
