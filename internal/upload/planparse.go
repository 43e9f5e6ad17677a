package upload

// planparse.go translates upload plan documents into the typed plan tree.
// Object key order in the document is preserved: it drives to-many upload
// order and report column ordering.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JulianTonti/specify7/internal/datamodel"
)

// Scope carries the tenant and ownership identifiers injected into every
// plan node whose target table is scoped, plus the tree-definition IDs in
// effect for the uploading collection.
type Scope struct {
	CollectionID  int64 `json:"collectionId"`
	DisciplineID  int64 `json:"disciplineId"`
	DivisionID    int64 `json:"divisionId"`
	InstitutionID int64 `json:"institutionId"`

	TaxonTreeDefID              int64 `json:"taxonTreeDefId"`
	GeographyTreeDefID          int64 `json:"geographyTreeDefId"`
	LithoStratTreeDefID         int64 `json:"lithoStratTreeDefId"`
	GeologicTimePeriodTreeDefID int64 `json:"geologicTimePeriodTreeDefId"`
	StorageTreeDefID            int64 `json:"storageTreeDefId"`
}

// scopingValues probes the table shape and returns the ownership keys to
// inject. Explicit static values from the plan override these.
func (s *Scope) scopingValues(table *datamodel.Table) Filter {
	injected := Filter{}
	if _, ok := table.Field("collectionmemberid"); ok {
		injected["collectionmemberid"] = s.CollectionID
	}
	if _, ok := table.Relationship("collection"); ok {
		injected["collection_id"] = s.CollectionID
	}
	if _, ok := table.Relationship("discipline"); ok {
		injected["discipline_id"] = s.DisciplineID
	}
	if _, ok := table.Relationship("division"); ok {
		injected["division_id"] = s.DivisionID
	}
	return injected
}

// treeDefID returns the tree-definition ID for a tree table. Taxon and the
// other discipline-level trees resolve within the discipline; storage is
// institution wide.
func (s *Scope) treeDefID(tableName string) (int64, error) {
	switch strings.ToLower(tableName) {
	case "taxon":
		return s.TaxonTreeDefID, nil
	case "geography":
		return s.GeographyTreeDefID, nil
	case "lithostrat":
		return s.LithoStratTreeDefID, nil
	case "geologictimeperiod":
		return s.GeologicTimePeriodTreeDefID, nil
	case "storage":
		return s.StorageTreeDefID, nil
	}
	return 0, planErrorf("unexpected tree type: %s", tableName)
}

// member is one key of a JSON object, in document order.
type member struct {
	key string
	raw json.RawMessage
}

// decodeObject decodes a JSON object into its ordered members.
func decodeObject(raw json.RawMessage) ([]member, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}
	var members []member
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", keyTok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		members = append(members, member{key: key, raw: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return members, nil
}

func findMember(members []member, key string) (json.RawMessage, bool) {
	for _, m := range members {
		if m.key == key {
			return m.raw, true
		}
	}
	return nil, false
}

// ParsePlan parses an upload plan document against the target schema
// metadata, injecting the scoping values the schema shape calls for.
// Any structural or name-resolution problem is a *PlanError.
func ParsePlan(dm *datamodel.Datamodel, scope *Scope, doc []byte) (Uploadable, error) {
	members, err := decodeObject(doc)
	if err != nil {
		return nil, planErrorf("malformed plan document: %v", err)
	}
	for _, m := range members {
		if m.key != "baseTableName" && m.key != "uploadable" {
			return nil, planErrorf("unexpected plan key %q", m.key)
		}
	}

	rawName, ok := findMember(members, "baseTableName")
	if !ok {
		return nil, planErrorf("plan document missing baseTableName")
	}
	var baseName string
	if err := json.Unmarshal(rawName, &baseName); err != nil {
		return nil, planErrorf("baseTableName must be a string: %v", err)
	}

	rawUploadable, ok := findMember(members, "uploadable")
	if !ok {
		return nil, planErrorf("plan document missing uploadable")
	}

	table, ok := dm.Table(baseName)
	if !ok {
		return nil, planErrorf("unknown base table: %s", baseName)
	}

	return parseUploadable(dm, scope, table, rawUploadable)
}

func parseUploadable(dm *datamodel.Datamodel, scope *Scope, table *datamodel.Table, raw json.RawMessage) (Uploadable, error) {
	members, err := decodeObject(raw)
	if err != nil {
		return nil, planErrorf("malformed uploadable for table %s: %v", table.Name, err)
	}
	if len(members) != 1 {
		return nil, planErrorf("uploadable for table %s must have exactly one of uploadTable, treeRecord", table.Name)
	}
	switch members[0].key {
	case "uploadTable":
		node, err := parseTableNode(dm, scope, table, members[0].raw, true)
		if err != nil {
			return nil, err
		}
		return &UploadTable{tableNode: *node}, nil
	case "treeRecord":
		return parseTreeRecord(scope, table, members[0].raw)
	default:
		return nil, planErrorf("unknown uploadable type: %s", members[0].key)
	}
}

// parseTableNode parses the shared shape of uploadTable and toManyRecord
// definitions. allowToMany distinguishes the two: to-many records do not
// nest further to-many relationships.
func parseTableNode(dm *datamodel.Datamodel, scope *Scope, table *datamodel.Table, raw json.RawMessage, allowToMany bool) (*tableNode, error) {
	members, err := decodeObject(raw)
	if err != nil {
		return nil, planErrorf("malformed definition for table %s: %v", table.Name, err)
	}

	required := []string{"wbcols", "static", "toOne"}
	if allowToMany {
		required = append(required, "toMany")
	}
	for _, m := range members {
		found := false
		for _, want := range required {
			if m.key == want {
				found = true
				break
			}
		}
		if !found {
			return nil, planErrorf("table %s: unexpected key %q", table.Name, m.key)
		}
	}

	node := &tableNode{
		name:   table.Name,
		table:  table,
		static: Filter{},
	}

	rawWBCols, ok := findMember(members, "wbcols")
	if !ok {
		return nil, planErrorf("table %s: missing wbcols", table.Name)
	}
	wbMembers, err := decodeObject(rawWBCols)
	if err != nil {
		return nil, planErrorf("table %s: malformed wbcols: %v", table.Name, err)
	}
	for _, wb := range wbMembers {
		if _, ok := table.Field(wb.key); !ok {
			return nil, planErrorf("table %s has no field %s", table.Name, wb.key)
		}
		var column string
		if err := json.Unmarshal(wb.raw, &column); err != nil {
			return nil, planErrorf("table %s wbcols %s: column must be a string", table.Name, wb.key)
		}
		node.wbcols = append(node.wbcols, ColumnMapping{Field: wb.key, Column: column})
	}

	rawStatic, ok := findMember(members, "static")
	if !ok {
		return nil, planErrorf("table %s: missing static", table.Name)
	}
	var static map[string]any
	if err := json.Unmarshal(rawStatic, &static); err != nil {
		return nil, planErrorf("table %s: malformed static: %v", table.Name, err)
	}
	for k, v := range static {
		node.static[k] = v
	}

	rawToOne, ok := findMember(members, "toOne")
	if !ok {
		return nil, planErrorf("table %s: missing toOne", table.Name)
	}
	toOneMembers, err := decodeObject(rawToOne)
	if err != nil {
		return nil, planErrorf("table %s: malformed toOne: %v", table.Name, err)
	}
	for _, m := range toOneMembers {
		rel, relTable, err := resolveRelationship(dm, table, m.key, datamodel.ToOne)
		if err != nil {
			return nil, err
		}
		child, err := parseUploadable(dm, scope, relTable, m.raw)
		if err != nil {
			return nil, err
		}
		node.toOne = append(node.toOne, ToOneNode{
			Name: rel.Name,
			FK:   rel.FKColumn(),
			Node: child,
		})
	}

	if allowToMany {
		rawToMany, ok := findMember(members, "toMany")
		if !ok {
			return nil, planErrorf("table %s: missing toMany", table.Name)
		}
		toManyMembers, err := decodeObject(rawToMany)
		if err != nil {
			return nil, planErrorf("table %s: malformed toMany: %v", table.Name, err)
		}
		for _, m := range toManyMembers {
			rel, relTable, err := resolveRelationship(dm, table, m.key, datamodel.ToMany)
			if err != nil {
				return nil, err
			}
			var rawRecords []json.RawMessage
			if err := json.Unmarshal(m.raw, &rawRecords); err != nil {
				return nil, planErrorf("table %s toMany %s: expected an array of record definitions", table.Name, m.key)
			}
			rels := ToManyNode{Name: rel.Name, FK: reverseFK(table, rel)}
			for _, rawRecord := range rawRecords {
				recNode, err := parseTableNode(dm, scope, relTable, rawRecord, false)
				if err != nil {
					return nil, err
				}
				rels.Records = append(rels.Records, &ToManyRecord{tableNode: *recNode})
			}
			node.toMany = append(node.toMany, rels)
		}
	}

	injected := scope.scopingValues(table)
	node.scoping = Filter{}
	for k, v := range injected {
		if _, explicit := node.static[k]; explicit {
			continue
		}
		node.scoping[k] = v
	}

	return node, nil
}

func resolveRelationship(dm *datamodel.Datamodel, table *datamodel.Table, name string, kind datamodel.RelKind) (*datamodel.Relationship, *datamodel.Table, error) {
	rel, ok := table.Relationship(name)
	if !ok {
		return nil, nil, planErrorf("table %s has no relationship %s", table.Name, name)
	}
	if rel.Kind != kind {
		arity := "to-one"
		if kind == datamodel.ToMany {
			arity = "to-many"
		}
		return nil, nil, planErrorf("table %s relationship %s is not %s", table.Name, name, arity)
	}
	relTable, ok := dm.Table(rel.RelatedTable)
	if !ok {
		return nil, nil, planErrorf("unknown table %s for relationship %s", rel.RelatedTable, name)
	}
	return rel, relTable, nil
}

// reverseFK names the foreign-key column a to-many child uses to point back
// at its owner.
func reverseFK(owner *datamodel.Table, rel *datamodel.Relationship) string {
	if rel.OtherSideName != "" {
		return strings.ToLower(rel.OtherSideName) + "_id"
	}
	return strings.ToLower(owner.Name) + "_id"
}

func parseTreeRecord(scope *Scope, table *datamodel.Table, raw json.RawMessage) (*TreeRecord, error) {
	members, err := decodeObject(raw)
	if err != nil {
		return nil, planErrorf("malformed treeRecord for table %s: %v", table.Name, err)
	}
	if len(members) != 1 || members[0].key != "ranks" {
		return nil, planErrorf("treeRecord for table %s must have exactly the ranks key", table.Name)
	}

	defID, err := scope.treeDefID(table.Name)
	if err != nil {
		return nil, err
	}

	rankMembers, err := decodeObject(members[0].raw)
	if err != nil {
		return nil, planErrorf("table %s: malformed ranks: %v", table.Name, err)
	}
	tr := &TreeRecord{
		name:        table.Name,
		table:       table,
		treeDefName: strings.ToLower(table.Name) + "treedef",
		treeDefID:   defID,
	}
	for _, m := range rankMembers {
		var column string
		if err := json.Unmarshal(m.raw, &column); err != nil {
			return nil, planErrorf("table %s rank %s: column must be a string", table.Name, m.key)
		}
		tr.ranks = append(tr.ranks, ColumnMapping{Field: m.key, Column: column})
	}
	return tr, nil
}
