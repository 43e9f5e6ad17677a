// Package datamodel describes the target relational schema: tables, their
// scalar fields, and their relationships. The upload engine resolves plan
// documents against this metadata and never touches the database schema
// directly.
package datamodel

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// FieldType represents the declared type of a target-table field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldDate
	FieldInteger
	FieldDecimal
	FieldBool
	FieldEnum
	FieldLatitude
	FieldLongitude
)

var fieldTypeNames = map[string]FieldType{
	"text":      FieldText,
	"date":      FieldDate,
	"integer":   FieldInteger,
	"decimal":   FieldDecimal,
	"bool":      FieldBool,
	"enum":      FieldEnum,
	"latitude":  FieldLatitude,
	"longitude": FieldLongitude,
}

// String returns the document name of the field type.
func (t FieldType) String() string {
	for name, ft := range fieldTypeNames {
		if ft == t {
			return name
		}
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

// Field is a scalar column of a table.
type Field struct {
	Name     string
	Type     FieldType
	Required bool

	// EnumValues holds the ordered labels of a FieldEnum field. The stored
	// value is the label's index in this list.
	EnumValues []string
}

// RelKind distinguishes the two relationship arities the engine handles.
type RelKind int

const (
	ToOne RelKind = iota
	ToMany
)

// Relationship is a named relationship between two tables.
type Relationship struct {
	Name         string
	RelatedTable string
	Kind         RelKind

	// OtherSideName is the relationship on the related table pointing back
	// here. For a to-many relationship it names the foreign key the child
	// table uses to reach this table.
	OtherSideName string
}

// FKColumn returns the foreign-key column name for a relationship,
// following the <relname>_id convention used throughout the schema.
func (r *Relationship) FKColumn() string {
	return strings.ToLower(r.Name) + "_id"
}

// Table is the metadata for one target table.
type Table struct {
	Name          string
	Fields        []Field
	Relationships []Relationship
}

// Field returns the field with the given name, case-insensitively.
func (t *Table) Field(name string) (*Field, bool) {
	for i := range t.Fields {
		if strings.EqualFold(t.Fields[i].Name, name) {
			return &t.Fields[i], true
		}
	}
	return nil, false
}

// Relationship returns the relationship with the given name, case-insensitively.
func (t *Table) Relationship(name string) (*Relationship, bool) {
	for i := range t.Relationships {
		if strings.EqualFold(t.Relationships[i].Name, name) {
			return &t.Relationships[i], true
		}
	}
	return nil, false
}

// Datamodel is the full set of table metadata for one target schema.
type Datamodel struct {
	Tables []Table
}

// Table returns the table with the given name, case-insensitively.
func (d *Datamodel) Table(name string) (*Table, bool) {
	for i := range d.Tables {
		if strings.EqualFold(d.Tables[i].Name, name) {
			return &d.Tables[i], true
		}
	}
	return nil, false
}

// jsonField et al. mirror the datamodel document format.
type jsonField struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Required   bool     `json:"required,omitempty"`
	EnumValues []string `json:"enumValues,omitempty"`
}

type jsonRelationship struct {
	Name          string `json:"name"`
	Kind          string `json:"kind"`
	RelatedTable  string `json:"relatedTable"`
	OtherSideName string `json:"otherSideName,omitempty"`
}

type jsonTable struct {
	Name          string             `json:"name"`
	Fields        []jsonField        `json:"fields"`
	Relationships []jsonRelationship `json:"relationships,omitempty"`
}

type jsonDatamodel struct {
	Tables []jsonTable `json:"tables"`
}

// Load decodes a datamodel document from r.
func Load(r io.Reader) (*Datamodel, error) {
	var doc jsonDatamodel
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode datamodel: %w", err)
	}

	dm := &Datamodel{Tables: make([]Table, 0, len(doc.Tables))}
	for _, jt := range doc.Tables {
		t := Table{Name: jt.Name}
		for _, jf := range jt.Fields {
			ft, ok := fieldTypeNames[strings.ToLower(jf.Type)]
			if !ok {
				return nil, fmt.Errorf("table %s field %s: unknown field type %q", jt.Name, jf.Name, jf.Type)
			}
			if ft == FieldEnum && len(jf.EnumValues) == 0 {
				return nil, fmt.Errorf("table %s field %s: enum field needs enumValues", jt.Name, jf.Name)
			}
			t.Fields = append(t.Fields, Field{
				Name:       jf.Name,
				Type:       ft,
				Required:   jf.Required,
				EnumValues: jf.EnumValues,
			})
		}
		for _, jr := range jt.Relationships {
			var kind RelKind
			switch strings.ToLower(jr.Kind) {
			case "toone", "to-one", "manytoone":
				kind = ToOne
			case "tomany", "to-many", "onetomany":
				kind = ToMany
			default:
				return nil, fmt.Errorf("table %s relationship %s: unknown kind %q", jt.Name, jr.Name, jr.Kind)
			}
			t.Relationships = append(t.Relationships, Relationship{
				Name:          jr.Name,
				Kind:          kind,
				RelatedTable:  jr.RelatedTable,
				OtherSideName: jr.OtherSideName,
			})
		}
		dm.Tables = append(dm.Tables, t)
	}

	// Relationships must point at tables the document actually defines.
	for _, t := range dm.Tables {
		for _, rel := range t.Relationships {
			if _, ok := dm.Table(rel.RelatedTable); !ok {
				return nil, fmt.Errorf("table %s relationship %s: unknown related table %q", t.Name, rel.Name, rel.RelatedTable)
			}
		}
	}

	return dm, nil
}
