package datamodel

import (
	"strings"
	"testing"
)

const validDoc = `{
	"tables": [
		{
			"name": "agent",
			"fields": [
				{"name": "lastname", "type": "text"},
				{"name": "agenttype", "type": "enum", "enumValues": ["Organization", "Person", "Other", "Group"]},
				{"name": "dateofbirth", "type": "date"}
			],
			"relationships": [
				{"name": "division", "kind": "toOne", "relatedTable": "division"}
			]
		},
		{"name": "division", "fields": []}
	]
}`

func TestLoad(t *testing.T) {
	dm, err := Load(strings.NewReader(validDoc))
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}

	agent, ok := dm.Table("Agent")
	if !ok {
		t.Fatal("table lookup must be case-insensitive")
	}

	f, ok := agent.Field("AgentType")
	if !ok {
		t.Fatal("field lookup must be case-insensitive")
	}
	if f.Type != FieldEnum || len(f.EnumValues) != 4 {
		t.Errorf("agenttype = %+v", f)
	}

	rel, ok := agent.Relationship("division")
	if !ok {
		t.Fatal("relationship division missing")
	}
	if rel.Kind != ToOne || rel.RelatedTable != "division" {
		t.Errorf("division = %+v", rel)
	}
	if got := rel.FKColumn(); got != "division_id" {
		t.Errorf("FKColumn = %q, want division_id", got)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "unknown field type",
			doc:  `{"tables": [{"name": "agent", "fields": [{"name": "x", "type": "blob"}]}]}`,
		},
		{
			name: "enum without values",
			doc:  `{"tables": [{"name": "agent", "fields": [{"name": "x", "type": "enum"}]}]}`,
		},
		{
			name: "unknown relationship kind",
			doc:  `{"tables": [{"name": "agent", "fields": [], "relationships": [{"name": "r", "kind": "sideways", "relatedTable": "agent"}]}]}`,
		},
		{
			name: "relationship to undefined table",
			doc:  `{"tables": [{"name": "agent", "fields": [], "relationships": [{"name": "r", "kind": "toOne", "relatedTable": "nonsense"}]}]}`,
		},
		{
			name: "unknown document key",
			doc:  `{"tables": [], "extra": 1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(strings.NewReader(tt.doc)); err == nil {
				t.Error("Load succeeded, want error")
			}
		})
	}
}
