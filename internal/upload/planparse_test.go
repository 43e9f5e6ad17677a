package upload_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JulianTonti/specify7/internal/upload"
)

func TestParsePlan_RoundTrip(t *testing.T) {
	for name, doc := range map[string]string{
		"collectionobject": collectionObjectPlan,
		"agent":            agentPlan,
		"taxon":            taxonPlan,
	} {
		t.Run(name, func(t *testing.T) {
			plan := mustParsePlan(t, doc)

			unparsed, err := json.Marshal(upload.UnparsePlan(plan))
			require.NoError(t, err)

			var want, got map[string]any
			require.NoError(t, json.Unmarshal([]byte(doc), &want))
			require.NoError(t, json.Unmarshal(unparsed, &got))
			assert.Equal(t, want, got, "unparse must reproduce the document")
		})
	}
}

func TestParsePlan_StaticOverridesScoping(t *testing.T) {
	doc := `{
		"baseTableName": "collectionobject",
		"uploadable": {"uploadTable": {
			"wbcols": {"catalognumber": "BMSM No."},
			"static": {"collectionmemberid": 99},
			"toOne": {},
			"toMany": {}
		}}
	}`
	plan := mustParsePlan(t, doc)

	pack := plan.FilterOn("", upload.Row{"BMSM No.": "1"})
	require.Len(t, pack.Filters, 1)
	assert.Equal(t, float64(99), pack.Filters[0]["collectionmemberid"],
		"explicit static value wins over the injected scope")
	assert.Equal(t, int64(4), pack.Filters[0]["collection_id"],
		"untouched scoping keys are still injected")

	// The override is the plan author's, so it round-trips.
	unparsed := upload.UnparsePlan(plan)
	uploadable := unparsed["uploadable"].(map[string]any)["uploadTable"].(map[string]any)
	assert.Equal(t, map[string]any{"collectionmemberid": float64(99)}, uploadable["static"])
}

func TestParsePlan_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "unknown base table",
			doc:  `{"baseTableName": "nonsense", "uploadable": {"uploadTable": {"wbcols": {}, "static": {}, "toOne": {}, "toMany": {}}}}`,
		},
		{
			name: "missing baseTableName",
			doc:  `{"uploadable": {"uploadTable": {"wbcols": {}, "static": {}, "toOne": {}, "toMany": {}}}}`,
		},
		{
			name: "unexpected top-level key",
			doc:  `{"baseTableName": "agent", "uploadable": {"uploadTable": {"wbcols": {}, "static": {}, "toOne": {}, "toMany": {}}}, "extra": 1}`,
		},
		{
			name: "uploadable with two variants",
			doc:  `{"baseTableName": "agent", "uploadable": {"uploadTable": {"wbcols": {}, "static": {}, "toOne": {}, "toMany": {}}, "treeRecord": {"ranks": {}}}}`,
		},
		{
			name: "unknown uploadable variant",
			doc:  `{"baseTableName": "agent", "uploadable": {"mysteryTable": {}}}`,
		},
		{
			name: "unknown field in wbcols",
			doc:  `{"baseTableName": "agent", "uploadable": {"uploadTable": {"wbcols": {"nonsense": "Col"}, "static": {}, "toOne": {}, "toMany": {}}}}`,
		},
		{
			name: "missing toMany",
			doc:  `{"baseTableName": "agent", "uploadable": {"uploadTable": {"wbcols": {}, "static": {}, "toOne": {}}}}`,
		},
		{
			name: "unknown relationship in toOne",
			doc:  `{"baseTableName": "agent", "uploadable": {"uploadTable": {"wbcols": {}, "static": {}, "toOne": {"nonsense": {"uploadTable": {"wbcols": {}, "static": {}, "toOne": {}, "toMany": {}}}}, "toMany": {}}}}`,
		},
		{
			name: "to-many relationship used as to-one",
			doc:  `{"baseTableName": "collectionobject", "uploadable": {"uploadTable": {"wbcols": {}, "static": {}, "toOne": {"determinations": {"uploadTable": {"wbcols": {}, "static": {}, "toOne": {}, "toMany": {}}}}, "toMany": {}}}}`,
		},
		{
			name: "to-one relationship used as to-many",
			doc:  `{"baseTableName": "collectionobject", "uploadable": {"uploadTable": {"wbcols": {}, "static": {}, "toOne": {}, "toMany": {"collectingevent": [{"wbcols": {}, "static": {}, "toOne": {}}]}}}}`,
		},
		{
			name: "to-many record nesting to-many",
			doc:  `{"baseTableName": "collectionobject", "uploadable": {"uploadTable": {"wbcols": {}, "static": {}, "toOne": {}, "toMany": {"determinations": [{"wbcols": {}, "static": {}, "toOne": {}, "toMany": {}}]}}}}`,
		},
		{
			name: "tree record on a flat table",
			doc:  `{"baseTableName": "collectionobject", "uploadable": {"treeRecord": {"ranks": {"Family": "Family"}}}}`,
		},
		{
			name: "tree record with extra key",
			doc:  `{"baseTableName": "taxon", "uploadable": {"treeRecord": {"ranks": {"Family": "Family"}, "wbcols": {}}}}`,
		},
		{
			name: "malformed document",
			doc:  `["not", "an", "object"]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := upload.ParsePlan(testDatamodel(), testScope(), []byte(tt.doc))
			require.Error(t, err)
			var planErr *upload.PlanError
			assert.True(t, errors.As(err, &planErr), "error = %v, want *PlanError", err)
		})
	}
}

func TestParsePlan_ToManyOrderPreserved(t *testing.T) {
	doc := `{
		"baseTableName": "collectionobject",
		"uploadable": {"uploadTable": {
			"wbcols": {"catalognumber": "Cat No."},
			"static": {},
			"toOne": {},
			"toMany": {"determinations": [
				{"wbcols": {"determineddate": "Det Date 1"}, "static": {}, "toOne": {}},
				{"wbcols": {"determineddate": "Det Date 2"}, "static": {}, "toOne": {}}
			]}
		}}
	}`
	plan := mustParsePlan(t, doc)

	unparsed := upload.UnparsePlan(plan)
	uploadable := unparsed["uploadable"].(map[string]any)["uploadTable"].(map[string]any)
	records := uploadable["toMany"].(map[string]any)["determinations"].([]any)
	require.Len(t, records, 2)
	first := records[0].(map[string]any)["wbcols"].(map[string]any)
	second := records[1].(map[string]any)["wbcols"].(map[string]any)
	assert.Equal(t, "Det Date 1", first["determineddate"])
	assert.Equal(t, "Det Date 2", second["determineddate"])
}
