package upload_test

import (
	"testing"

	"github.com/JulianTonti/specify7/internal/datamodel"
	"github.com/JulianTonti/specify7/internal/upload"
)

// testDatamodel builds the slice of the collections schema the tests upload
// into: a collection object with a collecting event, locality, determinations
// and agents, plus the taxon tree tables.
func testDatamodel() *datamodel.Datamodel {
	return &datamodel.Datamodel{Tables: []datamodel.Table{
		{Name: "collection"},
		{Name: "discipline"},
		{Name: "division"},
		{
			Name: "collectionobject",
			Fields: []datamodel.Field{
				{Name: "catalognumber", Type: datamodel.FieldText},
				{Name: "collectionmemberid", Type: datamodel.FieldInteger},
			},
			Relationships: []datamodel.Relationship{
				{Name: "collection", Kind: datamodel.ToOne, RelatedTable: "collection"},
				{Name: "collectingevent", Kind: datamodel.ToOne, RelatedTable: "collectingevent"},
				{Name: "determinations", Kind: datamodel.ToMany, RelatedTable: "determination", OtherSideName: "collectionobject"},
			},
		},
		{
			Name: "collectingevent",
			Fields: []datamodel.Field{
				{Name: "startdate", Type: datamodel.FieldDate},
				{Name: "stationfieldnumber", Type: datamodel.FieldText},
			},
			Relationships: []datamodel.Relationship{
				{Name: "discipline", Kind: datamodel.ToOne, RelatedTable: "discipline"},
				{Name: "locality", Kind: datamodel.ToOne, RelatedTable: "locality"},
			},
		},
		{
			Name: "locality",
			Fields: []datamodel.Field{
				{Name: "localityname", Type: datamodel.FieldText},
				{Name: "latitude1", Type: datamodel.FieldLatitude},
				{Name: "longitude1", Type: datamodel.FieldLongitude},
				{Name: "latitude1precision", Type: datamodel.FieldInteger},
				{Name: "longitude1precision", Type: datamodel.FieldInteger},
			},
			Relationships: []datamodel.Relationship{
				{Name: "discipline", Kind: datamodel.ToOne, RelatedTable: "discipline"},
			},
		},
		{
			Name: "determination",
			Fields: []datamodel.Field{
				{Name: "determineddate", Type: datamodel.FieldDate},
				{Name: "iscurrent", Type: datamodel.FieldBool},
				{Name: "collectionmemberid", Type: datamodel.FieldInteger},
			},
			Relationships: []datamodel.Relationship{
				{Name: "collectionobject", Kind: datamodel.ToOne, RelatedTable: "collectionobject"},
			},
		},
		{
			Name: "agent",
			Fields: []datamodel.Field{
				{Name: "agenttype", Type: datamodel.FieldEnum, EnumValues: upload.AgentTypes},
				{Name: "firstname", Type: datamodel.FieldText},
				{Name: "lastname", Type: datamodel.FieldText},
			},
			Relationships: []datamodel.Relationship{
				{Name: "division", Kind: datamodel.ToOne, RelatedTable: "division"},
			},
		},
		{
			Name: "taxon",
			Fields: []datamodel.Field{
				{Name: "name", Type: datamodel.FieldText},
			},
		},
		{
			Name: "taxontreedefitem",
			Fields: []datamodel.Field{
				{Name: "name", Type: datamodel.FieldText},
				{Name: "rankid", Type: datamodel.FieldInteger},
			},
		},
	}}
}

func testScope() *upload.Scope {
	return &upload.Scope{
		CollectionID:   4,
		DisciplineID:   3,
		DivisionID:     2,
		InstitutionID:  1,
		TaxonTreeDefID: 1,
	}
}

func mustParsePlan(t *testing.T, doc string) upload.Uploadable {
	t.Helper()
	plan, err := upload.ParsePlan(testDatamodel(), testScope(), []byte(doc))
	if err != nil {
		t.Fatalf("ParsePlan: %v", err)
	}
	return plan
}

// collectionObjectPlan maps a catalog number, a collecting event with its
// locality, and one determination.
const collectionObjectPlan = `{
	"baseTableName": "collectionobject",
	"uploadable": {"uploadTable": {
		"wbcols": {"catalognumber": "BMSM No."},
		"static": {},
		"toOne": {"collectingevent": {"uploadTable": {
			"wbcols": {"startdate": "Start Date", "stationfieldnumber": "Station No."},
			"static": {},
			"toOne": {"locality": {"uploadTable": {
				"wbcols": {"localityname": "Site", "latitude1": "Latitude", "longitude1": "Longitude"},
				"static": {},
				"toOne": {},
				"toMany": {}
			}}},
			"toMany": {}
		}}},
		"toMany": {"determinations": [
			{"wbcols": {"determineddate": "Det Date 1"}, "static": {"iscurrent": true}, "toOne": {}}
		]}
	}}
}`

const agentPlan = `{
	"baseTableName": "agent",
	"uploadable": {"uploadTable": {
		"wbcols": {"lastname": "Collector"},
		"static": {},
		"toOne": {},
		"toMany": {}
	}}
}`

const taxonPlan = `{
	"baseTableName": "taxon",
	"uploadable": {"treeRecord": {
		"ranks": {"Family": "Family", "Genus": "Genus", "Species": "Species"}
	}}
}`

func fullRow() upload.Row {
	return upload.Row{
		"BMSM No.":    "1365",
		"Start Date":  "12/05/2008",
		"Station No.": "W-7",
		"Site":        "Cayo Agua",
		"Latitude":    "8 30 N",
		"Longitude":   "82 10 W",
		"Det Date 1":  "01/01/2009",
	}
}
