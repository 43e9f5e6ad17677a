package upload_test

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JulianTonti/specify7/internal/datamodel"
	"github.com/JulianTonti/specify7/internal/upload"
)

func TestParseCoord(t *testing.T) {
	tests := []struct {
		raw       string
		degrees   float64
		precision int
	}{
		{"34.123 N", 34.123, upload.CoordPrecisionDegrees},
		{"36:07 N", 36 + 7.0/60, upload.CoordPrecisionDegreeMinutes},
		{"39:51:41 N", 39 + 51.0/60 + 41.0/3600, upload.CoordPrecisionDegMinSec},
		{"00.07152778 N", 0.07152778, upload.CoordPrecisionDegrees},
		{"17:22.88 N", 17 + 22.88/60, upload.CoordPrecisionDegreeMinutes},
		{"39:51:41.02 N", 39 + 51.0/60 + 41.02/3600, upload.CoordPrecisionDegMinSec},
		{"-39:51:41", -(39 + 51.0/60 + 41.0/3600), upload.CoordPrecisionDegMinSec},
		{"39:51:41 s", -(39 + 51.0/60 + 41.0/3600), upload.CoordPrecisionDegMinSec},
		{"39:51.41 w", -(39 + 51.41/60), upload.CoordPrecisionDegreeMinutes},
		{".34", 0.34, upload.CoordPrecisionDegrees},
		{"-.34", -0.34, upload.CoordPrecisionDegrees},
		{"28° N", 28, upload.CoordPrecisionDegrees},
		{"28° 19' N", 28 + 19.0/60, upload.CoordPrecisionDegreeMinutes},
		{"28° 19' 0.121\" N", 28 + 19.0/60 + 0.121/3600, upload.CoordPrecisionDegMinSec},
		{"115° 34' 59.872\" W", -(115 + 34.0/60 + 59.872/3600), upload.CoordPrecisionDegMinSec},
		{"1 01 S", -(1 + 1.0/60), upload.CoordPrecisionDegreeMinutes},
		{"0 01 S", -(1.0 / 60), upload.CoordPrecisionDegreeMinutes},
		{"-0 01", -(1.0 / 60), upload.CoordPrecisionDegreeMinutes},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			deg, prec, ok := upload.ParseCoord(tt.raw)
			if !ok {
				t.Fatalf("ParseCoord(%q) failed, want %v", tt.raw, tt.degrees)
			}
			if math.Abs(deg-tt.degrees) > 1e-9 {
				t.Errorf("ParseCoord(%q) degrees = %v, want %v", tt.raw, deg, tt.degrees)
			}
			if prec != tt.precision {
				t.Errorf("ParseCoord(%q) precision = %d, want %d", tt.raw, prec, tt.precision)
			}
		})
	}
}

func TestParseCoord_Invalid(t *testing.T) {
	for _, raw := range []string{"", "foobar", "n", "-", "- 11", "12:34:56:78", "34.123 E 12"} {
		if _, _, ok := upload.ParseCoord(raw); ok {
			t.Errorf("ParseCoord(%q) succeeded, want failure", raw)
		}
	}
}

func TestParseValue_Dates(t *testing.T) {
	field := &datamodel.Field{Name: "startdate", Type: datamodel.FieldDate}

	tests := []struct {
		raw  string
		want time.Time
	}{
		{"12/05/2008", time.Date(2008, time.May, 12, 0, 0, 0, 0, time.UTC)},
		{"2/1/2006", time.Date(2006, time.January, 2, 0, 0, 0, 0, time.UTC)},
		{"2008-05-12", time.Date(2008, time.May, 12, 0, 0, 0, 0, time.UTC)},
		{"12.05.2008", time.Date(2008, time.May, 12, 0, 0, 0, 0, time.UTC)},
		{"2 Jan 2006", time.Date(2006, time.January, 2, 0, 0, 0, 0, time.UTC)},
		// Zeroed day means month precision; stored as the first of the month.
		{"00/01/2002", time.Date(2002, time.January, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			pv, err := upload.ParseValue(field, tt.raw)
			if err != nil {
				t.Fatalf("ParseValue(%q) error = %v", tt.raw, err)
			}
			got, ok := pv.Value.(time.Time)
			if !ok || !got.Equal(tt.want) {
				t.Errorf("ParseValue(%q) = %v, want %v", tt.raw, pv.Value, tt.want)
			}
		})
	}
}

func TestParseValue_BadDate(t *testing.T) {
	field := &datamodel.Field{Name: "startdate", Type: datamodel.FieldDate}

	for _, raw := range []string{"foobar", "31/04/2020", "13/13/2020", "2008"} {
		_, err := upload.ParseValue(field, raw)
		if err == nil {
			t.Errorf("ParseValue(%q) succeeded, want error", raw)
			continue
		}
		want := "bad date value: " + raw
		if err.Error() != want {
			t.Errorf("ParseValue(%q) error = %q, want %q", raw, err.Error(), want)
		}
	}
}

func TestParseValue_AgentType(t *testing.T) {
	field := &datamodel.Field{
		Name:       "agenttype",
		Type:       datamodel.FieldEnum,
		EnumValues: upload.AgentTypes,
	}

	tests := []struct {
		raw  string
		want int64
	}{
		{"Organization", 0},
		{"person", 1},
		{"PERSON", 1},
		{"other", 2},
		{"Group", 3},
	}
	for _, tt := range tests {
		pv, err := upload.ParseValue(field, tt.raw)
		if err != nil {
			t.Fatalf("ParseValue(%q) error = %v", tt.raw, err)
		}
		if pv.Value != tt.want {
			t.Errorf("ParseValue(%q) = %v, want %d", tt.raw, pv.Value, tt.want)
		}
	}

	_, err := upload.ParseValue(field, "monster")
	if err == nil {
		t.Fatal("ParseValue(\"monster\") succeeded, want error")
	}
	want := "bad agent type: Monster. Expected one of ['Organization', 'Person', 'Other', 'Group']"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestParseValue_Scalars(t *testing.T) {
	intField := &datamodel.Field{Name: "totalcount", Type: datamodel.FieldInteger}
	boolField := &datamodel.Field{Name: "iscurrent", Type: datamodel.FieldBool}
	decField := &datamodel.Field{Name: "elevation", Type: datamodel.FieldDecimal}
	textField := &datamodel.Field{Name: "remarks", Type: datamodel.FieldText}

	if pv, err := upload.ParseValue(intField, " 42 "); err != nil || pv.Value != int64(42) {
		t.Errorf("integer: got (%v, %v), want 42", pv.Value, err)
	}
	if _, err := upload.ParseValue(intField, "4.2"); err == nil {
		t.Error("integer: \"4.2\" succeeded, want error")
	}

	for raw, want := range map[string]bool{"Yes": true, "t": true, "1": true, "NO": false, "0": false} {
		pv, err := upload.ParseValue(boolField, raw)
		if err != nil || pv.Value != want {
			t.Errorf("bool %q: got (%v, %v), want %v", raw, pv.Value, err, want)
		}
	}
	if _, err := upload.ParseValue(boolField, "maybe"); err == nil {
		t.Error("bool: \"maybe\" succeeded, want error")
	}

	pv, err := upload.ParseValue(decField, "1,234.5")
	if err != nil {
		t.Fatalf("decimal error = %v", err)
	}
	if d, ok := pv.Value.(decimal.Decimal); !ok || !d.Equal(decimal.RequireFromString("1234.5")) {
		t.Errorf("decimal = %v, want 1234.5", pv.Value)
	}

	if pv, err := upload.ParseValue(textField, "  Sanibel Island  "); err != nil || pv.Value != "Sanibel Island" {
		t.Errorf("text: got (%v, %v), want trimmed string", pv.Value, err)
	}
}

func TestParseValue_BlankCells(t *testing.T) {
	optional := &datamodel.Field{Name: "remarks", Type: datamodel.FieldText}
	pv, err := upload.ParseValue(optional, "   ")
	if err != nil {
		t.Fatalf("optional blank: error = %v", err)
	}
	if !pv.Missing {
		t.Error("optional blank: Missing = false, want true")
	}

	required := &datamodel.Field{Name: "catalognumber", Type: datamodel.FieldText, Required: true}
	if _, err := upload.ParseValue(required, ""); err == nil {
		t.Error("required blank: succeeded, want error")
	}
}

func TestParseValue_Coordinates(t *testing.T) {
	lat := &datamodel.Field{Name: "latitude1", Type: datamodel.FieldLatitude}
	long := &datamodel.Field{Name: "longitude1", Type: datamodel.FieldLongitude}

	pv, err := upload.ParseValue(lat, "28° 19' N")
	if err != nil {
		t.Fatalf("latitude error = %v", err)
	}
	if deg := pv.Value.(float64); math.Abs(deg-(28+19.0/60)) > 1e-9 {
		t.Errorf("latitude = %v", deg)
	}
	if got := pv.Extra["latitude1precision"]; got != int64(upload.CoordPrecisionDegreeMinutes) {
		t.Errorf("latitude precision extra = %v, want %d", got, upload.CoordPrecisionDegreeMinutes)
	}

	if _, err := upload.ParseValue(lat, "95"); err == nil {
		t.Error("latitude 95 succeeded, want out-of-range error")
	}
	if _, err := upload.ParseValue(long, "181"); err == nil {
		t.Error("longitude 181 succeeded, want out-of-range error")
	}
	if _, err := upload.ParseValue(long, "foobar"); err == nil {
		t.Error("longitude \"foobar\" succeeded, want error")
	}

	pv, err = upload.ParseValue(long, "115° 34' 59.872\" W")
	if err != nil {
		t.Fatalf("longitude error = %v", err)
	}
	if deg := pv.Value.(float64); deg >= 0 {
		t.Errorf("longitude W = %v, want negative", deg)
	}
	if got := pv.Extra["longitude1precision"]; got != int64(upload.CoordPrecisionDegMinSec) {
		t.Errorf("longitude precision extra = %v, want %d", got, upload.CoordPrecisionDegMinSec)
	}
}
