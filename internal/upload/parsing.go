package upload

// parsing.go converts raw cell text into typed values for target fields.
//
// These functions face the same messy reality as any spreadsheet import:
// several date notations, coordinates written half a dozen ways, controlled
// vocabularies typed from memory. Every failure comes back as issue text
// addressed to the offending cell, never as a panic or a silent default.

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/JulianTonti/specify7/internal/datamodel"
)

// DateLayouts is the ordered list of accepted date formats. First match
// wins. Day-first layouts come before ISO since that is how the source
// collections record dates.
var DateLayouts = []string{
	"02/01/2006", "2/1/2006",
	"02-01-2006", "2-1-2006",
	"2006-01-02", "2006/01/02", "2006.01.02",
	"2 Jan 2006", "Jan 2, 2006",
	"02.01.2006",
}

// AgentTypes is the controlled vocabulary for the agent-type field. The
// stored value is the index into this list.
var AgentTypes = []string{"Organization", "Person", "Other", "Group"}

// vocabularyLabels maps enum field names to the label used in issue text.
// Fields not listed here fall back to their own name.
var vocabularyLabels = map[string]string{
	"agenttype": "agent type",
}

// trueValues and falseValues are the accepted spellings for boolean cells.
var (
	trueValues  = []string{"true", "yes", "t", "y", "1"}
	falseValues = []string{"false", "no", "f", "n", "0"}
)

// zeroDayRE matches dates with a zeroed day component, which the source data
// uses for month-precision dates (e.g. "00/01/2002").
var zeroDayRE = regexp.MustCompile(`^00([/.-])(\d{1,2})([/.-])(\d{4})$`)

// ParsedValue is the result of parsing one cell.
type ParsedValue struct {
	// Value is the typed value to store and filter on. Unset when Missing.
	Value any

	// Missing marks a blank cell for a non-required field: it contributes
	// no filter criterion and no stored value.
	Missing bool

	// Extra carries companion values derived from the same cell, keyed by
	// field name (coordinate precision). Only merged for fields the target
	// table actually declares.
	Extra Filter
}

// ParseValue parses raw cell text against the field's declared type.
// The returned error text is the cell issue shown to the user.
func ParseValue(f *datamodel.Field, raw string) (ParsedValue, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if f.Required {
			return ParsedValue{}, fmt.Errorf("field is required by upload plan mapping")
		}
		return ParsedValue{Missing: true}, nil
	}

	switch f.Type {
	case datamodel.FieldText:
		return ParsedValue{Value: raw}, nil

	case datamodel.FieldDate:
		t, ok := parseDate(raw)
		if !ok {
			return ParsedValue{}, fmt.Errorf("bad date value: %s", raw)
		}
		return ParsedValue{Value: t}, nil

	case datamodel.FieldInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return ParsedValue{}, fmt.Errorf("bad integer value: %s", raw)
		}
		return ParsedValue{Value: n}, nil

	case datamodel.FieldDecimal:
		d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
		if err != nil {
			return ParsedValue{}, fmt.Errorf("bad decimal value: %s", raw)
		}
		return ParsedValue{Value: d}, nil

	case datamodel.FieldBool:
		b, ok := parseBool(raw)
		if !ok {
			return ParsedValue{}, fmt.Errorf("bad boolean value: %s", raw)
		}
		return ParsedValue{Value: b}, nil

	case datamodel.FieldEnum:
		idx, ok := matchVocabulary(f.EnumValues, raw)
		if !ok {
			return ParsedValue{}, fmt.Errorf("bad %s: %s. Expected one of %s",
				vocabularyLabel(f), capitalize(raw), quoteOptions(f.EnumValues))
		}
		return ParsedValue{Value: int64(idx)}, nil

	case datamodel.FieldLatitude:
		deg, prec, ok := ParseCoord(raw)
		if !ok {
			return ParsedValue{}, fmt.Errorf("bad latitude value: %s", raw)
		}
		if deg < -90 || deg > 90 {
			return ParsedValue{}, fmt.Errorf("latitude must be between -90 and 90 degrees: %s", raw)
		}
		return coordValue(f, deg, prec), nil

	case datamodel.FieldLongitude:
		deg, prec, ok := ParseCoord(raw)
		if !ok {
			return ParsedValue{}, fmt.Errorf("bad longitude value: %s", raw)
		}
		if deg < -180 || deg > 180 {
			return ParsedValue{}, fmt.Errorf("longitude must be between -180 and 180 degrees: %s", raw)
		}
		return coordValue(f, deg, prec), nil

	default:
		return ParsedValue{}, fmt.Errorf("unhandled field type for %s", f.Name)
	}
}

func coordValue(f *datamodel.Field, deg float64, prec int) ParsedValue {
	return ParsedValue{
		Value: deg,
		Extra: Filter{strings.ToLower(f.Name) + "precision": int64(prec)},
	}
}

func parseDate(raw string) (time.Time, bool) {
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	// Month-precision dates carry a zeroed day; store them as the first of
	// the month.
	if m := zeroDayRE.FindStringSubmatch(raw); m != nil {
		fixed := "01" + m[1] + m[2] + m[3] + m[4]
		for _, layout := range DateLayouts {
			if t, err := time.Parse(layout, fixed); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func parseBool(raw string) (bool, bool) {
	lowered := strings.ToLower(raw)
	for _, v := range trueValues {
		if lowered == v {
			return true, true
		}
	}
	for _, v := range falseValues {
		if lowered == v {
			return false, true
		}
	}
	return false, false
}

// matchVocabulary finds raw in the ordered label list, case-insensitively.
func matchVocabulary(options []string, raw string) (int, bool) {
	for i, opt := range options {
		if strings.EqualFold(opt, raw) {
			return i, true
		}
	}
	return 0, false
}

func vocabularyLabel(f *datamodel.Field) string {
	if label, ok := vocabularyLabels[strings.ToLower(f.Name)]; ok {
		return label
	}
	return strings.ToLower(f.Name)
}

// quoteOptions renders the valid labels the way the legacy report format
// does: ['Organization', 'Person', 'Other', 'Group'].
func quoteOptions(options []string) string {
	quoted := make([]string, len(options))
	for i, opt := range options {
		quoted[i] = "'" + opt + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// capitalize upper-cases the first rune and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// coordRE splits a coordinate into sign, degrees, minutes, seconds and a
// trailing direction letter. Separators are anything that is not a digit,
// a dot, or a direction letter, which covers ':', spaces and the
// degree/minute/second symbols.
var coordRE = regexp.MustCompile(
	`(?i)^(-?)(\d{0,3}(?:\.\d*)?)[^\d.nsew]*(\d{0,2}(?:\.\d*)?)[^\d.nsew]*(\d{0,2}(?:\.\d*)?)[^\d.nsew]*([nsew]?)$`)

// Coordinate precision classes.
const (
	CoordPrecisionDegrees       = 0 // degrees only
	CoordPrecisionDegMinSec     = 1 // degrees, minutes and seconds
	CoordPrecisionDegreeMinutes = 2 // degrees and minutes
)

// ParseCoord parses a geographic coordinate in any of the accepted
// notations (decimal degrees, DD:MM, DD MM, DD:MM:SS, symbol-punctuated
// variants, with sign taken from a leading minus or a trailing N/S/E/W) and
// returns the signed decimal degrees plus the precision class.
func ParseCoord(raw string) (float64, int, bool) {
	m := coordRE.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil || m[2] == "" {
		return 0, 0, false
	}

	deg, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, 0, false
	}

	value := deg
	precision := CoordPrecisionDegrees
	if m[3] != "" {
		min, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			return 0, 0, false
		}
		value += min / 60
		precision = CoordPrecisionDegreeMinutes
	}
	if m[4] != "" {
		sec, err := strconv.ParseFloat(m[4], 64)
		if err != nil {
			return 0, 0, false
		}
		value += sec / 3600
		precision = CoordPrecisionDegMinSec
	}

	// The sign comes from the string, not the parsed degrees: "-0 01" must
	// stay negative.
	negative := m[1] == "-"
	switch strings.ToLower(m[5]) {
	case "s", "w":
		negative = true
	}
	if negative {
		value = -value
	}

	return value, precision, true
}
