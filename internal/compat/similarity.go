package compat

import (
	"math"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// timeLabels maps descriptive answers to an hour of the day. Labels win over
// numeric parsing.
var timeLabels = map[string]float64{
	"early morning": 6,
	"morning":       8,
	"late morning":  10,
	"noon":          12,
	"afternoon":     14,
	"evening":       18,
	"late evening":  20,
	"night":         22,
	"late night":    24,
	"midnight":      0,
}

// defaultHour is used for any time value that is neither a label nor HH:MM.
const defaultHour = 12.0

// HourOf converts a time answer to an hour of the day. Known labels are
// looked up first, then "HH:MM" is parsed; anything else is noon.
func HourOf(value string) float64 {
	v := strings.ToLower(strings.TrimSpace(value))
	if h, ok := timeLabels[v]; ok {
		return h
	}

	hh, mm, ok := strings.Cut(v, ":")
	if !ok {
		return defaultHour
	}
	hour, err := strconv.ParseFloat(strings.TrimSpace(hh), 64)
	if err != nil {
		return defaultHour
	}
	// Ignore any seconds component ("23:30:00").
	mm, _, _ = strings.Cut(mm, ":")
	minute, err := strconv.ParseFloat(strings.TrimSpace(mm), 64)
	if err != nil {
		return defaultHour
	}

	h := hour + minute/60
	if !(h >= 0 && h <= 24) || !(minute >= 0 && minute < 60) {
		return defaultHour
	}
	return h
}

// TimeCompatibility scores two times of day on a 24h circle. Identical
// times score 1 and the score falls linearly to 0 at a 3-hour gap.
func TimeCompatibility(a, b string) float64 {
	diff := math.Abs(HourOf(a) - HourOf(b))
	if diff > 12 {
		diff = 24 - diff
	}
	return math.Max(0, 1-diff/3)
}

var ordinalLevels = map[string]int{
	"low":    1,
	"medium": 2,
	"high":   3,
}

// ordinalLevel returns the rank of a low/medium/high answer, medium when
// unrecognised.
func ordinalLevel(value string) int {
	if lvl, ok := ordinalLevels[strings.ToLower(strings.TrimSpace(value))]; ok {
		return lvl
	}
	return 2
}

// OrdinalCompatibility scores two low/medium/high answers: 1 for equal, 0.5
// one level apart, 0 two levels apart.
func OrdinalCompatibility(a, b string) float64 {
	diff := math.Abs(float64(ordinalLevel(a) - ordinalLevel(b)))
	return math.Max(0, 1-diff/2)
}

// BinaryCompatibility is 1 when the answers are identical (case-sensitive)
// and 0 otherwise.
func BinaryCompatibility(a, b string) float64 {
	if a == b {
		return 1
	}
	return 0
}

// pairTable holds symmetric pairwise scores for a closed set of values.
type pairTable map[[2]string]float64

func (t pairTable) lookup(a, b string) (float64, bool) {
	if s, ok := t[[2]string{a, b}]; ok {
		return s, true
	}
	s, ok := t[[2]string{b, a}]
	return s, ok
}

var categoricalTables = map[Attribute]pairTable{
	StudyPreference: {
		{"group", "group"}:           1.0,
		{"individual", "individual"}: 1.0,
		{"mixed", "mixed"}:           1.0,
		{"mixed", "group"}:           0.7,
		{"mixed", "individual"}:      0.7,
		{"group", "individual"}:      0.3,
	},
	SocialPreference: {
		{"extrovert", "extrovert"}: 1.0,
		{"introvert", "introvert"}: 1.0,
		{"ambivert", "ambivert"}:   1.0,
		{"ambivert", "extrovert"}:  0.8,
		{"ambivert", "introvert"}:  0.8,
		{"extrovert", "introvert"}: 0.4,
	},
}

// CategoricalCompatibility scores two answers for attr. Attributes with a
// known value set use their pairwise table; other pairs score 1 on a
// case-insensitive match and 0.5 otherwise.
func CategoricalCompatibility(attr Attribute, a, b string) float64 {
	x := strings.ToLower(strings.TrimSpace(a))
	y := strings.ToLower(strings.TrimSpace(b))
	if table, ok := categoricalTables[attr]; ok {
		if s, ok := table.lookup(x, y); ok {
			return s
		}
	}
	if x == y {
		return 1
	}
	return 0.5
}

// neutralInterest is returned when either side has no usable interests.
const neutralInterest = 0.5

// ParseInterests splits free text on commas and semicolons into a
// lower-cased, de-duplicated set.
func ParseInterests(text string) []string {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';'
	})
	tokens = lo.Map(tokens, func(t string, _ int) string {
		return strings.ToLower(strings.TrimSpace(t))
	})
	tokens = lo.Compact(tokens)
	return lo.Uniq(tokens)
}

// InterestSimilarity is the Jaccard similarity of two interest sets, or 0.5
// when either set is empty.
func InterestSimilarity(a, b string) float64 {
	setA := ParseInterests(a)
	setB := ParseInterests(b)
	if len(setA) == 0 || len(setB) == 0 {
		return neutralInterest
	}
	shared := lo.Intersect(setA, setB)
	union := lo.Union(setA, setB)
	return float64(len(shared)) / float64(len(union))
}

// Similarity dispatches to the function for spec's kind.
func Similarity(spec AttributeSpec, a, b string) float64 {
	switch spec.Kind {
	case KindTime:
		return TimeCompatibility(a, b)
	case KindOrdinal:
		return OrdinalCompatibility(a, b)
	case KindBinary:
		return BinaryCompatibility(a, b)
	default:
		return CategoricalCompatibility(spec.Attribute, a, b)
	}
}
