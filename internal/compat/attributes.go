// Package compat scores how well two students would share a room.
//
// Every attribute function maps a pair of raw questionnaire answers to a
// similarity in [0,1] and never fails: values it cannot interpret degrade to
// a neutral score. Score combines the per-attribute similarities into a
// single 0-100 compatibility score.
package compat

import "sort"

// Attribute names a preference attribute from the questionnaire.
type Attribute string

const (
	SleepTime             Attribute = "sleep_time"
	WakeTime              Attribute = "wake_time"
	StudyPreference       Attribute = "study_preference"
	NoiseTolerance        Attribute = "noise_tolerance"
	CleanlinessLevel      Attribute = "cleanliness_level"
	SocialPreference      Attribute = "social_preference"
	MusicPreference       Attribute = "music_preference"
	VisitorFrequency      Attribute = "visitor_frequency"
	TemperaturePreference Attribute = "temperature_preference"
	SmokingPreference     Attribute = "smoking_preference"
)

// Interests is the pseudo-attribute name used for the free-text interest
// set in breakdowns.
const Interests Attribute = "interests"

// Kind selects the similarity function used for an attribute.
type Kind int

const (
	KindTime Kind = iota
	KindOrdinal
	KindBinary
	KindCategorical
)

func (k Kind) String() string {
	switch k {
	case KindTime:
		return "time"
	case KindOrdinal:
		return "ordinal"
	case KindBinary:
		return "binary"
	case KindCategorical:
		return "categorical"
	default:
		return "unknown"
	}
}

// InterestWeight is the weight of the interest-set component. It is applied
// on every pair, even when neither student listed interests.
const InterestWeight = 0.10

// AttributeSpec ties an attribute to its kind and fixed weight.
type AttributeSpec struct {
	Attribute Attribute
	Kind      Kind
	Weight    float64
}

// attributes is the fixed, ordered attribute table. Weights need not sum to
// one; Score normalises by the weight actually applied.
var attributes = []AttributeSpec{
	{SleepTime, KindTime, 0.15},
	{WakeTime, KindTime, 0.15},
	{StudyPreference, KindCategorical, 0.12},
	{NoiseTolerance, KindOrdinal, 0.12},
	{CleanlinessLevel, KindOrdinal, 0.10},
	{SocialPreference, KindCategorical, 0.10},
	{MusicPreference, KindCategorical, 0.08},
	{VisitorFrequency, KindCategorical, 0.08},
	{TemperaturePreference, KindCategorical, 0.05},
	{SmokingPreference, KindBinary, 0.15},
}

// Attributes returns a copy of the attribute table in scoring order.
func Attributes() []AttributeSpec {
	out := make([]AttributeSpec, len(attributes))
	copy(out, attributes)
	return out
}

// Lookup returns the spec for a named attribute.
func Lookup(name string) (AttributeSpec, bool) {
	for _, spec := range attributes {
		if string(spec.Attribute) == name {
			return spec, true
		}
	}
	return AttributeSpec{}, false
}

// IsKnown reports whether name is one of the scored attributes.
func IsKnown(name string) bool {
	_, ok := Lookup(name)
	return ok
}

// UnknownAttributes returns the keys of values that are not scored
// attributes, sorted. Such keys would silently drop out of Score.
func UnknownAttributes(values map[string]string) []string {
	var unknown []string
	for name := range values {
		if !IsKnown(name) {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	return unknown
}
