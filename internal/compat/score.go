package compat

import (
	"github.com/klubi/hostel/pkg/apis/v1alpha1"
)

// Profile is the scored view of a student's preferences.
type Profile struct {
	Values    map[string]string
	Interests string
}

// ProfileOf builds a Profile from submitted preferences. A nil p yields an
// empty profile.
func ProfileOf(p *v1alpha1.Preferences) Profile {
	if p == nil {
		return Profile{}
	}
	return Profile{Values: p.Values, Interests: p.Interests}
}

// value returns the answer for attr, or "" when absent.
func (p Profile) value(attr Attribute) string {
	if p.Values == nil {
		return ""
	}
	return p.Values[string(attr)]
}

// Score returns the weighted compatibility of two profiles in [0,100].
//
// An attribute contributes only when both profiles carry a non-empty value
// for it; missing attributes shrink the denominator instead of counting as a
// mismatch. The interest term is always included, so two empty profiles
// score 50.
func Score(a, b Profile) float64 {
	score, _ := evaluate(a, b)
	return score
}

// Breakdown returns Score(a, b) along with each attribute's similarity and
// weight. Skipped attributes are reported with Skipped set.
func Breakdown(a, b Profile) (float64, []v1alpha1.AttributeBreakdown) {
	return evaluate(a, b)
}

func evaluate(a, b Profile) (float64, []v1alpha1.AttributeBreakdown) {
	var total, applied float64
	parts := make([]v1alpha1.AttributeBreakdown, 0, len(attributes)+1)

	for _, spec := range attributes {
		va, vb := a.value(spec.Attribute), b.value(spec.Attribute)
		part := v1alpha1.AttributeBreakdown{
			Attribute: string(spec.Attribute),
			Weight:    spec.Weight,
		}
		if va == "" || vb == "" {
			part.Skipped = true
			parts = append(parts, part)
			continue
		}
		part.Similarity = Similarity(spec, va, vb)
		total += part.Similarity * spec.Weight
		applied += spec.Weight
		parts = append(parts, part)
	}

	interest := InterestSimilarity(a.Interests, b.Interests)
	total += interest * InterestWeight
	applied += InterestWeight
	parts = append(parts, v1alpha1.AttributeBreakdown{
		Attribute:  string(Interests),
		Weight:     InterestWeight,
		Similarity: interest,
	})

	if applied <= 0 {
		return 0, parts
	}
	return total / applied * 100, parts
}
