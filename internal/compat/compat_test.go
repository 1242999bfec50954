package compat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klubi/hostel/pkg/apis/v1alpha1"
)

const delta = 1e-9

func TestHourOf(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"early morning", 6},
		{"  Late Night ", 24},
		{"midnight", 0},
		{"23:30", 23.5},
		{"07:15", 7.25},
		{"23:30:00", 23.5},
		{"garbage", 12},
		{"", 12},
		{"25:00", 12},
		{"10:75", 12},
		{"ab:cd", 12},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.InDelta(t, tt.want, HourOf(tt.in), delta)
		})
	}
}

func TestTimeCompatibility(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical label", "night", "night", 1},
		{"identical clock", "22:00", "22:00", 1},
		{"wraps past midnight", "23:00", "01:00", 1.0 / 3},
		{"late night equals midnight", "late night", "midnight", 1},
		{"three hours apart", "10:00", "13:00", 0},
		{"far apart", "morning", "night", 0},
		{"half hour", "22:30", "night", 1 - 0.5/3},
		{"unparseable is noon", "whenever", "noon", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, TimeCompatibility(tt.a, tt.b), delta)
			assert.InDelta(t, tt.want, TimeCompatibility(tt.b, tt.a), delta, "not symmetric")
		})
	}
}

func TestOrdinalCompatibility(t *testing.T) {
	assert.Equal(t, 1.0, OrdinalCompatibility("low", "low"))
	assert.Equal(t, 0.5, OrdinalCompatibility("low", "medium"))
	assert.Equal(t, 0.0, OrdinalCompatibility("low", "high"))
	assert.Equal(t, 1.0, OrdinalCompatibility("HIGH", "high"))
	assert.Equal(t, 1.0, OrdinalCompatibility("sometimes", "medium"))
	assert.Equal(t, 0.5, OrdinalCompatibility("sometimes", "high"))
}

func TestBinaryCompatibility(t *testing.T) {
	assert.Equal(t, 1.0, BinaryCompatibility("no", "no"))
	assert.Equal(t, 0.0, BinaryCompatibility("no", "yes"))
	assert.Equal(t, 0.0, BinaryCompatibility("No", "no"), "comparison is case-sensitive")
}

func TestCategoricalCompatibility(t *testing.T) {
	tests := []struct {
		attr Attribute
		a, b string
		want float64
	}{
		{StudyPreference, "group", "group", 1},
		{StudyPreference, "Mixed", "group", 0.7},
		{StudyPreference, "individual", "mixed", 0.7},
		{StudyPreference, "group", "individual", 0.3},
		{StudyPreference, "group", "library", 0.5},
		{SocialPreference, "ambivert", "introvert", 0.8},
		{SocialPreference, "introvert", "extrovert", 0.4},
		{SocialPreference, "Extrovert", "extrovert", 1},
		{MusicPreference, "Rock", "rock", 1},
		{MusicPreference, "rock", "jazz", 0.5},
		{TemperaturePreference, "cool", "warm", 0.5},
	}
	for _, tt := range tests {
		t.Run(string(tt.attr)+"/"+tt.a+"/"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, CategoricalCompatibility(tt.attr, tt.a, tt.b))
			assert.Equal(t, tt.want, CategoricalCompatibility(tt.attr, tt.b, tt.a))
		})
	}
}

func TestParseInterests(t *testing.T) {
	got := ParseInterests(" Music; sports,,music ;  ; Reading ")
	assert.Equal(t, []string{"music", "sports", "reading"}, got)
	assert.Empty(t, ParseInterests(" ; , "))
}

func TestInterestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0/3, InterestSimilarity("music, sports", "music, gaming"), delta)
	assert.InDelta(t, 0.5, InterestSimilarity("music, sports, reading", "music; gaming; reading"), delta)
	assert.Equal(t, 1.0, InterestSimilarity("Chess", "chess"))
	assert.Equal(t, 0.0, InterestSimilarity("chess", "football"))
	assert.Equal(t, 0.5, InterestSimilarity("", "chess"))
	assert.Equal(t, 0.5, InterestSimilarity("", ""))
}

func fullProfile() Profile {
	return Profile{
		Values: map[string]string{
			"sleep_time":             "23:00",
			"wake_time":              "07:00",
			"study_preference":       "individual",
			"noise_tolerance":        "low",
			"cleanliness_level":      "high",
			"social_preference":      "introvert",
			"music_preference":       "classical",
			"visitor_frequency":      "rarely",
			"temperature_preference": "cool",
			"smoking_preference":     "no",
		},
		Interests: "reading, chess",
	}
}

func TestScore(t *testing.T) {
	t.Run("identical profiles score 100", func(t *testing.T) {
		assert.InDelta(t, 100, Score(fullProfile(), fullProfile()), delta)
	})

	t.Run("empty profiles score 50", func(t *testing.T) {
		assert.Equal(t, 50.0, Score(Profile{}, Profile{}))
	})

	t.Run("missing attributes shrink the denominator", func(t *testing.T) {
		a := Profile{Values: map[string]string{"sleep_time": "23:00", "noise_tolerance": "low"}}
		b := Profile{Values: map[string]string{"sleep_time": "01:00"}}
		// (1/3 * 0.15 + 0.5 * 0.10) / (0.15 + 0.10)
		assert.InDelta(t, 40, Score(a, b), delta)
	})

	t.Run("empty values are treated as missing", func(t *testing.T) {
		a := Profile{Values: map[string]string{"smoking_preference": ""}}
		b := Profile{Values: map[string]string{"smoking_preference": "yes"}}
		assert.Equal(t, 50.0, Score(a, b))
	})

	t.Run("symmetric", func(t *testing.T) {
		a := fullProfile()
		b := fullProfile()
		b.Values["sleep_time"] = "night"
		b.Values["social_preference"] = "extrovert"
		b.Values["smoking_preference"] = "yes"
		b.Interests = "chess; football"
		assert.InDelta(t, Score(a, b), Score(b, a), delta)
	})

	t.Run("bounded", func(t *testing.T) {
		values := []string{"", "low", "high", "23:00", "morning", "group", "introvert", "yes", "no", "???"}
		for _, x := range values {
			for _, y := range values {
				a := Profile{Values: map[string]string{}, Interests: x}
				b := Profile{Values: map[string]string{}, Interests: y}
				for _, spec := range Attributes() {
					a.Values[string(spec.Attribute)] = x
					b.Values[string(spec.Attribute)] = y
				}
				s := Score(a, b)
				assert.GreaterOrEqual(t, s, 0.0)
				assert.LessOrEqual(t, s, 100.0)
			}
		}
	})
}

func TestBreakdown(t *testing.T) {
	a := Profile{Values: map[string]string{"smoking_preference": "no"}}
	b := Profile{Values: map[string]string{"smoking_preference": "no", "sleep_time": "night"}}

	score, parts := Breakdown(a, b)
	require.Len(t, parts, len(Attributes())+1)
	assert.InDelta(t, Score(a, b), score, delta)

	byName := make(map[string]v1alpha1.AttributeBreakdown, len(parts))
	for _, p := range parts {
		byName[p.Attribute] = p
	}
	assert.True(t, byName["sleep_time"].Skipped)
	assert.False(t, byName["smoking_preference"].Skipped)
	assert.Equal(t, 1.0, byName["smoking_preference"].Similarity)
	assert.Equal(t, 0.5, byName["interests"].Similarity)
	assert.Equal(t, InterestWeight, byName["interests"].Weight)
}

func TestProfileOf(t *testing.T) {
	assert.Equal(t, Profile{}, ProfileOf(nil))

	p := &v1alpha1.Preferences{
		Values:    map[string]string{"sleep_time": "night"},
		Interests: "chess",
		Notes:     "not scored",
	}
	got := ProfileOf(p)
	assert.Equal(t, "night", got.Values["sleep_time"])
	assert.Equal(t, "chess", got.Interests)
}

func TestLookup(t *testing.T) {
	spec, ok := Lookup("noise_tolerance")
	require.True(t, ok)
	assert.Equal(t, KindOrdinal, spec.Kind)
	assert.Equal(t, 0.12, spec.Weight)
	assert.False(t, IsKnown("dietary_preferences"))
}

func TestUnknownAttributes(t *testing.T) {
	assert.Empty(t, UnknownAttributes(nil))
	assert.Empty(t, UnknownAttributes(map[string]string{"sleep_time": "22:00"}))
	assert.Equal(t, []string{"bedtime", "noise"}, UnknownAttributes(map[string]string{
		"noise":      "low",
		"sleep_time": "22:00",
		"bedtime":    "late",
	}))
}
