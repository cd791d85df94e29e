package domain

import (
	"os"
	"path/filepath"
	"testing"

	"lead_automation_backend/internal/condition"
)

func TestDefaultRatingsBoundaries(t *testing.T) {
	ratings := DefaultRatings()
	if err := ratings.Validate(); err != nil {
		t.Fatalf("default ratings invalid: %v", err)
	}

	tests := []struct {
		score int
		want  string
	}{
		{-5, RatingNotInterested},
		{0, RatingNotInterested},
		{19, RatingNotInterested},
		{20, RatingCold},
		{39, RatingCold},
		{40, RatingQualified},
		{60, RatingWarm},
		{79, RatingWarm},
		{80, RatingHot},
		{100, RatingHot},
		{140, RatingHot},
	}
	for _, tt := range tests {
		if got := ratings.For(tt.score); got != tt.want {
			t.Errorf("For(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestRatingsValidateRejectsGapsAndOverlaps(t *testing.T) {
	tests := []struct {
		name    string
		ratings Ratings
	}{
		{"gap", Ratings{{Name: "a", Min: 0, Max: 40}, {Name: "b", Min: 42, Max: 100}}},
		{"overlap", Ratings{{Name: "a", Min: 0, Max: 50}, {Name: "b", Min: 50, Max: 100}}},
		{"short", Ratings{{Name: "a", Min: 0, Max: 90}}},
		{"not from zero", Ratings{{Name: "a", Min: 1, Max: 100}}},
		{"inverted", Ratings{{Name: "a", Min: 0, Max: 60}, {Name: "b", Min: 61, Max: 20}}},
		{"duplicate", Ratings{{Name: "a", Min: 0, Max: 50}, {Name: "a", Min: 51, Max: 100}}},
		{"empty", Ratings{}},
	}
	for _, tt := range tests {
		if err := tt.ratings.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestParseRatingsSortsBands(t *testing.T) {
	data := []byte(`
ratings:
  - {name: hot, min: 50, max: 100}
  - {name: cold, min: 0, max: 49}
`)
	ratings, err := ParseRatings(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ratings.For(49) != "cold" || ratings.For(50) != "hot" {
		t.Fatalf("unexpected bands %+v", ratings)
	}
}

func TestLoadRatingsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ratings.yaml")
	if err := os.WriteFile(path, []byte("ratings:\n  - {name: only, min: 0, max: 100}\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	ratings, err := LoadRatings(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ratings.For(77) != "only" {
		t.Fatalf("expected single band, got %+v", ratings)
	}

	defaults, err := LoadRatings("")
	if err != nil || len(defaults) != 5 {
		t.Fatalf("expected defaults, got %v %v", defaults, err)
	}
}

func TestScoringRuleValidate(t *testing.T) {
	valid := ScoringRule{RuleName: "NL", ConditionField: "country_id", ConditionValue: "5", ScorePoints: 20}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid rule, got %v", err)
	}
	if valid.Condition().Operator != condition.OpEquals {
		t.Fatalf("expected empty operator to normalize to equals, got %q", valid.Condition().Operator)
	}

	bad := ScoringRule{RuleName: "", ConditionField: "lead_score", ConditionOperator: "greater_than", ConditionValue: "abc", ScorePoints: 500}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected validation errors")
	}
}

func TestClamp(t *testing.T) {
	if Clamp(-3) != 0 || Clamp(55) != 55 || Clamp(130) != 100 {
		t.Fatal("clamp out of bounds")
	}
}
