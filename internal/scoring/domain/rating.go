package domain

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default rating names.
const (
	RatingNotInterested = "not_interested"
	RatingCold          = "cold"
	RatingQualified     = "qualified"
	RatingWarm          = "warm"
	RatingHot           = "hot"
)

// RatingBand maps an inclusive score range to a rating name.
type RatingBand struct {
	Name string `yaml:"name" json:"name"`
	Min  int    `yaml:"min" json:"min"`
	Max  int    `yaml:"max" json:"max"`
}

// Ratings is an ordered, gap-free set of bands covering MinScore..MaxScore.
type Ratings []RatingBand

// DefaultRatings returns the built-in thresholds.
func DefaultRatings() Ratings {
	return Ratings{
		{Name: RatingNotInterested, Min: 0, Max: 19},
		{Name: RatingCold, Min: 20, Max: 39},
		{Name: RatingQualified, Min: 40, Max: 59},
		{Name: RatingWarm, Min: 60, Max: 79},
		{Name: RatingHot, Min: 80, Max: 100},
	}
}

// For returns the rating of score after clamping it.
func (r Ratings) For(score int) string {
	score = Clamp(score)
	for _, band := range r {
		if score >= band.Min && score <= band.Max {
			return band.Name
		}
	}
	return ""
}

// Validate checks that bands are named, ordered, contiguous and cover the whole score range.
func (r Ratings) Validate() error {
	if len(r) == 0 {
		return fmt.Errorf("at least one rating band is required")
	}
	seen := make(map[string]bool, len(r))
	next := MinScore
	for i, band := range r {
		name := strings.TrimSpace(band.Name)
		if name == "" {
			return fmt.Errorf("rating band %d: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("rating band %d: duplicate name %q", i, name)
		}
		seen[name] = true
		if band.Max < band.Min {
			return fmt.Errorf("rating band %q: max %d is below min %d", name, band.Max, band.Min)
		}
		if band.Min != next {
			return fmt.Errorf("rating band %q: expected min %d, got %d", name, next, band.Min)
		}
		next = band.Max + 1
	}
	if next != MaxScore+1 {
		return fmt.Errorf("rating bands end at %d, expected %d", next-1, MaxScore)
	}
	return nil
}

type ratingsFile struct {
	Ratings []RatingBand `yaml:"ratings"`
}

// ParseRatings decodes and validates YAML of the form `ratings: [{name, min, max}]`.
// Bands may be listed in any order.
func ParseRatings(data []byte) (Ratings, error) {
	var file ratingsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse ratings: %w", err)
	}
	ratings := Ratings(file.Ratings)
	sort.SliceStable(ratings, func(i, j int) bool { return ratings[i].Min < ratings[j].Min })
	if err := ratings.Validate(); err != nil {
		return nil, err
	}
	return ratings, nil
}

// LoadRatings reads thresholds from path. An empty path yields the defaults.
func LoadRatings(path string) (Ratings, error) {
	if path == "" {
		return DefaultRatings(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ratings file: %w", err)
	}
	return ParseRatings(data)
}
