package targeting

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pulsefeed/ad-engine/internal/models"
)

func TestMatchLocation(t *testing.T) {
	tests := []struct {
		name     string
		targets  []string
		location string
		want     bool
	}{
		{"no targets matches anyone", nil, "Cork", true},
		{"no targets matches empty location", nil, "", true},
		{"targets but no location", []string{"Dublin"}, "", false},
		{"exact match", []string{"Dublin"}, "Dublin", true},
		{"viewer contains target", []string{"Dublin", "Ireland"}, "Dublin City", true},
		{"target contains viewer", []string{"Dublin City Centre"}, "Dublin City", true},
		{"case insensitive", []string{"DUBLIN"}, "dublin city", true},
		{"no overlap", []string{"Dublin", "Ireland"}, "Cork", false},
		{"second target matches", []string{"Galway", "Cork"}, "Cork County", true},
		{"blank target is ignored", []string{""}, "Cork", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, MatchLocation(tt.targets, tt.location))
		})
	}
}

func TestMatchTags(t *testing.T) {
	tests := []struct {
		name    string
		targets []string
		tags    []string
		want    bool
	}{
		{"no targets matches anyone", nil, []string{"sports"}, true},
		{"no targets matches no tags", nil, nil, true},
		{"targets but no tags", []string{"sports"}, nil, false},
		{"intersection", []string{"sports", "music"}, []string{"travel", "music"}, true},
		{"case insensitive", []string{"Sports"}, []string{"SPORTS"}, true},
		{"exact match only", []string{"sport"}, []string{"sports"}, false},
		{"disjoint", []string{"sports"}, []string{"travel"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, MatchTags(tt.targets, tt.tags))
		})
	}
}

func TestMatchesCombinesLocationAndTags(t *testing.T) {
	require := require.New(t)

	ad := &models.Ad{
		TargetLocations: []string{"Dublin"},
		TargetTags:      []string{"sports"},
	}

	require.True(Matches(ad, &models.ViewerContext{Location: "Dublin City", Tags: []string{"sports"}}))
	require.False(Matches(ad, &models.ViewerContext{Location: "Dublin City", Tags: []string{"music"}}),
		"both dimensions must pass")
	require.False(Matches(ad, &models.ViewerContext{Location: "Cork", Tags: []string{"sports"}}))

	open := &models.Ad{}
	require.True(Matches(open, nil), "untargeted ad matches a nil viewer")
	require.True(Matches(open, &models.ViewerContext{}))
	require.False(Matches(ad, nil), "targeted ad never matches a nil viewer")
}
