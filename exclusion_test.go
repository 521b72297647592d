package xhub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExclusionFilter_Exact(t *testing.T) {
	f := NewExclusionFilter(ExclusionConfig{
		Domains:  []string{"camera"},
		Entities: []string{"light.hallway_debug"},
	})

	assert.True(t, f.Excludes(EntityID{Domain: "camera", Name: "front_door"}))
	assert.True(t, f.Excludes(EntityID{Domain: "light", Name: "hallway_debug"}))
	assert.False(t, f.Excludes(EntityID{Domain: "light", Name: "kitchen"}))
	assert.False(t, f.Excludes(EntityID{Domain: "sensor", Name: "hallway_temp"}))
}

func TestExclusionFilter_Globs(t *testing.T) {
	f := NewExclusionFilter(ExclusionConfig{
		Domains:  []string{"cam*"},
		Entities: []string{"sensor.*_debug"},
	})

	assert.True(t, f.Excludes(EntityID{Domain: "camera", Name: "front_door"}))
	assert.True(t, f.Excludes(EntityID{Domain: "sensor", Name: "hallway_debug"}))
	assert.False(t, f.Excludes(EntityID{Domain: "sensor", Name: "hallway_temp"}))
}

func TestExclusionFilter_ZeroID(t *testing.T) {
	f := NewExclusionFilter(ExclusionConfig{Domains: []string{"camera"}})
	assert.False(t, f.Excludes(EntityID{}))
}

func TestExclusionFilter_Empty(t *testing.T) {
	assert.True(t, NewExclusionFilter(ExclusionConfig{}).Empty())
	assert.False(t, NewExclusionFilter(ExclusionConfig{Domains: []string{"x"}}).Empty())
	assert.False(t, NewExclusionFilter(ExclusionConfig{}).Excludes(EntityID{Domain: "a", Name: "b"}))
}

func TestMatchPattern_Malformed(t *testing.T) {
	assert.False(t, matchPattern("[", "anything"))
}
