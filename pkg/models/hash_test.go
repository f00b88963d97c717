package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPOIID_Deterministic(t *testing.T) {
	a := POIID("a.py", "foo", "function", 1)
	b := POIID("a.py", "foo", "function", 1)
	assert.Equal(t, a, b)
}

func TestPOIID_DiffersOnAnyField(t *testing.T) {
	base := POIID("a.py", "foo", "function", 1)
	assert.NotEqual(t, base, POIID("b.py", "foo", "function", 1))
	assert.NotEqual(t, base, POIID("a.py", "bar", "function", 1))
	assert.NotEqual(t, base, POIID("a.py", "foo", "class", 1))
	assert.NotEqual(t, base, POIID("a.py", "foo", "function", 2))
}

func TestRelationshipHash_DeterministicAndCaseInsensitiveType(t *testing.T) {
	h1 := RelationshipHash("src", "dst", "calls")
	h2 := RelationshipHash("src", "dst", "CALLS")
	assert.Equal(t, h1, h2)
}

func TestRelationshipHash_DirectionMatters(t *testing.T) {
	assert.NotEqual(t, RelationshipHash("a", "b", "CALLS"), RelationshipHash("b", "a", "CALLS"))
}

func TestIsAllowedRelationshipType(t *testing.T) {
	assert.True(t, IsAllowedRelationshipType("calls"))
	assert.True(t, IsAllowedRelationshipType("CONTAINS"))
	assert.False(t, IsAllowedRelationshipType("FROBNICATES"))
}
