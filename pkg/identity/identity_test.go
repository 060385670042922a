package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDDeterministic(t *testing.T) {
	content := `<div class="feed-shared-update-v2">hello</div>`
	assert.Equal(t, ID(content, 3), ID(content, 3))
	assert.NotEqual(t, ID(content, 3), ID(content, 4))
}

func TestIDKnownValues(t *testing.T) {
	// "a"+"0": h = 97, then 97*31 + 48 = 3055
	assert.Equal(t, "2cv", ID("a", 0))
	// empty content hashes only the index digits
	assert.Equal(t, "1c", ID("", 0))
}

func TestIDNegativeHashIsAbsolute(t *testing.T) {
	id := ID(strings.Repeat("zz", 40), 7)
	assert.NotContains(t, id, "-")
	assert.LessOrEqual(t, len(id), MaxLength)
}

func TestIDTruncatesContent(t *testing.T) {
	prefix := strings.Repeat("x", MaxContentUnits)
	assert.Equal(t, ID(prefix+"tail one", 1), ID(prefix+"different tail", 1))
	assert.NotEqual(t, ID(prefix[:MaxContentUnits-1]+"a", 1), ID(prefix[:MaxContentUnits-1]+"b", 1))
}

func TestIDCountsUTF16Units(t *testing.T) {
	// each emoji is two UTF-16 code units, so 250 of them fill the window
	emoji := strings.Repeat("😀", 250)
	assert.Equal(t, ID(emoji+"a", 0), ID(emoji+"b", 0))
}

func TestSet(t *testing.T) {
	s := NewSet()
	assert.True(t, s.Add("abc"))
	assert.False(t, s.Add("abc"))
	assert.True(t, s.Add("def"))
	assert.Equal(t, 2, s.Len())
}
