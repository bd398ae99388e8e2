package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialSessionGenerator_Increments(t *testing.T) {
	gen := NewSequentialSessionGenerator("sim")

	assert.Equal(t, "sim-1", gen.Generate())
	assert.Equal(t, "sim-2", gen.Generate())
	assert.Equal(t, "sim-3", gen.Generate())
}

func TestSequentialSessionGenerator_EmptyPrefixDefault(t *testing.T) {
	gen := NewSequentialSessionGenerator("")

	assert.Equal(t, "test-session-1", gen.Generate())
}
