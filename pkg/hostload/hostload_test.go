package hostload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCPUPercent_ReturnsValueInRange(t *testing.T) {
	s := New()
	pct, err := s.CPUPercent()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pct, 0.0)
	assert.LessOrEqual(t, pct, 100.0)
}

func TestMemPercent_ReturnsValueInRange(t *testing.T) {
	s := New()
	pct, err := s.MemPercent()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pct, 0.0)
	assert.LessOrEqual(t, pct, 100.0)
}
