package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTimeout_AutoUsesPerLineSecondsWhenAboveMinimum(t *testing.T) {
	d, err := resolveTimeout("dalfox", "auto", 10)
	require.NoError(t, err)
	assert.Equal(t, 1000*time.Second, d)
}

func TestResolveTimeout_AutoFloorsAtMinimumTimeout(t *testing.T) {
	d, err := resolveTimeout("nuclei", "auto", 1)
	require.NoError(t, err)
	assert.Equal(t, defaultMinTimeout, d)
}

func TestResolveTimeout_EmptyStringTreatedAsAuto(t *testing.T) {
	d, err := resolveTimeout("unknown-tool", "", 100)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(100*defaultPerLineSeconds)*time.Second, d)
}

func TestResolveTimeout_ExplicitIntegerCoerced(t *testing.T) {
	d, err := resolveTimeout("nuclei", "45", 1000000)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, d)
}

func TestResolveTimeout_InvalidValueIsHardError(t *testing.T) {
	_, err := resolveTimeout("nuclei", "not-a-number", 10)
	assert.Error(t, err)
}
