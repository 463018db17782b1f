package nst

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdamFirstStep(t *testing.T) {
	a, err := NewAdam(3, 0.1)
	require.NoError(t, err)

	params := []float64{1, 1, 1}
	require.NoError(t, a.Step(params, []float64{2, -3, 0}))

	// The bias-corrected first step moves each non-zero coordinate by lr against its gradient sign.
	assert.InDelta(t, 0.9, params[0], 1e-6)
	assert.InDelta(t, 1.1, params[1], 1e-6)
	assert.InDelta(t, 1.0, params[2], 1e-12)
	assert.Equal(t, 1, a.step)
}

func TestAdamValidation(t *testing.T) {
	_, err := NewAdam(1, 0)
	require.Error(t, err)

	a, err := NewAdam(2, 0.1)
	require.NoError(t, err)
	require.Error(t, a.Step([]float64{1}, []float64{1, 2}))
}
