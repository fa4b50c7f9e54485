package classify

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBestPicksGlass(t *testing.T) {
	r, err := NewResult([]float32{0.1, 0.7, 0.05, 0.05, 0.05, 0.05})
	require.NoError(t, err)

	assert.Equal(t, "Glass", r.BestLabel())
	assert.Equal(t, []string{
		"Cardboard: %10.00",
		"Glass: %70.00",
		"Metal: %5.00",
		"Paper: %5.00",
		"Plastic: %5.00",
		"Trash: %5.00",
	}, r.Lines())
}

func TestBestTieKeepsLowestIndex(t *testing.T) {
	r, err := NewResult([]float32{0.5, 0.5, 0, 0, 0, 0})
	require.NoError(t, err)

	idx, ok := r.Best()
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	assert.Equal(t, "Cardboard", r.BestLabel())
}

func TestEmptyResult(t *testing.T) {
	var r Result
	assert.True(t, r.Empty())
	_, ok := r.Best()
	assert.False(t, ok)
	assert.Equal(t, "", r.BestLabel())
	assert.Empty(t, r.Lines())
}

func TestNewResultValidates(t *testing.T) {
	cases := map[string][]float32{
		"short":    {0.5, 0.5},
		"long":     {0, 0, 0, 0, 0, 0, 1},
		"negative": {-0.1, 0, 0, 0, 0, 0},
		"above":    {1.5, 0, 0, 0, 0, 0},
		"nan":      {float32(math.NaN()), 0, 0, 0, 0, 0},
	}
	for name, probs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewResult(probs)
			assert.True(t, errors.Is(err, ErrInvalidResult), "got %v", err)
		})
	}
}

func TestNewResultCopiesInput(t *testing.T) {
	probs := []float32{0.1, 0.2, 0.3, 0.1, 0.2, 0.1}
	r, err := NewResult(probs)
	require.NoError(t, err)
	probs[0] = 0.9
	assert.Equal(t, float32(0.1), r.Probabilities[0])
}

func TestLineFormatting(t *testing.T) {
	assert.Equal(t, "Paper: %0.00", Line("Paper", 0))
	assert.Equal(t, "Trash: %100.00", Line("Trash", 1))
	assert.Equal(t, "Metal: %12.35", Line("Metal", 0.12345))
}

func TestLineRoundsExactTiesUp(t *testing.T) {
	// Odd multiples of 1/32 are exact in float32 and land on x.xx5 after scaling.
	assert.Equal(t, "Glass: %3.13", Line("Glass", 0.03125))
	assert.Equal(t, "Glass: %28.13", Line("Glass", 0.28125))
	assert.Equal(t, "Paper: %9.38", Line("Paper", 0.09375))
	assert.Equal(t, "Metal: %-3.13", Line("Metal", -0.03125))
}

func TestByLabel(t *testing.T) {
	r, err := NewResult([]float32{0, 0, 1, 0, 0, 0})
	require.NoError(t, err)
	m := r.ByLabel()
	assert.Len(t, m, NumClasses)
	assert.Equal(t, float32(1), m["Metal"])
}
