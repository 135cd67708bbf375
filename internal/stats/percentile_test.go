package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentileSorted(t *testing.T) {
	sorted := []float64{0, 10, 20, 30, 40}

	assert.Equal(t, 0.0, PercentileSorted(sorted, 0))
	assert.Equal(t, 40.0, PercentileSorted(sorted, 1))
	assert.Equal(t, 20.0, PercentileSorted(sorted, 0.5))
	assert.InDelta(t, 2.0, PercentileSorted(sorted, 0.05), 1e-12)
	assert.InDelta(t, 38.0, PercentileSorted(sorted, 0.95), 1e-12)
	assert.Equal(t, 0.0, PercentileSorted(nil, 0.5))
}

func TestSpreadOfDoesNotMutateInput(t *testing.T) {
	values := []float64{40, 0, 30, 10, 20}
	s := SpreadOf(values)

	assert.InDelta(t, 36.0, s.Spread, 1e-12)
	assert.Equal(t, []float64{40, 0, 30, 10, 20}, values)
}
