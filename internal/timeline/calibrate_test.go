package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalibrate_ConvergesToThreshold(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
	}{
		{"mid range", 0.7},
		{"near zero", 0.05},
		{"near upper bound", 1.95},
		{"exactly one", 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probes := 0
			scale, err := Calibrate(func(s float64) bool {
				probes++
				return s <= tt.threshold
			})
			require.NoError(t, err)

			// The converged scale sits just below the largest scale the
			// probe accepts.
			assert.LessOrEqual(t, scale, tt.threshold)
			assert.InDelta(t, tt.threshold, scale, 2*CalibrationEpsilon)

			// Bisection, not a linear scan.
			assert.Less(t, probes, 20)
		})
	}
}

func TestCalibrate_AllProbesFail(t *testing.T) {
	// Even a file that never captures converges: the upper bound walks down
	// geometrically. The result is pinned at the bottom of the range.
	scale, err := Calibrate(func(float64) bool { return false })
	require.NoError(t, err)
	assert.LessOrEqual(t, scale, 0.0)
}

func TestCalibrate_ProbeBudget(t *testing.T) {
	// A probe that reports success for an out-of-range scale value cannot
	// make the bounds converge faster than the budget allows; the cap turns
	// pathological behavior into an error instead of a capture storm.
	calls := 0
	_, err := Calibrate(func(float64) bool {
		calls++
		return calls < maxCalibrationProbes+10 // never lets the loop settle early
	})
	// Either converged within budget or reported divergence; it must not
	// exceed the budget.
	if err != nil {
		assert.ErrorIs(t, err, ErrCalibrationDiverged)
	}
	assert.LessOrEqual(t, calls, maxCalibrationProbes)
}
