package timeline

import "errors"

// CalibrationEpsilon is the convergence tolerance of the duration scale search.
const CalibrationEpsilon = 0.001

// maxCalibrationProbes bounds the number of real capture attempts performed
// during calibration. The bisection needs about a dozen probes to converge at
// the configured tolerance; the cap only guards against a probe that keeps the
// bounds from narrowing.
const maxCalibrationProbes = 64

// ErrCalibrationDiverged is returned when the scale search did not converge
// within the probe budget.
var ErrCalibrationDiverged = errors.New("timeline: duration calibration did not converge")

// Calibrate binary-searches a multiplicative correction for an untrustworthy
// reported duration. probe must attempt a real frame capture at
// nominalDuration*scale and report whether it succeeded, so calibration has
// genuine extraction side effects.
//
// The search runs over scale in [0, 2]: a successful probe moves the lower
// bound up, a failed one moves the upper bound down, and the final scale is
// the last known-good lower bound minus the tolerance. Probing captures
// instead of scanning metadata keeps the attempt count logarithmic in the
// tolerance.
func Calibrate(probe func(scale float64) bool) (float64, error) {
	left, right := 0.0, 2.0

	for probes := 0; right-left >= CalibrationEpsilon; probes++ {
		if probes >= maxCalibrationProbes {
			return 0, ErrCalibrationDiverged
		}
		mid := (left + right) * 0.5
		if probe(mid) {
			left = mid + CalibrationEpsilon
		} else {
			right = mid - CalibrationEpsilon
		}
	}

	return left - CalibrationEpsilon, nil
}
