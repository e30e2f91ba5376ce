// Package timeline computes the capture timeline for a contact sheet: the
// timestamps at which frames are grabbed, and the duration calibration used
// when a container misreports its length.
package timeline

// Focus selects how capture density is distributed across the timeline.
type Focus string

const (
	// FocusNone spreads captures evenly across the file.
	FocusNone Focus = "none"
	// FocusBegin concentrates captures near the start of the file.
	FocusBegin Focus = "begin"
	// FocusEnd concentrates captures near the end of the file.
	FocusEnd Focus = "end"
)

// IsValid returns true if the focus is one of none, begin or end.
func (f Focus) IsValid() bool {
	return f == FocusNone || f == FocusBegin || f == FocusEnd
}

// Plan returns frameCount strictly increasing capture timestamps within
// (padding, duration-padding). duration and padding are in the capture
// backend's native time unit; the returned timestamps use the same unit.
//
// With FocusNone the frameCount+1 gaps between captures (counting the two
// padding zones) all have equal length. With FocusBegin the gaps form an
// arithmetic progression starting at 0.2 of the uniform gap, so captures
// cluster near the start; FocusEnd is its mirror image.
//
// Precondition: duration > 2*padding. Callers validate before planning; the
// result is undefined otherwise. A frameCount of zero yields an empty plan.
func Plan(duration, padding float64, frameCount int, focus Focus) []float64 {
	if frameCount <= 0 {
		return nil
	}

	span := duration - 2*padding
	partLength := span / float64(frameCount+1)

	times := make([]float64, 0, frameCount)

	if focus == FocusNone {
		last := padding + partLength
		times = append(times, last)
		for i := 1; i < frameCount; i++ {
			last += partLength
			times = append(times, last)
		}
		return times
	}

	// The frameCount+1 gaps form an arithmetic progression with first term
	// base and common difference delta, constrained to sum to span:
	//   base*(N) + delta*(N-1)*N/2 == span, N = frameCount+1
	base := partLength * 0.2
	delta := (span/float64(frameCount+1) - base) * 2 / float64(frameCount)

	last := padding + base
	times = append(times, last)
	for i := 1; i < frameCount; i++ {
		last += base + delta*float64(i)
		times = append(times, last)
	}

	if focus == FocusEnd {
		for i := range times {
			times[i] = duration - times[i]
		}
		for i, j := 0, len(times)-1; i < j; i, j = i+1, j-1 {
			times[i], times[j] = times[j], times[i]
		}
	}

	return times
}
