package hrv

import (
	"errors"
	"fmt"
	"math"
)

var ErrMalformedIntervalData = errors.New("malformed interval data")

// RMSSD returns the root mean square of successive differences of the given
// RR intervals in milliseconds. The squared differences are averaged with a
// len(diffs)-1 denominator, so at least three intervals are required.
func RMSSD(intervals []int) (float64, error) {
	if len(intervals) < 3 {
		return 0, fmt.Errorf("%w: rmssd needs at least 3 intervals, got %d", ErrMalformedIntervalData, len(intervals))
	}
	var sumSquares float64
	for i := 0; i < len(intervals)-1; i++ {
		d := float64(intervals[i+1] - intervals[i])
		sumSquares += d * d
	}
	diffs := len(intervals) - 1
	return math.Sqrt(sumSquares / float64(diffs-1)), nil
}

// RestingHR returns the heart rate in beats per minute for the mean of the
// given RR intervals, truncated toward zero.
func RestingHR(intervals []int) (int, error) {
	if len(intervals) == 0 {
		return 0, fmt.Errorf("%w: resting heart rate needs at least 1 interval", ErrMalformedIntervalData)
	}
	var sum float64
	for _, v := range intervals {
		sum += float64(v)
	}
	mean := sum / float64(len(intervals))
	if mean <= 0 {
		return 0, fmt.Errorf("%w: mean interval %v is not positive", ErrMalformedIntervalData, mean)
	}
	return int(60000 / mean), nil
}
