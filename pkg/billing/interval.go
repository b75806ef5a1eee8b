package billing

// intervalSeconds is the duration of one billing interval unit.
var intervalSeconds = map[string]int64{
	"day":   86_400,
	"week":  604_800,
	"month": 2_592_000,
	"year":  31_536_000,
}

// addInterval advances a period end by count intervals of the given unit.
// An unrecognized interval is treated as "month", the most common case.
func addInterval(periodEnd int64, interval string, count int64) int64 {
	if count <= 0 {
		count = 1
	}
	duration, ok := intervalSeconds[interval]
	if !ok {
		duration = intervalSeconds["month"]
	}
	return periodEnd + duration*count
}

// retryDelaySeconds returns the delay before the next payment retry,
// keyed by the attempt number that just failed.
func retryDelaySeconds(attemptCount int64) int64 {
	switch {
	case attemptCount <= 1:
		return 86_400
	case attemptCount == 2:
		return 259_200
	case attemptCount == 3:
		return 432_000
	default:
		return 604_800
	}
}
