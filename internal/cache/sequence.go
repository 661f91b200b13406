package cache

// verdict is the outcome of comparing a live event with the cached sequence.
type verdict int

const (
	verdictApply verdict = iota
	verdictStale
	verdictGap
)

func (v verdict) String() string {
	switch v {
	case verdictApply:
		return "apply"
	case verdictStale:
		return "stale"
	case verdictGap:
		return "gap"
	default:
		return "unknown"
	}
}

// checkSequence classifies an event covering sequences start..end against the
// last applied sequence. Events that end at or before last are stale. Events
// that start beyond last+1 leave a gap. Anything else overlaps or continues
// the snapshot and is applied.
func checkSequence(last, start, end int64) verdict {
	switch {
	case end <= last:
		return verdictStale
	case start > last+1:
		return verdictGap
	default:
		return verdictApply
	}
}
