package aggregate

import "fmt"

// InvariantError marks an internal inconsistency the aggregator can detect
// but not recover from: spec §8 property 4 requires every accumulator's
// Scores/Clips lists to have exactly one entry per subread seen. A mismatch
// here means a caller passed AddSubread a results slice shorter than the
// catalog for some end of some subread, not a bad input — so it panics
// rather than returning an error,
// the way an assertion would (spec §9 "exception for control flow").
type InvariantError struct {
	Group string
	Msg   string
}

func (e InvariantError) Error() string {
	return fmt.Sprintf("aggregate: invariant violated for group %s: %s", e.Group, e.Msg)
}
