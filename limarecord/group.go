package limarecord

// Accumulator assembles a stream of records into Groups, one group key at a
// time, per spec §3's two grouping modes: "one subread per group" (each
// record its own group) or "accumulate until group key changes". It is
// stateful and meant to be driven by the pipeline's single producer; it is
// not safe for concurrent use.
type Accumulator struct {
	perSubread bool
	cur        *Group
}

// NewAccumulator returns an Accumulator. When perSubread is true, every
// Push immediately completes a one-record group; otherwise records are
// buffered until a different group key arrives.
func NewAccumulator(perSubread bool) *Accumulator {
	return &Accumulator{perSubread: perSubread}
}

// Push adds r to the accumulator. It returns a completed group and true if
// pushing r closed off a previously accumulating group (which the caller
// must then dispatch before r's group starts accumulating); otherwise it
// returns (nil, false) and r has been folded into the group in progress.
func (a *Accumulator) Push(r Record) (completed *Group, ok bool) {
	if a.perSubread {
		return &Group{Key: r.GroupKey(), Records: []Record{r}}, true
	}
	if a.cur == nil {
		a.cur = &Group{Key: r.GroupKey(), Records: []Record{r}}
		return nil, false
	}
	if a.cur.Key == r.GroupKey() {
		a.cur.Records = append(a.cur.Records, r)
		return nil, false
	}
	completed = a.cur
	a.cur = &Group{Key: r.GroupKey(), Records: []Record{r}}
	return completed, true
}

// Flush returns any group still accumulating at end of input.
func (a *Accumulator) Flush() (*Group, bool) {
	if a.cur == nil {
		return nil, false
	}
	g := a.cur
	a.cur = nil
	return g, true
}
