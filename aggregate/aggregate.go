// Package aggregate implements the per-group aggregator (C3): it folds the
// per-subread, per-barcode end-window scores produced by endwindow into one
// BarcodeHit per end and, from those, a BarcodeHitPair for the group.
package aggregate

import (
	"fmt"

	"github.com/grailbio/lima/endwindow"
)

// accumulator is the per-barcode, per-end running state described in spec
// §3: a running sum of normalized scores actually folded into the ranking,
// and parallel per-subread score/clip lists covering every subread seen so
// far (scored or not).
type accumulator struct {
	sum    float64
	scores []float64
	clips  []int
}

func (a *accumulator) appendNotScored(clip int) {
	a.scores = append(a.scores, -1)
	a.clips = append(a.clips, clip)
}

// appendScored records a real per-subread score and clip. The score is
// always recorded verbatim regardless of countTowardSum: spec §8 property 4
// requires |scores| == |clips| == subreads seen for every accumulator, and
// the max_scored_reads cap (spec §4.3) bounds only the ranking sum, not the
// per-subread record kept for reporting.
func (a *accumulator) appendScored(norm float64, clip int, countTowardSum bool) {
	a.scores = append(a.scores, norm)
	a.clips = append(a.clips, clip)
	if countTowardSum {
		a.sum += norm
	}
}

// BarcodeHit is the aggregated outcome for one end of a group (spec §3):
// the chosen catalog index, its aggregated 0..100ish score, and the
// per-subread score/clip lists for that chosen index.
type BarcodeHit struct {
	Idx    int
	Score  int
	Scores []float64
	Clips  []int
}

// BarcodeHitPair is the immutable (left, right) outcome for a group.
type BarcodeHitPair struct {
	Left, Right BarcodeHit
	MeanScore   int
}

// endState tracks every barcode's accumulator for one end of a group, plus
// the bookkeeping needed to compute §4.3's denominator.
type endState struct {
	accs    []accumulator
	nScored int // subreads where this end had a window to score at all
	summed  int // subreads whose score was folded into the ranking sum
}

func newEndState(catalogLen int) endState {
	return endState{accs: make([]accumulator, catalogLen)}
}

// GroupAggregator accumulates one group's subreads, end by end, and
// produces a BarcodeHitPair once every subread has been added. It is owned
// exclusively by the worker processing the group and never outlives it
// (spec §9's "back-reference in accumulators" note).
type GroupAggregator struct {
	catalogLen     int
	maxScoredReads int

	left, right         endState
	adapterCompleteSeen int
	groupLen            int
}

// New returns a GroupAggregator for a catalog of catalogLen barcodes.
// maxScoredReads <= 0 means unlimited (spec §6 default 0).
func New(catalogLen, maxScoredReads int) *GroupAggregator {
	return &GroupAggregator{
		catalogLen:     catalogLen,
		maxScoredReads: maxScoredReads,
		left:           newEndState(catalogLen),
		right:          newEndState(catalogLen),
	}
}

// AddSubread folds one subread's end-window results into the aggregator.
// hasLeft/hasRight come from the subread's adapter-context flags (both true
// when absent, per spec §4.3 step 1). leftResults/rightResults are nil when
// the corresponding end wasn't scored. readLen is the subread's sequence
// length, used to size the absent-right-end sentinel clip.
func (g *GroupAggregator) AddSubread(hasLeft bool, leftResults []endwindow.Result, hasRight bool, rightResults []endwindow.Result, readLen int) {
	g.groupLen++
	adapterComplete := hasLeft && hasRight
	if adapterComplete {
		g.adapterCompleteSeen++
	}
	// In bounded mode only adapter-complete subreads are eligible to
	// advance the ranking sum, and only the first maxScoredReads of them.
	eligibleForSum := g.maxScoredReads <= 0 || (adapterComplete && g.adapterCompleteSeen <= g.maxScoredReads)

	addEnd(&g.left, hasLeft, leftResults, 0, eligibleForSum && hasLeft)
	addEnd(&g.right, hasRight, rightResults, readLen, eligibleForSum && hasRight)
}

func addEnd(st *endState, has bool, results []endwindow.Result, absentClip int, countTowardSum bool) {
	if !has {
		for i := range st.accs {
			st.accs[i].appendNotScored(absentClip)
		}
		return
	}
	st.nScored++
	for i, r := range results {
		st.accs[i].appendScored(r.NormScore, r.Clip, countTowardSum)
	}
	if countTowardSum {
		st.summed++
	}
}

// finish reduces one end's state into a BarcodeHit, per spec §4.3's "end of
// group" rules.
func finish(st *endState, maxScoredReads int) BarcodeHit {
	if st.nScored == 0 {
		// Every subread took the not-scored branch for this end, so every
		// accumulator holds the same (-1, absentClip) pair per subread
		// already; any one of them is the sentinel's score/clip list.
		return BarcodeHit{Idx: 0, Score: 0, Scores: st.accs[0].scores, Clips: st.accs[0].clips}
	}

	denom := st.nScored
	if maxScoredReads > 0 {
		denom = st.summed
	}
	if denom < 1 {
		denom = 1
	}

	best := 0
	bestSum := st.accs[0].sum
	for i := 1; i < len(st.accs); i++ {
		if st.accs[i].sum > bestSum {
			bestSum = st.accs[i].sum
			best = i
		}
	}
	normMean := bestSum / float64(denom)
	return BarcodeHit{
		Idx:    best,
		Score:  roundInt(normMean),
		Scores: st.accs[best].scores,
		Clips:  st.accs[best].clips,
	}
}

func roundInt(v float64) int {
	if v < 0 {
		return int(v - 0.5)
	}
	return int(v + 0.5)
}

// Finish completes the group, returning the BarcodeHitPair it produced. The
// GroupAggregator must not be reused afterward. groupLabel identifies the
// group in a panicked InvariantError; callers that don't need a readable
// label (most tests) can pass "".
func (g *GroupAggregator) Finish(groupLabel string) BarcodeHitPair {
	left := finish(&g.left, g.maxScoredReads)
	right := finish(&g.right, g.maxScoredReads)
	checkVectorLengths(groupLabel, "left", left, g.groupLen)
	checkVectorLengths(groupLabel, "right", right, g.groupLen)
	return BarcodeHitPair{
		Left:      left,
		Right:     right,
		MeanScore: (left.Score + right.Score) / 2,
	}
}

// checkVectorLengths enforces spec §8 property 4: every BarcodeHit's
// Scores/Clips must have exactly one entry per subread AddSubread was
// called with for this end.
func checkVectorLengths(groupLabel, end string, hit BarcodeHit, wantLen int) {
	if len(hit.Scores) != wantLen || len(hit.Clips) != wantLen {
		panic(InvariantError{
			Group: groupLabel,
			Msg: fmt.Sprintf(
				"%s end: want %d scores/clips, got %d scores and %d clips",
				end, wantLen, len(hit.Scores), len(hit.Clips)),
		})
	}
}
