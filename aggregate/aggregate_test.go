package aggregate_test

import (
	"testing"

	"github.com/grailbio/lima/aggregate"
	"github.com/grailbio/lima/endwindow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scores(vals ...float64) []endwindow.Result {
	out := make([]endwindow.Result, len(vals))
	for i, v := range vals {
		out[i] = endwindow.Result{NormScore: v, Clip: i}
	}
	return out
}

// S5 — grouped aggregation: 4 adapter-complete subreads, all calling BC1
// (index 0) with scores {95, 97, 93, 99}.
func TestGroupedAggregationMeanScore(t *testing.T) {
	g := aggregate.New(2, 0)
	for _, s := range []float64{95, 97, 93, 99} {
		g.AddSubread(true, scores(s, 0), true, scores(s, 0), 300)
	}
	pair := g.Finish("")
	assert.Equal(t, 0, pair.Left.Idx)
	assert.Equal(t, 96, pair.Left.Score)
	assert.Len(t, pair.Left.Scores, 4)
	assert.Len(t, pair.Left.Clips, 4)
}

// S6 — max_scored_reads cap: same as S5 but capped at 2. The ranking sum and
// its denominator stop advancing after the first two adapter-complete
// subreads; the per-subread score list still records every subread's real
// score (see DESIGN.md's documented choice for this open question).
func TestMaxScoredReadsCapStillRecordsAllPerSubreadScores(t *testing.T) {
	g := aggregate.New(2, 2)
	for _, s := range []float64{95, 97, 93, 99} {
		g.AddSubread(true, scores(s, 0), true, scores(s, 0), 300)
	}
	pair := g.Finish("")
	assert.Equal(t, 0, pair.Left.Idx)
	// mean of only the first two: (95+97)/2 = 96
	assert.Equal(t, 96, pair.Left.Score)
	require.Len(t, pair.Left.Scores, 4)
	assert.Equal(t, []float64{95, 97, 93, 99}, pair.Left.Scores)
}

// S3 — missing adapter: left absent throughout, right present with BC2.
func TestMissingLeftAdapterProducesSentinelHit(t *testing.T) {
	g := aggregate.New(2, 0)
	g.AddSubread(false, nil, true, scores(10, 95), 50)
	pair := g.Finish("")

	assert.Equal(t, 0, pair.Left.Score)
	assert.Equal(t, []float64{-1}, pair.Left.Scores)
	assert.Equal(t, []int{0}, pair.Left.Clips)

	assert.Equal(t, 1, pair.Right.Idx)
}

func TestVectorLengthInvariantHoldsAcrossMixedPresence(t *testing.T) {
	g := aggregate.New(2, 0)
	g.AddSubread(true, scores(80, 10), true, scores(80, 10), 100)
	g.AddSubread(false, nil, true, scores(20, 90), 100)
	g.AddSubread(true, scores(85, 5), false, nil, 100)
	pair := g.Finish("")

	assert.Len(t, pair.Left.Scores, 3)
	assert.Len(t, pair.Left.Clips, 3)
	assert.Len(t, pair.Right.Scores, 3)
	assert.Len(t, pair.Right.Clips, 3)
}

func TestTiesFavorLowestBarcodeIndex(t *testing.T) {
	g := aggregate.New(3, 0)
	g.AddSubread(true, scores(50, 50, 10), true, scores(50, 50, 10), 100)
	pair := g.Finish("")
	assert.Equal(t, 0, pair.Left.Idx)
}

func TestMeanScoreAveragesLeftAndRight(t *testing.T) {
	g := aggregate.New(1, 0)
	g.AddSubread(true, scores(80), true, scores(60), 100)
	pair := g.Finish("")
	assert.Equal(t, 70, pair.MeanScore)
}

// mean_score truncates rather than rounds (original_source/include/pacbio/
// lima/Lima.h: "MeanScore((Left.Score + Right.Score) / 2)" on uint8_t
// operands), so an odd sum must floor, not round up.
func TestMeanScoreTruncatesOnOddSum(t *testing.T) {
	g := aggregate.New(1, 0)
	g.AddSubread(true, scores(95), true, scores(96), 100)
	pair := g.Finish("")
	assert.Equal(t, 95, pair.MeanScore)
}

// A caller that feeds a malformed endwindow.Result slice on one subread
// (wrong length relative to the catalog) leaves the eventual winning
// barcode's per-subread lists shorter than the number of subreads seen;
// Finish must catch that on the vector-length invariant rather than
// silently returning a mismatched BarcodeHit.
func TestFinishPanicsOnCatalogLengthMismatch(t *testing.T) {
	g := aggregate.New(2, 0)
	g.AddSubread(true, scores(5, 100), true, scores(5, 100), 100)
	g.AddSubread(true, scores(3), true, scores(3), 100) // malformed: only 1 result for a 2-entry catalog
	assert.Panics(t, func() { g.Finish("group-7") })
}
