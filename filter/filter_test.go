package filter_test

import (
	"testing"

	"github.com/grailbio/lima/aggregate"
	"github.com/grailbio/lima/filter"
	"github.com/grailbio/lima/limarecord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecord struct {
	seq string
}

func (f *fakeRecord) Sequence() []byte             { return []byte(f.seq) }
func (f *fakeRecord) GroupKey() int64              { return 1 }
func (f *fakeRecord) ContextFlags() (uint8, bool)  { return 0, false }
func (f *fakeRecord) QueryStart() (int, bool)      { return 0, false }
func (f *fakeRecord) Clip(left, right int, pair limarecord.BarcodePair, quality uint8) limarecord.Record {
	return &clippedRecord{seq: f.seq[left:right], pair: pair, quality: quality}
}

type clippedRecord struct {
	seq     string
	pair    limarecord.BarcodePair
	quality uint8
}

func (c *clippedRecord) Sequence() []byte            { return []byte(c.seq) }
func (c *clippedRecord) GroupKey() int64             { return 1 }
func (c *clippedRecord) ContextFlags() (uint8, bool) { return 0, false }
func (c *clippedRecord) QueryStart() (int, bool)     { return 0, false }
func (c *clippedRecord) Clip(int, int, limarecord.BarcodePair, uint8) limarecord.Record { return c }

func defaultParams() filter.Params {
	return filter.Params{MinScore: 51, MinLength: 50, MinPasses: 1}
}

func symmetricPair(meanScore int) aggregate.BarcodeHitPair {
	return aggregate.BarcodeHitPair{
		Left:      aggregate.BarcodeHit{Idx: 0, Score: meanScore, Scores: []float64{float64(meanScore)}, Clips: []int{0}},
		Right:     aggregate.BarcodeHit{Idx: 0, Score: meanScore, Scores: []float64{float64(meanScore)}, Clips: []int{300}},
		MeanScore: meanScore,
	}
}

func TestEvaluateKeepsPairAboveAllThresholds(t *testing.T) {
	pair := symmetricPair(96)
	d := filter.Evaluate(defaultParams(), pair)
	assert.True(t, d.AboveMinScore)
	assert.True(t, d.AboveMinLength)
	assert.True(t, d.AboveMinPasses)
	assert.True(t, d.KeepPair)
	assert.Equal(t, 1, d.Passes)
}

func TestEvaluateBelowMinScore(t *testing.T) {
	pair := symmetricPair(10)
	d := filter.Evaluate(defaultParams(), pair)
	assert.False(t, d.AboveMinScore)
	assert.False(t, d.KeepPair)
}

// S4 — length filter: clip span does not exceed min_length.
func TestEvaluateBelowMinLength(t *testing.T) {
	pair := aggregate.BarcodeHitPair{
		Left:      aggregate.BarcodeHit{Idx: 0, Score: 96, Scores: []float64{96}, Clips: []int{0}},
		Right:     aggregate.BarcodeHit{Idx: 0, Score: 96, Scores: []float64{96}, Clips: []int{10}},
		MeanScore: 96,
	}
	d := filter.Evaluate(defaultParams(), pair)
	assert.False(t, d.AboveMinLength)
	assert.False(t, d.KeepPair)
}

// S3 — below min passes: neither end scored together on any subread.
func TestEvaluateBelowMinPasses(t *testing.T) {
	pair := aggregate.BarcodeHitPair{
		Left:      aggregate.BarcodeHit{Idx: 0, Score: 0, Scores: []float64{-1}, Clips: []int{0}},
		Right:     aggregate.BarcodeHit{Idx: 1, Score: 90, Scores: []float64{90}, Clips: []int{300}},
		MeanScore: 45,
	}
	d := filter.Evaluate(defaultParams(), pair)
	assert.Equal(t, 0, d.Passes)
	assert.False(t, d.AboveMinPasses)
	assert.False(t, d.KeepPair)
}

func TestEvaluateSymmetryPolicyDropsAsymmetricPair(t *testing.T) {
	pair := aggregate.BarcodeHitPair{
		Left:      aggregate.BarcodeHit{Idx: 0, Score: 96, Scores: []float64{96}, Clips: []int{0}},
		Right:     aggregate.BarcodeHit{Idx: 1, Score: 96, Scores: []float64{96}, Clips: []int{300}},
		MeanScore: 96,
	}
	p := defaultParams()
	p.KeepSymmetric = true
	d := filter.Evaluate(p, pair)
	assert.False(t, d.KeepPair)
}

func TestClipProducesTaggedOutputRecord(t *testing.T) {
	rec := &fakeRecord{seq: "XXXXACGTACGTXXXX"}
	group := &limarecord.Group{Key: 1, Records: []limarecord.Record{rec}}
	pair := aggregate.BarcodeHitPair{
		Left:      aggregate.BarcodeHit{Idx: 0, Score: 96, Scores: []float64{96}, Clips: []int{4}},
		Right:     aggregate.BarcodeHit{Idx: 0, Score: 96, Scores: []float64{96}, Clips: []int{12}},
		MeanScore: 96,
	}
	p := defaultParams()
	p.MinLength = 5 // the clip span below is 12-4 = 8 bases
	outcomes := filter.Clip(p, group, pair)
	require.Len(t, outcomes, 1)
	require.NotNil(t, outcomes[0].Record)
	assert.False(t, outcomes[0].BelowLength)
	clipped := outcomes[0].Record.(*clippedRecord)
	assert.Equal(t, "ACGTACGT", clipped.seq)
	assert.Equal(t, limarecord.BarcodePair{Left: 0, Right: 0}, clipped.pair)
	assert.Equal(t, uint8(96), clipped.quality)
}

func TestClipCountsBelowLengthSubreadWithoutRecord(t *testing.T) {
	rec := &fakeRecord{seq: "ACGTACGT"}
	group := &limarecord.Group{Key: 1, Records: []limarecord.Record{rec}}
	pair := aggregate.BarcodeHitPair{
		Left:      aggregate.BarcodeHit{Idx: 0, Score: 96, Scores: []float64{96}, Clips: []int{0}},
		Right:     aggregate.BarcodeHit{Idx: 0, Score: 96, Scores: []float64{96}, Clips: []int{5}},
		MeanScore: 96,
	}
	outcomes := filter.Clip(defaultParams(), group, pair)
	require.Len(t, outcomes, 1)
	assert.Nil(t, outcomes[0].Record)
	assert.True(t, outcomes[0].BelowLength)
}
