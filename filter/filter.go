// Package filter implements the filter/clip stage (C4): given a group's
// aggregated BarcodeHitPair, it decides whether the pair passes the
// configured thresholds and, if so, produces the clipped output records.
package filter

import (
	"github.com/grailbio/lima/aggregate"
	"github.com/grailbio/lima/limarecord"
)

// Params holds the threshold configuration this stage applies. It is a
// narrow view of limasettings.Settings so this package doesn't need to
// import it.
type Params struct {
	MinScore      int
	MinLength     int
	MinPasses     int
	KeepSymmetric bool
}

// Decision is the outcome of evaluating a BarcodeHitPair against Params,
// per spec §4.4 steps 1-5.
type Decision struct {
	AboveMinScore  bool
	AboveMinLength bool
	AboveMinPasses bool
	KeepPair       bool
	Passes         int
}

// Evaluate computes a Decision for pair. above_min_length is true iff at
// least one subread's clip span exceeds MinLength (strict `>`); Passes
// counts subreads where both ends were actually scored.
func Evaluate(p Params, pair aggregate.BarcodeHitPair) Decision {
	d := Decision{AboveMinScore: pair.MeanScore >= p.MinScore}

	n := len(pair.Left.Clips)
	for i := 0; i < n; i++ {
		if pair.Right.Clips[i]-pair.Left.Clips[i] > p.MinLength {
			d.AboveMinLength = true
		}
		if pair.Left.Scores[i] != -1 && pair.Right.Scores[i] != -1 {
			d.Passes++
		}
	}
	d.AboveMinPasses = d.Passes >= p.MinPasses

	d.KeepPair = d.AboveMinScore && d.AboveMinLength && d.AboveMinPasses
	if p.KeepSymmetric && pair.Left.Idx != pair.Right.Idx {
		d.KeepPair = false
	}
	return d
}

// SubreadOutcome is one subread's clip result: either a clipped output
// record, or a below-length tally with no record produced.
type SubreadOutcome struct {
	Record      limarecord.Record
	BelowLength bool
}

// Clip produces one SubreadOutcome per subread in group, per spec §4.4 step
// 6. It is meaningful only for pairs Evaluate has decided to KeepPair; the
// pipeline calls it only in that case.
func Clip(p Params, group *limarecord.Group, pair aggregate.BarcodeHitPair) []SubreadOutcome {
	tag := limarecord.BarcodePair{Left: pair.Left.Idx, Right: pair.Right.Idx}
	quality := clampQuality(pair.MeanScore)

	outcomes := make([]SubreadOutcome, group.Len())
	for i, rec := range group.Records {
		left := pair.Left.Clips[i]
		right := pair.Right.Clips[i]
		if right-left > p.MinLength {
			outcomes[i] = SubreadOutcome{Record: rec.Clip(left, right, tag, quality)}
			continue
		}
		outcomes[i] = SubreadOutcome{BelowLength: true}
	}
	return outcomes
}

func clampQuality(meanScore int) uint8 {
	if meanScore < 0 {
		return 0
	}
	if meanScore > 255 {
		return 255
	}
	return uint8(meanScore)
}
