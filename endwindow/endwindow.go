// Package endwindow implements the end-window aligner (C2): for a read and a
// barcode catalog, it carves out the left and right windows of the read and
// scores every catalog entry, in both orientations, against them using the
// align package's SW kernel.
package endwindow

import (
	"github.com/grailbio/lima/align"
	"github.com/grailbio/lima/barcode"
)

// Side identifies which end of a read a window was cut from.
type Side int

const (
	Left Side = iota
	Right
)

// Window carves the left or right window of a read of the given side, per
// spec §4.2: the left window is read[0:min(L,W)]; the right window is
// read[max(0,L-W):L] with begin = max(0, L-W).
func Window(side Side, read []byte, w int) (window []byte, begin int) {
	l := len(read)
	if side == Left {
		end := w
		if end > l {
			end = l
		}
		return read[:end], 0
	}
	start := l - w
	if start < 0 {
		start = 0
	}
	return read[start:l], start
}

// Result is one barcode's scored outcome against a window: the normalized
// score (the max of the forward and reverse-complement orientations) and the
// read-local clip column for whichever orientation won.
type Result struct {
	NormScore float64
	Clip      int
}

// Score aligns every barcode in cat, forward and reverse-complement, against
// the window cut from side of read, and returns one Result per catalog
// entry, indexed identically to cat.Barcodes. rightBegin is the window's
// read-local offset as returned by Window; it is ignored for the left side.
//
// Clip columns follow the right-clip convention settled in spec §9: for the
// left window the clip is the SW end column directly; for the right window
// the clip is rightBegin + the begin column of whichever orientation scored
// higher, so that `left_clip <= right_clip` holds for a symmetric read (S1).
func Score(p align.Params, cat *barcode.Catalog, side Side, window []byte, rightBegin int, mx *align.Matrix) []Result {
	results := make([]Result, cat.Len())
	denom := float64(cat.MaxLen) * float64(p.Match)
	for i, b := range cat.Barcodes {
		fwdScore, fwdEnd, fwdBegin := mx.Align(p, []byte(b.Bases), window)
		rcScore, rcEnd, rcBegin := mx.Align(p, []byte(b.RC), window)

		score := fwdScore
		end := fwdEnd
		begin := fwdBegin
		if rcScore > score {
			score, end, begin = rcScore, rcEnd, rcBegin
		}

		norm := 0.0
		if denom > 0 {
			norm = roundTo100(float64(score)) / denom
		}

		var clip int
		if side == Left {
			clip = end
		} else {
			clip = rightBegin + begin
		}
		results[i] = Result{NormScore: norm, Clip: clip}
	}
	return results
}

func roundTo100(s float64) float64 {
	v := 100 * s
	if v < 0 {
		return float64(int64(v - 0.5))
	}
	return float64(int64(v + 0.5))
}
