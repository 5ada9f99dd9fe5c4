// Package align implements the banded, semi-global Smith-Waterman kernel at
// the bottom of the barcode-calling engine: given a short query (a barcode)
// and a window (a slice of a read), it returns the best alignment score and
// the read-local column at which that alignment ends.
package align

// Params holds the scoring parameters for one alignment. Match is supplied
// positive; Mismatch, Deletion, Insertion, and Branch are supplied negative
// and added directly by the recurrence. Use NewParams to build one from the
// positive magnitudes configuration tools naturally expose.
type Params struct {
	Match     int32
	Mismatch  int32
	Deletion  int32
	Insertion int32
	Branch    int32
}

// NewParams builds Params from positive magnitudes: match is a reward, the
// rest are penalty magnitudes negated internally.
func NewParams(match, mismatch, deletion, insertion, branch int) Params {
	return Params{
		Match:     int32(match),
		Mismatch:  -int32(mismatch),
		Deletion:  -int32(deletion),
		Insertion: -int32(insertion),
		Branch:    -int32(branch),
	}
}

// noOrigin marks a cell whose best path has not yet consumed any window
// character (still sitting on the zero-initialized boundary).
const noOrigin = -1

// Matrix is a reusable scratch buffer for the SW recurrence. A worker keeps
// one Matrix and calls Align repeatedly, whatever the window size; the
// backing slices only grow, never shrink, so steady-state
// alignment allocates nothing.
//
// Alongside the score matrix, Matrix tracks, for each cell, the window
// column at which its best-scoring path first consumed a window character.
// This lets Align report where the winning alignment begins without a
// separate traceback pass: the origin of a cell is inherited from whichever
// of its three parents supplied the winning score, seeded the first time a
// diagonal or left move consumes a window character from the zero boundary.
type Matrix struct {
	buf    []int32
	origin []int32
	cols   int
}

// Align runs a banded, semi-global Smith-Waterman recurrence of query
// against window and returns the best score found on the query-terminal row,
// the column at which it occurs (end, exclusive of the character at that
// index — i.e. the number of window characters consumed), and the window
// column at which that alignment begins. Row 0 and column 0 are initialized
// to zero (both the query and the window are treated as semi-global: an
// alignment may start anywhere). Ties for the best score on the terminal row
// favor the smallest column.
//
// The left-move (an extra read base relative to the query) is penalized with
// Branch when the read base matches the upcoming query base (a same-base
// insertion, i.e. a homopolymer-run extension) and with Insertion otherwise;
// on the last row there is no "upcoming query base" to compare against, so
// the left-move always costs Insertion there.
func (mx *Matrix) Align(p Params, query, window []byte) (score int32, end int, begin int) {
	m := len(query) + 1
	n := len(window) + 1
	need := m * n
	if cap(mx.buf) < need {
		mx.buf = make([]int32, need)
		mx.origin = make([]int32, need)
	} else {
		mx.buf = mx.buf[:need]
		mx.origin = mx.origin[:need]
	}
	mx.cols = n
	at := func(i, j int) int32 { return mx.buf[i*n+j] }
	set := func(i, j int, v int32) { mx.buf[i*n+j] = v }
	originAt := func(i, j int) int32 { return mx.origin[i*n+j] }
	setOrigin := func(i, j int, v int32) { mx.origin[i*n+j] = v }

	for j := 0; j < n; j++ {
		set(0, j, 0)
		setOrigin(0, j, noOrigin)
	}
	for i := 0; i < m; i++ {
		set(i, 0, 0)
		setOrigin(i, 0, noOrigin)
	}

	// startedAt returns the origin to propagate when a move consumes
	// window[col], given the predecessor's origin.
	startedAt := func(predOrigin int32, col int) int32 {
		if predOrigin == noOrigin {
			return int32(col)
		}
		return predOrigin
	}

	for i := 1; i < m; i++ {
		qch := query[i-1]
		lastRow := i == m-1
		for j := 1; j < n; j++ {
			rch := window[j-1]

			diag := at(i-1, j-1) + p.Match
			if rch != qch {
				diag = at(i-1, j-1) + p.Mismatch
			}
			diagOrigin := startedAt(originAt(i-1, j-1), j-1)

			var leftPenalty int32
			if lastRow {
				leftPenalty = p.Insertion
			} else if rch == query[i] {
				leftPenalty = p.Branch
			} else {
				leftPenalty = p.Insertion
			}
			left := at(i, j-1) + leftPenalty
			leftOrigin := startedAt(originAt(i, j-1), j-1)

			up := at(i-1, j) + p.Deletion
			upOrigin := originAt(i-1, j)

			best, bestOrigin := diag, diagOrigin
			if left > best {
				best, bestOrigin = left, leftOrigin
			}
			if up > best {
				best, bestOrigin = up, upOrigin
			}
			set(i, j, best)
			setOrigin(i, j, bestOrigin)
		}
	}

	last := m - 1
	score = at(last, 0)
	end = 0
	for j := 1; j < n; j++ {
		if v := at(last, j); v > score {
			score = v
			end = j
		}
	}
	beginCol := originAt(last, end)
	if beginCol == noOrigin {
		beginCol = int32(end)
	}
	return score, end, int(beginCol)
}

// Cell returns the value at (row, column) of the matrix computed by the most
// recent call to Align. It exists to let tests verify the recurrence
// directly; production callers only need the values Align returns.
func (mx *Matrix) Cell(row, col int) int32 {
	return mx.buf[row*mx.cols+col]
}
