package endwindow_test

import (
	"testing"

	"github.com/grailbio/lima/align"
	"github.com/grailbio/lima/barcode"
	"github.com/grailbio/lima/endwindow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *barcode.Catalog {
	cat, err := barcode.New([]struct{ Name, Bases string }{
		{"BC1", "ACGTACGT"},
		{"BC2", "TTTTAAAA"},
	})
	require.NoError(t, err)
	return cat
}

func defaultParams() align.Params {
	return align.NewParams(4, 13, 7, 7, 4)
}

func TestWindowLeft(t *testing.T) {
	read := []byte("ACGTACGTNNNNNNNNNNNN")
	w, begin := endwindow.Window(endwindow.Left, read, 8)
	assert.Equal(t, "ACGTACGT", string(w))
	assert.Equal(t, 0, begin)
}

func TestWindowRight(t *testing.T) {
	read := []byte("NNNNNNNNNNNNACGTACGT")
	w, begin := endwindow.Window(endwindow.Right, read, 8)
	assert.Equal(t, "ACGTACGT", string(w))
	assert.Equal(t, 12, begin)
}

func TestWindowShorterThanRequested(t *testing.T) {
	read := []byte("ACGT")
	w, begin := endwindow.Window(endwindow.Left, read, 100)
	assert.Equal(t, "ACGT", string(w))
	assert.Equal(t, 0, begin)

	w, begin = endwindow.Window(endwindow.Right, read, 100)
	assert.Equal(t, "ACGT", string(w))
	assert.Equal(t, 0, begin)
}

func TestScorePerfectLeftMatch(t *testing.T) {
	cat := testCatalog(t)
	p := defaultParams()
	var mx align.Matrix
	window, _ := endwindow.Window(endwindow.Left, []byte("ACGTACGTNNNNNNNN"), 8)
	results := endwindow.Score(p, cat, endwindow.Left, window, 0, &mx)
	require.Len(t, results, 2)
	assert.InDelta(t, 100, results[0].NormScore, 0.5)
	assert.Equal(t, 8, results[0].Clip)
	assert.Less(t, results[1].NormScore, results[0].NormScore)
}

func TestScoreRightClipUsesBeginConvention(t *testing.T) {
	cat := testCatalog(t)
	p := defaultParams()
	var mx align.Matrix
	read := []byte("NNNNNNNNNNNNACGTACGT")
	window, rightBegin := endwindow.Window(endwindow.Right, read, 8)
	results := endwindow.Score(p, cat, endwindow.Right, window, rightBegin, &mx)
	assert.Equal(t, rightBegin, results[0].Clip)
}

func TestLeftClipNeverExceedsRightClipOnSymmetricRead(t *testing.T) {
	// S1: perfect symmetric read, catalog's first barcode at both ends.
	cat := testCatalog(t)
	p := defaultParams()
	middle := make([]byte, 200)
	for i := range middle {
		middle[i] = 'N'
	}
	read := append(append([]byte("ACGTACGT"), middle...), []byte("ACGTACGT")...)

	w := int(float64(cat.MaxLen) * 1.2)
	var mxLeft, mxRight align.Matrix
	leftWindow, _ := endwindow.Window(endwindow.Left, read, w)
	rightWindow, rightBegin := endwindow.Window(endwindow.Right, read, w)

	leftResults := endwindow.Score(p, cat, endwindow.Left, leftWindow, 0, &mxLeft)
	rightResults := endwindow.Score(p, cat, endwindow.Right, rightWindow, rightBegin, &mxRight)

	assert.LessOrEqual(t, leftResults[0].Clip, rightResults[0].Clip)
}

func TestScoreChoosesReverseComplementOrientation(t *testing.T) {
	// Both testCatalog barcodes are their own reverse complements, so this
	// test uses one that is not: only its RC orientation matches the window.
	cat, err := barcode.New([]struct{ Name, Bases string }{{"BC3", "AAAACCCC"}})
	require.NoError(t, err)
	p := defaultParams()
	var mx align.Matrix
	rc := barcode.ReverseComplement("AAAACCCC")
	window := []byte(rc + "NNNNNNNN")
	results := endwindow.Score(p, cat, endwindow.Left, window, 0, &mx)
	assert.InDelta(t, 100, results[0].NormScore, 0.5)
}
