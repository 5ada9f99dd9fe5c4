// Package limasettings holds the demultiplexer's tunable configuration: the
// alignment parameters, filter thresholds, and pipeline/output toggles
// listed in spec §6, plus their validation and CCS convenience preset.
package limasettings

import (
	"runtime"

	"github.com/grailbio/lima/align"
	"github.com/grailbio/lima/filter"
	"github.com/pkg/errors"
)

// Settings carries every tunable the CLI exposes. Field names match the
// spec's flag names, capitalized.
type Settings struct {
	MatchScore       int
	MismatchPenalty  int
	DeletionPenalty  int
	InsertionPenalty int
	BranchPenalty    int
	WindowSizeMult   float64

	MinScore       int
	MinLength      int
	MinPasses      int
	MaxScoredReads int
	KeepSymmetric  bool
	PerSubread     bool

	NoBAM      bool
	NoReports  bool
	SplitBAM   bool
	NumThreads int
	ChunkSize  int
}

// Default returns the settings described by spec §6's default column.
func Default() Settings {
	return Settings{
		MatchScore:       4,
		MismatchPenalty:  13,
		DeletionPenalty:  7,
		InsertionPenalty: 7,
		BranchPenalty:    4,
		WindowSizeMult:   1.2,

		MinScore:       51,
		MinLength:      50,
		MinPasses:      1,
		MaxScoredReads: 0,

		NumThreads: 0,
		ChunkSize:  10,
	}
}

// ccsPreset is the documented fixed alignment profile for CCS (circular
// consensus) reads, whose error profile differs enough from raw subreads to
// warrant its own defaults (spec §4.7).
var ccsPreset = Settings{
	MatchScore:       4,
	MismatchPenalty:  11,
	DeletionPenalty:  11,
	InsertionPenalty: 11,
	BranchPenalty:    4,
}

// ApplyCCSPreset overwrites s's alignment parameters with the CCS preset,
// except for any field name present in explicit — those were set directly
// by the user (e.g. via an explicit --match-score flag) and take
// precedence over the preset, per spec §4.7.
func (s *Settings) ApplyCCSPreset(explicit map[string]bool) {
	set := func(name string, dst *int, val int) {
		if !explicit[name] {
			*dst = val
		}
	}
	set("match_score", &s.MatchScore, ccsPreset.MatchScore)
	set("mismatch_penalty", &s.MismatchPenalty, ccsPreset.MismatchPenalty)
	set("deletion_penalty", &s.DeletionPenalty, ccsPreset.DeletionPenalty)
	set("insertion_penalty", &s.InsertionPenalty, ccsPreset.InsertionPenalty)
	set("branch_penalty", &s.BranchPenalty, ccsPreset.BranchPenalty)
}

// Validate checks the mutually-exclusive option rules from spec §4.7/§6 and
// coerces NumThreads into a usable worker count.
func (s *Settings) Validate() error {
	if s.SplitBAM && s.NoBAM {
		return errors.New("split_bam and no_bam are mutually exclusive")
	}
	if s.ChunkSize <= 0 {
		return errors.Errorf("chunk_size must be positive, got %d", s.ChunkSize)
	}
	if s.WindowSizeMult <= 0 {
		return errors.Errorf("window_size_mult must be positive, got %g", s.WindowSizeMult)
	}

	avail := runtime.NumCPU()
	switch {
	case s.NumThreads == 0:
		s.NumThreads = avail
	case s.NumThreads < 0:
		s.NumThreads = max(1, avail+s.NumThreads)
	default:
		s.NumThreads = min(avail, s.NumThreads)
	}
	return nil
}

// AlignParams builds the align.Params this settings' penalty fields
// describe.
func (s Settings) AlignParams() align.Params {
	return align.NewParams(s.MatchScore, s.MismatchPenalty, s.DeletionPenalty, s.InsertionPenalty, s.BranchPenalty)
}

// FilterParams builds the filter.Params this settings' threshold fields
// describe.
func (s Settings) FilterParams() filter.Params {
	return filter.Params{
		MinScore:      s.MinScore,
		MinLength:     s.MinLength,
		MinPasses:     s.MinPasses,
		KeepSymmetric: s.KeepSymmetric,
	}
}

// WindowSize returns the end-window width for a catalog whose longest
// barcode is maxBarcodeLen bases (spec §4.2).
func (s Settings) WindowSize(maxBarcodeLen int) int {
	return int(float64(maxBarcodeLen) * s.WindowSizeMult)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
