// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

/*
lima demultiplexes PacBio BAM reads against a barcode catalog, scoring each
read's end windows against every catalog barcode in both orientations and
routing subreads to the barcode pair with the strongest evidence.
*/

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/lima/barcode"
	"github.com/grailbio/lima/limabam"
	"github.com/grailbio/lima/limasettings"
	"github.com/grailbio/lima/pipeline"
	"github.com/grailbio/lima/report"
	"github.com/pkg/errors"
)

// demuxFlags holds one subcommand's flag definitions. lima has a single
// subcommand today; the FlagSet-per-subcommand shape leaves room to add
// more without disturbing this one's flag names.
var demuxFlags = flag.NewFlagSet("demux", flag.ExitOnError)

var (
	matchScore       = demuxFlags.Int("match-score", limasettings.Default().MatchScore, "Score for a matching base")
	mismatchPenalty  = demuxFlags.Int("mismatch-penalty", limasettings.Default().MismatchPenalty, "Penalty for a mismatched base")
	deletionPenalty  = demuxFlags.Int("deletion-penalty", limasettings.Default().DeletionPenalty, "Penalty for a deleted base")
	insertionPenalty = demuxFlags.Int("insertion-penalty", limasettings.Default().InsertionPenalty, "Penalty for an inserted base")
	branchPenalty    = demuxFlags.Int("branch-penalty", limasettings.Default().BranchPenalty, "Penalty, used instead of insertion-penalty, for an inserted base that repeats the next barcode base (not on the last barcode base)")
	windowSizeMult   = demuxFlags.Float64("window-size-mult", limasettings.Default().WindowSizeMult, "End-window width as a multiple of the longest catalog barcode")

	minScore       = demuxFlags.Int("min-score", limasettings.Default().MinScore, "Minimum mean barcode score (0-100) to keep a ZMW")
	minLength      = demuxFlags.Int("min-length", limasettings.Default().MinLength, "Minimum clipped subread length to keep a subread")
	minPasses      = demuxFlags.Int("min-passes", limasettings.Default().MinPasses, "Minimum number of scored subreads to keep a ZMW")
	maxScoredReads = demuxFlags.Int("max-scored-reads", limasettings.Default().MaxScoredReads, "Cap on subreads counted toward a ZMW's mean score (0 = unlimited)")
	keepSymmetric  = demuxFlags.Bool("same", false, "Keep only ZMWs whose chosen left and right barcodes match")
	perSubread     = demuxFlags.Bool("per-subread", false, "Score and report every subread independently instead of grouping by ZMW")
	ccs            = demuxFlags.Bool("ccs", false, "Apply the CCS alignment-parameter preset, for consensus reads instead of raw subreads")

	noBAM      = demuxFlags.Bool("no-bam", false, "Skip writing trimmed BAM output")
	noReports  = demuxFlags.Bool("no-reports", false, "Skip writing the report TSV")
	splitBAM   = demuxFlags.Bool("split-bam", false, "Write one BAM file per barcode pair instead of a single output BAM")
	numThreads = demuxFlags.Int("num-threads", 0, "Number of worker goroutines (0 = runtime.NumCPU())")
	chunkSize  = demuxFlags.Int("chunk-size", limasettings.Default().ChunkSize, "Number of ZMWs per unit of parallel work")

	outPrefix = demuxFlags.String("out", "lima", "Output path prefix")
)

// flagToSettingsField maps a flag name to its limasettings field name, for
// ApplyCCSPreset's "only override what the user didn't set explicitly"
// rule.
var flagToSettingsField = map[string]string{
	"match-score":       "match_score",
	"mismatch-penalty":  "mismatch_penalty",
	"deletion-penalty":  "deletion_penalty",
	"insertion-penalty": "insertion_penalty",
	"branch-penalty":    "branch_penalty",
}

func limaUsage() {
	fmt.Printf("Usage: %s demux [OPTIONS] <inputs...>\n", os.Args[0])
	fmt.Printf("  inputs are .bam read containers and .fasta/.fa(.gz) barcode catalog files, in any order\n")
	fmt.Printf("Options:\n")
	demuxFlags.PrintDefaults()
}

func main() {
	shutdown := grail.Init()
	defer shutdown()

	if len(os.Args) < 2 || os.Args[1] != "demux" {
		limaUsage()
		log.Fatalf("expected subcommand 'demux'")
	}
	demuxFlags.Usage = limaUsage
	if err := demuxFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("%v", err)
	}

	explicit := map[string]bool{}
	demuxFlags.Visit(func(f *flag.Flag) {
		if field, ok := flagToSettingsField[f.Name]; ok {
			explicit[field] = true
		}
	})

	bamPaths, fastaPaths, err := classifyArgs(demuxFlags.Args())
	if err != nil {
		log.Fatalf("%v", err)
	}
	if len(bamPaths) != 1 {
		log.Fatalf("expected exactly one .bam input, got %d: %s", len(bamPaths), strings.Join(bamPaths, ", "))
	}
	if len(fastaPaths) == 0 {
		log.Fatalf("expected at least one .fasta/.fa(.gz) barcode catalog file")
	}

	settings := limasettings.Settings{
		MatchScore:       *matchScore,
		MismatchPenalty:  *mismatchPenalty,
		DeletionPenalty:  *deletionPenalty,
		InsertionPenalty: *insertionPenalty,
		BranchPenalty:    *branchPenalty,
		WindowSizeMult:   *windowSizeMult,
		MinScore:         *minScore,
		MinLength:        *minLength,
		MinPasses:        *minPasses,
		MaxScoredReads:   *maxScoredReads,
		KeepSymmetric:    *keepSymmetric,
		PerSubread:       *perSubread,
		NoBAM:            *noBAM,
		NoReports:        *noReports,
		SplitBAM:         *splitBAM,
		NumThreads:       *numThreads,
		ChunkSize:        *chunkSize,
	}
	if *ccs {
		settings.ApplyCCSPreset(explicit)
	}
	if err := settings.Validate(); err != nil {
		log.Fatalf("invalid settings: %v", err)
	}

	cat, err := loadCatalog(fastaPaths)
	if err != nil {
		log.Fatalf("%v", err)
	}

	f, err := os.Open(bamPaths[0])
	if err != nil {
		log.Fatalf("opening %s: %v", bamPaths[0], err)
	}
	defer f.Close()

	src, header, err := limabam.NewSource(f, settings.PerSubread)
	if err != nil {
		log.Fatalf("%v", err)
	}

	writer, err := report.New(*outPrefix, header, settings)
	if err != nil {
		log.Fatalf("%v", err)
	}

	counters, runErr := pipeline.Run(settings, cat, src, writer)
	closeErr := writer.Close(counters)
	if runErr != nil {
		log.Fatalf("demultiplexing failed: %v", runErr)
	}
	if closeErr != nil {
		log.Fatalf("closing outputs: %v", closeErr)
	}
	log.Debug.Printf("exiting: %d ZMWs above all thresholds out of %d", counters.AboveAllThresholds, counters.GroupsInput)
}

// classifyArgs sorts demux's positional arguments into BAM inputs and FASTA
// catalog files by extension, per spec §6: "positional arguments are either
// read containers ... or FASTA files. Unknown container types are a fatal
// argument error."
func classifyArgs(args []string) (bamPaths, fastaPaths []string, err error) {
	for _, a := range args {
		lower := strings.ToLower(a)
		switch {
		case strings.HasSuffix(lower, ".bam"):
			bamPaths = append(bamPaths, a)
		case strings.HasSuffix(lower, ".fasta"), strings.HasSuffix(lower, ".fasta.gz"),
			strings.HasSuffix(lower, ".fa"), strings.HasSuffix(lower, ".fa.gz"):
			fastaPaths = append(fastaPaths, a)
		default:
			return nil, nil, errors.Errorf("unrecognized input %q: expected .bam or .fasta/.fa(.gz)", a)
		}
	}
	return bamPaths, fastaPaths, nil
}

func loadCatalog(paths []string) (*barcode.Catalog, error) {
	cat, err := barcode.LoadFile(paths[0])
	if err != nil {
		return nil, err
	}
	for _, p := range paths[1:] {
		more, err := barcode.LoadFile(p)
		if err != nil {
			return nil, err
		}
		cat.Append(more)
	}
	return cat, nil
}
