// Package pipeline implements the parallel pipeline (C5): a single
// producer assembles groups into chunks, a worker pool scores and filters
// each chunk's groups, and a single sink drains completed chunks strictly
// in submission order. The shape follows the corpus's own
// shard-channel-plus-worker-pool pattern (grailbio-bio's
// markduplicates.generateBAM) combined with its sequence-numbered
// ordered-collector pattern (cmd/bio-fusion.processFASTQ): a worker pool
// drains a bounded work channel the way generateBAM's shardChannel does,
// and results carry a submission sequence number the way bio-fusion's req/
// res pairs do, except here the sink writes each result as soon as every
// earlier sequence number has been written, rather than collecting the
// whole run before sorting. Results that arrive ahead of a still-running
// earlier chunk wait in a map that has no size bound, so the sink's memory
// grows with how far the other workers run ahead of the slowest chunk.
package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/lima/aggregate"
	"github.com/grailbio/lima/align"
	"github.com/grailbio/lima/barcode"
	"github.com/grailbio/lima/endwindow"
	"github.com/grailbio/lima/filter"
	"github.com/grailbio/lima/limarecord"
	"github.com/grailbio/lima/limasettings"
)

// FatalError wraps a panic recovered at a worker's top level (spec §4.10/§9)
// so it crosses the worker/sink boundary as an ordinary error value instead
// of an unguarded panic. Cause is usually an aggregate.InvariantError.
type FatalError struct {
	Cause interface{}
}

func (e FatalError) Error() string {
	return fmt.Sprintf("pipeline: worker panicked: %v", e.Cause)
}

// GroupResult is everything downstream reporting needs about one scored,
// filtered group.
type GroupResult struct {
	Group    *limarecord.Group
	Pair     aggregate.BarcodeHitPair
	Decision filter.Decision
	Outcomes []filter.SubreadOutcome
}

// Chunk is a work unit: up to settings.ChunkSize groups, tagged with a
// submission sequence number so the sink can restore source order.
type Chunk struct {
	Seq    int64
	Groups []*limarecord.Group
}

// ChunkResult is a processed Chunk, carrying the same sequence number.
type ChunkResult struct {
	Seq     int64
	Results []GroupResult
}

// Counters holds the atomic summary tallies from spec §3, mutated directly
// by workers with no locking and read once after the sink has joined.
type Counters struct {
	GroupsInput         int64
	BelowMinLength      int64
	BelowMinScore       int64
	BelowMinPasses      int64
	AboveAllThresholds  int64
	Symmetric           int64
	Asymmetric          int64
	SubreadsAboveLength int64
	SubreadsBelowLength int64
}

func (c *Counters) tally(d filter.Decision, symmetric bool, outcomes []filter.SubreadOutcome) {
	atomic.AddInt64(&c.GroupsInput, 1)
	switch {
	case d.KeepPair:
		atomic.AddInt64(&c.AboveAllThresholds, 1)
		// Symmetric/asymmetric are tallied only for pairs that cleared the
		// thresholds, matching LimaCcsWorkflow.cpp/LimaRawWorkflow.cpp's
		// SymmetricCounts/AsymmetricCounts increments, which live inside the
		// same threshold-passing branch as the counts-matrix update.
		if symmetric {
			atomic.AddInt64(&c.Symmetric, 1)
		} else {
			atomic.AddInt64(&c.Asymmetric, 1)
		}
	case !d.AboveMinLength:
		atomic.AddInt64(&c.BelowMinLength, 1)
	case !d.AboveMinScore:
		atomic.AddInt64(&c.BelowMinScore, 1)
	case !d.AboveMinPasses:
		atomic.AddInt64(&c.BelowMinPasses, 1)
	}
	for _, o := range outcomes {
		if o.BelowLength {
			atomic.AddInt64(&c.SubreadsBelowLength, 1)
		} else if o.Record != nil {
			atomic.AddInt64(&c.SubreadsAboveLength, 1)
		}
	}
}

// Sink receives chunk results strictly in submission order.
type Sink interface {
	WriteChunk(ChunkResult) error
}

// Source yields groups in source order; Next returns (nil, nil) at end of
// input and a non-nil error on any read failure.
type Source interface {
	Next() (*limarecord.Group, error)
}

// Run drives the full pipeline: producer, worker pool, and sink, returning
// the final Counters and the first fatal error encountered anywhere in the
// run (spec §4.5/§5).
func Run(settings limasettings.Settings, cat *barcode.Catalog, src Source, sink Sink) (Counters, error) {
	var counters Counters
	alignParams := settings.AlignParams()
	filterParams := settings.FilterParams()
	windowSize := settings.WindowSize(cat.MaxLen)

	chunkCh := make(chan Chunk, settings.NumThreads*2)
	resultCh := make(chan ChunkResult, settings.NumThreads*2)
	fatal := errors.Once{}
	var stopped int32

	var workers sync.WaitGroup
	for i := 0; i < settings.NumThreads; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			var mx align.Matrix
			for chunk := range chunkCh {
				if atomic.LoadInt32(&stopped) != 0 {
					continue
				}
				result, err := processChunkGuarded(chunk, alignParams, filterParams, cat, windowSize, settings.MaxScoredReads, &mx, &counters)
				if err != nil {
					fatal.Set(err)
					atomic.StoreInt32(&stopped, 1)
					continue
				}
				resultCh <- result
			}
		}()
	}

	var producerErr error
	go func() {
		defer close(chunkCh)
		var seq int64
		var groups []*limarecord.Group
		for {
			if atomic.LoadInt32(&stopped) != 0 {
				return
			}
			g, err := src.Next()
			if err != nil {
				producerErr = err
				fatal.Set(err)
				atomic.StoreInt32(&stopped, 1)
				return
			}
			if g == nil {
				if len(groups) > 0 {
					chunkCh <- Chunk{Seq: seq, Groups: groups}
				}
				return
			}
			groups = append(groups, g)
			if len(groups) >= settings.ChunkSize {
				chunkCh <- Chunk{Seq: seq, Groups: groups}
				seq++
				groups = nil
			}
		}
	}()

	sinkDone := make(chan struct{})
	go func() {
		defer close(sinkDone)
		runOrderedSink(resultCh, sink, &fatal)
	}()

	workers.Wait()
	close(resultCh)
	<-sinkDone

	if err := fatal.Err(); err != nil {
		return counters, err
	}
	return counters, producerErr
}

// runOrderedSink drains resultCh and hands chunks to sink strictly in
// ascending Seq order, buffering any that arrive early (spec §4.5: workers
// may finish chunks out of order, but the sink must write in submission
// order).
func runOrderedSink(resultCh <-chan ChunkResult, sink Sink, fatal *errors.Once) {
	pending := make(map[int64]ChunkResult)
	var next int64
	for r := range resultCh {
		pending[r.Seq] = r
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			if err := sink.WriteChunk(ready); err != nil {
				fatal.Set(err)
				log.Error.Printf("pipeline: sink write failed: %v", err)
			}
			next++
		}
	}
}

// processChunkGuarded recovers any panic from processChunk (notably
// aggregate.InvariantError) and turns it into a FatalError, so an assertion
// failure inside one worker surfaces as an ordinary error on the fatal
// latch instead of crashing the process (spec §4.10/§9).
func processChunkGuarded(chunk Chunk, p align.Params, fp filter.Params, cat *barcode.Catalog, windowSize, maxScoredReads int, mx *align.Matrix, counters *Counters) (result ChunkResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = FatalError{Cause: r}
		}
	}()
	return processChunk(chunk, p, fp, cat, windowSize, maxScoredReads, mx, counters)
}

func processChunk(chunk Chunk, p align.Params, fp filter.Params, cat *barcode.Catalog, windowSize, maxScoredReads int, mx *align.Matrix, counters *Counters) (ChunkResult, error) {
	results := make([]GroupResult, len(chunk.Groups))
	for i, g := range chunk.Groups {
		pair, err := scoreGroup(g, p, cat, windowSize, maxScoredReads, mx)
		if err != nil {
			return ChunkResult{}, err
		}
		decision := filter.Evaluate(fp, pair)
		var outcomes []filter.SubreadOutcome
		if decision.KeepPair {
			outcomes = filter.Clip(fp, g, pair)
		} else {
			outcomes = absentOutcomes(g.Len())
		}
		counters.tally(decision, pair.Left.Idx == pair.Right.Idx, outcomes)
		results[i] = GroupResult{Group: g, Pair: pair, Decision: decision, Outcomes: outcomes}
	}
	return ChunkResult{Seq: chunk.Seq, Results: results}, nil
}

func absentOutcomes(n int) []filter.SubreadOutcome {
	out := make([]filter.SubreadOutcome, n)
	for i := range out {
		out[i] = filter.SubreadOutcome{BelowLength: true}
	}
	return out
}

func scoreGroup(g *limarecord.Group, p align.Params, cat *barcode.Catalog, windowSize, maxScoredReads int, mx *align.Matrix) (aggregate.BarcodeHitPair, error) {
	agg := aggregate.New(cat.Len(), maxScoredReads)
	for _, r := range g.Records {
		seq := r.Sequence()
		hasLeft, hasRight := true, true
		if flags, ok := r.ContextFlags(); ok {
			hasLeft = flags&limarecord.ContextAdapterBefore != 0
			hasRight = flags&limarecord.ContextAdapterAfter != 0
		}

		var leftResults, rightResults []endwindow.Result
		if hasLeft && len(seq) > 0 {
			window, _ := endwindow.Window(endwindow.Left, seq, windowSize)
			leftResults = endwindow.Score(p, cat, endwindow.Left, window, 0, mx)
		} else {
			hasLeft = false
		}
		if hasRight && len(seq) > 0 {
			window, begin := endwindow.Window(endwindow.Right, seq, windowSize)
			rightResults = endwindow.Score(p, cat, endwindow.Right, window, begin, mx)
		} else {
			hasRight = false
		}
		agg.AddSubread(hasLeft, leftResults, hasRight, rightResults, len(seq))
	}
	return agg.Finish(fmt.Sprintf("%d", g.Key)), nil
}
