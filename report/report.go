// Package report implements the reporter/writer stage (C6): it drains
// pipeline.ChunkResult values in submission order and serializes the
// report TSV, the summary text, the counts matrix, and the trimmed-record
// BAM output (optionally split per barcode pair).
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	baseerrors "github.com/grailbio/base/errors"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/lima/limabam"
	"github.com/grailbio/lima/limasettings"
	"github.com/grailbio/lima/pipeline"
	"github.com/pkg/errors"
)

// bamWriterParallelism is the number of goroutines bam.Writer uses for its
// internal BGZF compression. Demux output is comparatively small per
// record, so a single compressor is enough; the sink goroutine is never
// CPU-bound on compression the way a whole-genome BAM writer would be.
const bamWriterParallelism = 1

// countKey is the (left, right) barcode-index pair the counts matrix is
// keyed on.
type countKey struct{ left, right int }

// Writer owns every output file for one input dataset and implements
// pipeline.Sink. It is driven exclusively by the pipeline's single sink
// goroutine, so it needs no internal locking (spec §4.5/§5's single-owner
// writer policy).
type Writer struct {
	settings limasettings.Settings

	reportFile io.WriteCloser
	reportW    *bufio.Writer

	bamWriter    *bam.Writer
	bamFile      io.WriteCloser
	splitWriters map[countKey]*splitBAM

	header *sam.Header
	prefix string

	counts map[countKey]int64
}

type splitBAM struct {
	file   io.WriteCloser
	writer *bam.Writer
}

// New creates every output file this dataset's settings call for, per spec
// §4.6. header is the BAM header shared by the input's records; it is
// reused verbatim for every output BAM (single or split-by-pair).
func New(prefix string, header *sam.Header, settings limasettings.Settings) (*Writer, error) {
	w := &Writer{
		settings: settings,
		header:   header,
		prefix:   prefix,
		counts:   make(map[countKey]int64),
	}

	if !settings.NoReports {
		f, err := os.Create(prefix + ".demux.report")
		if err != nil {
			return nil, errors.Wrapf(err, "creating %s.demux.report", prefix)
		}
		w.reportFile = f
		w.reportW = bufio.NewWriter(f)
		if _, err := w.reportW.WriteString(reportHeader + "\n"); err != nil {
			return nil, errors.Wrap(err, "writing report header")
		}
	}

	if !settings.NoBAM && !settings.SplitBAM {
		f, err := os.Create(prefix + ".demux.bam")
		if err != nil {
			return nil, errors.Wrapf(err, "creating %s.demux.bam", prefix)
		}
		w.bamFile = f
		w.bamWriter, err = bam.NewWriter(f, header, bamWriterParallelism)
		if err != nil {
			return nil, errors.Wrap(err, "creating BAM writer")
		}
	}
	if settings.SplitBAM {
		w.splitWriters = make(map[countKey]*splitBAM)
	}
	return w, nil
}

const reportHeader = "group_key\tleft_idx\tright_idx\tleft_score\tright_score\tmean_score\t" +
	"left_clips\tright_clips\tleft_scores\tright_scores\tnum_passes\tpassing"

// WriteChunk implements pipeline.Sink.
func (w *Writer) WriteChunk(c pipeline.ChunkResult) error {
	for _, res := range c.Results {
		if w.reportW != nil {
			if err := w.writeReportLine(res); err != nil {
				return err
			}
		}
		// The counts matrix only tallies pairs that passed the thresholds
		// and the symmetry policy, matching LimaCcsWorkflow.cpp/
		// LimaRawWorkflow.cpp's barcodePairCounts increment, which lives
		// inside the same `if (std::get<3>(p))` / symmetry-policy branch
		// that gates BAM output. filter.Evaluate already folds the
		// symmetry policy into KeepPair, so no separate check is needed
		// here.
		if res.Decision.KeepPair {
			key := countKey{res.Pair.Left.Idx, res.Pair.Right.Idx}
			w.counts[key]++
		}

		if err := w.writeBAM(res); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeReportLine(res pipeline.GroupResult) error {
	cols := []string{
		strconv.FormatInt(res.Group.Key, 10),
		strconv.Itoa(res.Pair.Left.Idx),
		strconv.Itoa(res.Pair.Right.Idx),
		strconv.Itoa(res.Pair.Left.Score),
		strconv.Itoa(res.Pair.Right.Score),
		strconv.Itoa(res.Pair.MeanScore),
		joinInts(res.Pair.Left.Clips),
		joinInts(res.Pair.Right.Clips),
		joinFloats(res.Pair.Left.Scores),
		joinFloats(res.Pair.Right.Scores),
		strconv.Itoa(res.Decision.Passes),
		strconv.FormatBool(res.Decision.KeepPair),
	}
	_, err := w.reportW.WriteString(strings.Join(cols, "\t") + "\n")
	return errors.Wrap(err, "writing report line")
}

func joinInts(vs []int) string {
	if len(vs) == 0 {
		return "-"
	}
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func joinFloats(vs []float64) string {
	if len(vs) == 0 {
		return "-"
	}
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func (w *Writer) writeBAM(res pipeline.GroupResult) error {
	if w.settings.NoBAM {
		return nil
	}
	for _, outcome := range res.Outcomes {
		if outcome.Record == nil {
			continue
		}
		rec, ok := outcome.Record.(limabam.Read)
		if !ok {
			return errors.Errorf("report: output record is not a limabam.Read (%T)", outcome.Record)
		}
		writer, err := w.writerForPair(res.Pair.Left.Idx, res.Pair.Right.Idx)
		if err != nil {
			return err
		}
		if err := writer.Write(rec.R); err != nil {
			return errors.Wrap(err, "writing BAM record")
		}
	}
	return nil
}

// writerForPair resolves the bam.Writer a pair's records should go to:
// either the single shared writer, or the split-by-pair writer for this
// pair's (left, right) indices, lazily created on first use.
func (w *Writer) writerForPair(left, right int) (*bam.Writer, error) {
	if !w.settings.SplitBAM {
		return w.bamWriter, nil
	}
	key := countKey{left, right}
	sb, ok := w.splitWriters[key]
	if ok {
		return sb.writer, nil
	}
	name := fmt.Sprintf("%s.%d-%d.demux.bam", w.prefix, left, right)
	f, err := os.Create(name)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", name)
	}
	writer, err := bam.NewWriter(f, w.header, bamWriterParallelism)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "creating BAM writer for %s", name)
	}
	sb = &splitBAM{file: f, writer: writer}
	w.splitWriters[key] = sb
	return sb.writer, nil
}

// Close flushes and closes every output this Writer opened, and writes the
// final summary and counts files. It aggregates close errors with
// errors.Once so every writer gets a chance to flush regardless of earlier
// failures (spec §7's "flushed and closed on both happy and error paths").
func (w *Writer) Close(counters pipeline.Counters) error {
	e := baseerrors.Once{}

	if w.reportW != nil {
		e.Set(w.reportW.Flush())
		e.Set(w.reportFile.Close())
	}
	if w.bamWriter != nil {
		e.Set(w.bamWriter.Close())
	}
	if w.bamFile != nil {
		e.Set(w.bamFile.Close())
	}
	for _, sb := range w.splitWriters {
		e.Set(sb.writer.Close())
		e.Set(sb.file.Close())
	}

	e.Set(w.writeSummary(counters))
	e.Set(w.writeCounts())
	return e.Err()
}

func (w *Writer) writeSummary(c pipeline.Counters) error {
	f, err := os.Create(w.prefix + ".demux.summary")
	if err != nil {
		return errors.Wrapf(err, "creating %s.demux.summary", w.prefix)
	}
	defer f.Close()

	lines := []struct {
		label string
		value int64
	}{
		{"ZMWs input", c.GroupsInput},
		{"ZMWs above all thresholds (A)", c.AboveAllThresholds},
		{"ZMWs below any threshold (B)", c.GroupsInput - c.AboveAllThresholds},
		{"ZMWs below length threshold", c.BelowMinLength},
		{"ZMWs below score threshold", c.BelowMinScore},
		{"ZMWs below passes threshold", c.BelowMinPasses},
		{"ZMWs symmetric", c.Symmetric},
		{"ZMWs asymmetric", c.Asymmetric},
		{"Reads above length", c.SubreadsAboveLength},
		{"Reads below length", c.SubreadsBelowLength},
	}
	width := 0
	for _, l := range lines {
		if len(l.label) > width {
			width = len(l.label)
		}
	}
	b := bufio.NewWriter(f)
	for _, l := range lines {
		if _, err := fmt.Fprintf(b, "%-*s %d\n", width, l.label, l.value); err != nil {
			return errors.Wrap(err, "writing summary line")
		}
	}
	return errors.Wrap(b.Flush(), "flushing summary")
}

func (w *Writer) writeCounts() error {
	f, err := os.Create(w.prefix + ".demux.counts")
	if err != nil {
		return errors.Wrapf(err, "creating %s.demux.counts", w.prefix)
	}
	defer f.Close()

	keys := make([]countKey, 0, len(w.counts))
	for k := range w.counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].left != keys[j].left {
			return keys[i].left < keys[j].left
		}
		return keys[i].right < keys[j].right
	})

	b := bufio.NewWriter(f)
	if _, err := b.WriteString("IndexLeft\tIndexRight\tCounts\n"); err != nil {
		return errors.Wrap(err, "writing counts header")
	}
	for _, k := range keys {
		if _, err := fmt.Fprintf(b, "%d\t%d\t%d\n", k.left, k.right, w.counts[k]); err != nil {
			return errors.Wrap(err, "writing counts row")
		}
	}
	return errors.Wrap(b.Flush(), "flushing counts")
}

