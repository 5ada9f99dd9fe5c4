package limabam

import (
	"io"

	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/lima/limarecord"
	"github.com/pkg/errors"
)

// readerParallelism is the number of goroutines bam.Reader uses for BGZF
// decompression. Demultiplexing is itself CPU-bound on alignment, so a
// single decompressor keeps the reader from competing with the worker pool
// for cores.
const readerParallelism = 1

// Source adapts a BAM input stream into a pipeline.Source, grouping records
// by ZMW (or treating every record as its own group, in per-subread mode)
// via a limarecord.Accumulator.
type Source struct {
	reader *bam.Reader
	acc    *limarecord.Accumulator
	done   bool
}

// NewSource wraps r as a BAM reader and returns a Source over it, along
// with the BAM header for callers that need it to construct output writers.
func NewSource(r io.Reader, perSubread bool) (*Source, *sam.Header, error) {
	reader, err := bam.NewReader(r, readerParallelism)
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening BAM input")
	}
	return &Source{
		reader: reader,
		acc:    limarecord.NewAccumulator(perSubread),
	}, reader.Header(), nil
}

// Next implements pipeline.Source.
func (s *Source) Next() (*limarecord.Group, error) {
	if s.done {
		return nil, nil
	}
	for {
		rec, err := s.reader.Read()
		if err == io.EOF {
			s.done = true
			if g, ok := s.acc.Flush(); ok {
				return g, nil
			}
			return nil, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading BAM record")
		}
		if g, ok := s.acc.Push(Read{R: rec}); ok {
			return g, nil
		}
	}
}
