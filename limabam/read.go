// Package limabam adapts *sam.Record, PacBio's conventional BAM read
// container, to the limarecord.Record interface the barcode-calling engine
// depends on. It knows the PacBio aux-tag conventions (zm, cx, qs, bc, bq)
// so the core package never has to.
package limabam

import (
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/lima/limarecord"
	"github.com/pkg/errors"
)

var (
	zmTag = sam.Tag{'z', 'm'} // ZMW/group key, int
	cxTag = sam.Tag{'c', 'x'} // adapter-context flags, uint8
	qsTag = sam.Tag{'q', 's'} // query start, int
	bcTag = sam.Tag{'b', 'c'} // chosen barcode pair, [2]uint16
	bqTag = sam.Tag{'b', 'q'} // barcode-pair quality, uint8
)

// Read wraps a *sam.Record, implementing limarecord.Record.
type Read struct {
	R *sam.Record
}

// Sequence returns the record's expanded base sequence. The core never
// mutates the returned slice.
func (r Read) Sequence() []byte {
	return r.R.Seq.Expand()
}

// GroupKey returns the PacBio ZMW number from the zm aux tag, or 0 if the
// tag is absent (per-subread mode
// never needs this; grouped mode requires zm to be present by construction
// of the input).
func (r Read) GroupKey() int64 {
	if aux := r.R.AuxFields.Get(zmTag); aux != nil {
		return toInt64(aux.Value())
	}
	return 0
}

// ContextFlags returns the cx aux tag's value and whether it was present.
func (r Read) ContextFlags() (uint8, bool) {
	aux := r.R.AuxFields.Get(cxTag)
	if aux == nil {
		return 0, false
	}
	return toUint8(aux.Value()), true
}

// QueryStart returns the qs aux tag's value and whether it was present.
func (r Read) QueryStart() (int, bool) {
	aux := r.R.AuxFields.Get(qsTag)
	if aux == nil {
		return 0, false
	}
	return int(toInt64(aux.Value())), true
}

// Clip returns a new Read whose underlying record is trimmed to
// [left, right) of Sequence(), offset by the original qs tag if present,
// and tagged with the chosen barcode pair and quality.
func (r Read) Clip(left, right int, pair limarecord.BarcodePair, quality uint8) limarecord.Record {
	offset := 0
	if qs, ok := r.QueryStart(); ok {
		offset = qs
	}
	absLeft := left + offset

	out := cloneRecord(r.R)
	seq := r.R.Seq.Expand()
	out.Seq = sam.NewSeq(seq[left:right])
	if len(r.R.Qual) == len(seq) {
		out.Qual = append([]byte(nil), r.R.Qual[left:right]...)
	}
	if _, ok := r.QueryStart(); ok {
		setAux(out, qsTag, int32(absLeft))
	}
	setAux(out, bcTag, [2]uint16{uint16(pair.Left), uint16(pair.Right)})
	setAux(out, bqTag, quality)
	return Read{R: out}
}

// Header returns a shallow clone of the underlying record, suitable as a
// starting point for output construction without mutating the original.
func (r Read) Header() *sam.Record {
	return cloneRecord(r.R)
}

func cloneRecord(r *sam.Record) *sam.Record {
	out := &sam.Record{
		Name:    r.Name,
		Ref:     r.Ref,
		Pos:     r.Pos,
		MapQ:    r.MapQ,
		Cigar:   r.Cigar,
		Flags:   r.Flags,
		MateRef: r.MateRef,
		MatePos: r.MatePos,
		TempLen: r.TempLen,
		Seq:     r.Seq,
	}
	if r.Qual != nil {
		out.Qual = append([]byte(nil), r.Qual...)
	}
	out.AuxFields = append(sam.AuxFields(nil), r.AuxFields...)
	return out
}

func setAux(r *sam.Record, tag sam.Tag, value interface{}) {
	removeAux(r, tag)
	aux, err := sam.NewAux(tag, value)
	if err != nil {
		// Tag values constructed here are always well-formed; a failure
		// indicates a core bug, not bad input.
		panic(errors.Wrapf(err, "limabam: building aux tag %s", tag))
	}
	r.AuxFields = append(r.AuxFields, aux)
}

func removeAux(r *sam.Record, tag sam.Tag) {
	kept := r.AuxFields[:0]
	for _, aux := range r.AuxFields {
		if aux.Tag() != tag {
			kept = append(kept, aux)
		}
	}
	r.AuxFields = kept
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	default:
		return 0
	}
}

func toUint8(v interface{}) uint8 {
	switch n := v.(type) {
	case uint8:
		return n
	case int8:
		return uint8(n)
	case int:
		return uint8(n)
	default:
		return 0
	}
}
