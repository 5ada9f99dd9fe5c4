// Package limarecord defines the narrow interface the barcode-calling engine
// needs from a read record, independent of any particular container format.
// limabam supplies the production adapter over *sam.Record; tests supply a
// trivial in-memory implementation.
package limarecord

// ContextAdapterBefore and ContextAdapterAfter are the two adapter-context
// bits spec §3 defines: bit 0 marks an adapter immediately before the
// subread, bit 1 an adapter immediately after.
const (
	ContextAdapterBefore uint8 = 1 << 0
	ContextAdapterAfter  uint8 = 1 << 1
)

// BarcodePair is the (left, right) catalog indices chosen for a group,
// attached to every output record clipped from that group along with the
// aggregated score used as its quality.
type BarcodePair struct {
	Left, Right int
}

// Record is the core's view of one read. The engine never inspects a
// record's container format directly; it only calls these methods.
type Record interface {
	// Sequence returns the read's base sequence. The returned slice must
	// not be mutated by the caller.
	Sequence() []byte

	// GroupKey returns the ZMW/well identifier subreads are grouped by.
	GroupKey() int64

	// ContextFlags returns the adapter-context bitmask and whether the
	// record carries one at all; absence means "treat both ends as
	// present" (spec §4.3 step 1).
	ContextFlags() (flags uint8, ok bool)

	// QueryStart returns the offset of this record's sequence within its
	// original, unclipped coordinate space, and whether one is present.
	// Clip coordinates computed by the engine are relative to Sequence()
	// and must have QueryStart added before being applied to the
	// underlying container.
	QueryStart() (start int, ok bool)

	// Clip returns a new record: the receiver's sequence (and any
	// per-base container state, e.g. quality scores) trimmed to
	// [left, right) in Sequence()'s coordinate space, tagged with pair
	// and quality. The receiver is left unmodified.
	Clip(left, right int, pair BarcodePair, quality uint8) Record
}

// Group is an ordered, non-empty run of records sharing one group key,
// delivered in source order (spec §3).
type Group struct {
	Key     int64
	Records []Record
}

// Len returns the number of subreads in the group.
func (g *Group) Len() int { return len(g.Records) }
