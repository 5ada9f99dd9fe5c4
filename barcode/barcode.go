// Package barcode holds the barcode catalog: the set of known barcode
// sequences a dataset may be demultiplexed against.
package barcode

import "github.com/pkg/errors"

// Barcode is one catalog entry: a name and a base sequence, plus its
// precomputed reverse complement.
type Barcode struct {
	Name string
	// Bases is the sequence exactly as read from the catalog FASTA, case
	// preserved.
	Bases string
	// RC is the reverse complement of Bases, computed once at load time.
	RC string
}

// Catalog is an ordered list of Barcode entries. Append is its only
// mutating method; the pipeline only reads it. The index into Catalog IS
// the barcode id reported throughout the rest of the pipeline.
type Catalog struct {
	Barcodes []Barcode
	// MaxLen is the length, in bases, of the longest barcode in the
	// catalog. Window sizing and score normalization are both relative to
	// MaxLen, not to each individual barcode's length, so that scores stay
	// comparable across catalog entries (spec §4.2).
	MaxLen int
}

// Len returns the number of barcodes in the catalog.
func (c *Catalog) Len() int { return len(c.Barcodes) }

var complement = map[byte]byte{
	'A': 'T', 'T': 'A', 'C': 'G', 'G': 'C',
	'a': 't', 't': 'a', 'c': 'g', 'g': 'c',
	'-': '-',
}

// ReverseComplement returns the reverse complement of s. It panics on any
// byte outside {A,C,G,T,a,c,g,t,-}; callers that read untrusted input must
// validate first (see validateBases).
func ReverseComplement(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c, ok := complement[s[i]]
		if !ok {
			panic("barcode: invalid base in ReverseComplement: " + string(s[i]))
		}
		out[len(s)-1-i] = c
	}
	return string(out)
}

func validateBases(name, bases string) error {
	for i := 0; i < len(bases); i++ {
		if _, ok := complement[bases[i]]; !ok {
			return errors.Errorf("barcode %q: invalid base %q at offset %d", name, bases[i], i)
		}
	}
	return nil
}

// New builds a Catalog from an ordered list of (name, bases) pairs,
// preserving input order and precomputing each entry's reverse complement.
// It is a fatal input error (spec §3) for any sequence to contain a byte
// outside {A,C,G,T,a,c,g,t,-}.
func New(entries []struct{ Name, Bases string }) (*Catalog, error) {
	c := &Catalog{Barcodes: make([]Barcode, 0, len(entries))}
	for _, e := range entries {
		if err := validateBases(e.Name, e.Bases); err != nil {
			return nil, err
		}
		c.Barcodes = append(c.Barcodes, Barcode{
			Name:  e.Name,
			Bases: e.Bases,
			RC:    ReverseComplement(e.Bases),
		})
		if len(e.Bases) > c.MaxLen {
			c.MaxLen = len(e.Bases)
		}
	}
	if len(c.Barcodes) == 0 {
		return nil, errors.New("barcode catalog is empty")
	}
	return c, nil
}
