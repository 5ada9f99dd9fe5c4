package barcode

import (
	"bufio"
	"compress/gzip"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

const bufferInitSize = 1 << 20

// Load reads a FASTA-formatted barcode catalog from r, preserving the
// sequence order of the file. A sequence's name is the text immediately
// after '>' up to the first space, matching the convention used throughout
// the corpus's own FASTA readers.
func Load(r io.Reader) (*Catalog, error) {
	var entries []struct{ Name, Bases string }
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, bufferInitSize)

	var name string
	var seq strings.Builder
	flush := func() {
		if name != "" {
			entries = append(entries, struct{ Name, Bases string }{name, seq.String()})
		}
		seq.Reset()
	}
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			flush()
			name = strings.Fields(line[1:])[0]
			continue
		}
		seq.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "couldn't read barcode FASTA")
	}
	flush()
	return New(entries)
}

// LoadFile opens path and loads it as a barcode catalog, transparently
// decompressing it if the name ends in .gz. A dataset may supply the
// catalog across multiple FASTA files (spec §6 CLI surface); callers
// combine the per-file results with Append.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening barcode catalog %s", path)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "opening gzip barcode catalog %s", path)
		}
		defer gz.Close()
		r = gz
	}
	cat, err := Load(r)
	if err != nil {
		return nil, errors.Wrapf(err, "loading barcode catalog %s", path)
	}
	return cat, nil
}

// Append merges other into c, preserving c's existing order and appending
// other's barcodes after it. Used when the catalog is assembled from
// multiple FASTA positional arguments.
func (c *Catalog) Append(other *Catalog) {
	c.Barcodes = append(c.Barcodes, other.Barcodes...)
	if other.MaxLen > c.MaxLen {
		c.MaxLen = other.MaxLen
	}
}
