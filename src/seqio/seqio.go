// Package seqio contains the FASTA reading and base encoding helpers used by the counting pipeline
package seqio

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/biogo/biogo/alphabet"
	bioseqio "github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"

	"github.com/osm-bio/distkmer/src/kmer"
)

// ReadFasta is a function to stream the sequences of a FASTA file (gzipped or plain) to a callback
func ReadFasta(path string, send func(seq []byte)) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	var r io.Reader = fh
	// handle gzipped input
	splitFilename := strings.Split(path, ".")
	if splitFilename[len(splitFilename)-1] == "gz" {
		gz, err := gzip.NewReader(fh)
		if err != nil {
			return err
		}
		defer gz.Close()
		r = gz
	}
	template := linear.NewSeq("", nil, alphabet.DNA)
	reader := fasta.NewReader(r, template)
	sc := bioseqio.NewScanner(reader)
	for sc.Next() {
		s := sc.Seq().(*linear.Seq)
		send([]byte(s.Seq.String()))
	}
	if sc.Error() != nil {
		return fmt.Errorf("error reading %v: %v", path, sc.Error())
	}
	return nil
}

// Fragments is a function to 2-bit encode a raw sequence, splitting it at any base outside ACGT
// and dropping fragments shorter than minLen
func Fragments(seq []byte, minLen int) [][]byte {
	var frags [][]byte
	var cur []byte
	for _, b := range seq {
		code := kmer.EncodeBase(b)
		if code > 3 {
			if len(cur) >= minLen {
				frags = append(frags, cur)
			}
			cur = nil
			continue
		}
		cur = append(cur, code)
	}
	if len(cur) >= minLen {
		frags = append(frags, cur)
	}
	return frags
}
