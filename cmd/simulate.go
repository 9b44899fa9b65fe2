// Copyright © 2019 the distkmer authors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"bufio"
	"fmt"
	"log"
	"os"

	rng "github.com/leesper/go_rng"
	"github.com/spf13/cobra"

	"github.com/osm-bio/distkmer/src/misc"
	"github.com/osm-bio/distkmer/src/version"
)

// the command line arguments
var (
	numSeqs    *int    // number of sequences to simulate
	seqLength  *int    // length of each simulated sequence
	seed       *int64  // seed for the random generator
	simOutFile *string // the file to write the simulated sequences to
)

// the simulate command (used by cobra)
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate random FASTA sequence data for benchmarking the counter",
	Long:  `Simulate random FASTA sequence data for benchmarking the counter`,
	Run: func(cmd *cobra.Command, args []string) {
		runSimulate()
	},
}

// a function to initialise the command line arguments
func init() {
	numSeqs = simulateCmd.Flags().IntP("numSeqs", "n", 1000, "number of sequences to simulate")
	seqLength = simulateCmd.Flags().IntP("seqLength", "l", 150, "length of each simulated sequence")
	seed = simulateCmd.Flags().Int64P("seed", "x", 1, "seed for the random generator")
	simOutFile = simulateCmd.Flags().StringP("outFile", "o", "simulated.fasta", "file to write the simulated sequences to")
	RootCmd.AddCommand(simulateCmd)
}

/*
  The main function for the simulate command
*/
func runSimulate() {
	// start logging
	if *logFile != "" {
		logFH := misc.StartLogging(*logFile)
		defer logFH.Close()
		log.SetOutput(logFH)
	} else {
		log.SetOutput(os.Stdout)
	}
	// start sub command
	log.Printf("this is distkmer (version %s)", version.VERSION)
	log.Printf("starting the simulate subcommand")
	log.Printf("\tnumber of sequences: %d", *numSeqs)
	log.Printf("\tsequence length: %d", *seqLength)
	log.Printf("\tseed: %d", *seed)

	fh, err := os.Create(*simOutFile)
	misc.ErrorCheck(err)
	defer fh.Close()
	writer := bufio.NewWriter(fh)
	defer writer.Flush()

	bases := []byte("ACGT")
	gen := rng.NewUniformGenerator(*seed)
	seq := make([]byte, *seqLength)
	for i := 0; i < *numSeqs; i++ {
		for j := range seq {
			seq[j] = bases[gen.Int32n(4)]
		}
		fmt.Fprintf(writer, ">simulated_%d\n%s\n", i, seq)
	}
	log.Printf("written the simulated sequences: %v", *simOutFile)
	log.Printf("finished")
}
