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
	"fmt"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/mholt/archiver"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/osm-bio/distkmer/src/kmer"
	"github.com/osm-bio/distkmer/src/minimizer"
	"github.com/osm-bio/distkmer/src/misc"
	"github.com/osm-bio/distkmer/src/pipeline"
	"github.com/osm-bio/distkmer/src/sketch"
	"github.com/osm-bio/distkmer/src/version"
)

// the command line arguments
var (
	kmerSize      *int                                                                // size of k-mer
	minimizerSize *int                                                                // size of minimizer
	sketchSize    *int                                                                // size of the bottom-k sketch used to size the stores
	supermers     *bool                                                               // if true, count via the supermer path, otherwise distribute raw k-mers
	fasta         *[]string                                                           // input FASTA files
	bundle        *bool                                                               // tar up the output directory after the run
	outDir        *string                                                             // directory to save the run info to
	defaultOutDir = "./distkmer-count-" + string(time.Now().Format("20060102150405")) // a default dir to store the run info
)

// the count command (used by cobra)
var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Count the k-mers of FASTA sequence data across the rank group",
	Long:  `Count the k-mers of FASTA sequence data across the rank group`,
	Run: func(cmd *cobra.Command, args []string) {
		runCount()
	},
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return misc.CheckRequiredFlags(cmd.Flags())
	},
}

// a function to initialise the command line arguments
func init() {
	kmerSize = countCmd.Flags().IntP("kmerSize", "k", 21, "size of k-mer")
	minimizerSize = countCmd.Flags().IntP("minimizerSize", "m", 7, "size of minimizer")
	sketchSize = countCmd.Flags().IntP("sketchSize", "s", 2048, "size of the bottom-k sketch used to estimate distinct k-mers")
	supermers = countCmd.Flags().Bool("supermers", true, "distribute minimizer routed supermers instead of raw k-mers")
	fasta = countCmd.Flags().StringSliceP("fasta", "f", []string{}, "FASTA file(s) to count - required")
	bundle = countCmd.Flags().Bool("bundle", false, "tar.gz the output directory once the run is done")
	outDir = countCmd.PersistentFlags().StringP("outDir", "o", defaultOutDir, "directory to save the run info to")
	countCmd.MarkFlagRequired("fasta")
	RootCmd.AddCommand(countCmd)
}

// a function to check user supplied parameters
func countParamCheck() error {
	if err := kmer.CheckSize(*kmerSize); err != nil {
		return err
	}
	if *minimizerSize > *kmerSize {
		return fmt.Errorf("supplied minimizer size is greater than the k-mer size")
	}
	if *minimizerSize < 1 || *minimizerSize > minimizer.MaxSize {
		return fmt.Errorf("minimizer size must be between 1 and %d", minimizer.MaxSize)
	}
	for _, file := range *fasta {
		if _, err := os.Stat(file); os.IsNotExist(err) {
			return fmt.Errorf("can't find the specified FASTA file: %v", file)
		}
	}
	// setup the outDir
	if _, err := os.Stat(*outDir); os.IsNotExist(err) {
		if err := os.MkdirAll(*outDir, 0700); err != nil {
			return fmt.Errorf("can't create specified output directory")
		}
	}
	// set number of processors to use
	if *proc <= 0 {
		*proc = 1
	}
	runtime.GOMAXPROCS(runtime.NumCPU())
	return nil
}

/*
  The main function for the count command
*/
func runCount() {
	// set up profiling
	if *profiling == true {
		defer profile.Start(profile.ProfilePath("./")).Stop()
	}
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
	log.Printf("starting the count subcommand")
	// check the supplied files and then log some stuff
	log.Printf("checking parameters...")
	misc.ErrorCheck(countParamCheck())
	log.Printf("\tranks: %d", *proc)
	log.Printf("\tk-mer size: %d", *kmerSize)
	log.Printf("\tminimizer size: %d", *minimizerSize)
	if *supermers {
		log.Printf("\tdistribution: minimizer routed supermers")
	} else {
		log.Printf("\tdistribution: hashed k-mers")
	}
	for _, file := range *fasta {
		log.Printf("\tinput file: %v", file)
	}

	// record the runtime information for the dump
	info := &pipeline.Info{
		Version: version.VERSION,
		Count: &pipeline.CountCmd{
			KmerSize:      *kmerSize,
			MinimizerSize: *minimizerSize,
			Processors:    *proc,
			Supermers:     *supermers,
			SketchSize:    *sketchSize,
			InputFiles:    *fasta,
			OutDir:        *outDir,
		},
	}

	// create the pipeline
	log.Printf("initialising the counting pipeline...")
	countPipeline := pipeline.NewPipeline()

	// initialise processes
	log.Printf("\tinitialising the processes")
	fastaStream := pipeline.NewFastaStreamer()
	encoder := pipeline.NewSeqEncoder()
	counter := pipeline.NewKmerCounter(info)

	// add in the process parameters
	fastaStream.InputFiles = *fasta
	encoder.Input = fastaStream.Output
	encoder.KmerSize = *kmerSize
	encoder.Sketch = sketch.NewBottomK(*kmerSize, *sketchSize)
	counter.Input = encoder.Output
	counter.Sketch = encoder.Sketch

	// arrange the pipeline processes and run it
	countPipeline.AddProcesses(fastaStream, encoder, counter)
	log.Printf("\tnumber of processes added to the counting pipeline: %d", countPipeline.GetNumProcesses())
	log.Printf("counting k-mers...")
	countPipeline.Run()

	// report the results
	res := info.Results
	log.Printf("\ttotal k-mers counted: %d", res.TotalKmers)
	log.Printf("\tdistinct k-mers: %d", res.DistinctKmers)
	log.Printf("\testimated distinct (sketch): %d", res.EstimatedDistinct)
	for _, top := range res.TopKmers {
		log.Printf("\t\t%v: %d", top.Seq, top.Count)
	}

	// dump the run info and bundle the output directory if requested
	misc.ErrorCheck(info.Dump(*outDir + "/count.info"))
	log.Printf("saved the run info to disk: %v/count.info", *outDir)
	if *bundle {
		misc.ErrorCheck(archiver.Archive([]string{*outDir}, *outDir+".tar.gz"))
		log.Printf("bundled the output directory: %v.tar.gz", *outDir)
	}
	log.Printf("finished")
}
