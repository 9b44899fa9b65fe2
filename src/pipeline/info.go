package pipeline

import (
	"io/ioutil"

	"github.com/segmentio/objconv/msgpack"
)

// Info stores the runtime information for a counting run
type Info struct {
	Version string
	Count   *CountCmd
	Results *CountResults
}

// CountCmd stores the runtime info for the count command
type CountCmd struct {
	KmerSize      int
	MinimizerSize int
	Processors    int
	Supermers     bool
	SketchSize    int
	InputFiles    []string
	OutDir        string
}

// CountResults stores what a counting run produced
type CountResults struct {
	TotalKmers        uint64
	DistinctKmers     uint64
	EstimatedDistinct uint64
	Spectrum          []uint64
	TopKmers          []TopKmer
}

// TopKmer is one high frequency k-mer in the run report
type TopKmer struct {
	Seq   string
	Count uint64
}

// Dump is a method to write the runtime info to file
func (Info *Info) Dump(path string) error {
	b, err := msgpack.Marshal(Info)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, b, 0644)
}

// Load is a method to load the runtime info from file
func (Info *Info) Load(path string) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	return msgpack.Unmarshal(data, Info)
}
