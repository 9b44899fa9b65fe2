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
	"os"

	"github.com/spf13/cobra"

	"github.com/osm-bio/distkmer/src/version"
)

// the command line arguments shared by the subcommands
var (
	proc      *int    // number of ranks to run
	profiling *bool   // create profile for go pprof
	logFile   *string // name of the log file to write to
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "distkmer",
	Short: "distributed k-mer counting over a bulk synchronous rank group",
	Long: `distkmer counts the k-mers of genomic sequence data over a group of cooperating ranks.

Supermers are routed to ranks by their minimizer, with a greedy load balancing bin pack keeping
the hot minimizers from piling onto one rank.`,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// a function to initialise the command line arguments
func init() {
	proc = RootCmd.PersistentFlags().IntP("processors", "p", 1, "number of ranks to run the counting engine over")
	profiling = RootCmd.PersistentFlags().Bool("profiling", false, "create the files needed to profile distkmer using the go tool pprof")
	logFile = RootCmd.PersistentFlags().String("logFile", "", "filename for log file, if not set STDOUT used by default")
}

// the version command (used by cobra)
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of distkmer",
	Long:  `Print the version number of distkmer`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.VERSION)
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
