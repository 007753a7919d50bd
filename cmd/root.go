// Package cmd wires the command-line interface of the node.
package cmd

import (
	"fmt"
	"os"

	"github.com/holtenko/iotdb/cmd/serve"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "iotdb",
		Short: "distributed time-series database node",
		Long: fmt.Sprintf(`iotdb (v%s)

A distributed time-series database node: raft-style consensus for
single-leader writes, a per-storage-group write-ahead log and an in-memory
columnar store feeding the flush pipeline.`, Version),
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("iotdb v%s\n", Version)
		},
	}
)

func init() {
	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(serve.ServeCmd)
}

// Execute runs the root command.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
