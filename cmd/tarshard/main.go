package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "tarshard",
		Short: "Reshard archived media corpora into size-bounded tars",
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newSplitCmd())
	root.AddCommand(newSubsetCmd())
	root.AddCommand(newManifestCmd())
	root.AddCommand(newPrepareCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "tarshard 0.1.0-dev")
		},
	}
}
