package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tarshard/pkg/subset"
	"tarshard/pkg/tarstream"
)

func newSubsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "subset JSON TAR OUT",
		Short: "Filter a metadata stream down to the members of one shard",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonPath, tarPath, outPath := args[0], args[1], args[2]

			names, err := tarstream.MemberNames(tarPath)
			if err != nil {
				return err
			}
			res, err := subset.FilterFile(jsonPath, outPath, names)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "kept %d of %d record(s), %d clip(s)\n",
				res.Kept, res.Records, res.Clips)
			if res.Unmatched > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "[!] %d of %d shard member(s) unreferenced by metadata\n",
					res.Unmatched, len(names))
			}
			return nil
		},
	}
}
