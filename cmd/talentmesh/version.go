package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/talentmesh/talentmesh"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of talentmesh",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("talentmesh version %s\n", talentmesh.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
