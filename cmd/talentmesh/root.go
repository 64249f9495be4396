package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "talentmesh",
	Short: "TalentMesh is an HR multi-agent orchestration core",
	Long: `TalentMesh routes employee messages to HR capabilities, drives leave,
onboarding, recruitment and performance workflows as state machines and
grounds policy answers with document retrieval.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format (json or text)")
}
