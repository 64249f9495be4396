package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/talentmesh/talentmesh/logging"
)

// buildLogger assembles a structured logger from the persistent flags.
func buildLogger(cmd *cobra.Command) logging.Logger {
	levelName, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")

	level := logging.LogLevelInfo
	switch levelName {
	case "debug":
		level = logging.LogLevelDebug
	case "warn":
		level = logging.LogLevelWarn
	case "error":
		level = logging.LogLevelError
	}

	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    format,
		Output:    os.Stderr,
		Component: "talentmesh",
	})
}
