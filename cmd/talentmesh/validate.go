package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/talentmesh/talentmesh/agent"
	"github.com/talentmesh/talentmesh/gateway"
	"github.com/talentmesh/talentmesh/workflow"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Check workflow definitions for consistency",
	Long:  `Loads every YAML workflow definition under the directory and reports unknown states, unreachable states and states with no path to a terminal.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(args); err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("All workflow definitions are valid.")
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(args []string) error {
	var dir string
	var err error
	if len(args) > 0 {
		dir = args[0]
	} else {
		dir, err = os.Getwd()
		if err != nil {
			return err
		}
	}

	// Bind against the built-in guard/action names so definitions that use
	// them load; validation needs no live downstream services.
	catalog := agent.NewBuiltinCatalog(gateway.New())

	engine := workflow.New()
	loaded, failed, err := engine.LoadDir(dir, catalog)
	if err != nil {
		return err
	}
	for _, name := range loaded {
		def, _ := engine.Definition(name)
		warnings, err := def.Validate()
		if err != nil {
			return err
		}
		fmt.Printf("  %s: %d states, %d transitions\n", name, len(def.States), len(def.Transitions))
		for _, w := range warnings {
			fmt.Printf("    warning: %s\n", w)
		}
	}
	if len(failed) > 0 {
		for path, loadErr := range failed {
			fmt.Printf("  %s: %v\n", path, loadErr)
		}
		return fmt.Errorf("%d definition(s) failed to load", len(failed))
	}
	if len(loaded) == 0 {
		return fmt.Errorf("no workflow definitions found under %s", dir)
	}
	return nil
}
