package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available models and profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck // Nothing left to do on exit

		out := cmd.OutOrStdout()
		for _, id := range a.cfg.ModelIDs(a.providers) {
			fmt.Fprintln(out, id)
		}
		for _, name := range a.crew.ProfileNames() {
			fmt.Fprintf(out, "%s (profile)\n", name)
		}
		registered, err := a.tools.Registry.Tools()
		if err != nil {
			return err
		}
		for _, t := range registered {
			fmt.Fprintf(out, "tool: %s\n", t.Name)
		}
		return nil
	},
}
