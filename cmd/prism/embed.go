package main

import (
	"encoding/json"
	"errors"

	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/spf13/cobra"
)

var embedModel string

var embedCmd = &cobra.Command{
	Use:   "embed --model provider/model text...",
	Short: "Print one embedding vector per input as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if embedModel == "" {
			return errors.New("--model is required")
		}
		pref, err := llm.ParseModel(embedModel)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck // Nothing left to do on exit

		provider, err := a.providers.Provider(pref.Provider)
		if err != nil {
			return err
		}
		resp, err := a.crew.Runner.Embed(cmd.Context(), provider, pref.Model, args...)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, vec := range resp.Embeddings {
			if err := enc.Encode(vec); err != nil {
				return err
			}
		}
		logger.Debug().Int64("tokens", resp.Usage.Tokens).Msg("Embeddings complete")
		return nil
	},
}

func init() {
	embedCmd.Flags().StringVarP(&embedModel, "model", "m", "", `Embedding model as "provider/model"`)
}
