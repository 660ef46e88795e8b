package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/echolabsdev/prism-sub001/agent"
	"github.com/echolabsdev/prism-sub001/config"
	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/spf13/cobra"
)

var askFlags struct {
	model       string
	profile     string
	system      string
	maxSteps    int
	maxTokens   int64
	temperature float64
	stream      bool
	save        bool
	tools       []string
}

var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Send a prompt and print the answer. Reads stdin when no prompt is given",
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, err := readPrompt(args, cmd.InOrStdin())
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), func(*config.Config) bool { return askFlags.save })
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck // Nothing left to do on exit

		opts, err := a.requestOptions(askFlags.profile, askFlags.model)
		if err != nil {
			return err
		}
		opts = append(opts, agent.WithPrompt(prompt), agent.WithParallelTools(a.cfg.ParallelTools))
		if len(askFlags.tools) > 0 {
			opts = append(opts, agent.WithTools(a.extraTools(askFlags.profile, askFlags.tools)...))
		}
		if askFlags.system != "" {
			opts = append(opts, agent.WithSystemPrompt(askFlags.system))
		}
		if cmd.Flags().Changed("max-steps") {
			opts = append(opts, agent.WithMaxSteps(askFlags.maxSteps))
		}
		if askFlags.maxTokens > 0 {
			opts = append(opts, agent.WithMaxTokens(askFlags.maxTokens))
		}
		if cmd.Flags().Changed("temperature") {
			opts = append(opts, agent.WithTemperature(askFlags.temperature))
		}

		req, err := agent.NewRequest(opts...)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if askFlags.stream {
			return streamAnswer(cmd, a, req, out)
		}

		resp, err := a.crew.Runner.Run(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, resp.Text)
		if resp.Truncated() {
			fmt.Fprintf(cmd.ErrOrStderr(), "Stopped after %d steps with tool calls pending; raise --max-steps to continue\n", len(resp.Steps))
		}
		logger.Info().
			Str("runID", resp.RunID).
			Int64("totalTokens", resp.Usage.TotalTokens()).
			Msg("Answer complete")
		return nil
	},
}

func streamAnswer(cmd *cobra.Command, a *app, req *agent.Request, out io.Writer) error {
	stream, err := a.crew.Runner.Stream(cmd.Context(), req)
	if err != nil {
		return err
	}
	defer stream.Close() //nolint:errcheck // Stream is drained

	for stream.Next() {
		chunk := stream.Chunk()
		switch chunk.Type {
		case llm.ChunkTypeText:
			fmt.Fprint(out, chunk.Text)
		case llm.ChunkTypeToolCall:
			if chunk.ToolCall != nil && chunk.ToolCall.Name != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "\n[tool call: %s]\n", chunk.ToolCall.Name)
			}
		case llm.ChunkTypeFinish:
			fmt.Fprintln(out)
		}
	}
	return stream.Err()
}

func readPrompt(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", errors.New("a prompt is required")
	}
	return prompt, nil
}

func init() {
	f := askCmd.Flags()
	f.StringVarP(&askFlags.model, "model", "m", "", `Model as "provider/model", or a bare provider for its default model`)
	f.StringVarP(&askFlags.profile, "profile", "p", "", "Configured profile to use")
	f.StringVar(&askFlags.system, "system", "", "Additional system prompt")
	f.IntVar(&askFlags.maxSteps, "max-steps", agent.DefaultMaxSteps, "Maximum provider round-trips when tools are called")
	f.Int64Var(&askFlags.maxTokens, "max-tokens", 0, "Maximum tokens to generate")
	f.Float64Var(&askFlags.temperature, "temperature", 0, "Sampling temperature")
	f.BoolVar(&askFlags.stream, "stream", false, "Stream the answer; tools are declared but not run")
	f.StringSliceVar(&askFlags.tools, "tools", nil, "Tool name patterns to offer the model, e.g. read_file or 'weather:.*'")
	f.BoolVar(&askFlags.save, "save", false, "Save the run to the history database")
}
