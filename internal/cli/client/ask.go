package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/changichirp/internal/cli"
)

// AskRequest is the chat API request.
type AskRequest struct {
	Question string `json:"question"`
}

// AskResponse is the chat API answer.
type AskResponse struct {
	Answer     string   `json:"answer"`
	Citations  []string `json:"citations"`
	Confidence string   `json:"confidence"`
}

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about Changi Airport or Jewel",
		Long:  "Sends a question to the chat API and prints the answer with its sources.",
		Example: `  chirp ask "Is there a butterfly garden in Jewel?"
  chirp ask --output "What time does the Canopy Park open?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON := cli.OutputJSON(cmd)
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runAsk(cmd.Context(), api, os.Stdout, strings.Join(args, " "), outputJSON)
		},
	}
}

func runAsk(ctx context.Context, api *APIClient, w io.Writer, question string, outputJSON bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	resp, err := api.Post(ctx, "/chat", AskRequest{Question: question})
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	var answer AskResponse
	if err := json.Unmarshal(resp.Data, &answer); err != nil {
		return fmt.Errorf("failed to parse answer: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(answer, "", "  ")
		fmt.Fprintln(w, string(output))
		return nil
	}

	fmt.Fprintln(w, answer.Answer)
	if len(answer.Citations) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for i, c := range answer.Citations {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, c)
		}
	}
	if answer.Confidence != "grounded" {
		fmt.Fprintf(w, "\n(confidence: %s)\n", answer.Confidence)
	}
	return nil
}
