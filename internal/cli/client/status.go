package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/changichirp/internal/cli"
)

// IndexStatus describes the index generation the server is answering from.
type IndexStatus struct {
	Generation string `json:"generation"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Metric     string `json:"metric"`
	Count      int    `json:"count"`
	BuiltAt    string `json:"built_at"`
}

// StatusCmd creates the status command.
func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the index the server is answering from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON := cli.OutputJSON(cmd)
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runStatus(cmd.Context(), api, os.Stdout, outputJSON)
		},
	}
}

func runStatus(ctx context.Context, api *APIClient, w io.Writer, outputJSON bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	resp, err := api.Get(ctx, "/index")
	if err != nil {
		return fmt.Errorf("status failed: %w", err)
	}

	var status IndexStatus
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		return fmt.Errorf("failed to parse index status: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(status, "", "  ")
		fmt.Fprintln(w, string(output))
		return nil
	}
	fmt.Fprintf(w, "Generation: %s\n", status.Generation)
	fmt.Fprintf(w, "Model:      %s (%d dims, %s)\n", status.Model, status.Dimensions, status.Metric)
	fmt.Fprintf(w, "Chunks:     %d\n", status.Count)
	fmt.Fprintf(w, "Built at:   %s\n", status.BuiltAt)
	return nil
}
