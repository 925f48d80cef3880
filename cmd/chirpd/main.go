package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/changichirp/internal/cli"
	"github.com/cloo-solutions/changichirp/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chirpd",
		Short: "ChangiChirp server and index tooling",
		Long: `chirpd serves the ChangiChirp chat API and builds the index it answers from.

Configuration is read from CHIRP_* environment variables (and a .env file).`,
	}

	cli.AddGlobalFlags(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.IngestCmd())
	rootCmd.AddCommand(admin.IndexCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
