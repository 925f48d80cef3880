// Package cli provides the flags and machine-readable help shared by chirp
// and chirpd.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	// OutputFlag switches command results to JSON on stdout.
	OutputFlag = "output"
	// HelpJSONFlag prints the schema of the addressed command instead of running it.
	HelpJSONFlag = "help-json"
)

// FlagSchema describes one flag of a command.
type FlagSchema struct {
	Name        string `json:"name"`
	Shorthand   string `json:"shorthand,omitempty"`
	Type        string `json:"type"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
	// Global flags are declared on an ancestor and accepted by every subcommand.
	Global bool `json:"global,omitempty"`
}

// CommandSchema describes a command, its flags and its subcommands.
type CommandSchema struct {
	Name        string          `json:"name"`
	Use         string          `json:"use,omitempty"`
	Aliases     []string        `json:"aliases,omitempty"`
	Description string          `json:"description,omitempty"`
	Long        string          `json:"long,omitempty"`
	Example     string          `json:"example,omitempty"`
	Runnable    bool            `json:"runnable"`
	JSONOutput  bool            `json:"json_output"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

// AddGlobalFlags registers --output and --help-json on the root command.
func AddGlobalFlags(root *cobra.Command) {
	root.PersistentFlags().Bool(OutputFlag, false, "Output as JSON")
	root.PersistentFlags().Bool(HelpJSONFlag, false, "Output command schema as JSON")
}

// OutputJSON reports whether --output was given to cmd or any ancestor.
func OutputJSON(cmd *cobra.Command) bool {
	output, _ := cmd.Flags().GetBool(OutputFlag)
	return output
}

// GenerateSchema builds the schema of cmd and its visible subcommands.
func GenerateSchema(cmd *cobra.Command) CommandSchema {
	// extractFlags merges inherited flags into cmd.Flags()
	flags := extractFlags(cmd)
	schema := CommandSchema{
		Name:        cmd.Name(),
		Use:         cmd.Use,
		Aliases:     cmd.Aliases,
		Description: cmd.Short,
		Long:        cmd.Long,
		Example:     cmd.Example,
		Runnable:    cmd.Runnable(),
		JSONOutput:  cmd.Flags().Lookup(OutputFlag) != nil,
		Flags:       flags,
	}

	for _, sub := range cmd.Commands() {
		if sub.Name() == "help" || sub.Name() == "completion" || sub.Hidden {
			continue
		}
		schema.Subcommands = append(schema.Subcommands, GenerateSchema(sub))
	}

	return schema
}

func extractFlags(cmd *cobra.Command) []FlagSchema {
	var flags []FlagSchema
	local := cmd.LocalFlags()

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Name == HelpJSONFlag || f.Name == "help" || f.Hidden {
			return
		}
		flags = append(flags, flagToSchema(f, local.Lookup(f.Name) == nil))
	})

	return flags
}

func flagToSchema(f *pflag.Flag, global bool) FlagSchema {
	schema := FlagSchema{
		Name:        f.Name,
		Shorthand:   f.Shorthand,
		Type:        f.Value.Type(),
		Default:     f.DefValue,
		Description: f.Usage,
		Global:      global,
	}
	// MarkFlagRequired annotates the flag itself, not the command.
	if req := f.Annotations[cobra.BashCompOneRequiredFlag]; len(req) > 0 && req[0] == "true" {
		schema.Required = true
	}
	return schema
}

// PrintSchema writes the schema of cmd to w as indented JSON.
func PrintSchema(w io.Writer, cmd *cobra.Command) error {
	output, err := json.MarshalIndent(GenerateSchema(cmd), "", "  ")
	if err != nil {
		return fmt.Errorf("generating schema: %w", err)
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}

// HandleHelpJSON prints the schema of the command addressed by args when
// they contain --help-json, and reports whether it did. args excludes the
// program name. It runs before Execute so required flags and argument
// validators do not reject the request.
func HandleHelpJSON(root *cobra.Command, args []string, w io.Writer) (bool, error) {
	i := slices.Index(args, "--"+HelpJSONFlag)
	if i < 0 {
		return false, nil
	}
	return true, PrintSchema(w, findTargetCommand(root, args[:i]))
}

// CheckHelpJSON handles --help-json in os.Args and exits when it was given.
func CheckHelpJSON(root *cobra.Command) {
	handled, err := HandleHelpJSON(root, os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if handled {
		os.Exit(0)
	}
}

// findTargetCommand follows subcommand names in args, skipping flags, and
// stops at the first word that names no subcommand.
func findTargetCommand(cmd *cobra.Command, args []string) *cobra.Command {
	for i, arg := range args {
		if len(arg) > 0 && arg[0] == '-' {
			continue
		}
		for _, sub := range cmd.Commands() {
			if sub.Name() == arg || sub.HasAlias(arg) {
				return findTargetCommand(sub, args[i+1:])
			}
		}
		return cmd
	}
	return cmd
}
