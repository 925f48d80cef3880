package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTree() *cobra.Command {
	root := &cobra.Command{Use: "chirpd", Short: "server"}
	AddGlobalFlags(root)

	ingest := &cobra.Command{
		Use:     "ingest",
		Short:   "Build a generation",
		Example: "  chirpd ingest --data scraped_data.jsonl",
		Args:    cobra.NoArgs,
		RunE:    func(*cobra.Command, []string) error { return nil },
	}
	ingest.Flags().String("data", "", "JSONL file of scraped pages")
	_ = ingest.MarkFlagRequired("data")

	index := &cobra.Command{Use: "index", Aliases: []string{"idx"}, Short: "Manage generations"}
	index.AddCommand(&cobra.Command{
		Use:  "list",
		RunE: func(*cobra.Command, []string) error { return nil },
	})
	index.AddCommand(&cobra.Command{Use: "secret", Hidden: true, Run: func(*cobra.Command, []string) {}})

	root.AddCommand(ingest, index)
	return root
}

func flagNamed(t *testing.T, flags []FlagSchema, name string) FlagSchema {
	t.Helper()
	for _, f := range flags {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("flag %q not in schema", name)
	return FlagSchema{}
}

func TestGenerateSchema_Subcommand(t *testing.T) {
	root := testTree()
	ingest, _, err := root.Find([]string{"ingest"})
	require.NoError(t, err)

	schema := GenerateSchema(ingest)

	assert.Equal(t, "ingest", schema.Name)
	assert.Equal(t, "  chirpd ingest --data scraped_data.jsonl", schema.Example)
	assert.True(t, schema.Runnable)
	assert.True(t, schema.JSONOutput)

	data := flagNamed(t, schema.Flags, "data")
	assert.True(t, data.Required)
	assert.False(t, data.Global)
	assert.Equal(t, "string", data.Type)

	output := flagNamed(t, schema.Flags, OutputFlag)
	assert.True(t, output.Global)
	assert.False(t, output.Required)
	assert.Equal(t, "bool", output.Type)

	for _, f := range schema.Flags {
		assert.NotEqual(t, HelpJSONFlag, f.Name)
		assert.NotEqual(t, "help", f.Name)
	}
}

func TestGenerateSchema_Tree(t *testing.T) {
	schema := GenerateSchema(testTree())

	assert.False(t, schema.Runnable)
	output := flagNamed(t, schema.Flags, OutputFlag)
	assert.False(t, output.Global, "root declares --output itself")

	require.Len(t, schema.Subcommands, 2)
	assert.Equal(t, "ingest", schema.Subcommands[1].Name)
	index := schema.Subcommands[0]
	assert.Equal(t, "index", index.Name)
	assert.Equal(t, []string{"idx"}, index.Aliases)
	require.Len(t, index.Subcommands, 1, "hidden commands are left out")
	assert.Equal(t, "list", index.Subcommands[0].Name)
}

func TestHandleHelpJSON(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "root", args: []string{"--help-json"}, want: "chirpd"},
		{name: "subcommand", args: []string{"ingest", "--help-json"}, want: "ingest"},
		{name: "flags before subcommand", args: []string{"--output", "index", "list", "--help-json"}, want: "list"},
		{name: "alias", args: []string{"idx", "--help-json"}, want: "index"},
		{name: "unknown word stops the walk", args: []string{"index", "bogus", "list", "--help-json"}, want: "index"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			handled, err := HandleHelpJSON(testTree(), tt.args, &buf)
			require.NoError(t, err)
			require.True(t, handled)

			var schema CommandSchema
			require.NoError(t, json.Unmarshal(buf.Bytes(), &schema))
			assert.Equal(t, tt.want, schema.Name)
		})
	}
}

func TestHandleHelpJSON_NotRequested(t *testing.T) {
	var buf bytes.Buffer
	handled, err := HandleHelpJSON(testTree(), []string{"ingest", "--data", "x.jsonl"}, &buf)
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Empty(t, buf.String())
}

func TestOutputJSON(t *testing.T) {
	for _, tt := range []struct {
		args []string
		want bool
	}{
		{args: []string{"ingest", "--data", "x.jsonl"}, want: false},
		{args: []string{"ingest", "--data", "x.jsonl", "--output"}, want: true},
		{args: []string{"--output", "ingest", "--data", "x.jsonl"}, want: true},
	} {
		root := testTree()
		ingest, _, err := root.Find([]string{"ingest"})
		require.NoError(t, err)

		var got bool
		ingest.RunE = func(cmd *cobra.Command, _ []string) error {
			got = OutputJSON(cmd)
			return nil
		}
		root.SetArgs(tt.args)
		require.NoError(t, root.Execute())
		assert.Equal(t, tt.want, got, "args %v", tt.args)
	}
}

func TestOutputJSON_FlagNotRegistered(t *testing.T) {
	assert.False(t, OutputJSON(&cobra.Command{Use: "bare"}))
}
