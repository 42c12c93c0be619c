package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"migrate", "trace", "consensus", "reject", "promote", "undo", "export", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "lineage-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		name  string
		flags []string
	}{
		{"trace", []string{"intake", "job", "depth"}},
		{"consensus", []string{"job"}},
		{"reject", []string{"job", "asc", "reason"}},
		{"promote", []string{"job", "asc", "candidate"}},
		{"undo", []string{"job", "asc", "correction"}},
		{"export", []string{"job", "format", "out"}},
		{"serve", []string{"port"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, _, err := rootCmd.Find([]string{tt.name})
			require.NoError(t, err)
			for _, f := range tt.flags {
				assert.NotNil(t, cmd.Flags().Lookup(f), "%s should have --%s", tt.name, f)
			}
		})
	}
}
