package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_HasExpectedSubcommands(t *testing.T) {
	rootCmd := NewRootCmd()

	for _, name := range []string{"serve", "shards", "version"} {
		found, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, "subcommand %q should resolve", name)
		assert.Equal(t, name, found.Name())
	}
}

func TestRootCmd_Use(t *testing.T) {
	rootCmd := NewRootCmd()
	assert.Equal(t, "mosaicdb", rootCmd.Use)
}
