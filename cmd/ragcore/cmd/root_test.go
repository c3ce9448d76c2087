package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCmd_HasExpectedSubcommands(t *testing.T) {
	root := NewRootCmd()

	names := map[string]bool{}
	for _, sub := range root.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"ingest", "search", "ask", "delete", "vocab", "costs", "status", "version"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestVersionCmd_ShortOutput(t *testing.T) {
	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"version", "--short"})

	require.NoError(t, root.Execute())
	assert.NotEmpty(t, buf.String())
}

func TestParseFilters(t *testing.T) {
	filter, err := parseFilters([]string{"topics=cooking", "doc_type=markdown"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"topics": "cooking", "doc_type": "markdown"}, filter)

	_, err = parseFilters([]string{"nonsense"})
	assert.Error(t, err)

	empty, err := parseFilters(nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}
