package stewardd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileScoreSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "7.json"), []byte(`[
		{"address":"0xaaa1","score":98.5},
		{"address":"0xaaa2","score":91,"metadata":"github.com/cronosquity/demo"}
	]`), 0o600))
	source := NewFileScoreSource(dir)

	entries, err := source.Scores(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "0xaaa1", entries[0].Address)
	require.Equal(t, 98.5, entries[0].Score)
	require.Equal(t, "github.com/cronosquity/demo", entries[1].Metadata)
}

func TestFileScoreSourceMissingFile(t *testing.T) {
	source := NewFileScoreSource(t.TempDir())
	entries, err := source.Scores(context.Background(), 42)
	require.NoError(t, err)
	require.Nil(t, entries)
}

func TestFileScoreSourceMalformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.json"), []byte("{not json"), 0o600))
	source := NewFileScoreSource(dir)
	_, err := source.Scores(context.Background(), 1)
	require.Error(t, err)
}

func TestParsePolicy(t *testing.T) {
	policy, err := ParsePolicy(`{"maxTotalBudget":1000,"maxPerRecipient":500,"minRecipients":1,"maxRecipients":3,"requireUniqueWallets":true}`)
	require.NoError(t, err)
	require.Equal(t, 3, policy.MaxRecipients)
	require.True(t, policy.RequireUniqueWallets)

	_, err = ParsePolicy("")
	require.Error(t, err)
	_, err = ParsePolicy("ipfs://QmPolicy")
	require.Error(t, err)
}
