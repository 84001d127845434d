package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListWorlds(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "w1", "ticks"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "w1", "ticks", "ticks-2026-01-02-03.jsonl.zst"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "w1", "ticks", "ticks-2026-01-02-04.jsonl.zst"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "w1", "index.sqlite"), nil, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "w2"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "stray.txt"), nil, 0o644))

	worlds, err := listWorlds(base)
	require.NoError(t, err)
	require.Equal(t, []worldEntry{
		{id: "w1", journals: 2, indexed: true},
		{id: "w2", journals: 0, indexed: false},
	}, worlds)
}
