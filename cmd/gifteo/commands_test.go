package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand()

	for _, name := range []string{"serve", "notify", "migrate"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestMigrateCommand_CreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "gifteo.db")
	t.Setenv("DB_PATH", dbPath)
	t.Setenv("LOG_LEVEL", "error")

	root := newRootCommand()
	root.SetArgs([]string{"migrate"})

	require.NoError(t, root.Execute())
	assert.FileExists(t, dbPath)
}

func TestMigrateCommand_RejectsBadConfig(t *testing.T) {
	t.Setenv("NOTIFY_HOUR", "25")

	root := newRootCommand()
	root.SetArgs([]string{"migrate"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOTIFY_HOUR")
}
