package db

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestMigrationFiles_SortedSQLOnly(t *testing.T) {
	orig := migrationsFS
	t.Cleanup(func() { migrationsFS = orig })

	migrationsFS = fstest.MapFS{
		"002_interest.sql": {Data: []byte("SELECT 1;")},
		"001_init.sql":     {Data: []byte("SELECT 1;")},
		"README.md":        {Data: []byte("notes")},
		"old/003.sql":      {Data: []byte("SELECT 1;")},
	}

	files, err := migrationFiles()
	require.NoError(t, err)
	require.Equal(t, []string{"001_init.sql", "002_interest.sql"}, files)
}

func TestMigrationFiles_EmbeddedSchema(t *testing.T) {
	files, err := migrationFiles()
	require.NoError(t, err)
	require.Contains(t, files, "001_init.sql")
}
