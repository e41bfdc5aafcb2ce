package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsMatchDirectory(t *testing.T) {
	src, err := Source("")
	require.NoError(t, err)
	require.NoError(t, ValidateFS(src))

	embeddedNames, err := fs.Glob(src, "*.sql")
	require.NoError(t, err)
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	require.Len(t, embeddedNames, len(onDisk))
}

func TestValidateFSRejectsBadFiles(t *testing.T) {
	good := "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n"
	cases := map[string]fstest.MapFS{
		"bad name": {
			"create_orders.sql": {Data: []byte(good)},
		},
		"duplicate version": {
			"20260301090000_a.sql": {Data: []byte(good)},
			"20260301090000_b.sql": {Data: []byte(good)},
		},
		"missing down": {
			"20260301090000_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")},
		},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, ValidateFS(fsys))
		})
	}

	assert.NoError(t, ValidateFS(fstest.MapFS{
		"20260301090000_a.sql": {Data: []byte(good)},
		"README.md":            {Data: []byte("ignored")},
	}))
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()

	path, err := CreateSQLMigration(dir, "Add Payout Index!")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_add_payout_index.sql"), path)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "-- +goose Up")
	assert.Contains(t, string(body), "-- +goose Down")
	assert.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "!!!")
	assert.Error(t, err)
}
