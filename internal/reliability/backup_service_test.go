package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotDatabase(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "ledger.db")

	db, err := sql.Open("sqlite", srcPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO t (v) VALUES ('hello')`)
	require.NoError(t, err)

	svc := NewBackupService(nil, nil, dir, zerolog.Nop())
	destPath := filepath.Join(dir, "snapshot.db")
	require.NoError(t, svc.snapshotDatabase(context.Background(), db, destPath))

	// The snapshot stands alone as a complete database.
	snap, err := sql.Open("sqlite", destPath)
	require.NoError(t, err)
	defer snap.Close()

	var v string
	require.NoError(t, snap.QueryRow(`SELECT v FROM t`).Scan(&v))
	assert.Equal(t, "hello", v)
}

func TestCreateArchiveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.db"), []byte("db-a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.db"), []byte("db-b"), 0o644))

	archivePath := filepath.Join(dir, "out.tar.gz")
	require.NoError(t, createArchive(archivePath, dir, []string{"a.db", "b.db"}))

	f, err := os.Open(archivePath)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	contents := make(map[string]string)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		contents[hdr.Name] = string(data)
	}

	assert.Equal(t, map[string]string{"a.db": "db-a", "b.db": "db-b"}, contents)
}

func TestCalculateChecksum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	sum, err := calculateChecksum(path)
	require.NoError(t, err)
	assert.Contains(t, sum, "sha256:")

	same, err := calculateChecksum(path)
	require.NoError(t, err)
	assert.Equal(t, sum, same)
}
