package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackend_ReadMissing(t *testing.T) {
	b := NewFileBackend(filepath.Join(t.TempDir(), "db.json"), t.TempDir())

	_, err := b.Read(context.Background())
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestFileBackend_WriteRead(t *testing.T) {
	dir := t.TempDir()
	b := NewFileBackend(filepath.Join(dir, "nested", "db.json"), t.TempDir())
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, []byte(`{"a":1}`)))
	require.NoError(t, b.Write(ctx, []byte(`{"a":2}`)))

	data, err := b.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp artifacts left behind")
}

func TestFileBackend_CrashBeforeReplaceKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.json")
	b := NewFileBackend(path, t.TempDir())
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, []byte(`{"version":"original"}`)))
	original, err := os.ReadFile(path)
	require.NoError(t, err)

	var tmpSeen string
	b.beforeRename = func(tmpPath string) error {
		tmpSeen = tmpPath
		written, err := os.ReadFile(tmpPath)
		require.NoError(t, err)
		require.Equal(t, `{"version":"next"}`, string(written))
		return errors.New("process killed")
	}

	err = b.Write(ctx, []byte(`{"version":"next"}`))
	require.ErrorIs(t, err, ErrStorageIO)

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, current)
	assert.NoFileExists(t, tmpSeen)
}

func TestFileBackend_StaleTempIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.json")
	b := NewFileBackend(path, t.TempDir())
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, []byte(`{"ok":true}`)))
	// Leftover of a process that died after writing its temp file.
	require.NoError(t, os.WriteFile(path+".tmp-12345", []byte(`{"half`), 0o644))

	data, err := b.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))
}

func TestFileBackend_QuarantineAndSnapshot(t *testing.T) {
	dir := t.TempDir()
	backups := filepath.Join(t.TempDir(), "backups")
	path := filepath.Join(dir, "db.json")
	b := NewFileBackend(path, backups)
	ctx := context.Background()
	at := time.Date(2025, 4, 8, 13, 14, 15, 0, time.UTC)

	require.NoError(t, b.Write(ctx, []byte("garbage")))

	name, err := b.Snapshot(ctx, []byte("garbage"), at)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(backups, "backup_20250408_131415.json"), name)

	target, err := b.Quarantine(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, path+".corrupt.1744118055", target)
	assert.NoFileExists(t, path)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "garbage", string(data))
}

func TestFileBackend_RepeatedNamesDoNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	backups := filepath.Join(t.TempDir(), "backups")
	path := filepath.Join(dir, "db.json")
	b := NewFileBackend(path, backups)
	ctx := context.Background()
	at := time.Date(2025, 4, 8, 10, 0, 0, 0, time.UTC)

	first, err := b.Snapshot(ctx, []byte("one"), at)
	require.NoError(t, err)
	second, err := b.Snapshot(ctx, []byte("two"), at)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, filepath.Join(backups, "backup_20250408_100000_2.json"), second)

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))

	require.NoError(t, b.Write(ctx, []byte("bad-1")))
	q1, err := b.Quarantine(ctx, at)
	require.NoError(t, err)
	require.NoError(t, b.Write(ctx, []byte("bad-2")))
	q2, err := b.Quarantine(ctx, at)
	require.NoError(t, err)
	assert.NotEqual(t, q1, q2)

	data, err = os.ReadFile(q1)
	require.NoError(t, err)
	assert.Equal(t, "bad-1", string(data))
	data, err = os.ReadFile(q2)
	require.NoError(t, err)
	assert.Equal(t, "bad-2", string(data))
}
