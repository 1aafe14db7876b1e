package utils

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomicReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "links.json")

	require.NoError(t, WriteFileAtomic(path, []byte(`[1]`), 0o644))
	require.NoError(t, WriteFileAtomic(path, []byte(`[1,2]`), 0o644))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(b))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWriteFileAtomicCrashBeforeRenameKeepsCommittedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.json")
	require.NoError(t, WriteFileAtomic(path, []byte(`[{"slug":"a"}]`), 0o644))

	// The process "dies" after the temp file is complete but before rename.
	var leftover string
	rename = func(oldpath, _ string) error {
		leftover = oldpath
		return errors.New("killed")
	}
	t.Cleanup(func() { rename = os.Rename })

	err := WriteFileAtomic(path, []byte(`[{"slug":"a"},{"slug":"b"}]`), 0o644)
	require.Error(t, err)
	require.NotEmpty(t, leftover)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"slug":"a"}]`, string(b))
}

func TestRemoveStaleTemps(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "links.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".links.json.123"+TempSuffix), []byte(`[`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.tmp"), []byte(`x`), 0o644))

	n, err := RemoveStaleTemps(path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.FileExists(t, filepath.Join(dir, "other.tmp"))
	assert.FileExists(t, path)
}

func TestWriteFileExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, WriteFileExclusive(path, []byte(`{}`), 0o644))

	err := WriteFileExclusive(path, []byte(`{"x":1}`), 0o644)
	assert.ErrorIs(t, err, os.ErrExist)

	b, _ := os.ReadFile(path)
	assert.Equal(t, `{}`, string(b))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "the refused write leaves no temp file")
}

func TestLinkNoClobber(t *testing.T) {
	dir := t.TempDir()
	tmp := filepath.Join(dir, ".a.part")
	final := filepath.Join(dir, "a.pdf")
	require.NoError(t, os.WriteFile(tmp, []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(final, []byte("old"), 0o644))

	err := LinkNoClobber(tmp, final)
	assert.ErrorIs(t, err, os.ErrExist)
	b, _ := os.ReadFile(final)
	assert.Equal(t, "old", string(b))
	assert.FileExists(t, tmp)

	other := filepath.Join(dir, "b.pdf")
	require.NoError(t, LinkNoClobber(tmp, other))
	b, _ = os.ReadFile(other)
	assert.Equal(t, "new", string(b))
	assert.NoFileExists(t, tmp)
}
