package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TempSuffix marks in-flight temp files written by WriteFileAtomic.
const TempSuffix = ".tmp"

// rename is swapped in tests to simulate a crash between write and rename.
var rename = os.Rename

// WriteFileAtomic writes data to a temp file next to path, fsyncs it, and
// renames it over path. Readers see either the old content or the new content,
// never a truncated file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return writeViaTemp(path, data, perm, rename)
}

// WriteFileExclusive is WriteFileAtomic for write-once files: it fails with
// os.ErrExist instead of replacing a file that is already there.
func WriteFileExclusive(path string, data []byte, perm os.FileMode) error {
	return writeViaTemp(path, data, perm, LinkNoClobber)
}

// LinkNoClobber moves the finished file tmp to path unless path exists, in
// which case the error matches os.ErrExist and tmp is left alone.
func LinkNoClobber(tmp, path string) error {
	if err := os.Link(tmp, path); err != nil {
		return err
	}
	_ = os.Remove(tmp)
	return nil
}

func writeViaTemp(path string, data []byte, perm os.FileMode, commit func(tmp, path string) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*"+TempSuffix)
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := commit(tmpName, path); err != nil {
		return fmt.Errorf("commit %s: %w", path, err)
	}
	committed = true
	syncDir(dir)
	return nil
}

// RemoveStaleTemps deletes temp files a crashed writer left next to path.
func RemoveStaleTemps(path string) (int, error) {
	dir := filepath.Dir(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	prefix := "." + filepath.Base(path) + "."
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, TempSuffix) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err == nil {
			removed++
		}
	}
	return removed, nil
}

// syncDir makes the rename durable. Not all platforms allow it; failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
