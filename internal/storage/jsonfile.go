package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/deusflow/aidigest/internal/errs"
)

// ReadJSON decodes the file at path into v. It reports found=false for a
// missing or empty file and leaves v untouched.
func ReadJSON(path string, v any) (found bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, &errs.PersistenceError{Op: "read", Path: path, Err: err}
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, &errs.ParseError{What: filepath.Base(path), Err: err}
	}
	return true, nil
}

// WriteJSONAtomic writes v as indented JSON. The data goes to a temp file in
// the same directory which is synced and renamed over path, so readers see
// either the old or the new content.
func WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &errs.PersistenceError{Op: "marshal", Path: path, Err: err}
	}
	return WriteFileAtomic(path, append(data, '\n'), 0o644)
}

// WriteFileAtomic is the byte-level variant of WriteJSONAtomic.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &errs.PersistenceError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return &errs.PersistenceError{Op: "create temp", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return &errs.PersistenceError{Op: "write", Path: tmpName, Err: err}
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return &errs.PersistenceError{Op: "sync", Path: tmpName, Err: err}
	}
	if err = tmp.Close(); err != nil {
		return &errs.PersistenceError{Op: "close", Path: tmpName, Err: err}
	}
	if err = os.Chmod(tmpName, perm); err != nil {
		return &errs.PersistenceError{Op: "chmod", Path: tmpName, Err: err}
	}
	if err = os.Rename(tmpName, path); err != nil {
		return &errs.PersistenceError{Op: "rename", Path: path, Err: fmt.Errorf("from %s: %w", tmpName, err)}
	}
	return nil
}
