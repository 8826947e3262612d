// Package fileutil creates the files cmdgate persists (the audit trail)
// readable by the current user only.
//
// On Unix the mode bits are enforced (0600 files, 0700 directories) and
// pre-existing files are tightened on open. On Windows the mode bits are
// ignored by the kernel, so a protected owner-only DACL is applied instead.
package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrSymlink is returned when the target of an append is a symbolic link.
var ErrSymlink = errors.New("refusing to write through a symbolic link")

// OpenAppend opens path for appending, creating it and its parent
// directory owner-only. A symlink at path is refused so a planted link
// cannot redirect log lines into another file.
func OpenAppend(path string) (*os.File, error) {
	if err := MkdirPrivate(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if fi, err := os.Lstat(path); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrSymlink)
	}
	f, err := openAppend(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}
