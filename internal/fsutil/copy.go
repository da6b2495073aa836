// Package fsutil provides the recursive file copy used by the worktree-copy
// action and the worktree manager's post-create copy hooks, grounded on
// godirwalk for fast directory traversal.
package fsutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/karrick/godirwalk"
)

// DirPermissions is the mode used for directories created by RecursiveCopy.
const DirPermissions = 0o755

// RecursiveCopy copies from (a file or directory) to the destination path
// to, creating intermediate directories as needed. Symlinks are recreated
// as symlinks; a symlink to a directory found during the walk becomes an
// empty directory and its target is not descended into.
func RecursiveCopy(from, to string) error {
	info, err := os.Lstat(from)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return copyFile(from, to, info.Mode())
	}

	return godirwalk.Walk(from, &godirwalk.Options{
		Unsorted:            true,
		AllowNonDirectory:   true,
		FollowSymbolicLinks: false,
		Callback: func(name string, dirent *godirwalk.Dirent) error {
			rel, err := filepath.Rel(from, name)
			if err != nil {
				return err
			}
			dest := filepath.Join(to, rel)

			isDir, err := dirent.IsDirOrSymlinkToDir()
			if err != nil {
				var pathErr *os.PathError
				if errors.As(err, &pathErr) {
					return godirwalk.SkipThis
				}
				return err
			}
			if isDir {
				return os.MkdirAll(dest, DirPermissions)
			}

			fi, err := os.Lstat(name)
			if err != nil {
				return err
			}
			return copyFile(name, dest, fi.Mode())
		},
		ErrorCallback: func(pathname string, err error) godirwalk.ErrorAction {
			var pathErr *os.PathError
			if errors.As(err, &pathErr) {
				return godirwalk.SkipNode
			}
			return godirwalk.Halt
		},
	})
}

func copyFile(from, to string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(to), DirPermissions); err != nil {
		return err
	}

	if mode&os.ModeSymlink != 0 {
		dest, err := os.Readlink(from)
		if err != nil {
			return err
		}
		if err := os.Remove(to); err != nil && !os.IsNotExist(err) {
			return err
		}
		return os.Symlink(dest, to)
	}

	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(to, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}
