//go:build unix

package fileutil

import (
	"os"

	"golang.org/x/sys/unix"
)

// MkdirPrivate creates path and any missing parents with DirPerm.
func MkdirPrivate(path string) error {
	return os.MkdirAll(path, DirPerm)
}

// CreatePrivate creates or truncates path for writing with FilePerm.
// It fails with ELOOP if the final component is a symlink.
func CreatePrivate(path string) (*os.File, error) {
	return os.OpenFile(path, createFlags|unix.O_NOFOLLOW, FilePerm)
}
