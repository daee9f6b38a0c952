//go:build !unix && !windows

package fileutil

import "os"

func MkdirPrivate(path string) error {
	return os.MkdirAll(path, DirPerm)
}

func CreatePrivate(path string) (*os.File, error) {
	return os.OpenFile(path, createFlags, FilePerm)
}
