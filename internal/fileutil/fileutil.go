// Package fileutil creates the owner-only files and directories that hold
// exported mail and the index.
//
// On Unix, CreatePrivate refuses to follow a symlink in the final path
// component. On Windows, newly created paths get a DACL restricting
// access to the current user.
package fileutil

import "os"

const (
	// DirPerm is the mode for directories holding mail data.
	DirPerm os.FileMode = 0700

	// FilePerm is the mode for files holding mail data.
	FilePerm os.FileMode = 0600
)

const createFlags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
