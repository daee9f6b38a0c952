//go:build windows

package fileutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// restrictToCurrentUser replaces the DACL on path with a single entry
// granting GENERIC_ALL to the current user. Directories pass the entry on
// to their children.
func restrictToCurrentUser(path string) error {
	user, err := windows.GetCurrentProcessToken().GetTokenUser()
	if err != nil {
		return fmt.Errorf("fileutil: get current user SID for %s: %w", path, err)
	}

	var inherit uint32 = windows.NO_INHERITANCE
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		inherit = windows.CONTAINER_INHERIT_ACE | windows.OBJECT_INHERIT_ACE
	}

	acl, err := windows.ACLFromEntries([]windows.EXPLICIT_ACCESS{{
		AccessPermissions: windows.GENERIC_ALL,
		AccessMode:        windows.SET_ACCESS,
		Inheritance:       inherit,
		Trustee: windows.TRUSTEE{
			TrusteeForm:  windows.TRUSTEE_IS_SID,
			TrusteeType:  windows.TRUSTEE_IS_USER,
			TrusteeValue: windows.TrusteeValueFromSID(user.User.Sid),
		},
	}}, nil)
	if err != nil {
		return fmt.Errorf("fileutil: build ACL for %s: %w", path, err)
	}

	info := windows.DACL_SECURITY_INFORMATION | windows.PROTECTED_DACL_SECURITY_INFORMATION
	if err := windows.SetNamedSecurityInfo(path, windows.SE_FILE_OBJECT,
		windows.SECURITY_INFORMATION(info), nil, nil, acl, nil); err != nil {
		return fmt.Errorf("fileutil: set DACL on %s: %w", path, err)
	}
	return nil
}

// MkdirPrivate creates path and any missing parents, restricting every
// directory it created to the current user. DACL failures are logged.
func MkdirPrivate(path string) error {
	var created []string
	for p := filepath.Clean(path); ; {
		if _, err := os.Stat(p); err == nil {
			break
		}
		created = append(created, p)
		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		p = parent
	}

	if err := os.MkdirAll(path, DirPerm); err != nil {
		return err
	}
	for _, dir := range created {
		if err := restrictToCurrentUser(dir); err != nil {
			slog.Warn("fileutil: best-effort DACL failed", "path", dir, "err", err)
		}
	}
	return nil
}

// CreatePrivate creates or truncates path for writing and restricts it to
// the current user. Reparse points are followed.
func CreatePrivate(path string) (*os.File, error) {
	f, err := os.OpenFile(path, createFlags, FilePerm)
	if err != nil {
		return nil, err
	}
	if err := restrictToCurrentUser(path); err != nil {
		slog.Warn("fileutil: best-effort DACL failed", "path", path, "err", err)
	}
	return f, nil
}
