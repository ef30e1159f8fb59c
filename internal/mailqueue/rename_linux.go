//go:build linux

package mailqueue

import (
	"errors"

	"golang.org/x/sys/unix"
)

// renameNoReplace moves oldpath to newpath, failing with EEXIST instead of
// replacing an existing file.
func renameNoReplace(oldpath, newpath string) error {
	err := unix.Renameat2(unix.AT_FDCWD, oldpath, unix.AT_FDCWD, newpath, unix.RENAME_NOREPLACE)
	if errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EINVAL) {
		return linkRename(oldpath, newpath)
	}
	return err
}
