//go:build unix

package mailqueue

import "golang.org/x/sys/unix"

// linkRename emulates a no-replace rename with link and unlink. The link
// fails with EEXIST when newpath is taken.
func linkRename(oldpath, newpath string) error {
	if err := unix.Link(oldpath, newpath); err != nil {
		return err
	}
	return unix.Unlink(oldpath)
}
