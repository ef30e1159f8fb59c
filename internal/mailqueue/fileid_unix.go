//go:build unix

package mailqueue

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// inodeIdentity returns the inode number of f in upper-case hex.
func inodeIdentity(f *os.File) (string, error) {
	raw, err := f.SyscallConn()
	if err != nil {
		return "", fmt.Errorf("file identity: %w", err)
	}
	var st unix.Stat_t
	var statErr error
	if err := raw.Control(func(fd uintptr) {
		statErr = unix.Fstat(int(fd), &st)
	}); err != nil {
		return "", fmt.Errorf("file identity: %w", err)
	}
	if statErr != nil {
		return "", fmt.Errorf("fstat %s: %w", f.Name(), statErr)
	}
	return fmt.Sprintf("%X", uint64(st.Ino)), nil
}

// reopenAs returns a handle on the same open file as f, named path, and
// closes f. The duplicate descriptor is close-on-exec.
func reopenAs(f *os.File, path string) (*os.File, error) {
	raw, err := f.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("rename handle: %w", err)
	}
	var dup int
	var dupErr error
	if err := raw.Control(func(fd uintptr) {
		dup, dupErr = unix.FcntlInt(fd, unix.F_DUPFD_CLOEXEC, 0)
	}); err != nil {
		return nil, fmt.Errorf("rename handle: %w", err)
	}
	if dupErr != nil {
		return nil, fmt.Errorf("dup %s: %w", f.Name(), dupErr)
	}
	_ = f.Close()
	return os.NewFile(uintptr(dup), path), nil
}
