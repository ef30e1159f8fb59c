package ipcsession

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Dialer opens a connection to the service class/name.
type Dialer interface {
	Dial(ctx context.Context, class, name string) (net.Conn, error)
}

// UnixDialer connects to the unix socket <Dir>/<class>/<name>.
type UnixDialer struct {
	Dir     string
	Timeout time.Duration
}

// Path returns the socket path of class/name.
func (d UnixDialer) Path(class, name string) string {
	return filepath.Join(d.Dir, class, name)
}

// Dial connects and marks the socket close-on-exec.
func (d UnixDialer) Dial(ctx context.Context, class, name string) (net.Conn, error) {
	dialer := net.Dialer{
		Timeout: d.Timeout,
		Control: func(_, _ string, raw syscall.RawConn) error {
			return raw.Control(func(fd uintptr) {
				unix.CloseOnExec(int(fd))
			})
		},
	}
	path := d.Path(class, name)
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("connect to %s/%s service: %w", class, name, err)
	}
	return conn, nil
}
