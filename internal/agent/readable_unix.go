//go:build linux || darwin || freebsd || netbsd || openbsd

package agent

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// pollReadable polls the socket with a zero timeout.
func (c *Conn) pollReadable() bool {
	sc, ok := c.conn.(syscall.Conn)
	if !ok {
		return c.peekReadable()
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return c.peekReadable()
	}
	var (
		ready   bool
		pollErr error
	)
	ctrlErr := raw.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		for {
			n, err := unix.Poll(fds, 0)
			if err == unix.EINTR {
				continue
			}
			if err != nil {
				pollErr = err
				return
			}
			ready = n > 0 && fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0
			return
		}
	})
	if ctrlErr != nil {
		// Closed descriptor: report readable so the next read surfaces the reset.
		return true
	}
	if pollErr != nil {
		return c.peekReadable()
	}
	return ready
}
