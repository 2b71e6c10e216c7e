//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package agent

func (c *Conn) pollReadable() bool {
	return c.peekReadable()
}
