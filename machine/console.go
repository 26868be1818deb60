package machine

import (
	"bufio"
	"io"
	"os"

	"golang.org/x/term"
)

// Console is the synchronous, single-threaded device backing IN/OUT and the
// DOS/BIOS character calls. Grounded on the teacher's consoleIO device (same
// job: the only thing in the codebase that touches os.Stdin/os.Stdout), with
// the goroutine, channel and mutex stripped out — a running program suspends
// the whole process while waiting on a character, it does not hand control
// back to a scheduler, so there is nothing for concurrency to buy here.
type Console struct {
	in     *bufio.Reader
	out    io.Writer
	term   bool
	fd     int
	oldFD  *term.State
	rawOK  bool
}

// NewConsole wires stdin/stdout. If stdin is a terminal, raw mode is
// entered so ReadByte sees one character at a time without waiting for
// Enter; callers should defer Restore() to return the terminal to its
// original mode.
func NewConsole() *Console {
	c := &Console{
		in:  bufio.NewReader(os.Stdin),
		out: os.Stdout,
		fd:  int(os.Stdin.Fd()),
	}
	if term.IsTerminal(c.fd) {
		if st, err := term.MakeRaw(c.fd); err == nil {
			c.term = true
			c.rawOK = true
			c.oldFD = st
		}
	}
	return c
}

// Restore returns a terminal put into raw mode back to cooked mode. Safe to
// call on a console that never entered raw mode.
func (c *Console) Restore() {
	if c.rawOK {
		term.Restore(c.fd, c.oldFD)
		c.rawOK = false
	}
}

// ReadByte reads exactly one byte, blocking, the backing call for IN on the
// keyboard port and INT 21h/0x01.
func (c *Console) ReadByte() (byte, error) {
	return c.in.ReadByte()
}

// ReadLine reads up to and including the next newline, stripping it,
// supporting a future line-input service call.
func (c *Console) ReadLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line, nil
}

// WriteByte writes one byte, the backing call for OUT and INT 21h/0x02,
// INT 10h/0x0E.
func (c *Console) WriteByte(b byte) error {
	_, err := c.out.Write([]byte{b})
	return err
}

// WriteString writes s verbatim, the backing call for INT 21h/0x09 after the
// caller has already stripped the terminating '$'.
func (c *Console) WriteString(s string) error {
	_, err := io.WriteString(c.out, s)
	return err
}

// InPort and OutPort model the handful of ports this emulator exposes: port
// 0 is the console data port (IN blocks for one byte, OUT writes one byte);
// every other port reads as zero and discards writes, since nothing in this
// emulator's supported instruction set addresses anything beyond the
// console.
func (c *Console) InPort(port uint16) (uint16, error) {
	if port != 0 {
		return 0, nil
	}
	b, err := c.ReadByte()
	if err != nil {
		return 0, err
	}
	return uint16(b), nil
}

func (c *Console) OutPort(port uint16, value uint16) error {
	if port != 0 {
		return nil
	}
	return c.WriteByte(byte(value))
}
