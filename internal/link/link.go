// Package link owns the byte transport to the peripheral board and frames it
// into newline-terminated text records in both directions.
package link

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"go.bug.st/serial"
)

var ErrClosed = errors.New("link: connection closed")

// Conn frames a byte stream into lines. Reads are expected to be owned by a
// single reader (the status monitor on the host, the board loop on the
// device); writers serialize above this layer.
type Conn struct {
	rwc    io.ReadWriteCloser
	reader *bufio.Reader

	mu     sync.Mutex
	closed bool
}

func New(rwc io.ReadWriteCloser) *Conn {
	return &Conn{rwc: rwc, reader: bufio.NewReader(rwc)}
}

// Open connects to the board. A port of the form "tcp:host:port" dials a
// simulated board; anything else is treated as a serial device name
// ("/dev/ttyUSB0", "COM6") opened at the given bit rate.
func Open(port string, baud int) (*Conn, error) {
	if addr, ok := strings.CutPrefix(port, "tcp:"); ok {
		return DialTCP(addr)
	}
	return OpenSerial(port, baud)
}

func OpenSerial(port string, baud int) (*Conn, error) {
	p, err := serial.Open(port, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}
	return New(p), nil
}

func DialTCP(addr string) (*Conn, error) {
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return New(c), nil
}

// Pipe returns two connected in-memory endpoints, one per side of the wire.
// Used by tests and by in-process board simulation.
func Pipe() (*Conn, *Conn) {
	a, b := net.Pipe()
	return New(a), New(b)
}

// ReadLine blocks for the next newline-terminated record, with the line
// ending (and any stray CR) stripped.
func (c *Conn) ReadLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		if len(line) == 0 {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return "", ErrClosed
			}
			return "", err
		}
		// Partial line at stream end; surface what we have.
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// WriteLine appends the newline terminator and writes the record whole.
func (c *Conn) WriteLine(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if _, err := io.WriteString(c.rwc, line+"\n"); err != nil {
		return fmt.Errorf("failed to write line: %w", err)
	}
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rwc.Close()
}
