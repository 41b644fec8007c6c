// Package serial models the kernel's UART: a byte port that is written
// synchronously and read without blocking, plus the helpers the serial
// monitor task uses to interpret input.
package serial

import (
	"errors"
	"fmt"

	"hearth/internal/irq"
)

// DefaultFIFO is the receive buffer size in bytes.
const DefaultFIFO = 1024

// ErrNoLoopback is returned by LoopbackTest for ports without a loopback mode.
var ErrNoLoopback = errors.New("serial: port has no loopback mode")

// Port is a serial port. TryRead must never block: the monitor task polls
// it from the executor.
type Port interface {
	TryRead() (byte, bool)
	Write(p []byte) (int, error)
	Close() error
}

// Looper is implemented by ports that can route transmitted bytes straight
// back to the receiver.
type Looper interface {
	SetLoopback(on bool) error
}

// BufferPort is an in-memory port. Input is injected with Feed, typically
// from interrupt context; with loopback on, written bytes are received.
type BufferPort struct {
	mu       irq.Mutex
	rx       []byte
	tx       []byte
	limit    int
	dropped  uint64
	loopback bool
	closed   bool
	onInput  func()
}

// NewBufferPort returns a port with a receive FIFO of fifo bytes. onInput,
// if set, runs after every Feed outside the port lock.
func NewBufferPort(fifo int, onInput func()) *BufferPort {
	if fifo <= 0 {
		fifo = DefaultFIFO
	}
	return &BufferPort{limit: fifo, onInput: onInput}
}

// Feed queues received bytes, dropping what does not fit.
func (p *BufferPort) Feed(data []byte) {
	g := p.mu.Lock()
	p.receive(data)
	g.Unlock()
	if p.onInput != nil {
		p.onInput()
	}
}

func (p *BufferPort) receive(data []byte) {
	room := p.limit - len(p.rx)
	if room < 0 {
		room = 0
	}
	if len(data) > room {
		p.dropped += uint64(len(data) - room)
		data = data[:room]
	}
	p.rx = append(p.rx, data...)
}

// TryRead pops one received byte.
func (p *BufferPort) TryRead() (byte, bool) {
	g := p.mu.Lock()
	defer g.Unlock()
	if len(p.rx) == 0 {
		return 0, false
	}
	b := p.rx[0]
	p.rx = p.rx[1:]
	return b, true
}

// Write transmits data.
func (p *BufferPort) Write(data []byte) (int, error) {
	g := p.mu.Lock()
	defer g.Unlock()
	if p.closed {
		return 0, fmt.Errorf("serial: write on closed port")
	}
	if p.loopback {
		p.receive(data)
		return len(data), nil
	}
	p.tx = append(p.tx, data...)
	return len(data), nil
}

// SetLoopback switches loopback mode.
func (p *BufferPort) SetLoopback(on bool) error {
	g := p.mu.Lock()
	p.loopback = on
	g.Unlock()
	return nil
}

// Transmitted returns and clears bytes written outside loopback mode.
func (p *BufferPort) Transmitted() []byte {
	g := p.mu.Lock()
	defer g.Unlock()
	out := p.tx
	p.tx = nil
	return out
}

// Dropped returns the number of received bytes lost to a full FIFO.
func (p *BufferPort) Dropped() uint64 {
	g := p.mu.Lock()
	defer g.Unlock()
	return p.dropped
}

// Close marks the port closed.
func (p *BufferPort) Close() error {
	g := p.mu.Lock()
	p.closed = true
	g.Unlock()
	return nil
}

// LoopbackTest sends pattern through the port's loopback path and checks
// it comes back unchanged. The port is left with loopback off.
func LoopbackTest(p Port, pattern []byte) error {
	l, ok := p.(Looper)
	if !ok {
		return ErrNoLoopback
	}
	if err := l.SetLoopback(true); err != nil {
		return fmt.Errorf("serial: enable loopback: %w", err)
	}
	defer func() { _ = l.SetLoopback(false) }()

	// Flush stale input so only the echoed pattern is compared.
	for {
		if _, ok := p.TryRead(); !ok {
			break
		}
	}
	if _, err := p.Write(pattern); err != nil {
		return fmt.Errorf("serial: loopback write: %w", err)
	}
	for i, want := range pattern {
		got, ok := p.TryRead()
		if !ok {
			return fmt.Errorf("serial: loopback lost byte %d of %d", i, len(pattern))
		}
		if got != want {
			return fmt.Errorf("serial: loopback byte %d = 0x%02x, want 0x%02x", i, got, want)
		}
	}
	return nil
}

// Describe formats a received byte the way the monitor logs it.
func Describe(b byte) string {
	c := '.'
	if b >= 0x20 && b < 0x7f {
		c = rune(b)
	}
	return fmt.Sprintf("0x%02X = '%c'", b, c)
}
