package serial

import (
	"fmt"
	"sync"
	"unicode/utf8"

	tty "github.com/mattn/go-tty"
)

// TTYPort backs the serial port with the host terminal. A pump goroutine
// plays the part of the receive interrupt: it blocks on the terminal and
// feeds every rune into the receive FIFO.
type TTYPort struct {
	dev     *tty.TTY
	rx      *BufferPort
	restore func() error
	done    chan struct{}
	once    sync.Once
	pumpErr error
}

// OpenTTY opens device (the controlling terminal when empty) in raw mode.
func OpenTTY(device string, onInput func()) (*TTYPort, error) {
	var (
		dev *tty.TTY
		err error
	)
	if device == "" {
		dev, err = tty.Open()
	} else {
		dev, err = tty.OpenDevice(device)
	}
	if err != nil {
		return nil, fmt.Errorf("serial: open tty %q: %w", device, err)
	}
	restore, err := dev.Raw()
	if err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("serial: raw mode: %w", err)
	}
	p := &TTYPort{
		dev:     dev,
		rx:      NewBufferPort(DefaultFIFO, onInput),
		restore: restore,
		done:    make(chan struct{}),
	}
	go p.pump()
	return p, nil
}

func (p *TTYPort) pump() {
	defer close(p.done)
	var enc [utf8.UTFMax]byte
	for {
		r, err := p.dev.ReadRune()
		if err != nil {
			p.pumpErr = err
			return
		}
		n := utf8.EncodeRune(enc[:], r)
		p.rx.Feed(enc[:n])
	}
}

// TryRead pops one received byte.
func (p *TTYPort) TryRead() (byte, bool) { return p.rx.TryRead() }

// Write sends data to the terminal.
func (p *TTYPort) Write(data []byte) (int, error) {
	return p.dev.Output().Write(data)
}

// Close restores the terminal mode and closes the device.
func (p *TTYPort) Close() error {
	var err error
	p.once.Do(func() {
		if p.restore != nil {
			err = p.restore()
		}
		if cerr := p.dev.Close(); err == nil {
			err = cerr
		}
	})
	return err
}
