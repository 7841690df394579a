package device

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is one open serial connection. Closing it releases the device node.
type Port = io.ReadWriteCloser

// PortOpener opens the serial link for one exchange. Injectable so tests can
// substitute a scripted in-memory device.
type PortOpener interface {
	Open() (Port, error)
}

// readPollInterval bounds each driver read so deadline loops in the protocol
// layer observe zero-byte reads rather than blocking forever.
const readPollInterval = 100 * time.Millisecond

type serialOpener struct {
	device string
	baud   int
}

// NewSerialOpener returns a PortOpener for a real serial device.
func NewSerialOpener(device string, baud int) PortOpener {
	return serialOpener{device: device, baud: baud}
}

func (o serialOpener) Open() (Port, error) {
	p, err := serial.Open(o.device, &serial.Mode{BaudRate: o.baud})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", o.device, err)
	}
	if err := p.SetReadTimeout(readPollInterval); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", o.device, err)
	}
	return p, nil
}
