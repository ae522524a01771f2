// Package serial drives 16550 compatible UARTs in polled mode.
package serial

import "abos/kernel/cpu"

// COM1Base is the I/O port base of the first serial port on PC hardware.
const COM1Base = uint16(0x3f8)

// Register offsets from the port base.
const (
	regData        = 0
	regIntEnable   = 1
	regFIFOControl = 2
	regLineControl = 3
	regModemCtrl   = 4
	regLineStatus  = 5

	lineControlDLAB = 0x80
	lineControl8N1  = 0x03
	lineStatusTHRE  = 0x20

	// maxTxPolls bounds the wait for the transmit register so that a
	// missing UART cannot hang the kernel.
	maxTxPolls = 1 << 16
)

var (
	// The following functions are used by tests to mock port I/O.
	portWriteByteFn = cpu.PortWriteByte
	portReadByteFn  = cpu.PortReadByte
)

// Port is a serial port that implements io.Writer.
type Port struct {
	Base uint16
}

// Init programs the port for 38400 baud, 8 data bits, no parity and one stop
// bit with FIFOs enabled and interrupts disabled.
func (p *Port) Init() {
	portWriteByteFn(p.Base+regIntEnable, 0x00)
	portWriteByteFn(p.Base+regLineControl, lineControlDLAB)
	portWriteByteFn(p.Base+regData, 0x03)
	portWriteByteFn(p.Base+regIntEnable, 0x00)
	portWriteByteFn(p.Base+regLineControl, lineControl8N1)
	portWriteByteFn(p.Base+regFIFOControl, 0xc7)
	portWriteByteFn(p.Base+regModemCtrl, 0x0b)
}

// Write transmits p translating each '\n' into "\r\n". It never fails; bytes
// are dropped if the transmitter does not become ready.
func (p *Port) Write(data []byte) (int, error) {
	for _, b := range data {
		if b == '\n' {
			p.writeByte('\r')
		}
		p.writeByte(b)
	}

	return len(data), nil
}

func (p *Port) writeByte(b byte) {
	for polls := 0; portReadByteFn(p.Base+regLineStatus)&lineStatusTHRE == 0; polls++ {
		if polls == maxTxPolls {
			return
		}
	}

	portWriteByteFn(p.Base+regData, b)
}
