// Interface to the FIFO loader registers of the FPGA.
//
// The FPGA sits behind a PCI endpoint and exposes its AXI register
// space through a memory-mapped resource region.  Two of those
// registers feed hardware FIFOs: each 32-bit write to a load register
// pushes one word into the corresponding FIFO.
//
// The register interface has no ready or backpressure signal, and the
// FIFOs drain at a finite rate, so words are written with a fixed
// delay between them.
package fpga

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

const (
	BASE_ADDR      = 0x01000                    // Offset of the FIFO loader block from the start of the PCI region
	LOAD_F0_OFFSET = 0x08                       // Offset of the FIFO 1 load register within the block
	LOAD_F1_OFFSET = 0x0C                       // Offset of the FIFO 2 load register within the block
	REG_LOAD_F0    = BASE_ADDR + LOAD_F0_OFFSET // FIFO 1 load register
	REG_LOAD_F1    = BASE_ADDR + LOAD_F1_OFFSET // FIFO 2 load register
	WRITE_DELAY    = 100 * time.Microsecond     // Pause after each word so the FIFO can drain
)

// FIFO selects one of the two hardware FIFOs.
type FIFO int

const (
	FIFO1 FIFO = 1
	FIFO2 FIFO = 2
)

// ErrBadFIFO is returned by ParseFIFO for anything other than 1 or 2.
var ErrBadFIFO = errors.New("fifo number must be 1 or 2")

// ParseFIFO converts a command line argument into a FIFO.
func ParseFIFO(s string) (FIFO, error) {
	n, err := strconv.Atoi(s)
	if err != nil || !FIFO(n).Valid() {
		return 0, ErrBadFIFO
	}
	return FIFO(n), nil
}

// Valid is true for FIFO1 and FIFO2.
func (f FIFO) Valid() bool {
	return f == FIFO1 || f == FIFO2
}

// Addr returns the load register for f in a block at base.  Anything
// other than FIFO1 gets the FIFO 2 register.
func (f FIFO) Addr(base uint32) uint32 {
	if f == FIFO1 {
		return base + LOAD_F0_OFFSET
	}
	return base + LOAD_F1_OFFSET
}

func (f FIFO) String() string {
	return "fifo" + strconv.Itoa(int(f))
}

// regNames maps register names used on the command line to their
// offsets in the PCI region.
var regNames = map[string]uint32{
	"load_f0": REG_LOAD_F0,
	"load_f1": REG_LOAD_F1,
}

// Lookup returns the offset of a named register.
func Lookup(name string) (uint32, bool) {
	off, ok := regNames[name]
	return off, ok
}

// Registers is a block of 32-bit device registers addressed by byte
// offset.
type Registers interface {
	WriteReg(offset, value uint32) error
}

// Loader writes vectors into a FIFO.
type Loader struct {
	regs  Registers
	base  uint32
	delay time.Duration
	sleep func(time.Duration)
	log   *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithBase sets the offset of the loader block in the region; the
// default is BASE_ADDR.
func WithBase(base uint32) Option {
	return func(l *Loader) { l.base = base }
}

// WithDelay sets the pause after each word; the default is
// WRITE_DELAY.
func WithDelay(d time.Duration) Option {
	return func(l *Loader) { l.delay = d }
}

func WithLogger(log *slog.Logger) Option {
	return func(l *Loader) { l.log = log }
}

// WithSleep replaces time.Sleep.
func WithSleep(sleep func(time.Duration)) Option {
	return func(l *Loader) { l.sleep = sleep }
}

// New returns a Loader writing to regs.
func New(regs Registers, opts ...Option) *Loader {
	l := &Loader{
		regs:  regs,
		base:  BASE_ADDR,
		delay: WRITE_DELAY,
		sleep: time.Sleep,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load writes data, in order, one word per register write, into the
// given FIFO, pausing after each word.  The first failed write stops
// the load; words already written stay in the FIFO.
func (l *Loader) Load(fifo FIFO, data []uint32) error {
	addr := fifo.Addr(l.base)
	l.log.Info("loading fifo", "fifo", fifo, "reg", fmt.Sprintf("0x%05x", addr), "words", len(data), "delay", l.delay)
	start := time.Now()
	for i, v := range data {
		if err := l.regs.WriteReg(addr, v); err != nil {
			return fmt.Errorf("%s: word %d of %d: %w", fifo, i+1, len(data), err)
		}
		l.sleep(l.delay)
	}
	l.log.Debug("fifo loaded", "fifo", fifo, "words", len(data), "elapsed", time.Since(start))
	return nil
}

// DryRun is a Registers that logs writes instead of doing them.
type DryRun struct {
	Log *slog.Logger
}

func (d DryRun) WriteReg(offset, value uint32) error {
	d.Log.Info("write", "reg", fmt.Sprintf("0x%05x", offset), "value", fmt.Sprintf("0x%08x", value))
	return nil
}
