package main

// Load a vector file into one of the FPGA's hardware FIFOs.
//
// Usage:
//
//    loadfifo <1|2> <filename>
//
// The file holds comma-separated 32-bit values (decimal or 0x hex),
// with blank lines and "#" or "//" comment lines allowed.  Each value
// is written, in order, to the load register of the chosen FIFO.

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jbrzusto/loadfifo/fpga"
	"github.com/jbrzusto/loadfifo/pci"
	"github.com/jbrzusto/loadfifo/vector"
	"github.com/tebeka/atexit"
)

const usage = "usage: loadfifo <1|2> <filename>"

func main() {
	atexit.Exit(run(os.Args[1:], os.Stdout, os.Stderr, func() (Config, bool, error) {
		return loadConfig(configPaths...)
	}))
}

// run does everything main does and returns the exit status.
// Arguments are checked before the config is loaded, and the file is
// read before the device is touched.
func run(args []string, stdout, stderr io.Writer, config func() (Config, bool, error)) int {
	if len(args) != 2 {
		fmt.Fprintln(stdout, usage)
		return 1
	}
	fifo, err := fpga.ParseFIFO(args[0])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	cfg, found, err := config()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	log := newLogger(cfg.LogLevel, stderr)
	if !found {
		log.Debug("no config file; using defaults")
	}
	if err := execute(cfg, fifo, args[1], log, stderr); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

// execute is the main body of the program.  Dry run writes are
// reported on stderr.
func execute(cfg Config, fifo fpga.FIFO, path string, log *slog.Logger, stderr io.Writer) error {
	var opts []vector.Option
	if cfg.Strict {
		opts = append(opts, vector.Strict())
	}
	data, err := vector.Read(path, opts...)
	if err != nil {
		return err
	}
	log.Debug("read vector file", "path", path, "words", len(data))

	regs, done, err := openRegisters(cfg, log, stderr)
	if err != nil {
		return err
	}
	defer done()

	return fpga.New(regs,
		fpga.WithBase(cfg.BaseAddr),
		fpga.WithDelay(cfg.WriteDelay),
		fpga.WithLogger(log),
	).Load(fifo, data)
}

// openRegisters maps the configured PCI region, or returns a logging
// stand-in for a dry run.  done releases the device.
func openRegisters(cfg Config, log *slog.Logger, stderr io.Writer) (regs fpga.Registers, done func(), err error) {
	if cfg.DryRun {
		return fpga.DryRun{Log: newDryRunLogger(cfg.LogLevel, stderr)}, func() {}, nil
	}
	id, err := pci.ParseID(cfg.Device)
	if err != nil {
		return nil, nil, err
	}
	dev, err := pci.Open(cfg.Sysfs, id, log)
	if err != nil {
		return nil, nil, err
	}
	r, err := dev.Region(cfg.Region)
	if err != nil {
		dev.Close()
		return nil, nil, err
	}
	log.Debug("using pci region", "device", dev, "region", r.Resource)
	return r, func() {
		if err := dev.Close(); err != nil {
			log.Warn("closing pci device", "device", dev, "err", err)
		}
	}, nil
}
