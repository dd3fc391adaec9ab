package main

// Peek/Poke FPGA registers over PCI.
//
// Usage:
//
//    pk2 [-dev 10EE:903F] [-region 0] REG [VALUE]
//
// where REG is a register name (load_f0, load_f1) or a byte offset
// into the PCI region, e.g. 0x1008.  With no VALUE, the register is
// read and printed; otherwise VALUE is written to it.

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/jbrzusto/loadfifo/fpga"
	"github.com/jbrzusto/loadfifo/pci"
	"github.com/tebeka/atexit"
)

func main() {
	atexit.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run does everything main does and returns the exit status.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pk2", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dev := fs.String("dev", "10EE:903F", "PCI vendor:device id")
	region := fs.Int("region", 0, "index of the memory region")
	sysfs := fs.String("sysfs", pci.SYSFS_DEVICES, "sysfs PCI device directory")
	verbose := fs.Bool("v", false, "log device details")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: pk2 [flags] REG [VALUE]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fs.Usage()
		return 1
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	off, err := regOffset(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	var value uint32
	poke := fs.NArg() == 2
	if poke {
		v, err := strconv.ParseUint(fs.Arg(1), 0, 32)
		if err != nil {
			fmt.Fprintf(stderr, "bad value %q: %v\n", fs.Arg(1), err)
			return 1
		}
		value = uint32(v)
	}

	id, err := pci.ParseID(*dev)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	d, err := pci.Open(*sysfs, id, log)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer d.Close()
	r, err := d.Region(*region)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	if poke {
		if err := r.WriteReg(off, value); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return 0
	}
	v, err := r.ReadReg(off)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintf(stdout, "0x%05x: 0x%08x (%d)\n", off, v, v)
	return 0
}

// regOffset converts a register name or number into an offset.
func regOffset(s string) (uint32, error) {
	if off, ok := fpga.Lookup(s); ok {
		return off, nil
	}
	off, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown register %q", s)
	}
	return uint32(off), nil
}
