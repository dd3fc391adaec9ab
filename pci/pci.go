// Memory-mapped access to PCI devices through sysfs.
//
// A device is found by vendor:device id under /sys/bus/pci/devices.
// Its memory BARs are listed in the sysfs "resource" file and each one
// can be mmap()ed from the matching resourceN file, giving user space
// direct access to device registers.
package pci

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"unsafe"
)

const (
	SYSFS_DEVICES  = "/sys/bus/pci/devices" // where the kernel lists PCI devices
	IORESOURCE_IO  = 0x00000100             // resource flag: I/O port space
	IORESOURCE_MEM = 0x00000200             // resource flag: memory space
	NUM_BARS       = 6                      // standard BARs; later lines of "resource" are ROM and bridge windows
)

var (
	// ErrNoDevice means no device with the requested id is present.
	ErrNoDevice = errors.New("pci device not found")

	// ErrNoResources means the device has no memory regions to map.
	ErrNoResources = errors.New("pci device has no memory resources")

	// ErrBadOffset is a register access that is unaligned or outside
	// the region.
	ErrBadOffset = errors.New("bad register offset")

	// ErrClosed is a register access after the device was closed.
	ErrClosed = errors.New("pci device closed")
)

// ID is a vendor/device pair.
type ID struct {
	Vendor, Device uint16
}

// ParseID parses an id in the usual "VVVV:DDDD" hex form, e.g.
// "10EE:903F".
func ParseID(s string) (id ID, err error) {
	v, d, ok := strings.Cut(s, ":")
	if !ok {
		return id, fmt.Errorf("bad pci id %q: want VENDOR:DEVICE", s)
	}
	vn, err := strconv.ParseUint(v, 16, 16)
	if err != nil {
		return id, fmt.Errorf("bad pci vendor in %q: %w", s, err)
	}
	dn, err := strconv.ParseUint(d, 16, 16)
	if err != nil {
		return id, fmt.Errorf("bad pci device in %q: %w", s, err)
	}
	return ID{Vendor: uint16(vn), Device: uint16(dn)}, nil
}

func (id ID) String() string {
	return fmt.Sprintf("%04x:%04x", id.Vendor, id.Device)
}

// Resource is one BAR as reported by sysfs.
type Resource struct {
	Index      int // index of BAR
	Base, Size uint64
	Flags      uint64
}

func (r Resource) IsMem() bool { return r.Flags&IORESOURCE_MEM != 0 }

func (r Resource) String() string {
	return fmt.Sprintf("{%d: 0x%x-0x%x}", r.Index, r.Base, r.Base+r.Size-1)
}

// Find returns the sysfs directory of the first device under sysfs
// with the given id.
func Find(sysfs string, id ID) (string, error) {
	ents, err := os.ReadDir(sysfs)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNoDevice, id, err)
	}
	for _, e := range ents {
		dir := filepath.Join(sysfs, e.Name())
		v, err := readHex(filepath.Join(dir, "vendor"))
		if err != nil {
			continue
		}
		d, err := readHex(filepath.Join(dir, "device"))
		if err != nil {
			continue
		}
		if v == uint64(id.Vendor) && d == uint64(id.Device) {
			return dir, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoDevice, id)
}

func readHex(path string) (uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(b)), 0, 64)
}

// ReadResources returns the memory BARs of the device in dir, in BAR
// order.  Unused BARs, I/O BARs and the ROM are left out.
func ReadResources(dir string) ([]Resource, error) {
	f, err := os.Open(filepath.Join(dir, "resource"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rs []Resource
	s := bufio.NewScanner(f)
	for i := 0; i < NUM_BARS && s.Scan(); i++ {
		var start, end, flags uint64
		if _, err := fmt.Sscanf(s.Text(), "%v %v %v", &start, &end, &flags); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", f.Name(), i+1, err)
		}
		r := Resource{Index: i, Base: start, Flags: flags}
		if end > start {
			r.Size = end - start + 1
		}
		if r.IsMem() && r.Size > 0 {
			rs = append(rs, r)
		}
	}
	return rs, s.Err()
}

// Region is a mapped memory BAR.
type Region struct {
	Resource
	mem []byte
}

// Len is the number of bytes mapped.
func (r *Region) Len() int { return len(r.mem) }

func (r *Region) reg(off uint32) (*uint32, error) {
	if r.mem == nil {
		return nil, ErrClosed
	}
	if off%4 != 0 || uint64(off)+4 > uint64(len(r.mem)) {
		return nil, fmt.Errorf("%w: 0x%x in region %d of 0x%x bytes", ErrBadOffset, off, r.Index, len(r.mem))
	}
	return (*uint32)(unsafe.Pointer(&r.mem[off])), nil
}

// WriteReg does a single 32-bit store at offset off in the region.
func (r *Region) WriteReg(off, v uint32) error {
	p, err := r.reg(off)
	if err != nil {
		return err
	}
	atomic.StoreUint32(p, v)
	return nil
}

// ReadReg does a single 32-bit load at offset off in the region.
func (r *Region) ReadReg(off uint32) (uint32, error) {
	p, err := r.reg(off)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint32(p), nil
}

// Device is an open PCI device with its memory regions mapped.
type Device struct {
	ID      ID
	Path    string // sysfs directory
	regions []*Region
}

// ResourceList returns the mapped regions in BAR order.
func (d *Device) ResourceList() []*Region { return d.regions }

// Region returns the i'th mapped region.
func (d *Device) Region(i int) (*Region, error) {
	if i < 0 || i >= len(d.regions) {
		return nil, fmt.Errorf("pci %s: no region %d (have %d)", d.ID, i, len(d.regions))
	}
	return d.regions[i], nil
}

func (d *Device) String() string { return d.ID.String() + " at " + filepath.Base(d.Path) }

// Close unmaps all regions.  It is safe to call more than once.
func (d *Device) Close() (err error) {
	for _, r := range d.regions {
		if r.mem == nil {
			continue
		}
		if e := unmap(r.mem); e != nil && err == nil {
			err = e
		}
		r.mem = nil
	}
	return
}
