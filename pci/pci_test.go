package pci

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// fakeDevice creates a sysfs-like device directory under sysfs.
// bars holds the size of each memory BAR; 0 leaves the BAR unused.
func fakeDevice(t *testing.T, sysfs, addr string, id ID, bars ...uint64) string {
	t.Helper()
	dir := filepath.Join(sysfs, addr)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	write := func(name, s string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(s), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("vendor", fmt.Sprintf("0x%04x\n", id.Vendor))
	write("device", fmt.Sprintf("0x%04x\n", id.Device))

	res := ""
	base := uint64(0xfe000000)
	for i := 0; i < 13; i++ {
		if i < len(bars) && bars[i] != 0 {
			res += fmt.Sprintf("0x%016x 0x%016x 0x%016x\n", base, base+bars[i]-1, uint64(0x40200))
			if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("resource%d", i)), make([]byte, bars[i]), 0644); err != nil {
				t.Fatal(err)
			}
			base += bars[i]
			continue
		}
		res += fmt.Sprintf("0x%016x 0x%016x 0x%016x\n", 0, 0, 0)
	}
	write("resource", res)
	return dir
}

var xilinx = ID{Vendor: 0x10ee, Device: 0x903f}

func TestParseID(t *testing.T) {
	for _, s := range []string{"10EE:903F", "10ee:903f"} {
		id, err := ParseID(s)
		if err != nil || id != xilinx {
			t.Errorf("ParseID(%q) = %v, %v", s, id, err)
		}
	}
	if got := xilinx.String(); got != "10ee:903f" {
		t.Errorf("String() = %q", got)
	}
	for _, s := range []string{"", "10EE", "10EE:", "XYZW:903F", "10EE:12345", ":903F"} {
		if _, err := ParseID(s); err == nil {
			t.Errorf("ParseID(%q) succeeded", s)
		}
	}
}

func TestFind(t *testing.T) {
	sysfs := t.TempDir()
	fakeDevice(t, sysfs, "0000:00:1f.0", ID{0x8086, 0x1234}, 0x1000)
	want := fakeDevice(t, sysfs, "0000:03:00.0", xilinx, 0x2000)

	got, err := Find(sysfs, xilinx)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("Find = %s, want %s", got, want)
	}

	_, err = Find(sysfs, ID{0x1234, 0x5678})
	if !errors.Is(err, ErrNoDevice) {
		t.Errorf("got %v, want ErrNoDevice", err)
	}
	_, err = Find(filepath.Join(sysfs, "missing"), xilinx)
	if !errors.Is(err, ErrNoDevice) {
		t.Errorf("missing sysfs: got %v, want ErrNoDevice", err)
	}
}

func TestReadResources(t *testing.T) {
	sysfs := t.TempDir()
	dir := fakeDevice(t, sysfs, "0000:03:00.0", xilinx, 0, 0x2000, 0, 0x1000)

	// make BAR 2 an I/O BAR; it must be skipped
	res, err := os.ReadFile(filepath.Join(dir, "resource"))
	if err != nil {
		t.Fatal(err)
	}
	lines := string(res)
	io := fmt.Sprintf("0x%016x 0x%016x 0x%016x\n", 0xe000, 0xe07f, IORESOURCE_IO)
	zero := fmt.Sprintf("0x%016x 0x%016x 0x%016x\n", 0, 0, 0)
	n := len(zero)
	lines = lines[:2*n] + io + lines[3*n:]
	if err := os.WriteFile(filepath.Join(dir, "resource"), []byte(lines), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := ReadResources(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []Resource{
		{Index: 1, Base: 0xfe000000, Size: 0x2000, Flags: 0x40200},
		{Index: 3, Base: 0xfe002000, Size: 0x1000, Flags: 0x40200},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if s := got[0].String(); s != "{1: 0xfe000000-0xfe001fff}" {
		t.Errorf("String() = %s", s)
	}
}

func TestReadResourcesBad(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "resource"), []byte("garbage\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadResources(dir); err == nil {
		t.Error("parsed garbage resource file")
	}
	if _, err := ReadResources(filepath.Join(dir, "missing")); err == nil {
		t.Error("read missing resource file")
	}
}

func TestRegion(t *testing.T) {
	r := &Region{Resource: Resource{Index: 0, Size: 0x2000}, mem: make([]byte, 0x2000)}
	if err := r.WriteReg(0x1008, 0xdeadbeef); err != nil {
		t.Fatal(err)
	}
	if err := r.WriteReg(0x100c, 42); err != nil {
		t.Fatal(err)
	}
	if v, err := r.ReadReg(0x1008); err != nil || v != 0xdeadbeef {
		t.Errorf("ReadReg(0x1008) = %#x, %v", v, err)
	}
	if v, err := r.ReadReg(0x100c); err != nil || v != 42 {
		t.Errorf("ReadReg(0x100c) = %d, %v", v, err)
	}
	if err := r.WriteReg(0x1ffc, 1); err != nil {
		t.Errorf("last word: %v", err)
	}
	for _, off := range []uint32{0x1009, 0x2000, 0x1ffe, 0xfffffffc} {
		if err := r.WriteReg(off, 1); !errors.Is(err, ErrBadOffset) {
			t.Errorf("WriteReg(%#x): got %v, want ErrBadOffset", off, err)
		}
		if _, err := r.ReadReg(off); !errors.Is(err, ErrBadOffset) {
			t.Errorf("ReadReg(%#x): got %v, want ErrBadOffset", off, err)
		}
	}
}

func TestDeviceRegion(t *testing.T) {
	d := &Device{ID: xilinx, Path: "/sys/bus/pci/devices/0000:03:00.0", regions: []*Region{{}}}
	if _, err := d.Region(0); err != nil {
		t.Error(err)
	}
	for _, i := range []int{-1, 1} {
		if _, err := d.Region(i); err == nil {
			t.Errorf("Region(%d) succeeded", i)
		}
	}
	if s := d.String(); s != "10ee:903f at 0000:03:00.0" {
		t.Errorf("String() = %q", s)
	}
}
