package pci

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Open finds the device with the given id under sysfs and maps all of
// its memory regions read/write.
func Open(sysfs string, id ID, log *slog.Logger) (*Device, error) {
	if log == nil {
		log = slog.Default()
	}
	dir, err := Find(sysfs, id)
	if err != nil {
		return nil, err
	}
	res, err := ReadResources(dir)
	if err != nil {
		return nil, fmt.Errorf("pci %s: %w", id, err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoResources, id)
	}
	d := &Device{ID: id, Path: dir}
	for _, r := range res {
		mem, err := mapResource(dir, r)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("pci %s: %w", id, err)
		}
		d.regions = append(d.regions, &Region{Resource: r, mem: mem})
		log.Debug("mapped pci region", "device", d, "region", r, "size", r.Size)
	}
	return d, nil
}

func mapResource(dir string, r Resource) ([]byte, error) {
	path := filepath.Join(dir, fmt.Sprintf("resource%d", r.Index))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, err
	}
	// the mapping outlives the descriptor
	defer f.Close()
	mem, err := unix.Mmap(int(f.Fd()), 0, int(r.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return mem, nil
}

func unmap(mem []byte) error { return unix.Munmap(mem) }
