//go:build !linux

package pci

import (
	"errors"
	"log/slog"
)

var errNotSupported = errors.New("pci: sysfs device mapping needs linux")

func Open(sysfs string, id ID, log *slog.Logger) (*Device, error) {
	return nil, errNotSupported
}

func unmap(mem []byte) error { return nil }
