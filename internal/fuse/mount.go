//go:build !linux
// +build !linux

package fuse

import (
	"fmt"

	"github.com/ostafen/digler-tftpd/internal/fat"
)

// Mount is unavailable outside Linux; bazil.org/fuse only supports
// Linux and macOS kernel FUSE, and this build only wires the former.
func Mount(mountpoint string, volume *fat.FileSystem) error {
	return fmt.Errorf("FUSE mount is only supported on Linux")
}
