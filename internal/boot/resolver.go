// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
package boot

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"

	"github.com/ostafen/digler-tftpd/internal/diskio"
	"github.com/ostafen/digler-tftpd/internal/disk"
	"github.com/ostafen/digler-tftpd/internal/fat"
	"github.com/ostafen/digler-tftpd/internal/tftp/wire"
)

// ResolutionError carries the TFTP error code a Resolver failure should be
// reported with (§4.6/§7's resolution-error taxonomy).
type ResolutionError struct {
	Code    wire.ErrorCode
	Message string
}

func (e *ResolutionError) Error() string { return e.Message }

func resolutionErr(code wire.ErrorCode, format string, args ...interface{}) error {
	return &ResolutionError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Resolver is the boot-server policy's contract: turn a served filename and
// a client source address into an open, seekable byte source.
type Resolver interface {
	Resolve(filename string, clientIP net.IP) (fat.StreamSource, error)
}

// ImageOpener abstracts diskio.Open so tests can substitute an in-memory
// image without touching the filesystem.
type ImageOpener func(path string) (*diskio.DiskImage, error)

// BoardResolver implements Resolver against a frozen Registry, a
// disk.Locator for partition decoding, and a cache of opened DiskImages /
// FatFileSystems keyed by board so repeated requests reuse the same
// memory mapping and BPB parse (§4.6 "or reuse a cached FatFileSystem").
type BoardResolver struct {
	registry atomic.Pointer[Registry]
	locator  disk.Locator
	open     ImageOpener

	mu     sync.Mutex
	images map[string]*diskio.DiskImage
	fses   map[cacheKey]*fat.FileSystem
}

type cacheKey struct {
	path      string
	partition int
}

// NewBoardResolver constructs a BoardResolver over reg, decoding partitions
// with locator and opening images with open (diskio.Open in production).
func NewBoardResolver(reg *Registry, locator disk.Locator, open ImageOpener) *BoardResolver {
	r := &BoardResolver{
		locator: locator,
		open:    open,
		images:  make(map[string]*diskio.DiskImage),
		fses:    make(map[cacheKey]*fat.FileSystem),
	}
	r.registry.Store(reg)
	return r
}

// Boards returns the boards registered behind this resolver.
func (r *BoardResolver) Boards() []*Board { return r.registry.Load().Boards() }

// Validate eagerly opens every board's image and FAT filesystem once,
// marking any that fail Degraded (§7), and returns the accumulated errors
// for the caller to log. A degraded board stays reachable through Boards
// but every RRQ against it is rejected without repeating the failed parse.
func (r *BoardResolver) Validate() error {
	var errs *multierror.Error
	for _, board := range r.Boards() {
		if _, err := r.fileSystemFor(board); err != nil {
			board.Degraded = true
			errs = multierror.Append(errs, fmt.Errorf("board %q: %w", board.Serial, err))
		}
	}
	return errs.ErrorOrNil()
}

// SetRegistry atomically swaps the registry a SIGHUP reload resolves
// against, keeping the resolver's opened-image and parsed-filesystem
// caches warm across the swap (§5, §6 SIGHUP reload).
func (r *BoardResolver) SetRegistry(reg *Registry) { r.registry.Store(reg) }

// Resolve implements the full §4.6 policy: split the serial prefix,
// look up the board (falling back to the sole default board when the
// filename carries none), check the IP ACL, open the declared partition,
// and resolve the remaining path against its FAT filesystem.
func (r *BoardResolver) Resolve(filename string, clientIP net.IP) (fat.StreamSource, error) {
	serial, rest := splitServerPrefix(filename)

	board, ok := r.registry.Load().Lookup(serial)
	if !ok {
		return nil, resolutionErr(wire.ErrFileNotFound, "boot: no board registered for serial %q", serial)
	}

	if !board.MatchIP(clientIP) {
		return nil, resolutionErr(wire.ErrAccessViolation, "boot: source %s not permitted for board %q", clientIP, board.Serial)
	}

	if board.Degraded {
		return nil, resolutionErr(wire.ErrUndefined, "boot: board %q is degraded, refusing without re-parsing its image", board.Serial)
	}

	fs, err := r.fileSystemFor(board)
	if err != nil {
		return nil, resolutionErr(wire.ErrUndefined, "boot: open board %q: %v", board.Serial, err)
	}

	f, err := fs.Open(rest)
	if err != nil {
		if errors.Is(err, fat.ErrNotFound) || errors.Is(err, fat.ErrNotADir) {
			return nil, resolutionErr(wire.ErrFileNotFound, "boot: %v", err)
		}
		return nil, resolutionErr(wire.ErrUndefined, "boot: %v", err)
	}
	return f, nil
}

// fileSystemFor returns the cached FatFileSystem for board's image and
// partition, opening and parsing it on first use.
func (r *BoardResolver) fileSystemFor(board *Board) (*fat.FileSystem, error) {
	partition := board.Partition
	if partition == 0 {
		partition = 1
	}
	key := cacheKey{path: board.ImagePath, partition: partition}

	r.mu.Lock()
	defer r.mu.Unlock()

	if fs, ok := r.fses[key]; ok {
		return fs, nil
	}

	img, ok := r.images[board.ImagePath]
	if !ok {
		var err error
		img, err = r.open(board.ImagePath)
		if err != nil {
			return nil, fmt.Errorf("open image %q: %w", board.ImagePath, err)
		}
		r.images[board.ImagePath] = img
	}

	win, _, err := r.locator.Partition(img.Window(), partition)
	if err != nil {
		return nil, fmt.Errorf("locate partition %d of %q: %w", partition, board.ImagePath, err)
	}

	fs, err := fat.Open(win)
	if err != nil {
		return nil, fmt.Errorf("open filesystem on partition %d of %q: %w", partition, board.ImagePath, err)
	}

	r.fses[key] = fs
	return fs, nil
}

// splitServerPrefix strips a leading slash and splits the served filename
// on its first remaining slash: the leading segment is the serial prefix,
// the rest is the path within the board's filesystem. A filename with no
// slash at all is entirely a serial-less request for the root boot file,
// matching the documented client fallback behavior.
func splitServerPrefix(filename string) (serial, rest string) {
	filename = strings.TrimPrefix(filename, "/")
	idx := strings.IndexByte(filename, '/')
	if idx < 0 {
		return "", filename
	}
	return filename[:idx], filename[idx+1:]
}
