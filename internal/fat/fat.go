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
package fat

import (
	"errors"
	"fmt"

	"github.com/boljen/go-bitmap"

	"github.com/ostafen/digler-tftpd/internal/window"
)

var (
	ErrBadCluster  = errors.New("fat: bad-cluster marker encountered in chain")
	ErrCycle       = errors.New("fat: cycle detected in cluster chain")
	ErrNotFound    = errors.New("fat: path not found")
	ErrNotADir     = errors.New("fat: not a directory")
)

// FileSystem is a read-only view over one FAT12/16/32 volume, bound to a
// partition window. It owns no mutable state beyond the BPB it parsed at
// construction; concurrent readers are safe.
type FileSystem struct {
	win window.Window
	bpb *BPB
}

// Open parses the boot sector at the start of win and constructs a
// FileSystem. It fails construction ("damaged") if the signature is
// missing or the cluster count is inconsistent with the BPB's claimed
// fields; a missing, unreadable or badly signed FAT32 info sector instead
// marks Damaged true but still returns a usable FileSystem. The dirty
// bit is decoded into the BPB and does not affect Damaged.
func Open(win window.Window) (*FileSystem, error) {
	sector := make([]byte, 512)
	if _, err := win.ReadAt(sector, 0); err != nil {
		return nil, fmt.Errorf("fat: read boot sector: %w", err)
	}

	bpb, err := ParseBPB(sector)
	if err != nil {
		return nil, fmt.Errorf("fat: construct filesystem: %w", err)
	}

	fs := &FileSystem{win: win, bpb: bpb}

	if bpb.Type == FAT32 {
		fs.checkFSInfo()
	}

	return fs, nil
}

// checkFSInfo validates the FAT32 info-sector signature, marking the
// filesystem Damaged (but still usable read-only) if it is missing.
func (fs *FileSystem) checkFSInfo() {
	if fs.bpb.FSInfoSector == 0 {
		fs.bpb.Damaged = true
		return
	}
	off := int64(fs.bpb.FSInfoSector) * int64(fs.bpb.BytesPerSector)
	sector := make([]byte, 512)
	if _, err := fs.win.ReadAt(sector, off); err != nil {
		fs.bpb.Damaged = true
		return
	}
	leadSig := le32(sector[0:4])
	structSig := le32(sector[484:488])
	trailSig := le32(sector[508:512])
	if leadSig != 0x41615252 || structSig != 0x61417272 || trailSig != 0xAA550000 {
		fs.bpb.Damaged = true
	}
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// Type returns the filesystem's FAT variant.
func (fs *FileSystem) Type() Type { return fs.bpb.Type }

// Damaged reports whether the filesystem was opened with a visible
// inconsistency (an invalid FAT32 info sector) that does not prevent
// read-only access.
func (fs *FileSystem) Damaged() bool { return fs.bpb.Damaged }

// Label returns the trimmed volume label from the BPB.
func (fs *FileSystem) Label() string { return fs.bpb.VolumeLabel }

// ClusterSize returns the number of bytes per cluster.
func (fs *FileSystem) ClusterSize() int64 { return fs.bpb.ClusterBytes }

const (
	fat12EOCMin  = 0x0FF8
	fat12Bad     = 0x0FF7
	fat16EOCMin  = 0xFFF8
	fat16Bad     = 0xFFF7
	fat32EOCMin  = 0x0FFFFFF8
	fat32Bad     = 0x0FFFFFF7
	fat32EntryMask = 0x0FFFFFFF
)

// readFATEntry returns the raw FAT table value for cluster c, following
// §4.2's per-type byte layouts.
func (fs *FileSystem) readFATEntry(c uint32) (uint32, error) {
	switch fs.bpb.Type {
	case FAT12:
		off := fs.bpb.FirstFATOffset + int64(c)+int64(c)/2
		buf := make([]byte, 2)
		if _, err := fs.win.ReadAt(buf, off); err != nil {
			return 0, fmt.Errorf("fat: read FAT12 entry %d: %w", c, err)
		}
		v := uint16(buf[0]) | uint16(buf[1])<<8
		if c%2 == 0 {
			return uint32(v & 0x0FFF), nil
		}
		return uint32(v >> 4), nil

	case FAT16:
		off := fs.bpb.FirstFATOffset + int64(c)*2
		buf := make([]byte, 2)
		if _, err := fs.win.ReadAt(buf, off); err != nil {
			return 0, fmt.Errorf("fat: read FAT16 entry %d: %w", c, err)
		}
		return uint32(uint16(buf[0]) | uint16(buf[1])<<8), nil

	case FAT32:
		off := fs.bpb.FirstFATOffset + int64(c)*4
		buf := make([]byte, 4)
		if _, err := fs.win.ReadAt(buf, off); err != nil {
			return 0, fmt.Errorf("fat: read FAT32 entry %d: %w", c, err)
		}
		v := le32(buf)
		return v & fat32EntryMask, nil

	default:
		return 0, fmt.Errorf("fat: unknown FAT type")
	}
}

func (fs *FileSystem) isEOC(v uint32) bool {
	switch fs.bpb.Type {
	case FAT12:
		return v >= fat12EOCMin
	case FAT16:
		return v >= fat16EOCMin
	default:
		return v >= fat32EOCMin
	}
}

func (fs *FileSystem) isBad(v uint32) bool {
	switch fs.bpb.Type {
	case FAT12:
		return v == fat12Bad
	case FAT16:
		return v == fat16Bad
	default:
		return v == fat32Bad
	}
}

// ClusterChain walks the FAT from start, returning the full ordered list
// of cluster indices up to (but not including) the end-of-chain marker.
// It fails with ErrBadCluster on a bad-cluster marker or ErrCycle if any
// cluster repeats within the chain, using a bitmap sized to the total
// cluster count rather than a map to keep the visited-set cheap.
func (fs *FileSystem) ClusterChain(start uint32) ([]uint32, error) {
	if start < 2 {
		return nil, fmt.Errorf("fat: invalid start cluster %d", start)
	}

	visited := bitmap.NewSlice(int(fs.bpb.ClusterCount) + 2)
	var chain []uint32

	c := start
	for {
		idx := int(c)
		if idx < visited.Len() && visited.Get(idx) {
			return nil, fmt.Errorf("fat: cluster %d: %w", c, ErrCycle)
		}
		if idx < visited.Len() {
			visited.Set(idx, true)
		}
		chain = append(chain, c)

		next, err := fs.readFATEntry(c)
		if err != nil {
			return nil, err
		}
		if fs.isBad(next) {
			return nil, fmt.Errorf("fat: cluster %d: %w", c, ErrBadCluster)
		}
		if fs.isEOC(next) {
			break
		}
		c = next
	}
	return chain, nil
}

// rootDirEntries returns the raw bytes of the root directory: a
// fixed region for FAT12/16, or the cluster chain rooted at BPB's
// root-cluster for FAT32.
func (fs *FileSystem) rootDirEntries() ([]byte, error) {
	if fs.bpb.Type != FAT32 {
		length := int64(fs.bpb.RootDirSectors) * int64(fs.bpb.BytesPerSector)
		buf := make([]byte, length)
		if _, err := fs.win.ReadAt(buf, fs.bpb.RootDirOffset); err != nil {
			return nil, fmt.Errorf("fat: read root directory: %w", err)
		}
		return buf, nil
	}
	return fs.readClusterChainBytes(fs.bpb.RootCluster)
}

// readClusterChainBytes reads and concatenates every cluster in the
// chain rooted at start; used for directory regions only. File content
// reads go through File, which streams clusters lazily instead.
func (fs *FileSystem) readClusterChainBytes(start uint32) ([]byte, error) {
	chain, err := fs.ClusterChain(start)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, int64(len(chain))*fs.bpb.ClusterBytes)
	tmp := make([]byte, fs.bpb.ClusterBytes)
	for _, c := range chain {
		if _, err := fs.win.ReadAt(tmp, fs.bpb.ClusterOffset(c)); err != nil {
			return nil, fmt.Errorf("fat: read cluster %d: %w", c, err)
		}
		buf = append(buf, tmp...)
	}
	return buf, nil
}
