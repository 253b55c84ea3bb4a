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
	"encoding/binary"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/ostafen/digler-tftpd/internal/window"
)

// buildFAT12Image hand-assembles a minimal, valid FAT12 volume in memory:
// 1 reserved sector, 2 FATs of 1 sector each, 16 root entries, and enough
// clusters to stay under the FAT12 threshold. It's written through
// afero.MemMapFs so fixture construction exercises the same in-memory
// filesystem the rest of the pack's tests are built on, then read back as
// a flat byte slice the way a real DiskImage would present one.
func buildFAT12Image(t testing.TB, rootEntries []byte, fatEntries map[uint32]uint16, clusters map[uint32][]byte) []byte {
	t.Helper()

	const (
		bytesPerSector    = 512
		sectorsPerCluster = 1
		reservedSectors   = 1
		numFATs           = 2
		rootEntryCount    = 16
		fatSectors        = 1
		totalSectors      = 32
	)

	img := make([]byte, bytesPerSector*totalSectors)

	binary.LittleEndian.PutUint16(img[11:13], bytesPerSector)
	img[13] = sectorsPerCluster
	binary.LittleEndian.PutUint16(img[14:16], reservedSectors)
	img[16] = numFATs
	binary.LittleEndian.PutUint16(img[17:19], rootEntryCount)
	binary.LittleEndian.PutUint16(img[19:21], totalSectors)
	binary.LittleEndian.PutUint16(img[22:24], fatSectors)
	img[510] = 0x55
	img[511] = 0xAA

	fatOffset := reservedSectors * bytesPerSector
	for cluster, val := range fatEntries {
		byteOff := fatOffset + int(cluster) + int(cluster)/2
		existing := binary.LittleEndian.Uint16(img[byteOff : byteOff+2])
		var packed uint16
		if cluster%2 == 0 {
			packed = (existing &^ 0x0FFF) | (val & 0x0FFF)
		} else {
			packed = (existing &^ 0xFFF0) | (val << 4)
		}
		binary.LittleEndian.PutUint16(img[byteOff:byteOff+2], packed)
	}

	rootOffset := fatOffset + numFATs*fatSectors*bytesPerSector
	copy(img[rootOffset:], rootEntries)

	rootDirBytes := (rootEntryCount*32 + bytesPerSector - 1) / bytesPerSector * bytesPerSector
	dataOffset := rootOffset + rootDirBytes
	for cluster, data := range clusters {
		off := dataOffset + int(cluster-2)*bytesPerSector*sectorsPerCluster
		copy(img[off:], data)
	}

	mem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(mem, "/disk.img", img, 0o644))
	out, err := afero.ReadFile(mem, "/disk.img")
	require.NoError(t, err)
	return out
}

// shortDirEntry packs an 8.3 directory entry for test fixtures.
func shortDirEntry(name, ext string, attr byte, firstCluster uint32, size uint32) []byte {
	rec := make([]byte, 32)
	copy(rec[0:8], padName(name, 8))
	copy(rec[8:11], padName(ext, 3))
	rec[11] = attr
	binary.LittleEndian.PutUint16(rec[20:22], uint16(firstCluster>>16))
	binary.LittleEndian.PutUint16(rec[26:28], uint16(firstCluster))
	binary.LittleEndian.PutUint32(rec[28:32], size)
	return rec
}

func padName(s string, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	copy(b, s)
	return b
}

func openTestFS(t testing.TB, img []byte) *FileSystem {
	t.Helper()
	fs, err := Open(window.New(img))
	require.NoError(t, err)
	return fs
}
