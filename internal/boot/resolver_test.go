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
package boot_test

import (
	"encoding/binary"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/ostafen/digler-tftpd/internal/boot"
	"github.com/ostafen/digler-tftpd/internal/diskio"
	"github.com/ostafen/digler-tftpd/internal/disk"
	"github.com/ostafen/digler-tftpd/internal/fat"
	"github.com/ostafen/digler-tftpd/internal/tftp/wire"
)

// buildImage hand-assembles a one-partition MBR disk: a 512-byte MBR
// declaring partition 1 as FAT12 starting at LBA 1, followed by a minimal
// FAT12 volume holding a single file "BOOT.CFG" with the given content.
func buildImage(t testing.TB, content []byte) string {
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

	vol := make([]byte, bytesPerSector*totalSectors)
	binary.LittleEndian.PutUint16(vol[11:13], bytesPerSector)
	vol[13] = sectorsPerCluster
	binary.LittleEndian.PutUint16(vol[14:16], reservedSectors)
	vol[16] = numFATs
	binary.LittleEndian.PutUint16(vol[17:19], rootEntryCount)
	binary.LittleEndian.PutUint16(vol[19:21], totalSectors)
	binary.LittleEndian.PutUint16(vol[22:24], fatSectors)
	vol[510] = 0x55
	vol[511] = 0xAA

	fatOffset := reservedSectors * bytesPerSector
	// cluster 2 marked end-of-chain immediately (single-cluster file).
	binary.LittleEndian.PutUint16(vol[fatOffset+3:fatOffset+5], 0xFFF8)

	rootOffset := fatOffset + numFATs*fatSectors*bytesPerSector
	entry := make([]byte, 32)
	copy(entry[0:8], []byte("BOOT    "))
	copy(entry[8:11], []byte("CFG"))
	binary.LittleEndian.PutUint16(entry[26:28], 2)
	binary.LittleEndian.PutUint32(entry[28:32], uint32(len(content)))
	copy(vol[rootOffset:], entry)

	rootDirBytes := (rootEntryCount*32 + bytesPerSector - 1) / bytesPerSector * bytesPerSector
	dataOffset := rootOffset + rootDirBytes
	copy(vol[dataOffset:], content)

	mbr := make([]byte, 512)
	mbr[0x1BE+0x04] = byte(disk.PartitionTypeFAT12)
	binary.LittleEndian.PutUint32(mbr[0x1BE+0x08:0x1BE+0x0C], 1)
	binary.LittleEndian.PutUint32(mbr[0x1BE+0x0C:0x1BE+0x10], totalSectors)
	mbr[0x1FE] = 0x55
	mbr[0x1FF] = 0xAA

	img := append(mbr, vol...)

	dir := t.TempDir()
	path := filepath.Join(dir, "disk.img")
	require.NoError(t, os.WriteFile(path, img, 0o644))
	return path
}

func TestBoardResolver_ResolvesFileFromBoardImage(t *testing.T) {
	path := buildImage(t, []byte("hello boot"))
	reg, err := boot.NewRegistry([]*boot.Board{
		{Serial: "deadbeef", ImagePath: path, Partition: 1},
	})
	require.NoError(t, err)

	r := boot.NewBoardResolver(reg, disk.NewMBRLocator(), diskio.Open)

	src, err := r.Resolve("deadbeef/boot.cfg", net.ParseIP("203.0.113.1"))
	require.NoError(t, err)
	require.Equal(t, int64(10), src.Size())

	buf := make([]byte, 10)
	n, err := src.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello boot", string(buf[:n]))
}

func TestBoardResolver_UnknownSerialReturnsFileNotFound(t *testing.T) {
	reg, err := boot.NewRegistry(nil)
	require.NoError(t, err)
	r := boot.NewBoardResolver(reg, disk.NewMBRLocator(), diskio.Open)

	_, err = r.Resolve("unknown/boot.cfg", net.ParseIP("203.0.113.1"))
	require.Error(t, err)

	var resErr *boot.ResolutionError
	require.ErrorAs(t, err, &resErr)
	require.Equal(t, wire.ErrFileNotFound, resErr.Code)
}

func TestBoardResolver_IPMismatchReturnsAccessViolation(t *testing.T) {
	path := buildImage(t, []byte("x"))
	_, ipnet, err := net.ParseCIDR("192.0.2.5/32")
	require.NoError(t, err)

	reg, err := boot.NewRegistry([]*boot.Board{
		{Serial: "deadbeef", ImagePath: path, Partition: 1, IPNet: ipnet},
	})
	require.NoError(t, err)
	r := boot.NewBoardResolver(reg, disk.NewMBRLocator(), diskio.Open)

	_, err = r.Resolve("deadbeef/boot.cfg", net.ParseIP("192.0.2.6"))
	require.Error(t, err)

	var resErr *boot.ResolutionError
	require.ErrorAs(t, err, &resErr)
	require.Equal(t, wire.ErrAccessViolation, resErr.Code)
}

func TestBoardResolver_CachesFileSystemAcrossRequests(t *testing.T) {
	path := buildImage(t, []byte("cached"))
	reg, err := boot.NewRegistry([]*boot.Board{
		{Serial: "deadbeef", ImagePath: path, Partition: 1},
	})
	require.NoError(t, err)

	opens := 0
	opener := func(p string) (*diskio.DiskImage, error) {
		opens++
		return diskio.Open(p)
	}
	r := boot.NewBoardResolver(reg, disk.NewMBRLocator(), opener)

	_, err = r.Resolve("deadbeef/boot.cfg", net.ParseIP("203.0.113.1"))
	require.NoError(t, err)
	_, err = r.Resolve("deadbeef/boot.cfg", net.ParseIP("203.0.113.1"))
	require.NoError(t, err)

	require.Equal(t, 1, opens)
}

func TestBoardResolver_ValidateFlagsUnopenableBoardDegraded(t *testing.T) {
	path := buildImage(t, []byte("hello boot"))
	reg, err := boot.NewRegistry([]*boot.Board{
		{Serial: "deadbeef", ImagePath: path, Partition: 1},
		{Serial: "badcafe", ImagePath: filepath.Join(t.TempDir(), "missing.img"), Partition: 1},
	})
	require.NoError(t, err)

	r := boot.NewBoardResolver(reg, disk.NewMBRLocator(), diskio.Open)
	err = r.Validate()
	require.Error(t, err)

	var good, bad *boot.Board
	for _, b := range r.Boards() {
		switch b.Serial {
		case "deadbeef":
			good = b
		case "badcafe":
			bad = b
		}
	}
	require.NotNil(t, good)
	require.NotNil(t, bad)
	require.False(t, good.Degraded)
	require.True(t, bad.Degraded)
}

func TestBoardResolver_DegradedBoardRefusesWithoutReparsing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.img")
	reg, err := boot.NewRegistry([]*boot.Board{
		{Serial: "badcafe", ImagePath: path, Partition: 1},
	})
	require.NoError(t, err)

	opens := 0
	opener := func(p string) (*diskio.DiskImage, error) {
		opens++
		return diskio.Open(p)
	}
	r := boot.NewBoardResolver(reg, disk.NewMBRLocator(), opener)
	require.Error(t, r.Validate())
	require.Equal(t, 1, opens)

	_, err = r.Resolve("badcafe/boot.cfg", net.ParseIP("203.0.113.1"))
	require.Error(t, err)
	var resErr *boot.ResolutionError
	require.ErrorAs(t, err, &resErr)
	require.Equal(t, wire.ErrUndefined, resErr.Code)
	require.Equal(t, 1, opens, "degraded board must not be re-opened per request")
}

func TestBoardResolver_SetRegistrySwapsBoardsWithoutDroppingCache(t *testing.T) {
	path := buildImage(t, []byte("hello boot"))
	reg, err := boot.NewRegistry([]*boot.Board{
		{Serial: "deadbeef", ImagePath: path, Partition: 1},
	})
	require.NoError(t, err)

	opens := 0
	opener := func(p string) (*diskio.DiskImage, error) {
		opens++
		return diskio.Open(p)
	}
	r := boot.NewBoardResolver(reg, disk.NewMBRLocator(), opener)

	_, err = r.Resolve("deadbeef/boot.cfg", net.ParseIP("203.0.113.1"))
	require.NoError(t, err)

	reg2, err := boot.NewRegistry([]*boot.Board{
		{Serial: "deadbeef", ImagePath: path, Partition: 1},
		{Serial: "feedface", ImagePath: path, Partition: 1},
	})
	require.NoError(t, err)
	r.SetRegistry(reg2)
	require.Len(t, r.Boards(), 2)

	_, err = r.Resolve("deadbeef/boot.cfg", net.ParseIP("203.0.113.1"))
	require.NoError(t, err)
	require.Equal(t, 1, opens, "reload must keep the cached image open rather than reopening it")
}

func TestMockResolver_SatisfiesResolverInterface(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := boot.NewMockResolver(ctrl)

	var r boot.Resolver = m
	m.EXPECT().Resolve("deadbeef/boot.cfg", gomock.Any()).Return(fat.StreamSource(nil), nil)

	_, err := r.Resolve("deadbeef/boot.cfg", net.ParseIP("203.0.113.1"))
	require.NoError(t, err)
}
