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

// Package fat reads FAT12/16/32 filesystems from a read-only byte window,
// following the on-disk layout closely enough to resolve paths and stream
// file contents, never to write them.
package fat

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Type identifies which of the three on-disk FAT table encodings a
// filesystem uses; it is derived from cluster_count, never trusted from a
// BPB field, per the classic Microsoft determination algorithm.
type Type int

const (
	Unknown Type = iota
	FAT12
	FAT16
	FAT32
)

func (t Type) String() string {
	switch t {
	case FAT12:
		return "FAT12"
	case FAT16:
		return "FAT16"
	case FAT32:
		return "FAT32"
	default:
		return "unknown"
	}
}

// cluster-count thresholds from the Microsoft FAT determination algorithm.
const (
	maxFAT12Clusters = 4085
	maxFAT16Clusters = 65525
)

var (
	ErrBadSignature  = errors.New("fat: missing 0x55AA boot sector signature")
	ErrInconsistent  = errors.New("fat: cluster count inconsistent with BPB fields")
	ErrBadGeometry   = errors.New("fat: implausible BPB geometry")
	ErrShortSector   = errors.New("fat: boot sector shorter than 512 bytes")
)

// BPB holds the fields of the BIOS Parameter Block needed to locate the
// FAT tables, the root directory, and the data region, normalized across
// the FAT12/16 and FAT32 on-disk layouts.
type BPB struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntries       uint16 // 0 on FAT32
	TotalSectors      uint32
	FATSize           uint32 // sectors per FAT
	RootCluster       uint32 // FAT32 only
	FSInfoSector      uint16 // FAT32 only, 0 if absent
	VolumeLabel       string
	DirtyBit          bool

	Type              Type
	ClusterCount       uint32
	FirstFATOffset     int64
	FirstDataOffset    int64
	RootDirOffset      int64 // FAT12/16 only
	RootDirSectors     uint32
	ClusterBytes       int64
	Damaged            bool
}

// ParseBPB decodes the first 512 bytes of a partition window as a FAT boot
// sector, computing derived geometry and classifying the FAT type by
// cluster count rather than by trusting any single BPB flag.
func ParseBPB(sector []byte) (*BPB, error) {
	if len(sector) < 512 {
		return nil, ErrShortSector
	}
	if sector[510] != 0x55 || sector[511] != 0xAA {
		return nil, ErrBadSignature
	}

	b := &BPB{
		BytesPerSector:    binary.LittleEndian.Uint16(sector[11:13]),
		SectorsPerCluster: sector[13],
		ReservedSectors:   binary.LittleEndian.Uint16(sector[14:16]),
		NumFATs:           sector[16],
		RootEntries:       binary.LittleEndian.Uint16(sector[17:19]),
	}

	totalSectors16 := binary.LittleEndian.Uint16(sector[19:21])
	totalSectors32 := binary.LittleEndian.Uint32(sector[32:36])
	if totalSectors16 != 0 {
		b.TotalSectors = uint32(totalSectors16)
	} else {
		b.TotalSectors = totalSectors32
	}

	fatSize16 := binary.LittleEndian.Uint16(sector[22:24])
	if fatSize16 != 0 {
		b.FATSize = uint32(fatSize16)
	} else {
		// FAT32 extended BPB: FATSz32 at offset 36
		b.FATSize = binary.LittleEndian.Uint32(sector[36:40])
	}

	if err := validateGeometry(b); err != nil {
		return nil, err
	}

	b.RootDirSectors = uint32((uint32(b.RootEntries)*32 + uint32(b.BytesPerSector) - 1) / uint32(b.BytesPerSector))

	dataSectors := int64(b.TotalSectors) - int64(b.ReservedSectors) -
		int64(b.NumFATs)*int64(b.FATSize) - int64(b.RootDirSectors)
	if dataSectors < 0 {
		return nil, fmt.Errorf("%w: negative data-sector count", ErrInconsistent)
	}
	b.ClusterCount = uint32(dataSectors / int64(b.SectorsPerCluster))

	switch {
	case b.ClusterCount < maxFAT12Clusters:
		b.Type = FAT12
	case b.ClusterCount < maxFAT16Clusters:
		b.Type = FAT16
	default:
		b.Type = FAT32
	}

	if b.Type == FAT32 {
		b.RootCluster = binary.LittleEndian.Uint32(sector[44:48])
		b.FSInfoSector = binary.LittleEndian.Uint16(sector[48:50])
		if b.RootCluster < 2 {
			return nil, fmt.Errorf("%w: FAT32 root cluster %d < 2", ErrInconsistent, b.RootCluster)
		}
		b.DirtyBit = sector[0x41]&0x01 == 0 // FAT32: bit clear means dirty, per FAT[1] bit 0x08000000 convention mirrored here via boot sector reserved flags
		b.VolumeLabel = trimLabel(sector[71:82])
	} else {
		if b.RootEntries == 0 {
			return nil, fmt.Errorf("%w: FAT12/16 root_entries is 0", ErrInconsistent)
		}
		b.DirtyBit = sector[0x25]&0x01 == 0
		b.VolumeLabel = trimLabel(sector[43:54])
	}

	b.ClusterBytes = int64(b.SectorsPerCluster) * int64(b.BytesPerSector)
	b.FirstFATOffset = int64(b.ReservedSectors) * int64(b.BytesPerSector)
	fatsBytes := int64(b.NumFATs) * int64(b.FATSize) * int64(b.BytesPerSector)
	b.RootDirOffset = b.FirstFATOffset + fatsBytes
	rootDirBytes := int64(b.RootDirSectors) * int64(b.BytesPerSector)
	b.FirstDataOffset = b.RootDirOffset + rootDirBytes

	return b, nil
}

func validateGeometry(b *BPB) error {
	switch b.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return fmt.Errorf("%w: bytes_per_sector %d", ErrBadGeometry, b.BytesPerSector)
	}
	if b.SectorsPerCluster == 0 || b.SectorsPerCluster&(b.SectorsPerCluster-1) != 0 {
		return fmt.Errorf("%w: sectors_per_cluster %d is not a power of two", ErrBadGeometry, b.SectorsPerCluster)
	}
	if b.ReservedSectors < 1 {
		return fmt.Errorf("%w: reserved_sectors %d", ErrBadGeometry, b.ReservedSectors)
	}
	if b.NumFATs != 1 && b.NumFATs != 2 {
		return fmt.Errorf("%w: num_fats %d", ErrBadGeometry, b.NumFATs)
	}
	return nil
}

// ClusterOffset returns the byte offset of the start of cluster c within
// the partition window (clusters are numbered from 2).
func (b *BPB) ClusterOffset(c uint32) int64 {
	return b.FirstDataOffset + int64(c-2)*b.ClusterBytes
}

func trimLabel(b []byte) string {
	n := len(b)
	for n > 0 && b[n-1] == ' ' {
		n--
	}
	return string(b[:n])
}
