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
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
)

// attribute bits of a directory entry's 11th byte.
const (
	attrReadOnly = 0x01
	attrHidden   = 0x02
	attrSystem   = 0x04
	attrVolumeID = 0x08
	attrDirectory = 0x10
	attrArchive  = 0x20
	attrLongName = attrReadOnly | attrHidden | attrSystem | attrVolumeID
)

const dirEntrySize = 32

// DirEntry is a decoded directory entry: its long name if one was
// attached and validated, its 8.3 short name otherwise, plus the fields
// needed to open its contents.
type DirEntry struct {
	Name         string
	IsDir        bool
	Size         uint32
	FirstCluster uint32
	ModTime      time.Time
}

// lfnEncoding transcodes the UTF-16LE long-name fragments packed into VFAT
// directory entries; shared across all ReadDir calls since it is stateless
// per invocation (a fresh Decoder is created for each name to avoid
// cross-call state).
var lfnEncoding = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// lfnFragment holds one VFAT long-name directory entry's 13 UTF-16
// characters, keyed by its sequence number for reassembly in order.
type lfnFragment struct {
	seq   int
	chars [13]uint16
}

// ReadDir decodes the 32-byte directory entries in raw in order, skipping
// deleted entries (first byte 0xE5) and stopping at the first free entry
// (first byte 0x00). VFAT long-name entries are accumulated and, if their
// checksum matches the following 8.3 entry, used as that entry's Name;
// otherwise the 8.3 name is used and the accumulated fragment is dropped.
func ReadDir(raw []byte) ([]DirEntry, error) {
	var (
		entries []DirEntry
		lfn     []lfnFragment
		lfnSum  byte
	)

	for off := 0; off+dirEntrySize <= len(raw); off += dirEntrySize {
		rec := raw[off : off+dirEntrySize]
		first := rec[0]
		if first == 0x00 {
			break
		}
		if first == 0xE5 {
			lfn = nil
			continue
		}

		attr := rec[11]
		if attr&attrLongName == attrLongName {
			frag, sum := decodeLFNEntry(rec)
			if frag.seq&0x40 != 0 {
				lfn = nil
				lfnSum = sum
			}
			lfn = append(lfn, frag)
			continue
		}

		if attr&attrVolumeID != 0 {
			lfn = nil
			continue
		}

		shortName := decodeShortName(rec)
		longName := ""
		if len(lfn) > 0 && checksum83(rec[0:11]) == lfnSum {
			longName = reassembleLFN(lfn)
		}
		lfn = nil

		name := shortName
		if longName != "" {
			name = longName
		}

		entries = append(entries, DirEntry{
			Name:         name,
			IsDir:        attr&attrDirectory != 0,
			Size:         le32(rec[28:32]),
			FirstCluster: uint32(le16(rec[26:28])) | uint32(le16(rec[20:22]))<<16,
			ModTime:      decodeDOSTime(rec[22:24], rec[24:26]),
		})
	}

	return entries, nil
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }

// decodeLFNEntry extracts one VFAT long-name fragment's 13 UTF-16 code
// units and the 8.3 checksum byte it claims to belong to.
func decodeLFNEntry(rec []byte) (lfnFragment, byte) {
	var f lfnFragment
	f.seq = int(rec[0])
	copy13 := func(dst *[13]uint16, offsets [][2]int) {
		i := 0
		for _, o := range offsets {
			for p := o[0]; p < o[1]; p += 2 {
				dst[i] = le16(rec[p : p+2])
				i++
			}
		}
	}
	copy13(&f.chars, [][2]int{{1, 11}, {14, 26}, {28, 32}})
	return f, rec[13]
}

// reassembleLFN orders fragments by ascending sequence number (low 6
// bits), concatenates their UTF-16 characters, transcodes to UTF-8 via
// golang.org/x/text, and trims at the first NUL or 0xFFFF pad character.
func reassembleLFN(frags []lfnFragment) string {
	ordered := make([]lfnFragment, len(frags))
	copy(ordered, frags)
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if ordered[j].seq&0x3F < ordered[i].seq&0x3F {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}

	buf := make([]byte, 0, len(ordered)*26)
	for _, f := range ordered {
		for _, c := range f.chars {
			if c == 0x0000 || c == 0xFFFF {
				goto decode
			}
			buf = append(buf, byte(c), byte(c>>8))
		}
	}
decode:
	out, err := lfnEncoding.NewDecoder().Bytes(buf)
	if err != nil {
		return ""
	}
	return string(out)
}

// checksum83 computes the classic VFAT checksum over an 11-byte 8.3 name,
// binding LFN fragments to the short entry they precede.
func checksum83(name11 []byte) byte {
	var sum byte
	for _, c := range name11 {
		sum = (sum>>1)|(sum<<7) // rotate right 8 (byte width)
		sum += c
	}
	return sum
}

func decodeShortName(rec []byte) string {
	base := strings.TrimRight(string(rec[0:8]), " ")
	ext := strings.TrimRight(string(rec[8:11]), " ")
	if len(base) > 0 && base[0] == 0x05 {
		base = string(rune(0xE5)) + base[1:]
	}
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// decodeDOSTime converts a packed DOS date/time pair (little-endian
// 16-bit each) to a time.Time in UTC; the server has no per-board
// timezone configured so timestamps are reported as recorded.
func decodeDOSTime(timeField, dateField []byte) time.Time {
	t := le16(timeField)
	d := le16(dateField)

	sec := int((t & 0x1F) * 2)
	min := int((t >> 5) & 0x3F)
	hour := int((t >> 11) & 0x1F)

	day := int(d & 0x1F)
	month := int((d >> 5) & 0x0F)
	year := int((d>>9)&0x7F) + 1980

	if day == 0 || month == 0 {
		return time.Time{}
	}
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC)
}
