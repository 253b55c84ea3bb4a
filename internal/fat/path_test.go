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
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve_MatchesShortNameCaseInsensitively(t *testing.T) {
	root := shortDirEntry("BOOT", "BIN", 0, 2, 5)
	img := buildFAT12Image(t, root, map[uint32]uint16{2: 0x0FFF}, map[uint32][]byte{
		2: []byte("pxe\x00\x00"),
	})
	fs := openTestFS(t, img)

	entry, err := fs.Resolve("boot.bin")
	require.NoError(t, err)
	require.Equal(t, "BOOT.BIN", entry.Name)
	require.False(t, entry.IsDir)
	require.Equal(t, uint32(5), entry.Size)
}

func TestResolve_NotFound(t *testing.T) {
	img := buildFAT12Image(t, nil, nil, nil)
	fs := openTestFS(t, img)

	_, err := fs.Resolve("missing.bin")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_NotADirectory(t *testing.T) {
	root := shortDirEntry("BOOT", "BIN", 0, 2, 5)
	img := buildFAT12Image(t, root, map[uint32]uint16{2: 0x0FFF}, nil)
	fs := openTestFS(t, img)

	_, err := fs.Resolve("boot.bin/nested")
	require.ErrorIs(t, err, ErrNotADir)
}

func TestOpen_StreamsFullFileContent(t *testing.T) {
	content := []byte("pxelinux.0 test payload")
	root := shortDirEntry("PXE", "0", 0, 2, uint32(len(content)))
	img := buildFAT12Image(t, root, map[uint32]uint16{2: 0x0FFF}, map[uint32][]byte{
		2: content,
	})
	fs := openTestFS(t, img)

	f, err := fs.Open("pxe.0")
	require.NoError(t, err)
	require.Equal(t, int64(len(content)), f.Size())

	got, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestOpen_ZeroSizeFileIsEmptyRegardlessOfFirstCluster(t *testing.T) {
	// First-cluster deliberately points at a bad-cluster marker: a
	// zero-size file must never dereference it (§4.2 "Open for read").
	root := shortDirEntry("EMPTY", "BIN", 0, 2, 0)
	img := buildFAT12Image(t, root, map[uint32]uint16{2: 0x0FF7}, nil)
	fs := openTestFS(t, img)

	f, err := fs.Open("empty.bin")
	require.NoError(t, err)
	require.Equal(t, int64(0), f.Size())

	got, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestOpen_RejectsDirectory(t *testing.T) {
	root := shortDirEntry("BOOT", "", 0x10, 2, 0)
	img := buildFAT12Image(t, root, map[uint32]uint16{2: 0x0FFF}, nil)
	fs := openTestFS(t, img)

	_, err := fs.Open("boot")
	require.ErrorIs(t, err, ErrNotADir)
}

func TestReadDir_ReassemblesLongFileName(t *testing.T) {
	const longName = "notes.cfg" // fits within a single 13-char LFN entry

	shortName := shortDirEntry("ABVERY~1", "CFG", 0, 2, 4)
	checksum := checksum83(shortName[0:11])

	utf16 := make([]uint16, 0, 13)
	for _, r := range longName {
		utf16 = append(utf16, uint16(r))
	}
	for len(utf16) < 13 {
		if len(utf16) == len([]rune(longName)) {
			utf16 = append(utf16, 0x0000)
		} else {
			utf16 = append(utf16, 0xFFFF)
		}
	}

	lfnEntry := make([]byte, 32)
	lfnEntry[0] = 0x41 // sequence 1, last logical entry
	lfnEntry[11] = attrLongName
	lfnEntry[13] = checksum
	putChars := func(rec []byte, offsets []int, chars []uint16) {
		for i, off := range offsets {
			rec[off] = byte(chars[i])
			rec[off+1] = byte(chars[i] >> 8)
		}
	}
	offsets := []int{1, 3, 5, 7, 9, 14, 16, 18, 20, 22, 24, 28, 30}
	putChars(lfnEntry, offsets, utf16)

	var root []byte
	root = append(root, lfnEntry...)
	root = append(root, shortName...)

	img := buildFAT12Image(t, root, map[uint32]uint16{2: 0x0FFF}, map[uint32][]byte{
		2: []byte("cfg!"),
	})
	fs := openTestFS(t, img)

	entries, err := fs.ReadRootDir()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, longName, entries[0].Name)
}

func TestReadDir_FallsBackToShortNameOnChecksumMismatch(t *testing.T) {
	shortName := shortDirEntry("ABVERY~1", "CFG", 0, 2, 4)

	lfnEntry := make([]byte, 32)
	lfnEntry[0] = 0x41
	lfnEntry[11] = attrLongName
	lfnEntry[13] = 0xFF // deliberately wrong checksum

	var root []byte
	root = append(root, lfnEntry...)
	root = append(root, shortName...)

	img := buildFAT12Image(t, root, map[uint32]uint16{2: 0x0FFF}, nil)
	fs := openTestFS(t, img)

	entries, err := fs.ReadRootDir()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "ABVERY~1.CFG", entries[0].Name)
}
