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
	"fmt"
	"io"
)

// StreamSource is the shape a resolved file must expose to the TFTP
// transfer state machine: a readable byte stream plus its declared total
// length, used to compute tsize and the final block boundary.
type StreamSource interface {
	io.Reader
	Size() int64
}

// File streams the content of a resolved DirEntry by concatenating the
// bytes of its cluster chain. The chain is computed once at open so a
// Seek maps to a cluster index in O(1) instead of re-walking the FAT per
// call; a seek past a damaged chain still fails no worse than the eager
// walk at Open would have.
type File struct {
	fs    *FileSystem
	entry DirEntry
	chain []uint32
	off   int64
}

// newFile precomputes the cluster chain for entry (empty for zero-size
// files, per §4.2: "If size is 0 the stream is empty regardless of the
// first-cluster field").
func newFile(fs *FileSystem, entry DirEntry) (*File, error) {
	f := &File{fs: fs, entry: entry}
	if entry.Size == 0 {
		return f, nil
	}
	chain, err := fs.ClusterChain(entry.FirstCluster)
	if err != nil {
		return nil, fmt.Errorf("fat: open %q: %w", entry.Name, err)
	}
	f.chain = chain
	return f, nil
}

// Size returns the file's declared byte length.
func (f *File) Size() int64 { return int64(f.entry.Size) }

// Read fills p from the current offset, stopping at the declared file
// size regardless of how many full clusters the chain holds.
func (f *File) Read(p []byte) (int, error) {
	if f.off >= int64(f.entry.Size) {
		return 0, io.EOF
	}

	remaining := int64(f.entry.Size) - f.off
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}

	clusterBytes := f.fs.bpb.ClusterBytes
	n := 0
	for n < len(p) {
		clusterIdx := f.off / clusterBytes
		inCluster := f.off % clusterBytes
		if int(clusterIdx) >= len(f.chain) {
			break
		}

		toRead := clusterBytes - inCluster
		if remain := int64(len(p) - n); toRead > remain {
			toRead = remain
		}

		buf := make([]byte, toRead)
		off := f.fs.bpb.ClusterOffset(f.chain[clusterIdx]) + inCluster
		if _, err := f.fs.win.ReadAt(buf, off); err != nil {
			return n, fmt.Errorf("fat: read %q at offset %d: %w", f.entry.Name, f.off, err)
		}
		copy(p[n:], buf)

		n += len(buf)
		f.off += int64(len(buf))
	}

	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Seek repositions the read offset. A seek to O maps to cluster index
// floor(O / cluster_bytes) in the precomputed chain plus an in-cluster
// offset, resolved lazily on the next Read.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = f.off + offset
	case io.SeekEnd:
		target = int64(f.entry.Size) + offset
	default:
		return -1, fmt.Errorf("fat: File.Seek: invalid whence %d", whence)
	}
	if target < 0 {
		return -1, fmt.Errorf("fat: File.Seek: negative position")
	}
	f.off = target
	return target, nil
}
