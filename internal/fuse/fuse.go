//go:build linux
// +build linux

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
package fuse

import (
	"context"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/ostafen/digler-tftpd/internal/fat"
)

// FatFS exposes a read-only fat.FileSystem as a FUSE filesystem, for the
// debug `fs mount` subcommand: it mounts a served board image the same way
// it would be served over TFTP, but browsable with ordinary file tools.
type FatFS struct {
	fs *fat.FileSystem
}

// NewFatFS wraps fs for mounting.
func NewFatFS(fs *fat.FileSystem) *FatFS { return &FatFS{fs: fs} }

func (f *FatFS) Root() (fs.Node, error) {
	return &Dir{fs: f.fs, path: "", cluster: 0, isRoot: true}, nil
}

// Dir implements both fs.Node and fs.HandleReadDirAller over one FAT
// directory, identified by its first cluster (0 meaning the fixed root
// region on FAT12/16) plus the slash-joined path used to re-resolve files
// looked up beneath it.
type Dir struct {
	fs      *fat.FileSystem
	path    string
	cluster uint32
	isRoot  bool
}

func (*Dir) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Mode = os.ModeDir | 0555
	return nil
}

func (d *Dir) entries() ([]fat.DirEntry, error) {
	if d.isRoot {
		return d.fs.ReadRootDir()
	}
	return d.fs.ReadDirAt(d.cluster)
}

func (d *Dir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	entries, err := d.entries()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if !strings.EqualFold(e.Name, name) {
			continue
		}
		childPath := path.Join(d.path, e.Name)
		if e.IsDir {
			return &Dir{fs: d.fs, path: childPath, cluster: e.FirstCluster}, nil
		}
		return &File{fs: d.fs, path: childPath, size: int64(e.Size)}, nil
	}
	return nil, fuse.ENOENT
}

func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	entries, err := d.entries()
	if err != nil {
		return nil, err
	}

	out := make([]fuse.Dirent, len(entries))
	for i, e := range entries {
		typ := fuse.DT_File
		if e.IsDir {
			typ = fuse.DT_Dir
		}
		out[i] = fuse.Dirent{Inode: uint64(i + 1), Name: e.Name, Type: typ}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// File implements both fs.Node and fs.HandleReader over one resolved FAT
// file path, opening a fresh fat.File per Read call so concurrent handles
// on the same path don't share a cursor.
type File struct {
	fs   *fat.FileSystem
	path string
	size int64
}

func (f *File) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Mode = 0444
	a.Size = uint64(f.size)
	a.Mtime = time.Now()
	return nil
}

func (f *File) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	stream, err := f.fs.Open(f.path)
	if err != nil {
		return err
	}

	if _, err := stream.Seek(req.Offset, io.SeekStart); err != nil {
		return err
	}

	buf := make([]byte, req.Size)
	n, err := io.ReadFull(stream, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return err
	}
	resp.Data = buf[:n]
	return nil
}
