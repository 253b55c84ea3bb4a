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
	"os"
	"time"

	"github.com/spf13/afero"
)

// Afero wraps a FileSystem as a read-only afero.Fs, so tooling built
// against afero can address a FAT volume the same way it would any
// other afero-backed source. The `fs ls`/`fs cat` commands call
// FileSystem directly and do not go through this adapter. Mutating operations are not supported by a
// read-only TFTP server and panic, in the same style the reference afero
// FAT adapter leaves its own write path unimplemented.
type Afero struct {
	fs *FileSystem
}

// NewAfero returns an afero.Fs view over fs.
func NewAfero(fs *FileSystem) *Afero { return &Afero{fs: fs} }

var _ afero.Fs = (*Afero)(nil)

func (a *Afero) Name() string { return "fat" }

func (a *Afero) Open(name string) (afero.File, error) {
	entry, err := a.fs.Resolve(name)
	if err != nil {
		return nil, err
	}
	return &aferoFile{fs: a.fs, path: name, entry: entry}, nil
}

func (a *Afero) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	return a.Open(name)
}

func (a *Afero) Stat(name string) (os.FileInfo, error) {
	entry, err := a.fs.Resolve(name)
	if err != nil {
		return nil, err
	}
	return fileInfo{entry}, nil
}

func (a *Afero) Create(name string) (afero.File, error)           { panic("implement me: read-only filesystem") }
func (a *Afero) Mkdir(name string, perm os.FileMode) error         { panic("implement me: read-only filesystem") }
func (a *Afero) MkdirAll(path string, perm os.FileMode) error      { panic("implement me: read-only filesystem") }
func (a *Afero) Remove(name string) error                         { panic("implement me: read-only filesystem") }
func (a *Afero) RemoveAll(path string) error                      { panic("implement me: read-only filesystem") }
func (a *Afero) Rename(oldname, newname string) error             { panic("implement me: read-only filesystem") }
func (a *Afero) Chmod(name string, mode os.FileMode) error         { panic("implement me: read-only filesystem") }
func (a *Afero) Chown(name string, uid, gid int) error             { panic("implement me: read-only filesystem") }
func (a *Afero) Chtimes(name string, atime, mtime time.Time) error { panic("implement me: read-only filesystem") }

// aferoFile adapts *fat.File (and ReadDir, for directory entries) to the
// afero.File interface.
type aferoFile struct {
	fs    *FileSystem
	path  string
	entry DirEntry
	file  *File
	dir   []DirEntry
}

var _ afero.File = (*aferoFile)(nil)

func (f *aferoFile) ensureOpen() error {
	if f.entry.IsDir || f.file != nil {
		return nil
	}
	file, err := newFile(f.fs, f.entry)
	if err != nil {
		return err
	}
	f.file = file
	return nil
}

func (f *aferoFile) Read(p []byte) (int, error) {
	if err := f.ensureOpen(); err != nil {
		return 0, err
	}
	if f.entry.IsDir {
		return 0, os.ErrInvalid
	}
	return f.file.Read(p)
}

func (f *aferoFile) ReadAt(p []byte, off int64) (int, error) {
	if err := f.ensureOpen(); err != nil {
		return 0, err
	}
	if _, err := f.file.Seek(off, os_SeekStart); err != nil {
		return 0, err
	}
	return f.file.Read(p)
}

const os_SeekStart = 0

func (f *aferoFile) Seek(offset int64, whence int) (int64, error) {
	if err := f.ensureOpen(); err != nil {
		return 0, err
	}
	return f.file.Seek(offset, whence)
}

func (f *aferoFile) Close() error { return nil }
func (f *aferoFile) Name() string { return f.path }

func (f *aferoFile) Readdir(count int) ([]os.FileInfo, error) {
	entries, err := f.readdir(count)
	if err != nil {
		return nil, err
	}
	infos := make([]os.FileInfo, len(entries))
	for i, e := range entries {
		infos[i] = fileInfo{e}
	}
	return infos, nil
}

func (f *aferoFile) Readdirnames(count int) ([]string, error) {
	entries, err := f.readdir(count)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names, nil
}

func (f *aferoFile) readdir(count int) ([]DirEntry, error) {
	if f.dir == nil {
		var entries []DirEntry
		var err error
		if f.path == "/" || f.path == "" {
			entries, err = f.fs.ReadRootDir()
		} else {
			entries, err = f.fs.ReadDirAt(f.entry.FirstCluster)
		}
		if err != nil {
			return nil, err
		}
		f.dir = entries
	}
	if count > 0 && count < len(f.dir) {
		return f.dir[:count], nil
	}
	return f.dir, nil
}

func (f *aferoFile) Stat() (os.FileInfo, error) { return fileInfo{f.entry}, nil }
func (f *aferoFile) Sync() error                { return nil }
func (f *aferoFile) Truncate(size int64) error  { panic("implement me: read-only filesystem") }

func (f *aferoFile) Write(p []byte) (int, error)             { return 0, os.ErrPermission }
func (f *aferoFile) WriteAt(p []byte, off int64) (int, error) { return 0, os.ErrPermission }
func (f *aferoFile) WriteString(s string) (int, error)        { return 0, os.ErrPermission }

// fileInfo adapts a DirEntry to os.FileInfo.
type fileInfo struct{ e DirEntry }

func (fi fileInfo) Name() string       { return fi.e.Name }
func (fi fileInfo) Size() int64        { return int64(fi.e.Size) }
func (fi fileInfo) ModTime() time.Time { return fi.e.ModTime }
func (fi fileInfo) IsDir() bool        { return fi.e.IsDir }
func (fi fileInfo) Sys() interface{}   { return nil }
func (fi fileInfo) Mode() os.FileMode {
	if fi.e.IsDir {
		return os.ModeDir | 0o555
	}
	return 0o444
}
