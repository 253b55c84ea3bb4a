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
	"strings"
)

// ReadRootDir returns the entries of the filesystem's root directory.
func (fs *FileSystem) ReadRootDir() ([]DirEntry, error) {
	raw, err := fs.rootDirEntries()
	if err != nil {
		return nil, err
	}
	return ReadDir(raw)
}

// ReadDirAt returns the entries of the directory whose first cluster is c.
func (fs *FileSystem) ReadDirAt(c uint32) ([]DirEntry, error) {
	raw, err := fs.readClusterChainBytes(c)
	if err != nil {
		return nil, err
	}
	return ReadDir(raw)
}

// Resolve splits path on '/' and walks the directory tree from the root,
// matching each segment case-insensitively against either the reassembled
// long name or the 8.3 short name. It fails with ErrNotFound if any
// segment has no match, or ErrNotADir if a non-terminal segment names a
// plain file.
func (fs *FileSystem) Resolve(path string) (DirEntry, error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return DirEntry{Name: "/", IsDir: true}, nil
	}

	entries, err := fs.ReadRootDir()
	if err != nil {
		return DirEntry{}, err
	}

	var match DirEntry
	for i, seg := range segments {
		found := false
		for _, e := range entries {
			if strings.EqualFold(e.Name, seg) {
				match = e
				found = true
				break
			}
		}
		if !found {
			return DirEntry{}, fmt.Errorf("fat: resolve %q: %w", path, ErrNotFound)
		}

		last := i == len(segments)-1
		if !last {
			if !match.IsDir {
				return DirEntry{}, fmt.Errorf("fat: resolve %q: %w", path, ErrNotADir)
			}
			entries, err = fs.ReadDirAt(match.FirstCluster)
			if err != nil {
				return DirEntry{}, err
			}
		}
	}
	return match, nil
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Open resolves path and returns a File streaming its content, failing
// with ErrNotADir if the resolved entry is a directory.
func (fs *FileSystem) Open(path string) (*File, error) {
	entry, err := fs.Resolve(path)
	if err != nil {
		return nil, err
	}
	if entry.IsDir {
		return nil, fmt.Errorf("fat: open %q: %w", path, ErrNotADir)
	}
	return newFile(fs, entry)
}
