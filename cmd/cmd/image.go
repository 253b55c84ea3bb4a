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
package cmd

import (
	"fmt"

	"github.com/ostafen/digler-tftpd/internal/disk"
	"github.com/ostafen/digler-tftpd/internal/diskio"
	"github.com/ostafen/digler-tftpd/internal/fat"
)

// openPartitionFS opens imagePath and resolves its FAT filesystem on the
// given 1-based partition, the same path boot.BoardResolver takes at serve
// time, so `fs ls`/`fs cat`/`fs mount` see exactly what a netbooting client
// would be served.
func openPartitionFS(imagePath string, partition int) (*fat.FileSystem, func() error, error) {
	img, err := diskio.Open(imagePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open image %q: %w", imagePath, err)
	}

	win, _, err := disk.NewMBRLocator().Partition(img.Window(), partition)
	if err != nil {
		img.Close()
		return nil, nil, fmt.Errorf("locate partition %d: %w", partition, err)
	}

	fs, err := fat.Open(win)
	if err != nil {
		img.Close()
		return nil, nil, fmt.Errorf("open FAT filesystem on partition %d: %w", partition, err)
	}
	return fs, img.Close, nil
}

// entriesAt lists dir's contents, the root directory when dir is empty.
func entriesAt(fs *fat.FileSystem, dir string) ([]fat.DirEntry, error) {
	if dir == "" {
		return fs.ReadRootDir()
	}
	entry, err := fs.Resolve(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", dir, err)
	}
	if !entry.IsDir {
		return nil, fmt.Errorf("%q is not a directory", dir)
	}
	return fs.ReadDirAt(entry.FirstCluster)
}
