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
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ostafen/digler-tftpd/internal/disk"
	"github.com/ostafen/digler-tftpd/internal/diskio"
	"github.com/ostafen/digler-tftpd/internal/fuse"
)

// DefineFsCommand groups the debug filesystem subcommands: ls, cat and
// mount open the same board image/partition a netboot client would be
// served from, for inspecting a board's FAT volume without a TFTP client,
// and info lists the image's partition table.
func DefineFsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fs",
		Short: "Inspect a board image's FAT filesystem directly",
	}
	cmd.PersistentFlags().IntP("partition", "p", 1, "1-based partition number within the image")
	cmd.AddCommand(defineFsLsCommand())
	cmd.AddCommand(defineFsCatCommand())
	cmd.AddCommand(defineFsMountCommand())
	cmd.AddCommand(defineFsInfoCommand())
	return cmd
}

func defineFsInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "info <image_path>",
		Short:        "Print an image's MBR partition table",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := diskio.Open(args[0])
			if err != nil {
				return fmt.Errorf("open image %q: %w", args[0], err)
			}
			defer img.Close()

			buf := make([]byte, 512)
			if _, err := img.Window().ReadAt(buf, 0); err != nil {
				return fmt.Errorf("read MBR: %w", err)
			}
			mbr, err := disk.ParseMBR(buf)
			if err != nil {
				return err
			}
			fmt.Println(mbr.String())
			return nil
		},
	}
}

func defineFsLsCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "ls <image_path> [dir]",
		Short:        "List a directory in a board image",
		Args:         cobra.RangeArgs(1, 2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			partition, _ := cmd.Flags().GetInt("partition")
			fs, closeFn, err := openPartitionFS(args[0], partition)
			if err != nil {
				return err
			}
			defer closeFn()

			dir := ""
			if len(args) == 2 {
				dir = args[1]
			}

			entries, err := entriesAt(fs, dir)
			if err != nil {
				return err
			}
			for _, e := range entries {
				suffix := ""
				if e.IsDir {
					suffix = "/"
				}
				fmt.Printf("%8d  %s%s\n", e.Size, e.Name, suffix)
			}
			return nil
		},
	}
}

func defineFsCatCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "cat <image_path> <file_path>",
		Short:        "Print a file from a board image to stdout",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			partition, _ := cmd.Flags().GetInt("partition")
			fs, closeFn, err := openPartitionFS(args[0], partition)
			if err != nil {
				return err
			}
			defer closeFn()

			f, err := fs.Open(args[1])
			if err != nil {
				return err
			}
			_, err = io.Copy(os.Stdout, f)
			return err
		},
	}
}

func defineFsMountCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "mount <image_path> <mountpoint>",
		Short:        "Mount a board image's FAT filesystem read-only via FUSE",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			partition, _ := cmd.Flags().GetInt("partition")
			fs, closeFn, err := openPartitionFS(args[0], partition)
			if err != nil {
				return err
			}
			defer closeFn()

			return fuse.Mount(args[1], fs)
		},
	}
	return cmd
}
