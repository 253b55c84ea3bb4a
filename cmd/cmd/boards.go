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

	"github.com/spf13/cobra"

	"github.com/ostafen/digler-tftpd/internal/boot"
	"github.com/ostafen/digler-tftpd/internal/config"
	"github.com/ostafen/digler-tftpd/internal/disk"
	"github.com/ostafen/digler-tftpd/internal/diskio"
)

// DefineBoardsCommand builds the `boards` subcommand: parse a config file
// the same way `serve` would and print the resolved board registry,
// useful for validating a config before pointing a server at it.
func DefineBoardsCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "boards <config_path>",
		Short:        "List the boards a config file resolves to",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}

			reg, err := boot.NewRegistry(cfg.Boards)
			if err != nil {
				return err
			}

			resolver := boot.NewBoardResolver(reg, disk.NewMBRLocator(), diskio.Open)
			if err := resolver.Validate(); err != nil {
				fmt.Printf("warning: %v\n", err)
			}

			fmt.Printf("listen %s:%s\n", cfg.Listen, cfg.Port)
			for _, b := range reg.Boards() {
				acl := "any"
				if b.IPNet != nil {
					acl = b.IPNet.String()
				}
				status := ""
				if b.Default {
					status += " (default)"
				}
				if b.Degraded {
					status += " (degraded)"
				}
				fmt.Printf("  %-20s image=%-40s partition=%d ip=%s%s\n",
					b.Serial, b.ImagePath, b.Partition, acl, status)
			}
			return nil
		},
	}
}
