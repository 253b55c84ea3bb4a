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
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/ostafen/digler-tftpd/internal/boot"
)

// DefaultPort is used when the `[tftp]` section sets none.
const DefaultPort = "69"

// Config is the fully resolved server configuration: the listen address
// and the frozen set of boards to build a boot.Registry from.
type Config struct {
	Listen string
	Port   string
	Boards []*boot.Board
}

// Load reads path and every `*.conf` fragment named by its `includedir`
// key (globbed and merged in lexicographic order, later files winning),
// and resolves the merged document into a Config. A file that cannot be
// opened or parsed, or a bad includedir, fails at once; invalid board
// sections are accumulated with hashicorp/go-multierror rather than
// failing on the first one, so every bad board is reported together.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	doc, err := parseINI(path, f)
	if err != nil {
		return nil, err
	}

	baseDir := filepath.Dir(path)
	tftp := doc.section("tftp")
	if dir := tftp.keys["includedir"]; dir != "" {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(baseDir, dir)
		}
		matches, err := filepath.Glob(filepath.Join(dir, "*.conf"))
		if err != nil {
			return nil, fmt.Errorf("config: includedir %q: %w", dir, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			frag, err := loadFragment(m)
			if err != nil {
				return nil, err
			}
			doc.merge(frag)
		}
	}

	return resolve(doc, baseDir)
}

func loadFragment(path string) (*iniFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open include %q: %w", path, err)
	}
	defer f.Close()
	return parseINI(path, f)
}

// resolve walks the merged document and builds a Config, collecting every
// board validation failure (missing image, bad partition number,
// unparsable IP) into a single multierror instead of stopping at the
// first. Duplicate serials are not checked here.
func resolve(doc *iniFile, baseDir string) (*Config, error) {
	var errs *multierror.Error

	tftp := doc.section("tftp")
	cfg := &Config{
		Listen: tftp.keys["listen"],
		Port:   tftp.keys["port"],
	}
	if cfg.Port == "" {
		cfg.Port = DefaultPort
	}

	for _, s := range doc.sections {
		serial, ok := strings.CutPrefix(s.name, "board:")
		if !ok {
			continue
		}

		b, err := boardFromSection(serial, s, baseDir)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		cfg.Boards = append(cfg.Boards, b)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func boardFromSection(serial string, s *section, baseDir string) (*boot.Board, error) {
	image := s.keys["image"]
	if image == "" {
		return nil, fmt.Errorf("config: [board:%s]: missing required key \"image\"", serial)
	}
	if !filepath.IsAbs(image) {
		image = filepath.Join(baseDir, image)
	}

	partition := 1
	if raw, ok := s.keys["partition"]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("config: [board:%s]: invalid partition %q", serial, raw)
		}
		partition = n
	}

	b := &boot.Board{
		Serial:    boot.NormalizeSerial(serial),
		ImagePath: image,
		Partition: partition,
		Default:   strings.EqualFold(serial, "default"),
	}

	if raw, ok := s.keys["ip"]; ok && raw != "" {
		ipnet, err := parseACL(raw)
		if err != nil {
			return nil, fmt.Errorf("config: [board:%s]: invalid ip %q: %w", serial, raw, err)
		}
		b.IPNet = ipnet
	}

	return b, nil
}

// ParseBoardFlag parses a `--board SERIAL,PATH[,PARTITION[,IP]]` CLI flag
// value (§6 External Interfaces), the command-line augmentation form of a
// `[board:SERIAL]` config section: one board per repeated flag instead of
// a file.
func ParseBoardFlag(spec string) (*boot.Board, error) {
	parts := strings.Split(spec, ",")
	if len(parts) < 2 || len(parts) > 4 {
		return nil, fmt.Errorf("config: --board %q: want SERIAL,PATH[,PARTITION[,IP]]", spec)
	}

	serial, image := parts[0], parts[1]
	if serial == "" || image == "" {
		return nil, fmt.Errorf("config: --board %q: serial and path are required", spec)
	}

	b := &boot.Board{
		Serial:    boot.NormalizeSerial(serial),
		ImagePath: image,
		Partition: 1,
		Default:   strings.EqualFold(serial, "default"),
	}

	if len(parts) >= 3 && parts[2] != "" {
		n, err := strconv.Atoi(parts[2])
		if err != nil || n < 1 {
			return nil, fmt.Errorf("config: --board %q: invalid partition %q", spec, parts[2])
		}
		b.Partition = n
	}

	if len(parts) == 4 && parts[3] != "" {
		ipnet, err := parseACL(parts[3])
		if err != nil {
			return nil, fmt.Errorf("config: --board %q: invalid ip %q: %w", spec, parts[3], err)
		}
		b.IPNet = ipnet
	}

	return b, nil
}

// parseACL accepts either a bare IP address (treated as a /32 or /128
// host route) or a CIDR block.
func parseACL(raw string) (*net.IPNet, error) {
	if strings.Contains(raw, "/") {
		_, ipnet, err := net.ParseCIDR(raw)
		return ipnet, err
	}
	ip := net.ParseIP(raw)
	if ip == nil {
		return nil, fmt.Errorf("not a valid IP address")
	}
	bits := 32
	if ip.To4() == nil {
		bits = 128
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}
