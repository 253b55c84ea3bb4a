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

// Package config loads the server's INI-style configuration: a `[tftp]`
// section plus one `[board:SERIAL]` section per board, spread optionally
// across an includedir of *.conf fragments (§6 External Interfaces). This
// file hand-rolls the minimal line scanner the format needs; everything
// downstream of it (multierror accumulation, board construction) uses
// third-party libraries instead.
package config

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// section is one `[name]` block's key/value pairs (an unordered map), plus
// the source line each key was last set on (for error messages).
type section struct {
	name string
	keys map[string]string
	line map[string]int
}

// iniFile is a parsed INI document: a default (nameless) section followed
// by zero or more named sections, in file order.
type iniFile struct {
	sections []*section
	byName   map[string]*section
}

func newINIFile() *iniFile {
	return &iniFile{byName: make(map[string]*section)}
}

func (f *iniFile) section(name string) *section {
	if s, ok := f.byName[name]; ok {
		return s
	}
	s := &section{name: name, keys: make(map[string]string), line: make(map[string]int)}
	f.sections = append(f.sections, s)
	f.byName[name] = s
	return s
}

// parseINI scans r line by line, recognizing `[section]` headers, `key =
// value` / `key: value` assignments, blank lines, and `;`/`#` comments.
// Keys before the first header land in the default (empty-name) section.
func parseINI(filename string, r io.Reader) (*iniFile, error) {
	f := newINIFile()
	cur := f.section("")

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, fmt.Errorf("%s:%d: malformed section header %q", filename, lineNo, line)
			}
			name := strings.TrimSpace(line[1 : len(line)-1])
			cur = f.section(name)
			continue
		}

		key, value, ok := splitAssignment(line)
		if !ok {
			return nil, fmt.Errorf("%s:%d: expected \"key = value\", got %q", filename, lineNo, line)
		}
		cur.keys[key] = value
		cur.line[key] = lineNo
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return f, nil
}

func splitAssignment(line string) (key, value string, ok bool) {
	for _, sep := range []string{"=", ":"} {
		if idx := strings.Index(line, sep); idx > 0 {
			return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
		}
	}
	return "", "", false
}

// merge overlays other's sections onto f: a key present in both keeps
// other's value (used to apply includedir fragments in lexicographic
// override order, per §6).
func (f *iniFile) merge(other *iniFile) {
	for _, os := range other.sections {
		s := f.section(os.name)
		for k, v := range os.keys {
			s.keys[k] = v
			s.line[k] = os.line[k]
		}
	}
}
