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
package boot

import "fmt"

// Registry is a frozen snapshot of the boards a server knows about. It is
// immutable once built: a configuration reload builds a fresh Registry and
// atomically swaps it in, so in-flight transfers keep resolving against the
// snapshot they captured (§5 Shared resources).
type Registry struct {
	bySerial map[string]*Board
	defBoard *Board // the sole board with Default=true, if exactly one exists
}

// NewRegistry builds a Registry from boards, indexing each by its
// normalized serial. If exactly one board is marked Default, it becomes
// the fallback served to clients whose request carries no serial prefix.
func NewRegistry(boards []*Board) (*Registry, error) {
	r := &Registry{bySerial: make(map[string]*Board, len(boards))}

	var defaults int
	for _, b := range boards {
		key := NormalizeSerial(b.Serial)
		if key == "" {
			return nil, fmt.Errorf("boot: board with empty serial")
		}
		if _, dup := r.bySerial[key]; dup {
			return nil, fmt.Errorf("boot: duplicate board serial %q", key)
		}
		r.bySerial[key] = b
		if b.Default {
			defaults++
			r.defBoard = b
		}
	}
	if defaults > 1 {
		return nil, fmt.Errorf("boot: at most one board may be marked default, found %d", defaults)
	}
	return r, nil
}

// Lookup finds the board matching serial, falling back to the registry's
// sole default board if serial is empty (the documented no-prefix case).
func (r *Registry) Lookup(serial string) (*Board, bool) {
	if serial == "" {
		if r.defBoard != nil {
			return r.defBoard, true
		}
		return nil, false
	}
	b, ok := r.bySerial[NormalizeSerial(serial)]
	return b, ok
}

// Boards returns every board in the registry, for diagnostic listing.
func (r *Registry) Boards() []*Board {
	out := make([]*Board, 0, len(r.bySerial))
	for _, b := range r.bySerial {
		out = append(out, b)
	}
	return out
}
