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
package boot_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ostafen/digler-tftpd/internal/boot"
)

func TestNewRegistry_LooksUpBySerial(t *testing.T) {
	reg, err := boot.NewRegistry([]*boot.Board{
		{Serial: "DEADBEEF", ImagePath: "/images/a.img"},
		{Serial: "10000000cafef00d", ImagePath: "/images/b.img"},
	})
	require.NoError(t, err)

	b, ok := reg.Lookup("deadbeef")
	require.True(t, ok)
	require.Equal(t, "/images/a.img", b.ImagePath)

	b, ok = reg.Lookup("cafef00d")
	require.True(t, ok)
	require.Equal(t, "/images/b.img", b.ImagePath)

	_, ok = reg.Lookup("00000000")
	require.False(t, ok)
}

func TestNewRegistry_RejectsDuplicateSerial(t *testing.T) {
	_, err := boot.NewRegistry([]*boot.Board{
		{Serial: "deadbeef", ImagePath: "/a"},
		{Serial: "DEADBEEF", ImagePath: "/b"},
	})
	require.Error(t, err)
}

func TestNewRegistry_RejectsMultipleDefaults(t *testing.T) {
	_, err := boot.NewRegistry([]*boot.Board{
		{Serial: "a", ImagePath: "/a", Default: true},
		{Serial: "b", ImagePath: "/b", Default: true},
	})
	require.Error(t, err)
}

func TestLookup_FallsBackToDefaultBoardOnEmptySerial(t *testing.T) {
	reg, err := boot.NewRegistry([]*boot.Board{
		{Serial: "deadbeef", ImagePath: "/a"},
		{Serial: "default", ImagePath: "/fallback.img", Default: true},
	})
	require.NoError(t, err)

	b, ok := reg.Lookup("")
	require.True(t, ok)
	require.Equal(t, "/fallback.img", b.ImagePath)
}

func TestLookup_NoFallbackWithoutDefaultBoard(t *testing.T) {
	reg, err := boot.NewRegistry([]*boot.Board{
		{Serial: "deadbeef", ImagePath: "/a"},
	})
	require.NoError(t, err)

	_, ok := reg.Lookup("")
	require.False(t, ok)
}
