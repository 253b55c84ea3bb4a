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
	"net"
	"os"
	"strconv"
)

// sdListenFDsStart is the first inherited file descriptor under the
// sd_listen_fds convention; fds 0-2 are stdin/stdout/stderr.
const sdListenFDsStart = 3

// systemdListenUDP returns the UDP socket systemd passed via LISTEN_FDS/
// LISTEN_PID, or (nil, nil) if the process wasn't socket-activated, so the
// caller falls back to binding addr itself.
func systemdListenUDP() (*net.UDPConn, error) {
	pidStr := os.Getenv("LISTEN_PID")
	fdsStr := os.Getenv("LISTEN_FDS")
	if pidStr == "" || fdsStr == "" {
		return nil, nil
	}

	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid != os.Getpid() {
		return nil, nil
	}

	fds, err := strconv.Atoi(fdsStr)
	if err != nil || fds < 1 {
		return nil, fmt.Errorf("systemd: invalid LISTEN_FDS %q", fdsStr)
	}

	f := os.NewFile(uintptr(sdListenFDsStart), "systemd-socket")
	conn, err := net.FilePacketConn(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("systemd: inherited fd is not a usable socket: %w", err)
	}

	udpConn, ok := conn.(*net.UDPConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("systemd: inherited fd %d is not a UDP socket", sdListenFDsStart)
	}
	return udpConn, nil
}
