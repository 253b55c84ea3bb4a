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

// Package wire encodes and decodes TFTP (RFC 1350) packets, including the
// RFC 2347 option-extension fields negotiated during RRQ/OACK.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Opcode identifies the packet type, the first 16-bit field on the wire.
type Opcode uint16

const (
	OpRRQ   Opcode = 1
	OpWRQ   Opcode = 2
	OpDATA  Opcode = 3
	OpACK   Opcode = 4
	OpERROR Opcode = 5
	OpOACK  Opcode = 6
)

// ErrorCode is the 16-bit code carried in an ERROR packet.
type ErrorCode uint16

const (
	ErrUndefined       ErrorCode = 0
	ErrFileNotFound    ErrorCode = 1
	ErrAccessViolation ErrorCode = 2
	ErrDiskFull        ErrorCode = 3
	ErrIllegalOp       ErrorCode = 4
	ErrUnknownTID      ErrorCode = 5
	ErrFileExists      ErrorCode = 6
	ErrNoSuchUser      ErrorCode = 7
	ErrTerminateOption ErrorCode = 8
)

var ErrMalformed = errors.New("wire: malformed TFTP packet")

// Option is one negotiated name/value pair from an RRQ/WRQ or OACK.
type Option struct {
	Name  string
	Value string
}

// RRQ is a decoded read (or write) request.
type RRQ struct {
	Opcode   Opcode // OpRRQ or OpWRQ
	Filename string
	Mode     string
	Options  []Option
}

// DATA is a decoded data packet; Payload aliases the input buffer, it is
// not copied.
type DATA struct {
	Block   uint16
	Payload []byte
}

// ACK is a decoded acknowledgement.
type ACK struct {
	Block uint16
}

// ErrorPacket is a decoded ERROR packet.
type ErrorPacket struct {
	Code    ErrorCode
	Message string
}

// OACK is a decoded options-acknowledgement.
type OACK struct {
	Options []Option
}

// Decode inspects the opcode and dispatches to the matching decoder,
// returning one of *RRQ, *DATA, *ACK, *ErrorPacket, *OACK.
func Decode(pkt []byte) (interface{}, error) {
	if len(pkt) < 2 {
		return nil, ErrMalformed
	}
	op := Opcode(binary.BigEndian.Uint16(pkt[0:2]))
	switch op {
	case OpRRQ, OpWRQ:
		return decodeRRQ(op, pkt[2:])
	case OpDATA:
		return decodeDATA(pkt[2:])
	case OpACK:
		return decodeACK(pkt[2:])
	case OpERROR:
		return decodeError(pkt[2:])
	case OpOACK:
		return decodeOACK(pkt[2:])
	default:
		return nil, fmt.Errorf("%w: unknown opcode %d", ErrMalformed, op)
	}
}

func cstrings(buf []byte) ([]string, error) {
	var out []string
	for len(buf) > 0 {
		i := bytes.IndexByte(buf, 0)
		if i < 0 {
			return nil, ErrMalformed
		}
		out = append(out, string(buf[:i]))
		buf = buf[i+1:]
	}
	return out, nil
}

// decodeFilename decodes a request's filename field as UTF-8 when the
// bytes are valid UTF-8, falling back to a byte-for-byte latin-1 mapping
// otherwise (§4.3).
func decodeFilename(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

func decodeRRQ(op Opcode, buf []byte) (*RRQ, error) {
	strs, err := cstrings(buf)
	if err != nil || len(strs) < 2 {
		return nil, ErrMalformed
	}

	req := &RRQ{
		Opcode:   op,
		Filename: decodeFilename([]byte(strs[0])),
		Mode:     strs[1],
	}
	for i := 2; i+1 < len(strs); i += 2 {
		req.Options = append(req.Options, Option{Name: strs[i], Value: strs[i+1]})
	}
	return req, nil
}

func decodeDATA(buf []byte) (*DATA, error) {
	if len(buf) < 2 {
		return nil, ErrMalformed
	}
	return &DATA{
		Block:   binary.BigEndian.Uint16(buf[0:2]),
		Payload: buf[2:],
	}, nil
}

func decodeACK(buf []byte) (*ACK, error) {
	if len(buf) < 2 {
		return nil, ErrMalformed
	}
	return &ACK{Block: binary.BigEndian.Uint16(buf[0:2])}, nil
}

func decodeError(buf []byte) (*ErrorPacket, error) {
	if len(buf) < 2 {
		return nil, ErrMalformed
	}
	strs, err := cstrings(buf[2:])
	msg := ""
	if err == nil && len(strs) > 0 {
		msg = strs[0]
	}
	return &ErrorPacket{
		Code:    ErrorCode(binary.BigEndian.Uint16(buf[0:2])),
		Message: msg,
	}, nil
}

func decodeOACK(buf []byte) (*OACK, error) {
	strs, err := cstrings(buf)
	if err != nil {
		return nil, err
	}
	o := &OACK{}
	for i := 0; i+1 < len(strs); i += 2 {
		o.Options = append(o.Options, Option{Name: strs[i], Value: strs[i+1]})
	}
	return o, nil
}

// EncodeRRQ serializes a read request with its options, mainly useful to
// tests and to the debug CLI; the server itself only ever decodes RRQs.
func EncodeRRQ(filename, mode string, opts []Option) []byte {
	var buf bytes.Buffer
	putOpcode(&buf, OpRRQ)
	putCString(&buf, filename)
	putCString(&buf, mode)
	for _, o := range opts {
		putCString(&buf, o.Name)
		putCString(&buf, o.Value)
	}
	return buf.Bytes()
}

// EncodeDATA serializes a DATA packet.
func EncodeDATA(block uint16, payload []byte) []byte {
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(OpDATA))
	binary.BigEndian.PutUint16(buf[2:4], block)
	copy(buf[4:], payload)
	return buf
}

// EncodeACK serializes an ACK packet.
func EncodeACK(block uint16) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint16(buf[0:2], uint16(OpACK))
	binary.BigEndian.PutUint16(buf[2:4], block)
	return buf
}

// EncodeError serializes an ERROR packet.
func EncodeError(code ErrorCode, message string) []byte {
	var buf bytes.Buffer
	putOpcode(&buf, OpERROR)
	binary.Write(&buf, binary.BigEndian, uint16(code))
	putCString(&buf, message)
	return buf.Bytes()
}

// EncodeOACK serializes an OACK packet.
func EncodeOACK(opts []Option) []byte {
	var buf bytes.Buffer
	putOpcode(&buf, OpOACK)
	for _, o := range opts {
		putCString(&buf, o.Name)
		putCString(&buf, o.Value)
	}
	return buf.Bytes()
}

func putOpcode(buf *bytes.Buffer, op Opcode) {
	binary.Write(buf, binary.BigEndian, uint16(op))
}

func putCString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
}

// FindOption looks up a named option case-insensitively, per §4.3's
// "option names are compared case-insensitively".
func FindOption(opts []Option, name string) (string, bool) {
	for _, o := range opts {
		if strings.EqualFold(o.Name, name) {
			return o.Value, true
		}
	}
	return "", false
}

// ParseUint parses a decimal option value, wrapping strconv's error in
// ErrMalformed so callers can treat every option-parsing failure uniformly.
func ParseUint(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}
