// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package ajp

import (
	"errors"
	"io"
)

const (
	// DefaultPacketSize is the AJP/1.3 packet size agreed on by
	// mod_jk and mod_proxy_ajp unless configured otherwise.
	DefaultPacketSize = 8192

	// MaxPacketSize is the largest packet size either side will accept.
	MaxPacketSize = 65536

	headerSize = 4

	// chunkOverhead is the header plus prefix code, length and
	// terminator of a SEND_BODY_CHUNK message.
	chunkOverhead = headerSize + 4
)

// Prefix codes. Codes 2, 7, 8 and 10 travel from the web server to the
// container, the others travel back.
const (
	codeForwardRequest byte = 2
	codeSendBodyChunk  byte = 3
	codeSendHeaders    byte = 4
	codeEndResponse    byte = 5
	codeGetBodyChunk   byte = 6
	codeShutdown       byte = 7
	codePing           byte = 8
	codeCPongReply     byte = 9
	codeCPing          byte = 10
)

const nullString = 0xFFFF

var (
	requestMagic  = [2]byte{0x12, 0x34}
	responseMagic = [2]byte{'A', 'B'}
)

var (
	ErrBadMagic       = errors.New("ajp: bad packet magic")
	ErrPacketTooLarge = errors.New("ajp: packet exceeds maximum size")
)

// readPacket reads one web server to container packet into buf and
// returns its payload. The payload aliases buf.
func readPacket(r io.Reader, buf []byte) ([]byte, error) {
	if _, err := io.ReadFull(r, buf[:headerSize]); err != nil {
		return nil, err
	}
	if buf[0] != requestMagic[0] || buf[1] != requestMagic[1] {
		return nil, ErrBadMagic
	}
	n := int(buf[2])<<8 | int(buf[3])
	if headerSize+n > len(buf) {
		return nil, ErrPacketTooLarge
	}
	payload := buf[headerSize : headerSize+n]
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// encoder builds a single packet. The header is reserved up front and
// filled in by packet.
type encoder struct {
	magic [2]byte
	buf   []byte
}

func newEncoder(magic [2]byte, capacity int) *encoder {
	return &encoder{
		magic: magic,
		buf:   make([]byte, headerSize, capacity),
	}
}

func (e *encoder) writeByte(b byte) {
	e.buf = append(e.buf, b)
}

func (e *encoder) writeInt(v int) {
	e.buf = append(e.buf, byte(v>>8), byte(v))
}

func (e *encoder) writeBool(b bool) {
	if b {
		e.writeByte(1)
		return
	}
	e.writeByte(0)
}

// writeString appends a length prefixed, NUL terminated string.
func (e *encoder) writeString(s string) {
	e.writeInt(len(s))
	e.buf = append(e.buf, s...)
	e.writeByte(0)
}

func (e *encoder) writeBytes(b []byte) {
	e.buf = append(e.buf, b...)
}

func (e *encoder) packet(maxSize int) ([]byte, error) {
	if len(e.buf) > maxSize {
		return nil, ErrPacketTooLarge
	}
	n := len(e.buf) - headerSize
	e.buf[0] = e.magic[0]
	e.buf[1] = e.magic[1]
	e.buf[2] = byte(n >> 8)
	e.buf[3] = byte(n)
	return e.buf, nil
}

type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) readByte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) readInt() (int, error) {
	if d.pos+2 > len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := int(d.buf[d.pos])<<8 | int(d.buf[d.pos+1])
	d.pos += 2
	return v, nil
}

func (d *decoder) readBool() (bool, error) {
	b, err := d.readByte()
	return b != 0, err
}

func (d *decoder) readString() (string, error) {
	n, err := d.readInt()
	if err != nil {
		return "", err
	}
	return d.readStringBody(n)
}

// readStringBody reads the bytes of a string whose length prefix has
// already been consumed.
func (d *decoder) readStringBody(n int) (string, error) {
	if n == nullString {
		return "", nil
	}
	if d.pos+n+1 > len(d.buf) {
		return "", io.ErrUnexpectedEOF
	}
	s := string(d.buf[d.pos : d.pos+n])
	d.pos += n + 1
	return s, nil
}
