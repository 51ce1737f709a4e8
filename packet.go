// The MIT License (MIT)
//
// Copyright (c) 2023 ms-s
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package rudp

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Kind tags the four packet types of the protocol.
type Kind byte

const (
	KindDATA Kind = 1
	KindACK  Kind = 2
	KindSYN  Kind = 4
	KindFIN  Kind = 5
)

func (k Kind) String() string {
	switch k {
	case KindDATA:
		return "DATA"
	case KindACK:
		return "ACK"
	case KindSYN:
		return "SYN"
	case KindFIN:
		return "FIN"
	default:
		return "BAD"
	}
}

// On-wire layout, big-endian:
//
//	byte  0     version
//	byte  1     kind
//	bytes 2-3   reserved
//	bytes 4-7   sequence number (u32)
//	bytes 8-11  payload length (i32, 0 for control packets)
//	bytes 12-   payload
//
// Some peers transmit the full fixed-size packet image regardless of
// payload length, so a decoder must tolerate trailing padding.
const headerSize = 12

var errMalformed = errors.New("malformed packet")

type packet struct {
	version byte
	kind    Kind
	seq     uint32
	payload []byte
}

// marshal renders the wire image. Control packets are bare headers;
// trailing padding is never emitted.
func (p *packet) marshal() []byte {
	buf := make([]byte, headerSize+len(p.payload))
	buf[0] = p.version
	buf[1] = byte(p.kind)
	binary.BigEndian.PutUint32(buf[4:], p.seq)
	binary.BigEndian.PutUint32(buf[8:], uint32(len(p.payload)))
	copy(buf[headerSize:], p.payload)
	return buf
}

// unmarshalPacket parses a received datagram. maxPayload bounds the
// declared payload length; anything malformed is rejected with
// errMalformed and silently discarded by the dispatcher.
func unmarshalPacket(data []byte, maxPayload int) (*packet, error) {
	if len(data) < headerSize {
		return nil, errors.WithStack(errMalformed)
	}
	if data[0] != Version {
		return nil, errors.WithStack(errMalformed)
	}
	kind := Kind(data[1])
	switch kind {
	case KindDATA, KindACK, KindSYN, KindFIN:
	default:
		return nil, errors.WithStack(errMalformed)
	}
	plen := int(int32(binary.BigEndian.Uint32(data[8:])))
	if plen < 0 || plen > maxPayload || plen > len(data)-headerSize {
		return nil, errors.WithStack(errMalformed)
	}
	p := &packet{
		version: data[0],
		kind:    kind,
		seq:     binary.BigEndian.Uint32(data[4:]),
	}
	if plen > 0 {
		p.payload = make([]byte, plen)
		copy(p.payload, data[headerSize:headerSize+plen])
	}
	return p, nil
}

// Sequence numbers are compared modulo 2^32: the sign of (a-b) as a
// 32-bit signed integer gives the ordering even across wrap-around.

func seqLT(a, b uint32) bool { return int32(a-b) < 0 }

func seqGEQ(a, b uint32) bool { return int32(a-b) >= 0 }
