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

// Package rudp is a reliable datagram library for golang.
//
// This library layers connection-oriented, in-order, reliable delivery
// of bounded datagrams on top of UDP (or any net.PacketConn). A single
// endpoint serves an arbitrary number of remote peers concurrently: for
// each peer it keeps a sender half and a receiver half, opened with a
// SYN handshake, driven by a fixed-size sliding window with cumulative
// acknowledgement, and torn down with a FIN handshake.
//
// Unlike a stream transport, the unit of delivery is the datagram
// passed to SendTo: the peer's receive handler observes the same byte
// slices, in order, exactly once.
package rudp

import (
	"time"
)

// Version is the protocol version carried in every packet header.
// Peers with a different version byte are ignored.
const Version = 1

const (
	// DefaultMaxPacketSize bounds a single payload in bytes.
	DefaultMaxPacketSize = 1000

	// DefaultWindow is the number of in-flight unacknowledged packets
	// a sender may hold per peer.
	DefaultWindow = 3

	// DefaultTimeout is the retransmission timeout for SYN, FIN and
	// DATA packets.
	DefaultTimeout = 2000 * time.Millisecond

	// DefaultMaxRetrans is the number of retransmissions of a single
	// packet after which the session is reported as timed out.
	DefaultMaxRetrans = 5
)

// Event is the kind of asynchronous notification delivered to the
// event handler registered with SetEventHandler.
type Event int

const (
	// EventTimeout reports that some packet towards the peer exhausted
	// its retransmission budget. The session is left in place but is
	// not usable afterwards.
	EventTimeout Event = iota + 1

	// EventClosed reports that a close requested with Close has
	// completed. A socket opened by Listen has been closed by then; a
	// conn passed to ServeConn is still open.
	EventClosed
)

func (ev Event) String() string {
	switch ev {
	case EventTimeout:
		return "TIMEOUT"
	case EventClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Config parameterizes an Endpoint. The zero value of any field is
// replaced by the corresponding default.
type Config struct {
	// MaxPacketSize bounds the payload accepted by SendTo and the
	// payload length accepted from the wire.
	MaxPacketSize int

	// Window is the sliding window size in packets.
	Window int

	// Timeout is the retransmission timeout.
	Timeout time.Duration

	// MaxRetrans is the retransmission budget per packet.
	MaxRetrans int

	// Entropy generates initial sequence numbers for outgoing SYNs.
	// Defaults to a source seeded from crypto/rand once per endpoint;
	// inject a deterministic source to make tests reproducible.
	Entropy Entropy

	// Tracer, when non-nil, observes every packet sent and received.
	// It is invoked on the endpoint's internal goroutines and on the
	// goroutine calling SendTo or Close, in some cases with the endpoint
	// lock held, and must not call back into the endpoint.
	Tracer TraceFunc
}

// DefaultConfig returns the default endpoint parameters.
func DefaultConfig() *Config {
	return &Config{
		MaxPacketSize: DefaultMaxPacketSize,
		Window:        DefaultWindow,
		Timeout:       DefaultTimeout,
		MaxRetrans:    DefaultMaxRetrans,
	}
}

// normalize fills zero fields with defaults.
func (c *Config) normalize() {
	if c.MaxPacketSize <= 0 {
		c.MaxPacketSize = DefaultMaxPacketSize
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetrans <= 0 {
		c.MaxRetrans = DefaultMaxRetrans
	}
	if c.Entropy == nil {
		c.Entropy = new(isnMD5)
	}
}
