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
	"fmt"
	"net"
)

// TraceDir tells whether a traced packet was sent or received.
type TraceDir int

const (
	TraceSend TraceDir = iota + 1
	TraceRecv
)

func (d TraceDir) String() string {
	if d == TraceSend {
		return "send"
	}
	return "recv"
}

// Trace is one structured record per packet crossing the endpoint.
type Trace struct {
	Dir     TraceDir
	Kind    Kind
	Seq     uint32
	Len     int // payload length
	Addr    net.Addr
	Retrans bool
}

func (t Trace) String() string {
	return fmt.Sprintf("%s %s seq=%d len=%d peer=%v retrans=%v",
		t.Dir, t.Kind, t.Seq, t.Len, t.Addr, t.Retrans)
}

// TraceFunc observes packets for diagnostics. It runs on the
// endpoint's internal goroutines and on the goroutine calling SendTo or
// Close; implementations must be fast and must not call back into the
// endpoint.
type TraceFunc func(Trace)

func (e *Endpoint) trace(dir TraceDir, p *packet, addr net.Addr, retrans bool) {
	if e.config.Tracer == nil {
		return
	}
	e.config.Tracer(Trace{
		Dir:     dir,
		Kind:    p.kind,
		Seq:     p.seq,
		Len:     len(p.payload),
		Addr:    addr,
		Retrans: retrans,
	})
}
