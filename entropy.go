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
	"crypto/md5"
	"crypto/rand"
	"encoding/binary"
	"io"
)

// Entropy defines the source of initial sequence numbers for outgoing
// SYN packets. It is seeded once per endpoint; a deterministic
// implementation can be injected through Config for reproducible tests.
type Entropy interface {
	Init()
	Uint32() uint32
}

// isnMD5 derives sequence numbers by chaining md5 over a seed drawn
// from crypto/rand.
type isnMD5 struct {
	seed [md5.Size]byte
}

func (e *isnMD5) Init() {
	io.ReadFull(rand.Reader, e.seed[:])
}

func (e *isnMD5) Uint32() uint32 {
	if e.seed[0] == 0 { // entropy update
		io.ReadFull(rand.Reader, e.seed[:])
	}
	e.seed = md5.Sum(e.seed[:])
	return binary.BigEndian.Uint32(e.seed[:4])
}
