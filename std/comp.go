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

// Package std holds payload helpers shared by the demo binaries:
// snappy block compression and pre-shared-key sealing applied above
// the transport, and the periodic statistics logger.
package std

import (
	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// Pipeline transforms application payloads on their way into the
// transport and restores them on the way out. Payloads are opaque to
// the protocol, so neither stage disturbs wire compatibility.
type Pipeline struct {
	comp   bool
	sealer *Sealer // nil means plaintext
	limit  int     // transport payload bound after encoding
}

// NewPipeline builds a payload pipeline; limit is the transport's
// maximum packet size the encoded payload must fit in.
func NewPipeline(comp bool, sealer *Sealer, limit int) *Pipeline {
	return &Pipeline{comp: comp, sealer: sealer, limit: limit}
}

// Encode compresses and seals one payload.
func (p *Pipeline) Encode(data []byte) ([]byte, error) {
	if p.comp {
		data = snappy.Encode(nil, data)
	}
	if p.sealer != nil {
		var err error
		if data, err = p.sealer.Seal(data); err != nil {
			return nil, err
		}
	}
	if len(data) > p.limit {
		return nil, errors.Errorf("encoded payload %d exceeds packet size %d", len(data), p.limit)
	}
	return data, nil
}

// Decode reverses Encode.
func (p *Pipeline) Decode(data []byte) ([]byte, error) {
	if p.sealer != nil {
		var err error
		if data, err = p.sealer.Open(data); err != nil {
			return nil, err
		}
	}
	if p.comp {
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		data = out
	}
	return data, nil
}
