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
	"sync/atomic"
)

// Snmp defines transport statistics indicators
type Snmp struct {
	BytesSent     uint64 // payload bytes accepted from the application
	BytesReceived uint64 // payload bytes delivered to the application
	OutPkts       uint64 // packets put on the wire, retransmissions included
	InPkts        uint64 // well-formed packets taken off the wire
	RetransSegs   uint64 // retransmitted SYN/FIN/DATA packets
	InErrs        uint64 // malformed datagrams discarded
	InDups        uint64 // duplicate DATA re-acknowledged without delivery
	InDiscards    uint64 // unsolicited or out-of-window packets discarded
	AcksIgnored   uint64 // ACKs not matching the head of the window
	WriteErrs     uint64 // underlying socket write failures, treated as loss
	ActiveOpens   uint64 // sender halves created by SendTo
	PassiveOpens  uint64 // receiver halves created by inbound SYN
	CurrEstab     uint64 // sessions currently in the table
	TimeoutEvents uint64 // packets that exhausted their retransmission budget
}

func newSnmp() *Snmp {
	return new(Snmp)
}

// Header returns all field names
func (s *Snmp) Header() []string {
	return []string{
		"BytesSent",
		"BytesReceived",
		"OutPkts",
		"InPkts",
		"RetransSegs",
		"InErrs",
		"InDups",
		"InDiscards",
		"AcksIgnored",
		"WriteErrs",
		"ActiveOpens",
		"PassiveOpens",
		"CurrEstab",
		"TimeoutEvents",
	}
}

// ToSlice returns current snmp info as a slice
func (s *Snmp) ToSlice() []string {
	snmp := s.Copy()
	return []string{
		fmt.Sprint(snmp.BytesSent),
		fmt.Sprint(snmp.BytesReceived),
		fmt.Sprint(snmp.OutPkts),
		fmt.Sprint(snmp.InPkts),
		fmt.Sprint(snmp.RetransSegs),
		fmt.Sprint(snmp.InErrs),
		fmt.Sprint(snmp.InDups),
		fmt.Sprint(snmp.InDiscards),
		fmt.Sprint(snmp.AcksIgnored),
		fmt.Sprint(snmp.WriteErrs),
		fmt.Sprint(snmp.ActiveOpens),
		fmt.Sprint(snmp.PassiveOpens),
		fmt.Sprint(snmp.CurrEstab),
		fmt.Sprint(snmp.TimeoutEvents),
	}
}

// Copy makes a copy of current snmp snapshot
func (s *Snmp) Copy() *Snmp {
	d := newSnmp()
	d.BytesSent = atomic.LoadUint64(&s.BytesSent)
	d.BytesReceived = atomic.LoadUint64(&s.BytesReceived)
	d.OutPkts = atomic.LoadUint64(&s.OutPkts)
	d.InPkts = atomic.LoadUint64(&s.InPkts)
	d.RetransSegs = atomic.LoadUint64(&s.RetransSegs)
	d.InErrs = atomic.LoadUint64(&s.InErrs)
	d.InDups = atomic.LoadUint64(&s.InDups)
	d.InDiscards = atomic.LoadUint64(&s.InDiscards)
	d.AcksIgnored = atomic.LoadUint64(&s.AcksIgnored)
	d.WriteErrs = atomic.LoadUint64(&s.WriteErrs)
	d.ActiveOpens = atomic.LoadUint64(&s.ActiveOpens)
	d.PassiveOpens = atomic.LoadUint64(&s.PassiveOpens)
	d.CurrEstab = atomic.LoadUint64(&s.CurrEstab)
	d.TimeoutEvents = atomic.LoadUint64(&s.TimeoutEvents)
	return d
}

// Reset sets all counters to zero
func (s *Snmp) Reset() {
	atomic.StoreUint64(&s.BytesSent, 0)
	atomic.StoreUint64(&s.BytesReceived, 0)
	atomic.StoreUint64(&s.OutPkts, 0)
	atomic.StoreUint64(&s.InPkts, 0)
	atomic.StoreUint64(&s.RetransSegs, 0)
	atomic.StoreUint64(&s.InErrs, 0)
	atomic.StoreUint64(&s.InDups, 0)
	atomic.StoreUint64(&s.InDiscards, 0)
	atomic.StoreUint64(&s.AcksIgnored, 0)
	atomic.StoreUint64(&s.WriteErrs, 0)
	atomic.StoreUint64(&s.ActiveOpens, 0)
	atomic.StoreUint64(&s.PassiveOpens, 0)
	atomic.StoreUint64(&s.CurrEstab, 0)
	atomic.StoreUint64(&s.TimeoutEvents, 0)
}

// DefaultSnmp is the library-wide statistics collector
var DefaultSnmp *Snmp = newSnmp()
