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
	"net"
)

// session states
const (
	stateSynSent = iota
	stateOpening
	stateOpen
	stateFinSent
)

// windowSlot is one in-flight DATA packet with its retransmission
// budget and the handle of the timer armed for it. A non-empty slot
// always has exactly one live timer.
type windowSlot struct {
	pkt     *packet
	retries int
	timer   *timerHandle
}

// senderHalf drives outbound data towards one peer.
type senderHalf struct {
	state int

	// seq is the sequence number most recently assigned, starting at
	// the SYN's random initial value. The next DATA or FIN takes seq+1.
	seq uint32

	// window holds in-flight unacknowledged packets; index 0 is the
	// oldest. Acknowledgements shift the slots left.
	window []windowSlot

	// queue is application data not yet assigned a window slot. It is
	// non-empty only while the window is full or the handshake is
	// still in flight.
	queue [][]byte

	synTimer   *timerHandle
	finTimer   *timerHandle
	synRetries int
	finRetries int

	// finished is set once our FIN has been acknowledged.
	finished bool
}

func newSenderHalf(isn uint32, window int) *senderHalf {
	return &senderHalf{
		state:  stateSynSent,
		seq:    isn,
		window: make([]windowSlot, window),
	}
}

func (snd *senderHalf) windowEmpty() bool {
	return snd.window[0].pkt == nil
}

func (snd *senderHalf) windowFull() bool {
	return snd.window[len(snd.window)-1].pkt != nil
}

// firstFree returns the lowest-index empty slot, or -1 when full.
func (snd *senderHalf) firstFree() int {
	for i := range snd.window {
		if snd.window[i].pkt == nil {
			return i
		}
	}
	return -1
}

// shiftLeft frees slot 0 and moves the remaining slots, retry counters
// and timer handles down by one.
func (snd *senderHalf) shiftLeft() {
	last := len(snd.window) - 1
	copy(snd.window, snd.window[1:])
	snd.window[last] = windowSlot{}
}

// slotBySeq finds the window slot holding the packet with the given
// sequence number, or -1.
func (snd *senderHalf) slotBySeq(seq uint32) int {
	for i := range snd.window {
		if snd.window[i].pkt != nil && snd.window[i].pkt.seq == seq {
			return i
		}
	}
	return -1
}

// receiverHalf accepts inbound data from one peer.
type receiverHalf struct {
	state int

	// expectedSeq is the sequence number the next in-order DATA or FIN
	// must carry.
	expectedSeq uint32

	// finished is set once the peer's FIN has been acknowledged.
	finished bool
}

// session pairs the two independent halves for one peer. Either half
// may be absent, depending on which direction has been initiated.
type session struct {
	remote   net.Addr
	sender   *senderHalf
	receiver *receiverHalf
}
