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
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

var (
	errPayloadTooLarge = errors.New("payload exceeds max packet size")
	errNilAddress      = errors.New("nil peer address")
	errClosedEndpoint  = errors.New("endpoint closed")
)

// RecvHandler observes every in-order datagram delivered by a peer.
// Invocations for one peer happen in the order the peer sent the data,
// with no gaps and no duplicates.
type RecvHandler func(e *Endpoint, raddr net.Addr, data []byte)

// EventHandler observes asynchronous session events. For EventTimeout
// raddr is the peer that stopped responding; for EventClosed it is the
// peer whose packet completed the close, or nil when Close completed
// with no pending traffic.
type EventHandler func(e *Endpoint, ev Event, raddr net.Addr)

// Endpoint is the per-port object owning the session table and the
// application callbacks. All sessions multiplex over one datagram
// socket; peers are told apart by source address.
//
// State is serialized by a single mutex shared between the receive
// loop and the timer scheduler, so handlers never observe a session
// mid-transition. Application callbacks are invoked outside the lock
// and may call back into the endpoint.
type Endpoint struct {
	conn    net.PacketConn
	ownConn bool
	config  Config

	mu           sync.Mutex
	sessions     map[string]*session
	recvHandler  RecvHandler
	eventHandler EventHandler

	// closeRequested is set by Close and consulted after every
	// acknowledgement until all sessions have finished both halves.
	closeRequested bool
	closed         bool

	sched *timedSched

	die     chan struct{}
	dieOnce sync.Once
}

// Listen binds a UDP socket on laddr and serves the protocol on it
// with default parameters.
func Listen(laddr string) (*Endpoint, error) {
	return ListenWithOptions(laddr, nil)
}

// ListenWithOptions binds a UDP socket on laddr with the given
// parameters. A nil config means defaults.
func ListenWithOptions(laddr string, config *Config) (*Endpoint, error) {
	udpaddr, err := net.ResolveUDPAddr("udp", laddr)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	conn, err := net.ListenUDP("udp", udpaddr)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return serveConn(conn, config, true)
}

// ServeConn serves the protocol over an existing packet connection,
// which the caller remains responsible for closing after EventClosed.
func ServeConn(conn net.PacketConn, config *Config) (*Endpoint, error) {
	return serveConn(conn, config, false)
}

func serveConn(conn net.PacketConn, config *Config, ownConn bool) (*Endpoint, error) {
	var cfg Config
	if config != nil {
		cfg = *config
	}
	cfg.normalize()
	cfg.Entropy.Init() // seeded once per endpoint

	e := &Endpoint{
		conn:     conn,
		ownConn:  ownConn,
		config:   cfg,
		sessions: make(map[string]*session),
		sched:    newTimedSched(),
		die:      make(chan struct{}),
	}
	go e.monitor()
	return e, nil
}

// LocalAddr returns the address the endpoint is bound to.
func (e *Endpoint) LocalAddr() net.Addr { return e.conn.LocalAddr() }

// NumSessions returns the number of peers in the session table,
// including sessions already finished or timed out.
func (e *Endpoint) NumSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// SetRecvHandler registers the data-delivery callback. Datagrams
// arriving while no handler is registered are acknowledged but lost.
func (e *Endpoint) SetRecvHandler(fn RecvHandler) {
	e.mu.Lock()
	e.recvHandler = fn
	e.mu.Unlock()
}

// SetEventHandler registers the session event callback.
func (e *Endpoint) SetEventHandler(fn EventHandler) {
	e.mu.Lock()
	e.eventHandler = fn
	e.mu.Unlock()
}

// SendTo queues data for reliable in-order delivery to raddr. The
// first send towards an unknown peer opens a session with a SYN
// handshake; data queued during the handshake is flushed once the SYN
// is acknowledged. Argument errors are reported synchronously, loss of
// the peer asynchronously through EventTimeout.
func (e *Endpoint) SendTo(data []byte, raddr net.Addr) error {
	if len(data) > e.config.MaxPacketSize {
		return errors.WithStack(errPayloadTooLarge)
	}
	if raddr == nil {
		return errors.WithStack(errNilAddress)
	}

	datum := make([]byte, len(data))
	copy(datum, data)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errors.WithStack(errClosedEndpoint)
	}

	s := e.sessions[raddr.String()]
	if s == nil {
		s = &session{remote: raddr}
		e.sessions[raddr.String()] = s
		atomic.AddUint64(&DefaultSnmp.CurrEstab, 1)
	}
	if s.sender == nil {
		snd := newSenderHalf(e.config.Entropy.Uint32(), e.config.Window)
		snd.queue = append(snd.queue, datum)
		s.sender = snd
		atomic.AddUint64(&DefaultSnmp.ActiveOpens, 1)

		syn := &packet{version: Version, kind: KindSYN, seq: snd.seq}
		snd.synTimer = e.sendTracked(syn, s.remote, false)
	} else {
		s.sender.queue = append(s.sender.queue, datum)
		if s.sender.state == stateOpen {
			e.drainLocked(s)
		}
	}
	atomic.AddUint64(&DefaultSnmp.BytesSent, uint64(len(datum)))
	e.mu.Unlock()
	return nil
}

// Close requests a graceful shutdown: every sender flushes its queue
// and window, exchanges FIN/ACK with its peer, and once all sessions
// have finished both halves the event handler receives EventClosed. A
// socket opened by Listen is closed at that point; a conn passed to
// ServeConn is left open. Close returns immediately.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errors.WithStack(errClosedEndpoint)
	}
	e.closeRequested = true
	e.emitFinsLocked()
	cbs := e.completeCloseLocked(nil)
	e.mu.Unlock()

	for _, cb := range cbs {
		cb()
	}
	return nil
}

// monitor is the receive loop feeding the dispatcher, one goroutine
// per endpoint.
func (e *Endpoint) monitor() {
	buf := make([]byte, headerSize+e.config.MaxPacketSize)
	for {
		n, from, err := e.conn.ReadFrom(buf)
		if err != nil {
			return
		}
		e.packetInput(buf[:n], from)
	}
}

// packetInput demultiplexes one datagram to the right session half.
// Malformed datagrams are dropped here without any state change.
func (e *Endpoint) packetInput(data []byte, raddr net.Addr) {
	p, err := unmarshalPacket(data, e.config.MaxPacketSize)
	if err != nil {
		atomic.AddUint64(&DefaultSnmp.InErrs, 1)
		return
	}
	atomic.AddUint64(&DefaultSnmp.InPkts, 1)
	e.trace(TraceRecv, p, raddr, false)

	var cbs []func()
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	switch p.kind {
	case KindSYN:
		e.handleSyn(p, raddr)
	case KindACK:
		cbs = e.handleAck(p, raddr)
	case KindDATA:
		cbs = e.handleData(p, raddr)
	case KindFIN:
		cbs = e.handleFin(p, raddr)
	}
	e.mu.Unlock()

	for _, cb := range cbs {
		cb()
	}
}

// handleSyn creates or refreshes the receiver half for the peer and
// acknowledges the SYN. A SYN while the receiver is already OPEN is
// discarded.
func (e *Endpoint) handleSyn(p *packet, raddr net.Addr) {
	s := e.sessions[raddr.String()]
	if s == nil {
		s = &session{remote: cloneAddr(raddr)}
		e.sessions[s.remote.String()] = s
		atomic.AddUint64(&DefaultSnmp.CurrEstab, 1)
	}
	if s.receiver == nil || s.receiver.state == stateOpening {
		if s.receiver == nil {
			atomic.AddUint64(&DefaultSnmp.PassiveOpens, 1)
		}
		s.receiver = &receiverHalf{
			state:       stateOpening,
			expectedSeq: p.seq + 1,
		}
		e.sendAck(s.receiver.expectedSeq, raddr)
		return
	}
	atomic.AddUint64(&DefaultSnmp.InDiscards, 1)
}

// handleAck drives the sender state machine. Only the exact ACK for
// the oldest outstanding packet advances it; everything else is
// ignored.
func (e *Endpoint) handleAck(p *packet, raddr net.Addr) (cbs []func()) {
	s := e.sessions[raddr.String()]
	if s == nil || s.sender == nil {
		atomic.AddUint64(&DefaultSnmp.InDiscards, 1)
		return nil
	}
	snd := s.sender

	switch snd.state {
	case stateSynSent:
		if p.seq == snd.seq+1 {
			snd.synTimer.Stop()
			snd.synTimer = nil
			snd.state = stateOpen
			e.drainLocked(s)
			if e.closeRequested {
				e.emitFinsLocked()
			}
		} else {
			atomic.AddUint64(&DefaultSnmp.AcksIgnored, 1)
		}

	case stateOpen:
		if snd.window[0].pkt != nil && snd.window[0].pkt.seq == p.seq-1 {
			snd.window[0].timer.Stop()
			snd.shiftLeft()
			e.drainLocked(s)
			if e.closeRequested {
				e.emitFinsLocked()
			}
		} else {
			atomic.AddUint64(&DefaultSnmp.AcksIgnored, 1)
		}

	case stateFinSent:
		if p.seq == snd.seq+1 {
			snd.finTimer.Stop()
			snd.finTimer = nil
			snd.finished = true
			cbs = e.completeCloseLocked(raddr)
		} else {
			atomic.AddUint64(&DefaultSnmp.AcksIgnored, 1)
		}
	}
	return cbs
}

// handleData acknowledges and delivers in-order DATA, re-acknowledges
// duplicates within the recovery window, and drops everything else.
func (e *Endpoint) handleData(p *packet, raddr net.Addr) (cbs []func()) {
	s := e.sessions[raddr.String()]
	if s == nil || s.receiver == nil {
		atomic.AddUint64(&DefaultSnmp.InDiscards, 1)
		return nil
	}
	rcv := s.receiver

	// the first in-order DATA completes the receiver's handshake
	if rcv.state == stateOpening && p.seq == rcv.expectedSeq {
		rcv.state = stateOpen
	}

	switch {
	case p.seq == rcv.expectedSeq:
		e.sendAck(p.seq+1, raddr)
		rcv.expectedSeq = p.seq + 1
		atomic.AddUint64(&DefaultSnmp.BytesReceived, uint64(len(p.payload)))
		if fn := e.recvHandler; fn != nil {
			payload := p.payload
			cbs = append(cbs, func() { fn(e, raddr, payload) })
		}

	case seqGEQ(p.seq, rcv.expectedSeq-uint32(e.config.Window)) && seqLT(p.seq, rcv.expectedSeq):
		// our ACK was lost and the peer retransmitted: re-ACK but do
		// not deliver again
		e.sendAck(p.seq+1, raddr)
		atomic.AddUint64(&DefaultSnmp.InDups, 1)

	default:
		atomic.AddUint64(&DefaultSnmp.InDiscards, 1)
	}
	return cbs
}

// handleFin acknowledges an in-order FIN and marks the receiver half
// finished. FINs outside the expected sequence, or before any data has
// opened the receiver, are dropped; the peer retransmits.
func (e *Endpoint) handleFin(p *packet, raddr net.Addr) (cbs []func()) {
	s := e.sessions[raddr.String()]
	if s == nil || s.receiver == nil {
		atomic.AddUint64(&DefaultSnmp.InDiscards, 1)
		return nil
	}
	rcv := s.receiver

	if rcv.state == stateOpen && p.seq == rcv.expectedSeq {
		e.sendAck(p.seq+1, raddr)
		rcv.finished = true
		cbs = e.completeCloseLocked(raddr)
	} else {
		atomic.AddUint64(&DefaultSnmp.InDiscards, 1)
	}
	return cbs
}

// drainLocked moves queued data into empty window slots: each datum
// takes the next sequence number, goes on the wire, and arms its own
// retransmission timer. Runs after the handshake completes and after
// every ack-shift.
func (e *Endpoint) drainLocked(s *session) {
	snd := s.sender
	if snd.state != stateOpen {
		return
	}
	for len(snd.queue) > 0 && !snd.windowFull() {
		i := snd.firstFree()
		snd.seq++
		datap := &packet{
			version: Version,
			kind:    KindDATA,
			seq:     snd.seq,
			payload: snd.queue[0],
		}
		snd.queue[0] = nil
		snd.queue = snd.queue[1:]
		snd.window[i] = windowSlot{pkt: datap}
		snd.window[i].timer = e.sendTracked(datap, s.remote, false)
	}
}

// emitFinsLocked starts the FIN handshake for every sender that has
// gone quiescent, once a close has been requested.
func (e *Endpoint) emitFinsLocked() {
	for _, s := range e.sessions {
		snd := s.sender
		if snd == nil || snd.finished || snd.state != stateOpen {
			continue
		}
		if len(snd.queue) > 0 || !snd.windowEmpty() {
			continue
		}
		snd.seq++
		fin := &packet{version: Version, kind: KindFIN, seq: snd.seq}
		snd.finTimer = e.sendTracked(fin, s.remote, false)
		snd.state = stateFinSent
	}
}

// completeCloseLocked finishes the shutdown once every session has
// finished both halves: the endpoint is marked closed, the timer
// scheduler is stopped, and a socket opened by Listen is closed, which
// also ends the receive loop. A conn passed to ServeConn stays open and
// its receive loop keeps reading, ignoring every packet, until the
// caller closes it. Returns the deferred event callback.
func (e *Endpoint) completeCloseLocked(raddr net.Addr) []func() {
	if !e.closeRequested || e.closed {
		return nil
	}
	for _, s := range e.sessions {
		if s.sender != nil && !s.sender.finished {
			return nil
		}
		if s.receiver != nil && !s.receiver.finished {
			return nil
		}
	}

	e.closed = true
	e.dieOnce.Do(func() { close(e.die) })
	e.sched.Close()
	if e.ownConn {
		e.conn.Close()
	}
	if n := len(e.sessions); n > 0 {
		atomic.AddUint64(&DefaultSnmp.CurrEstab, ^uint64(n-1))
	}

	if fn := e.eventHandler; fn != nil {
		return []func(){func() { fn(e, EventClosed, raddr) }}
	}
	return nil
}

// onTimeout re-enters the dispatcher when a retransmission timer
// fires. The packet image and peer address were captured by value when
// the timer was armed.
func (e *Endpoint) onTimeout(p *packet, raddr net.Addr) {
	var cbs []func()
	e.mu.Lock()
	s := e.sessions[raddr.String()]
	if s == nil || s.sender == nil || e.closed {
		e.mu.Unlock()
		return
	}
	snd := s.sender

	timeout := func() {
		atomic.AddUint64(&DefaultSnmp.TimeoutEvents, 1)
		if fn := e.eventHandler; fn != nil {
			cbs = append(cbs, func() { fn(e, EventTimeout, raddr) })
		}
	}

	switch p.kind {
	case KindSYN:
		if snd.state != stateSynSent {
			break // acknowledged in the meantime
		}
		if snd.synRetries >= e.config.MaxRetrans {
			timeout()
		} else {
			snd.synRetries++
			snd.synTimer = e.sendTracked(p, raddr, true)
		}

	case KindFIN:
		if snd.state != stateFinSent || snd.finished {
			break
		}
		if snd.finRetries >= e.config.MaxRetrans {
			timeout()
		} else {
			snd.finRetries++
			snd.finTimer = e.sendTracked(p, raddr, true)
		}

	case KindDATA:
		i := snd.slotBySeq(p.seq)
		if i < 0 {
			break // acknowledged in the meantime
		}
		if snd.window[i].retries >= e.config.MaxRetrans {
			timeout()
		} else {
			snd.window[i].retries++
			snd.window[i].timer = e.sendTracked(p, raddr, true)
		}
	}
	e.mu.Unlock()

	for _, cb := range cbs {
		cb()
	}
}

// sendAck puts a bare acknowledgement on the wire. ACKs are never
// retransmitted and carry no timer.
func (e *Endpoint) sendAck(seq uint32, raddr net.Addr) {
	ack := &packet{version: Version, kind: KindACK, seq: seq}
	e.transmit(ack, raddr, false)
}

// sendTracked transmits p and arms its one-shot retransmission timer,
// returning the handle the owning slot must keep.
func (e *Endpoint) sendTracked(p *packet, raddr net.Addr, retrans bool) *timerHandle {
	e.transmit(p, raddr, retrans)
	return e.sched.Put(func() { e.onTimeout(p, raddr) }, time.Now().Add(e.config.Timeout))
}

// transmit is the single point where packets hit the socket. A write
// failure is indistinguishable from on-wire loss and is handled by the
// retransmission machinery.
func (e *Endpoint) transmit(p *packet, raddr net.Addr, retrans bool) {
	e.trace(TraceSend, p, raddr, retrans)
	if _, err := e.conn.WriteTo(p.marshal(), raddr); err != nil {
		atomic.AddUint64(&DefaultSnmp.WriteErrs, 1)
		return
	}
	atomic.AddUint64(&DefaultSnmp.OutPkts, 1)
	if retrans {
		atomic.AddUint64(&DefaultSnmp.RetransSegs, 1)
	}
}

// cloneAddr pins down the peer address of an inbound session; some
// PacketConn implementations reuse the addr value between reads.
func cloneAddr(addr net.Addr) net.Addr {
	if ua, ok := addr.(*net.UDPAddr); ok {
		dup := *ua
		dup.IP = append(net.IP(nil), ua.IP...)
		return &dup
	}
	return addr
}
