package rudp

import (
	"bytes"
	"io"
	"net"
	"sync"
	"testing"
	"time"
)

// fixedEntropy pins the initial sequence number so tests are
// reproducible.
type fixedEntropy struct{ isn uint32 }

func (f *fixedEntropy) Init()          {}
func (f *fixedEntropy) Uint32() uint32 { return f.isn }

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }

type memPacket struct {
	data []byte
	from net.Addr
}

// memConn is an in-memory net.PacketConn pair with a pluggable
// outgoing drop filter, standing in for a lossy wire.
type memConn struct {
	addr net.Addr
	in   chan memPacket
	peer *memConn

	mu   sync.Mutex
	drop func(p *packet) bool // runs under mu; true drops the packet

	closeOnce sync.Once
	done      chan struct{}
}

func newMemPair() (*memConn, *memConn) {
	a := &memConn{addr: memAddr("alice"), in: make(chan memPacket, 256), done: make(chan struct{})}
	b := &memConn{addr: memAddr("bob"), in: make(chan memPacket, 256), done: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

func (c *memConn) setDrop(fn func(p *packet) bool) {
	c.mu.Lock()
	c.drop = fn
	c.mu.Unlock()
}

func (c *memConn) ReadFrom(p []byte) (int, net.Addr, error) {
	select {
	case pkt := <-c.in:
		n := copy(p, pkt.data)
		return n, pkt.from, nil
	case <-c.done:
		return 0, nil, io.ErrClosedPipe
	}
}

func (c *memConn) WriteTo(b []byte, _ net.Addr) (int, error) {
	c.mu.Lock()
	if c.drop != nil {
		if pkt, err := unmarshalPacket(b, DefaultMaxPacketSize); err == nil && c.drop(pkt) {
			c.mu.Unlock()
			return len(b), nil
		}
	}
	c.mu.Unlock()

	data := append([]byte(nil), b...)
	select {
	case c.peer.in <- memPacket{data: data, from: c.addr}:
	case <-c.peer.done:
	}
	return len(b), nil
}

func (c *memConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *memConn) LocalAddr() net.Addr                { return c.addr }
func (c *memConn) SetDeadline(t time.Time) error      { return nil }
func (c *memConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *memConn) SetWriteDeadline(t time.Time) error { return nil }

func testConfig(isn uint32) *Config {
	return &Config{
		Window:     3,
		Timeout:    500 * time.Millisecond,
		MaxRetrans: 5,
		Entropy:    &fixedEntropy{isn: isn},
	}
}

func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// scenario: handshake plus a single datagram over real UDP
func TestHandshakeSingleDatagram(t *testing.T) {
	a, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	b, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer a.conn.Close()
	defer b.conn.Close()

	recv := make(chan []byte, 1)
	b.SetRecvHandler(func(_ *Endpoint, _ net.Addr, data []byte) {
		recv <- append([]byte(nil), data...)
	})

	if err := a.SendTo([]byte("hi"), b.LocalAddr()); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	select {
	case got := <-recv:
		if string(got) != "hi" {
			t.Fatalf("delivered %q, want %q", got, "hi")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("datagram never delivered")
	}

	waitFor(t, 2*time.Second, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		s := a.sessions[b.LocalAddr().String()]
		return s != nil && s.sender != nil &&
			s.sender.state == stateOpen && s.sender.windowEmpty() && len(s.sender.queue) == 0
	}, "sender never settled in OPEN with an empty window")

	if n := a.NumSessions(); n != 1 {
		t.Fatalf("NumSessions = %d, want 1", n)
	}
}

// scenario: three datagrams queued before the handshake completes are
// drained in order with consecutive sequence numbers
func TestWindowFillDrain(t *testing.T) {
	connA, connB := newMemPair()
	defer connA.Close()
	defer connB.Close()

	var mu sync.Mutex
	var dataSeqs []uint32
	seen := make(map[uint32]bool)
	connA.setDrop(func(p *packet) bool {
		mu.Lock()
		if p.kind == KindDATA && !seen[p.seq] {
			seen[p.seq] = true
			dataSeqs = append(dataSeqs, p.seq)
		}
		mu.Unlock()
		return false
	})

	a, _ := ServeConn(connA, testConfig(1000))
	b, _ := ServeConn(connB, testConfig(2000))

	var got [][]byte
	b.SetRecvHandler(func(_ *Endpoint, _ net.Addr, data []byte) {
		mu.Lock()
		got = append(got, append([]byte(nil), data...))
		mu.Unlock()
	})

	payloads := make([][]byte, 3)
	for i := range payloads {
		payloads[i] = bytes.Repeat([]byte{byte('1' + i)}, 100)
		if err := a.SendTo(payloads[i], connB.LocalAddr()); err != nil {
			t.Fatalf("SendTo %d: %v", i, err)
		}
	}

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, "three datagrams never delivered")

	mu.Lock()
	for i := range payloads {
		if !bytes.Equal(got[i], payloads[i]) {
			t.Fatalf("datagram %d out of order", i)
		}
	}
	for i, seq := range []uint32{1001, 1002, 1003} {
		if dataSeqs[i] != seq {
			t.Fatalf("DATA %d went out with seq %d, want %d", i, dataSeqs[i], seq)
		}
	}
	mu.Unlock()

	waitFor(t, 2*time.Second, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		s := a.sessions[connB.LocalAddr().String()]
		return s != nil && s.sender.windowEmpty() && len(s.sender.queue) == 0
	}, "window never emptied after three acks")
}

// scenario: a lost ACK triggers a retransmission which is
// re-acknowledged but not re-delivered
func TestLostAckRecovery(t *testing.T) {
	connA, connB := newMemPair()
	defer connA.Close()
	defer connB.Close()

	var dropMu sync.Mutex
	dropped := false
	connB.setDrop(func(p *packet) bool {
		dropMu.Lock()
		defer dropMu.Unlock()
		if p.kind == KindACK && p.seq == 2002 && !dropped {
			dropped = true
			return true
		}
		return false
	})

	cfgA := testConfig(2000)
	cfgA.Timeout = 50 * time.Millisecond
	a, _ := ServeConn(connA, cfgA)
	b, _ := ServeConn(connB, testConfig(7000))

	var mu sync.Mutex
	delivered := 0
	b.SetRecvHandler(func(_ *Endpoint, _ net.Addr, data []byte) {
		mu.Lock()
		delivered++
		mu.Unlock()
	})

	if err := a.SendTo([]byte("payload"), connB.LocalAddr()); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	waitFor(t, 3*time.Second, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		s := a.sessions[connB.LocalAddr().String()]
		return s != nil && s.sender.state == stateOpen && s.sender.windowEmpty()
	}, "sender never advanced past the retransmitted DATA")

	dropMu.Lock()
	if !dropped {
		dropMu.Unlock()
		t.Fatal("the ACK under test was never sent")
	}
	dropMu.Unlock()

	time.Sleep(200 * time.Millisecond) // catch a late duplicate delivery
	mu.Lock()
	defer mu.Unlock()
	if delivered != 1 {
		t.Fatalf("delivered %d times, want exactly once", delivered)
	}
}

// scenario: persistent SYN loss surfaces EventTimeout after the
// retransmission budget
func TestSynRetransTimeout(t *testing.T) {
	connA, connB := newMemPair()
	defer connA.Close()
	defer connB.Close()

	var mu sync.Mutex
	synCount := 0
	connA.setDrop(func(p *packet) bool {
		if p.kind == KindSYN {
			mu.Lock()
			synCount++
			mu.Unlock()
			return true
		}
		return false
	})

	cfg := testConfig(100)
	cfg.Timeout = 20 * time.Millisecond
	cfg.MaxRetrans = 2
	a, _ := ServeConn(connA, cfg)

	events := make(chan net.Addr, 1)
	a.SetEventHandler(func(_ *Endpoint, ev Event, raddr net.Addr) {
		if ev == EventTimeout {
			events <- raddr
		}
	})

	if err := a.SendTo([]byte("void"), connB.LocalAddr()); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	select {
	case raddr := <-events:
		if raddr.String() != connB.LocalAddr().String() {
			t.Fatalf("timeout for %v, want %v", raddr, connB.LocalAddr())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("EventTimeout never fired")
	}

	mu.Lock()
	if want := 1 + cfg.MaxRetrans; synCount != want {
		t.Fatalf("SYN hit the wire %d times, want %d", synCount, want)
	}
	mu.Unlock()
}

// scenario: graceful close emits FIN with the next sequence number and
// completes with EventClosed
func TestGracefulClose(t *testing.T) {
	connA, connB := newMemPair()
	defer connA.Close()
	defer connB.Close()

	var mu sync.Mutex
	var finSeq uint32
	connA.setDrop(func(p *packet) bool {
		if p.kind == KindFIN {
			mu.Lock()
			finSeq = p.seq
			mu.Unlock()
		}
		return false
	})

	a, _ := ServeConn(connA, testConfig(3000))
	b, _ := ServeConn(connB, testConfig(8000))

	recv := make(chan struct{}, 1)
	b.SetRecvHandler(func(_ *Endpoint, _ net.Addr, _ []byte) { recv <- struct{}{} })

	closed := make(chan struct{}, 1)
	a.SetEventHandler(func(_ *Endpoint, ev Event, _ net.Addr) {
		if ev == EventClosed {
			closed <- struct{}{}
		}
	})

	if err := a.SendTo([]byte("hi"), connB.LocalAddr()); err != nil {
		t.Fatalf("SendTo: %v", err)
	}
	<-recv

	// wait until the DATA is acknowledged so the close finds an idle
	// sender
	waitFor(t, 2*time.Second, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		s := a.sessions[connB.LocalAddr().String()]
		return s != nil && s.sender.windowEmpty()
	}, "DATA never acknowledged")

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("EventClosed never fired")
	}

	mu.Lock()
	if finSeq != 3002 {
		t.Fatalf("FIN went out with seq %d, want 3002", finSeq)
	}
	mu.Unlock()

	if err := a.SendTo([]byte("late"), connB.LocalAddr()); err == nil {
		t.Fatal("SendTo after close should fail")
	}
}

// scenario: both directions carry data and both endpoints close;
// CLOSED fires only once each side has finished sending and receiving
func TestBidirectionalClose(t *testing.T) {
	connA, connB := newMemPair()
	defer connA.Close()
	defer connB.Close()

	a, _ := ServeConn(connA, testConfig(4000))
	b, _ := ServeConn(connB, testConfig(5000))

	pong := make(chan struct{}, 1)
	a.SetRecvHandler(func(_ *Endpoint, _ net.Addr, _ []byte) { pong <- struct{}{} })
	// reply from inside the handler, which re-enters the endpoint
	b.SetRecvHandler(func(e *Endpoint, raddr net.Addr, _ []byte) {
		e.SendTo([]byte("pong"), raddr)
	})

	aClosed := make(chan struct{}, 1)
	bClosed := make(chan struct{}, 1)
	a.SetEventHandler(func(_ *Endpoint, ev Event, _ net.Addr) {
		if ev == EventClosed {
			aClosed <- struct{}{}
		}
	})
	b.SetEventHandler(func(_ *Endpoint, ev Event, _ net.Addr) {
		if ev == EventClosed {
			bClosed <- struct{}{}
		}
	})

	if err := a.SendTo([]byte("ping"), connB.LocalAddr()); err != nil {
		t.Fatalf("SendTo: %v", err)
	}
	<-pong

	if err := a.Close(); err != nil {
		t.Fatalf("a.Close: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("b.Close: %v", err)
	}

	for name, ch := range map[string]chan struct{}{"a": aClosed, "b": bClosed} {
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			t.Fatalf("%s: EventClosed never fired", name)
		}
	}
}

// sequence numbers straddling 2^32-1 must not confuse ordering
func TestSequenceWrap(t *testing.T) {
	connA, connB := newMemPair()
	defer connA.Close()
	defer connB.Close()

	a, _ := ServeConn(connA, testConfig(0xFFFFFFFE))
	b, _ := ServeConn(connB, testConfig(10))

	var mu sync.Mutex
	var got []string
	b.SetRecvHandler(func(_ *Endpoint, _ net.Addr, data []byte) {
		mu.Lock()
		got = append(got, string(data))
		mu.Unlock()
	})

	want := []string{"m0", "m1", "m2", "m3"}
	for _, m := range want {
		if err := a.SendTo([]byte(m), connB.LocalAddr()); err != nil {
			t.Fatalf("SendTo %s: %v", m, err)
		}
	}

	waitFor(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == len(want)
	}, "datagrams never delivered across the wrap")

	mu.Lock()
	defer mu.Unlock()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCloseWithNoSessions(t *testing.T) {
	connA, connB := newMemPair()
	defer connA.Close()
	defer connB.Close()

	a, _ := ServeConn(connA, testConfig(1))

	closed := make(chan net.Addr, 1)
	a.SetEventHandler(func(_ *Endpoint, ev Event, raddr net.Addr) {
		if ev == EventClosed {
			closed <- raddr
		}
	})

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case raddr := <-closed:
		if raddr != nil {
			t.Fatalf("expected nil peer address, got %v", raddr)
		}
	case <-time.After(time.Second):
		t.Fatal("EventClosed never fired for idle endpoint")
	}
}

func TestSendToValidation(t *testing.T) {
	connA, connB := newMemPair()
	defer connA.Close()
	defer connB.Close()

	a, _ := ServeConn(connA, testConfig(1))

	if err := a.SendTo(make([]byte, DefaultMaxPacketSize+1), connB.LocalAddr()); err == nil {
		t.Fatal("oversize payload should be rejected")
	}
	if err := a.SendTo([]byte("x"), nil); err == nil {
		t.Fatal("nil address should be rejected")
	}
}
