// Package monitor implements the Response Monitor: a background goroutine
// that owns the read side of a Transport, parses SMTP replies off it, and
// delivers exactly one Response (or one error) per in-flight command to a
// one-shot channel. It also owns the inactivity timer: if nothing arrives
// within the configured timeout, it force-closes the transport and
// delivers a Timeout error instead of blocking forever.
package monitor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smtpengine/smtpengine/internal/transport"
	"github.com/smtpengine/smtpengine/internal/wire"
)

// ErrTimeout is delivered as a Result's Err when the inactivity timer
// fires. Callers use errors.Is(res.Err, ErrTimeout) to classify it
// distinctly from a transport or protocol failure.
var ErrTimeout = errors.New("monitor: inactivity timeout")

// Result is what the monitor delivers for one pending command: either a
// parsed Reply, or an error (transport failure, oversized line, or
// inactivity timeout).
type Result struct {
	Reply wire.Reply
	Err   error
}

// Monitor reads SMTP replies off a bound Transport on a dedicated
// goroutine and fans each one out to whichever single caller is currently
// waiting via Await. Only one Await may be outstanding at a time — this
// mirrors the session's single-in-flight-command invariant, which the
// Command Layer enforces one level up.
type Monitor struct {
	mu      sync.Mutex
	conn    *wire.Conn
	tr      transport.Transport
	timeout time.Duration
	timer   *time.Timer
	pending chan Result
	closed  chan struct{}
	armed   chan struct{}
	once    sync.Once
}

// New starts a Monitor reading from tr. timeout is the inactivity window;
// if it elapses with no Await outstanding or no byte read while one is
// outstanding, the transport is force-closed and a Timeout Result is
// delivered to the waiting Await, if any.
//
// The background loop only calls ReadReply while armed: once for the
// unsolicited greeting, primed here, and again each time WriteLine sends a
// command that expects one. Between those windows loop blocks on the armed
// channel rather than on the socket, so it never holds a read in flight on
// a Transport that StartTLS is about to hand off to a TLS handshake — see
// Rebind.
func New(tr transport.Transport, timeout time.Duration) *Monitor {
	m := &Monitor{
		tr:      tr,
		timeout: timeout,
		pending: make(chan Result, 1),
		closed:  make(chan struct{}),
		armed:   make(chan struct{}, 1),
	}
	m.conn = wire.NewConn(rwc{t: tr, touch: m.Touch})
	m.armed <- struct{}{}
	m.timer = time.AfterFunc(timeout, m.onIdle)
	go m.loop()
	return m
}

// rwc adapts a transport.Transport (Read/Write/Close(bool)/Secure) to
// io.ReadWriteCloser for wire.Conn, which has no opinion on forced vs.
// orderly close. Every read that returns bytes calls touch, so the
// inactivity timer restarts on each byte received.
type rwc struct {
	t     transport.Transport
	touch func()
}

func (r rwc) Read(p []byte) (int, error) {
	n, err := r.t.Read(p)
	if n > 0 {
		r.touch()
	}
	return n, err
}
func (r rwc) Write(p []byte) (int, error) { return r.t.Write(p) }
func (r rwc) Close() error                { return r.t.Close(true) }

func (m *Monitor) onIdle() {
	m.tr.Close(true)
	m.deliver(Result{Err: ErrTimeout})
}

// loop waits to be armed, reads exactly one reply, delivers it, and waits
// to be armed again — it never re-enters ReadReply on its own. This keeps
// the loop parked between commands instead of blocked on the socket, which
// is what lets Rebind swap the underlying connection safely: by the time a
// caller stops arming it (StartTLS, between the 220 and the handshake) and
// resumes (the re-EHLO's WriteLine, after Rebind), the conn it reads next
// is guaranteed to be the rebound one, not whatever was live when it last
// parked.
func (m *Monitor) loop() {
	for {
		select {
		case <-m.armed:
		case <-m.closed:
			return
		}

		m.mu.Lock()
		conn := m.conn
		m.mu.Unlock()

		reply, err := conn.ReadReply()
		m.timer.Reset(m.timeout)
		if err != nil {
			m.deliver(Result{Err: fmt.Errorf("monitor: read reply: %w", err)})
			m.shutdown()
			return
		}
		m.deliver(Result{Reply: reply})
	}
}

// arm lets the loop read one more reply. Non-blocking: at most one armed
// read is ever outstanding, matching the session's single-in-flight-command
// invariant.
func (m *Monitor) arm() {
	select {
	case m.armed <- struct{}{}:
	default:
	}
}

func (m *Monitor) deliver(r Result) {
	select {
	case m.pending <- r:
	case <-m.closed:
	}
}

func (m *Monitor) shutdown() {
	m.once.Do(func() { close(m.closed) })
}

// Await blocks for the next Result: the reply to whatever command was
// just written, or a transport/timeout error. Callers must not call Await
// concurrently from two goroutines; the command layer's single in-flight
// guard ensures this.
func (m *Monitor) Await() Result {
	select {
	case r := <-m.pending:
		return r
	case <-m.closed:
		return Result{Err: fmt.Errorf("monitor: transport closed")}
	}
}

// Touch resets the inactivity timer; called on every command write, since
// the timer measures silence in either direction.
func (m *Monitor) Touch() {
	m.timer.Reset(m.timeout)
}

// WriteLine writes a command line (without CRLF) to the bound transport,
// arms the read loop for the reply it expects, and touches the inactivity
// timer. The Command Layer is the sole writer; Monitor only reads on its
// own goroutine, so no additional locking is needed around the write
// itself beyond what Rebind already serializes.
func (m *Monitor) WriteLine(line string) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if err := conn.WriteLine(line); err != nil {
		return err
	}
	m.arm()
	m.Touch()
	return nil
}

// WriteRaw writes p verbatim (no line framing) and touches the inactivity
// timer. Used for DATA-phase body streaming, which never elicits its own
// reply.
func (m *Monitor) WriteRaw(p []byte) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if err := conn.WriteRaw(p); err != nil {
		return err
	}
	m.Touch()
	return nil
}

// Rebind swaps the monitor onto a new Transport in place, used after a
// STARTTLS upgrade replaces the plain socket with a TLS one. The caller
// must ensure no command is in flight when calling Rebind, and — since the
// STARTTLS reply already disarmed the loop — must not call WriteLine again
// until after Rebind returns, so the handshake on the old Transport and
// the loop's idle wait never touch the socket at the same time.
func (m *Monitor) Rebind(tr transport.Transport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tr = tr
	m.conn.Rebind(rwc{t: tr, touch: m.Touch})
	m.timer.Reset(m.timeout)
}

// Stop halts the monitor's background goroutine and timer without closing
// the transport — used when the caller is about to close it explicitly
// (e.g. an orderly Quit) and doesn't want a duplicate Close race.
func (m *Monitor) Stop() {
	m.timer.Stop()
	m.shutdown()
}
