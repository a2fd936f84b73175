// Package session implements the Session State Machine and Command & Auth
// Layer on top of the internal transport/monitor/wire packages: connection
// lifecycle, EHLO/HELO negotiation, STARTTLS upgrade, the SMTP verb set,
// and the AUTH mechanism dance, all serialized onto a single in-flight
// command per Session.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/idna"

	smtp "github.com/smtpengine/smtpengine"
	"github.com/smtpengine/smtpengine/internal/monitor"
	"github.com/smtpengine/smtpengine/internal/transport"
	"github.com/smtpengine/smtpengine/internal/wire"
)

// Session is the top-level entity: a single connection to an MSA/MTA,
// its negotiated feature map, and its authentication state.
type Session struct {
	cfg Config

	mu        sync.Mutex
	state     State
	secure    bool
	loggedIn  bool
	features  smtp.Features // nil means "no EHLO attempted this session"; a failed EHLO leaves it empty, not nil
	transport transport.Transport
	mon       *monitor.Monitor

	// cmdMu enforces "at most one in-flight command per session": send
	// TryLocks it, so a caller issuing a second command while one is
	// outstanding hits a precondition violation rather than silently
	// interleaving replies.
	cmdMu sync.Mutex
}

// New constructs a Session from Options. Construction fails only if a
// Password is configured without a User (spec §3 invariant); it does not
// connect.
func New(opts ...Option) (*Session, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &Session{
		cfg:      cfg,
		state:    NotConnected,
		loggedIn: cfg.User.IsZero(),
	}, nil
}

// State returns the Session's current connection lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Authorized reports whether the Session is logged in: either no
// credentials were configured, or authentication has succeeded.
func (s *Session) Authorized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

// Secure reports whether the transport is currently TLS (implicit or
// upgraded via STARTTLS).
func (s *Session) Secure() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secure
}

// Connect opens the transport, waits for the 220 greeting, and brings the
// Session to Connected. Calling Connect while already Connected performs
// the documented graceful chain: Quit, then reconnect.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	alreadyConnected := s.state == Connected
	s.mu.Unlock()

	if alreadyConnected {
		s.Quit()
	}

	s.mu.Lock()
	s.state = Connecting
	s.mu.Unlock()

	host := s.asciiDomain(s.cfg.Host)

	tr, err := s.dial(ctx, host)
	if err != nil {
		s.resetState()
		return smtp.WrapError(smtp.KindCouldNotConnect, err, "connecting to %s:%d", host, s.cfg.Port)
	}

	mon := monitor.New(tr, s.cfg.Timeout)
	res := mon.Await()
	if res.Err != nil {
		mon.Stop()
		tr.Close(true)
		s.resetState()
		cerr := classifyReadErr(res.Err)
		if cerr.Kind == smtp.KindTimeout {
			s.cfg.Metrics.timeout()
		}
		return cerr
	}
	if res.Reply.Code != int(smtp.ReplyServiceReady) {
		mon.WriteLine("QUIT")
		mon.Await()
		mon.Stop()
		tr.Close(true)
		s.resetState()
		return smtp.NewError(smtp.KindBadResponse, "unexpected greeting: %d %s", res.Reply.Code, lastLine(res.Reply.Lines))
	}

	s.mu.Lock()
	s.transport = tr
	s.mon = mon
	s.secure = tr.Secure()
	s.state = Connected
	s.loggedIn = s.cfg.User.IsZero()
	s.mu.Unlock()
	return nil
}

func (s *Session) dial(ctx context.Context, host string) (transport.Transport, error) {
	if s.cfg.SSL.Enabled() {
		tlsCfg, err := s.cfg.SSL.opts.buildConfig(host)
		if err != nil {
			return nil, err
		}
		return transport.DialImplicit(ctx, host, s.cfg.Port, tlsCfg)
	}
	return transport.Dial(ctx, host, s.cfg.Port)
}

// Quit sends QUIT, accepts 221 or 250, and closes the connection
// (orderly shutdown) regardless of the server's reply.
func (s *Session) Quit() error {
	s.mu.Lock()
	if s.state != Connected {
		s.mu.Unlock()
		return smtp.NewError(smtp.KindNoConnection, "quit: not connected")
	}
	s.mu.Unlock()

	_, _, err := s.command("QUIT", smtp.ReplyServiceClosing, smtp.ReplyOK)
	s.close(false)
	return err
}

// Close tears down the Session. force=true destroys the transport
// immediately; force=false performs an orderly shutdown. It is idempotent
// and safe to call on an already-NotConnected Session.
func (s *Session) Close(force bool) {
	s.close(force)
}

func (s *Session) close(force bool) {
	s.mu.Lock()
	mon := s.mon
	tr := s.transport
	s.mu.Unlock()
	if mon != nil {
		mon.Stop()
	}
	if tr != nil {
		tr.Close(force)
	}
	s.resetState()
}

// resetState is close(force)'s state half, also used directly on a
// Connect failure where no transport/monitor was ever installed: stop,
// null transport, reset features, clear secure, recompute logged_in.
func (s *Session) resetState() {
	s.mu.Lock()
	s.transport = nil
	s.mon = nil
	s.features = nil
	s.secure = false
	s.state = NotConnected
	s.loggedIn = s.cfg.User.IsZero()
	s.mu.Unlock()
}

// fail closes the connection (forced) after a transport/protocol error
// surfaces mid-command, classifies the error, and returns it.
func (s *Session) fail(err error) error {
	cerr := classifyReadErr(err)
	s.close(true)
	if cerr.Kind == smtp.KindTimeout {
		s.cfg.Metrics.timeout()
	}
	return cerr
}

func classifyReadErr(err error) *smtp.Error {
	switch {
	case errors.Is(err, monitor.ErrTimeout):
		return smtp.WrapError(smtp.KindTimeout, err, "inactivity timeout waiting for reply")
	case errors.Is(err, wire.ErrMalformedReply):
		return smtp.WrapError(smtp.KindBadResponse, err, "malformed SMTP reply")
	default:
		return smtp.WrapError(smtp.KindCouldNotConnect, err, "transport error")
	}
}

// send writes line (without CRLF; the wire layer appends it) and blocks
// for the single reply the Response Monitor delivers. A second send while
// one is already in flight is a programming error: the session's
// single-in-flight invariant is violated.
func (s *Session) send(line string) (smtp.Response, error) {
	if !s.cmdMu.TryLock() {
		panic("session: send called while a command is already in flight")
	}
	defer s.cmdMu.Unlock()

	s.mu.Lock()
	if s.state != Connected {
		s.mu.Unlock()
		return smtp.Response{}, smtp.NewError(smtp.KindNoConnection, "not connected")
	}
	mon := s.mon
	s.mu.Unlock()

	if err := mon.WriteLine(line); err != nil {
		return smtp.Response{}, s.fail(fmt.Errorf("writing %q: %w", line, err))
	}
	res := mon.Await()
	if res.Err != nil {
		return smtp.Response{}, s.fail(res.Err)
	}
	return replyToResponse(res.Reply), nil
}

// command wraps send, classifying the reply against expected (default
// {250}), with exactly one greylist retry on a 450/451 whose message
// contains "greylist" (case-insensitive).
func (s *Session) command(cmd string, expected ...smtp.ReplyCode) (string, string, error) {
	if len(expected) == 0 {
		expected = []smtp.ReplyCode{smtp.ReplyOK}
	}

	resp, err := s.send(cmd)
	if err != nil {
		return "", "", err
	}
	if codeIn(resp.Code, expected) {
		return resp.Data, resp.Message, nil
	}
	if isGreylist(resp) {
		s.cfg.Logger.Debugf("smtp: greylisted on %q, retrying in %s", cmd, smtp.GreylistDelay)
		s.cfg.Metrics.greylistRetry()
		time.Sleep(smtp.GreylistDelay)
		resp, err = s.send(cmd)
		if err != nil {
			return "", "", err
		}
		if codeIn(resp.Code, expected) {
			return resp.Data, resp.Message, nil
		}
	}
	return "", "", smtp.FromReply(resp, fmt.Sprintf("bad response on command '%s': %s", firstWord(cmd), resp.Message))
}

func isGreylist(r smtp.Response) bool {
	if r.Code != smtp.ReplyMailboxBusy && r.Code != smtp.ReplyLocalError {
		return false
	}
	return strings.Contains(strings.ToLower(r.Message), "greylist")
}

func firstWord(cmd string) string {
	if i := strings.IndexByte(cmd, ' '); i >= 0 {
		return cmd[:i]
	}
	return cmd
}

func codeIn(code smtp.ReplyCode, set []smtp.ReplyCode) bool {
	for _, c := range set {
		if c == code {
			return true
		}
	}
	return false
}

func replyToResponse(r wire.Reply) smtp.Response {
	var ec smtp.EnhancedCode
	if len(r.Lines) > 0 {
		ec, _ = wire.ParseEnhancedCode(r.Lines[0])
	}
	return smtp.Response{
		Code:         smtp.ReplyCode(r.Code),
		Data:         strings.Join(r.Lines, "\n"),
		Message:      lastLine(r.Lines),
		EnhancedCode: ec,
	}
}

func lastLine(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

// appendContext appends suffix to an error's message, preserving its Kind
// and cause if it's a *smtp.Error, for the "while establishing a starttls
// session" context spec §4.4 asks STARTTLS failures to carry.
func appendContext(err error, suffix string) error {
	var e *smtp.Error
	if errors.As(err, &e) {
		return &smtp.Error{Kind: e.Kind, Code: e.Code, EnhancedCode: e.EnhancedCode, Message: e.Message + suffix, Err: e.Err}
	}
	return fmt.Errorf("%w%s", err, suffix)
}

// asciiDomain best-effort IDNA-encodes a hostname for use in Dial/EHLO; on
// failure (e.g. it's already an IP literal or otherwise not a valid IDNA
// label) it falls back to the input unchanged rather than failing the
// whole operation.
func (s *Session) asciiDomain(d string) string {
	if d == "" {
		return d
	}
	ascii, err := idna.ToASCII(d)
	if err != nil {
		s.cfg.Logger.Debugf("smtp: idna.ToASCII(%q): %v, using as-is", d, err)
		return d
	}
	return ascii
}
