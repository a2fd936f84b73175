package session

import (
	"context"
	"fmt"
	"strings"

	smtp "github.com/smtpengine/smtpengine"
	"github.com/smtpengine/smtpengine/internal/transport"
)

// Helo issues the legacy HELO greeting. domain defaults to the Session's
// configured Domain when empty.
func (s *Session) Helo(domain string) error {
	if domain == "" {
		domain = s.cfg.Domain
	}
	_, _, err := s.command("HELO " + s.asciiDomain(domain))
	return err
}

// Ehlo issues EHLO, parses the resulting feature map, and — if
// opportunistic TLS is configured and the transport isn't already secure —
// upgrades via STARTTLS and re-issues EHLO on the new transport.
func (s *Session) Ehlo(ctx context.Context, domain string) error {
	if domain == "" {
		domain = s.cfg.Domain
	}
	ascii := s.asciiDomain(domain)

	// Reset to an empty (non-nil) map before issuing the command. If the
	// command itself fails, this is deliberately left in place rather
	// than rolled back to nil — see EhloOrHeloIfNeeded's doc comment.
	s.mu.Lock()
	s.features = smtp.Features{}
	s.mu.Unlock()

	data, _, err := s.command("EHLO " + ascii)
	if err != nil {
		return err
	}

	features := smtp.ParseFeatures(data)
	s.mu.Lock()
	s.features = features
	secure := s.secure
	wantTLS := s.cfg.TLS.Enabled()
	s.mu.Unlock()

	if wantTLS && !secure {
		if err := s.StartTLS(ctx); err != nil {
			return err
		}
		return s.Ehlo(ctx, domain)
	}
	return nil
}

// EhloOrHeloIfNeeded is a no-op if features is already set (from a prior
// EHLO in this session); otherwise it tries EHLO, falling back to HELO on
// failure.
//
// Preserved quirk (spec §9, "do not silently fix"): Ehlo sets features to
// an empty map before issuing the command. If EHLO then fails, features is
// left as that empty (non-nil) map rather than reverted to nil, so a
// second call to EhloOrHeloIfNeeded sees features != nil and skips
// re-negotiation even though HELO — not EHLO — was what actually
// succeeded last time.
func (s *Session) EhloOrHeloIfNeeded(ctx context.Context, domain string) error {
	s.mu.Lock()
	has := s.features != nil
	s.mu.Unlock()
	if has {
		return nil
	}
	if err := s.Ehlo(ctx, domain); err != nil {
		return s.Helo(domain)
	}
	return nil
}

// HasExtn reports whether an EHLO feature was advertised.
//
// Preserved bug (spec §9, "do not silently fix"): this mirrors the source
// client's inverted condition — it returns true when the feature is
// ABSENT, the opposite of what its name suggests. The source leaves this
// method unreferenced internally, so the inversion has no observable
// effect on this engine's own behavior; a caller using it directly gets
// the same surprising answer the original client gives.
func (s *Session) HasExtn(opt string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.features[strings.ToLower(opt)]
	return !ok
}

// Features returns the feature map from the last successful EHLO, or nil
// if no EHLO has been attempted this session. After a failed EHLO it is an
// empty, non-nil map (see EhloOrHeloIfNeeded).
func (s *Session) Features() smtp.Features {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.features
}

// StartTLS issues STARTTLS, and on a 220 wraps the existing Plain
// transport with TLS in place, rebinding the Response Monitor to it.
func (s *Session) StartTLS(ctx context.Context) error {
	_, _, err := s.command("STARTTLS", smtp.ReplyServiceReady)
	if err != nil {
		return appendContext(err, " while establishing a starttls session")
	}

	s.mu.Lock()
	plain, ok := s.transport.(*transport.Plain)
	host := s.cfg.Host
	tlsOpts := s.cfg.TLS.opts
	mon := s.mon
	s.mu.Unlock()
	if !ok {
		return appendContext(
			smtp.NewError(smtp.KindBadResponse, "starttls: transport is not a plain socket"),
			" while establishing a starttls session",
		)
	}

	serverName := s.asciiDomain(host)
	tlsCfg, err := tlsOpts.buildConfig(serverName)
	if err != nil {
		return appendContext(
			smtp.WrapError(smtp.KindConnectionAuth, err, "building TLS config"),
			" while establishing a starttls session",
		)
	}

	tlsTr, err := transport.Upgrade(ctx, plain, host, tlsCfg)
	if err != nil {
		return appendContext(s.fail(err), " while establishing a starttls session")
	}

	s.mu.Lock()
	s.transport = tlsTr
	s.secure = true
	mon.Rebind(tlsTr)
	s.mu.Unlock()
	s.cfg.Metrics.tlsUpgrade()
	return nil
}

// Help issues HELP (optionally HELP <topic>).
func (s *Session) Help(topic string) (string, error) {
	cmd := "HELP"
	if topic != "" {
		cmd += " " + topic
	}
	data, _, err := s.command(cmd, smtp.ReplySystemStatus, smtp.ReplyHelpMessage)
	return data, err
}

// Rset issues RSET, aborting the current mail transaction.
func (s *Session) Rset() error {
	_, _, err := s.command("RSET")
	return err
}

// Noop issues NOOP via raw send, bypassing command()'s status validation.
//
// Preserved (spec §9 open question): the source dispatches NOOP this way,
// so its reply code is never checked here either. Callers that want a
// verified NOOP should inspect the returned Response themselves.
func (s *Session) Noop() (smtp.Response, error) {
	return s.send("NOOP")
}

// Mail issues MAIL FROM:<from>. from is a pre-formatted address; envelope
// construction (selecting from/to/cc/bcc) is out of scope for this layer.
func (s *Session) Mail(from string) error {
	_, _, err := s.command(fmt.Sprintf("MAIL FROM:<%s>", from))
	return err
}

// Rcpt issues RCPT TO:<to>.
func (s *Session) Rcpt(to string) error {
	_, _, err := s.command(fmt.Sprintf("RCPT TO:<%s>", to), smtp.ReplyOK, smtp.ReplyUserNotLocal)
	return err
}

// Data issues DATA, expecting the 354 continuation that invites the
// message body.
func (s *Session) Data() error {
	_, _, err := s.command("DATA", smtp.ReplyStartMailInput)
	return err
}

// DataEnd issues the lone "." that terminates a DATA body.
func (s *Session) DataEnd() error {
	_, _, err := s.command(".")
	return err
}

// Vrfy issues VRFY <addr>.
func (s *Session) Vrfy(addr string) error {
	_, _, err := s.command("VRFY "+addr, smtp.ReplyOK, smtp.ReplyUserNotLocal, smtp.ReplyCannotVRFY)
	return err
}

// Expn issues EXPN <addr>.
func (s *Session) Expn(addr string) error {
	_, _, err := s.command("EXPN " + addr)
	return err
}

// Message writes raw body bytes directly to the transport, bypassing the
// command/response pipeline: body lines streamed between Data and DataEnd
// are not themselves SMTP responses.
func (s *Session) Message(b []byte) error {
	s.mu.Lock()
	if s.state != Connected {
		s.mu.Unlock()
		return smtp.NewError(smtp.KindNoConnection, "message: not connected")
	}
	mon := s.mon
	s.mu.Unlock()

	if err := mon.WriteRaw(b); err != nil {
		return s.fail(err)
	}
	return nil
}
