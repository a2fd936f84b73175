package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/emersion/go-sasl"

	smtp "github.com/smtpengine/smtpengine"
)

// saslClient is the minimal shape go-sasl's sasl.Client interface
// provides: an initial mechanism name + optional response, and a
// challenge/response step. xoauth2Client (this package) implements it
// directly since go-sasl has no XOAUTH2 support.
type saslClient interface {
	Start() (mech string, ir []byte, err error)
	Next(challenge []byte) (response []byte, err error)
}

// Login authenticates the Session. It first ensures EHLO or HELO has run
// (domain is passed through to that negotiation if it's still needed),
// then selects and runs an AUTH mechanism.
//
// user/password default to the Session's configured credentials when
// empty. method, if non-empty, forces a specific mechanism instead of
// selecting one from AuthOrder against the server's advertised AUTH
// feature.
func (s *Session) Login(user, password, method, domain string) error {
	if err := s.EhloOrHeloIfNeeded(context.Background(), domain); err != nil {
		return err
	}

	u := user
	if u == "" {
		u = s.cfg.User.Reveal()
	}
	p := password
	if p == "" {
		p = s.cfg.Password.Reveal()
	}

	mech := strings.ToUpper(method)
	if mech == "" {
		selected, err := s.selectMechanism()
		if err != nil {
			// Mechanism selection never touched the wire: no dance was
			// attempted, so the connection is left exactly as it was.
			return err
		}
		mech = selected
	}

	var err error
	switch mech {
	case "PLAIN":
		err = s.authSASL(sasl.NewPlainClient("", u, p))
	case "LOGIN":
		err = s.authSASL(sasl.NewLoginClient(u, p))
	case "CRAM-MD5":
		err = s.authCramMD5(u, p)
	case "XOAUTH2":
		err = s.authSASL(newXOAuth2Client(u, p))
	default:
		return smtp.NewError(smtp.KindAuthNotSupported, "mechanism %q is not supported", mech)
	}

	s.cfg.Metrics.authOutcome(mech, err == nil)

	if err != nil {
		s.mu.Lock()
		s.loggedIn = false
		s.mu.Unlock()
		s.close(false)
		return smtp.WrapError(smtp.KindAuthFailed, err, "authentication failed")
	}

	s.mu.Lock()
	s.loggedIn = true
	s.mu.Unlock()
	return nil
}

// selectMechanism picks the first entry of AuthOrder that appears as a
// substring of the server's advertised "auth" feature (case-insensitive),
// per spec §4.5.1.
func (s *Session) selectMechanism() (string, error) {
	s.mu.Lock()
	adv, _ := s.features["auth"].(string)
	s.mu.Unlock()

	advUpper := strings.ToUpper(adv)
	for _, want := range s.cfg.AuthOrder {
		if strings.Contains(advUpper, strings.ToUpper(want)) {
			return strings.ToUpper(want), nil
		}
	}
	return "", smtp.NewError(smtp.KindAuthNotSupported, "no mechanism in %v matches advertised AUTH %q", s.cfg.AuthOrder, adv)
}

// authSASL drives the generic AUTH <mech> [initial-response] / 334
// challenge-response loop used by PLAIN, LOGIN, and XOAUTH2.
func (s *Session) authSASL(mech saslClient) error {
	name, ir, err := mech.Start()
	if err != nil {
		return err
	}

	cmd := "AUTH " + name
	if ir != nil {
		cmd += " " + base64.StdEncoding.EncodeToString(ir)
	}
	resp, err := s.send(cmd)
	if err != nil {
		return err
	}

	for {
		switch resp.Code {
		case smtp.ReplyAuthOK:
			return nil
		case smtp.ReplyAuthContinue:
			challenge, derr := base64.StdEncoding.DecodeString(resp.Message)
			if derr != nil {
				return smtp.WrapError(smtp.KindBadResponse, derr, "decoding auth challenge")
			}
			out, merr := mech.Next(challenge)
			if merr != nil {
				return merr
			}
			resp, err = s.send(base64.StdEncoding.EncodeToString(out))
			if err != nil {
				return err
			}
		default:
			return smtp.FromReply(resp, fmt.Sprintf("auth failed: %s", resp.Message))
		}
	}
}

// authCramMD5 runs the CRAM-MD5 dance with the literal "AUTH  CRAM-MD5"
// two-space command spec §4.5 documents (RFC 4954 wants one space; this
// preserves the source's quirk rather than silently correcting it — see
// open questions). The HMAC-MD5 math itself comes from go-sasl's
// CramMD5Client.
func (s *Session) authCramMD5(user, secret string) error {
	mech := sasl.NewCramMD5Client(user, secret)
	_, ir, err := mech.Start()
	if err != nil {
		return err
	}

	cmd := "AUTH  CRAM-MD5"
	if ir != nil {
		cmd += " " + base64.StdEncoding.EncodeToString(ir)
	}
	resp, err := s.send(cmd)
	if err != nil {
		return err
	}
	if resp.Code != smtp.ReplyAuthContinue {
		return smtp.FromReply(resp, fmt.Sprintf("auth failed: %s", resp.Message))
	}

	challenge, derr := base64.StdEncoding.DecodeString(resp.Message)
	if derr != nil {
		return smtp.WrapError(smtp.KindBadResponse, derr, "decoding CRAM-MD5 challenge")
	}
	out, merr := mech.Next(challenge)
	if merr != nil {
		return merr
	}

	resp, err = s.send(base64.StdEncoding.EncodeToString(out))
	if err != nil {
		return err
	}
	if resp.Code != smtp.ReplyAuthOK {
		return smtp.FromReply(resp, fmt.Sprintf("auth failed: %s", resp.Message))
	}
	return nil
}
