package session

import "fmt"

// xoauth2Client implements the sasl.Client shape for XOAUTH2. go-sasl has
// no XOAUTH2 implementation (it isn't a registered SASL mechanism — it
// predates RFC 7628's OAUTHBEARER and uses its own wire format), so this
// engine builds the one command spec §4.5 requires directly and plugs it
// into the same authSASL dance used for PLAIN/LOGIN.
type xoauth2Client struct {
	user  string
	token string
}

func newXOAuth2Client(user, token string) *xoauth2Client {
	return &xoauth2Client{user: user, token: token}
}

// Start returns the single XOAUTH2 initial response; the mechanism never
// needs a second round trip on success.
func (x *xoauth2Client) Start() (string, []byte, error) {
	ir := fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", x.user, x.token)
	return "XOAUTH2", []byte(ir), nil
}

// Next is never expected to be called: a failed XOAUTH2 attempt gets a
// bare 503 from the server per spec, not a 334 continuation.
func (x *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	return nil, fmt.Errorf("session: unexpected XOAUTH2 challenge: %q", challenge)
}
