package smtp

import "fmt"

// EnhancedCode is the optional RFC 3463 "class.subject.detail" status
// (e.g. "5.7.8") a conforming server tucks onto the front of a reply's
// first text line, alongside the three-digit ReplyCode. wire.ParseEnhancedCode
// is the only place that recognizes this grammar on the wire; Response and
// Error just carry whatever it produced, zero-valued when the line didn't
// carry one.
type EnhancedCode struct {
	Class   int // 2 success, 4 transient failure, 5 permanent failure
	Subject int
	Detail  int
}

// String renders the code as "X.Y.Z".
func (e EnhancedCode) String() string {
	return fmt.Sprintf("%d.%d.%d", e.Class, e.Subject, e.Detail)
}

// IsZero reports whether no enhanced code was present on the reply.
func (e EnhancedCode) IsZero() bool {
	return e == EnhancedCode{}
}

// Enhanced codes named for the AUTH and STARTTLS failure paths this engine
// itself reports (RFC 3463 §3.7, RFC 5248 §3.2-3.3): the much larger
// registry of mailbox/network/MIME codes a server might send back isn't
// reproduced here, since nothing in this engine classifies on those —
// callers that care can compare Response.EnhancedCode's fields directly.
var (
	EnhancedCodeAuthCredentials = EnhancedCode{5, 7, 8}  // authentication credentials invalid
	EnhancedCodeAuthRequired    = EnhancedCode{5, 7, 0}  // authentication required
	EnhancedCodeEncryptRequired = EnhancedCode{5, 7, 11} // encryption required for the requested auth mechanism
	EnhancedCodeTempAuthFailure = EnhancedCode{4, 7, 0}  // temporary authentication failure
)
