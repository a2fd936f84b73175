package smtp

import "time"

// CRLF is the SMTP line terminator used on output (RFC 5321 §2.3.7).
const CRLF = "\r\n"

// GreylistDelay is how long the Command Layer waits before retrying a
// command that failed with a greylist-flavored 450/451 response.
const GreylistDelay = 300 * time.Millisecond

// DefaultTimeout is the inactivity timeout applied to a Session's
// transport when the caller doesn't configure one.
const DefaultTimeout = 5000 * time.Millisecond

// Standard SMTP ports.
const (
	PortSMTP       = 25
	PortSMTPS      = 465 // implicit TLS
	PortSubmission = 587 // STARTTLS
)
