// Package smtp provides the shared protocol-level types used by the
// session engine in [github.com/smtpengine/smtpengine/session]: reply
// codes, enhanced status codes, the EHLO feature map, error kinds, and the
// redacted credential wrapper (RFC 5321).
//
// # Reply Codes
//
// [ReplyCode] constants name the SMTP reply codes this engine and its
// callers commonly meet, and any code classifies into 2xx/3xx/4xx/5xx via
// [ReplyCode.Class].
//
// # Features
//
// [Features] is the result of parsing a multi-line EHLO response with
// [ParseFeatures]: a lowercase keyword mapping to either its parameter
// text or the literal bool true.
//
// # Errors
//
// [Error] carries a [Kind] (CouldNotConnect, ConnectionAuth, BadResponse,
// NoConnection, AuthNotSupported, AuthFailed, Timeout) plus the triggering
// reply code when there is one.
//
// # Credentials
//
// [Secret] wraps a username or password so it never appears in a %v/%s
// rendering of a Session; [Secret.Reveal] is the only way back to the
// underlying text.
package smtp
