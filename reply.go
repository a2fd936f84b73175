package smtp

// ReplyCode is the three-digit status code on every SMTP reply (RFC 5321
// §4.2). The same numeric code means different things depending on which
// verb elicited it, so session.command always checks a reply's code
// against that specific verb's accepted set (see session/commands.go and
// session/auth.go) rather than relying on Class/IsPositive alone; those
// are here for callers that only have a bare Response.Code to classify,
// such as after Noop, which bypasses command() entirely.
type ReplyCode int

// Class returns the reply's leading digit: 2 (success), 3 (intermediate),
// 4 (transient failure), or 5 (permanent failure).
func (c ReplyCode) Class() int {
	return int(c) / 100
}

// IsPositive reports a 2xx or 3xx class.
func (c ReplyCode) IsPositive() bool {
	switch c.Class() {
	case 2, 3:
		return true
	default:
		return false
	}
}

// IsTransient reports a 4xx class — session.command's greylist check
// narrows this further to 450/451 carrying the word "greylist".
func (c ReplyCode) IsTransient() bool {
	return c.Class() == 4
}

// IsPermanent reports a 5xx class.
func (c ReplyCode) IsPermanent() bool {
	return c.Class() == 5
}

// Reply codes the Command & Auth Layer names explicitly, grouped by the
// verb(s) that expect them rather than by RFC section.
const (
	// Connect's greeting, and StartTLS's "go ahead" before the handshake.
	ReplyServiceReady ReplyCode = 220

	// Quit.
	ReplyServiceClosing ReplyCode = 221

	// Help.
	ReplySystemStatus ReplyCode = 211
	ReplyHelpMessage  ReplyCode = 214

	// Helo, Ehlo, Rset, Mail, Rcpt, Expn, Quit, DataEnd.
	ReplyOK ReplyCode = 250

	// Rcpt and Vrfy: address accepted, but not locally deliverable as given.
	ReplyUserNotLocal ReplyCode = 251
	ReplyCannotVRFY   ReplyCode = 252

	// The AUTH dance: 334 invites the next base64 step, 235/535 end it.
	ReplyAuthContinue ReplyCode = 334
	ReplyAuthOK       ReplyCode = 235
	ReplyAuthFailed   ReplyCode = 535
	ReplyAuthRequired ReplyCode = 530

	// Data's invitation to stream the message body.
	ReplyStartMailInput ReplyCode = 354

	// The two codes session.command retries once when the message text
	// contains "greylist" (spec's greylist-aware retry).
	ReplyMailboxBusy ReplyCode = 450
	ReplyLocalError  ReplyCode = 451

	// Other standard codes this engine doesn't special-case beyond
	// Class/IsTransient/IsPermanent, named so a caller inspecting an
	// arbitrary Response.Code doesn't have to hardcode the number.
	ReplyServiceNotAvailable ReplyCode = 421
	ReplyInsufficientStorage ReplyCode = 452
	ReplyTempAuthFailure     ReplyCode = 454
	ReplySyntaxError         ReplyCode = 500
	ReplySyntaxParamError    ReplyCode = 501
	ReplyCommandNotImpl      ReplyCode = 502
	ReplyBadSequence         ReplyCode = 503
	ReplyParamNotImpl        ReplyCode = 504
	ReplyMailboxNotFound     ReplyCode = 550
	ReplyUserNotLocalTry     ReplyCode = 551
	ReplyExceededStorage     ReplyCode = 552
	ReplyMailboxNameError    ReplyCode = 553
	ReplyTransactionFailed   ReplyCode = 554
	ReplyMailRcptParamError  ReplyCode = 555
)
