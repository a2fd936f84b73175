// Package session implements the stateful core of the SMTP client: the
// connection lifecycle (NotConnected → Connecting → Connected), EHLO/HELO
// negotiation and feature parsing, opportunistic STARTTLS, the SMTP verb
// set, and the AUTH mechanism dance (PLAIN, LOGIN, CRAM-MD5, XOAUTH2)
// including greylist-aware command retry.
//
// A Session is constructed with New and functional Options (WithHost,
// WithPort, WithCredentials, ...), then driven through Connect, Ehlo/Helo,
// optionally Login, the mail transaction verbs (Mail, Rcpt, Data, Message,
// DataEnd), and finally Quit or Close.
//
// Exactly one command may be in flight on a Session at a time; Connect,
// Ehlo, Login and the verb methods block until their reply (or a fatal
// transport/timeout error) arrives.
package session
