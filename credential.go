package smtp

// Secret wraps a credential value (user or password) so that the zero
// value is usable, equality/emptiness can be checked without exposing the
// content, and the default %v/%s rendering never leaks it. The only way to
// get the wrapped text back out is Reveal, which a Session calls at the
// single point it writes a credential onto the wire.
type Secret struct {
	value string
	set   bool
}

// NewSecret wraps v as a Secret. An empty string is a valid, unset Secret.
func NewSecret(v string) Secret {
	return Secret{value: v, set: v != ""}
}

// IsZero reports whether the Secret carries no value.
func (s Secret) IsZero() bool {
	return !s.set
}

// Reveal returns the wrapped value. Callers outside of the wire-writing
// path in this package should not need to call this.
func (s Secret) Reveal() string {
	return s.value
}

// String implements fmt.Stringer with a redacted rendering so that a
// Session containing credentials is safe to log with %v or %+v.
func (s Secret) String() string {
	return "REDACTED"
}

// GoString implements fmt.GoStringer, also redacted, for %#v dumps.
func (s Secret) GoString() string {
	return "smtp.Secret{REDACTED}"
}
