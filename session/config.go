package session

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	smtp "github.com/smtpengine/smtpengine"
)

// TLSMode describes how (or whether) a transport layer is secured.
type TLSMode int

const (
	// TLSOff disables this TLS flavor entirely.
	TLSOff TLSMode = iota
	// TLSDefault enables it with the system trust store and no client
	// certificate.
	TLSDefault
	// TLSExplicit enables it with caller-supplied trust material; peer
	// verification failure is surfaced as smtp.KindConnectionAuth.
	TLSExplicit
)

// TLSOptions carries explicit trust material for implicit TLS or
// STARTTLS. A TLSOptions with no CAFile, CertFile, KeyFile or Config (as
// TLSEnabled builds it, with Mode TLSDefault) means "use the system trust
// store."
type TLSOptions struct {
	Mode TLSMode

	// CAFile, if set, is a PEM file of trusted root certificates used
	// instead of the system trust store.
	CAFile string

	// CertFile and KeyFile, if both set, present a client certificate
	// during the handshake.
	CertFile, KeyFile string

	// Config, if non-nil, is used as the base *tls.Config; ServerName is
	// filled in when empty, RootCAs is replaced when CAFile is set, and the
	// CertFile/KeyFile certificate is appended to Certificates.
	Config *tls.Config
}

func (o TLSOptions) buildConfig(serverName string) (*tls.Config, error) {
	cfg := o.Config
	if cfg == nil {
		cfg = &tls.Config{}
	} else {
		cfg = cfg.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = serverName
	}

	if o.CAFile != "" {
		pem, err := os.ReadFile(o.CAFile)
		if err != nil {
			return nil, fmt.Errorf("session: reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("session: no certificates parsed from %s", o.CAFile)
		}
		cfg.RootCAs = pool
	}

	if o.CertFile != "" && o.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("session: loading client certificate: %w", err)
		}
		cfg.Certificates = append(cfg.Certificates, cert)
	}

	if o.Mode == TLSExplicit {
		cfg.VerifyConnection = verifyConnection(serverName, cfg.RootCAs)
	}

	return cfg, nil
}

// verifyConnection replaces Go's default chain verification with one that
// reports a failure the way this package wants it classified: an explicit
// smtp.KindConnectionAuth rather than a generic dial error. Grounded on
// chasquid's courier.smtp verifyConnection, which does the same
// classify-don't-just-reject trick against explicit trust material.
func verifyConnection(serverName string, roots *x509.CertPool) func(tls.ConnectionState) error {
	return func(cs tls.ConnectionState) error {
		if len(cs.PeerCertificates) == 0 {
			return smtp.NewError(smtp.KindConnectionAuth, "no peer certificate presented")
		}
		opts := x509.VerifyOptions{
			DNSName:       serverName,
			Roots:         roots,
			Intermediates: x509.NewCertPool(),
		}
		for _, cert := range cs.PeerCertificates[1:] {
			opts.Intermediates.AddCert(cert)
		}
		if _, err := cs.PeerCertificates[0].Verify(opts); err != nil {
			return smtp.WrapError(smtp.KindConnectionAuth, err, "TLS peer verification failed")
		}
		return nil
	}
}

// DefaultAuthOrder is the mechanism preference used when Config.AuthOrder
// is left empty.
var DefaultAuthOrder = []string{"CRAM-MD5", "LOGIN", "PLAIN", "XOAUTH2"}

// Config holds a Session's immutable-after-construction configuration.
type Config struct {
	Host      string
	Port      int
	Domain    string
	Timeout   time.Duration
	SSL       TLSOptionsOrBool
	TLS       TLSOptionsOrBool
	User      smtp.Secret
	Password  smtp.Secret
	AuthOrder []string
	Logger    smtp.Logger
	Metrics   *Metrics
}

// TLSOptionsOrBool is either "off", "on with defaults", or explicit
// TLSOptions — mirroring spec's `false | true | TLS-options` union for
// the ssl/tls constructor fields.
type TLSOptionsOrBool struct {
	enabled bool
	opts    TLSOptions
}

// TLSDisabled is the zero value: this TLS flavor is off.
var TLSDisabled = TLSOptionsOrBool{}

// TLSEnabled turns this TLS flavor on with the system trust store.
func TLSEnabled() TLSOptionsOrBool {
	return TLSOptionsOrBool{enabled: true, opts: TLSOptions{Mode: TLSDefault}}
}

// TLSWithOptions turns this TLS flavor on with explicit trust material.
func TLSWithOptions(opts TLSOptions) TLSOptionsOrBool {
	opts.Mode = TLSExplicit
	return TLSOptionsOrBool{enabled: true, opts: opts}
}

func (t TLSOptionsOrBool) Enabled() bool { return t.enabled }

// Option configures a Session at construction.
type Option func(*Config)

// WithHost sets the target host.
func WithHost(host string) Option { return func(c *Config) { c.Host = host } }

// WithPort overrides the default port selection.
func WithPort(port int) Option { return func(c *Config) { c.Port = port } }

// WithDomain sets the HELO/EHLO argument.
func WithDomain(domain string) Option { return func(c *Config) { c.Domain = domain } }

// WithTimeout overrides the inactivity timeout.
func WithTimeout(d time.Duration) Option { return func(c *Config) { c.Timeout = d } }

// WithSSL enables implicit TLS.
func WithSSL(ssl TLSOptionsOrBool) Option { return func(c *Config) { c.SSL = ssl } }

// WithStartTLS enables opportunistic STARTTLS.
func WithStartTLS(tls TLSOptionsOrBool) Option { return func(c *Config) { c.TLS = tls } }

// WithCredentials sets the username/password used by Login. Password
// without a user is rejected at construction (New returns an error).
func WithCredentials(user, password string) Option {
	return func(c *Config) {
		c.User = smtp.NewSecret(user)
		c.Password = smtp.NewSecret(password)
	}
}

// WithAuthOrder overrides the mechanism preference order.
func WithAuthOrder(order ...string) Option {
	return func(c *Config) { c.AuthOrder = order }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l smtp.Logger) Option { return func(c *Config) { c.Logger = l } }

// WithMetrics attaches a Metrics set a Session reports counters to. A nil
// (or never-supplied) Metrics means every counter increment is a no-op.
func WithMetrics(m *Metrics) Option { return func(c *Config) { c.Metrics = m } }

func defaultConfig() Config {
	return Config{
		Host:      "localhost",
		Timeout:   smtp.DefaultTimeout,
		AuthOrder: DefaultAuthOrder,
		Logger:    smtp.NopLogger{},
	}
}

func (c *Config) applyDefaults() error {
	if c.Password.Reveal() != "" && c.User.Reveal() == "" {
		return smtp.NewError(smtp.KindBadResponse, "password set without user")
	}
	if c.Port == 0 {
		switch {
		case c.SSL.Enabled():
			c.Port = smtp.PortSMTPS
		case c.TLS.Enabled():
			c.Port = smtp.PortSubmission
		default:
			c.Port = smtp.PortSMTP
		}
	}
	if c.Domain == "" {
		if fqdn, err := os.Hostname(); err == nil {
			c.Domain = fqdn
		} else {
			c.Domain = "localhost"
		}
	}
	if c.Timeout == 0 {
		c.Timeout = smtp.DefaultTimeout
	}
	if len(c.AuthOrder) == 0 {
		c.AuthOrder = DefaultAuthOrder
	}
	if c.Logger == nil {
		c.Logger = smtp.NopLogger{}
	}
	return nil
}
