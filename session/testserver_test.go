package session

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptedServer is a minimal scripted fake SMTP server for exercising the
// Session state machine end to end against real TCP/TLS sockets, grounded
// on albertito-chasquid's internal/courier FakeServer: accept a single
// connection, reply to each line read against a canned response table,
// optionally upgrading to TLS on STARTTLS.
//
// Responses are looked up first by the exact line (needed for base64
// AUTH payloads, which are data-dependent), falling back to "<VERB> *"
// for any other argument. Each lookup pops the next entry off that key's
// queue, so a command can be scripted to answer differently across
// repeated invocations (e.g. a greylist 4xx then a 250 on retry).
type scriptedServer struct {
	t          *testing.T
	addr       string
	welcome    string
	replies    map[string][]string
	tlsConfig  *tls.Config
	noGreeting bool

	mu   sync.Mutex
	seen []string
	wg   sync.WaitGroup
}

func newScriptedServer(t *testing.T) *scriptedServer {
	t.Helper()
	return &scriptedServer{t: t, replies: map[string][]string{}}
}

// start opens the listening socket and begins serving. Fields (welcome,
// replies, tlsConfig, noGreeting) must be set before calling start.
func (s *scriptedServer) start() {
	s.t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		s.t.Fatalf("fake server listen: %v", err)
	}
	s.addr = l.Addr().String()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer l.Close()

		c, err := l.Accept()
		if err != nil {
			return
		}
		defer c.Close()

		if s.noGreeting {
			time.Sleep(5 * time.Second)
			return
		}

		c.Write([]byte(s.welcome))
		r := bufio.NewReader(c)
		tc := textproto.NewReader(r)
		for {
			line, err := tc.ReadLine()
			if err != nil {
				return
			}
			s.record(line)

			if line == "STARTTLS" && s.tlsConfig != nil {
				reply := s.nextReply(line)
				if reply == "" {
					return
				}
				c.Write([]byte(reply))

				tlsConn := tls.Server(c, s.tlsConfig)
				if err := tlsConn.Handshake(); err != nil {
					s.t.Logf("fake server TLS handshake: %v", err)
					return
				}
				c = tlsConn
				r = bufio.NewReader(c)
				tc = textproto.NewReader(r)
				continue
			}

			reply := s.nextReply(line)
			if reply == "" {
				return
			}
			c.Write([]byte(reply))

			if line == "DATA" {
				if _, err := tc.ReadDotBytes(); err != nil {
					return
				}
				c.Write([]byte(s.nextReply("_DATA")))
			}
		}
	}()
}

func (s *scriptedServer) record(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, line)
}

func (s *scriptedServer) nextReply(line string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.replies[line]; ok && len(q) > 0 {
		s.replies[line] = q[1:]
		return q[0]
	}
	word := line
	if i := strings.IndexByte(line, ' '); i >= 0 {
		word = line[:i]
	}
	key := word + " *"
	if q, ok := s.replies[key]; ok && len(q) > 0 {
		s.replies[key] = q[1:]
		return q[0]
	}
	return ""
}

// seenCount reports how many times line (or its "<VERB> *" class) was
// received, by simple exact-line counting.
func (s *scriptedServer) seenCount(line string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.seen {
		if l == line {
			n++
		}
	}
	return n
}

func (s *scriptedServer) hostPort() (string, int) {
	_, portStr, _ := net.SplitHostPort(s.addr)
	port, _ := strconv.Atoi(portStr)
	return "localhost", port
}

func (s *scriptedServer) wait() {
	s.wg.Wait()
}

// generateTestCert builds a self-signed certificate valid for "localhost"
// and 127.0.0.1, grounded on the teacher's smtpclient/starttls_test.go
// generateTestCert helper.
func generateTestCert(t *testing.T) (tls.Certificate, *x509.CertPool) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}

	parsed, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	pool := x509.NewCertPool()
	pool.AddCert(parsed)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, pool
}
