/*
Package inet handles connecting to the uplink and reading and writing
CRLF-terminated lines across it, translating between the wire charset and
Go's native UTF-8 strings.
*/
package inet

import (
	"bufio"
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// errFmtUnknownDecoder occurs when the configured charset label has no
// known codec.
const errFmtUnknownDecoder = "inet: no codec for charset label %q"

// certPoolReader loads a CA pool from a PEM file. Indirected for tests.
type certPoolReader func(path string) (*x509.CertPool, error)

func readCertPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "inet: failed to read CA file")
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.Errorf("inet: no certificates found in %s", path)
	}
	return pool, nil
}

// Conn is a line-buffered, charset-aware connection to the uplink. It wraps
// a single net.Conn (plain TCP or TLS) with buffered I/O and a decoder/
// encoder pair resolved from a WHATWG charset label.
type Conn struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer

	decoder *encoding.Decoder
	encoder *encoding.Encoder
}

// DialOptions configures Connect.
type DialOptions struct {
	Address string
	Port    uint16
	UseTLS  bool
	// NoVerifyCert disables TLS certificate verification. Defaults to false;
	// only intended for lab uplinks with self-signed certificates.
	NoVerifyCert bool
	// CAFile, if non-empty, is a PEM file of additional root CAs to trust.
	CAFile string
	// CharsetLabel is a WHATWG-style label such as "utf-8" or "iso-8859-1".
	CharsetLabel string
}

// Connect establishes a stream connection to opts.Address:opts.Port, wraps
// it with a TLS v1+ handshake when requested, and resolves the charset
// codecs named by opts.CharsetLabel.
func Connect(opts DialOptions) (*Conn, error) {
	return connect(opts, readCertPool)
}

func connect(opts DialOptions, readPool certPoolReader) (*Conn, error) {
	addr := net.JoinHostPort(opts.Address, strconv.Itoa(int(opts.Port)))

	var raw net.Conn
	var err error
	if opts.UseTLS {
		cfg := &tls.Config{
			InsecureSkipVerify: opts.NoVerifyCert,
			MinVersion:         tls.VersionTLS10,
		}
		if opts.CAFile != "" {
			cfg.RootCAs, err = readPool(opts.CAFile)
			if err != nil {
				return nil, err
			}
		}
		raw, err = tls.Dial("tcp", addr, cfg)
	} else {
		raw, err = net.Dial("tcp", addr)
	}
	if err != nil {
		return nil, errors.Wrap(err, "inet: failed to connect to uplink")
	}

	return newConn(raw, opts.CharsetLabel)
}

// WrapConn wraps an already-established net.Conn (such as one side of a
// net.Pipe) with the same buffering and charset codecs Connect would set up.
// Exported for tests in other packages that need a Conn without a real dial.
func WrapConn(raw net.Conn, charsetLabel string) (*Conn, error) {
	return newConn(raw, charsetLabel)
}

// newConn wraps an already-established net.Conn with buffering and the
// codecs named by label. Split out from connect for testability against an
// in-memory net.Pipe.
func newConn(raw net.Conn, label string) (*Conn, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		raw.Close()
		return nil, errors.Errorf(errFmtUnknownDecoder, label)
	}

	return &Conn{
		conn: raw,
		r:    bufio.NewReader(raw),
		w:    bufio.NewWriter(raw),
		// Decoders resolved via htmlindex already implement the WHATWG
		// replacement algorithm for ill-formed input, so no further
		// wrapping is needed to get replace-rather-than-reject decoding.
		decoder: enc.NewDecoder(),
		// ReplaceUnsupported swaps characters the target charset cannot
		// represent for its replacement character instead of failing.
		encoder: encoding.ReplaceUnsupported(enc).NewEncoder(),
	}, nil
}

// ReadLine reads bytes up to and including the next '\n', decodes them
// using the connection's charset (invalid byte sequences are replaced, not
// rejected), and returns the decoded string including its terminating
// newline.
func (c *Conn) ReadLine() (string, error) {
	raw, err := c.r.ReadString('\n')
	if err != nil {
		return "", errors.Wrap(err, "inet: read failed")
	}

	decoded, err := c.decoder.String(raw)
	if err != nil {
		return "", errors.Wrap(err, "inet: failed to decode line")
	}
	return decoded, nil
}

// WriteLine encodes s using the connection's charset (unencodable
// characters are replaced, not rejected), writes it, and flushes.
func (c *Conn) WriteLine(s string) error {
	encoded, err := c.encoder.String(s)
	if err != nil {
		return errors.Wrap(err, "inet: failed to encode line")
	}
	if _, err := c.w.WriteString(encoded); err != nil {
		return errors.Wrap(err, "inet: write failed")
	}
	return c.w.Flush()
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
