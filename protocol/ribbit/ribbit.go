// Package ribbit implements the line-oriented TCP transport on port 1119
// used as the last-resort fallback when HTTPS and HTTP both fail, and as
// the only transport for endpoint families that forbid fallback (summary,
// certificate, OCSP — spec.md §4.5). Framing beyond "write a line, read
// until the peer closes" is out of scope (spec.md §1 Non-goals); this
// package is the request/response contract, not a full MIME/PGP client.
package ribbit

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"
)

const defaultPort = 1119

// Client issues Ribbit queries over a fresh TCP connection per request,
// mirroring the protocol's stateless, one-shot-per-query design.
type Client struct {
	// Dialer is used to establish the TCP connection; a nil Dialer uses a
	// net.Dialer with a 10s timeout.
	Dialer interface {
		DialContext(ctx context.Context, network, addr string) (net.Conn, error)
	}
	// Port overrides the default 1119 (used by tests against a local
	// listener).
	Port int
}

// New returns a Client dialing the standard Ribbit port.
func New() *Client {
	return &Client{Dialer: &net.Dialer{Timeout: 10 * time.Second}}
}

// Query sends "<region> <endpoint>\r\n" and returns the full response body
// read until the peer closes the connection.
func (c *Client) Query(ctx context.Context, host, region, endpoint string) ([]byte, error) {
	port := c.Port
	if port == 0 {
		port = defaultPort
	}
	dialer := c.Dialer
	if dialer == nil {
		dialer = &net.Dialer{Timeout: 10 * time.Second}
	}

	conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, &DialError{Host: host, Err: err}
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}

	req := fmt.Sprintf("%s %s\r\n", region, endpoint)
	if _, err := conn.Write([]byte(req)); err != nil {
		return nil, &WriteError{Err: err}
	}

	r := bufio.NewReader(conn)
	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil {
			break
		}
	}
	if len(out) == 0 {
		return nil, &EmptyResponseError{Host: host, Endpoint: endpoint}
	}
	return out, nil
}
