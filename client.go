// Package cascstore is the root façade tying together BLTE decoding, the
// local archive store, the encoding index, the tiered cache, and the
// Ribbit/CDN protocol layer behind one client (spec.md §4.5, SPEC_FULL.md
// §4.5).
package cascstore

import (
	"context"
	"strings"

	"github.com/ngdp-go/cascstore/cache"
	"github.com/ngdp-go/cascstore/logx"
	"github.com/ngdp-go/cascstore/protocol/bpsv"
	"github.com/ngdp-go/cascstore/protocol/cdn"
	"github.com/ngdp-go/cascstore/protocol/ribbit"
)

// transport names used both in cache keys and in Hooks.TransportFallback.
const (
	transportHTTPS = "https"
	transportHTTP  = "http"
	transportTCP   = "tcp"
)

// Client resolves product version/CDN metadata through the three-transport
// fallback chain, caching parsed BPSV documents by endpoint family TTL.
type Client struct {
	opts Options

	httpClient *cdn.Client
	ribbit     *ribbit.Client
}

// New constructs a Client. opts.Cache is required.
func New(opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		opts:       opts,
		httpClient: cdn.NewClient(),
		ribbit:     ribbit.New(),
	}
}

// forceTCPOnly reports whether endpoint belongs to a family that spec.md
// §4.5 requires to use the TCP transport exclusively, with no HTTP(S)
// fallback (summary, certificate, OCSP lookups).
func forceTCPOnly(endpoint string) bool {
	last := lastSegment(endpoint)
	return last == "summary" || strings.Contains(endpoint, "certs/") || strings.Contains(endpoint, "ocsp/")
}

// Query resolves endpoint against host (the Ribbit/CDN metadata host for
// opts.Region), returning the parsed BPSV document. It walks the cache for
// each transport's key before attempting any network call, then falls back
// HTTPS → HTTP → TCP on retryable errors only.
func (c *Client) Query(ctx context.Context, host, endpoint string) (*bpsv.Document, error) {
	if err := validateEndpoint(endpoint); err != nil {
		return nil, err
	}

	ttl := ttlFor(endpoint)
	transports := []string{transportHTTPS, transportHTTP, transportTCP}
	if forceTCPOnly(endpoint) {
		transports = []string{transportTCP}
	}

	// Cache-first pass across every transport in preference order: a
	// prior successful fetch under any transport satisfies this call
	// without touching the network (spec.md §8 "Protocol fallback").
	for _, transport := range transports {
		key := apiKey(transport, endpoint)
		if raw, ok, err := c.opts.Cache.Get(ctx, key); err == nil && ok {
			doc, perr := bpsv.Parse(raw)
			if perr == nil {
				return doc, nil
			}
		}
	}

	var lastErr error
	for i, transport := range transports {
		doc, raw, err := c.queryTransport(ctx, transport, host, endpoint)
		if err == nil {
			key := apiKey(transport, endpoint)
			_ = c.opts.Cache.Put(ctx, key, raw, int64(len(raw)), ttl)
			return doc, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
		if i < len(transports)-1 {
			c.opts.Hooks.TransportFallback(endpoint, transport, transports[i+1], err.Error())
			c.opts.Logger.Warn("transport fallback", logx.Fields{
				"endpoint": endpoint, "from": transport, "to": transports[i+1], "reason": err.Error(),
			})
		}
	}
	return nil, &AllHostsFailedError{Last: lastErr}
}

func retryable(err error) bool {
	switch e := err.(type) {
	case *HTTPStatusError:
		return e.Retryable()
	case *NetworkError, *TimeoutError:
		return true
	default:
		return false
	}
}

func (c *Client) queryTransport(ctx context.Context, transport, host, endpoint string) (*bpsv.Document, []byte, error) {
	switch transport {
	case transportHTTPS, transportHTTP:
		url := transport + "://" + host + "/" + strings.TrimLeft(endpoint, "/")
		raw, err := c.httpClient.DownloadWithRetry(ctx, url, c.opts.Backoff, nil)
		if err != nil {
			return nil, nil, translateCDNError(endpoint, err)
		}
		doc, perr := bpsv.Parse(raw)
		if perr != nil {
			return nil, nil, &ParseError{Endpoint: endpoint, Err: perr}
		}
		return doc, raw, nil
	case transportTCP:
		raw, err := c.ribbit.Query(ctx, host, c.opts.Region, endpoint)
		if err != nil {
			return nil, nil, &NetworkError{Endpoint: endpoint, Err: err}
		}
		doc, perr := bpsv.Parse(raw)
		if perr != nil {
			return nil, nil, &ParseError{Endpoint: endpoint, Err: perr}
		}
		return doc, raw, nil
	default:
		panic("cascstore: unknown transport " + transport)
	}
}

func translateCDNError(endpoint string, err error) error {
	switch e := err.(type) {
	case *cdn.HTTPStatusError:
		return &HTTPStatusError{Endpoint: endpoint, Status: e.Status}
	case *cdn.NetworkError:
		return &NetworkError{Endpoint: endpoint, Err: e.Err}
	default:
		return &NetworkError{Endpoint: endpoint, Err: err}
	}
}

func validateEndpoint(endpoint string) error {
	if err := cdn.ValidateEndpoint(endpoint); err != nil {
		if ie, ok := err.(*cdn.InvalidEndpointError); ok {
			return &InvalidEndpointError{Endpoint: ie.Endpoint, Reason: ie.Reason}
		}
		return &InvalidEndpointError{Endpoint: endpoint, Reason: err.Error()}
	}
	return nil
}

// ResolveCDNEndpoint parses a cdns-row response and returns the derived
// endpoint for building content URLs (spec.md §4.5 "CDN endpoint
// derivation").
func ResolveCDNEndpoint(row bpsv.Row) (cdn.Endpoint, error) {
	return cdn.FromRow(row.Get("Hosts"), row.Get("Path"), row.Get("ProductPath"), schemeOf(row))
}

func schemeOf(row bpsv.Row) string {
	if row.Get("Servers") != "" {
		return "https"
	}
	return "http"
}

// CacheStats exposes the underlying cache layer's occupancy for
// diagnostics.
func (c *Client) CacheStats(ctx context.Context) (cache.Stats, error) {
	return c.opts.Cache.Stats(ctx)
}

// Close releases the client's cache resources.
func (c *Client) Close(ctx context.Context) error {
	return c.opts.Cache.Close(ctx)
}
