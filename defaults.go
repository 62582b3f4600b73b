package cascstore

import (
	"time"

	"github.com/ngdp-go/cascstore/cache"
	"github.com/ngdp-go/cascstore/logx"
	"github.com/ngdp-go/cascstore/protocol/cdn"
)

// Per-endpoint-family TTLs for parsed BPSV documents (spec.md §4.5).
const (
	TTLVersions    = 5 * time.Minute
	TTLBgdl        = 5 * time.Minute
	TTLCdns        = time.Hour
	TTLOtherConfig = 30 * time.Minute
)

// ttlFor selects the cache TTL for an endpoint family by its trailing path
// segment (e.g. ".../versions", ".../cdns").
func ttlFor(endpoint string) time.Duration {
	switch lastSegment(endpoint) {
	case "versions":
		return TTLVersions
	case "bgdl":
		return TTLBgdl
	case "cdns":
		return TTLCdns
	default:
		return TTLOtherConfig
	}
}

func lastSegment(s string) string {
	i := len(s) - 1
	for i >= 0 && s[i] != '/' {
		i--
	}
	return s[i+1:]
}

// Options configures a Client.
type Options struct {
	// Cache backs parsed protocol responses, BLTE chunks, and content
	// lookups. Required.
	Cache cache.Layer
	// Region selects the Ribbit/CDN region (e.g. "us", "eu").
	Region string
	// Product is the NGDP product tag (e.g. "wow"); optional for
	// endpoints that aren't product-scoped.
	Product string
	// Backoff overrides the CDN retry schedule; zero value selects
	// cdn.DefaultBackoff.
	Backoff cdn.BackoffConfig
	// Hooks receives lifecycle events; defaults to NopHooks.
	Hooks Hooks
	// Logger receives structured log lines; defaults to a no-op.
	Logger logx.Logger
}

func (o Options) withDefaults() Options {
	if o.Backoff == (cdn.BackoffConfig{}) {
		o.Backoff = cdn.DefaultBackoff
	}
	if o.Hooks == nil {
		o.Hooks = NopHooks{}
	}
	o.Logger = logx.Coalesce(o.Logger)
	return o
}
