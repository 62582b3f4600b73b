package cascstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ngdp-go/cascstore/cache"
	"github.com/ngdp-go/cascstore/protocol/bpsv"
)

// memCache is a minimal in-memory cache.Layer for exercising Client without
// pulling in a real backend.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}
func (m *memCache) Put(_ context.Context, key string, value []byte, _ int64, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}
func (m *memCache) Contains(ctx context.Context, key string) (bool, error) {
	_, ok, err := m.Get(ctx, key)
	return ok, err
}
func (m *memCache) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
func (m *memCache) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	return nil
}
func (m *memCache) Stats(_ context.Context) (cache.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cache.Stats{Entries: int64(len(m.data))}, nil
}
func (m *memCache) Close(_ context.Context) error { return nil }

var _ cache.Layer = (*memCache)(nil)

func bpsvBody(t *testing.T) []byte {
	t.Helper()
	doc := &bpsv.Document{
		Columns: []bpsv.Column{{Name: "Region", Type: bpsv.String}},
		Rows:    [][]string{{"us"}},
	}
	return bpsv.Encode(doc)
}

func TestForceTCPOnlyEndpoints(t *testing.T) {
	cases := map[string]bool{
		"v1/summary":               true,
		"v1/certs/abcd":            true,
		"v1/ocsp/abcd":             true,
		"v1/products/wow/versions": false,
	}
	for ep, want := range cases {
		if got := forceTCPOnly(ep); got != want {
			t.Errorf("forceTCPOnly(%q) = %v, want %v", ep, got, want)
		}
	}
}

func TestValidateEndpointScenario6(t *testing.T) {
	if err := validateEndpoint("v1/products/wow/versions"); err != nil {
		t.Fatalf("expected accept, got %v", err)
	}
	if err := validateEndpoint("v1/products/wow/versions?x=1"); err == nil {
		t.Fatal("expected rejection of '?'")
	}
	if err := validateEndpoint(""); err == nil {
		t.Fatal("expected rejection of empty endpoint")
	}
}

func TestTTLForEndpointFamilies(t *testing.T) {
	if ttlFor("v1/products/wow/versions") != TTLVersions {
		t.Fatal("expected versions TTL")
	}
	if ttlFor("v1/products/wow/cdns") != TTLCdns {
		t.Fatal("expected cdns TTL")
	}
	if ttlFor("v1/products/wow/bgdl") != TTLBgdl {
		t.Fatal("expected bgdl TTL")
	}
	if ttlFor("v1/products/wow/blobs") != TTLOtherConfig {
		t.Fatal("expected default config TTL")
	}
}

func TestResolveCDNEndpointKeepsProductPath(t *testing.T) {
	doc := &bpsv.Document{
		Columns: []bpsv.Column{
			{Name: "Hosts"}, {Name: "Path"}, {Name: "ProductPath"},
		},
		Rows: [][]string{{"level3.blizzard.com", "tpr/wow", "tpr/configs"}},
	}
	r := doc.RowsIndexed()[0]
	ep, err := ResolveCDNEndpoint(r)
	if err != nil {
		t.Fatalf("ResolveCDNEndpoint: %v", err)
	}
	if ep.ProductPath != "tpr/configs" {
		t.Fatalf("ProductPath = %q", ep.ProductPath)
	}
}

func TestQueryEndToEndOverHTTP(t *testing.T) {
	body := bpsvBody(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()
	host := strings.TrimPrefix(srv.URL, "http://")

	c := New(Options{Cache: newMemCache()})
	doc, err := c.Query(context.Background(), host, "v1/products/wow/versions")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if doc.RowsIndexed()[0].Get("Region") != "us" {
		t.Fatalf("unexpected document: %+v", doc)
	}

	// Second call must be served from cache, not the network: close the
	// server and confirm the call still succeeds.
	srv.Close()
	doc2, err := c.Query(context.Background(), host, "v1/products/wow/versions")
	if err != nil {
		t.Fatalf("cached Query: %v", err)
	}
	if doc2.RowsIndexed()[0].Get("Region") != "us" {
		t.Fatalf("unexpected cached document: %+v", doc2)
	}
}
