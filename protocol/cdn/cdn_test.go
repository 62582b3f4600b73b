package cdn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBuildURLScenario1(t *testing.T) {
	e := Endpoint{Host: "level3.blizzard.com", Path: "tpr/wow", Scheme: "http"}
	got, err := e.BuildURL(Data, "abcdef1234567890")
	if err != nil {
		t.Fatalf("BuildURL: %v", err)
	}
	want := "http://level3.blizzard.com/tpr/wow/data/ab/cd/abcdef1234567890"
	if got != want {
		t.Fatalf("BuildURL = %q, want %q", got, want)
	}
}

func TestBuildURLProductPathIgnoredScenario2(t *testing.T) {
	e := Endpoint{Host: "level3.blizzard.com", Path: "tpr/wow", ProductPath: "tpr/configs", Scheme: "http"}
	got, err := e.BuildURL(Config, "abcdef1234567890")
	if err != nil {
		t.Fatalf("BuildURL: %v", err)
	}
	want := "http://level3.blizzard.com/tpr/wow/config/ab/cd/abcdef1234567890"
	if got != want {
		t.Fatalf("BuildURL = %q, want %q (must ignore ProductPath)", got, want)
	}
}

func TestBuildIndexURL(t *testing.T) {
	e := Endpoint{Host: "h", Path: "p", Scheme: "https"}
	got, err := e.BuildIndexURL("abcdef1234567890")
	if err != nil {
		t.Fatalf("BuildIndexURL: %v", err)
	}
	want := "https://h/p/data/ab/cd/abcdef1234567890.index"
	if got != want {
		t.Fatalf("BuildIndexURL = %q, want %q", got, want)
	}
}

func TestValidateEndpointScenario6(t *testing.T) {
	if err := ValidateEndpoint("v1/products/wow/versions"); err != nil {
		t.Fatalf("expected accept, got %v", err)
	}
	if err := ValidateEndpoint("v1/products/wow/versions?x=1"); err == nil {
		t.Fatal("expected rejection of '?'")
	}
	if err := ValidateEndpoint(""); err == nil {
		t.Fatal("expected rejection of empty endpoint")
	}
}

func TestFromRowFirstHostOnly(t *testing.T) {
	e, err := FromRow("level3.blizzard.com us.cdn.blizzard.com", "tpr/wow", "tpr/configs", "")
	if err != nil {
		t.Fatalf("FromRow: %v", err)
	}
	if e.Host != "level3.blizzard.com" || e.Scheme != "https" {
		t.Fatalf("FromRow = %+v", e)
	}
}

func TestDownloadRangeFallsBackToFullOn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("full-body"))
	}))
	defer srv.Close()

	c := NewClient()
	data, err := c.DownloadRange(context.Background(), srv.URL, 5, nil)
	if err != nil {
		t.Fatalf("DownloadRange: %v", err)
	}
	if string(data) != "full-body" {
		t.Fatalf("data = %q", data)
	}
}

func TestDownload416ReturnsEmptyNoError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
	}))
	defer srv.Close()

	c := NewClient()
	data, err := c.DownloadRange(context.Background(), srv.URL, 1000, nil)
	if err != nil {
		t.Fatalf("DownloadRange: %v", err)
	}
	if data != nil {
		t.Fatalf("data = %v, want nil", data)
	}
}

func TestDownload404NotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient()
	_, err := c.DownloadWithRetry(context.Background(), srv.URL, DefaultBackoff, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (404 must not retry)", calls)
	}
}
