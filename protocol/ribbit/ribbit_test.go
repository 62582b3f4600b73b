package ribbit

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"
)

func TestQueryRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		if line != "us v1/products/wow/versions\r\n" {
			return
		}
		conn.Write([]byte("Region!STRING:0\nus\n"))
	}()

	addr := ln.Addr().(*net.TCPAddr)
	c := &Client{Port: addr.Port}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, err := c.Query(ctx, "127.0.0.1", "us", "v1/products/wow/versions")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if string(out) != "Region!STRING:0\nus\n" {
		t.Fatalf("Query = %q", out)
	}
}

func TestQueryDialFailure(t *testing.T) {
	c := &Client{Port: 1}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if _, err := c.Query(ctx, "127.0.0.1", "us", "v1/products/wow/versions"); err == nil {
		t.Fatal("expected dial error against an unused low port")
	}
}
