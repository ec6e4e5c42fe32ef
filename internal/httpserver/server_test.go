package httpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/adred-codev/metricstream/internal/ingest"
	"github.com/adred-codev/metricstream/internal/ratelimit"
	"github.com/adred-codev/metricstream/internal/workerpool"
	"github.com/adred-codev/metricstream/internal/writer"
	"github.com/rs/zerolog"
)

// noopSink discards every record; used so tests never touch disk.
type noopSink struct{}

func (noopSink) Append([]byte) error { return nil }
func (noopSink) Flush() error        { return nil }

func startTestServer(t *testing.T, limit int) (addr string, shutdown func()) {
	t.Helper()

	limiter := ratelimit.New(ratelimit.Config{Limit: limit})
	parser := ingest.NewParser(ingest.DefaultBodyCap)
	w := writer.New(noopSink{}, nil, zerolog.Nop(), writer.Config{})
	go w.Run()

	pool := workerpool.New(4, 0, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := New(Config{IdleTimeout: 2 * time.Second}, limiter, parser, w, pool, nil, zerolog.Nop())
	srv.listener = ln

	srvCtx, srvCancel := context.WithCancel(context.Background())
	go func() {
		<-srvCtx.Done()
		ln.Close()
	}()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			srv.accept(conn)
		}
	}()

	shutdown = func() {
		srvCancel()
		cancel()
		pool.Stop()
		w.Shutdown()
	}
	return ln.Addr().String(), shutdown
}

func TestHealthEndpoint(t *testing.T) {
	addr, shutdown := startTestServer(t, 10)
	defer shutdown()

	resp, err := http.Get("http://" + addr + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, field := range []string{"workers_queued", "writer_queued", "dropped", "clients"} {
		if _, ok := body[field]; !ok {
			t.Errorf("missing field %q in /health response: %v", field, body)
		}
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	addr, shutdown := startTestServer(t, 10)
	defer shutdown()

	resp, err := http.Get("http://" + addr + "/nope")
	if err != nil {
		t.Fatalf("GET /nope: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func postMetrics(addr, body string) (*http.Response, error) {
	return http.Post("http://"+addr+"/metrics", "application/json", bytes.NewBufferString(body))
}

const validBatch = `{"metrics":[{"name":"cpu.load","value":1.5,"type":"gauge"}]}`

func TestIngestAcceptsValidBatch(t *testing.T) {
	addr, shutdown := startTestServer(t, 10)
	defer shutdown()

	resp, err := postMetrics(addr, validBatch)
	if err != nil {
		t.Fatalf("POST /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 202 {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want 202, body=%s", resp.StatusCode, body)
	}
}

func TestIngestRateLimitsAfterBurst(t *testing.T) {
	addr, shutdown := startTestServer(t, 2)
	defer shutdown()

	var lastStatus int
	for i := 0; i < 4; i++ {
		resp, err := postMetrics(addr, validBatch)
		if err != nil {
			t.Fatalf("POST /metrics: %v", err)
		}
		lastStatus = resp.StatusCode
		resp.Body.Close()
	}
	if lastStatus != 429 {
		t.Fatalf("status after burst = %d, want 429", lastStatus)
	}
}

func TestIngestMalformedBodyIs400(t *testing.T) {
	addr, shutdown := startTestServer(t, 10)
	defer shutdown()

	resp, err := postMetrics(addr, `{not json`)
	if err != nil {
		t.Fatalf("POST /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestKeepAliveServesMultipleRequestsOnOneConnection(t *testing.T) {
	addr, shutdown := startTestServer(t, 100)
	defer shutdown()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	req := "GET /health HTTP/1.1\r\nHost: test\r\n\r\n"
	for i := 0; i < 3; i++ {
		if _, err := conn.Write([]byte(req)); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		resp, err := http.ReadResponse(reader, nil)
		if err != nil {
			t.Fatalf("read response %d: %v", i, err)
		}
		if resp.StatusCode != 200 {
			t.Fatalf("response %d status = %d, want 200", i, resp.StatusCode)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}
