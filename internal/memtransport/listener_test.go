package memtransport_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/masegraye/appext-go/internal/memtransport"
)

func serve(t *testing.T, h http.Handler) *memtransport.Listener {
	t.Helper()

	ln := memtransport.New()
	srv := &http.Server{Handler: h}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ln.Close()
	})
	return ln
}

func TestHTTPClient_RoundTrip(t *testing.T) {
	ln := serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Echo", r.Header.Get("X-Probe"))
		fmt.Fprintf(w, "%s %s", r.URL.Path, body)
	}))

	req, _ := http.NewRequest(http.MethodPost, "http://mem/echo", strings.NewReader("ping"))
	req.Header.Set("X-Probe", "42")
	resp, err := ln.HTTPClient().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "/echo ping" {
		t.Errorf("body = %q", body)
	}
	if got := resp.Header.Get("X-Echo"); got != "42" {
		t.Errorf("X-Echo = %q", got)
	}
}

func TestHTTPClient_Concurrent(t *testing.T) {
	ln := serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, r.URL.Query().Get("id"))
	}))
	client := ln.HTTPClient()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			resp, err := client.Get(fmt.Sprintf("http://mem/?id=%d", id))
			if err != nil {
				errs <- err
				return
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if string(body) != fmt.Sprint(id) {
				errs <- fmt.Errorf("request %d: body = %q", id, body)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestListener_Close(t *testing.T) {
	ln := memtransport.New()
	if err := ln.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := ln.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	if _, err := ln.Accept(); !errors.Is(err, memtransport.ErrClosed) {
		t.Errorf("Accept: expected ErrClosed, got %v", err)
	}
	if _, err := ln.Dial(context.Background(), "", ""); !errors.Is(err, memtransport.ErrClosed) {
		t.Errorf("Dial: expected ErrClosed, got %v", err)
	}
}

func TestListener_DialHonorsContext(t *testing.T) {
	ln := memtransport.NewWithBacklog(0)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := ln.Dial(ctx, "", ""); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestListener_PipeCarriesBytes(t *testing.T) {
	ln := memtransport.New()
	defer ln.Close()

	client, err := ln.Dial(context.Background(), "", "")
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	server, err := ln.Accept()
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	defer server.Close()

	go func() {
		client.Write([]byte("hello"))
		client.Close()
	}()

	got, _ := io.ReadAll(server)
	if string(got) != "hello" {
		t.Errorf("read %q", got)
	}
	if ln.Addr().Network() != "pipe" {
		t.Errorf("Network() = %q", ln.Addr().Network())
	}
}
