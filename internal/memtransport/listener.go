// Package memtransport connects an http.Server and an HTTP client inside one
// process over net.Pipe, so gateway tests need no sockets.
//
//	ln := memtransport.New()
//	go srv.Serve(ln)
//	conn, _ := gateway.NewConnector(gateway.ClientConfig{
//	    Endpoint:   "http://mem",
//	    HTTPClient: ln.HTTPClient(),
//	})
package memtransport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
)

// ErrClosed is returned by Accept and Dial once the listener is closed.
var ErrClosed = errors.New("memtransport: listener closed")

// DefaultBacklog is how many dialed connections may wait for Accept.
const DefaultBacklog = 16

// Listener is a net.Listener whose connections are created by Dial.
type Listener struct {
	pending chan net.Conn
	done    chan struct{}
	close   sync.Once
}

var _ net.Listener = (*Listener)(nil)

// New returns a listener with DefaultBacklog pending connections.
func New() *Listener {
	return NewWithBacklog(DefaultBacklog)
}

// NewWithBacklog returns a listener that queues up to backlog connections
// before Dial blocks.
func NewWithBacklog(backlog int) *Listener {
	if backlog < 0 {
		backlog = 0
	}
	return &Listener{
		pending: make(chan net.Conn, backlog),
		done:    make(chan struct{}),
	}
}

// Accept returns the server end of the next dialed pipe.
func (l *Listener) Accept() (net.Conn, error) {
	select {
	case c := <-l.pending:
		return c, nil
	case <-l.done:
		return nil, ErrClosed
	}
}

// Close unblocks Accept and Dial. It may be called more than once.
func (l *Listener) Close() error {
	l.close.Do(func() { close(l.done) })
	return nil
}

// Addr returns the listener's placeholder address.
func (l *Listener) Addr() net.Addr {
	return pipeAddr{}
}

// Dial creates a pipe, queues its server end for Accept and returns the
// client end. Its signature matches http.Transport.DialContext.
func (l *Listener) Dial(ctx context.Context, _, _ string) (net.Conn, error) {
	select {
	case <-l.done:
		return nil, ErrClosed
	default:
	}

	server, client := net.Pipe()
	select {
	case l.pending <- server:
		return client, nil
	case <-l.done:
		err := ErrClosed
		return nil, closeBoth(server, client, err)
	case <-ctx.Done():
		return nil, closeBoth(server, client, ctx.Err())
	}
}

func closeBoth(a, b net.Conn, err error) error {
	a.Close()
	b.Close()
	return err
}

// HTTPClient returns a client whose requests dial through l. The URL host
// is ignored. Pipes carry plain HTTP/1.1.
func (l *Listener) HTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext:       l.Dial,
			ForceAttemptHTTP2: false,
		},
	}
}

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "memtransport" }
