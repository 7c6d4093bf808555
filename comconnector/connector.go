// Package comconnector opens automation sessions against a local host
// instance through its COM connector (V83.COMConnector) using go-ole.
//
// Every session owns one OS thread: COM is initialized on it, every call of
// the session runs there serially, and it is released on Close. The COM
// connector exists only on Windows; elsewhere Open fails with the error
// reported by go-ole.
package comconnector

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
	"go.uber.org/zap"

	appext "github.com/masegraye/appext-go"
)

// DefaultProgID is the COM class of the host's external connection.
const DefaultProgID = "V83.COMConnector"

// Connector implements appext.Connector over COM.
type Connector struct {
	progID  string
	tempDir string
	log     *zap.Logger
}

var _ appext.Connector = (*Connector)(nil)

// Option configures a Connector.
type Option func(*Connector)

// WithProgID sets the COM class to instantiate. Default: DefaultProgID.
func WithProgID(progID string) Option {
	return func(c *Connector) {
		c.progID = progID
	}
}

// WithTempDir sets where payload files handed to the host are staged.
// Default: os.TempDir().
func WithTempDir(dir string) Option {
	return func(c *Connector) {
		c.tempDir = dir
	}
}

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(c *Connector) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a COM connector.
func New(opts ...Option) *Connector {
	c := &Connector{
		progID:  DefaultProgID,
		tempDir: os.TempDir(),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("comconnector")
	return c
}

// Open starts a session worker, creates the COM connector on it and
// connects to target.Connection.
func (c *Connector) Open(ctx context.Context, target appext.Target) (appext.HostBinding, error) {
	if strings.TrimSpace(target.Connection) == "" {
		return nil, fmt.Errorf("%w: connection string is required", appext.ErrInvalidArgument)
	}

	w, err := startWorker(
		func() error { return ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED) },
		ole.CoUninitialize,
	)
	if err != nil {
		return nil, fmt.Errorf("initialize COM: %w", err)
	}

	b := &binding{w: w, tempDir: c.tempDir, log: c.log.With(zap.Stringer("target", target))}
	err = w.do(ctx, func() error {
		unknown, err := oleutil.CreateObject(c.progID)
		if err != nil {
			return fmt.Errorf("create %s: %w", c.progID, err)
		}
		defer unknown.Release()

		b.connector, err = unknown.QueryInterface(ole.IID_IDispatch)
		if err != nil {
			return fmt.Errorf("query %s: %w", c.progID, err)
		}
		b.conn, err = object(oleutil.CallMethod(b.connector, "Connect", target.Connection))
		if err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		return nil
	})
	if err != nil {
		b.Close()
		return nil, err
	}

	b.log.Info("session opened")
	return b, nil
}

// FileConnection returns the connection string of a file infobase in dir.
func FileConnection(dir string) string {
	return "File=" + quote(dir) + ";"
}

// ServerConnection returns the connection string of an infobase ref on a
// cluster server.
func ServerConnection(server, ref string) string {
	return "Srvr=" + quote(server) + ";Ref=" + quote(ref) + ";"
}

// WithCredentials appends user credentials to a connection string.
func WithCredentials(conn, user, password string) string {
	if !strings.HasSuffix(conn, ";") {
		conn += ";"
	}
	if user != "" {
		conn += "Usr=" + quote(user) + ";"
	}
	if password != "" {
		conn += "Pwd=" + quote(password) + ";"
	}
	return conn
}

// quote wraps v in double quotes, doubling embedded ones.
func quote(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}
