package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"connectrpc.com/connect"
	"go.uber.org/zap"

	appext "github.com/masegraye/appext-go"
)

// ClientConfig configures a gateway Connector.
type ClientConfig struct {
	// Endpoint is the gateway URL.
	// Required. Examples: "http://localhost:8090", "https://ib-gateway.example.com"
	Endpoint string

	// Token is sent as a bearer token when not empty.
	Token string

	// HTTPClient carries the RPCs. Default: http.DefaultClient.
	HTTPClient connect.HTTPClient

	// Retry enables retries of read-only calls. Nil disables them.
	Retry *RetryPolicy

	// Logger receives client logs. Default: zap.NewNop().
	Logger *zap.Logger
}

// Validate checks ClientConfig for errors.
func (cfg *ClientConfig) Validate() error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("%w: Endpoint is required", appext.ErrInvalidConfig)
	}
	if !strings.HasPrefix(cfg.Endpoint, "http://") && !strings.HasPrefix(cfg.Endpoint, "https://") {
		return fmt.Errorf("%w: Endpoint %q must be an http(s) URL", appext.ErrInvalidConfig, cfg.Endpoint)
	}
	return nil
}

// Connector implements appext.Connector against a remote gateway.
type Connector struct {
	log *zap.Logger

	open                      *connect.Client[OpenRequest, OpenResponse]
	close                     *connect.Client[SessionRequest, Empty]
	applicationInfo           *connect.Client[SessionRequest, ApplicationInfoResponse]
	listHandles               *connect.Client[SessionRequest, ListHandlesResponse]
	createHandle              *connect.Client[SessionRequest, HandleInfo]
	write                     *connect.Client[WriteRequest, HandleInfo]
	delete                    *connect.Client[HandleRequest, Empty]
	checkCanApply             *connect.Client[CheckCanApplyRequest, CheckCanApplyResponse]
	storedData                *connect.Client[HandleRequest, StoredDataResponse]
	setUnsafeActionProtection *connect.Client[SetUnsafeActionProtectionRequest, Empty]
	setSafeMode               *connect.Client[SetSafeModeRequest, Empty]
}

var _ appext.Connector = (*Connector)(nil)

// NewConnector creates a Connector. No request is made until Open.
func NewConnector(cfg ClientConfig) (*Connector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []connect.ClientOption{connect.WithCodec(jsonCodec{})}
	if cfg.Retry != nil {
		opts = append(opts, connect.WithInterceptors(retryInterceptor(*cfg.Retry, logger.Named("gateway"))))
	}
	if cfg.Token != "" {
		opts = append(opts, connect.WithInterceptors(NewTokenAuth(cfg.Token, nil).ClientInterceptor()))
	}
	base := strings.TrimRight(cfg.Endpoint, "/")

	return &Connector{
		log:                       logger.Named("gateway"),
		open:                      connect.NewClient[OpenRequest, OpenResponse](httpClient, base+ProcedureOpen, opts...),
		close:                     connect.NewClient[SessionRequest, Empty](httpClient, base+ProcedureClose, opts...),
		applicationInfo:           connect.NewClient[SessionRequest, ApplicationInfoResponse](httpClient, base+ProcedureApplicationInfo, opts...),
		listHandles:               connect.NewClient[SessionRequest, ListHandlesResponse](httpClient, base+ProcedureListHandles, opts...),
		createHandle:              connect.NewClient[SessionRequest, HandleInfo](httpClient, base+ProcedureCreateHandle, opts...),
		write:                     connect.NewClient[WriteRequest, HandleInfo](httpClient, base+ProcedureWrite, opts...),
		delete:                    connect.NewClient[HandleRequest, Empty](httpClient, base+ProcedureDelete, opts...),
		checkCanApply:             connect.NewClient[CheckCanApplyRequest, CheckCanApplyResponse](httpClient, base+ProcedureCheckCanApply, opts...),
		storedData:                connect.NewClient[HandleRequest, StoredDataResponse](httpClient, base+ProcedureStoredData, opts...),
		setUnsafeActionProtection: connect.NewClient[SetUnsafeActionProtectionRequest, Empty](httpClient, base+ProcedureSetUnsafeActionProtection, opts...),
		setSafeMode:               connect.NewClient[SetSafeModeRequest, Empty](httpClient, base+ProcedureSetSafeMode, opts...),
	}, nil
}

// Open opens a remote session against target.
func (c *Connector) Open(ctx context.Context, target appext.Target) (appext.HostBinding, error) {
	resp, err := call(ctx, c.open, &OpenRequest{Name: target.Name, Connection: target.Connection})
	if err != nil {
		return nil, err
	}
	c.log.Debug("session opened", zap.String("session", resp.SessionID), zap.Stringer("target", target))
	return &remoteBinding{c: c, session: resp.SessionID}, nil
}

// call performs one unary RPC and maps its error back to the domain.
func call[Req, Res any](ctx context.Context, client *connect.Client[Req, Res], req *Req) (*Res, error) {
	resp, err := client.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, fromConnectError(err)
	}
	return resp.Msg, nil
}

type remoteBinding struct {
	c       *Connector
	session string

	mu     sync.Mutex
	closed bool
}

func (b *remoteBinding) Handles(ctx context.Context) ([]appext.Handle, error) {
	resp, err := call(ctx, b.c.listHandles, &SessionRequest{SessionID: b.session})
	if err != nil {
		return nil, err
	}
	out := make([]appext.Handle, len(resp.Handles))
	for i, info := range resp.Handles {
		out[i] = newRemoteHandle(b, info)
	}
	return out, nil
}

func (b *remoteBinding) CreateHandle(ctx context.Context) (appext.Handle, error) {
	info, err := call(ctx, b.c.createHandle, &SessionRequest{SessionID: b.session})
	if err != nil {
		return nil, err
	}
	return newRemoteHandle(b, *info), nil
}

func (b *remoteBinding) ApplicationInfo(ctx context.Context) (appext.ApplicationInfo, error) {
	resp, err := call(ctx, b.c.applicationInfo, &SessionRequest{SessionID: b.session})
	if err != nil {
		return appext.ApplicationInfo{}, err
	}
	return appext.ApplicationInfo{
		Name:                 resp.Name,
		Version:              resp.Version,
		CompatibilityVersion: resp.CompatibilityVersion,
	}, nil
}

// Close ends the remote session. Calling it again is a no-op.
func (b *remoteBinding) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	_, err := call(context.Background(), b.c.close, &SessionRequest{SessionID: b.session})
	return err
}

type remoteHandle struct {
	b    *remoteBinding
	id   string
	caps map[appext.Capability]bool

	mu      sync.Mutex
	name    string
	version string
}

func newRemoteHandle(b *remoteBinding, info HandleInfo) *remoteHandle {
	h := &remoteHandle{
		b:       b,
		id:      info.ID,
		caps:    make(map[appext.Capability]bool, len(info.Capabilities)),
		name:    info.Name,
		version: info.Version,
	}
	for _, c := range info.Capabilities {
		h.caps[appext.Capability(c)] = true
	}
	return h
}

func (h *remoteHandle) Name() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.name
}

func (h *remoteHandle) Version() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.version
}

func (h *remoteHandle) Write(ctx context.Context, data []byte) error {
	info, err := call(ctx, h.b.c.write, &WriteRequest{SessionID: h.b.session, HandleID: h.id, Data: data})
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.name, h.version = info.Name, info.Version
	h.mu.Unlock()
	return nil
}

func (h *remoteHandle) Delete(ctx context.Context) error {
	_, err := call(ctx, h.b.c.delete, &HandleRequest{SessionID: h.b.session, HandleID: h.id})
	return err
}

func (h *remoteHandle) CheckCanApply(ctx context.Context, data []byte, strict bool) ([]appext.ApplyProblem, error) {
	resp, err := call(ctx, h.b.c.checkCanApply, &CheckCanApplyRequest{
		SessionID: h.b.session,
		HandleID:  h.id,
		Data:      data,
		Strict:    strict,
	})
	if err != nil {
		return nil, err
	}
	return resp.Problems, nil
}

func (h *remoteHandle) StoredData(ctx context.Context) ([]byte, error) {
	resp, err := call(ctx, h.b.c.storedData, &HandleRequest{SessionID: h.b.session, HandleID: h.id})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (h *remoteHandle) Supports(c appext.Capability) bool {
	return h.caps[c]
}

func (h *remoteHandle) SetUnsafeActionProtection(ctx context.Context, warnings bool) error {
	_, err := call(ctx, h.b.c.setUnsafeActionProtection, &SetUnsafeActionProtectionRequest{
		SessionID: h.b.session,
		HandleID:  h.id,
		Warnings:  warnings,
	})
	return err
}

func (h *remoteHandle) SetSafeMode(ctx context.Context, mode appext.SafeMode) error {
	_, err := call(ctx, h.b.c.setSafeMode, &SetSafeModeRequest{
		SessionID: h.b.session,
		HandleID:  h.id,
		SafeMode:  safeModeToInfo(mode),
	})
	return err
}
