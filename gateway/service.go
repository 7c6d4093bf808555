package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	appext "github.com/masegraye/appext-go"
)

// Service implements the host service on top of a local appext.Connector.
// Each Open creates a session holding one HostBinding; handles are
// addressed by ids the service assigns per session.
type Service struct {
	connector appext.Connector
	log       *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// maxPendingHandles bounds the created handles a session keeps before the
// first Write; the oldest is dropped beyond it.
const maxPendingHandles = 64

type session struct {
	id      string
	target  appext.Target
	binding appext.HostBinding

	mu      sync.Mutex
	handles map[string]appext.Handle
	// byName maps a persisted extension name to its handle id, so
	// repeated listings reuse ids.
	byName map[string]string
	// pending holds ids of created handles not yet written, oldest first.
	pending []string
}

func newSession(target appext.Target, b appext.HostBinding) *session {
	return &session{
		id:      uuid.NewString(),
		target:  target,
		binding: b,
		handles: make(map[string]appext.Handle),
		byName:  make(map[string]string),
	}
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the service logger. Default: zap.NewNop().
func WithServiceLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService creates a service that opens sessions through connector.
func NewService(connector appext.Connector, opts ...ServiceOption) *Service {
	s := &Service{
		connector: connector,
		log:       zap.NewNop(),
		sessions:  make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("gateway")
	return s
}

// Handler returns the service path and an http.Handler serving every
// procedure. opts are appended to the service's own handler options.
func (s *Service) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(ProcedureOpen, connect.NewUnaryHandler(ProcedureOpen, s.open, opts...))
	mux.Handle(ProcedureClose, connect.NewUnaryHandler(ProcedureClose, s.close, opts...))
	mux.Handle(ProcedureApplicationInfo, connect.NewUnaryHandler(ProcedureApplicationInfo, s.applicationInfo, opts...))
	mux.Handle(ProcedureListHandles, connect.NewUnaryHandler(ProcedureListHandles, s.listHandles, opts...))
	mux.Handle(ProcedureCreateHandle, connect.NewUnaryHandler(ProcedureCreateHandle, s.createHandle, opts...))
	mux.Handle(ProcedureWrite, connect.NewUnaryHandler(ProcedureWrite, s.write, opts...))
	mux.Handle(ProcedureDelete, connect.NewUnaryHandler(ProcedureDelete, s.delete, opts...))
	mux.Handle(ProcedureCheckCanApply, connect.NewUnaryHandler(ProcedureCheckCanApply, s.checkCanApply, opts...))
	mux.Handle(ProcedureStoredData, connect.NewUnaryHandler(ProcedureStoredData, s.storedData, opts...))
	mux.Handle(ProcedureSetUnsafeActionProtection, connect.NewUnaryHandler(ProcedureSetUnsafeActionProtection, s.setUnsafeActionProtection, opts...))
	mux.Handle(ProcedureSetSafeMode, connect.NewUnaryHandler(ProcedureSetSafeMode, s.setSafeMode, opts...))
	return ServicePath, mux
}

// Sessions returns the number of open sessions.
func (s *Service) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close closes every open session.
func (s *Service) Close() error {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	var err error
	for _, sess := range sessions {
		err = multierr.Append(err, sess.binding.Close())
	}
	return err
}

func (s *Service) open(ctx context.Context, req *connect.Request[OpenRequest]) (*connect.Response[OpenResponse], error) {
	target := appext.Target{Name: req.Msg.Name, Connection: req.Msg.Connection}
	b, err := s.connector.Open(ctx, target)
	if err != nil {
		s.log.Warn("open session failed", zap.Stringer("target", target), zap.Error(err))
		return nil, toConnectError(err)
	}

	sess := newSession(target, b)
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.log.Info("session opened",
		zap.String("session", sess.id),
		zap.Stringer("target", target),
		zap.String("identity", Identity(ctx)))
	return connect.NewResponse(&OpenResponse{SessionID: sess.id}), nil
}

func (s *Service) close(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[Empty], error) {
	s.mu.Lock()
	sess, ok := s.sessions[req.Msg.SessionID]
	delete(s.sessions, req.Msg.SessionID)
	s.mu.Unlock()

	// Closing twice is not an error.
	if !ok {
		return connect.NewResponse(&Empty{}), nil
	}
	if err := sess.binding.Close(); err != nil {
		return nil, toConnectError(err)
	}
	s.log.Info("session closed", zap.String("session", sess.id))
	return connect.NewResponse(&Empty{}), nil
}

func (s *Service) applicationInfo(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[ApplicationInfoResponse], error) {
	sess, err := s.session(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	info, err := sess.binding.ApplicationInfo(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ApplicationInfoResponse{
		Name:                 info.Name,
		Version:              info.Version,
		CompatibilityVersion: info.CompatibilityVersion,
	}), nil
}

func (s *Service) listHandles(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[ListHandlesResponse], error) {
	sess, err := s.session(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	handles, err := sess.binding.Handles(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&ListHandlesResponse{Handles: sess.listed(handles)}), nil
}

func (s *Service) createHandle(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[HandleInfo], error) {
	sess, err := s.session(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	h, err := sess.binding.CreateHandle(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	info := sess.created(h)
	return connect.NewResponse(&info), nil
}

func (s *Service) write(ctx context.Context, req *connect.Request[WriteRequest]) (*connect.Response[HandleInfo], error) {
	sess, h, err := s.handle(req.Msg.SessionID, req.Msg.HandleID)
	if err != nil {
		return nil, err
	}
	if err := h.Write(ctx, req.Msg.Data); err != nil {
		return nil, toConnectError(err)
	}
	sess.written(req.Msg.HandleID, h.Name())
	s.log.Info("extension written",
		zap.String("session", sess.id),
		zap.String("extension", h.Name()),
		zap.String("version", h.Version()))

	info := describe(req.Msg.HandleID, h)
	return connect.NewResponse(&info), nil
}

func (s *Service) delete(ctx context.Context, req *connect.Request[HandleRequest]) (*connect.Response[Empty], error) {
	sess, h, err := s.handle(req.Msg.SessionID, req.Msg.HandleID)
	if err != nil {
		return nil, err
	}
	name := h.Name()
	if err := h.Delete(ctx); err != nil {
		return nil, toConnectError(err)
	}
	sess.deleted(req.Msg.HandleID, name)
	s.log.Info("extension deleted", zap.String("session", sess.id), zap.String("extension", name))
	return connect.NewResponse(&Empty{}), nil
}

func (s *Service) checkCanApply(ctx context.Context, req *connect.Request[CheckCanApplyRequest]) (*connect.Response[CheckCanApplyResponse], error) {
	_, h, err := s.handle(req.Msg.SessionID, req.Msg.HandleID)
	if err != nil {
		return nil, err
	}
	problems, err := h.CheckCanApply(ctx, req.Msg.Data, req.Msg.Strict)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&CheckCanApplyResponse{Problems: problems}), nil
}

func (s *Service) storedData(ctx context.Context, req *connect.Request[HandleRequest]) (*connect.Response[StoredDataResponse], error) {
	_, h, err := s.handle(req.Msg.SessionID, req.Msg.HandleID)
	if err != nil {
		return nil, err
	}
	data, err := h.StoredData(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&StoredDataResponse{Data: data}), nil
}

func (s *Service) setUnsafeActionProtection(ctx context.Context, req *connect.Request[SetUnsafeActionProtectionRequest]) (*connect.Response[Empty], error) {
	_, h, err := s.handle(req.Msg.SessionID, req.Msg.HandleID)
	if err != nil {
		return nil, err
	}
	if err := h.SetUnsafeActionProtection(ctx, req.Msg.Warnings); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

func (s *Service) setSafeMode(ctx context.Context, req *connect.Request[SetSafeModeRequest]) (*connect.Response[Empty], error) {
	_, h, err := s.handle(req.Msg.SessionID, req.Msg.HandleID)
	if err != nil {
		return nil, err
	}
	if err := h.SetSafeMode(ctx, req.Msg.SafeMode.safeMode()); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

func (s *Service) session(id string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, toConnectError(fmt.Errorf("%w %q", errUnknownSession, id))
	}
	return sess, nil
}

func (s *Service) handle(sessionID, handleID string) (*session, appext.Handle, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, nil, err
	}
	sess.mu.Lock()
	h, ok := sess.handles[handleID]
	sess.mu.Unlock()
	if !ok {
		return nil, nil, toConnectError(fmt.Errorf("%w: %q", appext.ErrHandleNotFound, handleID))
	}
	return sess, h, nil
}

// listed registers the handles of a listing. A name seen before keeps its
// id; ids of names no longer listed are dropped.
func (sess *session) listed(handles []appext.Handle) []HandleInfo {
	names := make([]string, len(handles))
	for i, h := range handles {
		names[i] = h.Name()
	}

	ids := make([]string, len(handles))
	seen := make(map[string]bool, len(handles))
	sess.mu.Lock()
	for i, h := range handles {
		id, ok := sess.byName[names[i]]
		if !ok {
			id = uuid.NewString()
			sess.byName[names[i]] = id
		}
		sess.handles[id] = h
		seen[names[i]] = true
		ids[i] = id
	}
	for name, id := range sess.byName {
		if !seen[name] {
			delete(sess.byName, name)
			delete(sess.handles, id)
		}
	}
	sess.mu.Unlock()

	out := make([]HandleInfo, len(handles))
	for i, h := range handles {
		out[i] = describe(ids[i], h)
	}
	return out
}

// created registers a handle that is not persisted yet.
func (sess *session) created(h appext.Handle) HandleInfo {
	id := uuid.NewString()
	sess.mu.Lock()
	sess.handles[id] = h
	sess.pending = append(sess.pending, id)
	if len(sess.pending) > maxPendingHandles {
		delete(sess.handles, sess.pending[0])
		sess.pending = sess.pending[1:]
	}
	sess.mu.Unlock()
	return describe(id, h)
}

// written indexes id under the name its handle now carries.
func (sess *session) written(id, name string) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	for i, p := range sess.pending {
		if p == id {
			sess.pending = append(sess.pending[:i], sess.pending[i+1:]...)
			break
		}
	}
	for n, other := range sess.byName {
		if other == id && n != name {
			delete(sess.byName, n)
		}
	}
	if old, ok := sess.byName[name]; ok && old != id {
		delete(sess.handles, old)
	}
	sess.byName[name] = id
}

// deleted drops id and the name index pointing at it.
func (sess *session) deleted(id, name string) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	delete(sess.handles, id)
	if sess.byName[name] == id {
		delete(sess.byName, name)
	}
	for i, p := range sess.pending {
		if p == id {
			sess.pending = append(sess.pending[:i], sess.pending[i+1:]...)
			break
		}
	}
}

func describe(id string, h appext.Handle) HandleInfo {
	info := HandleInfo{ID: id, Name: h.Name(), Version: h.Version()}
	for _, c := range capabilities {
		if h.Supports(c) {
			info.Capabilities = append(info.Capabilities, string(c))
		}
	}
	return info
}
