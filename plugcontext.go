package appext

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// PlugContext holds one open HostBinding against a target instance and
// mints Extensions and Spies that share it.
type PlugContext struct {
	connector Connector
	target    Target
	opts      []Option
	log       *zap.Logger

	mu      sync.RWMutex
	binding HostBinding
	closed  bool
}

// NewPlugContext creates a PlugContext without opening the binding.
// Call Connect before minting extensions, or use Open.
func NewPlugContext(connector Connector, target Target, opts ...Option) *PlugContext {
	o := buildOptions(opts)
	return &PlugContext{
		connector: connector,
		target:    target,
		opts:      opts,
		log:       o.logger.Named("plug").With(zap.Stringer("target", target)),
	}
}

// Open opens a binding against target and returns a ready PlugContext.
// It blocks until the host session is ready.
func Open(ctx context.Context, connector Connector, target Target, opts ...Option) (*PlugContext, error) {
	pc := NewPlugContext(connector, target, opts...)
	if err := pc.Connect(ctx); err != nil {
		return nil, err
	}
	return pc, nil
}

// Connect opens the binding. Calling it again on a connected context is a no-op.
func (pc *PlugContext) Connect(ctx context.Context) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.closed {
		return ErrClosed
	}
	if pc.binding != nil {
		return nil
	}
	if pc.connector == nil {
		return fmt.Errorf("%w: connector is required", ErrInvalidConfig)
	}

	b, err := pc.connector.Open(ctx, pc.target)
	if err != nil {
		return fmt.Errorf("open %s: %w", pc.target, err)
	}
	pc.binding = b
	pc.log.Debug("binding opened")
	return nil
}

// Target returns the instance this context is bound to.
func (pc *PlugContext) Target() Target {
	return pc.target
}

// Binding returns the open binding or ErrNotConnected.
func (pc *PlugContext) Binding() (HostBinding, error) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	if pc.closed {
		return nil, ErrClosed
	}
	if pc.binding == nil {
		return nil, ErrNotConnected
	}
	return pc.binding, nil
}

// NewExtension returns an Extension for desc that shares this context's binding.
func (pc *PlugContext) NewExtension(desc Descriptor, safeMode SafeMode) (*Extension, error) {
	b, err := pc.Binding()
	if err != nil {
		return nil, err
	}
	return NewExtension(b, desc, safeMode, pc.opts...), nil
}

// Exec creates an Extension for desc and plugs it.
func (pc *PlugContext) Exec(ctx context.Context, desc Descriptor, safeMode SafeMode) (*Extension, error) {
	ext, err := pc.NewExtension(desc, safeMode)
	if err != nil {
		return nil, err
	}
	return ext.Plug(ctx)
}

// Explore returns one Spy per extension currently stored in the instance.
func (pc *PlugContext) Explore(ctx context.Context) ([]*Spy, error) {
	b, err := pc.Binding()
	if err != nil {
		return nil, err
	}
	handles, err := b.Handles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list extensions: %w", err)
	}

	spies := make([]*Spy, len(handles))
	for i, h := range handles {
		spies[i] = NewSpy(b, h, pc.opts...)
	}
	return spies, nil
}

// Close closes the binding. Extensions minted from the context stop working.
func (pc *PlugContext) Close() error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.closed {
		return nil
	}
	pc.closed = true

	if pc.binding == nil {
		return nil
	}
	err := pc.binding.Close()
	pc.binding = nil
	pc.log.Debug("binding closed")
	return err
}

// Plug opens target and plugs desc into it. A zero safeMode means the
// default, safe mode on; pass SafeModeEnabled(false) to turn it off.
// The binding stays open for the returned Extension.
func Plug(ctx context.Context, connector Connector, target Target, desc Descriptor, safeMode SafeMode, opts ...Option) (*Extension, error) {
	if !safeMode.IsSet() {
		safeMode = SafeModeEnabled(true)
	}
	pc, err := Open(ctx, connector, target, opts...)
	if err != nil {
		return nil, err
	}
	ext, err := pc.Exec(ctx, desc, safeMode)
	if err != nil {
		pc.Close()
		return nil, err
	}
	return ext, nil
}

// Explore opens a transient binding to target and lists its extensions.
// Call release when done with the spies to close the binding.
func Explore(ctx context.Context, connector Connector, target Target, opts ...Option) (spies []*Spy, release func() error, err error) {
	pc, err := Open(ctx, connector, target, opts...)
	if err != nil {
		return nil, nil, err
	}
	spies, err = pc.Explore(ctx)
	if err != nil {
		pc.Close()
		return nil, nil, err
	}
	return spies, pc.Close, nil
}
