// Package extensionfx wires appext into uber/fx applications.
package extensionfx

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	appext "github.com/masegraye/appext-go"
)

type moduleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Logger    *zap.Logger `optional:"true"`
}

// Module creates an fx module that provides a *appext.PlugContext for
// target. The context connects on fx.OnStart and closes on fx.OnStop.
// A *zap.Logger in the graph is used unless opts set one.
func Module(connector appext.Connector, target appext.Target, opts ...appext.Option) fx.Option {
	return fx.Module("appext",
		fx.Provide(func(p moduleParams) *appext.PlugContext {
			all := opts
			if p.Logger != nil {
				all = append([]appext.Option{appext.WithLogger(p.Logger)}, opts...)
			}
			pc := appext.NewPlugContext(connector, target, all...)

			p.Lifecycle.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return pc.Connect(ctx)
				},
				OnStop: func(ctx context.Context) error {
					return pc.Close()
				},
			})
			return pc
		}),
	)
}

// Plug plugs desc into the instance when the application starts. Start
// fails if the extension can't be plugged.
// Example:
//
//	fx.New(
//	    extensionfx.Module(connector, appext.Target{Name: "ib", Connection: `File="C:\ib"`}),
//	    extensionfx.Plug(desc, appext.SafeModeEnabled(true)),
//	)
func Plug(desc appext.Descriptor, safeMode appext.SafeMode) fx.Option {
	return plugOnStart(desc, safeMode, (*appext.Extension).Plug)
}

// PlugForced is like Plug but writes desc without compatibility or apply checks.
func PlugForced(desc appext.Descriptor, safeMode appext.SafeMode) fx.Option {
	return plugOnStart(desc, safeMode, (*appext.Extension).PlugForced)
}

func plugOnStart(desc appext.Descriptor, safeMode appext.SafeMode, plug func(*appext.Extension, context.Context) (*appext.Extension, error)) fx.Option {
	return fx.Invoke(func(lc fx.Lifecycle, pc *appext.PlugContext) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				ext, err := pc.NewExtension(desc, safeMode)
				if err != nil {
					return err
				}
				_, err = plug(ext, ctx)
				return err
			},
		})
	})
}
