package main

import (
	"context"
	"fmt"
	"net"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	appext "github.com/masegraye/appext-go"
	"github.com/masegraye/appext-go/comconnector"
	"github.com/masegraye/appext-go/gateway"
	"github.com/masegraye/appext-go/internal/config"
	"github.com/masegraye/appext-go/manifest"
	"github.com/masegraye/appext-go/memhost"
)

// memoryInfo describes the empty in-memory instance used by the memory
// connector for dry runs.
var memoryInfo = appext.ApplicationInfo{Name: "Memory", Version: "1.0.0", CompatibilityVersion: "8.3.10"}

// app carries state shared by every command.
type app struct {
	cfgFile string
	cfg     *config.Config
	log     *zap.Logger

	// connector overrides the configured connector.
	connector appext.Connector
	// listener overrides serve.addr.
	listener net.Listener
}

// flagKeys maps configuration keys to the flags that override them.
var flagKeys = map[string]string{
	"connector":         "connector",
	"target.name":       "target",
	"target.connection": "connection",
	"gateway.url":       "gateway",
	"gateway.token":     "token",
	"safe_mode":         "safe-mode",
	"stored_suffix":     "suffix",
	"log.level":         "log-level",
	"log.format":        "log-format",
	"serve.addr":        "addr",
	"serve.token":       "serve-token",
	"serve.connector":   "serve-connector",
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "appext",
		Short:        "Manage configuration extensions of host instances",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.Flags())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				a.log.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "YAML config file")
	pf.String("connector", "", "how to reach the instance: gateway, com or memory")
	pf.String("target", "", "instance name used in logs")
	pf.String("connection", "", "instance connection string")
	pf.String("gateway", "", "gateway URL")
	pf.String("token", "", "gateway bearer token")
	pf.String("safe-mode", "", `safe mode: "true", "false" or a profile name`)
	pf.String("suffix", "", "stored data file suffix")
	pf.String("log-level", "", "log level")
	pf.String("log-format", "", "log format: json or console")

	root.AddCommand(
		newPlugCmd(a),
		newUnplugCmd(a),
		newVerifyCmd(a),
		newStatusCmd(a),
		newListCmd(a),
		newSaveCmd(a),
		newConvertCmd(a),
		newServeCmd(a),
	)
	return root
}

// init loads the configuration and builds the logger.
func (a *app) init(flags *pflag.FlagSet) error {
	bound := make(map[string]*pflag.Flag, len(flagKeys))
	for key, name := range flagKeys {
		bound[key] = flags.Lookup(name)
	}
	cfg, err := config.Load(a.cfgFile, bound)
	if err != nil {
		return err
	}
	logger, err := cfg.Log.Logger()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logger
	return nil
}

// openConnector returns the connector kind selects.
func (a *app) openConnector(kind string) (appext.Connector, error) {
	if a.connector != nil {
		return a.connector, nil
	}
	switch kind {
	case config.ConnectorGateway:
		cfg := gateway.ClientConfig{
			Endpoint: a.cfg.Gateway.URL,
			Token:    a.cfg.Gateway.Token,
			Logger:   a.log,
		}
		if a.cfg.Gateway.Retries > 1 {
			cfg.Retry = &gateway.RetryPolicy{MaxAttempts: a.cfg.Gateway.Retries, Jitter: true}
		}
		return gateway.NewConnector(cfg)
	case config.ConnectorCOM:
		return comconnector.New(comconnector.WithLogger(a.log)), nil
	case config.ConnectorMemory:
		return memhost.New(memoryInfo), nil
	default:
		return nil, fmt.Errorf("%w: unknown connector %q", appext.ErrInvalidConfig, kind)
	}
}

// open connects a PlugContext to the configured target.
func (a *app) open(ctx context.Context) (*appext.PlugContext, error) {
	conn, err := a.openConnector(a.cfg.Connector)
	if err != nil {
		return nil, err
	}
	opts, err := a.cfg.ExtensionOptions(a.log)
	if err != nil {
		return nil, err
	}
	return appext.Open(ctx, conn, a.cfg.TargetInstance(), opts...)
}

// descriptors loads the manifests named on the command line, sorted by
// extension name.
func descriptors(paths []string) ([]appext.Descriptor, error) {
	set, err := manifest.LoadSet(paths...)
	if err != nil {
		return nil, err
	}
	out := make([]appext.Descriptor, 0, len(paths))
	for _, name := range set.Keys() {
		out = append(out, set[name])
	}
	return out, nil
}
