package main

import (
	"github.com/spf13/cobra"

	"github.com/masegraye/appext-go/gateway"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve local host instances over the automation gateway",
		Long: `Serve exposes the connector named by serve.connector (com or memory) to
remote appext clients until interrupted. Set serve.token to require a bearer
token.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.openConnector(a.cfg.Serve.Connector)
			if err != nil {
				return err
			}
			return gateway.Serve(&gateway.ServeConfig{
				Connector: conn,
				Addr:      a.cfg.Serve.Addr,
				Listener:  a.listener,
				Token:     a.cfg.Serve.Token,
				Logger:    a.log,
				StopCh:    cmd.Context().Done(),
			})
		},
	}
	cmd.Flags().String("addr", "", "listen address")
	cmd.Flags().String("serve-token", "", "bearer token clients must send")
	cmd.Flags().String("serve-connector", "", "connector to expose: com or memory")
	return cmd
}
