package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	appext "github.com/masegraye/appext-go"
	"github.com/masegraye/appext-go/convert"
)

func newConvertCmd(a *app) *cobra.Command {
	var require string

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert extensions between XML sources and binary packages",
	}
	cmd.PersistentFlags().StringVar(&require, "require", "~> 8.3.8", "platform version requirement of the temporary instance")

	run := func(fn func(*convert.Converter, context.Context, string, string, appext.Requirement) (string, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			req, err := appext.ParseRequirement(require)
			if err != nil {
				return err
			}
			c, err := a.converter()
			if err != nil {
				return err
			}
			out, err := fn(c, cmd.Context(), args[0], args[1], req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "to-binary SRC_DIR DEST",
			Short: "Build a binary package from an XML source tree",
			Args:  cobra.ExactArgs(2),
			RunE:  run((*convert.Converter).ToBinary),
		},
		&cobra.Command{
			Use:   "to-xml PACKAGE DEST_DIR",
			Short: "Dump a binary package to an XML source tree",
			Args:  cobra.ExactArgs(2),
			RunE:  run((*convert.Converter).ToXML),
		},
	)
	return cmd
}

// converter builds a Converter over the configured platforms.
func (a *app) converter() (*convert.Converter, error) {
	p, err := convert.NewDesignerProvisioner(convert.DesignerConfig{
		Platforms: a.cfg.Designer.PlatformMap(),
		TempDir:   a.cfg.Designer.TempDir,
		Logger:    a.log,
	})
	if err != nil {
		return nil, err
	}
	return &convert.Converter{
		Provisioner:   p,
		ExtensionName: a.cfg.Designer.ExtensionName,
		Logger:        a.log,
	}, nil
}
