package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/multierr"

	appext "github.com/masegraye/appext-go"
	"github.com/masegraye/appext-go/extensionfx"
)

func newPlugCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "plug MANIFEST...",
		Short: "Plug extensions into the instance",
		Long: `Plug verifies each extension against the instance and writes it unless it
is already plugged. With --force the checks are skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descs, err := descriptors(args)
			if err != nil {
				return err
			}
			conn, err := a.openConnector(a.cfg.Connector)
			if err != nil {
				return err
			}
			opts, err := a.cfg.ExtensionOptions(a.log)
			if err != nil {
				return err
			}

			plug := extensionfx.Plug
			if force {
				plug = extensionfx.PlugForced
			}
			safeMode := appext.ParseSafeMode(a.cfg.SafeMode)

			fxOpts := []fx.Option{
				fx.WithLogger(func() fxevent.Logger {
					return &fxevent.ZapLogger{Logger: a.log.Named("fx")}
				}),
				extensionfx.Module(conn, a.cfg.TargetInstance(), opts...),
			}
			for _, d := range descs {
				fxOpts = append(fxOpts, plug(d, safeMode))
			}

			ctx := cmd.Context()
			fxApp := fx.New(fxOpts...)
			if err := fxApp.Start(ctx); err != nil {
				return err
			}
			for _, d := range descs {
				fmt.Fprintf(cmd.OutOrStdout(), "plugged %s %s\n", d.Name(), d.Version())
			}
			return fxApp.Stop(ctx)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "write without compatibility and apply checks")
	return cmd
}

func newUnplugCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unplug MANIFEST...",
		Short: "Remove extensions from the instance",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			descs, err := descriptors(args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pc, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, pc.Close()) }()

			for _, d := range descs {
				ext, err := pc.NewExtension(d, appext.SafeModeUnset)
				if err != nil {
					return err
				}
				if _, err := ext.Unplug(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "unplugged %s\n", d.Name())
			}
			return nil
		},
	}
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify MANIFEST...",
		Short: "Check extensions against the instance platform and application",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			descs, err := descriptors(args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pc, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, pc.Close()) }()

			var failed error
			for _, d := range descs {
				ext, err := pc.NewExtension(d, appext.SafeModeUnset)
				if err != nil {
					return err
				}
				if verr := ext.Verify(ctx); verr != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", d.Name(), verr)
					failed = multierr.Append(failed, verr)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", d.Name())
			}
			return failed
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status MANIFEST...",
		Short: "Show whether extensions are stored, plugged and applicable",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			descs, err := descriptors(args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pc, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, pc.Close()) }()

			severity, err := a.cfg.SeverityMatcher()
			if err != nil {
				return err
			}
			rows := make([]table.Row, 0, len(descs))
			for _, d := range descs {
				ext, err := pc.NewExtension(d, appext.SafeModeUnset)
				if err != nil {
					return err
				}
				exist, err := ext.Exist(ctx)
				if err != nil {
					return err
				}
				plugged, err := ext.Plugged(ctx)
				if err != nil {
					return err
				}
				problems, err := ext.ApplyProblems(ctx)
				if err != nil {
					return err
				}
				errs, warnings := severity.Split(problems)
				rows = append(rows, table.Row{
					d.Name(), d.Version(),
					yesNo(exist), yesNo(plugged),
					len(errs), len(warnings),
				})
			}
			renderTable(cmd.OutOrStdout(), table.Row{"Name", "Version", "Stored", "Plugged", "Errors", "Warnings"}, rows)
			return nil
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// renderTable writes rows as a borderless table.
func renderTable(w io.Writer, header table.Row, rows []table.Row) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(header)
	t.AppendRows(rows)
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	t.Render()
}

// sizeOf formats a payload size for tables.
func sizeOf(data []byte) string {
	return strconv.Itoa(len(data))
}
