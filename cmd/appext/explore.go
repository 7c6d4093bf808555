package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	appext "github.com/masegraye/appext-go"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every extension stored in the instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			pc, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, pc.Close()) }()

			spies, err := pc.Explore(ctx)
			if err != nil {
				return err
			}
			rows := make([]table.Row, 0, len(spies))
			for _, s := range spies {
				data, err := s.Data(ctx)
				if err != nil {
					return err
				}
				rows = append(rows, table.Row{s.Name(), s.Version(), sizeOf(data)})
			}
			renderTable(cmd.OutOrStdout(), table.Row{"Name", "Version", "Size"}, rows)
			return nil
		},
	}
}

func newSaveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "save DIR [NAME...]",
		Short: "Save stored extension packages to DIR",
		Long: `Save writes the stored package of every extension in the instance, or of
the named ones, to DIR as <name>.<version>.<suffix>.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			dir, names := args[0], args[1:]
			ctx := cmd.Context()

			pc, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, pc.Close()) }()

			spies, err := pc.Explore(ctx)
			if err != nil {
				return err
			}
			saved := 0
			for _, s := range spies {
				if !selected(s.Name(), names) {
					continue
				}
				path, err := s.SaveStoredData(ctx, dir)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				saved++
			}
			if saved == 0 && len(names) > 0 {
				return fmt.Errorf("%w: no extension named %v", appext.ErrHandleNotFound, names)
			}
			return nil
		},
	}
}

// selected reports whether name is among names; no names selects all.
func selected(name string, names []string) bool {
	if len(names) == 0 {
		return true
	}
	for _, n := range names {
		if appext.NameMatches(name, n) {
			return true
		}
	}
	return false
}
