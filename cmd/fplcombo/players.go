package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newPlayersCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "players",
		Short: "Manage the player index",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "rebuild",
		Short: "Refetch the bootstrap snapshot and rebuild the player index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			index, err := rt.engine.Players.Rebuild(cmd.Context())
			if err != nil {
				return err
			}
			gameweek, err := rt.engine.Players.CurrentGameweek(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(rt.out, "Indexed %s players, current gameweek %d.\n", humanize.Comma(int64(index.Len())), gameweek)
			return nil
		},
	})
	return cmd
}
