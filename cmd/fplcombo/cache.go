package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/riskibarqy/fpl-combination-analysis/internal/usecase"
	"github.com/spf13/cobra"
)

func newCacheCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the local cache",
	}
	cmd.AddCommand(
		newCacheListCommand(rt),
		newCachePurgeCommand(rt),
		newCacheUpgradeCommand(rt),
	)
	return cmd
}

func newCacheListCommand(rt *runtime) *cobra.Command {
	var leagueID int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached leagues with size, age and coverage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var filter *int64
			if cmd.Flags().Changed("league") {
				filter = &leagueID
			}

			summaries, err := rt.engine.Analysis.CacheInfo(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Fprintln(rt.out, "Cache is empty.")
				return nil
			}

			var totalBytes int64
			w := tabwriter.NewWriter(rt.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "LEAGUE\tGW\tNAME\tMANAGERS\tPICKS\tCOVERAGE\tSIZE\tUPDATED\tNOTES")
			for _, item := range summaries {
				totalBytes += item.Bytes
				updated := "-"
				if !item.FetchedAt.IsZero() {
					updated = humanize.Time(item.FetchedAt)
				}
				notes := ""
				switch {
				case !item.HasStandings:
					notes = "no standings"
				case item.Stale:
					notes = "stale"
				}
				if item.CorruptEntries > 0 {
					notes = strings.TrimSpace(fmt.Sprintf("%s %d corrupt", notes, item.CorruptEntries))
				}
				fmt.Fprintf(w, "%d\t%d\t%s\t%d\t%d\t%.1f%%\t%s\t%s\t%s\n",
					item.LeagueID, item.Gameweek, item.LeagueName, item.ManagerCount,
					item.PicksCached+item.NotPlayed, item.CoveragePercent,
					humanize.Bytes(uint64(max(item.Bytes, 0))), updated, notes)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(rt.out, "%d league gameweeks, %s total\n", len(summaries), humanize.Bytes(uint64(max(totalBytes, 0))))
			return nil
		},
	}
	cmd.Flags().Int64Var(&leagueID, "league", 0, "only this league")
	return cmd
}

func newCachePurgeCommand(rt *runtime) *cobra.Command {
	var (
		leagueID int64
		gameweek int
		all      bool
	)
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete cached data for a league, a league gameweek, or everything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch {
			case all && (leagueID != 0 || gameweek != 0):
				return fmt.Errorf("%w: --all cannot be combined with --league or --gw", usecase.ErrInvalidInput)
			case !all && leagueID == 0:
				return fmt.Errorf("%w: --league or --all is required", usecase.ErrInvalidInput)
			}

			deleted, err := rt.engine.Analysis.PurgeCache(cmd.Context(), leagueID, gameweek)
			if err != nil {
				return err
			}
			fmt.Fprintf(rt.out, "Deleted %s cache entries.\n", humanize.Comma(int64(deleted)))
			return nil
		},
	}
	cmd.Flags().Int64Var(&leagueID, "league", 0, "league id")
	cmd.Flags().IntVar(&gameweek, "gw", 0, "only this gameweek")
	cmd.Flags().BoolVar(&all, "all", false, "delete every cached entry")
	return cmd
}

func newCacheUpgradeCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade",
		Short: "Rewrite every cached entry in the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := rt.engine.Analysis.UpgradeCache(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(rt.out, "Scanned %d entries: %d upgraded, %d unreadable.\n", report.Scanned, report.Upgraded, report.Corrupt)
			return nil
		},
	}
}
