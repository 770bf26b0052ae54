package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/combination"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/player"
	"github.com/riskibarqy/fpl-combination-analysis/internal/usecase"
	"github.com/spf13/cobra"
)

func newLoadCommand(rt *runtime) *cobra.Command {
	var (
		leagueID         int64
		gameweek         int
		force            bool
		refreshStandings bool
	)
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Fetch and cache a league's standings and every manager's picks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// --force refetches standings anyway.
			if refreshStandings && !force {
				if _, err := rt.engine.Analysis.RefreshStandings(cmd.Context(), leagueID, gameweek); err != nil {
					return err
				}
			}
			result, err := rt.engine.Analysis.LoadLeague(cmd.Context(), usecase.LoadLeagueInput{
				LeagueID:     leagueID,
				Gameweek:     gameweek,
				ForceRefresh: force,
			})
			if err != nil {
				return err
			}
			printLoadResult(rt.out, result)
			return nil
		},
	}
	cmd.Flags().Int64Var(&leagueID, "league", 0, "classic league id")
	cmd.Flags().IntVar(&gameweek, "gw", 0, "gameweek (default: current)")
	cmd.Flags().BoolVar(&force, "force", false, "ignore cached data and refetch everything")
	cmd.Flags().BoolVar(&refreshStandings, "refresh-standings", false, "refetch standings only, keeping cached picks")
	_ = cmd.MarkFlagRequired("league")
	return cmd
}

func newSearchCommand(rt *runtime) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search players by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			players, err := rt.engine.Analysis.SearchPlayers(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if len(players) == 0 {
				fmt.Fprintln(rt.out, "No players found.")
				return nil
			}

			w := tabwriter.NewWriter(rt.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTEAM\tPOS")
			for _, item := range players {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", item.ID, item.DisplayName(), item.TeamShort, item.Position)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (default from SEARCH_DEFAULT_LIMIT)")
	return cmd
}

func newComboCommand(rt *runtime) *cobra.Command {
	var (
		leagueID  int64
		gameweek  int
		playerIDs []int64
		names     []string
	)
	cmd := &cobra.Command{
		Use:   "combo",
		Short: "List the managers whose squad contains every given player",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			var (
				result combination.Result
				err    error
			)
			switch {
			case len(playerIDs) > 0 && len(names) > 0:
				return fmt.Errorf("%w: use either --player or --name", usecase.ErrInvalidInput)
			case len(names) > 0:
				result, err = rt.engine.Analysis.FindCombinationByNames(ctx, leagueID, gameweek, names)
			default:
				result, err = rt.engine.Analysis.FindCombination(ctx, usecase.FindCombinationInput{
					LeagueID:  leagueID,
					Gameweek:  gameweek,
					PlayerIDs: playerIDs,
				})
			}
			if err != nil {
				return err
			}

			index, err := rt.engine.Players.Index(ctx)
			if err != nil {
				return err
			}
			printCombination(rt.out, result, index)
			return nil
		},
	}
	cmd.Flags().Int64Var(&leagueID, "league", 0, "classic league id")
	cmd.Flags().IntVar(&gameweek, "gw", 0, "gameweek (default: current)")
	cmd.Flags().Int64SliceVar(&playerIDs, "player", nil, "player id (repeatable)")
	cmd.Flags().StringArrayVar(&names, "name", nil, "player name (repeatable)")
	_ = cmd.MarkFlagRequired("league")
	return cmd
}

func printLoadResult(out io.Writer, result usecase.LoadLeagueResult) {
	fmt.Fprintf(out, "League: %s (%d), gameweek %d\n", result.League.Name, result.League.ID, result.Gameweek)

	standings := string(result.LeagueCache)
	if !result.LeagueFetchedAt.IsZero() {
		standings += ", updated " + humanize.Time(result.LeagueFetchedAt)
	}
	if result.FromMemory {
		standings += ", in memory"
	}
	fmt.Fprintf(out, "Standings: %s\n", standings)
	if result.LeagueCache == usecase.CacheStatusStale {
		fmt.Fprintln(out, "Standings are stale; rerun with --refresh-standings to update them.")
	}

	summary := result.Summary
	fmt.Fprintf(out, "Managers: %s  cached: %s  fetched: %s  failed: %s\n",
		humanize.Comma(int64(summary.Managers)),
		humanize.Comma(int64(summary.FromCache)),
		humanize.Comma(int64(summary.Fetched)),
		humanize.Comma(int64(summary.Failed)),
	)
	reasons := make([]string, 0, len(summary.FailuresByReason))
	for reason := range summary.FailuresByReason {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(out, "  %s: %d\n", reason, summary.FailuresByReason[usecase.FailureReason(reason)])
	}
}

func printCombination(out io.Writer, result combination.Result, index *player.Index) {
	names := make([]string, 0, len(result.PlayerIDs))
	for _, id := range result.PlayerIDs {
		names = append(names, playerName(index, id))
	}

	fmt.Fprintf(out, "%d of %d managers (%.1f%%) own %s\n",
		result.MatchCount, result.TotalConsidered, result.MatchPercentage, strings.Join(names, " + "))
	if note := result.ExclusionNote(); note != "" {
		fmt.Fprintf(out, "Note: %s\n", note)
	}
	if result.MatchCount == 0 {
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tTEAM\tMANAGER\tTOTAL\tGW\tCAPTAIN\tCHIP\tURL")
	for _, row := range result.Rows {
		rank := "-"
		if row.Rank > 0 {
			rank = humanize.Comma(int64(row.Rank))
		}
		chip := row.ActiveChip
		if chip == "" {
			chip = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			rank, row.TeamName, row.ManagerName, row.TotalPoints, row.GameweekPoints,
			playerName(index, row.CaptainID), chip, row.EntryURL)
	}
	_ = w.Flush()
}

func playerName(index *player.Index, id int64) string {
	if item, ok := index.Get(id); ok {
		return item.WebName
	}
	if id == 0 {
		return "-"
	}
	return fmt.Sprintf("#%d", id)
}
