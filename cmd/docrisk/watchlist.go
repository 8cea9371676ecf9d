package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/docrisk/internal/infra/screening"
)

func newWatchlistCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watchlist",
		Short: "Inspect screening watchlist files",
	}

	check := &cobra.Command{
		Use:   "check FILE",
		Short: "Validate a watchlist file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := g.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			wl, err := screening.Load(args[0], log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entries\n", args[0], wl.Len())
			return nil
		},
	}

	screen := &cobra.Command{
		Use:   "screen FILE NAME...",
		Short: "Screen names against a watchlist file",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := g.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			wl, err := screening.Load(args[0], log)
			if err != nil {
				return err
			}
			res, err := wl.Screen(cmd.Context(), args[1:])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "score %.0f\n", res.Score)
			for _, h := range res.Hits {
				fmt.Fprintf(out, "  %s -> %s (%s, %s)\n", h.Name, h.Matched, h.Category, h.RiskLevel)
			}
			return nil
		},
	}

	cmd.AddCommand(check, screen)
	return cmd
}
