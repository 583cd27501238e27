package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/warp/gamify-engine/api"
	"github.com/warp/gamify-engine/game"
	"github.com/warp/gamify-engine/store"
)

func (a *app) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Save the default shop catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd, func(ctx context.Context, b store.Backend) error {
				if err := api.SeedCatalog(ctx, b); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d items\n", len(api.DefaultCatalog()))
				return nil
			})
		},
	}
}

func (a *app) profileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile <user>",
		Short: "Print a user's balances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, b store.Backend) error {
				cfg, err := b.CurrentConfig(ctx)
				if err != nil {
					return err
				}
				p, err := b.GetProfile(ctx, game.UserID(args[0]))
				if err != nil {
					return fmt.Errorf("profile %s: %w", args[0], err)
				}
				printProfile(cmd, p, cfg)
				return nil
			})
		},
	}
}

func (a *app) adjustCmd() *cobra.Command {
	var xp, hp, coins int64
	var reason, actor string
	cmd := &cobra.Command{
		Use:   "adjust <user>",
		Short: "Apply a raw balance override",
		Long: `Applies the given deltas verbatim. Only flags that are set are applied.
The reason and actor end up in the user's audit log.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var delta game.AdjustDelta
			if cmd.Flags().Changed("xp") {
				delta.XP = &xp
			}
			if cmd.Flags().Changed("hp") {
				delta.HP = &hp
			}
			if cmd.Flags().Changed("coins") {
				delta.Coins = &coins
			}
			return a.withStore(cmd, func(ctx context.Context, b store.Backend) error {
				cfg, err := b.CurrentConfig(ctx)
				if err != nil {
					return err
				}
				engine := game.NewEngine(b, a.logger)
				out, err := engine.Adjust(ctx, game.UserID(args[0]), delta, reason, actor, cfg)
				if err != nil {
					return err
				}
				printProfile(cmd, out.After, cfg)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&xp, "xp", 0, "XP delta")
	cmd.Flags().Int64Var(&hp, "hp", 0, "HP delta")
	cmd.Flags().Int64Var(&coins, "coins", 0, "coin delta")
	cmd.Flags().StringVar(&reason, "reason", "", "why the override is needed (required)")
	cmd.Flags().StringVar(&actor, "actor", os.Getenv("USER"), "admin applying the override")
	return cmd
}

func (a *app) logsCmd() *cobra.Command {
	var page, pageSize int
	var filter string
	cmd := &cobra.Command{
		Use:   "logs <user>",
		Short: "Print a page of a user's audit log, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, b store.Backend) error {
				engine := game.NewEngine(b, a.logger)
				result, err := engine.ListLogs(ctx, game.UserID(args[0]), page, pageSize, game.ParseLogFilter(filter))
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				for _, e := range result.Entries {
					fmt.Fprintf(w, "%s  %-22s xp=%+d hp=%+d coins=%+d  %s\n",
						e.CreatedAt.Format("2006-01-02 15:04"), e.Kind, e.XPDelta, e.HPDelta, e.CoinDelta, e.Description)
				}
				fmt.Fprintf(w, "page %d, %d of %d entries\n", result.Page, len(result.Entries), result.Total)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number, 1-based")
	cmd.Flags().IntVar(&pageSize, "page-size", game.DefaultPageSize, "entries per page")
	cmd.Flags().StringVar(&filter, "filter", "all", "all, earned, spent or penalty")
	return cmd
}

type resetter interface {
	Reset(ctx context.Context) error
}

func (a *app) resetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every profile, log row, item and config version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("reset deletes all data; pass --yes to confirm")
			}
			return a.withStore(cmd, func(ctx context.Context, b store.Backend) error {
				r, ok := b.(resetter)
				if !ok {
					return fmt.Errorf("%T does not support reset", b)
				}
				if err := r.Reset(ctx); err != nil {
					return err
				}
				a.logger.Warn().Msg("store reset")
				fmt.Fprintln(cmd.OutOrStdout(), "store reset")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting all data")
	return cmd
}

func printProfile(cmd *cobra.Command, p game.Profile, cfg *game.Config) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s  level=%d xp=%d (next in %d) hp=%d/%d coins=%d\n",
		p.UserID, p.Level, p.XP, game.XPToNextLevel(p.XP, cfg), p.HP, p.MaxHP, p.Coins)
}
