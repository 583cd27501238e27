/*
main.go - Operator CLI for the gamification engine

PURPOSE:
  Runs admin tasks directly against the configured store, without going
  through the HTTP server: config versions, catalog seeding, balance
  overrides and audit lookups.

COMMANDS:
  gamectl config get [--format json|yaml]
  gamectl config set <file.json|file.yaml>
  gamectl seed
  gamectl profile <user>
  gamectl adjust <user> [--xp N] [--hp N] [--coins N] --reason TEXT [--actor ID]
  gamectl logs <user> [--page N] [--page-size N] [--filter all|earned|spent|penalty]
  gamectl reset --yes

ENVIRONMENT:
  Same as the server (DB_DRIVER, SQLITE_PATH, DATABASE_URL, LOG_LEVEL, ...).

SEE ALSO:
  - cmd/server/main.go: HTTP server
  - store/open.go: Backend selection
*/
package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/warp/gamify-engine/config"
	"github.com/warp/gamify-engine/logging"
	"github.com/warp/gamify-engine/store"
)

// app carries what every subcommand needs. open is swapped out in tests.
type app struct {
	open   func(ctx context.Context) (store.Backend, func(), error)
	logger zerolog.Logger
}

func main() {
	logCfg, err := config.LoadLog()
	if err != nil {
		panic(err)
	}
	logger := logging.Init(logCfg)

	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatal().Err(err).Msg("load server config failed")
	}

	a := &app{
		open: func(ctx context.Context) (store.Backend, func(), error) {
			return store.Open(ctx, cfg)
		},
		logger: logger,
	}
	if err := newRootCmd(a).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "gamectl",
		Short:        "Operate the gamification engine store",
		SilenceUsage: true,
	}
	root.AddCommand(
		a.configCmd(),
		a.seedCmd(),
		a.profileCmd(),
		a.adjustCmd(),
		a.logsCmd(),
		a.resetCmd(),
	)
	return root
}

// withStore opens the backend for the duration of fn.
func (a *app) withStore(cmd *cobra.Command, fn func(ctx context.Context, b store.Backend) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, release, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx, b)
}
