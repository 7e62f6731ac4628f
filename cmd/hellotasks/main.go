package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/hellotasks/internal/app"
	"github.com/dropDatabas3/hellotasks/internal/config"
	"github.com/dropDatabas3/hellotasks/internal/domain/repository"
	"github.com/dropDatabas3/hellotasks/internal/jwt"
	"github.com/dropDatabas3/hellotasks/internal/observability/logger"
	"github.com/dropDatabas3/hellotasks/internal/store"
	"github.com/dropDatabas3/hellotasks/internal/store/pg"
	migrations "github.com/dropDatabas3/hellotasks/migrations/postgres"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath = os.Getenv(config.EnvPrefix + "CONFIG")
		cfg        *config.Config
	)

	root := &cobra.Command{
		Use:           "hellotasks",
		Short:         "Herramientas de operación de hellotasks (tokens y migraciones)",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = c
			logger.Init(logger.Config{Env: c.App.Env, Level: c.Log.Level, ServiceName: "hellotasks-cli"})
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", configPath, "Config YAML (env HELLOTASKS_CONFIG)")

	cfgFn := func() *config.Config { return cfg }
	root.AddCommand(newTokenCmd(cfgFn), newMigrateCmd(cfgFn))
	return root
}

// ─── token ───

func newTokenCmd(cfg func() *config.Config) *cobra.Command {
	tokenCmd := &cobra.Command{Use: "token", Short: "Emitir o inspeccionar access tokens"}

	var email string
	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Emitir un access token para un usuario existente",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(email) == "" {
				return errors.New("--email es requerido")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			stores, err := store.Open(ctx, app.StoreConfig(cfg()))
			if err != nil {
				return err
			}
			defer stores.Close()

			u, err := stores.Users.FindByEmail(ctx, repository.NormalizeEmail(email))
			if err != nil {
				if repository.IsNotFound(err) {
					return fmt.Errorf("no existe un usuario con email %s", email)
				}
				return err
			}
			codec, err := app.NewCodec(cfg())
			if err != nil {
				return err
			}
			tok, err := codec.Issue(u)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.Value)
			return nil
		},
	}
	issueCmd.Flags().StringVar(&email, "email", "", "Email del usuario")

	inspectCmd := &cobra.Command{
		Use:   "inspect <token>",
		Short: "Validar un token y mostrar sus claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := app.NewCodec(cfg())
			if err != nil {
				return err
			}
			return inspectToken(cmd, codec, args[0])
		},
	}

	tokenCmd.AddCommand(issueCmd, inspectCmd)
	return tokenCmd
}

func inspectToken(cmd *cobra.Command, codec *jwt.Codec, raw string) error {
	tok, err := codec.Parse(raw)
	if err != nil {
		return fmt.Errorf("token inválido (%s): %w", jwt.KindOf(err), err)
	}
	out := map[string]any{
		"subject":    tok.Subject,
		"issued_at":  tok.IssuedAt,
		"expires_at": tok.ExpiresAt,
		"claims":     tok.Claims,
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// ─── migrate ───

func newMigrateCmd(cfg func() *config.Config) *cobra.Command {
	migrateCmd := &cobra.Command{Use: "migrate", Short: "Migraciones del user store en Postgres"}

	run := func(d pg.Direction) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			c := cfg()
			if strings.TrimSpace(c.Storage.DSN) == "" {
				return errors.New("storage.dsn es requerido (HELLOTASKS_STORAGE_DSN)")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			db, err := pg.Open(ctx, c.Storage.DSN, pg.PoolConfig{MaxConns: 2})
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := pg.Migrate(ctx, db.Pool(), migrations.UsersFS, migrations.UsersDir, d)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d migraciones aplicadas\n", n)
			return nil
		}
	}

	migrateCmd.AddCommand(
		&cobra.Command{Use: "up", Short: "Aplicar migraciones", RunE: run(pg.Up)},
		&cobra.Command{Use: "down", Short: "Revertir migraciones", RunE: run(pg.Down)},
	)
	return migrateCmd
}
