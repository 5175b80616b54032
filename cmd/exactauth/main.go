package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/exactauth/internal/app"
	"github.com/dropDatabas3/exactauth/internal/config"
	exactoauth "github.com/dropDatabas3/exactauth/internal/oauth/exact"
	"github.com/dropDatabas3/exactauth/internal/observability/logger"
	"github.com/dropDatabas3/exactauth/internal/security/secretbox"
	"github.com/dropDatabas3/exactauth/internal/store/pg"
	pgmigrations "github.com/dropDatabas3/exactauth/migrations/postgres"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "exactauth",
		Short:         "Exact Online login service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&configPath, "config", envOr("EXACTAUTH_CONFIG", "config.yaml"), "YAML config file (env EXACTAUTH_CONFIG)")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		logger.Init(logger.Config{
			Env:         cfg.App.Env,
			Level:       cfg.App.LogLevel,
			ServiceName: "exactauth",
			Version:     version,
		})
		return cfg, nil
	}

	root.AddCommand(
		newServeCmd(load),
		newEndpointsCmd(load),
		newProfileCmd(load),
		newMigrateCmd(load),
		newEncryptSecretCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the build version",
			Run:   func(cmd *cobra.Command, _ []string) { fmt.Fprintln(cmd.OutOrStdout(), version) },
		},
	)
	return root
}

type loadFunc func() (*config.Config, error)

func newServeCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Run(ctx)
		},
	}
}

func newEndpointsCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "endpoints",
		Short: "Print the Exact Online endpoints derived from the base URL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			s, err := strategyFromConfig(cfg)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "base:      %s\n", s.BaseURL())
			fmt.Fprintf(w, "authorize: %s\n", s.AuthorizationURL())
			fmt.Fprintf(w, "token:     %s\n", s.TokenURL())
			fmt.Fprintf(w, "profile:   %s\n", s.ProfileURL())
			fmt.Fprintf(w, "format:    %s\n", s.Format())
			return nil
		},
	}
}

func newProfileCmd(load loadFunc) *cobra.Command {
	var token, format string
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Fetch and print the profile behind an access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if token == "" {
				token = os.Getenv("EXACT_ACCESS_TOKEN")
			}
			if token == "" {
				return errors.New("--token is required (or env EXACT_ACCESS_TOKEN)")
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			if format != "" {
				cfg.Exact.Format = format
			}
			s, err := strategyFromConfig(cfg)
			if err != nil {
				return err
			}
			p, err := s.UserProfile(cmd.Context(), token)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(p)
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Exact Online access token")
	cmd.Flags().StringVar(&format, "format", "", "json | xml (default from config)")
	return cmd
}

func newMigrateCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply the identity store migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Storage.DSN == "" {
				return errors.New("storage.dsn (env STORAGE_DSN) is required")
			}
			dsn, err := resolveWithEnvBox(cfg.Storage.DSN)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := pg.New(ctx, dsn, pg.Config{})
			if err != nil {
				return err
			}
			defer s.Close()

			if len(args) == 1 && args[0] == "down" {
				err = s.RunMigrationsDown(ctx, pgmigrations.FS)
			} else {
				err = s.RunMigrations(ctx, pgmigrations.FS)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func newEncryptSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt-secret <value>",
		Short: "Seal a config value with " + secretbox.EnvVar,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			box, err := secretbox.FromEnv()
			if err != nil {
				return err
			}
			sealed, err := box.Seal(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), secretbox.SealedPrefix+sealed)
			return nil
		},
	}
}

// strategyFromConfig builds a strategy for the commands that never reach the
// token endpoint, so the client registration may be left empty.
func strategyFromConfig(cfg *config.Config) (*exactoauth.Strategy, error) {
	format, err := exactoauth.ParseFormat(cfg.Exact.Format)
	if err != nil {
		return nil, err
	}
	return exactoauth.New(exactoauth.Options{
		ClientID:    firstNonEmpty(cfg.Exact.ClientID, "cli"),
		CallbackURL: firstNonEmpty(cfg.Exact.CallbackURL, "http://localhost/callback"),
		BaseURL:     cfg.Exact.BaseURL,
		Format:      format,
	}, nil)
}

func resolveWithEnvBox(v string) (string, error) {
	if !strings.HasPrefix(v, secretbox.SealedPrefix) {
		return v, nil
	}
	box, err := secretbox.FromEnv()
	if err != nil {
		return "", err
	}
	return secretbox.Resolve(box, v)
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
