package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumenlabs/lumen/internal/auth"
	"github.com/lumenlabs/lumen/internal/config"
	"github.com/lumenlabs/lumen/internal/db"
	"github.com/lumenlabs/lumen/internal/logger"
	"github.com/lumenlabs/lumen/internal/version"
)

func main() {
	root := &cobra.Command{
		Use:          "lumen",
		Short:        "Query orchestration server",
		SilenceUsage: true,
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server",
			Run: func(cmd *cobra.Command, args []string) {
				runServe()
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				logger.Init(cfg.Log.Level, cfg.Log.Format)
				return db.Migrate(logger.L, cfg.Postgres)
			},
		},
		&cobra.Command{
			Use:   "token <user-id>",
			Short: "Mint a JWT for a user",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				expiresIn, err := time.ParseDuration(cfg.Auth.JWTExpiresIn)
				if err != nil {
					return fmt.Errorf("invalid jwt expires in: %w", err)
				}
				token, expiresAt, err := auth.GenerateToken(args[0], cfg.Auth.JWTSecret, expiresIn)
				if err != nil {
					return err
				}
				fmt.Printf("%s\nexpires: %s\n", token, expiresAt.Format(time.RFC3339))
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(version.GetInfo())
			},
		},
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
