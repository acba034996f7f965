package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/programme-lv/proctor/app"
	"github.com/programme-lv/proctor/conf"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	var envFile string
	var logLevel string

	rootCmd := &cobra.Command{
		Use:   "examctl",
		Short: "Operate proctored exams: leaderboards, expired attempts and exam files",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := godotenv.Load(envFile); err != nil {
					return fmt.Errorf("failed to load %s: %w", envFile, err)
				}
			}
			return initLogger(logLevel)
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "dotenv file to load before connecting")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level [debug, info, warn, error]")

	rootCmd.AddCommand(newLeaderboardCmd(), newAttemptsCmd(), newExamCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initLogger(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	return nil
}

// withApp connects to the production dependencies for the duration of
// run.
func withApp(ctx context.Context, run func(a *app.App) error) error {
	cfg, err := conf.FromEnv()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return run(a)
}
