// Package cli provides the drawengine command-line interface.
package cli

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"draw-engine/internal/config"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "drawengine",
	Short: "Animalitos lottery draw engine",
	Long: `drawengine generates scheduled lottery draws from templates, advances them
through SCHEDULED -> CLOSED -> DRAWN -> PUBLISHED and publishes results to
messaging and social channels.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}
		return initConfig()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config", "directory holding config.yaml")
}

// ExecuteContext runs the root command.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func initConfig() error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogger(cfg.App.Env, cfg.Log.Level)
	log.Debug().Str("env", cfg.App.Env).Str("timezone", cfg.App.Timezone).Msg("Configuration loaded successfully")
	return nil
}

func setupLogger(env, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if env == "local" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	if lvl, err := zerolog.ParseLevel(level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
}
