package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"draw-engine/internal/model"
	"draw-engine/internal/pkg/db"
)

var (
	generateDate    string
	publishChannels []string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := db.NewPool(cmd.Context(), &cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		return db.Migrate(cmd.Context(), pool.Pool)
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the draws of a day from the active templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		date := model.LocalDate(time.Now(), a.location)
		if generateDate != "" {
			if date, err = model.ParseDate(generateDate); err != nil {
				return err
			}
		}
		res, err := a.generator.GenerateDaily(cmd.Context(), date)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Close due draws and draw every elapsed one",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		now := time.Now()
		closed, err := a.lifecycle.CloseDue(cmd.Context(), now)
		if err != nil {
			return err
		}
		drawn, err := a.lifecycle.ProcessElapsed(cmd.Context(), now)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{"closeDue": closed, "processElapsed": drawn})
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish [draw-id]",
	Short: "Publish one draw, or every pending draw when no id is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 0 {
			res, err := a.publisher.PublishPending(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		}

		res, err := a.publisher.Publish(cmd.Context(), args[0], publishChannels)
		if err != nil {
			return err
		}
		if failed := res.Failed(); len(failed) > 0 {
			log.Warn().Int("failed", len(failed)).Str("draw_id", res.DrawID).Msg("Some channels failed")
		}
		return printJSON(cmd, res)
	},
}

func init() {
	generateCmd.Flags().StringVar(&generateDate, "date", "", "date to generate (YYYY-MM-DD, default today in app.timezone)")
	publishCmd.Flags().StringSliceVar(&publishChannels, "channel", nil, "restrict to these channel ids")

	rootCmd.AddCommand(migrateCmd, generateCmd, sweepCmd, publishCmd)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
