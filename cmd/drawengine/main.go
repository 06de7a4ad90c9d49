// Package main is the entry point for the draw engine.
package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"draw-engine/internal/cli"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := cli.ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
