package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Execute builds and runs the gatewayd root command against ctx, so
// SIGINT/SIGTERM cancel every long-running component the serve command
// starts.
func Execute(ctx context.Context) error {
	root := &cobra.Command{Use: "gatewayd", Short: "Item-inspection gateway"}
	root.AddCommand(serveCmd(ctx))
	log.Info().Msg("gatewayd starting")
	return root.ExecuteContext(ctx)
}
