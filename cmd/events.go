/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/inkwell-blog/apiserver/config"
	"github.com/inkwell-blog/apiserver/internal/mq"
	"github.com/spf13/cobra"
)

// eventsCmd tails post events from the configured broker.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Log post events published by the server",
	Long: `Subscribes to the MQ_CHANNEL of the configured MQ_DRIVER and logs
every post.created and post.updated event until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		log := newLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		backend, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if backend == nil {
			return errors.New("MQ_DRIVER is not set")
		}
		defer backend.Close()

		err = mq.ConsumePostEvents(ctx, backend, cfg.MQ.Channel, func(ctx context.Context, e mq.PostEvent) error {
			log.Info(ctx, e.Event, "post_id", e.PostID, "author_id", e.AuthorID, "title", e.Title, "at", e.At)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("consume events: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}
