package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/iliyamo/raffle-checkout/internal/config"
	"github.com/iliyamo/raffle-checkout/internal/queue"
)

func consume(*cli.Context) error {
	cfg := config.LoadWorker()
	logger := config.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := queue.NewConsumer(cfg.Queue.URL, logger)
	c.Handle(queue.PurchaseConfirmedQueue, queue.NewPurchaseLog(cfg.Queue.LogDir).Handle)
	c.Handle(queue.PixelEventQueue, queue.NewPixelForwarder(
		cfg.Pixel.Endpoint, cfg.Pixel.AccessToken, cfg.Pixel.PixelID,
		cfg.Payment.ProductName, cfg.Pixel.TestFlag, logger,
	).Handle)

	logger.Info("consumer started")
	err := c.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
