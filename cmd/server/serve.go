package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/urfave/cli/v2"

	"github.com/iliyamo/raffle-checkout/internal/config"
	"github.com/iliyamo/raffle-checkout/internal/database"
	"github.com/iliyamo/raffle-checkout/internal/handler"
	"github.com/iliyamo/raffle-checkout/internal/middleware"
	"github.com/iliyamo/raffle-checkout/internal/payment"
	"github.com/iliyamo/raffle-checkout/internal/queue"
	"github.com/iliyamo/raffle-checkout/internal/repository"
	"github.com/iliyamo/raffle-checkout/internal/router"
	"github.com/iliyamo/raffle-checkout/internal/service"
	"github.com/iliyamo/raffle-checkout/internal/utils"
)

func serve(*cli.Context) error {
	cfg := config.Load()
	logger := config.NewLogger(cfg)

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(db.DB, logger); err != nil {
		return err
	}

	rdb := config.NewRedisClient(logger)
	if rdb != nil {
		defer rdb.Close()
	}

	repo := repository.NewPurchaseRepo(db)
	gateway := payment.NewStripeGateway(cfg.Payment.SecretKey, cfg.Payment.WebhookSecret)
	publisher := queue.NewPublisher(cfg.Queue.URL, logger)

	purchases := service.NewPurchaseService(repo, utils.NewJWTVerifier(cfg.JWTSecret), gateway, publisher,
		service.CheckoutConfig{
			Currency:          cfg.Payment.Currency,
			ProductName:       cfg.Payment.ProductName,
			SuccessPath:       cfg.Payment.SuccessPath,
			CancelPath:        cfg.Payment.CancelPath,
			DefaultBaseURL:    cfg.PublicBaseURL,
			SessionTimeout:    cfg.Payment.Timeout,
			SessionLifetime:   cfg.Payment.Lifetime,
			BackgroundTimeout: cfg.BackgroundTimeout,
		}, logger)
	confirmations := service.NewConfirmationService(repo, gateway, publisher, cfg.BackgroundTimeout, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType},
	}))

	ph := handler.NewPurchaseHandler(purchases, logger)
	router.RegisterRoutes(e, db)
	router.RegisterPublic(e, middleware.NewRedisCache(config.LoadCacheConfig(), rdb, logger))
	router.RegisterPurchases(e, ph, cfg.JWTSecret, middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger))
	router.RegisterAdmin(e, ph, cfg.JWTSecret)
	router.RegisterWebhooks(e, handler.NewWebhookHandler(confirmations, logger))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).WithField("env", cfg.Env).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	purchases.Wait()
	confirmations.Wait()
	return nil
}
