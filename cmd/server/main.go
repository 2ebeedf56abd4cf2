package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"andaman_booking_echo/internal/app"
	"andaman_booking_echo/internal/config"
	"andaman_booking_echo/internal/handlers"
	"andaman_booking_echo/internal/logging"
	appMiddleware "andaman_booking_echo/internal/middleware"
	"andaman_booking_echo/internal/sessions"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, log, app.Options{Migrate: true})
	if err != nil {
		log.Fatalf("Failed to initialise: %v", err)
	}
	defer a.Close()

	verifier, err := appMiddleware.NewFirebaseVerifier(ctx, cfg.FirebaseCredentialsPath, log)
	if err != nil {
		log.WithError(err).Warn("Firebase initialization failed, admin routes disabled")
	}

	var store sessions.Store
	if a.Cache != nil {
		store = sessions.NewRedisStore(a.Cache.Client())
	} else {
		mem := sessions.NewMemoryStore(log)
		mem.StartSweeper(ctx, cfg.SessionSweepInterval)
		defer mem.Close()
		store = mem
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = appMiddleware.NewValidator()
	e.HTTPErrorHandler = appMiddleware.JSONErrorHandler(log)

	e.Use(middleware.Recover())
	e.Use(appMiddleware.RequestLogger(log))

	paymentHandler := handlers.NewPaymentHandler(paymentConfig(a))
	ferryHandler := handlers.NewFerryHandler(handlers.FerryHandlerConfig{
		Registry:   a.Providers,
		Sessions:   store,
		Cache:      a.Cache,
		Log:        log,
		SessionTTL: cfg.SessionTTL,
		SearchTTL:  cfg.SearchCacheTTL,
	})
	adminHandler := handlers.NewAdminHandler(a.DB, log, a.Reconciler)

	var pinger handlers.Pinger
	if a.Cache != nil {
		pinger = a.Cache
	}
	healthHandler := handlers.NewHealthHandler(a.DB, pinger)

	api := e.Group("/api")
	api.Use(appMiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	// Payments
	api.POST("/payments", paymentHandler.Razorpay)
	api.GET("/payments/phonepe/status", paymentHandler.PhonePeStatus)
	api.POST("/payments/phonepe/initiate", paymentHandler.PhonePeInitiate)
	api.POST("/payments/phonepe/webhook", paymentHandler.PhonePeWebhook)
	api.POST("/payments/midtrans/initiate", paymentHandler.MidtransInitiate)
	api.POST("/payments/midtrans/notification", paymentHandler.MidtransNotification)

	// Ferry
	api.POST("/ferry", ferryHandler.Post)
	api.GET("/ferry", ferryHandler.Get)

	// Admin
	admin := api.Group("/admin", appMiddleware.RequireAdmin(verifier, cfg.AdminEmails))
	admin.GET("/bookings", adminHandler.ListBookings)
	admin.GET("/bookings/:id", adminHandler.GetBooking)
	admin.POST("/bookings/:id/retry", adminHandler.RetryBooking)
	admin.POST("/bookings/:id/refund", adminHandler.RefundBooking)

	e.GET("/health", healthHandler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(a.MetricsRegistry, promhttp.HandlerOpts{})))

	go func() {
		log.WithFields(logrus.Fields{"port": cfg.Port, "env": cfg.Env}).Info("Server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
		os.Exit(1)
	}
}

// paymentConfig only sets the gateways that are configured; a nil client
// stored in the interface would defeat the handlers' nil checks.
func paymentConfig(a *app.App) handlers.PaymentHandlerConfig {
	cfg := handlers.PaymentHandlerConfig{
		DB:         a.DB,
		Log:        a.Log,
		Reconciler: a.Reconciler,
		AppURL:     a.Config.AppURL,
	}
	if a.PhonePe != nil {
		cfg.PhonePe = a.PhonePe
	}
	if a.Razorpay != nil {
		cfg.Razorpay = a.Razorpay
	}
	if a.Midtrans != nil {
		cfg.Midtrans = a.Midtrans
	}
	return cfg
}
