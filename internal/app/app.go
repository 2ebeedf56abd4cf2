// Package app assembles the reconciliation pipeline from configuration. The
// server, the worker and bookingctl all build the same graph.
package app

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"andaman_booking_echo/internal/booking"
	"andaman_booking_echo/internal/config"
	"andaman_booking_echo/internal/events"
	"andaman_booking_echo/internal/gateway"
	"andaman_booking_echo/internal/metrics"
	"andaman_booking_echo/internal/models"
	"andaman_booking_echo/internal/providers"
	"andaman_booking_echo/internal/services"
	"andaman_booking_echo/internal/tasks"
)

type App struct {
	Config *config.Config
	Log    *logrus.Logger
	DB     *gorm.DB
	// Cache is nil when REDIS_URL is unset.
	Cache *services.RedisCache

	Metrics         *metrics.Collectors
	MetricsRegistry *prometheus.Registry

	Gateways *gateway.Registry
	PhonePe  *gateway.PhonePeClient
	Razorpay *gateway.RazorpayClient
	Midtrans *gateway.MidtransClient

	Providers  *providers.Registry
	Publisher  events.Publisher
	Reconciler *booking.Reconciler
}

type Options struct {
	// Migrate runs AutoMigrate after connecting.
	Migrate bool
}

// New connects to the database (and redis when configured) and wires every
// configured gateway and ferry operator into a Reconciler.
func New(cfg *config.Config, log *logrus.Logger, opts Options) (*App, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Log: log}

	db, err := services.InitDB(cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}
	a.DB = db
	if opts.Migrate {
		if err := services.AutoMigrate(db, log); err != nil {
			a.Close()
			return nil, err
		}
	}

	if cfg.RedisURL != "" {
		cache, err := services.NewRedisCache(cfg.RedisURL, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Cache = cache
	} else {
		log.Warn("REDIS_URL not set, using in-process locks and sessions")
	}

	a.MetricsRegistry = prometheus.NewRegistry()
	a.MetricsRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.MetricsRegistry)

	a.wireGateways()
	a.wireProviders()

	if len(cfg.Kafka.Brokers) > 0 {
		pub, err := events.DialKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Publisher = pub
	} else {
		a.Publisher = events.NopPublisher{}
	}

	var locker booking.Locker = booking.NewLocalLocker()
	if a.Cache != nil {
		locker = services.NewRedisLocker(a.Cache.Client(), log)
	}

	a.Reconciler = booking.NewReconciler(booking.ReconcilerConfig{
		DB:        db,
		Log:       log,
		Status:    a.Gateways,
		Booker:    providers.NewBookingAdapter(a.Providers, cfg.ProviderTimeout, log, a.Metrics),
		Locker:    locker,
		Publisher: a.Publisher,
		Notifier:  tasks.NewBookingNotifier(db),
		Metrics:   a.Metrics,
		LockTTL:   cfg.ReconcileLockTTL,
	})
	return a, nil
}

func (a *App) wireGateways() {
	cfg := a.Config
	a.Gateways = gateway.NewRegistry()

	if cfg.PhonePe.MerchantID != "" && cfg.PhonePe.SaltKey != "" {
		a.PhonePe = gateway.NewPhonePeClient(cfg.PhonePe, cfg.GatewayTimeout, a.Log)
		a.Gateways.Register(models.PaymentGatewayPhonePe, a.PhonePe)
	}
	if cfg.Razorpay.KeyID != "" && cfg.Razorpay.KeySecret != "" {
		a.Razorpay = gateway.NewRazorpayClient(cfg.Razorpay, cfg.GatewayTimeout, a.Log)
		a.Gateways.Register(models.PaymentGatewayRazorpay, a.Razorpay)
	}
	if cfg.Midtrans.ServerKey != "" {
		a.Midtrans = gateway.NewMidtransClient(cfg.Midtrans, a.Log)
		a.Gateways.Register(models.PaymentGatewayMidtrans, a.Midtrans)
	}
}

func (a *App) wireProviders() {
	cfg := a.Config
	a.Providers = providers.NewRegistry()

	if cfg.Makruzz.BaseURL != "" {
		a.Providers.Register(providers.NewMakruzzClient(cfg.Makruzz, cfg.ProviderTimeout, a.Log))
	}
	if cfg.GreenOcean.BaseURL != "" {
		a.Providers.Register(providers.NewGreenOceanClient(cfg.GreenOcean, cfg.ProviderTimeout, a.Log))
	}
	if cfg.Sealink.BaseURL != "" {
		a.Providers.Register(providers.NewSealinkClient(cfg.Sealink, cfg.ProviderTimeout, a.Log))
	}
	if len(a.Providers.Names()) == 0 {
		a.Log.Warn("no ferry operators configured")
	}
}

// Close releases every connection New opened.
func (a *App) Close() error {
	var errs []error
	if a.Publisher != nil {
		errs = append(errs, a.Publisher.Close())
	}
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close app: %w", err)
	}
	return nil
}

// TaskEnv builds the worker environment. Optional dependencies are left unset
// unless present, so task handlers see a nil interface.
func (a *App) TaskEnv() *tasks.Env {
	env := &tasks.Env{DB: a.DB, Log: a.Log}
	if a.Reconciler != nil {
		env.Reconciler = a.Reconciler
	}
	if email := services.NewEmailService(a.Config.SMTP); email.Configured() {
		env.Email = email
	}
	if a.Config.Waha.BaseURL != "" {
		env.WhatsApp = services.NewWahaService(a.Config.Waha, a.Log)
	}
	return env
}
