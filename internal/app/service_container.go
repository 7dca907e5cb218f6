package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"route-aggregator/internal/clients"
	"route-aggregator/internal/config"
	"route-aggregator/internal/events"
	"route-aggregator/internal/handlers"
	"route-aggregator/internal/router"
	"route-aggregator/internal/services"
	"route-aggregator/internal/sources"
)

// ServiceContainer owns the one default instance of every service and client.
type ServiceContainer struct {
	Config *config.Config
	Logger *logrus.Logger

	// External collaborators
	KYTOracle   *clients.KYTOracleClient
	PriceOracle *clients.PriceOracleClient
	GasOracle   *clients.GasPriceClient

	// Events
	Publisher      events.Publisher
	closePublisher func()

	// Quote pipeline
	Registry       *sources.Registry
	RateLimiter    *services.RateLimiter
	HealthTracker  *services.HealthTracker
	QualityTracker *services.QualityTracker
	PolicyEngine   *services.PolicyEngine
	SnapshotStore  *services.SnapshotStore
	QuoteService   *services.QuoteService

	// Operator status
	Monitor *services.MonitoringService

	stopOnce sync.Once
}

// Global service container instance
var Container *ServiceContainer
var containerOnce sync.Once

// InitializeContainer builds the global container once.
func InitializeContainer(cfg *config.Config, logger *logrus.Logger) (*ServiceContainer, error) {
	var initErr error
	containerOnce.Do(func() {
		Container, initErr = NewServiceContainer(cfg, logger)
	})
	return Container, initErr
}

// NewServiceContainer wires every component from configuration.
func NewServiceContainer(cfg *config.Config, logger *logrus.Logger) (*ServiceContainer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	log.Println("🚀 Initializing Service Container...")

	c := &ServiceContainer{Config: cfg, Logger: logger}
	c.initClients()
	c.Publisher, c.closePublisher = events.InitPublisher(cfg.NATS, logger)
	c.initPipeline()

	log.Println("✅ Service Container initialized successfully")
	return c, nil
}

func (c *ServiceContainer) initClients() {
	cfg := c.Config

	if cfg.KYTOracle.BaseURL != "" {
		c.KYTOracle = clients.NewKYTOracleClient(
			cfg.KYTOracle.BaseURL,
			time.Duration(cfg.KYTOracle.Timeout)*time.Second,
			time.Duration(cfg.KYTOracle.CacheTTL)*time.Second,
		)
		log.Printf("✅ KYT Oracle client initialized: %s", cfg.KYTOracle.BaseURL)
	} else {
		log.Printf("⚠️ KYT Oracle not configured, sanctions screening disabled")
	}

	c.PriceOracle = clients.NewPriceOracleClient(
		cfg.PriceOracle.BaseURL,
		time.Duration(cfg.PriceOracle.Timeout)*time.Second,
		time.Duration(cfg.PriceOracle.CacheTTL)*time.Second,
	)

	if len(cfg.GasOracle.RPCURLs) > 0 {
		c.GasOracle = clients.NewGasPriceClient(cfg.GasOracle.RPCURLs, time.Duration(cfg.GasOracle.CacheTTL)*time.Second)
		log.Printf("✅ Gas oracle initialized for %d chains", len(cfg.GasOracle.RPCURLs))
	}
}

func (c *ServiceContainer) initPipeline() {
	cfg := c.Config
	logger := c.Logger

	c.Registry = sources.Build(cfg, logger)
	c.RateLimiter = services.NewRateLimiter()
	c.HealthTracker = services.NewHealthTracker(cfg.Health, c.Publisher, logger)
	c.QualityTracker = services.NewQualityTracker()
	c.SnapshotStore = services.NewSnapshotStore(
		time.Duration(cfg.Snapshot.TTLSeconds)*time.Second,
		time.Duration(cfg.Snapshot.JanitorInterval)*time.Second,
		logger,
	)

	// interfaces stay nil rather than holding typed nil pointers
	var sanctions services.SanctionsChecker
	if c.KYTOracle != nil {
		sanctions = c.KYTOracle
	}
	c.PolicyEngine = services.NewPolicyEngine(cfg.Policy, sanctions, c.PriceOracle, logger)

	var gas services.GasOracle
	if c.GasOracle != nil {
		gas = c.GasOracle
	}
	c.QuoteService = services.NewQuoteService(services.QuoteServiceDeps{
		Registry:  c.Registry,
		Limiter:   c.RateLimiter,
		Health:    c.HealthTracker,
		Quality:   c.QualityTracker,
		Policy:    c.PolicyEngine,
		Snapshots: c.SnapshotStore,
		Gas:       gas,
		Publisher: c.Publisher,
		Logger:    logger,
		Config:    cfg.Quote,
		RateLimit: cfg.RateLimit,
	})

	c.Monitor = services.NewMonitoringService(
		c.Registry,
		c.HealthTracker,
		c.RateLimiter,
		c.QualityTracker,
		c.SnapshotStore,
		time.Duration(cfg.Admin.StreamInterval)*time.Second,
	)
}

// Handlers builds the HTTP handlers over the container's services.
func (c *ServiceContainer) Handlers() router.Handlers {
	return router.Handlers{
		Quotes:    handlers.NewQuoteHandler(c.QuoteService, c.Logger),
		Admin:     handlers.NewAdminHandler(c.Monitor),
		AdminAuth: handlers.NewAdminAuthHandler(c.Config.Admin, c.Logger),
		Stream:    handlers.NewWebSocketHandler(c.Monitor),
	}
}

// Start launches the background loops.
func (c *ServiceContainer) Start(ctx context.Context) {
	c.SnapshotStore.Start(ctx)
	c.Monitor.Start()
}

// Stop halts background loops and closes connections. Safe to call more than once.
func (c *ServiceContainer) Stop() {
	c.stopOnce.Do(func() {
		log.Println("🛑 Stopping services...")
		c.Monitor.Stop()
		c.SnapshotStore.Stop()
		if c.closePublisher != nil {
			c.closePublisher()
		}
		log.Println("✅ All services stopped")
	})
}

// NewLogger builds the process logger from configuration. Release mode logs JSON.
func NewLogger(cfg config.LogConfig, mode string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" || (cfg.Format == "" && mode == "release") {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
