// Package app wires configuration, infrastructure and HTTP routes into a runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/priyanshu8007b/bitespeed/config"
	"github.com/priyanshu8007b/bitespeed/internal/repositories/contact"
	"github.com/priyanshu8007b/bitespeed/pkg/database"
	"github.com/priyanshu8007b/bitespeed/pkg/events"
	"github.com/priyanshu8007b/bitespeed/pkg/graph"
	"github.com/priyanshu8007b/bitespeed/pkg/identity"
	"github.com/priyanshu8007b/bitespeed/pkg/kafka"
	"github.com/priyanshu8007b/bitespeed/pkg/metrics"
	"github.com/priyanshu8007b/bitespeed/pkg/middleware"
	"github.com/priyanshu8007b/bitespeed/pkg/normalizers"
	"github.com/priyanshu8007b/bitespeed/pkg/redis"
	contactroutes "github.com/priyanshu8007b/bitespeed/pkg/routes/contact"
	"github.com/priyanshu8007b/bitespeed/pkg/routes/health"
	"github.com/priyanshu8007b/bitespeed/pkg/routes/identify"
	"github.com/priyanshu8007b/bitespeed/pkg/startup"
	"github.com/priyanshu8007b/bitespeed/pkg/tracing"
	"github.com/priyanshu8007b/bitespeed/pkg/tracing/exporters"
)

const (
	depTracing  = "tracing"
	depDatabase = "database"
	depRedis    = "redis"
	depKafka    = "kafka"
	depGraph    = "graph"
	depService  = "identity"
	depServer   = "http"
)

type App struct {
	cfg     *config.Config
	logger  ectologger.Logger
	startup *startup.Startup
	health  *health.Checker

	provider *tracing.Provider
	db       database.DB
	store    identity.ContactStore
	redis    *redis.Client
	producer *kafka.Producer
	graph    *graph.Client
	service  *identity.Service
	server   *http.Server
}

// New registers every infrastructure dependency enabled in cfg with the startup orchestrator.
func New(cfg *config.Config, logger ectologger.Logger) *App {
	a := &App{
		cfg:     cfg,
		logger:  logger,
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts),
		health:  health.NewChecker(cfg.Version),
	}

	serviceDeps := []string{depDatabase}
	if cfg.TracingEnabled {
		a.startup.AddDependency(&dependency{name: depTracing, start: a.startTracing, stop: a.stopTracing})
		serviceDeps = append(serviceDeps, depTracing)
	}
	a.startup.AddDependency(&dependency{name: depDatabase, start: a.startDatabase, stop: a.stopDatabase})
	if cfg.LockBackend == config.LockBackendRedis {
		a.startup.AddDependency(&dependency{name: depRedis, start: a.startRedis, stop: a.stopRedis})
		serviceDeps = append(serviceDeps, depRedis)
	}
	if cfg.KafkaEnabled {
		a.startup.AddDependency(&dependency{name: depKafka, start: a.startKafka, stop: a.stopKafka})
		serviceDeps = append(serviceDeps, depKafka)
	}
	if cfg.GraphEnabled {
		a.startup.AddDependency(&dependency{name: depGraph, start: a.startGraph, stop: a.stopGraph})
		serviceDeps = append(serviceDeps, depGraph)
	}
	a.startup.AddDependency(&dependency{name: depService, dependsOn: serviceDeps, start: a.startService})
	a.startup.AddDependency(&dependency{name: depServer, dependsOn: []string{depService}, start: a.startServer, stop: a.stopServer})

	return a
}

// Run starts every dependency, serves until ctx is cancelled, then shuts down.
func (a *App) Run(ctx context.Context) error {
	if err := a.startup.Start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		return errors.Join(err, a.startup.Stop(stopCtx))
	}
	a.health.SetReady(true)
	a.logger.Infof("%s %s listening on %s", a.cfg.AppName, a.cfg.Version, a.cfg.Addr())

	<-ctx.Done()
	a.health.SetReady(false)
	a.logger.Info("Shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	return a.startup.Stop(stopCtx)
}

func (a *App) startTracing(ctx context.Context) error {
	provider, err := tracing.NewProvider(ctx, a.cfg.AppName, a.cfg.Version, exporters.OTLPConfig{
		Endpoint: a.cfg.TracingEndpoint,
		Protocol: a.cfg.TracingProtocol,
		Insecure: a.cfg.TracingInsecure,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	a.provider = provider
	return nil
}

func (a *App) stopTracing(ctx context.Context) error {
	return a.provider.Shutdown(ctx)
}

func (a *App) startDatabase(ctx context.Context) error {
	if a.cfg.DatabaseDriver == config.DriverMemory {
		memory := contact.NewMemoryRepository()
		a.store = memory
		a.health.Add("database", memory, true)
		a.logger.Warn("Using the in-memory contact store; data is lost on restart")
		return nil
	}

	db, err := database.Connect(ctx, a.cfg.DSN(), database.PoolConfig{
		MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
	}, a.logger)
	if err != nil {
		return err
	}

	migrations := database.NewMigrationService(a.logger, &database.MigrationConfig{
		MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
		Version:             uint(a.cfg.DatabaseMigrationVersion),
		Force:               a.cfg.DatabaseMigrationForce,
		AutoRollback:        a.cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrations.Migrate(db.Unwrap().DB, a.cfg.DatabaseName); err != nil {
		_ = db.Close()
		return err
	}

	repo := contact.NewRepository(db, a.logger)
	a.db = db
	a.store = repo
	a.health.Add("database", repo, true)
	return nil
}

func (a *App) stopDatabase(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *App) startRedis(ctx context.Context) error {
	client, err := redis.NewClient(ctx, redis.Config{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	}, a.logger)
	if err != nil {
		return err
	}
	a.redis = client
	a.health.Add("redis", client, true)
	return nil
}

func (a *App) stopRedis(ctx context.Context) error {
	return a.redis.Close()
}

func (a *App) startKafka(ctx context.Context) error {
	a.producer = kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      a.cfg.KafkaBrokers,
		Topic:        a.cfg.KafkaOutputTopic,
		BatchSize:    a.cfg.KafkaBatchSize,
		BatchTimeout: a.cfg.KafkaBatchTimeout,
		RequiredAcks: a.cfg.KafkaRequiredAcks,
		Compression:  a.cfg.KafkaCompression,
	}, a.logger)
	return nil
}

func (a *App) stopKafka(ctx context.Context) error {
	return a.producer.Close()
}

func (a *App) startGraph(ctx context.Context) error {
	client, err := graph.NewClient(graph.Config{
		Host:     a.cfg.GraphDBHost,
		Port:     a.cfg.GraphDBPort,
		Username: a.cfg.GraphDBUser,
		Password: a.cfg.GraphDBPassword,
	}, a.logger)
	if err != nil {
		return err
	}
	if err := client.Ping(ctx); err != nil {
		_ = client.Close(ctx)
		return fmt.Errorf("graph: %w", err)
	}
	a.graph = client
	a.health.Add("graph", client, false)
	return nil
}

func (a *App) stopGraph(ctx context.Context) error {
	return a.graph.Close(ctx)
}

func (a *App) startService(ctx context.Context) error {
	emailChain, err := normalizers.NewChain(a.cfg.EmailNormalizers...)
	if err != nil {
		return fmt.Errorf("EMAIL_NORMALIZERS: %w", err)
	}
	phoneChain, err := normalizers.NewChain(a.cfg.PhoneNormalizers...)
	if err != nil {
		return fmt.Errorf("PHONE_NORMALIZERS: %w", err)
	}

	opts := []identity.Option{
		identity.WithNormalizers(emailChain, phoneChain),
		identity.WithMaxConflictRetries(a.cfg.MaxConflictRetries),
	}
	if a.redis != nil {
		opts = append(opts, identity.WithLocker(redis.NewKeyLocker(a.redis, a.cfg.LockTTL, a.cfg.LockTimeout, a.logger)))
	}
	if a.producer != nil {
		opts = append(opts, identity.WithEventEmitter(events.NewEmitter(a.producer)))
	}
	if a.graph != nil {
		opts = append(opts, identity.WithClusterProjector(graph.NewProjector(a.graph, a.logger)))
	}

	a.service = identity.NewService(a.store, a.logger, opts...)
	return nil
}

func (a *App) startServer(ctx context.Context) error {
	e := NewRouter(a.cfg, a.logger, a.service, a.health)

	a.server = &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           e,
		ReadTimeout:       time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(a.cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}

	listener, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.server.Addr, err)
	}

	go func() {
		if err := a.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("HTTP server stopped unexpectedly")
		}
	}()
	return nil
}

func (a *App) stopServer(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

// NewRouter builds the echo instance with the middleware stack and every route.
func NewRouter(cfg *config.Config, logger ectologger.Logger, service *identity.Service, checker *health.Checker) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: cfg.AllowOrigins}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())

	identify.NewHandler(service).Register(e)
	contactroutes.NewHandler(service).Register(e)
	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return e
}
