package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"parkaro/internal/api"
	"parkaro/internal/api/middleware"
	"parkaro/internal/charging"
	"parkaro/internal/config"
	"parkaro/internal/domain"
	"parkaro/internal/iot"
	"parkaro/internal/logging"
	"parkaro/internal/metrics"
	"parkaro/internal/notify"
	"parkaro/internal/occupancy"
	"parkaro/internal/pricing"
	"parkaro/internal/repository"
	"parkaro/internal/repository/memory"
	"parkaro/internal/repository/postgresql"
	"parkaro/internal/scheduler"
	"parkaro/internal/sensor"
	"parkaro/internal/service"
)

const auditInterval = 15 * time.Minute

var CLI struct {
	Serve struct{} `cmd:"" default:"1" help:"Run the parking API server"`

	Migrate struct{} `cmd:"" help:"Create or update the database schema"`

	CreateUser struct {
		Username string `required:"" help:"Username of the new user"`
		Password string `default:"password123" help:"Password of the new user"`
		Email    string `help:"Email address (defaults to <username>@parkaro.local)"`
		Role     string `default:"driver" enum:"driver,operator,admin" help:"Role of the new user"`
	} `cmd:"" help:"Create a user and print its QR code"`

	Quote struct {
		Minutes int `required:"" help:"Parking duration in whole minutes"`
	} `cmd:"" help:"Print the fee for a parking duration"`
}

func main() {
	kctx := kong.Parse(&CLI, kong.Name("parkaro"), kong.Description("Parking and EV charging engine"))

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	switch kctx.Command() {
	case "serve":
		err = runServe(cfg, logger)
	case "migrate":
		err = runMigrate(cfg, logger)
	case "create-user":
		err = runCreateUser(cfg, logger)
	case "quote":
		err = runQuote(cfg)
	default:
		err = fmt.Errorf("unknown command %q", kctx.Command())
	}
	if err != nil {
		logger.Error().Err(err).Str("command", kctx.Command()).Msg("command failed")
		os.Exit(1)
	}
}

func runServe(cfg *config.Config, logger *zerolog.Logger) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()
	clock := clockwork.NewRealClock()

	// 1. Storage
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	// 2. AWS clients, only when something needs them
	var awsCfg aws.Config
	if cfg.SensorSource == "sqs" || cfg.IoTMQTTEndpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		logger.Info().Str("region", cfg.AWSRegion).Msg("aws sdk config loaded")
	}

	var wg sync.WaitGroup

	// 3. Notifications
	hub := notify.NewHub(logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()
	sinks := []notify.Notifier{hub}
	if cfg.IoTMQTTEndpoint != "" {
		endpoint := cfg.IoTMQTTEndpoint
		if !strings.HasPrefix(endpoint, "https://") && !strings.HasPrefix(endpoint, "http://") {
			endpoint = "https://" + endpoint
		}
		iotClient := iotdataplane.NewFromConfig(awsCfg, func(o *iotdataplane.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
		publisher := notify.NewMQTTPublisher(iotClient, cfg.IoTTopicPrefix, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			publisher.Run(ctx)
		}()
		sinks = append(sinks, publisher)
	}
	fanout := notify.NewFanout(clock, sinks...)

	// 4. Occupancy
	source, err := openSensor(ctx, cfg, awsCfg, store.Repositories().SensorEvents, clock, logger, &wg)
	if err != nil {
		return err
	}
	reconciler := occupancy.NewReconciler(cfg.TotalSlots, cfg.ReconcileInterval, source,
		store.Repositories().ParkingSessions, clock, logger)
	reconciler.OnChange(fanout.OccupancyChanged)
	if err := reconciler.Refresh(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial reconciliation failed")
	}

	// 5. Services
	engine := pricingEngine(cfg)
	if err := engine.Validate(); err != nil {
		return err
	}
	chargingSvc := charging.NewService(store, clock, fanout, logger, charging.Options{
		BatteryKWh:    cfg.BatteryCapacityKWh,
		RateKW:        cfg.ChargeRateKW,
		StartLevelMin: cfg.ChargeStartMin,
		StartLevelMax: cfg.ChargeStartMax,
	})
	opts := service.SessionOptions{StaleAfter: cfg.StaleSessionAfter}
	if cfg.Layout != nil {
		opts.SlotLabel = cfg.Layout.Label
	}
	sessions := service.NewSessionService(store, reconciler, chargingSvc, engine, clock, fanout, logger, opts)
	authService := service.NewAuthService(store.Repositories().Users, cfg.JWTSecret, cfg.JWTExpirationHours, clock)

	// 6. Background jobs
	sched, err := scheduler.New(clock, logger)
	if err != nil {
		return err
	}
	if _, err := sched.Every(ctx, "reconcile", cfg.ReconcileInterval, reconciler.Refresh); err != nil {
		return err
	}
	if _, err := sched.Every(ctx, "stale-session-audit", auditInterval, func(ctx context.Context) error {
		_, err := sessions.AuditStaleSessions(ctx)
		return err
	}); err != nil {
		return err
	}
	sched.Start()

	// 7. HTTP
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.SetupRouter(api.RouterDeps{
		Auth:     authService,
		Sessions: sessions,
		Charging: chargingSvc,
		Hub:      hub,
		Events:   store.Repositories().SensorEvents,
		Store:    store,
		AuthMw:   middleware.NewAuthMiddleware(authService, logger),
		Logger:   logger,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go serveMetrics(ctx, cfg.MetricsPort, logger)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.ServerPort).Int("slots", cfg.TotalSlots).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err = <-serveErr:
		logger.Error().Err(err).Msg("http server failed")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown")
	}
	if err := sched.Stop(); err != nil {
		logger.Error().Err(err).Msg("scheduler shutdown")
	}
	wg.Wait()
	logger.Info().Msg("server stopped")
	return err
}

func openStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (repository.Store, error) {
	if !cfg.Persistent() {
		logger.Warn().Msg("using in-memory store; sessions are lost on restart")
		return memory.NewStore(), nil
	}
	db, err := postgresql.NewDB(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := postgresql.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}
	logger.Info().Str("driver", cfg.DBDriver).Str("host", cfg.DBHost).Str("database", cfg.DBName).Msg("database connected")
	return postgresql.NewStore(db), nil
}

func openSensor(ctx context.Context, cfg *config.Config, awsCfg aws.Config, events repository.SensorEventLogRepository, clock clockwork.Clock, logger *zerolog.Logger, wg *sync.WaitGroup) (occupancy.Sensor, error) {
	switch cfg.SensorSource {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		source := sensor.NewRedisSet(rdb, cfg.RedisSensorKey, cfg.RedisHeartbeat, logger)
		if err := source.Ping(ctx); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable; occupancy starts degraded")
		}
		return source, nil

	case "sqs":
		feed := sensor.NewFeed(clock, cfg.SensorStaleAfter, logger)
		recorder := iot.NewRecorder(feed, events, clock, logger)
		consumer := iot.NewSQSConsumer(sqs.NewFromConfig(awsCfg), cfg.SQSEventQueueURL, recorder, clock, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumer.Start(ctx)
		}()
		return feed, nil

	case "none":
		logger.Info().Msg("no occupancy sensor configured; assigning from the ledger alone")
		return sensor.NewStatic(), nil
	}
	return nil, fmt.Errorf("unsupported SENSOR_SOURCE %q", cfg.SensorSource)
}

func serveMetrics(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

func runMigrate(cfg *config.Config, logger *zerolog.Logger) error {
	if !cfg.Persistent() {
		logger.Info().Msg("memory store has no schema to migrate")
		return nil
	}
	db, err := postgresql.NewDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgresql.Migrate(context.Background(), db); err != nil {
		return err
	}
	logger.Info().Str("database", cfg.DBName).Msg("schema migrated")
	return nil
}

func runCreateUser(cfg *config.Config, logger *zerolog.Logger) error {
	if !cfg.Persistent() {
		return errors.New("create-user needs a database: the memory store is discarded when this command exits")
	}
	ctx := context.Background()
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	email := CLI.CreateUser.Email
	if email == "" {
		email = CLI.CreateUser.Username + "@parkaro.local"
	}
	authService := service.NewAuthService(store.Repositories().Users, cfg.JWTSecret, cfg.JWTExpirationHours, clockwork.NewRealClock())
	user, err := authService.Register(ctx, domain.RegisterUserDTO{
		Username: CLI.CreateUser.Username,
		Email:    email,
		Password: CLI.CreateUser.Password,
		Role:     CLI.CreateUser.Role,
	})
	if err != nil {
		return err
	}
	fmt.Printf("created %s (id %d, role %s)\nQR code: %s\n", user.Username, user.ID, user.Role, user.QRCode)
	return nil
}

func runQuote(cfg *config.Config) error {
	quote, err := pricingEngine(cfg).Price(CLI.Quote.Minutes)
	if err != nil {
		return err
	}
	fmt.Printf("%d minutes: %s%.2f (%s)\n", quote.Minutes, cfg.PriceCurrency, quote.Amount, quote.RateDescription)
	return nil
}

func pricingEngine(cfg *config.Config) pricing.Engine {
	return pricing.Engine{
		ShortRate:        cfg.PriceShortRate,
		LongRate:         cfg.PriceLongRate,
		FreeMinutes:      cfg.PriceFreeMinutes,
		LongStayAfter:    cfg.PriceLongStayAfter,
		Currency:         cfg.PriceCurrency,
		ClampNonPositive: cfg.PriceClamp,
	}
}
