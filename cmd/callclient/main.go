package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"
	"telecare/internal/core/services"
	httphandlers "telecare/internal/handlers/http"
	"telecare/internal/infrastructure/bootstrap"
	"telecare/internal/infrastructure/middleware"
	"telecare/internal/infrastructure/monitoring"
	repositories "telecare/internal/infrastructure/repositories"
	redisrepo "telecare/internal/infrastructure/repositories/redis"
	signaltransport "telecare/internal/infrastructure/signal"
	webrtcinfra "telecare/internal/infrastructure/webrtc"
	"telecare/pkg/config"
	"telecare/pkg/logger"
	"telecare/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
)

func main() {
	var (
		configPath    = pflag.String("config", "configs/config.yaml", "path to configuration file")
		appointmentID = pflag.String("appointment-id", "", "appointment to join or initiate a call for")
		callID        = pflag.String("call-id", "", "existing call session to join")
		userID        = pflag.String("user-id", "", "signaling identity (account email)")
		token         = pflag.String("token", "", "bearer token for the backend")
		initiate      = pflag.Bool("initiate", false, "create a new call session instead of joining")
		scheduledAt   = pflag.String("scheduled-at", "", "appointment time (RFC 3339); enforces the join window when set")
	)
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		stdlog.Fatalf("failed to load config: %v", err)
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	if *token == "" {
		*token = os.Getenv("TELECARE_TOKEN")
	}
	if *userID == "" || *token == "" {
		log.Fatal("--user-id and --token (or TELECARE_TOKEN) are required")
	}
	if *appointmentID == "" && *callID == "" {
		log.Fatal("one of --appointment-id or --call-id is required")
	}

	// Joining too early or too late is refused up front, before any session
	// is created on the backend.
	if *scheduledAt != "" {
		at, err := time.Parse(time.RFC3339, *scheduledAt)
		if err != nil {
			log.Fatalw("invalid --scheduled-at", "error", err)
		}
		window := services.JoinWindowPolicy{
			Early: cfg.Call.JoinWindow.Early,
			Late:  cfg.Call.JoinWindow.Late,
		}
		if err := window.Check(at, time.Now()); err != nil {
			log.Fatalw("appointment not joinable", "error", err)
		}
	}

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "telecare-call",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tp.Shutdown(shutdownCtx)
	}()

	repoFactory := repositories.NewRepositoryFactory(redisrepo.ClientConfig{
		Address:  cfg.Journal.Redis.Address,
		Password: cfg.Journal.Redis.Password,
		DB:       cfg.Journal.Redis.DB,
		PoolSize: cfg.Journal.Redis.PoolSize,
	}, cfg.Journal.Redis.Enabled, zapLogger)
	defer repoFactory.Close()

	recordRepo := repoFactory.CreateCallRecordRepository()
	journal := services.NewJournalService(recordRepo, cfg.Journal.CacheTTL, zapLogger)
	defer journal.Close()

	bootstrapper, err := bootstrap.NewClient(cfg.API.BaseURL, *token, cfg.API.Timeout, zapLogger)
	if err != nil {
		log.Fatalw("failed to create bootstrap client", "error", err)
	}

	newTransport := func(session *domain.CallSession, uid domain.UserID, listener ports.TransportListener) ports.SignalingTransport {
		return signaltransport.NewWebSocketClient(signaltransport.Options{
			BaseURL:           cfg.Signaling.URL,
			CallID:            session.CallID,
			UserID:            uid,
			Token:             *token,
			PingInterval:      cfg.Signaling.PingInterval,
			PongTimeout:       cfg.Signaling.PongTimeout,
			WriteTimeout:      cfg.Signaling.WriteTimeout,
			DialTimeout:       cfg.Signaling.DialTimeout,
			MessagesPerSecond: cfg.Signaling.SendRate.MessagesPerSecond,
			Burst:             cfg.Signaling.SendRate.Burst,
		}, listener, zapLogger)
	}

	newEngine := func(observer ports.EngineObserver) ports.MediaEngine {
		return webrtcinfra.NewEngine(webrtcinfra.Config{
			Width:        cfg.Media.Width,
			Height:       cfg.Media.Height,
			FrameRate:    cfg.Media.FrameRate,
			PortRangeMin: cfg.WebRTC.PortRange.Min,
			PortRangeMax: cfg.WebRTC.PortRange.Max,
		}, nil, observer, zapLogger)
	}

	collector := monitoring.NewPrometheusCollector()

	orchestrator := services.NewCallOrchestrator(
		bootstrapper, newTransport, newEngine, journal, collector, zapLogger)
	orchestrator.Subscribe(func(state domain.CallState, detail string) {
		log.Infow("call state", "state", state, "detail", detail)
	})

	// Diagnostics API for the desktop shell and monitoring.
	var statusSrv *http.Server
	if cfg.Status.Enabled {
		health := monitoring.NewHealthChecker()
		health.AddJournalCheck(recordRepo, 2*time.Second)
		health.AddCheck("journal_backend", repoFactory.HealthCheck, 2*time.Second)

		if cfg.Logging.Level != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}
		router := gin.New()
		router.Use(middleware.RecoveryMiddleware(log))
		router.Use(middleware.ErrorHandlerMiddleware(log))
		router.Use(middleware.RateLimitMiddleware(50, 100))
		if cfg.Tracing.Enabled {
			router.Use(middleware.TracingMiddleware())
		}

		handler := httphandlers.NewStatusHandler(orchestrator, journal, health, collector)
		handler.SetupRoutes(router)

		statusSrv = &http.Server{
			Addr:         cfg.Status.Address,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			log.Infow("diagnostics API listening", "address", cfg.Status.Address)
			if err := statusSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorw("diagnostics API failed", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	params := services.StartParams{
		AppointmentID:      domain.AppointmentID(*appointmentID),
		CallID:             domain.CallID(*callID),
		UserID:             domain.UserID(*userID),
		Initiate:           *initiate,
		FallbackICEServers: configuredICEServers(cfg),
	}

	log.Infow("starting call attempt",
		"appointment_id", *appointmentID,
		"call_id", *callID,
		"initiate", *initiate)

	// Start blocks until the attempt reaches a terminal state.
	go func() {
		if err := orchestrator.Start(ctx, params); err != nil {
			log.Errorw("call attempt failed", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-orchestrator.Done():
		log.Infow("call finished", "state", orchestrator.State())
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
		orchestrator.Hangup()
		select {
		case <-orchestrator.Done():
		case <-time.After(10 * time.Second):
			log.Warn("call did not finish in time, aborting")
			cancel()
		}
	}

	if statusSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := statusSrv.Shutdown(shutdownCtx); err != nil {
			log.Errorw("error during diagnostics API shutdown", "error", err)
		}
	}

	log.Info("call client stopped")
}

// configuredICEServers converts the webrtc.ice_servers config block into
// domain servers for sessions the backend issues without any.
func configuredICEServers(cfg *config.Config) []domain.ICEServer {
	servers := make([]domain.ICEServer, 0, len(cfg.WebRTC.ICEServers))
	for _, s := range cfg.WebRTC.ICEServers {
		if len(s.URLs) == 0 {
			continue
		}
		servers = append(servers, domain.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return servers
}
