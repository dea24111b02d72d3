package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dejely/manobela/internal/core/domain"
	"github.com/dejely/manobela/internal/core/ports"
	"github.com/dejely/manobela/internal/core/services"
	httphandlers "github.com/dejely/manobela/internal/handlers/http"
	"github.com/dejely/manobela/internal/infrastructure/media"
	"github.com/dejely/manobela/internal/infrastructure/middleware"
	"github.com/dejely/manobela/internal/infrastructure/monitoring"
	"github.com/dejely/manobela/internal/infrastructure/reliability"
	"github.com/dejely/manobela/internal/infrastructure/repositories"
	signalclient "github.com/dejely/manobela/internal/infrastructure/signal"
	"github.com/dejely/manobela/internal/infrastructure/speech"
	webrtcinfra "github.com/dejely/manobela/internal/infrastructure/webrtc"
	"github.com/dejely/manobela/pkg/circuitbreaker"
	"github.com/dejely/manobela/pkg/config"
	"github.com/dejely/manobela/pkg/logger"
	"github.com/dejely/manobela/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// Local overrides for development
	_ = godotenv.Load()

	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()
	logr := zapLogger.Sugar()

	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerEndpoint,
		Environment: "production",
		SampleRate:  1.0,
	})
	if err != nil {
		logr.Fatalw("failed to initialize tracing", "error", err)
	}

	repoFactory, err := repositories.NewRepositoryFactory(cfg, logr)
	if err != nil {
		logr.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	sessionRepo := repoFactory.CreateSessionRepository()
	metricRepo := repoFactory.CreateMetricRepository()

	collector := monitoring.NewPrometheusCollector()

	auth := services.NewDeviceAuthService(cfg.Auth.JWTSecret, cfg.Auth.DeviceID, cfg.Auth.TokenTTL)
	token, err := auth.IssueToken()
	if err != nil {
		logr.Fatalw("failed to issue device token", "error", err)
	}

	transport := signalclient.NewWebSocketClient(signalclient.Config{
		URL:            cfg.Signal.URL,
		ConnectTimeout: cfg.Signal.ConnectTimeout,
		PingInterval:   cfg.Signal.PingInterval,
		PongTimeout:    cfg.Signal.PongTimeout,
	}, token, logr)

	iceServers := resolveICEServers(cfg, token, logr)

	mediaSource := media.NewRTPSource(media.Config{
		ListenAddress: cfg.Media.RTPListenAddress,
		MimeType:      cfg.Media.MimeType,
		ClockRate:     cfg.Media.ClockRate,
	}, logr)

	peerManager := webrtcinfra.NewPeerManager(webrtcinfra.Config{
		ICEServers:     iceServers,
		ConnectTimeout: cfg.WebRTC.ConnectTimeout,
	}, transport, mediaSource, logr)

	sessionLogger := services.NewSessionLogger(services.SessionLoggerConfig{
		LogInterval:   cfg.Logger.LogInterval,
		FlushInterval: cfg.Logger.FlushInterval,
		MaxBufferSize: cfg.Logger.MaxBufferSize,
	}, sessionRepo, metricRepo, collector, logr)
	defer sessionLogger.Stop()

	alertManager := services.NewAlertManager(
		domain.DefaultAlertConfigs(),
		buildSpeaker(cfg, logr),
		collector,
		logr,
	)

	controller := services.NewSessionController(
		transport,
		peerManager,
		sessionLogger,
		alertManager,
		collector,
		logr,
	)
	controller.Bind()

	health := monitoring.NewHealthChecker()
	health.AddStorageCheck(repoFactory.HealthCheck, 2*time.Second)
	health.AddTransportCheck(transport)

	handler := httphandlers.NewMonitorHandler(controller, sessionLogger, sessionRepo, metricRepo, health)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(logr))
	router.Use(middleware.ErrorHandlerMiddleware(logr))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.NewHTTPRateLimitMiddleware(20, 40))

	handler.SetupRoutes(router)

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		logr.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logr.Infow("starting monitoring client API", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logr.Fatalw("server failed", "error", err)
	case sig := <-sigChan:
		logr.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	controller.Shutdown(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			logr.Errorw("error force closing server", "error", closeErr)
		}
	}

	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logr.Warnw("error shutting down tracer", "error", err)
		}
	}

	logr.Info("monitoring client stopped")
}

func configPath() string {
	if path := os.Getenv("MANOBELA_CONFIG"); path != "" {
		return path
	}
	return "configs/config.yaml"
}

// resolveICEServers prefers the backend-provided list and falls back to the
// configured static servers when the fetch fails or is disabled.
func resolveICEServers(cfg *config.Config, token string, logr *zap.SugaredLogger) []webrtc.ICEServer {
	static := make([]webrtc.ICEServer, 0, len(cfg.WebRTC.ICEServers))
	for _, s := range cfg.WebRTC.ICEServers {
		server := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" && s.Credential != "" {
			server.Username = s.Username
			server.Credential = s.Credential
		}
		static = append(static, server)
	}
	if len(static) == 0 {
		static = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}

	if !cfg.WebRTC.FetchICEServers {
		return static
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fetcher := signalclient.NewICEServerFetcher(cfg.Signal.APIBaseURL, token, logr)
	servers, err := fetcher.Fetch(ctx)
	if err != nil {
		logr.Warnw("ice server fetch failed, using static configuration", "error", err)
		return static
	}
	return servers
}

// buildSpeaker wires the configured alert voice behind the circuit breaker.
func buildSpeaker(cfg *config.Config, logr *zap.SugaredLogger) ports.Speaker {
	var speaker ports.Speaker
	if cfg.Alerts.Speaker == "tts" {
		speaker = speech.NewHTTPSpeaker(cfg.Alerts.TTSURL, logr)
	} else {
		speaker = speech.NewLogSpeaker(logr)
	}
	if !cfg.Alerts.Enabled {
		speaker = speech.NoopSpeaker{}
	}

	return reliability.NewSpeakerWrapper(speaker, circuitbreaker.DefaultConfig(), logr)
}
