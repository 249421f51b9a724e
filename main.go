package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"unmute/config"
	"unmute/database"
	documentRepo "unmute/database/repository/document"
	"unmute/handlers"
	"unmute/middleware"
	"unmute/routes"
	"unmute/services/booking"
	"unmute/services/health"
	ai "unmute/services/intelligence"
	"unmute/services/session"
	"unmute/services/speech"
	"unmute/utils"

	firebase "firebase.google.com/go/v4"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "main: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.InitializeLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "main: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	var app *firebase.App
	if cfg.StoreBackend == "firestore" || cfg.AuthMode == "firebase" {
		if app, err = utils.FirebaseInit(ctx, cfg); err != nil {
			logger.Sugar().Fatalf("main: %v", err)
		}
	}

	store, closeStore, err := openStore(ctx, cfg, app, logger)
	if err != nil {
		logger.Sugar().Fatalf("main: failed to open %s document store: %v", cfg.StoreBackend, err)
	}
	defer closeStore()

	gateway, closeGateway, err := openGateway(ctx, cfg, logger)
	if err != nil {
		logger.Sugar().Fatalf("main: failed to initialize %s gateway: %v", cfg.GatewayProvider, err)
	}
	defer closeGateway()

	verifier, err := tokenVerifier(ctx, cfg, app)
	if err != nil {
		logger.Sugar().Fatalf("main: failed to initialize authentication: %v", err)
	}

	var transcriber *speech.Transcriber
	if cfg.SpeechEnabled {
		if transcriber, err = speech.NewTranscriber(ctx, cfg.GoogleServiceAccountFile, logger); err != nil {
			logger.Sugar().Fatalf("main: %v", err)
		}
		defer transcriber.Close()
	}

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	monitor := health.NewMonitor(store, cfg.HealthInterval, logger)
	monitor.Start(monitorCtx)

	manager := session.NewManager(store, gateway, monitor, session.ManagerConfig{
		Sync: session.Options{ReplyTimeout: 2 * cfg.GatewayTimeout},
		Booking: booking.Config{
			Timeout:    cfg.BookingTimeout,
			AppendMode: booking.AppendMode(cfg.BookingAppendMode),
			MaxRetries: cfg.BookingMaxRetries,
			NoticeTTL:  cfg.NoticeTTL,
		},
	}, logger)

	chatHandler := handlers.NewChatHandler(manager, transcriber, logger)
	bookingHandler := handlers.NewBookingHandler(manager, logger)
	sessionHandler := handlers.NewSessionHandler(manager, logger)

	handlerBundle := &handlers.HandlerBundle{
		GetTranscript: chatHandler.GetTranscript,
		SendMessage:   chatHandler.SendMessage,
		SendVoice:     chatHandler.SendVoice,
		Stream:        chatHandler.Stream,

		SubmitBooking: bookingHandler.SubmitBooking,
		ListBookings:  bookingHandler.ListBookings,
		ListServices:  bookingHandler.ListServices,

		SignOut: sessionHandler.SignOut,
		Health:  handlers.HealthHandler(monitor),
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(utils.ErrorHandler(logger))
	router.Use(gin.Logger())

	routes.RegisterRoutes(router, handlerBundle, routes.Options{
		Auth:        middleware.AuthMiddleware(verifier, logger),
		ChatLimiter: middleware.RateLimitMiddleware(cfg.ChatRatePerMin, logger),
		CORSOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:    "0.0.0.0:" + cfg.AppPort,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s (store=%s, gateway=%s)...", srv.Addr, cfg.StoreBackend, cfg.GatewayProvider)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("main: server forced to shutdown", zap.Error(err))
	}
	manager.Close()

	logger.Sugar().Info("main: server stopped gracefully")
}

func openStore(ctx context.Context, cfg *config.Config, app *firebase.App, logger *zap.Logger) (documentRepo.Store, func(), error) {
	switch cfg.StoreBackend {
	case "firestore":
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, nil, err
		}
		return documentRepo.NewFirestoreStore(client, cfg.StoreCollection, logger), func() { client.Close() }, nil
	case "mongo":
		client, err := database.InitDB(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return documentRepo.NewMongoStore(client, cfg.DatabaseName, cfg.StoreCollection, logger), func() {
			client.Disconnect(context.Background())
		}, nil
	case "redis":
		client, err := utils.InitRedis(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return documentRepo.NewRedisStore(client, cfg.StoreCollection, logger), func() { client.Close() }, nil
	default:
		logger.Warn("using the in-memory document store; data is lost on restart")
		return documentRepo.NewMemoryStore(), func() {}, nil
	}
}

func openGateway(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ai.Gateway, func(), error) {
	switch cfg.GatewayProvider {
	case "openai":
		gw, err := ai.NewOpenAIGateway(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.GatewayTimeout, logger)
		if err != nil {
			return nil, nil, err
		}
		return gw, func() {}, nil
	default:
		gw, err := ai.NewGeminiGateway(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GatewayTimeout, logger)
		if err != nil {
			return nil, nil, err
		}
		return gw, func() { gw.Close() }, nil
	}
}

func tokenVerifier(ctx context.Context, cfg *config.Config, app *firebase.App) (middleware.TokenVerifier, error) {
	if cfg.AuthMode == "jwt" {
		signer, err := utils.NewJWTSigner(cfg.JWTSecret)
		if err != nil {
			return nil, err
		}
		return &middleware.JWTVerifier{Signer: signer}, nil
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth: %w", err)
	}
	return &middleware.FirebaseVerifier{Client: client}, nil
}
