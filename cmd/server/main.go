package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/artl-app/artl-service/api"
	"github.com/artl-app/artl-service/internal/auth"
	"github.com/artl-app/artl-service/internal/bluetooth"
	"github.com/artl-app/artl-service/internal/config"
	"github.com/artl-app/artl-service/internal/db"
	"github.com/artl-app/artl-service/internal/events"
	"github.com/artl-app/artl-service/internal/logging"
	"github.com/artl-app/artl-service/internal/models"
	"github.com/artl-app/artl-service/internal/ocr"
	"github.com/artl-app/artl-service/internal/ocr/tesseract"
	"github.com/artl-app/artl-service/internal/pipeline"
	"github.com/artl-app/artl-service/internal/state"
	"github.com/artl-app/artl-service/internal/storage"
	"github.com/artl-app/artl-service/internal/translate"
)

func main() {
	// .env is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: failed to load .env: %v", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := state.New(cfg.Translation.TargetLanguage)
	deps := api.Deps{
		State:  st,
		Logger: logging.NewLogger("API"),
	}

	// Authentication
	if cfg.Auth.Enabled {
		ttl := time.Duration(cfg.Auth.TokenTTLHours) * time.Hour
		if err := auth.Init(cfg.Auth.JWTSecret, ttl); err != nil {
			log.Fatalf("Failed to initialize auth: %v", err)
		}
		deps.Login = auth.NewAuthenticator(cfg.Auth.Users).LoginHandler
		log.Println("JWT authentication initialized")
	}

	// Database
	var history *db.History
	if err := db.Init(ctx, cfg.Database.URL); err != nil {
		log.Printf("Warning: Database not available: %v", err)
		log.Println("Running without history")
	} else {
		defer db.Close()
		history = db.NewHistory(db.Pool)
		deps.History = history
		deps.Database = history
		log.Println("Database connection pool initialized")
	}

	// Image storage
	var images *storage.Store
	if cfg.Storage.Enabled {
		images, err = storage.New(ctx, cfg.Storage)
		if err != nil {
			log.Printf("Warning: MinIO storage not available: %v", err)
			log.Println("Images will not be stored")
		} else {
			deps.Images = images
			log.Println("MinIO storage initialized")
		}
	}

	// State events
	if cfg.Events.RedisURL != "" {
		publisher, err := events.NewPublisher(ctx, cfg.Events.RedisURL, cfg.Events.Channel, logging.NewLogger("EVENTS"))
		if err != nil {
			log.Printf("Warning: Redis not available: %v", err)
		} else {
			defer publisher.Close()
			deps.Events = publisher
			go publisher.Run(ctx, st)
			log.Printf("Publishing state changes to %s", publisher.Channel())
		}
	}

	// OCR
	engine, err := tesseract.NewEngine(cfg.OCR.Language)
	if err != nil {
		log.Printf("Warning: OCR engine not available: %v", err)
	} else {
		defer engine.Close()
		deps.Engine = engine
		log.Printf("OCR engine: %s", engine.Version())
	}

	// Translation
	coordinator, closeProvider := setupTranslation(ctx, cfg, st)
	defer closeProvider()
	deps.Coordinator = coordinator

	// Pipeline
	pipelineCfg := pipeline.Config{
		Provider: cfg.Translation.Provider,
		Logger:   logging.NewLogger("PIPELINE"),
	}
	if images != nil {
		pipelineCfg.Images = images
	}
	if history != nil {
		pipelineCfg.History = history
	}
	var ocrEngine ocr.Engine = missingEngine{}
	if engine != nil {
		ocrEngine = engine
	}
	deps.Pipeline = pipeline.New(
		ocr.NewPreprocessor(cfg.OCR.MaxDimension, cfg.OCR.Grayscale),
		ocrEngine, coordinator, st, pipelineCfg)

	// Bluetooth
	service, closeAdapter, err := setupBluetooth(cfg.Bluetooth, st, history)
	if err != nil {
		log.Printf("Warning: Bluetooth not available: %v", err)
	} else if service != nil {
		defer closeAdapter()
		defer service.Protocol().Close()
		deps.Bluetooth = service
		log.Printf("Bluetooth: %s adapter, service %s", cfg.Bluetooth.Adapter, service.Protocol().ServiceUUID())
	}

	handler := api.NewHandler(cfg, deps)
	var root http.Handler = handler.SetupRoutes()
	if cfg.Auth.Enabled {
		// Skips /health and /api/login
		root = auth.JWTMiddleware(root)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("Starting ARTL service v%s on %s", api.Version, addr)
	log.Printf("Translation: %s (%s -> %s)", cfg.Translation.Provider, coordinator.SourceLanguage(), coordinator.TargetLanguage())
	log.Printf("Database: %v", history != nil)
	log.Printf("Storage: %v", images != nil)
	log.Printf("Endpoints:")
	if cfg.Auth.Enabled {
		log.Printf("  POST   http://%s/api/login              - Authenticate", addr)
	}
	log.Printf("  POST   http://%s/api/images             - Import image", addr)
	log.Printf("  POST   http://%s/api/captures           - Capture frame", addr)
	log.Printf("  GET    http://%s/api/state              - Current state", addr)
	log.Printf("  GET    http://%s/api/state/stream       - State websocket", addr)
	log.Printf("  PUT    http://%s/api/language           - Set target language", addr)
	log.Printf("  POST   http://%s/api/translate          - Translate text", addr)
	log.Printf("  GET    http://%s/api/history            - Translation history", addr)
	log.Printf("  POST   http://%s/api/bluetooth/connect  - Connect to paired device", addr)
	log.Printf("  POST   http://%s/api/bluetooth/listen   - Accept a connection", addr)
	log.Printf("  POST   http://%s/api/bluetooth/send     - Send text", addr)
	log.Printf("  DELETE http://%s/api/bluetooth/session  - Disconnect", addr)
	log.Printf("  GET    http://%s/health                 - Health check", addr)

	errc := make(chan error, 1)
	go func() {
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	case <-ctx.Done():
		log.Println("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Warning: shutdown: %v", err)
		}
	}
}

// setupTranslation builds the coordinator and starts loading the target
// model. Without a usable provider the coordinator never becomes ready.
func setupTranslation(ctx context.Context, cfg *models.Config, st *state.AppState) (*translate.Coordinator, func()) {
	logger := logging.NewLogger("TRANSLATE")
	closer := func() {}

	var translator translate.Translator = unavailableTranslator{}
	provider, err := translate.NewProvider(ctx, cfg.Translation)
	if err != nil {
		log.Printf("Warning: translation provider not available: %v", err)
	} else {
		if c, ok := provider.(io.Closer); ok {
			closer = func() { c.Close() }
		}
		llm := translate.NewLLMTranslator(provider, logger)
		llm.SetTimeout(time.Duration(cfg.Translation.TimeoutSeconds) * time.Second)
		translator = llm
	}

	coordinator := translate.NewCoordinator(translator, st, cfg.Translation.SourceLanguage, logger)
	done := coordinator.Prepare(ctx)
	go func() {
		if err := <-done; err != nil {
			log.Printf("Warning: translation model not ready: %v", err)
			return
		}
		log.Printf("Translation model ready for %s", coordinator.TargetLanguage())
	}()
	return coordinator, closer
}

// setupBluetooth returns a nil service when the adapter is "none"
func setupBluetooth(cfg models.BluetoothConfig, st *state.AppState, history *db.History) (*bluetooth.Service, func(), error) {
	logger := logging.NewLogger("BLUETOOTH")
	closer := func() {}

	var adapter bluetooth.Adapter
	switch cfg.Adapter {
	case "none":
		return nil, closer, nil
	case "bluez":
		bluez, err := bluetooth.NewBlueZAdapter(logger)
		if err != nil {
			return nil, closer, err
		}
		closer = func() { bluez.Close() }
		adapter = bluez
	case "tcp":
		peers := make([]bluetooth.Device, 0, len(cfg.Peers))
		for _, p := range cfg.Peers {
			peers = append(peers, bluetooth.Device{Name: p.Name, Address: p.Address})
		}
		adapter = bluetooth.NewTCPAdapter(cfg.TCPListen, peers, logger)
	default:
		return nil, closer, fmt.Errorf("unknown adapter %q", cfg.Adapter)
	}

	protocol, err := bluetooth.NewProtocol(adapter, bluetooth.Options{
		ServiceUUID: cfg.ServiceUUID,
		ServiceName: cfg.ServiceName,
		DialTimeout: time.Duration(cfg.DialTimeoutSeconds) * time.Second,
	}, logger)
	if err != nil {
		closer()
		return nil, func() {}, err
	}

	var store bluetooth.MessageStore
	if history != nil {
		store = history
	}
	return bluetooth.NewService(protocol, st, store, logger), closer, nil
}
