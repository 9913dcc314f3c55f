package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/visionsuite/attendvision/config"
	"github.com/visionsuite/attendvision/database"
	"github.com/visionsuite/attendvision/engine"
	"github.com/visionsuite/attendvision/facestore"
	"github.com/visionsuite/attendvision/handlers"
	"github.com/visionsuite/attendvision/realtime"
	"github.com/visionsuite/attendvision/repository"
	"github.com/visionsuite/attendvision/runstate"
	"github.com/visionsuite/attendvision/services"
	"github.com/visionsuite/attendvision/tracker"
	"github.com/visionsuite/attendvision/vision"
	"github.com/visionsuite/attendvision/workers"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	storagePaths := []string{cfg.DataDir, cfg.SnapshotsDir, filepath.Dir(cfg.DatabasePath)}
	for _, p := range storagePaths {
		log.Printf("Ensuring storage directory exists: %s", p)
		if err := os.MkdirAll(p, 0755); err != nil {
			log.Fatalf("FATAL: Failed to create storage directory %s: %v", p, err)
		}
	}

	db, err := database.InitGormDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database: %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		log.Fatalf("FATAL: Failed to migrate database: %v", err)
	}

	store, err := facestore.Open(cfg.FaceDBPath)
	if err != nil {
		log.Fatalf("FATAL: Failed to open face store %s: %v", cfg.FaceDBPath, err)
	}
	log.Printf("Face store loaded with %d encodings", store.Count())

	state, err := runstate.Load(cfg.RunStatePath)
	if err != nil {
		log.Fatalf("FATAL: Failed to load run state %s: %v", cfg.RunStatePath, err)
	}

	personFilters := vision.DefaultPersonFilterParams()
	personFilters.Confidence = cfg.DetectorConfidence
	personDetector := vision.NewDNNPersonDetector(cfg.PersonNetConfigPath, cfg.PersonNetModelPath, cfg.DetectorDevice, personFilters, cfg.DetectorBatchSize)
	faceDetector := vision.NewDNNFaceDetector(cfg.FaceDNNNetConfigPath, cfg.FaceDNNNetModelPath)
	faceEncoder := vision.NewDNNFaceEncoder(cfg.FaceEncoderModelPath, vision.EncodingDimensions)
	recognizer := vision.NewRecognizer(faceDetector, faceEncoder, cfg.FaceMatchTolerance)
	tracks := tracker.NewTracker()

	personRepo := repository.NewPersonRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	eventRepo := repository.NewDetectionEventRepository(db)
	apiKeyRepo := repository.NewAPIKeyRepository(db)
	configRepo := repository.NewSystemConfigRepository(db)
	logRepo := repository.NewSystemLogRepository(db)

	attendanceService := services.NewAttendanceService(attendanceRepo, eventRepo, logRepo, time.Duration(cfg.DuplicateWindowMinutes)*time.Minute)
	personService := services.NewPersonService(personRepo, store, recognizer)
	personService.LoadMirror()
	apiKeyService := services.NewAPIKeyService(apiKeyRepo)
	bootstrapAdminKey(apiKeyService)

	log.Printf("Initializing snapshot worker pool (Workers: %d, Queue Size: %d)...", cfg.NumSnapshotWorkers, cfg.SnapshotQueueSize)
	snapshots := workers.NewSnapshotProcessor(cfg.SnapshotsDir, cfg.SnapshotQueueSize, cfg.NumSnapshotWorkers, func(res workers.SnapshotResult) {
		if res.AttendanceID == 0 {
			return
		}
		if err := attendanceService.AttachSnapshot(res.AttendanceID, res.Path); err != nil {
			log.Printf("snapshots: failed to attach snapshot to attendance %d: %v", res.AttendanceID, err)
		}
	})

	hub := realtime.NewHub()
	go hub.Run()

	eng := engine.New(cfg, personDetector, recognizer, tracks, attendanceService, snapshots, hub, state)
	eng.Resume()

	log.Printf("Using database: %s", cfg.DatabasePath)
	log.Printf("Storing snapshots in: %s", cfg.SnapshotsDir)
	log.Printf("Face match tolerance: %g", cfg.FaceMatchTolerance)

	r := chi.NewRouter()

	corsOptions := cors.Options{
		AllowedOrigins:   splitOrigins(cfg.CORSOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	corsHandler := cors.New(corsOptions)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsHandler.Handler)

	personHandler := handlers.NewPersonHandler(personService)
	attendanceHandler := handlers.NewAttendanceHandler(attendanceService)
	streamHandler := handlers.NewStreamHandler(eng, hub)
	apiKeyHandler := handlers.NewAPIKeyHandler(apiKeyService)
	systemHandler := handlers.NewSystemHandler(eng, configRepo, logRepo)
	permissionsHandler := handlers.NewPermissionsHandler()

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", systemHandler.Health)

		r.Route("/persons", func(r chi.Router) {
			r.With(handlers.RequirePermission(apiKeyService, "person:write")).Post("/", personHandler.Register)
			r.With(handlers.RequirePermission(apiKeyService, "person:read")).Get("/", personHandler.List)
			r.Route("/{personID}", func(r chi.Router) {
				r.With(handlers.RequirePermission(apiKeyService, "person:read")).Get("/", personHandler.Get)
				r.With(handlers.RequirePermission(apiKeyService, "person:write")).Put("/", personHandler.Update)
				r.With(handlers.RequirePermission(apiKeyService, "person:write")).Delete("/", personHandler.Delete)
				r.With(handlers.RequirePermission(apiKeyService, "person:write")).Post("/faces", personHandler.AddFace)
			})
		})

		r.Route("/faces", func(r chi.Router) {
			r.With(handlers.RequirePermission(apiKeyService, "person:read")).Get("/", personHandler.ListFaces)
			r.With(handlers.RequirePermission(apiKeyService, "person:write")).Delete("/", personHandler.ClearFaces)
		})

		r.Route("/attendance", func(r chi.Router) {
			r.Use(handlers.RequirePermission(apiKeyService, "attendance:read"))
			r.Get("/", attendanceHandler.List)
			r.Get("/{recordID:[0-9]+}", attendanceHandler.Get)
			r.Get("/today", attendanceHandler.Today)
			r.Get("/summary", attendanceHandler.Summary)
			r.Get("/events", attendanceHandler.Events)
			r.With(handlers.RequirePermission(apiKeyService, "attendance:write")).Post("/checkin", attendanceHandler.ManualCheckIn)
			r.Route("/persons/{personID}", func(r chi.Router) {
				r.Get("/", attendanceHandler.History)
				r.With(handlers.RequirePermission(apiKeyService, "attendance:write")).Post("/checkout", attendanceHandler.CheckOut)
			})
		})

		r.Route("/reports", func(r chi.Router) {
			r.Use(handlers.RequirePermission(apiKeyService, "reports:read"))
			r.Get("/", attendanceHandler.RangeReport)
			r.Get("/export", attendanceHandler.Export)
			r.Get("/persons/{personID}", attendanceHandler.PersonReport)
		})

		r.Route("/stream", func(r chi.Router) {
			r.Use(handlers.RequirePermission(apiKeyService, "system:control"))
			r.Post("/start", streamHandler.Start)
			r.Post("/stop", streamHandler.Stop)
			r.Get("/status", streamHandler.Status)
			r.Get("/tracks", streamHandler.Tracks)
			r.Get("/snapshot", streamHandler.Snapshot)
			r.Post("/recognize", streamHandler.Recognize)
			r.Get("/live", streamHandler.MJPEG)
			r.Get("/ws", streamHandler.WS)
		})

		r.Route("/keys", func(r chi.Router) {
			r.Use(handlers.RequirePermission(apiKeyService, "system:keys"))
			r.Post("/", apiKeyHandler.Create)
			r.Get("/", apiKeyHandler.List)
			r.Post("/{keyID}/revoke", apiKeyHandler.Revoke)
			r.Delete("/{keyID}", apiKeyHandler.Delete)
		})

		r.Route("/config", func(r chi.Router) {
			r.With(handlers.RequirePermission(apiKeyService, "config:read")).Get("/", systemHandler.ListConfig)
			r.With(handlers.RequirePermission(apiKeyService, "config:read")).Get("/{key}", systemHandler.GetConfig)
			r.With(handlers.RequirePermission(apiKeyService, "config:write")).Put("/{key}", systemHandler.SetConfig)
		})

		r.With(handlers.RequirePermission(apiKeyService, "logs:read")).Get("/logs", systemHandler.Logs)

		r.Route("/permissions", func(r chi.Router) {
			r.Use(handlers.RequirePermission(apiKeyService, "system:keys"))
			r.Get("/", permissionsHandler.ListDefinedPermissions)
			r.Get("/keys", permissionsHandler.ListDefinedPermissionKeys)
		})

		r.Route("/sync", func(r chi.Router) {
			r.With(handlers.RequirePermission(apiKeyService, "sync:push")).Post("/push", handlers.SyncNotImplemented)
			r.With(handlers.RequirePermission(apiKeyService, "sync:pull")).Post("/pull", handlers.SyncNotImplemented)
		})

		snapshotsSubDir := filepath.Base(cfg.SnapshotsDir)
		r.With(handlers.RequirePermission(apiKeyService, "attendance:read")).
			Get(fmt.Sprintf("/%s/*", snapshotsSubDir), handlers.AssetServer(cfg.DataDir, snapshotsSubDir))
		log.Printf("Registered snapshot server at /api/%s/*", snapshotsSubDir)
	})

	serverAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	fmt.Printf("Server starting on http://localhost:%d\n", cfg.HTTPPort)
	log.Printf("Server listening on %s", serverAddr)
	server := &http.Server{
		Addr:        serverAddr,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("FATAL: HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutdown signal received, stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	eng.Close()
	snapshots.Stop()
	personDetector.Close()
	faceDetector.Close()
	faceEncoder.Close()
	log.Println("Shutdown complete")
}

// bootstrapAdminKey creates a full-access API key on first boot so the
// instance can be administered before any other key exists. The plaintext is
// printed exactly once and never stored.
func bootstrapAdminKey(keys *services.APIKeyService) {
	existing, err := keys.List()
	if err != nil {
		log.Fatalf("FATAL: Failed to list API keys: %v", err)
	}
	if len(existing) > 0 {
		return
	}

	token, _, err := keys.Create("bootstrap-admin", []string{"*"}, 0)
	if err != nil {
		log.Fatalf("FATAL: Failed to create bootstrap API key: %v", err)
	}
	log.Println("auth: no API keys found, created bootstrap admin key")
	fmt.Printf("Bootstrap admin API key (shown once): %s\n", token)
}

func splitOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
