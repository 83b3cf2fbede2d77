package main

import (
	"context"
	"log"
	"os"
	"time"

	"nutriplan/internal/api"
	"nutriplan/internal/auth"
	"nutriplan/internal/config"
	"nutriplan/internal/mailer"
	"nutriplan/internal/redis"
	"nutriplan/internal/service/ai"
	"nutriplan/internal/service/planner"
	"nutriplan/internal/storage"
	"nutriplan/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfgPath := os.Getenv("NUTRIPLAN_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("NUTRIPLAN_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	// redis is an optional cache; the auth service falls back to the
	// database without it
	var cache *redis.Client
	if cfg.Redis.Host != "" {
		cache, err = redis.NewClient(cfg.Redis)
		if err != nil {
			log.Printf("redis unavailable, continuing without cache: %v", err)
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	jwtSecret := os.Getenv("NUTRIPLAN_JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("NUTRIPLAN_JWT_SECRET must be set")
	}

	plannerService := planner.NewService(db)
	authService := auth.NewService(db, cache, []byte(jwtSecret),
		time.Duration(cfg.BasicConfig.AccessTokenTTL)*time.Minute,
		time.Duration(cfg.BasicConfig.RefreshTokenTTL)*time.Hour,
	)

	var resetMailer api.ResetMailer
	if m, err := mailer.New(context.Background()); err != nil {
		log.Printf("mailer unavailable, password reset mail disabled: %v", err)
	} else {
		resetMailer = m
	}

	cleanCtx, cleanCancel := context.WithCancel(context.Background())
	defer cleanCancel()
	cleanInterval := time.Duration(cfg.BasicConfig.AttachmentCleanInterval) * time.Minute
	plannerService.StartAttachmentCleaner(cleanCtx, cleanInterval)

	manager := worker.NewManager(plannerService,
		func(provider, model string) (worker.Completer, error) {
			return ai.NewClient(cfg.Providers, provider, model)
		},
		worker.Config{
			MinWorkers:        cfg.BasicConfig.MinWorkers,
			MaxWorkers:        cfg.BasicConfig.MaxWorkers,
			QueueSize:         cfg.BasicConfig.QueueSize,
			IdleTimeout:       time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
			CompletionTimeout: time.Duration(cfg.BasicConfig.CompletionTimeout) * time.Second,
		},
	)

	fileBase := cfg.BasicConfig.FileBaseDir
	if fileBase == "" {
		fileBase = "./data/uploads"
	}
	fileTTL := time.Duration(cfg.BasicConfig.AttachmentTTL) * time.Minute
	if fileTTL <= 0 {
		fileTTL = planner.DefaultAttachmentTTL
	}

	handlers := api.NewHandler(plannerService, authService, manager, resetMailer,
		fileBase, fileTTL, cfg.BasicConfig.DefaultProvider)

	router := gin.Default()
	router.Use(authService.Identify())
	handlers.RegisterRoutes(router)
	handlers.RegisterPages(router, cfg.BasicConfig.WebRoot)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
