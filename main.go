package main

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"sapa/internal/config"
	"sapa/internal/handlers"
	"sapa/internal/media"
	"sapa/internal/routes"
	"sapa/internal/store"
	"sapa/internal/store/memory"
	"sapa/internal/store/postgres"
	"sapa/internal/store/sqlite"
	"sapa/internal/ws"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"
)

func openStore(cfg config.Config) (store.Store, func(), error) {
	switch cfg.StoreDriver {
	case "sqlite":
		st, err := sqlite.New(cfg.SQLiteDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := st.Migrate(filepath.Join(cfg.SchemaDir, "sqlite_schema.sql")); err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	case "memory":
		return memory.New(), func() {}, nil
	default:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		st, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := st.Migrate(ctx, filepath.Join(cfg.SchemaDir, "postgres_schema.sql")); err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.MustLoad()
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	st, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open store (%s): %v", cfg.StoreDriver, err)
	}
	defer closeStore()

	hub := ws.NewHub(st)
	go hub.Run()

	app := fiber.New(fiber.Config{
		AppName: "Sapa API v1.0",
	})
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowCredentials: true,
	}))

	tokenTTL := time.Duration(cfg.JWTTTLMin) * time.Minute
	mediaStore := media.NewStore(cfg.UploadDir)

	routes.Setup(app, routes.Deps{
		Auth:      &handlers.AuthService{Store: st, JWTSecret: cfg.JWTSecret, TokenTTL: tokenTTL},
		Messages:  &handlers.MessageService{Store: st, Hub: hub, Media: mediaStore},
		WS:        &handlers.WSService{Hub: hub},
		Media:     &handlers.MediaService{Media: mediaStore},
		JWTSecret: cfg.JWTSecret,
	})

	log.Printf("Server starting on %s (store: %s)", cfg.Addr, cfg.StoreDriver)
	if err := app.Listen(cfg.Addr); err != nil {
		log.Fatal(err)
	}
}
