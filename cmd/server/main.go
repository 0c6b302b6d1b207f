package main

import (
	"log"

	"quickbite/backend/internal/config"
	"quickbite/backend/internal/db"
	"quickbite/backend/internal/handler"
	"quickbite/backend/internal/hub"
	"quickbite/backend/internal/repository"
	"quickbite/backend/internal/router"
	"quickbite/backend/internal/service"
	"quickbite/backend/migrations"
)

func main() {
	cfg := config.Load()

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database, migrations.FS); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	userRepo := repository.NewUserRepository(database)
	orderRepo := repository.NewOrderRepository(database)

	pushHub := hub.New(log.Default())
	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.TokenTTL)
	orderService := service.NewOrderService(orderRepo, pushHub)

	authHandler := handler.NewAuthHandler(authService)
	orderHandler := handler.NewOrderHandler(orderService)

	engine := router.New(authService, authHandler, orderHandler, pushHub, cfg.CORSOrigins)
	log.Printf("backend listening on :%s", cfg.Port)
	if err := engine.Run(":" + cfg.Port); err != nil {
		log.Fatalf("run server: %v", err)
	}
}
