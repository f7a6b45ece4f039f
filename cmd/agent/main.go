package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	appsync "github.com/jhoicas/Inventario-sync/internal/application/sync"
	"github.com/jhoicas/Inventario-sync/internal/domain/entity"
	"github.com/jhoicas/Inventario-sync/internal/infrastructure/postgres"
	"github.com/jhoicas/Inventario-sync/internal/infrastructure/sqlitelog"
	httpRouter "github.com/jhoicas/Inventario-sync/internal/interfaces/http"
	"github.com/jhoicas/Inventario-sync/pkg/config"
	"github.com/jhoicas/Inventario-sync/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando agente de sincronización")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("configuración de PostgreSQL")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		// Arrancar sin conexión es un modo soportado, no un fallo: todo lo
		// pendiente queda retenido hasta que el almacén vuelva.
		log.Warn().Err(err).Msg("almacén inalcanzable en el arranque; se continúa offline")
	}

	inventoryRepo := postgres.NewInventoryRepository(pool)
	movementRepo := postgres.NewMovementLogRepository(pool)

	mutationLog, err := sqlitelog.Open(cfg.Sync.LogPath)
	if err != nil {
		log.Fatal().Err(err).Msg("abrir bitácora de mutaciones")
	}
	defer mutationLog.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := appsync.NewMetrics(registry)

	engine := appsync.NewEngine(appsync.Config{
		Debounce:  cfg.Sync.Debounce(),
		Retention: cfg.Sync.Retention(),
		Operator:  cfg.Sync.OperatorName,
	}, inventoryRepo, mutationLog, movementRepo, log, metrics)
	engine.OnError(func(key entity.RecordKey, err error) {
		log.Error().Err(err).Str("key", key.String()).Msg("mutación revertida")
	})
	if err := engine.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("arrancar motor de sincronización")
	}
	defer engine.Close()

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	httpRouter.Router(app, httpRouter.RouterDeps{
		Engine:     engine,
		Audit:      movementRepo,
		Registry:   registry,
		AppVersion: cfg.App.Name,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("apagando agente")
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Error().Err(err).Msg("apagado del servidor HTTP")
	}
}
