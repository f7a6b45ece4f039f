package http

import (
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appsync "github.com/jhoicas/Inventario-sync/internal/application/sync"
	"github.com/jhoicas/Inventario-sync/internal/domain/repository"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Engine     *appsync.Engine
	Audit      repository.MovementLogRepository
	Registry   *prometheus.Registry
	AppVersion string
}

// Router registra las rutas del agente.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	syncGroup := api.Group("/sync")
	syncHandler := NewSyncHandler(deps.Engine, deps.Audit)
	syncGroup.Post("/delta", syncHandler.Delta)
	syncGroup.Post("/moves", syncHandler.Move)
	syncGroup.Post("/records", syncHandler.CreateRecord)
	syncGroup.Post("/notify", syncHandler.Notify)
	syncGroup.Post("/connectivity", syncHandler.Connectivity)
	syncGroup.Get("/view", syncHandler.View)
	syncGroup.Get("/logs", syncHandler.Logs)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"version": deps.AppVersion,
			"pending": deps.Engine.PendingCount(),
		})
	})

	if deps.Registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}
}
