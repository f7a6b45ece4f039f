package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/Inventario-sync/internal/application/dto"
	appsync "github.com/jhoicas/Inventario-sync/internal/application/sync"
	"github.com/jhoicas/Inventario-sync/internal/domain"
	"github.com/jhoicas/Inventario-sync/internal/domain/entity"
	"github.com/jhoicas/Inventario-sync/internal/domain/repository"
)

// SyncHandler maneja las peticiones HTTP del motor de sincronización.
type SyncHandler struct {
	engine *appsync.Engine
	audit  repository.MovementLogRepository
}

// NewSyncHandler construye el handler.
func NewSyncHandler(engine *appsync.Engine, audit repository.MovementLogRepository) *SyncHandler {
	return &SyncHandler{engine: engine, audit: audit}
}

// Delta registra un ajuste de cantidad. Responde con el valor visible ya
// actualizado: la escritura al almacén viaja por detrás, coalescida.
func (h *SyncHandler) Delta(c *fiber.Ctx) error {
	var in dto.DeltaRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	key := in.Key()
	if err := h.engine.SubmitDelta(c.Context(), key, in.Delta, in.PerformedBy); err != nil {
		return mapEngineError(c, err)
	}
	rec, _ := h.engine.Visible(key)
	return c.Status(fiber.StatusAccepted).JSON(dto.FromRecord(rec))
}

// Move encola una intención de reubicación. Un conflicto de renombre se
// rechaza aquí mismo, sin tocar el almacén.
func (h *SyncHandler) Move(c *fiber.Ctx) error {
	var in dto.MoveRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	srcKey := entity.RecordKey{SKU: in.SKU, Warehouse: entity.Warehouse(in.Warehouse), Location: in.Location}
	src, ok := h.engine.Visible(srcKey)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "registro origen no encontrado"})
	}
	intent := entity.MoveIntent{
		Source:          src,
		TargetSKU:       in.TargetSKU,
		TargetWarehouse: entity.Warehouse(in.TargetWarehouse),
		TargetLocation:  in.TargetLocation,
		Quantity:        in.Quantity,
	}
	if err := h.engine.SubmitMove(c.Context(), intent, in.PerformedBy); err != nil {
		return mapEngineError(c, err)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

// CreateRecord da de alta un registro (o suma sobre el existente en la misma
// coordenada).
func (h *SyncHandler) CreateRecord(c *fiber.Ctx) error {
	var in dto.CreateRecordRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	rec := entity.InventoryRecord{
		SKU:       in.SKU,
		Warehouse: entity.Warehouse(in.Warehouse),
		Location:  in.Location,
		Quantity:  in.Quantity,
		Note:      in.Note,
	}
	if err := h.engine.CreateRecord(c.Context(), rec, in.PerformedBy); err != nil {
		return mapEngineError(c, err)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

// Notify atiende el broadcast "algo cambió" del almacén.
func (h *SyncHandler) Notify(c *fiber.Ctx) error {
	var in dto.NotifyRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	key := in.Key()
	if !key.IsValid() {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "clave inválida"})
	}
	if err := h.engine.Invalidate(c.Context(), key); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Connectivity registra la transición online/offline reportada por el cliente.
func (h *SyncHandler) Connectivity(c *fiber.Ctx) error {
	var in dto.ConnectivityRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	h.engine.SetOnline(in.Online)
	return c.SendStatus(fiber.StatusNoContent)
}

// View devuelve la vista visible completa (valores optimistas).
func (h *SyncHandler) View(c *fiber.Ctx) error {
	records := h.engine.Records()
	out := dto.ViewResponse{
		Records: make([]dto.RecordResponse, 0, len(records)),
		Pending: h.engine.PendingCount(),
	}
	for _, r := range records {
		out.Records = append(out.Records, dto.FromRecord(r))
	}
	return c.JSON(out)
}

// Logs devuelve el historial de movimientos confirmados.
func (h *SyncHandler) Logs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit > 200 {
		limit = 200
	}
	logs, err := h.audit.ListRecent(c.Context(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	out := make([]dto.MovementLogResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, dto.FromMovementLog(l))
	}
	return c.JSON(out)
}

// mapEngineError traduce errores del motor a la respuesta HTTP.
func mapEngineError(c *fiber.Ctx, err error) error {
	var conflict *domain.RenameConflictError
	switch {
	case errors.Is(err, domain.ErrValidationFailed):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: err.Error()})
	case errors.As(err, &conflict):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "RENAME_CONFLICT", Message: conflict.Error()})
	case errors.Is(err, domain.ErrWriteRejected):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "WRITE_REJECTED", Message: err.Error()})
	case errors.Is(err, domain.ErrOffline):
		// Offline no es un fallo: la mutación quedó retenida y se reanudará.
		return c.SendStatus(fiber.StatusAccepted)
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
}
