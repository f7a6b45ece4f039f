package repository

import (
	"context"

	"github.com/jhoicas/Inventario-sync/internal/domain/entity"
)

// MovementLogRepository historial de auditoría de operaciones confirmadas.
type MovementLogRepository interface {
	Create(ctx context.Context, log *entity.MovementLog) error
	// ListRecent devuelve los últimos movimientos, del más nuevo al más viejo.
	ListRecent(ctx context.Context, limit int) ([]entity.MovementLog, error)
}
