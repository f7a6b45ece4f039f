package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jhoicas/Inventario-sync/internal/domain/entity"
	"github.com/jhoicas/Inventario-sync/internal/domain/repository"
)

var _ repository.MovementLogRepository = (*MovementLogRepo)(nil)

// MovementLogRepo historial de movimientos confirmados sobre PostgreSQL.
type MovementLogRepo struct {
	pool *pgxpool.Pool
}

// NewMovementLogRepository construye el adaptador del historial.
func NewMovementLogRepository(pool *pgxpool.Pool) *MovementLogRepo {
	return &MovementLogRepo{pool: pool}
}

// Create inserta una fila de auditoría.
func (r *MovementLogRepo) Create(ctx context.Context, log *entity.MovementLog) error {
	query := `
		INSERT INTO inventory_logs (
			id, sku, from_warehouse, from_location, to_warehouse, to_location,
			quantity, prev_quantity, new_quantity, action, performed_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.pool.Exec(ctx, query,
		log.ID, log.SKU, log.FromWarehouse, log.FromLocation, log.ToWarehouse, log.ToLocation,
		log.Quantity, log.PrevQuantity, log.NewQuantity, string(log.Action), log.PerformedBy, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create movement log: %w", mapStoreError(err))
	}
	return nil
}

// ListRecent devuelve las últimas filas del historial, más reciente primero.
func (r *MovementLogRepo) ListRecent(ctx context.Context, limit int) ([]entity.MovementLog, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, sku, COALESCE(from_warehouse, ''), COALESCE(from_location, ''),
		       COALESCE(to_warehouse, ''), COALESCE(to_location, ''),
		       quantity, prev_quantity, new_quantity, action, performed_by, created_at
		FROM inventory_logs
		ORDER BY created_at DESC
		LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list movement logs: %w", mapStoreError(err))
	}
	defer rows.Close()

	var logs []entity.MovementLog
	for rows.Next() {
		var l entity.MovementLog
		if err := rows.Scan(
			&l.ID, &l.SKU, &l.FromWarehouse, &l.FromLocation, &l.ToWarehouse, &l.ToLocation,
			&l.Quantity, &l.PrevQuantity, &l.NewQuantity, &l.Action, &l.PerformedBy, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan movement log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list movement logs: %w", mapStoreError(err))
	}
	return logs, nil
}
