package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jhoicas/Inventario-sync/internal/domain"
	"github.com/jhoicas/Inventario-sync/internal/domain/entity"
	"github.com/jhoicas/Inventario-sync/internal/domain/repository"
)

var _ repository.InventoryRepository = (*InventoryRepo)(nil)

// InventoryRepo implementación de InventoryRepository sobre PostgreSQL.
// La tabla inventory tiene un índice único parcial sobre
// (sku, warehouse, location) WHERE status = 'Active': la clave lógica de un
// registro vivo, que es lo que hace idempotente a WriteQuantity.
type InventoryRepo struct {
	pool *pgxpool.Pool
}

// NewInventoryRepository construye el adaptador del almacén de registros.
func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepo {
	return &InventoryRepo{pool: pool}
}

const recordColumns = `id, sku, warehouse, location, quantity, COALESCE(note, ''), status, created_at`

func scanRecord(row pgx.Row) (*entity.InventoryRecord, error) {
	var r entity.InventoryRecord
	err := row.Scan(&r.ID, &r.SKU, &r.Warehouse, &r.Location, &r.Quantity, &r.Note, &r.Status, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ReadRecord lee el registro activo de la clave; (nil, nil) si no existe.
func (r *InventoryRepo) ReadRecord(ctx context.Context, key entity.RecordKey) (*entity.InventoryRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM inventory
		WHERE sku = $1 AND warehouse = $2 AND location = $3 AND status = 'Active'`
	rec, err := scanRecord(r.pool.QueryRow(ctx, query, key.SKU, string(key.Warehouse), key.Location))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read record: %w", mapStoreError(err))
	}
	return rec, nil
}

// FindAtLocation devuelve el ocupante activo de la coordenada, sin importar su
// SKU; (nil, nil) si el slot está vacío.
func (r *InventoryRepo) FindAtLocation(ctx context.Context, warehouse entity.Warehouse, location string) (*entity.InventoryRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM inventory
		WHERE warehouse = $1 AND location = $2 AND status = 'Active'
		LIMIT 1`
	rec, err := scanRecord(r.pool.QueryRow(ctx, query, string(warehouse), location))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find at location: %w", mapStoreError(err))
	}
	return rec, nil
}

// WriteQuantity fija la cantidad absoluta de la clave (upsert idempotente:
// reenviar la misma escritura tras una reanudación es inocuo).
func (r *InventoryRepo) WriteQuantity(ctx context.Context, key entity.RecordKey, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("cantidad %d: %w", quantity, domain.ErrValidationFailed)
	}
	query := `
		INSERT INTO inventory (id, sku, warehouse, location, quantity, note, status, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, '', 'Active', now())
		ON CONFLICT (sku, warehouse, location) WHERE status = 'Active'
		DO UPDATE SET quantity = EXCLUDED.quantity`
	_, err := r.pool.Exec(ctx, query, key.SKU, string(key.Warehouse), key.Location, quantity)
	if err != nil {
		if mapped := mapStoreError(err); errors.Is(mapped, domain.ErrOffline) {
			return mapped
		}
		return fmt.Errorf("write quantity: %w", err)
	}
	return nil
}

// ApplyMove aplica las dos filas de un MoveOutcome como una sola transacción,
// re-verificando dentro de ella que el destino no haya sido ocupado por otro
// SKU entre la resolución y la aplicación.
func (r *InventoryRepo) ApplyMove(ctx context.Context, out entity.MoveOutcome) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", mapStoreError(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Bloquear el origen. Si desapareció, el intento parte de un estado que
	// ya no existe: rechazo terminal.
	var srcQty int
	err = tx.QueryRow(ctx, `SELECT quantity FROM inventory WHERE id = $1 FOR UPDATE`, out.Source.ID).Scan(&srcQty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("el origen del movimiento ya no existe: %w", domain.ErrWriteRejected)
		}
		return fmt.Errorf("lock source: %w", mapStoreError(err))
	}

	// Re-verificar el ocupante del destino bajo lock.
	var occID, occSKU string
	err = tx.QueryRow(ctx, `
		SELECT id, sku FROM inventory
		WHERE warehouse = $1 AND location = $2 AND status = 'Active' AND id <> $3
		FOR UPDATE`,
		string(out.Target.Warehouse), out.Target.Location, out.Source.ID,
	).Scan(&occID, &occSKU)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// Slot libre: válido para reubicación o split. Una consolidación cuyo
		// destino desapareció parte de un estado obsoleto.
		if out.Kind == entity.OutcomeConsolidate {
			return fmt.Errorf("el destino de la consolidación ya no existe: %w", domain.ErrWriteRejected)
		}
	case err != nil:
		return fmt.Errorf("lock target: %w", mapStoreError(err))
	default:
		if occSKU != out.Target.SKU {
			return &domain.RenameConflictError{
				ConflictingSKU: occSKU,
				Warehouse:      string(out.Target.Warehouse),
				Location:       out.Target.Location,
			}
		}
		if out.Kind != entity.OutcomeConsolidate || occID != out.Target.ID {
			// Apareció stock del mismo SKU que la resolución no contempló.
			return fmt.Errorf("el destino cambió desde la resolución: %w", domain.ErrWriteRejected)
		}
	}

	if err := writeRecordTx(ctx, tx, out.Source, false); err != nil {
		return err
	}
	if out.Kind != entity.OutcomeRelocate {
		if err := writeRecordTx(ctx, tx, out.Target, out.TargetCreated); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", mapStoreError(err))
	}
	return nil
}

// writeRecordTx escribe el estado final de una fila del movimiento dentro de
// la transacción: INSERT para registros recién nacidos, UPDATE por id para el
// resto (la identidad del registro nunca cambia al moverse).
func writeRecordTx(ctx context.Context, q Querier, rec entity.InventoryRecord, created bool) error {
	if created {
		_, err := q.Exec(ctx, `
			INSERT INTO inventory (id, sku, warehouse, location, quantity, note, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			rec.ID, rec.SKU, string(rec.Warehouse), rec.Location, rec.Quantity, rec.Note, string(rec.Status), rec.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("el destino ya tiene un registro activo: %w", domain.ErrWriteRejected)
			}
			return fmt.Errorf("insert record: %w", mapStoreError(err))
		}
		return nil
	}
	tag, err := q.Exec(ctx, `
		UPDATE inventory
		SET sku = $2, warehouse = $3, location = $4, quantity = $5, note = $6, status = $7
		WHERE id = $1`,
		rec.ID, rec.SKU, string(rec.Warehouse), rec.Location, rec.Quantity, rec.Note, string(rec.Status),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("el destino ya tiene un registro activo: %w", domain.ErrWriteRejected)
		}
		return fmt.Errorf("update record: %w", mapStoreError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("registro %s desapareció: %w", rec.ID, domain.ErrWriteRejected)
	}
	return nil
}

// ListActive carga todos los registros activos en el orden del tablero
// (bodega descendente para que LUDLOW preceda a ATS, luego ubicación y SKU).
func (r *InventoryRepo) ListActive(ctx context.Context) ([]entity.InventoryRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM inventory
		WHERE status = 'Active'
		ORDER BY warehouse DESC, location ASC, sku ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active: %w", mapStoreError(err))
	}
	defer rows.Close()

	var records []entity.InventoryRecord
	for rows.Next() {
		var rec entity.InventoryRecord
		if err := rows.Scan(&rec.ID, &rec.SKU, &rec.Warehouse, &rec.Location, &rec.Quantity, &rec.Note, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active: %w", mapStoreError(err))
	}
	return records, nil
}
