package repository

import (
	"context"

	"github.com/jhoicas/Inventario-sync/internal/domain/entity"
)

// InventoryRepository API de petición/respuesta del almacén de registros
// externo (fuertemente consistente, indexado por (sku, bodega, ubicación)).
// El motor lo consume tal cual: nunca implementa el almacenamiento en sí.
type InventoryRepository interface {
	// ReadRecord lee el registro activo de la clave; (nil, nil) si no existe.
	ReadRecord(ctx context.Context, key entity.RecordKey) (*entity.InventoryRecord, error)
	// FindAtLocation devuelve el ocupante activo de una coordenada física,
	// sin importar su SKU; (nil, nil) si el slot está vacío.
	FindAtLocation(ctx context.Context, warehouse entity.Warehouse, location string) (*entity.InventoryRecord, error)
	// WriteQuantity fija la cantidad absoluta de la clave. Es un upsert
	// idempotente por clave: reenviar la misma escritura es inocuo, lo que
	// habilita la entrega at-least-once tras una reanudación.
	WriteQuantity(ctx context.Context, key entity.RecordKey, quantity int) error
	// ApplyMove aplica las dos filas de un MoveOutcome como una sola
	// transacción. Devuelve RenameConflictError si el destino quedó ocupado
	// por otro SKU entre la resolución y la aplicación.
	ApplyMove(ctx context.Context, out entity.MoveOutcome) error
	// ListActive carga todos los registros activos (vista inicial).
	ListActive(ctx context.Context) ([]entity.InventoryRecord, error)
}
