package dto

import (
	"time"

	"github.com/jhoicas/Inventario-sync/internal/domain/entity"
)

// DeltaRequest ajuste de cantidad sobre una clave (coalescible).
type DeltaRequest struct {
	SKU         string `json:"sku"`
	Warehouse   string `json:"warehouse"`
	Location    string `json:"location"`
	Delta       int    `json:"delta"`
	PerformedBy string `json:"performed_by"`
}

// Key devuelve la clave lógica de la petición.
func (r DeltaRequest) Key() entity.RecordKey {
	return entity.RecordKey{SKU: r.SKU, Warehouse: entity.Warehouse(r.Warehouse), Location: r.Location}
}

// MoveRequest intención de reubicar stock hacia otra coordenada.
// target_sku vacío significa "mismo SKU"; un valor distinto es un renombre.
type MoveRequest struct {
	SKU             string `json:"sku"`
	Warehouse       string `json:"warehouse"`
	Location        string `json:"location"`
	TargetSKU       string `json:"target_sku"`
	TargetWarehouse string `json:"target_warehouse"`
	TargetLocation  string `json:"target_location"`
	Quantity        int    `json:"quantity"`
	PerformedBy     string `json:"performed_by"`
}

// CreateRecordRequest alta de un registro de inventario.
type CreateRecordRequest struct {
	SKU         string `json:"sku"`
	Warehouse   string `json:"warehouse"`
	Location    string `json:"location"`
	Quantity    int    `json:"quantity"`
	Note        string `json:"note"`
	PerformedBy string `json:"performed_by"`
}

// NotifyRequest señal opaca "algo cambió" sobre una clave (broadcast del
// canal de notificaciones del almacén).
type NotifyRequest struct {
	SKU       string `json:"sku"`
	Warehouse string `json:"warehouse"`
	Location  string `json:"location"`
}

// Key devuelve la clave lógica de la señal.
func (r NotifyRequest) Key() entity.RecordKey {
	return entity.RecordKey{SKU: r.SKU, Warehouse: entity.Warehouse(r.Warehouse), Location: r.Location}
}

// ConnectivityRequest transición de conectividad reportada por el cliente.
type ConnectivityRequest struct {
	Online bool `json:"online"`
}

// RecordResponse registro tal como lo ve el operador (valor optimista).
type RecordResponse struct {
	ID        string    `json:"id"`
	SKU       string    `json:"sku"`
	Warehouse string    `json:"warehouse"`
	Location  string    `json:"location"`
	Quantity  int       `json:"quantity"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FromRecord convierte la entidad a su respuesta.
func FromRecord(r entity.InventoryRecord) RecordResponse {
	return RecordResponse{
		ID:        r.ID,
		SKU:       r.SKU,
		Warehouse: string(r.Warehouse),
		Location:  r.Location,
		Quantity:  r.Quantity,
		Note:      r.Note,
		CreatedAt: r.CreatedAt,
	}
}

// ViewResponse vista visible completa más el número de mutaciones pendientes.
type ViewResponse struct {
	Records []RecordResponse `json:"records"`
	Pending int              `json:"pending"`
}

// MovementLogResponse fila del historial de movimientos.
type MovementLogResponse struct {
	ID            string    `json:"id"`
	SKU           string    `json:"sku"`
	FromWarehouse string    `json:"from_warehouse,omitempty"`
	FromLocation  string    `json:"from_location,omitempty"`
	ToWarehouse   string    `json:"to_warehouse,omitempty"`
	ToLocation    string    `json:"to_location,omitempty"`
	Quantity      int       `json:"quantity"`
	PrevQuantity  int       `json:"prev_quantity"`
	NewQuantity   int       `json:"new_quantity"`
	Action        string    `json:"action"`
	PerformedBy   string    `json:"performed_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// FromMovementLog convierte la entidad a su respuesta.
func FromMovementLog(l entity.MovementLog) MovementLogResponse {
	return MovementLogResponse{
		ID:            l.ID,
		SKU:           l.SKU,
		FromWarehouse: l.FromWarehouse,
		FromLocation:  l.FromLocation,
		ToWarehouse:   l.ToWarehouse,
		ToLocation:    l.ToLocation,
		Quantity:      l.Quantity,
		PrevQuantity:  l.PrevQuantity,
		NewQuantity:   l.NewQuantity,
		Action:        string(l.Action),
		PerformedBy:   l.PerformedBy,
		CreatedAt:     l.CreatedAt,
	}
}
