package entity

import "time"

// MovementAction tipo de acción registrada en el historial de movimientos.
type MovementAction string

const (
	ActionAdd    MovementAction = "ADD"
	ActionDeduct MovementAction = "DEDUCT"
	ActionMove   MovementAction = "MOVE"
	ActionEdit   MovementAction = "EDIT"
)

// MovementLog fila de auditoría de una operación confirmada por el almacén.
// Los campos From/To vacíos significan "no aplica" (p. ej. un ajuste de
// cantidad no tiene destino).
type MovementLog struct {
	ID            string
	SKU           string
	FromWarehouse string
	FromLocation  string
	ToWarehouse   string
	ToLocation    string
	Quantity      int
	PrevQuantity  int
	NewQuantity   int
	Action        MovementAction
	PerformedBy   string
	CreatedAt     time.Time
}
