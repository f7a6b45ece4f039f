package entity

import "time"

// MutationKind clase de intención pendiente.
type MutationKind string

const (
	// MutationDelta ajuste acumulado de cantidad sobre una clave.
	MutationDelta MutationKind = "delta"
	// MutationMove reubicación (total o parcial) hacia otra coordenada.
	MutationMove MutationKind = "move"
	// MutationCreate alta de un registro que aún no existe en el almacén.
	MutationCreate MutationKind = "create"
	// MutationRenameReject movimiento con cambio de SKU, susceptible de
	// rechazo por colisión con otro producto en el destino.
	MutationRenameReject MutationKind = "rename-reject"
)

// DispatchState estado del ciclo de vida de una mutación pendiente.
type DispatchState string

const (
	// StateBuffering acumulando ediciones dentro de la ventana de coalescencia.
	StateBuffering DispatchState = "buffering"
	// StateInFlight escritura emitida al almacén, sin respuesta todavía.
	StateInFlight DispatchState = "inFlight"
	// StatePaused retenida por falta de conexión; se reanuda al reconectar.
	StatePaused DispatchState = "paused"
	// StateConfirmed el almacén aceptó la escritura (estado terminal).
	StateConfirmed DispatchState = "confirmed"
	// StateFailed rechazo terminal; la vista ya fue revertida al snapshot.
	StateFailed DispatchState = "failed"
)

// Terminal indica si el estado cierra el ciclo de vida de la mutación.
func (s DispatchState) Terminal() bool {
	return s == StateConfirmed || s == StateFailed
}

// PendingMutation intención de escritura pendiente sobre una clave.
// El controlador de reconciliación es su único dueño: la crea en la primera
// edición, el coalescedor la engorda mientras está en buffering, y se destruye
// al confirmarse o al revertirse tras un fallo.
type PendingMutation struct {
	ID               string
	Key              RecordKey
	Kind             MutationKind
	AccumulatedDelta int
	// Snapshot valor del registro antes de la primera aplicación optimista
	// del lote. Es la referencia exacta del rollback. Nil para altas.
	Snapshot *InventoryRecord
	// Move intención de reubicación; solo para move / rename-reject.
	Move *MoveIntent
	// TargetSnapshot valor del ocupante del destino antes de la aplicación
	// optimista de un movimiento. Nil si el slot estaba vacío. Permite que el
	// rollback deshaga las dos filas del intento, no solo una.
	TargetSnapshot *InventoryRecord
	// PerformedBy operador que originó la edición (para el historial).
	PerformedBy string
	State       DispatchState
	CreatedAt   time.Time
}
