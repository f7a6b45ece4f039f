package entity

// MoveIntent intención de reubicar stock de un registro hacia otra coordenada.
// TargetSKU vacío significa "mismo SKU"; un valor distinto es un renombre y
// puede ser rechazado si colisiona con otro producto en el destino.
type MoveIntent struct {
	Source          InventoryRecord
	TargetSKU       string
	TargetWarehouse Warehouse
	TargetLocation  string
	Quantity        int
}

// EffectiveSKU devuelve el SKU con el que el stock llega al destino.
func (m MoveIntent) EffectiveSKU() string {
	if m.TargetSKU != "" {
		return m.TargetSKU
	}
	return m.Source.SKU
}

// TargetKey clave lógica del destino del movimiento.
func (m MoveIntent) TargetKey() RecordKey {
	return RecordKey{SKU: m.EffectiveSKU(), Warehouse: m.TargetWarehouse, Location: m.TargetLocation}
}

// MoveOutcomeKind forma final que el resolutor decidió para un movimiento.
type MoveOutcomeKind string

const (
	// OutcomeRelocate el registro completo cambia de coordenadas (misma identidad).
	OutcomeRelocate MoveOutcomeKind = "relocate"
	// OutcomeSplit movimiento parcial: el origen se reduce y nace un registro
	// nuevo en el destino con la cantidad movida.
	OutcomeSplit MoveOutcomeKind = "split"
	// OutcomeConsolidate el destino ya tenía el mismo SKU: las cantidades se
	// suman allí y el origen queda en 0 e inactivo.
	OutcomeConsolidate MoveOutcomeKind = "consolidate"
)

// MoveOutcome resultado determinista del resolutor de fusiones. Sus dos
// registros deben aplicarse al almacén como una sola unidad lógica: una
// aplicación parcial es una violación de correctitud.
type MoveOutcome struct {
	Kind MoveOutcomeKind
	// Source estado final del registro origen. En OutcomeRelocate el origen
	// y el destino son el mismo registro (solo cambian sus coordenadas).
	Source InventoryRecord
	// Target estado final del registro destino.
	Target InventoryRecord
	// TargetCreated true si Target es un registro nuevo (no existía).
	TargetCreated bool
}
