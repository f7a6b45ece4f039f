package entity

// Warehouse identifica una de las bodegas físicas fijas del sistema.
// El conteo maneja exactamente dos: LUDLOW y ATS.
type Warehouse string

const (
	WarehouseLudlow Warehouse = "LUDLOW"
	WarehouseATS    Warehouse = "ATS"
)

// IsValid indica si el valor pertenece al enum de bodegas.
func (w Warehouse) IsValid() bool {
	return w == WarehouseLudlow || w == WarehouseATS
}
