package entity

import (
	"fmt"
	"strings"
	"time"
)

// RecordStatus estado de un registro de inventario. Un registro consolidado
// en otra ubicación queda Inactive con cantidad 0 para conservar su identidad
// y su rastro en el historial.
type RecordStatus string

const (
	StatusActive   RecordStatus = "Active"
	StatusInactive RecordStatus = "Inactive"
)

// RecordKey identifica la ocupación de un SKU en una coordenada física.
// Es la clave lógica de todo el motor: a lo sumo un registro activo por tripleta.
type RecordKey struct {
	SKU       string
	Warehouse Warehouse
	Location  string
}

// String devuelve la forma canónica "SKU|BODEGA|UBICACIÓN".
func (k RecordKey) String() string {
	return k.SKU + "|" + string(k.Warehouse) + "|" + k.Location
}

// IsValid verifica las restricciones estructurales de la clave: SKU no vacío,
// sin espacios ni el separador canónico "|", bodega del enum, ubicación no
// vacía. Sin "|" en el SKU, String y ParseRecordKey son inversos exactos.
func (k RecordKey) IsValid() bool {
	if k.SKU == "" || strings.ContainsAny(k.SKU, " \t\n|") {
		return false
	}
	if !k.Warehouse.IsValid() {
		return false
	}
	return strings.TrimSpace(k.Location) != ""
}

// ParseRecordKey reconstruye una clave desde su forma canónica.
func ParseRecordKey(s string) (RecordKey, error) {
	parts := strings.SplitN(s, "|", 3)
	if len(parts) != 3 {
		return RecordKey{}, fmt.Errorf("clave malformada: %q", s)
	}
	return RecordKey{SKU: parts[0], Warehouse: Warehouse(parts[1]), Location: parts[2]}, nil
}

// InventoryRecord ocupación de un SKU en una ubicación física de bodega.
// Invariante: a lo sumo un registro activo por (sku, bodega, ubicación).
type InventoryRecord struct {
	ID        string
	SKU       string
	Warehouse Warehouse
	Location  string
	Quantity  int
	Note      string
	Status    RecordStatus
	CreatedAt time.Time
}

// Key devuelve la clave lógica del registro.
func (r InventoryRecord) Key() RecordKey {
	return RecordKey{SKU: r.SKU, Warehouse: r.Warehouse, Location: r.Location}
}
