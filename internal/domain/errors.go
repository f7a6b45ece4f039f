package domain

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
var (
	// ErrValidationFailed clave o cantidad malformada; error del llamador,
	// nunca se reintenta.
	ErrValidationFailed = errors.New("validación fallida: clave o cantidad inválida")
	// ErrWriteRejected el almacén rechazó la escritura (p. ej. el registro
	// desapareció); no se reintenta, dispara rollback.
	ErrWriteRejected = errors.New("escritura rechazada por el almacén")
	// ErrOffline el almacén no está alcanzable; no es terminal: la mutación
	// queda pendiente y se reanuda al reconectar.
	ErrOffline = errors.New("sin conexión con el almacén")
	// ErrNotFound registro inexistente para la clave indicada.
	ErrNotFound = errors.New("registro no encontrado")
)

// RenameConflictError rechazo de regla de negocio: el destino de un
// movimiento ya está ocupado por un producto distinto. Nunca se pisa el
// slot de otro SKU en silencio.
type RenameConflictError struct {
	ConflictingSKU string
	Warehouse      string
	Location       string
}

func (e *RenameConflictError) Error() string {
	return fmt.Sprintf("conflicto de renombre: %q ya ocupa %s/%s", e.ConflictingSKU, e.Warehouse, e.Location)
}
