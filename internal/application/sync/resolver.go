package sync

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/Inventario-sync/internal/domain"
	"github.com/jhoicas/Inventario-sync/internal/domain/entity"
)

// MergeResolver decide la forma final de un movimiento cuando el destino ya
// tiene stock. Reglas de precedencia fijas:
//
//  1. Destino vacío: reubicación plana (la identidad del registro viaja; en
//     movimientos parciales el origen se reduce y nace un registro nuevo).
//  2. Destino ocupado por OTRO SKU: rechazo con RenameConflictError; nunca se
//     pisa el slot de otro producto.
//  3. Destino ocupado por el MISMO SKU: consolidación — las cantidades se
//     suman en el destino, las notas no vacías se concatenan con " | " (una
//     nota entrante en blanco jamás pisa una existente), y el origen queda en
//     cantidad 0 e inactivo para conservar identidad e historial.
//
// El resolutor es puro respecto al almacén: calcula el resultado y el
// controlador lo aplica como una sola unidad lógica.
type MergeResolver struct{}

// NewMergeResolver construye el resolutor.
func NewMergeResolver() *MergeResolver {
	return &MergeResolver{}
}

// Resolve computa el resultado determinista del movimiento dado el ocupante
// actual del destino (nil si el slot está vacío).
func (r *MergeResolver) Resolve(intent entity.MoveIntent, occupant *entity.InventoryRecord) (entity.MoveOutcome, error) {
	src := intent.Source
	if intent.Quantity <= 0 || intent.Quantity > src.Quantity {
		return entity.MoveOutcome{}, fmt.Errorf("cantidad a mover %d fuera de rango (origen %d): %w",
			intent.Quantity, src.Quantity, domain.ErrValidationFailed)
	}
	if !intent.TargetWarehouse.IsValid() || strings.TrimSpace(intent.TargetLocation) == "" {
		return entity.MoveOutcome{}, fmt.Errorf("destino inválido: %w", domain.ErrValidationFailed)
	}
	if occupant != nil && occupant.ID == src.ID {
		return entity.MoveOutcome{}, fmt.Errorf("el destino es el propio origen: %w", domain.ErrValidationFailed)
	}

	sku := intent.EffectiveSKU()

	// Slot vacío: reubicación plana.
	if occupant == nil {
		if intent.Quantity == src.Quantity {
			moved := src
			moved.SKU = sku
			moved.Warehouse = intent.TargetWarehouse
			moved.Location = intent.TargetLocation
			return entity.MoveOutcome{Kind: entity.OutcomeRelocate, Source: moved, Target: moved}, nil
		}
		rest := src
		rest.Quantity -= intent.Quantity
		created := entity.InventoryRecord{
			ID:        uuid.New().String(),
			SKU:       sku,
			Warehouse: intent.TargetWarehouse,
			Location:  intent.TargetLocation,
			Quantity:  intent.Quantity,
			Note:      src.Note,
			Status:    entity.StatusActive,
			CreatedAt: time.Now(),
		}
		return entity.MoveOutcome{Kind: entity.OutcomeSplit, Source: rest, Target: created, TargetCreated: true}, nil
	}

	// Slot ocupado por otro producto: rechazo, cero escrituras.
	if occupant.SKU != sku {
		return entity.MoveOutcome{}, &domain.RenameConflictError{
			ConflictingSKU: occupant.SKU,
			Warehouse:      string(intent.TargetWarehouse),
			Location:       intent.TargetLocation,
		}
	}

	// Mismo SKU: consolidación. El origen no se borra: queda en 0 e inactivo
	// para que el historial pueda seguir apuntando a su identidad.
	target := *occupant
	target.Quantity += intent.Quantity
	target.Note = mergeNotes(occupant.Note, src.Note)
	zeroed := src
	zeroed.Quantity = 0
	zeroed.Status = entity.StatusInactive
	return entity.MoveOutcome{Kind: entity.OutcomeConsolidate, Source: zeroed, Target: target}, nil
}

// mergeNotes concatena notas no vacías con " | ". La nota existente siempre
// gana frente a una entrante en blanco.
func mergeNotes(existing, incoming string) string {
	ex := strings.TrimSpace(existing)
	in := strings.TrimSpace(incoming)
	switch {
	case in == "":
		return ex
	case ex == "":
		return in
	default:
		return ex + " | " + in
	}
}
