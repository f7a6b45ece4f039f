package repository

import (
	"context"
	"time"

	"github.com/jhoicas/Inventario-sync/internal/domain/entity"
)

// MutationLogRepository bitácora durable de mutaciones pendientes. Debe
// sobrevivir reinicios del proceso: es la única fuente de verdad de lo que
// hay que reanudar tras un arranque o una reconexión.
type MutationLogRepository interface {
	// Persist escribe (o reescribe) la mutación. Debe completarse antes de
	// emitir la llamada de red para garantizar entrega at-least-once aunque
	// el proceso muera inmediatamente después.
	Persist(ctx context.Context, m *entity.PendingMutation) error
	// RestoreAll devuelve toda mutación en estado no terminal dejada por una
	// sesión anterior, en orden de creación.
	RestoreAll(ctx context.Context) ([]entity.PendingMutation, error)
	// MarkConfirmed elimina la entrada: el almacén aceptó la escritura.
	MarkConfirmed(ctx context.Context, id string) error
	// MarkFailed elimina la entrada tras el rollback de la vista.
	MarkFailed(ctx context.Context, id string) error
	// PruneStale descarta entradas más viejas que el umbral (ventana de
	// retención); devuelve cuántas eliminó.
	PruneStale(ctx context.Context, olderThan time.Time) (int, error)
}
