package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/Inventario-sync/internal/domain"
	"github.com/jhoicas/Inventario-sync/internal/domain/entity"
)

// SubmitDelta acumula un ajuste de cantidad sobre la clave dentro de la
// ventana de coalescencia. Cada llamada re-arma la ventana completa: solo el
// último disparo programado ejecuta, una llamada intermedia nunca dispara
// antes de tiempo. La vista refleja snapshot + acumulado inmediatamente, sin
// esperar a la ventana ni al almacén.
//
// La mutación se persiste en la bitácora local desde la primera pulsación:
// una edición bufferizada sobrevive el cierre del proceso aunque la ventana
// no haya vencido.
func (e *Engine) SubmitDelta(ctx context.Context, key entity.RecordKey, delta int, performedBy string) error {
	if delta == 0 {
		return domain.ErrValidationFailed
	}
	if !key.IsValid() {
		return domain.ErrValidationFailed
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return domain.ErrWriteRejected
	}

	ks := key.String()
	b := e.buffers[ks]
	if b == nil {
		rec, ok := e.view.Get(key)
		if !ok {
			return domain.ErrNotFound
		}
		// El snapshot se toma del valor visible en la PRIMERA edición del
		// lote; las siguientes solo engordan el acumulado.
		snap := rec
		b = &buffer{mutation: &entity.PendingMutation{
			ID:          uuid.New().String(),
			Key:         key,
			Kind:        entity.MutationDelta,
			Snapshot:    &snap,
			PerformedBy: e.operator(performedBy),
			State:       entity.StateBuffering,
			CreatedAt:   time.Now(),
		}}
		e.buffers[ks] = b
	}
	m := b.mutation
	m.AccumulatedDelta += delta
	if performedBy != "" {
		m.PerformedBy = performedBy
	}

	e.persistLocked(m)

	// El valor visible no se acota: el conteo puede pasar por negativo
	// mientras el operador corrige; el almacén recibirá el valor acotado.
	e.view.Apply(key, m.Snapshot.Quantity+m.AccumulatedDelta)

	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(e.cfg.Debounce, func() { e.flush(ks) })

	e.updatePendingLocked()
	return nil
}

// flush vence la ventana de la clave: saca la mutación del buffer y la
// despacha. Un acumulado que quedó en cero (los deltas se anularon entre sí)
// se descarta sin escribir nada.
func (e *Engine) flush(ks string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	b := e.buffers[ks]
	if b == nil {
		return
	}
	delete(e.buffers, ks)
	m := b.mutation
	if m.AccumulatedDelta == 0 {
		e.dropLogLocked(m.ID, true)
		e.updatePendingLocked()
		return
	}
	e.dispatchLocked(m)
	e.updatePendingLocked()
}
