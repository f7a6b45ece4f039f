package sync

import "github.com/jhoicas/Inventario-sync/internal/domain/entity"

// ResumableState función total de transición para mutaciones restauradas de
// la bitácora: (estado previo, en arranque) -> estado con el que continúa.
//
// El caso ambiguo es una sesión anterior que murió con la escritura en vuelo:
// el dispositivo no puede distinguir "el servidor la recibió" de "nunca
// salió". El sistema se inclina por reenviar (at-least-once), apoyado en que
// el almacén upserta de forma idempotente por (sku, bodega, ubicación) y no
// por un id de escritura generado.
func ResumableState(prior entity.DispatchState, isBooting bool) entity.DispatchState {
	switch prior {
	case entity.StateConfirmed, entity.StateFailed:
		// Terminales: nada que reanudar.
		return prior
	case entity.StateBuffering, entity.StatePaused:
		return entity.StatePaused
	case entity.StateInFlight:
		if isBooting {
			return entity.StatePaused
		}
		return entity.StateInFlight
	default:
		// Estados desconocidos de versiones futuras: mejor reenviar que perder.
		return entity.StatePaused
	}
}
