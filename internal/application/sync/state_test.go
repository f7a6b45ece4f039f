package sync_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	appsync "github.com/jhoicas/Inventario-sync/internal/application/sync"
	"github.com/jhoicas/Inventario-sync/internal/domain/entity"
)

func TestResumableState_EsTotal(t *testing.T) {
	cases := []struct {
		name      string
		prior     entity.DispatchState
		isBooting bool
		want      entity.DispatchState
	}{
		{"buffering en arranque", entity.StateBuffering, true, entity.StatePaused},
		{"buffering en reconexión", entity.StateBuffering, false, entity.StatePaused},
		{"paused en arranque", entity.StatePaused, true, entity.StatePaused},
		{"paused en reconexión", entity.StatePaused, false, entity.StatePaused},
		{"inFlight en arranque se reenvía", entity.StateInFlight, true, entity.StatePaused},
		{"inFlight en caliente sigue en vuelo", entity.StateInFlight, false, entity.StateInFlight},
		{"confirmed es terminal", entity.StateConfirmed, true, entity.StateConfirmed},
		{"failed es terminal", entity.StateFailed, true, entity.StateFailed},
		{"estado desconocido se reanuda", entity.DispatchState("limbo"), true, entity.StatePaused},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := appsync.ResumableState(tc.prior, tc.isBooting)
			assert.Equal(t, tc.want, got)
		})
	}
}
