package sync_test

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appsync "github.com/jhoicas/Inventario-sync/internal/application/sync"
	"github.com/jhoicas/Inventario-sync/internal/domain"
	"github.com/jhoicas/Inventario-sync/internal/domain/entity"
	"github.com/jhoicas/Inventario-sync/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fakes del almacén y la bitácora
// ──────────────────────────────────────────────────────────────────────────────

type quantityWrite struct {
	key entity.RecordKey
	qty int
}

type fakeStore struct {
	mu      gosync.Mutex
	records map[string]entity.InventoryRecord
	writes  []quantityWrite
	moves   []entity.MoveOutcome
	offline bool
	// writeErr error terminal a devolver en la próxima escritura.
	writeErr error
}

func newFakeStore(records ...entity.InventoryRecord) *fakeStore {
	s := &fakeStore{records: make(map[string]entity.InventoryRecord)}
	for _, r := range records {
		s.records[r.Key().String()] = r
	}
	return s
}

func (s *fakeStore) setOffline(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = offline
}

func (s *fakeStore) failNextWrite(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

func (s *fakeStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes) + len(s.moves)
}

func (s *fakeStore) lastWrite() quantityWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[len(s.writes)-1]
}

func (s *fakeStore) ReadRecord(_ context.Context, key entity.RecordKey) (*entity.InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return nil, domain.ErrOffline
	}
	r, ok := s.records[key.String()]
	if !ok || r.Status != entity.StatusActive {
		return nil, nil
	}
	out := r
	return &out, nil
}

func (s *fakeStore) FindAtLocation(_ context.Context, wh entity.Warehouse, loc string) (*entity.InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return nil, domain.ErrOffline
	}
	for _, r := range s.records {
		if r.Warehouse == wh && r.Location == loc && r.Status == entity.StatusActive {
			out := r
			return &out, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) WriteQuantity(_ context.Context, key entity.RecordKey, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return domain.ErrOffline
	}
	if s.writeErr != nil {
		err := s.writeErr
		s.writeErr = nil
		return err
	}
	r, ok := s.records[key.String()]
	if !ok {
		r = entity.InventoryRecord{
			ID: "srv-" + key.SKU, SKU: key.SKU, Warehouse: key.Warehouse,
			Location: key.Location, Status: entity.StatusActive,
		}
	}
	r.Quantity = qty
	s.records[key.String()] = r
	s.writes = append(s.writes, quantityWrite{key: key, qty: qty})
	return nil
}

func (s *fakeStore) ApplyMove(_ context.Context, out entity.MoveOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return domain.ErrOffline
	}
	if s.writeErr != nil {
		err := s.writeErr
		s.writeErr = nil
		return err
	}
	for key, r := range s.records {
		if r.ID == out.Source.ID {
			delete(s.records, key)
		}
	}
	s.records[out.Source.Key().String()] = out.Source
	s.records[out.Target.Key().String()] = out.Target
	s.moves = append(s.moves, out)
	return nil
}

func (s *fakeStore) ListActive(_ context.Context) ([]entity.InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return nil, domain.ErrOffline
	}
	var recs []entity.InventoryRecord
	for _, r := range s.records {
		if r.Status == entity.StatusActive {
			recs = append(recs, r)
		}
	}
	return recs, nil
}

type fakeLog struct {
	mu      gosync.Mutex
	entries map[string]entity.PendingMutation
}

func newFakeLog() *fakeLog {
	return &fakeLog{entries: make(map[string]entity.PendingMutation)}
}

func (l *fakeLog) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *fakeLog) Persist(_ context.Context, m *entity.PendingMutation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[m.ID] = *m
	return nil
}

func (l *fakeLog) RestoreAll(_ context.Context) ([]entity.PendingMutation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []entity.PendingMutation
	for _, m := range l.entries {
		if !m.State.Terminal() {
			out = append(out, m)
		}
	}
	return out, nil
}

func (l *fakeLog) MarkConfirmed(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, id)
	return nil
}

func (l *fakeLog) MarkFailed(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, id)
	return nil
}

func (l *fakeLog) PruneStale(_ context.Context, olderThan time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for id, m := range l.entries {
		if m.CreatedAt.Before(olderThan) {
			delete(l.entries, id)
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Arranque de motores de test
// ──────────────────────────────────────────────────────────────────────────────

const testDebounce = 25 * time.Millisecond

func startEngine(t *testing.T, store *fakeStore, mlog *fakeLog) *appsync.Engine {
	t.Helper()
	e := appsync.NewEngine(appsync.Config{
		Debounce:  testDebounce,
		Retention: 7 * 24 * time.Hour,
		Operator:  "Warehouse Team",
	}, store, mlog, nil, logger.Nop(), nil)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(e.Close)
	return e
}

func waitSettled(t *testing.T, e *appsync.Engine) {
	t.Helper()
	require.Eventually(t, func() bool { return e.PendingCount() == 0 },
		2*time.Second, 5*time.Millisecond, "las mutaciones pendientes deben drenarse")
}

var keyA = entity.RecordKey{SKU: "SKU-A", Warehouse: entity.WarehouseLudlow, Location: "A-01"}

func baseRecord() entity.InventoryRecord {
	return entity.InventoryRecord{
		ID: "id-1", SKU: "SKU-A", Warehouse: entity.WarehouseLudlow,
		Location: "A-01", Quantity: 50, Status: entity.StatusActive,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Coalescencia
// ──────────────────────────────────────────────────────────────────────────────

func TestEngine_CoalesceDeltasEnUnaEscritura(t *testing.T) {
	batch := entity.InventoryRecord{
		ID: "id-b", SKU: "BATCH-SKU", Warehouse: entity.WarehouseATS,
		Location: "Row 2", Quantity: 50, Status: entity.StatusActive,
	}
	store := newFakeStore(batch)
	mlog := newFakeLog()
	e := startEngine(t, store, mlog)
	ctx := context.Background()
	key := batch.Key()

	require.NoError(t, e.SubmitDelta(ctx, key, 1, ""))
	require.NoError(t, e.SubmitDelta(ctx, key, 2, ""))
	require.NoError(t, e.SubmitDelta(ctx, key, 3, ""))

	// El valor visible refleja el acumulado sin esperar la ventana.
	rec, ok := e.Visible(key)
	require.True(t, ok)
	assert.Equal(t, 56, rec.Quantity, "la vista nunca va detrás del input")
	assert.Zero(t, store.writeCount(), "nada debe escribirse dentro de la ventana")

	waitSettled(t, e)
	require.Equal(t, 1, store.writeCount(), "ráfaga de deltas = exactamente una escritura")
	assert.Equal(t, 56, store.lastWrite().qty)
	assert.Zero(t, mlog.size(), "la bitácora debe quedar vacía tras confirmar")
}

func TestEngine_AcumuladoNegativoSeAcotaACero(t *testing.T) {
	low := baseRecord()
	low.Quantity = 5
	store := newFakeStore(low)
	mlog := newFakeLog()
	e := startEngine(t, store, mlog)

	require.NoError(t, e.SubmitDelta(context.Background(), keyA, -10, ""))

	// Dentro de la ventana el valor visible no se acota: el operador ve el
	// acumulado crudo mientras corrige.
	rec, ok := e.Visible(keyA)
	require.True(t, ok)
	assert.Equal(t, -5, rec.Quantity)

	waitSettled(t, e)
	require.Equal(t, 1, store.writeCount())
	assert.Equal(t, 0, store.lastWrite().qty, "la escritura saliente se acota a ≥ 0")
	rec, _ = e.Visible(keyA)
	assert.Equal(t, 0, rec.Quantity, "tras confirmar, la vista muestra exactamente el valor del almacén")
	assert.Zero(t, mlog.size())
}

func TestEngine_DeltasQueSeAnulanNoEscriben(t *testing.T) {
	store := newFakeStore(baseRecord())
	mlog := newFakeLog()
	e := startEngine(t, store, mlog)
	ctx := context.Background()

	require.NoError(t, e.SubmitDelta(ctx, keyA, 5, ""))
	require.NoError(t, e.SubmitDelta(ctx, keyA, -5, ""))

	waitSettled(t, e)
	assert.Zero(t, store.writeCount(), "un acumulado en cero no debe tocar el almacén")
	assert.Zero(t, mlog.size())
}

func TestEngine_DeltaSobreClaveInexistente(t *testing.T) {
	store := newFakeStore(baseRecord())
	e := startEngine(t, store, newFakeLog())

	ghost := entity.RecordKey{SKU: "SKU-X", Warehouse: entity.WarehouseATS, Location: "Z-99"}
	err := e.SubmitDelta(context.Background(), ghost, 1, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = e.SubmitDelta(context.Background(), keyA, 0, "")
	assert.ErrorIs(t, err, domain.ErrValidationFailed, "delta cero es error del llamador")
}

func TestEngine_ClavesIndependientes(t *testing.T) {
	other := entity.InventoryRecord{
		ID: "id-2", SKU: "SKU-B", Warehouse: entity.WarehouseATS,
		Location: "B-01", Quantity: 20, Status: entity.StatusActive,
	}
	store := newFakeStore(baseRecord(), other)
	e := startEngine(t, store, newFakeLog())
	ctx := context.Background()

	require.NoError(t, e.SubmitDelta(ctx, keyA, 1, ""))
	require.NoError(t, e.SubmitDelta(ctx, other.Key(), -2, ""))

	waitSettled(t, e)
	assert.Equal(t, 2, store.writeCount(), "claves distintas no comparten ventana ni escritura")
}

// ──────────────────────────────────────────────────────────────────────────────
// Rollback
// ──────────────────────────────────────────────────────────────────────────────

func TestEngine_RollbackExactoAlSnapshot(t *testing.T) {
	store := newFakeStore(baseRecord())
	mlog := newFakeLog()
	e := startEngine(t, store, mlog)
	ctx := context.Background()

	var notifiedKey entity.RecordKey
	var notifiedErr error
	var wg gosync.WaitGroup
	wg.Add(1)
	e.OnError(func(key entity.RecordKey, err error) {
		notifiedKey = key
		notifiedErr = err
		wg.Done()
	})

	store.failNextWrite(errors.New("constraint violated"))
	require.NoError(t, e.SubmitDelta(ctx, keyA, 7, ""))

	rec, _ := e.Visible(keyA)
	assert.Equal(t, 57, rec.Quantity, "optimista hasta que el almacén responda")

	waitSettled(t, e)
	wg.Wait()

	rec, _ = e.Visible(keyA)
	assert.Equal(t, 50, rec.Quantity, "el rollback restaura el snapshot exacto, no un valor recalculado")
	assert.Equal(t, keyA, notifiedKey)
	assert.Error(t, notifiedErr)
	assert.Zero(t, mlog.size(), "la mutación fallida sale de la bitácora")
}

// ──────────────────────────────────────────────────────────────────────────────
// Offline y reanudación
// ──────────────────────────────────────────────────────────────────────────────

func TestEngine_OfflinePausaYReanudaExactamenteUnaVez(t *testing.T) {
	store := newFakeStore(baseRecord())
	mlog := newFakeLog()
	e := startEngine(t, store, mlog)
	ctx := context.Background()

	store.setOffline(true)
	require.NoError(t, e.SubmitDelta(ctx, keyA, 3, ""))

	require.Eventually(t, func() bool { return mlog.size() > 0 },
		2*time.Second, 5*time.Millisecond)
	// Dar tiempo a que la ventana venza y el envío fracase por conexión.
	time.Sleep(4 * testDebounce)

	rec, _ := e.Visible(keyA)
	assert.Equal(t, 53, rec.Quantity, "offline no revierte: el valor optimista se mantiene")
	assert.Zero(t, store.writeCount())
	assert.Equal(t, 1, e.PendingCount(), "la mutación queda retenida, no descartada")

	store.setOffline(false)
	e.SetOnline(true)

	waitSettled(t, e)
	require.Equal(t, 1, store.writeCount(), "la reanudación reenvía exactamente una vez")
	assert.Equal(t, 53, store.lastWrite().qty)
	assert.Zero(t, mlog.size())
}

func TestEngine_RestauracionTrasReinicio(t *testing.T) {
	store := newFakeStore(baseRecord())
	mlog := newFakeLog()

	// Una sesión anterior murió con la escritura en vuelo.
	snap := baseRecord()
	require.NoError(t, mlog.Persist(context.Background(), &entity.PendingMutation{
		ID:               "m-1",
		Key:              keyA,
		Kind:             entity.MutationDelta,
		AccumulatedDelta: 6,
		Snapshot:         &snap,
		PerformedBy:      "Warehouse Team",
		State:            entity.StateInFlight,
		CreatedAt:        time.Now().Add(-time.Minute),
	}))

	e := startEngine(t, store, mlog)

	waitSettled(t, e)
	require.Equal(t, 1, store.writeCount(), "la mutación restaurada se reenvía exactamente una vez")
	assert.Equal(t, 56, store.lastWrite().qty)
	assert.Zero(t, mlog.size(), "bitácora vacía tras drenar lo restaurado")
}

func TestEngine_RestauracionIgnoraTerminales(t *testing.T) {
	store := newFakeStore(baseRecord())
	mlog := newFakeLog()
	snap := baseRecord()
	require.NoError(t, mlog.Persist(context.Background(), &entity.PendingMutation{
		ID: "m-1", Key: keyA, Kind: entity.MutationDelta, AccumulatedDelta: 9,
		Snapshot: &snap, State: entity.StateConfirmed, CreatedAt: time.Now(),
	}))

	e := startEngine(t, store, mlog)

	time.Sleep(4 * testDebounce)
	assert.Zero(t, store.writeCount(), "un estado terminal no debe reenviarse jamás")
	assert.Zero(t, e.PendingCount())
}

// ──────────────────────────────────────────────────────────────────────────────
// Invalidación
// ──────────────────────────────────────────────────────────────────────────────

func TestEngine_InvalidatePrefiereLoPendienteLocal(t *testing.T) {
	store := newFakeStore(baseRecord())
	e := startEngine(t, store, newFakeLog())
	ctx := context.Background()

	require.NoError(t, e.SubmitDelta(ctx, keyA, 4, ""))

	// Otro dispositivo escribió 99 y llegó el broadcast.
	require.NoError(t, store.WriteQuantity(ctx, keyA, 99))
	require.NoError(t, e.Invalidate(ctx, keyA))

	rec, _ := e.Visible(keyA)
	assert.Equal(t, 54, rec.Quantity, "el estado local pendiente gana sobre el broadcast")

	waitSettled(t, e)
	require.NoError(t, e.Invalidate(ctx, keyA))
	rec, _ = e.Visible(keyA)
	assert.Equal(t, 54, rec.Quantity, "sin pendientes, la vista adopta el valor del almacén")
}

// ──────────────────────────────────────────────────────────────────────────────
// Movimientos
// ──────────────────────────────────────────────────────────────────────────────

func TestEngine_MoveConsolidaOptimistaYConfirma(t *testing.T) {
	occ := entity.InventoryRecord{
		ID: "id-2", SKU: "SKU-A", Warehouse: entity.WarehouseLudlow,
		Location: "A-02", Quantity: 10, Status: entity.StatusActive,
	}
	src := baseRecord()
	src.Quantity = 10
	store := newFakeStore(src, occ)
	e := startEngine(t, store, newFakeLog())

	intent := entity.MoveIntent{
		Source:          src,
		TargetWarehouse: entity.WarehouseLudlow,
		TargetLocation:  "A-02",
		Quantity:        5,
	}
	require.NoError(t, e.SubmitMove(context.Background(), intent, "Ana"))

	// Proyección optimista inmediata: destino consolidado, origen fuera.
	target, ok := e.Visible(occ.Key())
	require.True(t, ok)
	assert.Equal(t, 15, target.Quantity)
	_, ok = e.Visible(keyA)
	assert.False(t, ok, "el origen consolidado sale de la vista")

	waitSettled(t, e)
	require.Equal(t, 1, store.writeCount())
	target, _ = e.Visible(occ.Key())
	assert.Equal(t, 15, target.Quantity)
}

func TestEngine_MoveConflictoDeRenombreCeroEscrituras(t *testing.T) {
	occ := entity.InventoryRecord{
		ID: "id-2", SKU: "SKU-B", Warehouse: entity.WarehouseATS,
		Location: "C-03", Quantity: 4, Status: entity.StatusActive,
	}
	store := newFakeStore(baseRecord(), occ)
	e := startEngine(t, store, newFakeLog())

	src, _ := e.Visible(keyA)
	intent := entity.MoveIntent{
		Source:          src,
		TargetWarehouse: entity.WarehouseATS,
		TargetLocation:  "C-03",
		Quantity:        10,
	}
	err := e.SubmitMove(context.Background(), intent, "")
	var conflict *domain.RenameConflictError
	require.ErrorAs(t, err, &conflict)

	assert.Zero(t, store.writeCount(), "un conflicto de renombre no produce ninguna escritura")
	rec, _ := e.Visible(keyA)
	assert.Equal(t, 50, rec.Quantity, "la vista queda intacta")
	occVisible, _ := e.Visible(occ.Key())
	assert.Equal(t, 4, occVisible.Quantity)
}

func TestEngine_MoveRollbackRestauraAmbasFilas(t *testing.T) {
	occ := entity.InventoryRecord{
		ID: "id-2", SKU: "SKU-A", Warehouse: entity.WarehouseLudlow,
		Location: "A-02", Quantity: 10, Status: entity.StatusActive,
	}
	src := baseRecord()
	src.Quantity = 10
	store := newFakeStore(src, occ)
	e := startEngine(t, store, newFakeLog())

	store.failNextWrite(errors.New("target row vanished"))
	intent := entity.MoveIntent{
		Source:          src,
		TargetWarehouse: entity.WarehouseLudlow,
		TargetLocation:  "A-02",
		Quantity:        5,
	}
	require.NoError(t, e.SubmitMove(context.Background(), intent, ""))

	waitSettled(t, e)
	srcVisible, ok := e.Visible(keyA)
	require.True(t, ok, "el origen debe volver tras el rollback")
	assert.Equal(t, 10, srcVisible.Quantity)
	occVisible, _ := e.Visible(occ.Key())
	assert.Equal(t, 10, occVisible.Quantity, "el destino vuelve a su snapshot")
}

// ──────────────────────────────────────────────────────────────────────────────
// Altas
// ──────────────────────────────────────────────────────────────────────────────

func TestEngine_CreateRecordVisibleInmediato(t *testing.T) {
	store := newFakeStore()
	e := startEngine(t, store, newFakeLog())

	rec := entity.InventoryRecord{
		SKU: "SKU-N", Warehouse: entity.WarehouseATS, Location: "D-04", Quantity: 12,
	}
	require.NoError(t, e.CreateRecord(context.Background(), rec, "Luis"))

	visible, ok := e.Visible(rec.Key())
	require.True(t, ok, "el alta es visible sin esperar al almacén")
	assert.Equal(t, 12, visible.Quantity)

	waitSettled(t, e)
	require.Equal(t, 1, store.writeCount())
	assert.Equal(t, 12, store.lastWrite().qty)
}

func TestEngine_CreateSobreExistenteSuma(t *testing.T) {
	store := newFakeStore(baseRecord())
	e := startEngine(t, store, newFakeLog())

	rec := entity.InventoryRecord{
		SKU: "SKU-A", Warehouse: entity.WarehouseLudlow, Location: "A-01", Quantity: 5,
	}
	require.NoError(t, e.CreateRecord(context.Background(), rec, ""))

	visible, _ := e.Visible(keyA)
	assert.Equal(t, 55, visible.Quantity, "el alta repetida degenera en suma coalescible")

	waitSettled(t, e)
	assert.Equal(t, 55, store.lastWrite().qty)
}
