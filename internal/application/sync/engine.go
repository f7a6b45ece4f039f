package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/Inventario-sync/internal/domain"
	"github.com/jhoicas/Inventario-sync/internal/domain/entity"
	"github.com/jhoicas/Inventario-sync/internal/domain/repository"
	"github.com/jhoicas/Inventario-sync/pkg/logger"
)

// Config parámetros del motor.
type Config struct {
	// Debounce ventana de coalescencia de deltas por clave.
	Debounce time.Duration
	// Retention ventana de durabilidad de la bitácora local.
	Retention time.Duration
	// Operator firma por defecto para el historial de movimientos.
	Operator string
}

// Notifier callback con el que el motor expone fallos terminales a la capa
// superior (UI). Se invoca fuera del lock del motor.
type Notifier func(key entity.RecordKey, err error)

// Engine es el controlador de reconciliación: orquesta el ciclo completo por
// clave lógica — snapshot, aplicación optimista, escritura durable en la
// bitácora, envío al almacén, y confirmación o rollback exacto. Es el único
// dueño del ciclo de vida de las mutaciones pendientes.
//
// Todo el estado compartido vive detrás de un solo mutex; las claves son
// independientes entre sí y cada una tiene a lo sumo una mutación en vuelo.
// Una edición sobre una clave ya en vuelo abre una mutación nueva que espera
// turno detrás, nunca muta una carga ya enviada.
type Engine struct {
	cfg      Config
	store    repository.InventoryRepository
	mlog     repository.MutationLogRepository
	audit    repository.MovementLogRepository
	view     *Projector
	resolver *MergeResolver
	log      *logger.Logger
	metrics  *Metrics
	notify   Notifier

	mu       gosync.Mutex
	buffers  map[string]*buffer
	inFlight map[string]*entity.PendingMutation
	queue    map[string][]*entity.PendingMutation
	paused   []*entity.PendingMutation
	// outcomes proyección optimista aplicada por movimiento (por id de
	// mutación), para poder deshacer las dos filas en un rollback.
	outcomes map[string]entity.MoveOutcome
	online   bool
	closed   bool
	baseCtx  context.Context
}

// NewEngine construye el motor. audit y metrics pueden ser nil.
func NewEngine(
	cfg Config,
	store repository.InventoryRepository,
	mlog repository.MutationLogRepository,
	audit repository.MovementLogRepository,
	log *logger.Logger,
	metrics *Metrics,
) *Engine {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 300 * time.Millisecond
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	return &Engine{
		cfg:      cfg,
		store:    store,
		mlog:     mlog,
		audit:    audit,
		view:     NewProjector(),
		resolver: NewMergeResolver(),
		log:      log.Component("sync-engine"),
		metrics:  metrics,
		buffers:  make(map[string]*buffer),
		inFlight: make(map[string]*entity.PendingMutation),
		queue:    make(map[string][]*entity.PendingMutation),
		outcomes: make(map[string]entity.MoveOutcome),
		online:   true,
	}
}

// OnError registra el callback de fallos terminales.
func (e *Engine) OnError(fn Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notify = fn
}

// Start inicializa el motor: poda la bitácora, carga la vista desde el
// almacén y reanuda toda mutación no terminal dejada por una sesión anterior.
// La restauración ocurre antes de aceptar ediciones locales, así que una
// mutación recién creada por input nunca sale también del camino de restore.
func (e *Engine) Start(ctx context.Context) error {
	e.baseCtx = ctx

	cutoff := time.Now().Add(-e.cfg.Retention)
	if n, err := e.mlog.PruneStale(ctx, cutoff); err != nil {
		e.log.Warn().Err(err).Msg("poda de bitácora")
	} else if n > 0 {
		e.log.Info().Int("pruned", n).Msg("mutaciones obsoletas descartadas")
	}

	records, err := e.store.ListActive(ctx)
	switch {
	case err == nil:
		e.view.Load(records)
	case errors.Is(err, domain.ErrOffline):
		e.log.Warn().Msg("almacén inalcanzable en el arranque; vista vacía hasta reconectar")
		e.mu.Lock()
		e.online = false
		e.mu.Unlock()
	default:
		return fmt.Errorf("carga inicial: %w", err)
	}

	restored, err := e.mlog.RestoreAll(ctx)
	if err != nil {
		return fmt.Errorf("restaurar bitácora: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range restored {
		st := ResumableState(restored[i].State, true)
		if st.Terminal() {
			continue
		}
		restored[i].State = st
		m := &restored[i]
		e.persistLocked(m)
		e.paused = append(e.paused, m)
	}
	if len(e.paused) > 0 {
		e.log.Info().Int("count", len(e.paused)).Msg("mutaciones restauradas de una sesión anterior")
	}
	if e.online {
		e.resumeLocked()
	}
	e.updatePendingLocked()
	return nil
}

// Close detiene los timers de coalescencia. Lo bufferizado ya es durable y se
// restaurará en el próximo arranque.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	for _, b := range e.buffers {
		if b.timer != nil {
			b.timer.Stop()
		}
	}
}

// SetOnline informa la transición de conectividad. Al pasar de offline a
// online se reanudan, exactamente una vez, todas las mutaciones retenidas.
func (e *Engine) SetOnline(online bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	was := e.online
	e.online = online
	if online && !was {
		e.log.Info().Msg("reconectado: reanudando mutaciones pendientes")
		e.resumeLocked()
	}
	e.updatePendingLocked()
}

// Records devuelve la vista visible completa.
func (e *Engine) Records() []entity.InventoryRecord {
	return e.view.All()
}

// Visible devuelve el registro visible de la clave.
func (e *Engine) Visible(key entity.RecordKey) (entity.InventoryRecord, bool) {
	return e.view.Get(key)
}

// PendingCount mutaciones en buffering, en vuelo o pausadas.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pendingLocked()
}

// CreateRecord da de alta un registro nuevo. Si la coordenada ya tiene el
// SKU, el alta degenera en una suma coalescible sobre el registro existente
// (mismo comportamiento que el alta repetida del sistema de conteo).
func (e *Engine) CreateRecord(ctx context.Context, rec entity.InventoryRecord, performedBy string) error {
	rec.SKU = strings.Join(strings.Fields(rec.SKU), "")
	key := rec.Key()
	if !key.IsValid() || rec.Quantity < 0 {
		return domain.ErrValidationFailed
	}

	e.mu.Lock()
	if _, ok := e.view.Get(key); ok {
		e.mu.Unlock()
		if rec.Quantity == 0 {
			return nil
		}
		return e.SubmitDelta(ctx, key, rec.Quantity, performedBy)
	}
	defer e.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.Status = entity.StatusActive
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m := &entity.PendingMutation{
		ID:               uuid.New().String(),
		Key:              key,
		Kind:             entity.MutationCreate,
		AccumulatedDelta: rec.Quantity,
		PerformedBy:      e.operator(performedBy),
		State:            entity.StateBuffering,
		CreatedAt:        time.Now(),
	}
	e.view.Replace(rec)
	// Las altas son acciones deliberadas: se despachan sin ventana.
	e.dispatchLocked(m)
	e.updatePendingLocked()
	return nil
}

// SubmitMove encola una intención de reubicación. El resultado se resuelve
// dos veces: contra la vista para la proyección optimista inmediata, y contra
// el almacén en el momento de aplicar (la resolución autoritativa).
func (e *Engine) SubmitMove(ctx context.Context, intent entity.MoveIntent, performedBy string) error {
	srcKey := intent.Source.Key()
	if !srcKey.IsValid() || !intent.TargetKey().IsValid() {
		return domain.ErrValidationFailed
	}
	if srcKey == intent.TargetKey() {
		return fmt.Errorf("origen y destino idénticos: %w", domain.ErrValidationFailed)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	src, ok := e.view.Get(srcKey)
	if !ok {
		return domain.ErrNotFound
	}

	// Un delta todavía en ventana sobre la misma clave se despacha primero
	// para que el movimiento parta del acumulado ya visible.
	if b := e.buffers[srcKey.String()]; b != nil {
		if b.timer != nil {
			b.timer.Stop()
		}
		delete(e.buffers, srcKey.String())
		if b.mutation.AccumulatedDelta != 0 {
			e.dispatchLocked(b.mutation)
		} else {
			e.dropLogLocked(b.mutation.ID, true)
		}
	}

	intent.Source = src
	occupant, _ := e.view.FindAtLocation(intent.TargetWarehouse, intent.TargetLocation)
	out, err := e.resolver.Resolve(intent, occupant)
	if err != nil {
		// Rechazo local (validación o conflicto de renombre): cero escrituras.
		return err
	}

	kind := entity.MutationMove
	if intent.TargetSKU != "" && intent.TargetSKU != src.SKU {
		kind = entity.MutationRenameReject
	}
	snap := src
	m := &entity.PendingMutation{
		ID:          uuid.New().String(),
		Key:         srcKey,
		Kind:        kind,
		Snapshot:    &snap,
		Move:        &intent,
		PerformedBy: e.operator(performedBy),
		State:       entity.StateBuffering,
		CreatedAt:   time.Now(),
	}
	if occupant != nil {
		ts := *occupant
		m.TargetSnapshot = &ts
	}

	// Proyección optimista de ambas filas del intento.
	e.view.Remove(srcKey)
	e.applyOutcomeViewLocked(out)
	e.outcomes[m.ID] = out

	e.dispatchLocked(m)
	e.updatePendingLocked()
	return nil
}

// Invalidate atiende la señal opaca "algo cambió" del canal de notificaciones:
// re-lee la clave del almacén y refresca la vista. El estado local pendiente
// siempre gana sobre un broadcast potencialmente viejo.
func (e *Engine) Invalidate(ctx context.Context, key entity.RecordKey) error {
	e.mu.Lock()
	if e.hasPendingLocked(key) {
		e.mu.Unlock()
		e.log.Debug().Str("key", key.String()).Msg("broadcast ignorado: hay mutación local pendiente")
		return nil
	}
	e.mu.Unlock()

	rec, err := e.store.ReadRecord(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrOffline) {
			return nil
		}
		return fmt.Errorf("re-lectura de %s: %w", key.String(), err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hasPendingLocked(key) {
		// Llegó una edición local mientras re-leíamos: esa manda.
		return nil
	}
	if rec == nil {
		e.view.Remove(key)
	} else {
		e.view.Replace(*rec)
	}
	return nil
}

// ── ciclo interno ─────────────────────────────────────────────────────────────

type buffer struct {
	mutation *entity.PendingMutation
	timer    *time.Timer
}

func (e *Engine) operator(performedBy string) string {
	if performedBy != "" {
		return performedBy
	}
	if e.cfg.Operator != "" {
		return e.cfg.Operator
	}
	return "Warehouse Team"
}

func (e *Engine) hasPendingLocked(key entity.RecordKey) bool {
	ks := key.String()
	if e.buffers[ks] != nil || e.inFlight[ks] != nil || len(e.queue[ks]) > 0 {
		return true
	}
	for _, m := range e.paused {
		if m.Key == key {
			return true
		}
	}
	return false
}

func (e *Engine) pendingLocked() int {
	n := len(e.buffers) + len(e.inFlight) + len(e.paused)
	for _, qs := range e.queue {
		n += len(qs)
	}
	return n
}

func (e *Engine) updatePendingLocked() {
	e.metrics.setPending(e.pendingLocked())
}

func (e *Engine) persistLocked(m *entity.PendingMutation) {
	ctx := e.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := e.mlog.Persist(ctx, m); err != nil {
		e.log.Warn().Err(err).Str("key", m.Key.String()).Msg("persistencia de bitácora degradada")
	}
}

func (e *Engine) dropLogLocked(id string, confirmed bool) {
	ctx := e.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	var err error
	if confirmed {
		err = e.mlog.MarkConfirmed(ctx, id)
	} else {
		err = e.mlog.MarkFailed(ctx, id)
	}
	if err != nil {
		e.log.Warn().Err(err).Str("mutation", id).Msg("no se pudo descartar la entrada de bitácora")
	}
}

// dispatchLocked pasa la mutación a inFlight y emite la escritura. Si el
// motor está offline la retiene; si la clave ya tiene una en vuelo, espera
// turno FIFO detrás de ella.
func (e *Engine) dispatchLocked(m *entity.PendingMutation) {
	ks := m.Key.String()
	if !e.online {
		m.State = entity.StatePaused
		e.persistLocked(m)
		e.paused = append(e.paused, m)
		return
	}
	if e.inFlight[ks] != nil {
		e.queue[ks] = append(e.queue[ks], m)
		return
	}
	m.State = entity.StateInFlight
	e.inFlight[ks] = m
	// La bitácora se escribe antes de emitir la llamada de red: si el proceso
	// muere aquí mismo, la mutación sobrevive y se reenvía.
	e.persistLocked(m)
	e.metrics.incDispatched(string(m.Kind))
	go e.performWrite(m)
}

// resumeLocked reenvía exactamente una vez cada mutación retenida, con el
// mismo manejo de éxito/fallo que un envío normal. La reanudación nunca
// re-debouncea: la ventana es un asunto del input local.
func (e *Engine) resumeLocked() {
	pend := e.paused
	e.paused = nil
	for _, m := range pend {
		e.metrics.incResumed()
		e.dispatchLocked(m)
	}
}

func (e *Engine) advanceLocked(ks string) {
	if !e.online {
		return
	}
	qs := e.queue[ks]
	if len(qs) == 0 {
		return
	}
	next := qs[0]
	if len(qs) == 1 {
		delete(e.queue, ks)
	} else {
		e.queue[ks] = qs[1:]
	}
	e.dispatchLocked(next)
}

// pauseLocked retiene la mutación (y todo lo que esperaba turno) hasta la
// próxima reconexión. No hay rollback: offline no es un error para el usuario.
func (e *Engine) pauseLocked(m *entity.PendingMutation) {
	e.online = false
	m.State = entity.StatePaused
	e.persistLocked(m)
	e.paused = append(e.paused, m)
	for ks, qs := range e.queue {
		for _, qm := range qs {
			qm.State = entity.StatePaused
			e.persistLocked(qm)
			e.paused = append(e.paused, qm)
		}
		delete(e.queue, ks)
	}
}

func (e *Engine) performWrite(m *entity.PendingMutation) {
	ctx := e.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	switch m.Kind {
	case entity.MutationMove, entity.MutationRenameReject:
		out, err := e.executeMove(ctx, m)
		e.settleMove(m, out, err)
	default:
		qty := writeValue(m)
		err := e.store.WriteQuantity(ctx, m.Key, qty)
		e.settleQuantity(m, qty, err)
	}
}

// writeValue valor absoluto a escribir: snapshot + delta acumulado, acotado a ≥ 0.
func writeValue(m *entity.PendingMutation) int {
	base := 0
	if m.Snapshot != nil {
		base = m.Snapshot.Quantity
	}
	v := base + m.AccumulatedDelta
	if v < 0 {
		v = 0
	}
	return v
}

// executeMove resuelve el movimiento contra el estado autoritativo del
// almacén y aplica las dos filas como una sola transacción.
func (e *Engine) executeMove(ctx context.Context, m *entity.PendingMutation) (entity.MoveOutcome, error) {
	occupant, err := e.store.FindAtLocation(ctx, m.Move.TargetWarehouse, m.Move.TargetLocation)
	if err != nil {
		return entity.MoveOutcome{}, err
	}
	out, err := e.resolver.Resolve(*m.Move, occupant)
	if err != nil {
		return entity.MoveOutcome{}, err
	}
	if err := e.store.ApplyMove(ctx, out); err != nil {
		return entity.MoveOutcome{}, err
	}
	return out, nil
}

func (e *Engine) settleQuantity(m *entity.PendingMutation, written int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ks := m.Key.String()
	delete(e.inFlight, ks)
	switch {
	case err == nil:
		m.State = entity.StateConfirmed
		// La vista adopta el valor confirmado. Solo difiere del optimista
		// cuando el acote a ≥ 0 actuó sobre la escritura; si hay una mutación
		// sucesora en ventana, su proyección manda.
		if e.buffers[ks] == nil && len(e.queue[ks]) == 0 {
			e.view.Apply(m.Key, written)
		}
		e.dropLogLocked(m.ID, true)
		e.metrics.incConfirmed()
		e.auditQuantityLocked(m, written)
		e.log.Debug().Str("key", ks).Int("quantity", written).Msg("mutación confirmada")
	case errors.Is(err, domain.ErrOffline):
		e.pauseLocked(m)
		e.log.Warn().Str("key", ks).Msg("sin conexión: mutación retenida para reanudación")
	default:
		m.State = entity.StateFailed
		e.view.Revert(m.Key, m.Snapshot)
		e.dropLogLocked(m.ID, false)
		e.metrics.incRolledBack()
		e.log.Error().Err(err).Str("key", ks).Msg("escritura rechazada: vista revertida al snapshot")
		if e.notify != nil {
			key := m.Key
			go e.notify(key, err)
		}
	}
	e.advanceLocked(ks)
	e.updatePendingLocked()
}

func (e *Engine) settleMove(m *entity.PendingMutation, out entity.MoveOutcome, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ks := m.Key.String()
	delete(e.inFlight, ks)
	switch {
	case err == nil:
		m.State = entity.StateConfirmed
		// Se reemplaza la proyección optimista por el resultado autoritativo.
		e.undoOptimisticMoveLocked(m)
		e.view.Remove(m.Move.Source.Key())
		e.applyOutcomeViewLocked(out)
		e.dropLogLocked(m.ID, true)
		e.metrics.incConfirmed()
		e.auditMoveLocked(m, out)
		e.log.Debug().Str("key", ks).Str("outcome", string(out.Kind)).Msg("movimiento confirmado")
	case errors.Is(err, domain.ErrOffline):
		e.pauseLocked(m)
		e.log.Warn().Str("key", ks).Msg("sin conexión: movimiento retenido para reanudación")
	default:
		m.State = entity.StateFailed
		e.undoOptimisticMoveLocked(m)
		e.dropLogLocked(m.ID, false)
		e.metrics.incRolledBack()
		e.log.Error().Err(err).Str("key", ks).Msg("movimiento rechazado: ambas filas revertidas")
		if e.notify != nil {
			key := m.Key
			go e.notify(key, err)
		}
	}
	e.advanceLocked(ks)
	e.updatePendingLocked()
}

// applyOutcomeViewLocked refleja en la vista las filas finales de un resultado.
func (e *Engine) applyOutcomeViewLocked(out entity.MoveOutcome) {
	if out.Kind == entity.OutcomeSplit {
		e.view.Replace(out.Source)
	}
	e.view.Replace(out.Target)
}

// undoOptimisticMoveLocked deshace la proyección optimista de un movimiento
// y restaura los snapshots de las dos filas afectadas. Para mutaciones
// restauradas de una sesión anterior no hay nada que deshacer.
func (e *Engine) undoOptimisticMoveLocked(m *entity.PendingMutation) {
	opt, ok := e.outcomes[m.ID]
	if !ok {
		return
	}
	delete(e.outcomes, m.ID)
	e.view.Remove(opt.Target.Key())
	if opt.Kind == entity.OutcomeSplit {
		e.view.Remove(opt.Source.Key())
	}
	if m.Snapshot != nil {
		e.view.Replace(*m.Snapshot)
	}
	if m.TargetSnapshot != nil {
		e.view.Replace(*m.TargetSnapshot)
	}
}

// ── historial ─────────────────────────────────────────────────────────────────

func (e *Engine) auditQuantityLocked(m *entity.PendingMutation, written int) {
	if e.audit == nil {
		return
	}
	prev := 0
	if m.Snapshot != nil {
		prev = m.Snapshot.Quantity
	}
	qty := written - prev
	action := entity.ActionAdd
	if qty < 0 {
		action = entity.ActionDeduct
		qty = -qty
	}
	if qty == 0 {
		return
	}
	lg := &entity.MovementLog{
		ID:           uuid.New().String(),
		SKU:          m.Key.SKU,
		Quantity:     qty,
		PrevQuantity: prev,
		NewQuantity:  written,
		Action:       action,
		PerformedBy:  m.PerformedBy,
		CreatedAt:    time.Now(),
	}
	if m.Kind == entity.MutationCreate {
		lg.ToWarehouse = string(m.Key.Warehouse)
		lg.ToLocation = m.Key.Location
	} else {
		lg.FromWarehouse = string(m.Key.Warehouse)
		lg.FromLocation = m.Key.Location
	}
	go e.writeAudit(lg)
}

func (e *Engine) auditMoveLocked(m *entity.PendingMutation, out entity.MoveOutcome) {
	if e.audit == nil {
		return
	}
	action := entity.ActionMove
	if m.Kind == entity.MutationRenameReject {
		// Un renombre se registra como EDIT para conservar la semántica
		// "Renamed" del historial.
		action = entity.ActionEdit
	}
	lg := &entity.MovementLog{
		ID:            uuid.New().String(),
		SKU:           m.Move.EffectiveSKU(),
		FromWarehouse: string(m.Move.Source.Warehouse),
		FromLocation:  m.Move.Source.Location,
		ToWarehouse:   string(m.Move.TargetWarehouse),
		ToLocation:    m.Move.TargetLocation,
		Quantity:      m.Move.Quantity,
		PrevQuantity:  m.Move.Source.Quantity,
		NewQuantity:   out.Source.Quantity,
		Action:        action,
		PerformedBy:   m.PerformedBy,
		CreatedAt:     time.Now(),
	}
	go e.writeAudit(lg)
}

func (e *Engine) writeAudit(lg *entity.MovementLog) {
	ctx := e.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := e.audit.Create(ctx, lg); err != nil {
		e.log.Warn().Err(err).Str("sku", lg.SKU).Msg("no se pudo registrar el movimiento en el historial")
	}
}
