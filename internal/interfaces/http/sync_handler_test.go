package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	gosync "sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Inventario-sync/internal/application/dto"
	appsync "github.com/jhoicas/Inventario-sync/internal/application/sync"
	"github.com/jhoicas/Inventario-sync/internal/domain/entity"
	apphttp "github.com/jhoicas/Inventario-sync/internal/interfaces/http"
	"github.com/jhoicas/Inventario-sync/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fakes mínimos para montar el motor detrás del router
// ──────────────────────────────────────────────────────────────────────────────

type memStore struct {
	mu      gosync.Mutex
	records map[string]entity.InventoryRecord
}

func newMemStore(records ...entity.InventoryRecord) *memStore {
	s := &memStore{records: make(map[string]entity.InventoryRecord)}
	for _, r := range records {
		s.records[r.Key().String()] = r
	}
	return s
}

func (s *memStore) ReadRecord(_ context.Context, key entity.RecordKey) (*entity.InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key.String()]
	if !ok || r.Status != entity.StatusActive {
		return nil, nil
	}
	out := r
	return &out, nil
}

func (s *memStore) FindAtLocation(_ context.Context, wh entity.Warehouse, loc string) (*entity.InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.Warehouse == wh && r.Location == loc && r.Status == entity.StatusActive {
			out := r
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memStore) WriteQuantity(_ context.Context, key entity.RecordKey, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key.String()]
	if !ok {
		r = entity.InventoryRecord{
			ID: "srv-" + key.SKU, SKU: key.SKU, Warehouse: key.Warehouse,
			Location: key.Location, Status: entity.StatusActive,
		}
	}
	r.Quantity = qty
	s.records[key.String()] = r
	return nil
}

func (s *memStore) ApplyMove(_ context.Context, out entity.MoveOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, r := range s.records {
		if r.ID == out.Source.ID {
			delete(s.records, key)
		}
	}
	s.records[out.Source.Key().String()] = out.Source
	s.records[out.Target.Key().String()] = out.Target
	return nil
}

func (s *memStore) ListActive(_ context.Context) ([]entity.InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var recs []entity.InventoryRecord
	for _, r := range s.records {
		if r.Status == entity.StatusActive {
			recs = append(recs, r)
		}
	}
	return recs, nil
}

type memLog struct {
	mu      gosync.Mutex
	entries map[string]entity.PendingMutation
}

func newMemLog() *memLog { return &memLog{entries: make(map[string]entity.PendingMutation)} }

func (l *memLog) Persist(_ context.Context, m *entity.PendingMutation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[m.ID] = *m
	return nil
}

func (l *memLog) RestoreAll(_ context.Context) ([]entity.PendingMutation, error) {
	return nil, nil
}

func (l *memLog) MarkConfirmed(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, id)
	return nil
}

func (l *memLog) MarkFailed(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, id)
	return nil
}

func (l *memLog) PruneStale(_ context.Context, _ time.Time) (int, error) { return 0, nil }

type memAudit struct {
	mu   gosync.Mutex
	logs []entity.MovementLog
}

func (a *memAudit) Create(_ context.Context, log *entity.MovementLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, *log)
	return nil
}

func (a *memAudit) ListRecent(_ context.Context, limit int) ([]entity.MovementLog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if limit > len(a.logs) {
		limit = len(a.logs)
	}
	out := make([]entity.MovementLog, limit)
	copy(out, a.logs[:limit])
	return out, nil
}

func buildTestApp(t *testing.T, records ...entity.InventoryRecord) *fiber.App {
	t.Helper()
	store := newMemStore(records...)
	audit := &memAudit{}
	engine := appsync.NewEngine(appsync.Config{
		Debounce:  20 * time.Millisecond,
		Retention: 7 * 24 * time.Hour,
	}, store, newMemLog(), audit, logger.Nop(), nil)
	require.NoError(t, engine.Start(context.Background()))
	t.Cleanup(engine.Close)

	app := fiber.New()
	apphttp.Router(app, apphttp.RouterDeps{
		Engine:     engine,
		Audit:      audit,
		AppVersion: "test",
	})
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 2000)
	require.NoError(t, err)
	return resp
}

// ──────────────────────────────────────────────────────────────────────────────
// Rutas
// ──────────────────────────────────────────────────────────────────────────────

func seedRecord() entity.InventoryRecord {
	return entity.InventoryRecord{
		ID: "id-1", SKU: "SKU-A", Warehouse: entity.WarehouseLudlow,
		Location: "A-01", Quantity: 50, Status: entity.StatusActive,
	}
}

func TestDelta_RespondeConElValorOptimista(t *testing.T) {
	app := buildTestApp(t, seedRecord())

	resp := postJSON(t, app, "/api/sync/delta", dto.DeltaRequest{
		SKU: "SKU-A", Warehouse: "LUDLOW", Location: "A-01", Delta: 3,
	})
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	var out dto.RecordResponse
	raw, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, 53, out.Quantity, "la respuesta trae el valor visible, no el confirmado")
}

func TestDelta_ValidacionYNoEncontrado(t *testing.T) {
	app := buildTestApp(t, seedRecord())

	resp := postJSON(t, app, "/api/sync/delta", dto.DeltaRequest{
		SKU: "SKU-A", Warehouse: "LUDLOW", Location: "A-01", Delta: 0,
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, "delta cero es 400")

	resp = postJSON(t, app, "/api/sync/delta", dto.DeltaRequest{
		SKU: "SKU-X", Warehouse: "ATS", Location: "Z-99", Delta: 1,
	})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestMove_ConflictoDeRenombreEs409(t *testing.T) {
	occ := entity.InventoryRecord{
		ID: "id-2", SKU: "SKU-B", Warehouse: entity.WarehouseATS,
		Location: "C-03", Quantity: 4, Status: entity.StatusActive,
	}
	app := buildTestApp(t, seedRecord(), occ)

	resp := postJSON(t, app, "/api/sync/moves", dto.MoveRequest{
		SKU: "SKU-A", Warehouse: "LUDLOW", Location: "A-01",
		TargetWarehouse: "ATS", TargetLocation: "C-03", Quantity: 10,
	})
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	var out dto.ErrorResponse
	raw, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "RENAME_CONFLICT", out.Code)
}

func TestView_ListaLaVistaVisible(t *testing.T) {
	app := buildTestApp(t, seedRecord())

	req, _ := http.NewRequest(http.MethodGet, "/api/sync/view", nil)
	resp, err := app.Test(req, 2000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out dto.ViewResponse
	raw, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out.Records, 1)
	assert.Equal(t, "SKU-A", out.Records[0].SKU)
	assert.Equal(t, 50, out.Records[0].Quantity)
}

func TestHealth(t *testing.T) {
	app := buildTestApp(t)

	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	resp, err := app.Test(req, 2000)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
