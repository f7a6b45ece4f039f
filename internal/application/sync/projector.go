package sync

import (
	"sort"
	gosync "sync"

	"github.com/jhoicas/Inventario-sync/internal/domain/entity"
)

// Projector mantiene la vista visible del inventario en memoria y la muta de
// forma optimista antes de que el almacén confirme. Ninguna operación bloquea:
// el proyector solo lee y escribe el espejo local, nunca habla con la red.
//
// Garantía: mientras una clave tiene mutación en buffering o en vuelo, su
// valor visible es siempre snapshot + delta acumulado; una vez confirmada,
// exactamente el valor del servidor.
type Projector struct {
	mu      gosync.RWMutex
	records map[string]entity.InventoryRecord
}

// NewProjector crea un proyector vacío.
func NewProjector() *Projector {
	return &Projector{records: make(map[string]entity.InventoryRecord)}
}

// Load reemplaza la vista completa (carga inicial desde el almacén).
func (p *Projector) Load(records []entity.InventoryRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = make(map[string]entity.InventoryRecord, len(records))
	for _, r := range records {
		p.records[r.Key().String()] = r
	}
}

// Get devuelve una copia del registro visible de la clave.
func (p *Projector) Get(key entity.RecordKey) (entity.InventoryRecord, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.records[key.String()]
	return r, ok
}

// Apply fija la cantidad visible de la clave. Idempotente: re-aplicar el
// mismo valor no tiene efecto observable. Si la clave no existe, no hace nada.
func (p *Projector) Apply(key entity.RecordKey, quantity int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.records[key.String()]
	if !ok || r.Quantity == quantity {
		return
	}
	r.Quantity = quantity
	p.records[key.String()] = r
}

// Revert restaura el valor exacto previo al lote. Un snapshot nil significa
// que el registro no existía antes: se elimina de la vista.
func (p *Projector) Revert(key entity.RecordKey, snapshot *entity.InventoryRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if snapshot == nil {
		delete(p.records, key.String())
		return
	}
	p.records[snapshot.Key().String()] = *snapshot
}

// Replace upserta un registro completo (confirmaciones e invalidaciones).
// Los registros inactivos salen de la vista visible.
func (p *Projector) Replace(rec entity.InventoryRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rec.Status == entity.StatusInactive {
		delete(p.records, rec.Key().String())
		return
	}
	p.records[rec.Key().String()] = rec
}

// Remove elimina la clave de la vista.
func (p *Projector) Remove(key entity.RecordKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.records, key.String())
}

// FindAtLocation devuelve una copia del ocupante visible de la coordenada
// (bodega, ubicación), o nil si el slot está vacío.
func (p *Projector) FindAtLocation(warehouse entity.Warehouse, location string) (*entity.InventoryRecord, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, r := range p.records {
		if r.Warehouse == warehouse && r.Location == location {
			occ := r
			return &occ, true
		}
	}
	return nil, false
}

// All devuelve la vista completa ordenada por bodega, ubicación y SKU
// (mismo orden que usa el listado del almacén).
func (p *Projector) All() []entity.InventoryRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]entity.InventoryRecord, 0, len(p.records))
	for _, r := range p.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Warehouse != out[j].Warehouse {
			return out[i].Warehouse > out[j].Warehouse // LUDLOW antes que ATS
		}
		if out[i].Location != out[j].Location {
			return out[i].Location < out[j].Location
		}
		return out[i].SKU < out[j].SKU
	})
	return out
}
