// Package sqlitelog implementa la bitácora durable de mutaciones pendientes
// sobre un archivo SQLite local. Es el sustrato que permite que una edición
// hecha sin conexión sobreviva al cierre del proceso y se reanude en el
// próximo arranque.
package sqlitelog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/jhoicas/Inventario-sync/internal/domain/entity"
	"github.com/jhoicas/Inventario-sync/internal/domain/repository"
)

var _ repository.MutationLogRepository = (*Log)(nil)

// Log bitácora de mutaciones respaldada por SQLite. Una fila por mutación
// pendiente; las confirmadas y falladas se eliminan, no se marcan.
type Log struct {
	db   *sql.DB
	path string
}

// Open abre (o crea) la bitácora en la ruta dada.
func Open(path string) (*Log, error) {
	if path == "" {
		path = "mutations.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS pending_mutations (
		id                TEXT PRIMARY KEY,
		record_key        TEXT NOT NULL,
		kind              TEXT NOT NULL,
		accumulated_delta INTEGER NOT NULL DEFAULT 0,
		snapshot          BLOB,
		move_intent       BLOB,
		target_snapshot   BLOB,
		performed_by      TEXT NOT NULL DEFAULT '',
		dispatch_state    TEXT NOT NULL,
		created_at        TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create pending_mutations table: %w", err)
	}
	return &Log{db: db, path: path}, nil
}

// Close cierra el archivo de la bitácora.
func (l *Log) Close() error {
	return l.db.Close()
}

// Persist escribe o reescribe la mutación (upsert por id). Se llama en cada
// edición del buffer y en cada transición de estado.
func (l *Log) Persist(ctx context.Context, m *entity.PendingMutation) error {
	snapshot, err := marshalNullable(m.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	move, err := marshalNullable(m.Move)
	if err != nil {
		return fmt.Errorf("marshal move: %w", err)
	}
	target, err := marshalNullable(m.TargetSnapshot)
	if err != nil {
		return fmt.Errorf("marshal target snapshot: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO pending_mutations (
			id, record_key, kind, accumulated_delta, snapshot, move_intent,
			target_snapshot, performed_by, dispatch_state, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			accumulated_delta = excluded.accumulated_delta,
			snapshot          = excluded.snapshot,
			move_intent       = excluded.move_intent,
			target_snapshot   = excluded.target_snapshot,
			performed_by      = excluded.performed_by,
			dispatch_state    = excluded.dispatch_state`,
		m.ID, m.Key.String(), string(m.Kind), m.AccumulatedDelta, snapshot, move,
		target, m.PerformedBy, string(m.State), m.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("persist mutation: %w", err)
	}
	return nil
}

// RestoreAll devuelve toda mutación no terminal, en orden de creación.
func (l *Log) RestoreAll(ctx context.Context) ([]entity.PendingMutation, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, record_key, kind, accumulated_delta, snapshot, move_intent,
		       target_snapshot, performed_by, dispatch_state, created_at
		FROM pending_mutations
		WHERE dispatch_state NOT IN (?, ?)
		ORDER BY created_at ASC`,
		string(entity.StateConfirmed), string(entity.StateFailed),
	)
	if err != nil {
		return nil, fmt.Errorf("restore mutations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []entity.PendingMutation
	for rows.Next() {
		var (
			m                      entity.PendingMutation
			key, kind, state, when string
			snapshot, move, target []byte
		)
		if err := rows.Scan(&m.ID, &key, &kind, &m.AccumulatedDelta, &snapshot, &move,
			&target, &m.PerformedBy, &state, &when); err != nil {
			return nil, fmt.Errorf("scan mutation: %w", err)
		}
		rk, err := entity.ParseRecordKey(key)
		if err != nil {
			return nil, fmt.Errorf("clave corrupta en bitácora %q: %w", key, err)
		}
		m.Key = rk
		m.Kind = entity.MutationKind(kind)
		m.State = entity.DispatchState(state)
		if m.CreatedAt, err = time.Parse(time.RFC3339Nano, when); err != nil {
			return nil, fmt.Errorf("fecha corrupta en bitácora %q: %w", when, err)
		}
		if m.Snapshot, err = unmarshalNullable[entity.InventoryRecord](snapshot); err != nil {
			return nil, fmt.Errorf("snapshot corrupto en bitácora: %w", err)
		}
		if m.Move, err = unmarshalNullable[entity.MoveIntent](move); err != nil {
			return nil, fmt.Errorf("intención corrupta en bitácora: %w", err)
		}
		if m.TargetSnapshot, err = unmarshalNullable[entity.InventoryRecord](target); err != nil {
			return nil, fmt.Errorf("snapshot de destino corrupto en bitácora: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("restore mutations: %w", err)
	}
	return out, nil
}

// MarkConfirmed elimina la entrada: el almacén aceptó la escritura.
func (l *Log) MarkConfirmed(ctx context.Context, id string) error {
	return l.delete(ctx, id)
}

// MarkFailed elimina la entrada tras el rollback de la vista.
func (l *Log) MarkFailed(ctx context.Context, id string) error {
	return l.delete(ctx, id)
}

func (l *Log) delete(ctx context.Context, id string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM pending_mutations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete mutation: %w", err)
	}
	return nil
}

// PruneStale descarta entradas más viejas que el umbral y devuelve cuántas
// eliminó. Una mutación que lleva más de la ventana de retención sin poder
// entregarse se considera obsoleta frente al estado actual del almacén.
func (l *Log) PruneStale(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM pending_mutations WHERE created_at < ?`,
		olderThan.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("prune mutations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune mutations: %w", err)
	}
	return int(n), nil
}

func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalNullable[T any](raw []byte) (*T, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
