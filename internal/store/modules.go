package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/para"
)

// ErrModuleNotFound is returned when no module matches.
var ErrModuleNotFound = errors.New("module not found")

// UpsertModule inserts or updates a module definition by id.
func (s *Store) UpsertModule(ctx context.Context, m *para.Module) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return s.writeWithRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO modules (id, name, description, fields, created_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET name = excluded.name,
			     description = excluded.description, fields = excluded.fields`,
			m.ID, m.Name, m.Description, marshalJSON(m.Fields, "[]"), m.CreatedAt)
		return err
	})
}

// ListModules returns all module definitions.
func (s *Store) ListModules(ctx context.Context) ([]para.Module, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, fields, created_at FROM modules ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing modules: %w", err)
	}
	defer rows.Close()

	var modules []para.Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			continue
		}
		modules = append(modules, *m)
	}
	return modules, rows.Err()
}

// GetModule returns a module by id or name (case-insensitive).
func (s *Store) GetModule(ctx context.Context, idOrName string) (*para.Module, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, fields, created_at FROM modules
		 WHERE id = ? OR name = ? COLLATE NOCASE LIMIT 1`,
		idOrName, strings.TrimSpace(idOrName))
	m, err := scanModule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrModuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying module: %w", err)
	}
	return m, nil
}

// CreateModuleItem persists one free-form module entry.
func (s *Store) CreateModuleItem(ctx context.Context, item *para.ModuleItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	item.CreatedAt = time.Now().UTC()
	err := s.writeWithRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO module_items (id, module_id, data, created_at) VALUES (?, ?, ?, ?)`,
			item.ID, item.ModuleID, marshalJSON(item.Data, "{}"), item.CreatedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("inserting module item: %w", err)
	}
	return nil
}

func scanModule(row rowScanner) (*para.Module, error) {
	var m para.Module
	var fieldsJSON string
	if err := row.Scan(&m.ID, &m.Name, &m.Description, &fieldsJSON, &m.CreatedAt); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(fieldsJSON), &m.Fields)
	return &m, nil
}
