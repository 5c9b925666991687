package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/para"
)

// AddKnowledge stores one long-term fact or lesson.
func (s *Store) AddKnowledge(ctx context.Context, kind, content string) error {
	return s.writeWithRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO knowledge (id, kind, content, created_at) VALUES (?, ?, ?, ?)`,
			uuid.New().String(), kind, content, time.Now().UTC())
		return err
	})
}

// ListKnowledge returns the newest entries of a kind.
func (s *Store) ListKnowledge(ctx context.Context, kind string, limit int) ([]para.Knowledge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, content, created_at FROM knowledge
		 WHERE kind = ? ORDER BY created_at DESC LIMIT ?`,
		kind, limit)
	if err != nil {
		return nil, fmt.Errorf("listing knowledge: %w", err)
	}
	defer rows.Close()

	var entries []para.Knowledge
	for rows.Next() {
		var k para.Knowledge
		if err := rows.Scan(&k.ID, &k.Kind, &k.Content, &k.CreatedAt); err != nil {
			continue
		}
		entries = append(entries, k)
	}
	return entries, rows.Err()
}
