package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/para"
)

// AppendTurn records one conversation message on a channel.
func (s *Store) AppendTurn(ctx context.Context, channel, role, content string) error {
	return s.writeWithRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO conversations (id, channel, role, content, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			uuid.New().String(), channel, role, content, time.Now().UTC())
		return err
	})
}

// RecentTurns returns up to limit turns on the channel since the cutoff,
// oldest first so they read as a transcript.
func (s *Store) RecentTurns(ctx context.Context, channel string, since time.Time, limit int) ([]para.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel, role, content, created_at FROM conversations
		 WHERE channel = ? AND created_at >= ?
		 ORDER BY created_at DESC LIMIT ?`,
		channel, since, limit)
	if err != nil {
		return nil, fmt.Errorf("listing turns: %w", err)
	}
	defer rows.Close()

	var turns []para.Turn
	for rows.Next() {
		var t para.Turn
		if err := rows.Scan(&t.ID, &t.Channel, &t.Role, &t.Content, &t.CreatedAt); err != nil {
			continue
		}
		turns = append(turns, t)
	}
	// Reverse to chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, rows.Err()
}
