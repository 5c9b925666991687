package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/para"
)

// UpsertEmbedding stores the vector for one item. Vectors are JSON float
// arrays; similarity is computed in Go at query time.
func (s *Store) UpsertEmbedding(ctx context.Context, e *para.Embedding) error {
	vecJSON, err := json.Marshal(e.Vector)
	if err != nil {
		return fmt.Errorf("marshaling vector: %w", err)
	}
	return s.writeWithRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO embeddings (collection, item_id, title, vector, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(collection, item_id) DO UPDATE SET
			     title = excluded.title, vector = excluded.vector, updated_at = excluded.updated_at`,
			string(e.Collection), e.ItemID, e.Title, string(vecJSON), time.Now().UTC())
		return err
	})
}

// ListEmbeddings returns all stored vectors for the given collections.
// The semantic dedup tier scans these with cosine similarity; volumes are
// personal-scale so a full scan stays cheap.
func (s *Store) ListEmbeddings(ctx context.Context, collections []para.Collection) ([]para.Embedding, error) {
	ctx, span := tracer.Start(ctx, "store.list_embeddings")
	defer span.End()

	var out []para.Embedding
	for _, c := range collections {
		rows, err := s.db.QueryContext(ctx,
			`SELECT collection, item_id, title, vector, updated_at FROM embeddings WHERE collection = ?`,
			string(c))
		if err != nil {
			return nil, fmt.Errorf("listing embeddings for %s: %w", c, err)
		}
		for rows.Next() {
			var e para.Embedding
			var collection, vecJSON string
			if err := rows.Scan(&collection, &e.ItemID, &e.Title, &vecJSON, &e.UpdatedAt); err != nil {
				continue
			}
			e.Collection = para.Collection(collection)
			if err := json.Unmarshal([]byte(vecJSON), &e.Vector); err != nil {
				continue
			}
			out = append(out, e)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
