package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/para"
)

// ErrItemNotFound is returned when a PARA item does not exist.
var ErrItemNotFound = errors.New("item not found")

const itemColumns = `id, collection, title, name, category, content, tags, related, due_at, completed, completed_at, created_at, updated_at`

// CreateItem persists a new PARA item. ID and timestamps are filled in when
// missing; Tags and Related always serialize to JSON arrays.
func (s *Store) CreateItem(ctx context.Context, item *para.Item) error {
	ctx, span := tracer.Start(ctx, "store.create_item",
		trace.WithAttributes(attribute.String("collection", string(item.Collection))))
	defer span.End()

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	query := `INSERT INTO para_items (` + itemColumns + `)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	err := s.writeWithRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query,
			item.ID, string(item.Collection), item.Title, item.Name, item.Category,
			item.Content, marshalJSON(item.Tags, "[]"), marshalJSON(item.Related, "[]"),
			item.DueAt, boolToInt(item.Completed), item.CompletedAt,
			item.CreatedAt, item.UpdatedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("inserting %s item: %w", item.Collection, err)
	}
	return nil
}

// GetItem retrieves one item by collection and id.
func (s *Store) GetItem(ctx context.Context, collection para.Collection, id string) (*para.Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM para_items WHERE collection = ? AND id = ?`,
		string(collection), id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying item: %w", err)
	}
	return item, nil
}

// ListRecent returns the most recently updated items of a collection.
func (s *Store) ListRecent(ctx context.Context, collection para.Collection, limit int) ([]para.Item, error) {
	ctx, span := tracer.Start(ctx, "store.list_recent",
		trace.WithAttributes(attribute.String("collection", string(collection))))
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM para_items WHERE collection = ?
		 ORDER BY updated_at DESC LIMIT ?`,
		string(collection), limit)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", collection, err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// ListOpenTasks returns incomplete tasks, most recently updated first.
func (s *Store) ListOpenTasks(ctx context.Context, limit int) ([]para.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM para_items
		 WHERE collection = ? AND completed = 0
		 ORDER BY updated_at DESC LIMIT ?`,
		string(para.CollectionTasks), limit)
	if err != nil {
		return nil, fmt.Errorf("listing open tasks: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// FindByTitle returns the first item of the collection whose title matches
// case-insensitively, or ErrItemNotFound.
func (s *Store) FindByTitle(ctx context.Context, collection para.Collection, title string) (*para.Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM para_items
		 WHERE collection = ? AND title = ? COLLATE NOCASE
		 ORDER BY updated_at DESC LIMIT 1`,
		string(collection), title)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding by title: %w", err)
	}
	return item, nil
}

// SearchContent returns the first item in the given collections (searched in
// order) whose content or title contains the substring. Used by URL dedup.
func (s *Store) SearchContent(ctx context.Context, collections []para.Collection, substr string) (*para.Ref, error) {
	ctx, span := tracer.Start(ctx, "store.search_content")
	defer span.End()

	pattern := "%" + substr + "%"
	for _, c := range collections {
		row := s.db.QueryRowContext(ctx,
			`SELECT id, title FROM para_items
			 WHERE collection = ? AND (content LIKE ? OR title LIKE ?)
			 ORDER BY updated_at DESC LIMIT 1`,
			string(c), pattern, pattern)
		var id, title string
		err := row.Scan(&id, &title)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("searching %s content: %w", c, err)
		}
		return &para.Ref{Collection: c, ID: id, Title: title}, nil
	}
	return nil, nil
}

// CompleteTask marks a task done and stamps completion time. Returns the
// updated task.
func (s *Store) CompleteTask(ctx context.Context, id string) (*para.Item, error) {
	ctx, span := tracer.Start(ctx, "store.complete_task",
		trace.WithAttributes(attribute.String("task_id", id)))
	defer span.End()

	now := time.Now().UTC()
	err := s.writeWithRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE para_items SET completed = 1, completed_at = ?, updated_at = ?
			 WHERE collection = ? AND id = ? AND completed = 0`,
			now, now, string(para.CollectionTasks), id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrItemNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetItem(ctx, para.CollectionTasks, id)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*para.Item, error) {
	var item para.Item
	var collection, tagsJSON, relatedJSON string
	var completed int
	err := row.Scan(&item.ID, &collection, &item.Title, &item.Name, &item.Category,
		&item.Content, &tagsJSON, &relatedJSON, &item.DueAt, &completed,
		&item.CompletedAt, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	item.Collection = para.Collection(collection)
	item.Completed = completed != 0
	_ = json.Unmarshal([]byte(tagsJSON), &item.Tags)
	_ = json.Unmarshal([]byte(relatedJSON), &item.Related)
	return &item, nil
}

func scanItems(rows *sql.Rows) ([]para.Item, error) {
	var items []para.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			continue
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}
