package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/para"
)

// ErrLogNotFound is returned when a capture log row does not exist.
var ErrLogNotFound = errors.New("capture log not found")

const logColumns = `id, channel, event_id, message, action_type, status, result_json, created_at, updated_at`

// Claim atomically claims the (channel, eventID) pair for one pipeline run.
// claimed means this caller owns the run; replay means a terminal row exists
// and its stored result must be returned verbatim.
//
// A fresh event inserts a processing row and is claimed. A redelivered event
// whose row is still processing is only reclaimed when the row is older than
// staleness, via a conditional update guarded by the expected prior status,
// never a read-then-write, so two concurrent deliveries cannot both win.
// Events without an id always get a new row (no idempotency handle).
func (s *Store) Claim(ctx context.Context, channel, eventID, message string, staleness time.Duration) (logRow *para.CaptureLog, claimed, replay bool, err error) {
	ctx, span := tracer.Start(ctx, "store.claim_capture",
		trace.WithAttributes(
			attribute.String("channel", channel),
			attribute.String("event_id", eventID),
		))
	defer span.End()

	now := time.Now().UTC()
	row := &para.CaptureLog{
		ID:        uuid.New().String(),
		Channel:   channel,
		EventID:   eventID,
		Message:   message,
		Status:    para.StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}

	insert := func() (bool, error) {
		var res sql.Result
		err := s.writeWithRetry(ctx, func() error {
			var execErr error
			res, execErr = s.db.ExecContext(ctx,
				`INSERT INTO capture_logs (`+logColumns+`)
				 VALUES (?, ?, ?, ?, '', ?, '', ?, ?)
				 ON CONFLICT(channel, event_id) WHERE event_id != '' DO NOTHING`,
				row.ID, row.Channel, row.EventID, row.Message, row.Status,
				row.CreatedAt, row.UpdatedAt)
			return execErr
		})
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, err
		}
		return n == 1, nil
	}

	inserted, err := insert()
	if err != nil {
		return nil, false, false, fmt.Errorf("claiming capture log: %w", err)
	}
	if inserted || eventID == "" {
		// Rows without an event id never conflict (partial unique index);
		// once the insert succeeded the row is ours.
		span.SetAttributes(attribute.Bool("claimed", true))
		return row, true, false, nil
	}

	existing, err := s.GetLogByEvent(ctx, channel, eventID)
	if err != nil {
		return nil, false, false, err
	}
	if existing.Status != para.StatusProcessing {
		return existing, false, true, nil
	}

	// Stale processing row: reclaim with a compare-and-update.
	cutoff := now.Add(-staleness)
	var reclaimed bool
	err = s.writeWithRetry(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx,
			`UPDATE capture_logs SET status = ?, message = ?, updated_at = ?
			 WHERE id = ? AND status = ? AND updated_at <= ?`,
			para.StatusProcessing, message, now,
			existing.ID, para.StatusProcessing, cutoff)
		if execErr != nil {
			return execErr
		}
		n, execErr := res.RowsAffected()
		if execErr != nil {
			return execErr
		}
		reclaimed = n == 1
		return nil
	})
	if err != nil {
		return nil, false, false, fmt.Errorf("reclaiming capture log: %w", err)
	}
	if reclaimed {
		existing.Message = message
		existing.UpdatedAt = now
		span.SetAttributes(attribute.Bool("reclaimed", true))
		return existing, true, false, nil
	}
	return existing, false, false, nil
}

// FinalizeLog moves a capture log row to its terminal status and stores the
// serialized result envelope.
func (s *Store) FinalizeLog(ctx context.Context, id, actionType, status, resultJSON string) error {
	ctx, span := tracer.Start(ctx, "store.finalize_capture",
		trace.WithAttributes(
			attribute.String("log_id", id),
			attribute.String("status", status),
		))
	defer span.End()

	return s.writeWithRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE capture_logs SET action_type = ?, status = ?, result_json = ?, updated_at = ?
			 WHERE id = ?`,
			actionType, status, resultJSON, time.Now().UTC(), id)
		return err
	})
}

// GetLogByEvent returns the row for (channel, eventID).
func (s *Store) GetLogByEvent(ctx context.Context, channel, eventID string) (*para.CaptureLog, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+logColumns+` FROM capture_logs WHERE channel = ? AND event_id = ?`,
		channel, eventID)
	l, err := scanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying capture log: %w", err)
	}
	return l, nil
}

// RecentByMessage returns log rows with identical raw message text since the
// cutoff, newest first, excluding the given in-flight log id. Dedup evidence
// for the exact-message tier.
func (s *Store) RecentByMessage(ctx context.Context, message, excludeID string, since time.Time, limit int) ([]para.CaptureLog, error) {
	ctx, span := tracer.Start(ctx, "store.logs_by_message")
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+logColumns+` FROM capture_logs
		 WHERE message = ? AND id != ? AND created_at >= ?
		 ORDER BY created_at DESC LIMIT ?`,
		message, excludeID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("querying logs by message: %w", err)
	}
	defer rows.Close()
	return scanLogs(rows)
}

// RecentLogs returns the newest capture log rows for observability.
func (s *Store) RecentLogs(ctx context.Context, limit int) ([]para.CaptureLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+logColumns+` FROM capture_logs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent logs: %w", err)
	}
	defer rows.Close()
	return scanLogs(rows)
}

func scanLog(row rowScanner) (*para.CaptureLog, error) {
	var l para.CaptureLog
	err := row.Scan(&l.ID, &l.Channel, &l.EventID, &l.Message, &l.ActionType,
		&l.Status, &l.ResultJSON, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func scanLogs(rows *sql.Rows) ([]para.CaptureLog, error) {
	var logs []para.CaptureLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			continue
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}
