// Package digest produces the recurring daily summary: open tasks plus the
// day's transactions, pushed out through the notify connector.
package digest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/notify"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/para"
)

// Store is the read surface the digest needs.
type Store interface {
	ListOpenTasks(ctx context.Context, limit int) ([]para.Item, error)
	TransactionsSince(ctx context.Context, since time.Time, limit int) ([]para.Transaction, error)
}

// Digester renders and delivers the daily summary.
type Digester struct {
	store  Store
	sender notify.Sender
	chatID int64
	loc    *time.Location
}

// New creates a digester delivering to the given chat.
func New(store Store, sender notify.Sender, chatID int64, loc *time.Location) *Digester {
	if loc == nil {
		loc = time.UTC
	}
	return &Digester{store: store, sender: sender, chatID: chatID, loc: loc}
}

// Run builds today's digest and sends it.
func (d *Digester) Run(ctx context.Context) error {
	text, err := d.Render(ctx)
	if err != nil {
		return err
	}
	if err := d.sender.SendReply(ctx, d.chatID, 0, text); err != nil {
		return fmt.Errorf("send digest: %w", err)
	}
	return nil
}

// Render composes the digest text without sending it.
func (d *Digester) Render(ctx context.Context) (string, error) {
	tasks, err := d.store.ListOpenTasks(ctx, 20)
	if err != nil {
		return "", fmt.Errorf("digest tasks: %w", err)
	}

	now := time.Now().In(d.loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, d.loc)
	txns, err := d.store.TransactionsSince(ctx, midnight.UTC(), 100)
	if err != nil {
		return "", fmt.Errorf("digest transactions: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Daily digest for %s\n", now.Format("Mon 2 Jan"))

	if len(tasks) == 0 {
		b.WriteString("\nNo open tasks. Clear runway.\n")
	} else {
		fmt.Fprintf(&b, "\nOpen tasks (%d):\n", len(tasks))
		for _, t := range tasks {
			line := "- " + t.Title
			if t.DueAt != nil {
				line += " (due " + t.DueAt.In(d.loc).Format("2 Jan") + ")"
			}
			b.WriteString(line + "\n")
		}
	}

	if len(txns) > 0 {
		var total float64
		for _, t := range txns {
			if t.Kind == "expense" {
				total += t.Amount
			}
		}
		fmt.Fprintf(&b, "\nToday's transactions: %d, expenses %.2f\n", len(txns), total)
	}

	return b.String(), nil
}

// Scheduler runs the digest on a cron expression.
type Scheduler struct {
	cron     *cron.Cron
	digester *Digester
}

// NewScheduler creates a scheduler in the digester's timezone.
func NewScheduler(d *Digester, loc *time.Location) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		digester: d,
	}
}

// Start registers the job and begins the schedule.
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.digester.Run(ctx); err != nil {
			log.Error().Err(err).Msg("digest_run_failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule digest: %w", err)
	}
	s.cron.Start()
	log.Info().Str("schedule", spec).Msg("digest_scheduler_started")
	return nil
}

// Stop halts the schedule and waits for a running job.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
