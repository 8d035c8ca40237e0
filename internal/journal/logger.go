// internal/journal/logger.go
package journal

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"encore-ledger/internal/domain"
	"encore-ledger/internal/events"
	"encore-ledger/internal/metrics"
	"encore-ledger/internal/repository"
)

// PublishedEvent is the analytics payload sent for every journal entry.
// It carries the wallet id, never the raw user id.
type PublishedEvent struct {
	JournalEntryID string          `json:"journal_entry_id"`
	EventType      string          `json:"event_type"`
	EventCategory  string          `json:"event_category"`
	CorrelationID  string          `json:"correlation_id"`
	WalletID       string          `json:"wallet_id"`
	AmountCents    int64           `json:"amount_cents"`
	Currency       string          `json:"currency"`
	Metadata       domain.Metadata `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// PartitionKey keeps a wallet's events ordered on one partition.
func (e PublishedEvent) PartitionKey() string {
	return e.WalletID
}

// Logger appends advisory entries to the audit journal. It never fails the caller.
type Logger struct {
	db        repository.DBExecutor
	repo      repository.JournalRepository
	publisher events.Publisher
	topic     string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewLogger creates a journal Logger. publisher may be nil.
func NewLogger(
	db repository.DBExecutor,
	repo repository.JournalRepository,
	publisher events.Publisher,
	topic string,
	timeout time.Duration,
	logger *slog.Logger,
) *Logger {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Logger{
		db:        db,
		repo:      repo,
		publisher: publisher,
		topic:     topic,
		timeout:   timeout,
		logger:    logger,
	}
}

// LogEvent records ev and returns the new journal entry id, or "" when the
// journal could not be written. Failures are logged and counted only.
func (l *Logger) LogEvent(ctx context.Context, ev domain.JournalEvent) string {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	ev.Metadata = ev.Metadata.
		With("amount_cents", strconv.FormatInt(ev.AmountCents, 10)).
		With("currency", ev.Currency)
	entry := domain.NewJournalEntry(ev, time.Now())

	if err := l.repo.CreateEntry(ctx, l.db, entry); err != nil {
		metrics.JournalFailuresTotal.WithLabelValues("log").Inc()
		l.logger.Error("Failed to write audit journal entry",
			"correlation_id", ev.CorrelationID, "event_type", entry.EventType, "error", err)
		return ""
	}

	published := PublishedEvent{
		JournalEntryID: entry.ID,
		EventType:      entry.EventType,
		EventCategory:  entry.EventCategory,
		CorrelationID:  entry.CorrelationID,
		WalletID:       entry.WalletID,
		AmountCents:    ev.AmountCents,
		Currency:       ev.Currency,
		Metadata:       entry.Metadata,
		CreatedAt:      entry.CreatedAt,
	}
	if err := l.publisher.Publish(ctx, l.topic, published); err != nil {
		metrics.JournalFailuresTotal.WithLabelValues("publish").Inc()
		l.logger.Warn("Failed to publish journal event",
			"correlation_id", ev.CorrelationID, "journal_entry_id", entry.ID, "error", err)
	}

	return entry.ID
}
