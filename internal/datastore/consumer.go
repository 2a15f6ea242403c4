package datastore

import (
	"context"
	"time"

	"github.com/tphakala/trackid-go/internal/events"
	"github.com/tphakala/trackid-go/internal/logger"
)

const writeTimeout = 5 * time.Second

// AttemptLogger is an event bus consumer writing finished attempts to the
// attempt log.
type AttemptLogger struct {
	store *Store
	log   logger.Logger
}

func NewAttemptLogger(store *Store) *AttemptLogger {
	return &AttemptLogger{store: store, log: GetLogger()}
}

func (a *AttemptLogger) Name() string { return "attempt-log" }

// Accepts implements events.Filter.
func (a *AttemptLogger) Accepts(kind events.Kind) bool {
	switch kind {
	case events.KindIdentified, events.KindDuplicate, events.KindMiss, events.KindFailed:
		return true
	}
	return false
}

func (a *AttemptLogger) ProcessEvent(e events.Event) error {
	rec := &AttemptRecord{
		SessionID:  e.SessionID,
		Trigger:    e.Trigger,
		Outcome:    string(e.Kind),
		Category:   e.Category,
		Message:    truncate(e.Message, 255),
		DurationMs: e.Duration.Milliseconds(),
		CreatedAt:  e.Timestamp.UTC(),
	}
	if e.Track != nil {
		rec.TrackID = e.Track.ID
		rec.Title = e.Track.Title
		rec.Artist = e.Track.Artist
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := a.store.SaveAttempt(ctx, rec); err != nil {
		a.log.Warn("failed to record attempt",
			logger.String("session_id", e.SessionID),
			logger.String("outcome", rec.Outcome),
			logger.Error(err))
		return err
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
