package datastore

import (
	"context"
	"time"
)

// SaveAttempt appends one attempt to the log.
func (s *Store) SaveAttempt(ctx context.Context, rec *AttemptRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := s.DB.WithContext(ctx).Create(rec).Error; err != nil {
		return dbError(err, "save_attempt")
	}
	return nil
}

// RecentAttempts returns up to limit attempts, newest first.
func (s *Store) RecentAttempts(ctx context.Context, limit int) ([]AttemptRecord, error) {
	var recs []AttemptRecord
	q := s.DB.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, dbError(err, "recent_attempts")
	}
	return recs, nil
}

// AttemptStats counts attempts per outcome since a point in time.
type AttemptStats struct {
	Since     time.Time
	Total     int64
	ByOutcome map[string]int64
}

// HitRate is identified plus duplicate over total.
func (a AttemptStats) HitRate() float64 {
	if a.Total == 0 {
		return 0
	}
	return float64(a.ByOutcome["identified"]+a.ByOutcome["duplicate"]) / float64(a.Total)
}

// Stats aggregates the attempt log. A zero since covers everything.
func (s *Store) Stats(ctx context.Context, since time.Time) (AttemptStats, error) {
	var rows []struct {
		Outcome string
		Count   int64
	}
	q := s.DB.WithContext(ctx).
		Model(&AttemptRecord{}).
		Select("outcome, COUNT(*) AS count").
		Group("outcome")
	if !since.IsZero() {
		q = q.Where("created_at >= ?", since.UTC())
	}
	if err := q.Scan(&rows).Error; err != nil {
		return AttemptStats{}, dbError(err, "attempt_stats")
	}

	st := AttemptStats{Since: since, ByOutcome: make(map[string]int64, len(rows))}
	for _, r := range rows {
		st.ByOutcome[r.Outcome] = r.Count
		st.Total += r.Count
	}
	return st, nil
}

// PruneAttempts deletes attempts older than cutoff and returns the count.
func (s *Store) PruneAttempts(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&AttemptRecord{})
	if res.Error != nil {
		return 0, dbError(res.Error, "prune_attempts")
	}
	return res.RowsAffected, nil
}
