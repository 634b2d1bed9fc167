package timing

import (
	"context"
	"database/sql"
	"fmt"
)

// recordMaxRetries bounds the optimistic CAS loop in Record. Losing an
// increment after this many collisions is acceptable; distribution status
// correctness never depends on pattern counters.
const recordMaxRetries = 3

// PatternStore persists timing patterns in the timing_patterns table.
type PatternStore struct {
	db *sql.DB
}

// NewPatternStore creates a pattern store over db.
func NewPatternStore(db *sql.DB) *PatternStore {
	return &PatternStore{db: db}
}

// Record folds one event into the (scope, dayOfWeek, hourOfDay) slot,
// creating the slot on first use. The update is an optimistic
// read-modify-write: the UPDATE only applies if the counters are unchanged
// since the read, and collisions retry up to recordMaxRetries times before
// the increment is dropped with ErrConcurrentUpdate.
func (s *PatternStore) Record(ctx context.Context, scope Scope, dayOfWeek, hourOfDay int, kind EventKind) error {
	if dayOfWeek < 0 || dayOfWeek > 6 || hourOfDay < 0 || hourOfDay > 23 {
		return fmt.Errorf("slot out of range: day=%d hour=%d", dayOfWeek, hourOfDay)
	}

	for attempt := 0; attempt < recordMaxRetries; attempt++ {
		p, err := s.get(ctx, scope, dayOfWeek, hourOfDay)
		if err != nil {
			return err
		}
		if p == nil {
			created, err := s.create(ctx, scope, dayOfWeek, hourOfDay, kind)
			if err != nil {
				return err
			}
			if created {
				return nil
			}
			// Another writer created the slot first; retry as an update.
			continue
		}

		prevSent, prevOpened, prevClicked := p.TotalSent, p.TotalOpened, p.TotalClicked
		apply(p, kind)

		res, err := s.db.ExecContext(ctx, `
			UPDATE timing_patterns
			SET total_sent = $1, total_opened = $2, total_clicked = $3,
			    open_rate = $4, click_rate = $5, score = $6, updated_at = NOW()
			WHERE owner = $7 AND country = $8 AND category = $9
			  AND day_of_week = $10 AND hour_of_day = $11
			  AND total_sent = $12 AND total_opened = $13 AND total_clicked = $14
		`, p.TotalSent, p.TotalOpened, p.TotalClicked,
			int64(p.OpenRate), int64(p.ClickRate), p.Score,
			scope.Owner, scope.Country, scope.Category, dayOfWeek, hourOfDay,
			prevSent, prevOpened, prevClicked)
		if err != nil {
			return fmt.Errorf("update pattern slot: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return nil
		}
	}
	return ErrConcurrentUpdate
}

func (s *PatternStore) create(ctx context.Context, scope Scope, dayOfWeek, hourOfDay int, kind EventKind) (bool, error) {
	p := &Pattern{Scope: scope, DayOfWeek: dayOfWeek, HourOfDay: hourOfDay}
	apply(p, kind)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO timing_patterns (
			owner, country, category, day_of_week, hour_of_day,
			total_sent, total_opened, total_clicked, open_rate, click_rate, score, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (owner, country, category, day_of_week, hour_of_day) DO NOTHING
	`, scope.Owner, scope.Country, scope.Category, dayOfWeek, hourOfDay,
		p.TotalSent, p.TotalOpened, p.TotalClicked, int64(p.OpenRate), int64(p.ClickRate), p.Score)
	if err != nil {
		return false, fmt.Errorf("create pattern slot: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (s *PatternStore) get(ctx context.Context, scope Scope, dayOfWeek, hourOfDay int) (*Pattern, error) {
	p := &Pattern{Scope: scope, DayOfWeek: dayOfWeek, HourOfDay: hourOfDay}
	var openRate, clickRate int64
	err := s.db.QueryRowContext(ctx, `
		SELECT total_sent, total_opened, total_clicked, open_rate, click_rate, score, updated_at
		FROM timing_patterns
		WHERE owner = $1 AND country = $2 AND category = $3 AND day_of_week = $4 AND hour_of_day = $5
	`, scope.Owner, scope.Country, scope.Category, dayOfWeek, hourOfDay).
		Scan(&p.TotalSent, &p.TotalOpened, &p.TotalClicked, &openRate, &clickRate, &p.Score, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pattern slot: %w", err)
	}
	p.OpenRate = Rate(openRate)
	p.ClickRate = Rate(clickRate)
	return p, nil
}

// Best returns the highest-scoring slot for scope among slots with
// total_sent ≥ minSample, or ErrInsufficientData if none qualify. Ties
// break toward the larger sample, then the earlier slot, so results are
// stable across calls.
func (s *PatternStore) Best(ctx context.Context, scope Scope, minSample int) (*Pattern, error) {
	p := &Pattern{Scope: scope}
	var openRate, clickRate int64
	err := s.db.QueryRowContext(ctx, `
		SELECT day_of_week, hour_of_day, total_sent, total_opened, total_clicked,
		       open_rate, click_rate, score, updated_at
		FROM timing_patterns
		WHERE owner = $1 AND country = $2 AND category = $3 AND total_sent >= $4
		ORDER BY score DESC, total_sent DESC, day_of_week ASC, hour_of_day ASC
		LIMIT 1
	`, scope.Owner, scope.Country, scope.Category, minSample).
		Scan(&p.DayOfWeek, &p.HourOfDay, &p.TotalSent, &p.TotalOpened, &p.TotalClicked,
			&openRate, &clickRate, &p.Score, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrInsufficientData
	}
	if err != nil {
		return nil, fmt.Errorf("query best slot: %w", err)
	}
	p.OpenRate = Rate(openRate)
	p.ClickRate = Rate(clickRate)
	return p, nil
}
