package db

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"coach/internal/domain"
)

var ErrUserNotFound = errors.New("user has no recorded events")

// Store is the append-mostly event log behind the in-memory core. The
// external reporting layer rebuilds intervention history and engagement
// trends from these tables; the hot path never reads them.
type Store struct {
	pool *pgxpool.Pool
}

type EngagementSummary struct {
	UserID            string
	EventCount        int
	AverageEngagement float64
	InterventionCount int
}

func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS emotion_events (
			id BIGSERIAL PRIMARY KEY,
			event_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			session_id TEXT,
			lesson_id TEXT NOT NULL DEFAULT '',
			primary_emotion TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			engagement DOUBLE PRECISION NOT NULL,
			needs_intervention BOOLEAN NOT NULL,
			facial JSONB,
			voice JSONB,
			interaction_score DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_emotion_events_user_created ON emotion_events(user_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS interventions (
			id BIGSERIAL PRIMARY KEY,
			intervention_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			session_id TEXT,
			lesson_id TEXT NOT NULL DEFAULT '',
			emotion TEXT NOT NULL,
			intervention_type TEXT NOT NULL,
			priority INT NOT NULL,
			resource JSONB,
			message TEXT NOT NULL DEFAULT '',
			response TEXT,
			effectiveness DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_interventions_user_created ON interventions(user_id, created_at);`,
		`ALTER TABLE interventions ADD COLUMN IF NOT EXISTS response TEXT;`,
		`ALTER TABLE interventions ADD COLUMN IF NOT EXISTS effectiveness DOUBLE PRECISION;`,
	}

	for _, q := range queries {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) InsertEmotionEvent(ctx context.Context, userID string, batch domain.SignalBatch, result domain.FusionResult, interaction float64) error {
	facialJSON, err := json.Marshal(batch.Facial)
	if err != nil {
		return err
	}
	voiceJSON, err := json.Marshal(batch.Voice)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO emotion_events(
			event_id, user_id, session_id, lesson_id,
			primary_emotion, confidence, engagement, needs_intervention,
			facial, voice, interaction_score
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10::jsonb, $11)
	`,
		"evt_"+strings.ReplaceAll(uuid.NewString(), "-", ""),
		userID,
		nullIfEmpty(batch.Context.SessionID),
		batch.Context.LessonID,
		result.PrimaryEmotion,
		result.Confidence,
		result.Engagement,
		result.NeedsIntervention,
		string(facialJSON),
		string(voiceJSON),
		interaction,
	)
	return err
}

func (s *Store) InsertIntervention(ctx context.Context, userID string, lctx domain.LearningContext, emotion string, resp domain.InterventionResponse) error {
	resourceJSON, err := json.Marshal(resp.Resource)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO interventions(
			intervention_id, user_id, session_id, lesson_id,
			emotion, intervention_type, priority, resource, message
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)
	`,
		"ivn_"+strings.ReplaceAll(uuid.NewString(), "-", ""),
		userID,
		nullIfEmpty(lctx.SessionID),
		lctx.LessonID,
		emotion,
		resp.Type,
		resp.Priority,
		string(resourceJSON),
		resp.Message,
	)
	return err
}

// RecordFeedback mirrors learner feedback onto the latest unanswered
// intervention row for the user.
func (s *Store) RecordFeedback(ctx context.Context, fb domain.InterventionFeedback) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE interventions
		SET response=$2, effectiveness=$3
		WHERE id = (
			SELECT id FROM interventions
			WHERE user_id=$1 AND response IS NULL
			ORDER BY created_at DESC
			LIMIT 1
		)
	`, fb.UserID, fb.Response, fb.Effectiveness)
	return err
}

// RecentInterventions loads the user's last n intervention records,
// most-recent-last. Backs the history read API when the in-memory
// ledger is cold after a restart.
func (s *Store) RecentInterventions(ctx context.Context, userID string, limit int) ([]domain.InterventionRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT emotion, intervention_type, created_at, COALESCE(response, ''), COALESCE(effectiveness, 0)
		FROM (
			SELECT emotion, intervention_type, created_at, response, effectiveness
			FROM interventions
			WHERE user_id=$1
			ORDER BY created_at DESC
			LIMIT $2
		) t
		ORDER BY created_at ASC
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.InterventionRecord, 0, limit)
	for rows.Next() {
		var r domain.InterventionRecord
		var createdAt time.Time
		if err := rows.Scan(&r.Emotion, &r.InterventionType, &createdAt, &r.Response, &r.Effectiveness); err != nil {
			return nil, err
		}
		r.Timestamp = createdAt.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// EngagementSummary aggregates a user's events since the given time.
func (s *Store) GetEngagementSummary(ctx context.Context, userID string, since time.Time) (EngagementSummary, error) {
	var out EngagementSummary
	out.UserID = userID
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(AVG(engagement), 0)
		FROM emotion_events
		WHERE user_id=$1 AND created_at >= $2
	`, userID, since).Scan(&out.EventCount, &out.AverageEngagement)
	if err != nil {
		return EngagementSummary{}, err
	}
	if out.EventCount == 0 {
		return EngagementSummary{}, ErrUserNotFound
	}
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM interventions
		WHERE user_id=$1 AND created_at >= $2
	`, userID, since).Scan(&out.InterventionCount)
	if err != nil {
		return EngagementSummary{}, err
	}
	return out, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
