package coach

import (
	"context"
	"log/slog"
	"time"

	"coach/internal/decision"
	"coach/internal/domain"
	"coach/internal/fusion"
	"coach/internal/history"
)

// EventLog receives a best-effort copy of every fusion result and
// intervention for the external reporting layer. Failures are logged
// and never fail the hot path.
type EventLog interface {
	InsertEmotionEvent(ctx context.Context, userID string, batch domain.SignalBatch, result domain.FusionResult, interaction float64) error
	InsertIntervention(ctx context.Context, userID string, lctx domain.LearningContext, emotion string, resp domain.InterventionResponse) error
	RecordFeedback(ctx context.Context, fb domain.InterventionFeedback) error
}

// Publisher pushes emotion reads and interventions to learner devices.
type Publisher interface {
	PublishEmotion(ctx context.Context, userID string, result domain.FusionResult) error
	PublishIntervention(ctx context.Context, userID string, resp domain.InterventionResponse) error
}

// Service is the per-batch entry point: fuse signals, decide whether to
// intervene, record, and push. Fusion is pure arithmetic; the only
// suspension point in a decision is the catalog call inside the engine.
type Service struct {
	fuser    *fusion.Fuser
	engine   *decision.Engine
	store    *history.Store
	eventLog EventLog // nil = no persistence
	pub      Publisher
	logger   *slog.Logger
}

type AnalyzeResult struct {
	Fusion       domain.FusionResult          `json:"fusion"`
	Intervention *domain.InterventionResponse `json:"intervention,omitempty"`
}

func New(fuser *fusion.Fuser, engine *decision.Engine, store *history.Store, eventLog EventLog, pub Publisher, logger *slog.Logger) *Service {
	return &Service{
		fuser:    fuser,
		engine:   engine,
		store:    store,
		eventLog: eventLog,
		pub:      pub,
		logger:   logger,
	}
}

// HandleSignals processes one signal batch end to end. The fusion
// result is always returned; an intervention is attached only when the
// fused read crosses an intervention threshold.
func (s *Service) HandleSignals(ctx context.Context, batch domain.SignalBatch) (AnalyzeResult, error) {
	facial, voice, interaction := fusion.Normalize(batch.Facial, batch.Voice, batch.Interaction)
	fused := s.fuser.Fuse(facial, voice, interaction)

	if s.eventLog != nil {
		if err := s.eventLog.InsertEmotionEvent(ctx, batch.UserID, batch, fused, interaction); err != nil {
			s.logger.Warn("persist emotion event failed", "user_id", batch.UserID, "error", err)
		}
	}
	if s.pub != nil {
		if err := s.pub.PublishEmotion(ctx, batch.UserID, fused); err != nil {
			s.logger.Warn("publish emotion failed", "user_id", batch.UserID, "error", err)
		}
	}

	out := AnalyzeResult{Fusion: fused}
	if !fused.NeedsIntervention {
		return out, nil
	}

	resp, err := s.Intervene(ctx, batch.UserID, fused, batch.Context)
	if err != nil {
		return AnalyzeResult{}, err
	}
	out.Intervention = &resp
	return out, nil
}

// Intervene runs the decision engine for an already-fused result.
func (s *Service) Intervene(ctx context.Context, userID string, fused domain.FusionResult, lctx domain.LearningContext) (domain.InterventionResponse, error) {
	if lctx.Timestamp.IsZero() {
		lctx.Timestamp = time.Now().UTC()
	}

	resp, err := s.engine.Decide(ctx, userID, fused, lctx)
	if err != nil {
		return domain.InterventionResponse{}, err
	}

	s.logger.Info("intervention selected",
		"user_id", userID,
		"emotion", fused.PrimaryEmotion,
		"confidence", fused.Confidence,
		"type", resp.Type,
		"priority", resp.Priority,
	)

	if s.eventLog != nil {
		if err := s.eventLog.InsertIntervention(ctx, userID, lctx, fused.PrimaryEmotion, resp); err != nil {
			s.logger.Warn("persist intervention failed", "user_id", userID, "error", err)
		}
	}
	if s.pub != nil {
		if err := s.pub.PublishIntervention(ctx, userID, resp); err != nil {
			s.logger.Warn("publish intervention failed", "user_id", userID, "error", err)
		}
	}
	return resp, nil
}

// HandleFeedback attaches learner feedback to the matching history
// record and mirrors it to the event log. Satisfies notify.FeedbackSink.
func (s *Service) HandleFeedback(ctx context.Context, fb domain.InterventionFeedback) {
	if !s.store.RecordFeedback(fb.UserID, fb.Timestamp, fb.Response, fb.Effectiveness) {
		s.logger.Warn("feedback had no matching intervention", "user_id", fb.UserID)
		return
	}
	if s.eventLog != nil {
		if err := s.eventLog.RecordFeedback(ctx, fb); err != nil {
			s.logger.Warn("persist feedback failed", "user_id", fb.UserID, "error", err)
		}
	}
}

// History exposes the user's recent ledger window for the read API.
func (s *Service) History(userID string, n int) []domain.InterventionRecord {
	return s.store.Recent(userID, n)
}
