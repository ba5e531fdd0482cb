package coach

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"coach/internal/catalog"
	"coach/internal/decision"
	"coach/internal/domain"
	"coach/internal/fusion"
	"coach/internal/history"
)

type capturingPublisher struct {
	emotions      []domain.FusionResult
	interventions []domain.InterventionResponse
}

func (p *capturingPublisher) PublishEmotion(_ context.Context, _ string, r domain.FusionResult) error {
	p.emotions = append(p.emotions, r)
	return nil
}

func (p *capturingPublisher) PublishIntervention(_ context.Context, _ string, r domain.InterventionResponse) error {
	p.interventions = append(p.interventions, r)
	return nil
}

func newService(store *history.Store, pub Publisher) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fuser := fusion.NewFuser(fusion.DefaultConfig())
	cat := catalog.NewMemory(func(int) int { return 0 })
	engine := decision.New(decision.DefaultConfig(), store, cat, func() float64 { return 0.1 }, logger)
	return New(fuser, engine, store, nil, pub, logger)
}

func signalBatch(facial domain.EmotionDistribution, interaction float64) domain.SignalBatch {
	return domain.SignalBatch{
		UserID:      "u1",
		Facial:      facial,
		Interaction: &interaction,
		Context: domain.LearningContext{
			LessonID:        "lesson-1",
			CurrentTopic:    "basics",
			DifficultyLevel: "medium",
			Timestamp:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestHandleSignalsBelowThresholdNoIntervention(t *testing.T) {
	store := history.NewStore()
	pub := &capturingPublisher{}
	svc := newService(store, pub)

	got, err := svc.HandleSignals(context.Background(), signalBatch(domain.EmotionDistribution{"confused": 0.8, "neutral": 0.2}, 0.2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Fusion.PrimaryEmotion != domain.EmotionConfused {
		t.Fatalf("primary=%s, want confused", got.Fusion.PrimaryEmotion)
	}
	if got.Intervention != nil {
		t.Fatalf("intervention=%+v, want none below threshold", got.Intervention)
	}
	if store.Len("u1") != 0 {
		t.Fatal("no history entry expected without an intervention")
	}
	if len(pub.emotions) != 1 || len(pub.interventions) != 0 {
		t.Fatalf("published %d emotions, %d interventions; want 1/0", len(pub.emotions), len(pub.interventions))
	}
}

func TestHandleSignalsTriggersIntervention(t *testing.T) {
	store := history.NewStore()
	pub := &capturingPublisher{}
	svc := newService(store, pub)

	// confused = (0.9*0.40)+(0.9*0.35) = 0.675 > 0.6.
	batch := signalBatch(domain.EmotionDistribution{"confused": 0.9}, 0.5)
	batch.Voice = domain.EmotionDistribution{"confused": 0.9}

	got, err := svc.HandleSignals(context.Background(), batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Fusion.NeedsIntervention || got.Intervention == nil {
		t.Fatalf("result=%+v, want an intervention", got)
	}
	// confidence 0.675 is below the 0.8 video branch: quick help.
	if got.Intervention.Type != domain.InterventionChatbot || got.Intervention.Priority != 1 {
		t.Fatalf("intervention=%+v, want chatbot/1", got.Intervention)
	}
	if store.Len("u1") != 1 {
		t.Fatalf("history len=%d, want 1", store.Len("u1"))
	}
	if len(pub.interventions) != 1 {
		t.Fatalf("published %d interventions, want 1", len(pub.interventions))
	}
}

func TestHandleFeedbackUpdatesLedger(t *testing.T) {
	store := history.NewStore()
	svc := newService(store, nil)

	batch := signalBatch(domain.EmotionDistribution{"confused": 0.9}, 0.5)
	batch.Voice = domain.EmotionDistribution{"confused": 0.9}
	if _, err := svc.HandleSignals(context.Background(), batch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	svc.HandleFeedback(context.Background(), domain.InterventionFeedback{
		UserID:        "u1",
		Timestamp:     time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC),
		Response:      "helpful",
		Effectiveness: 0.9,
	})

	recent := svc.History("u1", 1)
	if len(recent) != 1 || recent[0].Response != "helpful" {
		t.Fatalf("history=%v, want feedback attached", recent)
	}
}

func TestHandleSignalsEmptyBatchIsTotal(t *testing.T) {
	svc := newService(history.NewStore(), nil)
	got, err := svc.HandleSignals(context.Background(), domain.SignalBatch{UserID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Fusion.PrimaryEmotion != domain.EmotionConfused || got.Fusion.Confidence != 0 {
		t.Fatalf("fusion=%+v, want degenerate confused/0", got.Fusion)
	}
	if got.Intervention != nil {
		t.Fatal("no intervention expected for neutral empty batch")
	}
}
