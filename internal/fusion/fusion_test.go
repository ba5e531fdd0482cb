package fusion

import (
	"math"
	"testing"

	"coach/internal/domain"
)

func TestNormalizeDefaults(t *testing.T) {
	facial, voice, interaction := Normalize(nil, nil, nil)
	if facial == nil || len(facial) != 0 {
		t.Fatalf("facial=%v, want empty distribution", facial)
	}
	if voice == nil || len(voice) != 0 {
		t.Fatalf("voice=%v, want empty distribution", voice)
	}
	if interaction != 0.5 {
		t.Fatalf("interaction=%.2f, want 0.5", interaction)
	}
}

func TestNormalizeClampsInteraction(t *testing.T) {
	neg := -0.4
	facialIn := domain.EmotionDistribution{"happy": 0.9}
	_, _, interaction := Normalize(facialIn, nil, &neg)
	if interaction != 0 {
		t.Fatalf("interaction=%.2f, want 0", interaction)
	}
	big := 1.7
	_, _, interaction = Normalize(nil, nil, &big)
	if interaction != 1 {
		t.Fatalf("interaction=%.2f, want 1", interaction)
	}
}

func TestFuseConfusedPrimaryWithoutIntervention(t *testing.T) {
	f := NewFuser(DefaultConfig())
	got := f.Fuse(domain.EmotionDistribution{"confused": 0.8, "neutral": 0.2}, domain.EmotionDistribution{}, 0.2)

	if got.PrimaryEmotion != domain.EmotionConfused {
		t.Fatalf("primary=%s, want confused", got.PrimaryEmotion)
	}
	assertNear(t, got.Confidence, 0.32)
	// Primary emotion and intervention trigger are independent: 0.32 is
	// the max score but sits below the 0.6 confused threshold.
	if got.NeedsIntervention {
		t.Fatalf("needs_intervention=true, want false at confidence %.2f", got.Confidence)
	}
}

func TestFuseLowInteractionNudgesBored(t *testing.T) {
	f := NewFuser(DefaultConfig())
	got := f.Fuse(domain.EmotionDistribution{}, domain.EmotionDistribution{}, 0.1)
	// Only the nudge contributes: bored = 0.3 * 0.25.
	assertNear(t, got.Confidence, 0.075)
	if got.PrimaryEmotion != domain.EmotionBored {
		t.Fatalf("primary=%s, want bored", got.PrimaryEmotion)
	}
}

func TestFuseHighInteractionNudgesEngaged(t *testing.T) {
	f := NewFuser(DefaultConfig())
	got := f.Fuse(nil, nil, 0.9)
	if got.PrimaryEmotion != domain.EmotionEngaged {
		t.Fatalf("primary=%s, want engaged", got.PrimaryEmotion)
	}
	assertNear(t, got.Confidence, 0.075)
	assertNear(t, got.Engagement, 0.575)
}

func TestFuseDegenerateAllZero(t *testing.T) {
	f := NewFuser(DefaultConfig())
	got := f.Fuse(domain.EmotionDistribution{}, domain.EmotionDistribution{}, 0.5)

	if got.PrimaryEmotion != domain.EmotionConfused {
		t.Fatalf("primary=%s, want confused under all-zero tie", got.PrimaryEmotion)
	}
	if got.Confidence != 0 {
		t.Fatalf("confidence=%.4f, want 0", got.Confidence)
	}
	assertNear(t, got.Engagement, 0.5)
	if got.NeedsIntervention {
		t.Fatal("needs_intervention=true, want false for degenerate input")
	}
}

func TestFuseTieBreakPrecedence(t *testing.T) {
	f := NewFuser(DefaultConfig())
	// frustrated and bored receive identical mass; frustrated must win.
	got := f.Fuse(domain.EmotionDistribution{"angry": 0.5, "sad": 0.5}, nil, 0.5)
	if got.PrimaryEmotion != domain.EmotionFrustrated {
		t.Fatalf("primary=%s, want frustrated on tie", got.PrimaryEmotion)
	}
}

func TestFuseUnknownLabelsIgnored(t *testing.T) {
	f := NewFuser(DefaultConfig())
	got := f.Fuse(domain.EmotionDistribution{"bewildered": 0.9, "happy": 0.4}, nil, 0.5)
	if got.PrimaryEmotion != domain.EmotionEngaged {
		t.Fatalf("primary=%s, want engaged", got.PrimaryEmotion)
	}
	assertNear(t, got.Confidence, 0.16)
}

func TestFuseVoiceReinforces(t *testing.T) {
	f := NewFuser(DefaultConfig())
	got := f.Fuse(
		domain.EmotionDistribution{"confused": 0.9},
		domain.EmotionDistribution{"confused": 0.8, "fear": 0.2},
		0.5,
	)
	// 0.9*0.40 + 1.0*0.35 = 0.71
	assertNear(t, got.Confidence, 0.71)
	if !got.NeedsIntervention {
		t.Fatal("needs_intervention=false, want true above confused threshold")
	}
}

func TestFuseEngagementBounds(t *testing.T) {
	f := NewFuser(DefaultConfig())
	cases := []struct {
		facial      domain.EmotionDistribution
		voice       domain.EmotionDistribution
		interaction float64
	}{
		{domain.EmotionDistribution{"happy": 1, "surprise": 1}, domain.EmotionDistribution{"happy": 1}, 0.95},
		{domain.EmotionDistribution{"sad": 1, "neutral": 1, "calm": 1}, domain.EmotionDistribution{"sad": 1}, 0.05},
		{nil, nil, 0.5},
	}
	for _, tc := range cases {
		got := f.Fuse(tc.facial, tc.voice, tc.interaction)
		if got.Engagement < 0 || got.Engagement > 1 {
			t.Fatalf("engagement=%.4f out of [0,1] for %v", got.Engagement, tc)
		}
		if !validCategory(got.PrimaryEmotion) {
			t.Fatalf("primary=%s not a fusion category", got.PrimaryEmotion)
		}
	}
}

func TestFuseIdempotent(t *testing.T) {
	f := NewFuser(DefaultConfig())
	facial := domain.EmotionDistribution{"confused": 0.4, "happy": 0.3}
	voice := domain.EmotionDistribution{"angry": 0.2, "calm": 0.5}

	first := f.Fuse(facial, voice, 0.25)
	second := f.Fuse(facial, voice, 0.25)
	if first != second {
		t.Fatalf("repeated fuse diverged: %+v vs %+v", first, second)
	}
}

func TestFuseBatch(t *testing.T) {
	f := NewFuser(DefaultConfig())
	interaction := 0.2
	got := f.FuseBatch(domain.SignalBatch{
		Facial:      domain.EmotionDistribution{"confused": 0.8, "neutral": 0.2},
		Interaction: &interaction,
	})
	if got.PrimaryEmotion != domain.EmotionConfused {
		t.Fatalf("primary=%s, want confused", got.PrimaryEmotion)
	}
	assertNear(t, got.Confidence, 0.32)
}

func TestNewFuserPartialOverride(t *testing.T) {
	cfg := Config{FrustratedThreshold: 0.9}
	f := NewFuser(cfg)
	if f.cfg.FacialWeight != 0.40 {
		t.Fatalf("facial weight=%.2f, want default 0.40", f.cfg.FacialWeight)
	}
	if f.cfg.FrustratedThreshold != 0.9 {
		t.Fatalf("frustrated threshold=%.2f, want override 0.9", f.cfg.FrustratedThreshold)
	}
}

func validCategory(s string) bool {
	for _, c := range domain.Categories {
		if s == c {
			return true
		}
	}
	return false
}

func assertNear(t *testing.T, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 0.0001 {
		t.Fatalf("value mismatch: got=%.6f want=%.6f", got, want)
	}
}
