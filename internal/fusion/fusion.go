package fusion

import (
	"fmt"

	"coach/internal/domain"
)

const Engine = "go-multimodal-v1"

// categoryLabels maps each fusion category to the raw classifier labels
// that feed it. Static by design; callers cannot override it per call.
// "surprise" intentionally feeds both confused and engaged.
var categoryLabels = map[string][]string{
	domain.EmotionConfused:   {"confused", "fear", "surprise"},
	domain.EmotionFrustrated: {"angry", "disgust", "fearful"},
	domain.EmotionBored:      {"sad", "neutral", "calm"},
	domain.EmotionEngaged:    {"happy", "surprise"},
}

// Config holds the fusion tunables. Zero values fall back to defaults
// field by field, so callers can override a single weight.
type Config struct {
	FacialWeight      float64
	VoiceWeight       float64
	InteractionWeight float64

	// Interaction is a weak, binary-ish signal: below LowInteraction it
	// nudges bored, above HighInteraction it nudges engaged, in between
	// it contributes nothing.
	LowInteraction  float64
	HighInteraction float64
	NudgeScale      float64

	// Independent intervention thresholds, one per negative category.
	ConfusedThreshold   float64
	FrustratedThreshold float64
	BoredThreshold      float64
}

func DefaultConfig() Config {
	return Config{
		FacialWeight:        0.40,
		VoiceWeight:         0.35,
		InteractionWeight:   0.25,
		LowInteraction:      0.3,
		HighInteraction:     0.7,
		NudgeScale:          0.3,
		ConfusedThreshold:   0.6,
		FrustratedThreshold: 0.5,
		BoredThreshold:      0.6,
	}
}

type Fuser struct {
	cfg Config
}

func NewFuser(cfg Config) *Fuser {
	defaults := DefaultConfig()
	if cfg.FacialWeight <= 0 {
		cfg.FacialWeight = defaults.FacialWeight
	}
	if cfg.VoiceWeight <= 0 {
		cfg.VoiceWeight = defaults.VoiceWeight
	}
	if cfg.InteractionWeight <= 0 {
		cfg.InteractionWeight = defaults.InteractionWeight
	}
	if cfg.LowInteraction <= 0 {
		cfg.LowInteraction = defaults.LowInteraction
	}
	if cfg.HighInteraction <= 0 || cfg.HighInteraction <= cfg.LowInteraction {
		cfg.HighInteraction = defaults.HighInteraction
	}
	if cfg.NudgeScale <= 0 {
		cfg.NudgeScale = defaults.NudgeScale
	}
	if cfg.ConfusedThreshold <= 0 {
		cfg.ConfusedThreshold = defaults.ConfusedThreshold
	}
	if cfg.FrustratedThreshold <= 0 {
		cfg.FrustratedThreshold = defaults.FrustratedThreshold
	}
	if cfg.BoredThreshold <= 0 {
		cfg.BoredThreshold = defaults.BoredThreshold
	}
	return &Fuser{cfg: cfg}
}

// Normalize turns the raw, individually optional signals into the shape
// Fuse expects. Nil distributions become empty, a missing interaction
// score becomes the neutral 0.5, and out-of-range interaction values are
// clamped. Never fails; a missing modality is routine, not a caller bug.
func Normalize(facial, voice domain.EmotionDistribution, interaction *float64) (domain.EmotionDistribution, domain.EmotionDistribution, float64) {
	if facial == nil {
		facial = domain.EmotionDistribution{}
	}
	if voice == nil {
		voice = domain.EmotionDistribution{}
	}
	score := 0.5
	if interaction != nil {
		score = clamp01(*interaction)
	}
	return facial, voice, score
}

// Fuse combines the normalized triple into a FusionResult. Pure and
// deterministic; identical inputs yield identical results.
func (f *Fuser) Fuse(facial, voice domain.EmotionDistribution, interaction float64) domain.FusionResult {
	scores := map[string]float64{
		domain.EmotionConfused:   0,
		domain.EmotionFrustrated: 0,
		domain.EmotionBored:      0,
		domain.EmotionEngaged:    0,
	}

	accumulate(scores, facial, f.cfg.FacialWeight)
	accumulate(scores, voice, f.cfg.VoiceWeight)

	if interaction < f.cfg.LowInteraction {
		scores[domain.EmotionBored] += f.cfg.NudgeScale * f.cfg.InteractionWeight
	} else if interaction > f.cfg.HighInteraction {
		scores[domain.EmotionEngaged] += f.cfg.NudgeScale * f.cfg.InteractionWeight
	}

	primary := primaryCategory(scores)
	engagement := clamp01(scores[domain.EmotionEngaged] - scores[domain.EmotionBored] + 0.5)

	return domain.FusionResult{
		PrimaryEmotion: primary,
		Confidence:     scores[primary],
		Engagement:     engagement,
		NeedsIntervention: scores[domain.EmotionConfused] > f.cfg.ConfusedThreshold ||
			scores[domain.EmotionFrustrated] > f.cfg.FrustratedThreshold ||
			scores[domain.EmotionBored] > f.cfg.BoredThreshold,
	}
}

// FuseBatch normalizes and fuses one raw signal batch.
func (f *Fuser) FuseBatch(batch domain.SignalBatch) domain.FusionResult {
	facial, voice, interaction := Normalize(batch.Facial, batch.Voice, batch.Interaction)
	return f.Fuse(facial, voice, interaction)
}

func accumulate(scores map[string]float64, dist domain.EmotionDistribution, weight float64) {
	if len(dist) == 0 {
		return
	}
	for category, labels := range categoryLabels {
		sum := 0.0
		for _, label := range labels {
			sum += dist[label]
		}
		scores[category] += sum * weight
	}
}

// primaryCategory scans the score table in the fixed precedence order so
// ties resolve deterministically. A missing category key means the static
// mapping itself is broken, which is a bug worth failing loudly over.
func primaryCategory(scores map[string]float64) string {
	primary := ""
	best := 0.0
	for _, category := range domain.Categories {
		score, ok := scores[category]
		if !ok {
			panic(fmt.Sprintf("fusion: category score table missing %q", category))
		}
		if primary == "" || score > best {
			primary = category
			best = score
		}
	}
	return primary
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
