package decision

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"coach/internal/catalog"
	"coach/internal/domain"
	"coach/internal/history"
)

// Config holds the decision tunables. Zero values fall back to defaults
// field by field.
type Config struct {
	// EscalationWindow is the history window checked for repeated
	// confusion; EscalationCount is how many confused entries inside it
	// trigger the chatbot hand-off.
	EscalationWindow int
	EscalationCount  int

	// PreferenceWindow is the history window used to infer a content
	// preference for bored learners.
	PreferenceWindow int

	// GameBias is the probability of choosing a game for a bored learner
	// with no clear preference. A deliberate product lean, not noise.
	GameBias float64

	// Confidence cut-offs for the confused video branch and the
	// frustrated break branch. Strict inequalities.
	ConfusedVideoConfidence   float64
	FrustratedBreakConfidence float64
}

func DefaultConfig() Config {
	return Config{
		EscalationWindow:          5,
		EscalationCount:           2,
		PreferenceWindow:          10,
		GameBias:                  0.6,
		ConfusedVideoConfidence:   0.8,
		FrustratedBreakConfidence: 0.7,
	}
}

var encouragementMessages = []string{
	"You're on fire! Keep up the excellent work!",
	"Great focus! You're really getting this.",
	"Awesome progress! You're in the zone!",
	"Fantastic! Your dedication is showing.",
}

// Engine maps a fusion result plus the user's recent history to an
// intervention, and records the decision. Stateless apart from the
// injected collaborators; safe for concurrent use across users.
type Engine struct {
	cfg     Config
	store   *history.Store
	catalog catalog.Provider
	randFn  func() float64
	nowFn   func() time.Time
	logger  *slog.Logger
}

// New builds an engine. randFn returns a uniform draw in [0,1); nil uses
// math/rand. nowFn defaults to time.Now.
func New(cfg Config, store *history.Store, provider catalog.Provider, randFn func() float64, logger *slog.Logger) *Engine {
	defaults := DefaultConfig()
	if cfg.EscalationWindow <= 0 {
		cfg.EscalationWindow = defaults.EscalationWindow
	}
	if cfg.EscalationCount <= 0 {
		cfg.EscalationCount = defaults.EscalationCount
	}
	if cfg.PreferenceWindow <= 0 {
		cfg.PreferenceWindow = defaults.PreferenceWindow
	}
	if cfg.GameBias <= 0 {
		cfg.GameBias = defaults.GameBias
	}
	if cfg.ConfusedVideoConfidence <= 0 {
		cfg.ConfusedVideoConfidence = defaults.ConfusedVideoConfidence
	}
	if cfg.FrustratedBreakConfidence <= 0 {
		cfg.FrustratedBreakConfidence = defaults.FrustratedBreakConfidence
	}
	if randFn == nil {
		randFn = rand.Float64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:     cfg,
		store:   store,
		catalog: provider,
		randFn:  randFn,
		nowFn:   time.Now,
		logger:  logger,
	}
}

// Decide selects an intervention for the user and appends the decision
// to history. The append happens only after the response is fully
// assembled, so a cancelled catalog call leaves no ghost entry.
func (e *Engine) Decide(ctx context.Context, userID string, fused domain.FusionResult, lctx domain.LearningContext) (domain.InterventionResponse, error) {
	var resp domain.InterventionResponse
	switch fused.PrimaryEmotion {
	case domain.EmotionConfused:
		resp = e.handleConfusion(ctx, userID, fused.Confidence, lctx)
	case domain.EmotionFrustrated:
		resp = e.handleFrustration(ctx, fused.Confidence, lctx)
	case domain.EmotionBored:
		resp = e.handleBoredom(ctx, userID, lctx)
	case domain.EmotionEngaged:
		resp = e.reinforceEngagement()
	default:
		resp = e.defaultCheckIn()
	}

	if err := ctx.Err(); err != nil {
		return domain.InterventionResponse{}, err
	}

	ts := lctx.Timestamp
	if ts.IsZero() {
		ts = e.nowFn()
	}
	e.store.Append(userID, domain.InterventionRecord{
		Emotion:          fused.PrimaryEmotion,
		InterventionType: resp.Type,
		Timestamp:        ts,
	})
	return resp, nil
}

func (e *Engine) handleConfusion(ctx context.Context, userID string, confidence float64, lctx domain.LearningContext) domain.InterventionResponse {
	recent := e.store.Recent(userID, e.cfg.EscalationWindow)
	confusedCount := 0
	for _, r := range recent {
		if r.Emotion == domain.EmotionConfused {
			confusedCount++
		}
	}
	if confusedCount >= e.cfg.EscalationCount {
		// Repeated confusion; hand off regardless of confidence.
		return domain.InterventionResponse{
			Type: domain.InterventionChatbot,
			Resource: domain.Resource{
				"type":       "ai_tutor",
				"message":    "I notice you've been having some challenges. Let me connect you with additional help.",
				"escalation": true,
			},
			Message:  "Let's get you some personalized help!",
			Priority: 3,
		}
	}

	if confidence > e.cfg.ConfusedVideoConfidence {
		resource, ok := e.fetch(ctx, domain.CategoryExplanatory, lctx.LessonID, lctx.CurrentTopic)
		if !ok {
			return degraded(e.quickHelp())
		}
		return domain.InterventionResponse{
			Type:     domain.InterventionVideo,
			Resource: resource,
			Message:  "Let me show you this in a different way!",
			Priority: 2,
		}
	}

	return e.quickHelp()
}

func (e *Engine) quickHelp() domain.InterventionResponse {
	return domain.InterventionResponse{
		Type: domain.InterventionChatbot,
		Resource: domain.Resource{
			"type":    "quick_help",
			"message": "Would you like me to explain this concept differently?",
			"options": []string{"Yes, show me a video", "Give me an example", "Skip for now"},
		},
		Message:  "Need a quick clarification?",
		Priority: 1,
	}
}

func (e *Engine) handleFrustration(ctx context.Context, confidence float64, lctx domain.LearningContext) domain.InterventionResponse {
	if confidence > e.cfg.FrustratedBreakConfidence {
		// Break content is inlined; no catalog dependency on this path.
		return domain.InterventionResponse{
			Type: domain.InterventionBreak,
			Resource: domain.Resource{
				"type":     "mindful_break",
				"duration": 5,
				"activity": "breathing_exercise",
				"message":  "Take a moment to breathe and reset.",
			},
			Message:  "Let's take a quick breather together.",
			Priority: 3,
		}
	}

	resource, ok := e.fetch(ctx, domain.CategorySimplified, lctx.LessonID, lctx.DifficultyLevel)
	if !ok {
		return degraded(domain.InterventionResponse{
			Type: domain.InterventionBreak,
			Resource: domain.Resource{
				"type":     "mindful_break",
				"duration": 5,
				"activity": "breathing_exercise",
				"message":  "Take a moment to breathe and reset.",
			},
			Message:  "Let's take a quick breather together.",
			Priority: 2,
		})
	}
	return domain.InterventionResponse{
		Type:     domain.InterventionVideo,
		Resource: resource,
		Message:  "You're doing great! Let's try a different approach.",
		Priority: 2,
	}
}

func (e *Engine) handleBoredom(ctx context.Context, userID string, lctx domain.LearningContext) domain.InterventionResponse {
	preferred := e.preferredType(userID)
	if preferred == domain.InterventionGame || (preferred == "" && e.randFn() < e.cfg.GameBias) {
		resource, ok := e.fetch(ctx, domain.CategoryInteractiveGame, lctx.LessonID, lctx.CurrentTopic)
		if ok {
			return domain.InterventionResponse{
				Type:     domain.InterventionGame,
				Resource: resource,
				Message:  "Ready for a fun challenge?",
				Priority: 2,
			}
		}
		// Fall through to the interactive branch on catalog failure.
	}

	resource, ok := e.fetch(ctx, domain.CategoryInteractive, lctx.LessonID, lctx.CurrentTopic)
	if !ok {
		return degraded(e.quickHelp())
	}
	return domain.InterventionResponse{
		Type:     domain.InterventionVideo,
		Resource: resource,
		Message:  "Let's spice things up a bit!",
		Priority: 1,
	}
}

// preferredType tallies intervention types over the preference window.
// Returns "" when the user has no history or no strict majority type.
func (e *Engine) preferredType(userID string) string {
	recent := e.store.Recent(userID, e.cfg.PreferenceWindow)
	if len(recent) == 0 {
		return ""
	}
	counts := make(map[string]int, len(recent))
	for _, r := range recent {
		counts[r.InterventionType]++
	}
	best, bestCount, tied := "", 0, false
	for it, n := range counts {
		switch {
		case n > bestCount:
			best, bestCount, tied = it, n, false
		case n == bestCount:
			tied = true
		}
	}
	if tied {
		return ""
	}
	return best
}

func (e *Engine) reinforceEngagement() domain.InterventionResponse {
	msg := encouragementMessages[int(e.randFn()*float64(len(encouragementMessages)))%len(encouragementMessages)]
	return domain.InterventionResponse{
		Type: domain.InterventionEncouragement,
		Resource: domain.Resource{
			"type":    "positive_feedback",
			"message": msg,
			"badge":   "focused_learner",
			"points":  10,
		},
		Message:  "Keep up the amazing work!",
		Priority: 0,
	}
}

func (e *Engine) defaultCheckIn() domain.InterventionResponse {
	return domain.InterventionResponse{
		Type: domain.InterventionChatbot,
		Resource: domain.Resource{
			"type":    "check_in",
			"message": "How are you feeling about the material?",
			"options": []string{"Going well", "Need help", "Taking a break"},
		},
		Message:  "Just checking in on your progress!",
		Priority: 0,
	}
}

// fetch wraps the catalog call with the graceful-degradation contract:
// a failed or empty fetch never aborts the decision.
func (e *Engine) fetch(ctx context.Context, category, lessonID, topicOrDifficulty string) (domain.Resource, bool) {
	resource, err := e.catalog.Get(ctx, category, lessonID, topicOrDifficulty)
	if err != nil {
		e.logger.Warn("catalog fetch failed", "category", category, "lesson_id", lessonID, "error", err)
		return nil, false
	}
	if len(resource) == 0 {
		e.logger.Warn("catalog returned no resource", "category", category, "lesson_id", lessonID)
		return nil, false
	}
	return resource, true
}

func degraded(resp domain.InterventionResponse) domain.InterventionResponse {
	out := make(domain.Resource, len(resp.Resource)+1)
	for k, v := range resp.Resource {
		out[k] = v
	}
	out["degraded"] = true
	resp.Resource = out
	return resp
}

// Priority derives a standalone priority from emotion and confidence,
// independent of the strategy dispatch above. Always within [0,3].
func Priority(emotion string, confidence float64) int {
	base := 0
	switch emotion {
	case domain.EmotionFrustrated:
		base = 3
	case domain.EmotionConfused:
		base = 2
	case domain.EmotionBored:
		base = 1
	case domain.EmotionEngaged:
		base = 0
	}
	if confidence > 0.8 && base < 3 {
		base++
	}
	if confidence < 0.5 && base > 0 {
		base--
	}
	return base
}
