package domain

import "time"

// Emotion categories the fusion engine resolves to. Upstream classifiers
// emit free-form labels; these four are the only categories the decision
// engine dispatches on.
const (
	EmotionConfused   = "confused"
	EmotionFrustrated = "frustrated"
	EmotionBored      = "bored"
	EmotionEngaged    = "engaged"
)

// Categories lists the four fusion categories in tie-break precedence
// order: the first category among those tied for the max score wins.
var Categories = []string{
	EmotionConfused,
	EmotionFrustrated,
	EmotionBored,
	EmotionEngaged,
}

// Intervention types.
const (
	InterventionVideo         = "video"
	InterventionGame          = "game"
	InterventionBreak         = "break"
	InterventionChatbot       = "chatbot"
	InterventionEncouragement = "encouragement"
)

// Resource catalog categories.
const (
	CategoryExplanatory     = "explanatory"
	CategorySimplified      = "simplified"
	CategoryInteractive     = "interactive"
	CategoryInteractiveGame = "interactive_game"
	CategoryBreak           = "break"
)

// EmotionDistribution maps raw classifier labels to probabilities in [0,1].
// Values are not required to sum to 1; upstream models may omit classes.
type EmotionDistribution map[string]float64

// SignalBatch is one frame of raw learner signals. Every field is
// optional; absent modalities fall back to neutral defaults.
type SignalBatch struct {
	UserID      string              `json:"user_id"`
	Facial      EmotionDistribution `json:"facial,omitempty"`
	Voice       EmotionDistribution `json:"voice,omitempty"`
	Interaction *float64            `json:"interaction,omitempty"`
	Context     LearningContext     `json:"context"`
}

// LearningContext carries the lesson coordinates used verbatim when
// building catalog requests and history records.
type LearningContext struct {
	SessionID       string    `json:"session_id,omitempty"`
	LessonID        string    `json:"lesson_id"`
	CurrentTopic    string    `json:"current_topic"`
	DifficultyLevel string    `json:"difficulty_level"`
	Timestamp       time.Time `json:"timestamp"`
}

// FusionResult is the fused emotional read for one signal batch.
type FusionResult struct {
	PrimaryEmotion    string  `json:"primary_emotion"`
	Confidence        float64 `json:"confidence"`
	Engagement        float64 `json:"engagement"`
	NeedsIntervention bool    `json:"needs_intervention"`
}

// InterventionRecord is one entry in a user's intervention ledger.
// Response and Effectiveness stay zero until a feedback frame arrives.
type InterventionRecord struct {
	Emotion          string    `json:"emotion"`
	InterventionType string    `json:"intervention_type"`
	Timestamp        time.Time `json:"timestamp"`
	Response         string    `json:"response,omitempty"`
	Effectiveness    float64   `json:"effectiveness,omitempty"`
}

// Resource is the opaque payload supplied by the resource catalog.
type Resource map[string]any

// InterventionResponse is what the caller delivers to the learner.
type InterventionResponse struct {
	Type     string   `json:"type"`
	Resource Resource `json:"resource"`
	Message  string   `json:"message"`
	Priority int      `json:"priority"`
}

// Frame types on the learner websocket.
const (
	FrameEmotionData     = "emotion_data"
	FrameEmotionResponse = "emotion_response"
	FrameIntervention    = "intervention"
	FrameHeartbeat       = "heartbeat"
	FrameError           = "error"
)

// InterventionFeedback reports how a learner responded to a delivered
// intervention. Arrives over the feedback topic or REST.
type InterventionFeedback struct {
	UserID        string    `json:"user_id"`
	Timestamp     time.Time `json:"timestamp"`
	Response      string    `json:"response"`
	Effectiveness float64   `json:"effectiveness"`
}
