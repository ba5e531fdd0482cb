package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"coach/internal/decision"
	"coach/internal/fusion"
)

type CoachServerConfig struct {
	HTTPAddr        string
	ReadBodyMaxByte int64
	DBDSN           string
	HistoryAPILimit int

	MQTTBrokerURL   string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string

	CatalogBaseURL string
	CatalogTimeout time.Duration

	Fusion   fusion.Config
	Decision decision.Config
}

// LoadCoachServerConfig reads everything from the environment. DB, MQTT
// and the external catalog are all optional: unset DSN disables the
// event log, unset broker disables push, unset catalog URL selects the
// built-in content set.
func LoadCoachServerConfig() CoachServerConfig {
	return CoachServerConfig{
		HTTPAddr:        getenvDefault("COACH_HTTP_ADDR", ":9020"),
		ReadBodyMaxByte: int64(getenvIntDefault("COACH_MAX_BODY_BYTES", 262144)),
		DBDSN:           os.Getenv("DB_DSN"),
		HistoryAPILimit: getenvIntDefault("COACH_HISTORY_API_LIMIT", 20),

		MQTTBrokerURL:   os.Getenv("MQTT_BROKER_URL"),
		MQTTClientID:    getenvDefault("COACH_MQTT_CLIENT_ID", "coach-server"),
		MQTTUsername:    os.Getenv("MQTT_USERNAME"),
		MQTTPassword:    os.Getenv("MQTT_PASSWORD"),
		MQTTTopicPrefix: getenvDefault("MQTT_TOPIC_PREFIX", "coach"),

		CatalogBaseURL: strings.TrimRight(os.Getenv("CATALOG_BASE_URL"), "/"),
		CatalogTimeout: time.Duration(getenvIntDefault("CATALOG_TIMEOUT_MS", 1500)) * time.Millisecond,

		Fusion: fusion.Config{
			FacialWeight:        getenvFloatDefault("FUSION_FACIAL_WEIGHT", 0.40),
			VoiceWeight:         getenvFloatDefault("FUSION_VOICE_WEIGHT", 0.35),
			InteractionWeight:   getenvFloatDefault("FUSION_INTERACTION_WEIGHT", 0.25),
			LowInteraction:      getenvFloatDefault("FUSION_LOW_INTERACTION", 0.3),
			HighInteraction:     getenvFloatDefault("FUSION_HIGH_INTERACTION", 0.7),
			NudgeScale:          getenvFloatDefault("FUSION_NUDGE_SCALE", 0.3),
			ConfusedThreshold:   getenvFloatDefault("FUSION_CONFUSED_THRESHOLD", 0.6),
			FrustratedThreshold: getenvFloatDefault("FUSION_FRUSTRATED_THRESHOLD", 0.5),
			BoredThreshold:      getenvFloatDefault("FUSION_BORED_THRESHOLD", 0.6),
		},
		Decision: decision.Config{
			EscalationWindow:          getenvIntDefault("DECISION_ESCALATION_WINDOW", 5),
			EscalationCount:           getenvIntDefault("DECISION_ESCALATION_COUNT", 2),
			PreferenceWindow:          getenvIntDefault("DECISION_PREFERENCE_WINDOW", 10),
			GameBias:                  getenvFloatDefault("DECISION_GAME_BIAS", 0.6),
			ConfusedVideoConfidence:   getenvFloatDefault("DECISION_CONFUSED_VIDEO_CONFIDENCE", 0.8),
			FrustratedBreakConfidence: getenvFloatDefault("DECISION_FRUSTRATED_BREAK_CONFIDENCE", 0.7),
		},
	}
}

func getenvDefault(key, val string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return val
}

func getenvIntDefault(key string, val int) int {
	v := os.Getenv(key)
	if v == "" {
		return val
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return val
	}
	return n
}

func getenvFloatDefault(key string, val float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return val
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return val
	}
	return f
}
