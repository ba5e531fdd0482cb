package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"coach/internal/domain"
)

type HubConfig struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// FeedbackSink receives learner feedback frames arriving over MQTT.
type FeedbackSink interface {
	HandleFeedback(ctx context.Context, fb domain.InterventionFeedback)
}

// Hub pushes emotion reads and interventions to learner devices and
// listens for their feedback.
type Hub struct {
	cfg      HubConfig
	client   paho.Client
	feedback FeedbackSink
	logger   *slog.Logger
}

func NewHub(cfg HubConfig, feedback FeedbackSink, logger *slog.Logger) *Hub {
	return &Hub{
		cfg:      cfg,
		feedback: feedback,
		logger:   logger,
	}
}

func (h *Hub) Start(ctx context.Context) error {
	opts := paho.NewClientOptions().
		AddBroker(h.cfg.BrokerURL).
		SetClientID(h.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)

	if h.cfg.Username != "" {
		opts.SetUsername(h.cfg.Username)
		opts.SetPassword(h.cfg.Password)
	}

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		h.logger.Error("mqtt connection lost", "error", err)
	})

	h.client = paho.NewClient(opts)
	if token := h.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	if token := h.client.Subscribe(TopicLearnerFeedbackWildcard(h.cfg.TopicPrefix), 1, h.handleFeedback); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	go func() {
		<-ctx.Done()
		h.client.Disconnect(100)
	}()

	return nil
}

func (h *Hub) handleFeedback(_ paho.Client, msg paho.Message) {
	userID, err := ParseUserID(msg.Topic(), h.cfg.TopicPrefix)
	if err != nil {
		h.logger.Warn("skip invalid feedback topic", "topic", msg.Topic(), "error", err)
		return
	}

	var fb domain.InterventionFeedback
	if err := json.Unmarshal(msg.Payload(), &fb); err != nil {
		h.logger.Warn("invalid feedback payload", "user_id", userID, "error", err)
		return
	}
	if fb.UserID == "" {
		fb.UserID = userID
	}
	if fb.UserID != userID {
		h.logger.Warn("feedback user mismatch", "topic_user", userID, "payload_user", fb.UserID)
		return
	}
	if fb.Timestamp.IsZero() {
		fb.Timestamp = time.Now().UTC()
	}

	if h.feedback != nil {
		h.feedback.HandleFeedback(context.Background(), fb)
	}
}

func (h *Hub) PublishEmotion(_ context.Context, userID string, result domain.FusionResult) error {
	return h.publish(TopicLearnerEmotion(h.cfg.TopicPrefix, userID), result)
}

func (h *Hub) PublishIntervention(_ context.Context, userID string, resp domain.InterventionResponse) error {
	return h.publish(TopicLearnerIntervention(h.cfg.TopicPrefix, userID), resp)
}

func (h *Hub) publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if token := h.client.Publish(topic, 1, false, body); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}
