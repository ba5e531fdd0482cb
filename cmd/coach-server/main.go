package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"coach/internal/catalog"
	"coach/internal/coach"
	"coach/internal/config"
	"coach/internal/db"
	"coach/internal/decision"
	"coach/internal/domain"
	"coach/internal/fusion"
	"coach/internal/history"
	"coach/internal/notify"
)

type interventionRequest struct {
	UserID     string                 `json:"user_id"`
	Emotion    string                 `json:"emotion"`
	Confidence float64                `json:"confidence"`
	Context    domain.LearningContext `json:"context"`
}

type wsFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// feedbackRelay breaks the construction cycle between the MQTT hub and
// the coach service: the hub needs a sink before the service exists.
type feedbackRelay struct {
	svc *coach.Service
}

func (r *feedbackRelay) HandleFeedback(ctx context.Context, fb domain.InterventionFeedback) {
	if r.svc != nil {
		r.svc.HandleFeedback(ctx, fb)
	}
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cfg := config.LoadCoachServerConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var provider catalog.Provider
	if cfg.CatalogBaseURL != "" {
		provider = catalog.NewClient(cfg.CatalogBaseURL, cfg.CatalogTimeout)
		logger.Info("using external resource catalog", "base_url", cfg.CatalogBaseURL)
	} else {
		provider = catalog.NewMemory(nil)
	}

	var eventLog coach.EventLog
	var dbStore *db.Store
	if cfg.DBDSN != "" {
		var err error
		dbStore, err = db.New(ctx, cfg.DBDSN)
		if err != nil {
			logger.Error("connect db failed", "error", err)
			os.Exit(1)
		}
		defer dbStore.Close()
		if err := dbStore.Migrate(ctx); err != nil {
			logger.Error("migrate db failed", "error", err)
			os.Exit(1)
		}
		eventLog = dbStore
	} else {
		logger.Warn("DB_DSN not set, events are not persisted")
	}

	store := history.NewStore()
	fuser := fusion.NewFuser(cfg.Fusion)
	engine := decision.New(cfg.Decision, store, provider, nil, logger)

	relay := &feedbackRelay{}
	var pub coach.Publisher
	var hub *notify.Hub
	if cfg.MQTTBrokerURL != "" {
		hub = notify.NewHub(notify.HubConfig{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopicPrefix,
		}, relay, logger)
		pub = hub
	} else {
		logger.Warn("MQTT_BROKER_URL not set, learner push is disabled")
	}

	svc := coach.New(fuser, engine, store, eventLog, pub, logger)
	relay.svc = svc

	if hub != nil {
		if err := hub.Start(ctx); err != nil {
			logger.Error("start mqtt hub failed", "error", err)
			os.Exit(1)
		}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(_ *http.Request) bool {
			return true
		},
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":         true,
			"engine":     fusion.Engine,
			"categories": domain.Categories,
		})
	})
	r.Post("/v1/emotions/analyze", func(w http.ResponseWriter, req *http.Request) {
		var batch domain.SignalBatch
		if err := decodeJSONBody(req, cfg.ReadBodyMaxByte, &batch); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		batch.UserID = strings.TrimSpace(batch.UserID)
		if batch.UserID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "user_id is required"})
			return
		}
		if err := validateDistributions(batch); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}

		out, err := svc.HandleSignals(req.Context(), batch)
		if err != nil {
			logger.Error("analyze failed", "user_id", batch.UserID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, out)
	})
	r.Post("/v1/interventions", func(w http.ResponseWriter, req *http.Request) {
		var in interventionRequest
		if err := decodeJSONBody(req, cfg.ReadBodyMaxByte, &in); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		in.UserID = strings.TrimSpace(in.UserID)
		if in.UserID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "user_id is required"})
			return
		}
		if strings.TrimSpace(in.Emotion) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "emotion is required"})
			return
		}
		if math.IsNaN(in.Confidence) || math.IsInf(in.Confidence, 0) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "confidence must be a finite number"})
			return
		}

		fused := domain.FusionResult{
			PrimaryEmotion:    in.Emotion,
			Confidence:        in.Confidence,
			NeedsIntervention: true,
		}
		resp, err := svc.Intervene(req.Context(), in.UserID, fused, in.Context)
		if err != nil {
			logger.Error("intervention failed", "user_id", in.UserID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})
	r.Post("/v1/feedback", func(w http.ResponseWriter, req *http.Request) {
		var fb domain.InterventionFeedback
		if err := decodeJSONBody(req, cfg.ReadBodyMaxByte, &fb); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		fb.UserID = strings.TrimSpace(fb.UserID)
		if fb.UserID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "user_id is required"})
			return
		}
		svc.HandleFeedback(req.Context(), fb)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Get("/v1/users/{userID}/history", func(w http.ResponseWriter, req *http.Request) {
		userID := chi.URLParam(req, "userID")
		limit := cfg.HistoryAPILimit
		if raw := req.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}

		records := svc.History(userID, limit)
		if records == nil && dbStore != nil {
			// Cold ledger after a restart; fall back to the event log.
			var err error
			records, err = dbStore.RecentInterventions(req.Context(), userID, limit)
			if err != nil {
				logger.Error("load history from db failed", "user_id", userID, "error", err)
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "history lookup failed"})
				return
			}
		}
		if records == nil {
			records = []domain.InterventionRecord{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user_id": userID,
			"history": records,
		})
	})
	r.Get("/v1/users/{userID}/summary", func(w http.ResponseWriter, req *http.Request) {
		if dbStore == nil {
			writeJSON(w, http.StatusNotImplemented, map[string]any{"error": "summary requires a configured database"})
			return
		}
		userID := chi.URLParam(req, "userID")
		hours := 24
		if raw := req.URL.Query().Get("hours"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "hours must be a positive integer"})
				return
			}
			hours = n
		}

		summary, err := dbStore.GetEngagementSummary(req.Context(), userID, time.Now().UTC().Add(-time.Duration(hours)*time.Hour))
		if err != nil {
			if errors.Is(err, db.ErrUserNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]any{"error": "no events recorded for user"})
				return
			}
			logger.Error("engagement summary failed", "user_id", userID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "summary lookup failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user_id":            summary.UserID,
			"event_count":        summary.EventCount,
			"average_engagement": summary.AverageEngagement,
			"intervention_count": summary.InterventionCount,
		})
	})
	r.Get("/ws/{userID}", func(w http.ResponseWriter, req *http.Request) {
		userID := chi.URLParam(req, "userID")
		ws, err := wsUpgrader.Upgrade(w, req, nil)
		if err != nil {
			logger.Warn("upgrade websocket failed", "error", err)
			return
		}
		defer ws.Close()
		serveLearnerSocket(req.Context(), ws, userID, svc, logger)
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("coach server started", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
}

// serveLearnerSocket runs the per-learner frame loop: emotion_data in,
// emotion_response plus optional intervention out. One goroutine reads,
// writes are serialized by sendMu.
func serveLearnerSocket(ctx context.Context, ws *websocket.Conn, userID string, svc *coach.Service, logger *slog.Logger) {
	var sendMu sync.Mutex
	send := func(frameType string, data any) error {
		sendMu.Lock()
		defer sendMu.Unlock()
		return ws.WriteJSON(map[string]any{"type": frameType, "data": data})
	}

	logger.Info("learner websocket connected", "user_id", userID)
	for {
		var frame wsFrame
		if err := ws.ReadJSON(&frame); err != nil {
			logger.Info("learner websocket closed", "user_id", userID)
			return
		}

		switch frame.Type {
		case domain.FrameHeartbeat:
			_ = send(domain.FrameHeartbeat, map[string]any{"ts": time.Now().UTC()})
		case domain.FrameEmotionData:
			var batch domain.SignalBatch
			if len(frame.Data) > 0 {
				if err := json.Unmarshal(frame.Data, &batch); err != nil {
					_ = send(domain.FrameError, map[string]any{"message": "invalid emotion_data payload"})
					continue
				}
			}
			if batch.UserID == "" {
				batch.UserID = userID
			}
			if batch.UserID != userID {
				_ = send(domain.FrameError, map[string]any{"message": "user_id does not match socket"})
				continue
			}
			if err := validateDistributions(batch); err != nil {
				_ = send(domain.FrameError, map[string]any{"message": err.Error()})
				continue
			}

			out, err := svc.HandleSignals(ctx, batch)
			if err != nil {
				_ = send(domain.FrameError, map[string]any{"message": err.Error()})
				continue
			}
			if err := send(domain.FrameEmotionResponse, out.Fusion); err != nil {
				return
			}
			if out.Intervention != nil {
				if err := send(domain.FrameIntervention, out.Intervention); err != nil {
					return
				}
			}
		default:
			_ = send(domain.FrameError, map[string]any{"message": "unknown frame type: " + frame.Type})
		}
	}
}

func validateDistributions(batch domain.SignalBatch) error {
	if err := validateDistribution("facial", batch.Facial); err != nil {
		return err
	}
	if err := validateDistribution("voice", batch.Voice); err != nil {
		return err
	}
	if batch.Interaction != nil {
		v := *batch.Interaction
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("interaction must be a finite number")
		}
	}
	return nil
}

func validateDistribution(name string, dist domain.EmotionDistribution) error {
	for label, p := range dist {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("%s[%s] must be a finite number", name, label)
		}
	}
	return nil
}

func decodeJSONBody(req *http.Request, maxBytes int64, out any) error {
	defer req.Body.Close()
	data, err := io.ReadAll(io.LimitReader(req.Body, maxBytes+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return fmt.Errorf("request body too large")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	var extra any
	if err := dec.Decode(&extra); err != io.EOF {
		if err == nil {
			return fmt.Errorf("invalid json: multiple JSON values")
		}
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
