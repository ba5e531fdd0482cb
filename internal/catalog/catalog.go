package catalog

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"coach/internal/domain"
)

// Provider supplies teachable resources by category. Implementations
// must be safe for concurrent use and must not fail for unknown lessons
// or topics; a best-effort generic resource is always acceptable.
type Provider interface {
	Get(ctx context.Context, category, lessonID, topicOrDifficulty string) (domain.Resource, error)
}

type contentItem struct {
	ID         string
	Title      string
	URL        string
	Duration   int
	Difficulty string
	Points     int
	Topics     []string
}

// Memory is the built-in provider, seeded with the default content set.
// Selection among equally relevant items uses the injected random
// source so tests can pin the choice.
type Memory struct {
	mu     sync.Mutex
	randFn func(n int) int
	videos []contentItem
	games  []contentItem
	breaks []contentItem
}

// NewMemory builds the seeded catalog. randFn picks an index in [0,n);
// nil uses math/rand.
func NewMemory(randFn func(n int) int) *Memory {
	if randFn == nil {
		randFn = rand.Intn
	}
	return &Memory{
		randFn: randFn,
		videos: []contentItem{
			{ID: "exp_001", Title: "Concept Breakdown", URL: "/videos/explanation/concept_breakdown.mp4", Duration: 180, Difficulty: "easy", Topics: []string{"fundamentals", "basics"}},
			{ID: "exp_002", Title: "Step by Step Guide", URL: "/videos/explanation/step_by_step.mp4", Duration: 240, Difficulty: "medium", Topics: []string{"process", "methodology"}},
		},
		games: []contentItem{
			{ID: "game_001", Title: "Quiz Challenge", URL: "/games/quiz_challenge", Duration: 300, Points: 50, Topics: []string{"review", "assessment"}},
			{ID: "game_002", Title: "Drag and Drop", URL: "/games/drag_drop", Duration: 180, Points: 30, Topics: []string{"categorization", "matching"}},
		},
		breaks: []contentItem{
			{ID: "break_001", Title: "Breathing Exercise", URL: "/breaks/breathing", Duration: 300, Difficulty: "guided_meditation"},
			{ID: "break_002", Title: "Quick Stretch", URL: "/breaks/stretch", Duration: 180, Difficulty: "physical_activity"},
		},
	}
}

func (m *Memory) Get(_ context.Context, category, lessonID, topicOrDifficulty string) (domain.Resource, error) {
	switch category {
	case domain.CategoryExplanatory:
		item := m.pickByTopic(m.videos, topicOrDifficulty)
		return domain.Resource{
			"id":       item.ID,
			"title":    item.Title,
			"url":      item.URL,
			"duration": item.Duration,
			"type":     "explanatory_video",
			"metadata": map[string]any{
				"lesson_id":  lessonID,
				"topic":      topicOrDifficulty,
				"difficulty": item.Difficulty,
			},
		}, nil
	case domain.CategorySimplified:
		item := m.pickByDifficulty(m.videos, "easy")
		return domain.Resource{
			"id":       item.ID,
			"title":    "Simplified: " + item.Title,
			"url":      item.URL,
			"duration": item.Duration,
			"type":     "simplified_content",
			"metadata": map[string]any{
				"lesson_id":           lessonID,
				"original_difficulty": topicOrDifficulty,
				"simplified":          true,
			},
		}, nil
	case domain.CategoryInteractiveGame:
		item := m.pickByTopic(m.games, topicOrDifficulty)
		return domain.Resource{
			"id":       item.ID,
			"title":    item.Title,
			"url":      item.URL,
			"duration": item.Duration,
			"points":   item.Points,
			"type":     "interactive_game",
			"metadata": map[string]any{
				"lesson_id": lessonID,
				"topic":     topicOrDifficulty,
				"gamified":  true,
			},
		}, nil
	case domain.CategoryInteractive:
		// Mix of videos and light games.
		all := append(append([]contentItem{}, m.videos...), m.games...)
		item := m.pick(all)
		return domain.Resource{
			"id":       item.ID,
			"title":    item.Title,
			"url":      item.URL,
			"duration": item.Duration,
			"type":     "interactive_content",
			"metadata": map[string]any{
				"lesson_id":   lessonID,
				"topic":       topicOrDifficulty,
				"interactive": true,
			},
		}, nil
	case domain.CategoryBreak:
		item := m.pickByDifficulty(m.breaks, topicOrDifficulty)
		return domain.Resource{
			"id":            item.ID,
			"title":         item.Title,
			"url":           item.URL,
			"duration":      item.Duration,
			"type":          "mindful_break",
			"activity_type": item.Difficulty,
		}, nil
	default:
		return nil, fmt.Errorf("unknown catalog category: %s", category)
	}
}

func (m *Memory) pick(items []contentItem) contentItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return items[m.randFn(len(items))]
}

func (m *Memory) pickByTopic(items []contentItem, topic string) contentItem {
	topic = strings.ToLower(strings.TrimSpace(topic))
	if topic == "" {
		return m.pick(items)
	}
	var relevant []contentItem
	for _, item := range items {
		for _, t := range item.Topics {
			if strings.Contains(topic, t) {
				relevant = append(relevant, item)
				break
			}
		}
	}
	if len(relevant) == 0 {
		relevant = items
	}
	return m.pick(relevant)
}

func (m *Memory) pickByDifficulty(items []contentItem, difficulty string) contentItem {
	var relevant []contentItem
	for _, item := range items {
		if item.Difficulty == difficulty {
			relevant = append(relevant, item)
		}
	}
	if len(relevant) == 0 {
		relevant = items
	}
	return m.pick(relevant)
}
