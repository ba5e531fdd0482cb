package catalog

import (
	"context"
	"testing"

	"coach/internal/domain"
)

func pickFirst(int) int { return 0 }

func TestExplanatoryTopicFilter(t *testing.T) {
	m := NewMemory(pickFirst)
	got, err := m.Get(context.Background(), domain.CategoryExplanatory, "lesson-1", "process methodology")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["id"] != "exp_002" {
		t.Fatalf("id=%v, want exp_002 matching topic filter", got["id"])
	}
	meta := got["metadata"].(map[string]any)
	if meta["lesson_id"] != "lesson-1" {
		t.Fatalf("lesson_id=%v, want lesson-1", meta["lesson_id"])
	}
}

func TestExplanatoryUnknownTopicFallsBack(t *testing.T) {
	m := NewMemory(pickFirst)
	got, err := m.Get(context.Background(), domain.CategoryExplanatory, "lesson-1", "quantum chromodynamics")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["id"] != "exp_001" {
		t.Fatalf("id=%v, want generic fallback exp_001", got["id"])
	}
}

func TestSimplifiedPrefersEasy(t *testing.T) {
	m := NewMemory(pickFirst)
	got, err := m.Get(context.Background(), domain.CategorySimplified, "lesson-2", "hard")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["id"] != "exp_001" {
		t.Fatalf("id=%v, want easy video exp_001", got["id"])
	}
	if got["title"] != "Simplified: Concept Breakdown" {
		t.Fatalf("title=%v", got["title"])
	}
	meta := got["metadata"].(map[string]any)
	if meta["original_difficulty"] != "hard" || meta["simplified"] != true {
		t.Fatalf("metadata=%v", meta)
	}
}

func TestInteractiveGameCarriesPoints(t *testing.T) {
	m := NewMemory(pickFirst)
	got, err := m.Get(context.Background(), domain.CategoryInteractiveGame, "lesson-3", "review")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["id"] != "game_001" || got["points"] != 50 {
		t.Fatalf("resource=%v, want game_001 with 50 points", got)
	}
}

func TestBreakActivity(t *testing.T) {
	m := NewMemory(pickFirst)
	got, err := m.Get(context.Background(), domain.CategoryBreak, "", "physical_activity")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["id"] != "break_002" || got["activity_type"] != "physical_activity" {
		t.Fatalf("resource=%v, want break_002", got)
	}
}

func TestUnknownCategoryErrors(t *testing.T) {
	m := NewMemory(pickFirst)
	if _, err := m.Get(context.Background(), "playlist", "lesson-1", ""); err == nil {
		t.Fatal("expected error for unknown category")
	}
}
