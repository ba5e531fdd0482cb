package history

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"coach/internal/domain"
)

func TestRecentUnknownUser(t *testing.T) {
	s := NewStore()
	if got := s.Recent("nobody", 5); len(got) != 0 {
		t.Fatalf("recent=%v, want empty", got)
	}
}

func TestRecentWindowMostRecentLast(t *testing.T) {
	s := NewStore()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		s.Append("u1", domain.InterventionRecord{
			Emotion:          domain.EmotionConfused,
			InterventionType: fmt.Sprintf("type-%d", i),
			Timestamp:        base.Add(time.Duration(i) * time.Minute),
		})
	}

	got := s.Recent("u1", 5)
	if len(got) != 5 {
		t.Fatalf("len=%d, want 5", len(got))
	}
	if got[0].InterventionType != "type-2" || got[4].InterventionType != "type-6" {
		t.Fatalf("window=[%s..%s], want [type-2..type-6]", got[0].InterventionType, got[4].InterventionType)
	}
}

func TestRecentReturnsCopy(t *testing.T) {
	s := NewStore()
	s.Append("u1", domain.InterventionRecord{InterventionType: domain.InterventionVideo})
	got := s.Recent("u1", 1)
	got[0].InterventionType = "mutated"
	if s.Recent("u1", 1)[0].InterventionType != domain.InterventionVideo {
		t.Fatal("Recent leaked internal storage")
	}
}

func TestRecordFeedback(t *testing.T) {
	s := NewStore()
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.Append("u1", domain.InterventionRecord{InterventionType: domain.InterventionVideo, Timestamp: ts})
	s.Append("u1", domain.InterventionRecord{InterventionType: domain.InterventionGame, Timestamp: ts.Add(time.Minute)})

	if !s.RecordFeedback("u1", ts.Add(2*time.Minute), "helpful", 0.8) {
		t.Fatal("feedback not recorded")
	}
	got := s.Recent("u1", 2)
	if got[1].Response != "helpful" || got[1].Effectiveness != 0.8 {
		t.Fatalf("latest record=%+v, want feedback on it", got[1])
	}
	if got[0].Response != "" {
		t.Fatalf("older record gained feedback: %+v", got[0])
	}
}

func TestRecordFeedbackUnknownUser(t *testing.T) {
	s := NewStore()
	if s.RecordFeedback("nobody", time.Now(), "ok", 1) {
		t.Fatal("feedback recorded for unknown user")
	}
}

func TestConcurrentAppendAndRead(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for u := 0; u < 8; u++ {
		userID := fmt.Sprintf("user-%d", u)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s.Append(userID, domain.InterventionRecord{InterventionType: domain.InterventionChatbot})
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if got := s.Recent(userID, 5); len(got) > 5 {
					t.Errorf("window overflow: %d", len(got))
					return
				}
			}
		}()
	}
	wg.Wait()

	for u := 0; u < 8; u++ {
		userID := fmt.Sprintf("user-%d", u)
		if n := s.Len(userID); n != 200 {
			t.Fatalf("user %s len=%d, want 200", userID, n)
		}
	}
}
