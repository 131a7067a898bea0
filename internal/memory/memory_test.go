package memory

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"money-request-bot/internal/extract"
)

func fixedClock(t *time.Time) func() time.Time {
	return func() time.Time { return *t }
}

func TestMergeRatchetsConfidence(t *testing.T) {
	s := NewSession()

	s.AddInteraction("need 500 riyals", &extract.Candidate{
		Amount:     500,
		Confidence: map[string]float64{extract.FieldAmount: 0.9},
	})
	s.AddInteraction("maybe 300", &extract.Candidate{
		Amount:     300,
		Confidence: map[string]float64{extract.FieldAmount: 0.4},
	})

	p, scores := s.PartialInfo()
	if p.Amount != 500 {
		t.Fatalf("lower-confidence candidate overwrote amount: got %v", p.Amount)
	}
	if scores[extract.FieldAmount] != 0.9 {
		t.Fatalf("confidence decreased: got %v", scores[extract.FieldAmount])
	}

	// Equal confidence must not overwrite either (strictly-greater rule).
	s.AddInteraction("or 700", &extract.Candidate{
		Amount:     700,
		Confidence: map[string]float64{extract.FieldAmount: 0.9},
	})
	p, _ = s.PartialInfo()
	if p.Amount != 500 {
		t.Fatalf("equal-confidence candidate overwrote amount: got %v", p.Amount)
	}
}

func TestMergeDefaultConfidence(t *testing.T) {
	s := NewSession()

	// No score supplied: defaults to 0.5 and fills an empty slot.
	s.AddInteraction("project alpha", &extract.Candidate{ProjectName: "Alpha"})
	p, scores := s.PartialInfo()
	if p.ProjectName != "Alpha" || scores[extract.FieldProjectName] != 0.5 {
		t.Fatalf("default-confidence merge failed: %+v scores=%v", p, scores)
	}

	// A higher-confidence observation replaces it.
	s.AddInteraction("it is Beta", &extract.Candidate{
		ProjectName: "Beta",
		Confidence:  map[string]float64{extract.FieldProjectName: 1.0},
	})
	p, scores = s.PartialInfo()
	if p.ProjectName != "Beta" || scores[extract.FieldProjectName] != 1.0 {
		t.Fatalf("higher-confidence merge failed: %+v scores=%v", p, scores)
	}
}

func TestIdleTimeoutClearsPartialInfo(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewSession()
	s.now = fixedClock(&now)

	s.AddInteraction("project 123", &extract.Candidate{
		ProjectNumber: "123",
		Confidence:    map[string]float64{extract.FieldProjectNumber: 1.0},
	})

	// Just under the timeout: state survives.
	now = now.Add(2 * time.Minute)
	s.AddInteraction("", nil)
	if p, _ := s.PartialInfo(); p.ProjectNumber != "123" {
		t.Fatalf("partial info cleared before timeout elapsed")
	}

	// Over the timeout: the next interaction sees empty state first.
	now = now.Add(2*time.Minute + time.Second)
	s.AddInteraction("for Library University", &extract.Candidate{
		ProjectName: "Library University",
		Confidence:  map[string]float64{extract.FieldProjectName: 1.0},
	})
	p, scores := s.PartialInfo()
	if p.ProjectNumber != "" || scores[extract.FieldProjectNumber] != 0 {
		t.Fatalf("stale partial info survived idle timeout: %+v scores=%v", p, scores)
	}
	if p.ProjectName != "Library University" {
		t.Fatalf("new candidate not applied after reset: %+v", p)
	}
}

func TestHistoryBounded(t *testing.T) {
	s := NewSession()
	for i := 0; i < 7; i++ {
		s.AddInteraction(fmt.Sprintf("turn %d", i), nil)
	}
	if n := len(s.history); n != 5 {
		t.Fatalf("history length = %d, want 5", n)
	}
	if s.history[0].text != "turn 2" {
		t.Fatalf("oldest entry not evicted: %q", s.history[0].text)
	}

	// Empty text still refreshes the interaction time but adds no entry.
	s.AddInteraction("", nil)
	if n := len(s.history); n != 5 {
		t.Fatalf("empty text appended to history: len=%d", n)
	}
}

func TestContextRendering(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 30, 15, 0, time.UTC)
	s := NewSession()
	s.now = fixedClock(&now)

	s.AddInteraction("need money for project 42", &extract.Candidate{
		ProjectNumber: "42",
		Amount:        1000,
		Confidence: map[string]float64{
			extract.FieldProjectNumber: 1.0,
			extract.FieldAmount:        1.0,
		},
	})

	got := s.Context()
	if !strings.Contains(got, "[09:30:15] need money for project 42") {
		t.Fatalf("history line missing or misformatted: %q", got)
	}
	if !strings.Contains(got, "Partial information: ") {
		t.Fatalf("partial section missing: %q", got)
	}
	if !strings.Contains(got, "project_number: 42 (confidence: 1.00)") {
		t.Fatalf("project_number not rendered: %q", got)
	}
	if !strings.Contains(got, "amount: 1000 (confidence: 1.00)") {
		t.Fatalf("amount not rendered: %q", got)
	}

	s.ClearMemory()
	if s.Context() != "" {
		t.Fatalf("context not empty after clear: %q", s.Context())
	}
}

func TestMissingFields(t *testing.T) {
	s := NewSession()

	got := s.MissingFields()
	if len(got) != 4 {
		t.Fatalf("fresh session should miss all 4 fields, got %v", got)
	}

	// Value present but below the confidence threshold still counts missing.
	s.AddInteraction("maybe project 9", &extract.Candidate{
		ProjectNumber: "9",
		Confidence:    map[string]float64{extract.FieldProjectNumber: 0.3},
	})
	found := false
	for _, f := range s.MissingFields() {
		if f == extract.FieldProjectNumber {
			found = true
		}
	}
	if !found {
		t.Fatalf("low-confidence field not reported missing: %v", s.MissingFields())
	}

	s.AddInteraction("project 9, name Lab, 200 riyals for equipment", &extract.Candidate{
		ProjectNumber: "9",
		ProjectName:   "Lab",
		Amount:        200,
		Reason:        "equipment",
		Confidence: map[string]float64{
			extract.FieldProjectNumber: 1.0,
			extract.FieldProjectName:   1.0,
			extract.FieldAmount:        1.0,
			extract.FieldReason:        1.0,
		},
	})
	if got := s.MissingFields(); len(got) != 0 {
		t.Fatalf("complete session still missing %v", got)
	}
}

func TestMissingInfoPrompt(t *testing.T) {
	s := NewSession()
	s.AddInteraction("project 5 needs repair", &extract.Candidate{
		ProjectNumber: "5",
		Reason:        "repair",
		Confidence: map[string]float64{
			extract.FieldProjectNumber: 1.0,
			extract.FieldReason:        0.3,
		},
	})

	got := s.MissingInfoPrompt()
	if !strings.Contains(got, "- project_number: 5 (confidence: 1.00)") {
		t.Fatalf("known field not listed: %q", got)
	}
	if !strings.Contains(got, "- reason (current confidence: 0.30, needs improvement)") {
		t.Fatalf("low-confidence field not flagged for improvement: %q", got)
	}
	if !strings.Contains(got, "- amount (missing)") {
		t.Fatalf("absent field not listed as missing: %q", got)
	}

	s.AddInteraction("", &extract.Candidate{
		ProjectName: "Dorm",
		Amount:      350,
		Reason:      "repair works",
		Confidence: map[string]float64{
			extract.FieldProjectName: 1.0,
			extract.FieldAmount:      1.0,
			extract.FieldReason:      1.0,
		},
	})
	if got := s.MissingInfoPrompt(); !strings.Contains(got, "All required information") {
		t.Fatalf("complete prompt wrong: %q", got)
	}
}

func TestClearPartialInfoKeepsHistory(t *testing.T) {
	s := NewSession()
	s.AddInteraction("hello", &extract.Candidate{ProjectNumber: "1"})
	s.ClearPartialInfo()

	if p, _ := s.PartialInfo(); p.ProjectNumber != "" {
		t.Fatalf("partial info not cleared")
	}
	if len(s.history) != 1 {
		t.Fatalf("history cleared by ClearPartialInfo")
	}
}

func TestManagerScopesSessionsPerUser(t *testing.T) {
	m := NewManager()
	m.Session(1).AddInteraction("a", &extract.Candidate{ProjectNumber: "11"})
	m.Session(2).AddInteraction("b", &extract.Candidate{ProjectNumber: "22"})

	if p, _ := m.Session(1).PartialInfo(); p.ProjectNumber != "11" {
		t.Fatalf("user 1 state wrong: %+v", p)
	}
	if p, _ := m.Session(2).PartialInfo(); p.ProjectNumber != "22" {
		t.Fatalf("user 2 state wrong: %+v", p)
	}

	m.Reset(1)
	if p, _ := m.Session(1).PartialInfo(); p.ProjectNumber != "" {
		t.Fatalf("reset did not clear user 1")
	}
	if p, _ := m.Session(2).PartialInfo(); p.ProjectNumber != "22" {
		t.Fatalf("reset affected user 2")
	}
}
