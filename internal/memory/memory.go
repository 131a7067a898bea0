// Package memory holds the per-conversation slot-filling state: a short
// window of recent utterances plus the best known value and confidence for
// each required field. Values only change through a confidence-ratcheting
// merge, and the whole partial state expires after an idle timeout.
package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"money-request-bot/internal/extract"
)

const (
	maxHistory          = 5
	contextTimeout      = 2 * time.Minute
	confidenceThreshold = 0.5
)

type entry struct {
	text      string
	timestamp time.Time
	extracted *extract.Candidate
}

// Partial is the current best known value per field. Zero values mean absent.
type Partial struct {
	ProjectNumber string
	ProjectName   string
	Amount        float64
	Reason        string
}

// Session is the slot-filling memory of a single conversation.
// Safe for concurrent use.
type Session struct {
	mu              sync.Mutex
	now             func() time.Time
	history         []entry
	partial         Partial
	confidence      map[string]float64
	lastInteraction time.Time
}

func NewSession() *Session {
	return &Session{
		now:        time.Now,
		confidence: make(map[string]float64),
	}
}

// AddInteraction records one turn. Partial state accumulated before an idle
// gap longer than the context timeout is discarded first, so answers from an
// abandoned conversation never leak into a new one. The interaction time is
// updated even when text is empty.
func (s *Session) AddInteraction(text string, c *extract.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.lastInteraction.IsZero() && now.Sub(s.lastInteraction) > contextTimeout {
		s.clearPartialLocked()
	}

	if text != "" {
		s.history = append(s.history, entry{text: text, timestamp: now, extracted: c})
		if len(s.history) > maxHistory {
			s.history = s.history[1:]
		}
	}

	if c != nil {
		s.mergeLocked(c)
	}

	s.lastInteraction = now
}

func (s *Session) mergeLocked(c *extract.Candidate) {
	s.mergeStringLocked(extract.FieldProjectNumber, c.ProjectNumber, c, &s.partial.ProjectNumber)
	s.mergeStringLocked(extract.FieldProjectName, c.ProjectName, c, &s.partial.ProjectName)
	s.mergeStringLocked(extract.FieldReason, c.Reason, c, &s.partial.Reason)

	if c.Amount != 0 {
		conf := c.FieldConfidence(extract.FieldAmount)
		if s.partial.Amount == 0 || conf > s.confidence[extract.FieldAmount] {
			s.partial.Amount = c.Amount
			s.confidence[extract.FieldAmount] = conf
		}
	}
}

// A candidate value wins only when nothing is stored yet or its confidence
// strictly exceeds the stored one, so confidence never decreases here.
func (s *Session) mergeStringLocked(field, value string, c *extract.Candidate, dst *string) {
	if value == "" {
		return
	}
	conf := c.FieldConfidence(field)
	if *dst == "" || conf > s.confidence[field] {
		*dst = value
		s.confidence[field] = conf
	}
}

// MissingFields returns, in canonical order, every field whose value is
// absent or whose confidence sits below the threshold.
func (s *Session) MissingFields() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var missing []string
	for _, field := range extract.RequiredFields {
		if !s.hasValueLocked(field) || s.confidence[field] < confidenceThreshold {
			missing = append(missing, field)
		}
	}
	return missing
}

func (s *Session) hasValueLocked(field string) bool {
	switch field {
	case extract.FieldProjectNumber:
		return s.partial.ProjectNumber != ""
	case extract.FieldProjectName:
		return s.partial.ProjectName != ""
	case extract.FieldAmount:
		return s.partial.Amount != 0
	case extract.FieldReason:
		return s.partial.Reason != ""
	}
	return false
}

func (s *Session) valueLocked(field string) string {
	switch field {
	case extract.FieldProjectNumber:
		return s.partial.ProjectNumber
	case extract.FieldProjectName:
		return s.partial.ProjectName
	case extract.FieldAmount:
		return formatAmount(s.partial.Amount)
	case extract.FieldReason:
		return s.partial.Reason
	}
	return ""
}

// Context renders the conversation window plus the known partial fields as
// the single context string handed back to the extractor. This is the only
// channel through which the extractor sees prior turns.
func (s *Session) Context() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	parts := make([]string, 0, len(s.history))
	for _, e := range s.history {
		parts = append(parts, fmt.Sprintf("[%s] %s", e.timestamp.Format("15:04:05"), e.text))
	}
	context := strings.Join(parts, " ")

	var partial []string
	for _, field := range extract.RequiredFields {
		if s.hasValueLocked(field) {
			partial = append(partial, fmt.Sprintf("%s: %s (confidence: %.2f)", field, s.valueLocked(field), s.confidence[field]))
		}
	}
	if len(partial) > 0 {
		context += "\nPartial information: " + strings.Join(partial, ", ")
	}
	return context
}

// PartialInfo returns a copy of the current best known fields and their
// confidence scores.
func (s *Session) PartialInfo() (Partial, map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scores := make(map[string]float64, len(s.confidence))
	for k, v := range s.confidence {
		scores[k] = v
	}
	return s.partial, scores
}

// ClearPartialInfo resets the accumulated fields and confidences but keeps
// the conversation history.
func (s *Session) ClearPartialInfo() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearPartialLocked()
}

func (s *Session) clearPartialLocked() {
	s.partial = Partial{}
	s.confidence = make(map[string]float64)
}

// ClearMemory resets everything: history, partial fields, confidences and
// the last interaction time.
func (s *Session) ClearMemory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.clearPartialLocked()
	s.lastInteraction = time.Time{}
}

// MissingInfoPrompt is the human-readable summary shown to the user after a
// turn: what is known (with confidence) and what still needs to be provided
// or clarified.
func (s *Session) MissingInfoPrompt() string {
	missing := s.MissingFields()
	if len(missing) == 0 {
		return "All required information has been provided with sufficient confidence."
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	b.WriteString("Current information:\n")
	for _, field := range extract.RequiredFields {
		if s.hasValueLocked(field) {
			fmt.Fprintf(&b, "- %s: %s (confidence: %.2f)\n", field, s.valueLocked(field), s.confidence[field])
		}
	}

	b.WriteString("\nPlease provide or clarify the following information:\n")
	for _, field := range missing {
		if s.confidence[field] > 0 {
			fmt.Fprintf(&b, "- %s (current confidence: %.2f, needs improvement)\n", field, s.confidence[field])
		} else {
			fmt.Fprintf(&b, "- %s (missing)\n", field)
		}
	}
	return b.String()
}

func formatAmount(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}
