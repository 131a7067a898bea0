// Package extract wraps the language-model call that turns free-form (and
// possibly Arabic) text into a structured money-request candidate.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"money-request-bot/internal/llm"
)

var arabicPattern = regexp.MustCompile("[؀-ۿ]")

// Processor extracts request details via an injected LLM client, so tests
// can run against deterministic fakes.
type Processor struct {
	client llm.Client
}

func NewProcessor(client llm.Client) *Processor {
	return &Processor{client: client}
}

// IsArabic reports whether the text contains characters in the Arabic
// script range.
func IsArabic(text string) bool {
	return arabicPattern.MatchString(text)
}

// Translate converts Arabic segments to English while keeping English
// segments and numbers verbatim. It never fails: any error is logged and
// the original text is returned unchanged.
func (p *Processor) Translate(ctx context.Context, text string) string {
	prompt := "Translate the following text to English. If the text is mixed (Arabic and English), " +
		"translate only the Arabic parts and keep the English parts as is. " +
		"Keep numbers in their original format.\n\n" +
		"Text to translate: " + text

	resp, err := p.client.Generate(ctx, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		log.Printf("translation error: %v", err)
		return text
	}
	out := strings.TrimSpace(resp.Content)
	if out == "" {
		return text
	}
	return out
}

// Extract runs the extraction prompt over the accumulated context plus the
// new utterance and returns the post-processed candidate. A malformed model
// response is an error for this turn, never a crash.
func (p *Processor) Extract(ctx context.Context, text, convContext string) (*Candidate, error) {
	fullText := strings.TrimSpace(strings.TrimSpace(convContext) + " " + text)

	processingText := fullText
	translated := false
	if IsArabic(fullText) {
		processingText = p.Translate(ctx, fullText)
		translated = true
	}

	prompt := buildExtractionPrompt(processingText)
	resp, err := p.client.Generate(ctx, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}

	c, err := parseExtraction(resp.Content)
	if err != nil {
		return nil, err
	}

	c.OriginalText = fullText
	if translated {
		c.TranslatedText = processingText
	}
	return c, nil
}

func buildExtractionPrompt(text string) string {
	return `Extract the following information from this text and previous context.
The input has been translated from Arabic if it contained Arabic text.

Rules for extraction:
1. Project number: Extract ONLY the numeric value, remove any non-numeric characters
2. Project name: Extract the complete project name, including "University" if mentioned
3. Amount: Extract ONLY the numeric value in riyals
4. Reason: Extract the complete reason phrase

Format the response exactly as a JSON object with these keys:
{
    "project_number": "extracted number or empty string",
    "project_name": "extracted name or empty string",
    "amount": extracted number or 0,
    "reason": "extracted reason or empty string",
    "missing_fields": ["list of missing required fields"],
    "original_text": "the original input text"
}

##No preamble## Response in VALID JSON ONLY##

Text to analyze: ` + text
}

var requiredKeys = []string{"project_number", "project_name", "amount", "reason", "missing_fields"}

func parseExtraction(raw string) (*Candidate, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &fields); err != nil {
		return nil, fmt.Errorf("model response is not valid JSON: %w", err)
	}
	for _, key := range requiredKeys {
		if _, ok := fields[key]; !ok {
			return nil, fmt.Errorf("model response is missing required key %q", key)
		}
	}

	c := &Candidate{
		ProjectNumber: digitsOnly(looseString(fields["project_number"])),
		ProjectName:   looseString(fields["project_name"]),
		Amount:        looseAmount(fields["amount"]),
		Reason:        looseString(fields["reason"]),
	}

	// Missing fields are recomputed from the post-processed values; the
	// model's own list is not trusted.
	if c.ProjectNumber == "" {
		c.MissingFields = append(c.MissingFields, FieldProjectNumber)
	}
	if c.ProjectName == "" {
		c.MissingFields = append(c.MissingFields, FieldProjectName)
	}
	if c.Amount == 0 {
		c.MissingFields = append(c.MissingFields, FieldAmount)
	}
	if c.Reason == "" {
		c.MissingFields = append(c.MissingFields, FieldReason)
	}

	c.Confidence = map[string]float64{
		FieldProjectNumber: binaryConfidence(c.ProjectNumber != ""),
		FieldProjectName:   binaryConfidence(c.ProjectName != ""),
		FieldAmount:        binaryConfidence(c.Amount > 0),
		FieldReason:        binaryConfidence(c.Reason != ""),
	}
	return c, nil
}

// Validate is the submission gate: every business field present and the
// amount strictly positive.
func Validate(c *Candidate) bool {
	if c == nil {
		return false
	}
	return c.ProjectNumber != "" && c.ProjectName != "" && c.Amount > 0 && c.Reason != ""
}

// Some models wrap JSON in a markdown code fence despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// looseString accepts both JSON strings and bare numbers.
func looseString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// looseAmount accepts numbers and numeric strings with thousands
// separators; anything unparsable becomes 0.
func looseAmount(raw json.RawMessage) float64 {
	s := strings.ReplaceAll(looseString(raw), ",", "")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func binaryConfidence(present bool) float64 {
	if present {
		return 1.0
	}
	return 0.0
}
