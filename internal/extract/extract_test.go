package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"money-request-bot/internal/llm"
)

type fakeLLM struct {
	resp    llm.Response
	err     error
	prompts []string
}

func (f *fakeLLM) Generate(ctx context.Context, msgs []llm.Message) (llm.Response, error) {
	f.prompts = append(f.prompts, msgs[len(msgs)-1].Content)
	return f.resp, f.err
}

func TestIsArabic(t *testing.T) {
	if IsArabic("need 500 riyals for project 12") {
		t.Fatalf("english text misdetected as arabic")
	}
	if !IsArabic("أحتاج 500 ريال") {
		t.Fatalf("arabic text not detected")
	}
	if !IsArabic("project مشروع 12") {
		t.Fatalf("mixed text not detected")
	}
}

func TestExtractPostProcessing(t *testing.T) {
	f := &fakeLLM{resp: llm.Response{Content: `{
		"project_number": "12A3",
		"project_name": "King Saud University",
		"amount": "1,000",
		"reason": "lab equipment",
		"missing_fields": [],
		"original_text": "x"
	}`}}
	p := NewProcessor(f)

	c, err := p.Extract(context.Background(), "need 1,000 riyals for project 12A3", "")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if c.ProjectNumber != "123" {
		t.Fatalf("project number not digit-stripped: %q", c.ProjectNumber)
	}
	if c.Amount != 1000.0 {
		t.Fatalf("amount not parsed: %v", c.Amount)
	}
	if len(c.MissingFields) != 0 {
		t.Fatalf("unexpected missing fields: %v", c.MissingFields)
	}
	for _, field := range RequiredFields {
		if c.Confidence[field] != 1.0 {
			t.Fatalf("confidence for %s = %v, want 1.0", field, c.Confidence[field])
		}
	}
	if c.OriginalText != "need 1,000 riyals for project 12A3" {
		t.Fatalf("original text not attached: %q", c.OriginalText)
	}
	if c.TranslatedText != "" {
		t.Fatalf("translated text set for english input: %q", c.TranslatedText)
	}
}

func TestExtractRecomputesMissingFields(t *testing.T) {
	// Model claims nothing is missing, but post-processing empties two fields.
	f := &fakeLLM{resp: llm.Response{Content: `{
		"project_number": "ABC",
		"project_name": "",
		"amount": "not a number",
		"reason": "books",
		"missing_fields": [],
		"original_text": "x"
	}`}}
	p := NewProcessor(f)

	c, err := p.Extract(context.Background(), "some text", "")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	want := map[string]bool{FieldProjectNumber: true, FieldProjectName: true, FieldAmount: true}
	if len(c.MissingFields) != len(want) {
		t.Fatalf("missing fields = %v", c.MissingFields)
	}
	for _, field := range c.MissingFields {
		if !want[field] {
			t.Fatalf("unexpected missing field %q", field)
		}
	}
	if c.Confidence[FieldReason] != 1.0 || c.Confidence[FieldAmount] != 0.0 {
		t.Fatalf("binary confidence wrong: %v", c.Confidence)
	}
}

func TestExtractInvalidJSON(t *testing.T) {
	p := NewProcessor(&fakeLLM{resp: llm.Response{Content: "Sure! The project number is 12."}})
	if _, err := p.Extract(context.Background(), "text", ""); err == nil {
		t.Fatalf("expected error for non-JSON response")
	}
}

func TestExtractMissingRequiredKey(t *testing.T) {
	p := NewProcessor(&fakeLLM{resp: llm.Response{Content: `{"project_number":"1","project_name":"n","amount":5,"reason":"r"}`}})
	if _, err := p.Extract(context.Background(), "text", ""); err == nil {
		t.Fatalf("expected error when missing_fields key is absent")
	}
}

func TestExtractLLMError(t *testing.T) {
	p := NewProcessor(&fakeLLM{err: errors.New("network down")})
	if _, err := p.Extract(context.Background(), "text", ""); err == nil {
		t.Fatalf("expected error when the model call fails")
	}
}

func TestExtractStripsCodeFence(t *testing.T) {
	f := &fakeLLM{resp: llm.Response{Content: "```json\n" +
		`{"project_number":"7","project_name":"Lab","amount":200,"reason":"repair","missing_fields":[],"original_text":"x"}` +
		"\n```"}}
	p := NewProcessor(f)

	c, err := p.Extract(context.Background(), "text", "")
	if err != nil {
		t.Fatalf("fenced JSON rejected: %v", err)
	}
	if c.ProjectNumber != "7" || c.Amount != 200 {
		t.Fatalf("fenced JSON parsed wrong: %+v", c)
	}
}

func TestExtractConcatenatesContext(t *testing.T) {
	f := &fakeLLM{resp: llm.Response{Content: `{"project_number":"1","project_name":"n","amount":5,"reason":"r","missing_fields":[],"original_text":"x"}`}}
	p := NewProcessor(f)

	c, err := p.Extract(context.Background(), "the amount is 500", "[10:00:00] project 12")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if !strings.Contains(f.prompts[0], "[10:00:00] project 12 the amount is 500") {
		t.Fatalf("context not prepended to prompt: %q", f.prompts[0])
	}
	if c.OriginalText != "[10:00:00] project 12 the amount is 500" {
		t.Fatalf("original text should include context: %q", c.OriginalText)
	}
}

func TestExtractTranslatesArabic(t *testing.T) {
	f := &fakeLLM{}
	p := NewProcessor(f)
	// First call translates, second extracts; the fake answers both with the
	// same content, which is valid JSON, so translation output equals it too.
	f.resp = llm.Response{Content: `{"project_number":"3","project_name":"n","amount":10,"reason":"r","missing_fields":[],"original_text":"x"}`}

	c, err := p.Extract(context.Background(), "أحتاج ١٠ ريال", "")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(f.prompts) != 2 {
		t.Fatalf("expected translate + extract calls, got %d", len(f.prompts))
	}
	if !strings.Contains(f.prompts[0], "Translate the following text") {
		t.Fatalf("first call was not a translation: %q", f.prompts[0])
	}
	if c.TranslatedText == "" {
		t.Fatalf("translated text not attached for arabic input")
	}
}

func TestTranslateFailureReturnsOriginal(t *testing.T) {
	p := NewProcessor(&fakeLLM{err: errors.New("boom")})
	if got := p.Translate(context.Background(), "نص عربي"); got != "نص عربي" {
		t.Fatalf("translate did not fall back to original: %q", got)
	}
}

func TestValidate(t *testing.T) {
	ok := &Candidate{ProjectNumber: "1", ProjectName: "Lab", Amount: 100, Reason: "books"}
	if !Validate(ok) {
		t.Fatalf("valid candidate rejected")
	}

	cases := []*Candidate{
		nil,
		{ProjectName: "Lab", Amount: 100, Reason: "books"},
		{ProjectNumber: "1", Amount: 100, Reason: "books"},
		{ProjectNumber: "1", ProjectName: "Lab", Reason: "books"},
		{ProjectNumber: "1", ProjectName: "Lab", Amount: -5, Reason: "books"},
		{ProjectNumber: "1", ProjectName: "Lab", Amount: 100},
	}
	for i, c := range cases {
		if Validate(c) {
			t.Fatalf("case %d: invalid candidate accepted: %+v", i, c)
		}
	}
}
