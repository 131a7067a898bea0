package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileRecorderAppendAndLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "interactions.jsonl")
	rec, err := NewFileRecorder(p)
	if err != nil {
		t.Fatalf("init recorder: %v", err)
	}

	ev1 := Event{Timestamp: time.Unix(1, 0).UTC(), UserID: 1, Kind: "text", Input: "need 500 riyals", Response: "amount recorded"}
	ev2 := Event{Timestamp: time.Unix(2, 0).UTC(), UserID: 1, Kind: "voice", Input: "voice note", Transcript: "for project 12", Response: "project recorded"}
	if err := rec.AppendInteraction(ev1); err != nil {
		t.Fatalf("append1: %v", err)
	}
	if err := rec.AppendInteraction(ev2); err != nil {
		t.Fatalf("append2: %v", err)
	}

	events, err := rec.LoadInteractions()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("want 2, got %d", len(events))
	}
	if events[0].Kind != "text" || events[1].Transcript != "for project 12" {
		t.Fatalf("order or fields mismatch: %+v", events)
	}

	st, err := os.Stat(p)
	if err != nil || st.Size() == 0 {
		t.Fatalf("file not written")
	}
}

func TestFileRecorderSkipsMalformedLines(t *testing.T) {
	p := filepath.Join(t.TempDir(), "interactions.jsonl")
	rec, err := NewFileRecorder(p)
	if err != nil {
		t.Fatalf("init recorder: %v", err)
	}
	if err := rec.AppendInteraction(Event{UserID: 7, Kind: "text", Input: "hi"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := os.WriteFile(p, append(mustRead(t, p), []byte("{broken\n")...), 0o644); err != nil {
		t.Fatalf("corrupt file: %v", err)
	}

	events, err := rec.LoadInteractions()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(events) != 1 || events[0].UserID != 7 {
		t.Fatalf("malformed line not skipped: %+v", events)
	}
}

func mustRead(t *testing.T, p string) []byte {
	t.Helper()
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return b
}
