package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileRecorder_AppendAndLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "logs", "log.jsonl")
	rec, err := NewFileRecorder(p)
	if err != nil {
		t.Fatalf("init recorder: %v", err)
	}
	defer rec.Close()

	ev1 := Event{Timestamp: time.Unix(1, 0).UTC(), GuildID: "g", ChannelID: "c", UserID: "1", UserMessage: "hi", AssistantResponse: "hello"}
	ev2 := Event{Timestamp: time.Unix(2, 0).UTC(), GuildID: "g", ChannelID: "c", UserID: "2", UserMessage: "foo", AssistantResponse: "bar", Provider: "groq"}
	if err := rec.AppendInteraction(ev1); err != nil {
		t.Fatalf("append1: %v", err)
	}

	// a corrupt line must not hide the rest
	f, err := os.OpenFile(p, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, _ = f.WriteString("{garbage\n")
	_ = f.Close()

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
	if events[0].UserID != "1" || events[1].UserID != "2" || events[1].Provider != "groq" {
		t.Fatalf("order mismatch: %+v", events)
	}
}

func TestFileRecorder_ReopenAppends(t *testing.T) {
	p := filepath.Join(t.TempDir(), "log.jsonl")
	first, err := NewFileRecorder(p)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := first.AppendInteraction(Event{UserID: "1", AssistantResponse: "a"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := NewFileRecorder(p)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	if err := second.AppendInteraction(Event{UserID: "2", AssistantResponse: "b"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	events, err := second.LoadInteractions()
	if err != nil || len(events) != 2 {
		t.Fatalf("existing events lost: %+v %v", events, err)
	}
}

func TestFileRecorder_AppendAfterClose(t *testing.T) {
	rec, err := NewFileRecorder(filepath.Join(t.TempDir(), "log.jsonl"))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := rec.AppendInteraction(Event{UserID: "1"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
