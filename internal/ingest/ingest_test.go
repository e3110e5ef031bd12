package ingest

import (
	"testing"
	"time"
)

func TestDecodeEntriesSingleObject(t *testing.T) {
	body := []byte(`{"id":"e1","text":"I met Sam today.","timestamp":"2026-03-14T10:00:00Z","role":"user","source":"chat"}`)

	entries, err := decodeEntries(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	e := entries[0]
	if e.ID != "e1" || e.Text != "I met Sam today." || e.Source != "chat" {
		t.Errorf("unexpected entry: %+v", e)
	}
	want := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	if !e.Timestamp.Equal(want) {
		t.Errorf("unexpected timestamp: %v", e.Timestamp)
	}
}

func TestDecodeEntriesArray(t *testing.T) {
	body := []byte(`[
		{"text":"first","role":"user"},
		{"text":"second","role":"assistant"}
	]`)

	entries, err := decodeEntries(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.ID == "" {
			t.Error("expected generated id for entry without one")
		}
		if e.Timestamp.IsZero() {
			t.Error("expected defaulted timestamp")
		}
	}
}

func TestDecodeEntriesRejectsUnknownRole(t *testing.T) {
	body := []byte(`{"text":"hello","role":"narrator"}`)
	if _, err := decodeEntries(body); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestDecodeEntriesSkipsEmptyText(t *testing.T) {
	body := []byte(`[{"text":"","role":"user"},{"text":"kept","role":"user"}]`)
	entries, err := decodeEntries(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].Text != "kept" {
		t.Errorf("expected only the non-empty entry, got %+v", entries)
	}
}

func TestDecodeEntriesMalformed(t *testing.T) {
	if _, err := decodeEntries([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed payload")
	}
}
