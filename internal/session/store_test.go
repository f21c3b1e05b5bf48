package session

import (
	"path/filepath"
	"testing"
	"time"

	"qoze/internal/types"
)

func TestStoreSaveAndList(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	defer store.Close()

	rec := Record{
		ID:          "s1",
		WorkDir:     "/tmp/project",
		CreatedAt:   time.Now().UTC(),
		Status:      types.SessionCompleted,
		TurnCount:   2,
		Usage:       types.Usage{InputTokens: 100, OutputTokens: 40},
		FinalAnswer: "all done",
	}
	turns := []types.Turn{
		{Seq: 1, Response: "checking", Elapsed: 120},
		{Seq: 2, Response: "all done", Terminal: true, Elapsed: 80},
	}
	if err := store.Save(rec, turns); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	records, err := store.List(10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	got := records[0]
	if got.ID != "s1" || got.Status != types.SessionCompleted {
		t.Errorf("record = %+v", got)
	}
	if got.Usage.InputTokens != 100 || got.TurnCount != 2 {
		t.Errorf("usage/turns not persisted: %+v", got)
	}
	if got.FinalAnswer != "all done" {
		t.Errorf("final answer = %q", got.FinalAnswer)
	}
}

func TestStoreSaveIdempotent(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	rec := Record{ID: "s1", WorkDir: "/w", CreatedAt: time.Now().UTC(), Status: types.SessionFailed}
	if err := store.Save(rec, nil); err != nil {
		t.Fatal(err)
	}
	rec.Status = types.SessionCompleted
	if err := store.Save(rec, nil); err != nil {
		t.Fatal(err)
	}

	records, err := store.List(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1 (replace, not duplicate)", len(records))
	}
	if records[0].Status != types.SessionCompleted {
		t.Errorf("status = %s, want the updated value", records[0].Status)
	}
}

func TestPreambleStableAndBounded(t *testing.T) {
	dir := t.TempDir()
	first := buildPreamble(dir)
	second := buildPreamble(dir)
	if first != second {
		t.Error("preamble must be byte-identical for an unchanged workdir")
	}
	if len(first) == 0 {
		t.Fatal("empty preamble")
	}
}
