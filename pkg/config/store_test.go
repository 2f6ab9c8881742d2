package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStore_GetPatch(t *testing.T) {
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := s.Get("voice.wake_word"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing key err = %v; want ErrNotFound", err)
	}

	if err := s.Patch("voice.wake_word", "fae"); err != nil {
		t.Fatalf("Patch: %v", err)
	}
	got, err := s.Get("voice.wake_word")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "fae" {
		t.Errorf("Get = %v; want fae", got)
	}

	// Empty key returns the whole document.
	doc, err := s.Get("")
	if err != nil {
		t.Fatalf("Get whole doc: %v", err)
	}
	voice, ok := doc.(map[string]any)["voice"].(map[string]any)
	if !ok || voice["wake_word"] != "fae" {
		t.Errorf("document = %v", doc)
	}

	if err := s.Patch("", "x"); err == nil {
		t.Error("Patch with empty key succeeded; want error")
	}
}

func TestStore_Query(t *testing.T) {
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Patch("voice.volume", 7); err != nil {
		t.Fatalf("Patch: %v", err)
	}

	got, err := s.Query(".voice.volume")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	// gojq normalizes numbers to int or float64 depending on input.
	switch v := got.(type) {
	case int:
		if v != 7 {
			t.Errorf("Query = %d; want 7", v)
		}
	case float64:
		if v != 7 {
			t.Errorf("Query = %v; want 7", v)
		}
	default:
		t.Errorf("Query = %T(%v); want a number", got, got)
	}

	if _, err := s.Query("..bad syntax"); err == nil {
		t.Error("Query with invalid expression succeeded; want error")
	}
}

func TestStore_PersistAndReload(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Patch("persona.name", "Fae"); err != nil {
		t.Fatalf("Patch: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Fatalf("config.yaml not written: %v", err)
	}

	reloaded, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reloaded.Get("persona.name")
	if err != nil {
		t.Fatalf("Get after reload: %v", err)
	}
	if got != "Fae" {
		t.Errorf("Get after reload = %v; want Fae", got)
	}
}

func TestStore_DocumentIsCopy(t *testing.T) {
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Patch("alarm.days", []any{"mon", "tue"}); err != nil {
		t.Fatalf("Patch: %v", err)
	}

	doc := s.Document()
	days := doc["alarm"].(map[string]any)["days"].([]any)
	days[0] = "corrupted"
	doc["alarm"].(map[string]any)["extra"] = true

	got, err := s.Get("alarm.days")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.([]any)[0] != "mon" {
		t.Errorf("slice in store mutated through Document copy: %v", got)
	}
	if _, err := s.Get("alarm.extra"); !errors.Is(err, ErrNotFound) {
		t.Errorf("map in store mutated through Document copy")
	}
}

func TestStore_Reset(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Patch("a.b", 1); err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := s.Get("a.b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Reset err = %v; want ErrNotFound", err)
	}
}
