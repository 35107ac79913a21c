package snapshot

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveCycleWritesAllThreeFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	s.SaveCycle("los-angeles", "LAX", "2025-12-27", "2025-12-27_09-00-00",
		map[string]string{"k": "forecast"},
		map[string]string{"k": "market"},
		map[string]string{"k": "decision"},
		true,
	)

	for _, p := range []string{
		s.ForecastTargetPath("LAX", "2025-12-27", "2025-12-27_09-00-00"),
		s.MarketTargetPath("los-angeles", "2025-12-27", "2025-12-27_09-00-00"),
		s.DecisionsTargetPath("LAX", "2025-12-27", "2025-12-27_09-00-00"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected file at %s: %v", p, err)
		}
	}
}

func TestSaveCycleSkipsDecisionsWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	s.SaveCycle("chicago", "CHI", "2025-12-27", "2025-12-27_09-00-00",
		map[string]string{"k": "forecast"},
		map[string]string{"k": "market"},
		nil, false,
	)

	decisionsPath := s.DecisionsTargetPath("CHI", "2025-12-27", "2025-12-27_09-00-00")
	if _, err := os.Stat(decisionsPath); !os.IsNotExist(err) {
		t.Fatalf("expected no decisions file, got err=%v", err)
	}
}

func TestSnapshotNeverRewrittenSameCycleTime(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	path := s.ForecastTargetPath("DEN", "2025-12-27", "2025-12-27_09-00-00")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(`{"first":true}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := writeAtomicJSON(path, map[string]bool{"second": true}); err == nil {
		t.Fatal("expected error rewriting an existing snapshot")
	}

	data, _ := os.ReadFile(path)
	if string(data) != `{"first":true}` {
		t.Fatalf("snapshot was rewritten: %s", data)
	}
}
