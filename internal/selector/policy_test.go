package selector

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewManager_EmbeddedOnly(t *testing.T) {
	m, err := NewManager("", false)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer m.Close()

	pol := m.Get()
	if pol == nil {
		t.Fatal("Get() returned nil")
	}
	if len(pol.GenericLadder) == 0 {
		t.Error("Expected generic ladder from embedded policy")
	}
	if len(pol.Keywords) == 0 {
		t.Error("Expected keyword map from embedded policy")
	}
	if len(pol.LoadingIndicators) == 0 {
		t.Error("Expected loading indicators from embedded policy")
	}
}

func TestNewManager_ExternalFile(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "policy.yaml")

	content := `
generic_ladder:
  - "#app"
  - "body"
`
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	m, err := NewManager(tmpFile, false)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer m.Close()

	pol := m.Get()
	if len(pol.GenericLadder) != 2 || pol.GenericLadder[0] != "#app" {
		t.Errorf("GenericLadder = %v, want the external override", pol.GenericLadder)
	}

	// Sections missing from the file fall back to the embedded policy
	if len(pol.Keywords) == 0 {
		t.Error("Expected embedded keywords to fill the missing section")
	}
	if len(pol.LoadingIndicators) == 0 {
		t.Error("Expected embedded loading indicators to fill the missing section")
	}
}

func TestNewManager_MissingFileFallsBack(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "nope.yaml"), false)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer m.Close()

	if len(m.Get().GenericLadder) == 0 {
		t.Error("Expected embedded policy when the file is missing")
	}
}

func TestManager_Reload(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "policy.yaml")

	if err := os.WriteFile(tmpFile, []byte("generic_ladder:\n  - \"main\"\n"), 0644); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	m, err := NewManager(tmpFile, false)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer m.Close()

	if err := os.WriteFile(tmpFile, []byte("generic_ladder:\n  - \"#root\"\n"), 0644); err != nil {
		t.Fatalf("Failed to rewrite temp file: %v", err)
	}
	if err := m.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if got := m.Get().GenericLadder[0]; got != "#root" {
		t.Errorf("GenericLadder[0] = %q after reload, want #root", got)
	}
}

func TestManager_ReloadKeepsPolicyOnBadYAML(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "policy.yaml")

	if err := os.WriteFile(tmpFile, []byte("generic_ladder:\n  - \"main\"\n"), 0644); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	m, err := NewManager(tmpFile, false)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer m.Close()

	if err := os.WriteFile(tmpFile, []byte("generic_ladder: [unclosed"), 0644); err != nil {
		t.Fatalf("Failed to rewrite temp file: %v", err)
	}
	if err := m.Reload(); err == nil {
		t.Fatal("Reload() on broken YAML should fail")
	}
	if got := m.Get().GenericLadder[0]; got != "main" {
		t.Errorf("GenericLadder[0] = %q, previous policy should survive a failed reload", got)
	}
}

func TestManager_CloseIdempotent(t *testing.T) {
	m, err := NewManager("", false)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}
