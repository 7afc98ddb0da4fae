package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadProfiles_MissingDir(t *testing.T) {
	t.Parallel()

	profiles, err := LoadProfiles(filepath.Join(t.TempDir(), "assistants"))
	if err != nil {
		t.Fatalf("LoadProfiles: %v", err)
	}
	if profiles != nil {
		t.Fatalf("expected nil, got %+v", profiles)
	}
}

func TestLoadProfiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files := map[string]string{
		"writer.yaml": "name: Writer\nmodel: claude-sonnet-4-5\ninstructions: You write.\nmax_tokens: 2048\n",
		"coder.yaml":  "model: claude-sonnet-4-5\n",
		"notes.txt":   "not a profile\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}

	profiles, err := LoadProfiles(dir)
	if err != nil {
		t.Fatalf("LoadProfiles: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}

	// Sorted by id, and the name defaults to the id.
	if profiles[0].ID != "coder" || profiles[0].Name != "coder" {
		t.Errorf("unexpected first profile: %+v", profiles[0])
	}
	if profiles[1].ID != "writer" || profiles[1].Name != "Writer" {
		t.Errorf("unexpected second profile: %+v", profiles[1])
	}
	if profiles[1].Instructions != "You write." || profiles[1].MaxTokens != 2048 {
		t.Errorf("writer fields: %+v", profiles[1])
	}
}

func TestLoadProfiles_MalformedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("name: [unclosed"), 0o644); err != nil {
		t.Fatalf("writing profile: %v", err)
	}
	if _, err := LoadProfiles(dir); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestProfilesDir(t *testing.T) {
	t.Parallel()

	if got := ProfilesDir("/etc/assistant-chat"); got != filepath.Join("/etc/assistant-chat", "assistants") {
		t.Fatalf("ProfilesDir = %q", got)
	}
}
