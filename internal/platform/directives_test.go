package platform

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const presetBody = `# Configuration for building Blender as a Python module.
set(WITH_PYTHON_INSTALL       OFF CACHE BOOL "" FORCE)
set(WITH_AUDASPACE            OFF CACHE BOOL "" FORCE)
`

func writePreset(t *testing.T, body string) string {
	t.Helper()
	repo := t.TempDir()
	path := filepath.Join(repo, filepath.FromSlash(DirectivesFile))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return repo
}

func TestApplyCompileDirectives(t *testing.T) {
	repo := writePreset(t, presetBody)
	p := mustLookup(t, "linux", "amd64")

	added, err := p.ApplyCompileDirectives(repo)
	if err != nil {
		t.Fatalf("ApplyCompileDirectives: %v", err)
	}
	if len(added) != len(p.directives) {
		t.Errorf("expected %d directives appended, got %d", len(p.directives), len(added))
	}

	data, err := os.ReadFile(filepath.Join(repo, filepath.FromSlash(DirectivesFile)))
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.HasPrefix(content, presetBody) {
		t.Error("existing preset content must be preserved")
	}
	for _, want := range []string{"WITH_CYCLES_DEVICE_CUDA ON", "WITH_JACK ON", "WITH_PULSEAUDIO ON"} {
		if !strings.Contains(content, want) {
			t.Errorf("expected %q in preset", want)
		}
	}

	// A second run finds everything present and appends nothing.
	added, err = p.ApplyCompileDirectives(repo)
	if err != nil {
		t.Fatalf("second ApplyCompileDirectives: %v", err)
	}
	if len(added) != 0 {
		t.Errorf("expected no directives on second run, got %v", added)
	}
	again, _ := os.ReadFile(filepath.Join(repo, filepath.FromSlash(DirectivesFile)))
	if string(again) != content {
		t.Error("second run must leave the preset unchanged")
	}
}

func TestApplyCompileDirectives_PerPlatform(t *testing.T) {
	tests := []struct {
		goos, goarch string
		want, absent string
	}{
		{"windows", "amd64", "WITH_WASAPI ON", "WITH_JACK"},
		{"darwin", "arm64", "WITH_CYCLES_DEVICE_METAL ON", "WITH_CYCLES_DEVICE_CUDA"},
	}
	for _, tt := range tests {
		repo := writePreset(t, presetBody)
		if _, err := mustLookup(t, tt.goos, tt.goarch).ApplyCompileDirectives(repo); err != nil {
			t.Fatalf("%s: %v", tt.goos, err)
		}
		data, _ := os.ReadFile(filepath.Join(repo, filepath.FromSlash(DirectivesFile)))
		if !strings.Contains(string(data), tt.want) {
			t.Errorf("%s: expected %q", tt.goos, tt.want)
		}
		if strings.Contains(string(data), tt.absent) {
			t.Errorf("%s: unexpected %q", tt.goos, tt.absent)
		}
	}
}

func TestApplyCompileDirectives_MissingPreset(t *testing.T) {
	if _, err := mustLookup(t, "linux", "amd64").ApplyCompileDirectives(t.TempDir()); err == nil {
		t.Error("expected error for missing preset")
	}
}
