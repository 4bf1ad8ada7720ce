package platform

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// DirectivesFile is the CMake cache preset used by "make bpy".
const DirectivesFile = "build_files/cmake/config/bpy_module.cmake"

var (
	gpuCUDA = []string{
		`set(WITH_CYCLES_DEVICE_CUDA ON CACHE BOOL "" FORCE)`,
		`set(WITH_CYCLES_CUDA_BINARIES ON CACHE BOOL "" FORCE)`,
		`set(WITH_CYCLES_DEVICE_OPTIX ON CACHE BOOL "" FORCE)`,
	}
	gpuMetal = []string{
		`set(WITH_CYCLES_DEVICE_METAL ON CACHE BOOL "" FORCE)`,
	}

	audioLinux = []string{
		`set(WITH_AUDASPACE ON CACHE BOOL "" FORCE)`,
		`set(WITH_OPENAL ON CACHE BOOL "" FORCE)`,
		`set(WITH_JACK ON CACHE BOOL "" FORCE)`,
		`set(WITH_PULSEAUDIO ON CACHE BOOL "" FORCE)`,
	}
	audioWindows = []string{
		`set(WITH_AUDASPACE ON CACHE BOOL "" FORCE)`,
		`set(WITH_OPENAL ON CACHE BOOL "" FORCE)`,
		`set(WITH_WASAPI ON CACHE BOOL "" FORCE)`,
	}
	audioMacOS = []string{
		`set(WITH_AUDASPACE ON CACHE BOOL "" FORCE)`,
		`set(WITH_OPENAL ON CACHE BOOL "" FORCE)`,
		`set(WITH_COREAUDIO ON CACHE BOOL "" FORCE)`,
	}
)

// ApplyCompileDirectives appends the platform's GPU and audio directives to
// the bpy preset in repoDir. Directives already present are skipped, so
// repeated runs leave the file unchanged. It returns the lines appended.
func (p Profile) ApplyCompileDirectives(repoDir string) ([]string, error) {
	path := filepath.Join(repoDir, filepath.FromSlash(DirectivesFile))

	existing, err := readLines(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", DirectivesFile, err)
	}

	var add []string
	for _, d := range p.directives {
		if existing[d] {
			slog.Warn("compile directive already present, skipping", "file", DirectivesFile, "directive", d)
			continue
		}
		add = append(add, d)
	}
	if len(add) == 0 {
		return nil, nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", DirectivesFile, err)
	}
	defer f.Close()

	if _, err := f.WriteString("\n" + strings.Join(add, "\n") + "\n"); err != nil {
		return nil, fmt.Errorf("appending to %s: %w", DirectivesFile, err)
	}

	slog.Info("appended compile directives", "file", DirectivesFile, "count", len(add))
	return add, nil
}

func readLines(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines := make(map[string]bool)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines[strings.TrimSpace(sc.Text())] = true
	}
	return lines, sc.Err()
}
