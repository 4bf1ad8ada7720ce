package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spachava753/buildbpy/internal/models"
	"github.com/spachava753/buildbpy/internal/paths"
	"gopkg.in/yaml.v3"
)

// maxBuildRecords bounds the build history kept in the state file.
const maxBuildRecords = 50

// LoadState loads the build state record. A missing file yields an empty state.
func LoadState(path string) (models.State, error) {
	var state models.State

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("reading state: %w", err)
	}

	if err := yaml.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("parsing state: %w", err)
	}
	return state, nil
}

// SaveState writes the state record atomically.
func SaveState(path string, state models.State) error {
	if len(state.Builds) > maxBuildRecords {
		state.Builds = state.Builds[len(state.Builds)-maxBuildRecords:]
	}

	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, paths.DefaultFileMode); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing state: %w", err)
	}
	return nil
}

// RecordBuild appends a build to the state file. The latest tag/commit
// markers belong to the upstream check and are left alone.
func RecordBuild(path string, rec models.BuildRecord) error {
	state, err := LoadState(path)
	if err != nil {
		return err
	}
	state.Builds = append(state.Builds, rec)
	return SaveState(path, state)
}
